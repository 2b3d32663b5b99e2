package analysis

// ClassLabel is the categorical label assigned to each voxel by the
// classifier. Values are stable: they are stored in the uint8 label map and
// keyed by the projection palette.
type ClassLabel uint8

const (
	// LabelExcluded marks voxels outside the ROI, below the background
	// cutoff, or below the peak-enhancement threshold.
	LabelExcluded ClassLabel = iota

	// LabelNonQualifying marks voxels that enhance but fall on the wrong
	// side of the single-mode SER threshold. Never counted toward FTV.
	LabelNonQualifying

	// LabelPersistent, LabelPlateau and LabelWashout are the range-mode
	// kinetic classes, in order of increasing SER.
	LabelPersistent
	LabelPlateau
	LabelWashout

	// LabelEnhancing is the single-mode qualifying class.
	LabelEnhancing
)

// Qualifies reports whether the label counts toward the functional tumour
// volume.
func (l ClassLabel) Qualifies() bool {
	switch l {
	case LabelPersistent, LabelPlateau, LabelWashout, LabelEnhancing:
		return true
	}
	return false
}

func (l ClassLabel) String() string {
	switch l {
	case LabelExcluded:
		return "excluded"
	case LabelNonQualifying:
		return "non-qualifying"
	case LabelPersistent:
		return "persistent"
	case LabelPlateau:
		return "plateau"
	case LabelWashout:
		return "washout"
	case LabelEnhancing:
		return "enhancing"
	}
	return "unknown"
}

// classesFor returns the labels a given SER mode can produce, excluded first.
// The order is used for summary class counts and projection legends.
func classesFor(mode SERMode) []ClassLabel {
	switch mode.Kind {
	case SERModeSingle:
		return []ClassLabel{LabelExcluded, LabelNonQualifying, LabelEnhancing}
	default:
		return []ClassLabel{LabelExcluded, LabelPersistent, LabelPlateau, LabelWashout}
	}
}
