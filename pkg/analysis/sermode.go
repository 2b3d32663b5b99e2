package analysis

import "fmt"

// SERModeKind selects between the two SER classification schemes.
type SERModeKind int

const (
	// SERModeRange splits qualifying voxels into the conventional
	// persistent/plateau/washout kinetic classes using two cut points.
	SERModeRange SERModeKind = iota

	// SERModeSingle splits qualifying voxels into enhancing/non-qualifying
	// around a single threshold.
	SERModeSingle
)

// SERMode is the tagged variant describing how SER values are classified.
// Construct it with SERRange or SERSingle; the zero value is not valid.
type SERMode struct {
	Kind SERModeKind

	// Low and High are the range-mode cut points: SER <= Low is persistent,
	// Low < SER <= High is plateau, SER > High is washout.
	Low  float64
	High float64

	// Threshold is the single-mode cut point: SER <= Threshold is enhancing.
	Threshold float64
}

// SERRange returns the three-class mode with the given cut points.
func SERRange(low, high float64) SERMode {
	return SERMode{Kind: SERModeRange, Low: low, High: high}
}

// SERSingle returns the two-class mode with the given threshold.
func SERSingle(threshold float64) SERMode {
	return SERMode{Kind: SERModeSingle, Threshold: threshold}
}

// validate checks the mode's numeric parameters.
func (m SERMode) validate() error {
	switch m.Kind {
	case SERModeRange:
		if m.Low >= m.High {
			return configErrorf("SER range mode requires low < high, got low=%g high=%g", m.Low, m.High)
		}
	case SERModeSingle:
		if m.Threshold < 0 {
			return configErrorf("SER single mode requires a non-negative threshold, got %g", m.Threshold)
		}
	default:
		return configErrorf("unknown SER mode kind %d", m.Kind)
	}
	return nil
}

// String renders the mode in a compact, human-readable form for summary rows.
func (m SERMode) String() string {
	switch m.Kind {
	case SERModeRange:
		return fmt.Sprintf("range(%.2f,%.2f)", m.Low, m.High)
	case SERModeSingle:
		return fmt.Sprintf("single(%.2f)", m.Threshold)
	default:
		return fmt.Sprintf("unknown(%d)", m.Kind)
	}
}
