package analysis

import "dcequant/pkg/volume"

// cubicMMPerCubicCM converts mm^3 to cm^3.
const cubicMMPerCubicCM = 1000.0

// FTV is the aggregate functional tumour volume for one run.
type FTV struct {
	// VoxelCount is the number of voxels labelled with an enhancing class.
	VoxelCount int

	// CubicMM and CubicCM are the physical volume of those voxels.
	CubicMM float64
	CubicCM float64
}

// AggregateFTV reduces a classification map to the functional tumour volume:
// the count of qualifying voxels times the voxel volume from the grid spacing.
// Zero qualifying voxels is a valid result, not an error.
func AggregateFTV(labels *volume.LabelMap) FTV {
	count := 0
	for _, raw := range labels.Data {
		if ClassLabel(raw).Qualifies() {
			count++
		}
	}
	mm3 := float64(count) * labels.Geometry.Spacing.VoxelVolume()
	return FTV{
		VoxelCount: count,
		CubicMM:    mm3,
		CubicCM:    mm3 / cubicMMPerCubicCM,
	}
}
