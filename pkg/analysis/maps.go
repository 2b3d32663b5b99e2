package analysis

import (
	"math"

	"dcequant/pkg/volume"
)

// ComputePE builds the voxel-wise peak-enhancement map:
//
//	PE = 100 * (early - pre) / pre
//
// Where pre is zero the quotient is defined as zero rather than propagating a
// non-finite value; such voxels are excluded downstream by the background mask
// anyway, and keeping the map finite protects classification and aggregation.
func ComputePE(pre, early *volume.Volume) *volume.Volume {
	pe := volume.New(pre.Geometry)
	for i := range pe.Data {
		p := pre.Data[i]
		if p == 0 {
			continue
		}
		pe.Data[i] = 100 * (early.Data[i] - p) / p
	}
	return pe
}

// ComputeSER builds the voxel-wise signal-enhancement-ratio map:
//
//	SER = (early - pre) / (late - pre)
//
// Where the denominator is zero the ratio is defined as zero, same policy as
// the PE map.
func ComputeSER(pre, early, late *volume.Volume) *volume.Volume {
	ser := volume.New(pre.Geometry)
	for i := range ser.Data {
		denom := late.Data[i] - pre.Data[i]
		if denom == 0 {
			continue
		}
		ser.Data[i] = (early.Data[i] - pre.Data[i]) / denom
	}
	return ser
}

// clampSER zeroes SER values outside [0, clamp] in place, the reference
// tool's rule that negative ratios and everything above the clamp are not
// considered. A clamp <= 0 disables the upper bound but still zeroes
// negatives.
func clampSER(ser *volume.Volume, clamp float64) {
	for i, v := range ser.Data {
		if v < 0 || math.IsNaN(v) {
			ser.Data[i] = 0
			continue
		}
		if clamp > 0 && v > clamp {
			ser.Data[i] = 0
		}
	}
}

// SubtractVolumes returns |minuend - subtrahend| over two frames of the
// sequence, the review-time subtraction image of the reference tool. The two
// ordinals must be in range and distinct.
func SubtractVolumes(seq *volume.Sequence, minuend, subtrahend int) (*volume.Volume, error) {
	n := seq.Len()
	if minuend < 0 || minuend >= n {
		return nil, &IndexError{Name: "minuend", Index: minuend, Length: n}
	}
	if subtrahend < 0 || subtrahend >= n {
		return nil, &IndexError{Name: "subtrahend", Index: subtrahend, Length: n}
	}
	if minuend == subtrahend {
		return nil, configErrorf("subtraction indices must differ, both are %d", minuend)
	}
	a := seq.Frame(minuend)
	b := seq.Frame(subtrahend)
	out := volume.New(a.Geometry)
	for i := range out.Data {
		out.Data[i] = math.Abs(a.Data[i] - b.Data[i])
	}
	return out, nil
}
