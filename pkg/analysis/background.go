package analysis

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"dcequant/pkg/volume"
)

// backgroundCutoff computes the baseline intensity cutoff from the
// pre-contrast volume restricted to the bounding region: the configured
// percentile of that restricted distribution, scaled by the background
// fraction. The percentile uses linear interpolation between order statistics
// so results are reproducible across runs and platforms.
func backgroundCutoff(pre *volume.Volume, bounds volume.BoundingBox, percentile, fraction float64) (float64, error) {
	bounds = bounds.Clamp(pre.Geometry)
	if bounds.Empty() {
		return 0, configErrorf("bounding region %s selects no voxels", bounds)
	}
	values := bounds.Extract(pre)
	sort.Float64s(values)
	q := stat.Quantile(percentile/100.0, stat.LinInterp, values, nil)
	return q * fraction, nil
}

// backgroundMask marks voxels whose pre-contrast intensity is at or above the
// cutoff. The bounding region only scopes the percentile estimate; the mask
// itself covers the full volume.
func backgroundMask(pre *volume.Volume, cutoff float64) *volume.Mask {
	mask := volume.NewMask(pre.Geometry)
	for i, v := range pre.Data {
		mask.Data[i] = v >= cutoff
	}
	return mask
}

// ComputeBackgroundMask runs the background thresholder standalone: percentile
// estimate over the bounding region, cutoff, full-volume mask. Exposed for
// hosts that want to preview the baseline mask while tuning sliders.
func ComputeBackgroundMask(pre *volume.Volume, bounds volume.BoundingBox, percentile, fraction float64) (*volume.Mask, float64, error) {
	cutoff, err := backgroundCutoff(pre, bounds, percentile, fraction)
	if err != nil {
		return nil, 0, err
	}
	return backgroundMask(pre, cutoff), cutoff, nil
}
