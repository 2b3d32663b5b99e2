package analysis

import (
	"runtime"
	"sync"

	"dcequant/pkg/volume"
)

// ClassifyVoxel is the pure per-voxel classification rule. It depends only on
// its arguments, so batched evaluation in any order is safe.
func ClassifyVoxel(inROI, aboveBackground bool, pe, ser float64, peThreshold float64, mode SERMode) ClassLabel {
	if !inROI || !aboveBackground {
		return LabelExcluded
	}
	if pe < peThreshold {
		return LabelExcluded
	}
	switch mode.Kind {
	case SERModeRange:
		switch {
		case ser <= mode.Low:
			return LabelPersistent
		case ser <= mode.High:
			return LabelPlateau
		default:
			return LabelWashout
		}
	case SERModeSingle:
		if ser <= mode.Threshold {
			return LabelEnhancing
		}
		return LabelNonQualifying
	}
	return LabelExcluded
}

// classify evaluates the rule over the full volume, parallelized across
// z-slabs. Each worker owns a disjoint slab of the label map, so there is no
// shared mutable state and the result is independent of scheduling.
func classify(background, roi *volume.Mask, pe, ser *volume.Volume, cfg ThresholdConfig, workers int) *volume.LabelMap {
	g := pe.Geometry
	labels := volume.NewLabelMap(g)

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > g.NZ {
		workers = g.NZ
	}
	if workers < 1 {
		workers = 1
	}

	sliceStride := g.NX * g.NY
	slabsPerWorker := (g.NZ + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		z0 := w * slabsPerWorker
		z1 := z0 + slabsPerWorker
		if z1 > g.NZ {
			z1 = g.NZ
		}
		if z0 >= z1 {
			continue
		}
		wg.Add(1)
		go func(z0, z1 int) {
			defer wg.Done()
			for i := z0 * sliceStride; i < z1*sliceStride; i++ {
				labels.Data[i] = uint8(ClassifyVoxel(
					roi.Data[i], background.Data[i],
					pe.Data[i], ser.Data[i],
					cfg.PEThreshold, cfg.SERMode))
			}
		}(z0, z1)
	}
	wg.Wait()

	return labels
}

// countClasses tallies voxels per label in the order classesFor defines.
func countClasses(labels *volume.LabelMap, mode SERMode) map[ClassLabel]int {
	counts := make(map[ClassLabel]int)
	for _, raw := range labels.Data {
		counts[ClassLabel(raw)]++
	}
	// Ensure every producible class is present even at zero.
	for _, c := range classesFor(mode) {
		if _, ok := counts[c]; !ok {
			counts[c] = 0
		}
	}
	return counts
}
