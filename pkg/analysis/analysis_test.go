package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"dcequant/pkg/summary"
	"dcequant/pkg/volume"
)

// buildSequence assembles a 2x2x1 three-frame sequence with unit spacing from
// the given voxel values.
func buildSequence(t *testing.T, pre, early, late []float64) *volume.Sequence {
	t.Helper()
	g := volume.NewGeometry(2, 2, 1, volume.Spacing{X: 1, Y: 1, Z: 1})
	frames := make([]*volume.Volume, 0, 3)
	for _, data := range [][]float64{pre, early, late} {
		v, err := volume.FromData(g, append([]float64(nil), data...))
		if err != nil {
			t.Fatalf("Failed to build frame: %v", err)
		}
		frames = append(frames, v)
	}
	seq, err := volume.NewSequence(frames, nil)
	if err != nil {
		t.Fatalf("Failed to build sequence: %v", err)
	}
	return seq
}

// rangeConfig returns the default range-mode threshold configuration used by
// most tests: 95th percentile background at 60%, PE threshold 20.
func rangeConfig() ThresholdConfig {
	return ThresholdConfig{
		PreIndex:             0,
		EarlyIndex:           1,
		LateIndex:            2,
		BackgroundPercentile: 95,
		BackgroundFraction:   0.6,
		PEThreshold:          20,
		SERMode:              SERRange(0.9, 1.1),
		SERClamp:             3.0,
	}
}

// TestComputePE verifies the peak-enhancement formula and the zero-baseline
// edge case.
func TestComputePE(t *testing.T) {
	g := volume.NewGeometry(3, 1, 1, volume.Spacing{X: 1, Y: 1, Z: 1})
	pre, _ := volume.FromData(g, []float64{100, 0, 50})
	early, _ := volume.FromData(g, []float64{150, 80, 50})

	pe := ComputePE(pre, early)

	if got := pe.Data[0]; got != 50 {
		t.Errorf("Expected PE 50 for 100->150, got %f", got)
	}
	if got := pe.Data[1]; got != 0 {
		t.Errorf("Expected PE 0 for zero baseline, got %f", got)
	}
	if got := pe.Data[2]; got != 0 {
		t.Errorf("Expected PE 0 for flat signal, got %f", got)
	}
}

// TestComputeSER verifies the signal-enhancement-ratio formula and the
// zero-denominator edge case.
func TestComputeSER(t *testing.T) {
	g := volume.NewGeometry(3, 1, 1, volume.Spacing{X: 1, Y: 1, Z: 1})
	pre, _ := volume.FromData(g, []float64{100, 100, 100})
	early, _ := volume.FromData(g, []float64{150, 150, 150})
	late, _ := volume.FromData(g, []float64{120, 180, 100})

	ser := ComputeSER(pre, early, late)

	if got := ser.Data[0]; math.Abs(got-2.5) > 1e-12 {
		t.Errorf("Expected SER 2.5, got %f", got)
	}
	if got := ser.Data[1]; math.Abs(got-0.625) > 1e-12 {
		t.Errorf("Expected SER 0.625, got %f", got)
	}
	// late == pre makes the denominator zero.
	if got := ser.Data[2]; got != 0 {
		t.Errorf("Expected SER 0 for zero denominator, got %f", got)
	}
}

// TestClampSER verifies negatives and values above the clamp are zeroed, and
// that a non-positive clamp disables only the upper bound.
func TestClampSER(t *testing.T) {
	g := volume.NewGeometry(4, 1, 1, volume.Spacing{X: 1, Y: 1, Z: 1})
	ser, _ := volume.FromData(g, []float64{-0.5, 1.2, 3.5, math.NaN()})

	clampSER(ser, 3.0)
	want := []float64{0, 1.2, 0, 0}
	for i := range want {
		if ser.Data[i] != want[i] {
			t.Errorf("Expected clamped SER %f at %d, got %f", want[i], i, ser.Data[i])
		}
	}

	ser2, _ := volume.FromData(g, []float64{-0.5, 1.2, 3.5, 10})
	clampSER(ser2, 0)
	if ser2.Data[0] != 0 {
		t.Errorf("Expected negative SER zeroed with clamp disabled, got %f", ser2.Data[0])
	}
	if ser2.Data[2] != 3.5 || ser2.Data[3] != 10 {
		t.Errorf("Expected upper bound disabled, got %v", ser2.Data)
	}
}

// TestClassifyVoxel verifies the per-voxel rule including exact-boundary
// behavior of the thresholds.
func TestClassifyVoxel(t *testing.T) {
	mode := SERRange(0.9, 1.1)

	cases := []struct {
		name            string
		inROI, aboveBkg bool
		pe, ser         float64
		want            ClassLabel
	}{
		{"outside ROI", false, true, 100, 0.5, LabelExcluded},
		{"below background", true, false, 100, 0.5, LabelExcluded},
		{"below PE threshold", true, true, 19.9, 0.5, LabelExcluded},
		{"PE exactly at threshold", true, true, 20, 0.5, LabelPersistent},
		{"SER at low cut", true, true, 50, 0.9, LabelPersistent},
		{"SER between cuts", true, true, 50, 1.0, LabelPlateau},
		{"SER at high cut", true, true, 50, 1.1, LabelPlateau},
		{"SER above high cut", true, true, 50, 1.2, LabelWashout},
	}
	for _, c := range cases {
		got := ClassifyVoxel(c.inROI, c.aboveBkg, c.pe, c.ser, 20, mode)
		if got != c.want {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, got)
		}
	}

	single := SERSingle(1.4)
	if got := ClassifyVoxel(true, true, 50, 1.4, 20, single); got != LabelEnhancing {
		t.Errorf("Expected enhancing at threshold, got %s", got)
	}
	if got := ClassifyVoxel(true, true, 50, 1.5, 20, single); got != LabelNonQualifying {
		t.Errorf("Expected non-qualifying above threshold, got %s", got)
	}
}

// TestBackgroundMask verifies the percentile cutoff on a constant region and
// the linear scaling with the background fraction.
func TestBackgroundMask(t *testing.T) {
	g := volume.NewGeometry(4, 4, 1, volume.Spacing{X: 1, Y: 1, Z: 1})
	pre := volume.New(g)
	for i := range pre.Data {
		pre.Data[i] = 200
	}
	pre.Data[0] = 50 // one voxel below any plausible cutoff

	bounds := volume.FullBox(g)
	mask, cutoff, err := ComputeBackgroundMask(pre, bounds, 95, 0.6)
	if err != nil {
		t.Fatalf("Expected mask to compute, got error: %v", err)
	}
	// The 95th percentile of a near-constant region is the constant.
	if math.Abs(cutoff-120) > 1e-9 {
		t.Errorf("Expected cutoff 120 (200 * 0.6), got %f", cutoff)
	}
	if mask.Data[0] {
		t.Error("Expected the 50-intensity voxel below the cutoff")
	}
	if got := mask.Count(); got != g.Len()-1 {
		t.Errorf("Expected %d voxels above cutoff, got %d", g.Len()-1, got)
	}

	// Halving the fraction halves the cutoff.
	_, half, err := ComputeBackgroundMask(pre, bounds, 95, 0.3)
	if err != nil {
		t.Fatalf("Expected mask to compute, got error: %v", err)
	}
	if math.Abs(half-cutoff/2) > 1e-9 {
		t.Errorf("Expected cutoff to scale with fraction, got %f vs %f", half, cutoff)
	}
}

// TestBackgroundMaskEmptyBounds verifies an empty bounding region is a
// configuration error.
func TestBackgroundMaskEmptyBounds(t *testing.T) {
	g := volume.NewGeometry(4, 4, 1, volume.Spacing{X: 1, Y: 1, Z: 1})
	pre := volume.New(g)

	_, _, err := ComputeBackgroundMask(pre, volume.BoundingBox{X0: 5, X1: 9, Y1: 4, Z1: 1}, 95, 0.6)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for empty bounds, got %v", err)
	}
}

// TestThresholdConfigValidate verifies the error taxonomy: out-of-range
// ordinals are IndexErrors, everything else ConfigurationErrors.
func TestThresholdConfigValidate(t *testing.T) {
	cfg := rangeConfig()
	if err := cfg.Validate(3); err != nil {
		t.Fatalf("Expected valid configuration, got error: %v", err)
	}

	var idxErr *IndexError
	var cfgErr *ConfigurationError

	bad := cfg
	bad.LateIndex = 5
	if err := bad.Validate(3); !errors.As(err, &idxErr) {
		t.Errorf("Expected IndexError for out-of-range ordinal, got %v", err)
	}
	if idxErr != nil && idxErr.Index != 5 {
		t.Errorf("Expected index 5 in error, got %d", idxErr.Index)
	}

	bad = cfg
	bad.EarlyIndex = 0
	if err := bad.Validate(3); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for duplicate ordinals, got %v", err)
	}

	bad = cfg
	bad.PreIndex, bad.LateIndex = 2, 0
	if err := bad.Validate(3); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for decreasing ordinals, got %v", err)
	}

	bad = cfg
	bad.BackgroundPercentile = 120
	if err := bad.Validate(3); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for percentile above 100, got %v", err)
	}

	bad = cfg
	bad.SERMode = SERRange(1.5, 0.9)
	if err := bad.Validate(3); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for inverted SER range, got %v", err)
	}
}

// TestEngineRun verifies the full pipeline on a hand-computed scenario: one
// washout voxel, one persistent voxel, two flat voxels.
func TestEngineRun(t *testing.T) {
	seq := buildSequence(t,
		[]float64{100, 100, 100, 100},
		[]float64{150, 150, 100, 100},
		[]float64{120, 180, 100, 100})
	g := seq.Geometry()

	table := summary.NewTable()
	engine := NewEngine(table, nil)

	out, err := engine.Run(context.Background(), Input{
		Sequence: seq,
		ROI:      volume.FullMask(g),
		Bounds:   volume.FullBox(g),
		Config:   rangeConfig(),
	})
	if err != nil {
		t.Fatalf("Expected run to succeed, got error: %v", err)
	}

	// Background: 95th percentile of all-100 pre is 100, cutoff 60.
	if math.Abs(out.BackgroundCutoff-60) > 1e-9 {
		t.Errorf("Expected background cutoff 60, got %f", out.BackgroundCutoff)
	}

	// Voxel 0: PE 50, SER 2.5 -> washout. Voxel 1: PE 50, SER 0.625 ->
	// persistent. Voxels 2 and 3: PE 0 -> excluded.
	wantLabels := []ClassLabel{LabelWashout, LabelPersistent, LabelExcluded, LabelExcluded}
	for i, want := range wantLabels {
		if got := ClassLabel(out.Classification.Data[i]); got != want {
			t.Errorf("Expected label %s at voxel %d, got %s", want, i, got)
		}
	}

	if out.FTV.VoxelCount != 2 {
		t.Errorf("Expected 2 qualifying voxels, got %d", out.FTV.VoxelCount)
	}
	if math.Abs(out.FTV.CubicMM-2.0) > 1e-9 {
		t.Errorf("Expected FTV 2.0 mm^3, got %f", out.FTV.CubicMM)
	}
	if math.Abs(out.FTV.CubicCM-0.002) > 1e-12 {
		t.Errorf("Expected FTV 0.002 cm^3, got %f", out.FTV.CubicCM)
	}

	if math.Abs(out.PE.Data[0]-50) > 1e-9 {
		t.Errorf("Expected PE map 50 at voxel 0, got %f", out.PE.Data[0])
	}
	if math.Abs(out.SER.Data[0]-2.5) > 1e-9 {
		t.Errorf("Expected SER map 2.5 at voxel 0, got %f", out.SER.Data[0])
	}

	// All four maps travel in stable order.
	if len(out.Maps) != 4 {
		t.Fatalf("Expected 4 output maps, got %d", len(out.Maps))
	}
	if out.Maps[0] != out.PE || out.Maps[1] != out.SER {
		t.Error("Expected PE and SER first in the output map order")
	}

	// Exactly one summary row, with the expected tallies and settings.
	if table.Len() != 1 {
		t.Fatalf("Expected 1 summary row, got %d", table.Len())
	}
	row := table.Rows()[0]
	if row.VoxelCount != 2 || row.CandidateCount != 4 {
		t.Errorf("Expected 2 qualifying of 4 candidates, got %d of %d",
			row.VoxelCount, row.CandidateCount)
	}
	counts := map[string]int{}
	for _, cc := range row.ClassCounts {
		counts[cc.Name] = cc.Count
	}
	if counts["washout"] != 1 || counts["persistent"] != 1 || counts["plateau"] != 0 {
		t.Errorf("Expected washout=1 persistent=1 plateau=0, got %v", counts)
	}
	if row.Settings.PEThreshold != 20 {
		t.Errorf("Expected settings snapshot in row, got %+v", row.Settings)
	}
}

// TestEngineRunSingleMode verifies the two-class scheme: the non-qualifying
// class is reported but never counted toward FTV.
func TestEngineRunSingleMode(t *testing.T) {
	seq := buildSequence(t,
		[]float64{100, 100, 100, 100},
		[]float64{150, 150, 100, 100},
		[]float64{120, 180, 100, 100})
	g := seq.Geometry()

	cfg := rangeConfig()
	cfg.SERMode = SERSingle(1.4)

	out, err := NewEngine(summary.NewTable(), nil).Run(context.Background(), Input{
		Sequence: seq,
		ROI:      volume.FullMask(g),
		Bounds:   volume.FullBox(g),
		Config:   cfg,
	})
	if err != nil {
		t.Fatalf("Expected run to succeed, got error: %v", err)
	}

	// SER 2.5 is above 1.4, SER 0.625 below.
	if got := ClassLabel(out.Classification.Data[0]); got != LabelNonQualifying {
		t.Errorf("Expected non-qualifying at voxel 0, got %s", got)
	}
	if got := ClassLabel(out.Classification.Data[1]); got != LabelEnhancing {
		t.Errorf("Expected enhancing at voxel 1, got %s", got)
	}
	if out.FTV.VoxelCount != 1 {
		t.Errorf("Expected only the enhancing voxel in FTV, got %d", out.FTV.VoxelCount)
	}
}

// TestSingleModeMonotonicity verifies raising the single-mode threshold never
// shrinks the enhancing set.
func TestSingleModeMonotonicity(t *testing.T) {
	seq := buildSequence(t,
		[]float64{100, 100, 100, 100},
		[]float64{150, 150, 140, 160},
		[]float64{120, 180, 130, 125})
	g := seq.Geometry()

	count := func(threshold float64) int {
		cfg := rangeConfig()
		cfg.SERMode = SERSingle(threshold)
		out, err := NewEngine(nil, nil).Run(context.Background(), Input{
			Sequence: seq,
			ROI:      volume.FullMask(g),
			Bounds:   volume.FullBox(g),
			Config:   cfg,
		})
		if err != nil {
			t.Fatalf("Expected run to succeed at threshold %f, got error: %v", threshold, err)
		}
		return out.FTV.VoxelCount
	}

	prev := count(0)
	for _, threshold := range []float64{0.5, 1.0, 1.5, 2.0, 3.0} {
		got := count(threshold)
		if got < prev {
			t.Errorf("Expected voxel count non-decreasing in threshold, %f gave %d after %d",
				threshold, got, prev)
		}
		prev = got
	}
}

// TestEngineRunNoEnhancement verifies a uniform series yields an empty but
// valid result, not an error.
func TestEngineRunNoEnhancement(t *testing.T) {
	flat := []float64{100, 100, 100, 100}
	seq := buildSequence(t, flat, flat, flat)
	g := seq.Geometry()

	table := summary.NewTable()
	out, err := NewEngine(table, nil).Run(context.Background(), Input{
		Sequence: seq,
		ROI:      volume.FullMask(g),
		Bounds:   volume.FullBox(g),
		Config:   rangeConfig(),
	})
	if err != nil {
		t.Fatalf("Expected run to succeed, got error: %v", err)
	}
	if out.FTV.VoxelCount != 0 || out.FTV.CubicMM != 0 {
		t.Errorf("Expected zero FTV for flat series, got %+v", out.FTV)
	}
	if table.Len() != 1 {
		t.Errorf("Expected the empty result still appended, got %d rows", table.Len())
	}
}

// TestEngineRunDeterminism verifies repeated runs over the same inputs produce
// identical labels regardless of worker parallelism.
func TestEngineRunDeterminism(t *testing.T) {
	seq := buildSequence(t,
		[]float64{100, 80, 100, 120},
		[]float64{150, 150, 100, 200},
		[]float64{120, 180, 100, 160})
	g := seq.Geometry()

	run := func(workers int) []uint8 {
		engine := NewEngine(nil, nil)
		engine.Workers = workers
		out, err := engine.Run(context.Background(), Input{
			Sequence: seq,
			ROI:      volume.FullMask(g),
			Bounds:   volume.FullBox(g),
			Config:   rangeConfig(),
		})
		if err != nil {
			t.Fatalf("Expected run to succeed, got error: %v", err)
		}
		return out.Classification.Data
	}

	first := run(1)
	for _, workers := range []int{2, 4, 8} {
		got := run(workers)
		for i := range first {
			if got[i] != first[i] {
				t.Fatalf("Expected identical labels with %d workers, differ at voxel %d", workers, i)
			}
		}
	}
}

// TestEngineValidation verifies the up-front checks reject bad inputs before
// any output or summary row is produced.
func TestEngineValidation(t *testing.T) {
	seq := buildSequence(t,
		[]float64{100, 100, 100, 100},
		[]float64{150, 150, 100, 100},
		[]float64{120, 180, 100, 100})
	g := seq.Geometry()
	table := summary.NewTable()
	engine := NewEngine(table, nil)

	var cfgErr *ConfigurationError

	// Empty ROI.
	_, err := engine.Run(context.Background(), Input{
		Sequence: seq,
		ROI:      volume.NewMask(g),
		Bounds:   volume.FullBox(g),
		Config:   rangeConfig(),
	})
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for empty ROI, got %v", err)
	}

	// ROI on a different grid.
	other := volume.FullMask(volume.NewGeometry(3, 3, 1, volume.Spacing{X: 1, Y: 1, Z: 1}))
	_, err = engine.Run(context.Background(), Input{
		Sequence: seq,
		ROI:      other,
		Bounds:   volume.FullBox(g),
		Config:   rangeConfig(),
	})
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for grid mismatch, got %v", err)
	}

	// Bounding region outside the grid.
	_, err = engine.Run(context.Background(), Input{
		Sequence: seq,
		ROI:      volume.FullMask(g),
		Bounds:   volume.BoundingBox{X0: 10, X1: 20, Y1: 2, Z1: 1},
		Config:   rangeConfig(),
	})
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for empty bounds, got %v", err)
	}

	// Out-of-range ordinal surfaces as an IndexError.
	bad := rangeConfig()
	bad.LateIndex = 9
	var idxErr *IndexError
	_, err = engine.Run(context.Background(), Input{
		Sequence: seq,
		ROI:      volume.FullMask(g),
		Bounds:   volume.FullBox(g),
		Config:   bad,
	})
	if !errors.As(err, &idxErr) {
		t.Errorf("Expected IndexError for bad ordinal, got %v", err)
	}

	// No failed run may leave a row behind.
	if table.Len() != 0 {
		t.Errorf("Expected no summary rows after failed runs, got %d", table.Len())
	}
}

// TestEngineRunCancelled verifies a cancelled context aborts the run without
// appending a summary row.
func TestEngineRunCancelled(t *testing.T) {
	seq := buildSequence(t,
		[]float64{100, 100, 100, 100},
		[]float64{150, 150, 100, 100},
		[]float64{120, 180, 100, 100})
	g := seq.Geometry()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	table := summary.NewTable()
	_, err := NewEngine(table, nil).Run(ctx, Input{
		Sequence: seq,
		ROI:      volume.FullMask(g),
		Bounds:   volume.FullBox(g),
		Config:   rangeConfig(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Expected no summary row after cancellation, got %d", table.Len())
	}
}

// TestSelectTimepoints verifies the exported frame resolver validates before
// dereferencing.
func TestSelectTimepoints(t *testing.T) {
	seq := buildSequence(t,
		[]float64{1, 1, 1, 1},
		[]float64{2, 2, 2, 2},
		[]float64{3, 3, 3, 3})

	pre, early, late, err := SelectTimepoints(seq, rangeConfig())
	if err != nil {
		t.Fatalf("Expected selection to succeed, got error: %v", err)
	}
	if pre.Data[0] != 1 || early.Data[0] != 2 || late.Data[0] != 3 {
		t.Errorf("Expected frames 1/2/3, got %f/%f/%f", pre.Data[0], early.Data[0], late.Data[0])
	}

	bad := rangeConfig()
	bad.EarlyIndex = 7
	if _, _, _, err := SelectTimepoints(seq, bad); err == nil {
		t.Error("Expected error for out-of-range ordinal, got nil")
	}
}

// TestAggregateFTV verifies the voxel volume from grid spacing flows into the
// physical FTV.
func TestAggregateFTV(t *testing.T) {
	g := volume.NewGeometry(2, 2, 1, volume.Spacing{X: 0.5, Y: 0.5, Z: 2.0})
	labels := volume.NewLabelMap(g)
	labels.Data[0] = uint8(LabelWashout)
	labels.Data[1] = uint8(LabelEnhancing)
	labels.Data[2] = uint8(LabelNonQualifying)

	ftv := AggregateFTV(labels)
	if ftv.VoxelCount != 2 {
		t.Errorf("Expected 2 qualifying voxels, got %d", ftv.VoxelCount)
	}
	// Two voxels of 0.5 mm^3 each.
	if math.Abs(ftv.CubicMM-1.0) > 1e-12 {
		t.Errorf("Expected 1.0 mm^3, got %f", ftv.CubicMM)
	}
	if math.Abs(ftv.CubicCM-0.001) > 1e-15 {
		t.Errorf("Expected 0.001 cm^3, got %f", ftv.CubicCM)
	}
}

// TestSubtractVolumes verifies the review-time subtraction image and its
// ordinal checks.
func TestSubtractVolumes(t *testing.T) {
	seq := buildSequence(t,
		[]float64{100, 100, 100, 100},
		[]float64{150, 90, 100, 100},
		[]float64{120, 180, 100, 100})

	diff, err := SubtractVolumes(seq, 1, 0)
	if err != nil {
		t.Fatalf("Expected subtraction to succeed, got error: %v", err)
	}
	if diff.Data[0] != 50 || diff.Data[1] != 10 {
		t.Errorf("Expected absolute differences 50 and 10, got %f and %f", diff.Data[0], diff.Data[1])
	}

	if _, err := SubtractVolumes(seq, 1, 1); err == nil {
		t.Error("Expected error for identical ordinals, got nil")
	}
	var idxErr *IndexError
	if _, err := SubtractVolumes(seq, 5, 0); !errors.As(err, &idxErr) {
		t.Errorf("Expected IndexError for out-of-range ordinal, got %v", err)
	}
}

// TestPaletteFor verifies each mode's palette carries its producible classes.
func TestPaletteFor(t *testing.T) {
	rangePalette := PaletteFor(SERRange(0.9, 1.1))
	names := map[string]bool{}
	for _, e := range rangePalette {
		names[e.Name] = true
	}
	for _, want := range []string{"excluded", "persistent", "plateau", "washout"} {
		if !names[want] {
			t.Errorf("Expected range palette to contain %q", want)
		}
	}

	singlePalette := PaletteFor(SERSingle(1.4))
	names = map[string]bool{}
	for _, e := range singlePalette {
		names[e.Name] = true
	}
	for _, want := range []string{"excluded", "enhancing", "non-qualifying"} {
		if !names[want] {
			t.Errorf("Expected single palette to contain %q", want)
		}
	}
}
