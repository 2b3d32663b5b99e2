// Package analysis implements the three-time-point (3TP) parametric engine:
// it turns a time-resolved volume sequence, an ROI mask and a set of threshold
// settings into voxel-wise enhancement maps, a categorical classification map,
// a functional tumour volume metric and a projection overlay.
//
// The engine is a pure function of its declared inputs: nothing it consumes is
// mutated, so concurrent invocations against the same sequence are safe. The
// only shared mutable state is the summary table, whose appends are serialized
// internally.
package analysis

import (
	"context"

	"go.uber.org/zap"

	"dcequant/pkg/projection"
	"dcequant/pkg/summary"
	"dcequant/pkg/volume"
)

// Input bundles the immutable inputs of one analysis invocation.
type Input struct {
	// Sequence is the time-ordered, co-registered frame stack.
	Sequence *volume.Sequence

	// ROI selects the voxels eligible for PE/SER/FTV computation. Exactly one
	// ROI is active per run; choosing among several is the host's concern.
	ROI *volume.Mask

	// Bounds scopes the background-percentile estimate. It is not the ROI.
	Bounds volume.BoundingBox

	// Config holds the per-run threshold settings.
	Config ThresholdConfig

	// ProjectionAxis is the MIP ray direction (default z).
	ProjectionAxis projection.Axis
}

// Output is the assembled result of one run. Maps holds the derived volumes in
// stable order: PE, SER, classification, projection.
type Output struct {
	PE             *volume.Volume
	SER            *volume.Volume
	Classification *volume.LabelMap
	Projection     *projection.Overlay
	Maps           []*volume.Volume

	// BackgroundCutoff is the resolved baseline intensity cutoff.
	BackgroundCutoff float64

	FTV FTV

	// Row is the summary row appended for this run.
	Row summary.Row
}

// Engine runs 3TP analyses and appends one summary row per completed run.
type Engine struct {
	table  *summary.Table
	logger *zap.SugaredLogger

	// Workers bounds the classification parallelism; 0 means one worker per
	// CPU.
	Workers int
}

// NewEngine returns an engine appending to the given table. A nil logger is
// replaced with a no-op logger.
func NewEngine(table *summary.Table, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{table: table, logger: logger}
}

// Run executes the full pipeline. All validation happens before any output is
// produced; a failed or abandoned run never appends to the summary table.
func (e *Engine) Run(ctx context.Context, in Input) (*Output, error) {
	if err := e.validate(in); err != nil {
		return nil, err
	}
	cfg := in.Config
	g := in.Sequence.Geometry()

	tp := selectTimepoints(in.Sequence, cfg)
	e.logger.Debugw("resolved time points",
		"pre", cfg.PreIndex, "early", cfg.EarlyIndex, "late", cfg.LateIndex)

	cutoff, err := backgroundCutoff(tp.pre, in.Bounds, cfg.BackgroundPercentile, cfg.BackgroundFraction)
	if err != nil {
		return nil, err
	}
	background := backgroundMask(tp.pre, cutoff)
	e.logger.Debugw("background threshold", "cutoff", cutoff,
		"percentile", cfg.BackgroundPercentile, "fraction", cfg.BackgroundFraction)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pe := ComputePE(tp.pre, tp.early)
	ser := ComputeSER(tp.pre, tp.early, tp.late)
	clampSER(ser, cfg.SERClamp)

	// Zero the maps below the baseline cutoff so the published volumes only
	// carry signal where the background criterion holds, as the reference
	// tool does. Classification excludes those voxels first anyway.
	for i, above := range background.Data {
		if !above {
			pe.Data[i] = 0
			ser.Data[i] = 0
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	labels := classify(background, in.ROI, pe, ser, cfg, e.Workers)
	ftv := AggregateFTV(labels)
	e.logger.Debugw("classification complete", "voxels", g.Len(),
		"qualifying", ftv.VoxelCount, "ftv_mm3", ftv.CubicMM)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	overlay, err := projection.Compose(tp.early, labels, in.ProjectionAxis)
	if err != nil {
		return nil, err
	}

	candidates := 0
	for i := range background.Data {
		if background.Data[i] && in.ROI.Data[i] {
			candidates++
		}
	}

	counts := countClasses(labels, cfg.SERMode)
	row := summary.Row{
		VoxelCount:     ftv.VoxelCount,
		CandidateCount: candidates,
		FTVCubicMM:     ftv.CubicMM,
		FTVCubicCM:     ftv.CubicCM,
		Settings:       cfg.settings(),
	}
	for _, class := range classesFor(cfg.SERMode) {
		if class == LabelExcluded {
			continue
		}
		row.ClassCounts = append(row.ClassCounts, summary.ClassCount{
			Name:  class.String(),
			Count: counts[class],
		})
	}
	if e.table != nil {
		row = e.table.Append(row)
	}

	return &Output{
		PE:               pe,
		SER:              ser,
		Classification:   labels,
		Projection:       overlay,
		Maps:             []*volume.Volume{pe, ser, labels.Volume(), overlay.IntensityVolume()},
		BackgroundCutoff: cutoff,
		FTV:              ftv,
		Row:              row,
	}, nil
}

// validate performs all up-front input checks: grid agreement, ordinal
// validity, non-empty bounding region and ROI.
func (e *Engine) validate(in Input) error {
	if in.Sequence == nil {
		return configErrorf("sequence is nil")
	}
	if in.ROI == nil {
		return configErrorf("ROI mask is nil")
	}
	g := in.Sequence.Geometry()
	if err := g.Validate(); err != nil {
		return configErrorf("invalid sequence geometry: %v", err)
	}
	if !g.SameGrid(in.ROI.Geometry) {
		return configErrorf("ROI grid %dx%dx%d does not match sequence grid %dx%dx%d",
			in.ROI.Geometry.NX, in.ROI.Geometry.NY, in.ROI.Geometry.NZ, g.NX, g.NY, g.NZ)
	}
	if err := in.Config.Validate(in.Sequence.Len()); err != nil {
		return err
	}
	if in.Bounds.Clamp(g).Empty() {
		return configErrorf("bounding region %s selects no voxels", in.Bounds)
	}
	if in.ROI.Count() == 0 {
		return configErrorf("ROI mask is empty")
	}
	return nil
}
