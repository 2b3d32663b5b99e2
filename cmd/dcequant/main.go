package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"dcequant/pkg/analysis"
	"dcequant/pkg/config"
	"dcequant/pkg/dicomio"
	"dcequant/pkg/projection"
	"dcequant/pkg/summary"
	"dcequant/pkg/volume"
)

func main() {
	configPath := flag.String("config", "dcequant.yaml", "Path to YAML configuration file")
	inputDir := flag.String("input", "", "Directory containing the DCE-MRI DICOM series")
	outputDir := flag.String("output", "dcequant_results", "Directory for maps, overlay and summary table")
	workers := flag.Int("cores", runtime.NumCPU(), "Number of CPU cores to use for classification")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger := newLogger(*debug)
	defer logger.Sync()
	log := logger.Sugar()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalw("failed to write default config", "path", *configPath, "error", err)
		}
		log.Infow("wrote default configuration", "path", *configPath)
		return
	}

	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalw("failed to load configuration", "path", *configPath, "error", err)
	}

	fmt.Println("================================")
	fmt.Println("THREE-TIME-POINT DCE-MRI PARAMETRIC ANALYSIS")
	fmt.Println("PE/SER maps, voxel classification and functional tumour volume")
	fmt.Println("================================")

	log.Infow("loading DICOM series", "dir", *inputDir)
	seq, timings, err := dicomio.LoadSeries(*inputDir)
	if err != nil {
		log.Fatalw("failed to load series", "error", err)
	}
	g := seq.Geometry()
	log.Infow("series loaded",
		"frames", seq.Len(),
		"grid", fmt.Sprintf("%dx%dx%d", g.NX, g.NY, g.NZ),
		"spacing_mm", fmt.Sprintf("%.3fx%.3fx%.3f", g.Spacing.X, g.Spacing.Y, g.Spacing.Z),
		"injection_ms", timings.InjectionTime)

	thresholds, err := cfg.ThresholdConfig(seq.Len())
	if err != nil {
		log.Fatalw("invalid analysis configuration", "error", err)
	}

	roi, err := buildROI(cfg, g)
	if err != nil {
		log.Fatalw("invalid ROI configuration", "error", err)
	}

	axis, err := projection.ParseAxis(cfg.Projection.Axis)
	if err != nil {
		log.Fatalw("invalid projection axis", "error", err)
	}

	table := summary.NewTable()
	engine := analysis.NewEngine(table, log)
	engine.Workers = *workers

	fmt.Println("Starting 3TP analysis...")
	start := time.Now()
	out, err := engine.Run(context.Background(), analysis.Input{
		Sequence:       seq,
		ROI:            roi,
		Bounds:         cfg.MarkupBox.Resolve(g),
		Config:         thresholds,
		ProjectionAxis: axis,
	})
	if err != nil {
		log.Fatalw("analysis failed", "error", err)
	}
	elapsed := time.Since(start)

	fmt.Printf("\nAnalysis completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("Background cutoff: %.2f\n", out.BackgroundCutoff)
	fmt.Printf("Candidate voxels (ROI above background): %d\n", out.Row.CandidateCount)
	fmt.Printf("Functional tumour volume: %.2f mm3 (%.4f cm3) over %d voxels\n",
		out.FTV.CubicMM, out.FTV.CubicCM, out.FTV.VoxelCount)
	for _, cc := range out.Row.ClassCounts {
		fmt.Printf("  %-14s %d\n", cc.Name, cc.Count)
	}

	if err := writeOutputs(*outputDir, cfg, thresholds, out, table, log); err != nil {
		log.Fatalw("failed to write outputs", "error", err)
	}
	fmt.Printf("\nResults written to: %s\n", *outputDir)
}

// newLogger builds the process logger: human-readable in debug mode, JSON
// production logging otherwise.
func newLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// buildROI materializes the configured ROI mask on the series grid.
func buildROI(cfg *config.Config, g volume.Geometry) (*volume.Mask, error) {
	switch cfg.ROI.Mode {
	case "full", "":
		return volume.FullMask(g), nil
	case "box":
		box := cfg.ROI.Box.Resolve(g)
		if box.Empty() {
			return nil, fmt.Errorf("roi box %s selects no voxels", box)
		}
		mask := volume.NewMask(g)
		for z := box.Z0; z < box.Z1; z++ {
			for y := box.Y0; y < box.Y1; y++ {
				for x := box.X0; x < box.X1; x++ {
					mask.Data[g.Index(x, y, z)] = true
				}
			}
		}
		return mask, nil
	default:
		return nil, fmt.Errorf("unknown roi mode %q (must be full or box)", cfg.ROI.Mode)
	}
}

// writeOutputs saves the overlay PNG, the summary CSV and, when configured,
// the raw PE/SER volumes.
func writeOutputs(dir string, cfg *config.Config, thresholds analysis.ThresholdConfig, out *analysis.Output, table *summary.Table, log *zap.SugaredLogger) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	overlayPath := filepath.Join(dir, "projection.png")
	f, err := os.Create(overlayPath)
	if err != nil {
		return fmt.Errorf("creating overlay file: %w", err)
	}
	if err := out.Projection.WritePNG(f, analysis.PaletteFor(thresholds.SERMode)); err != nil {
		f.Close()
		return fmt.Errorf("encoding overlay: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Infow("overlay saved", "path", overlayPath)

	summaryPath := filepath.Join(dir, "summary.csv")
	sf, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("creating summary file: %w", err)
	}
	if err := table.WriteCSV(sf); err != nil {
		sf.Close()
		return fmt.Errorf("writing summary table: %w", err)
	}
	if err := sf.Close(); err != nil {
		return err
	}
	log.Infow("summary saved", "path", summaryPath, "rows", table.Len())

	if cfg.Output.SaveRawMaps {
		for name, vol := range map[string]*volume.Volume{
			"pe.f64":             out.PE,
			"ser.f64":            out.SER,
			"classification.f64": out.Classification.Volume(),
		} {
			path := filepath.Join(dir, name)
			if err := writeRawVolume(path, vol); err != nil {
				return fmt.Errorf("writing %s: %w", name, err)
			}
			log.Debugw("raw map saved", "path", path)
		}
	}

	return nil
}

// writeRawVolume dumps a volume as little-endian float64 voxels in x-fastest
// order, a raw format trivially ingested by numpy or ITK.
func writeRawVolume(path string, v *volume.Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, v.Data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
