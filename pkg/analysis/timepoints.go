package analysis

import "dcequant/pkg/volume"

// timepoints holds the three resolved frames of a 3TP analysis.
type timepoints struct {
	pre   *volume.Volume
	early *volume.Volume
	late  *volume.Volume
}

// selectTimepoints resolves the pre/early/late frames from the sequence. The
// configuration must already have been validated against the sequence length;
// this only dereferences the ordinals.
func selectTimepoints(seq *volume.Sequence, cfg ThresholdConfig) timepoints {
	return timepoints{
		pre:   seq.Frame(cfg.PreIndex),
		early: seq.Frame(cfg.EarlyIndex),
		late:  seq.Frame(cfg.LateIndex),
	}
}

// SelectTimepoints resolves and returns the three referenced frames as
// (pre, early, late), validating the ordinals against the sequence. Exposed
// for hosts that want the resolved frames without running the full pipeline.
func SelectTimepoints(seq *volume.Sequence, cfg ThresholdConfig) (pre, early, late *volume.Volume, err error) {
	if err := cfg.Validate(seq.Len()); err != nil {
		return nil, nil, nil, err
	}
	tp := selectTimepoints(seq, cfg)
	return tp.pre, tp.early, tp.late, nil
}
