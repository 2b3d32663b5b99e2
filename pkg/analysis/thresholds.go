package analysis

import "dcequant/pkg/summary"

// ThresholdConfig is the immutable per-run configuration: the three time-point
// ordinals, the background-threshold parameters, the peak-enhancement cutoff
// and the SER classification mode.
type ThresholdConfig struct {
	// PreIndex, EarlyIndex and LateIndex are ordinals into the sequence.
	// They must be pairwise distinct and strictly increasing so PE and SER
	// carry their conventional sign.
	PreIndex   int
	EarlyIndex int
	LateIndex  int

	// BackgroundPercentile is the percentile (0..100, e.g. 95) of the
	// pre-contrast intensity distribution inside the bounding region.
	BackgroundPercentile float64

	// BackgroundFraction multiplies the percentile value to obtain the
	// baseline cutoff; voxels below the cutoff are excluded everywhere.
	BackgroundFraction float64

	// PEThreshold is the minimum peak enhancement, in percent.
	PEThreshold float64

	// SERMode selects the classification scheme.
	SERMode SERMode

	// SERClamp zeroes SER values above this bound (and below zero) before
	// classification, matching the reference tool's "everything above 3.0 is
	// not considered". A value <= 0 disables clamping.
	SERClamp float64
}

// Validate checks the configuration against a sequence of the given length.
// Ordinal range violations are IndexErrors, everything else a
// ConfigurationError.
func (c ThresholdConfig) Validate(sequenceLen int) error {
	for _, tp := range []struct {
		name  string
		index int
	}{
		{"pre-contrast", c.PreIndex},
		{"early post-contrast", c.EarlyIndex},
		{"late post-contrast", c.LateIndex},
	} {
		if tp.index < 0 || tp.index >= sequenceLen {
			return &IndexError{Name: tp.name, Index: tp.index, Length: sequenceLen}
		}
	}
	if c.PreIndex == c.EarlyIndex || c.EarlyIndex == c.LateIndex || c.PreIndex == c.LateIndex {
		return configErrorf("time-point indices must be pairwise distinct, got pre=%d early=%d late=%d",
			c.PreIndex, c.EarlyIndex, c.LateIndex)
	}
	if !(c.PreIndex < c.EarlyIndex && c.EarlyIndex < c.LateIndex) {
		return configErrorf("time-point indices must be increasing (pre < early < late), got pre=%d early=%d late=%d",
			c.PreIndex, c.EarlyIndex, c.LateIndex)
	}
	if c.BackgroundPercentile < 0 || c.BackgroundPercentile > 100 {
		return configErrorf("background percentile %g outside [0,100]", c.BackgroundPercentile)
	}
	if c.BackgroundFraction < 0 {
		return configErrorf("background fraction %g must be non-negative", c.BackgroundFraction)
	}
	return c.SERMode.validate()
}

// settings flattens the configuration into a summary snapshot.
func (c ThresholdConfig) settings() summary.Settings {
	return summary.Settings{
		PreIndex:             c.PreIndex,
		EarlyIndex:           c.EarlyIndex,
		LateIndex:            c.LateIndex,
		BackgroundPercentile: c.BackgroundPercentile,
		BackgroundFraction:   c.BackgroundFraction,
		PEThreshold:          c.PEThreshold,
		SERMode:              c.SERMode.String(),
		SERClamp:             c.SERClamp,
	}
}
