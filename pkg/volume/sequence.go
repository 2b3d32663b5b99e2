package volume

import (
	"fmt"
)

// Sequence is an ordered list of co-registered volumes sharing one grid, each
// tagged with an ordinal position and a physical acquisition time. A sequence
// is immutable once constructed: frames are referenced, not copied, and the
// engine never writes into them.
type Sequence struct {
	frames []*Volume
	times  []float64 // acquisition time per frame, in milliseconds
}

// NewSequence builds a sequence from ordered frames. All frames must share the
// grid of the first frame. times may be nil, in which case a synthetic axis of
// one minute per frame is used, matching the convention of the reference tool
// when no acquisition metadata is available.
func NewSequence(frames []*Volume, times []float64) (*Sequence, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("volume: sequence must contain at least one frame")
	}
	g := frames[0].Geometry
	if err := g.Validate(); err != nil {
		return nil, err
	}
	for i, f := range frames {
		if f == nil {
			return nil, fmt.Errorf("volume: frame %d is nil", i)
		}
		if !g.SameGrid(f.Geometry) {
			return nil, fmt.Errorf("volume: frame %d grid %dx%dx%d does not match frame 0 grid %dx%dx%d",
				i, f.Geometry.NX, f.Geometry.NY, f.Geometry.NZ, g.NX, g.NY, g.NZ)
		}
		if len(f.Data) != g.Len() {
			return nil, fmt.Errorf("volume: frame %d data length %d does not match grid", i, len(f.Data))
		}
	}
	if times == nil {
		times = SyntheticTimes(len(frames))
	}
	if len(times) != len(frames) {
		return nil, fmt.Errorf("volume: %d time labels for %d frames", len(times), len(frames))
	}
	ts := make([]float64, len(times))
	copy(ts, times)
	fs := make([]*Volume, len(frames))
	copy(fs, frames)
	return &Sequence{frames: fs, times: ts}, nil
}

// SyntheticTimes returns an evenly spaced time axis of n points spanning
// [0, n] minutes, expressed in milliseconds. This is the fallback used when a
// series carries no usable acquisition times.
func SyntheticTimes(n int) []float64 {
	times := make([]float64, n)
	if n == 1 {
		return times
	}
	total := float64(n) * 60.0 * 1.0e3
	for i := range times {
		times[i] = total * float64(i) / float64(n-1)
	}
	return times
}

// Len returns the number of frames.
func (s *Sequence) Len() int {
	return len(s.frames)
}

// Frame returns the i-th frame. The caller must not mutate it.
func (s *Sequence) Frame(i int) *Volume {
	return s.frames[i]
}

// Time returns the acquisition time of the i-th frame in milliseconds.
func (s *Sequence) Time(i int) float64 {
	return s.times[i]
}

// Times returns a copy of the acquisition time axis in milliseconds.
func (s *Sequence) Times() []float64 {
	out := make([]float64, len(s.times))
	copy(out, s.times)
	return out
}

// Geometry returns the shared grid of all frames.
func (s *Sequence) Geometry() Geometry {
	return s.frames[0].Geometry
}
