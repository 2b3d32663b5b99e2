// Package dicomio loads a dynamic contrast-enhanced DICOM series from disk
// into the volume model: slices are grouped into time frames, stacked into
// volumes, and tagged with acquisition times. It also extracts the contrast
// bolus injection time when the metadata carries one.
//
// This is host-side plumbing: the analysis engine itself never touches files.
package dicomio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dcequant/pkg/volume"
)

// Timings carries the acquisition time axis of a loaded series.
type Timings struct {
	// Timepoints is the per-frame acquisition time in milliseconds. When the
	// series carries no usable times this is the synthetic one-minute axis.
	Timepoints []float64

	// InjectionTime is the contrast bolus start relative to the first
	// acquisition, in milliseconds; zero when the metadata has none.
	InjectionTime float64
}

// sliceRecord is one parsed file before grouping.
type sliceRecord struct {
	path            string
	instanceNumber  int
	temporalID      int
	hasTemporalID   bool
	acquisitionTime string
	bolusTime       string
	rows, cols      int
	pixels          []float64
	spacing         volume.Spacing
	origin          [3]float64
}

// LoadSeries reads every DICOM file under dir, groups slices into time frames
// and returns the assembled sequence with its timings. Frames are ordered by
// temporal position (or acquisition time), slices within a frame by instance
// number.
func LoadSeries(dir string) (*volume.Sequence, *Timings, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("dicomio: reading series directory: %w", err)
	}

	var records []sliceRecord
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".dcm" && ext != "" {
			continue
		}
		rec, err := parseSlice(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, fmt.Errorf("dicomio: parsing %s: %w", name, err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("dicomio: no DICOM files found in %s", dir)
	}

	return assemble(records)
}

// parseSlice reads one file into a sliceRecord.
func parseSlice(path string) (sliceRecord, error) {
	rec := sliceRecord{path: path, spacing: volume.Spacing{X: 1, Y: 1, Z: 1}}

	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return rec, err
	}

	if n, ok := firstInt(&ds, tag.InstanceNumber); ok {
		rec.instanceNumber = n
	}
	if n, ok := firstInt(&ds, tag.TemporalPositionIdentifier); ok {
		rec.temporalID = n
		rec.hasTemporalID = true
	}
	if s, ok := firstString(&ds, tag.AcquisitionTime); ok {
		rec.acquisitionTime = s
	}
	if s, ok := firstString(&ds, tag.ContrastBolusStartTime); ok {
		rec.bolusTime = s
	}

	if ps, ok := floatList(&ds, tag.PixelSpacing); ok && len(ps) >= 2 {
		// PixelSpacing is (row spacing, column spacing).
		rec.spacing.Y = ps[0]
		rec.spacing.X = ps[1]
	}
	if sp, ok := floatList(&ds, tag.SpacingBetweenSlices); ok && len(sp) >= 1 {
		rec.spacing.Z = sp[0]
	} else if th, ok := floatList(&ds, tag.SliceThickness); ok && len(th) >= 1 {
		rec.spacing.Z = th[0]
	}
	if ip, ok := floatList(&ds, tag.ImagePositionPatient); ok && len(ip) >= 3 {
		copy(rec.origin[:], ip[:3])
	}

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return rec, fmt.Errorf("no pixel data: %w", err)
	}
	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) == 0 {
		return rec, fmt.Errorf("pixel data has no frames")
	}
	img, err := info.Frames[0].GetImage()
	if err != nil {
		return rec, fmt.Errorf("decoding pixel frame: %w", err)
	}
	bounds := img.Bounds()
	rec.cols = bounds.Dx()
	rec.rows = bounds.Dy()
	rec.pixels = make([]float64, rec.cols*rec.rows)
	for y := 0; y < rec.rows; y++ {
		for x := 0; x < rec.cols; x++ {
			gray, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rec.pixels[y*rec.cols+x] = float64(gray)
		}
	}

	return rec, nil
}

// assemble groups slices into frames and builds the sequence.
func assemble(records []sliceRecord) (*volume.Sequence, *Timings, error) {
	groups := make(map[string][]sliceRecord)
	for _, rec := range records {
		key := rec.acquisitionTime
		if rec.hasTemporalID {
			key = fmt.Sprintf("tp%06d", rec.temporalID)
		}
		groups[key] = append(groups[key], rec)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var frames []*volume.Volume
	var times []float64
	timesUsable := true
	for _, key := range keys {
		group := groups[key]
		// Stable so files without instance numbers keep directory order.
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].instanceNumber < group[j].instanceNumber
		})

		first := group[0]
		g := volume.NewGeometry(first.cols, first.rows, len(group), first.spacing)
		g.Origin = first.origin
		frame := volume.New(g)
		for z, rec := range group {
			if rec.cols != first.cols || rec.rows != first.rows {
				return nil, nil, fmt.Errorf("dicomio: slice %s is %dx%d, frame is %dx%d",
					rec.path, rec.cols, rec.rows, first.cols, first.rows)
			}
			copy(frame.Data[z*g.NX*g.NY:(z+1)*g.NX*g.NY], rec.pixels)
		}
		frames = append(frames, frame)

		ms, err := ParseDICOMTime(first.acquisitionTime)
		if err != nil || first.acquisitionTime == "" {
			timesUsable = false
		}
		times = append(times, ms)
	}

	if !timesUsable {
		times = volume.SyntheticTimes(len(frames))
	} else {
		// Re-base to the first acquisition.
		t0 := times[0]
		for i := range times {
			times[i] -= t0
		}
	}

	seq, err := volume.NewSequence(frames, times)
	if err != nil {
		return nil, nil, err
	}

	timings := &Timings{Timepoints: seq.Times()}
	if timesUsable {
		timings.InjectionTime = bolusOffset(records)
	}
	return seq, timings, nil
}

// bolusOffset returns the earliest contrast bolus start time relative to the
// earliest acquisition time, in milliseconds; zero when either is missing.
func bolusOffset(records []sliceRecord) float64 {
	var acquisitions, boluses []string
	for _, rec := range records {
		if rec.acquisitionTime != "" {
			acquisitions = append(acquisitions, rec.acquisitionTime)
		}
		if rec.bolusTime != "" {
			boluses = append(boluses, rec.bolusTime)
		}
	}
	if len(acquisitions) == 0 || len(boluses) == 0 {
		return 0
	}
	sort.Strings(acquisitions)
	sort.Strings(boluses)
	start, err := ParseDICOMTime(acquisitions[0])
	if err != nil {
		return 0
	}
	bolus, err := ParseDICOMTime(boluses[0])
	if err != nil {
		return 0
	}
	return bolus - start
}

// ParseDICOMTime converts a DICOM TM value (HHMMSS.FRAC, HHMM or HH) to
// milliseconds since midnight. Strings shorter than six characters yield zero,
// the lenient behaviour DICOM browsers conventionally apply to blank or
// truncated times.
func ParseDICOMTime(tm string) (float64, error) {
	if len(tm) < 6 {
		return 0, nil
	}

	hhmmss := tm
	frac := 0.0
	if dot := strings.IndexByte(tm, '.'); dot >= 0 {
		hhmmss = tm[:dot]
		if f, err := strconv.ParseFloat("0"+tm[dot:], 64); err == nil {
			frac = f
		}
	}

	var sec float64
	parse := func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}
	switch len(hhmmss) {
	case 6: // HHMMSS
		hh, err1 := parse(hhmmss[0:2])
		mm, err2 := parse(hhmmss[2:4])
		ss, err3 := parse(hhmmss[4:6])
		if err1 != nil || err2 != nil || err3 != nil {
			return 0, fmt.Errorf("dicomio: invalid DICOM time %q", tm)
		}
		sec = hh*3600 + mm*60 + ss
	case 4: // HHMM
		hh, err1 := parse(hhmmss[0:2])
		mm, err2 := parse(hhmmss[2:4])
		if err1 != nil || err2 != nil {
			return 0, fmt.Errorf("dicomio: invalid DICOM time %q", tm)
		}
		sec = hh*3600 + mm*60
	case 2: // HH
		hh, err := parse(hhmmss[0:2])
		if err != nil {
			return 0, fmt.Errorf("dicomio: invalid DICOM time %q", tm)
		}
		sec = hh * 3600
	default:
		return 0, fmt.Errorf("dicomio: invalid DICOM time %q", tm)
	}

	return (sec + frac) * 1000.0, nil
}

// firstInt extracts the first integer of an element's value, tolerating the
// int, []int and numeric-string representations the parser produces for
// IS/US values.
func firstInt(ds *dicom.Dataset, t tag.Tag) (int, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	switch v := el.Value.GetValue().(type) {
	case int:
		return v, true
	case []int:
		if len(v) > 0 {
			return v[0], true
		}
	case []string:
		if len(v) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(v[0])); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// firstString extracts the first string of an element's value.
func firstString(ds *dicom.Dataset, t tag.Tag) (string, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return "", false
	}
	if vs, ok := el.Value.GetValue().([]string); ok && len(vs) > 0 {
		return strings.TrimSpace(vs[0]), true
	}
	return "", false
}

// floatList extracts a decimal-string element as floats.
func floatList(ds *dicom.Dataset, t tag.Tag) ([]float64, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, false
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, false
			}
			out = append(out, f)
		}
		return out, len(out) > 0
	case []float64:
		return v, len(v) > 0
	}
	return nil, false
}
