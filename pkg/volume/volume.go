// Package volume provides the shared 3D volume model used throughout dcequant:
// scalar volumes with voxel spacing and orientation, boolean masks, label maps,
// time-ordered sequences, and axis-aligned bounding boxes in voxel coordinates.
//
// All volumes store their data as a flat float64 array in row-major order with
// index z*NX*NY + y*NX + x. Any two volumes that are compared voxel-wise must
// share an identical grid (shape and spacing); a mismatch is a configuration
// error for the caller, never a silent resample.
package volume

import (
	"fmt"
	"math"
)

// spacingTolerance is the maximum relative difference under which two voxel
// spacings are considered identical. Scanner metadata routinely carries
// sub-nanometre rounding noise.
const spacingTolerance = 1e-9

// Spacing holds the physical size of a voxel along each axis, in millimetres.
type Spacing struct {
	X float64
	Y float64
	Z float64
}

// VoxelVolume returns the physical volume of a single voxel in mm^3.
func (s Spacing) VoxelVolume() float64 {
	return s.X * s.Y * s.Z
}

// valid reports whether all three spacing components are positive finite reals.
func (s Spacing) valid() bool {
	for _, v := range []float64{s.X, s.Y, s.Z} {
		if !(v > 0) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Geometry describes the sampling grid of a volume: voxel counts along each
// axis, voxel spacing, the physical position of the first voxel, and the
// direction cosines of the volume axes (row-major 3x3).
type Geometry struct {
	NX int
	NY int
	NZ int

	Spacing Spacing

	// Origin is the physical position of voxel (0,0,0) in mm.
	Origin [3]float64

	// Orientation holds the direction cosine matrix, row-major. The zero
	// value is replaced by the identity by NewGeometry.
	Orientation [9]float64
}

// NewGeometry builds a Geometry with an identity orientation.
func NewGeometry(nx, ny, nz int, spacing Spacing) Geometry {
	return Geometry{
		NX:          nx,
		NY:          ny,
		NZ:          nz,
		Spacing:     spacing,
		Orientation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
}

// Len returns the total number of voxels in the grid.
func (g Geometry) Len() int {
	return g.NX * g.NY * g.NZ
}

// Validate checks that the grid has positive extents and valid spacing.
func (g Geometry) Validate() error {
	if g.NX <= 0 || g.NY <= 0 || g.NZ <= 0 {
		return fmt.Errorf("volume: non-positive grid extents %dx%dx%d", g.NX, g.NY, g.NZ)
	}
	if !g.Spacing.valid() {
		return fmt.Errorf("volume: invalid voxel spacing %+v", g.Spacing)
	}
	return nil
}

// SameGrid reports whether two geometries agree on shape and spacing. This is
// the equality that voxel-wise operations require; origin and orientation are
// deliberately not part of it, as co-registration is the host's concern.
func (g Geometry) SameGrid(other Geometry) bool {
	if g.NX != other.NX || g.NY != other.NY || g.NZ != other.NZ {
		return false
	}
	return closeEnough(g.Spacing.X, other.Spacing.X) &&
		closeEnough(g.Spacing.Y, other.Spacing.Y) &&
		closeEnough(g.Spacing.Z, other.Spacing.Z)
}

func closeEnough(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= spacingTolerance*scale
}

// Index converts voxel coordinates to the flat array index.
func (g Geometry) Index(x, y, z int) int {
	return z*g.NX*g.NY + y*g.NX + x
}

// Volume is a 3D scalar field on a sampling grid.
type Volume struct {
	Geometry Geometry

	// Data is the voxel data in row-major order (see package comment).
	Data []float64
}

// New allocates a zero-filled volume on the given grid.
func New(g Geometry) *Volume {
	return &Volume{Geometry: g, Data: make([]float64, g.Len())}
}

// FromData wraps an existing flat data slice. The slice length must match the
// grid.
func FromData(g Geometry, data []float64) (*Volume, error) {
	if len(data) != g.Len() {
		return nil, fmt.Errorf("volume: data length %d does not match grid %dx%dx%d",
			len(data), g.NX, g.NY, g.NZ)
	}
	return &Volume{Geometry: g, Data: data}, nil
}

// At returns the value at voxel (x,y,z). No bounds checking beyond the slice's.
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Geometry.Index(x, y, z)]
}

// Set assigns the value at voxel (x,y,z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Geometry.Index(x, y, z)] = value
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)
	return &Volume{Geometry: v.Geometry, Data: data}
}

// Mask is a boolean volume sharing the scalar volume grid model.
type Mask struct {
	Geometry Geometry
	Data     []bool
}

// NewMask allocates an all-false mask on the given grid.
func NewMask(g Geometry) *Mask {
	return &Mask{Geometry: g, Data: make([]bool, g.Len())}
}

// FullMask allocates an all-true mask on the given grid.
func FullMask(g Geometry) *Mask {
	m := NewMask(g)
	for i := range m.Data {
		m.Data[i] = true
	}
	return m
}

// Count returns the number of set voxels.
func (m *Mask) Count() int {
	n := 0
	for _, set := range m.Data {
		if set {
			n++
		}
	}
	return n
}

// LabelMap is a categorical volume. The meaning of each label value is owned
// by the producer; zero conventionally means "excluded/background".
type LabelMap struct {
	Geometry Geometry
	Data     []uint8
}

// NewLabelMap allocates a zero-filled label map on the given grid.
func NewLabelMap(g Geometry) *LabelMap {
	return &LabelMap{Geometry: g, Data: make([]uint8, g.Len())}
}

// Volume converts the label map to a scalar volume, for hosts that only move
// float data around.
func (l *LabelMap) Volume() *Volume {
	v := New(l.Geometry)
	for i, lab := range l.Data {
		v.Data[i] = float64(lab)
	}
	return v
}
