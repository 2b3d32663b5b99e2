package volume

import "fmt"

// BoundingBox is an axis-aligned sub-volume selection in voxel coordinates,
// half-open on every axis: a voxel (x,y,z) is inside when
// X0 <= x < X1, Y0 <= y < Y1, Z0 <= z < Z1.
//
// In the analysis pipeline the box scopes the background-percentile estimate
// only; it is not the analysis ROI.
type BoundingBox struct {
	X0, X1 int
	Y0, Y1 int
	Z0, Z1 int
}

// FullBox returns the bounding box covering the whole grid.
func FullBox(g Geometry) BoundingBox {
	return BoundingBox{X1: g.NX, Y1: g.NY, Z1: g.NZ}
}

// Clamp restricts the box to the grid, mirroring how the reference tool snaps
// a markup box that extends past the volume. Returns the clamped box.
func (b BoundingBox) Clamp(g Geometry) BoundingBox {
	out := b
	if out.X0 < 0 {
		out.X0 = 0
	}
	if out.Y0 < 0 {
		out.Y0 = 0
	}
	if out.Z0 < 0 {
		out.Z0 = 0
	}
	if out.X1 > g.NX {
		out.X1 = g.NX
	}
	if out.Y1 > g.NY {
		out.Y1 = g.NY
	}
	if out.Z1 > g.NZ {
		out.Z1 = g.NZ
	}
	return out
}

// Empty reports whether the box selects no voxels.
func (b BoundingBox) Empty() bool {
	return b.X1 <= b.X0 || b.Y1 <= b.Y0 || b.Z1 <= b.Z0
}

// Count returns the number of voxels inside the box.
func (b BoundingBox) Count() int {
	if b.Empty() {
		return 0
	}
	return (b.X1 - b.X0) * (b.Y1 - b.Y0) * (b.Z1 - b.Z0)
}

// Contains reports whether voxel (x,y,z) lies inside the box.
func (b BoundingBox) Contains(x, y, z int) bool {
	return x >= b.X0 && x < b.X1 && y >= b.Y0 && y < b.Y1 && z >= b.Z0 && z < b.Z1
}

// Extract copies the values inside the box out of v into a flat slice, in the
// same row-major traversal order as the volume itself.
func (b BoundingBox) Extract(v *Volume) []float64 {
	out := make([]float64, 0, b.Count())
	for z := b.Z0; z < b.Z1; z++ {
		for y := b.Y0; y < b.Y1; y++ {
			base := v.Geometry.Index(b.X0, y, z)
			out = append(out, v.Data[base:base+(b.X1-b.X0)]...)
		}
	}
	return out
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)x[%d,%d)", b.X0, b.X1, b.Y0, b.Y1, b.Z0, b.Z1)
}
