// Package projection builds maximum-intensity projections with a
// classification overlay: a 2D intensity image formed by the maximum along
// each ray through the volume, paired with the classification label of the
// voxel attaining that maximum. It also renders the pair as a pseudo-colored
// image for review.
package projection

import (
	"fmt"
	"strings"

	"dcequant/pkg/volume"
)

// Axis selects the ray direction of a projection. The zero value is the axial
// projection along z.
type Axis int

const (
	AxisZ Axis = iota
	AxisX
	AxisY
)

// ParseAxis converts "x", "y" or "z" (either case) to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	}
	return AxisZ, fmt.Errorf("projection: invalid axis %q (must be x, y, or z)", s)
}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return "?"
}

// Overlay is the result of a projection: co-registered 2D intensity and label
// images, row-major with index y*Width + x.
type Overlay struct {
	Axis   Axis
	Width  int
	Height int

	// Intensity is the per-ray maximum of the reference volume.
	Intensity []float64

	// Labels holds, per ray, the classification label of the first voxel in
	// ray-traversal order attaining the maximum.
	Labels []uint8

	// PlaneSpacing is the in-plane voxel spacing of the projection, used when
	// repackaging the overlay as a Volume.
	PlaneSpacing [2]float64
}

// Compose projects the reference volume and the label map along the given
// axis. Both inputs must share one grid.
func Compose(ref *volume.Volume, labels *volume.LabelMap, axis Axis) (*Overlay, error) {
	g := ref.Geometry
	if !g.SameGrid(labels.Geometry) {
		return nil, fmt.Errorf("projection: reference grid %dx%dx%d does not match label grid %dx%dx%d",
			g.NX, g.NY, g.NZ, labels.Geometry.NX, labels.Geometry.NY, labels.Geometry.NZ)
	}

	var width, height, depth int
	var stride func(u, v, w int) int
	var spacing [2]float64
	switch axis {
	case AxisX:
		// Rays along x; image plane is (y, z).
		width, height, depth = g.NY, g.NZ, g.NX
		stride = func(u, v, w int) int { return g.Index(w, u, v) }
		spacing = [2]float64{g.Spacing.Y, g.Spacing.Z}
	case AxisY:
		// Rays along y; image plane is (x, z).
		width, height, depth = g.NX, g.NZ, g.NY
		stride = func(u, v, w int) int { return g.Index(u, w, v) }
		spacing = [2]float64{g.Spacing.X, g.Spacing.Z}
	case AxisZ:
		// Rays along z; image plane is (x, y).
		width, height, depth = g.NX, g.NY, g.NZ
		stride = func(u, v, w int) int { return g.Index(u, v, w) }
		spacing = [2]float64{g.Spacing.X, g.Spacing.Y}
	default:
		return nil, fmt.Errorf("projection: invalid axis %d", axis)
	}

	out := &Overlay{
		Axis:         axis,
		Width:        width,
		Height:       height,
		Intensity:    make([]float64, width*height),
		Labels:       make([]uint8, width*height),
		PlaneSpacing: spacing,
	}

	for v := 0; v < height; v++ {
		for u := 0; u < width; u++ {
			// First voxel seeds the maximum; a strict comparison below keeps
			// the first voxel in ray order on ties.
			best := ref.Data[stride(u, v, 0)]
			bestLabel := labels.Data[stride(u, v, 0)]
			for w := 1; w < depth; w++ {
				idx := stride(u, v, w)
				if ref.Data[idx] > best {
					best = ref.Data[idx]
					bestLabel = labels.Data[idx]
				}
			}
			out.Intensity[v*width+u] = best
			out.Labels[v*width+u] = bestLabel
		}
	}

	return out, nil
}

// IntensityVolume repackages the projection intensity as a single-slice
// Volume, so the overlay can travel in an output sequence alongside the 3D
// maps. The collapsed axis gets unit spacing.
func (o *Overlay) IntensityVolume() *volume.Volume {
	g := volume.NewGeometry(o.Width, o.Height, 1, volume.Spacing{
		X: o.PlaneSpacing[0],
		Y: o.PlaneSpacing[1],
		Z: 1,
	})
	v := volume.New(g)
	copy(v.Data, o.Intensity)
	return v
}

// LabelVolume repackages the projection labels as a single-slice LabelMap.
func (o *Overlay) LabelVolume() *volume.LabelMap {
	g := volume.NewGeometry(o.Width, o.Height, 1, volume.Spacing{
		X: o.PlaneSpacing[0],
		Y: o.PlaneSpacing[1],
		Z: 1,
	})
	l := volume.NewLabelMap(g)
	copy(l.Data, o.Labels)
	return l
}
