package projection

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LegendEntry names one label value and its overlay color. Entries with a
// fully transparent color are rendered as plain MIP intensity.
type LegendEntry struct {
	Value uint8
	Name  string
	Color color.RGBA
}

// Palette is an ordered legend; order controls legend layout only.
type Palette []LegendEntry

func (p Palette) colorFor(value uint8) (color.RGBA, bool) {
	for _, e := range p {
		if e.Value == value {
			return e.Color, e.Color.A > 0
		}
	}
	return color.RGBA{}, false
}

// Render converts the overlay into a pseudo-colored RGBA image: the MIP
// intensity as grayscale, with classified voxels painted in their palette
// color, opaque over the anatomy like the reference tool's label layer.
func (o *Overlay) Render(palette Palette) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, o.Width, o.Height))

	// Window the intensity to its own min/max so the anatomy is visible
	// regardless of the scanner's dynamic range.
	lo, hi := o.Intensity[0], o.Intensity[0]
	for _, v := range o.Intensity {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	scale := 0.0
	if hi > lo {
		scale = 255.0 / (hi - lo)
	}

	for y := 0; y < o.Height; y++ {
		for x := 0; x < o.Width; x++ {
			idx := y*o.Width + x
			if c, ok := palette.colorFor(o.Labels[idx]); ok {
				img.SetRGBA(x, y, c)
				continue
			}
			gray := uint8((o.Intensity[idx] - lo) * scale)
			img.SetRGBA(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}

	return img
}

// RenderWithLegend renders the overlay and draws a legend of color swatches
// and class names in the top-left corner.
func (o *Overlay) RenderWithLegend(palette Palette) *image.RGBA {
	img := o.Render(palette)

	face := basicfont.Face7x13
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil() + 2
	const swatch = 10
	const margin = 4

	row := 0
	for _, entry := range palette {
		if entry.Color.A == 0 {
			continue
		}
		y0 := margin + row*lineHeight
		for dy := 0; dy < swatch; dy++ {
			for dx := 0; dx < swatch; dx++ {
				px, py := margin+dx, y0+dy
				if px < o.Width && py < o.Height {
					img.SetRGBA(px, py, entry.Color)
				}
			}
		}
		drawer := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.White),
			Face: face,
			Dot:  fixed.P(margin+swatch+4, y0+metrics.Ascent.Ceil()-1),
		}
		drawer.DrawString(entry.Name)
		row++
	}

	return img
}

// WritePNG renders the overlay with its legend and encodes it as PNG.
func (o *Overlay) WritePNG(w io.Writer, palette Palette) error {
	return png.Encode(w, o.RenderWithLegend(palette))
}
