package analysis

import (
	"image/color"

	"dcequant/pkg/projection"
)

// PaletteFor returns the review palette for a SER mode. Colors follow the
// kinetic-map convention of the reference tool: blue for persistent uptake,
// green for plateau, red for washout; excluded voxels are transparent so the
// MIP anatomy shows through.
func PaletteFor(mode SERMode) projection.Palette {
	switch mode.Kind {
	case SERModeSingle:
		return projection.Palette{
			{Value: uint8(LabelExcluded), Name: LabelExcluded.String(), Color: color.RGBA{}},
			{Value: uint8(LabelEnhancing), Name: LabelEnhancing.String(), Color: color.RGBA{B: 255, A: 255}},
			{Value: uint8(LabelNonQualifying), Name: LabelNonQualifying.String(), Color: color.RGBA{R: 255, G: 255, B: 255, A: 255}},
		}
	default:
		return projection.Palette{
			{Value: uint8(LabelExcluded), Name: LabelExcluded.String(), Color: color.RGBA{}},
			{Value: uint8(LabelPersistent), Name: LabelPersistent.String(), Color: color.RGBA{B: 255, A: 255}},
			{Value: uint8(LabelPlateau), Name: LabelPlateau.String(), Color: color.RGBA{G: 255, A: 255}},
			{Value: uint8(LabelWashout), Name: LabelWashout.String(), Color: color.RGBA{R: 255, A: 255}},
		}
	}
}
