package image

import (
	"image"
	"image/color"
	"image/draw"
)

// fill is the padding color for canvas regions outside an input's
// original bounds.
var fill = &image.Uniform{C: color.NRGBA{R: 255, G: 255, B: 255, A: 255}}

// Normalize copies baseline and target onto two fresh canvases sized to
// their common bounding box. Original pixels land at the origin corner;
// rows and columns beyond an input's own size stay at the fill color.
// The returned images always have identical dimensions, which Differ
// implementations require. Inputs are never mutated; outputs are always
// fresh copies even when the dimensions already match.
func Normalize(baseline image.Image, target image.Image) (*image.NRGBA, *image.NRGBA) {
	baselineBounds := baseline.Bounds()
	targetBounds := target.Bounds()

	width := baselineBounds.Dx()
	if targetBounds.Dx() > width {
		width = targetBounds.Dx()
	}

	height := baselineBounds.Dy()
	if targetBounds.Dy() > height {
		height = targetBounds.Dy()
	}

	return expand(baseline, width, height), expand(target, width, height)
}

func expand(img image.Image, width int, height int) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), fill, image.Point{}, draw.Src)

	bounds := img.Bounds()
	draw.Draw(canvas, image.Rect(0, 0, bounds.Dx(), bounds.Dy()), img, bounds.Min, draw.Src)

	return canvas
}
