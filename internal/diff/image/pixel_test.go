package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	black = color.NRGBA{A: 255}
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

	red    = color.NRGBA{R: 255, A: 255}
	yellow = color.NRGBA{R: 255, G: 255, A: 255}
)

func uniformNRGBA(width int, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func patternNRGBA(width int, height int, seed uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := img.PixOffset(x, y)
			img.Pix[pos] = uint8(x*7+y*13) + seed
			img.Pix[pos+1] = uint8(x*3+y*11) ^ seed
			img.Pix[pos+2] = uint8(x*x + y)
			img.Pix[pos+3] = 255
		}
	}
	return img
}

func TestNewPixelDiff_ThresholdValidation(t *testing.T) {
	for _, threshold := range []float64{0, 0.1, 0.5, 1} {
		_, err := NewPixelDiff(threshold)
		assert.NoError(t, err, "threshold %v", threshold)
	}

	for _, threshold := range []float64{-0.1, 1.1, math.NaN()} {
		_, err := NewPixelDiff(threshold)
		assert.ErrorIs(t, err, ThresholdRangeError, "threshold %v", threshold)
	}
}

func TestPixelDiff_Calculate_Identity(t *testing.T) {
	pd, err := NewPixelDiff(DefaultThreshold)
	require.NoError(t, err)

	baseline := uniformNRGBA(64, 48, black)
	target := uniformNRGBA(64, 48, black)

	result, err := pd.Calculate(baseline, target)
	require.NoError(t, err)

	assert.Equal(t, 0, result.DiffPixelCount)
	assert.Equal(t, 0.0, result.DiffAmount)
	assert.Equal(t, 64, result.Image.Rect.Dx())
	assert.Equal(t, 48, result.Image.Rect.Dy())

	// Unchanged black renders as the dimmed gray 255 + (0-255)*0.1.
	assert.Equal(t, color.NRGBA{R: 229, G: 229, B: 229, A: 255}, result.Image.NRGBAAt(10, 10))
}

func TestPixelDiff_Calculate_BlackVsWhite(t *testing.T) {
	pd, err := NewPixelDiff(0.1)
	require.NoError(t, err)

	baseline := uniformNRGBA(2, 2, black)
	target := uniformNRGBA(2, 2, white)

	result, err := pd.Calculate(baseline, target)
	require.NoError(t, err)

	assert.Equal(t, 4, result.DiffPixelCount)
	assert.Equal(t, 1.0, result.DiffAmount)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			assert.Equal(t, red, result.Image.NRGBAAt(x, y), "pixel (%d, %d)", x, y)
		}
	}
}

func TestPixelDiff_Calculate_PaddedCanvas(t *testing.T) {
	pd, err := NewPixelDiff(0.1)
	require.NoError(t, err)

	baseline, target := Normalize(uniformNRGBA(2, 2, black), uniformNRGBA(3, 3, black))

	result, err := pd.Calculate(baseline, target)
	require.NoError(t, err)

	// The extra row and column exist only in the 3x3 input, so its black
	// pixels there face padding white on the 2x2 side.
	assert.Equal(t, 5, result.DiffPixelCount)
	for _, p := range []image.Point{{2, 0}, {2, 1}, {0, 2}, {1, 2}, {2, 2}} {
		assert.Equal(t, red, result.Image.NRGBAAt(p.X, p.Y), "pixel %v", p)
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			assert.Equal(t, color.NRGBA{R: 229, G: 229, B: 229, A: 255}, result.Image.NRGBAAt(x, y), "pixel (%d, %d)", x, y)
		}
	}
}

func TestPixelDiff_Calculate_AntialiasedExcluded(t *testing.T) {
	pd, err := NewPixelDiff(0.1)
	require.NoError(t, err)

	// The center pixel sits between a darker and a brighter neighbor
	// whose flat surroundings match in both images, which is the
	// signature of edge smoothing. The corner is a genuine change.
	baseline := uniformNRGBA(3, 3, white)
	baseline.SetNRGBA(0, 0, black)
	baseline.SetNRGBA(1, 1, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	target := uniformNRGBA(3, 3, white)

	result, err := pd.Calculate(baseline, target)
	require.NoError(t, err)

	assert.Equal(t, 1, result.DiffPixelCount)
	assert.Equal(t, red, result.Image.NRGBAAt(0, 0))
	assert.Equal(t, yellow, result.Image.NRGBAAt(1, 1))
}

func TestPixelDiff_Calculate_AlphaBlendsTowardWhite(t *testing.T) {
	pd, err := NewPixelDiff(0.1)
	require.NoError(t, err)

	// Half-transparent black reads as the gray it composites to over a
	// white background.
	translucent := uniformNRGBA(1, 1, color.NRGBA{A: 128})
	gray := uniformNRGBA(1, 1, color.NRGBA{R: 127, G: 127, B: 127, A: 255})

	result, err := pd.Calculate(translucent, gray)
	require.NoError(t, err)
	assert.Equal(t, 0, result.DiffPixelCount)

	result, err = pd.Calculate(translucent, uniformNRGBA(1, 1, white))
	require.NoError(t, err)
	assert.Equal(t, 1, result.DiffPixelCount)
}

func TestPixelDiff_Calculate_Monotonicity(t *testing.T) {
	baseline := uniformNRGBA(4, 4, black)
	target := uniformNRGBA(4, 4, white)

	previous := 4 * 4
	for _, threshold := range []float64{0, 0.1, 0.5, 0.96, 1} {
		pd, err := NewPixelDiff(threshold)
		require.NoError(t, err)

		result, err := pd.Calculate(baseline, target)
		require.NoError(t, err)

		assert.LessOrEqual(t, result.DiffPixelCount, previous, "threshold %v", threshold)
		previous = result.DiffPixelCount
	}
}

func TestPixelDiff_Calculate_ThresholdOneAdmitsBlackVsWhite(t *testing.T) {
	pd, err := NewPixelDiff(1)
	require.NoError(t, err)

	result, err := pd.Calculate(uniformNRGBA(2, 2, black), uniformNRGBA(2, 2, white))
	require.NoError(t, err)

	// The achromatic black/white delta is 0.5053*255^2, below the 35215
	// ceiling, so the loosest threshold accepts it.
	assert.Equal(t, 0, result.DiffPixelCount)
	assert.Equal(t, color.NRGBA{R: 229, G: 229, B: 229, A: 255}, result.Image.NRGBAAt(0, 0))
}

func TestPixelDiff_Calculate_Determinism(t *testing.T) {
	pd, err := NewPixelDiff(0.1)
	require.NoError(t, err)

	baseline := patternNRGBA(64, 64, 0)
	target := patternNRGBA(64, 64, 31)

	first, err := pd.Calculate(baseline, target)
	require.NoError(t, err)
	second, err := pd.Calculate(baseline, target)
	require.NoError(t, err)

	assert.Equal(t, first.DiffPixelCount, second.DiffPixelCount)
	assert.True(t, bytes.Equal(first.Image.Pix, second.Image.Pix))
}

func TestPixelDiff_Calculate_DimensionMismatch(t *testing.T) {
	pd, err := NewPixelDiff(0.1)
	require.NoError(t, err)

	result, err := pd.Calculate(uniformNRGBA(2, 2, black), uniformNRGBA(3, 3, black))

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, DimensionMismatchError))
}

func TestPixelDiff_Calculate_EmptyImages(t *testing.T) {
	pd, err := NewPixelDiff(0.1)
	require.NoError(t, err)

	result, err := pd.Calculate(uniformNRGBA(0, 0, white), uniformNRGBA(0, 0, white))
	require.NoError(t, err)

	assert.Equal(t, 0, result.DiffPixelCount)
	assert.Equal(t, 0.0, result.DiffAmount)
}

func BenchmarkPixelDiff_Calculate_Small(b *testing.B) {
	pd, err := NewPixelDiff(DefaultThreshold)
	if err != nil {
		b.Fatal(err)
	}
	img1 := uniformNRGBA(1920, 1080, white)
	img2 := uniformNRGBA(1920, 1080, white)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := pd.Calculate(img1, img2); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPixelDiff_Calculate_Large(b *testing.B) {
	pd, err := NewPixelDiff(DefaultThreshold)
	if err != nil {
		b.Fatal(err)
	}
	img1 := uniformNRGBA(3840, 2160, white)
	img2 := uniformNRGBA(3840, 2160, white)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := pd.Calculate(img1, img2); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPixelDiff_Calculate_Changed(b *testing.B) {
	pd, err := NewPixelDiff(DefaultThreshold)
	if err != nil {
		b.Fatal(err)
	}
	img1 := patternNRGBA(1920, 1080, 0)
	img2 := patternNRGBA(1920, 1080, 31)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := pd.Calculate(img1, img2); err != nil {
			b.Fatal(err)
		}
	}
}
