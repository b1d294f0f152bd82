package image

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Dimensions(t *testing.T) {
	cases := []struct {
		name       string
		a          *image.NRGBA
		b          *image.NRGBA
		wantWidth  int
		wantHeight int
	}{
		{"SameSize", uniformNRGBA(2, 2, black), uniformNRGBA(2, 2, white), 2, 2},
		{"SecondLarger", uniformNRGBA(2, 2, black), uniformNRGBA(3, 3, black), 3, 3},
		{"MixedAxes", uniformNRGBA(4, 1, black), uniformNRGBA(1, 5, white), 4, 5},
		{"FirstEmpty", uniformNRGBA(0, 0, black), uniformNRGBA(2, 2, white), 2, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, b := Normalize(tc.a, tc.b)

			assert.Equal(t, tc.wantWidth, a.Rect.Dx())
			assert.Equal(t, tc.wantHeight, a.Rect.Dy())
			assert.Equal(t, tc.wantWidth, b.Rect.Dx())
			assert.Equal(t, tc.wantHeight, b.Rect.Dy())
		})
	}
}

func TestNormalize_ShapeSymmetry(t *testing.T) {
	a := uniformNRGBA(7, 3, black)
	b := uniformNRGBA(2, 9, white)

	a1, b1 := Normalize(a, b)
	b2, a2 := Normalize(b, a)

	assert.Equal(t, a1.Rect, a2.Rect)
	assert.Equal(t, b1.Rect, b2.Rect)
}

func TestNormalize_PaddingFill(t *testing.T) {
	a := uniformNRGBA(2, 2, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	b := uniformNRGBA(3, 4, color.NRGBA{B: 200, A: 255})

	padded, _ := Normalize(a, b)

	for y := 0; y < 4; y++ {
		for x := 0; x < 3; x++ {
			if x < 2 && y < 2 {
				continue
			}
			assert.Equal(t, white, padded.NRGBAAt(x, y), "pixel (%d, %d)", x, y)
		}
	}
}

func TestNormalize_PreservesPixels(t *testing.T) {
	a := patternNRGBA(3, 2, 5)
	b := uniformNRGBA(5, 5, white)

	normalized, _ := Normalize(a, b)

	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			assert.Equal(t, a.NRGBAAt(x, y), normalized.NRGBAAt(x, y), "pixel (%d, %d)", x, y)
		}
	}
}

func TestNormalize_AlwaysCopies(t *testing.T) {
	a := uniformNRGBA(2, 2, black)
	b := uniformNRGBA(2, 2, black)

	na, nb := Normalize(a, b)
	require.NotEmpty(t, na.Pix)
	na.Pix[0] = 77
	nb.Pix[0] = 78

	assert.Equal(t, uint8(0), a.Pix[0])
	assert.Equal(t, uint8(0), b.Pix[0])
}

func TestNormalize_ConvertsToNRGBA(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.Pix = []uint8{0, 128}

	normalized, _ := Normalize(gray, gray)

	assert.Equal(t, color.NRGBA{A: 255}, normalized.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 128, G: 128, B: 128, A: 255}, normalized.NRGBAAt(1, 0))
}
