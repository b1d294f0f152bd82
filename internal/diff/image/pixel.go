package image

import (
	"image"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"
)

// Perceptual color distance in the YIQ NTSC space, after Kotsarenko and
// Ramos, "Measuring perceived color difference using YIQ color space in
// mobile applications". The largest possible delta between two opaque
// samples is 35215; thresholds scale against that ceiling.
const (
	maxYIQDelta = 35215.0

	yR = 0.29889531
	yG = 0.58662247
	yB = 0.11448223
	iR = 0.59597799
	iG = -0.27417610
	iB = -0.32180189
	qR = 0.21147017
	qG = -0.52261711
	qB = 0.31114694

	// grayAlpha dims unchanged pixels so marked ones stand out.
	grayAlpha = 0.1
)

type PixelDiff struct {
	threshold float64
}

func NewPixelDiff(threshold float64) (*PixelDiff, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}

	return &PixelDiff{
		threshold,
	}, nil
}

func validateThreshold(threshold float64) error {
	if !(threshold >= 0 && threshold <= 1) {
		return xerrors.Errorf("threshold %v must lie in [0, 1]: %w", threshold, ThresholdRangeError)
	}
	return nil
}

// Calculate classifies every pixel of two equal-sized images as
// unchanged, anti-aliasing noise, or a hard difference. Hard differences
// render red and are counted; anti-aliased pixels render yellow and are
// excluded from the count; unchanged pixels render as a dimmed grayscale
// of the baseline. The result is bit-identical across calls with the
// same inputs.
func (p *PixelDiff) Calculate(baseline *image.NRGBA, target *image.NRGBA) (*DiffResult, error) {
	if err := validateThreshold(p.threshold); err != nil {
		return nil, err
	}

	width := baseline.Rect.Dx()
	height := baseline.Rect.Dy()
	if width != target.Rect.Dx() || height != target.Rect.Dy() {
		return nil, xerrors.Errorf("baseline %dx%d vs target %dx%d: %w", width, height, target.Rect.Dx(), target.Rect.Dy(), DimensionMismatchError)
	}

	diff := image.NewNRGBA(image.Rect(0, 0, width, height))

	var diffPixelCount int64

	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	// https://tip.golang.org/doc/go1.25#container-aware-gomaxprocs
	numWorkers := runtime.GOMAXPROCS(0)
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = height
		}

		go func(startY int, endY int) {
			defer wg.Done()
			p.processRows(baseline, target, diff, startY, endY, &diffPixelCount)
		}(startY, endY)
	}

	wg.Wait()

	diffAmount := 0.0
	if width*height > 0 {
		diffAmount = float64(diffPixelCount) / float64(width*height)
	}

	return &DiffResult{
		Image:          diff,
		DiffPixelCount: int(diffPixelCount),
		DiffAmount:     diffAmount,
	}, nil
}

// processRows writes rows [startY, endY) of the output. Classification
// reads only the immutable inputs and every output pixel has exactly one
// writer, so the worker split cannot change the result.
func (p *PixelDiff) processRows(baseline *image.NRGBA, target *image.NRGBA, diff *image.NRGBA, startY int, endY int, diffPixelCount *int64) {
	width := baseline.Rect.Dx()
	maxDelta := maxYIQDelta * p.threshold * p.threshold

	var localCount int64

	for y := startY; y < endY; y++ {
		baselineRowStart := offsetAt(baseline, 0, y)
		targetRowStart := offsetAt(target, 0, y)
		diffRowStart := diff.PixOffset(0, y)

		for x := 0; x < width; x++ {
			baselineOffset := baselineRowStart + x*4
			targetOffset := targetRowStart + x*4
			diffOffset := diffRowStart + x*4

			delta := colorDelta(baseline, target, baselineOffset, targetOffset, false)
			if math.Abs(delta) > maxDelta {
				if antialiased(baseline, target, x, y) || antialiased(target, baseline, x, y) {
					writePixel(diff, diffOffset, 255, 255, 0)
				} else {
					writePixel(diff, diffOffset, 255, 0, 0)
					localCount++
				}
			} else {
				writeGrayPixel(diff, diffOffset, baseline, baselineOffset)
			}
		}
	}

	atomic.AddInt64(diffPixelCount, localCount)
}

// antialiased reports whether the pixel at (x, y) of img looks like
// edge smoothing rather than a genuine change: its 3x3 neighborhood has
// no more than two identical siblings, contains both a darker and a
// brighter neighbor, and the most extreme neighbor sits inside a flat
// region of both images.
func antialiased(img *image.NRGBA, other *image.NRGBA, x int, y int) bool {
	width := img.Rect.Dx()
	height := img.Rect.Dy()

	x0 := x - 1
	if x0 < 0 {
		x0 = 0
	}
	y0 := y - 1
	if y0 < 0 {
		y0 = 0
	}
	x2 := x + 1
	if x2 > width-1 {
		x2 = width - 1
	}
	y2 := y + 1
	if y2 > height-1 {
		y2 = height - 1
	}

	pos := offsetAt(img, x, y)

	// Pixels on the canvas edge get one equal sibling for free, matching
	// the reduced neighborhood size.
	zeroes := 0
	if x == x0 || x == x2 || y == y0 || y == y2 {
		zeroes = 1
	}

	minDelta := 0.0
	maxDelta := 0.0
	var minDeltaX, minDeltaY, maxDeltaX, maxDeltaY int

	for nx := x0; nx <= x2; nx++ {
		for ny := y0; ny <= y2; ny++ {
			if nx == x && ny == y {
				continue
			}

			delta := colorDelta(img, img, pos, offsetAt(img, nx, ny), true)
			if delta == 0 {
				zeroes++
				if zeroes > 2 {
					return false
				}
			} else if delta < minDelta {
				minDelta = delta
				minDeltaX, minDeltaY = nx, ny
			} else if delta > maxDelta {
				maxDelta = delta
				maxDeltaX, maxDeltaY = nx, ny
			}
		}
	}

	// No darker or no brighter neighbor means this is not an edge.
	if minDelta == 0 || maxDelta == 0 {
		return false
	}

	return (hasManySiblings(img, minDeltaX, minDeltaY) && hasManySiblings(other, minDeltaX, minDeltaY)) ||
		(hasManySiblings(img, maxDeltaX, maxDeltaY) && hasManySiblings(other, maxDeltaX, maxDeltaY))
}

// hasManySiblings reports whether more than two pixels adjacent to
// (x, y) are identical to it.
func hasManySiblings(img *image.NRGBA, x int, y int) bool {
	width := img.Rect.Dx()
	height := img.Rect.Dy()

	x0 := x - 1
	if x0 < 0 {
		x0 = 0
	}
	y0 := y - 1
	if y0 < 0 {
		y0 = 0
	}
	x2 := x + 1
	if x2 > width-1 {
		x2 = width - 1
	}
	y2 := y + 1
	if y2 > height-1 {
		y2 = height - 1
	}

	zeroes := 0
	if x == x0 || x == x2 || y == y0 || y == y2 {
		zeroes = 1
	}

	pos := offsetAt(img, x, y)

	for nx := x0; nx <= x2; nx++ {
		for ny := y0; ny <= y2; ny++ {
			if nx == x && ny == y {
				continue
			}

			pos2 := offsetAt(img, nx, ny)
			if img.Pix[pos] == img.Pix[pos2] &&
				img.Pix[pos+1] == img.Pix[pos2+1] &&
				img.Pix[pos+2] == img.Pix[pos2+2] &&
				img.Pix[pos+3] == img.Pix[pos2+3] {
				zeroes++
			}
			if zeroes > 2 {
				return true
			}
		}
	}

	return false
}

// colorDelta returns the perceptual distance between the samples at the
// two byte offsets, negative when the first is the brighter one.
// Samples with partial alpha are blended toward white first. With yOnly
// only the luminance difference is returned.
func colorDelta(img1 *image.NRGBA, img2 *image.NRGBA, pos1 int, pos2 int, yOnly bool) float64 {
	r1 := float64(img1.Pix[pos1])
	g1 := float64(img1.Pix[pos1+1])
	b1 := float64(img1.Pix[pos1+2])
	a1 := float64(img1.Pix[pos1+3])

	r2 := float64(img2.Pix[pos2])
	g2 := float64(img2.Pix[pos2+1])
	b2 := float64(img2.Pix[pos2+2])
	a2 := float64(img2.Pix[pos2+3])

	if r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2 {
		return 0
	}

	if a1 < 255 {
		a1 /= 255
		r1 = blend(r1, a1)
		g1 = blend(g1, a1)
		b1 = blend(b1, a1)
	}
	if a2 < 255 {
		a2 /= 255
		r2 = blend(r2, a2)
		g2 = blend(g2, a2)
		b2 = blend(b2, a2)
	}

	y1 := rgb2y(r1, g1, b1)
	y2 := rgb2y(r2, g2, b2)
	y := y1 - y2
	if yOnly {
		return y
	}

	i := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	q := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)
	delta := 0.5053*y*y + 0.299*i*i + 0.1957*q*q

	if y1 > y2 {
		return -delta
	}
	return delta
}

func rgb2y(r float64, g float64, b float64) float64 {
	return r*yR + g*yG + b*yB
}

func rgb2i(r float64, g float64, b float64) float64 {
	return r*iR + g*iG + b*iB
}

func rgb2q(r float64, g float64, b float64) float64 {
	return r*qR + g*qG + b*qB
}

// blend mixes a channel toward white by the inverse of its alpha.
func blend(c float64, a float64) float64 {
	return 255 + (c-255)*a
}

func writePixel(img *image.NRGBA, pos int, r uint8, g uint8, b uint8) {
	img.Pix[pos] = r
	img.Pix[pos+1] = g
	img.Pix[pos+2] = b
	img.Pix[pos+3] = 255
}

func writeGrayPixel(img *image.NRGBA, pos int, src *image.NRGBA, srcPos int) {
	r := float64(src.Pix[srcPos])
	g := float64(src.Pix[srcPos+1])
	b := float64(src.Pix[srcPos+2])
	a := float64(src.Pix[srcPos+3])

	v := uint8(blend(rgb2y(r, g, b), grayAlpha*a/255))
	writePixel(img, pos, v, v, v)
}

func offsetAt(img *image.NRGBA, x int, y int) int {
	return img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
}
