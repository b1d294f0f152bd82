package image

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"
)

type Rectangle struct {
	X      int
	Y      int
	Width  int
	Height int
}

// RectangleDiff classifies pixels exactly like PixelDiff but renders the
// result as red bounding boxes around connected changed regions, drawn
// over a copy of the target. Boxes suit page-level review where single
// marked pixels are too small to spot.
type RectangleDiff struct {
	threshold float64
}

func NewRectangleDiff(threshold float64) (*RectangleDiff, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}

	return &RectangleDiff{
		threshold,
	}, nil
}

func (r *RectangleDiff) Calculate(baseline *image.NRGBA, target *image.NRGBA) (*DiffResult, error) {
	if err := validateThreshold(r.threshold); err != nil {
		return nil, err
	}

	width := baseline.Rect.Dx()
	height := baseline.Rect.Dy()
	if width != target.Rect.Dx() || height != target.Rect.Dy() {
		return nil, xerrors.Errorf("baseline %dx%d vs target %dx%d: %w", width, height, target.Rect.Dx(), target.Rect.Dy(), DimensionMismatchError)
	}

	diffMap := make([][]bool, height)
	for i := range diffMap {
		diffMap[i] = make([]bool, width)
	}

	diffPixelCount := r.buildDiffMap(baseline, target, diffMap)

	result := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(result, result.Bounds(), target, target.Rect.Min, draw.Src)

	rectColor := color.NRGBA{R: 255, A: 255}

	for _, rect := range r.findRectangles(diffMap, width, height) {
		for thickness := 0; thickness < 3; thickness++ {
			for x := rect.X - thickness; x < rect.X+rect.Width+thickness; x++ {
				if x >= 0 && x < width {
					if rect.Y-thickness >= 0 {
						result.Set(x, rect.Y-thickness, rectColor)
					}
					if rect.Y+rect.Height+thickness < height {
						result.Set(x, rect.Y+rect.Height+thickness, rectColor)
					}
				}
			}

			for y := rect.Y - thickness; y < rect.Y+rect.Height+thickness; y++ {
				if y >= 0 && y < height {
					if rect.X-thickness >= 0 {
						result.Set(rect.X-thickness, y, rectColor)
					}
					if rect.X+rect.Width+thickness < width {
						result.Set(rect.X+rect.Width+thickness, y, rectColor)
					}
				}
			}
		}
	}

	diffAmount := 0.0
	if width*height > 0 {
		diffAmount = float64(diffPixelCount) / float64(width*height)
	}

	return &DiffResult{
		Image:          result,
		DiffPixelCount: int(diffPixelCount),
		DiffAmount:     diffAmount,
	}, nil
}

// buildDiffMap marks hard-different pixels, using the same perceptual
// classification as PixelDiff so both differs report the same count.
func (r *RectangleDiff) buildDiffMap(baseline *image.NRGBA, target *image.NRGBA, diffMap [][]bool) int64 {
	width := baseline.Rect.Dx()
	height := baseline.Rect.Dy()

	var diffPixelCount int64

	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	// https://tip.golang.org/doc/go1.25#container-aware-gomaxprocs
	numWorkers := runtime.GOMAXPROCS(0)
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	maxDelta := maxYIQDelta * r.threshold * r.threshold

	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = height
		}

		go func(startY int, endY int) {
			defer wg.Done()

			var localCount int64

			for y := startY; y < endY; y++ {
				baselineRowStart := offsetAt(baseline, 0, y)
				targetRowStart := offsetAt(target, 0, y)

				for x := 0; x < width; x++ {
					delta := colorDelta(baseline, target, baselineRowStart+x*4, targetRowStart+x*4, false)
					if math.Abs(delta) <= maxDelta {
						continue
					}
					if antialiased(baseline, target, x, y) || antialiased(target, baseline, x, y) {
						continue
					}

					diffMap[y][x] = true
					localCount++
				}
			}

			atomic.AddInt64(&diffPixelCount, localCount)
		}(startY, endY)
	}

	wg.Wait()

	return diffPixelCount
}

func (r *RectangleDiff) findRectangles(diffMap [][]bool, width int, height int) []Rectangle {
	visited := make([][]bool, height)
	for i := range visited {
		visited[i] = make([]bool, width)
	}

	var rectangles []Rectangle
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if diffMap[y][x] && !visited[y][x] {
				rect := r.findBoundingBox(diffMap, visited, x, y, width, height)
				if rect.Width > 2 && rect.Height > 2 {
					rectangles = append(rectangles, rect)
				}
			}
		}
	}

	return r.mergeRectangles(rectangles)
}

func (r *RectangleDiff) findBoundingBox(diffMap [][]bool, visited [][]bool, startX int, startY int, width int, height int) Rectangle {
	minX := startX
	minY := startY
	maxRectX := startX
	maxRectY := startY

	queue := []struct {
		x int
		y int
	}{{startX, startY}}
	visited[startY][startX] = true

	for len(queue) > 0 {
		point := queue[0]
		queue = queue[1:]

		if point.x < minX {
			minX = point.x
		}
		if point.x > maxRectX {
			maxRectX = point.x
		}
		if point.y < minY {
			minY = point.y
		}
		if point.y > maxRectY {
			maxRectY = point.y
		}

		// Check 8 neighbors
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}

				nx := point.x + dx
				ny := point.y + dy
				if nx >= 0 && nx < width && ny >= 0 && ny < height &&
					diffMap[ny][nx] && !visited[ny][nx] {
					visited[ny][nx] = true
					queue = append(queue, struct {
						x int
						y int
					}{nx, ny})
				}
			}
		}
	}

	return Rectangle{
		X:      minX,
		Y:      minY,
		Width:  maxRectX - minX + 1,
		Height: maxRectY - minY + 1,
	}
}

func (r *RectangleDiff) mergeRectangles(rects []Rectangle) []Rectangle {
	if len(rects) <= 1 {
		return rects
	}

	merged := make([]Rectangle, 0)
	used := make([]bool, len(rects))

	for i := 0; i < len(rects); i++ {
		if used[i] {
			continue
		}

		current := rects[i]
		mergedAny := true

		for mergedAny {
			mergedAny = false
			for j := i + 1; j < len(rects); j++ {
				if used[j] {
					continue
				}

				if r.rectanglesOverlap(current, rects[j]) || r.rectanglesClose(current, rects[j], 10) {
					current = r.combineRectangles(current, rects[j])
					used[j] = true
					mergedAny = true
				}
			}
		}

		merged = append(merged, current)
	}

	return merged
}

func (r *RectangleDiff) rectanglesOverlap(r1 Rectangle, r2 Rectangle) bool {
	return !(r1.X+r1.Width <= r2.X || r2.X+r2.Width <= r1.X ||
		r1.Y+r1.Height <= r2.Y || r2.Y+r2.Height <= r1.Y)
}

func (r *RectangleDiff) rectanglesClose(r1 Rectangle, r2 Rectangle, distance int) bool {
	r1Expanded := Rectangle{
		X:      r1.X - distance,
		Y:      r1.Y - distance,
		Width:  r1.Width + 2*distance,
		Height: r1.Height + 2*distance,
	}

	r2Expanded := Rectangle{
		X:      r2.X - distance,
		Y:      r2.Y - distance,
		Width:  r2.Width + 2*distance,
		Height: r2.Height + 2*distance,
	}

	return r.rectanglesOverlap(r1Expanded, r2Expanded)
}

func (r *RectangleDiff) combineRectangles(r1 Rectangle, r2 Rectangle) Rectangle {
	minX := r1.X
	if r2.X < minX {
		minX = r2.X
	}

	minY := r1.Y
	if r2.Y < minY {
		minY = r2.Y
	}

	maxX := r1.X + r1.Width
	if r2.X+r2.Width > maxX {
		maxX = r2.X + r2.Width
	}

	maxY := r1.Y + r1.Height
	if r2.Y+r2.Height > maxY {
		maxY = r2.Y + r2.Height
	}

	return Rectangle{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}
