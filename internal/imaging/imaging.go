package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"
)

func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Flatten composites img over a white background so that every pixel is
// opaque, the equivalent of converting to RGB mode.
func Flatten(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, bounds.Min, draw.Over)
	return flat
}

// ChangeRatio returns the share of pixels whose brightness differs by more
// than threshold (0..1) between baseline and target. Pixels covered by only
// one of the images count as changed.
func ChangeRatio(baseline *image.RGBA, target *image.RGBA, threshold float64) float64 {
	if baseline == target {
		return 0.0
	}

	bounds := baseline.Bounds().Union(target.Bounds())
	total := int64(bounds.Dx()) * int64(bounds.Dy())
	if total == 0 {
		return 0.0
	}
	common := baseline.Bounds().Intersect(target.Bounds())
	changed := total - int64(common.Dx())*int64(common.Dy())

	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	numWorkers := runtime.GOMAXPROCS(0)
	height := common.Dy()
	if height < numWorkers {
		numWorkers = max(height, 1)
	}
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		startY := common.Min.Y + i*rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = common.Max.Y
		}

		go func(startY int, endY int) {
			defer wg.Done()
			countChanged(baseline, target, threshold, common.Min.X, common.Max.X, startY, endY, &changed)
		}(startY, endY)
	}
	wg.Wait()

	return float64(changed) / float64(total)
}

func countChanged(baseline *image.RGBA, target *image.RGBA, threshold float64, minX int, maxX int, startY int, endY int, changed *int64) {
	var local int64

	for y := startY; y < endY; y++ {
		baselineRowStart := baseline.PixOffset(minX, y)
		targetRowStart := target.PixOffset(minX, y)

		for x := 0; x < maxX-minX; x++ {
			b := baseline.Pix[baselineRowStart+x*4 : baselineRowStart+x*4+4 : baselineRowStart+x*4+4]
			t := target.Pix[targetRowStart+x*4 : targetRowStart+x*4+4 : targetRowStart+x*4+4]
			if b[0] == t[0] && b[1] == t[1] && b[2] == t[2] && b[3] == t[3] {
				continue
			}

			baselineBrightness := int(b[0]) + int(b[1]) + int(b[2])
			targetBrightness := int(t[0]) + int(t[1]) + int(t[2])
			normalizedDiff := float64(targetBrightness-baselineBrightness) / (255.0 * 3.0)
			if normalizedDiff > threshold || normalizedDiff < -threshold {
				local++
			}
		}
	}

	atomic.AddInt64(changed, local)
}
