package extractor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"runtime"
	"sync"

	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

type GridConfig struct {
	Rows     int
	Cols     int
	MaskLow  float64
	MaskHigh float64
}

func DefaultGridConfig() GridConfig {
	return GridConfig{Rows: 20, Cols: 240, MaskLow: 10, MaskHigh: 245}
}

// GridExtractor samples the image luminance on a fixed grid. A cell is valid
// when its mean lies inside [MaskLow, MaskHigh]; a template bit is set when
// the cell is brighter than the mean of all valid cells.
type GridExtractor struct {
	cfg GridConfig
}

func NewGridExtractor(cfg GridConfig) *GridExtractor {
	def := DefaultGridConfig()
	if cfg.Rows <= 0 {
		cfg.Rows = def.Rows
	}
	if cfg.Cols <= 0 {
		cfg.Cols = def.Cols
	}
	if cfg.MaskHigh <= cfg.MaskLow {
		cfg.MaskLow, cfg.MaskHigh = def.MaskLow, def.MaskHigh
	}
	return &GridExtractor{cfg: cfg}
}

func (g *GridExtractor) Extract(ctx context.Context, path string, singleThread bool) (*domain.ExtractionResult, error) {
	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	means, err := g.cellMeans(ctx, img, singleThread)
	if err != nil {
		return nil, err
	}

	rows, cols := g.cfg.Rows, g.cfg.Cols
	mask := domain.NewMatrix(rows, cols, true)
	var sum float64
	var valid int
	for i, m := range means {
		if m >= g.cfg.MaskLow && m <= g.cfg.MaskHigh {
			mask.Data[i] = 1
			sum += m
			valid++
		}
	}
	if valid == 0 {
		return nil, ErrNoValidRegion
	}
	threshold := sum / float64(valid)

	template := domain.NewMatrix(rows, cols, true)
	for i, m := range means {
		if m > threshold {
			template.Data[i] = 1
		}
	}
	return &domain.ExtractionResult{
		Template: template,
		Mask:     mask,
		Score:    float64(valid) / float64(len(means)),
	}, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode image: empty bounds")
	}
	return img, nil
}

// cellMeans returns the mean luminance of each grid cell in row-major order.
// Rows are spread over GOMAXPROCS goroutines unless singleThread is set.
func (g *GridExtractor) cellMeans(ctx context.Context, img image.Image, singleThread bool) ([]float64, error) {
	rows := g.cfg.Rows
	means := make([]float64, rows*g.cfg.Cols)

	workers := 1
	if !singleThread {
		workers = runtime.GOMAXPROCS(0)
		if workers > rows {
			workers = rows
		}
	}
	if workers <= 1 {
		for r := 0; r < rows; r++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			g.fillRow(img, r, means)
		}
		return means, nil
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := w; r < rows; r += workers {
				if ctx.Err() != nil {
					return
				}
				g.fillRow(img, r, means)
			}
		}(w)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return means, nil
}

func (g *GridExtractor) fillRow(img image.Image, r int, means []float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rows, cols := g.cfg.Rows, g.cfg.Cols
	y0, y1 := span(r, rows, h)
	for c := 0; c < cols; c++ {
		x0, x1 := span(c, cols, w)
		var sum float64
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				sum += float64(luma(img.At(b.Min.X+x, b.Min.Y+y)))
			}
		}
		means[r*cols+c] = sum / float64((y1-y0)*(x1-x0))
	}
}

// span maps grid index i of n onto [0, size) so every cell covers at least
// one pixel.
func span(i, n, size int) (int, int) {
	lo := i * size / n
	hi := (i + 1) * size / n
	if lo >= size {
		lo = size - 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

func luma(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}
