package testsupport

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

// WriteEyeImage writes a synthetic grayscale JPEG to dir/name. Different
// seeds give different textures; the dark disc and the bright glint exercise
// the mask thresholds.
func WriteEyeImage(t testing.TB, dir, name string, seed int) string {
	t.Helper()
	const w, h = 160, 120
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 40 + (x*7+y*13+seed*31+(x*y)%(seed+5))%170
			dx, dy := x-w/2, y-h/2
			switch {
			case dx*dx+dy*dy < 25*25:
				v = 0
			case (x-100)*(x-100)+(y-40)*(y-40) < 6*6:
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create image %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode image %s: %v", path, err)
	}
	return path
}

// WriteFile writes raw bytes, e.g. a corrupt image.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
