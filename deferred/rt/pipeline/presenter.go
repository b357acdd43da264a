package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	_ "github.com/ftrvxmtrx/tga"
	_ "golang.org/x/image/webp"
)

var ErrImageMismatch = errors.New("pipeline: image sizes differ")

// Presenter consumes composited frames.
type Presenter interface {
	Present(ctx context.Context, index uint64, img image.Image) error
}

// FilePresenter writes every presented frame to Dir as PNG or WebP.
type FilePresenter struct {
	Dir    string
	Prefix string
	// Format is "png" or "webp".
	Format string
}

func (f *FilePresenter) Path(index uint64) string {
	prefix := f.Prefix
	if prefix == "" {
		prefix = "frame"
	}
	return filepath.Join(f.Dir, fmt.Sprintf("%s_%05d.%s", prefix, index, f.ext()))
}

func (f *FilePresenter) ext() string {
	if strings.EqualFold(f.Format, "webp") {
		return "webp"
	}
	return "png"
}

func (f *FilePresenter) Present(ctx context.Context, index uint64, img image.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	path := f.Path(index)
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("present: %w", err)
	}
	defer out.Close()

	if f.ext() == "webp" {
		err = nativewebp.Encode(out, img, nil)
	} else {
		err = png.Encode(out, img)
	}
	if err != nil {
		return fmt.Errorf("present: encode %s: %w", path, err)
	}
	return out.Close()
}

// LoadImage decodes a PNG, WebP or TGA reference image.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load image %s: %w", path, err)
	}
	return img, nil
}

// PSNR is the peak signal-to-noise ratio of b against a over RGB, in dB.
// Identical images give +Inf.
func PSNR(a, b image.Image) (float64, error) {
	ra, rb := a.Bounds(), b.Bounds()
	if ra.Dx() != rb.Dx() || ra.Dy() != rb.Dy() {
		return 0, fmt.Errorf("%w: %v vs %v", ErrImageMismatch, ra.Size(), rb.Size())
	}
	if ra.Empty() {
		return math.Inf(1), nil
	}
	var sum float64
	for y := 0; y < ra.Dy(); y++ {
		for x := 0; x < ra.Dx(); x++ {
			r1, g1, b1, _ := a.At(ra.Min.X+x, ra.Min.Y+y).RGBA()
			r2, g2, b2, _ := b.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			for _, d := range [3]float64{
				float64(r1>>8) - float64(r2>>8),
				float64(g1>>8) - float64(g2>>8),
				float64(b1>>8) - float64(b2>>8),
			} {
				sum += d * d
			}
		}
	}
	mse := sum / float64(3*ra.Dx()*ra.Dy())
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 10 * math.Log10(255*255/mse), nil
}
