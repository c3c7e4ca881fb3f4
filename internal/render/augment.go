package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/i474232898/track-enrichment/internal/common"
)

// Variant suffixes appended to augmented image names.
const (
	VariantRotated    = "rotated"
	VariantContrasted = "contrasted"
	VariantBrightness = "brightness"
)

var variants = []string{VariantRotated, VariantContrasted, VariantBrightness}

// Augmenter writes rotated, contrast-enhanced and brightened copies of the
// base map images in a directory.
type Augmenter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAugmenter creates an augmenter drawing its random amounts from src.
func NewAugmenter(src rand.Source) *Augmenter {
	return &Augmenter{rng: rand.New(src)}
}

// IsVariant reports whether name is an augmented image.
func IsVariant(name string) bool {
	return common.HasAny(name, variants...)
}

// AugmentDir augments every base PNG in dir and returns the written paths.
func (a *Augmenter) AugmentDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".png") || IsVariant(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		out, err := a.Augment(filepath.Join(dir, name))
		if err != nil {
			return written, err
		}
		written = append(written, out...)
	}
	return written, nil
}

// Augment writes the three variants of one image next to it.
func (a *Augmenter) Augment(path string) ([]string, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	angle, contrast, brightness := a.amounts()
	out := map[string]image.Image{
		VariantRotated:    Rotate(img, angle),
		VariantContrasted: ScaleContrast(img, contrast),
		VariantBrightness: ScaleBrightness(img, brightness),
	}

	dir := filepath.Dir(path)
	base := common.BaseName(path)
	written := make([]string, 0, len(variants))
	for _, v := range variants {
		dst := filepath.Join(dir, base+"_"+v+".png")
		if err := imaging.Save(out[v], dst); err != nil {
			return written, fmt.Errorf("save %s: %w", dst, err)
		}
		written = append(written, dst)
	}
	return written, nil
}

// amounts returns a rotation angle in [10, 60] degrees, an integer contrast
// factor in [2, 4] and a brightness factor in [1.2, 1.6].
func (a *Augmenter) amounts() (angle, contrast, brightness float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	angle = float64(10 + a.rng.Intn(51))
	contrast = float64(2 + a.rng.Intn(3))
	brightness = 1.2 + a.rng.Float64()*0.4
	return angle, contrast, brightness
}

// ScaleContrast moves every channel away from the mean gray level of img by
// factor. A factor of 1 returns an unchanged copy.
func ScaleContrast(img image.Image, factor float64) *image.NRGBA {
	mean := meanGray(img)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		scale := func(v uint8) uint8 { return clamp8(mean + factor*(float64(v)-mean)) }
		return color.NRGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: c.A}
	})
}

// ScaleBrightness multiplies every channel of img by factor.
func ScaleBrightness(img image.Image, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		scale := func(v uint8) uint8 { return clamp8(float64(v) * factor) }
		return color.NRGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: c.A}
	})
}

func meanGray(img image.Image) float64 {
	gray := imaging.Grayscale(img)
	if len(gray.Pix) == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(gray.Pix); i += 4 {
		sum += float64(gray.Pix[i])
	}
	return sum / float64(len(gray.Pix)/4)
}

func clamp8(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

// Rotate turns img counter-clockwise by angle degrees, keeping its size;
// uncovered corners are black.
func Rotate(img image.Image, angle float64) *image.NRGBA {
	b := img.Bounds()
	rotated := imaging.Rotate(img, angle, color.Black)
	return imaging.CropCenter(rotated, b.Dx(), b.Dy())
}
