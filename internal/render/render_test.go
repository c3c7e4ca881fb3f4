package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"

	"github.com/i474232898/track-enrichment/internal/track"
)

type solidTiles struct {
	calls int32
	fail  bool
}

func (s *solidTiles) Tile(_ context.Context, _, _, _ int) ([]byte, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.fail {
		return nil, errors.New("tile server down")
	}
	img := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	for y := 0; y < tileSize; y++ {
		for x := 0; x < tileSize; x++ {
			img.Set(x, y, color.RGBA{G: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hikePoints() []track.Point {
	return []track.Point{
		{Lat: 47.400, Lon: 11.000},
		{Lat: 47.405, Lon: 11.004},
		{Lat: 47.410, Lon: 11.010},
	}
}

func hasRed(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r>>8 > 200 && g>>8 < 60 && bl>>8 < 60 {
				return true
			}
		}
	}
	return false
}

func TestPixelOrigin(t *testing.T) {
	p := pixel(orb.Point{0, 0}, 0)
	if math.Abs(p[0]-128) > 1e-9 || math.Abs(p[1]-128) > 1e-9 {
		t.Fatalf("expected world center at (128,128), got %v", p)
	}
	p = pixel(orb.Point{-180, 0}, 1)
	if math.Abs(p[0]) > 1e-9 {
		t.Fatalf("expected left edge at x=0, got %v", p)
	}
}

func TestFitZoom(t *testing.T) {
	small := orb.Bound{Min: orb.Point{11, 47}, Max: orb.Point{11.05, 47.05}}
	large := orb.Bound{Min: orb.Point{0, 40}, Max: orb.Point{10, 50}}
	zs, zl := fitZoom(small, 1500, 1200), fitZoom(large, 1500, 1200)
	if zs <= zl {
		t.Errorf("smaller area should get a deeper zoom: %d vs %d", zs, zl)
	}
}

func TestRenderDrawsTrackOverTiles(t *testing.T) {
	tiles := &solidTiles{}
	r := NewMapRenderer(tiles, MapConfig{Width: 300, Height: 240, MarginDeg: 0.02, LineWidth: 2})

	img, err := r.Render(context.Background(), hikePoints())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b := img.Bounds()
	if b.Dx() > 301 || b.Dy() > 241 || (b.Dx() < 290 && b.Dy() < 230) {
		t.Errorf("image %dx%d does not fit the 300x240 target", b.Dx(), b.Dy())
	}
	if atomic.LoadInt32(&tiles.calls) == 0 {
		t.Error("expected tiles to be fetched")
	}
	if !hasRed(img) {
		t.Error("expected a red track line")
	}
}

func TestRenderWithoutTiles(t *testing.T) {
	r := NewMapRenderer(&solidTiles{fail: true}, MapConfig{Width: 200, Height: 200, MarginDeg: 0.02})
	path := filepath.Join(t.TempDir(), "track0.png")
	if err := r.RenderFile(context.Background(), hikePoints()[:1], path); err != nil {
		t.Fatalf("RenderFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected image on disk: %v", err)
	}

	if _, err := r.Render(context.Background(), nil); !errors.Is(err, track.ErrNoPoints) {
		t.Fatalf("expected ErrNoPoints, got %v", err)
	}
}

func TestAugmentDir(t *testing.T) {
	dir := t.TempDir()
	base := imaging.New(40, 30, color.NRGBA{R: 120, G: 120, B: 120, A: 255})
	if err := imaging.Save(base, filepath.Join(dir, "track0.png")); err != nil {
		t.Fatal(err)
	}
	if err := imaging.Save(base, filepath.Join(dir, "old_rotated.png")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := NewAugmenter(rand.NewSource(1))
	written, err := a.AugmentDir(dir)
	if err != nil {
		t.Fatalf("AugmentDir: %v", err)
	}
	want := []string{"track0_rotated.png", "track0_contrasted.png", "track0_brightness.png"}
	if len(written) != len(want) {
		t.Fatalf("expected %d variants, got %v", len(want), written)
	}
	for i, name := range want {
		if filepath.Base(written[i]) != name {
			t.Errorf("variant %d = %s, want %s", i, filepath.Base(written[i]), name)
		}
		img, err := imaging.Open(written[i])
		if err != nil {
			t.Fatalf("open %s: %v", written[i], err)
		}
		if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
			t.Errorf("%s changed size to %v", name, img.Bounds())
		}
	}

	again, err := a.AugmentDir(dir)
	if err != nil || len(again) != 3 {
		t.Fatalf("variants must not be augmented again: %v, %v", again, err)
	}
}

func TestScaleContrastAndBrightness(t *testing.T) {
	img := imaging.New(2, 1, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 140, G: 140, B: 140, A: 255})

	// mean gray is 120, so a factor of 2 doubles each distance from it
	c := ScaleContrast(img, 2)
	if got := c.NRGBAAt(0, 0).R; got != 80 {
		t.Errorf("contrast dark pixel = %d, want 80", got)
	}
	if got := c.NRGBAAt(1, 0).R; got != 160 {
		t.Errorf("contrast light pixel = %d, want 160", got)
	}

	b := ScaleBrightness(img, 1.5)
	if got := b.NRGBAAt(0, 0).G; got != 150 {
		t.Errorf("brightness = %d, want 150", got)
	}
	if got := ScaleBrightness(img, 2).NRGBAAt(1, 0).B; got != 255 {
		t.Errorf("brightness must clamp at 255, got %d", got)
	}
	if got := b.NRGBAAt(0, 0).A; got != 255 {
		t.Errorf("alpha changed to %d", got)
	}
}

func TestAugmentAmountsRange(t *testing.T) {
	a := NewAugmenter(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		angle, contrast, brightness := a.amounts()
		if angle < 10 || angle > 60 {
			t.Fatalf("angle %v out of range", angle)
		}
		if contrast != 2 && contrast != 3 && contrast != 4 {
			t.Fatalf("contrast factor %v, want 2, 3 or 4", contrast)
		}
		if brightness < 1.2 || brightness > 1.6 {
			t.Fatalf("brightness factor %v out of range", brightness)
		}
	}
}

func TestKDEIntegratesToOne(t *testing.T) {
	xs := []float64{1, 2, 2.5, 3, 4, 4.2, 5, 7}
	xy := KDE(xs, 400)
	if len(xy) != 400 {
		t.Fatalf("expected 400 points, got %d", len(xy))
	}
	step := xy[1].X - xy[0].X
	var area float64
	for _, p := range xy {
		area += p.Y * step
	}
	if math.Abs(area-1) > 0.05 {
		t.Errorf("density should integrate to ~1, got %v", area)
	}
	if KDE([]float64{3, 3, 3}, 10) != nil {
		t.Error("constant data has no density")
	}
}

func TestPlotsWriteFiles(t *testing.T) {
	dir := t.TempDir()
	names := []string{"a", "b", "c"}
	m := mat.NewSymDense(3, []float64{
		1, 0.5, math.NaN(),
		0.5, 1, -0.3,
		math.NaN(), -0.3, 1,
	})
	if err := Heatmap(names, m, filepath.Join(dir, HeatmapFile)); err != nil {
		t.Fatalf("Heatmap: %v", err)
	}

	cols := [][]float64{
		{1, 2, 3, 4, 5},
		{2, 2, 2, 2, 2},
		{math.NaN(), 1, 4, 9, 16},
	}
	if err := DensityGrid(names, cols, filepath.Join(dir, DensityFile)); err != nil {
		t.Fatalf("DensityGrid: %v", err)
	}

	for _, f := range []string{HeatmapFile, DensityFile} {
		info, err := os.Stat(filepath.Join(dir, f))
		if err != nil || info.Size() == 0 {
			t.Errorf("expected %s to be written: %v", f, err)
		}
	}

	if err := Heatmap([]string{"a"}, m, filepath.Join(dir, "bad.png")); err == nil {
		t.Error("expected error for mismatched names")
	}
}
