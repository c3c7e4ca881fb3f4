// Package render draws track map images, their augmented variants and the
// exploratory analysis plots.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/paulmach/orb/simplify"

	"github.com/i474232898/track-enrichment/internal/logging"
	"github.com/i474232898/track-enrichment/internal/track"
)

const (
	tileSize = 256
	maxZoom  = 18
)

// TileSource returns encoded raster tiles.
type TileSource interface {
	Tile(ctx context.Context, z, x, y int) ([]byte, error)
}

// MapConfig controls map image rendering.
type MapConfig struct {
	Width     int
	Height    int
	MarginDeg float64
	LineWidth float64
}

// MapRenderer draws a track as a red line over OSM tiles.
type MapRenderer struct {
	tiles TileSource
	cfg   MapConfig
}

// NewMapRenderer creates a renderer. A nil tile source draws the line on a
// blank background.
func NewMapRenderer(tiles TileSource, cfg MapConfig) *MapRenderer {
	if cfg.Width <= 0 {
		cfg.Width = 1500
	}
	if cfg.Height <= 0 {
		cfg.Height = 1200
	}
	if cfg.LineWidth <= 0 {
		cfg.LineWidth = 2
	}
	return &MapRenderer{tiles: tiles, cfg: cfg}
}

// Bounds returns the bounding box of points padded by the configured margin.
func (r *MapRenderer) Bounds(points []track.Point) orb.Bound {
	ls := lineString(points)
	return ls.Bound().Pad(r.cfg.MarginDeg)
}

// Render draws the track. Tiles that cannot be fetched are left blank.
func (r *MapRenderer) Render(ctx context.Context, points []track.Point) (image.Image, error) {
	if len(points) == 0 {
		return nil, track.ErrNoPoints
	}
	bound := r.Bounds(points)
	z := fitZoom(bound, r.cfg.Width, r.cfg.Height)

	minPx := pixel(orb.Point{bound.Min[0], bound.Max[1]}, z)
	maxPx := pixel(orb.Point{bound.Max[0], bound.Min[1]}, z)
	w := int(math.Ceil(maxPx[0] - minPx[0]))
	h := int(math.Ceil(maxPx[1] - minPx[1]))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	base := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(base, base.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if r.tiles != nil {
		if err := r.drawTiles(ctx, base, z, minPx); err != nil {
			return nil, err
		}
	}

	var img image.Image = base
	scale := math.Min(float64(r.cfg.Width)/float64(w), float64(r.cfg.Height)/float64(h))
	if scale > 1 {
		img = imaging.Resize(base, int(math.Round(float64(w)*scale)), int(math.Round(float64(h)*scale)), imaging.Lanczos)
	} else {
		scale = 1
	}

	path := make(orb.LineString, len(points))
	for i, p := range points {
		px := pixel(orb.Point{p.Lon, p.Lat}, z)
		path[i] = orb.Point{(px[0] - minPx[0]) * scale, (px[1] - minPx[1]) * scale}
	}
	if s, ok := simplify.DouglasPeucker(0.5).Simplify(path.Clone()).(orb.LineString); ok && len(s) >= 2 {
		path = s
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 0, 0)
	dc.SetLineWidth(r.cfg.LineWidth)
	dc.SetLineJoinRound()
	dc.SetLineCapRound()
	dc.MoveTo(path[0][0], path[0][1])
	for _, p := range path[1:] {
		dc.LineTo(p[0], p[1])
	}
	if len(path) == 1 {
		dc.DrawPoint(path[0][0], path[0][1], r.cfg.LineWidth)
		dc.Fill()
	} else {
		dc.Stroke()
	}
	return dc.Image(), nil
}

// RenderFile renders the track and writes it as PNG to path.
func (r *MapRenderer) RenderFile(ctx context.Context, points []track.Point, path string) error {
	img, err := r.Render(ctx, points)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save map image %s: %w", path, err)
	}
	return nil
}

func (r *MapRenderer) drawTiles(ctx context.Context, dst *image.RGBA, z int, origin orb.Point) error {
	n := 1 << z
	b := dst.Bounds()
	x0 := int(math.Floor(origin[0] / tileSize))
	y0 := int(math.Floor(origin[1] / tileSize))
	x1 := int(math.Floor((origin[0] + float64(b.Dx())) / tileSize))
	y1 := int(math.Floor((origin[1] + float64(b.Dy())) / tileSize))

	for ty := y0; ty <= y1; ty++ {
		if ty < 0 || ty >= n {
			continue
		}
		for tx := x0; tx <= x1; tx++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			wx := ((tx % n) + n) % n
			data, err := r.tiles.Tile(ctx, z, wx, ty)
			if err != nil {
				logging.Warn().Err(err).Int("z", z).Int("x", wx).Int("y", ty).Msg("map tile unavailable")
				continue
			}
			tile, err := imaging.Decode(bytes.NewReader(data))
			if err != nil {
				logging.Warn().Err(err).Int("z", z).Int("x", wx).Int("y", ty).Msg("map tile undecodable")
				continue
			}
			at := image.Pt(
				int(math.Round(float64(tx*tileSize)-origin[0])),
				int(math.Round(float64(ty*tileSize)-origin[1])),
			)
			draw.Draw(dst, tile.Bounds().Add(at), tile, tile.Bounds().Min, draw.Over)
		}
	}
	return nil
}

// fitZoom returns the deepest zoom level at which bound fits in w×h pixels.
func fitZoom(bound orb.Bound, w, h int) int {
	for z := maxZoom; z > 0; z-- {
		tl := pixel(orb.Point{bound.Min[0], bound.Max[1]}, z)
		br := pixel(orb.Point{bound.Max[0], bound.Min[1]}, z)
		if br[0]-tl[0] <= float64(w) && br[1]-tl[1] <= float64(h) {
			return z
		}
	}
	return 0
}

// pixel converts a lon/lat point to global Web-Mercator pixel coordinates
// at zoom z.
func pixel(p orb.Point, z int) orb.Point {
	m := project.WGS84.ToMercator(p)
	world := float64(tileSize) * math.Exp2(float64(z))
	half := math.Pi * orb.EarthRadius
	return orb.Point{
		(m[0] + half) / (2 * half) * world,
		(half - m[1]) / (2 * half) * world,
	}
}

func lineString(points []track.Point) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	return ls
}
