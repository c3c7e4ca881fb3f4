package render

import (
	"fmt"
	"image/color"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/i474232898/track-enrichment/internal/analysis"
)

// Plot file names under the graph directory.
const (
	HeatmapFile = "correlation_heatmap.png"
	DensityFile = "kde_plots.png"
)

// DensityColumns is the number of plots per row in the density grid.
const DensityColumns = 5

// corrGrid adapts a correlation matrix to plotter.GridXYZ with the first
// feature drawn on the top row.
type corrGrid struct {
	m mat.Symmetric
}

func (g corrGrid) Dims() (c, r int)   { n := g.m.SymmetricDim(); return n, n }
func (g corrGrid) Z(c, r int) float64 { return g.m.At(g.row(r), c) }
func (g corrGrid) X(c int) float64    { return float64(c) }
func (g corrGrid) Y(r int) float64    { return float64(r) }
func (g corrGrid) row(r int) int      { return g.m.SymmetricDim() - 1 - r }

// Heatmap writes an annotated correlation heatmap of m to path.
func Heatmap(names []string, m mat.Symmetric, path string) error {
	n := m.SymmetricDim()
	if n == 0 || len(names) != n {
		return fmt.Errorf("heatmap: %d names for a %dx%d matrix", len(names), n, n)
	}
	grid := corrGrid{m: m}

	hm := plotter.NewHeatMap(grid, moreland.SmoothBlueRed().Palette(255))
	hm.Min, hm.Max = -1, 1
	hm.NaN = color.Gray{Y: 200}

	p := plot.New()
	p.Title.Text = "Correlation matrix"
	p.Add(hm)

	var (
		xTicks, yTicks []plot.Tick
		xys            plotter.XYs
		labels         []string
	)
	for i, name := range names {
		xTicks = append(xTicks, plot.Tick{Value: float64(i), Label: name})
		yTicks = append(yTicks, plot.Tick{Value: float64(n - 1 - i), Label: name})
	}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			v := grid.Z(c, r)
			xys = append(xys, plotter.XY{X: float64(c), Y: float64(r)})
			if math.IsNaN(v) {
				labels = append(labels, "nan")
			} else {
				labels = append(labels, fmt.Sprintf("%.2f", v))
			}
		}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight

	values, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return fmt.Errorf("heatmap labels: %w", err)
	}
	for i := range values.TextStyle {
		values.TextStyle[i].XAlign = draw.XCenter
		values.TextStyle[i].YAlign = draw.YCenter
	}
	p.Add(values)

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save heatmap %s: %w", path, err)
	}
	return nil
}

// KDE evaluates a Gaussian kernel density estimate of xs at points spread
// over the data range. The bandwidth follows Scott's rule. It returns nil if
// xs has fewer than two distinct values.
func KDE(xs []float64, points int) plotter.XYs {
	if len(xs) < 2 || points < 2 {
		return nil
	}
	sd := stat.StdDev(xs, nil)
	if sd == 0 || math.IsNaN(sd) {
		return nil
	}
	bw := sd * math.Pow(float64(len(xs)), -0.2)

	lo, hi := xs[0], xs[0]
	for _, x := range xs {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	lo -= 3 * bw
	hi += 3 * bw

	kernels := make([]distuv.Normal, len(xs))
	for i, x := range xs {
		kernels[i] = distuv.Normal{Mu: x, Sigma: bw}
	}

	out := make(plotter.XYs, points)
	step := (hi - lo) / float64(points-1)
	for i := range out {
		x := lo + float64(i)*step
		var sum float64
		for _, k := range kernels {
			sum += k.Prob(x)
		}
		out[i] = plotter.XY{X: x, Y: sum / float64(len(xs))}
	}
	return out
}

// DensityGrid writes one KDE plot per column, DensityColumns per row, to
// path. NaN values are ignored.
func DensityGrid(names []string, columns [][]float64, path string) error {
	if len(names) == 0 || len(names) != len(columns) {
		return fmt.Errorf("density grid: %d names for %d columns", len(names), len(columns))
	}
	rows := (len(names) + DensityColumns - 1) / DensityColumns

	plots := make([][]*plot.Plot, rows)
	for r := range plots {
		plots[r] = make([]*plot.Plot, DensityColumns)
		for c := range plots[r] {
			idx := r*DensityColumns + c
			p := plot.New()
			if idx >= len(names) {
				p.HideAxes()
				plots[r][c] = p
				continue
			}
			p.Title.Text = names[idx]
			p.Y.Label.Text = "Density"
			if xy := KDE(analysis.Present(columns[idx]), 200); xy != nil {
				line, err := plotter.NewLine(xy)
				if err != nil {
					return fmt.Errorf("density line %s: %w", names[idx], err)
				}
				line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
				p.Add(line)
			}
			plots[r][c] = p
		}
	}

	width := vg.Length(DensityColumns) * 3 * vg.Inch
	height := vg.Length(rows) * 4 * vg.Inch
	img := vgimg.New(width, height)
	dc := draw.New(img)

	tiles := draw.Tiles{
		Rows: rows, Cols: DensityColumns,
		PadX: vg.Millimeter * 4, PadY: vg.Millimeter * 4,
		PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2,
		PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for r := range plots {
		for c := range plots[r] {
			plots[r][c].Draw(canvases[r][c])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write density grid %s: %w", path, err)
	}
	return f.Close()
}
