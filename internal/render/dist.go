package render

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Group is the observations of one category (hue).
type Group struct {
	Label  string
	Values []float64
}

// cleanGroups drops NaN values and reports the overall range.
func cleanGroups(groups []Group) ([]Group, float64, float64, error) {
	out := make([]Group, len(groups))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, g := range groups {
		vals := clean(g.Values)
		out[i] = Group{Label: g.Label, Values: vals}
		if len(vals) > 0 {
			lo = math.Min(lo, floats.Min(vals))
			hi = math.Max(hi, floats.Max(vals))
		}
	}
	if math.IsInf(lo, 1) {
		return nil, 0, 0, ErrNoData
	}
	return out, lo, hi, nil
}

func labels(groups []Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Label
	}
	return out
}

// Strip scatters each group's values along x on its own row, jittered so
// overlapping points stay visible. Jitter is seeded, so output is stable.
func Strip(path string, groups []Group, opt Options) error {
	groups, _, _, err := cleanGroups(groups)
	if err != nil {
		return err
	}
	p := newPlot(opt.Title, opt.XLabel, opt.YLabel)
	rng := rand.New(rand.NewPCG(1, 2))
	for i, g := range groups {
		xys := make(plotter.XYs, len(g.Values))
		for j, v := range g.Values {
			xys[j] = plotter.XY{X: v + (rng.Float64()*2-1)*0.1, Y: float64(i) + (rng.Float64()*2-1)*0.15}
		}
		if len(xys) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("strip %s: %w", g.Label, err)
		}
		sc.Color = fade(i, 128)
		sc.Radius = vg.Points(4)
		sc.Shape = draw.CircleGlyph{}
		p.Add(sc)
	}
	p.NominalY(labels(groups)...)
	w, h := opt.size(8, 4)
	return save(p, path, w, h)
}

// Histogram draws one step outline per group over shared bins. Heights are
// the share of the group's values in each bin.
func Histogram(path string, groups []Group, bins int, opt Options) error {
	if bins <= 0 {
		return fmt.Errorf("histogram: bins must be positive, got %d", bins)
	}
	groups, lo, hi, err := cleanGroups(groups)
	if err != nil {
		return err
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	edges := floats.Span(make([]float64, bins+1), lo, hi)
	// the last bin is closed on the right
	dividers := append([]float64{}, edges...)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	p := newPlot(opt.Title, opt.XLabel, opt.YLabel)
	if p.Y.Label.Text == "" {
		p.Y.Label.Text = "probability"
	}
	for i, g := range groups {
		if len(g.Values) == 0 {
			continue
		}
		x := append([]float64{}, g.Values...)
		sort.Float64s(x)
		counts := stat.Histogram(nil, dividers, x, nil)
		xys := make(plotter.XYs, 0, bins+2)
		xys = append(xys, plotter.XY{X: edges[0], Y: 0})
		for b, c := range counts {
			xys = append(xys, plotter.XY{X: edges[b], Y: c / float64(len(x))})
		}
		xys = append(xys, plotter.XY{X: edges[bins], Y: counts[bins-1] / float64(len(x))})
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("histogram %s: %w", g.Label, err)
		}
		line.StepStyle = plotter.PostStep
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(g.Label, line)
	}
	w, h := opt.size(10, 5)
	return save(p, path, w, h)
}

// Box draws a horizontal box plot per group.
func Box(path string, groups []Group, opt Options) error {
	groups, _, _, err := cleanGroups(groups)
	if err != nil {
		return err
	}
	p := newPlot(opt.Title, opt.XLabel, opt.YLabel)
	for i, g := range groups {
		if len(g.Values) == 0 {
			continue
		}
		b, err := plotter.NewBoxPlot(vg.Points(20), float64(i), plotter.Values(g.Values))
		if err != nil {
			return fmt.Errorf("box %s: %w", g.Label, err)
		}
		b.Horizontal = true
		b.FillColor = fade(i, 160)
		p.Add(b)
	}
	p.NominalY(labels(groups)...)
	w, h := opt.size(8, 4)
	return save(p, path, w, h)
}

// ECDF plots each group's sorted values against evenly spaced cumulative
// levels from 0 to 1, as hollow markers.
func ECDF(path string, groups []Group, opt Options) error {
	groups, _, _, err := cleanGroups(groups)
	if err != nil {
		return err
	}
	p := newPlot(opt.Title, opt.XLabel, opt.YLabel)
	if p.Y.Label.Text == "" {
		p.Y.Label.Text = "proportion"
	}
	for i, g := range groups {
		n := len(g.Values)
		if n == 0 {
			continue
		}
		x := append([]float64{}, g.Values...)
		sort.Float64s(x)
		levels := []float64{1}
		if n > 1 {
			levels = floats.Span(make([]float64, n), 0, 1)
		}
		xys := make(plotter.XYs, n)
		for j := range x {
			xys[j] = plotter.XY{X: x[j], Y: levels[j]}
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("ecdf %s: %w", g.Label, err)
		}
		sc.Color = plotutil.Color(i)
		sc.Shape = draw.RingGlyph{}
		sc.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(g.Label, sc)
	}
	w, h := opt.size(8, 4)
	return save(p, path, w, h)
}

// scottBandwidth is sigma * n^(-1/5).
func scottBandwidth(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	_, sd := stat.MeanStdDev(vals, nil)
	return sd * math.Pow(float64(len(vals)), -0.2)
}

// KDE draws a Gaussian kernel density estimate per group. Groups with fewer
// than two distinct values are skipped.
func KDE(path string, groups []Group, opt Options) error {
	groups, lo, hi, err := cleanGroups(groups)
	if err != nil {
		return err
	}
	maxBW := 0.0
	for _, g := range groups {
		maxBW = math.Max(maxBW, scottBandwidth(g.Values))
	}
	if maxBW == 0 {
		return ErrNoData
	}
	grid := floats.Span(make([]float64, 200), lo-3*maxBW, hi+3*maxBW)

	p := newPlot(opt.Title, opt.XLabel, opt.YLabel)
	if p.Y.Label.Text == "" {
		p.Y.Label.Text = "density"
	}
	for i, g := range groups {
		bw := scottBandwidth(g.Values)
		if bw == 0 {
			continue
		}
		xys := make(plotter.XYs, len(grid))
		for j, x := range grid {
			var d float64
			for _, v := range g.Values {
				d += distuv.Normal{Mu: v, Sigma: bw}.Prob(x)
			}
			xys[j] = plotter.XY{X: x, Y: d / float64(len(g.Values))}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("kde %s: %w", g.Label, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(2)
		line.FillColor = fade(i, 64)
		p.Add(line)
		p.Legend.Add(g.Label, line)
	}
	w, h := opt.size(8, 4)
	return save(p, path, w, h)
}

// Sequence draws a run-sequence panel per group side by side, values in
// observation order over shared axes.
func Sequence(path string, groups []Group, opt Options) error {
	groups, lo, hi, err := cleanGroups(groups)
	if err != nil {
		return err
	}
	maxN := 0
	for _, g := range groups {
		maxN = max(maxN, len(g.Values))
	}
	row := make([]*plot.Plot, len(groups))
	for i, g := range groups {
		p := newPlot(g.Label, opt.XLabel, opt.YLabel)
		p.X.Min, p.X.Max = 0, float64(maxN)
		p.Y.Min, p.Y.Max = lo, hi
		row[i] = p
		n := len(g.Values)
		if n == 0 {
			continue
		}
		xs := []float64{0}
		if n > 1 {
			xs = floats.Span(make([]float64, n), 0, float64(n))
		}
		xys := make(plotter.XYs, n)
		for j, v := range g.Values {
			xys[j] = plotter.XY{X: xs[j], Y: v}
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("sequence %s: %w", g.Label, err)
		}
		sc.Color = plotutil.Color(i)
		sc.Shape = draw.RingGlyph{}
		sc.Radius = vg.Points(3)
		p.Add(sc)
	}
	w, h := opt.size(5*float64(len(groups)), 3)
	return saveGrid([][]*plot.Plot{row}, path, w, h)
}
