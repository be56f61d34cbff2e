package render

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Counts draws grouped bars: one cluster per category and one bar per hue
// inside it. counts[h][c] is the height of hue h in category c.
func Counts(path string, categories, hues []string, counts [][]float64, opt Options) error {
	if len(categories) == 0 || len(counts) == 0 {
		return ErrNoData
	}
	if len(hues) != len(counts) {
		return fmt.Errorf("counts: %d hues for %d bar sets", len(hues), len(counts))
	}
	p := newPlot(opt.Title, opt.XLabel, opt.YLabel)
	if p.Y.Label.Text == "" {
		p.Y.Label.Text = "count"
	}
	width := vg.Points(60 / float64(len(hues)))
	for h, row := range counts {
		if len(row) != len(categories) {
			return fmt.Errorf("counts: hue %s has %d values, want %d", hues[h], len(row), len(categories))
		}
		bars, err := plotter.NewBarChart(plotter.Values(row), width)
		if err != nil {
			return fmt.Errorf("counts %s: %w", hues[h], err)
		}
		bars.Color = plotutil.Color(h)
		bars.LineStyle.Width = 0
		bars.Offset = width * vg.Length(float64(h)-float64(len(hues)-1)/2)
		p.Add(bars)
		if hues[h] != "" {
			p.Legend.Add(hues[h], bars)
		}
	}
	p.NominalX(categories...)
	w, h := opt.size(8, 5)
	return save(p, path, w, h)
}

// PointEstimate marks each group's mean with a 95% normal confidence
// interval (1.96 standard errors). Groups with one value get no interval.
func PointEstimate(path string, groups []Group, opt Options) error {
	groups, _, _, err := cleanGroups(groups)
	if err != nil {
		return err
	}
	type xyErr struct {
		plotter.XYs
		plotter.YErrors
	}
	var pts xyErr
	var names []string
	for i, g := range groups {
		names = append(names, g.Label)
		if len(g.Values) == 0 {
			continue
		}
		mean, sd := stat.MeanStdDev(g.Values, nil)
		se := 0.0
		if n := len(g.Values); n > 1 && !math.IsNaN(sd) {
			se = sd / math.Sqrt(float64(n))
		}
		pts.XYs = append(pts.XYs, plotter.XY{X: float64(i), Y: mean})
		pts.YErrors = append(pts.YErrors, struct{ Low, High float64 }{1.96 * se, 1.96 * se})
	}
	p := newPlot(opt.Title, opt.XLabel, opt.YLabel)
	bars, err := plotter.NewYErrorBars(pts)
	if err != nil {
		return fmt.Errorf("point estimate: %w", err)
	}
	bars.Color = plotutil.Color(0)
	bars.Width = vg.Points(1.5)
	bars.CapWidth = vg.Points(8)
	sc, err := plotter.NewScatter(pts.XYs)
	if err != nil {
		return fmt.Errorf("point estimate: %w", err)
	}
	sc.Color = plotutil.Color(0)
	sc.Shape = draw.CircleGlyph{}
	sc.Radius = vg.Points(4)
	p.Add(bars, sc)
	p.NominalX(names...)
	w, h := opt.size(6, 4)
	return save(p, path, w, h)
}
