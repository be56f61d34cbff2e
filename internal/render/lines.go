package render

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/KaramelBytes/dataloom-cli/internal/timeseries"
)

// Line is one labelled series over time. NaN values break the line.
type Line struct {
	Label string
	X     []time.Time
	Y     []float64
}

// FromFrame turns every entity of f into a line, in entity order.
func FromFrame(f *timeseries.Frame) []Line {
	var out []Line
	for _, e := range f.Entities() {
		s, _ := f.Series(e)
		out = append(out, Line{Label: e, X: s.Dates(), Y: s.Floats()})
	}
	return out
}

// FromRows groups long rows into lines by entity, keeping row order.
func FromRows(rows []timeseries.Row) []Line {
	var out []Line
	idx := map[string]int{}
	for _, r := range rows {
		i, ok := idx[r.Entity]
		if !ok {
			i = len(out)
			idx[r.Entity] = i
			out = append(out, Line{Label: r.Entity})
		}
		out[i].X = append(out[i].X, r.Date)
		out[i].Y = append(out[i].Y, r.Point.Float())
	}
	return out
}

// segments splits a line into runs of present values.
func segments(l Line) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for i := range l.X {
		if i >= len(l.Y) || math.IsNaN(l.Y[i]) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: float64(l.X[i].Unix()), Y: l.Y[i]})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

type lineStyle struct {
	color  color.Color
	dashes []vg.Length
	width  vg.Length
	points bool
}

// addLine draws every segment of l and returns whether anything was drawn.
func addLine(p *plot.Plot, l Line, st lineStyle, legend bool) (bool, error) {
	segs := segments(l)
	for i, seg := range segs {
		line, pts, err := plotter.NewLinePoints(seg)
		if err != nil {
			return false, fmt.Errorf("line %s: %w", l.Label, err)
		}
		line.Color = st.color
		line.Dashes = st.dashes
		line.Width = st.width
		p.Add(line)
		if st.points || len(seg) == 1 {
			pts.Color = st.color
			pts.Radius = vg.Points(2)
			p.Add(pts)
		}
		if legend && i == 0 && l.Label != "" {
			p.Legend.Add(l.Label, line)
		}
	}
	return len(segs) > 0, nil
}

// Lines draws one line per entity over a shared date axis with a legend.
func Lines(path string, lines []Line, opt Options) error {
	p := newPlot(opt.Title, opt.XLabel, opt.YLabel)
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	drawn := false
	for i, l := range lines {
		ok, err := addLine(p, l, lineStyle{color: plotutil.Color(i), width: vg.Points(1.5), points: opt.Points}, true)
		if err != nil {
			return err
		}
		drawn = drawn || ok
	}
	if !drawn {
		return ErrNoData
	}
	w, h := opt.size(10, 5)
	return save(p, path, w, h)
}

// YearOverYear draws a grid with one row per entity and one column per
// metric. The current values are solid; metric+suffix, the same days a year
// earlier, is dashed grey.
func YearOverYear(path string, pn *timeseries.Panel, metrics []string, suffix string, opt Options) error {
	entities := pn.Entities()
	if len(entities) == 0 || len(metrics) == 0 {
		return ErrNoData
	}
	grey := color.Gray{Y: 140}
	plots := make([][]*plot.Plot, len(entities))
	for r, e := range entities {
		plots[r] = make([]*plot.Plot, len(metrics))
		for c, m := range metrics {
			cur, ok := pn.Frame(m)
			if !ok {
				return fmt.Errorf("year over year: no metric %s", m)
			}
			prev, ok := pn.Frame(m + suffix)
			if !ok {
				return fmt.Errorf("year over year: no metric %s", m+suffix)
			}
			p := newPlot(fmt.Sprintf("%s: %s", e, m), "", "")
			p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
			p.Legend.Left = true
			if s, ok := prev.Series(e); ok {
				l := Line{Label: "year ago", X: s.Dates(), Y: s.Floats()}
				if _, err := addLine(p, l, lineStyle{color: grey, dashes: []vg.Length{vg.Points(4), vg.Points(3)}, width: vg.Points(1)}, r == 0 && c == 0); err != nil {
					return err
				}
			}
			if s, ok := cur.Series(e); ok {
				l := Line{Label: "current", X: s.Dates(), Y: s.Floats()}
				if _, err := addLine(p, l, lineStyle{color: plotutil.Color(c), width: vg.Points(1.5), points: opt.Points}, r == 0 && c == 0); err != nil {
					return err
				}
			}
			plots[r][c] = p
		}
	}
	w, h := opt.size(6*float64(len(metrics)), 3*float64(len(entities)))
	return saveGrid(plots, path, w, h)
}
