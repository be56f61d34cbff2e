package timeseries

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ErrDuplicateMetric is returned when two frames of a panel share a metric name.
var ErrDuplicateMetric = errors.New("duplicate metric")

// Panel groups several metrics measured over the same (entity, date) keys.
type Panel struct {
	metrics []string
	frames  map[string]*Frame
}

// NewPanel joins frames by their (entity, date) keys.
func NewPanel(frames ...*Frame) (*Panel, error) {
	p := &Panel{frames: make(map[string]*Frame, len(frames))}
	for _, f := range frames {
		if _, dup := p.frames[f.metric]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMetric, f.metric)
		}
		p.frames[f.metric] = f
		p.metrics = append(p.metrics, f.metric)
	}
	return p, nil
}

// Metrics returns metric names in insertion order.
func (p *Panel) Metrics() []string {
	out := make([]string, len(p.metrics))
	copy(out, p.metrics)
	return out
}

// Frame returns the frame of one metric.
func (p *Panel) Frame(metric string) (*Frame, bool) {
	f, ok := p.frames[metric]
	return f, ok
}

// Entities returns the sorted union of entities over all metrics.
func (p *Panel) Entities() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range p.metrics {
		for _, e := range p.frames[m].entities {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	sort.Strings(out)
	return out
}

// With returns a panel extended by frames.
func (p *Panel) With(frames ...*Frame) (*Panel, error) {
	all := make([]*Frame, 0, len(p.metrics)+len(frames))
	for _, m := range p.metrics {
		all = append(all, p.frames[m])
	}
	return NewPanel(append(all, frames...)...)
}

// Restrict keeps only the given entities in every metric.
func (p *Panel) Restrict(entities []string) *Panel {
	out, _ := p.Apply(func(f *Frame) (*Frame, error) {
		sel, _ := f.Select(entities...)
		return sel, nil
	})
	return out
}

// Apply transforms every metric frame with fn.
func (p *Panel) Apply(fn func(*Frame) (*Frame, error)) (*Panel, error) {
	out := &Panel{frames: make(map[string]*Frame, len(p.frames))}
	for _, m := range p.metrics {
		f, err := fn(p.frames[m])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		out.frames[m] = f.Rename(m)
		out.metrics = append(out.metrics, m)
	}
	return out, nil
}

// JoinSuffix adds the metrics of other under "<metric><suffix>" names.
func (p *Panel) JoinSuffix(other *Panel, suffix string) (*Panel, error) {
	extra := make([]*Frame, 0, len(other.metrics))
	for _, m := range other.metrics {
		extra = append(extra, other.frames[m].Rename(m+suffix))
	}
	return p.With(extra...)
}

// span returns the date range covered by entity e across all metrics.
func (p *Panel) span(e string) (from, to time.Time, ok bool) {
	for _, m := range p.metrics {
		s, has := p.frames[m].series[e]
		if !has || s.Len() == 0 {
			continue
		}
		if !ok || s.Start.Before(from) {
			from = s.Start
		}
		if !ok || s.End().After(to) {
			to = s.End()
		}
		ok = true
	}
	return from, to, ok
}

// Records renders the panel as a long table: entity, date, then one column
// per metric. Missing values are empty cells.
func (p *Panel) Records(dateLayout string) (header []string, rows [][]string) {
	header = append([]string{"entity", "date"}, p.metrics...)
	for _, e := range p.Entities() {
		from, to, ok := p.span(e)
		if !ok {
			continue
		}
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			row := make([]string, 0, len(header))
			row = append(row, e, d.Format(dateLayout))
			for _, m := range p.metrics {
				pt, _ := p.frames[m].At(e, d)
				row = append(row, FormatPoint(pt))
			}
			rows = append(rows, row)
		}
	}
	return header, rows
}

// Pivot unstacks one metric into a date-per-row, entity-per-column table.
func (p *Panel) Pivot(metric, dateLayout string) (header []string, rows [][]string, err error) {
	f, ok := p.frames[metric]
	if !ok {
		return nil, nil, fmt.Errorf("unknown metric %q", metric)
	}
	header = append([]string{"date"}, f.entities...)
	w := f.Wide()
	for i, d := range w.Dates {
		row := make([]string, 0, len(header))
		row = append(row, d.Format(dateLayout))
		for _, r := range w.Rows {
			row = append(row, FormatPoint(r.Values[i]))
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// FormatPoint renders a value compactly; missing values render empty.
func FormatPoint(p Point) string {
	if !p.Valid {
		return ""
	}
	return strconv.FormatFloat(p.Value, 'f', -1, 64)
}
