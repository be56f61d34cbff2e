package timeseries

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrDuplicateEntity is returned when a frame receives two series for one entity.
	ErrDuplicateEntity = errors.New("duplicate entity")
	// ErrBadWindow is returned for a rolling window size below 1.
	ErrBadWindow = errors.New("window size must be at least 1")
)

// Frame is a long table of one metric keyed by (entity, date).
type Frame struct {
	metric   string
	entities []string
	series   map[string]*Series
}

// NewFrame builds a frame from per-entity series.
func NewFrame(metric string, series ...*Series) (*Frame, error) {
	f := &Frame{metric: metric, series: make(map[string]*Series, len(series))}
	for _, s := range series {
		if _, dup := f.series[s.Entity]; dup {
			return nil, fmt.Errorf("%w: %q in %s", ErrDuplicateEntity, s.Entity, metric)
		}
		f.series[s.Entity] = s
		f.entities = append(f.entities, s.Entity)
	}
	sort.Strings(f.entities)
	return f, nil
}

func (f *Frame) derive(metric string, fn func(*Series) (*Series, bool)) *Frame {
	out := &Frame{metric: metric, series: make(map[string]*Series, len(f.series))}
	for _, e := range f.entities {
		s, ok := fn(f.series[e])
		if !ok {
			continue
		}
		out.series[e] = s
		out.entities = append(out.entities, e)
	}
	return out
}

// Metric returns the name of the measured quantity.
func (f *Frame) Metric() string { return f.metric }

// Entities returns the sorted entity names.
func (f *Frame) Entities() []string {
	out := make([]string, len(f.entities))
	copy(out, f.entities)
	return out
}

// Series returns the series of one entity.
func (f *Frame) Series(entity string) (*Series, bool) {
	s, ok := f.series[entity]
	return s, ok
}

// At looks up the composite key (entity, date).
func (f *Frame) At(entity string, d time.Time) (Point, bool) {
	s, ok := f.series[entity]
	if !ok {
		return Missing(), false
	}
	return s.At(d)
}

// Span returns the earliest and latest dates present in any series.
func (f *Frame) Span() (from, to time.Time, ok bool) {
	for _, e := range f.entities {
		s := f.series[e]
		if s.Len() == 0 {
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

// Rename returns the same data under another metric name.
func (f *Frame) Rename(metric string) *Frame {
	return f.derive(metric, func(s *Series) (*Series, bool) { return s, true })
}

// Diff converts cumulative totals into per-day increments, entity by entity.
func (f *Frame) Diff() *Frame {
	return f.derive(f.metric, func(s *Series) (*Series, bool) { return s.Diff(), true })
}

// Rolling computes the trailing n-day aggregate per entity.
func (f *Frame) Rolling(n int, agg Agg) (*Frame, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrBadWindow, n)
	}
	return f.derive(f.metric, func(s *Series) (*Series, bool) { return s.Rolling(n, agg), true }), nil
}

// LookbackFrom returns the first date that must be loaded so that an n-day
// trailing window is fully populated on from.
func LookbackFrom(from time.Time, n int) time.Time {
	if n < 1 {
		n = 1
	}
	return Truncate(from).AddDate(0, 0, -(n - 1))
}

// RollingBetween computes the n-day trailing aggregate for display on
// [from, to]. Only the n-1 days before from are read as lookback, and the
// result is clipped to [from, to].
func (f *Frame) RollingBetween(n int, agg Agg, from, to time.Time) (*Frame, error) {
	src := f.Between(LookbackFrom(from, n), to)
	rolled, err := src.Rolling(n, agg)
	if err != nil {
		return nil, err
	}
	return rolled.Between(from, to), nil
}

// Shift re-dates every series periods days later.
func (f *Frame) Shift(periods int) *Frame {
	return f.derive(f.metric, func(s *Series) (*Series, bool) { return s.Shift(periods), true })
}

// Between clips all series to [from, to]; entities with no data in range are dropped.
func (f *Frame) Between(from, to time.Time) *Frame {
	return f.derive(f.metric, func(s *Series) (*Series, bool) { return s.Between(from, to) })
}

// Select keeps the named entities. Names not present in the frame are returned as missing.
func (f *Frame) Select(entities ...string) (*Frame, []string) {
	want := make(map[string]bool, len(entities))
	var missing []string
	for _, e := range entities {
		want[e] = true
		if _, ok := f.series[e]; !ok {
			missing = append(missing, e)
		}
	}
	return f.derive(f.metric, func(s *Series) (*Series, bool) { return s, want[s.Entity] }), missing
}

// Map applies fn to every point and stores the result under metric.
func (f *Frame) Map(metric string, fn func(entity string, p Point) Point) *Frame {
	return f.derive(metric, func(s *Series) (*Series, bool) {
		out := make([]Point, len(s.Points))
		for i, p := range s.Points {
			out[i] = fn(s.Entity, p)
		}
		return &Series{Entity: s.Entity, Start: s.Start, Points: out}, true
	})
}

// Row is one (entity, date, value) record of a long table.
type Row struct {
	Entity string
	Date   time.Time
	Point  Point
}

// Rows flattens the frame ordered by entity then date.
func (f *Frame) Rows() []Row {
	var out []Row
	for _, e := range f.entities {
		s := f.series[e]
		for i, p := range s.Points {
			out = append(out, Row{Entity: e, Date: s.DateAt(i), Point: p})
		}
	}
	return out
}
