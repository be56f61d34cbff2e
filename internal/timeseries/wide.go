package timeseries

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNonContiguous is returned when wide date columns are not consecutive days.
var ErrNonContiguous = errors.New("date columns are not consecutive days")

// WideRow is one row of a wide table: an entity, an optional sub-entity and
// one value per date column.
type WideRow struct {
	Entity    string
	SubEntity string
	Values    []Point
}

// Wide is a date-per-column table.
type Wide struct {
	Dates []time.Time
	Rows  []WideRow
}

// CheckDates verifies that the date columns are strictly consecutive days.
func (w *Wide) CheckDates() error {
	for i := 1; i < len(w.Dates); i++ {
		if DaysBetween(w.Dates[i-1], w.Dates[i]) != 1 {
			return fmt.Errorf("%w: %s follows %s", ErrNonContiguous,
				w.Dates[i].Format("2006-01-02"), w.Dates[i-1].Format("2006-01-02"))
		}
	}
	return nil
}

// Reshape melts a wide table into a long frame, summing all sub-entities of
// an entity into a single row per (entity, date). Missing cells are skipped
// by the sum; a date on which every sub-entity is missing stays missing.
func Reshape(w *Wide, metric string) (*Frame, error) {
	if err := w.CheckDates(); err != nil {
		return nil, err
	}
	sums := map[string][]Point{}
	var order []string
	for ri, r := range w.Rows {
		if len(r.Values) != len(w.Dates) {
			return nil, fmt.Errorf("row %d (%s): %d values for %d dates", ri+1, r.Entity, len(r.Values), len(w.Dates))
		}
		acc, ok := sums[r.Entity]
		if !ok {
			acc = make([]Point, len(w.Dates))
			sums[r.Entity] = acc
			order = append(order, r.Entity)
		}
		for i, p := range r.Values {
			if !p.Valid {
				continue
			}
			acc[i] = Val(acc[i].Value + p.Value)
		}
	}
	var start time.Time
	if len(w.Dates) > 0 {
		start = w.Dates[0]
	}
	series := make([]*Series, 0, len(order))
	for _, e := range order {
		series = append(series, &Series{Entity: e, Start: Truncate(start), Points: sums[e]})
	}
	return NewFrame(metric, series...)
}

// Wide pivots the frame back into date-per-column form with one row per
// entity. Columns span the union of all series' dates.
func (f *Frame) Wide() *Wide {
	from, to, ok := f.Span()
	if !ok {
		return &Wide{}
	}
	n := DaysBetween(from, to) + 1
	w := &Wide{Dates: make([]time.Time, n)}
	for i := range w.Dates {
		w.Dates[i] = from.AddDate(0, 0, i)
	}
	for _, e := range f.entities {
		s := f.series[e]
		vals := make([]Point, n)
		for i, d := range w.Dates {
			if p, ok := s.At(d); ok {
				vals[i] = p
			}
		}
		w.Rows = append(w.Rows, WideRow{Entity: e, Values: vals})
	}
	sort.Slice(w.Rows, func(i, j int) bool { return w.Rows[i].Entity < w.Rows[j].Entity })
	return w
}
