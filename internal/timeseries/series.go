// Package timeseries holds per-entity daily series and the table operations
// applied to them: reshaping, differencing, rolling windows, shifting and
// range slicing. Every operation returns a new value; inputs are never mutated.
package timeseries

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Point is a single observation. Valid is false for a missing value.
type Point struct {
	Value float64
	Valid bool
}

// Val returns a valid point.
func Val(v float64) Point { return Point{Value: v, Valid: true} }

// Missing returns a missing point.
func Missing() Point { return Point{} }

// Float returns the value, or NaN when missing.
func (p Point) Float() float64 {
	if !p.Valid {
		return math.NaN()
	}
	return p.Value
}

// Truncate normalizes t to midnight UTC of its calendar day.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)) / day)
}

// Series is a contiguous daily sequence for one entity. Point i is dated
// Start plus i days, so dates cannot have gaps or duplicates.
type Series struct {
	Entity string
	Start  time.Time
	Points []Point
}

// NewSeries builds a series starting at start (truncated to its day).
func NewSeries(entity string, start time.Time, points []Point) *Series {
	cp := make([]Point, len(points))
	copy(cp, points)
	return &Series{Entity: entity, Start: Truncate(start), Points: cp}
}

// Len returns the number of points.
func (s *Series) Len() int { return len(s.Points) }

// DateAt returns the date of point i.
func (s *Series) DateAt(i int) time.Time { return s.Start.AddDate(0, 0, i) }

// End returns the date of the last point. For an empty series it is the day before Start.
func (s *Series) End() time.Time { return s.DateAt(len(s.Points) - 1) }

// IndexOf returns the position of date d within the series.
func (s *Series) IndexOf(d time.Time) (int, bool) {
	i := DaysBetween(s.Start, d)
	if i < 0 || i >= len(s.Points) {
		return i, false
	}
	return i, true
}

// At returns the point dated d. ok is false when d is outside the series.
func (s *Series) At(d time.Time) (Point, bool) {
	i, ok := s.IndexOf(d)
	if !ok {
		return Missing(), false
	}
	return s.Points[i], true
}

// Dates returns the dates of all points.
func (s *Series) Dates() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i := range s.Points {
		out[i] = s.DateAt(i)
	}
	return out
}

// Floats returns the values with NaN for missing points.
func (s *Series) Floats() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Float()
	}
	return out
}

// Diff returns successive differences. The first point, and any point whose
// predecessor or itself is missing, is missing.
func (s *Series) Diff() *Series {
	out := make([]Point, len(s.Points))
	for i := 1; i < len(s.Points); i++ {
		prev, cur := s.Points[i-1], s.Points[i]
		if prev.Valid && cur.Valid {
			out[i] = Val(cur.Value - prev.Value)
		}
	}
	return &Series{Entity: s.Entity, Start: s.Start, Points: out}
}

// Rolling returns the trailing n-point aggregate aligned to the last point
// of each window. A window with fewer than n valid points yields a missing value.
func (s *Series) Rolling(n int, agg Agg) *Series {
	out := make([]Point, len(s.Points))
	valid := 0
	for i, p := range s.Points {
		if p.Valid {
			valid++
		}
		if i >= n && s.Points[i-n].Valid {
			valid--
		}
		if i < n-1 || valid < n {
			continue
		}
		// exact sum per window, no running total
		var sum float64
		for _, w := range s.Points[i-n+1 : i+1] {
			sum += w.Value
		}
		out[i] = Val(agg.apply(sum, n))
	}
	return &Series{Entity: s.Entity, Start: s.Start, Points: out}
}

// Shift re-dates the series periods days later, so the value observed at t
// appears at t+periods. Negative periods shift earlier.
func (s *Series) Shift(periods int) *Series {
	cp := make([]Point, len(s.Points))
	copy(cp, s.Points)
	return &Series{Entity: s.Entity, Start: s.Start.AddDate(0, 0, periods), Points: cp}
}

// Between clips the series to [from, to] inclusive. ok is false when the
// ranges do not overlap.
func (s *Series) Between(from, to time.Time) (*Series, bool) {
	lo := DaysBetween(s.Start, from)
	hi := DaysBetween(s.Start, to)
	if lo < 0 {
		lo = 0
	}
	if hi >= len(s.Points) {
		hi = len(s.Points) - 1
	}
	if lo > hi {
		return nil, false
	}
	cp := make([]Point, hi-lo+1)
	copy(cp, s.Points[lo:hi+1])
	return &Series{Entity: s.Entity, Start: s.DateAt(lo), Points: cp}, true
}

// Agg selects the statistic computed over a rolling window.
type Agg int

const (
	Mean Agg = iota
	Sum
)

// ParseAgg maps "mean" or "sum" to an Agg.
func ParseAgg(s string) (Agg, bool) {
	switch s {
	case "", "mean", "avg":
		return Mean, true
	case "sum":
		return Sum, true
	}
	return Mean, false
}

func (a Agg) String() string {
	if a == Sum {
		return "sum"
	}
	return "mean"
}

func (a Agg) apply(sum float64, n int) float64 {
	if a == Sum {
		return sum
	}
	return sum / float64(n)
}
