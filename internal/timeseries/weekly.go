package timeseries

import "time"

// WeekStart returns the Monday of t's week.
func WeekStart(t time.Time) time.Time {
	t = Truncate(t)
	return t.AddDate(0, 0, -((int(t.Weekday()) + 6) % 7))
}

// Weekly sums daily values over Monday to Sunday weeks and labels each week
// by its Sunday. Weeks run from the week containing from up to, but not
// including, the week containing to. A week with a missing or absent day is
// missing.
func (f *Frame) Weekly(from, to time.Time) []Row {
	first, stop := WeekStart(from), WeekStart(to)
	var out []Row
	for _, e := range f.entities {
		s := f.series[e]
		for w := first; w.Before(stop); w = w.AddDate(0, 0, 7) {
			var sum float64
			ok := true
			for d := 0; d < 7 && ok; d++ {
				p, has := s.At(w.AddDate(0, 0, d))
				ok = has && p.Valid
				sum += p.Value
			}
			pt := Missing()
			if ok {
				pt = Val(sum)
			}
			out = append(out, Row{Entity: e, Date: w.AddDate(0, 0, 6), Point: pt})
		}
	}
	return out
}
