package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/series"

	"github.com/KaramelBytes/dataloom-cli/internal/dataset"
	"github.com/KaramelBytes/dataloom-cli/internal/export"
)

// ErrBins is returned for a bin specification that cannot describe
// increasing edges.
var ErrBins = errors.New("invalid bins")

// ParseBins accepts "start:stop:step" (stop excluded) or a comma list of
// edges, and returns strictly increasing edges.
func ParseBins(def string) ([]float64, error) {
	def = strings.TrimSpace(def)
	var edges []float64
	if parts := strings.Split(def, ":"); len(parts) == 3 {
		var v [3]float64
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrBins, def, err)
			}
			v[i] = f
		}
		start, stop, step := v[0], v[1], v[2]
		if step <= 0 {
			return nil, fmt.Errorf("%w: %q: step must be positive", ErrBins, def)
		}
		n := int(math.Ceil((stop - start) / step))
		for i := 0; i < n; i++ {
			edges = append(edges, start+float64(i)*step)
		}
	} else {
		for _, p := range strings.Split(def, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrBins, def, err)
			}
			edges = append(edges, f)
		}
	}
	if len(edges) < 2 {
		return nil, fmt.Errorf("%w: %q: need at least two edges", ErrBins, def)
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return nil, fmt.Errorf("%w: %q: edges must increase", ErrBins, def)
		}
	}
	return edges, nil
}

// Cut buckets numeric column col into right-closed intervals (lo, hi] and
// stores the interval labels in newCol. Values outside every interval,
// including the lowest edge itself, are missing. The returned levels list
// every interval in order, populated or not.
func Cut(t *dataset.Table, col string, edges []float64, newCol string) (*dataset.Table, []string, error) {
	if len(edges) < 2 {
		return nil, nil, fmt.Errorf("%w: need at least two edges", ErrBins)
	}
	vals, err := t.Floats(col)
	if err != nil {
		return nil, nil, err
	}
	levels := make([]string, len(edges)-1)
	for i := range levels {
		levels[i] = fmt.Sprintf("(%s, %s]", formatFloat(edges[i]), formatFloat(edges[i+1]))
	}
	labels := make([]string, len(vals))
	for i, v := range vals {
		labels[i] = dataset.NA
		if math.IsNaN(v) || v <= edges[0] || v > edges[len(edges)-1] {
			continue
		}
		// first edge >= v closes the bucket
		j := sort.SearchFloat64s(edges, v)
		labels[i] = levels[j-1]
	}
	out, err := t.WithColumn(series.New(labels, series.String, newCol))
	if err != nil {
		return nil, nil, fmt.Errorf("cut %s: %w", col, err)
	}
	return out, levels, nil
}

// SurvivalOptions selects the grouping for Survival.
type SurvivalOptions struct {
	// Target holds 1 for a survivor; other values and missing count only
	// toward the total.
	Target string
	By     []string
	// Levels fixes the full ordered level list of a key (as returned by
	// Cut). Keys with declared levels produce every combination, empty
	// ones included.
	Levels map[string][]string
}

// SurvivalRow aggregates one group.
type SurvivalRow struct {
	Keys      []string
	Survivors int
	// Died counts present targets other than 1.
	Died  int
	Total int
}

// Pct is the survivor share; 0 for an empty group.
func (r SurvivalRow) Pct() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Survivors) / float64(r.Total)
}

// SurvivalTable is the grouped result in key order.
type SurvivalTable struct {
	By   []string
	Rows []SurvivalRow
}

// Survival counts survivors and totals per group. Rows with a missing key
// are dropped.
func Survival(t *dataset.Table, opt SurvivalOptions) (*SurvivalTable, error) {
	if len(opt.By) == 0 {
		return nil, fmt.Errorf("survival: no group-by column")
	}
	target, err := t.Floats(opt.Target)
	if err != nil {
		return nil, fmt.Errorf("survival target: %w", err)
	}
	keys := make([][]string, len(opt.By))
	for i, k := range opt.By {
		if keys[i], err = keyStrings(t, k); err != nil {
			return nil, fmt.Errorf("survival by %s: %w", k, err)
		}
	}

	acc := map[string]*SurvivalRow{}
rows:
	for r := range target {
		parts := make([]string, len(opt.By))
		for i := range opt.By {
			if keys[i][r] == "" {
				continue rows
			}
			parts[i] = keys[i][r]
		}
		id := strings.Join(parts, "\x00")
		row := acc[id]
		if row == nil {
			row = &SurvivalRow{Keys: parts}
			acc[id] = row
		}
		row.Total++
		switch {
		case target[r] == 1:
			row.Survivors++
		case !math.IsNaN(target[r]):
			row.Died++
		}
	}

	out := &SurvivalTable{By: opt.By}
	levels := make([][]string, len(opt.By))
	declared := false
	for i, k := range opt.By {
		if lv, ok := opt.Levels[k]; ok {
			levels[i] = lv
			declared = true
			continue
		}
		levels[i] = observedLevels(t, k, keys[i])
	}
	if declared {
		for _, combo := range product(levels) {
			if row := acc[strings.Join(combo, "\x00")]; row != nil {
				out.Rows = append(out.Rows, *row)
			} else {
				out.Rows = append(out.Rows, SurvivalRow{Keys: combo})
			}
		}
		return out, nil
	}
	rank := make([]map[string]int, len(opt.By))
	for i, lv := range levels {
		rank[i] = map[string]int{}
		for j, v := range lv {
			rank[i][v] = j
		}
	}
	for _, row := range acc {
		out.Rows = append(out.Rows, *row)
	}
	sort.Slice(out.Rows, func(a, b int) bool {
		for i := range opt.By {
			ra, rb := rank[i][out.Rows[a].Keys[i]], rank[i][out.Rows[b].Keys[i]]
			if ra != rb {
				return ra < rb
			}
		}
		return false
	})
	return out, nil
}

// keyStrings renders a key column, "" for missing.
func keyStrings(t *dataset.Table, col string) ([]string, error) {
	if !t.Has(col) {
		return nil, fmt.Errorf("%w: %s", dataset.ErrMissingColumn, col)
	}
	s := t.DF.Col(col)
	out := make([]string, s.Len())
	for i := range out {
		out[i] = formatElem(s.Elem(i))
	}
	return out, nil
}

// observedLevels orders the present values, numerically for numeric columns.
func observedLevels(t *dataset.Table, col string, vals []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range vals {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	typ := t.DF.Col(col).Type()
	if typ == series.Int || typ == series.Float {
		sort.Slice(out, func(i, j int) bool {
			a, _ := strconv.ParseFloat(out[i], 64)
			b, _ := strconv.ParseFloat(out[j], 64)
			return a < b
		})
	} else {
		sort.Strings(out)
	}
	return out
}

func product(levels [][]string) [][]string {
	out := [][]string{{}}
	for _, lv := range levels {
		var next [][]string
		for _, prefix := range out {
			for _, v := range lv {
				combo := append(append([]string{}, prefix...), v)
				next = append(next, combo)
			}
		}
		out = next
	}
	return out
}

// Table renders the long form: keys, survivors_pct, survivors, total.
func (s *SurvivalTable) Table() *export.Table {
	header := append(append([]string{}, s.By...), "survivors_pct", "survivors", "total")
	out := &export.Table{Title: "survival by " + strings.Join(s.By, ", "), Header: header}
	for _, r := range s.Rows {
		row := append(append([]string{}, r.Keys...),
			strconv.FormatFloat(r.Pct(), 'f', 6, 64), strconv.Itoa(r.Survivors), strconv.Itoa(r.Total))
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Unstack pivots the first key into columns: one row per combination of the
// remaining keys, and "<metric> <level>" columns grouped by metric.
// A single-key table is returned in long form.
func (s *SurvivalTable) Unstack() *export.Table {
	if len(s.By) < 2 {
		return s.Table()
	}
	var outer []string
	seenOuter := map[string]bool{}
	var inner [][]string
	seenInner := map[string]bool{}
	cells := map[string]SurvivalRow{}
	for _, r := range s.Rows {
		if !seenOuter[r.Keys[0]] {
			seenOuter[r.Keys[0]] = true
			outer = append(outer, r.Keys[0])
		}
		id := strings.Join(r.Keys[1:], "\x00")
		if !seenInner[id] {
			seenInner[id] = true
			inner = append(inner, r.Keys[1:])
		}
		cells[r.Keys[0]+"\x01"+id] = r
	}
	header := append([]string{}, s.By[1:]...)
	for _, m := range []string{"survivors_pct", "survivors", "total"} {
		for _, o := range outer {
			header = append(header, m+" "+s.By[0]+"="+o)
		}
	}
	out := &export.Table{Title: "survival by " + strings.Join(s.By, ", "), Header: header}
	for _, keys := range inner {
		id := strings.Join(keys, "\x00")
		row := append([]string{}, keys...)
		for m := 0; m < 3; m++ {
			for _, o := range outer {
				r, ok := cells[o+"\x01"+id]
				switch {
				case !ok:
					row = append(row, "")
				case m == 0:
					row = append(row, strconv.FormatFloat(r.Pct(), 'f', 6, 64))
				case m == 1:
					row = append(row, strconv.Itoa(r.Survivors))
				default:
					row = append(row, strconv.Itoa(r.Total))
				}
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
