package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/KaramelBytes/dataloom-cli/internal/dataset"
	"github.com/KaramelBytes/dataloom-cli/internal/export"
)

// DefaultPercentiles are the levels reported when none are given.
var DefaultPercentiles = []float64{0.01, 0.05, 0.25, 0.5, 0.75, 0.95, 0.99}

// PercentileLabel names a level the way result columns are headed: 0.5 is "p50".
func PercentileLabel(p float64) string {
	return "p" + strconv.FormatFloat(math.Round(p*1e6)/1e4, 'f', -1, 64)
}

// QuantileOptions selects the grouped quantile table.
type QuantileOptions struct {
	By  string
	Col string
	Ps  []float64
	// SortBy names a percentile column ("p50"); rows sort on it descending.
	// Empty keeps group order.
	SortBy string
	// Top keeps the first n rows after sorting; 0 keeps all.
	Top int
}

// Quantiles computes per-group quantiles of Col. Missing values and rows
// with a missing key are skipped.
func Quantiles(t *dataset.Table, opt QuantileOptions) (*export.Table, error) {
	ps := opt.Ps
	if len(ps) == 0 {
		ps = DefaultPercentiles
	}
	labels := make([]string, len(ps))
	sortIdx := -1
	for i, p := range ps {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("quantile %v outside [0, 1]", p)
		}
		labels[i] = PercentileLabel(p)
		if labels[i] == opt.SortBy {
			sortIdx = i
		}
	}
	if opt.SortBy != "" && sortIdx < 0 {
		return nil, fmt.Errorf("sort column %s is not one of %s", opt.SortBy, strings.Join(labels, ", "))
	}
	vals, err := t.Floats(opt.Col)
	if err != nil {
		return nil, err
	}
	keys, err := keyStrings(t, opt.By)
	if err != nil {
		return nil, err
	}
	groups := map[string][]float64{}
	for i, k := range keys {
		if k == "" || math.IsNaN(vals[i]) {
			continue
		}
		groups[k] = append(groups[k], vals[i])
	}

	type row struct {
		key string
		q   []float64
	}
	var rows []row
	for _, k := range observedLevels(t, opt.By, keys) {
		g := groups[k]
		if len(g) == 0 {
			continue
		}
		sort.Float64s(g)
		r := row{key: k, q: make([]float64, len(ps))}
		for i, p := range ps {
			r.q[i] = quantile(g, p)
		}
		rows = append(rows, r)
	}
	if sortIdx >= 0 {
		sort.SliceStable(rows, func(a, b int) bool { return rows[a].q[sortIdx] > rows[b].q[sortIdx] })
	}
	if opt.Top > 0 && len(rows) > opt.Top {
		rows = rows[:opt.Top]
	}

	out := &export.Table{
		Title:  fmt.Sprintf("%s quantiles by %s", opt.Col, opt.By),
		Header: append([]string{opt.By}, labels...),
	}
	for _, r := range rows {
		cells := []string{r.key}
		for _, q := range r.q {
			cells = append(cells, strconv.FormatFloat(q, 'f', 6, 64))
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// ValueCounts counts each present value of col, most frequent first. With
// normalize the counts become shares of the present values.
func ValueCounts(t *dataset.Table, col string, normalize bool) (*export.Table, error) {
	keys, err := keyStrings(t, col)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	total := 0
	for _, k := range keys {
		if k == "" {
			continue
		}
		counts[k]++
		total++
	}
	cc := make([]CategoryCount, 0, len(counts))
	for k, n := range counts {
		cc = append(cc, CategoryCount{Value: k, Count: n})
	}
	sortCounts(cc)
	metric := "count"
	if normalize {
		metric = "proportion"
	}
	out := &export.Table{Title: col + " value counts", Header: []string{col, metric}}
	for _, c := range cc {
		v := strconv.Itoa(c.Count)
		if normalize {
			v = strconv.FormatFloat(float64(c.Count)/float64(total), 'f', 6, 64)
		}
		out.Rows = append(out.Rows, []string{c.Value, v})
	}
	return out, nil
}

// NLargest returns the n rows with the largest values of col, largest first.
// Rows where col is missing are never selected.
func NLargest(t *dataset.Table, col string, n int) (*dataset.Table, error) {
	if n <= 0 {
		return nil, fmt.Errorf("nlargest: n must be positive, got %d", n)
	}
	kept, err := t.Where(col, dataset.NotNA)
	if err != nil {
		return nil, err
	}
	if kept.Rows() == 0 {
		return kept, nil
	}
	if s := kept.DF.Col(col).Type(); s != series.Int && s != series.Float {
		return nil, fmt.Errorf("column %s is not numeric", col)
	}
	df := kept.DF.Arrange(dataframe.RevSort(col))
	if df.Err != nil {
		return nil, fmt.Errorf("sort by %s: %w", col, df.Err)
	}
	if n > df.Nrow() {
		n = df.Nrow()
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	cp := *kept
	cp.DF = df.Subset(idx)
	if cp.DF.Err != nil {
		return nil, cp.DF.Err
	}
	return &cp, nil
}
