// Package analysis profiles loaded tables and computes the grouped summaries
// used by the describe, survival and quantiles commands.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/dataloom-cli/internal/dataset"
	"github.com/KaramelBytes/dataloom-cli/internal/export"
)

// Options controls the dataset profile.
type Options struct {
	// SampleRows determines how many leading rows to include in the report.
	SampleRows int
	// GroupBy computes per-group summaries for the given column names.
	GroupBy []string
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// Outlier detection via robust Z-score (MAD). If Outliers is true, counts |z|>threshold.
	Outliers         bool
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for dataset analysis.
func DefaultOptions() Options {
	return Options{
		SampleRows:       5,
		OutlierThreshold: 3.5,
	}
}

// Column kinds reported by Describe.
const (
	KindNumeric     = "numeric"
	KindDatetime    = "datetime"
	KindCategorical = "categorical"
	KindText        = "text"
	KindEmpty       = "empty"
)

// Report is a markdown-friendly analysis of a tabular dataset.
type Report struct {
	Name     string
	Schema   string
	Rows     int
	Cols     []ColumnSummary
	Header   []string
	Samples  [][]string
	Warnings []string
	Groups   []GroupResult
	Corr     *CorrMatrix
}

// ColumnSummary captures the column kind and statistics.
type ColumnSummary struct {
	Name    string
	Kind    string
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	// Datetime range, ISO dates
	First, Last string
	// Categorical top values
	TopValues    []CategoryCount
	ExampleTexts []string
}

type CategoryCount struct {
	Value string
	Count int
}

// GroupResult captures aggregated metrics per group key.
type GroupResult struct {
	Key     string
	Size    int
	Metrics map[string]NumSummary // by column name
}

type NumSummary struct {
	Count          int
	Min, Max, Mean float64
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64 // row-major, Values[i][j]
}

// Describe profiles every column of t.
func Describe(t *dataset.Table, opt Options) (*Report, error) {
	rep := &Report{Name: t.Name, Rows: t.Rows(), Header: t.Columns()}
	if t.Schema != nil {
		rep.Schema = t.Schema.Name
	}
	sampleRows := opt.SampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}
	rep.Samples = t.Head(sampleRows)

	var numCols []string
	for _, name := range t.Columns() {
		s := t.DF.Col(name)
		cs := ColumnSummary{Name: name}
		switch {
		case s.Type() == series.Int || s.Type() == series.Float:
			vals := present(s.Float())
			cs.NonNull = len(vals)
			cs.Missing = s.Len() - cs.NonNull
			if len(vals) == 0 {
				cs.Kind = KindEmpty
				break
			}
			cs.Kind = KindNumeric
			numCols = append(numCols, name)
			summarize(&cs, vals)
			if opt.Outliers {
				outliers(&cs, vals, opt.OutlierThreshold)
			}
		case isDate(t, name):
			vals, _ := t.Strings(name)
			profileDates(&cs, vals)
		default:
			vals, _ := t.Strings(name)
			profileText(&cs, s, vals)
		}
		rep.Cols = append(rep.Cols, cs)
	}

	if len(t.Degraded) > 0 {
		rep.Warnings = append(rep.Warnings, "unparsable cells loaded as missing: "+strings.Join(t.DegradedSummary(), ", "))
	}

	if len(opt.GroupBy) > 0 {
		groups, err := groupSummaries(t, opt.GroupBy, numCols)
		if err != nil {
			return nil, err
		}
		rep.Groups = groups
	}

	if opt.Correlations && len(numCols) >= 2 {
		cols := make([][]float64, len(numCols))
		for i, name := range numCols {
			cols[i], _ = t.Floats(name)
		}
		n := len(numCols)
		mat := make([][]float64, n)
		for a := range mat {
			mat[a] = make([]float64, n)
			mat[a][a] = 1
		}
		for a := 0; a < n; a++ {
			for b := a + 1; b < n; b++ {
				r := pairCorrelation(cols[a], cols[b])
				mat[a][b], mat[b][a] = r, r
			}
		}
		rep.Corr = &CorrMatrix{Columns: numCols, Values: mat}
	}
	return rep, nil
}

func isDate(t *dataset.Table, name string) bool {
	if t.Schema == nil {
		return false
	}
	c, ok := t.Schema.Column(name)
	return ok && c.Type == dataset.TypeDate
}

// present drops NaN.
func present(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func summarize(cs *ColumnSummary, vals []float64) {
	cs.Min = floats.Min(vals)
	cs.Max = floats.Max(vals)
	if len(vals) > 1 {
		cs.Mean, cs.Std = stat.MeanStdDev(vals, nil)
	} else {
		cs.Mean = vals[0]
	}
	seen := map[float64]struct{}{}
	for _, v := range vals {
		seen[v] = struct{}{}
	}
	cs.Unique = len(seen)
}

func outliers(cs *ColumnSummary, vals []float64, thr float64) {
	if len(vals) < 8 {
		return
	}
	if thr <= 0 {
		thr = 3.5
	}
	median, mad := medianMAD(vals)
	cs.OutlierThreshold = thr
	if mad == 0 {
		return
	}
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - median) / mad)
		if az > thr {
			cs.OutliersCount++
		}
		if az > cs.OutliersMaxAbsZ {
			cs.OutliersMaxAbsZ = az
		}
	}
}

func profileDates(cs *ColumnSummary, vals []string) {
	cs.Kind = KindDatetime
	seen := map[string]struct{}{}
	for _, v := range vals {
		if v == "" {
			cs.Missing++
			continue
		}
		cs.NonNull++
		seen[v] = struct{}{}
		if cs.First == "" || v < cs.First {
			cs.First = v
		}
		if v > cs.Last {
			cs.Last = v
		}
	}
	cs.Unique = len(seen)
	if cs.NonNull == 0 {
		cs.Kind = KindEmpty
	}
}

func profileText(cs *ColumnSummary, s series.Series, vals []string) {
	cats := map[string]int{}
	long := false
	for i, v := range vals {
		if s.Elem(i).IsNA() {
			cs.Missing++
			continue
		}
		cs.NonNull++
		cats[v]++
		if len(v) > 64 {
			long = true
		}
		if len(cs.ExampleTexts) < 3 {
			cs.ExampleTexts = append(cs.ExampleTexts, v)
		}
	}
	cs.Unique = len(cats)
	switch {
	case cs.NonNull == 0:
		cs.Kind = KindEmpty
		return
	case !long && (cs.Unique <= 50 || cs.Unique*2 <= cs.NonNull):
		cs.Kind = KindCategorical
	default:
		cs.Kind = KindText
		return
	}
	cs.ExampleTexts = nil
	tops := make([]CategoryCount, 0, len(cats))
	for k, v := range cats {
		tops = append(tops, CategoryCount{Value: k, Count: v})
	}
	sortCounts(tops)
	if len(tops) > 8 {
		tops = tops[:8]
	}
	cs.TopValues = tops
}

func sortCounts(c []CategoryCount) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Count == c[j].Count {
			return c[i].Value < c[j].Value
		}
		return c[i].Count > c[j].Count
	})
}

// pairCorrelation computes Pearson r over rows where both values are present.
func pairCorrelation(x, y []float64) float64 {
	var xs, ys []float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 {
		return 0
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// groupSummaries splits t with the dataframe GroupBy after dropping rows
// with a missing key.
func groupSummaries(t *dataset.Table, keys, numCols []string) ([]GroupResult, error) {
	kept := t
	for _, k := range keys {
		var err error
		if kept, err = kept.Where(k, dataset.NotNA); err != nil {
			return nil, fmt.Errorf("group by %s: %w", k, err)
		}
	}
	if kept.Rows() == 0 {
		return nil, nil
	}
	g := kept.DF.GroupBy(keys...)
	if g.Err != nil {
		return nil, fmt.Errorf("group by: %w", g.Err)
	}
	isKey := map[string]bool{}
	for _, k := range keys {
		isKey[k] = true
	}
	var out []GroupResult
	for _, df := range g.GetGroups() {
		gr := GroupResult{Key: groupKey(df, keys), Size: df.Nrow(), Metrics: map[string]NumSummary{}}
		for _, name := range numCols {
			if isKey[name] {
				continue
			}
			vals := present(df.Col(name).Float())
			if len(vals) == 0 {
				continue
			}
			gr.Metrics[name] = NumSummary{Count: len(vals), Min: floats.Min(vals), Max: floats.Max(vals), Mean: stat.Mean(vals, nil)}
		}
		out = append(out, gr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size == out[j].Size {
			return out[i].Key < out[j].Key
		}
		return out[i].Size > out[j].Size
	})
	if len(out) > 20 {
		out = out[:20]
	}
	return out, nil
}

func groupKey(df dataframe.DataFrame, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, formatElem(df.Col(k).Elem(0)))
	}
	return strings.Join(parts, " | ")
}

// formatElem renders a cell, dropping the fixed six decimals the dataframe
// layer uses for floats.
func formatElem(e series.Element) string {
	if e.IsNA() {
		return ""
	}
	if e.Type() == series.Float {
		return formatFloat(e.Float())
	}
	return e.String()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DescribeTable returns count/mean/std/min/quartiles/max per numeric column,
// quartiles by linear interpolation.
func DescribeTable(t *dataset.Table) *export.Table {
	stats := []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}
	out := &export.Table{Title: "describe", Header: []string{""}}
	var cols [][]string
	for _, name := range t.Columns() {
		s := t.DF.Col(name)
		if s.Type() != series.Int && s.Type() != series.Float {
			continue
		}
		vals := present(s.Float())
		sort.Float64s(vals)
		col := make([]string, len(stats))
		col[0] = strconv.Itoa(len(vals))
		if len(vals) > 0 {
			mean, std := vals[0], math.NaN()
			if len(vals) > 1 {
				mean, std = stat.MeanStdDev(vals, nil)
			}
			for i, v := range []float64{mean, std, vals[0], quantile(vals, 0.25), quantile(vals, 0.5), quantile(vals, 0.75), vals[len(vals)-1]} {
				col[i+1] = fmt6(v)
			}
		}
		out.Header = append(out.Header, name)
		cols = append(cols, col)
	}
	for i, st := range stats {
		row := []string{st}
		for _, c := range cols {
			row = append(row, c[i])
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func fmt6(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Markdown renders a compact report suitable for terminals or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	if r.Schema != "" {
		b.WriteString(fmt.Sprintf("Schema: %s\n", r.Schema))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case KindNumeric:
			b.WriteString(fmt.Sprintf(": min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
			if c.OutlierThreshold > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
				if c.OutliersMaxAbsZ > 0 {
					b.WriteString(fmt.Sprintf(" (max |z|≈%.2f)", c.OutliersMaxAbsZ))
				}
			}
		case KindDatetime:
			b.WriteString(fmt.Sprintf(": %s to %s", c.First, c.Last))
		case KindCategorical:
			if len(c.TopValues) > 0 {
				b.WriteString(": top ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		case KindText:
			if len(c.ExampleTexts) > 0 {
				b.WriteString(": e.g., ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(r.Groups) > 0 {
		b.WriteString("\n[GROUP-BY SUMMARY]\n")
		for _, g := range r.Groups {
			b.WriteString(fmt.Sprintf("- %s (n=%d)\n", g.Key, g.Size))
			keys := make([]string, 0, len(g.Metrics))
			for k := range g.Metrics {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			if len(keys) > 6 {
				keys = keys[:6]
			}
			for _, k := range keys {
				m := g.Metrics[k]
				b.WriteString(fmt.Sprintf("  • %s: mean %.4g (min %.4g, max %.4g)\n", k, m.Mean, m.Min, m.Max))
			}
		}
	}
	if r.Corr != nil && len(r.Corr.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		type pr struct {
			A, B string
			R    float64
		}
		var pairs []pr
		n := len(r.Corr.Columns)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				pairs = append(pairs, pr{A: r.Corr.Columns[i], B: r.Corr.Columns[j], R: r.Corr.Values[i][j]})
			}
		}
		sort.Slice(pairs, func(i, j int) bool {
			ai := math.Abs(pairs[i].R)
			aj := math.Abs(pairs[j].R)
			if ai == aj {
				return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
			}
			return ai > aj
		})
		if len(pairs) > 10 {
			pairs = pairs[:10]
		}
		for _, p := range pairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", p.A, p.B, p.R))
		}
	}
	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		rows := make([][]string, len(r.Samples))
		for i, row := range r.Samples {
			rows[i] = make([]string, len(row))
			for j, v := range row {
				if len(v) > 80 {
					v = v[:77] + "..."
				}
				rows[i][j] = v
			}
		}
		head := &export.Table{Header: r.Header, Rows: rows}
		b.WriteString(head.Markdown())
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
