// Package dataset loads flat tabular files into typed dataframes according to
// a column schema.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ErrMissingColumn is returned when a required column is absent from the input.
var ErrMissingColumn = errors.New("missing expected column")

// defaultNA lists raw cell values read as missing in every column.
var defaultNA = []string{"", "NA", "N/A", "NaN", "nan", "null", "<nil>", "?"}

// Table is a loaded dataset.
type Table struct {
	Name   string
	Schema *Schema
	DF     dataframe.DataFrame
	// Degraded counts, per declared column, the present cells that failed to
	// parse and were loaded as missing.
	Degraded map[string]int
}

// Load reads path with the registered reader for its extension and types its
// columns according to schema (nil infers every column).
func Load(path string, schema *Schema, opt ReadOptions) (*Table, error) {
	if schema == nil {
		schema = &Schema{Name: "inferred"}
	}
	if opt.Delimiter == 0 && schema.Delimiter != "" {
		opt.Delimiter = []rune(schema.Delimiter)[0]
	}
	recs, err := ReadRecords(path, opt)
	if err != nil {
		return nil, err
	}
	t, err := FromRecords(filepath.Base(path), recs, schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// FromRecords builds a table from raw records.
func FromRecords(name string, recs [][]string, schema *Schema) (*Table, error) {
	if schema == nil {
		schema = &Schema{Name: "inferred"}
	}
	var header []string
	if schema.HasHeader() {
		if len(recs) == 0 {
			return nil, fmt.Errorf("empty table")
		}
		header, recs = recs[0], recs[1:]
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
	} else {
		header = schema.Names
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("table has a header but no rows")
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	var missing []string
	for _, c := range schema.Columns {
		if _, ok := index[c.Name]; !ok && c.Required {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	na := map[string]bool{}
	for _, v := range append(append([]string{}, defaultNA...), schema.NA...) {
		na[v] = true
	}
	conv := make([]converter, len(header))
	types := map[string]series.Type{}
	for _, c := range schema.Columns {
		i, ok := index[c.Name]
		if !ok {
			continue
		}
		conv[i] = converterFor(c)
		types[c.Name] = seriesType(c.Type)
	}

	t := &Table{Name: name, Schema: schema, Degraded: map[string]int{}}
	rows := make([][]string, 0, len(recs)+1)
	rows = append(rows, header)
	for ri, rec := range recs {
		if len(rec) > len(header) {
			return nil, fmt.Errorf("row %d: %d fields, header has %d", ri+1, len(rec), len(header))
		}
		row := make([]string, len(header))
		for i := range header {
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			if na[v] {
				row[i] = NA
				continue
			}
			if conv[i] == nil {
				row[i] = v
				continue
			}
			out, ok := conv[i](v)
			if !ok {
				t.Degraded[header[i]]++
			}
			row[i] = out
		}
		rows = append(rows, row)
	}

	t.DF = dataframe.LoadRecords(rows,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(types),
		dataframe.NaNValues([]string{NA}),
	)
	if t.DF.Err != nil {
		return nil, fmt.Errorf("build dataframe: %w", t.DF.Err)
	}
	return t, nil
}

func seriesType(typ string) series.Type {
	switch typ {
	case TypeFloat, TypeDollar:
		return series.Float
	case TypeInt:
		return series.Int
	case TypeBool:
		return series.Bool
	}
	return series.String
}

// Rows returns the number of rows.
func (t *Table) Rows() int { return t.DF.Nrow() }

// Columns returns column names in file order.
func (t *Table) Columns() []string { return t.DF.Names() }

// Has reports whether the table has column name.
func (t *Table) Has(name string) bool {
	for _, n := range t.DF.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func (t *Table) col(name string) (series.Series, error) {
	if !t.Has(name) {
		return series.Series{}, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return t.DF.Col(name), nil
}

// Floats returns a numeric column with NaN for missing cells.
func (t *Table) Floats(name string) ([]float64, error) {
	s, err := t.col(name)
	if err != nil {
		return nil, err
	}
	if s.Type() == series.String {
		return nil, fmt.Errorf("column %s is not numeric", name)
	}
	return s.Float(), nil
}

// Strings returns a column as text; missing cells are "".
func (t *Table) Strings(name string) ([]string, error) {
	s, err := t.col(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, s.Len())
	for i := range out {
		e := s.Elem(i)
		if e.IsNA() {
			continue
		}
		out[i] = e.String()
	}
	return out, nil
}

// Dates parses a date column normalized by the loader. Missing cells are
// the zero time.
func (t *Table) Dates(name string) ([]time.Time, error) {
	vals, err := t.Strings(name)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(vals))
	for i, v := range vals {
		if v == "" {
			continue
		}
		d, err := time.Parse(ISODate, v)
		if err != nil {
			return nil, fmt.Errorf("column %s row %d: %w", name, i+1, err)
		}
		out[i] = d
	}
	return out, nil
}

// Head returns up to n rows rendered as strings, missing cells empty.
func (t *Table) Head(n int) [][]string {
	if n > t.Rows() {
		n = t.Rows()
	}
	out := make([][]string, n)
	for r := 0; r < n; r++ {
		row := make([]string, t.DF.Ncol())
		for c := range row {
			e := t.DF.Elem(r, c)
			if !e.IsNA() {
				row[c] = e.String()
			}
		}
		out[r] = row
	}
	return out
}

// Where keeps the rows for which keep returns true on column name.
func (t *Table) Where(name string, keep func(series.Element) bool) (*Table, error) {
	if !t.Has(name) {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	df := t.DF.Filter(dataframe.F{Colname: name, Comparator: series.CompFunc, Comparando: keep})
	if df.Err != nil {
		return nil, df.Err
	}
	cp := *t
	cp.DF = df
	return &cp, nil
}

// WithColumn adds or replaces a column.
func (t *Table) WithColumn(s series.Series) (*Table, error) {
	df := t.DF.Mutate(s)
	if df.Err != nil {
		return nil, df.Err
	}
	cp := *t
	cp.DF = df
	return &cp, nil
}

// DegradedSummary renders Degraded as "col=n" pairs, sorted.
func (t *Table) DegradedSummary() []string {
	var out []string
	for c, n := range t.Degraded {
		out = append(out, fmt.Sprintf("%s=%d", c, n))
	}
	sort.Strings(out)
	return out
}

// NotNA is a row predicate for Where that keeps present values.
func NotNA(e series.Element) bool {
	if e.IsNA() {
		return false
	}
	if e.Type() == series.Float {
		return !math.IsNaN(e.Float())
	}
	return true
}
