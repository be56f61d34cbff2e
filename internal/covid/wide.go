// Package covid reads the JHU CSSE global time-series files and turns them
// into per-country daily panels enriched with population.
package covid

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/dataloom-cli/internal/timeseries"
)

var (
	// ErrBadDateHeader is returned when a date column header does not match the layout.
	ErrBadDateHeader = errors.New("unparsable date header")
	// ErrMissingColumn is returned when an identifying column is absent.
	ErrMissingColumn = errors.New("missing expected column")
)

// WideOptions describes the layout of a wide time-series CSV.
type WideOptions struct {
	EntityColumn    string
	SubEntityColumn string // optional
	DropColumns     []string
	DateLayout      string
	Delimiter       rune
}

// JHUOptions returns the layout of time_series_covid19_*_global.csv.
func JHUOptions() WideOptions {
	return WideOptions{
		EntityColumn:    "Country/Region",
		SubEntityColumn: "Province/State",
		DropColumns:     []string{"Lat", "Long"},
		DateLayout:      "1/2/06",
		Delimiter:       ',',
	}
}

// ReadWide parses a wide CSV: identifying columns followed by one column per
// date. Every column that is neither identifying nor dropped must be a date
// in opt.DateLayout. Cells that do not parse as numbers become missing.
func ReadWide(r io.Reader, opt WideOptions) (*timeseries.Wide, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	drop := map[string]bool{}
	for _, c := range opt.DropColumns {
		drop[c] = true
	}
	entityIdx, subIdx := -1, -1
	var dateIdx []int
	w := &timeseries.Wide{}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case h == opt.EntityColumn:
			entityIdx = i
		case opt.SubEntityColumn != "" && h == opt.SubEntityColumn:
			subIdx = i
		case drop[h]:
		default:
			d, err := time.Parse(opt.DateLayout, h)
			if err != nil {
				return nil, fmt.Errorf("%w: column %d %q (layout %q)", ErrBadDateHeader, i+1, h, opt.DateLayout)
			}
			dateIdx = append(dateIdx, i)
			w.Dates = append(w.Dates, timeseries.Truncate(d))
		}
	}
	if entityIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, opt.EntityColumn)
	}
	if opt.SubEntityColumn != "" && subIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, opt.SubEntityColumn)
	}

	line := 1
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", line+1, err)
		}
		line++
		row := timeseries.WideRow{Entity: cell(rec, entityIdx), Values: make([]timeseries.Point, len(dateIdx))}
		if subIdx >= 0 {
			row.SubEntity = cell(rec, subIdx)
		}
		if row.Entity == "" {
			return nil, fmt.Errorf("row %d: empty %q", line, opt.EntityColumn)
		}
		for j, idx := range dateIdx {
			if v, err := strconv.ParseFloat(cell(rec, idx), 64); err == nil {
				row.Values[j] = timeseries.Val(v)
			}
		}
		w.Rows = append(w.Rows, row)
	}
	return w, nil
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// LoadFrame reads a wide file and melts it into a long frame of cumulative
// totals per (entity, date) under metric.
func LoadFrame(path, metric string, opt WideOptions) (*timeseries.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", metric, err)
	}
	defer f.Close()
	w, err := ReadWide(f, opt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	frame, err := timeseries.Reshape(w, metric)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return frame, nil
}
