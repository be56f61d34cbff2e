// Package enrich joins per-entity time series with static per-country
// attributes such as population.
package enrich

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// CodeColumn is the header of the ISO alpha-3 column in World Bank indicator files.
const CodeColumn = "Country Code"

var (
	// ErrNoHeader is returned when no row carries a "Country Code" column.
	ErrNoHeader = errors.New(`no "Country Code" header row`)
	// ErrNoYear is returned when the requested year column is absent or empty.
	ErrNoYear = errors.New("population year column not found")
)

// Population maps ISO alpha-3 codes to population in millions.
type Population map[string]float64

// Codes returns the sorted country codes.
func (p Population) Codes() []string {
	out := make([]string, 0, len(p))
	for c := range p {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ReadPopulation reads a World Bank SP.POP.TOTL export. Metadata lines before
// the header are skipped. An empty year selects the latest year column that
// holds at least one value. Countries with a blank or zero cell are omitted.
func ReadPopulation(r io.Reader, year string) (Population, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read population: %w", err)
	}
	hdr, codeIdx := -1, -1
	for i, rec := range recs {
		for j, c := range rec {
			if strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")) == CodeColumn {
				hdr, codeIdx = i, j
				break
			}
		}
		if hdr >= 0 {
			break
		}
	}
	if hdr < 0 {
		return nil, ErrNoHeader
	}
	header, rows := recs[hdr], recs[hdr+1:]

	yearIdx := -1
	if year != "" {
		for j, h := range header {
			if strings.TrimSpace(h) == year {
				yearIdx = j
			}
		}
	} else {
		yearIdx = latestYear(header, rows)
	}
	if yearIdx < 0 {
		if year == "" {
			year = "latest"
		}
		return nil, fmt.Errorf("%w: %s", ErrNoYear, year)
	}

	pop := Population{}
	for _, rec := range rows {
		if codeIdx >= len(rec) || yearIdx >= len(rec) {
			continue
		}
		code := strings.TrimSpace(rec[codeIdx])
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[yearIdx]), 64)
		if code == "" || err != nil || v <= 0 {
			continue
		}
		pop[code] = v / 1_000_000
	}
	return pop, nil
}

func latestYear(header []string, rows [][]string) int {
	for j := len(header) - 1; j >= 0; j-- {
		if _, err := strconv.Atoi(strings.TrimSpace(header[j])); err != nil {
			continue
		}
		for _, rec := range rows {
			if j < len(rec) && strings.TrimSpace(rec[j]) != "" {
				return j
			}
		}
	}
	return -1
}

// LoadPopulation opens path and reads it with ReadPopulation.
func LoadPopulation(path, year string) (Population, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open population: %w", err)
	}
	defer f.Close()
	pop, err := ReadPopulation(f, year)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pop, nil
}
