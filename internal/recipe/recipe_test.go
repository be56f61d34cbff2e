package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// casesCSV builds 17 days (2021-01-01..17) of cumulative counts: Poland grows
// by 10 a day, Canada by 1 and 2 a day in two provinces.
func casesCSV() string {
	var b strings.Builder
	b.WriteString("Province/State,Country/Region,Lat,Long")
	for d := 1; d <= 17; d++ {
		fmt.Fprintf(&b, ",1/%d/21", d)
	}
	b.WriteString("\n")
	for _, row := range []struct {
		prov, country string
		step          int
	}{{"", "Poland", 10}, {"Ontario", "Canada", 1}, {"Quebec", "Canada", 2}} {
		fmt.Fprintf(&b, "%s,%s,0,0", row.prov, row.country)
		for d := 1; d <= 17; d++ {
			fmt.Fprintf(&b, ",%d", d*row.step)
		}
		b.WriteString("\n")
	}
	return b.String()
}

const popCSV = `"Country Name","Country Code","Indicator Name","Indicator Code","2020"
"Poland","POL","Population, total","SP.POP.TOTL","40000000"
"Canada","CAN","Population, total","SP.POP.TOTL","38000000"
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixture(t *testing.T, recipeYAML string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "data", "cases.csv"), casesCSV())
	writeFile(t, filepath.Join(dir, "data", "pop.csv"), popCSV)
	path := filepath.Join(dir, "europe.yaml")
	writeFile(t, path, recipeYAML)
	return path
}

const movingYAML = `
inputs:
  cases: data/cases.csv
  population: data/pop.csv
  population_year: "2020"
window: 3
from: 2021-01-05
to: 2021-01-08
metrics: [cases, cases_per_mln]
outputs:
  chart: out/ma.png
  table: out/ma.csv
  pivot: out/pivot.xlsx
  summary: out/summary.json
`

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := fixture(t, movingYAML)
	r, err := Load(path)
	require.NoError(t, err)
	dir := filepath.Dir(path)
	assert.Equal(t, "europe", r.Name)
	assert.Equal(t, filepath.Join(dir, "data", "cases.csv"), r.Inputs.Cases)
	assert.Equal(t, filepath.Join(dir, "out", "summary.json"), r.Outputs.Summary)
	assert.Equal(t, []string{path, filepath.Join(dir, "data", "cases.csv"), filepath.Join(dir, "data", "pop.csv")}, r.Files())
}

func TestValidateCollectsProblems(t *testing.T) {
	r := &Recipe{Name: "bad", Window: -1, Aggregate: "median", From: "2021-02-01", To: "2021-01-01",
		YearOverYear: true, Weekly: true, Outputs: Outputs{Table: "x.json"}}
	err := r.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	for _, want := range []string{"inputs.cases", "window", "aggregate", "to is before from", "exclusive", ".json"} {
		assert.Contains(t, err.Error(), want)
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunMovingAverage(t *testing.T) {
	r, err := Load(fixture(t, movingYAML))
	require.NoError(t, err)
	rn := &Runner{Log: zap.NewNop()}
	res, err := rn.Run(context.Background(), r)
	require.NoError(t, err)
	sum := res.Summary

	_, err = uuid.Parse(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Canada", "Poland"}, sum.Entities)
	assert.Equal(t, "mean", sum.Aggregate)
	assert.Len(t, sum.Outputs, 5) // two charts, table, pivot, summary

	dir := filepath.Dir(r.Path())
	table, err := os.ReadFile(filepath.Join(dir, "out", "ma.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(table)), "\n")
	assert.Equal(t, "entity,date,cases,cases_per_mln", lines[0])
	require.Len(t, lines, 9)
	assert.Contains(t, lines, "Poland,2021-01-05,10,0.25")

	for _, chart := range []string{"ma_cases.png", "ma_cases_per_mln.png", "pivot.xlsx"} {
		st, err := os.Stat(filepath.Join(dir, "out", chart))
		require.NoError(t, err)
		assert.Greater(t, st.Size(), int64(0))
	}

	var got Summary
	raw, err := os.ReadFile(r.Outputs.Summary)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, sum.RunID, got.RunID)
	assert.Equal(t, 3, got.Window)
}

func TestRunWeekly(t *testing.T) {
	path := fixture(t, `
name: weekly
inputs:
  cases: data/cases.csv
from: 2021-01-04
to: 2021-01-17
weekly: true
countries: [Poland, Canada, Atlantis]
outputs:
  table: out/weekly.md
  pivot: out/weekly.csv
`)
	r, err := Load(path)
	require.NoError(t, err)
	res, err := (&Runner{}).Run(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, []string{"Atlantis"}, res.Summary.MissingCountries)
	assert.Equal(t, ModeWeekly, res.Summary.Mode)
	assert.Nil(t, res.Panel)

	pivot, err := os.ReadFile(r.Outputs.Pivot)
	require.NoError(t, err)
	assert.Equal(t, "date,Canada,Poland\n2021-01-10,21,70\n2021-01-17,21,70\n", string(pivot))

	md, err := os.ReadFile(r.Outputs.Table)
	require.NoError(t, err)
	assert.Contains(t, string(md), "| Poland | 2021-01-17 | 70 |")
}

func TestRunDefaultsToLastDays(t *testing.T) {
	path := fixture(t, `
inputs:
  cases: data/cases.csv
raw: true
countries: [Poland]
`)
	r, err := Load(path)
	require.NoError(t, err)
	res, err := (&Runner{}).Run(context.Background(), r)
	require.NoError(t, err)
	// the data ends on 2021-01-17; a 30-day range reaches back past its start
	assert.Equal(t, "2021-01-17", res.Summary.To)
	assert.Equal(t, "2020-12-19", res.Summary.From)

	tables, err := res.Tables()
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"date", "Poland"}, tables[0].Header)
	require.Len(t, tables[0].Rows, 17)
	assert.Equal(t, []string{"2021-01-01", ""}, tables[0].Rows[0])
	assert.Equal(t, []string{"2021-01-17", "10"}, tables[0].Rows[16])
}

func TestRunDateLayout(t *testing.T) {
	path := fixture(t, `
inputs:
  cases: data/cases.csv
raw: true
from: 2021-01-16
countries: [Poland]
`)
	r, err := Load(path)
	require.NoError(t, err)
	res, err := (&Runner{DateLayout: "02.01.2006"}).Run(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "2021-01-16", res.Summary.From)
	long := res.Long("poland")
	assert.Equal(t, [][]string{{"Poland", "16.01.2021", "10"}, {"Poland", "17.01.2021", "10"}}, long.Rows)
}

func TestRunUnknownMetric(t *testing.T) {
	r, err := Load(fixture(t, movingYAML))
	require.NoError(t, err)
	r.Metrics = []string{"recovered"}
	_, err = (&Runner{}).Run(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recovered")
}

func TestRunCancelled(t *testing.T) {
	r, err := Load(fixture(t, movingYAML))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&Runner{}).Run(ctx, r)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatchRerunsOnInputChange(t *testing.T) {
	path := fixture(t, movingYAML)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan string, 4)
	w := &Watcher{
		Paths:    []string{path},
		Debounce: 20 * time.Millisecond,
		Run: func(ctx context.Context, p string) error {
			select {
			case runs <- p:
			default:
			}
			return nil
		},
	}
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	input := filepath.Join(filepath.Dir(path), "data", "pop.csv")
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for got := false; !got; {
		select {
		case p := <-runs:
			assert.Equal(t, path, p)
			got = true
		case <-tick.C:
			// the watch may not be registered yet; keep touching the input
			writeFile(t, input, popCSV)
		case <-deadline:
			t.Fatal("no run after input change")
		}
	}
	cancel()
	require.NoError(t, <-done)
}
