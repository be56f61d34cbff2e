package covid

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dataloom-cli/internal/geo"
	"github.com/KaramelBytes/dataloom-cli/internal/timeseries"
)

const casesCSV = "Province/State,Country/Region,Lat,Long,1/1/21,1/2/21,1/3/21\n" +
	",Poland,51.9,19.1,100,120,145\n" +
	"Ontario,Canada,51.2,-85.3,10,12,15\n" +
	"Quebec,Canada,52.9,-73.5,20,25,31\n" +
	",Diamond Princess,0,0,712,712,712\n"

const deathsCSV = "Province/State,Country/Region,Lat,Long,1/1/21,1/2/21,1/3/21\n" +
	",Poland,51.9,19.1,1,2,4\n" +
	"Ontario,Canada,51.2,-85.3,0,0,1\n" +
	"Quebec,Canada,52.9,-73.5,1,1,1\n" +
	",Diamond Princess,0,0,13,13,13\n"

const popCSV = `"Country Name","Country Code","Indicator Name","Indicator Code","2020"
"Poland","POL","Population, total","SP.POP.TOTL","40000000"
"Canada","CAN","Population, total","SP.POP.TOTL","38000000"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestReadWideJHU(t *testing.T) {
	w, err := ReadWide(strings.NewReader("\ufeff"+casesCSV), JHUOptions())
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2021-01-01"), day("2021-01-02"), day("2021-01-03")}, w.Dates)
	require.Len(t, w.Rows, 4)
	assert.Equal(t, "Canada", w.Rows[1].Entity)
	assert.Equal(t, "Ontario", w.Rows[1].SubEntity)
}

func TestReadWideBadDateHeader(t *testing.T) {
	in := "Province/State,Country/Region,Lat,Long,1/1/21,2021-01-02\n,Poland,0,0,1,2\n"
	_, err := ReadWide(strings.NewReader(in), JHUOptions())
	assert.ErrorIs(t, err, ErrBadDateHeader)
}

func TestReadWideMissingColumn(t *testing.T) {
	in := "Country,Lat,Long,1/1/21\nPoland,0,0,1\n"
	_, err := ReadWide(strings.NewReader(in), JHUOptions())
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadWideBadCellIsMissing(t *testing.T) {
	in := "Province/State,Country/Region,Lat,Long,1/1/21,1/2/21\n,Poland,0,0,n/a,2\n"
	w, err := ReadWide(strings.NewReader(in), JHUOptions())
	require.NoError(t, err)
	assert.Equal(t, []timeseries.Point{timeseries.Missing(), timeseries.Val(2)}, w.Rows[0].Values)
}

func TestLoadDailyAndPerCapita(t *testing.T) {
	dir := t.TempDir()
	in := Inputs{
		Cases:          writeFile(t, dir, "cases.csv", casesCSV),
		Deaths:         writeFile(t, dir, "deaths.csv", deathsCSV),
		Population:     writeFile(t, dir, "pop.csv", popCSV),
		PopulationYear: "2020",
	}
	ds, err := Load(in, geo.Default(), nil)
	require.NoError(t, err)

	cases, ok := ds.Daily.Frame(Cases)
	require.True(t, ok)
	pl, _ := cases.Series("Poland")
	assert.Equal(t, []timeseries.Point{timeseries.Missing(), timeseries.Val(20), timeseries.Val(25)}, pl.Points)
	ca, _ := cases.Series("Canada")
	assert.Equal(t, []timeseries.Point{timeseries.Missing(), timeseries.Val(7), timeseries.Val(9)}, ca.Points)

	assert.Equal(t, []string{"Canada", "Poland"}, ds.Panel().Entities())
	assert.Equal(t, []string{"Diamond Princess"}, ds.Report.Excluded())

	perMln, ok := ds.Panel().Frame("deaths_per_mln")
	require.True(t, ok)
	p, _ := perMln.At("Poland", day("2021-01-03"))
	assert.InDelta(t, 0.05, p.Value, 1e-12)
}

func TestLoadWithoutPopulation(t *testing.T) {
	dir := t.TempDir()
	ds, err := Load(Inputs{Cases: writeFile(t, dir, "c.csv", casesCSV)}, geo.Default(), nil)
	require.NoError(t, err)
	assert.Nil(t, ds.Enriched)
	assert.Equal(t, []string{"cases"}, ds.Panel().Metrics())
	assert.Len(t, ds.Panel().Entities(), 3)
}

func longCSV(days int) string {
	var b strings.Builder
	b.WriteString("Province/State,Country/Region,Lat,Long")
	start := day("2020-01-01")
	for i := 0; i < days; i++ {
		b.WriteString(",")
		b.WriteString(start.AddDate(0, 0, i).Format("1/2/06"))
	}
	b.WriteString("\n,Poland,0,0")
	for i := 0; i < days; i++ {
		// daily increment equals the day index
		fmt.Fprintf(&b, ",%d", i*(i+1)/2)
	}
	b.WriteString("\n")
	return b.String()
}

func TestMovingAverageAndYearAgo(t *testing.T) {
	dir := t.TempDir()
	ds, err := Load(Inputs{Cases: writeFile(t, dir, "c.csv", longCSV(500))}, geo.Default(), nil)
	require.NoError(t, err)

	w := Window{Size: 7, Agg: timeseries.Mean, From: day("2021-01-01"), To: day("2021-01-31")}
	ma, err := MovingAverage(ds.Panel(), w)
	require.NoError(t, err)
	f, _ := ma.Frame(Cases)
	s, ok := f.Series("Poland")
	require.True(t, ok)
	assert.Equal(t, day("2021-01-01"), s.Start)
	assert.Equal(t, 31, s.Len())
	// mean of indices i-6..i is i-3
	idx := timeseries.DaysBetween(day("2020-01-01"), day("2021-01-01"))
	assert.InDelta(t, float64(idx-3), s.Points[0].Value, 1e-9)

	yoy, err := WithYearAgo(ds.Panel(), w)
	require.NoError(t, err)
	assert.Equal(t, []string{"cases", "cases_1y_ago"}, yoy.Metrics())
	ago, _ := yoy.Frame("cases_1y_ago")
	p, ok := ago.At("Poland", day("2021-01-31"))
	require.True(t, ok)
	prevIdx := timeseries.DaysBetween(day("2020-01-01"), day("2021-01-31").AddDate(0, 0, -365))
	assert.InDelta(t, float64(prevIdx-3), p.Value, 1e-9)
	_, ok = ago.At("Poland", day("2020-12-31"))
	assert.False(t, ok, "year-ago column covers only the display range")
}

func TestCountriesReportsAbsent(t *testing.T) {
	dir := t.TempDir()
	ds, err := Load(Inputs{Cases: writeFile(t, dir, "c.csv", casesCSV)}, geo.Default(), nil)
	require.NoError(t, err)
	p, missing := Countries(ds.Panel(), []string{"Poland", "Atlantis"})
	assert.Equal(t, []string{"Poland"}, p.Entities())
	assert.Equal(t, []string{"Atlantis"}, missing)
}
