package render

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dataloom-cli/internal/timeseries"
)

func nonEmpty(t *testing.T, path string) {
	t.Helper()
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(0), path)
}

var iris = []Group{
	{Label: "setosa", Values: []float64{5.1, 4.9, 4.7, 4.6, 5.0, 5.4, math.NaN()}},
	{Label: "versicolor", Values: []float64{7.0, 6.4, 6.9, 5.5, 6.5}},
	{Label: "virginica", Values: []float64{6.3, 5.8, 7.1, 6.3, 6.5, 7.6}},
}

func TestDistributionCharts(t *testing.T) {
	dir := t.TempDir()
	opt := Options{Title: "sepal length", XLabel: "cm"}
	cases := map[string]func(string) error{
		"strip.png": func(p string) error { return Strip(p, iris, opt) },
		"hist.svg":  func(p string) error { return Histogram(p, iris, 15, opt) },
		"box.png":   func(p string) error { return Box(p, iris, opt) },
		"ecdf.png":  func(p string) error { return ECDF(p, iris, opt) },
		"kde.svg":   func(p string) error { return KDE(p, iris, opt) },
		"seq.png":   func(p string) error { return Sequence(p, iris, opt) },
		"mean.png":  func(p string) error { return PointEstimate(p, iris, opt) },
	}
	for name, draw := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, draw(path))
			nonEmpty(t, path)
		})
	}
}

func TestHistogramSingleValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.png")
	require.NoError(t, Histogram(path, []Group{{Label: "a", Values: []float64{3, 3, 3}}}, 5, Options{}))
	nonEmpty(t, path)

	err := Histogram(path, iris, 0, Options{})
	assert.Error(t, err)
}

func TestNoData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.png")
	empty := []Group{{Label: "a", Values: []float64{math.NaN()}}}
	for name, err := range map[string]error{
		"strip": Strip(path, empty, Options{}),
		"box":   Box(path, empty, Options{}),
		"kde":   KDE(path, []Group{{Label: "a", Values: []float64{1}}}, Options{}),
		"lines": Lines(path, []Line{{Label: "x", X: []time.Time{time.Now()}, Y: []float64{math.NaN()}}}, Options{}),
		"count": Counts(path, nil, nil, nil, Options{}),
	} {
		assert.True(t, errors.Is(err, ErrNoData), "%s: %v", name, err)
	}
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestUnknownExtension(t *testing.T) {
	err := Box(filepath.Join(t.TempDir(), "chart.bmp"), iris, Options{})
	assert.Error(t, err)
}

func TestCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.png")
	err := Counts(path, []string{"female", "male"}, []string{"died", "survived"},
		[][]float64{{81, 468}, {233, 109}}, Options{Title: "survival by sex"})
	require.NoError(t, err)
	nonEmpty(t, path)

	err = Counts(path, []string{"female", "male"}, []string{"died"}, [][]float64{{1}}, Options{})
	assert.Error(t, err)
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestLinesSplitOnMissing(t *testing.T) {
	l := Line{
		Label: "Poland",
		X:     []time.Time{day("2021-01-01"), day("2021-01-02"), day("2021-01-03"), day("2021-01-04")},
		Y:     []float64{1, math.NaN(), 3, 4},
	}
	segs := segments(l)
	require.Len(t, segs, 2)
	assert.Len(t, segs[0], 1)
	assert.Len(t, segs[1], 2)

	path := filepath.Join(t.TempDir(), "lines.png")
	require.NoError(t, Lines(path, []Line{l}, Options{Points: true}))
	nonEmpty(t, path)
}

func TestYearOverYearGrid(t *testing.T) {
	start := day("2021-03-01")
	pts := func(xs ...float64) []timeseries.Point {
		out := make([]timeseries.Point, len(xs))
		for i, x := range xs {
			out[i] = timeseries.Val(x)
		}
		return out
	}
	mk := func(metric string, a, b []timeseries.Point) *timeseries.Frame {
		f, err := timeseries.NewFrame(metric,
			timeseries.NewSeries("Poland", start, a),
			timeseries.NewSeries("Spain", start, b))
		require.NoError(t, err)
		return f
	}
	pn, err := timeseries.NewPanel(
		mk("cases", pts(1, 2, 3), pts(4, 5, 6)),
		mk("cases_1y_ago", pts(0, 1, 1), pts(2, 2, 3)),
	)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "yoy.svg")
	require.NoError(t, YearOverYear(path, pn, []string{"cases"}, "_1y_ago", Options{}))
	nonEmpty(t, path)

	err = YearOverYear(path, pn, []string{"deaths"}, "_1y_ago", Options{})
	assert.Error(t, err)

	lines := FromFrame(mustFrame(t, pn, "cases"))
	require.Len(t, lines, 2)
	assert.Equal(t, "Poland", lines[0].Label)
	assert.Equal(t, []float64{1, 2, 3}, lines[0].Y)
}

func mustFrame(t *testing.T, pn *timeseries.Panel, metric string) *timeseries.Frame {
	t.Helper()
	f, ok := pn.Frame(metric)
	require.True(t, ok)
	return f
}
