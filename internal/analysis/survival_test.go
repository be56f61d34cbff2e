package analysis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var titanicRows = []string{
	"pclass,survived,name,sex,age",
	"1st,1,Allen,female,29",
	"1st,0,Baker,male,40",
	"3rd,0,Cole,male,NA",
	"2nd,1,Dean,female,5",
	"3rd,1,Evans,male,15",
	"3rd,,Ford,female,22",
}

func TestParseBins(t *testing.T) {
	edges, err := ParseBins("0:90:10")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10, 20, 30, 40, 50, 60, 70, 80}, edges)

	edges, err = ParseBins("0, 12.5, 40")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 12.5, 40}, edges)

	for _, bad := range []string{"10,5", "0:10:0", "x", "5"} {
		_, err := ParseBins(bad)
		assert.ErrorIs(t, err, ErrBins, bad)
	}
}

func TestCutRightClosed(t *testing.T) {
	tab := load(t, nil, "age", "0", "5", "10", "10.5", "85", "NA")
	edges, _ := ParseBins("0:90:10")
	out, levels, err := Cut(tab, "age", edges, "age_bucket")
	require.NoError(t, err)
	require.Len(t, levels, 8)
	assert.Equal(t, "(0, 10]", levels[0])
	assert.Equal(t, "(70, 80]", levels[7])

	got, err := out.Strings("age_bucket")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "(0, 10]", "(0, 10]", "(10, 20]", "", ""}, got)
}

func TestSurvivalBySex(t *testing.T) {
	tab := load(t, builtin(t, "titanic"), titanicRows...)
	st, err := Survival(tab, SurvivalOptions{Target: "survived", By: []string{"sex"}})
	require.NoError(t, err)

	want := []SurvivalRow{
		{Keys: []string{"female"}, Survivors: 2, Died: 0, Total: 3},
		{Keys: []string{"male"}, Survivors: 1, Died: 2, Total: 3},
	}
	if diff := cmp.Diff(want, st.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	out := st.Table()
	assert.Equal(t, []string{"sex", "survivors_pct", "survivors", "total"}, out.Header)
	assert.Equal(t, []string{"female", "0.666667", "2", "3"}, out.Rows[0])
}

func TestSurvivalEmptyGroupsFromLevels(t *testing.T) {
	tab := load(t, builtin(t, "titanic"), titanicRows...)
	edges, err := ParseBins("0,20,40")
	require.NoError(t, err)
	tab, levels, err := Cut(tab, "age", edges, "age_bucket")
	require.NoError(t, err)

	st, err := Survival(tab, SurvivalOptions{
		Target: "survived",
		By:     []string{"pclass", "age_bucket"},
		Levels: map[string][]string{"age_bucket": levels},
	})
	require.NoError(t, err)
	want := []SurvivalRow{
		{Keys: []string{"1st", "(0, 20]"}, Survivors: 0, Total: 0},
		{Keys: []string{"1st", "(20, 40]"}, Survivors: 1, Died: 1, Total: 2},
		{Keys: []string{"2nd", "(0, 20]"}, Survivors: 1, Total: 1},
		{Keys: []string{"2nd", "(20, 40]"}, Survivors: 0, Total: 0},
		{Keys: []string{"3rd", "(0, 20]"}, Survivors: 1, Total: 1},
		{Keys: []string{"3rd", "(20, 40]"}, Survivors: 0, Total: 1},
	}
	if diff := cmp.Diff(want, st.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0.0, st.Rows[0].Pct())

	wide := st.Unstack()
	require.Len(t, wide.Rows, 2)
	assert.Equal(t, "age_bucket", wide.Header[0])
	assert.Equal(t, "survivors_pct pclass=1st", wide.Header[1])
	assert.Equal(t, "total pclass=3rd", wide.Header[len(wide.Header)-1])
	assert.Equal(t, []string{"(0, 20]", "0.000000", "1.000000", "1.000000", "0", "1", "1", "0", "1", "1"}, wide.Rows[0])
}

func TestSurvivalErrors(t *testing.T) {
	tab := load(t, builtin(t, "titanic"), titanicRows...)
	_, err := Survival(tab, SurvivalOptions{Target: "survived"})
	assert.Error(t, err)
	_, err = Survival(tab, SurvivalOptions{Target: "lived", By: []string{"sex"}})
	assert.Error(t, err)
	_, err = Survival(tab, SurvivalOptions{Target: "survived", By: []string{"deck"}})
	assert.Error(t, err)
}

func TestQuantilesSortedTop(t *testing.T) {
	tab := load(t, nil, "stock,close",
		"AA,1", "AA,2", "AA,3", "AA,4", "AA,5",
		"BB,10", "BB,20",
		"CC,5", "CC,NA",
	)
	out, err := Quantiles(tab, QuantileOptions{By: "stock", Col: "close", Ps: []float64{0.25, 0.5}, SortBy: "p50", Top: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"stock", "p25", "p50"}, out.Header)
	assert.Equal(t, [][]string{
		{"BB", "12.500000", "15.000000"},
		{"CC", "5.000000", "5.000000"},
	}, out.Rows)

	_, err = Quantiles(tab, QuantileOptions{By: "stock", Col: "close", SortBy: "p42"})
	assert.Error(t, err)
}

func TestPercentileLabel(t *testing.T) {
	var got []string
	for _, p := range DefaultPercentiles {
		got = append(got, PercentileLabel(p))
	}
	assert.Equal(t, []string{"p1", "p5", "p25", "p50", "p75", "p95", "p99"}, got)
}

func TestValueCounts(t *testing.T) {
	tab := load(t, builtin(t, "mtcars"), "model,mpg,cyl", "a,21,6", "b,21,6", "c,22.8,4", "d,18.7,8", "e,18.1,6", "f,14,NA")
	out, err := ValueCounts(tab, "cyl", false)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"6", "3"}, {"4", "1"}, {"8", "1"}}, out.Rows)

	out, err = ValueCounts(tab, "cyl", true)
	require.NoError(t, err)
	assert.Equal(t, "proportion", out.Header[1])
	assert.Equal(t, "0.600000", out.Rows[0][1])
}

func TestNLargest(t *testing.T) {
	tab := load(t, builtin(t, "mtcars"), "model,mpg,hp",
		"Mazda RX4,21,110", "Mazda RX4 Wag,21,110", "Datsun 710,22.8,93",
		"Hornet Sportabout,18.7,175", "Valiant,18.1,NA", "Duster 360,14.3,245")
	top, err := NLargest(tab, "hp", 3)
	require.NoError(t, err)
	models, err := top.Strings("model")
	require.NoError(t, err)
	assert.Equal(t, []string{"Duster 360", "Hornet Sportabout", "Mazda RX4"}, models)

	_, err = NLargest(tab, "model", 2)
	assert.Error(t, err)
	_, err = NLargest(tab, "hp", 0)
	assert.Error(t, err)
}
