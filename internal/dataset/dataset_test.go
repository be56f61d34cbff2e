package dataset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestBuiltinSchemas(t *testing.T) {
	names := BuiltinNames()
	want := []string{"dowjones", "iris", "mtcars", "titanic"}
	if len(names) != len(want) {
		t.Fatalf("builtins = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("builtins = %v, want %v", names, want)
		}
		if _, err := Builtin(want[i]); err != nil {
			t.Fatalf("Builtin(%s): %v", want[i], err)
		}
	}
	if _, err := ResolveSchema("nope"); !errors.Is(err, ErrUnknownSchema) {
		t.Fatalf("expected ErrUnknownSchema, got %v", err)
	}
}

func TestLoadDowJonesDollarColumns(t *testing.T) {
	p := writeTemp(t, "dow_jones_index.data", "quarter,stock,date,open,high,low,close,volume\n"+
		"1,AA,1/7/2011,$15.82,$16.72,$15.78,$16.42,239655616\n"+
		"1,AA,1/14/2011,$16.71,$16.71,$15.64,15.97,242963398\n")
	s, _ := Builtin("dowjones")
	tab, err := Load(p, s, ReadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	closes, err := tab.Floats("close")
	if err != nil {
		t.Fatalf("Floats: %v", err)
	}
	if closes[0] != 16.42 {
		t.Fatalf("close[0] = %v, want 16.42", closes[0])
	}
	if !math.IsNaN(closes[1]) {
		t.Fatalf("close[1] = %v, want NaN for a price without '$'", closes[1])
	}
	if tab.Degraded["close"] != 1 {
		t.Fatalf("degraded close = %d, want 1", tab.Degraded["close"])
	}
	dates, err := tab.Dates("date")
	if err != nil {
		t.Fatalf("Dates: %v", err)
	}
	if !dates[1].Equal(time.Date(2011, 1, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date[1] = %v", dates[1])
	}
	if got := tab.DF.Col("volume").Type(); got != series.Int {
		t.Fatalf("volume type = %v, want int (inferred)", got)
	}
}

func TestLoadIrisWithoutHeader(t *testing.T) {
	p := writeTemp(t, "iris.data", "5.1,3.5,1.4,0.2,Iris-setosa\n7.0,3.2,4.7,1.4,Iris-versicolor\n\n")
	s, _ := Builtin("iris")
	tab, err := Load(p, s, ReadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tab.Rows() != 2 {
		t.Fatalf("rows = %d, want 2", tab.Rows())
	}
	cls, _ := tab.Strings("class")
	if cls[1] != "Iris-versicolor" {
		t.Fatalf("class[1] = %q", cls[1])
	}
}

func TestLoadMissingRequiredColumn(t *testing.T) {
	p := writeTemp(t, "titanic.txt", "pclass,name,age\n1st,Allen,29\n")
	s, _ := Builtin("titanic")
	_, err := Load(p, s, ReadOptions{})
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestLoadTitanicMissingAge(t *testing.T) {
	p := writeTemp(t, "titanic.txt", "pclass,survived,name,sex,age\n"+
		"1st,1,\"Allen, Miss Elisabeth\",female,29\n"+
		"3rd,0,\"Doe, Mr John\",male,NA\n"+
		"2nd,1,\"Roe, Mrs Jane\",female,\n")
	s, _ := Builtin("titanic")
	tab, err := Load(p, s, ReadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ages, _ := tab.Floats("age")
	if ages[0] != 29 || !math.IsNaN(ages[1]) || !math.IsNaN(ages[2]) {
		t.Fatalf("ages = %v", ages)
	}
	if len(tab.Degraded) != 0 {
		t.Fatalf("NA tokens must not count as degraded: %v", tab.Degraded)
	}
	kept, err := tab.Where("age", NotNA)
	if err != nil {
		t.Fatalf("Where: %v", err)
	}
	if kept.Rows() != 1 {
		t.Fatalf("rows with age = %d, want 1", kept.Rows())
	}
}

func TestLoadXLSX(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cars.xlsx")
	f := excelize.NewFile()
	if _, err := f.NewSheet("cars"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	rows := [][]interface{}{{"model", "mpg", "cyl"}, {"Mazda RX4", 21.0, 6}, {"Datsun 710", 22.8, 4}}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("cars", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(p); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	s, _ := Builtin("mtcars")
	tab, err := Load(p, s, ReadOptions{Sheet: "cars"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	mpg, _ := tab.Floats("mpg")
	if len(mpg) != 2 || mpg[1] != 22.8 {
		t.Fatalf("mpg = %v", mpg)
	}
	if _, err := Load(p, s, ReadOptions{Sheet: "missing"}); err == nil {
		t.Fatalf("expected error for unknown sheet")
	}
}

func TestUnsupportedExtension(t *testing.T) {
	p := writeTemp(t, "x.parquet", "")
	if _, err := Load(p, nil, ReadOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestParseNumericLocales(t *testing.T) {
	cases := map[string]float64{
		"1,234.5":   1234.5,
		"1.234,5":   1234.5,
		"12,5":      12.5,
		"1,234":     1234,
		"1,234,567": 1234567,
		"-3.5e2":    -350,
		"12 000":    12000,
	}
	for in, want := range cases {
		got, ok := parseNumeric(in)
		if !ok || got != want {
			t.Errorf("parseNumeric(%q) = %v, %v, want %v", in, got, ok, want)
		}
	}
	if _, ok := parseNumeric("abc"); ok {
		t.Errorf("parseNumeric(abc) should fail")
	}
}

func TestSchemaValidation(t *testing.T) {
	bad := []string{
		"name: x\nheader: false\ncolumns: []\n",
		"name: x\ncolumns:\n  - name: d\n    type: date\n",
		"name: x\ncolumns:\n  - name: a\n    type: complex\n",
		"name: x\ncolumns:\n  - name: a\n    type: int\n  - name: a\n    type: int\n",
	}
	for _, in := range bad {
		if _, err := ParseSchema([]byte(in)); err == nil {
			t.Errorf("ParseSchema(%q) should fail", in)
		}
	}
}
