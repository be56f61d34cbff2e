package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags puts every flag of c and its subcommands back to its default,
// since bound package variables persist across invocations.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) {
	t.Helper()
	if err := execCmd(args...); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
}

func execCmd(args ...string) error {
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// isolate points HOME at a temp dir so no user config is read.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func write(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func nonEmpty(t *testing.T, path string) {
	t.Helper()
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected %s: %v", path, err)
	}
	if st.Size() == 0 {
		t.Fatalf("%s is empty", path)
	}
}

// jhuCases is ten days of cumulative counts growing by 10 a day.
func jhuCases() string {
	var b strings.Builder
	b.WriteString("Province/State,Country/Region,Lat,Long")
	for d := 1; d <= 10; d++ {
		fmt.Fprintf(&b, ",1/%d/21", d)
	}
	b.WriteString("\n,Poland,52,19")
	for d := 1; d <= 10; d++ {
		fmt.Fprintf(&b, ",%d", d*10)
	}
	b.WriteString("\n")
	return b.String()
}

const irisData = `5.1,3.5,1.4,0.2,Iris-setosa
4.9,3.0,1.4,0.2,Iris-setosa
4.7,3.2,1.3,0.2,Iris-setosa
7.0,3.2,4.7,1.4,Iris-versicolor
6.4,3.2,4.5,1.5,Iris-versicolor
6.9,3.1,4.9,1.5,Iris-versicolor
`

const titanicCSV = `pclass,survived,sex,age
1st,1,female,29
1st,0,male,45
3rd,0,male,
3rd,1,female,5
3rd,0,female,15
`

func TestCLI_CovidMovingAverage(t *testing.T) {
	dir := isolate(t)
	cases := write(t, filepath.Join(dir, "cases.csv"), jhuCases())
	out := filepath.Join(dir, "out", "ma.csv")
	chart := filepath.Join(dir, "out", "ma.png")

	runCmd(t, "covid", "--cases", cases, "--countries", "Poland", "--window", "3",
		"--from", "2021-01-05", "--to", "2021-01-08", "--export", out, "--chart", chart)

	want := "date,Poland\n2021-01-05,10\n2021-01-06,10\n2021-01-07,10\n2021-01-08,10\n"
	if got := read(t, out); got != want {
		t.Fatalf("export = %q, want %q", got, want)
	}
	nonEmpty(t, chart)
}

func TestCLI_CovidRequiresCases(t *testing.T) {
	isolate(t)
	if err := execCmd("covid", "--countries", "Poland"); err == nil {
		t.Fatalf("expected error without --cases")
	}
}

func TestCLI_DescribeAndQuantiles(t *testing.T) {
	dir := isolate(t)
	iris := write(t, filepath.Join(dir, "iris.data"), irisData)

	report := filepath.Join(dir, "iris.md")
	runCmd(t, "describe", iris, "--schema", "iris", "-o", report)
	md := read(t, report)
	for _, col := range []string{"petal_length", "class"} {
		if !strings.Contains(md, col) {
			t.Fatalf("report missing column %s:\n%s", col, md)
		}
	}

	q := filepath.Join(dir, "q.csv")
	runCmd(t, "quantiles", iris, "--schema", "iris", "--by", "class", "--col", "petal_length",
		"--ps", "0.5", "--sort", "p50", "--export", q)
	want := "class,p50\nIris-versicolor,4.700000\nIris-setosa,1.400000\n"
	if got := read(t, q); got != want {
		t.Fatalf("quantiles = %q, want %q", got, want)
	}

	if err := execCmd("quantiles", iris, "--schema", "iris", "--by", "class", "--col", "petal_length", "--ps", "1.5"); err == nil {
		t.Fatalf("expected error for percentile above 1")
	}
}

func TestCLI_Survival(t *testing.T) {
	dir := isolate(t)
	titanic := write(t, filepath.Join(dir, "titanic.csv"), titanicCSV)

	long := filepath.Join(dir, "by_sex.csv")
	runCmd(t, "survival", titanic, "--by", "sex", "--export", long)
	got := read(t, long)
	for _, line := range []string{"sex,survivors_pct,survivors,total", "female,0.666667,2,3", "male,0.000000,0,2"} {
		if !strings.Contains(got, line) {
			t.Fatalf("survival table missing %q:\n%s", line, got)
		}
	}

	wide := filepath.Join(dir, "by_age.csv")
	chart := filepath.Join(dir, "by_age.png")
	runCmd(t, "survival", titanic, "--bins", "0,20,40,60", "--bin-col", "age",
		"--by", "age_group,sex", "--unstack", "--export", wide, "--chart", chart)
	if !strings.HasPrefix(read(t, wide), "sex,") {
		t.Fatalf("unstacked table should start with the inner key:\n%s", read(t, wide))
	}
	nonEmpty(t, chart)
}

func TestCLI_Plot(t *testing.T) {
	dir := isolate(t)
	iris := write(t, filepath.Join(dir, "iris.data"), irisData)

	for _, kind := range []string{"box", "hist", "kde", "mean"} {
		out := filepath.Join(dir, kind+".png")
		runCmd(t, "plot", iris, "--schema", "iris", "--kind", kind, "--x", "petal_length", "--hue", "class", "-o", out)
		nonEmpty(t, out)
	}
	count := filepath.Join(dir, "count.svg")
	runCmd(t, "plot", iris, "--schema", "iris", "--kind", "count", "--x", "class", "-o", count)
	nonEmpty(t, count)

	if err := execCmd("plot", iris, "--schema", "iris", "--kind", "pie", "--x", "petal_length", "-o", filepath.Join(dir, "pie.png")); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if err := execCmd("plot", iris, "--schema", "iris", "--kind", "line", "--x", "petal_length", "-o", filepath.Join(dir, "line.png")); err == nil {
		t.Fatalf("expected error for line without --date")
	}
}

func TestCLI_RunRecipes(t *testing.T) {
	dir := isolate(t)
	write(t, filepath.Join(dir, "data", "cases.csv"), jhuCases())
	write(t, filepath.Join(dir, "recipes", "poland.yaml"), `
inputs:
  cases: ../data/cases.csv
raw: true
outputs:
  table: ../out/poland.md
  summary: ../out/poland.json
`)

	runCmd(t, "run", "--quiet", filepath.Join(dir, "recipes", "*.yaml"))

	md := read(t, filepath.Join(dir, "out", "poland.md"))
	if !strings.Contains(md, "| Poland | 2021-01-10 | 10 |") {
		t.Fatalf("table missing last day:\n%s", md)
	}
	var sum struct {
		Recipe string `json:"recipe"`
		Mode   string `json:"mode"`
		To     string `json:"to"`
	}
	if err := json.Unmarshal([]byte(read(t, filepath.Join(dir, "out", "poland.json"))), &sum); err != nil {
		t.Fatalf("summary json: %v", err)
	}
	if sum.Recipe != "poland" || sum.Mode != "raw" || sum.To != "2021-01-10" {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	if err := execCmd("run", filepath.Join(dir, "nothing", "*.yaml")); err == nil {
		t.Fatalf("expected error when no recipe matches")
	}
}

func TestCLI_ConfigSet(t *testing.T) {
	dir := isolate(t)
	t.Cleanup(func() { cfg = nil })
	path := filepath.Join(dir, "config.yaml")

	runCmd(t, "config", "set", "window", "14", "--config", path)
	runCmd(t, "config", "set", "countries", "Poland, Germany", "--config", path)
	got := read(t, path)
	for _, want := range []string{"window: 14", "- Poland", "- Germany"} {
		if !strings.Contains(got, want) {
			t.Fatalf("config missing %q:\n%s", want, got)
		}
	}
	if err := execCmd("config", "set", "window", "0", "--config", path); err == nil {
		t.Fatalf("expected error for non-positive window")
	}
	if err := execCmd("config", "set", "api_key", "x", "--config", path); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}
