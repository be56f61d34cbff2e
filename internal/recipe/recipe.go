// Package recipe describes a repeatable COVID analysis run in YAML and
// executes it: load, enrich, window, chart and export.
package recipe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/dataloom-cli/internal/export"
	"github.com/KaramelBytes/dataloom-cli/internal/timeseries"
	"github.com/KaramelBytes/dataloom-cli/internal/utils"
)

// ErrInvalid is returned for a recipe that cannot run.
var ErrInvalid = errors.New("invalid recipe")

// Inputs are the data files of a recipe. Paths are relative to the recipe file.
type Inputs struct {
	Cases          string `yaml:"cases"`
	Deaths         string `yaml:"deaths,omitempty"`
	Population     string `yaml:"population,omitempty"`
	PopulationYear string `yaml:"population_year,omitempty"`
}

// Outputs are the files a run writes. Empty entries are skipped.
type Outputs struct {
	Chart    string `yaml:"chart,omitempty"`
	YoYChart string `yaml:"yoy_chart,omitempty"`
	// Table receives the long panel of the display window.
	Table string `yaml:"table,omitempty"`
	// Pivot receives each metric pivoted to date rows and entity columns.
	Pivot   string `yaml:"pivot,omitempty"`
	Summary string `yaml:"summary,omitempty"`
}

// Recipe is one notebook-style run.
type Recipe struct {
	Name      string   `yaml:"name"`
	Inputs    Inputs   `yaml:"inputs"`
	Countries []string `yaml:"countries,omitempty"`
	Window    int      `yaml:"window,omitempty"`
	// Aggregate is "mean" (default) or "sum".
	Aggregate string `yaml:"aggregate,omitempty"`
	// From and To bound the display range; empty To is the last date in the
	// data and empty From is DefaultSpan days before To.
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`
	// Metrics to window and plot; empty means every metric of the panel.
	Metrics      []string `yaml:"metrics,omitempty"`
	YearOverYear bool     `yaml:"year_over_year,omitempty"`
	// Weekly replaces the moving window with Monday-to-Sunday totals.
	Weekly bool `yaml:"weekly,omitempty"`
	// Raw shows the daily increments without a window.
	Raw     bool    `yaml:"raw,omitempty"`
	Outputs Outputs `yaml:"outputs,omitempty"`

	path string
}

// DateLayout is the layout of From and To.
const DateLayout = "2006-01-02"

// Display modes.
const (
	ModeMoving = "moving"
	ModeYoY    = "year_over_year"
	ModeWeekly = "weekly"
	ModeRaw    = "raw"
)

// Mode names how values are displayed.
func (r *Recipe) Mode() string {
	switch {
	case r.Weekly:
		return ModeWeekly
	case r.YearOverYear:
		return ModeYoY
	case r.Raw:
		return ModeRaw
	}
	return ModeMoving
}

// Load reads a recipe file and resolves its paths against the file's directory.
func Load(path string) (*Recipe, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("recipe not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read recipe: %w", err)
	}
	var r Recipe
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parse recipe %s: %w", filepath.Base(path), err)
	}
	r.path = path
	if r.Name == "" {
		r.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	base := filepath.Dir(path)
	for _, p := range []*string{
		&r.Inputs.Cases, &r.Inputs.Deaths, &r.Inputs.Population,
		&r.Outputs.Chart, &r.Outputs.YoYChart, &r.Outputs.Table, &r.Outputs.Pivot, &r.Outputs.Summary,
	} {
		*p = utils.ResolveRelative(base, *p)
	}
	if r.Window == 0 {
		r.Window = 7
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Path returns the file the recipe was loaded from.
func (r *Recipe) Path() string { return r.path }

// Files lists the input files a run reads, the recipe itself included.
func (r *Recipe) Files() []string {
	var out []string
	for _, p := range []string{r.path, r.Inputs.Cases, r.Inputs.Deaths, r.Inputs.Population} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Range parses From and To. An empty bound is returned as the zero time.
func (r *Recipe) Range() (from, to time.Time, err error) {
	if r.From != "" {
		if from, err = time.Parse(DateLayout, r.From); err != nil {
			return from, to, fmt.Errorf("%w: from: %v", ErrInvalid, err)
		}
	}
	if r.To != "" {
		if to, err = time.Parse(DateLayout, r.To); err != nil {
			return from, to, fmt.Errorf("%w: to: %v", ErrInvalid, err)
		}
	}
	return from, to, nil
}

// Agg returns the window aggregate.
func (r *Recipe) Agg() timeseries.Agg {
	a, _ := timeseries.ParseAgg(r.Aggregate)
	return a
}

// Validate checks the recipe without touching the inputs.
func (r *Recipe) Validate() error {
	var problems []string
	if r.Inputs.Cases == "" {
		problems = append(problems, "inputs.cases is required")
	}
	if r.Window <= 0 {
		problems = append(problems, fmt.Sprintf("window must be positive, got %d", r.Window))
	}
	if r.Aggregate != "" {
		if _, ok := timeseries.ParseAgg(r.Aggregate); !ok {
			problems = append(problems, fmt.Sprintf("aggregate must be mean or sum, got %q", r.Aggregate))
		}
	}
	if from, to, err := r.Range(); err != nil {
		problems = append(problems, strings.TrimPrefix(err.Error(), ErrInvalid.Error()+": "))
	} else if !from.IsZero() && !to.IsZero() && to.Before(from) {
		problems = append(problems, "to is before from")
	}
	modes := 0
	for _, on := range []bool{r.YearOverYear, r.Weekly, r.Raw} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		problems = append(problems, "year_over_year, weekly and raw are exclusive")
	}
	if r.Outputs.YoYChart != "" && !r.YearOverYear {
		problems = append(problems, "outputs.yoy_chart needs year_over_year")
	}
	for _, p := range []string{r.Outputs.Table, r.Outputs.Pivot} {
		if p != "" && !supported(p) {
			problems = append(problems, fmt.Sprintf("unsupported table format %s (use %s)", filepath.Ext(p), strings.Join(export.Formats(), ", ")))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w %s: %s", ErrInvalid, r.Name, strings.Join(problems, "; "))
	}
	return nil
}

func supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range export.Formats() {
		if f == ext {
			return true
		}
	}
	return false
}
