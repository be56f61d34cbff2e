package recipe

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/dataloom-cli/internal/covid"
	"github.com/KaramelBytes/dataloom-cli/internal/enrich"
	"github.com/KaramelBytes/dataloom-cli/internal/export"
	"github.com/KaramelBytes/dataloom-cli/internal/geo"
	"github.com/KaramelBytes/dataloom-cli/internal/render"
	"github.com/KaramelBytes/dataloom-cli/internal/timeseries"
	"github.com/KaramelBytes/dataloom-cli/internal/utils"
)

// DefaultSpan is the display range, in days, used when a recipe sets no dates.
const DefaultSpan = 30

// Runner executes recipes with shared settings.
type Runner struct {
	// Resolver maps entity names to country codes; nil uses the built-in table.
	Resolver enrich.Resolver
	Log      *zap.Logger
	// Chart sets the chart size; titles come from the recipe.
	Chart render.Options
	// DateLayout formats dates in tables; empty uses DateLayout.
	DateLayout string
}

// Summary describes one finished run. It is written as JSON when the recipe
// names outputs.summary.
type Summary struct {
	RunID            string    `json:"run_id"`
	Recipe           string    `json:"recipe"`
	Path             string    `json:"path,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	DurationMs       int64     `json:"duration_ms"`
	Mode             string    `json:"mode"`
	Window           int       `json:"window"`
	Aggregate        string    `json:"aggregate"`
	From             string    `json:"from"`
	To               string    `json:"to"`
	Metrics          []string  `json:"metrics"`
	Entities         []string  `json:"entities"`
	MissingCountries []string  `json:"missing_countries,omitempty"`
	Unmapped         []string  `json:"unmapped,omitempty"`
	NoPopulation     []string  `json:"no_population,omitempty"`
	Outputs          []string  `json:"outputs"`
}

// Result is what a run computed.
type Result struct {
	Summary *Summary
	// Panel holds the displayed values over [From, To]; nil in weekly mode.
	Panel *timeseries.Panel
	// Weekly holds, in weekly mode, the rows of each metric.
	Weekly map[string][]timeseries.Row
	// Metrics are the displayed metrics, without year-ago companions.
	Metrics []string

	layout string
}

func (res *Result) dateLayout() string {
	if res.layout == "" {
		return DateLayout
	}
	return res.layout
}

// Tables pivots each displayed metric to date rows and entity columns.
func (res *Result) Tables() ([]*export.Table, error) {
	var out []*export.Table
	for _, m := range res.Metrics {
		if res.Panel == nil {
			out = append(out, pivotRows(m, res.Weekly[m], res.dateLayout()))
			continue
		}
		header, rows, err := res.Panel.Pivot(m, res.dateLayout())
		if err != nil {
			return nil, fmt.Errorf("pivot: %w", err)
		}
		out = append(out, &export.Table{Title: m, Header: header, Rows: rows})
	}
	return out, nil
}

// Long returns one row per entity and date with a column per metric.
func (res *Result) Long(title string) *export.Table {
	if res.Panel != nil {
		header, rows := res.Panel.Records(res.dateLayout())
		return &export.Table{Title: title, Header: header, Rows: rows}
	}
	// every metric yields the same (entity, week) sequence
	t := &export.Table{Title: title, Header: append([]string{"entity", "week_end"}, res.Metrics...)}
	for i, row := range res.Weekly[res.Metrics[0]] {
		rec := []string{row.Entity, row.Date.Format(res.dateLayout())}
		for _, m := range res.Metrics {
			rec = append(rec, timeseries.FormatPoint(res.Weekly[m][i].Point))
		}
		t.Rows = append(t.Rows, rec)
	}
	return t
}

// Run executes r once and writes its outputs.
func (rn *Runner) Run(ctx context.Context, r *Recipe) (*Result, error) {
	log := rn.Log
	if log == nil {
		log = zap.NewNop()
	}
	resolver := rn.Resolver
	if resolver == nil {
		resolver = geo.Default()
	}
	sum := &Summary{
		RunID:     uuid.NewString(),
		Recipe:    r.Name,
		Path:      r.path,
		StartedAt: time.Now(),
		Mode:      r.Mode(),
		Window:    r.Window,
		Aggregate: r.Agg().String(),
	}
	log = log.With(zap.String("run_id", sum.RunID), zap.String("recipe", r.Name))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	ds, err := covid.Load(covid.Inputs{
		Cases:          r.Inputs.Cases,
		Deaths:         r.Inputs.Deaths,
		Population:     r.Inputs.Population,
		PopulationYear: r.Inputs.PopulationYear,
	}, resolver, log)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", r.Name, err)
	}
	sum.Unmapped, sum.NoPopulation = ds.Report.Unmapped, ds.Report.NoPopulation

	panel, missing := covid.Countries(ds.Panel(), r.Countries)
	sum.MissingCountries = missing
	if len(missing) > 0 {
		log.Warn("countries not in panel", zap.Strings("countries", missing))
	}
	sum.Entities = panel.Entities()
	if len(sum.Entities) == 0 {
		return nil, fmt.Errorf("run %s: no entities left after filtering", r.Name)
	}
	metrics := r.Metrics
	if len(metrics) == 0 {
		metrics = panel.Metrics()
	}
	for _, m := range metrics {
		if _, ok := panel.Frame(m); !ok {
			return nil, fmt.Errorf("run %s: unknown metric %q (have %s)", r.Name, m, strings.Join(panel.Metrics(), ", "))
		}
	}
	sum.Metrics = metrics

	from, to, err := r.Range()
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = latest(panel)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -(DefaultSpan - 1))
	}
	sum.From, sum.To = from.Format(DateLayout), to.Format(DateLayout)
	log.Debug("display range", zap.String("from", sum.From), zap.String("to", sum.To))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Summary: sum, Metrics: metrics, layout: rn.DateLayout}
	w := covid.Window{Size: r.Window, Agg: r.Agg(), From: from, To: to}
	switch {
	case r.Weekly:
		res.Weekly, err = weekly(panel, metrics, from, to)
	case r.YearOverYear:
		res.Panel, err = covid.WithYearAgo(panel, w, metrics...)
	case r.Raw:
		res.Panel, err = panel.Apply(func(f *timeseries.Frame) (*timeseries.Frame, error) {
			return f.Between(from, to), nil
		})
		if err == nil {
			res.Panel = restrictMetrics(res.Panel, metrics)
		}
	default:
		res.Panel, err = covid.MovingAverage(panel, w, metrics...)
	}
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", r.Name, err)
	}

	if err := rn.writeOutputs(r, res); err != nil {
		return nil, err
	}
	sum.DurationMs = time.Since(sum.StartedAt).Milliseconds()
	if r.Outputs.Summary != "" {
		data, err := utils.PrettyJSON(sum)
		if err != nil {
			return nil, err
		}
		if err := utils.SafeWriteFile(r.Outputs.Summary, data); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
		sum.Outputs = append(sum.Outputs, r.Outputs.Summary)
	}
	log.Info("run finished",
		zap.Int("entities", len(sum.Entities)),
		zap.Strings("outputs", sum.Outputs),
		zap.Int64("duration_ms", sum.DurationMs))
	return res, nil
}

// latest is the last date any metric of p reaches.
func latest(p *timeseries.Panel) time.Time {
	var out time.Time
	for _, m := range p.Metrics() {
		f, _ := p.Frame(m)
		if _, to, ok := f.Span(); ok && to.After(out) {
			out = to
		}
	}
	return out
}

func restrictMetrics(p *timeseries.Panel, metrics []string) *timeseries.Panel {
	frames := make([]*timeseries.Frame, 0, len(metrics))
	for _, m := range metrics {
		if f, ok := p.Frame(m); ok {
			frames = append(frames, f)
		}
	}
	out, err := timeseries.NewPanel(frames...)
	if err != nil {
		return p
	}
	return out
}

// weekly computes Monday-to-Sunday totals for every week ending within
// [from, to].
func weekly(p *timeseries.Panel, metrics []string, from, to time.Time) (map[string][]timeseries.Row, error) {
	start := timeseries.WeekStart(from.AddDate(0, 0, -6))
	if start.AddDate(0, 0, 6).Before(from) {
		start = start.AddDate(0, 0, 7)
	}
	stop := to.AddDate(0, 0, 1)
	out := make(map[string][]timeseries.Row, len(metrics))
	for _, m := range metrics {
		f, _ := p.Frame(m)
		out[m] = f.Weekly(start, stop)
		if len(out[m]) != len(out[metrics[0]]) {
			return nil, fmt.Errorf("weekly: metric %s covers different entities than %s", m, metrics[0])
		}
	}
	return out, nil
}

// pivotRows lays long rows out as one row per date and one column per entity.
func pivotRows(title string, rows []timeseries.Row, layout string) *export.Table {
	var entities []string
	var dates []time.Time
	seenE, seenD := map[string]bool{}, map[time.Time]bool{}
	cells := map[string]string{}
	for _, r := range rows {
		if !seenE[r.Entity] {
			seenE[r.Entity] = true
			entities = append(entities, r.Entity)
		}
		if !seenD[r.Date] {
			seenD[r.Date] = true
			dates = append(dates, r.Date)
		}
		cells[r.Entity+"\x00"+r.Date.Format(layout)] = timeseries.FormatPoint(r.Point)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	t := &export.Table{Title: title, Header: append([]string{"date"}, entities...)}
	for _, d := range dates {
		rec := []string{d.Format(layout)}
		for _, e := range entities {
			rec = append(rec, cells[e+"\x00"+d.Format(layout)])
		}
		t.Rows = append(t.Rows, rec)
	}
	return t
}

// metricPath names the chart of one metric; a single metric keeps path.
func metricPath(path, metric string, n int) string {
	if n <= 1 {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + metric + ext
}

func chartTitle(r *Recipe, metric string) string {
	switch r.Mode() {
	case ModeWeekly:
		return fmt.Sprintf("%s: weekly %s", r.Name, metric)
	case ModeRaw:
		return fmt.Sprintf("%s: daily %s", r.Name, metric)
	}
	return fmt.Sprintf("%s: %d-day %s of %s", r.Name, r.Window, r.Agg(), metric)
}

func (rn *Runner) writeOutputs(r *Recipe, res *Result) error {
	out, sum := r.Outputs, res.Summary
	if out.Chart != "" {
		for _, m := range res.Metrics {
			var lines []render.Line
			if res.Panel != nil {
				f, _ := res.Panel.Frame(m)
				lines = render.FromFrame(f)
			} else {
				lines = render.FromRows(res.Weekly[m])
			}
			opt := rn.Chart
			opt.Title, opt.YLabel = chartTitle(r, m), m
			opt.Points = opt.Points || r.Weekly
			path := metricPath(out.Chart, m, len(res.Metrics))
			if err := render.Lines(path, lines, opt); err != nil {
				return fmt.Errorf("chart %s: %w", m, err)
			}
			sum.Outputs = append(sum.Outputs, path)
		}
	}
	if out.YoYChart != "" && r.YearOverYear {
		opt := rn.Chart
		opt.Width, opt.Height = 0, 0
		if err := render.YearOverYear(out.YoYChart, res.Panel, res.Metrics, covid.YearAgoSuffix, opt); err != nil {
			return fmt.Errorf("year over year chart: %w", err)
		}
		sum.Outputs = append(sum.Outputs, out.YoYChart)
	}
	if out.Table != "" {
		if err := export.Write(out.Table, res.Long(r.Name)); err != nil {
			return err
		}
		sum.Outputs = append(sum.Outputs, out.Table)
	}
	if out.Pivot != "" {
		tables, err := res.Tables()
		if err != nil {
			return err
		}
		if err := export.Write(out.Pivot, tables...); err != nil {
			return err
		}
		sum.Outputs = append(sum.Outputs, out.Pivot)
	}
	return nil
}
