package covid

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/dataloom-cli/internal/enrich"
	"github.com/KaramelBytes/dataloom-cli/internal/timeseries"
)

// Metric names of the daily panel.
const (
	Cases  = "cases"
	Deaths = "deaths"
)

// YearAgoSuffix names the columns holding the same statistic one year earlier.
const YearAgoSuffix = "_1y_ago"

// YearAgoDays is the lag used for year-over-year comparisons.
const YearAgoDays = 365

// Inputs locates the files of one analysis. Deaths and Population are optional.
type Inputs struct {
	Cases          string
	Deaths         string
	Population     string
	PopulationYear string
	Layout         WideOptions
}

// Dataset is the daily panel of one analysis run.
type Dataset struct {
	// Daily holds per-day increments for every entity in the input.
	Daily *timeseries.Panel
	// Enriched is Daily joined with population, or nil without a population file.
	Enriched *timeseries.Panel
	Report   enrich.Report
}

// Panel returns the enriched panel when present, otherwise the daily one.
func (d *Dataset) Panel() *timeseries.Panel {
	if d.Enriched != nil {
		return d.Enriched
	}
	return d.Daily
}

// Load reads cumulative series, converts them to daily increments and,
// when a population file is given, joins per-capita columns.
func Load(in Inputs, res enrich.Resolver, log *zap.Logger) (*Dataset, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if in.Layout.EntityColumn == "" {
		in.Layout = JHUOptions()
	}
	if in.Cases == "" {
		return nil, fmt.Errorf("load: cases file is required")
	}

	frames := []*timeseries.Frame{}
	for _, src := range []struct{ metric, path string }{{Cases, in.Cases}, {Deaths, in.Deaths}} {
		if src.path == "" {
			continue
		}
		cum, err := LoadFrame(src.path, src.metric, in.Layout)
		if err != nil {
			return nil, err
		}
		from, to, _ := cum.Span()
		log.Debug("loaded cumulative series",
			zap.String("metric", src.metric),
			zap.String("path", src.path),
			zap.Int("entities", len(cum.Entities())),
			zap.Time("from", from),
			zap.Time("to", to))
		frames = append(frames, cum.Diff())
	}
	daily, err := timeseries.NewPanel(frames...)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{Daily: daily}
	if in.Population == "" {
		return ds, nil
	}

	pop, err := enrich.LoadPopulation(in.Population, in.PopulationYear)
	if err != nil {
		return nil, err
	}
	enriched, rep, err := enrich.PerCapita(daily, res, pop, daily.Metrics()...)
	if err != nil {
		return nil, err
	}
	log.Info("joined population",
		zap.Int("entities", len(enriched.Entities())),
		zap.Int("unmapped", len(rep.Unmapped)),
		zap.Int("no_population", len(rep.NoPopulation)))
	if len(rep.Unmapped) > 0 {
		log.Debug("unmapped entities", zap.Strings("names", rep.Unmapped))
	}
	ds.Enriched, ds.Report = enriched, rep
	return ds, nil
}

// Window configures a trailing moving aggregate displayed over [From, To].
type Window struct {
	Size int
	Agg  timeseries.Agg
	From time.Time
	To   time.Time
}

// MovingAverage computes w for each metric of p, reading only the lookback
// days it needs before w.From.
func MovingAverage(p *timeseries.Panel, w Window, metrics ...string) (*timeseries.Panel, error) {
	if len(metrics) == 0 {
		metrics = p.Metrics()
	}
	out := make([]*timeseries.Frame, 0, len(metrics))
	for _, m := range metrics {
		f, ok := p.Frame(m)
		if !ok {
			return nil, fmt.Errorf("moving average: unknown metric %q", m)
		}
		r, err := f.RollingBetween(w.Size, w.Agg, w.From, w.To)
		if err != nil {
			return nil, fmt.Errorf("moving average %s: %w", m, err)
		}
		out = append(out, r)
	}
	return timeseries.NewPanel(out...)
}

// WithYearAgo returns the moving aggregate of each metric alongside the same
// aggregate one year earlier, re-dated onto the current range under
// "<metric>_1y_ago".
func WithYearAgo(p *timeseries.Panel, w Window, metrics ...string) (*timeseries.Panel, error) {
	cur, err := MovingAverage(p, w, metrics...)
	if err != nil {
		return nil, err
	}
	prevWin := w
	prevWin.From = w.From.AddDate(0, 0, -YearAgoDays)
	prevWin.To = w.To.AddDate(0, 0, -YearAgoDays)
	prev, err := MovingAverage(p, prevWin, cur.Metrics()...)
	if err != nil {
		return nil, err
	}
	shifted, err := prev.Apply(func(f *timeseries.Frame) (*timeseries.Frame, error) {
		return f.Shift(YearAgoDays), nil
	})
	if err != nil {
		return nil, err
	}
	return cur.JoinSuffix(shifted, YearAgoSuffix)
}

// Countries restricts p to names and returns the names absent from p.
func Countries(p *timeseries.Panel, names []string) (*timeseries.Panel, []string) {
	if len(names) == 0 {
		return p, nil
	}
	have := map[string]bool{}
	for _, e := range p.Entities() {
		have[e] = true
	}
	var missing []string
	for _, n := range names {
		if !have[n] {
			missing = append(missing, n)
		}
	}
	return p.Restrict(names), missing
}
