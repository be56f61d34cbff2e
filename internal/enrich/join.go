package enrich

import (
	"fmt"
	"sort"

	"github.com/KaramelBytes/dataloom-cli/internal/timeseries"
)

// PopulationMetric is the name of the joined population column.
const PopulationMetric = "pop_mln"

// PerMillionSuffix is appended to a metric name for its per-capita column.
const PerMillionSuffix = "_per_mln"

// Resolver maps an entity name to an ISO alpha-3 country code.
type Resolver interface {
	Code(name string) (string, bool)
}

// Report lists how every entity of the input fared in the join.
type Report struct {
	Mapped       map[string]string // entity -> alpha-3
	Unmapped     []string          // no country code
	NoPopulation []string          // code found, population missing
}

// Excluded returns every entity left out of the joined panel, sorted.
func (r Report) Excluded() []string {
	out := append(append([]string{}, r.Unmapped...), r.NoPopulation...)
	sort.Strings(out)
	return out
}

// PerCapita inner-joins p with population through res. Entities without a
// code or population are dropped and listed in the report. The result holds
// the input metrics, pop_mln, and "<metric>_per_mln" for each of metrics
// (all input metrics when none are given).
func PerCapita(p *timeseries.Panel, res Resolver, pop Population, metrics ...string) (*timeseries.Panel, Report, error) {
	if len(metrics) == 0 {
		metrics = p.Metrics()
	}
	rep := Report{Mapped: map[string]string{}}
	popOf := map[string]float64{}
	var kept []string
	for _, e := range p.Entities() {
		code, ok := res.Code(e)
		if !ok {
			rep.Unmapped = append(rep.Unmapped, e)
			continue
		}
		rep.Mapped[e] = code
		v, ok := pop[code]
		if !ok {
			rep.NoPopulation = append(rep.NoPopulation, e)
			continue
		}
		popOf[e] = v
		kept = append(kept, e)
	}

	joined := p.Restrict(kept)
	var extra []*timeseries.Frame
	for i, m := range metrics {
		f, ok := joined.Frame(m)
		if !ok {
			return nil, rep, fmt.Errorf("per-capita: unknown metric %q", m)
		}
		if i == 0 {
			extra = append(extra, f.Map(PopulationMetric, func(e string, _ timeseries.Point) timeseries.Point {
				return timeseries.Val(popOf[e])
			}))
		}
		extra = append(extra, f.Map(m+PerMillionSuffix, func(e string, pt timeseries.Point) timeseries.Point {
			if !pt.Valid {
				return pt
			}
			return timeseries.Val(pt.Value / popOf[e])
		}))
	}
	out, err := joined.With(extra...)
	if err != nil {
		return nil, rep, fmt.Errorf("per-capita: %w", err)
	}
	return out, rep, nil
}
