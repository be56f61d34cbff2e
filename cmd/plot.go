package cmd

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dataloom-cli/internal/dataset"
	"github.com/KaramelBytes/dataloom-cli/internal/render"
)

var (
	plotSchema string
	plotSheet  string
	plotKind   string
	plotX      string
	plotHue    string
	plotDate   string
	plotBins   int
	plotOut    string
)

var plotKinds = []string{"strip", "hist", "box", "ecdf", "kde", "seq", "mean", "count", "line"}

// hueKeys returns the hue of every row, or "" for all rows when hue is unset.
func hueKeys(t *dataset.Table, hue string) ([]string, error) {
	if hue == "" {
		return make([]string, t.Rows()), nil
	}
	return t.Strings(hue)
}

// levelOrder lists the distinct non-empty keys in first-seen order.
func levelOrder(keys []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// groupsByHue splits column x into one group per hue level. Rows with a
// missing hue are dropped.
func groupsByHue(t *dataset.Table, x, hue string) ([]render.Group, error) {
	vals, err := t.Floats(x)
	if err != nil {
		return nil, err
	}
	keys, err := hueKeys(t, hue)
	if err != nil {
		return nil, err
	}
	if hue == "" {
		return []render.Group{{Label: x, Values: vals}}, nil
	}
	idx := map[string]int{}
	var out []render.Group
	for _, k := range levelOrder(keys) {
		idx[k] = len(out)
		out = append(out, render.Group{Label: k})
	}
	for i, v := range vals {
		if keys[i] == "" {
			continue
		}
		g := &out[idx[keys[i]]]
		g.Values = append(g.Values, v)
	}
	return out, nil
}

// countMatrix counts rows per category of x and hue level.
func countMatrix(t *dataset.Table, x, hue string) (cats, hues []string, counts [][]float64, err error) {
	xs, err := t.Strings(x)
	if err != nil {
		return nil, nil, nil, err
	}
	keys, err := hueKeys(t, hue)
	if err != nil {
		return nil, nil, nil, err
	}
	cats = levelOrder(xs)
	sort.Strings(cats)
	if hue == "" {
		hues = []string{"count"}
		for i := range keys {
			keys[i] = "count"
		}
	} else {
		hues = levelOrder(keys)
		sort.Strings(hues)
	}
	ci := map[string]int{}
	for i, c := range cats {
		ci[c] = i
	}
	hi := map[string]int{}
	counts = make([][]float64, len(hues))
	for i, h := range hues {
		hi[h] = i
		counts[i] = make([]float64, len(cats))
	}
	for i, c := range xs {
		if c == "" || keys[i] == "" {
			continue
		}
		counts[hi[keys[i]]][ci[c]]++
	}
	return cats, hues, counts, nil
}

// dateLines builds one date-sorted line of x per hue level.
func dateLines(t *dataset.Table, date, x, hue string) ([]render.Line, error) {
	dates, err := t.Dates(date)
	if err != nil {
		return nil, err
	}
	vals, err := t.Floats(x)
	if err != nil {
		return nil, err
	}
	keys, err := hueKeys(t, hue)
	if err != nil {
		return nil, err
	}
	if hue == "" {
		for i := range keys {
			keys[i] = x
		}
	}
	type obs struct {
		d time.Time
		v float64
	}
	byKey := map[string][]obs{}
	for i, d := range dates {
		if d.IsZero() || keys[i] == "" {
			continue
		}
		byKey[keys[i]] = append(byKey[keys[i]], obs{d, vals[i]})
	}
	var out []render.Line
	for _, k := range levelOrder(keys) {
		o := byKey[k]
		sort.SliceStable(o, func(a, b int) bool { return o[a].d.Before(o[b].d) })
		l := render.Line{Label: k}
		for _, p := range o {
			l.X = append(l.X, p.d)
			l.Y = append(l.Y, p.v)
		}
		out = append(out, l)
	}
	return out, nil
}

var plotCmd = &cobra.Command{
	Use:   "plot <file>",
	Short: "Render a distribution, count or time-series chart from a table",
	Long: fmt.Sprintf(`Renders one chart of column --x, split into groups by --hue.

Kinds: %s.
  count  bars per category of --x (and per --hue level)
  line   --x over the date column --date, one line per --hue level
  mean   group means with 95%% confidence bars
The output format follows the file extension: .png, .svg or .pdf.`, strings.Join(plotKinds, ", ")),
	Example: `  dataloom plot iris.data --schema iris --kind box --x petal_length --hue class -o box.png
  dataloom plot dow_jones_index.data --schema dowjones --kind line --x close --date date --hue stock -o close.svg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !slices.Contains(plotKinds, plotKind) {
			return fmt.Errorf("unknown --kind %q (want one of %s)", plotKind, strings.Join(plotKinds, ", "))
		}
		t, err := loadTable(args[0], plotSchema, plotSheet, "")
		if err != nil {
			return err
		}
		title := plotKind + " of " + plotX
		if plotHue != "" {
			title += " by " + plotHue
		}
		opt := chartOptions(title, plotX, "")
		out := outputPath(plotOut)

		switch plotKind {
		case "count":
			cats, hues, counts, err := countMatrix(t, plotX, plotHue)
			if err != nil {
				return err
			}
			err = render.Counts(out, cats, hues, counts, opt)
			if err != nil {
				return err
			}
		case "line":
			if plotDate == "" {
				return fmt.Errorf("--kind line needs --date")
			}
			lines, err := dateLines(t, plotDate, plotX, plotHue)
			if err != nil {
				return err
			}
			opt.XLabel, opt.YLabel = plotDate, plotX
			if err := render.Lines(out, lines, opt); err != nil {
				return err
			}
		default:
			groups, err := groupsByHue(t, plotX, plotHue)
			if err != nil {
				return err
			}
			switch plotKind {
			case "strip":
				err = render.Strip(out, groups, opt)
			case "hist":
				err = render.Histogram(out, groups, plotBins, opt)
			case "box":
				err = render.Box(out, groups, opt)
			case "ecdf":
				err = render.ECDF(out, groups, opt)
			case "kde":
				err = render.KDE(out, groups, opt)
			case "seq":
				opt.XLabel, opt.YLabel = "index", plotX
				err = render.Sequence(out, groups, opt)
			case "mean":
				opt.XLabel, opt.YLabel = plotHue, "mean "+plotX
				err = render.PointEstimate(out, groups, opt)
			default:
				return fmt.Errorf("unknown --kind %q (want one of %s)", plotKind, strings.Join(plotKinds, ", "))
			}
			if err != nil {
				return err
			}
		}
		fmt.Printf("✓ Wrote chart to %s\n", out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(plotCmd)
	plotCmd.Flags().StringVar(&plotSchema, "schema", "", "built-in schema name or schema YAML file")
	plotCmd.Flags().StringVar(&plotSheet, "sheet", "", "XLSX: sheet name (default: first sheet)")
	plotCmd.Flags().StringVar(&plotKind, "kind", "hist", "chart kind: "+strings.Join(plotKinds, "|"))
	plotCmd.Flags().StringVar(&plotX, "x", "", "column to plot (required)")
	plotCmd.Flags().StringVar(&plotHue, "hue", "", "column splitting rows into groups")
	plotCmd.Flags().StringVar(&plotDate, "date", "", "date column for --kind line")
	plotCmd.Flags().IntVar(&plotBins, "bins", 15, "bin count for --kind hist")
	plotCmd.Flags().StringVarP(&plotOut, "output", "o", "", "chart file (required)")
	_ = plotCmd.MarkFlagRequired("x")
	_ = plotCmd.MarkFlagRequired("output")
}
