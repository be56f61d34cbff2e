package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dataloom-cli/internal/analysis"
)

var (
	qSchema string
	qSheet  string
	qBy     string
	qCol    string
	qPs     string
	qSort   string
	qTop    int
	qExport string
)

func parsePercentiles(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []float64
	for _, f := range strings.Split(s, ",") {
		p, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil || p < 0 || p > 1 {
			return nil, fmt.Errorf("invalid percentile %q: want a number in [0, 1]", f)
		}
		out = append(out, p)
	}
	return out, nil
}

var quantilesCmd = &cobra.Command{
	Use:   "quantiles <file>",
	Short: "Per-group percentiles of a numeric column",
	Example: `  dataloom quantiles dow_jones_index.data --schema dowjones --by stock --col percent_change_price \
    --sort p95 --top 10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, err := parsePercentiles(qPs)
		if err != nil {
			return err
		}
		t, err := loadTable(args[0], qSchema, qSheet, "")
		if err != nil {
			return err
		}
		out, err := analysis.Quantiles(t, analysis.QuantileOptions{By: qBy, Col: qCol, Ps: ps, SortBy: qSort, Top: qTop})
		if err != nil {
			return err
		}
		return emit(qExport, out)
	},
}

func init() {
	rootCmd.AddCommand(quantilesCmd)
	quantilesCmd.Flags().StringVar(&qSchema, "schema", "", "built-in schema name or schema YAML file")
	quantilesCmd.Flags().StringVar(&qSheet, "sheet", "", "XLSX: sheet name (default: first sheet)")
	quantilesCmd.Flags().StringVar(&qBy, "by", "", "group-by column (required)")
	quantilesCmd.Flags().StringVar(&qCol, "col", "", "numeric column (required)")
	quantilesCmd.Flags().StringVar(&qPs, "ps", "", "comma-separated percentiles in [0, 1] (default: 0.01,0.05,0.25,0.5,0.75,0.95,0.99)")
	quantilesCmd.Flags().StringVar(&qSort, "sort", "", "percentile column to sort on, descending (e.g. p95)")
	quantilesCmd.Flags().IntVar(&qTop, "top", 0, "keep the first n groups after sorting")
	quantilesCmd.Flags().StringVar(&qExport, "export", "", "write the table to a file instead of printing (.csv, .tsv, .md, .xlsx)")
	_ = quantilesCmd.MarkFlagRequired("by")
	_ = quantilesCmd.MarkFlagRequired("col")
}
