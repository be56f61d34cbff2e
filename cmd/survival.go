package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dataloom-cli/internal/analysis"
	"github.com/KaramelBytes/dataloom-cli/internal/export"
	"github.com/KaramelBytes/dataloom-cli/internal/render"
)

var (
	survSchema  string
	survSheet   string
	survBy      []string
	survTarget  string
	survBins    string
	survBinCol  string
	survUnstack bool
	survChart   string
	survExport  string
)

var survivalCmd = &cobra.Command{
	Use:   "survival <file>",
	Short: "Survivor share and counts per group",
	Long: `Groups rows by one or more columns and reports the share of survivors, the
survivor count and the group size. --bins buckets a numeric column into
right-closed intervals first; every interval is listed, empty ones included.`,
	Example: `  dataloom survival titanic.csv --by sex,pclass --unstack
  dataloom survival titanic.csv --bins 0:80:10 --bin-col age --by age_group,sex --chart survival.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTable(args[0], survSchema, survSheet, "")
		if err != nil {
			return err
		}
		opt := analysis.SurvivalOptions{Target: survTarget, By: survBy}
		if survBins != "" {
			edges, err := analysis.ParseBins(survBins)
			if err != nil {
				return err
			}
			group := survBinCol + "_group"
			cut, levels, err := analysis.Cut(t, survBinCol, edges, group)
			if err != nil {
				return err
			}
			t = cut
			opt.Levels = map[string][]string{group: levels}
			if len(opt.By) == 0 {
				opt.By = []string{group}
			}
		}
		st, err := analysis.Survival(t, opt)
		if err != nil {
			return err
		}
		out := st.Table()
		if survUnstack {
			out = st.Unstack()
		}
		fmt.Print(out.Markdown())

		if survExport != "" {
			path := outputPath(survExport)
			if err := export.Write(path, out); err != nil {
				return err
			}
			fmt.Printf("✓ Wrote table to %s\n", path)
		}
		if survChart != "" {
			cats := make([]string, len(st.Rows))
			counts := [][]float64{make([]float64, len(st.Rows)), make([]float64, len(st.Rows))}
			for i, r := range st.Rows {
				cats[i] = strings.Join(r.Keys, " / ")
				counts[0][i] = float64(r.Survivors)
				counts[1][i] = float64(r.Died)
			}
			opt := chartOptions("survival by "+strings.Join(st.By, ", "), strings.Join(st.By, " / "), "count")
			path := outputPath(survChart)
			if err := render.Counts(path, cats, []string{"survived", "died"}, counts, opt); err != nil {
				return err
			}
			fmt.Printf("✓ Wrote chart to %s\n", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(survivalCmd)
	survivalCmd.Flags().StringVar(&survSchema, "schema", "titanic", "built-in schema name or schema YAML file")
	survivalCmd.Flags().StringVar(&survSheet, "sheet", "", "XLSX: sheet name (default: first sheet)")
	survivalCmd.Flags().StringSliceVar(&survBy, "by", nil, "comma-separated group-by columns")
	survivalCmd.Flags().StringVar(&survTarget, "target", "survived", "column holding 1 for a survivor")
	survivalCmd.Flags().StringVar(&survBins, "bins", "", "bucket --bin-col: start:stop:step or a comma list of edges")
	survivalCmd.Flags().StringVar(&survBinCol, "bin-col", "age", "numeric column bucketed by --bins into <col>_group")
	survivalCmd.Flags().BoolVar(&survUnstack, "unstack", false, "pivot the first group-by column into columns")
	survivalCmd.Flags().StringVar(&survChart, "chart", "", "write a survived/died bar chart (.png, .svg, .pdf)")
	survivalCmd.Flags().StringVar(&survExport, "export", "", "write the table to a file (.csv, .tsv, .md, .xlsx)")
}
