package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dataloom-cli/internal/export"
	"github.com/KaramelBytes/dataloom-cli/internal/recipe"
)

var (
	covCases      string
	covDeaths     string
	covPopulation string
	covPopYear    string
	covCountries  []string
	covFrom       string
	covTo         string
	covWindow     int
	covAgg        string
	covMetrics    []string
	covChart      string
	covYoY        string
	covExport     string
	covRaw        bool
	covWeekly     bool
	covLong       bool
)

var covidCmd = &cobra.Command{
	Use:   "covid",
	Short: "Daily increments, moving averages and per-capita rates from JHU time series",
	Long: `Reads the JHU CSSE wide time-series files (one column per date), sums provinces
into countries, converts cumulative totals into daily increments and prints a
moving average for the selected countries. With --population, per-million
columns are joined through fuzzy country-name matching.`,
	Example: `  dataloom covid --cases confirmed.csv --population API_SP.POP.TOTL.csv \
    --countries Poland,Germany --from 2021-01-01 --to 2021-03-31 --metric cases_per_mln --chart ma.png`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		countries := covCountries
		if len(countries) == 0 && cfg != nil {
			countries = cfg.Countries
		}
		popYear := covPopYear
		if popYear == "" && cfg != nil {
			popYear = cfg.PopulationYear
		}
		window := covWindow
		if !cmd.Flags().Changed("window") {
			window = defaultWindow()
		}
		r := &recipe.Recipe{
			Name: "covid",
			Inputs: recipe.Inputs{
				Cases:          covCases,
				Deaths:         covDeaths,
				Population:     covPopulation,
				PopulationYear: popYear,
			},
			Countries:    countries,
			Window:       window,
			Aggregate:    covAgg,
			From:         covFrom,
			To:           covTo,
			Metrics:      covMetrics,
			YearOverYear: covYoY != "",
			Weekly:       covWeekly,
			Raw:          covRaw,
			Outputs:      recipe.Outputs{Chart: outputPath(covChart), YoYChart: outputPath(covYoY)},
		}
		res, err := newRunner().Run(cmd.Context(), r)
		if err != nil {
			return err
		}
		sum := res.Summary
		if len(sum.Unmapped) > 0 {
			fmt.Printf("⚠ %d entities without a country code (excluded): %s\n", len(sum.Unmapped), strings.Join(sum.Unmapped, ", "))
		}
		if len(sum.NoPopulation) > 0 {
			fmt.Printf("⚠ %d entities without population (excluded): %s\n", len(sum.NoPopulation), strings.Join(sum.NoPopulation, ", "))
		}
		if len(sum.MissingCountries) > 0 {
			fmt.Printf("⚠ not in data: %s\n", strings.Join(sum.MissingCountries, ", "))
		}

		var tables []*export.Table
		if covLong {
			tables = []*export.Table{res.Long(fmt.Sprintf("%s %s..%s", sum.Mode, sum.From, sum.To))}
		} else if tables, err = res.Tables(); err != nil {
			return err
		}
		for _, t := range tables {
			fmt.Println(t.Markdown())
		}
		if covExport != "" {
			path := outputPath(covExport)
			if err := export.Write(path, tables...); err != nil {
				return err
			}
			fmt.Printf("✓ Wrote table to %s\n", path)
		}
		for _, out := range sum.Outputs {
			fmt.Printf("✓ Wrote chart to %s\n", out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(covidCmd)
	covidCmd.Flags().StringVar(&covCases, "cases", "", "JHU confirmed-cases time series CSV (required)")
	covidCmd.Flags().StringVar(&covDeaths, "deaths", "", "JHU deaths time series CSV")
	covidCmd.Flags().StringVar(&covPopulation, "population", "", "World Bank population CSV (adds per-million columns)")
	covidCmd.Flags().StringVar(&covPopYear, "population-year", "", "population column to use (default: latest year with data)")
	covidCmd.Flags().StringSliceVar(&covCountries, "countries", nil, "comma-separated countries to show (default: all, or config countries)")
	covidCmd.Flags().StringVar(&covFrom, "from", "", "first displayed date, YYYY-MM-DD (default: 30 days before --to)")
	covidCmd.Flags().StringVar(&covTo, "to", "", "last displayed date, YYYY-MM-DD (default: last date in the data)")
	covidCmd.Flags().IntVar(&covWindow, "window", 7, "moving window length in days")
	covidCmd.Flags().StringVar(&covAgg, "agg", "mean", "window aggregate: mean | sum")
	covidCmd.Flags().StringSliceVar(&covMetrics, "metric", nil, "metrics to show, e.g. cases,cases_per_mln (default: all)")
	covidCmd.Flags().StringVar(&covChart, "chart", "", "write a line chart per metric (.png, .svg, .pdf)")
	covidCmd.Flags().StringVar(&covYoY, "yoy", "", "write a year-over-year comparison grid to this chart file")
	covidCmd.Flags().StringVar(&covExport, "export", "", "write the printed tables to a file (.csv, .tsv, .md, .xlsx)")
	covidCmd.Flags().BoolVar(&covRaw, "raw", false, "show daily increments without a window")
	covidCmd.Flags().BoolVar(&covWeekly, "weekly", false, "show Monday-to-Sunday weekly totals instead of a window")
	covidCmd.Flags().BoolVar(&covLong, "long", false, "print one row per country and date instead of pivoted tables")
	_ = covidCmd.MarkFlagRequired("cases")
}
