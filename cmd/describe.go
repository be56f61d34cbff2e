package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/dataloom-cli/internal/analysis"
	"github.com/KaramelBytes/dataloom-cli/internal/dataset"
	"github.com/KaramelBytes/dataloom-cli/internal/export"
	"github.com/KaramelBytes/dataloom-cli/internal/utils"
)

var (
	descSchema      string
	descSheet       string
	descDelimiter   string
	descOutputPath  string
	descSampleRows  int
	descGroupBy     []string
	descCorr        bool
	descOutliers    bool
	descOutlierThr  float64
	descStats       bool
	descValueCounts string
	descNormalize   bool
	descNLargest    string
	descN           int
)

// loadTable reads path with a built-in or file schema.
func loadTable(path, schemaRef, sheet, delimiter string) (*dataset.Table, error) {
	schema, err := dataset.ResolveSchema(schemaRef)
	if err != nil {
		return nil, err
	}
	opt := dataset.ReadOptions{Sheet: sheet}
	switch delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return nil, fmt.Errorf("unsupported --delimiter: %s", delimiter)
	}
	t, err := dataset.Load(path, schema, opt)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded table",
		zap.String("path", path),
		zap.String("schema", schema.Name),
		zap.Int("rows", t.Rows()),
		zap.Strings("columns", t.Columns()))
	if len(t.Degraded) > 0 {
		logger.Warn("unparsable cells loaded as missing", zap.Strings("columns", t.DegradedSummary()))
	}
	return t, nil
}

// emit prints tables as Markdown, or writes them when out is set.
func emit(out string, tables ...*export.Table) error {
	if out != "" {
		out = outputPath(out)
		if err := export.Write(out, tables...); err != nil {
			return err
		}
		fmt.Printf("✓ Wrote %s\n", out)
		return nil
	}
	for i, t := range tables {
		if i > 0 {
			fmt.Println()
		}
		fmt.Print(t.Markdown())
	}
	return nil
}

var describeCmd = &cobra.Command{
	Use:   "describe <file>",
	Short: "Profile a CSV/TSV/TXT/XLSX table and produce a concise summary",
	Long: fmt.Sprintf(`Profiles every column of a table: type, missing values, numeric statistics,
top categories. Columns are typed by a schema, either built in (%s) or a YAML
file; without one every column is inferred.`, strings.Join(dataset.BuiltinNames(), ", ")),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTable(args[0], descSchema, descSheet, descDelimiter)
		if err != nil {
			return err
		}
		switch {
		case descValueCounts != "":
			vc, err := analysis.ValueCounts(t, descValueCounts, descNormalize)
			if err != nil {
				return err
			}
			return emit(descOutputPath, vc)
		case descNLargest != "":
			top, err := analysis.NLargest(t, descNLargest, descN)
			if err != nil {
				return err
			}
			return emit(descOutputPath, &export.Table{
				Title:  fmt.Sprintf("%d largest by %s", descN, descNLargest),
				Header: top.Columns(),
				Rows:   top.Head(top.Rows()),
			})
		case descStats:
			return emit(descOutputPath, analysis.DescribeTable(t))
		}

		opt := analysis.DefaultOptions()
		if descSampleRows > 0 {
			opt.SampleRows = descSampleRows
		}
		opt.GroupBy = descGroupBy
		opt.Correlations = descCorr
		opt.Outliers = descOutliers
		if descOutlierThr > 0 {
			opt.OutlierThreshold = descOutlierThr
		}
		rep, err := analysis.Describe(t, opt)
		if err != nil {
			return err
		}
		md := rep.Markdown()
		if descOutputPath != "" {
			path := outputPath(descOutputPath)
			if err := utils.SafeWriteFile(path, []byte(md)); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote analysis to %s\n", path)
			return nil
		}
		fmt.Println(md)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringVar(&descSchema, "schema", "", "built-in schema name or schema YAML file")
	describeCmd.Flags().StringVar(&descSheet, "sheet", "", "XLSX: sheet name (default: first sheet)")
	describeCmd.Flags().StringVar(&descDelimiter, "delimiter", "", "delimiter: ',' | ';' | 'tab' (default by extension)")
	describeCmd.Flags().StringVarP(&descOutputPath, "output", "o", "", "optional path to write the result")
	describeCmd.Flags().IntVar(&descSampleRows, "sample-rows", 5, "number of sample rows to include")
	describeCmd.Flags().StringSliceVar(&descGroupBy, "group-by", nil, "comma-separated column names to group by (repeatable)")
	describeCmd.Flags().BoolVar(&descCorr, "correlations", false, "compute Pearson correlations among numeric columns")
	describeCmd.Flags().BoolVar(&descOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	describeCmd.Flags().Float64Var(&descOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	describeCmd.Flags().BoolVar(&descStats, "stats", false, "print count/mean/std/quartiles of numeric columns only")
	describeCmd.Flags().StringVar(&descValueCounts, "value-counts", "", "print the frequency of each value of a column")
	describeCmd.Flags().BoolVar(&descNormalize, "normalize", false, "with --value-counts, print proportions")
	describeCmd.Flags().StringVar(&descNLargest, "nlargest", "", "print the rows with the largest values of a numeric column")
	describeCmd.Flags().IntVar(&descN, "n", 5, "row count for --nlargest")
}
