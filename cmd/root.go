package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/KaramelBytes/dataloom-cli/internal/config"
	"github.com/KaramelBytes/dataloom-cli/internal/recipe"
	"github.com/KaramelBytes/dataloom-cli/internal/render"
	"github.com/KaramelBytes/dataloom-cli/internal/utils"
)

var (
	// Global flags
	cfgFile string
	debug   bool

	// Loaded configuration
	cfg *cfgpkg.Global

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "dataloom",
	Short: "dataloom: reshape, window, enrich and chart tabular data",
	Long: `dataloom turns wide time-series CSVs into per-entity daily panels with rolling
averages and per-capita columns, profiles and groups tabular files, and renders
charts from them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		level := zapcore.InfoLevel
		if cfg != nil && cfg.LogLevel != "" {
			if l, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
				level = l
			}
		}
		if debug {
			level = zapcore.DebugLevel
		}
		zc.Level = zap.NewAtomicLevelAt(level)
		l, err := zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.dataloom/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c
}

// chartOptions applies the configured chart size.
func chartOptions(title, xlabel, ylabel string) render.Options {
	opt := render.Options{Title: title, XLabel: xlabel, YLabel: ylabel}
	if cfg != nil {
		opt.Width, opt.Height = cfg.ChartWidthIn, cfg.ChartHeightIn
	}
	return opt
}

// defaultWindow is the configured moving-average length.
func defaultWindow() int {
	if cfg != nil && cfg.Window > 0 {
		return cfg.Window
	}
	return 7
}

// outputPath places a relative output under the configured output_dir.
func outputPath(p string) string {
	if cfg == nil || cfg.OutputDir == "" {
		return p
	}
	return utils.ResolveRelative(cfg.OutputDir, p)
}

func newRunner() *recipe.Runner {
	rn := &recipe.Runner{Log: logger, Chart: chartOptions("", "", "")}
	if cfg != nil {
		rn.DateLayout = cfg.DateLayout
	}
	return rn
}
