package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/dataloom-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set dataloom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		fmt.Printf("data_dir: %s\n", cfg.DataDir)
		fmt.Printf("output_dir: %s\n", cfg.OutputDir)
		fmt.Printf("window: %d\n", cfg.Window)
		fmt.Printf("date_layout: %s\n", cfg.DateLayout)
		if len(cfg.Countries) > 0 {
			fmt.Printf("countries: %s\n", strings.Join(cfg.Countries, ", "))
		}
		if cfg.ChartWidthIn > 0 || cfg.ChartHeightIn > 0 {
			fmt.Printf("chart_width_in: %g\n", cfg.ChartWidthIn)
			fmt.Printf("chart_height_in: %g\n", cfg.ChartHeightIn)
		}
		fmt.Printf("log_level: %s\n", cfg.LogLevel)
		if cfg.PopulationYear != "" {
			fmt.Printf("population_year: %s\n", cfg.PopulationYear)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("✓ Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
