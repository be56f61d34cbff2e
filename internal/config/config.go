package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	DataDir   string `mapstructure:"data_dir" yaml:"data_dir"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// Window is the default moving-average length in days.
	Window     int      `mapstructure:"window" yaml:"window"`
	DateLayout string   `mapstructure:"date_layout" yaml:"date_layout"`
	Countries  []string `mapstructure:"countries" yaml:"countries"`

	// Chart size in inches.
	ChartWidthIn  float64 `mapstructure:"chart_width_in" yaml:"chart_width_in"`
	ChartHeightIn float64 `mapstructure:"chart_height_in" yaml:"chart_height_in"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// PopulationYear selects the World Bank column; empty picks the latest
	// year with data.
	PopulationYear string `mapstructure:"population_year" yaml:"population_year"`
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"data_dir", "output_dir", "window", "date_layout", "countries",
	"chart_width_in", "chart_height_in", "log_level", "population_year",
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".dataloom"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.dataloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := defaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
// A .env file in the working directory is read into the environment first.
func Load(cfgFile string) (*Global, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DATALOOM")
	v.AutomaticEnv()

	v.SetDefault("data_dir", ".")
	v.SetDefault("output_dir", ".")
	v.SetDefault("window", 7)
	v.SetDefault("date_layout", "2006-01-02")
	v.SetDefault("countries", []string{})
	v.SetDefault("chart_width_in", 0.0)
	v.SetDefault("chart_height_in", 0.0)
	v.SetDefault("log_level", "info")
	v.SetDefault("population_year", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// DATALOOM_COUNTRIES="Poland,Germany"
	if len(c.Countries) == 1 && strings.Contains(c.Countries[0], ",") {
		c.Countries = splitList(c.Countries[0])
	}
	if c.Window <= 0 {
		return nil, fmt.Errorf("config window: must be positive, got %d", c.Window)
	}
	return &c, nil
}

// Set assigns a key from its string form.
func (c *Global) Set(key, value string) error {
	switch key {
	case "data_dir":
		c.DataDir = value
	case "output_dir":
		c.OutputDir = value
	case "window":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil || n <= 0 {
			return fmt.Errorf("window must be a positive integer")
		}
		c.Window = n
	case "date_layout":
		c.DateLayout = value
	case "countries":
		c.Countries = splitList(value)
	case "chart_width_in", "chart_height_in":
		var f float64
		if _, err := fmt.Sscanf(value, "%g", &f); err != nil || f < 0 {
			return fmt.Errorf("%s must be a non-negative number", key)
		}
		if key == "chart_width_in" {
			c.ChartWidthIn = f
		} else {
			c.ChartHeightIn = f
		}
	case "log_level":
		switch value {
		case "debug", "info", "warn", "error":
			c.LogLevel = value
		default:
			return fmt.Errorf("log_level must be one of debug, info, warn, error")
		}
	case "population_year":
		c.PopulationYear = value
	default:
		return fmt.Errorf("unknown key %q (valid: %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
