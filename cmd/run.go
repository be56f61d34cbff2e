package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dataloom-cli/internal/recipe"
)

var (
	runQuiet    bool
	runWatch    bool
	runDebounce time.Duration
)

// expandRecipes resolves globs and literal paths, deduplicated and sorted.
// Without arguments it takes every recipe in the configured data_dir.
func expandRecipes(args []string) ([]string, error) {
	if len(args) == 0 {
		dir := "."
		if cfg != nil && cfg.DataDir != "" {
			dir = cfg.DataDir
		}
		args = []string{filepath.Join(dir, "*.yaml"), filepath.Join(dir, "*.yml")}
	}
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no recipe files matched")
	}
	sort.Strings(files)
	return files, nil
}

func runRecipe(ctx context.Context, rn *recipe.Runner, path string) error {
	r, err := recipe.Load(path)
	if err != nil {
		return err
	}
	res, err := rn.Run(ctx, r)
	if err != nil {
		return err
	}
	if !runQuiet {
		for _, out := range res.Summary.Outputs {
			fmt.Printf("  ✓ %s\n", out)
		}
		if len(res.Summary.MissingCountries) > 0 {
			fmt.Printf("  ⚠ not in data: %v\n", res.Summary.MissingCountries)
		}
	}
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run [recipes...]",
	Short: "Run YAML recipes, optionally re-running them when their inputs change",
	Long: `Runs each recipe file in turn. A recipe names its input files, the countries,
the window and the outputs to write (charts, tables, a JSON run summary).
Relative paths in a recipe are resolved against the recipe's directory.
Without arguments every *.yaml recipe in data_dir is run.

With --watch the recipes keep running: a change to a recipe or to any file it
reads re-runs that recipe. Stop with Ctrl-C.`,
	Example: `  dataloom run recipes/*.yaml
  dataloom run europe.yaml --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandRecipes(args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		rn := newRunner()

		total := len(files)
		failed := 0
		for i, path := range files {
			if !runQuiet {
				fmt.Printf("[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			if err := runRecipe(ctx, rn, path); err != nil {
				if !runWatch {
					return err
				}
				failed++
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", filepath.Base(path), err)
			}
		}
		if !runWatch {
			return nil
		}

		if failed == 0 && !runQuiet {
			fmt.Printf("✓ %d recipe(s) done; watching for changes...\n", total)
		}
		w := &recipe.Watcher{
			Paths:    files,
			Debounce: runDebounce,
			Log:      logger,
			Run: func(ctx context.Context, path string) error {
				if !runQuiet {
					fmt.Printf("↻ %s changed, re-running...\n", filepath.Base(path))
				}
				err := runRecipe(ctx, rn, path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "✗ %s: %v\n", filepath.Base(path), err)
				}
				return err
			},
		}
		return w.Watch(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "suppress progress output")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "re-run recipes when they or their inputs change")
	runCmd.Flags().DurationVar(&runDebounce, "debounce", 300*time.Millisecond, "quiet period before a watched change triggers a run")
}
