package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/Hem-W/ERA5-toolbox/internal/config"
	"github.com/Hem-W/ERA5-toolbox/internal/naming"
	"github.com/Hem-W/ERA5-toolbox/internal/worker"
)

// runPlan prints the expanded task list without touching the network,
// so a run can be reviewed before spending any API quota.
func runPlan(args []string) int {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	years := fs.String("years", "", "Comma-separated years to download")
	variables := fs.String("variables", "", "Comma-separated API variable names")
	dataset := fs.String("dataset", "", "Dataset identifier")
	levels := fs.String("levels", "", "Comma-separated pressure levels in hPa")
	outputDir := fs.String("output", "", "Directory for downloaded artifacts")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: era5dl plan [options]

Print every task a download run would enqueue and the artifact path it
would produce. Makes no network calls.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, code := resolveConfig(*configPath, fs, config.Config{
		Years:     splitList(*years),
		Variables: splitList(*variables),
		Dataset:   *dataset,
		Levels:    splitList(*levels),
		OutputDir: *outputDir,
	})
	if code != ExitSuccess {
		return code
	}

	tasks := worker.BuildTasks(worker.TaskSet{
		TemporalKeys: cfg.Years,
		Variables:    cfg.Variables,
		Dataset:      cfg.Dataset,
		Levels:       cfg.Levels,
		ShortNames:   cfg.ShortNames,
		SkipExisting: cfg.SkipExisting,
		Overrides:    cfg.Overrides,
	})

	scheme := naming.DefaultScheme()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "YEAR\tVARIABLE\tLEVEL\tARTIFACT")
	for _, task := range tasks {
		name := task.ArtifactName(scheme)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			task.TemporalKey, task.Variable, task.Level,
			filepath.Join(cfg.OutputDir, name))
	}
	w.Flush()

	fmt.Printf("%d tasks across %d years\n", len(tasks), len(cfg.Years))
	return ExitSuccess
}
