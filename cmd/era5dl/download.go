package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/Hem-W/ERA5-toolbox/internal/archive"
	"github.com/Hem-W/ERA5-toolbox/internal/cds"
	"github.com/Hem-W/ERA5-toolbox/internal/config"
	"github.com/Hem-W/ERA5-toolbox/internal/fetch"
	"github.com/Hem-W/ERA5-toolbox/internal/naming"
	"github.com/Hem-W/ERA5-toolbox/internal/progress"
	"github.com/Hem-W/ERA5-toolbox/internal/worker"
)

// runDownload resolves the configuration, starts one worker pool per
// credential, and drains the task queue.
func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	credentialsPath := fs.String("credentials", "credentials.yaml", "Path to YAML credentials file")
	years := fs.String("years", "", "Comma-separated years to download")
	variables := fs.String("variables", "", "Comma-separated API variable names")
	dataset := fs.String("dataset", "", "Dataset identifier")
	levels := fs.String("levels", "", "Comma-separated pressure levels in hPa")
	outputDir := fs.String("output", "", "Directory for downloaded artifacts")
	workersPerKey := fs.Int("workers-per-key", 0, "Concurrent workers per credential")
	skipExisting := fs.Bool("skip-existing", true, "Skip artifacts already on disk")
	chunkSize := fs.String("chunk-size", "", "Read buffer size for the fallback transport (e.g. 4MB)")
	showProgress := fs.Bool("progress", false, "Show per-file progress output")
	strict := fs.Bool("strict", false, "Exit non-zero when any task failed")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: era5dl download [options]

Download the configured dataset slices, one file per year and variable,
spreading work across all credentials in the credentials file.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	var chunkBytes int64
	if *chunkSize != "" {
		var err error
		chunkBytes, err = progress.ParseBytes(*chunkSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid chunk size: %v\n", err)
			return ExitInvalidArgs
		}
	}

	cfg, code := resolveConfig(*configPath, fs, config.Config{
		Years:         splitList(*years),
		Variables:     splitList(*variables),
		Dataset:       *dataset,
		Levels:        splitList(*levels),
		OutputDir:     *outputDir,
		WorkersPerKey: *workersPerKey,
		Progress:      *showProgress,
		ChunkSize:     chunkBytes,
	})
	if code != ExitSuccess {
		return code
	}
	if flagWasSet(fs, "skip-existing") {
		cfg.SkipExisting = *skipExisting
	}

	creds, err := config.LoadCredentials(*credentialsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading credentials: %v\n", err)
		return ExitCredentialsError
	}

	logger := newLogger()
	logger.Info("starting download run",
		"years", cfg.Years,
		"variables", cfg.Variables,
		"dataset", cfg.Dataset,
		"levels", cfg.Levels,
		"output_dir", cfg.OutputDir,
		"keys", len(creds.Keys),
		"workers_per_key", cfg.WorkersPerKey,
		"skip_existing", cfg.SkipExisting)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		return ExitGeneralError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[era5dl] Received interrupt, shutting down...")
		cancel()
	}()

	fetcher := fetch.NewFetcher(logger, fetch.Options{
		ChunkSize:        cfg.ChunkSize,
		Attempts:         cfg.Retry.Attempts,
		BackoffBase:      cfg.Retry.Backoff,
		TransportRetries: cfg.Retry.TransportRetries,
		TransportBackoff: cfg.Retry.TransportBackoff,
		ShowProgress:     cfg.Progress,
	})

	var archiver worker.Archiver
	if cfg.Archive.Bucket != "" {
		a, err := archive.Open(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening archive bucket: %v\n", err)
			return ExitStorageError
		}
		defer a.Close()
		archiver = a
	}

	orch := &worker.Orchestrator{
		Keys:          creds.Keys,
		WorkersPerKey: cfg.WorkersPerKey,
		NewRetriever: func(key string) (cds.Retriever, error) {
			return cds.NewClient(key, logger, cds.Options{
				BaseURL:      cfg.API.URL,
				PollInterval: cfg.API.PollInterval,
			})
		},
		WorkerOptions: worker.Options{
			OutputDir: cfg.OutputDir,
			Scheme:    naming.DefaultScheme(),
			Fetcher:   fetcher,
			Archiver:  archiver,
		},
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

	stats, err := orch.Run(ctx, logger, tasks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run interrupted: %v\n", err)
		return ExitGeneralError
	}

	if _, _, failed := stats.Snapshot(); failed > 0 && *strict {
		return ExitIncomplete
	}
	return ExitSuccess
}

// resolveConfig layers file, environment, and flag values. Flags win.
func resolveConfig(configPath string, fs *flag.FlagSet, overrides config.Config) (config.Config, int) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return config.Config{}, ExitConfigError
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading environment: %v\n", err)
		return config.Config{}, ExitConfigError
	}
	cfg = cfg.Merge(overrides)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		if fs != nil {
			fs.Usage()
		}
		return config.Config{}, ExitInvalidArgs
	}
	return cfg, ExitSuccess
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil)).With("app", "era5dl")
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// flagWasSet reports whether the user passed the named flag, so a
// default-true flag can still override the config file.
func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
