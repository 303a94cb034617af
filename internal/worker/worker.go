package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Hem-W/ERA5-toolbox/internal/cds"
	"github.com/Hem-W/ERA5-toolbox/internal/fetch"
	"github.com/Hem-W/ERA5-toolbox/internal/naming"
	"github.com/Hem-W/ERA5-toolbox/internal/ncmeta"
	"github.com/Hem-W/ERA5-toolbox/internal/queue"
)

// Stats counts task outcomes across all workers of a run.
type Stats struct {
	Succeeded atomic.Int64
	Skipped   atomic.Int64
	Failed    atomic.Int64
}

// Snapshot returns the current counts as plain values.
func (s *Stats) Snapshot() (succeeded, skipped, failed int64) {
	return s.Succeeded.Load(), s.Skipped.Load(), s.Failed.Load()
}

// Options configures a credential worker.
type Options struct {
	// OutputDir is the directory artifacts are written into.
	OutputDir string

	// Scheme is the artifact naming scheme.
	Scheme naming.Scheme

	// GetTimeout bounds one blocking queue wait. Default: 10s.
	GetTimeout time.Duration

	// Fetcher is the fallback transport.
	Fetcher *fetch.Fetcher

	// Archiver, when set, receives every completed artifact
	// (best effort; failures never fail the task).
	Archiver Archiver
}

// Archiver stores completed artifacts in off-host storage.
type Archiver interface {
	Store(ctx context.Context, localPath string) error
}

// Worker owns one credential and drains tasks from the shared queue.
// Several workers may share one credential to keep its quota-limited
// channel saturated while the remote side is preparing data.
type Worker struct {
	id        string
	retriever cds.Retriever
	tasks     *queue.Queue[DownloadTask]
	opts      Options
	logger    *slog.Logger
	stats     *Stats
}

// NewWorker constructs a worker around an already-built retriever.
// Building the retriever is the caller's responsibility; when that
// fails the caller simply never starts this worker, and its siblings
// keep draining the queue.
func NewWorker(id string, retriever cds.Retriever, tasks *queue.Queue[DownloadTask], stats *Stats, logger *slog.Logger, opts Options) *Worker {
	if opts.GetTimeout <= 0 {
		opts.GetTimeout = 10 * time.Second
	}
	return &Worker{
		id:        id,
		retriever: retriever,
		tasks:     tasks,
		opts:      opts,
		logger:    logger.With("worker", id),
		stats:     stats,
	}
}

// Run processes tasks until the queue drains or ctx is cancelled.
// One bad task never stops the worker: every error, including panics
// from task processing, is recovered at this loop boundary.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	defer w.logger.Info("worker drained")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		task, ok, drained := w.tasks.Get(w.opts.GetTimeout)
		if drained {
			w.logger.Info("worker received stop signal")
			return nil
		}
		if !ok {
			// Timeout. Re-check emptiness before exiting so a task
			// mid-insert by another goroutine is not stranded.
			if w.tasks.Len() == 0 {
				w.logger.Info("worker found empty queue, exiting")
				return nil
			}
			continue
		}

		w.runTask(ctx, task)
	}
}

// runTask executes one task to completion, converting panics and
// errors into a logged failure.
func (w *Worker) runTask(ctx context.Context, task DownloadTask) {
	defer func() {
		if r := recover(); r != nil {
			w.stats.Failed.Add(1)
			w.logger.Error("task panicked",
				"variable", task.Variable, "temporal_key", task.TemporalKey, "panic", r)
		}
	}()

	skipped, err := w.process(ctx, task)
	switch {
	case err != nil:
		w.stats.Failed.Add(1)
		w.logger.Error("task failed",
			"variable", task.Variable,
			"temporal_key", task.TemporalKey,
			"dataset", task.Dataset,
			"error", err)
	case skipped:
		w.stats.Skipped.Add(1)
	default:
		w.stats.Succeeded.Add(1)
	}
}

// process runs the two-stage download protocol for one task.
func (w *Worker) process(ctx context.Context, task DownloadTask) (skipped bool, err error) {
	target := task.ArtifactName(w.opts.Scheme)
	targetPath := filepath.Join(w.opts.OutputDir, target)

	// Without a short name the provisional and final names can differ,
	// so an existence check is not trustworthy. The orchestrator warns
	// about that misconfiguration once, up front.
	if task.SkipExisting && task.ShortName != "" {
		if _, statErr := os.Stat(targetPath); statErr == nil {
			w.logger.Info("skipping existing artifact", "target", target, "variable", task.Variable)
			return true, nil
		}
	}

	w.logger.Info("requesting artifact", "target", target, "dataset", task.Dataset)

	handle, err := w.retriever.Retrieve(ctx, task.Dataset, buildRequest(task))
	if err != nil {
		return false, fmt.Errorf("retrieve: %w", err)
	}

	directURL := handle.DirectURL()
	if directURL == "" {
		w.logger.Warn("no direct download URL available, fallback transport disabled", "target", target)
	}

	if err := handle.Materialize(ctx, targetPath); err != nil {
		w.logger.Error("primary download failed", "target", target, "error", err)

		if directURL == "" {
			w.discardPartial(targetPath)
			return false, fmt.Errorf("primary transport failed with no fallback URL: %w", err)
		}

		w.logger.Info("attempting fallback download", "target", target, "url", directURL)
		if fbErr := w.opts.Fetcher.Download(ctx, directURL, targetPath); fbErr != nil {
			w.discardPartial(targetPath)
			return false, fmt.Errorf("fallback transport exhausted: %w (primary: %w)", fbErr, err)
		}
		w.logger.Info("fallback download succeeded", "target", target)
	}

	finalPath, err := w.finalizeName(task, targetPath)
	if err != nil {
		return false, err
	}

	if w.opts.Archiver != nil {
		if archErr := w.opts.Archiver.Store(ctx, finalPath); archErr != nil {
			w.logger.Warn("archive copy failed", "target", filepath.Base(finalPath), "error", archErr)
		}
	}

	w.logger.Info("task complete", "target", filepath.Base(finalPath))
	return false, nil
}

// finalizeName renames a provisionally named artifact to its final
// name once the true variable code is known. Tasks with a short name
// already carry the final name. When the final name is already taken,
// the freshly downloaded duplicate is discarded, never overwritten.
func (w *Worker) finalizeName(task DownloadTask, targetPath string) (string, error) {
	if task.ShortName != "" {
		return targetPath, nil
	}

	code := ncmeta.ResolveCode(w.logger, targetPath, task.Variable)
	final := w.opts.Scheme.ArtifactName(code, task.Level, task.TemporalKey)
	finalPath := filepath.Join(w.opts.OutputDir, final)
	if finalPath == targetPath {
		return targetPath, nil
	}

	if _, err := os.Stat(finalPath); err == nil {
		w.logger.Warn("final artifact already exists, discarding duplicate",
			"final", final, "duplicate", filepath.Base(targetPath))
		if err := os.Remove(targetPath); err != nil {
			return "", fmt.Errorf("discard duplicate: %w", err)
		}
		return finalPath, nil
	}

	if err := os.Rename(targetPath, finalPath); err != nil {
		return "", fmt.Errorf("rename to final name: %w", err)
	}
	w.logger.Info("renamed artifact", "from", filepath.Base(targetPath), "to", final)
	return finalPath, nil
}

// discardPartial removes a presumed-corrupt artifact so a later
// skip-existing check cannot mistake it for a complete download.
func (w *Worker) discardPartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("could not remove partial artifact", "path", path, "error", err)
	}
}
