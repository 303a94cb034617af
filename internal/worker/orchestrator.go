package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Hem-W/ERA5-toolbox/internal/cds"
	"github.com/Hem-W/ERA5-toolbox/internal/queue"
)

// TaskSet describes the cartesian product of selectors a run covers.
type TaskSet struct {
	TemporalKeys []string
	Variables    []string
	Dataset      string
	Levels       []string
	ShortNames   map[string]string
	SkipExisting bool
	Overrides    map[string]any
}

// BuildTasks expands a TaskSet into the full list of download tasks:
// temporal keys × variables × levels (levels optional). Duplicate
// suppression is the caller's concern; the queue does not enforce it.
func BuildTasks(set TaskSet) []DownloadTask {
	levels := set.Levels
	if len(levels) == 0 {
		levels = []string{""}
	}

	var tasks []DownloadTask
	for _, key := range set.TemporalKeys {
		for _, variable := range set.Variables {
			for _, level := range levels {
				tasks = append(tasks, DownloadTask{
					TemporalKey:      key,
					Variable:         variable,
					Dataset:          set.Dataset,
					Level:            level,
					ShortName:        set.ShortNames[variable],
					SkipExisting:     set.SkipExisting,
					RequestOverrides: set.Overrides,
				})
			}
		}
	}
	return tasks
}

// Orchestrator fans tasks out to credential workers and waits for
// every worker to drain.
type Orchestrator struct {
	// Keys are the opaque credentials, one quota-limited channel each.
	Keys []string

	// WorkersPerKey is the fan-out per credential. Default: 2.
	WorkersPerKey int

	// NewRetriever builds the retrieval client for one credential.
	NewRetriever func(key string) (cds.Retriever, error)

	// WorkerOptions are shared by all workers.
	WorkerOptions Options
}

// Run enqueues tasks, starts len(Keys) × WorkersPerKey workers, and
// blocks until all of them reach the drained state. Per-task failures
// are counted, never propagated: the returned error only reflects
// context cancellation.
func (o *Orchestrator) Run(ctx context.Context, logger *slog.Logger, tasks []DownloadTask) (*Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	workersPerKey := o.WorkersPerKey
	if workersPerKey <= 0 {
		workersPerKey = 2
	}

	runID := uuid.NewString()[:8]
	logger = logger.With("run", runID)

	if vars := uncheckableSkipVariables(tasks); len(vars) > 0 {
		logger.Warn("skip_existing enabled but no short name configured; existing files cannot be reliably detected",
			"variables", vars)
	}

	q := queue.New[DownloadTask](len(tasks))
	for _, task := range tasks {
		if err := q.Put(task); err != nil {
			return nil, fmt.Errorf("enqueue tasks: %w", err)
		}
	}
	// The full task set is known up front; no producer remains.
	q.Close()

	logger.Info("task queue initialized",
		"tasks", len(tasks), "keys", len(o.Keys), "workers_per_key", workersPerKey)

	stats := &Stats{}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range o.Keys {
		for i := 0; i < workersPerKey; i++ {
			id := fmt.Sprintf("%s:%d", keyPrefix(key), i)
			key := key
			g.Go(func() error {
				retriever, err := o.NewRetriever(key)
				if err != nil {
					// Fatal for this worker only; its siblings and the
					// other credentials keep draining the queue.
					logger.Error("worker failed to start", "worker", id, "error", err)
					return nil
				}
				w := NewWorker(id, retriever, q, stats, logger, o.WorkerOptions)
				return w.Run(gctx)
			})
		}
	}

	err := g.Wait()

	succeeded, skipped, failed := stats.Snapshot()
	logger.Info("all workers drained",
		"succeeded", succeeded,
		"skipped", skipped,
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Second))

	if err != nil {
		return stats, fmt.Errorf("run interrupted: %w", err)
	}
	return stats, nil
}

// uncheckableSkipVariables lists, in task order, the distinct variables
// that ask for skip-existing without a short name. For those the
// existence check is disabled and the download always runs.
func uncheckableSkipVariables(tasks []DownloadTask) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, t := range tasks {
		if t.SkipExisting && t.ShortName == "" && !seen[t.Variable] {
			seen[t.Variable] = true
			vars = append(vars, t.Variable)
		}
	}
	return vars
}

// keyPrefix returns the loggable prefix of a credential. Only the
// first four characters ever reach the logs.
func keyPrefix(key string) string {
	if len(key) > 4 {
		return key[:4]
	}
	return key
}
