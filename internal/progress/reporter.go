package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalSize is the total size in bytes of the artifact.
	// Zero means unknown; percentage and ETA are suppressed.
	TotalSize int64

	// InitialBytes is the byte offset a resumed download starts from.
	InitialBytes int64

	// Label identifies the artifact being downloaded (for display).
	Label string

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration
}

// Reporter outputs human-readable progress for one download.
type Reporter struct {
	opts Options

	mu         sync.Mutex
	written    atomic.Int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	stopCh     chan struct{}
	stopped    bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	r := &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
	}
	r.written.Store(opts.InitialBytes)
	return r
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.lastBytes = r.opts.InitialBytes

	if r.opts.InitialBytes > 0 {
		fmt.Fprintf(r.opts.Output, "[era5dl] Downloading %s (resuming at %s of %s)\n",
			r.opts.Label,
			FormatBytes(r.opts.InitialBytes),
			FormatBytes(r.opts.TotalSize),
		)
	} else {
		fmt.Fprintf(r.opts.Output, "[era5dl] Downloading %s (%s)\n",
			r.opts.Label,
			FormatBytes(r.opts.TotalSize),
		)
	}

	go r.updateLoop()
}

// Stop stops the progress reporter.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
}

// Add records n freshly downloaded bytes.
func (r *Reporter) Add(n int64) {
	r.written.Add(n)
}

// Written returns the total bytes accounted for, including the resume offset.
func (r *Reporter) Written() int64 {
	return r.written.Load()
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	written := r.written.Load()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(written-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = written

	if r.opts.TotalSize <= 0 {
		fmt.Fprintf(r.opts.Output, "\r[era5dl] %s: %s | Speed: %s/s    ",
			r.opts.Label,
			FormatBytes(written),
			FormatBytes(int64(speed)),
		)
		return
	}

	percent := float64(written) / float64(r.opts.TotalSize) * 100
	eta := "calculating..."
	if speed > 0 {
		remaining := float64(r.opts.TotalSize - written)
		eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
	}

	fmt.Fprintf(r.opts.Output, "\r[era5dl] %s: %.1f%% | %s / %s | Speed: %s/s | ETA: %s    ",
		r.opts.Label,
		percent,
		FormatBytes(written),
		FormatBytes(r.opts.TotalSize),
		FormatBytes(int64(speed)),
		eta,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	written := r.written.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(written-r.opts.InitialBytes) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "\r[era5dl] %s: %s / %s | Time: %s | Average speed: %s/s\n",
		r.opts.Label,
		FormatBytes(written),
		FormatBytes(r.opts.TotalSize),
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// FormatBytes formats bytes as a human-readable string.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// ParseBytes parses a human-readable byte string (e.g., "1MB").
func ParseBytes(s string) (int64, error) {
	var multiplier int64 = 1
	s = trimSuffix(s, " ")

	switch {
	case hasSuffix(s, "TB"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "KB"):
		multiplier = 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "B"):
		s = s[:len(s)-1]
	}

	var value float64
	_, err := fmt.Sscanf(s, "%f", &value)
	if err != nil {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}

	return int64(value * float64(multiplier)), nil
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func trimSuffix(s, suffix string) string {
	for hasSuffix(s, suffix) {
		s = s[:len(s)-len(suffix)]
	}
	return s
}
