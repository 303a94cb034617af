package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/Hem-W/ERA5-toolbox/internal/progress"
)

// Common errors.
var (
	// ErrIncomplete is returned when the number of bytes written never
	// reached the expected total. The caller decides whether to keep or
	// discard the partial file.
	ErrIncomplete = errors.New("fetch: download incomplete")
)

// Options configures the fetcher.
type Options struct {
	// ChunkSize is the read buffer size for streaming to disk.
	// Default: 1MB
	ChunkSize int64

	// Attempts is the number of whole-fetch attempts made by Download.
	// Default: 3
	Attempts int

	// BackoffBase is the wait before the second attempt; each further
	// attempt doubles it (60s, 120s, ... by default).
	// Default: 60s
	BackoffBase time.Duration

	// TransportRetries is the connection-level retry budget per request.
	// Default: 10
	TransportRetries int

	// TransportBackoff is the initial connection-level retry wait.
	// Default: 500ms
	TransportBackoff time.Duration

	// ConnectTimeout bounds connection establishment.
	// Default: 30s
	ConnectTimeout time.Duration

	// ReadTimeout bounds one whole request including body streaming.
	// Large payloads are throttled server-side, so this is generous.
	// Default: 30m
	ReadTimeout time.Duration

	// ShowProgress enables a progress display per fetch.
	ShowProgress bool

	// ProgressOutput overrides where progress is written (tests).
	ProgressOutput io.Writer
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:        1024 * 1024,
		Attempts:         3,
		BackoffBase:      60 * time.Second,
		TransportRetries: 10,
		TransportBackoff: 500 * time.Millisecond,
		ConnectTimeout:   30 * time.Second,
		ReadTimeout:      30 * time.Minute,
	}
}

// Fetcher downloads single URLs to local paths with resume support.
// It is the fallback transport: when the primary retrieval client fails
// but left behind a direct download URL, the fetcher takes over.
type Fetcher struct {
	client *retryablehttp.Client
	opts   Options
	logger *slog.Logger
}

// NewFetcher creates a fetcher with the given options.
func NewFetcher(logger *slog.Logger, opts Options) *Fetcher {
	def := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = def.BackoffBase
	}
	if opts.TransportRetries <= 0 {
		opts.TransportRetries = def.TransportRetries
	}
	if opts.TransportBackoff <= 0 {
		opts.TransportBackoff = def.TransportBackoff
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = def.ReadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.TransportRetries
	rc.RetryWaitMin = opts.TransportBackoff
	rc.RetryWaitMax = 30 * time.Second
	rc.Logger = nil
	rc.CheckRetry = checkRetry
	rc.HTTPClient = &http.Client{
		Timeout: opts.ReadTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: opts.ConnectTimeout,
			}).DialContext,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DisableCompression:  true, // raw bytes for range requests
		},
	}

	return &Fetcher{
		client: rc,
		opts:   opts,
		logger: logger,
	}
}

// checkRetry retries connection-level faults and retryable server errors.
// Only idempotent requests pass through this client (HEAD, GET), so the
// policy applies unconditionally.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// Download fetches url to path, retrying the whole fetch up to
// Options.Attempts times with exponential backoff between attempts
// (no wait before the first, none after the last). Partial output is
// left in place between attempts so a later attempt can resume it.
func (f *Fetcher) Download(ctx context.Context, url, path string) error {
	var lastErr error

	for attempt := 1; attempt <= f.opts.Attempts; attempt++ {
		if attempt > 1 {
			f.logger.Info("retrying fallback download",
				"attempt", attempt, "of", f.opts.Attempts, "target", filepath.Base(path))
		}

		lastErr = f.Fetch(ctx, url, path)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("fallback download attempt failed",
			"attempt", attempt, "target", filepath.Base(path), "error", lastErr)

		if attempt < f.opts.Attempts {
			wait := backoffWait(f.opts.BackoffBase, attempt)
			f.logger.Info("waiting before next attempt",
				"wait", wait, "target", filepath.Base(path))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", f.opts.Attempts, lastErr)
}

// backoffWait returns the wait after failed attempt n (1-based):
// base, 2*base, 4*base, ...
func backoffWait(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<uint(attempt-1))
}

// Fetch performs one resumable fetch of url to path. If path already
// holds a non-empty partial file, the fetch resumes from its current
// size with a range request; otherwise it starts fresh. The body is
// streamed to disk in fixed-size chunks, never buffered whole.
func (f *Fetcher) Fetch(ctx context.Context, url, path string) error {
	var offset int64
	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
		offset = fi.Size()
		f.logger.Info("resuming download", "target", filepath.Base(path), "offset", offset)
	}

	// Probe for total size. The ranged response's Content-Range
	// denominator wins over this if they disagree.
	total, err := f.probeSize(ctx, url)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		if _, _, t, err := ParseContentRange(resp.Header.Get("Content-Range")); err == nil && t > 0 {
			total = t
		}
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// Likely already complete.
		if total > 0 && offset >= total {
			return nil
		}
		return fmt.Errorf("range not satisfiable at offset %d", offset)
	case resp.StatusCode == http.StatusOK:
		// Server ignored the range request; start over.
		offset = 0
	case resp.StatusCode >= 400:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	mode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if offset > 0 {
		mode = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	out, err := os.OpenFile(path, mode, 0o644)
	if err != nil {
		return fmt.Errorf("open target: %w", err)
	}
	defer out.Close()

	var reporter *progress.Reporter
	if f.opts.ShowProgress {
		reporter = progress.NewReporter(progress.Options{
			TotalSize:    total,
			InitialBytes: offset,
			Label:        filepath.Base(path),
			Output:       f.opts.ProgressOutput,
		})
		reporter.Start()
		defer reporter.Stop()
	}

	written, err := f.stream(out, resp.Body, reporter)
	if err != nil {
		return fmt.Errorf("stream body: %w", err)
	}

	if total > 0 && offset+written < total {
		f.logger.Warn("download incomplete",
			"target", filepath.Base(path), "got", offset+written, "want", total)
		return fmt.Errorf("%w: got %d of %d bytes", ErrIncomplete, offset+written, total)
	}

	f.logger.Info("download complete", "target", filepath.Base(path), "bytes", offset+written)
	return nil
}

// probeSize issues a HEAD request for the expected total size.
// Returns 0 when the server does not report a length.
func (f *Fetcher) probeSize(ctx context.Context, url string) (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("head: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("head: unexpected status code: %d", resp.StatusCode)
	}
	if resp.ContentLength > 0 {
		return resp.ContentLength, nil
	}
	return 0, nil
}

// stream copies body to out in fixed-size chunks, reporting progress.
func (f *Fetcher) stream(out *os.File, body io.Reader, reporter *progress.Reporter) (int64, error) {
	buf := make([]byte, f.opts.ChunkSize)
	var written int64

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			nw, writeErr := out.Write(buf[:n])
			written += int64(nw)
			if reporter != nil {
				reporter.Add(int64(nw))
			}
			if writeErr != nil {
				return written, fmt.Errorf("write: %w", writeErr)
			}
			if nw < n {
				return written, io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read: %w", readErr)
		}
	}
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}
