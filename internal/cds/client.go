package cds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultBaseURL is the public endpoint of the retrieval API.
const DefaultBaseURL = "https://cds.climate.copernicus.eu/api"

// Retriever is the remote retrieval capability: submit a dataset
// request and obtain a handle to the prepared result.
type Retriever interface {
	Retrieve(ctx context.Context, dataset string, request map[string]any) (Handle, error)
}

// Handle is an in-flight retrieval: the remote side has prepared (or is
// preparing) the requested data. A handle is owned by the worker that
// issued it and discarded once the task finishes.
type Handle interface {
	// DirectURL returns the direct download URL of the prepared
	// result, or "" when the API did not expose one. Absence is
	// tolerated; it only disables the fallback transport.
	DirectURL() string

	// Materialize downloads the prepared result to path, blocking
	// until done. Errors are classified as *TransientError or
	// *PermanentError.
	Materialize(ctx context.Context, path string) error
}

// Options configures the client.
type Options struct {
	// BaseURL of the retrieval API. Default: DefaultBaseURL.
	BaseURL string

	// PollInterval between job status checks. Default: 10s.
	PollInterval time.Duration

	// RequestTimeout bounds a single control-plane request (submit,
	// poll, result lookup). Default: 60s.
	RequestTimeout time.Duration

	// DownloadTimeout bounds the materialize transfer. The remote end
	// throttles large payloads, so this is generous. Default: 30m.
	DownloadTimeout time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		BaseURL:         DefaultBaseURL,
		PollInterval:    10 * time.Second,
		RequestTimeout:  60 * time.Second,
		DownloadTimeout: 30 * time.Minute,
	}
}

// Client talks to a CDS-style processing API: submit an execution,
// poll the job, then fetch the result asset. One client is bound to
// one credential for its whole lifetime.
type Client struct {
	opts     Options
	key      string
	control  *http.Client
	download *http.Client
	logger   *slog.Logger
}

// NewClient creates a client bound to one credential.
func NewClient(key string, logger *slog.Logger, opts Options) (*Client, error) {
	if key == "" {
		return nil, errors.New("cds: empty credential")
	}
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = def.DownloadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		opts:     opts,
		key:      key,
		control:  &http.Client{Timeout: opts.RequestTimeout},
		download: &http.Client{Timeout: opts.DownloadTimeout},
		logger:   logger,
	}, nil
}

type executionResponse struct {
	JobID  string `json:"jobID"`
	Status string `json:"status"`
}

type jobStatus struct {
	JobID   string `json:"jobID"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type jobResults struct {
	Asset struct {
		Value struct {
			Href string `json:"href"`
			Size int64  `json:"file:size"`
		} `json:"value"`
	} `json:"asset"`
}

// Retrieve submits the dataset request, waits for the remote job to
// finish preparing, and returns a handle to the result.
func (c *Client) Retrieve(ctx context.Context, dataset string, request map[string]any) (Handle, error) {
	jobID, err := c.submit(ctx, dataset, request)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("job submitted", "dataset", dataset, "job", jobID)

	if err := c.waitForJob(ctx, jobID); err != nil {
		return nil, err
	}

	href, size, err := c.results(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &resultHandle{
		client: c,
		jobID:  jobID,
		href:   href,
		size:   size,
	}, nil
}

// submit posts the execution request and returns the job ID.
func (c *Client) submit(ctx context.Context, dataset string, request map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{"inputs": request})
	if err != nil {
		return "", permanent("submit", err)
	}

	url := fmt.Sprintf("%s/retrieve/v1/processes/%s/execution", c.opts.BaseURL, dataset)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", permanent("submit", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PRIVATE-TOKEN", c.key)

	resp, err := c.control.Do(req)
	if err != nil {
		return "", transient("submit", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("submit", resp); err != nil {
		return "", err
	}

	var exec executionResponse
	if err := json.NewDecoder(resp.Body).Decode(&exec); err != nil {
		return "", transient("submit", fmt.Errorf("decode response: %w", err))
	}
	if exec.JobID == "" {
		return "", permanent("submit", errors.New("response carried no job ID"))
	}
	return exec.JobID, nil
}

// waitForJob polls the job until it reports a terminal status.
func (c *Client) waitForJob(ctx context.Context, jobID string) error {
	url := fmt.Sprintf("%s/retrieve/v1/jobs/%s", c.opts.BaseURL, jobID)

	for {
		status, err := c.pollOnce(ctx, url)
		if err != nil {
			return err
		}

		switch status.Status {
		case "successful":
			return nil
		case "failed", "dismissed":
			return permanent("poll", fmt.Errorf("job %s %s: %s", jobID, status.Status, status.Message))
		}

		select {
		case <-ctx.Done():
			return transient("poll", ctx.Err())
		case <-time.After(c.opts.PollInterval):
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, url string) (*jobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, permanent("poll", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.key)

	resp, err := c.control.Do(req)
	if err != nil {
		return nil, transient("poll", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("poll", resp); err != nil {
		return nil, err
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, transient("poll", fmt.Errorf("decode response: %w", err))
	}
	return &status, nil
}

// results looks up the download location of a finished job.
func (c *Client) results(ctx context.Context, jobID string) (href string, size int64, err error) {
	url := fmt.Sprintf("%s/retrieve/v1/jobs/%s/results", c.opts.BaseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, permanent("results", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.key)

	resp, err := c.control.Do(req)
	if err != nil {
		return "", 0, transient("results", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("results", resp); err != nil {
		return "", 0, err
	}

	var res jobResults
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", 0, transient("results", fmt.Errorf("decode response: %w", err))
	}
	return res.Asset.Value.Href, res.Asset.Value.Size, nil
}

// classifyStatus maps an HTTP response status onto the error taxonomy.
func classifyStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return transient(op, fmt.Errorf("server error: %s", resp.Status))
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return permanent(op, fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(msg)))
	}
}

// resultHandle is the handle to one prepared result.
type resultHandle struct {
	client *Client
	jobID  string
	href   string
	size   int64
}

// DirectURL returns the result's download URL, or "" when the results
// document carried none.
func (h *resultHandle) DirectURL() string { return h.href }

// Materialize streams the prepared result to path.
func (h *resultHandle) Materialize(ctx context.Context, path string) error {
	if h.href == "" {
		return permanent("materialize", errors.New("result carries no download location"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.href, nil)
	if err != nil {
		return permanent("materialize", err)
	}

	resp, err := h.client.download.Do(req)
	if err != nil {
		return transient("materialize", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("materialize", resp); err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return permanent("materialize", err)
	}

	written, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return transient("materialize", copyErr)
	}
	if closeErr != nil {
		return permanent("materialize", closeErr)
	}

	if h.size > 0 && written != h.size {
		return transient("materialize", fmt.Errorf("got %d of %d bytes", written, h.size))
	}
	return nil
}
