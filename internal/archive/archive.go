// Package archive mirrors finished artifacts into object storage.
//
// Archiving is an optional post-download step. Workers treat a failed
// upload as a warning, never as a task failure: the artifact on local
// disk is the source of truth.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"gocloud.dev/blob"
)

// Archive copies local artifacts into a gocloud bucket.
type Archive struct {
	bucket *blob.Bucket
	prefix string
	logger *slog.Logger
}

// New wraps an already-open bucket. The prefix is prepended to every
// stored key.
func New(bucket *blob.Bucket, prefix string, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{bucket: bucket, prefix: prefix, logger: logger}
}

// Open connects to the bucket named by bucketURL, e.g.
// "s3://era5-archive?region=us-east-1" or "gs://era5-archive".
func Open(ctx context.Context, bucketURL, prefix string, logger *slog.Logger) (*Archive, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return New(bucket, prefix, logger), nil
}

// Store uploads one artifact under its base name. An object that
// already exists with the same size is left untouched, so re-running
// after a partial archive pass uploads only what is missing.
func (a *Archive) Store(ctx context.Context, localPath string) error {
	key := path.Join(a.prefix, filepath.Base(localPath))

	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	if attrs, err := a.bucket.Attributes(ctx, key); err == nil && attrs.Size == info.Size() {
		a.logger.Info("artifact already archived", "key", key, "size", attrs.Size)
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	w, err := a.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create object %s: %w", key, err)
	}

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", key, err)
	}

	a.logger.Info("artifact archived", "key", key, "size", info.Size())
	return nil
}

// Close releases the underlying bucket connection.
func (a *Archive) Close() error {
	return a.bucket.Close()
}
