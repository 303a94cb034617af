//go:build integration

package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	_ "gocloud.dev/blob/s3blob"

	"github.com/Hem-W/ERA5-toolbox/internal/testutils"
)

// TestStoreAgainstMinio runs the archive round trip against a real
// S3-compatible store.
func TestStoreAgainstMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	env := testutils.StartMinioContainer(t, ctx, "era5-archive")
	defer env.Close(ctx)

	bucket, err := env.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	local := filepath.Join(t.TempDir(), "era5.reanalysis.t2m.1hr.0p25deg.global.2020.nc")
	data := make([]byte, 1<<20)
	for i := range data {
		data[i] = byte(i % 256)
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	a := New(bucket, "archive", testLogger())
	if err := a.Store(ctx, local); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := bucket.ReadAll(ctx, "archive/era5.reanalysis.t2m.1hr.0p25deg.global.2020.nc")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != len(data) {
		t.Fatalf("object size = %d, want %d", len(got), len(data))
	}

	// A second pass must be a no-op.
	if err := a.Store(ctx, local); err != nil {
		t.Fatalf("second Store: %v", err)
	}
}
