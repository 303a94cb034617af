// Package fetch implements the resumable fallback transport.
//
// This package handles:
//   - HEAD probes for the expected artifact size
//   - Range requests resuming from the current partial file size
//   - Streaming fixed-size chunks directly to disk
//   - Connection-level retry (via go-retryablehttp) on 500/502/503/504
//     and transport faults
//   - Whole-fetch retry with exponential backoff
//
// # Usage
//
//	f := fetch.NewFetcher(logger, fetch.DefaultOptions())
//	if err := f.Download(ctx, url, "era5.reanalysis.t2m.1hr.0p25deg.global.2020.nc"); err != nil {
//	    // partial file may remain at the target path; the caller
//	    // decides whether to keep it for a later resume or delete it
//	}
//
// The ranged response's Content-Range total overrides the HEAD probe:
// the two can disagree, and the ranged value is authoritative.
package fetch
