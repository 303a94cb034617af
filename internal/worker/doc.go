// Package worker implements the concurrent download orchestrator: a
// shared task queue drained by per-credential worker pools.
//
// # Protocol
//
// Each worker executes a two-stage protocol per task. The primary
// transport is the remote API's own submit/poll/materialize lifecycle.
// When it fails after exposing a direct download URL, the resumable
// fallback transport takes over with bounded retries. Exactly one of
// primary success, fallback success, or a logged failure holds for
// every finished task, and no partial artifact survives at its final
// name.
//
// # Resilience
//
// Errors and panics are recovered at the worker loop boundary: one bad
// task never stops a worker from draining the rest of the queue, and
// nothing propagates above the loop. The orchestrator waits for every
// worker unconditionally; per-task failures are counted in Stats, not
// returned.
package worker
