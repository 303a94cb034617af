// Package cds adapts the remote retrieval API's submit, poll, and
// fetch lifecycle behind the Retriever and Handle capabilities.
//
// Errors are classified by type, never by message text:
//   - *TransientError: connection faults, 5xx responses, poll
//     interruptions. Worth retrying or falling back on.
//   - *PermanentError: malformed requests, auth failures, jobs the
//     remote side rejected. Retrying cannot help.
//
// Callers inspect the class with errors.As:
//
//	var perm *cds.PermanentError
//	if errors.As(err, &perm) { ... }
package cds
