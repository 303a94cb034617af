package cds

import "fmt"

// TransientError marks faults worth retrying or falling back on:
// connection failures, timeouts, and retryable server errors.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("cds: transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks faults that will not succeed on retry:
// malformed requests, authentication failures, rejected jobs.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("cds: permanent %s failure: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

func transient(op string, err error) error { return &TransientError{Op: op, Err: err} }
func permanent(op string, err error) error { return &PermanentError{Op: op, Err: err} }
