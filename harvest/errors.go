// Package harvest drives the OAI-PMH protocol state machine.
//
// This file defines the closed error taxonomy. Every transport, protocol,
// checkpoint-shape and writer failure of Launch is one of these kinds, so
// callers branch with errors.As and know whether the persisted checkpoint
// still permits a retry. A canceled context is returned as the context's
// own error, and a state-manager failure is returned as the manager
// reported it.
package harvest

import (
	"fmt"

	"github.com/loess-io/gleaner/state"
)

// TransportError wraps an HTTP-level failure (connection refused,
// non-success status, malformed XML). The checkpoint is preserved;
// re-running resumes from the same position.
type TransportError struct {
	Verb string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Verb, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// OaiProtocolError is a server-side <error> element with any code other
// than badResumptionToken. The checkpoint is preserved; whether to retry
// is the operator's call.
type OaiProtocolError struct {
	Code    string
	Message string
}

func (e *OaiProtocolError) Error() string {
	return fmt.Sprintf("server reported %s: %s", e.Code, e.Message)
}

// TokenExpiredError means the server rejected the resumption token a
// checkpoint was holding. The checkpoint has been cleared; the harvest
// must be restarted from the beginning.
type TokenExpiredError struct {
	Token string
}

func (e *TokenExpiredError) Error() string {
	return fmt.Sprintf("resumption token %q rejected by the server; checkpoint %s cleared, restart the harvest from the beginning",
		e.Token, state.StateFileName)
}

// CorruptStateError means the persisted checkpoint did not have exactly
// four fields. The checkpoint has been cleared; the harvest must be
// restarted from the beginning.
type CorruptStateError struct {
	Fields int
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("checkpoint %s has %d fields, want %d; cleared, restart the harvest from the beginning",
		state.StateFileName, e.Fields, state.CheckpointFields)
}

// WriterError wraps a record writer failure. The checkpoint is preserved;
// re-running replays the interrupted batch.
type WriterError struct {
	Err error
}

func (e *WriterError) Error() string {
	return fmt.Sprintf("record writer failed: %v", e.Err)
}

func (e *WriterError) Unwrap() error { return e.Err }
