package acp

import (
	"errors"
	"fmt"
	"time"

	"github.com/beeper/acp/pkg/jsonrpc"
)

// Sentinel errors for channel and correlation failures. Wrap-aware: test
// with errors.Is.
var (
	// ErrChannelClosed is returned by any send or receive attempted
	// against a channel that is not (or no longer) running, and resolves
	// every request still pending when the channel dies.
	ErrChannelClosed = errors.New("acp: channel closed")

	// ErrDuplicateID is returned when a caller-supplied id collides with
	// a request that is still in flight.
	ErrDuplicateID = errors.New("acp: request id already in flight")
)

// RemoteError is a well-formed JSON-RPC error returned by the agent,
// carrying the remote code, message and data. Retrieve it from a Call
// error with errors.As.
type RemoteError = jsonrpc.Error

// ConfigError reports invalid construction parameters. It is returned
// before any process is spawned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("acp: invalid process config: %s: %s", e.Field, e.Reason)
}

// StartError reports that the agent executable could not be launched.
type StartError struct {
	Command string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("acp: failed to start agent %q: %v", e.Command, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that a request's deadline elapsed before a
// response arrived. Only the one request is abandoned; the channel keeps
// running and a late response for the id is dropped.
type TimeoutError struct {
	Method  string
	ID      jsonrpc.ID
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("acp: request %s (id %s) timed out after %s", e.Method, e.ID, e.Timeout)
}
