package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNotFound is returned by stores when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStageOrder is returned when a prospect would skip or rewind a stage.
	ErrStageOrder = errors.New("stage order violated")
)

// AgentError is the failure value every agent returns. Retryable errors are
// re-attempted by the orchestrator with backoff; terminal ones fail only the
// prospect they belong to.
type AgentError struct {
	Stage     Stage
	Reason    string
	Retryable bool
	Err       error
}

// Error implements error.
func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

// Unwrap exposes the underlying cause.
func (e *AgentError) Unwrap() error { return e.Err }

// NewRetryableError builds a retryable AgentError.
func NewRetryableError(stage Stage, reason string, err error) *AgentError {
	return &AgentError{Stage: stage, Reason: reason, Retryable: true, Err: err}
}

// NewTerminalError builds a non-retryable AgentError.
func NewTerminalError(stage Stage, reason string, err error) *AgentError {
	return &AgentError{Stage: stage, Reason: reason, Err: err}
}

// EngineFault signals that shared infrastructure (vector index, suppression
// list, prospect store) is unavailable. It aborts the whole batch.
type EngineFault struct {
	Component string
	Err       error
}

// Error implements error.
func (e *EngineFault) Error() string {
	return fmt.Sprintf("engine fault in %s: %v", e.Component, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *EngineFault) Unwrap() error { return e.Err }

// NewEngineFault wraps err as an EngineFault for component.
func NewEngineFault(component string, err error) *EngineFault {
	return &EngineFault{Component: component, Err: err}
}

// TransientError marks a failure worth retrying (connection refused, timeouts,
// 5xx responses).
type TransientError struct {
	Err error
}

// Error implements error.
func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

// Unwrap exposes the underlying cause.
func (e *TransientError) Unwrap() error { return e.Err }

// RemoteError is a well-formed error reply from an RPC collaborator. It is
// not retried.
type RemoteError struct {
	Service string
	Code    string
	Message string
}

// Error implements error.
func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Service, e.Code, e.Message)
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// IsEngineFault reports whether err aborts the batch.
func IsEngineFault(err error) bool {
	var ef *EngineFault
	return errors.As(err, &ef)
}

// IsRemoteError reports whether err is a well-formed collaborator error and
// returns it.
func IsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
