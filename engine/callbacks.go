package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/prospectmesh/core"
)

// CallbackType defines the lifecycle points where callbacks run.
//
// Callbacks hook into the engine without modifying its logic, typically for
// metrics, auditing or test synchronisation. They execute synchronously on
// the worker that reached the lifecycle point.
type CallbackType string

const (
	// CallbackRunStart is triggered after a run was registered and before any
	// prospect is processed. Subscribing to the run here sees every event.
	CallbackRunStart CallbackType = "run_start"

	// CallbackRunComplete is triggered once every outcome of a run was
	// reported.
	CallbackRunComplete CallbackType = "run_complete"

	// CallbackBeforeStage is triggered before each stage attempt. Returning
	// an error fails the stage terminally.
	CallbackBeforeStage CallbackType = "before_stage"

	// CallbackAfterStage is triggered after each stage attempt with its
	// duration and error.
	CallbackAfterStage CallbackType = "after_stage"

	// CallbackOnRetry is triggered before a failed attempt is retried.
	CallbackOnRetry CallbackType = "on_retry"

	// CallbackOnOutcome is triggered once per prospect and run.
	CallbackOnOutcome CallbackType = "on_outcome"
)

// CallbackContext describes the lifecycle point a callback observes. Fields
// that do not apply to the callback type are left zero.
type CallbackContext struct {
	RunID      string
	ProspectID string
	Stage      core.Stage

	// Attempt is the 1-based attempt number of a stage.
	Attempt int

	// Duration and Err describe a finished stage attempt.
	Duration time.Duration
	Err      error

	Outcome *core.Outcome

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any

	CallbackType CallbackType
}

// Callback defines the interface for execution lifecycle hooks.
//
// Implementations should be fast since they block the worker, and safe for
// concurrent use since workers run in parallel.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackOnOutcome, func(ctx context.Context, c *CallbackContext) error {
//	    log.Printf("%s: %s", c.ProspectID, c.Outcome)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager keeps the registered callbacks per type.
//
// Callbacks are executed in registration order; the first error stops the
// remaining callbacks of that type. Registration and execution are safe for
// concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds callbacks to the manager.
//
// Example:
//
//	manager := NewCallbackManager()
//	manager.RegisterCallback(loggingCallback, metricsCallback)
func (cm *CallbackManager) RegisterCallback(callbacks ...Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, cb := range callbacks {
		cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
	}
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle points to a logging function.
//
// Example:
//
//	cb := NewLoggingCallback(CallbackAfterStage, func(msg string) { log.Print(msg) })
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle point.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}

	msg := fmt.Sprintf("[%s] run=%s", c.callbackType, callbackCtx.RunID)
	if callbackCtx.ProspectID != "" {
		msg += fmt.Sprintf(" prospect=%s stage=%s", callbackCtx.ProspectID, callbackCtx.Stage)
	}
	if callbackCtx.Attempt > 0 {
		msg += fmt.Sprintf(" attempt=%d duration=%s", callbackCtx.Attempt, callbackCtx.Duration)
	}
	if callbackCtx.Err != nil {
		msg += fmt.Sprintf(" error=%v", callbackCtx.Err)
	}
	if callbackCtx.Outcome != nil {
		msg += " outcome=" + callbackCtx.Outcome.String()
	}
	c.logger(msg)
	return nil
}
