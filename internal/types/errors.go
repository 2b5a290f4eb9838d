package types

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================
//
// The graph distinguishes three failure shapes:
//
//   - ExecutionError: the analyst's code failed to run. Retryable per
//     question; the raw failure text is fed back into the next generation.
//   - BeliefStoreUnavailableError: the memory layer is down. Never fatal to a
//     run; the novelty gate degrades to treating everything as novel.
//   - RunAbortedError: the run itself cannot continue. Fatal; no partial
//     synthesis happens.
//
// Critique rejection is deliberately NOT an error type. A failing critique is
// a routing signal carried in CritiqueState, not a failure of the machinery.

// Execution stages an ExecutionError can originate from.
const (
	ExecStageGenerate = "generate" // the model produced no usable code
	ExecStagePrecheck = "precheck" // static check before the code ever ran
	ExecStageRunner   = "runner"   // the sandbox rejected or crashed the code
	ExecStageTimeout  = "timeout"  // the code ran past its deadline
	ExecStageDecode   = "decode"   // the runner's response could not be parsed
)

// ExecutionError reports that generated analysis code failed. Detail carries
// the compiler or runtime output verbatim so the next generation attempt can
// see exactly what broke.
type ExecutionError struct {
	Stage  string // one of the ExecStage constants
	Detail string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("execution failed at %s: %s", e.Stage, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("execution failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("execution failed at %s", e.Stage)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NewExecutionError builds an ExecutionError for the given stage.
func NewExecutionError(stage, detail string, err error) *ExecutionError {
	return &ExecutionError{Stage: stage, Detail: detail, Err: err}
}

// Feedback returns the failure text to inject into the next code-generation
// prompt, preferring the captured output over the wrapped error.
func (e *ExecutionError) Feedback() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "execution failed with no output"
}

// BeliefStoreUnavailableError reports that the belief store could not serve a
// request. Callers degrade gracefully: recall returns no context and
// surprisal defaults to maximal.
type BeliefStoreUnavailableError struct {
	Op  string // operation that failed, e.g. "query_similar"
	Err error
}

func (e *BeliefStoreUnavailableError) Error() string {
	return fmt.Sprintf("belief store unavailable during %s: %v", e.Op, e.Err)
}

func (e *BeliefStoreUnavailableError) Unwrap() error { return e.Err }

// RunAbortedError reports that an analysis run stopped before synthesis.
// Retryable distinguishes transient causes (provider outage, context
// cancellation) from permanent ones (invalid dataset, exhausted planner).
type RunAbortedError struct {
	RunID     string
	Step      string // graph step active when the run died
	Retryable bool
	Err       error
}

func (e *RunAbortedError) Error() string {
	return fmt.Sprintf("run %s aborted at %s: %v", e.RunID, e.Step, e.Err)
}

func (e *RunAbortedError) Unwrap() error { return e.Err }

// NewRunAborted builds a RunAbortedError for the given run and step.
func NewRunAborted(runID, step string, retryable bool, err error) *RunAbortedError {
	return &RunAbortedError{RunID: runID, Step: step, Retryable: retryable, Err: err}
}

// AsExecutionError unwraps err to an ExecutionError if one is in the chain.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// AsRunAborted unwraps err to a RunAbortedError if one is in the chain.
func AsRunAborted(err error) (*RunAbortedError, bool) {
	var ra *RunAbortedError
	if errors.As(err, &ra) {
		return ra, true
	}
	return nil, false
}

// IsBeliefStoreUnavailable reports whether err is a belief store outage.
func IsBeliefStoreUnavailable(err error) bool {
	var be *BeliefStoreUnavailableError
	return errors.As(err, &be)
}
