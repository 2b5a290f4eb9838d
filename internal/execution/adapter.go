// Package execution runs generated analysis code against a dataset. A
// failed execution is a Result with Success false, never a Go error: the
// run loop feeds the failure text back to the analyst for a corrected
// attempt, so the boundary has to carry it as data.
package execution

import (
	"context"
	"fmt"
	"time"
)

// Result is the outcome of one code execution.
type Result struct {
	Success bool `json:"success"`

	// Output holds what the code produced when Success is true, ideally a
	// single JSON insight object printed by the snippet.
	Output string `json:"output,omitempty"`

	// Error holds the failure detail when Success is false: a syntax
	// error, a sandbox traceback, a timeout, or a transport problem.
	Error string `json:"error,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Adapter executes analysis code. Implementations decide where the code
// runs and which language they accept.
type Adapter interface {
	Execute(ctx context.Context, code, datasetID string) Result

	// Language names the source language this adapter runs ("python",
	// "go"). The analyst prompt and the syntax precheck follow it.
	Language() string
}

func success(start time.Time, output string) Result {
	return Result{Success: true, Output: output, Duration: time.Since(start)}
}

func failure(start time.Time, format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...), Duration: time.Since(start)}
}
