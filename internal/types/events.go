package types

import "time"

// =============================================================================
// RUN EVENTS
// =============================================================================

// RunEventKind names the progress events a run emits while executing.
type RunEventKind string

const (
	EventRunStarted        RunEventKind = "run_started"
	EventStepStarted       RunEventKind = "step_started"
	EventStepCompleted     RunEventKind = "step_completed"
	EventQuestionStarted   RunEventKind = "question_started"
	EventQuestionAbandoned RunEventKind = "question_abandoned" // execution budget exhausted
	EventExecutionRetry    RunEventKind = "execution_retry"
	EventCritiqueRetry     RunEventKind = "critique_retry"
	EventInsightApproved   RunEventKind = "insight_approved"
	EventInsightRejected   RunEventKind = "insight_rejected"
	EventInsightBoring     RunEventKind = "insight_boring"
	EventRunCompleted      RunEventKind = "run_completed"
	EventRunAborted        RunEventKind = "run_aborted"
)

// RunEvent is a progress notification published on a run's event channel.
// The TUI renders these live; headless callers can log or drop them. Events
// are advisory: dropping every event must not change run behavior.
type RunEvent struct {
	Kind          RunEventKind `json:"kind"`
	RunID         string       `json:"run_id"`
	Step          string       `json:"step,omitempty"`
	Iteration     int          `json:"iteration"`
	QuestionIndex int          `json:"question_index"`
	Message       string       `json:"message,omitempty"`
	Err           string       `json:"error,omitempty"`
	At            time.Time    `json:"at"`
}
