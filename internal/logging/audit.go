// Package logging provides audit logging for analysis runs.
// Audit logs are structured JSONL events that tooling can replay to
// reconstruct exactly what a run did and why.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Run lifecycle events
	AuditRunStart    AuditEventType = "run_start"
	AuditRunComplete AuditEventType = "run_complete"
	AuditRunAbort    AuditEventType = "run_abort"

	// Graph step events
	AuditStepStart    AuditEventType = "step_start"
	AuditStepComplete AuditEventType = "step_complete"
	AuditStepError    AuditEventType = "step_error"
	AuditRouteDecision AuditEventType = "route_decision"

	// LLM API events
	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"

	// Code execution events
	AuditExecStart    AuditEventType = "exec_start"
	AuditExecComplete AuditEventType = "exec_complete"
	AuditExecError    AuditEventType = "exec_error"

	// Belief store events
	AuditBeliefAdd    AuditEventType = "belief_add"
	AuditBeliefRecall AuditEventType = "belief_recall"
	AuditBeliefIngest AuditEventType = "belief_ingest"
	AuditBeliefDelete AuditEventType = "belief_delete"

	// Insight disposition events
	AuditInsightApproved AuditEventType = "insight_approved"
	AuditInsightRejected AuditEventType = "insight_rejected"
	AuditInsightBoring   AuditEventType = "insight_boring"

	// Critique events
	AuditCritiquePass AuditEventType = "critique_pass"
	AuditCritiqueFail AuditEventType = "critique_fail"

	// Performance
	AuditPerfMetric AuditEventType = "perf_metric"
	AuditPerfSlow   AuditEventType = "perf_slow"

	// Error events
	AuditErrorGeneric  AuditEventType = "error_generic"
	AuditErrorCritical AuditEventType = "error_critical"
	AuditErrorRecovery AuditEventType = "error_recovery"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent represents a structured audit log entry, one JSON object per line.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`      // Unix milliseconds
	EventType  AuditEventType         `json:"event"`   // Event type
	Category   string                 `json:"cat"`     // Log category
	RunID      string                 `json:"run"`     // Run correlation
	UserID     string                 `json:"user"`    // Owning user
	RequestID  string                 `json:"req"`     // Request correlation
	Target     string                 `json:"target"`  // Target of operation
	Action     string                 `json:"action"`  // Action being performed
	Success    bool                   `json:"success"` // Operation succeeded
	DurationMs int64                  `json:"dur_ms"`  // Duration in milliseconds
	Error      string                 `json:"error"`   // Error message if failed
	Message    string                 `json:"msg"`     // Human-readable message
	Fields     map[string]interface{} `json:"fields"`  // Additional structured fields
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging scoped to a run
type AuditLogger struct {
	runID    string
	userID   string
	category Category
}

// InitAudit initializes the audit logging system
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n# Format: one JSON event per line\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRun creates an audit logger scoped to a run
func AuditWithRun(runID, userID string) *AuditLogger {
	return &AuditLogger{runID: runID, userID: userID}
}

// AuditWithContext creates a fully-scoped audit logger
func AuditWithContext(runID, userID string, category Category) *AuditLogger {
	return &AuditLogger{
		runID:    runID,
		userID:   userID,
		category: category,
	}
}

// =============================================================================
// AUDIT LOGGING METHODS
// =============================================================================

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	// Fill in defaults
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RunID == "" && a.runID != "" {
		event.RunID = a.runID
	}
	if event.UserID == "" && a.userID != "" {
		event.UserID = a.userID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}
	// Keep the human-readable message single-line so the file stays greppable
	event.Message = escapeString(event.Message)
	event.Error = escapeString(event.Error)

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

func escapeString(s string) string {
	// Flatten control characters so every event stays on one line.
	// Optimization: strings.Builder instead of O(N^2) concatenation.
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// RunStart logs the beginning of an analysis run
func (a *AuditLogger) RunStart(runID, userID, datasetID string) {
	a.Log(AuditEvent{
		EventType: AuditRunStart,
		RunID:     runID,
		UserID:    userID,
		Target:    datasetID,
		Success:   true,
		Message:   fmt.Sprintf("Run started: %s (user=%s dataset=%s)", runID, userID, datasetID),
	})
}

// RunComplete logs run completion
func (a *AuditLogger) RunComplete(runID string, iterations, approved int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditRunComplete,
		RunID:      runID,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"iterations": iterations, "approved": approved},
		Message:    fmt.Sprintf("Run complete: %s (%d iterations, %d approved, %dms)", runID, iterations, approved, durationMs),
	})
}

// RunAbort logs a fatal run abort
func (a *AuditLogger) RunAbort(runID string, err error, retryable bool) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: AuditRunAbort,
		RunID:     runID,
		Success:   false,
		Error:     errMsg,
		Fields:    map[string]interface{}{"retryable": retryable},
		Message:   fmt.Sprintf("Run aborted: %s (retryable=%v)", runID, retryable),
	})
}

// StepComplete logs a graph step completion
func (a *AuditLogger) StepComplete(step string, iteration int, durationMs int64, success bool, errMsg string) {
	eventType := AuditStepComplete
	if !success {
		eventType = AuditStepError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Action:     step,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"iteration": iteration},
		Message:    fmt.Sprintf("Step %s: iteration=%d success=%v (%dms)", step, iteration, success, durationMs),
	})
}

// RouteDecision logs a routing decision between graph steps
func (a *AuditLogger) RouteDecision(from, to, reason string) {
	a.Log(AuditEvent{
		EventType: AuditRouteDecision,
		Action:    from,
		Target:    to,
		Success:   true,
		Fields:    map[string]interface{}{"reason": reason},
		Message:   fmt.Sprintf("Route: %s -> %s (%s)", from, to, reason),
	})
}

// LLMCall logs an LLM API call
func (a *AuditLogger) LLMCall(model string, tokens int, durationMs int64, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType:  AuditLLMResponse,
		Target:     model,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"tokens": tokens},
		Message:    fmt.Sprintf("LLM call: %s -> %d tokens (%dms, success=%v)", model, tokens, durationMs, success),
	})
}

// ExecComplete logs an analysis code execution
func (a *AuditLogger) ExecComplete(datasetID string, durationMs int64, success bool, errMsg string) {
	eventType := AuditExecComplete
	if !success {
		eventType = AuditExecError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     datasetID,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("Execution: dataset=%s success=%v (%dms)", datasetID, success, durationMs),
	})
}

// BeliefOp logs a belief store operation
func (a *AuditLogger) BeliefOp(op AuditEventType, userID string, count int, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: op,
		UserID:    userID,
		Success:   success,
		Error:     errMsg,
		Fields:    map[string]interface{}{"count": count},
		Message:   fmt.Sprintf("Belief %s: user=%s count=%d success=%v", op, userID, count, success),
	})
}

// InsightDisposition logs where an insight ended up
func (a *AuditLogger) InsightDisposition(eventType AuditEventType, description string, novelty float64) {
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    description,
		Success:   eventType == AuditInsightApproved,
		Fields:    map[string]interface{}{"novelty": novelty},
		Message:   fmt.Sprintf("Insight %s: novelty=%.3f %s", eventType, novelty, description),
	})
}

// Critique logs a critique verdict
func (a *AuditLogger) Critique(score float64, passed bool, feedback string) {
	eventType := AuditCritiquePass
	if !passed {
		eventType = AuditCritiqueFail
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Success:   passed,
		Fields:    map[string]interface{}{"score": score},
		Message:   fmt.Sprintf("Critique: score=%.2f passed=%v %s", score, passed, feedback),
	})
}

// PerfMetric logs a performance metric
func (a *AuditLogger) PerfMetric(operation string, durationMs int64, threshold int64) {
	eventType := AuditPerfMetric
	success := true
	if threshold > 0 && durationMs > threshold {
		eventType = AuditPerfSlow
		success = false
	}
	fields := map[string]interface{}{}
	if threshold > 0 {
		fields["threshold_ms"] = threshold
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Action:     operation,
		DurationMs: durationMs,
		Success:    success,
		Fields:     fields,
		Message:    fmt.Sprintf("Perf: %s took %dms (threshold=%dms)", operation, durationMs, threshold),
	})
}

// Error logs an error event
func (a *AuditLogger) Error(category string, err error, critical bool) {
	eventType := AuditErrorGeneric
	if critical {
		eventType = AuditErrorCritical
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  category,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("Error in %s: %s (critical=%v)", category, errMsg, critical),
	})
}
