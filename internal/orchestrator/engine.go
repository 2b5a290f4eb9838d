// Package orchestrator drives the cyclic analysis graph: planner, analyst,
// critic, novelty gate, synthesizer. The graph state lives in a single
// types.RunState blackboard; each step computes against collaborators, then
// commits its outcome to the blackboard, and a pure routing function picks
// the next node from the committed state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"datanerd/internal/config"
	"datanerd/internal/critic"
	"datanerd/internal/dataset"
	"datanerd/internal/execution"
	"datanerd/internal/llm"
	"datanerd/internal/logging"
	"datanerd/internal/novelty"
	"datanerd/internal/types"
)

// BeliefStore is the slice of the belief store the engine touches: recall
// for planner context and recording of approved insights.
type BeliefStore interface {
	RecallContext(ctx context.Context, userID, datasetID, text string, topK int) ([]string, error)
	AddBelief(ctx context.Context, b types.Belief) (types.Belief, error)
}

// Archiver persists finished runs. Implementations must tolerate partially
// populated state: an aborted run may have no questions and no report.
type Archiver interface {
	Archive(ctx context.Context, st *types.RunState, status string) error
}

// Run archive status values.
const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// recallTopK bounds how many remembered findings the planner sees.
const recallTopK = 5

// Deps bundles the engine's collaborators. LLM, Adapter, Gate, Critic, and
// Datasets are required; Precheck, Beliefs, and Archive may be nil, which
// disables syntax prechecks, belief recall and recording, and run
// persistence respectively.
type Deps struct {
	LLM      llm.Client
	Adapter  execution.Adapter
	Precheck *execution.Precheck
	Beliefs  BeliefStore
	Gate     *novelty.Engine
	Critic   *critic.Scorer
	Datasets dataset.Provider
	Archive  Archiver
}

// Engine runs analysis graphs. It holds no per-run state, so one engine may
// serve concurrent runs.
type Engine struct {
	cfg  config.AnalysisConfig
	deps Deps
}

// NewEngine builds an engine from configuration and collaborators.
func NewEngine(cfg config.AnalysisConfig, deps Deps) *Engine {
	return &Engine{cfg: cfg, deps: deps}
}

// Request identifies one analysis run.
type Request struct {
	RunID     string // assigned a fresh id when empty
	UserID    string
	DatasetID string

	// Events receives run progress. Sends never block: a slow or absent
	// consumer drops events without affecting the run.
	Events chan<- types.RunEvent
}

// run carries the per-run mutable state the step methods share.
type run struct {
	e      *Engine
	st     *types.RunState
	prior  *novelty.Prior
	events chan<- types.RunEvent
	audit  *logging.AuditLogger
}

// Run executes one analysis from planning through synthesis and returns the
// final state. On abort the partial state is returned alongside a
// *types.RunAbortedError describing where and why the run stopped.
func (e *Engine) Run(ctx context.Context, req Request) (*types.RunState, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	limits := types.RunLimits{
		MaxIterations:      e.cfg.MaxIterations,
		MaxRetries:         e.cfg.MaxRetries,
		MaxCritiqueRetries: e.cfg.MaxCritiqueRetries,
	}
	if limits.MaxIterations <= 0 {
		limits.MaxIterations = 1
	}
	if limits.MaxRetries <= 0 {
		limits.MaxRetries = 1
	}
	if limits.MaxCritiqueRetries < 0 {
		limits.MaxCritiqueRetries = 0
	}
	if e.deps.Gate != nil {
		limits.NoveltyThreshold = e.deps.Gate.Threshold()
	}

	st := types.NewRunState(req.RunID, req.UserID, req.DatasetID, limits)
	r := &run{e: e, st: st, events: req.Events,
		audit: logging.AuditWithRun(req.RunID, req.UserID)}

	logging.Graph("run %s started (user=%s dataset=%s)", st.RunID, st.UserID, st.DatasetID)
	r.audit.RunStart(st.RunID, st.UserID, st.DatasetID)
	r.emit(types.RunEvent{Kind: types.EventRunStarted})

	dc, err := e.deps.Datasets.Context(ctx, req.DatasetID)
	if err != nil {
		retryable := !errors.Is(err, dataset.ErrNotFound)
		return r.abort(ctx, StepPlanner, retryable, fmt.Errorf("resolving dataset: %w", err))
	}
	st.Dataset = dc

	r.prior = e.deps.Gate.SeedPrior(ctx, st.UserID, st.DatasetID)

	step := StepPlanner
	for step != StepEnd {
		if err := ctx.Err(); err != nil {
			return r.abort(ctx, step, true, fmt.Errorf("run cancelled: %w", err))
		}

		// An iteration is one planner entry, which corresponds to one
		// question worked to a verdict or abandoned. afterQuestion stops
		// routing here once the count reaches MaxIterations.
		if step == StepPlanner {
			st.IterationCount++
		}

		r.emit(types.RunEvent{Kind: types.EventStepStarted, Step: string(step)})
		stepStart := time.Now()

		var stepErr error
		switch step {
		case StepPlanner:
			stepErr = r.planStep(ctx)
		case StepAnalyst:
			stepErr = r.analyzeStep(ctx)
		case StepCritic:
			stepErr = r.critiqueStep(ctx)
		case StepNovelty:
			stepErr = r.noveltyStep(ctx)
		case StepSynthesizer:
			stepErr = r.synthesizeStep(ctx)
		default:
			stepErr = fmt.Errorf("unknown graph step %q", step)
		}
		if stepErr != nil {
			r.audit.StepComplete(string(step), st.IterationCount,
				time.Since(stepStart).Milliseconds(), false, stepErr.Error())
			return r.abort(ctx, step, retryableStepError(stepErr), stepErr)
		}
		r.audit.StepComplete(string(step), st.IterationCount,
			time.Since(stepStart).Milliseconds(), true, "")

		r.emit(types.RunEvent{Kind: types.EventStepCompleted, Step: string(step)})

		next := nextStep(step, st)
		st.AppendMessage(types.RoleSystem, string(step), fmt.Sprintf("%s -> %s", step, next))
		r.audit.RouteDecision(string(step), string(next),
			fmt.Sprintf("iteration=%d question=%d/%d", st.IterationCount, st.QuestionIndex, len(st.Questions)))
		logging.GraphDebug("run %s: %s -> %s (iteration=%d question=%d/%d)",
			st.RunID, step, next, st.IterationCount, st.QuestionIndex, len(st.Questions))
		step = next
	}

	logging.Graph("run %s completed in %s: %d approved, %d boring, %d rejected",
		st.RunID, st.Elapsed().Round(time.Millisecond), len(st.Approved), len(st.Boring), len(st.Rejected))
	r.audit.RunComplete(st.RunID, st.IterationCount, len(st.Approved), st.Elapsed().Milliseconds())
	r.emit(types.RunEvent{Kind: types.EventRunCompleted,
		Message: fmt.Sprintf("%d insights approved", len(st.Approved))})
	e.archiveRun(ctx, st, StatusCompleted)

	return st, nil
}

// retryableStepError classifies a step failure for the abort error. A
// planner that produced no usable questions will produce none on a rerun;
// everything else that can error a step is transient.
func retryableStepError(err error) bool {
	return !errors.Is(err, llm.ErrNoUsableQuestions)
}

// abort finalizes a failed run: stamps the finish time, records the failure,
// and wraps the cause in a typed abort error.
func (r *run) abort(ctx context.Context, step Step, retryable bool, err error) (*types.RunState, error) {
	r.st.FinishedAt = time.Now().UTC()
	logging.GraphError("run %s aborted at %s: %v", r.st.RunID, step, err)
	r.audit.RunAbort(r.st.RunID, err, retryable)
	r.st.AppendMessage(types.RoleSystem, string(step), fmt.Sprintf("aborted: %v", err))
	r.emit(types.RunEvent{Kind: types.EventRunAborted, Step: string(step), Err: err.Error()})
	r.e.archiveRun(ctx, r.st, StatusAborted)
	return r.st, types.NewRunAborted(r.st.RunID, string(step), retryable, err)
}

// archiveRun persists a finished run. Archive failures are logged and
// swallowed: losing history must not fail the run that produced it.
func (e *Engine) archiveRun(ctx context.Context, st *types.RunState, status string) {
	if e.deps.Archive == nil {
		return
	}
	if err := e.deps.Archive.Archive(ctx, st, status); err != nil {
		logging.GraphWarn("run %s: archive failed: %v", st.RunID, err)
	}
}

// emit sends a run event without blocking. The event is stamped with the
// run identity and current position before sending.
func (r *run) emit(ev types.RunEvent) {
	if r.events == nil {
		return
	}
	ev.RunID = r.st.RunID
	ev.Iteration = r.st.IterationCount
	ev.QuestionIndex = r.st.QuestionIndex
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case r.events <- ev:
	default:
	}
}
