package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"datanerd/internal/llm"
	"datanerd/internal/logging"
	"datanerd/internal/types"
)

// planStep fills the question queue on the first iteration. The queue is
// planned once per run: later planner entries only hand control back to the
// analyst for the next pending question.
func (r *run) planStep(ctx context.Context) error {
	st := r.st
	if st.Questions != nil {
		logging.PlannerDebug("run %s: queue already planned, %d question(s) remaining",
			st.RunID, st.QuestionsRemaining())
		return nil
	}

	known := r.recallKnown(ctx)

	questions, err := llm.PlanQuestions(ctx, r.e.deps.LLM, st.Dataset, known, r.e.cfg.MaxQuestions)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	st.Questions = questions
	st.QuestionIndex = 0
	logging.Planner("run %s: planned %d question(s)", st.RunID, len(questions))
	st.AppendMessage(types.RoleAssistant, string(StepPlanner),
		fmt.Sprintf("planned %d questions", len(questions)))
	return nil
}

// recallKnown fetches the user's remembered findings about this dataset so
// the planner avoids re-asking them. A missing or failing belief store
// degrades to planning without context.
func (r *run) recallKnown(ctx context.Context) []string {
	if r.e.deps.Beliefs == nil || r.st.Dataset == nil {
		return nil
	}
	parts := make([]string, 0, len(r.st.Dataset.Columns)+1)
	parts = append(parts, r.st.Dataset.Name)
	for _, col := range r.st.Dataset.Columns {
		parts = append(parts, col.Name)
	}
	query := strings.Join(parts, " ")

	known, err := r.e.deps.Beliefs.RecallContext(ctx, r.st.UserID, r.st.DatasetID, query, recallTopK)
	if err != nil {
		logging.PlannerDebug("run %s: belief recall unavailable: %v", r.st.RunID, err)
		return nil
	}
	return known
}

// analyzeStep works the current question through one full attempt: generate
// code, precheck it, execute it, interpret the output into a candidate
// insight. Any failure along the way consumes one unit of the question's
// retry budget; spending the last unit abandons the question.
func (r *run) analyzeStep(ctx context.Context) error {
	st := r.st
	q := st.CurrentQuestion()
	if q == nil {
		logging.AnalystDebug("run %s: no current question, nothing to analyze", st.RunID)
		return nil
	}

	if st.ErrorCount == 0 && st.CritiqueRetries == 0 {
		logging.Analyst("run %s: question %d/%d: %s",
			st.RunID, st.QuestionIndex+1, len(st.Questions), q.Text)
		r.emit(types.RunEvent{Kind: types.EventQuestionStarted, Step: string(StepAnalyst), Message: q.Text})
	}

	// Failure context folds into exactly one regeneration, then clears.
	lastError := st.LastError
	feedback := ""
	if st.Critique != nil && !st.Critique.Passed {
		feedback = st.Critique.Feedback
	}
	st.CurrentInsight = nil
	st.Critique = nil
	st.LastError = ""

	code, err := llm.GenerateAnalysisCode(ctx, r.e.deps.LLM, *q, st.Dataset,
		r.e.deps.Adapter.Language(), lastError, feedback)
	if err != nil {
		return r.failAttempt(q, "",
			types.NewExecutionError(types.ExecStageGenerate, "code generation failed: "+err.Error(), err))
	}

	if pre := r.e.deps.Precheck; pre != nil {
		if preErr := pre.Check(ctx, code); preErr != nil {
			return r.failAttempt(q, code,
				types.NewExecutionError(types.ExecStagePrecheck, preErr.Error(), preErr))
		}
	}

	execStart := time.Now()
	res := r.e.deps.Adapter.Execute(ctx, code, st.DatasetID)
	r.audit.ExecComplete(st.DatasetID, time.Since(execStart).Milliseconds(), res.Success, res.Error)
	if !res.Success {
		stage := types.ExecStageRunner
		if strings.Contains(res.Error, "timed out") {
			stage = types.ExecStageTimeout
		}
		return r.failAttempt(q, code, types.NewExecutionError(stage, res.Error, nil))
	}

	insight, err := llm.InterpretResult(ctx, r.e.deps.LLM, *q, res.Output)
	if err != nil {
		return r.failAttempt(q, code,
			types.NewExecutionError(types.ExecStageDecode, "result interpretation failed: "+err.Error(), err))
	}

	st.CurrentCode = code
	st.LastResult = res.Output
	st.CurrentInsight = insight
	logging.Analyst("run %s: candidate insight: %s", st.RunID, insight.Description)
	st.AppendMessage(types.RoleAssistant, string(StepAnalyst), insight.Description)
	return nil
}

// failAttempt commits a failed analysis attempt: the failure text becomes
// the feedback for the next attempt, and once the budget is spent the
// question is abandoned and the queue advances.
func (r *run) failAttempt(q *types.QuestionState, code string, execErr *types.ExecutionError) error {
	st := r.st
	st.CurrentCode = code
	st.LastResult = ""
	st.LastError = execErr.Feedback()
	st.ErrorCount++

	logging.Analyst("run %s: attempt %d/%d failed at %s: %s",
		st.RunID, st.ErrorCount, st.MaxRetries, execErr.Stage, execErr.Feedback())
	st.AppendMessage(types.RoleAssistant, string(StepAnalyst),
		fmt.Sprintf("attempt %d failed: %s", st.ErrorCount, execErr.Feedback()))

	if st.ErrorCount >= st.MaxRetries {
		st.AppendMessage(types.RoleAssistant, string(StepAnalyst), "question abandoned: "+q.Text)
		r.emit(types.RunEvent{Kind: types.EventQuestionAbandoned, Step: string(StepAnalyst),
			Message: q.Text, Err: execErr.Feedback()})
		st.AdvanceQuestion()
		return nil
	}
	r.emit(types.RunEvent{Kind: types.EventExecutionRetry, Step: string(StepAnalyst), Err: execErr.Feedback()})
	return nil
}

// critiqueStep scores the candidate insight with the deterministic checks
// plus an optional model review. A failing verdict routes back to the
// analyst while the revision budget lasts, then rejects the insight.
func (r *run) critiqueStep(ctx context.Context) error {
	st := r.st
	if st.CurrentInsight == nil {
		logging.CriticDebug("run %s: no candidate insight to critique", st.RunID)
		return nil
	}

	det := r.e.deps.Critic.Review(*st.CurrentInsight, st.Dataset)
	model, err := llm.CritiqueInsight(ctx, r.e.deps.LLM, *st.CurrentInsight, st.Dataset)
	if err != nil {
		logging.CriticDebug("run %s: model critique unavailable, deterministic checks only: %v",
			st.RunID, err)
		model = nil
	}
	verdict := r.e.deps.Critic.Merge(det, model)

	st.Critique = &verdict
	st.CurrentInsight.OverallScore = verdict.Score
	logging.Critic("run %s: critique score %.2f passed=%v", st.RunID, verdict.Score, verdict.Passed)
	r.audit.Critique(verdict.Score, verdict.Passed, verdict.Feedback)
	st.AppendMessage(types.RoleAssistant, string(StepCritic), verdict.Feedback)

	if verdict.Passed {
		return nil
	}

	if st.CritiqueRetries >= st.MaxCritiqueRetries {
		desc := st.CurrentInsight.Description
		st.RejectCurrent()
		r.audit.InsightDisposition(logging.AuditInsightRejected, desc, 0)
		st.AppendMessage(types.RoleAssistant, string(StepCritic), "insight rejected: "+desc)
		r.emit(types.RunEvent{Kind: types.EventInsightRejected, Step: string(StepCritic),
			Message: desc, Err: verdict.Feedback})
		st.AdvanceQuestion()
		return nil
	}
	st.CritiqueRetries++
	r.emit(types.RunEvent{Kind: types.EventCritiqueRetry, Step: string(StepCritic), Err: verdict.Feedback})
	return nil
}

// noveltyStep measures the vetted insight against the user's beliefs and
// buckets it: novel findings are approved into the report, familiar ones
// are suppressed as boring. Either way the question is settled and the
// category prior learns from it.
func (r *run) noveltyStep(ctx context.Context) error {
	st := r.st
	if st.CurrentInsight == nil {
		logging.NoveltyDebug("run %s: no candidate insight to assess", st.RunID)
		return nil
	}

	a := r.e.deps.Gate.Assess(ctx, st.UserID, st.DatasetID, *st.CurrentInsight, r.prior)

	st.SemanticSurprisal = a.SemanticSurprisal
	st.BayesianSurprise = a.BayesianSurprise
	st.HybridNovelty = a.HybridNovelty
	st.NoveltyThreshold = a.Threshold
	st.IsNovel = a.IsNovel
	st.BeliefContext = beliefTexts(a.Neighbors)
	if a.Degraded {
		logging.NoveltyWarn("run %s: belief store unreachable, treating insight as maximally surprising",
			st.RunID)
	}
	logging.Novelty("run %s: hybrid=%.3f (semantic=%.3f bayesian=%.3f) threshold=%.2f novel=%v",
		st.RunID, a.HybridNovelty, a.SemanticSurprisal, a.BayesianSurprise, a.Threshold, a.IsNovel)

	desc := st.CurrentInsight.Description
	if a.IsNovel {
		st.ApproveCurrent()
		r.audit.InsightDisposition(logging.AuditInsightApproved, desc, a.HybridNovelty)
		st.AppendMessage(types.RoleAssistant, string(StepNovelty), "approved: "+desc)
		r.emit(types.RunEvent{Kind: types.EventInsightApproved, Step: string(StepNovelty), Message: desc})
	} else {
		st.MarkCurrentBoring()
		r.audit.InsightDisposition(logging.AuditInsightBoring, desc, a.HybridNovelty)
		st.AppendMessage(types.RoleAssistant, string(StepNovelty), "already known: "+desc)
		r.emit(types.RunEvent{Kind: types.EventInsightBoring, Step: string(StepNovelty), Message: desc})
	}

	r.prior.Observe(a.Category)
	st.AdvanceQuestion()
	return nil
}

func beliefTexts(neighbors []types.ScoredBelief) []string {
	if len(neighbors) == 0 {
		return nil
	}
	texts := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		texts = append(texts, n.Text)
	}
	return texts
}

// synthesizeStep turns the disposition buckets into the final report. When
// the model cannot produce one, a deterministic fallback lists the approved
// findings so the run still ends with a response.
func (r *run) synthesizeStep(ctx context.Context) error {
	st := r.st

	report, vizes, err := llm.Synthesize(ctx, r.e.deps.LLM, st)
	if err != nil {
		logging.SynthesizerDebug("run %s: model synthesis failed, using fallback report: %v",
			st.RunID, err)
		report = fallbackReport(st)
		vizes = nil
	}

	st.FinalResponse = report
	st.VizConfigs = vizes
	st.FinishedAt = time.Now().UTC()
	logging.Synthesizer("run %s: report ready (%d chars, %d charts)",
		st.RunID, len(report), len(vizes))
	st.AppendMessage(types.RoleAssistant, string(StepSynthesizer),
		fmt.Sprintf("synthesized report from %d approved, %d boring, %d rejected insight(s)",
			len(st.Approved), len(st.Boring), len(st.Rejected)))
	return nil
}

// fallbackReport assembles a plain findings list without the model.
func fallbackReport(st *types.RunState) string {
	name := st.DatasetID
	if st.Dataset != nil && st.Dataset.Name != "" {
		name = st.Dataset.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis of %s\n\n", name)
	if len(st.Approved) == 0 {
		b.WriteString("No novel findings surfaced in this run.\n")
	} else {
		b.WriteString("## Findings\n\n")
		for i, in := range st.Approved {
			fmt.Fprintf(&b, "%d. %s", i+1, in.Description)
			if in.PValue > 0 {
				fmt.Fprintf(&b, " (p=%.3g)", in.PValue)
			}
			b.WriteString("\n")
		}
	}
	if n := len(st.Boring); n > 0 {
		fmt.Fprintf(&b, "\n%d finding(s) matched what you already know and were left out.\n", n)
	}
	return b.String()
}

// RecordApproved stores a finished run's approved insights as auto-generated
// beliefs so later runs treat them as known. This is an explicit opt-in
// invoked by the caller after a run, never by the run loop itself: beliefs
// are only ever created by deliberate actions.
func RecordApproved(ctx context.Context, store BeliefStore, st *types.RunState) (int, error) {
	if store == nil || st == nil {
		return 0, nil
	}
	recorded := 0
	for _, insight := range st.Approved {
		b := types.Belief{
			UserID:     st.UserID,
			DatasetID:  st.DatasetID,
			Text:       insight.Description,
			Source:     types.SourceAutoGenerated,
			Confidence: types.DefaultConfidence(types.SourceAutoGenerated),
		}
		if _, err := store.AddBelief(ctx, b); err != nil {
			return recorded, fmt.Errorf("recording insight %d of %d: %w", recorded+1, len(st.Approved), err)
		}
		recorded++
	}
	return recorded, nil
}
