package orchestrator

import "datanerd/internal/types"

// Step identifies a node in the analysis graph.
type Step string

const (
	StepPlanner     Step = "planner"
	StepAnalyst     Step = "analyst"
	StepCritic      Step = "critic"
	StepNovelty     Step = "novelty"
	StepSynthesizer Step = "synthesizer"
	StepEnd         Step = "end"
)

// nextStep picks the node that runs after prev. It reads only the blackboard:
// steps commit their outcome to state before routing runs, so every decision
// here is reproducible from a state snapshot.
func nextStep(prev Step, st *types.RunState) Step {
	switch prev {
	case StepPlanner:
		if !st.HasPendingQuestions() {
			return StepSynthesizer
		}
		return StepAnalyst

	case StepAnalyst:
		if st.CurrentInsight != nil {
			return StepCritic
		}
		if st.LastError != "" {
			// Failed attempt with retry budget left. The analyst abandons
			// the question itself once the budget is spent, which clears
			// LastError and advances the queue.
			return StepAnalyst
		}
		return afterQuestion(st)

	case StepCritic:
		if st.Critique != nil && st.Critique.Passed {
			return StepNovelty
		}
		if st.CurrentInsight != nil {
			// Rejected with revision budget left: regenerate against the
			// critic's feedback.
			return StepAnalyst
		}
		return afterQuestion(st)

	case StepNovelty:
		return afterQuestion(st)

	case StepSynthesizer:
		return StepEnd
	}
	return StepEnd
}

// afterQuestion routes once the current question is settled: back to the
// planner for the next question while the queue and the iteration budget
// both have room, otherwise straight to synthesis. The driver increments
// IterationCount on every planner entry, so refusing to route there once
// the count reaches the cap is what keeps the count within budget.
func afterQuestion(st *types.RunState) Step {
	if !st.HasPendingQuestions() {
		return StepSynthesizer
	}
	if st.IterationCount >= st.MaxIterations {
		return StepSynthesizer
	}
	return StepPlanner
}
