// Package types provides shared type definitions used across dataNERD packages.
// This package exists to break import cycles between orchestrator, belief, and novelty.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// =============================================================================
// CONVERSATION HISTORY
// =============================================================================

// Message roles, matching the wire-level roles of chat completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a run's conversation history. Every agent step that
// talks to the LLM appends its prompt and response here so a run transcript
// can be replayed after the fact.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Step      string    `json:"step,omitempty"` // graph step that produced this message
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// ANALYSIS QUESTIONS
// =============================================================================

// QuestionType classifies what kind of statistical question the planner
// generated. The analyst picks its method (correlation test, group comparison,
// trend fit, ...) from this type.
type QuestionType string

const (
	QuestionDistribution QuestionType = "distribution"
	QuestionCorrelation  QuestionType = "correlation"
	QuestionGroupDiff    QuestionType = "group_difference"
	QuestionTrend        QuestionType = "trend"
	QuestionOutlier      QuestionType = "outlier"
	QuestionProportion   QuestionType = "proportion"
)

// KnownQuestionType reports whether t is one of the planner's canonical
// question types. Unknown types are carried through verbatim rather than
// rejected; the analyst treats them as free-form questions.
func KnownQuestionType(t QuestionType) bool {
	switch t {
	case QuestionDistribution, QuestionCorrelation, QuestionGroupDiff,
		QuestionTrend, QuestionOutlier, QuestionProportion:
		return true
	}
	return false
}

// QuestionState is a single analysis question produced by the planner.
type QuestionState struct {
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	TargetColumns []string     `json:"target_columns,omitempty"`
	FilterColumn  string       `json:"filter_column,omitempty"` // column to slice by when probing subspaces
	Priority      int          `json:"priority"`                // higher runs first
}

// =============================================================================
// INSIGHTS
// =============================================================================

// InsightState is a finding produced by the analyst for one question. It is
// the unit that flows through critique and novelty gating before landing in
// one of the run's disposition buckets.
type InsightState struct {
	InsightType    string   `json:"insight_type"`              // correlation, group_difference, trend, ...
	Description    string   `json:"description"`               // plain-language statement of the finding
	Columns        []string `json:"columns,omitempty"`         // columns the finding is about
	SubspaceFilter string   `json:"subspace_filter,omitempty"` // e.g. `region == "EU"` when scoped to a slice

	Statistic                float64 `json:"statistic"`   // test statistic (r, t, chi2, ...)
	PValue                   float64 `json:"p_value"`     // significance of the statistic
	EffectSize               float64 `json:"effect_size"` // magnitude (Cohen's d, |r|, ...)
	EffectSizeInterpretation string  `json:"effect_size_interpretation,omitempty"`
	SampleSize               int     `json:"sample_size"` // rows the statistic was computed over

	// SimpsonsParadox is set when the aggregate trend reverses or vanishes
	// inside the subgroups of the subspace filter's column.
	SimpsonsParadox bool `json:"simpsons_paradox,omitempty"`

	NoveltyScore float64 `json:"novelty_score"` // hybrid novelty assigned by the gate
	OverallScore float64 `json:"overall_score"` // critic's composite quality score
}

// InterpretEffectSize maps an effect size magnitude to a conventional label.
// Correlation-family insights use the |r| scale (0.1/0.3/0.5); everything
// else uses the Cohen's d scale (0.2/0.5/0.8).
func InterpretEffectSize(insightType string, effectSize float64) string {
	mag := math.Abs(effectSize)
	small, medium, large := 0.2, 0.5, 0.8
	switch QuestionType(insightType) {
	case QuestionCorrelation, QuestionTrend:
		small, medium, large = 0.1, 0.3, 0.5
	}
	switch {
	case mag < small:
		return "negligible"
	case mag < medium:
		return "small"
	case mag < large:
		return "medium"
	default:
		return "large"
	}
}

// =============================================================================
// CRITIQUE
// =============================================================================

// CritiqueState is the critic's verdict on a candidate insight.
type CritiqueState struct {
	Score       float64  `json:"score"`  // 0..1 composite quality
	Passed      bool     `json:"passed"` // true when Score clears the pass threshold
	Feedback    string   `json:"feedback,omitempty"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// =============================================================================
// DATASET CONTEXT
// =============================================================================

// ColumnSchema describes one column of the dataset under analysis.
type ColumnSchema struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"` // string, int, float, bool, date
	SampleValues []string `json:"sample_values,omitempty"`
}

// DatasetContext is everything the agents know about the dataset: schema,
// shape, and a few sample rows. It is assembled once per run by the dataset
// provider and injected into every prompt.
type DatasetContext struct {
	DatasetID   string           `json:"dataset_id"`
	Name        string           `json:"name,omitempty"`
	RowCount    int              `json:"row_count"`
	ColumnCount int              `json:"column_count"`
	Columns     []ColumnSchema   `json:"columns"`
	SampleRows  []map[string]any `json:"sample_rows,omitempty"`
}

// PromptBlock renders the dataset context as a compact text block suitable
// for inclusion in agent prompts. Sample values and rows are capped so a wide
// dataset cannot blow up the prompt.
func (d *DatasetContext) PromptBlock() string {
	var b strings.Builder
	name := d.Name
	if name == "" {
		name = d.DatasetID
	}
	fmt.Fprintf(&b, "Dataset: %s (%d rows, %d columns)\n", name, d.RowCount, d.ColumnCount)
	b.WriteString("Schema:\n")
	for _, col := range d.Columns {
		fmt.Fprintf(&b, "  - %s (%s)", col.Name, col.Type)
		if len(col.SampleValues) > 0 {
			samples := col.SampleValues
			if len(samples) > 3 {
				samples = samples[:3]
			}
			fmt.Fprintf(&b, " e.g. %s", strings.Join(samples, ", "))
		}
		b.WriteString("\n")
	}
	if len(d.SampleRows) > 0 {
		n := len(d.SampleRows)
		if n > 3 {
			n = 3
		}
		fmt.Fprintf(&b, "Sample rows (%d of %d):\n", n, d.RowCount)
		for _, row := range d.SampleRows[:n] {
			if enc, err := json.Marshal(row); err == nil {
				fmt.Fprintf(&b, "  %s\n", enc)
			}
		}
	}
	return b.String()
}

// ColumnNames returns the schema's column names in order.
func (d *DatasetContext) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		names[i] = col.Name
	}
	return names
}

// HasColumn reports whether the schema contains the named column.
func (d *DatasetContext) HasColumn(name string) bool {
	for _, col := range d.Columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// =============================================================================
// VISUALIZATION
// =============================================================================

// Chart types the synthesizer may request.
const (
	ChartBar       = "bar"
	ChartLine      = "line"
	ChartScatter   = "scatter"
	ChartHistogram = "histogram"
	ChartBox       = "box"
)

// VizConfig is a declarative chart request emitted by the synthesizer for an
// approved insight. Rendering happens downstream; the orchestrator only
// carries the configs.
type VizConfig struct {
	ChartType string `json:"chart_type"`
	Title     string `json:"title"`
	XColumn   string `json:"x_column"`
	YColumn   string `json:"y_column,omitempty"`
	GroupBy   string `json:"group_by,omitempty"`
	Filter    string `json:"filter,omitempty"` // subspace filter the chart should apply
}

// =============================================================================
// RUN STATE
// =============================================================================

// RunLimits bundles the per-run budget knobs. The orchestrator fills these
// from config when it constructs the run state.
type RunLimits struct {
	MaxIterations      int     `json:"max_iterations"`
	MaxRetries         int     `json:"max_retries"`          // execution retries per question
	MaxCritiqueRetries int     `json:"max_critique_retries"` // critique-driven regenerations per question
	NoveltyThreshold   float64 `json:"novelty_threshold"`
}

// RunState is the shared blackboard for one analysis run. Every graph step
// reads from and writes to this structure; the orchestrator owns the only
// mutable copy and steps never retain references past their turn.
type RunState struct {
	RunID     string `json:"run_id"`
	UserID    string `json:"user_id"`
	DatasetID string `json:"dataset_id"`

	// Conversation and dataset context shared by all agents.
	Messages []Message       `json:"messages,omitempty"`
	Dataset  *DatasetContext `json:"dataset,omitempty"`

	// Question queue produced by the planner. QuestionIndex points at the
	// question currently being worked.
	Questions     []QuestionState `json:"questions,omitempty"`
	QuestionIndex int             `json:"question_index"`

	// Per-question scratch: the analysis code in flight, its last outcome,
	// and the retry budgets consumed so far. Cleared on every question
	// advance.
	CurrentCode        string `json:"current_code,omitempty"`
	LastResult         string `json:"last_result,omitempty"`
	LastError          string `json:"last_error,omitempty"`
	ErrorCount         int    `json:"error_count"`
	MaxRetries         int    `json:"max_retries"`
	CritiqueRetries    int    `json:"critique_retries"`
	MaxCritiqueRetries int    `json:"max_critique_retries"`

	// Latest critic verdict and the candidate insight it applies to.
	Critique       *CritiqueState `json:"critique,omitempty"`
	CurrentInsight *InsightState  `json:"current_insight,omitempty"`

	// Belief context recalled for the current question, and the novelty
	// measurements of the candidate insight against that context.
	BeliefContext     []string `json:"belief_context,omitempty"`
	SemanticSurprisal float64  `json:"semantic_surprisal"`
	BayesianSurprise  float64  `json:"bayesian_surprise"`
	HybridNovelty     float64  `json:"hybrid_novelty"`
	NoveltyThreshold  float64  `json:"novelty_threshold"`
	IsNovel           bool     `json:"is_novel"`

	// Disposition buckets. An insight lands in exactly one of these.
	Approved []InsightState `json:"approved,omitempty"`
	Rejected []InsightState `json:"rejected,omitempty"`
	Boring   []InsightState `json:"boring,omitempty"`

	// Synthesizer output.
	FinalResponse string      `json:"final_response,omitempty"`
	VizConfigs    []VizConfig `json:"viz_configs,omitempty"`

	// Driver bookkeeping.
	IterationCount int       `json:"iteration_count"`
	MaxIterations  int       `json:"max_iterations"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at,omitempty"`
}

// NewRunState constructs a run state with the given identity and budgets.
// Counters start at zero; the planner fills the question queue on the first
// iteration.
func NewRunState(runID, userID, datasetID string, limits RunLimits) *RunState {
	return &RunState{
		RunID:              runID,
		UserID:             userID,
		DatasetID:          datasetID,
		MaxIterations:      limits.MaxIterations,
		MaxRetries:         limits.MaxRetries,
		MaxCritiqueRetries: limits.MaxCritiqueRetries,
		NoveltyThreshold:   limits.NoveltyThreshold,
		StartedAt:          time.Now().UTC(),
	}
}

// AppendMessage records a conversation entry attributed to a graph step.
func (s *RunState) AppendMessage(role, step, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Step:      step,
		Timestamp: time.Now().UTC(),
	})
}

// CurrentQuestion returns the question under analysis, or nil when the queue
// is exhausted (or was never filled).
func (s *RunState) CurrentQuestion() *QuestionState {
	if s.QuestionIndex < 0 || s.QuestionIndex >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.QuestionIndex]
}

// HasPendingQuestions reports whether any questions remain at or after the
// current index.
func (s *RunState) HasPendingQuestions() bool {
	return s.QuestionIndex < len(s.Questions)
}

// QuestionsRemaining counts the questions not yet dispatched, including the
// current one.
func (s *RunState) QuestionsRemaining() int {
	if s.QuestionIndex >= len(s.Questions) {
		return 0
	}
	return len(s.Questions) - s.QuestionIndex
}

// AdvanceQuestion moves to the next question and clears all per-question
// scratch. Retry budgets are per question, so both counters reset here.
func (s *RunState) AdvanceQuestion() {
	s.QuestionIndex++
	s.CurrentCode = ""
	s.LastResult = ""
	s.LastError = ""
	s.ErrorCount = 0
	s.CritiqueRetries = 0
	s.Critique = nil
	s.CurrentInsight = nil
	s.BeliefContext = nil
	s.SemanticSurprisal = 0
	s.BayesianSurprise = 0
	s.HybridNovelty = 0
	s.IsNovel = false
}

// ApproveCurrent moves the candidate insight into the approved bucket and
// consumes it. The candidate's novelty score is stamped from the run's hybrid
// measurement first.
func (s *RunState) ApproveCurrent() {
	if s.CurrentInsight == nil {
		return
	}
	s.CurrentInsight.NoveltyScore = s.HybridNovelty
	s.Approved = append(s.Approved, *s.CurrentInsight)
	s.CurrentInsight = nil
}

// RejectCurrent moves the candidate insight into the rejected bucket and
// consumes it.
func (s *RunState) RejectCurrent() {
	if s.CurrentInsight == nil {
		return
	}
	s.Rejected = append(s.Rejected, *s.CurrentInsight)
	s.CurrentInsight = nil
}

// MarkCurrentBoring moves the candidate insight into the boring bucket and
// consumes it. Boring is a normal disposition, not a failure.
func (s *RunState) MarkCurrentBoring() {
	if s.CurrentInsight == nil {
		return
	}
	s.CurrentInsight.NoveltyScore = s.HybridNovelty
	s.Boring = append(s.Boring, *s.CurrentInsight)
	s.CurrentInsight = nil
}

// TotalInsights counts insights across all disposition buckets.
func (s *RunState) TotalInsights() int {
	return len(s.Approved) + len(s.Rejected) + len(s.Boring)
}

// Elapsed returns run duration: wall time so far for a live run, or the
// recorded span for a finished one.
func (s *RunState) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
