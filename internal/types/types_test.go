package types

import (
	"strings"
	"testing"
	"time"
)

func testLimits() RunLimits {
	return RunLimits{
		MaxIterations:      50,
		MaxRetries:         3,
		MaxCritiqueRetries: 2,
		NoveltyThreshold:   0.35,
	}
}

func TestNewRunStateDefaults(t *testing.T) {
	st := NewRunState("run-1", "user-1", "ds-1", testLimits())
	if st.RunID != "run-1" || st.UserID != "user-1" || st.DatasetID != "ds-1" {
		t.Fatalf("unexpected identity: %q %q %q", st.RunID, st.UserID, st.DatasetID)
	}
	if st.MaxIterations != 50 || st.MaxRetries != 3 || st.MaxCritiqueRetries != 2 {
		t.Fatalf("unexpected budgets: %d %d %d", st.MaxIterations, st.MaxRetries, st.MaxCritiqueRetries)
	}
	if st.NoveltyThreshold != 0.35 {
		t.Fatalf("unexpected novelty threshold: %f", st.NoveltyThreshold)
	}
	if st.IterationCount != 0 || st.QuestionIndex != 0 || st.ErrorCount != 0 {
		t.Fatalf("counters should start at zero")
	}
	if st.StartedAt.IsZero() {
		t.Fatalf("expected StartedAt to be stamped")
	}
	if st.StartedAt.Location() != time.UTC {
		t.Fatalf("expected StartedAt in UTC, got %v", st.StartedAt.Location())
	}
}

func TestQuestionQueueAdvancement(t *testing.T) {
	st := NewRunState("run-1", "user-1", "ds-1", testLimits())
	st.Questions = []QuestionState{
		{Text: "first", Type: QuestionCorrelation},
		{Text: "second", Type: QuestionGroupDiff},
	}

	if !st.HasPendingQuestions() {
		t.Fatalf("expected pending questions")
	}
	if st.QuestionsRemaining() != 2 {
		t.Fatalf("expected 2 remaining, got %d", st.QuestionsRemaining())
	}
	q := st.CurrentQuestion()
	if q == nil || q.Text != "first" {
		t.Fatalf("unexpected current question: %+v", q)
	}

	st.AdvanceQuestion()
	q = st.CurrentQuestion()
	if q == nil || q.Text != "second" {
		t.Fatalf("expected second question, got %+v", q)
	}
	if st.QuestionsRemaining() != 1 {
		t.Fatalf("expected 1 remaining, got %d", st.QuestionsRemaining())
	}

	st.AdvanceQuestion()
	if st.CurrentQuestion() != nil {
		t.Fatalf("expected nil past the end of the queue")
	}
	if st.HasPendingQuestions() {
		t.Fatalf("expected no pending questions")
	}
	if st.QuestionsRemaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", st.QuestionsRemaining())
	}
}

func TestAdvanceQuestionClearsScratch(t *testing.T) {
	st := NewRunState("run-1", "user-1", "ds-1", testLimits())
	st.Questions = []QuestionState{{Text: "a"}, {Text: "b"}}
	st.CurrentCode = "func Analyze() {}"
	st.LastResult = "r = 0.8"
	st.LastError = "boom"
	st.ErrorCount = 2
	st.CritiqueRetries = 1
	st.Critique = &CritiqueState{Score: 0.4}
	st.CurrentInsight = &InsightState{Description: "stale"}
	st.BeliefContext = []string{"known thing"}
	st.SemanticSurprisal = 0.9
	st.BayesianSurprise = 0.5
	st.HybridNovelty = 0.74
	st.IsNovel = true

	st.AdvanceQuestion()

	if st.CurrentCode != "" || st.LastResult != "" || st.LastError != "" {
		t.Fatalf("expected code/result/error cleared")
	}
	if st.ErrorCount != 0 || st.CritiqueRetries != 0 {
		t.Fatalf("expected retry counters reset, got %d/%d", st.ErrorCount, st.CritiqueRetries)
	}
	if st.Critique != nil || st.CurrentInsight != nil {
		t.Fatalf("expected critique and candidate insight cleared")
	}
	if st.BeliefContext != nil || st.SemanticSurprisal != 0 || st.HybridNovelty != 0 || st.IsNovel {
		t.Fatalf("expected novelty scratch cleared")
	}
	// Budgets survive the advance; only consumption resets.
	if st.MaxRetries != 3 || st.MaxCritiqueRetries != 2 {
		t.Fatalf("budgets should not change on advance")
	}
}

func TestDispositionBucketsAreExclusive(t *testing.T) {
	st := NewRunState("run-1", "user-1", "ds-1", testLimits())

	st.CurrentInsight = &InsightState{Description: "novel finding"}
	st.HybridNovelty = 0.8
	st.ApproveCurrent()
	if len(st.Approved) != 1 || st.CurrentInsight != nil {
		t.Fatalf("approve should consume the candidate")
	}
	if st.Approved[0].NoveltyScore != 0.8 {
		t.Fatalf("approve should stamp novelty score, got %f", st.Approved[0].NoveltyScore)
	}

	st.CurrentInsight = &InsightState{Description: "weak finding"}
	st.RejectCurrent()
	if len(st.Rejected) != 1 || st.CurrentInsight != nil {
		t.Fatalf("reject should consume the candidate")
	}

	st.CurrentInsight = &InsightState{Description: "known finding"}
	st.HybridNovelty = 0.1
	st.MarkCurrentBoring()
	if len(st.Boring) != 1 || st.CurrentInsight != nil {
		t.Fatalf("boring should consume the candidate")
	}
	if st.Boring[0].NoveltyScore != 0.1 {
		t.Fatalf("boring should stamp novelty score, got %f", st.Boring[0].NoveltyScore)
	}

	if st.TotalInsights() != 3 {
		t.Fatalf("expected 3 total insights, got %d", st.TotalInsights())
	}

	// Bucket ops with no candidate are no-ops, not panics.
	st.ApproveCurrent()
	st.RejectCurrent()
	st.MarkCurrentBoring()
	if st.TotalInsights() != 3 {
		t.Fatalf("bucket ops without a candidate must not append")
	}
}

func TestAppendMessage(t *testing.T) {
	st := NewRunState("run-1", "user-1", "ds-1", testLimits())
	st.AppendMessage(RoleUser, "planner", "what drives churn?")
	st.AppendMessage(RoleAssistant, "planner", `{"questions": []}`)

	if len(st.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(st.Messages))
	}
	if st.Messages[0].Role != RoleUser || st.Messages[0].Step != "planner" {
		t.Fatalf("unexpected first message: %+v", st.Messages[0])
	}
	if st.Messages[1].Timestamp.IsZero() {
		t.Fatalf("expected message timestamps to be stamped")
	}
}

func TestKnownQuestionType(t *testing.T) {
	for _, qt := range []QuestionType{
		QuestionDistribution, QuestionCorrelation, QuestionGroupDiff,
		QuestionTrend, QuestionOutlier, QuestionProportion,
	} {
		if !KnownQuestionType(qt) {
			t.Fatalf("expected %q to be known", qt)
		}
	}
	if KnownQuestionType("vibes") {
		t.Fatalf("expected unknown type to be rejected")
	}
}

func TestInterpretEffectSize(t *testing.T) {
	cases := []struct {
		insightType string
		effect      float64
		want        string
	}{
		{"correlation", 0.05, "negligible"},
		{"correlation", 0.2, "small"},
		{"correlation", 0.4, "medium"},
		{"correlation", 0.7, "large"},
		{"correlation", -0.7, "large"}, // sign does not matter
		{"trend", 0.35, "medium"},
		{"group_difference", 0.1, "negligible"},
		{"group_difference", 0.3, "small"},
		{"group_difference", 0.6, "medium"},
		{"group_difference", 1.2, "large"},
		{"outlier", 0.5, "medium"}, // non-correlation types use the d scale
	}
	for _, c := range cases {
		got := InterpretEffectSize(c.insightType, c.effect)
		if got != c.want {
			t.Fatalf("InterpretEffectSize(%s, %g) = %q, want %q", c.insightType, c.effect, got, c.want)
		}
	}
}

func TestDatasetContextPromptBlock(t *testing.T) {
	ctx := &DatasetContext{
		DatasetID:   "ds-42",
		Name:        "sales",
		RowCount:    10000,
		ColumnCount: 3,
		Columns: []ColumnSchema{
			{Name: "region", Type: "string", SampleValues: []string{"EU", "NA", "APAC", "LATAM"}},
			{Name: "revenue", Type: "float", SampleValues: []string{"1023.5", "88.0"}},
			{Name: "churned", Type: "bool"},
		},
		SampleRows: []map[string]any{
			{"region": "EU", "revenue": 1023.5, "churned": false},
		},
	}

	block := ctx.PromptBlock()
	if !strings.Contains(block, "Dataset: sales (10000 rows, 3 columns)") {
		t.Fatalf("missing header in prompt block:\n%s", block)
	}
	if !strings.Contains(block, "region (string) e.g. EU, NA, APAC") {
		t.Fatalf("expected sample values capped at 3:\n%s", block)
	}
	if strings.Contains(block, "LATAM") {
		t.Fatalf("fourth sample value should be dropped:\n%s", block)
	}
	if !strings.Contains(block, "churned (bool)\n") {
		t.Fatalf("column without samples should render bare:\n%s", block)
	}
	if !strings.Contains(block, "Sample rows (1 of 10000):") {
		t.Fatalf("missing sample rows section:\n%s", block)
	}

	if !ctx.HasColumn("revenue") || ctx.HasColumn("profit") {
		t.Fatalf("HasColumn misbehaved")
	}
	names := ctx.ColumnNames()
	if len(names) != 3 || names[0] != "region" {
		t.Fatalf("unexpected column names: %v", names)
	}
}

func TestPromptBlockFallsBackToID(t *testing.T) {
	ctx := &DatasetContext{DatasetID: "ds-7", RowCount: 5, ColumnCount: 1,
		Columns: []ColumnSchema{{Name: "x", Type: "int"}}}
	if !strings.Contains(ctx.PromptBlock(), "Dataset: ds-7") {
		t.Fatalf("expected dataset id used when name is empty")
	}
}

func TestElapsed(t *testing.T) {
	st := NewRunState("run-1", "user-1", "ds-1", testLimits())
	st.StartedAt = time.Now().UTC().Add(-2 * time.Second)
	if st.Elapsed() < time.Second {
		t.Fatalf("live run elapsed should track wall time")
	}

	st.FinishedAt = st.StartedAt.Add(42 * time.Millisecond)
	if st.Elapsed() != 42*time.Millisecond {
		t.Fatalf("finished run elapsed should use recorded span, got %v", st.Elapsed())
	}
}
