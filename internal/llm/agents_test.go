package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"datanerd/internal/types"
)

// fakeClient returns a scripted response (or error) for every completion
// method and records the last call's arguments.
type fakeClient struct {
	response string
	err      error

	calls      int
	lastSystem string
	lastPrompt string
	lastHint   string
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	return f.response, f.err
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastPrompt = prompt
	return f.response, f.err
}

func (f *fakeClient) CompleteJSON(ctx context.Context, system, prompt, hint string) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastPrompt = prompt
	f.lastHint = hint
	return f.response, f.err
}

func agentsDataset() *types.DatasetContext {
	return &types.DatasetContext{
		DatasetID:   "ds-1",
		Name:        "customers",
		RowCount:    5000,
		ColumnCount: 3,
		Columns: []types.ColumnSchema{
			{Name: "monthly_spend", Type: "float"},
			{Name: "tenure_months", Type: "int"},
			{Name: "region", Type: "string"},
		},
	}
}

func TestPlanQuestions(t *testing.T) {
	plannerResponse := `[
		{"text":"Spend by region?","type":"group_difference","target_columns":["monthly_spend","region"],"priority":4},
		{"text":"","type":"correlation","priority":10},
		{"text":"Is spend correlated with tenure?","type":"correlation","target_columns":["monthly_spend","tenure_months","ghost_col"],"filter_column":"region","priority":9},
		{"text":"Outliers in spend?","type":"outlier","target_columns":["monthly_spend"],"filter_column":"phantom","priority":2}
	]`

	t.Run("drops invalid entries and sorts by priority", func(t *testing.T) {
		fake := &fakeClient{response: plannerResponse}
		got, err := PlanQuestions(context.Background(), fake, agentsDataset(), nil, 8)
		if err != nil {
			t.Fatalf("PlanQuestions failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("got %d questions, want 3 (empty text dropped)", len(got))
		}
		if got[0].Priority != 9 || got[1].Priority != 4 || got[2].Priority != 2 {
			t.Errorf("priorities = %d, %d, %d, want descending 9, 4, 2",
				got[0].Priority, got[1].Priority, got[2].Priority)
		}
		if len(got[0].TargetColumns) != 2 {
			t.Errorf("target columns = %v, want hallucinated ghost_col removed", got[0].TargetColumns)
		}
		if got[0].FilterColumn != "region" {
			t.Errorf("filter column = %q, want real column kept", got[0].FilterColumn)
		}
		if got[2].FilterColumn != "" {
			t.Errorf("filter column = %q, want phantom cleared", got[2].FilterColumn)
		}
	})

	t.Run("caps at maxQuestions", func(t *testing.T) {
		fake := &fakeClient{response: plannerResponse}
		got, err := PlanQuestions(context.Background(), fake, agentsDataset(), nil, 2)
		if err != nil {
			t.Fatalf("PlanQuestions failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d questions, want 2", len(got))
		}
		if got[1].Priority != 4 {
			t.Errorf("kept priority %d second, want the next-highest 4", got[1].Priority)
		}
	})

	t.Run("belief context reaches the prompt", func(t *testing.T) {
		fake := &fakeClient{response: plannerResponse}
		known := []string{"Spend correlates with tenure (r=0.6)"}
		if _, err := PlanQuestions(context.Background(), fake, agentsDataset(), known, 8); err != nil {
			t.Fatalf("PlanQuestions failed: %v", err)
		}
		if !strings.Contains(fake.lastPrompt, "already knows") {
			t.Error("prompt missing the known-findings preamble")
		}
		if !strings.Contains(fake.lastPrompt, "- Spend correlates with tenure (r=0.6)") {
			t.Errorf("prompt missing belief line:\n%s", fake.lastPrompt)
		}
		if fake.lastSystem != plannerSystem {
			t.Error("wrong system prompt")
		}
		if fake.lastHint != plannerSchemaHint {
			t.Error("wrong schema hint")
		}
	})

	t.Run("no usable questions is the sentinel error", func(t *testing.T) {
		fake := &fakeClient{response: `[{"text":"  "}]`}
		_, err := PlanQuestions(context.Background(), fake, agentsDataset(), nil, 8)
		if !errors.Is(err, ErrNoUsableQuestions) {
			t.Fatalf("error = %v, want ErrNoUsableQuestions", err)
		}
	})

	t.Run("malformed response is an error", func(t *testing.T) {
		fake := &fakeClient{response: "I could not think of anything"}
		_, err := PlanQuestions(context.Background(), fake, agentsDataset(), nil, 8)
		if err == nil || !strings.Contains(err.Error(), "parse planner response") {
			t.Errorf("error = %v, want parse failure", err)
		}
	})

	t.Run("completion failure propagates", func(t *testing.T) {
		fake := &fakeClient{err: errors.New("boom")}
		_, err := PlanQuestions(context.Background(), fake, agentsDataset(), nil, 8)
		if err == nil || !strings.Contains(err.Error(), "planner completion failed") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestGenerateAnalysisCode(t *testing.T) {
	question := types.QuestionState{
		Text:          "Is spend correlated with tenure?",
		Type:          types.QuestionCorrelation,
		TargetColumns: []string{"monthly_spend", "tenure_months"},
	}

	t.Run("go requests the Analyze contract and strips fences", func(t *testing.T) {
		fake := &fakeClient{response: "```go\nfunc Analyze(rows []map[string]any) (string, error) { return \"{}\", nil }\n```"}
		code, err := GenerateAnalysisCode(context.Background(), fake, question, agentsDataset(), "go", "", "")
		if err != nil {
			t.Fatalf("GenerateAnalysisCode failed: %v", err)
		}
		if strings.Contains(code, "```") {
			t.Errorf("fences not stripped: %q", code)
		}
		if !strings.HasPrefix(code, "func Analyze") {
			t.Errorf("code = %q", code)
		}
		if !strings.Contains(fake.lastSystem, "func Analyze(rows []map[string]any)") {
			t.Error("system prompt missing the Go entry-point contract")
		}
	})

	t.Run("python requests a dataframe script", func(t *testing.T) {
		fake := &fakeClient{response: "print(1)"}
		if _, err := GenerateAnalysisCode(context.Background(), fake, question, agentsDataset(), "Python", "", ""); err != nil {
			t.Fatalf("GenerateAnalysisCode failed: %v", err)
		}
		if !strings.Contains(fake.lastSystem, "DataFrame named df") {
			t.Error("system prompt missing the pandas contract")
		}
	})

	t.Run("previous error folded into the prompt", func(t *testing.T) {
		fake := &fakeClient{response: "print(1)"}
		if _, err := GenerateAnalysisCode(context.Background(), fake, question, agentsDataset(), "python", "NameError: pd is not defined", ""); err != nil {
			t.Fatalf("GenerateAnalysisCode failed: %v", err)
		}
		if !strings.Contains(fake.lastPrompt, "previous attempt failed") ||
			!strings.Contains(fake.lastPrompt, "NameError: pd is not defined") {
			t.Errorf("prompt missing failure context:\n%s", fake.lastPrompt)
		}
	})

	t.Run("critique feedback folded into the prompt", func(t *testing.T) {
		fake := &fakeClient{response: "print(1)"}
		if _, err := GenerateAnalysisCode(context.Background(), fake, question, agentsDataset(), "python", "", "sample size too small"); err != nil {
			t.Fatalf("GenerateAnalysisCode failed: %v", err)
		}
		if !strings.Contains(fake.lastPrompt, "reviewer rejected") ||
			!strings.Contains(fake.lastPrompt, "sample size too small") {
			t.Errorf("prompt missing critique context:\n%s", fake.lastPrompt)
		}
	})

	t.Run("filter column requests a subgroup probe", func(t *testing.T) {
		q := question
		q.FilterColumn = "region"
		fake := &fakeClient{response: "print(1)"}
		if _, err := GenerateAnalysisCode(context.Background(), fake, q, agentsDataset(), "python", "", ""); err != nil {
			t.Fatalf("GenerateAnalysisCode failed: %v", err)
		}
		if !strings.Contains(fake.lastPrompt, "Simpson's paradox probe") {
			t.Error("prompt missing the subgroup probe instruction")
		}
	})

	t.Run("empty code is an error", func(t *testing.T) {
		fake := &fakeClient{response: "```\n```"}
		_, err := GenerateAnalysisCode(context.Background(), fake, question, agentsDataset(), "go", "", "")
		if err == nil || !strings.Contains(err.Error(), "empty code") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestInterpretResult(t *testing.T) {
	question := types.QuestionState{Text: "Is spend correlated with tenure?", Type: types.QuestionCorrelation}

	t.Run("well-formed output parses without a model call", func(t *testing.T) {
		fake := &fakeClient{}
		raw := `{"description":"spend rises with tenure","statistic":3.2,"p_value":0.001,"effect_size":0.4,"sample_size":4800}`
		insight, err := InterpretResult(context.Background(), fake, question, raw)
		if err != nil {
			t.Fatalf("InterpretResult failed: %v", err)
		}
		if fake.calls != 0 {
			t.Errorf("model called %d times, want direct parse", fake.calls)
		}
		if insight.InsightType != "correlation" {
			t.Errorf("insight type = %q, want filled from the question", insight.InsightType)
		}
		if insight.EffectSizeInterpretation != "medium" {
			t.Errorf("effect size interpretation = %q, want medium for |r|=0.4", insight.EffectSizeInterpretation)
		}
		if insight.SampleSize != 4800 {
			t.Errorf("sample size = %d", insight.SampleSize)
		}
	})

	t.Run("fenced output still parses directly", func(t *testing.T) {
		fake := &fakeClient{}
		raw := "```json\n{\"description\":\"spend rises with tenure\",\"statistic\":3.2}\n```"
		if _, err := InterpretResult(context.Background(), fake, question, raw); err != nil {
			t.Fatalf("InterpretResult failed: %v", err)
		}
		if fake.calls != 0 {
			t.Errorf("model called %d times, want direct parse", fake.calls)
		}
	})

	t.Run("declared type and interpretation win over the question", func(t *testing.T) {
		fake := &fakeClient{}
		raw := `{"insight_type":"trend","description":"spend trending up","effect_size":0.4,"effect_size_interpretation":"noteworthy"}`
		insight, err := InterpretResult(context.Background(), fake, question, raw)
		if err != nil {
			t.Fatalf("InterpretResult failed: %v", err)
		}
		if insight.InsightType != "trend" {
			t.Errorf("insight type = %q, want declared value kept", insight.InsightType)
		}
		if insight.EffectSizeInterpretation != "noteworthy" {
			t.Errorf("interpretation = %q, want declared value kept", insight.EffectSizeInterpretation)
		}
	})

	t.Run("zero effect size stays uninterpreted", func(t *testing.T) {
		fake := &fakeClient{}
		raw := `{"description":"no detectable relationship","p_value":0.8}`
		insight, err := InterpretResult(context.Background(), fake, question, raw)
		if err != nil {
			t.Fatalf("InterpretResult failed: %v", err)
		}
		if insight.EffectSizeInterpretation != "" {
			t.Errorf("interpretation = %q, want empty when no effect size", insight.EffectSizeInterpretation)
		}
	})

	t.Run("quoted numbers and bare strings still parse", func(t *testing.T) {
		fake := &fakeClient{}
		raw := `{"description":"spend rises with tenure","statistic":"0.62","p_value":"0.001",
			"effect_size":"0.62","sample_size":"4800","columns":"monthly_spend","simpsons_paradox":"yes"}`
		insight, err := InterpretResult(context.Background(), fake, question, raw)
		if err != nil {
			t.Fatalf("InterpretResult failed: %v", err)
		}
		if fake.calls != 0 {
			t.Errorf("model called %d times, want direct parse of the drifted payload", fake.calls)
		}
		if insight.Statistic != 0.62 || insight.PValue != 0.001 {
			t.Errorf("quoted numbers = %v / %v", insight.Statistic, insight.PValue)
		}
		if insight.SampleSize != 4800 {
			t.Errorf("sample size = %d, want quoted int parsed", insight.SampleSize)
		}
		if len(insight.Columns) != 1 || insight.Columns[0] != "monthly_spend" {
			t.Errorf("columns = %v, want bare string promoted to slice", insight.Columns)
		}
		if !insight.SimpsonsParadox {
			t.Error("simpsons_paradox \"yes\" not parsed as true")
		}
	})

	t.Run("free-text output goes through the model", func(t *testing.T) {
		fake := &fakeClient{response: `{"description":"spend rises with tenure","statistic":3.2,"p_value":0.001}`}
		raw := "t=3.2, p=0.001, n=4800"
		insight, err := InterpretResult(context.Background(), fake, question, raw)
		if err != nil {
			t.Fatalf("InterpretResult failed: %v", err)
		}
		if fake.calls != 1 {
			t.Errorf("model called %d times, want 1", fake.calls)
		}
		if !strings.Contains(fake.lastPrompt, raw) {
			t.Error("prompt missing the raw output")
		}
		if !strings.Contains(fake.lastPrompt, question.Text) {
			t.Error("prompt missing the question")
		}
		if insight.Description != "spend rises with tenure" {
			t.Errorf("description = %q", insight.Description)
		}
	})

	t.Run("model garbage is an error", func(t *testing.T) {
		fake := &fakeClient{response: "I cannot interpret this"}
		_, err := InterpretResult(context.Background(), fake, question, "raw text")
		if err == nil || !strings.Contains(err.Error(), "parse interpreted insight") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("completion failure propagates", func(t *testing.T) {
		fake := &fakeClient{err: errors.New("down")}
		_, err := InterpretResult(context.Background(), fake, question, "raw text")
		if err == nil || !strings.Contains(err.Error(), "interpretation completion failed") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestCritiqueInsight(t *testing.T) {
	insight := types.InsightState{
		InsightType: "correlation",
		Description: "spend rises with tenure, r=0.62",
		Statistic:   0.62,
		PValue:      0.001,
		EffectSize:  0.62,
		SampleSize:  4800,
	}

	t.Run("parses the model review", func(t *testing.T) {
		fake := &fakeClient{response: `{"score":0.8,"passed":true,"feedback":"solid","issues":["a"],"suggestions":["b"]}`}
		got, err := CritiqueInsight(context.Background(), fake, insight, agentsDataset())
		if err != nil {
			t.Fatalf("CritiqueInsight failed: %v", err)
		}
		if got.Score != 0.8 || !got.Passed || got.Feedback != "solid" {
			t.Errorf("critique = %+v", got)
		}
		if len(got.Issues) != 1 || len(got.Suggestions) != 1 {
			t.Errorf("issues/suggestions = %v / %v", got.Issues, got.Suggestions)
		}
		if !strings.Contains(fake.lastPrompt, insight.Description) {
			t.Error("prompt missing the insight")
		}
		if fake.lastHint != critiqueSchemaHint {
			t.Error("wrong schema hint")
		}
	})

	t.Run("quoted score and yes/no verdict parse", func(t *testing.T) {
		fake := &fakeClient{response: `{"score":"0.8","passed":"yes","feedback":"solid"}`}
		got, err := CritiqueInsight(context.Background(), fake, insight, agentsDataset())
		if err != nil {
			t.Fatalf("CritiqueInsight failed: %v", err)
		}
		if got.Score != 0.8 || !got.Passed {
			t.Errorf("critique = %+v, want drifted score and verdict parsed", got)
		}
	})

	t.Run("out-of-range scores are rejected", func(t *testing.T) {
		for _, score := range []string{`{"score":1.5}`, `{"score":-0.2}`} {
			fake := &fakeClient{response: score}
			_, err := CritiqueInsight(context.Background(), fake, insight, agentsDataset())
			if err == nil || !strings.Contains(err.Error(), "out of range") {
				t.Errorf("response %s: error = %v", score, err)
			}
		}
	})

	t.Run("malformed review is an error", func(t *testing.T) {
		fake := &fakeClient{response: "looks fine to me"}
		_, err := CritiqueInsight(context.Background(), fake, insight, agentsDataset())
		if err == nil || !strings.Contains(err.Error(), "parse critique") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestSynthesize(t *testing.T) {
	newState := func() *types.RunState {
		return &types.RunState{
			Dataset: agentsDataset(),
			Approved: []types.InsightState{
				{InsightType: "correlation", Description: "spend rises with tenure", EffectSize: 0.62},
				{InsightType: "group_difference", Description: "EU spends more than NA", EffectSize: 0.5},
			},
			Boring:   []types.InsightState{{Description: "rows have ids"}},
			Rejected: []types.InsightState{{Description: "weak trend"}},
		}
	}

	t.Run("returns report and filters unknown charts", func(t *testing.T) {
		fake := &fakeClient{response: `{
			"report_markdown": "# Customers\n\nTwo findings.",
			"visualizations": [
				{"chart_type":"scatter","title":"Spend vs tenure","x_column":"tenure_months","y_column":"monthly_spend"},
				{"chart_type":"pie","title":"nope","x_column":"region"}
			]
		}`}
		report, vizes, err := Synthesize(context.Background(), fake, newState())
		if err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}
		if !strings.HasPrefix(report, "# Customers") {
			t.Errorf("report = %q", report)
		}
		if len(vizes) != 1 || vizes[0].ChartType != types.ChartScatter {
			t.Errorf("visualizations = %+v, want only the scatter kept", vizes)
		}
		if !strings.Contains(fake.lastPrompt, "Approved findings (2)") {
			t.Error("prompt missing the approved findings header")
		}
		if !strings.Contains(fake.lastPrompt, "suppressed as already known") {
			t.Error("prompt missing the boring count")
		}
		if !strings.Contains(fake.lastPrompt, "failed statistical review") {
			t.Error("prompt missing the rejected count")
		}
	})

	t.Run("non-object visualization entries are skipped", func(t *testing.T) {
		fake := &fakeClient{response: `{
			"report_markdown": "# Customers",
			"visualizations": ["scatter", {"chart_type":"bar","title":"Spend by region","x_column":"region"}]
		}`}
		_, vizes, err := Synthesize(context.Background(), fake, newState())
		if err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}
		if len(vizes) != 1 || vizes[0].ChartType != types.ChartBar {
			t.Errorf("visualizations = %+v, want only the object entry kept", vizes)
		}
	})

	t.Run("empty report is an error", func(t *testing.T) {
		fake := &fakeClient{response: `{"report_markdown":"   "}`}
		_, _, err := Synthesize(context.Background(), fake, newState())
		if err == nil || !strings.Contains(err.Error(), "empty report") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("malformed synthesis is an error", func(t *testing.T) {
		fake := &fakeClient{response: "here is your report"}
		_, _, err := Synthesize(context.Background(), fake, newState())
		if err == nil || !strings.Contains(err.Error(), "parse synthesis") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("nil dataset is tolerated", func(t *testing.T) {
		st := newState()
		st.Dataset = nil
		fake := &fakeClient{response: `{"report_markdown":"# Report"}`}
		if _, _, err := Synthesize(context.Background(), fake, st); err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}
	})
}
