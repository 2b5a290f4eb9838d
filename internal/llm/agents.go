package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"datanerd/internal/logging"
	"datanerd/internal/types"
)

// ErrNoUsableQuestions reports a planner response whose every entry was
// dropped during validation. Rerunning cannot help: the same schema yields
// the same plan.
var ErrNoUsableQuestions = errors.New("planner returned no usable questions")

// The insight shape every analysis result must reduce to. Shared between
// code generation (the snippet prints it) and interpretation (the model
// reconstructs it from raw output).
const insightSchemaHint = `{
  "insight_type": "correlation|trend|group_difference|outlier|distribution|proportion",
  "description": "plain-language statement of the finding",
  "columns": ["column_a", "column_b"],
  "subspace_filter": "",
  "statistic": 0.0,
  "p_value": 0.0,
  "effect_size": 0.0,
  "sample_size": 0
}`

const plannerSystem = `You are the planning agent of an automated data analyst.
Given a dataset's schema and sample rows, you propose the statistical
questions most likely to yield findings a human analyst would care about.
Prefer questions the schema can actually answer; never invent columns.`

const plannerSchemaHint = `[
  {
    "text": "Is monthly_spend correlated with tenure_months?",
    "type": "correlation|trend|group_difference|outlier|distribution|proportion",
    "target_columns": ["monthly_spend", "tenure_months"],
    "filter_column": "",
    "priority": 8
  }
]`

// PlanQuestions asks the model for an ordered question queue over the
// dataset. The belief context lists what the user already knows so the
// planner can steer toward likely-novel territory. Questions with no text
// are dropped; unknown question types are carried verbatim. Results come
// back sorted by priority, highest first, capped at maxQuestions.
func PlanQuestions(ctx context.Context, c Client, dataset *types.DatasetContext, beliefContext []string, maxQuestions int) ([]types.QuestionState, error) {
	if maxQuestions <= 0 {
		maxQuestions = 8
	}

	var b strings.Builder
	b.WriteString(dataset.PromptBlock())
	if len(beliefContext) > 0 {
		b.WriteString("\nThe user already knows the following; do not plan questions that would only restate them:\n")
		for _, known := range beliefContext {
			fmt.Fprintf(&b, "- %s\n", known)
		}
	}
	fmt.Fprintf(&b, `
Propose up to %d statistical questions about this dataset, ordered by how
promising they are. Assign each a priority from 1 (low) to 10 (high).

Output ONLY valid JSON:`, maxQuestions)

	resp, err := c.CompleteJSON(ctx, plannerSystem, b.String(), plannerSchemaHint)
	if err != nil {
		return nil, fmt.Errorf("planner completion failed: %w", err)
	}

	var questions []types.QuestionState
	if err := json.Unmarshal([]byte(CleanJSONResponse(resp)), &questions); err != nil {
		return nil, fmt.Errorf("failed to parse planner response: %w", err)
	}

	valid := questions[:0]
	for _, q := range questions {
		if strings.TrimSpace(q.Text) == "" {
			continue
		}
		// Columns the schema does not have are planner hallucinations;
		// keep the question, drop the phantom columns.
		var cols []string
		for _, col := range q.TargetColumns {
			if dataset.HasColumn(col) {
				cols = append(cols, col)
			}
		}
		q.TargetColumns = cols
		if q.FilterColumn != "" && !dataset.HasColumn(q.FilterColumn) {
			q.FilterColumn = ""
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		return nil, ErrNoUsableQuestions
	}

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Priority > valid[j].Priority })
	if len(valid) > maxQuestions {
		valid = valid[:maxQuestions]
	}
	logging.Planner("Planned %d questions (requested up to %d)", len(valid), maxQuestions)
	return valid, nil
}

const analystSystemGo = `You are the analyst agent of an automated data analyst.
You write small Go snippets that compute one statistical result over
in-memory rows. The snippet must define exactly:

    func Analyze(rows []map[string]any) (string, error)

and return a JSON string with this shape:

` + insightSchemaHint + `

Numeric cell values arrive as float64, everything else as string. Only
standard-library imports are available (fmt, math, sort, strconv, strings,
encoding/json). No file, network, or OS access. Return ONLY the Go code,
no prose, no markdown fences.`

const analystSystemPython = `You are the analyst agent of an automated data analyst.
You write small Python scripts that compute one statistical result over the
dataset, which is preloaded as a pandas DataFrame named df. The script must
print exactly one JSON object to stdout with this shape:

` + insightSchemaHint + `

pandas, numpy, and scipy.stats are available. No file, network, or OS
access. Return ONLY the Python code, no prose, no markdown fences.`

// GenerateAnalysisCode asks the model for an analysis snippet answering the
// question. The language must match the execution adapter that will run the
// code. A previous execution error or critique feedback, when present, is
// folded into the request so the model can self-correct.
func GenerateAnalysisCode(ctx context.Context, c Client, question types.QuestionState, dataset *types.DatasetContext, language, lastError, critiqueFeedback string) (string, error) {
	system := analystSystemGo
	if strings.EqualFold(language, "python") {
		system = analystSystemPython
	}

	var b strings.Builder
	b.WriteString(dataset.PromptBlock())
	fmt.Fprintf(&b, "\nQuestion (%s): %s\n", question.Type, question.Text)
	if len(question.TargetColumns) > 0 {
		fmt.Fprintf(&b, "Target columns: %s\n", strings.Join(question.TargetColumns, ", "))
	}
	if question.FilterColumn != "" {
		fmt.Fprintf(&b, "Also check whether the pattern holds within each value of %q (Simpson's paradox probe).\n", question.FilterColumn)
	}
	if lastError != "" {
		fmt.Fprintf(&b, "\nThe previous attempt failed:\n%s\nFix the problem and return corrected code.\n", lastError)
	}
	if critiqueFeedback != "" {
		fmt.Fprintf(&b, "\nA reviewer rejected the previous result:\n%s\nAddress the feedback in this attempt.\n", critiqueFeedback)
	}
	b.WriteString("\nWrite the analysis code now.")

	resp, err := c.CompleteWithSystem(ctx, system, b.String())
	if err != nil {
		return "", fmt.Errorf("analyst completion failed: %w", err)
	}
	code := CleanCodeResponse(resp)
	if code == "" {
		return "", fmt.Errorf("analyst returned empty code")
	}
	logging.AnalystDebug("Generated %d bytes of %s for question %q", len(code), language, question.Text)
	return code, nil
}

const interpretSystem = `You convert raw analysis output into one structured
insight. Use only numbers present in the output; never invent statistics.`

// InterpretResult turns an execution result into a typed insight. Results
// that are already well-formed insight JSON parse directly without a model
// round trip; anything else goes through one interpretation completion.
func InterpretResult(ctx context.Context, c Client, question types.QuestionState, resultText string) (*types.InsightState, error) {
	if insight, ok := parseInsight(resultText); ok {
		return finishInsight(insight, question), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question (%s): %s\n\nRaw analysis output:\n%s\n\nOutput ONLY valid JSON:",
		question.Type, question.Text, resultText)

	resp, err := c.CompleteJSON(ctx, interpretSystem, b.String(), insightSchemaHint)
	if err != nil {
		return nil, fmt.Errorf("interpretation completion failed: %w", err)
	}
	insight, ok := parseInsight(resp)
	if !ok {
		return nil, fmt.Errorf("failed to parse interpreted insight from %q", truncate(resp, 200))
	}
	return finishInsight(insight, question), nil
}

// parseInsight decodes insight JSON through the type-tolerant field
// extractors: models quote numbers, collapse one-element arrays to bare
// strings, and answer booleans with "yes", all of which strict decoding
// would discard.
func parseInsight(text string) (types.InsightState, bool) {
	var insight types.InsightState
	cleaned := CleanJSONResponse(text)
	if cleaned == "" || cleaned[0] != '{' {
		return insight, false
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return insight, false
	}
	insight.InsightType = types.FieldString(raw, "insight_type")
	insight.Description = types.FieldString(raw, "description")
	insight.Columns = types.FieldStringSlice(raw, "columns")
	insight.SubspaceFilter = types.FieldString(raw, "subspace_filter")
	insight.EffectSizeInterpretation = types.FieldString(raw, "effect_size_interpretation")
	insight.Statistic, _ = types.FieldFloat64(raw, "statistic")
	insight.PValue, _ = types.FieldFloat64(raw, "p_value")
	insight.EffectSize, _ = types.FieldFloat64(raw, "effect_size")
	insight.SampleSize, _ = types.FieldInt(raw, "sample_size")
	insight.SimpsonsParadox, _ = types.FieldBool(raw, "simpsons_paradox")
	return insight, strings.TrimSpace(insight.Description) != ""
}

func finishInsight(insight types.InsightState, question types.QuestionState) *types.InsightState {
	if insight.InsightType == "" {
		insight.InsightType = string(question.Type)
	}
	if insight.EffectSizeInterpretation == "" && insight.EffectSize != 0 {
		insight.EffectSizeInterpretation = types.InterpretEffectSize(insight.InsightType, insight.EffectSize)
	}
	return &insight
}

const criticSystem = `You are a statistical reviewer. Judge whether the
insight is sound and well supported by its numbers. Score 0.0 (worthless)
to 1.0 (publication-grade). Be specific in issues and suggestions.`

const critiqueSchemaHint = `{
  "score": 0.0,
  "passed": false,
  "feedback": "one-paragraph judgment",
  "issues": ["..."],
  "suggestions": ["..."]
}`

// CritiqueInsight asks the model to review a candidate insight. A malformed
// or out-of-range response is an error; the caller discards it and lets the
// deterministic review stand alone.
func CritiqueInsight(ctx context.Context, c Client, insight types.InsightState, dataset *types.DatasetContext) (*types.CritiqueState, error) {
	insightJSON, err := json.MarshalIndent(insight, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode insight: %w", err)
	}

	var b strings.Builder
	b.WriteString(dataset.PromptBlock())
	fmt.Fprintf(&b, "\nCandidate insight:\n%s\n\nOutput ONLY valid JSON:", insightJSON)

	resp, err := c.CompleteJSON(ctx, criticSystem, b.String(), critiqueSchemaHint)
	if err != nil {
		return nil, fmt.Errorf("critic completion failed: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(CleanJSONResponse(resp)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse critique: %w", err)
	}
	critique := types.CritiqueState{
		Feedback:    types.FieldString(raw, "feedback"),
		Issues:      types.FieldStringSlice(raw, "issues"),
		Suggestions: types.FieldStringSlice(raw, "suggestions"),
	}
	critique.Score, _ = types.FieldFloat64(raw, "score")
	critique.Passed, _ = types.FieldBool(raw, "passed")
	if critique.Score < 0 || critique.Score > 1 {
		return nil, fmt.Errorf("critique score %.2f out of range", critique.Score)
	}
	return &critique, nil
}

const synthesizerSystem = `You are the synthesizer agent of an automated data
analyst. You turn a run's approved findings into a concise markdown report
for the dataset's owner: a short overview, then one section per finding
with its numbers, then caveats. When there are no approved findings, say so
plainly and summarize what was checked. Suggest a chart for each finding
that benefits from one.`

const synthesisSchemaHint = `{
  "report_markdown": "# Analysis of ...",
  "visualizations": [
    {
      "chart_type": "bar|line|scatter|histogram|box",
      "title": "...",
      "x_column": "...",
      "y_column": "",
      "group_by": "",
      "filter": ""
    }
  ]
}`

// Synthesize produces the final report and chart requests from the run's
// buckets. Visualizations referencing unknown chart types are dropped.
func Synthesize(ctx context.Context, c Client, st *types.RunState) (string, []types.VizConfig, error) {
	var b strings.Builder
	if st.Dataset != nil {
		b.WriteString(st.Dataset.PromptBlock())
	}
	fmt.Fprintf(&b, "\nApproved findings (%d):\n", len(st.Approved))
	for i, insight := range st.Approved {
		enc, err := json.Marshal(insight)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, enc)
	}
	if len(st.Boring) > 0 {
		fmt.Fprintf(&b, "\n%d additional findings were suppressed as already known to the user.\n", len(st.Boring))
	}
	if len(st.Rejected) > 0 {
		fmt.Fprintf(&b, "%d candidate findings failed statistical review.\n", len(st.Rejected))
	}
	b.WriteString("\nWrite the report.\n\nOutput ONLY valid JSON:")

	resp, err := c.CompleteJSON(ctx, synthesizerSystem, b.String(), synthesisSchemaHint)
	if err != nil {
		return "", nil, fmt.Errorf("synthesizer completion failed: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(CleanJSONResponse(resp)), &raw); err != nil {
		return "", nil, fmt.Errorf("failed to parse synthesis: %w", err)
	}
	report := types.FieldString(raw, "report_markdown")
	if strings.TrimSpace(report) == "" {
		return "", nil, fmt.Errorf("synthesizer returned an empty report")
	}

	var vizes []types.VizConfig
	if items, ok := raw["visualizations"].([]interface{}); ok {
		for _, item := range items {
			m, ok := types.ExtractMap(item)
			if !ok {
				continue
			}
			v := types.VizConfig{
				ChartType: types.FieldString(m, "chart_type"),
				Title:     types.FieldString(m, "title"),
				XColumn:   types.FieldString(m, "x_column"),
				YColumn:   types.FieldString(m, "y_column"),
				GroupBy:   types.FieldString(m, "group_by"),
				Filter:    types.FieldString(m, "filter"),
			}
			switch v.ChartType {
			case types.ChartBar, types.ChartLine, types.ChartScatter, types.ChartHistogram, types.ChartBox:
				vizes = append(vizes, v)
			default:
				logging.SynthesizerDebug("Dropping visualization with unknown chart type %q", v.ChartType)
			}
		}
	}
	logging.Synthesizer("Synthesized report (%d chars, %d charts) from %d approved insights",
		len(report), len(vizes), len(st.Approved))
	return report, vizes, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
