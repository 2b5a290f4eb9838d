// Package critic implements the deterministic statistical-quality gate.
// Every candidate insight passes through Scorer.Review before novelty is
// even considered: the review checks the statistics the analyst reported,
// not the prose. Model-generated critiques are merged in on top when they
// are well formed; when they are not, the deterministic verdict stands
// alone.
package critic

import (
	"fmt"
	"strings"

	"datanerd/internal/config"
	"datanerd/internal/logging"
	"datanerd/internal/types"
)

// Sample-size adequacy: the absolute floor below which any test statistic
// is shaky, and the slice of the dataset an insight must have seen before
// generalizing to all of it.
const (
	minSampleSize     = 30
	minSampleFraction = 0.01
)

// Scorer reviews candidate insights for statistical soundness. It is
// stateless and safe for concurrent use.
type Scorer struct {
	passThreshold float64
}

// NewScorer builds a Scorer from the analysis config.
func NewScorer(cfg config.AnalysisConfig) *Scorer {
	threshold := cfg.PassThreshold
	if threshold <= 0 {
		threshold = 0.6
	}
	return &Scorer{passThreshold: threshold}
}

// PassThreshold returns the minimum score an insight needs to pass review.
func (s *Scorer) PassThreshold() float64 { return s.passThreshold }

// review accumulates findings while the checks run. Each flagged issue
// carries its own deduction from the starting score of 1.0.
type review struct {
	deduction   float64
	issues      []string
	suggestions []string
}

func (r *review) flag(deduction float64, issue, suggestion string) {
	r.deduction += deduction
	r.issues = append(r.issues, issue)
	if suggestion != "" {
		r.suggestions = append(r.suggestions, suggestion)
	}
}

// Review scores one candidate insight. The dataset context is optional;
// when present it enables the dataset-fraction sample check.
func (s *Scorer) Review(insight types.InsightState, dataset *types.DatasetContext) types.CritiqueState {
	if strings.TrimSpace(insight.Description) == "" {
		logging.Critic("Rejecting insight with empty description (type=%s)", insight.InsightType)
		return types.CritiqueState{
			Score:    0,
			Passed:   false,
			Feedback: "Rejected: the insight has no description, so there is no finding to evaluate.",
			Issues:   []string{"empty description"},
		}
	}

	rev := &review{}
	s.checkEffectSize(insight, rev)
	s.checkSampleSize(insight, dataset, rev)
	s.checkPValue(insight, rev)
	s.checkContradiction(insight, rev)
	s.checkSimpsons(insight, rev)

	score := 1.0 - rev.deduction
	if score < 0 {
		score = 0
	}
	passed := score >= s.passThreshold

	verdict := types.CritiqueState{
		Score:       score,
		Passed:      passed,
		Feedback:    rev.feedback(passed),
		Issues:      rev.issues,
		Suggestions: rev.suggestions,
	}
	logging.Critic("Reviewed insight (type=%s): score=%.2f passed=%v issues=%d",
		insight.InsightType, score, passed, len(rev.issues))
	return verdict
}

// checkEffectSize flags missing or negligible effect sizes. The magnitude
// scale is the conventional one for the insight's type.
func (s *Scorer) checkEffectSize(insight types.InsightState, rev *review) {
	if insight.EffectSize == 0 {
		rev.flag(0.3,
			"no effect size reported",
			"compute and report an effect size (|r|, Cohen's d, or equivalent)")
		return
	}
	switch types.InterpretEffectSize(insight.InsightType, insight.EffectSize) {
	case "negligible":
		rev.flag(0.25,
			fmt.Sprintf("effect size %.3f is negligible", insight.EffectSize),
			"a negligible effect rarely supports a standalone finding; consider dropping or reframing it")
	case "small":
		rev.flag(0.1,
			fmt.Sprintf("effect size %.3f is small", insight.EffectSize),
			"qualify the finding as a weak effect")
	}
}

// checkSampleSize applies the absolute floor first, then the
// dataset-fraction test. The two never stack.
func (s *Scorer) checkSampleSize(insight types.InsightState, dataset *types.DatasetContext, rev *review) {
	n := insight.SampleSize
	switch {
	case n <= 0:
		rev.flag(0.2,
			"sample size not reported",
			"report how many rows the statistic was computed over")
	case n < minSampleSize:
		rev.flag(0.25,
			fmt.Sprintf("sample of %d rows is below the floor of %d", n, minSampleSize),
			"rerun on more rows or mark the finding as anecdotal")
	case dataset != nil && dataset.RowCount > 0 &&
		float64(n) < minSampleFraction*float64(dataset.RowCount):
		rev.flag(0.1,
			fmt.Sprintf("sample of %d rows covers under %.0f%% of the %d-row dataset",
				n, minSampleFraction*100, dataset.RowCount),
			"widen the sample before generalizing to the whole dataset")
	}
}

// checkPValue sanity-checks significance. A p-value outside [0,1] means
// the analysis code is wrong, not just the finding.
func (s *Scorer) checkPValue(insight types.InsightState, rev *review) {
	p := insight.PValue
	switch {
	case p < 0 || p > 1:
		rev.flag(0.3,
			fmt.Sprintf("p-value %.3f is outside [0,1]", p),
			"fix the significance computation; a probability cannot leave [0,1]")
	case p == 0:
		rev.flag(0.1,
			"p-value missing or exactly zero",
			"report the actual p-value, using a bound like p < 0.001 when it underflows")
	case p >= 0.1:
		rev.flag(0.3,
			fmt.Sprintf("p-value %.3f shows no significance", p),
			"the data does not support this claim at any conventional level")
	case p > 0.05:
		rev.flag(0.15,
			fmt.Sprintf("p-value %.3f is only marginally significant", p),
			"present the finding as suggestive, not established")
	}
}

// Keyword lists for the contradiction check. Matching is lowercase
// substring containment over the description.
var (
	negationClaims = []string{
		"no significant", "no correlation", "no relationship", "no difference",
		"no effect", "no association", "not correlated", "not significant",
		"unrelated", "uncorrelated",
	}
	strengthClaims = []string{
		"strong", "large", "substantial", "dramatic", "pronounced", "highly significant",
	}
	positiveClaims = []string{
		"positive", "increas", "upward", "grew", "growing", "climb", "direct relationship",
	}
	negativeClaims = []string{
		"negative", "decreas", "downward", "declin", "inverse", "drop", "fell", "falling",
	}
)

func containsAny(text string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}

// checkContradiction compares what the description claims against what the
// numbers say. Direction is only checked for correlation and trend
// insights, where the statistic's sign carries it.
func (s *Scorer) checkContradiction(insight types.InsightState, rev *review) {
	text := strings.ToLower(insight.Description)
	label := types.InterpretEffectSize(insight.InsightType, insight.EffectSize)

	if containsAny(text, negationClaims) && (label == "medium" || label == "large") {
		rev.flag(0.3,
			fmt.Sprintf("description claims no effect but the effect size %.3f is %s", insight.EffectSize, label),
			"restate the finding to match the measured effect")
		return
	}
	if containsAny(text, strengthClaims) && label == "negligible" && insight.EffectSize != 0 {
		rev.flag(0.25,
			fmt.Sprintf("description claims a strong effect but the effect size %.3f is negligible", insight.EffectSize),
			"soften the language or recheck the effect size")
		return
	}

	switch types.QuestionType(insight.InsightType) {
	case types.QuestionCorrelation, types.QuestionTrend:
	default:
		return
	}
	if insight.Statistic == 0 {
		return
	}
	claimsPositive := containsAny(text, positiveClaims)
	claimsNegative := containsAny(text, negativeClaims)
	if claimsPositive == claimsNegative {
		// Either no directional language or both directions mentioned
		// (e.g. "increases then decreases"); nothing to contradict.
		return
	}
	if (claimsPositive && insight.Statistic < 0) || (claimsNegative && insight.Statistic > 0) {
		rev.flag(0.2,
			fmt.Sprintf("description direction contradicts the statistic's sign (%.3f)", insight.Statistic),
			"align the stated direction with the sign of the statistic")
	}
}

// Acknowledgement vocabulary for a flagged Simpson's paradox.
var subgroupMentions = []string{
	"simpson", "subgroup", "sub-group", "within each", "revers", "when grouped",
	"stratif", "aggregate",
}

// checkSimpsons penalizes a flagged paradox only when the description hides
// it. Detecting the paradox is a finding; stating the aggregate pattern as
// if it held within subgroups is the defect.
func (s *Scorer) checkSimpsons(insight types.InsightState, rev *review) {
	if !insight.SimpsonsParadox {
		return
	}
	if containsAny(strings.ToLower(insight.Description), subgroupMentions) {
		return
	}
	rev.flag(0.15,
		"Simpson's paradox detected but the description does not acknowledge it",
		"note that the pattern weakens or reverses within subgroups")
}

func (r *review) feedback(passed bool) string {
	if len(r.issues) == 0 {
		return "Statistically sound; no issues found."
	}
	joined := strings.Join(r.issues, "; ")
	if passed {
		return "Acceptable with reservations: " + joined + "."
	}
	return "Rejected: " + joined + "."
}

// Merge blends the deterministic verdict with a model-generated critique.
// A nil or out-of-range model critique is discarded and the deterministic
// verdict returned unchanged; otherwise the scores average, the issue and
// suggestion lists concatenate, and passed is recomputed against the
// threshold. The deterministic score always contributes half, so a generous
// model cannot wave through an insight the numbers reject outright.
func (s *Scorer) Merge(det types.CritiqueState, model *types.CritiqueState) types.CritiqueState {
	if model == nil || model.Score < 0 || model.Score > 1 {
		if model != nil {
			logging.CriticDebug("Discarding model critique with out-of-range score %.2f", model.Score)
		}
		return det
	}

	merged := types.CritiqueState{
		Score:       (det.Score + model.Score) / 2,
		Issues:      append(append([]string{}, det.Issues...), model.Issues...),
		Suggestions: append(append([]string{}, det.Suggestions...), model.Suggestions...),
	}
	merged.Passed = merged.Score >= s.passThreshold
	merged.Feedback = det.Feedback
	if strings.TrimSpace(model.Feedback) != "" {
		merged.Feedback = model.Feedback
	}
	logging.CriticDebug("Merged critiques: deterministic=%.2f model=%.2f blended=%.2f passed=%v",
		det.Score, model.Score, merged.Score, merged.Passed)
	return merged
}
