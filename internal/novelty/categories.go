package novelty

import (
	"strings"

	"datanerd/internal/types"
)

// =============================================================================
// INSIGHT CATEGORY DETECTION
// =============================================================================

// CategoryGeneral is the fallback when no statistical category matches.
const CategoryGeneral = "general"

// categoryOrder fixes the vocabulary and its tie-break order. The Bayesian
// prior smooths over exactly this closed set.
var categoryOrder = []string{
	string(types.QuestionCorrelation),
	string(types.QuestionTrend),
	string(types.QuestionGroupDiff),
	string(types.QuestionOutlier),
	string(types.QuestionDistribution),
	string(types.QuestionProportion),
	CategoryGeneral,
}

// Categories returns the closed category vocabulary the prior is built over.
func Categories() []string {
	out := make([]string, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// categoryIndicators drives keyword scoring for free-form text. An indicator
// hit scores one point; the highest-scoring category wins.
var categoryIndicators = map[string][]string{
	string(types.QuestionCorrelation): {
		"correlat", "r=", "r =", "tracks", "associated with", "relationship between",
		"covaries", "predicts", "linked to",
	},
	string(types.QuestionTrend): {
		"trend", "over time", "increas", "decreas", "grew", "declin",
		"seasonal", "month-over-month", "year-over-year", "upward", "downward",
	},
	string(types.QuestionGroupDiff): {
		"higher than", "lower than", "compared to", "versus", "vs.",
		"between groups", "significant difference", "outperform", "underperform",
	},
	string(types.QuestionOutlier): {
		"outlier", "anomal", "unusual", "spike", "extreme", "deviates",
	},
	string(types.QuestionDistribution): {
		"distribution", "skew", "bimodal", "normally distributed", "spread",
		"variance", "long tail", "heavy tail",
	},
	string(types.QuestionProportion): {
		"percent", "%", "proportion", "share of", "ratio", "majority",
		"minority", "fraction of",
	},
}

// DetectCategory classifies an insight into the category vocabulary. The
// insight's own type wins when it names a known category (most reliable);
// otherwise the description is keyword-scored.
func DetectCategory(insight types.InsightState) string {
	if types.KnownQuestionType(types.QuestionType(insight.InsightType)) {
		return insight.InsightType
	}
	return DetectTextCategory(insight.Description)
}

// DetectTextCategory keyword-scores free-form text against the category
// vocabulary. Texts with no statistical vocabulary land in general.
func DetectTextCategory(text string) string {
	text = strings.ToLower(text)
	if strings.TrimSpace(text) == "" {
		return CategoryGeneral
	}

	best := CategoryGeneral
	bestScore := 0
	for _, cat := range categoryOrder {
		score := 0
		for _, indicator := range categoryIndicators[cat] {
			if strings.Contains(text, indicator) {
				score++
			}
		}
		if score > bestScore {
			best = cat
			bestScore = score
		}
	}
	return best
}
