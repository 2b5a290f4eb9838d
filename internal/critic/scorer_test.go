package critic

import (
	"math"
	"strings"
	"testing"

	"datanerd/internal/config"
	"datanerd/internal/types"
)

func newTestScorer() *Scorer {
	return NewScorer(config.AnalysisConfig{PassThreshold: 0.6})
}

// soundInsight is a baseline that trips no checks: large effect, strong
// significance, ample sample.
func soundInsight() types.InsightState {
	return types.InsightState{
		InsightType: "correlation",
		Description: "ad spend and revenue move together, r=0.62",
		Statistic:   0.62,
		PValue:      0.001,
		EffectSize:  0.62,
		SampleSize:  500,
	}
}

func testDataset() *types.DatasetContext {
	return &types.DatasetContext{DatasetID: "ds", RowCount: 10000, ColumnCount: 6}
}

func approx(t *testing.T, got, want float64, label string) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %.4f, want %.4f", label, got, want)
	}
}

func hasIssue(c types.CritiqueState, fragment string) bool {
	for _, issue := range c.Issues {
		if strings.Contains(issue, fragment) {
			return true
		}
	}
	return false
}

func TestReviewSoundInsight(t *testing.T) {
	c := newTestScorer().Review(soundInsight(), testDataset())

	if c.Score != 1.0 {
		t.Errorf("Sound insight score = %.4f, want 1.0 (issues: %v)", c.Score, c.Issues)
	}
	if !c.Passed {
		t.Error("Sound insight must pass")
	}
	if len(c.Issues) != 0 {
		t.Errorf("Sound insight should have no issues, got %v", c.Issues)
	}
	if c.Feedback != "Statistically sound; no issues found." {
		t.Errorf("Unexpected feedback: %q", c.Feedback)
	}
}

func TestReviewEmptyDescription(t *testing.T) {
	insight := soundInsight()
	insight.Description = "   "

	c := newTestScorer().Review(insight, testDataset())
	if c.Score != 0 || c.Passed {
		t.Errorf("Empty description must zero out the review, got score=%.2f passed=%v", c.Score, c.Passed)
	}
	if !hasIssue(c, "empty description") {
		t.Errorf("Missing empty-description issue, got %v", c.Issues)
	}
}

func TestReviewMissingEffectSize(t *testing.T) {
	insight := soundInsight()
	insight.EffectSize = 0

	c := newTestScorer().Review(insight, testDataset())
	approx(t, c.Score, 0.7, "score")
	if !c.Passed {
		t.Error("A single missing effect size should still clear 0.6")
	}
	if !hasIssue(c, "no effect size") {
		t.Errorf("Missing effect-size issue, got %v", c.Issues)
	}
	if len(c.Suggestions) == 0 {
		t.Error("Flag should carry a suggestion for the analyst")
	}
}

func TestReviewNegligibleEffect(t *testing.T) {
	insight := soundInsight()
	insight.EffectSize = 0.05
	insight.Statistic = 0.05

	c := newTestScorer().Review(insight, testDataset())
	approx(t, c.Score, 0.75, "score")
	if !hasIssue(c, "negligible") {
		t.Errorf("Missing negligible-effect issue, got %v", c.Issues)
	}
	if !strings.HasPrefix(c.Feedback, "Acceptable with reservations:") {
		t.Errorf("Passing review with issues should hedge, got %q", c.Feedback)
	}
}

func TestReviewSampleSize(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		dataset   *types.DatasetContext
		wantScore float64
		fragment  string
	}{
		{"unreported", 0, testDataset(), 0.8, "not reported"},
		{"below floor", 12, testDataset(), 0.75, "below the floor"},
		{"small fraction", 50, testDataset(), 0.9, "covers under"},
		{"small fraction without dataset", 50, nil, 1.0, ""},
		{"adequate", 200, testDataset(), 1.0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insight := soundInsight()
			insight.SampleSize = tt.n

			c := newTestScorer().Review(insight, tt.dataset)
			approx(t, c.Score, tt.wantScore, "score")
			if tt.fragment != "" && !hasIssue(c, tt.fragment) {
				t.Errorf("Missing issue %q, got %v", tt.fragment, c.Issues)
			}
			if tt.fragment == "" && len(c.Issues) != 0 {
				t.Errorf("Expected a clean review, got %v", c.Issues)
			}
		})
	}
}

func TestReviewPValue(t *testing.T) {
	tests := []struct {
		name      string
		p         float64
		wantScore float64
		fragment  string
	}{
		{"above one", 1.5, 0.7, "outside [0,1]"},
		{"negative", -0.1, 0.7, "outside [0,1]"},
		{"zero", 0, 0.9, "missing or exactly zero"},
		{"insignificant", 0.2, 0.7, "no significance"},
		{"marginal", 0.07, 0.85, "marginally significant"},
		{"significant", 0.03, 1.0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insight := soundInsight()
			insight.PValue = tt.p

			c := newTestScorer().Review(insight, testDataset())
			approx(t, c.Score, tt.wantScore, "score")
			if tt.fragment != "" && !hasIssue(c, tt.fragment) {
				t.Errorf("Missing issue %q, got %v", tt.fragment, c.Issues)
			}
		})
	}
}

func TestReviewContradictions(t *testing.T) {
	t.Run("negation despite large effect", func(t *testing.T) {
		insight := soundInsight()
		insight.Description = "no significant relationship between spend and revenue"

		c := newTestScorer().Review(insight, testDataset())
		approx(t, c.Score, 0.7, "score")
		if !hasIssue(c, "claims no effect") {
			t.Errorf("Missing negation contradiction, got %v", c.Issues)
		}
	})

	t.Run("strength claim despite negligible effect", func(t *testing.T) {
		insight := soundInsight()
		insight.Description = "a strong link between discounts and churn"
		insight.EffectSize = 0.05
		insight.Statistic = 0.05

		c := newTestScorer().Review(insight, testDataset())
		// Negligible effect plus the overclaim, two separate flags.
		approx(t, c.Score, 0.5, "score")
		if !hasIssue(c, "claims a strong effect") {
			t.Errorf("Missing strength contradiction, got %v", c.Issues)
		}
		if c.Passed {
			t.Error("Overclaimed negligible effect must not pass")
		}
	})

	t.Run("direction contradicts statistic sign", func(t *testing.T) {
		insight := soundInsight()
		insight.Description = "support load is positively correlated with churn"
		insight.Statistic = -0.55
		insight.EffectSize = -0.55

		c := newTestScorer().Review(insight, testDataset())
		approx(t, c.Score, 0.8, "score")
		if !hasIssue(c, "direction contradicts") {
			t.Errorf("Missing direction contradiction, got %v", c.Issues)
		}
	})

	t.Run("direction ignored for group differences", func(t *testing.T) {
		insight := types.InsightState{
			InsightType: "group_difference",
			Description: "enterprise accounts show a clear increase over self-serve",
			Statistic:   -2.5,
			PValue:      0.001,
			EffectSize:  0.9,
			SampleSize:  500,
		}

		c := newTestScorer().Review(insight, testDataset())
		if c.Score != 1.0 {
			t.Errorf("Sign is not directional outside correlation/trend, got score %.2f (%v)", c.Score, c.Issues)
		}
	})

	t.Run("both directions mentioned", func(t *testing.T) {
		insight := types.InsightState{
			InsightType: "trend",
			Description: "signups increase in summer and decrease in winter",
			Statistic:   0.4,
			PValue:      0.001,
			EffectSize:  0.4,
			SampleSize:  500,
		}

		c := newTestScorer().Review(insight, testDataset())
		if c.Score != 1.0 {
			t.Errorf("Mixed directional language is not a contradiction, got score %.2f (%v)", c.Score, c.Issues)
		}
	})
}

func TestReviewSimpsonsParadox(t *testing.T) {
	t.Run("unacknowledged", func(t *testing.T) {
		insight := soundInsight()
		insight.SimpsonsParadox = true

		c := newTestScorer().Review(insight, testDataset())
		approx(t, c.Score, 0.85, "score")
		if !hasIssue(c, "does not acknowledge") {
			t.Errorf("Missing paradox issue, got %v", c.Issues)
		}
	})

	t.Run("acknowledged", func(t *testing.T) {
		insight := soundInsight()
		insight.SimpsonsParadox = true
		insight.Description = "ad spend and revenue move together, r=0.62, though the pattern weakens within each region subgroup"

		c := newTestScorer().Review(insight, testDataset())
		if c.Score != 1.0 {
			t.Errorf("Acknowledged paradox is a finding, not a defect, got score %.2f (%v)", c.Score, c.Issues)
		}
	})
}

func TestReviewScoreFloorsAtZero(t *testing.T) {
	insight := types.InsightState{
		InsightType:     "correlation",
		Description:     "a strong pattern",
		Statistic:       0.05,
		PValue:          0.5,
		EffectSize:      0.05,
		SampleSize:      5,
		SimpsonsParadox: true,
	}

	c := newTestScorer().Review(insight, testDataset())
	if c.Score != 0 {
		t.Errorf("Deductions past 1.0 must clamp to 0, got %.2f", c.Score)
	}
	if c.Passed {
		t.Error("Zero score cannot pass")
	}
	if !strings.HasPrefix(c.Feedback, "Rejected:") {
		t.Errorf("Failing feedback should lead with the rejection, got %q", c.Feedback)
	}
}

func TestNewScorerThreshold(t *testing.T) {
	if got := NewScorer(config.AnalysisConfig{}).PassThreshold(); got != 0.6 {
		t.Errorf("Default threshold = %.2f, want 0.6", got)
	}

	insight := soundInsight()
	insight.EffectSize = 0 // scores 0.7

	if c := newTestScorer().Review(insight, testDataset()); !c.Passed {
		t.Error("0.7 should pass at threshold 0.6")
	}
	strict := NewScorer(config.AnalysisConfig{PassThreshold: 0.8})
	if c := strict.Review(insight, testDataset()); c.Passed {
		t.Error("0.7 should fail at threshold 0.8")
	}
}

func TestMerge(t *testing.T) {
	s := newTestScorer()
	det := types.CritiqueState{
		Score:    0.7,
		Passed:   true,
		Feedback: "Acceptable with reservations: no effect size reported.",
		Issues:   []string{"no effect size reported"},
	}

	t.Run("nil model keeps deterministic verdict", func(t *testing.T) {
		if got := s.Merge(det, nil); got.Score != det.Score || !got.Passed {
			t.Errorf("Merge(det, nil) = %+v, want deterministic verdict", got)
		}
	})

	t.Run("out of range model discarded", func(t *testing.T) {
		for _, bad := range []float64{-0.1, 1.5, 8.5} {
			model := &types.CritiqueState{Score: bad}
			if got := s.Merge(det, model); got.Score != det.Score {
				t.Errorf("Model score %.1f should be discarded, merged score = %.2f", bad, got.Score)
			}
		}
	})

	t.Run("scores average and passed recomputes", func(t *testing.T) {
		model := &types.CritiqueState{
			Score:    0.3,
			Feedback: "The claim overreaches the evidence.",
			Issues:   []string{"overclaims causality"},
		}
		got := s.Merge(det, model)
		approx(t, got.Score, 0.5, "merged score")
		if got.Passed {
			t.Error("Blended 0.5 must fail at threshold 0.6")
		}
		if got.Feedback != model.Feedback {
			t.Errorf("Model feedback should win when present, got %q", got.Feedback)
		}
		if len(got.Issues) != 2 {
			t.Errorf("Issues should concatenate, got %v", got.Issues)
		}
	})

	t.Run("model can lift a borderline verdict", func(t *testing.T) {
		low := types.CritiqueState{Score: 0.5, Passed: false, Feedback: "Rejected: weak."}
		model := &types.CritiqueState{Score: 0.9}
		got := s.Merge(low, model)
		approx(t, got.Score, 0.7, "merged score")
		if !got.Passed {
			t.Error("Blended 0.7 must pass at threshold 0.6")
		}
		if got.Feedback != low.Feedback {
			t.Errorf("Empty model feedback keeps the deterministic text, got %q", got.Feedback)
		}
	})
}
