package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"datanerd/internal/config"
	"datanerd/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(config.RunsConfig{
		DatabasePath: filepath.Join(t.TempDir(), "runs.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create run archive: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func finishedRun(runID, userID string) *types.RunState {
	st := types.NewRunState(runID, userID, "sales-q3", types.RunLimits{
		MaxIterations: 50, MaxRetries: 3, MaxCritiqueRetries: 1,
	})
	st.Questions = []types.QuestionState{
		{Text: "Does spend track tenure?", Type: types.QuestionCorrelation},
		{Text: "Do regions differ in spend?", Type: types.QuestionGroupDiff},
	}
	st.QuestionIndex = 2
	st.IterationCount = 2
	st.Approved = []types.InsightState{{
		InsightType: "correlation",
		Description: "Spend rises with tenure",
		Statistic:   0.62, PValue: 0.001, EffectSize: 0.62, SampleSize: 240,
	}}
	st.Boring = []types.InsightState{{
		InsightType: "group_difference",
		Description: "EU customers spend more",
	}}
	st.FinalResponse = "# Analysis of sales-q3\n\nSpend rises with tenure."
	st.FinishedAt = st.StartedAt.Add(42 * time.Second)
	return st
}

func TestArchiveAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	st := finishedRun("run-1", "user-a")

	if err := store.Archive(ctx, st, "completed"); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	rec, loaded, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Status != "completed" {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	if rec.Approved != 1 || rec.Boring != 1 || rec.Rejected != 0 {
		t.Errorf("counts = %d/%d/%d, want 1/1/0", rec.Approved, rec.Boring, rec.Rejected)
	}
	if rec.Questions != 2 {
		t.Errorf("questions = %d, want 2", rec.Questions)
	}
	if rec.Duration != 42*time.Second {
		t.Errorf("duration = %v, want 42s", rec.Duration)
	}
	if loaded.FinalResponse != st.FinalResponse {
		t.Errorf("final response not round-tripped")
	}
	if diff := cmp.Diff(st.Questions, loaded.Questions); diff != "" {
		t.Errorf("question queue not round-tripped (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(st.Approved, loaded.Approved); diff != "" {
		t.Errorf("approved insights not round-tripped (-want +got):\n%s", diff)
	}
}

func TestArchiveReplacesOnSameRunID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := finishedRun("run-1", "user-a")
	if err := store.Archive(ctx, st, "aborted"); err != nil {
		t.Fatalf("first Archive failed: %v", err)
	}
	st.FinalResponse = "revised report"
	if err := store.Archive(ctx, st, "completed"); err != nil {
		t.Fatalf("second Archive failed: %v", err)
	}

	records, err := store.List(ctx, "user-a", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after re-archive, got %d", len(records))
	}
	if records[0].Status != "completed" {
		t.Errorf("status = %q, want completed", records[0].Status)
	}
}

func TestArchiveToleratesPartialState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// An aborted run: no questions, no report, no finish time.
	st := types.NewRunState("run-abort", "user-a", "ds", types.RunLimits{MaxIterations: 50})
	if err := store.Archive(ctx, st, "aborted"); err != nil {
		t.Fatalf("Archive of partial state failed: %v", err)
	}

	rec, loaded, err := store.Get(ctx, "run-abort")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !rec.FinishedAt.IsZero() {
		t.Errorf("expected zero finish time, got %v", rec.FinishedAt)
	}
	if rec.Duration != 0 {
		t.Errorf("expected zero duration, got %v", rec.Duration)
	}
	if loaded.RunID != "run-abort" {
		t.Errorf("run id = %q", loaded.RunID)
	}
}

func TestListFiltersByUserAndOrdersNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := finishedRun("run-old", "user-a")
	older.StartedAt = time.Now().UTC().Add(-time.Hour)
	newer := finishedRun("run-new", "user-a")
	other := finishedRun("run-other", "user-b")

	for _, st := range []*types.RunState{older, newer, other} {
		if err := store.Archive(ctx, st, "completed"); err != nil {
			t.Fatalf("Archive failed: %v", err)
		}
	}

	records, err := store.List(ctx, "user-a", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for user-a, got %d", len(records))
	}
	if records[0].RunID != "run-new" || records[1].RunID != "run-old" {
		t.Errorf("order = %s, %s; want run-new, run-old", records[0].RunID, records[1].RunID)
	}

	all, err := store.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("List all failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 records across users, got %d", len(all))
	}
}

func TestGetUnknownRun(t *testing.T) {
	store := newTestStore(t)
	if _, _, err := store.Get(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Archive(ctx, finishedRun("run-1", "user-a"), "completed"); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if err := store.Delete(ctx, "run-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, _, err := store.Get(ctx, "run-1"); err == nil {
		t.Fatal("expected error after delete")
	}
	if err := store.Delete(ctx, "run-1"); err == nil {
		t.Fatal("expected error deleting unknown run")
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Archive(ctx, finishedRun("run-1", "u"), "completed"); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if err := store.Archive(ctx, finishedRun("run-2", "u"), "aborted"); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["total_runs"] != 2 || stats["completed_runs"] != 1 || stats["aborted_runs"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
