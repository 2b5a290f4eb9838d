package execution

import (
	"context"
	"errors"
	"strings"
	"testing"

	"datanerd/internal/config"
)

type fakeRowSource struct {
	rows []map[string]any
	err  error
}

func (f *fakeRowSource) Rows(ctx context.Context, datasetID string) ([]map[string]any, error) {
	return f.rows, f.err
}

func spendRows() *fakeRowSource {
	return &fakeRowSource{rows: []map[string]any{
		{"monthly_spend": 10.5, "region": "EU"},
		{"monthly_spend": 20.0, "region": "NA"},
		{"monthly_spend": 30.0, "region": "EU"},
	}}
}

func newLocalRunnerForTest(rows RowSource) *LocalRunner {
	return NewLocalRunner(rows, config.ExecutionConfig{DefaultTimeout: "10s"})
}

func TestLocalRunnerExecute(t *testing.T) {
	code := `
import (
	"encoding/json"
	"fmt"
)

func Analyze(rows []map[string]any) (string, error) {
	total := 0.0
	for _, row := range rows {
		if v, ok := row["monthly_spend"].(float64); ok {
			total += v
		}
	}
	out, err := json.Marshal(map[string]any{
		"description": fmt.Sprintf("total spend %.1f over %d rows", total, len(rows)),
		"statistic":   total,
		"sample_size": len(rows),
	})
	return string(out), err
}
`
	runner := newLocalRunnerForTest(spendRows())
	res := runner.Execute(context.Background(), code, "ds-1")
	if !res.Success {
		t.Fatalf("Execute failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "total spend 60.5 over 3 rows") {
		t.Errorf("output = %q", res.Output)
	}
	if res.Duration <= 0 {
		t.Error("duration not stamped")
	}
}

func TestLocalRunnerAnalysisError(t *testing.T) {
	code := `
import "errors"

func Analyze(rows []map[string]any) (string, error) {
	if len(rows) < 100 {
		return "", errors.New("not enough rows")
	}
	return "{}", nil
}
`
	res := newLocalRunnerForTest(spendRows()).Execute(context.Background(), code, "ds-1")
	if res.Success || !strings.Contains(res.Error, "not enough rows") {
		t.Errorf("result = %+v", res)
	}
}

func TestLocalRunnerForbiddenImport(t *testing.T) {
	code := `
import (
	"fmt"
	"os"
)

func Analyze(rows []map[string]any) (string, error) {
	fmt.Println(os.Getenv("HOME"))
	return "{}", nil
}
`
	res := newLocalRunnerForTest(spendRows()).Execute(context.Background(), code, "ds-1")
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "forbidden imports") || !strings.Contains(res.Error, "os") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestLocalRunnerAliasedForbiddenImport(t *testing.T) {
	code := `
import x "net/http"

func Analyze(rows []map[string]any) (string, error) {
	_ = x.MethodGet
	return "{}", nil
}
`
	res := newLocalRunnerForTest(spendRows()).Execute(context.Background(), code, "ds-1")
	if res.Success || !strings.Contains(res.Error, "net/http") {
		t.Errorf("result = %+v", res)
	}
}

func TestLocalRunnerRowSourceFailure(t *testing.T) {
	src := &fakeRowSource{err: errors.New("dataset service down")}
	res := newLocalRunnerForTest(src).Execute(context.Background(), "func Analyze(rows []map[string]any) (string, error) { return \"{}\", nil }", "ds-1")
	if res.Success || !strings.Contains(res.Error, "failed to load rows") {
		t.Errorf("result = %+v", res)
	}
}

func TestLocalRunnerMissingAnalyze(t *testing.T) {
	res := newLocalRunnerForTest(spendRows()).Execute(context.Background(), "func Other() {}", "ds-1")
	if res.Success || !strings.Contains(res.Error, "Analyze function not found") {
		t.Errorf("result = %+v", res)
	}
}

func TestLocalRunnerWrongSignature(t *testing.T) {
	res := newLocalRunnerForTest(spendRows()).Execute(context.Background(), "func Analyze(n int) string { return \"x\" }", "ds-1")
	if res.Success || !strings.Contains(res.Error, "incorrect signature") {
		t.Errorf("result = %+v", res)
	}
}

func TestLocalRunnerSyntaxError(t *testing.T) {
	res := newLocalRunnerForTest(spendRows()).Execute(context.Background(), "func Analyze(rows []map[string]any (string, error) {", "ds-1")
	if res.Success || !strings.Contains(res.Error, "evaluation failed") {
		t.Errorf("result = %+v", res)
	}
}

func TestLocalRunnerTimeout(t *testing.T) {
	runner := NewLocalRunner(spendRows(), config.ExecutionConfig{
		DefaultTimeout: "100ms",
		AllowedImports: []string{"time"},
	})
	code := `
import "time"

func Analyze(rows []map[string]any) (string, error) {
	time.Sleep(5 * time.Second)
	return "done", nil
}
`
	res := runner.Execute(context.Background(), code, "ds-1")
	if res.Success || !strings.Contains(res.Error, "timed out") {
		t.Errorf("result = %+v", res)
	}
}

func TestLocalRunnerPanicContained(t *testing.T) {
	code := `
func Analyze(rows []map[string]any) (string, error) {
	panic("boom")
}
`
	res := newLocalRunnerForTest(spendRows()).Execute(context.Background(), code, "ds-1")
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v, want contained failure", res)
	}
}

func TestLocalRunnerLanguage(t *testing.T) {
	if got := newLocalRunnerForTest(spendRows()).Language(); got != "go" {
		t.Errorf("language = %q", got)
	}
}

func TestWrapGoCode(t *testing.T) {
	if got := wrapGoCode("func Analyze() {}"); !strings.HasPrefix(got, "package main") {
		t.Errorf("wrapped = %q", got)
	}
	already := "package main\n\nfunc Analyze() {}"
	if got := wrapGoCode(already); got != already {
		t.Errorf("re-wrapped existing package clause: %q", got)
	}
}
