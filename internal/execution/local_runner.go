package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"datanerd/internal/config"
	"datanerd/internal/logging"
)

// RowSource supplies the full rows of a dataset for in-process analysis.
type RowSource interface {
	Rows(ctx context.Context, datasetID string) ([]map[string]any, error)
}

var defaultAllowedImports = []string{
	"fmt", "math", "sort", "strings", "strconv", "errors", "encoding/json",
}

// LocalRunner interprets Go analysis snippets with yaegi instead of
// shipping them to the runner service. It is the dev and test execution
// path; nothing is sandboxed beyond the import whitelist, so it never
// runs untrusted datasets in production.
//
// The snippet must define:
//
//	func Analyze(rows []map[string]any) (string, error)
//
// Numeric cells arrive as float64, everything else as string.
type LocalRunner struct {
	rows    RowSource
	timeout time.Duration
	allowed map[string]bool
}

// NewLocalRunner builds an interpreter-backed runner over the row source.
func NewLocalRunner(rows RowSource, cfg config.ExecutionConfig) *LocalRunner {
	timeout := defaultRunnerTimeout
	if cfg.DefaultTimeout != "" {
		if d, err := time.ParseDuration(cfg.DefaultTimeout); err == nil && d > 0 {
			timeout = d
		}
	}
	imports := cfg.AllowedImports
	if len(imports) == 0 {
		imports = defaultAllowedImports
	}
	allowed := make(map[string]bool, len(imports))
	for _, pkg := range imports {
		allowed[pkg] = true
	}
	return &LocalRunner{rows: rows, timeout: timeout, allowed: allowed}
}

// Language reports the language the interpreter runs.
func (r *LocalRunner) Language() string { return "go" }

// Execute interprets the snippet against the dataset's rows. The import
// whitelist is enforced before the interpreter sees the code; os, net,
// and friends never load.
func (r *LocalRunner) Execute(ctx context.Context, code, datasetID string) Result {
	start := time.Now()
	logging.ExecutionDebug("Interpreting %d bytes of go for dataset %s", len(code), datasetID)

	if err := r.validateImports(code); err != nil {
		return failure(start, "%v", err)
	}

	rows, err := r.rows.Rows(ctx, datasetID)
	if err != nil {
		return failure(start, "failed to load rows for %s: %v", datasetID, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return failure(start, "failed to load stdlib symbols: %v", err)
	}
	if _, err := i.Eval(wrapGoCode(code)); err != nil {
		return failure(start, "code evaluation failed: %v", err)
	}

	fnVal, err := i.Eval("main.Analyze")
	if err != nil {
		return failure(start, "Analyze function not found: %v", err)
	}
	analyze, ok := fnVal.Interface().(func([]map[string]any) (string, error))
	if !ok {
		return failure(start, "Analyze has incorrect signature (expected: func(rows []map[string]any) (string, error))")
	}

	resultChan := make(chan string, 1)
	errChan := make(chan error, 1)
	go func() {
		// A panic inside interpreted code must not take down the run loop.
		defer func() {
			if p := recover(); p != nil {
				errChan <- fmt.Errorf("analysis panicked: %v", p)
			}
		}()
		out, err := analyze(rows)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- out
	}()

	select {
	case out := <-resultChan:
		logging.Execution("Interpreter finished dataset %s in %v", datasetID, time.Since(start).Round(time.Millisecond))
		return success(start, out)
	case err := <-errChan:
		logging.ExecutionDebug("Interpreted analysis failed: %v", err)
		return failure(start, "%v", err)
	case <-ctx.Done():
		logging.ExecutionWarn("Interpreted analysis timed out after %v", time.Since(start).Round(time.Millisecond))
		return failure(start, "execution timed out: %v", ctx.Err())
	}
}

// validateImports line-scans the snippet for import declarations and
// rejects anything outside the whitelist. Runs before the interpreter so
// a blocked package is never even loaded.
func (r *LocalRunner) validateImports(code string) error {
	var forbidden []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import (") {
			inBlock = true
			continue
		}
		if inBlock && strings.HasPrefix(trimmed, ")") {
			inBlock = false
			continue
		}

		var spec string
		switch {
		case inBlock:
			spec = trimmed
		case strings.HasPrefix(trimmed, "import "):
			spec = strings.TrimPrefix(trimmed, "import ")
		default:
			continue
		}
		if spec == "" || strings.HasPrefix(spec, "//") {
			continue
		}
		// The last field survives aliased imports like `m "math"`.
		fields := strings.Fields(spec)
		pkg := strings.Trim(fields[len(fields)-1], `"`)
		if pkg != "" && !r.allowed[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %s", strings.Join(forbidden, ", "))
	}
	return nil
}

// wrapGoCode prepends a package clause so bare snippets evaluate. The
// syntax precheck wraps the same way, keeping both views of the code in
// agreement.
func wrapGoCode(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}
