package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"datanerd/internal/config"
	"datanerd/internal/logging"
)

const defaultRunnerTimeout = 120 * time.Second

// HTTPRunner ships Python analysis code to the sandboxed runner service.
// The service loads the dataset into a pandas DataFrame, executes the
// script, and returns whatever it printed to stdout.
type HTTPRunner struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRunner builds a runner client from the integration config.
func NewHTTPRunner(cfg config.RunnerIntegration) *HTTPRunner {
	timeout := defaultRunnerTimeout
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	return &HTTPRunner{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Language reports the language the runner service executes.
func (r *HTTPRunner) Language() string { return "python" }

type runnerRequest struct {
	Code      string `json:"code"`
	DatasetID string `json:"dataset_id"`
	Language  string `json:"language"`
}

type runnerResponse struct {
	Success    bool   `json:"success"`
	ResultText string `json:"result_text"`
	ErrorText  string `json:"error_text"`
}

// Execute posts the code to the runner's /execute endpoint. Transport
// problems, non-200 statuses, and sandbox failures all come back as
// failed Results carrying the detail the analyst needs to retry.
func (r *HTTPRunner) Execute(ctx context.Context, code, datasetID string) Result {
	start := time.Now()
	logging.ExecutionDebug("Posting %d bytes of python to runner for dataset %s", len(code), datasetID)

	body, err := json.Marshal(runnerRequest{Code: code, DatasetID: datasetID, Language: r.Language()})
	if err != nil {
		return failure(start, "failed to encode runner request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return failure(start, "failed to build runner request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		logging.ExecutionWarn("Runner request failed: %v", err)
		return failure(start, "runner request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(start, "failed to read runner response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		logging.ExecutionWarn("Runner returned status %d", resp.StatusCode)
		return failure(start, "runner returned status %d: %s", resp.StatusCode, clip(string(respBody), 300))
	}

	var parsed runnerResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return failure(start, "failed to parse runner response: %v", err)
	}
	if !parsed.Success {
		msg := parsed.ErrorText
		if msg == "" {
			msg = "execution failed with no detail"
		}
		logging.ExecutionDebug("Runner reported failure: %s", clip(msg, 200))
		return failure(start, "%s", msg)
	}

	logging.Execution("Runner finished dataset %s in %v", datasetID, time.Since(start).Round(time.Millisecond))
	return success(start, parsed.ResultText)
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
