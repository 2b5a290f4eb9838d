// Package dataset resolves a dataset id into the context the agents work
// from: schema, shape, and sample rows. Full row access stays behind the
// execution boundary; only the local runner's row source exposes it.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"datanerd/internal/config"
	"datanerd/internal/logging"
	"datanerd/internal/types"
)

// ErrNotFound marks a dataset id that no provider knows. Callers check it
// with errors.Is to tell a missing dataset from a service outage.
var ErrNotFound = errors.New("dataset not found")

// Provider resolves dataset metadata for a run.
type Provider interface {
	Context(ctx context.Context, datasetID string) (*types.DatasetContext, error)
}

const defaultProviderTimeout = 30 * time.Second

// HTTPProvider fetches dataset context from the dataset metadata service.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPProvider builds a provider client from the integration config.
func NewHTTPProvider(cfg config.DatasetIntegration) *HTTPProvider {
	timeout := defaultProviderTimeout
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	return &HTTPProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Context fetches /datasets/{id}/context from the service.
func (p *HTTPProvider) Context(ctx context.Context, datasetID string) (*types.DatasetContext, error) {
	endpoint := fmt.Sprintf("%s/datasets/%s/context", p.baseURL, url.PathEscape(datasetID))
	logging.DatasetDebug("Fetching dataset context for %s", datasetID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build dataset request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataset service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("unknown dataset %q: %w", datasetID, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var dc types.DatasetContext
	if err := json.Unmarshal(body, &dc); err != nil {
		return nil, fmt.Errorf("failed to parse dataset context: %w", err)
	}
	if dc.DatasetID == "" {
		dc.DatasetID = datasetID
	}
	if dc.ColumnCount == 0 {
		dc.ColumnCount = len(dc.Columns)
	}
	logging.Dataset("Resolved dataset %s: %d rows, %d columns", dc.DatasetID, dc.RowCount, dc.ColumnCount)
	return &dc, nil
}
