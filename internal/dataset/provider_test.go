package dataset

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"datanerd/internal/config"
)

func newHTTPProviderForTest(t *testing.T, handler http.Handler) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPProvider(config.DatasetIntegration{BaseURL: srv.URL, Timeout: "5s"})
}

func TestHTTPProviderContext(t *testing.T) {
	var mu sync.Mutex
	var gotPath string

	provider := newHTTPProviderForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPath = r.URL.Path
		mu.Unlock()
		fmt.Fprint(w, `{
			"name": "customers",
			"row_count": 5000,
			"columns": [
				{"name": "monthly_spend", "type": "float"},
				{"name": "region", "type": "string", "sample_values": ["EU", "NA"]}
			]
		}`)
	}))

	dc, err := provider.Context(context.Background(), "ds-9")
	if err != nil {
		t.Fatalf("Context failed: %v", err)
	}

	mu.Lock()
	if gotPath != "/datasets/ds-9/context" {
		t.Errorf("path = %q", gotPath)
	}
	mu.Unlock()

	if dc.DatasetID != "ds-9" {
		t.Errorf("dataset id = %q, want backfilled from the request", dc.DatasetID)
	}
	if dc.Name != "customers" || dc.RowCount != 5000 {
		t.Errorf("context = %+v", dc)
	}
	if dc.ColumnCount != 2 {
		t.Errorf("column count = %d, want backfilled 2", dc.ColumnCount)
	}
	if !dc.HasColumn("region") {
		t.Error("schema lost the region column")
	}
}

func TestHTTPProviderNotFound(t *testing.T) {
	provider := newHTTPProviderForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := provider.Context(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), `unknown dataset "missing"`) {
		t.Errorf("error = %v", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("errors.Is(err, ErrNotFound) = false, want true")
	}
}

func TestHTTPProviderServerError(t *testing.T) {
	provider := newHTTPProviderForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "db down")
	}))

	_, err := provider.Context(context.Background(), "ds-9")
	if err == nil || !strings.Contains(err.Error(), "status 500") || !strings.Contains(err.Error(), "db down") {
		t.Errorf("error = %v", err)
	}
}

func TestHTTPProviderMalformedBody(t *testing.T) {
	provider := newHTTPProviderForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	}))

	_, err := provider.Context(context.Background(), "ds-9")
	if err == nil || !strings.Contains(err.Error(), "parse dataset context") {
		t.Errorf("error = %v", err)
	}
}

func TestHTTPProviderContextDeadline(t *testing.T) {
	provider := newHTTPProviderForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := provider.Context(ctx, "ds-9")
	if err == nil || !strings.Contains(err.Error(), "request failed") {
		t.Errorf("error = %v", err)
	}
}
