package dataset

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"datanerd/internal/types"
)

const maxSampleRows = 5

// StaticProvider serves datasets registered in memory. It backs tests and
// serviceless local runs, and doubles as the row source for the yaegi
// execution path.
type StaticProvider struct {
	mu       sync.RWMutex
	contexts map[string]*types.DatasetContext
	rows     map[string][]map[string]any
}

// NewStaticProvider returns an empty registry.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		contexts: make(map[string]*types.DatasetContext),
		rows:     make(map[string][]map[string]any),
	}
}

// Register stores a dataset. Missing context fields are derived from the
// rows: schema by inference, counts and sample rows directly. Explicitly
// provided fields are left alone.
func (p *StaticProvider) Register(dc *types.DatasetContext, rows []map[string]any) {
	if len(dc.Columns) == 0 {
		dc.Columns = InferColumns(rows)
	}
	if dc.RowCount == 0 {
		dc.RowCount = len(rows)
	}
	dc.ColumnCount = len(dc.Columns)
	if len(dc.SampleRows) == 0 {
		n := len(rows)
		if n > maxSampleRows {
			n = maxSampleRows
		}
		dc.SampleRows = rows[:n]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.contexts[dc.DatasetID] = dc
	p.rows[dc.DatasetID] = rows
}

// Context returns the registered context. Callers treat it as read-only.
func (p *StaticProvider) Context(ctx context.Context, datasetID string) (*types.DatasetContext, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	dc, ok := p.contexts[datasetID]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q: %w", datasetID, ErrNotFound)
	}
	return dc, nil
}

// Rows returns the full rows for in-process execution.
func (p *StaticProvider) Rows(ctx context.Context, datasetID string) ([]map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rows, ok := p.rows[datasetID]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q: %w", datasetID, ErrNotFound)
	}
	return rows, nil
}

// InferColumns derives a schema from row values: column order is sorted
// key order, types come from the first non-nil value seen, and up to
// three distinct samples are kept per column.
func InferColumns(rows []map[string]any) []types.ColumnSchema {
	if len(rows) == 0 {
		return nil
	}

	keys := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]types.ColumnSchema, 0, len(keys))
	for _, key := range keys {
		col := types.ColumnSchema{Name: key, Type: "string"}
		typed := false
		seen := make(map[string]bool)
		for _, row := range rows {
			v, ok := row[key]
			if !ok || v == nil {
				continue
			}
			if !typed {
				col.Type = valueType(v)
				typed = true
			}
			if len(col.SampleValues) >= 3 {
				break
			}
			s := fmt.Sprintf("%v", v)
			if !seen[s] {
				seen[s] = true
				col.SampleValues = append(col.SampleValues, s)
			}
		}
		cols = append(cols, col)
	}
	return cols
}

func valueType(v any) string {
	switch v.(type) {
	case float64, float32:
		return "float"
	case int, int64, int32:
		return "int"
	case bool:
		return "bool"
	default:
		return "string"
	}
}

// NewDemoProvider returns a provider preloaded with the demo dataset, for
// running the pipeline with no services attached.
func NewDemoProvider() *StaticProvider {
	p := NewStaticProvider()
	p.Register(Demo())
	return p
}

// Demo builds a deterministic customer-accounts dataset with two planted
// effects: monthly spend tracks tenure, and EU accounts spend more than
// the other regions. Numeric cells are float64, matching the row contract
// of the local runner.
func Demo() (*types.DatasetContext, []map[string]any) {
	rng := rand.New(rand.NewSource(42))
	regions := []string{"EU", "NA", "APAC"}

	rows := make([]map[string]any, 0, 240)
	for i := 0; i < 240; i++ {
		tenure := float64(1 + rng.Intn(72))
		region := regions[i%len(regions)]
		spend := 20 + 1.8*tenure + rng.NormFloat64()*12
		if region == "EU" {
			spend += 15
		}
		if spend < 5 {
			spend = 5
		}
		rows = append(rows, map[string]any{
			"customer_id":     fmt.Sprintf("c-%04d", i+1),
			"region":          region,
			"tenure_months":   tenure,
			"monthly_spend":   math.Round(spend*100) / 100,
			"support_tickets": float64(rng.Intn(9)),
		})
	}

	dc := &types.DatasetContext{DatasetID: "demo", Name: "demo-customers"}
	return dc, rows
}
