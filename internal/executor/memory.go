package executor

import (
	"context"
	"time"

	"github.com/quarrydb/quarry/internal/query"
)

// MemoryExecutor runs queries synchronously over an in-memory row slice.
// It is the reference implementation: every other executor must produce
// the same row multiset for queries it supports.
//
// Metadata.TotalCount is the pre-pagination row count and FromCache is
// always false.
type MemoryExecutor struct {
	rows []query.Row
}

// NewMemoryExecutor wraps a row slice. The slice is not copied; callers
// must not mutate it while queries run.
func NewMemoryExecutor(rows []query.Row) *MemoryExecutor {
	return &MemoryExecutor{rows: rows}
}

// Execute runs the full pipeline. The context is accepted for contract
// parity but never blocks: execution is synchronous.
func (e *MemoryExecutor) Execute(_ context.Context, q query.Query) query.Result {
	start := time.Now()
	data, total, qerr := runPipeline(e.rows, q)
	if qerr != nil {
		res := query.FailureResult(qerr.Code, qerr.Message)
		res.Metadata.ExecutionTimeMs = int(time.Since(start).Milliseconds())
		return res
	}
	return query.Result{
		Data: data,
		Metadata: query.Metadata{
			ExecutionTimeMs: int(time.Since(start).Milliseconds()),
			FromCache:       false,
			TotalCount:      total,
		},
	}
}

// Capabilities reports full in-process support; vector and full-text
// operations need a SQL back-end.
func (e *MemoryExecutor) Capabilities() Capabilities {
	return Capabilities{SupportsAggregation: true, SupportsGrouping: true}
}
