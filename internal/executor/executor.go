// Package executor runs query.Query values over concrete substrates: an
// in-memory row slice, a JSON file, or a SQL back-end. All executors share
// one predicate/sort/aggregation engine so a query yields the same row
// multiset regardless of substrate.
package executor

import (
	"context"

	"github.com/quarrydb/quarry/internal/query"
)

// Capabilities describes what an executor can do. Consumers branch on
// capabilities rather than on concrete executor types.
type Capabilities struct {
	SupportsAggregation bool
	SupportsGrouping    bool
	SupportsVector      bool
	SupportsFullText    bool
}

// Executor is the capability contract every back-end implements. Execute
// never returns an error: runtime failures are surfaced inside the result
// envelope with empty data.
type Executor interface {
	Execute(ctx context.Context, q query.Query) query.Result
	Capabilities() Capabilities
}
