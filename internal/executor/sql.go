package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/quarrydb/quarry/internal/query"
	"github.com/quarrydb/quarry/internal/sqlgen"
)

// SQLOptions configures a SQLExecutor.
type SQLOptions struct {
	// TableName all queries run against. Whitelisted by the caller and
	// identifier-checked here; never user-parameterizable.
	TableName string
	// UsePreparedStatements reuses a prepared statement per generated SQL
	// text for the lifetime of the executor.
	UsePreparedStatements bool
	// TimeoutMs bounds each execution. Zero means no executor-level
	// timeout (the context still applies).
	TimeoutMs int
	// Debug logs generated SQL and argument counts.
	Debug bool
}

// SQLExecutor translates queries via sqlgen and runs them over a
// database/sql handle, which owns connection pooling.
//
// Metadata.TotalCount is the number of rows returned (post-pagination);
// issuing a second COUNT(*) round trip per query was rejected.
type SQLExecutor struct {
	db   *sql.DB
	opts SQLOptions

	mu    sync.Mutex
	stmts map[string]*sql.Stmt
}

// NewSQLExecutor validates the options and wraps the handle.
func NewSQLExecutor(db *sql.DB, opts SQLOptions) (*SQLExecutor, error) {
	if db == nil {
		return nil, fmt.Errorf("sql executor: db is required")
	}
	if opts.TableName == "" {
		return nil, fmt.Errorf("sql executor: table name is required")
	}
	if !sqlgen.ValidIdentifier(opts.TableName) {
		return nil, fmt.Errorf("sql executor: invalid table name %q", opts.TableName)
	}
	if opts.TimeoutMs < 0 {
		return nil, fmt.Errorf("sql executor: timeout must be non-negative")
	}
	return &SQLExecutor{db: db, opts: opts, stmts: map[string]*sql.Stmt{}}, nil
}

// Execute translates and runs a query.
func (e *SQLExecutor) Execute(ctx context.Context, q query.Query) query.Result {
	start := time.Now()
	sqlText, args, err := sqlgen.Generate(q, e.opts.TableName)
	if err != nil {
		res := query.FailureResult(query.ErrInvalidValue, err.Error())
		res.Metadata.ExecutionTimeMs = int(time.Since(start).Milliseconds())
		return res
	}
	return e.run(ctx, start, sqlText, args)
}

// ExecuteSemantic translates and runs a SemanticQuery. The query's From
// table is used as-is (identifier-checked by the generator).
func (e *SQLExecutor) ExecuteSemantic(ctx context.Context, s sqlgen.SemanticQuery) query.Result {
	start := time.Now()
	sqlText, args, err := sqlgen.GenerateSemantic(s)
	if err != nil {
		res := query.FailureResult(query.ErrInvalidValue, err.Error())
		res.Metadata.ExecutionTimeMs = int(time.Since(start).Milliseconds())
		return res
	}
	return e.run(ctx, start, sqlText, args)
}

func (e *SQLExecutor) run(ctx context.Context, start time.Time, sqlText string, args []any) query.Result {
	if e.opts.Debug {
		log.Printf("sql executor: %s (%d args)", sqlText, len(args))
	}

	if e.opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	rows, err := e.queryRows(ctx, sqlText, args)
	if err != nil {
		res := query.FailureResult(classifyError(err), err.Error())
		res.Metadata.ExecutionTimeMs = int(time.Since(start).Milliseconds())
		return res
	}
	defer rows.Close()

	data, err := scanRows(rows)
	if err != nil {
		res := query.FailureResult(classifyError(err), err.Error())
		res.Metadata.ExecutionTimeMs = int(time.Since(start).Milliseconds())
		return res
	}

	return query.Result{
		Data: data,
		Metadata: query.Metadata{
			ExecutionTimeMs: int(time.Since(start).Milliseconds()),
			TotalCount:      len(data),
		},
	}
}

func (e *SQLExecutor) queryRows(ctx context.Context, sqlText string, args []any) (*sql.Rows, error) {
	if !e.opts.UsePreparedStatements {
		return e.db.QueryContext(ctx, sqlText, args...)
	}
	stmt, err := e.stmt(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, args...)
}

// stmt returns the cached prepared statement for sqlText, preparing it on
// first use.
func (e *SQLExecutor) stmt(ctx context.Context, sqlText string) (*sql.Stmt, error) {
	e.mu.Lock()
	stmt, ok := e.stmts[sqlText]
	e.mu.Unlock()
	if ok {
		return stmt, nil
	}

	stmt, err := e.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.stmts[sqlText]; ok {
		stmt.Close()
		return existing, nil
	}
	e.stmts[sqlText] = stmt
	return stmt, nil
}

// scanRows converts a generic result set into rows keyed by column name.
func scanRows(rows *sql.Rows) ([]query.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	out := []query.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(query.Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// classifyError maps an execution failure to a result-envelope code.
func classifyError(err error) query.ErrorCode {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return query.ErrTimeout
	case errors.Is(err, driver.ErrBadConn):
		return query.ErrConnectionFailed
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection") || strings.Contains(msg, "connect:") {
		return query.ErrConnectionFailed
	}
	return query.ErrAdapter
}

// Capabilities reports the SQL back-end surface.
func (e *SQLExecutor) Capabilities() Capabilities {
	return Capabilities{
		SupportsAggregation: true,
		SupportsGrouping:    true,
		SupportsVector:      true,
		SupportsFullText:    true,
	}
}

// Close releases any prepared statements. The db handle stays open; it is
// owned by the caller.
func (e *SQLExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, stmt := range e.stmts {
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.stmts = map[string]*sql.Stmt{}
	return firstErr
}
