package graphstore

// Test helpers: a recording mock DB in the shape of the pgx interfaces.
// Every call's SQL and args are captured so tests can assert placeholder
// discipline and round-trip counts; results are scripted per call.

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type recordedCall struct {
	sql  string
	args []any
}

// mockRow implements pgx.Row.
type mockRow struct {
	values []any
	err    error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assignValues(dest, r.values)
}

// mockRows implements pgx.Rows over scripted rows.
type mockRows struct {
	cols   []string
	rows   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                    { r.closed = true }
func (r *mockRows) Err() error                { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *mockRows) Conn() *pgx.Conn           { return nil }
func (r *mockRows) RawValues() [][]byte       { return nil }

func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}

func (r *mockRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	return assignValues(dest, r.rows[r.idx-1])
}

func (r *mockRows) Values() ([]any, error) {
	return r.rows[r.idx-1], nil
}

func assignValues(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *float64:
			*d = v.(float64)
		case *[]byte:
			*d = v.([]byte)
		case *[]string:
			*d = v.([]string)
		default:
			return fmt.Errorf("scan: unsupported destination type %T", dest[i])
		}
	}
	return nil
}

// mockDB scripts query results in call order and records every statement.
type mockDB struct {
	calls     []recordedCall
	rowQueue  []*mockRow
	rowsQueue []*mockRows
	queryErr  error
	execErr   error
}

func (m *mockDB) record(sql string, args []any) {
	m.calls = append(m.calls, recordedCall{sql: sql, args: args})
}

func (m *mockDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.record(sql, args)
	if len(m.rowQueue) == 0 {
		return &mockRow{err: pgx.ErrNoRows}
	}
	row := m.rowQueue[0]
	m.rowQueue = m.rowQueue[1:]
	return row
}

func (m *mockDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.record(sql, args)
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if len(m.rowsQueue) == 0 {
		return &mockRows{}, nil
	}
	rows := m.rowsQueue[0]
	m.rowsQueue = m.rowsQueue[1:]
	return rows, nil
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.record(sql, args)
	return pgconn.CommandTag{}, m.execErr
}

func (m *mockDB) lastCall() recordedCall {
	return m.calls[len(m.calls)-1]
}
