package executor

// Test Plan for the SQL executor:
//
// 1. Generated SQL carries $N placeholders and bound args in order
// 2. Result envelope mapping: rows → data, failure → ADAPTER_ERROR /
//    CONNECTION_FAILED / TIMEOUT
// 3. Prepared-statement mode prepares once per SQL text
// 4. Constructor validation

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydb/quarry/internal/query"
	"github.com/quarrydb/quarry/internal/sqlgen"
)

func newMockExecutor(t *testing.T, opts SQLOptions) (*SQLExecutor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if opts.TableName == "" {
		opts.TableName = "entities"
	}
	exec, err := NewSQLExecutor(db, opts)
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	return exec, mock
}

func TestSQLExecutorExecute(t *testing.T) {
	t.Parallel()

	t.Run("binds values as numbered placeholders", func(t *testing.T) {
		t.Parallel()
		exec, mock := newMockExecutor(t, SQLOptions{})

		mock.ExpectQuery(`SELECT \* FROM entities WHERE type = \$1 AND age > \$2`).
			WithArgs("task", 18).
			WillReturnRows(sqlmock.NewRows([]string{"id", "type"}).
				AddRow("n1", "task").
				AddRow("n2", "task"))

		q := query.NewBuilder().
			WhereEqual("type", "task").
			WhereComparison("age", query.OpGt, 18).
			MustBuild()
		res := exec.Execute(context.Background(), q)
		require.Empty(t, res.Errors)
		require.Len(t, res.Data, 2)
		assert.Equal(t, "n1", res.Data[0]["id"])
		assert.Equal(t, 2, res.Metadata.TotalCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("execution failure maps to ADAPTER_ERROR", func(t *testing.T) {
		t.Parallel()
		exec, mock := newMockExecutor(t, SQLOptions{})
		mock.ExpectQuery(`SELECT \* FROM entities`).
			WillReturnError(errors.New("relation does not exist"))

		res := exec.Execute(context.Background(), query.Query{})
		require.Len(t, res.Errors, 1)
		assert.Equal(t, query.ErrAdapter, res.Errors[0].Code)
		assert.Empty(t, res.Data)
	})

	t.Run("connection failure maps to CONNECTION_FAILED", func(t *testing.T) {
		t.Parallel()
		exec, mock := newMockExecutor(t, SQLOptions{})
		mock.ExpectQuery(`SELECT \* FROM entities`).
			WillReturnError(errors.New("connection refused"))

		res := exec.Execute(context.Background(), query.Query{})
		require.Len(t, res.Errors, 1)
		assert.Equal(t, query.ErrConnectionFailed, res.Errors[0].Code)
	})

	t.Run("deadline exceeded maps to TIMEOUT", func(t *testing.T) {
		t.Parallel()
		exec, mock := newMockExecutor(t, SQLOptions{})
		mock.ExpectQuery(`SELECT \* FROM entities`).
			WillReturnError(context.DeadlineExceeded)

		res := exec.Execute(context.Background(), query.Query{})
		require.Len(t, res.Errors, 1)
		assert.Equal(t, query.ErrTimeout, res.Errors[0].Code)
	})

	t.Run("generator failure maps to INVALID_VALUE", func(t *testing.T) {
		t.Parallel()
		exec, _ := newMockExecutor(t, SQLOptions{})
		q := query.Query{Conditions: []query.Condition{
			query.Equality{Field: "bad field;drop", Op: query.OpEq, Value: 1},
		}}
		res := exec.Execute(context.Background(), q)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, query.ErrInvalidValue, res.Errors[0].Code)
	})
}

func TestSQLExecutorPreparedStatements(t *testing.T) {
	t.Parallel()

	exec, mock := newMockExecutor(t, SQLOptions{UsePreparedStatements: true})

	mock.ExpectPrepare(`SELECT \* FROM entities WHERE type = \$1`)
	mock.ExpectQuery(`SELECT \* FROM entities WHERE type = \$1`).
		WithArgs("task").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("n1"))
	// Second execution reuses the prepared statement: no second prepare.
	mock.ExpectQuery(`SELECT \* FROM entities WHERE type = \$1`).
		WithArgs("note").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("n2"))

	q1 := query.NewBuilder().WhereEqual("type", "task").MustBuild()
	q2 := query.NewBuilder().WhereEqual("type", "note").MustBuild()

	res := exec.Execute(context.Background(), q1)
	require.Empty(t, res.Errors)
	res = exec.Execute(context.Background(), q2)
	require.Empty(t, res.Errors)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLExecutorSemantic(t *testing.T) {
	t.Parallel()

	exec, mock := newMockExecutor(t, SQLOptions{})
	mock.ExpectQuery(`SELECT department, COUNT\(\*\) AS headcount FROM people WHERE active = \$1 GROUP BY department ORDER BY department ASC LIMIT 10`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"department", "headcount"}).
			AddRow("eng", 4))

	limit := 10
	res := exec.ExecuteSemantic(context.Background(), sqlgen.SemanticQuery{
		From:         "people",
		Select:       []string{"department"},
		Where:        []sqlgen.SemanticCondition{{Field: "active", Op: "=", Value: true}},
		GroupBy:      []string{"department"},
		Aggregations: []query.Aggregation{{Kind: query.AggCount, Alias: "headcount"}},
		OrderBy:      []query.OrderKey{{Field: "department", Direction: query.Asc}},
		Limit:        &limit,
	})
	require.Empty(t, res.Errors)
	require.Len(t, res.Data, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLExecutorConstructor(t *testing.T) {
	t.Parallel()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLExecutor(nil, SQLOptions{TableName: "t"})
	require.Error(t, err)

	_, err = NewSQLExecutor(db, SQLOptions{})
	require.Error(t, err)

	_, err = NewSQLExecutor(db, SQLOptions{TableName: "bad name"})
	require.Error(t, err)

	caps, err := NewSQLExecutor(db, SQLOptions{TableName: "t"})
	require.NoError(t, err)
	assert.True(t, caps.Capabilities().SupportsVector)
}
