package sqlgen

// Test Plan for the SQL generator:
//
// 1. Placeholder discipline: every data value becomes $N, in order
// 2. Condition shapes: equality, comparison, IN, LIKE/ILIKE, null,
//    composites (AND/OR/NOT)
// 3. Projection, aggregation aliases, GROUP BY, HAVING, ORDER BY,
//    LIMIT/OFFSET
// 4. Identifier validation rejects unsafe fields/tables
// 5. SemanticQuery translation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydb/quarry/internal/query"
)

func TestGenerateConditions(t *testing.T) {
	t.Parallel()

	t.Run("equality and comparison", func(t *testing.T) {
		t.Parallel()
		q := query.NewBuilder().
			WhereEqual("type", "task").
			WhereComparison("age", query.OpGte, 21).
			MustBuild()
		sql, args, err := Generate(q, "entities")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM entities WHERE type = $1 AND age >= $2", sql)
		assert.Equal(t, []any{"task", 21}, args)
	})

	t.Run("in expands to numbered placeholders", func(t *testing.T) {
		t.Parallel()
		q := query.NewBuilder().WhereIn("status", "open", "blocked").MustBuild()
		sql, args, err := Generate(q, "entities")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM entities WHERE status IN ($1,$2)", sql)
		assert.Equal(t, []any{"open", "blocked"}, args)
	})

	t.Run("patterns map to LIKE and ILIKE", func(t *testing.T) {
		t.Parallel()
		q := query.NewBuilder().WhereContains("name", "eng").MustBuild()
		sql, args, err := Generate(q, "entities")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM entities WHERE name LIKE $1", sql)
		assert.Equal(t, []any{"%eng%"}, args)

		q = query.NewBuilder().WherePattern("name", query.OpStartsWith, "Al", false).MustBuild()
		sql, args, err = Generate(q, "entities")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM entities WHERE name ILIKE $1", sql)
		assert.Equal(t, []any{"Al%"}, args)
	})

	t.Run("regex pattern is rejected", func(t *testing.T) {
		t.Parallel()
		q := query.NewBuilder().WherePattern("name", query.OpMatches, "^A", true).MustBuild()
		_, _, err := Generate(q, "entities")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not supported")
	})

	t.Run("null conditions", func(t *testing.T) {
		t.Parallel()
		q := query.NewBuilder().WhereNull("deleted_at").WhereNotNull("created_at").MustBuild()
		sql, _, err := Generate(q, "entities")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM entities WHERE deleted_at IS NULL AND created_at IS NOT NULL", sql)
	})

	t.Run("composites nest with placeholders in assembly order", func(t *testing.T) {
		t.Parallel()
		q := query.NewBuilder().
			WhereEqual("active", true).
			OrWhere("name", "=", "Admin").
			MustBuild()
		sql, args, err := Generate(q, "entities")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM entities WHERE (active = $1 OR name = $2)", sql)
		assert.Equal(t, []any{true, "Admin"}, args)
	})

	t.Run("not composite", func(t *testing.T) {
		t.Parallel()
		q := query.NewBuilder().Not(query.NewBuilder().WhereEqual("archived", true)).MustBuild()
		sql, args, err := Generate(q, "entities")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM entities WHERE NOT (archived = $1)", sql)
		assert.Equal(t, []any{true}, args)
	})
}

func TestGenerateClauses(t *testing.T) {
	t.Parallel()

	t.Run("projection", func(t *testing.T) {
		t.Parallel()
		q := query.NewBuilder().Select("id", "name").MustBuild()
		sql, _, err := Generate(q, "entities")
		require.NoError(t, err)
		assert.Equal(t, "SELECT id, name FROM entities", sql)
	})

	t.Run("grouping with aggregations and having", func(t *testing.T) {
		t.Parallel()
		q := query.NewBuilder().
			GroupBy("department").
			Count("employee_count").
			Avg("salary", "avg_salary").
			Having("employee_count", query.OpGt, 2).
			MustBuild()
		sql, args, err := Generate(q, "employees")
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT department, COUNT(*) AS employee_count, AVG(salary) AS avg_salary "+
				"FROM employees GROUP BY department HAVING employee_count > $1", sql)
		assert.Equal(t, []any{2}, args)
	})

	t.Run("default aggregation aliases", func(t *testing.T) {
		t.Parallel()
		expr, err := AggregationExpr(query.Aggregation{Kind: query.AggCount})
		require.NoError(t, err)
		assert.Equal(t, `COUNT(*) AS "count_*"`, expr)

		expr, err = AggregationExpr(query.Aggregation{Kind: query.AggSum, Field: "salary", Alias: "sum_salary"})
		require.NoError(t, err)
		assert.Equal(t, "SUM(salary) AS sum_salary", expr)

		expr, err = AggregationExpr(query.Aggregation{Kind: query.AggCountDistinct, Field: "dept", Alias: "depts"})
		require.NoError(t, err)
		assert.Equal(t, "COUNT(DISTINCT dept) AS depts", expr)
	})

	t.Run("ordering with null placement", func(t *testing.T) {
		t.Parallel()
		q := query.NewBuilder().
			OrderBy("rank", query.Desc, query.NullsLast).
			OrderByAsc("name").
			MustBuild()
		sql, _, err := Generate(q, "entities")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM entities ORDER BY rank DESC NULLS LAST, name ASC", sql)
	})

	t.Run("limit and offset are integer literals", func(t *testing.T) {
		t.Parallel()
		q := query.NewBuilder().Limit(10).Offset(20).MustBuild()
		sql, args, err := Generate(q, "entities")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM entities LIMIT 10 OFFSET 20", sql)
		assert.Empty(t, args)
	})
}

func TestGenerateIdentifierValidation(t *testing.T) {
	t.Parallel()

	t.Run("bad table", func(t *testing.T) {
		t.Parallel()
		_, _, err := Generate(query.Query{}, "entities; DROP TABLE nodes")
		require.Error(t, err)
	})

	t.Run("bad field", func(t *testing.T) {
		t.Parallel()
		q := query.Query{Conditions: []query.Condition{
			query.Equality{Field: "name' OR '1'='1", Op: query.OpEq, Value: "x"},
		}}
		_, _, err := Generate(q, "entities")
		require.Error(t, err)
	})

	t.Run("malicious values stay bound", func(t *testing.T) {
		t.Parallel()
		payload := "'; DROP TABLE nodes; --"
		q := query.NewBuilder().WhereEqual("name", payload).MustBuild()
		sql, args, err := Generate(q, "entities")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM entities WHERE name = $1", sql)
		assert.NotContains(t, sql, "DROP TABLE")
		assert.Equal(t, []any{payload}, args)
	})
}

func TestGenerateSemantic(t *testing.T) {
	t.Parallel()

	t.Run("full clause set", func(t *testing.T) {
		t.Parallel()
		limit, offset := 5, 10
		sql, args, err := GenerateSemantic(SemanticQuery{
			From:   "people",
			Select: []string{"department"},
			Where: []SemanticCondition{
				{Field: "active", Op: "=", Value: true},
				{Field: "name", Op: "LIKE", Value: "A%"},
				{Field: "status", Op: "IN", Value: []any{"open", "closed"}},
			},
			GroupBy:      []string{"department"},
			Aggregations: []query.Aggregation{{Kind: query.AggCount, Alias: "n"}},
			OrderBy:      []query.OrderKey{{Field: "department", Direction: query.Asc}},
			Limit:        &limit,
			Offset:       &offset,
		})
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT department, COUNT(*) AS n FROM people "+
				"WHERE active = $1 AND name LIKE $2 AND status IN ($3,$4) "+
				"GROUP BY department ORDER BY department ASC LIMIT 5 OFFSET 10", sql)
		assert.Equal(t, []any{true, "A%", "open", "closed"}, args)
	})

	t.Run("requires a from table", func(t *testing.T) {
		t.Parallel()
		_, _, err := GenerateSemantic(SemanticQuery{})
		require.Error(t, err)
	})

	t.Run("unsupported operator", func(t *testing.T) {
		t.Parallel()
		_, _, err := GenerateSemantic(SemanticQuery{
			From:  "people",
			Where: []SemanticCondition{{Field: "a", Op: "~", Value: "x"}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported operator")
	})
}
