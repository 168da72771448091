// Package sqlgen translates query.Query and SemanticQuery values into
// parameterized SQL with numbered ($1, $2, …) placeholders. It is the
// single place structural SQL is assembled: every user-supplied data value
// is bound, and the only textually composed fragments are
// identifier-validated field/table names, validated integer limit/offset,
// and aggregation opcodes from a closed set.
package sqlgen

import (
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/quarrydb/quarry/internal/query"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidIdentifier reports whether s is a safe (optionally dotted) SQL
// identifier. Anything else must never be composed into SQL text.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

func checkIdent(kind, s string) error {
	if !ValidIdentifier(s) {
		return fmt.Errorf("invalid %s identifier %q", kind, s)
	}
	return nil
}

// Generate translates a query into (sql, args) for the given table. The
// table name is caller-whitelisted and identifier-checked; it is never a
// user-supplied data value.
func Generate(q query.Query, table string) (string, []any, error) {
	if err := checkIdent("table", table); err != nil {
		return "", nil, err
	}

	columns, err := selectColumns(q)
	if err != nil {
		return "", nil, err
	}

	builder := sq.Select(columns...).From(table).PlaceholderFormat(sq.Dollar)

	for _, c := range q.Conditions {
		sqlizer, err := conditionSQL(c)
		if err != nil {
			return "", nil, err
		}
		builder = builder.Where(sqlizer)
	}

	if q.Grouping != nil {
		for _, f := range q.Grouping.Fields {
			if err := checkIdent("group by", f); err != nil {
				return "", nil, err
			}
		}
		builder = builder.GroupBy(q.Grouping.Fields...)
	}

	if q.Having != nil {
		if err := checkIdent("having", q.Having.Field); err != nil {
			return "", nil, err
		}
		builder = builder.Having(sq.Expr(fmt.Sprintf("%s %s ?", q.Having.Field, q.Having.Op), q.Having.Value))
	}

	for _, key := range q.Ordering {
		clause, err := orderClause(key)
		if err != nil {
			return "", nil, err
		}
		builder = builder.OrderBy(clause)
	}

	if q.Pagination != nil {
		if q.Pagination.Limit < 0 || q.Pagination.Offset < 0 {
			return "", nil, fmt.Errorf("limit and offset must be non-negative integers")
		}
		if q.Pagination.Limit > 0 {
			builder = builder.Limit(uint64(q.Pagination.Limit))
		}
		if q.Pagination.Offset > 0 {
			builder = builder.Offset(uint64(q.Pagination.Offset))
		}
	}

	return builder.ToSql()
}

// selectColumns builds the projection list: group fields + aggregations
// when grouping/aggregating, otherwise the explicit projection or *.
func selectColumns(q query.Query) ([]string, error) {
	if q.Grouping != nil || len(q.Aggregations) > 0 {
		var cols []string
		if q.Grouping != nil {
			for _, f := range q.Grouping.Fields {
				if err := checkIdent("group by", f); err != nil {
					return nil, err
				}
				cols = append(cols, f)
			}
		}
		for _, agg := range q.Aggregations {
			expr, err := AggregationExpr(agg)
			if err != nil {
				return nil, err
			}
			cols = append(cols, expr)
		}
		if len(cols) == 0 {
			return []string{"*"}, nil
		}
		return cols, nil
	}

	if q.Projection != nil && !q.Projection.IncludeAll && len(q.Projection.Fields) > 0 {
		cols := make([]string, len(q.Projection.Fields))
		for i, f := range q.Projection.Fields {
			if err := checkIdent("projection", f); err != nil {
				return nil, err
			}
			cols[i] = f
		}
		return cols, nil
	}
	return []string{"*"}, nil
}

var aliasRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_*]*$`)

// AggregationExpr renders one aggregation column: FN(field) AS alias with
// the default alias <fn>_<field> (count_* for a bare count). An alias
// carrying * is emitted as a quoted identifier so every executor exposes
// the same column name.
func AggregationExpr(agg query.Aggregation) (string, error) {
	alias := agg.DefaultAlias()
	if !aliasRe.MatchString(alias) {
		return "", fmt.Errorf("invalid aggregation alias %q", alias)
	}
	if !ValidIdentifier(alias) {
		alias = `"` + alias + `"`
	}
	switch agg.Kind {
	case query.AggCount:
		if agg.Field == "" {
			return fmt.Sprintf("COUNT(*) AS %s", alias), nil
		}
		if err := checkIdent("aggregation field", agg.Field); err != nil {
			return "", err
		}
		return fmt.Sprintf("COUNT(%s) AS %s", agg.Field, alias), nil
	case query.AggCountDistinct:
		if err := checkIdent("aggregation field", agg.Field); err != nil {
			return "", err
		}
		return fmt.Sprintf("COUNT(DISTINCT %s) AS %s", agg.Field, alias), nil
	case query.AggSum, query.AggAvg, query.AggMin, query.AggMax:
		if err := checkIdent("aggregation field", agg.Field); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(string(agg.Kind)), agg.Field, alias), nil
	}
	return "", fmt.Errorf("unknown aggregation kind %q", agg.Kind)
}

// notExpr negates an inner Sqlizer.
type notExpr struct {
	inner sq.Sqlizer
}

func (n notExpr) ToSql() (string, []any, error) {
	inner, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + inner + ")", args, nil
}

// conditionSQL converts one condition to a placeholder-bound Sqlizer.
func conditionSQL(c query.Condition) (sq.Sqlizer, error) {
	switch cond := c.(type) {
	case query.Equality:
		if err := checkIdent("field", cond.Field); err != nil {
			return nil, err
		}
		if cond.Op == query.OpNe {
			return sq.NotEq{cond.Field: cond.Value}, nil
		}
		return sq.Eq{cond.Field: cond.Value}, nil

	case query.Comparison:
		if err := checkIdent("field", cond.Field); err != nil {
			return nil, err
		}
		switch cond.Op {
		case query.OpGt:
			return sq.Gt{cond.Field: cond.Value}, nil
		case query.OpLt:
			return sq.Lt{cond.Field: cond.Value}, nil
		case query.OpGte:
			return sq.GtOrEq{cond.Field: cond.Value}, nil
		case query.OpLte:
			return sq.LtOrEq{cond.Field: cond.Value}, nil
		}
		return nil, fmt.Errorf("unknown comparison operator %q", cond.Op)

	case query.Pattern:
		if err := checkIdent("field", cond.Field); err != nil {
			return nil, err
		}
		var like string
		switch cond.Op {
		case query.OpContains:
			like = "%" + cond.Value + "%"
		case query.OpStartsWith:
			like = cond.Value + "%"
		case query.OpEndsWith:
			like = "%" + cond.Value
		case query.OpMatches:
			return nil, fmt.Errorf("pattern operator %q is not supported by the SQL generator", cond.Op)
		default:
			return nil, fmt.Errorf("unknown pattern operator %q", cond.Op)
		}
		if cond.CaseSensitive {
			return sq.Like{cond.Field: like}, nil
		}
		return sq.ILike{cond.Field: like}, nil

	case query.Set:
		if err := checkIdent("field", cond.Field); err != nil {
			return nil, err
		}
		if len(cond.Values) == 0 {
			return nil, fmt.Errorf("%s condition on %q requires a non-empty list", cond.Op, cond.Field)
		}
		if cond.Op == query.OpNotIn {
			return sq.NotEq{cond.Field: cond.Values}, nil
		}
		return sq.Eq{cond.Field: cond.Values}, nil

	case query.Null:
		if err := checkIdent("field", cond.Field); err != nil {
			return nil, err
		}
		if cond.Op == query.OpIsNotNull {
			return sq.NotEq{cond.Field: nil}, nil
		}
		return sq.Eq{cond.Field: nil}, nil

	case query.Composite:
		children := make([]sq.Sqlizer, 0, len(cond.Conditions))
		for _, child := range cond.Conditions {
			s, err := conditionSQL(child)
			if err != nil {
				return nil, err
			}
			children = append(children, s)
		}
		switch cond.Op {
		case query.OpAnd:
			return sq.And(children), nil
		case query.OpOr:
			return sq.Or(children), nil
		case query.OpNot:
			if len(children) != 1 {
				return nil, fmt.Errorf("NOT composite requires exactly one child, got %d", len(children))
			}
			return notExpr{inner: children[0]}, nil
		}
		return nil, fmt.Errorf("unknown composite operator %q", cond.Op)
	}
	return nil, fmt.Errorf("unknown condition type %T", c)
}

func orderClause(key query.OrderKey) (string, error) {
	if err := checkIdent("order by", key.Field); err != nil {
		return "", err
	}
	dir := "ASC"
	if key.Direction == query.Desc {
		dir = "DESC"
	}
	clause := key.Field + " " + dir
	switch key.Nulls {
	case query.NullsFirst:
		clause += " NULLS FIRST"
	case query.NullsLast:
		clause += " NULLS LAST"
	}
	return clause, nil
}
