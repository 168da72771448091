package sqlgen

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/quarrydb/quarry/internal/query"
)

// SemanticCondition is one WHERE entry of a SemanticQuery. Supported
// operators: =, !=, >, <, >=, <=, IN, LIKE.
type SemanticCondition struct {
	Field string
	Op    string
	Value any
}

// SemanticQuery is the thinner, SQL-shaped sibling of query.Query aimed at
// the SQL back-end. Translation to SQL is lossless for this subset.
type SemanticQuery struct {
	From         string
	Select       []string
	Where        []SemanticCondition
	GroupBy      []string
	Aggregations []query.Aggregation
	OrderBy      []query.OrderKey
	Limit        *int
	Offset       *int
}

// GenerateSemantic translates a SemanticQuery into (sql, args) with $N
// placeholders.
func GenerateSemantic(s SemanticQuery) (string, []any, error) {
	if s.From == "" {
		return "", nil, fmt.Errorf("semantic query requires a from table")
	}
	if err := checkIdent("table", s.From); err != nil {
		return "", nil, err
	}

	var cols []string
	for _, f := range s.Select {
		if err := checkIdent("select", f); err != nil {
			return "", nil, err
		}
		cols = append(cols, f)
	}
	for _, agg := range s.Aggregations {
		expr, err := AggregationExpr(agg)
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, expr)
	}
	if len(cols) == 0 {
		cols = []string{"*"}
	}

	builder := sq.Select(cols...).From(s.From).PlaceholderFormat(sq.Dollar)

	for _, cond := range s.Where {
		sqlizer, err := semanticConditionSQL(cond)
		if err != nil {
			return "", nil, err
		}
		builder = builder.Where(sqlizer)
	}

	if len(s.GroupBy) > 0 {
		for _, f := range s.GroupBy {
			if err := checkIdent("group by", f); err != nil {
				return "", nil, err
			}
		}
		builder = builder.GroupBy(s.GroupBy...)
	}

	for _, key := range s.OrderBy {
		clause, err := orderClause(key)
		if err != nil {
			return "", nil, err
		}
		builder = builder.OrderBy(clause)
	}

	if s.Limit != nil {
		if *s.Limit < 0 {
			return "", nil, fmt.Errorf("limit must be a non-negative integer")
		}
		builder = builder.Limit(uint64(*s.Limit))
	}
	if s.Offset != nil {
		if *s.Offset < 0 {
			return "", nil, fmt.Errorf("offset must be a non-negative integer")
		}
		builder = builder.Offset(uint64(*s.Offset))
	}

	return builder.ToSql()
}

func semanticConditionSQL(c SemanticCondition) (sq.Sqlizer, error) {
	if err := checkIdent("field", c.Field); err != nil {
		return nil, err
	}
	switch strings.ToUpper(c.Op) {
	case "=":
		return sq.Eq{c.Field: c.Value}, nil
	case "!=":
		return sq.NotEq{c.Field: c.Value}, nil
	case ">":
		return sq.Gt{c.Field: c.Value}, nil
	case "<":
		return sq.Lt{c.Field: c.Value}, nil
	case ">=":
		return sq.GtOrEq{c.Field: c.Value}, nil
	case "<=":
		return sq.LtOrEq{c.Field: c.Value}, nil
	case "IN":
		vs, ok := c.Value.([]any)
		if !ok || len(vs) == 0 {
			return nil, fmt.Errorf("IN condition on %q requires a non-empty list", c.Field)
		}
		return sq.Eq{c.Field: vs}, nil
	case "LIKE":
		s, ok := c.Value.(string)
		if !ok {
			return nil, fmt.Errorf("LIKE condition on %q requires a string value", c.Field)
		}
		return sq.Like{c.Field: s}, nil
	}
	return nil, fmt.Errorf("unsupported operator %q", c.Op)
}
