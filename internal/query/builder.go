package query

import "fmt"

// Builder assembles Query values fluently. Every mutator returns a new
// Builder; the receiver is never modified, so intermediate builders can be
// reused and built queries are safe against later chaining. Slices are
// shared structurally: a mutator copies only the slice it appends to.
//
// Invalid input (negative limit, unknown depth, empty IN list, malformed
// composite) is recorded on the returned builder and reported by Build;
// the first recorded error wins.
type Builder struct {
	q   Query
	err error
}

// NewBuilder returns an empty query builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) clone() *Builder {
	nb := *b
	return &nb
}

func (b *Builder) fail(format string, args ...any) *Builder {
	if b.err != nil {
		return b
	}
	nb := b.clone()
	nb.err = fmt.Errorf(format, args...)
	return nb
}

// appendCondition adds one condition, copying the conditions slice so prior
// builders keep their view.
func (b *Builder) appendCondition(c Condition) *Builder {
	nb := b.clone()
	nb.q.Conditions = appendCopy(b.q.Conditions, c)
	return nb
}

// appendCopy appends v to a fresh copy of s, leaving s untouched even when
// it has spare capacity.
func appendCopy[T any](s []T, v ...T) []T {
	out := make([]T, len(s), len(s)+len(v))
	copy(out, s)
	return append(out, v...)
}

// conditionFor maps a generic operator string to a concrete condition shape.
func conditionFor(field, op string, value any) (Condition, error) {
	switch op {
	case "=", "!=":
		return Equality{Field: field, Op: CompareOp(op), Value: value}, nil
	case ">", "<", ">=", "<=":
		return Comparison{Field: field, Op: CompareOp(op), Value: value}, nil
	case "contains", "startsWith", "endsWith", "matches":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("pattern condition on %q requires a string value, got %T", field, value)
		}
		return Pattern{Field: field, Op: PatternOp(op), Value: s, CaseSensitive: true}, nil
	case "in", "not_in":
		vs, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%s condition on %q requires a list value, got %T", op, field, value)
		}
		if len(vs) == 0 {
			return nil, fmt.Errorf("%s condition on %q requires a non-empty list", op, field)
		}
		return Set{Field: field, Op: SetOp(op), Values: vs}, nil
	case "is_null", "is_not_null":
		return Null{Field: field, Op: NullOp(op)}, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

// Where adds one predicate. The operator selects the condition shape:
// =, !=, >, <, >=, <=, contains, startsWith, endsWith, matches, in,
// not_in, is_null, is_not_null.
func (b *Builder) Where(field, op string, value any) *Builder {
	c, err := conditionFor(field, op, value)
	if err != nil {
		return b.fail("%v", err)
	}
	return b.appendCondition(c)
}

// AndWhere is an alias of Where.
func (b *Builder) AndWhere(field, op string, value any) *Builder {
	return b.Where(field, op, value)
}

// WhereEqual adds an equality predicate.
func (b *Builder) WhereEqual(field string, value any) *Builder {
	return b.appendCondition(Equality{Field: field, Op: OpEq, Value: value})
}

// WhereNotEqual adds an inequality predicate.
func (b *Builder) WhereNotEqual(field string, value any) *Builder {
	return b.appendCondition(Equality{Field: field, Op: OpNe, Value: value})
}

// WhereComparison adds an ordered comparison; op must be one of >, <, >=, <=.
func (b *Builder) WhereComparison(field string, op CompareOp, value any) *Builder {
	switch op {
	case OpGt, OpLt, OpGte, OpLte:
		return b.appendCondition(Comparison{Field: field, Op: op, Value: value})
	}
	return b.fail("comparison condition on %q requires one of >, <, >=, <=; got %q", field, op)
}

// WhereIn adds a membership predicate. The list must be non-empty.
func (b *Builder) WhereIn(field string, values ...any) *Builder {
	if len(values) == 0 {
		return b.fail("in condition on %q requires a non-empty list", field)
	}
	return b.appendCondition(Set{Field: field, Op: OpIn, Values: values})
}

// WhereNotIn adds an exclusion predicate. The list must be non-empty.
func (b *Builder) WhereNotIn(field string, values ...any) *Builder {
	if len(values) == 0 {
		return b.fail("not_in condition on %q requires a non-empty list", field)
	}
	return b.appendCondition(Set{Field: field, Op: OpNotIn, Values: values})
}

// WhereNull matches rows where the field is missing or explicitly null.
func (b *Builder) WhereNull(field string) *Builder {
	return b.appendCondition(Null{Field: field, Op: OpIsNull})
}

// WhereNotNull matches rows where the field is present and non-null.
func (b *Builder) WhereNotNull(field string) *Builder {
	return b.appendCondition(Null{Field: field, Op: OpIsNotNull})
}

// WhereContains adds a case-sensitive substring predicate.
func (b *Builder) WhereContains(field, substring string) *Builder {
	return b.appendCondition(Pattern{Field: field, Op: OpContains, Value: substring, CaseSensitive: true})
}

// WherePattern adds a pattern predicate with explicit case sensitivity.
func (b *Builder) WherePattern(field string, op PatternOp, value string, caseSensitive bool) *Builder {
	switch op {
	case OpContains, OpStartsWith, OpEndsWith, OpMatches:
		return b.appendCondition(Pattern{Field: field, Op: op, Value: value, CaseSensitive: caseSensitive})
	}
	return b.fail("pattern condition on %q requires one of contains, startsWith, endsWith, matches; got %q", field, op)
}

// childOf collapses a sub-builder into a single condition: its lone
// condition directly, or an and-composite when it holds several.
func childOf(sub *Builder) (Condition, error) {
	if sub == nil {
		return nil, fmt.Errorf("nil sub-builder")
	}
	if sub.err != nil {
		return nil, sub.err
	}
	switch len(sub.q.Conditions) {
	case 0:
		return nil, fmt.Errorf("sub-builder has no conditions")
	case 1:
		return sub.q.Conditions[0], nil
	}
	return Composite{Op: OpAnd, Conditions: sub.q.Conditions}, nil
}

// And combines the conditions of each sub-builder into one and-composite.
func (b *Builder) And(subs ...*Builder) *Builder {
	if len(subs) == 0 {
		return b.fail("AND condition requires at least one sub-condition")
	}
	children := make([]Condition, 0, len(subs))
	for _, sub := range subs {
		c, err := childOf(sub)
		if err != nil {
			return b.fail("AND condition: %v", err)
		}
		children = append(children, c)
	}
	return b.appendCondition(Composite{Op: OpAnd, Conditions: children})
}

// Or combines the conditions of each sub-builder into one or-composite.
// At least two sub-builders are required.
func (b *Builder) Or(subs ...*Builder) *Builder {
	switch len(subs) {
	case 0:
		return b.fail("OR condition requires at least one sub-condition")
	case 1:
		return b.fail("OR condition requires at least two sub-conditions")
	}
	children := make([]Condition, 0, len(subs))
	for _, sub := range subs {
		c, err := childOf(sub)
		if err != nil {
			return b.fail("OR condition: %v", err)
		}
		children = append(children, c)
	}
	return b.appendCondition(Composite{Op: OpOr, Conditions: children})
}

// Not negates exactly one sub-builder's conjunction.
func (b *Builder) Not(sub *Builder) *Builder {
	c, err := childOf(sub)
	if err != nil {
		return b.fail("NOT condition: %v", err)
	}
	return b.appendCondition(Composite{Op: OpNot, Conditions: []Condition{c}})
}

// OrWhere disjoins a new predicate with everything added so far. The prior
// top-level conjunction becomes the left side of an or-composite (wrapped
// as an and-composite when it held several conditions) and the new
// predicate the right side; further OrWhere calls append into that same
// or-composite.
func (b *Builder) OrWhere(field, op string, value any) *Builder {
	c, err := conditionFor(field, op, value)
	if err != nil {
		return b.fail("%v", err)
	}
	if len(b.q.Conditions) == 0 {
		return b.appendCondition(c)
	}

	nb := b.clone()
	if len(b.q.Conditions) == 1 {
		if or, ok := b.q.Conditions[0].(Composite); ok && or.Op == OpOr {
			nb.q.Conditions = []Condition{Composite{Op: OpOr, Conditions: appendCopy(or.Conditions, c)}}
			return nb
		}
	}

	var left Condition
	if len(b.q.Conditions) == 1 {
		left = b.q.Conditions[0]
	} else {
		left = Composite{Op: OpAnd, Conditions: b.q.Conditions}
	}
	nb.q.Conditions = []Condition{Composite{Op: OpOr, Conditions: []Condition{left, c}}}
	return nb
}

// OrderBy appends a sort key.
func (b *Builder) OrderBy(field string, direction SortDirection, nulls ...NullOrder) *Builder {
	if direction != Asc && direction != Desc {
		return b.fail("order direction must be asc or desc; got %q", direction)
	}
	key := OrderKey{Field: field, Direction: direction}
	if len(nulls) > 0 {
		key.Nulls = nulls[0]
	}
	nb := b.clone()
	nb.q.Ordering = appendCopy(b.q.Ordering, key)
	return nb
}

// OrderByAsc appends an ascending sort key.
func (b *Builder) OrderByAsc(field string) *Builder {
	return b.OrderBy(field, Asc)
}

// OrderByDesc appends a descending sort key.
func (b *Builder) OrderByDesc(field string) *Builder {
	return b.OrderBy(field, Desc)
}

// Limit caps the result size. n must be a non-negative integer.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		return b.fail("limit must be a non-negative integer")
	}
	nb := b.clone()
	p := Pagination{Limit: n}
	if b.q.Pagination != nil {
		p = *b.q.Pagination
		p.Limit = n
	}
	nb.q.Pagination = &p
	return nb
}

// Offset skips the first n rows. n must be a non-negative integer.
func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		return b.fail("offset must be a non-negative integer")
	}
	nb := b.clone()
	p := Pagination{Offset: n}
	if b.q.Pagination != nil {
		p = *b.q.Pagination
		p.Offset = n
	}
	nb.q.Pagination = &p
	return nb
}

// Select projects the named fields. Without a Select the full row is
// returned.
func (b *Builder) Select(fields ...string) *Builder {
	nb := b.clone()
	nb.q.Projection = &Projection{Fields: appendCopy([]string(nil), fields...)}
	return nb
}

// SelectAll projects every field explicitly.
func (b *Builder) SelectAll() *Builder {
	nb := b.clone()
	nb.q.Projection = &Projection{IncludeAll: true}
	return nb
}

// GroupBy partitions rows by the named fields.
func (b *Builder) GroupBy(fields ...string) *Builder {
	if len(fields) == 0 {
		return b.fail("group by requires at least one field")
	}
	nb := b.clone()
	nb.q.Grouping = &Grouping{Fields: appendCopy([]string(nil), fields...)}
	return nb
}

func (b *Builder) aggregate(kind AggregateKind, field string, alias []string) *Builder {
	a := Aggregation{Kind: kind, Field: field}
	if len(alias) > 0 {
		a.Alias = alias[0]
	} else {
		a.Alias = a.DefaultAlias()
	}
	nb := b.clone()
	nb.q.Aggregations = appendCopy(b.q.Aggregations, a)
	return nb
}

// Count counts the rows of each group.
func (b *Builder) Count(alias ...string) *Builder {
	return b.aggregate(AggCount, "", alias)
}

// CountDistinct counts distinct non-null values of field per group.
func (b *Builder) CountDistinct(field string, alias ...string) *Builder {
	return b.aggregate(AggCountDistinct, field, alias)
}

// Sum totals the non-null values of field per group.
func (b *Builder) Sum(field string, alias ...string) *Builder {
	return b.aggregate(AggSum, field, alias)
}

// Avg averages the non-null values of field per group.
func (b *Builder) Avg(field string, alias ...string) *Builder {
	return b.aggregate(AggAvg, field, alias)
}

// Min takes the smallest non-null value of field per group.
func (b *Builder) Min(field string, alias ...string) *Builder {
	return b.aggregate(AggMin, field, alias)
}

// Max takes the largest non-null value of field per group.
func (b *Builder) Max(field string, alias ...string) *Builder {
	return b.aggregate(AggMax, field, alias)
}

// Having filters grouped rows by a group-key field or aggregation alias.
func (b *Builder) Having(field string, op CompareOp, value any) *Builder {
	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpGte, OpLte:
	default:
		return b.fail("having requires one of =, !=, >, <, >=, <=; got %q", op)
	}
	nb := b.clone()
	nb.q.Having = &Having{Field: field, Op: op, Value: value}
	return nb
}

// WithDepth sets the context depth and its derived performance hints. Any
// value outside the five defined levels fails the build.
func (b *Builder) WithDepth(d ContextDepth) *Builder {
	if !d.Valid() {
		return b.fail("Invalid depth value: %d", int(d))
	}
	nb := b.clone()
	nb.q.Depth = d
	nb.q.Hints = HintsForDepth(d)
	return nb
}

// Build returns the assembled query, or the first validation error recorded
// along the chain. Building the same chain twice yields equal queries.
func (b *Builder) Build() (Query, error) {
	if b.err != nil {
		return Query{}, b.err
	}
	return b.q, nil
}

// MustBuild is Build for chains known valid at compile time; it panics on a
// recorded validation error.
func (b *Builder) MustBuild() Query {
	q, err := b.Build()
	if err != nil {
		panic(err)
	}
	return q
}
