package executor

import (
	"regexp"
	"strings"

	"github.com/quarrydb/quarry/internal/query"
)

// lookupField resolves a field in a row. Dotted paths descend into nested
// maps ("properties.name"). The second return is false when the field is
// absent at any step.
func lookupField(row query.Row, field string) (any, bool) {
	if v, ok := row[field]; ok {
		return v, true
	}
	if !strings.Contains(field, ".") {
		return nil, false
	}
	var cur any = map[string]any(row)
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// toFloat widens any Go numeric type to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compareValues orders two non-null scalars. Numbers compare across Go
// numeric types, strings lexically, bools false < true. The second return
// is false for nulls and incomparable type pairs; three-valued logic
// collapses to false at the predicate boundary.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case ab == bb:
			return 0, true
		case !ab:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// equalValues reports loose equality: comparable scalars by compareValues,
// anything else by direct interface equality.
func equalValues(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return a == b
}

// compareWithOp applies a comparison operator to two values. Null or
// incomparable operands evaluate to false for every operator except =
// when both operands are null, and != on a strict mismatch of present
// values.
func compareWithOp(a any, op query.CompareOp, b any) bool {
	cmp, ok := compareValues(a, b)
	if !ok {
		switch op {
		case query.OpEq:
			return a == nil && b == nil
		case query.OpNe:
			return !(a == nil && b == nil) && a != nil && b != nil && !equalValues(a, b)
		}
		return false
	}
	switch op {
	case query.OpEq:
		return cmp == 0
	case query.OpNe:
		return cmp != 0
	case query.OpGt:
		return cmp > 0
	case query.OpLt:
		return cmp < 0
	case query.OpGte:
		return cmp >= 0
	case query.OpLte:
		return cmp <= 0
	}
	return false
}

// evalCondition evaluates one condition against a row. Composites
// short-circuit left to right.
func evalCondition(row query.Row, c query.Condition) bool {
	switch cond := c.(type) {
	case query.Equality:
		v, ok := lookupField(row, cond.Field)
		if !ok {
			v = nil
		}
		if cond.Op == query.OpEq {
			return equalValues(v, cond.Value)
		}
		return !equalValues(v, cond.Value)

	case query.Comparison:
		v, ok := lookupField(row, cond.Field)
		if !ok {
			return false
		}
		return compareWithOp(v, cond.Op, cond.Value)

	case query.Pattern:
		v, ok := lookupField(row, cond.Field)
		if !ok {
			return false
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		return matchPattern(s, cond)

	case query.Set:
		v, ok := lookupField(row, cond.Field)
		if !ok {
			v = nil
		}
		member := false
		for _, candidate := range cond.Values {
			if equalValues(v, candidate) {
				member = true
				break
			}
		}
		if cond.Op == query.OpIn {
			return member
		}
		return !member

	case query.Null:
		v, ok := lookupField(row, cond.Field)
		isNull := !ok || v == nil
		if cond.Op == query.OpIsNull {
			return isNull
		}
		return !isNull

	case query.Composite:
		switch cond.Op {
		case query.OpAnd:
			for _, child := range cond.Conditions {
				if !evalCondition(row, child) {
					return false
				}
			}
			return true
		case query.OpOr:
			for _, child := range cond.Conditions {
				if evalCondition(row, child) {
					return true
				}
			}
			return false
		case query.OpNot:
			if len(cond.Conditions) != 1 {
				return false
			}
			return !evalCondition(row, cond.Conditions[0])
		}
	}
	return false
}

func matchPattern(s string, cond query.Pattern) bool {
	value := cond.Value
	if cond.Op == query.OpMatches {
		expr := value
		if !cond.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	}
	if !cond.CaseSensitive {
		s = strings.ToLower(s)
		value = strings.ToLower(value)
	}
	switch cond.Op {
	case query.OpContains:
		return strings.Contains(s, value)
	case query.OpStartsWith:
		return strings.HasPrefix(s, value)
	case query.OpEndsWith:
		return strings.HasSuffix(s, value)
	}
	return false
}

// filterRows keeps the rows matching every top-level condition.
func filterRows(rows []query.Row, conditions []query.Condition) []query.Row {
	if len(conditions) == 0 {
		out := make([]query.Row, len(rows))
		copy(out, rows)
		return out
	}
	out := make([]query.Row, 0, len(rows))
	for _, row := range rows {
		match := true
		for _, c := range conditions {
			if !evalCondition(row, c) {
				match = false
				break
			}
		}
		if match {
			out = append(out, row)
		}
	}
	return out
}
