package executor

import (
	"fmt"
	"sort"

	"github.com/quarrydb/quarry/internal/query"
)

// runPipeline applies the full in-process query pipeline:
// filter → stable sort → group/aggregate/having → project → paginate.
// It returns the page of rows, the pre-pagination row count, and a
// result-envelope error (nil on success).
func runPipeline(rows []query.Row, q query.Query) ([]query.Row, int, *query.Error) {
	out := filterRows(rows, q.Conditions)
	out = sortRows(out, q.Ordering)

	if q.Grouping != nil || len(q.Aggregations) > 0 {
		grouped, qerr := groupAndAggregate(out, q)
		if qerr != nil {
			return nil, 0, qerr
		}
		out = grouped
	} else {
		out = projectRows(out, q.Projection)
	}

	total := len(out)
	out = paginate(out, q.Pagination)
	return out, total, nil
}

// sortRows stable-sorts by the multi-key ordering. Rows equal on every key
// keep their input order. Nulls are placed per key: explicit NullsFirst /
// NullsLast win; the default is last for ascending keys and first for
// descending keys. Incomparable values rank as equal.
func sortRows(rows []query.Row, keys []query.OrderKey) []query.Row {
	if len(keys) == 0 {
		return rows
	}
	out := make([]query.Row, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		for _, key := range keys {
			cmp := compareForKey(out[i], out[j], key)
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return out
}

func compareForKey(a, b query.Row, key query.OrderKey) int {
	av, aok := lookupField(a, key.Field)
	bv, bok := lookupField(b, key.Field)
	aNull := !aok || av == nil
	bNull := !bok || bv == nil

	if aNull || bNull {
		if aNull && bNull {
			return 0
		}
		nullsFirst := key.Nulls == query.NullsFirst ||
			(key.Nulls == query.NullsDefault && key.Direction == query.Desc)
		if aNull {
			if nullsFirst {
				return -1
			}
			return 1
		}
		if nullsFirst {
			return 1
		}
		return -1
	}

	cmp, ok := compareValues(av, bv)
	if !ok {
		return 0
	}
	if key.Direction == query.Desc {
		cmp = -cmp
	}
	return cmp
}

// groupAndAggregate partitions rows by the grouping tuple and emits one row
// per partition carrying the group-key fields plus one column per
// aggregation. Without grouping, all rows form a single partition and
// exactly one summary row is produced. HAVING filters the grouped rows.
func groupAndAggregate(rows []query.Row, q query.Query) ([]query.Row, *query.Error) {
	var groupFields []string
	if q.Grouping != nil {
		groupFields = q.Grouping.Fields
	}

	type partition struct {
		key  []any
		rows []query.Row
	}
	var order []string
	parts := map[string]*partition{}

	if len(groupFields) == 0 {
		parts[""] = &partition{rows: rows}
		order = []string{""}
	} else {
		for _, row := range rows {
			key := make([]any, len(groupFields))
			var sb []byte
			for i, f := range groupFields {
				v, _ := lookupField(row, f)
				key[i] = v
				sb = append(sb, []byte(fmt.Sprintf("%T\x00%v\x00", v, v))...)
			}
			k := string(sb)
			p, ok := parts[k]
			if !ok {
				p = &partition{key: key}
				parts[k] = p
				order = append(order, k)
			}
			p.rows = append(p.rows, row)
		}
	}

	out := make([]query.Row, 0, len(order))
	for _, k := range order {
		p := parts[k]
		row := query.Row{}
		for i, f := range groupFields {
			row[f] = p.key[i]
		}
		for _, agg := range q.Aggregations {
			v, qerr := aggregate(p.rows, agg)
			if qerr != nil {
				return nil, qerr
			}
			row[agg.DefaultAlias()] = v
		}
		out = append(out, row)
	}

	if q.Having != nil {
		filtered := out[:0:0]
		for _, row := range out {
			if evalHaving(row, *q.Having) {
				filtered = append(filtered, row)
			}
		}
		out = filtered
	}
	return out, nil
}

// aggregate computes one aggregation over a partition. Nulls are skipped;
// sum over an empty set is 0, avg/min/max over an empty set are null;
// sum/avg over a non-numeric value is a TYPE_MISMATCH.
func aggregate(rows []query.Row, agg query.Aggregation) (any, *query.Error) {
	switch agg.Kind {
	case query.AggCount:
		return len(rows), nil

	case query.AggCountDistinct:
		seen := map[string]struct{}{}
		for _, row := range rows {
			v, ok := lookupField(row, agg.Field)
			if !ok || v == nil {
				continue
			}
			seen[fmt.Sprintf("%T\x00%v", v, v)] = struct{}{}
		}
		return len(seen), nil

	case query.AggSum, query.AggAvg:
		var sum float64
		var n int
		for _, row := range rows {
			v, ok := lookupField(row, agg.Field)
			if !ok || v == nil {
				continue
			}
			f, ok := toFloat(v)
			if !ok {
				return nil, &query.Error{
					Code:    query.ErrTypeMismatch,
					Message: fmt.Sprintf("cannot %s non-numeric field %q (value %v)", agg.Kind, agg.Field, v),
				}
			}
			sum += f
			n++
		}
		if agg.Kind == query.AggSum {
			return sum, nil
		}
		if n == 0 {
			return nil, nil
		}
		return sum / float64(n), nil

	case query.AggMin, query.AggMax:
		var best any
		for _, row := range rows {
			v, ok := lookupField(row, agg.Field)
			if !ok || v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			cmp, ok := compareValues(v, best)
			if !ok {
				continue
			}
			if (agg.Kind == query.AggMin && cmp < 0) || (agg.Kind == query.AggMax && cmp > 0) {
				best = v
			}
		}
		return best, nil
	}
	return nil, &query.Error{
		Code:    query.ErrInvalidValue,
		Message: fmt.Sprintf("unknown aggregation kind %q", agg.Kind),
	}
}

// evalHaving applies the post-grouping predicate to one grouped row. The
// field may name a group key or an aggregation alias.
func evalHaving(row query.Row, h query.Having) bool {
	v, ok := lookupField(row, h.Field)
	if !ok {
		return false
	}
	return compareWithOp(v, h.Op, h.Value)
}

// projectRows narrows each row to the projected fields. A nil projection
// or IncludeAll returns the rows unchanged.
func projectRows(rows []query.Row, p *query.Projection) []query.Row {
	if p == nil || p.IncludeAll || len(p.Fields) == 0 {
		return rows
	}
	out := make([]query.Row, len(rows))
	for i, row := range rows {
		projected := make(query.Row, len(p.Fields))
		for _, f := range p.Fields {
			if v, ok := lookupField(row, f); ok {
				projected[f] = v
			}
		}
		out[i] = projected
	}
	return out
}

// paginate applies offset then limit. A nil pagination returns the rows
// unchanged; a zero limit with a non-zero offset only skips.
func paginate(rows []query.Row, p *query.Pagination) []query.Row {
	if p == nil {
		return rows
	}
	start := p.Offset
	if start > len(rows) {
		start = len(rows)
	}
	rows = rows[start:]
	if p.Limit > 0 && p.Limit < len(rows) {
		rows = rows[:p.Limit]
	}
	return rows
}
