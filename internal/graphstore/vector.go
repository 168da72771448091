package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/quarrydb/quarry/internal/sqlgen"
)

// distanceOperator maps a metric to its pgvector operator.
func distanceOperator(metric DistanceMetric) (string, error) {
	switch metric {
	case MetricCosine:
		return "<=>", nil
	case MetricEuclidean:
		return "<->", nil
	case MetricInnerProduct:
		return "<#>", nil
	}
	return "", fmt.Errorf("graphstore: unknown distance metric %q", metric)
}

// distanceOpclass maps a metric to the index operator class.
func distanceOpclass(metric DistanceMetric) (string, error) {
	switch metric {
	case MetricCosine:
		return "vector_cosine_ops", nil
	case MetricEuclidean:
		return "vector_l2_ops", nil
	case MetricInnerProduct:
		return "vector_ip_ops", nil
	}
	return "", fmt.Errorf("graphstore: unknown distance metric %q", metric)
}

// vectorLiteral renders an embedding in pgvector's '[v1,v2,…]' syntax.
// Query vectors are rendered literally by design; all other values stay
// bound parameters.
func vectorLiteral(vec []float32) string {
	return pgvector.NewVector(vec).String()
}

// CreateVectorIndex creates the configured ANN index (ivfflat with lists,
// or hnsw with m/ef_construction) on a vector column, with the operator
// class matching the configured distance metric.
func (s *Store) CreateVectorIndex(ctx context.Context, table, column string) (string, error) {
	if !s.cfg.Vector.EnableIndex {
		return "", fmt.Errorf("graphstore: vector index creation is disabled")
	}
	if !sqlgen.ValidIdentifier(table) || !sqlgen.ValidIdentifier(column) || strings.Contains(column, ".") {
		return "", fmt.Errorf("graphstore: invalid vector index target %s.%s", table, column)
	}
	opclass, err := distanceOpclass(s.cfg.Vector.DistanceMetric)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("idx_%s_%s", table, column)
	var sql string
	switch s.cfg.Vector.IndexType {
	case IndexHNSW:
		sql = fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s.%s USING hnsw (%s %s) WITH (m = %d, ef_construction = %d)",
			name, s.cfg.Schema, table, column, opclass, s.cfg.Vector.HNSWM, s.cfg.Vector.HNSWEfConstruction)
	default:
		sql = fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s.%s USING ivfflat (%s %s) WITH (lists = %d)",
			name, s.cfg.Schema, table, column, opclass, s.cfg.Vector.IVFLists)
	}

	db, release, err := s.conn(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if _, err := db.Exec(ctx, sql); err != nil {
		return "", fmt.Errorf("graphstore: create vector index %s: %w", name, err)
	}
	return name, nil
}

// VectorSearchOptions tunes a similarity search.
type VectorSearchOptions struct {
	Limit          int            // default 10
	DistanceMetric DistanceMetric // default from config
	Threshold      *float64       // optional distance cutoff
	Filters        map[string]any // equality filters, bound as parameters
}

// VectorMatch is one similarity hit: the row's columns plus its distance.
type VectorMatch struct {
	Row      map[string]any
	Distance float64
}

// VectorSearch orders a table by embedding distance to the query vector.
// The query vector renders as a pgvector literal; filter values are bound
// parameters.
func (s *Store) VectorSearch(ctx context.Context, table string, queryVector []float32, opts VectorSearchOptions) ([]VectorMatch, error) {
	if !sqlgen.ValidIdentifier(table) {
		return nil, fmt.Errorf("graphstore: invalid table %q", table)
	}
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("graphstore: query vector is empty")
	}
	metric := opts.DistanceMetric
	if metric == "" {
		metric = s.cfg.Vector.DistanceMetric
	}
	op, err := distanceOperator(metric)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	literal := vectorLiteral(queryVector)
	distanceExpr := fmt.Sprintf("embedding %s '%s'", op, literal)

	var (
		conditions []string
		args       []any
	)
	filterKeys := make([]string, 0, len(opts.Filters))
	for key := range opts.Filters {
		filterKeys = append(filterKeys, key)
	}
	sort.Strings(filterKeys)
	for _, key := range filterKeys {
		if !sqlgen.ValidIdentifier(key) || strings.Contains(key, ".") {
			return nil, fmt.Errorf("graphstore: invalid filter column %q", key)
		}
		args = append(args, opts.Filters[key])
		conditions = append(conditions, fmt.Sprintf("%s = $%d", key, len(args)))
	}
	if opts.Threshold != nil {
		args = append(args, *opts.Threshold)
		conditions = append(conditions, fmt.Sprintf("%s < $%d", distanceExpr, len(args)))
	}

	sql := fmt.Sprintf("SELECT *, %s AS distance FROM %s.%s", distanceExpr, s.cfg.Schema, table)
	if len(conditions) > 0 {
		sql += " WHERE " + strings.Join(conditions, " AND ")
	}
	sql += fmt.Sprintf(" ORDER BY %s LIMIT %d", distanceExpr, limit)

	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("graphstore: vector search: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []VectorMatch
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("graphstore: read vector match: %w", err)
		}
		match := VectorMatch{Row: make(map[string]any, len(fields))}
		for i, fd := range fields {
			name := string(fd.Name)
			if name == "distance" {
				if d, ok := toFloat64(values[i]); ok {
					match.Distance = d
				}
				continue
			}
			match.Row[name] = values[i]
		}
		out = append(out, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graphstore: vector search: %w", err)
	}
	return out, nil
}

// InsertWithEmbedding inserts a row with its embedding. The embedding
// length is checked against the configured dimensions before any SQL is
// emitted; data columns are bound parameters and the embedding renders as
// a vector literal.
func (s *Store) InsertWithEmbedding(ctx context.Context, table string, data map[string]any, embedding []float32) error {
	if !sqlgen.ValidIdentifier(table) {
		return fmt.Errorf("graphstore: invalid table %q", table)
	}
	if len(embedding) != s.cfg.Vector.Dimensions {
		return fmt.Errorf("graphstore: invalid embedding dimensions: expected %d, got %d",
			s.cfg.Vector.Dimensions, len(embedding))
	}
	if len(data) == 0 {
		return fmt.Errorf("graphstore: insert requires at least one data column")
	}

	columns := make([]string, 0, len(data))
	for key := range data {
		if !sqlgen.ValidIdentifier(key) || strings.Contains(key, ".") {
			return fmt.Errorf("graphstore: invalid column %q", key)
		}
		columns = append(columns, key)
	}
	sort.Strings(columns)

	placeholders := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for i, col := range columns {
		value := data[col]
		if m, ok := value.(map[string]any); ok {
			raw, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("graphstore: marshal column %q: %w", col, err)
			}
			value = raw
		}
		args = append(args, value)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}

	sql := fmt.Sprintf("INSERT INTO %s.%s (%s, embedding) VALUES (%s, '%s')",
		s.cfg.Schema, table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		vectorLiteral(embedding))

	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("graphstore: insert with embedding into %s: %w", table, err)
	}
	return nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
