package graphstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/quarrydb/quarry/internal/sqlgen"
)

// SearchOptions tunes full-text search.
type SearchOptions struct {
	Limit        int    // default 10
	Column       string // document column, default "content"
	WithHeadline bool   // include a ts_headline excerpt
}

// SearchResult is one full-text hit, sorted by rank descending.
type SearchResult struct {
	Document map[string]any
	Score    float64
	Headline string
}

// Search is a thin pass-through to the back-end's full-text machinery:
// the query text is bound once and reused for matching, ranking and the
// optional headline.
func (s *Store) Search(ctx context.Context, table, queryText string, opts SearchOptions) ([]SearchResult, error) {
	if !sqlgen.ValidIdentifier(table) {
		return nil, fmt.Errorf("graphstore: invalid table %q", table)
	}
	column := opts.Column
	if column == "" {
		column = "content"
	}
	if !sqlgen.ValidIdentifier(column) || strings.Contains(column, ".") {
		return nil, fmt.Errorf("graphstore: invalid search column %q", column)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	selects := fmt.Sprintf("*, ts_rank(to_tsvector('english', %[1]s), plainto_tsquery('english', $1)) AS score", column)
	if opts.WithHeadline {
		selects += fmt.Sprintf(", ts_headline('english', %s, plainto_tsquery('english', $1)) AS headline", column)
	}
	sql := fmt.Sprintf(`SELECT %s FROM %s.%s
		WHERE to_tsvector('english', %s) @@ plainto_tsquery('english', $1)
		ORDER BY score DESC LIMIT %d`,
		selects, s.cfg.Schema, table, column, limit)

	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.Query(ctx, sql, queryText)
	if err != nil {
		return nil, fmt.Errorf("graphstore: search: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []SearchResult
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("graphstore: read search hit: %w", err)
		}
		hit := SearchResult{Document: make(map[string]any, len(fields))}
		for i, fd := range fields {
			name := string(fd.Name)
			switch name {
			case "score":
				if f, ok := toFloat64(values[i]); ok {
					hit.Score = f
				}
			case "headline":
				if h, ok := values[i].(string); ok {
					hit.Headline = h
				}
			default:
				hit.Document[name] = values[i]
			}
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graphstore: search: %w", err)
	}
	return out, nil
}

// CreateMaterializedView creates (or replaces nothing — IF NOT EXISTS) a
// materialized view over a caller-assembled SELECT. The view name is
// identifier-checked; the definition is the caller's responsibility.
func (s *Store) CreateMaterializedView(ctx context.Context, name, definition string) error {
	if !sqlgen.ValidIdentifier(name) {
		return fmt.Errorf("graphstore: invalid view name %q", name)
	}
	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	sql := fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s.%s AS %s", s.cfg.Schema, name, definition)
	if _, err := db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("graphstore: create materialized view %s: %w", name, err)
	}
	return nil
}

// RefreshMaterializedView refreshes a materialized view, concurrently
// when requested (requires a unique index on the view).
func (s *Store) RefreshMaterializedView(ctx context.Context, name string, concurrently bool) error {
	if !sqlgen.ValidIdentifier(name) {
		return fmt.Errorf("graphstore: invalid view name %q", name)
	}
	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	stmt := "REFRESH MATERIALIZED VIEW "
	if concurrently {
		stmt += "CONCURRENTLY "
	}
	stmt += s.cfg.Schema + "." + name
	if _, err := db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("graphstore: refresh materialized view %s: %w", name, err)
	}
	return nil
}
