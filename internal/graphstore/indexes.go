package graphstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/quarrydb/quarry/internal/sqlgen"
)

// EntityType selects nodes or edges for index operations.
type EntityType string

const (
	EntityNode EntityType = "node"
	EntityEdge EntityType = "edge"
)

func (s *Store) tableFor(entity EntityType) (qualified, bare string, err error) {
	switch entity {
	case EntityNode:
		return s.nodesTable(), s.cfg.NodesTable, nil
	case EntityEdge:
		return s.edgesTable(), s.cfg.EdgesTable, nil
	}
	return "", "", fmt.Errorf("graphstore: unknown entity type %q", entity)
}

// IndexOptions tunes CreateIndex.
type IndexOptions struct {
	Unique bool
}

// CreateIndex creates an index over a column or a JSONB property path.
// Plain columns and scalar property paths get BTREE; indexing the whole
// properties container gets GIN. The index name is deterministic:
// idx_<table>_<column>.
func (s *Store) CreateIndex(ctx context.Context, entity EntityType, property string, opts IndexOptions) (string, error) {
	qualified, bare, err := s.tableFor(entity)
	if err != nil {
		return "", err
	}

	var target, method, suffix string
	switch {
	case property == "properties":
		target = "(properties)"
		method = "GIN"
		suffix = "properties"
	case strings.HasPrefix(property, "properties."):
		path := strings.TrimPrefix(property, "properties.")
		if !sqlgen.ValidIdentifier(path) || strings.Contains(path, ".") {
			return "", fmt.Errorf("graphstore: invalid property path %q", property)
		}
		target = fmt.Sprintf("((properties->>'%s'))", path)
		method = "BTREE"
		suffix = "properties_" + path
	default:
		if !sqlgen.ValidIdentifier(property) || strings.Contains(property, ".") {
			return "", fmt.Errorf("graphstore: invalid index column %q", property)
		}
		target = fmt.Sprintf("(%s)", property)
		method = "BTREE"
		suffix = property
	}

	name := fmt.Sprintf("idx_%s_%s", bare, suffix)
	unique := ""
	if opts.Unique {
		unique = "UNIQUE "
	}
	sql := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s USING %s %s",
		unique, name, qualified, method, target)

	db, release, err := s.conn(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if _, err := db.Exec(ctx, sql); err != nil {
		return "", fmt.Errorf("graphstore: create index %s: %w", name, err)
	}
	return name, nil
}

// ListIndexes reads the system catalog for the entity's table, filtered
// by schema, and returns the index names.
func (s *Store) ListIndexes(ctx context.Context, entity EntityType) ([]string, error) {
	_, bare, err := s.tableFor(entity)
	if err != nil {
		return nil, err
	}

	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.Query(ctx,
		`SELECT indexname FROM pg_indexes WHERE schemaname = $1 AND tablename = $2 ORDER BY indexname`,
		s.cfg.Schema, bare)
	if err != nil {
		return nil, fmt.Errorf("graphstore: list indexes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("graphstore: scan index name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graphstore: list indexes: %w", err)
	}
	return names, nil
}
