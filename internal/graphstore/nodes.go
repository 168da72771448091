package graphstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AddNode inserts a node and returns its id, generating one when the node
// arrives without.
func (s *Store) AddNode(ctx context.Context, node Node) (string, error) {
	if node.Type == "" {
		return "", fmt.Errorf("graphstore: node type is required")
	}
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	props, err := marshalProps(node.Properties)
	if err != nil {
		return "", fmt.Errorf("graphstore: marshal node properties: %w", err)
	}

	db, release, err := s.conn(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	sql := fmt.Sprintf(`INSERT INTO %s (id, type, properties) VALUES ($1, $2, $3)`, s.nodesTable())
	if _, err := db.Exec(ctx, sql, node.ID, node.Type, props); err != nil {
		return "", fmt.Errorf("graphstore: add node %q: %w", node.ID, err)
	}
	return node.ID, nil
}

// GetNode loads a node by id. It returns (nil, nil) when the node does
// not exist.
func (s *Store) GetNode(ctx context.Context, id string) (*Node, error) {
	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	sql := fmt.Sprintf(`SELECT id, type, properties FROM %s WHERE id = $1`, s.nodesTable())
	var node Node
	var props []byte
	if err := db.QueryRow(ctx, sql, id).Scan(&node.ID, &node.Type, &props); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("graphstore: get node %q: %w", id, err)
	}
	if err := json.Unmarshal(props, &node.Properties); err != nil {
		return nil, fmt.Errorf("graphstore: unmarshal node %q properties: %w", id, err)
	}
	return &node, nil
}

// UpdateNode merges the partial property bag into the node's properties
// via JSONB concatenation. It returns an error when the node is missing.
func (s *Store) UpdateNode(ctx context.Context, id string, props map[string]any) error {
	raw, err := marshalProps(props)
	if err != nil {
		return fmt.Errorf("graphstore: marshal node properties: %w", err)
	}

	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	sql := fmt.Sprintf(`UPDATE %s SET properties = properties || $2 WHERE id = $1 RETURNING id`, s.nodesTable())
	var updated string
	if err := db.QueryRow(ctx, sql, id, raw).Scan(&updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("graphstore: node %q not found", id)
		}
		return fmt.Errorf("graphstore: update node %q: %w", id, err)
	}
	return nil
}

// DeleteNode removes a node; its edges cascade per the foreign-key
// constraints. Deleting a missing node is not an error.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.nodesTable())
	if _, err := db.Exec(ctx, sql, id); err != nil {
		return fmt.Errorf("graphstore: delete node %q: %w", id, err)
	}
	return nil
}

// QueryNodes returns nodes filtered by type and/or a JSONB containment
// match on properties. Both filters are optional; with neither, every
// node is returned.
func (s *Store) QueryNodes(ctx context.Context, nodeType string, propsFilter map[string]any) ([]Node, error) {
	var (
		conditions []string
		args       []any
	)
	if nodeType != "" {
		args = append(args, nodeType)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(propsFilter) > 0 {
		raw, err := json.Marshal(propsFilter)
		if err != nil {
			return nil, fmt.Errorf("graphstore: marshal properties filter: %w", err)
		}
		args = append(args, raw)
		conditions = append(conditions, fmt.Sprintf("properties @> $%d", len(args)))
	}

	sql := fmt.Sprintf(`SELECT id, type, properties FROM %s`, s.nodesTable())
	if len(conditions) > 0 {
		sql += " WHERE " + strings.Join(conditions, " AND ")
	}
	sql += " ORDER BY id"

	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("graphstore: query nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// FindByPattern matches nodes against a pattern map. The "type" key
// matches the node type; "properties.<path>" keys compile to one JSONB
// containment document, so nested paths stay bound values.
func (s *Store) FindByPattern(ctx context.Context, pattern map[string]any) ([]Node, error) {
	var nodeType string
	contained := map[string]any{}
	for key, value := range pattern {
		switch {
		case key == "type":
			t, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("graphstore: pattern type must be a string, got %T", value)
			}
			nodeType = t
		case strings.HasPrefix(key, "properties."):
			path := strings.Split(strings.TrimPrefix(key, "properties."), ".")
			leaf := contained
			for _, part := range path[:len(path)-1] {
				next, ok := leaf[part].(map[string]any)
				if !ok {
					next = map[string]any{}
					leaf[part] = next
				}
				leaf = next
			}
			leaf[path[len(path)-1]] = value
		default:
			return nil, fmt.Errorf("graphstore: unsupported pattern key %q", key)
		}
	}
	return s.QueryNodes(ctx, nodeType, contained)
}

// fetchNodesByIDs resolves node payloads for a set of ids in a single
// query. This is the batch fetch behind every traversal: total round
// trips stay constant regardless of how many paths came back.
func (s *Store) fetchNodesByIDs(ctx context.Context, db DB, ids []string) (map[string]Node, error) {
	if len(ids) == 0 {
		return map[string]Node{}, nil
	}
	sql := fmt.Sprintf(`SELECT id, type, properties FROM %s WHERE id = ANY($1)`, s.nodesTable())
	rows, err := db.Query(ctx, sql, ids)
	if err != nil {
		return nil, fmt.Errorf("graphstore: batch fetch nodes: %w", err)
	}
	defer rows.Close()

	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n
	}
	return out, nil
}

func scanNodes(rows pgx.Rows) ([]Node, error) {
	var out []Node
	for rows.Next() {
		var node Node
		var props []byte
		if err := rows.Scan(&node.ID, &node.Type, &props); err != nil {
			return nil, fmt.Errorf("graphstore: scan node: %w", err)
		}
		if err := json.Unmarshal(props, &node.Properties); err != nil {
			return nil, fmt.Errorf("graphstore: unmarshal node properties: %w", err)
		}
		out = append(out, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graphstore: scan nodes: %w", err)
	}
	return out, nil
}
