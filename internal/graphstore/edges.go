package graphstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// AddEdge inserts a directed, typed edge. Both endpoints must exist.
func (s *Store) AddEdge(ctx context.Context, edge Edge) error {
	if edge.From == "" || edge.To == "" || edge.Type == "" {
		return fmt.Errorf("graphstore: edge requires from, to and type")
	}
	props, err := marshalProps(edge.Properties)
	if err != nil {
		return fmt.Errorf("graphstore: marshal edge properties: %w", err)
	}

	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	sql := fmt.Sprintf(`INSERT INTO %s (from_node, to_node, type, properties) VALUES ($1, $2, $3, $4)`, s.edgesTable())
	if _, err := db.Exec(ctx, sql, edge.From, edge.To, edge.Type, props); err != nil {
		return fmt.Errorf("graphstore: add edge %s->%s: %w", edge.From, edge.To, err)
	}
	return nil
}

// GetEdge returns the edge between two endpoints, or (nil, nil) when none
// exists. When several edge types connect the pair, the first by type
// order is returned for determinism.
func (s *Store) GetEdge(ctx context.Context, from, to string) (*Edge, error) {
	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	sql := fmt.Sprintf(`SELECT from_node, to_node, type, properties FROM %s
		WHERE from_node = $1 AND to_node = $2 ORDER BY type LIMIT 1`, s.edgesTable())
	var edge Edge
	var props []byte
	if err := db.QueryRow(ctx, sql, from, to).Scan(&edge.From, &edge.To, &edge.Type, &props); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("graphstore: get edge %s->%s: %w", from, to, err)
	}
	if err := json.Unmarshal(props, &edge.Properties); err != nil {
		return nil, fmt.Errorf("graphstore: unmarshal edge properties: %w", err)
	}
	return &edge, nil
}

// GetEdges returns every edge touching a node in either direction,
// optionally narrowed to the given edge types (bound as an array).
func (s *Store) GetEdges(ctx context.Context, nodeID string, typeFilter ...string) ([]Edge, error) {
	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	sql := fmt.Sprintf(`SELECT from_node, to_node, type, properties FROM %s
		WHERE (from_node = $1 OR to_node = $1)`, s.edgesTable())
	args := []any{nodeID}
	if len(typeFilter) > 0 {
		sql += " AND type = ANY($2)"
		args = append(args, typeFilter)
	}
	sql += " ORDER BY from_node, to_node, type"

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("graphstore: get edges for %q: %w", nodeID, err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// UpdateEdge merges the partial property bag into one edge identified by
// (from, to, type). Applying the same merge twice leaves the stored state
// unchanged after the first.
func (s *Store) UpdateEdge(ctx context.Context, from, to, edgeType string, props map[string]any) error {
	raw, err := marshalProps(props)
	if err != nil {
		return fmt.Errorf("graphstore: marshal edge properties: %w", err)
	}

	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	sql := fmt.Sprintf(`UPDATE %s SET properties = properties || $4
		WHERE from_node = $1 AND to_node = $2 AND type = $3 RETURNING from_node`, s.edgesTable())
	var updated string
	if err := db.QueryRow(ctx, sql, from, to, edgeType, raw).Scan(&updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("graphstore: edge %s->%s (%s) not found", from, to, edgeType)
		}
		return fmt.Errorf("graphstore: update edge %s->%s: %w", from, to, err)
	}
	return nil
}

// DeleteEdge removes all edges between two endpoints. Deleting a missing
// edge is not an error.
func (s *Store) DeleteEdge(ctx context.Context, from, to string) error {
	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	sql := fmt.Sprintf(`DELETE FROM %s WHERE from_node = $1 AND to_node = $2`, s.edgesTable())
	if _, err := db.Exec(ctx, sql, from, to); err != nil {
		return fmt.Errorf("graphstore: delete edge %s->%s: %w", from, to, err)
	}
	return nil
}

// PatternMatchSpec narrows a pattern match. Every field is optional.
type PatternMatchSpec struct {
	NodeType       string
	EdgeType       string
	TargetNodeType string
	FromNode       string
	Properties     map[string]any // containment match on the source node
}

// PatternMatchResult carries the matched subgraph plus timing metadata.
type PatternMatchResult struct {
	Nodes    []Node
	Edges    []Edge
	Metadata PatternMatchMetadata
}

// PatternMatchMetadata reports how much work the match did.
type PatternMatchMetadata struct {
	ExecutionTimeMs int
	NodesTraversed  int
	EdgesTraversed  int
}

// PatternMatch finds edges whose endpoints satisfy the spec, composed as
// a JOIN over the nodes and edges tables, then inflates the distinct
// endpoint nodes with the standard batch fetch (two queries total).
func (s *Store) PatternMatch(ctx context.Context, spec PatternMatchSpec) (*PatternMatchResult, error) {
	start := time.Now()

	var (
		conditions []string
		args       []any
	)
	addCondition := func(expr string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}
	if spec.NodeType != "" {
		addCondition("src.type = $%d", spec.NodeType)
	}
	if spec.EdgeType != "" {
		addCondition("e.type = $%d", spec.EdgeType)
	}
	if spec.TargetNodeType != "" {
		addCondition("dst.type = $%d", spec.TargetNodeType)
	}
	if spec.FromNode != "" {
		addCondition("e.from_node = $%d", spec.FromNode)
	}
	if len(spec.Properties) > 0 {
		raw, err := json.Marshal(spec.Properties)
		if err != nil {
			return nil, fmt.Errorf("graphstore: marshal pattern properties: %w", err)
		}
		addCondition("src.properties @> $%d", raw)
	}

	sql := fmt.Sprintf(`SELECT e.from_node, e.to_node, e.type, e.properties
		FROM %s e
		JOIN %s src ON src.id = e.from_node
		JOIN %s dst ON dst.id = e.to_node`, s.edgesTable(), s.nodesTable(), s.nodesTable())
	if len(conditions) > 0 {
		sql += " WHERE " + strings.Join(conditions, " AND ")
	}
	sql += " ORDER BY e.from_node, e.to_node, e.type"

	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("graphstore: pattern match: %w", err)
	}
	edges, err := scanEdges(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(edges)*2)
	seen := map[string]struct{}{}
	for _, e := range edges {
		for _, id := range []string{e.From, e.To} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	var nodes []Node
	if len(ids) > 0 {
		byID, err := s.fetchNodesByIDs(ctx, db, ids)
		if err != nil {
			return nil, err
		}
		nodes = make([]Node, 0, len(ids))
		for _, id := range ids {
			if n, ok := byID[id]; ok {
				nodes = append(nodes, n)
			}
		}
	}

	return &PatternMatchResult{
		Nodes: nodes,
		Edges: edges,
		Metadata: PatternMatchMetadata{
			ExecutionTimeMs: int(time.Since(start).Milliseconds()),
			NodesTraversed:  len(nodes),
			EdgesTraversed:  len(edges),
		},
	}, nil
}

func scanEdges(rows pgx.Rows) ([]Edge, error) {
	var out []Edge
	for rows.Next() {
		var edge Edge
		var props []byte
		if err := rows.Scan(&edge.From, &edge.To, &edge.Type, &props); err != nil {
			return nil, fmt.Errorf("graphstore: scan edge: %w", err)
		}
		if err := json.Unmarshal(props, &edge.Properties); err != nil {
			return nil, fmt.Errorf("graphstore: unmarshal edge properties: %w", err)
		}
		out = append(out, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graphstore: scan edges: %w", err)
	}
	return out, nil
}
