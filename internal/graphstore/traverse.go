package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Direction selects which edges a traversal follows.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

const (
	// AbsoluteMaxDepth is the hard cap on recursive graph operations,
	// enforced before any SQL is composed.
	AbsoluteMaxDepth = 50
	// DefaultTraverseDepth applies when no depth is given.
	DefaultTraverseDepth = 3
)

// validateDirection rejects anything outside the closed direction set
// before SQL assembly. The keyword is the only direction text that ever
// reaches the query.
func validateDirection(d Direction) error {
	switch d {
	case DirectionOutgoing, DirectionIncoming, DirectionBoth:
		return nil
	}
	return fmt.Errorf("Invalid direction: %v", string(d))
}

// validateDepth bounds a traversal depth into [0, AbsoluteMaxDepth]. The
// validated integer is the only depth text composed into SQL.
func validateDepth(d int) error {
	if d < 0 || d > AbsoluteMaxDepth {
		return fmt.Errorf("maxDepth must be an integer between 0 and %d, got %d", AbsoluteMaxDepth, d)
	}
	return nil
}

// TraverseOptions parameterizes a bounded traversal.
type TraverseOptions struct {
	StartNode string
	Direction Direction // empty means both
	MaxDepth  *int      // nil means DefaultTraverseDepth
	EdgeTypes []string  // bound as an array parameter when present
}

// TraversalPath is one path discovered by a traversal: the nodes in
// traversal order and the edges connecting them.
type TraversalPath struct {
	Nodes []Node
	Edges []Edge
	Depth int
}

// TraversalMetadata reports the work a traversal did.
type TraversalMetadata struct {
	ExecutionTimeMs int
	NodesTraversed  int
	EdgesTraversed  int
	QueriesIssued   int
}

// TraversalResult carries every discovered path.
type TraversalResult struct {
	Paths    []TraversalPath
	Metadata TraversalMetadata
}

// edgeRecord mirrors the jsonb objects accumulated along a CTE path.
type edgeRecord struct {
	From       string         `json:"from"`
	To         string         `json:"to"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// pathRow is one row returned by a traversal CTE.
type pathRow struct {
	nodeID string
	depth  int
	nodes  []string
	edges  []edgeRecord
}

// traversalCTE composes the recursive CTE for a validated direction and
// depth. The recursive step walks one edge per iteration, carries depth
// as an integer column, guards cycles with the accumulated node array,
// and terminates at depth < maxDepth. startNode is always $1; edge types,
// when present, are bound as $2.
func (s *Store) traversalCTE(direction Direction, maxDepth int, withEdgeTypes bool) string {
	var joinCond, nextNode string
	switch direction {
	case DirectionOutgoing:
		joinCond = "e.from_node = t.node_id"
		nextNode = "e.to_node"
	case DirectionIncoming:
		joinCond = "e.to_node = t.node_id"
		nextNode = "e.from_node"
	default: // both
		joinCond = "(e.from_node = t.node_id OR e.to_node = t.node_id)"
		nextNode = "CASE WHEN e.from_node = t.node_id THEN e.to_node ELSE e.from_node END"
	}

	typeFilter := ""
	if withEdgeTypes {
		typeFilter = " AND e.type = ANY($2)"
	}

	return fmt.Sprintf(`WITH RECURSIVE traversal(node_id, depth, path_nodes, path_edges) AS (
    SELECT $1::text, 0, ARRAY[$1::text], '[]'::jsonb
    UNION ALL
    SELECT %[1]s, t.depth + 1, t.path_nodes || %[1]s,
           t.path_edges || jsonb_build_object(
               'from', e.from_node, 'to', e.to_node,
               'type', e.type, 'properties', e.properties)
    FROM %[2]s e
    JOIN traversal t ON %[3]s
    WHERE t.depth < %[4]d AND NOT %[1]s = ANY(t.path_nodes)%[5]s
)`, nextNode, s.edgesTable(), joinCond, maxDepth, typeFilter)
}

// Traverse walks the graph from a start node, bounded by direction and
// depth, and returns one entry per discovered path.
//
// Exactly two queries run regardless of how many paths come back: the
// recursive CTE, then a single batched node fetch over the deduplicated
// union of all path node ids (one query when the CTE finds nothing).
func (s *Store) Traverse(ctx context.Context, opts TraverseOptions) (*TraversalResult, error) {
	if opts.StartNode == "" {
		return nil, fmt.Errorf("graphstore: traverse requires a start node")
	}
	direction := opts.Direction
	if direction == "" {
		direction = DirectionBoth
	}
	if err := validateDirection(direction); err != nil {
		return nil, err
	}
	maxDepth := DefaultTraverseDepth
	if opts.MaxDepth != nil {
		maxDepth = *opts.MaxDepth
	}
	if err := validateDepth(maxDepth); err != nil {
		return nil, err
	}

	start := time.Now()
	sql := s.traversalCTE(direction, maxDepth, len(opts.EdgeTypes) > 0) +
		"\nSELECT node_id, depth, path_nodes, path_edges FROM traversal WHERE depth > 0 ORDER BY depth, node_id"
	args := []any{opts.StartNode}
	if len(opts.EdgeTypes) > 0 {
		args = append(args, opts.EdgeTypes)
	}

	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	paths, err := s.queryPaths(ctx, db, sql, args)
	if err != nil {
		return nil, err
	}

	result := &TraversalResult{
		Paths: []TraversalPath{},
		Metadata: TraversalMetadata{
			QueriesIssued: 1,
		},
	}
	if len(paths) == 0 {
		result.Metadata.ExecutionTimeMs = int(time.Since(start).Milliseconds())
		return result, nil
	}

	nodesByID, ids, err := s.resolvePathNodes(ctx, db, paths)
	if err != nil {
		return nil, err
	}
	result.Metadata.QueriesIssued = 2

	edgeCount := 0
	for _, row := range paths {
		path := inflatePath(row, nodesByID)
		edgeCount += len(path.Edges)
		result.Paths = append(result.Paths, path)
	}
	result.Metadata.NodesTraversed = len(ids)
	result.Metadata.EdgesTraversed = edgeCount
	result.Metadata.ExecutionTimeMs = int(time.Since(start).Milliseconds())
	return result, nil
}

// ShortestPath returns a minimum-depth path between two nodes following
// outgoing edges, or nil when the target is unreachable. Both endpoints
// travel as bound parameters; one CTE query plus one batched node fetch.
func (s *Store) ShortestPath(ctx context.Context, from, to string, edgeTypes ...string) (*TraversalPath, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("graphstore: shortest path requires both endpoints")
	}

	withTypes := len(edgeTypes) > 0
	cte := s.shortestPathCTE(withTypes)
	args := []any{from}
	if withTypes {
		args = append(args, edgeTypes)
	}
	args = append(args, to)
	sql := cte + fmt.Sprintf("\nSELECT node_id, depth, path_nodes, path_edges FROM traversal WHERE node_id = $%d ORDER BY depth LIMIT 1", len(args))

	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	paths, err := s.queryPaths(ctx, db, sql, args)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}

	nodesByID, _, err := s.resolvePathNodes(ctx, db, paths)
	if err != nil {
		return nil, err
	}
	path := inflatePath(paths[0], nodesByID)
	return &path, nil
}

// shortestPathCTE is the outgoing-direction CTE bounded by the absolute
// depth cap; the minimum-depth row for the target is selected on top.
func (s *Store) shortestPathCTE(withEdgeTypes bool) string {
	return s.traversalCTE(DirectionOutgoing, AbsoluteMaxDepth, withEdgeTypes)
}

// FindConnected returns the distinct nodes reachable from a node in
// either direction within maxDepth, excluding the start node itself.
// Same validation and two-query shape as Traverse.
func (s *Store) FindConnected(ctx context.Context, nodeID string, maxDepth ...int) ([]Node, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("graphstore: find connected requires a node id")
	}
	depth := DefaultTraverseDepth
	if len(maxDepth) > 0 {
		depth = maxDepth[0]
	}
	if err := validateDepth(depth); err != nil {
		return nil, err
	}

	sql := s.traversalCTE(DirectionBoth, depth, false) +
		"\nSELECT DISTINCT node_id FROM traversal WHERE depth > 0 ORDER BY node_id"

	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.Query(ctx, sql, nodeID)
	if err != nil {
		return nil, fmt.Errorf("graphstore: find connected: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("graphstore: scan connected id: %w", err)
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("graphstore: find connected: %w", err)
	}
	if len(ids) == 0 {
		return []Node{}, nil
	}

	byID, err := s.fetchNodesByIDs(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// queryPaths runs a traversal query and decodes its rows.
func (s *Store) queryPaths(ctx context.Context, db DB, sql string, args []any) ([]pathRow, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("graphstore: traverse: %w", err)
	}
	defer rows.Close()
	return scanPathRows(rows)
}

func scanPathRows(rows pgx.Rows) ([]pathRow, error) {
	var out []pathRow
	for rows.Next() {
		var row pathRow
		var rawEdges []byte
		if err := rows.Scan(&row.nodeID, &row.depth, &row.nodes, &rawEdges); err != nil {
			return nil, fmt.Errorf("graphstore: scan path: %w", err)
		}
		if err := json.Unmarshal(rawEdges, &row.edges); err != nil {
			return nil, fmt.Errorf("graphstore: unmarshal path edges: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graphstore: scan paths: %w", err)
	}
	return out, nil
}

// resolvePathNodes batch-fetches the payloads for the deduplicated union
// of node ids across all paths.
func (s *Store) resolvePathNodes(ctx context.Context, db DB, paths []pathRow) (map[string]Node, []string, error) {
	seen := map[string]struct{}{}
	var ids []string
	for _, row := range paths {
		for _, id := range row.nodes {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	byID, err := s.fetchNodesByIDs(ctx, db, ids)
	if err != nil {
		return nil, nil, err
	}
	return byID, ids, nil
}

// inflatePath pairs a CTE row with batch-fetched node payloads.
func inflatePath(row pathRow, nodesByID map[string]Node) TraversalPath {
	path := TraversalPath{Depth: row.depth}
	for _, id := range row.nodes {
		if n, ok := nodesByID[id]; ok {
			path.Nodes = append(path.Nodes, n)
		} else {
			path.Nodes = append(path.Nodes, Node{ID: id})
		}
	}
	for _, e := range row.edges {
		path.Edges = append(path.Edges, Edge{From: e.From, To: e.To, Type: e.Type, Properties: e.Properties})
	}
	return path
}
