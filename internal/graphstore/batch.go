package graphstore

import (
	"context"
	"fmt"
	"time"
)

// BatchOpKind enumerates the operations a batch may carry.
type BatchOpKind string

const (
	BatchAddNode    BatchOpKind = "addNode"
	BatchAddEdge    BatchOpKind = "addEdge"
	BatchUpdateNode BatchOpKind = "updateNode"
	BatchUpdateEdge BatchOpKind = "updateEdge"
	BatchDeleteNode BatchOpKind = "deleteNode"
	BatchDeleteEdge BatchOpKind = "deleteEdge"
)

// BatchOperation is one entry of a batch. The fields used depend on Kind:
// Node for addNode, Edge for addEdge/updateEdge, NodeID (+Properties) for
// updateNode/deleteNode, Edge.From/Edge.To for deleteEdge.
type BatchOperation struct {
	Kind       BatchOpKind
	Node       *Node
	Edge       *Edge
	NodeID     string
	Properties map[string]any
}

// BatchResult summarises a batch run.
type BatchResult struct {
	Success         bool
	Operations      int
	NodesAffected   int
	EdgesAffected   int
	ExecutionTimeMs int
	Errors          []string
}

// BatchGraphOperations executes the operations sequentially in the order
// supplied. A failing operation never aborts the rest: its message
// accumulates in Errors and Success flips to false.
func (s *Store) BatchGraphOperations(ctx context.Context, ops []BatchOperation) *BatchResult {
	start := time.Now()
	result := &BatchResult{Success: true, Operations: len(ops)}

	for i, op := range ops {
		var err error
		switch op.Kind {
		case BatchAddNode:
			if op.Node == nil {
				err = fmt.Errorf("addNode requires a node")
				break
			}
			if _, err = s.AddNode(ctx, *op.Node); err == nil {
				result.NodesAffected++
			}
		case BatchUpdateNode:
			if err = s.UpdateNode(ctx, op.NodeID, op.Properties); err == nil {
				result.NodesAffected++
			}
		case BatchDeleteNode:
			if err = s.DeleteNode(ctx, op.NodeID); err == nil {
				result.NodesAffected++
			}
		case BatchAddEdge:
			if op.Edge == nil {
				err = fmt.Errorf("addEdge requires an edge")
				break
			}
			if err = s.AddEdge(ctx, *op.Edge); err == nil {
				result.EdgesAffected++
			}
		case BatchUpdateEdge:
			if op.Edge == nil {
				err = fmt.Errorf("updateEdge requires an edge")
				break
			}
			if err = s.UpdateEdge(ctx, op.Edge.From, op.Edge.To, op.Edge.Type, op.Edge.Properties); err == nil {
				result.EdgesAffected++
			}
		case BatchDeleteEdge:
			if op.Edge == nil {
				err = fmt.Errorf("deleteEdge requires an edge")
				break
			}
			if err = s.DeleteEdge(ctx, op.Edge.From, op.Edge.To); err == nil {
				result.EdgesAffected++
			}
		default:
			err = fmt.Errorf("unknown operation kind %q", op.Kind)
		}

		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("operation %d (%s): %v", i, op.Kind, err))
		}
	}

	result.ExecutionTimeMs = int(time.Since(start).Milliseconds())
	return result
}
