package graphstore

import (
	"context"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// SubgraphNode pairs an entity with the relationship that reached it
// during traversal (nil for the root).
type SubgraphNode struct {
	Entity        graphmodel.EntityRef
	ViaRelationship *graphmodel.RelationshipRef
}

// GetSubgraph performs a breadth-first traversal from root up to depth
// hops, bounded by cap nodes, matching the source's TraversePath style
// of tracking provenance via a cameFrom map rather than storing full
// paths.
func (s *Store) GetSubgraph(ctx context.Context, rootID string, depth int, cap int) ([]SubgraphNode, error) {
	if cap <= 0 {
		cap = 10000
	}
	visited := map[string]bool{rootID: true}
	cameFrom := map[string]string{} // entityID -> relationship ID that reached it
	order := []string{rootID}
	frontier := []string{rootID}

	for d := 0; d < depth && len(order) < cap; d++ {
		var next []string
		for _, id := range frontier {
			rels, err := s.GetRelationshipsFor(ctx, id, "")
			if err != nil {
				return nil, err
			}
			for _, r := range rels {
				neighbor := r.ToID
				if neighbor == id {
					neighbor = r.FromID
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				cameFrom[neighbor] = r.ID
				order = append(order, neighbor)
				next = append(next, neighbor)
				if len(order) >= cap {
					break
				}
			}
			if len(order) >= cap {
				break
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	out := make([]SubgraphNode, 0, len(order))
	for _, id := range order {
		e, err := s.GetEntity(ctx, id)
		if err != nil {
			continue
		}
		node := SubgraphNode{Entity: graphmodel.EntityRef{ID: e.ID, Name: e.Name, Type: e.Type}}
		if relID, ok := cameFrom[id]; ok {
			rid := relID
			node.ViaRelationship = &graphmodel.RelationshipRef{ID: rid}
		}
		out = append(out, node)
	}
	return out, nil
}
