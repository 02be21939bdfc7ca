// Package aggregate builds the user-facing graph view: it re-runs the
// search's Cypher against the property graph, collects the distinct nodes
// and edges, and emits the updated search result. Because the bus is
// at-least-once, aggregation dedupes by correlation id + node id.
package aggregate

import (
	"strings"
	"sync"

	"github.com/partsol/checkmate/graph"
)

// Node is one aggregated result entity.
type Node struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	EntityType      string   `json:"entityType"`
	ExternalID      string   `json:"externalId"`
	AdditionalType  []string `json:"additionalType"`
	URL             string   `json:"url"`
	PopularityScore float64  `json:"popularityScore"`
}

// Edge is one aggregated relationship.
type Edge struct {
	Relationship  string `json:"relationship"`
	SourceID      string `json:"sourceId"`
	DestinationID string `json:"destinationId"`
}

// Aggregator folds query rows into distinct nodes and edges. Dedupe state
// is keyed by correlation id + node id and survives across calls, so a
// redelivered event adds nothing.
type Aggregator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// Aggregate scans the result rows. Edge endpoints are positional: each
// relationship in a row connects the node values on either side of it, the
// shape `MATCH (n)-[r]-(p) RETURN *` produces.
func (a *Aggregator) Aggregate(correlationID string, rows *graph.Rows) ([]Node, []Edge) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seen == nil {
		a.seen = make(map[string]struct{})
	}

	var nodes []Node
	var edges []Edge
	for _, row := range rows.Values {
		for i, value := range row {
			switch v := value.(type) {
			case graph.NodeValue:
				if node, ok := a.node(correlationID, v.Properties); ok {
					nodes = append(nodes, node)
				}
			case graph.EdgeValue:
				if edge, ok := edgeAt(row, i, v); ok {
					edges = append(edges, edge)
				}
			}
		}
	}
	return nodes, edges
}

func (a *Aggregator) node(correlationID string, props map[string]interface{}) (Node, bool) {
	id := str(props["id"])
	if id == "" {
		return Node{}, false
	}
	if _, dup := a.seen[correlationID+"|"+id]; dup {
		return Node{}, false
	}
	a.seen[correlationID+"|"+id] = struct{}{}

	name := str(props["text"])
	if name == "" {
		name = str(props["name"])
	}
	if name == "" {
		name = "NO_NAME"
	}
	entityType := str(props["NodeType"])
	if entityType == "" {
		entityType = "Thing"
	}

	additional := []string{"thing"}
	if lower := strings.ToLower(entityType); lower != "thing" {
		additional = append(additional, lower)
	}

	return Node{
		ID:              id,
		Name:            name,
		EntityType:      entityType,
		ExternalID:      id,
		AdditionalType:  additional,
		URL:             str(props["url"]),
		PopularityScore: 0.1,
	}, true
}

// edgeAt resolves the relationship at position i to the nearest node
// values before and after it in the row.
func edgeAt(row []interface{}, i int, edge graph.EdgeValue) (Edge, bool) {
	var src, dst string
	for j := i - 1; j >= 0 && src == ""; j-- {
		if n, ok := row[j].(graph.NodeValue); ok {
			src = str(n.Properties["id"])
		}
	}
	for j := i + 1; j < len(row) && dst == ""; j++ {
		if n, ok := row[j].(graph.NodeValue); ok {
			dst = str(n.Properties["id"])
		}
	}
	if src == "" || dst == "" {
		return Edge{}, false
	}
	return Edge{Relationship: edge.Relation, SourceID: src, DestinationID: dst}, true
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
