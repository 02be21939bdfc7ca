// Package taxonomy defines the immutable typed multi-graph that shapes a
// knowledge-graph search: nodes with canonical type tags and attribute bags,
// id-indirected relationships with multiplicity constraints, and the node
// and relationship constraints layered on top of them.
//
// Taxonomies are loaded from serialized artifacts at process start and never
// mutated afterwards. A Search narrows a taxonomy by layering additional
// constraints beside it; it never writes through to the loaded artifact.
package taxonomy

import (
	"fmt"
)

// Taxonomy is an immutable typed multi-graph with a designated start node.
type Taxonomy struct {
	Name                    string                   `yaml:"name" json:"name"`
	ID                      string                   `yaml:"id" json:"id"`
	StartID                 string                   `yaml:"startId" json:"startId"`
	Nodes                   []Node                   `yaml:"nodes" json:"nodes"`
	Relationships           []Relationship           `yaml:"relationships" json:"relationships"`
	NodeConstraints         []NodeConstraint         `yaml:"nodeConstraints,omitempty" json:"nodeConstraints,omitempty"`
	RelationshipConstraints []RelationshipConstraint `yaml:"relationshipConstraints,omitempty" json:"relationshipConstraints,omitempty"`
}

// Validate enforces the structural invariants: every relationship endpoint
// and every constraint target resolves inside the node/relationship
// sequences, and the start id names a member node.
func (t *Taxonomy) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("taxonomy name is required")
	}
	nodes := make(map[string]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.ID == "" {
			return fmt.Errorf("taxonomy %s: node with empty id", t.Name)
		}
		if !n.Type.Valid() {
			return fmt.Errorf("taxonomy %s: node %s has unknown type %q", t.Name, n.ID, n.Type)
		}
		if nodes[n.ID] {
			return fmt.Errorf("taxonomy %s: duplicate node id %s", t.Name, n.ID)
		}
		nodes[n.ID] = true
	}
	if !nodes[t.StartID] {
		return fmt.Errorf("taxonomy %s: start id %s does not resolve to a member node", t.Name, t.StartID)
	}
	rels := make(map[string]bool, len(t.Relationships))
	for _, r := range t.Relationships {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("taxonomy %s: %w", t.Name, err)
		}
		if !nodes[r.SourceID] {
			return fmt.Errorf("taxonomy %s: relationship %s source %s does not resolve", t.Name, r.ID, r.SourceID)
		}
		if !nodes[r.TargetID] {
			return fmt.Errorf("taxonomy %s: relationship %s target %s does not resolve", t.Name, r.ID, r.TargetID)
		}
		rels[r.ID] = true
	}
	for _, c := range t.NodeConstraints {
		if !nodes[c.AffectedNodeID] {
			return fmt.Errorf("taxonomy %s: node constraint targets unknown node %s", t.Name, c.AffectedNodeID)
		}
	}
	for _, c := range t.RelationshipConstraints {
		if !rels[c.AffectedRelationshipID] {
			return fmt.Errorf("taxonomy %s: relationship constraint targets unknown relationship %s", t.Name, c.AffectedRelationshipID)
		}
	}
	return nil
}

// NodeByID returns the node with the given id.
func (t *Taxonomy) NodeByID(id string) (Node, bool) {
	for _, n := range t.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// StartNode returns the designated start node.
func (t *Taxonomy) StartNode() (Node, bool) {
	return t.NodeByID(t.StartID)
}

// NodeByType returns the first node carrying the given type tag, in node
// sequence order. Used by the advanced parser to locate well-known nodes
// such as Email.
func (t *Taxonomy) NodeByType(nodeType NodeType) (Node, bool) {
	for _, n := range t.Nodes {
		if n.Type == nodeType {
			return n, true
		}
	}
	return Node{}, false
}

// RelationshipBetween returns the relationship from sourceID to targetID.
// On a multi-graph the first match in sequence order wins, matching the
// planner's (sourceId, targetId) index.
func (t *Taxonomy) RelationshipBetween(sourceID, targetID string) (Relationship, bool) {
	for _, r := range t.Relationships {
		if r.SourceID == sourceID && r.TargetID == targetID {
			return r, true
		}
	}
	return Relationship{}, false
}

// Neighbors returns the ids of nodes reachable over one outgoing edge from
// nodeID, in relationship sequence order without duplicates.
func (t *Taxonomy) Neighbors(nodeID string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range t.Relationships {
		if r.SourceID == nodeID && !seen[r.TargetID] {
			seen[r.TargetID] = true
			out = append(out, r.TargetID)
		}
	}
	return out
}
