// Package search turns a taxonomy plus user constraints into the family of
// per-data-source expansion queries and the Cypher view of the taxonomy.
package search

import (
	"github.com/partsol/checkmate/taxonomy"
)

// Search layers user constraints over a loaded taxonomy. The taxonomy is
// never mutated: a search can narrow the result set, never broaden it.
type Search struct {
	ID         string
	TaxonomyID string

	nodeConstraints         []taxonomy.NodeConstraint
	relationshipConstraints []taxonomy.RelationshipConstraint
}

// New creates a search over the taxonomy.
func New(searchID, taxonomyID string) *Search {
	if searchID == "" {
		searchID = taxonomy.NewID("")
	}
	return &Search{ID: searchID, TaxonomyID: taxonomyID}
}

// AddConstraint appends a node constraint to the search's own layer.
func (s *Search) AddConstraint(c taxonomy.NodeConstraint) {
	s.nodeConstraints = append(s.nodeConstraints, c)
}

// AddRelationshipConstraint appends a relationship constraint.
func (s *Search) AddRelationshipConstraint(c taxonomy.RelationshipConstraint) {
	s.relationshipConstraints = append(s.relationshipConstraints, c)
}

// NodeConstraints returns the taxonomy's constraints followed by the
// search's own, in insertion order.
func (s *Search) NodeConstraints(tax *taxonomy.Taxonomy) []taxonomy.NodeConstraint {
	out := make([]taxonomy.NodeConstraint, 0, len(tax.NodeConstraints)+len(s.nodeConstraints))
	out = append(out, tax.NodeConstraints...)
	out = append(out, s.nodeConstraints...)
	return out
}

// RelationshipConstraints returns taxonomy constraints followed by the
// search's own.
func (s *Search) RelationshipConstraints(tax *taxonomy.Taxonomy) []taxonomy.RelationshipConstraint {
	out := make([]taxonomy.RelationshipConstraint, 0,
		len(tax.RelationshipConstraints)+len(s.relationshipConstraints))
	out = append(out, tax.RelationshipConstraints...)
	out = append(out, s.relationshipConstraints...)
	return out
}
