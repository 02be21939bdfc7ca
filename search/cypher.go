package search

import (
	"fmt"
	"strings"

	"github.com/partsol/checkmate/pipeerr"
	"github.com/partsol/checkmate/taxonomy"
)

// CypherQuery is the three-clause graph view of a constrained taxonomy:
// required dyads, optional dyads, and the constraint predicate.
type CypherQuery struct {
	Match         []string
	OptionalMatch []string
	Where         []string
}

// String renders the query as
// MATCH … OPTIONAL MATCH … WHERE 1=1 AND … RETURN DISTINCT *.
// Empty clause bodies keep their keyword so the shape is stable.
func (q CypherQuery) String() string {
	where := append([]string{"1=1"}, q.Where...)
	parts := []string{
		strings.TrimSpace("MATCH " + strings.Join(q.Match, ",")),
		strings.TrimSpace("OPTIONAL MATCH " + strings.Join(q.OptionalMatch, ",")),
		"WHERE " + strings.Join(where, " AND ") + " RETURN DISTINCT *",
	}
	return strings.Join(parts, " ")
}

// EscapeValue doubles single quotes so a constraint value cannot terminate
// its string literal. Callers that control the store API should still bind
// values as parameters.
func EscapeValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// BuildCypher formats the taxonomy's relationships into match clauses and
// the node constraints into the where predicate. An edge referencing an
// unknown node id is fatal.
func BuildCypher(tax *taxonomy.Taxonomy, constraints []taxonomy.NodeConstraint) (CypherQuery, error) {
	var q CypherQuery

	for _, rel := range tax.Relationships {
		src, ok := tax.NodeByID(rel.SourceID)
		if !ok {
			return q, unresolvable(rel.SourceID)
		}
		tgt, ok := tax.NodeByID(rel.TargetID)
		if !ok {
			return q, unresolvable(rel.TargetID)
		}
		dyad := fmt.Sprintf("(%s:%s)-[:%s]-(%s:%s)",
			rel.SourceID, src.Type, rel.Type, rel.TargetID, tgt.Type)
		if rel.Multiplicity.Required() {
			q.Match = append(q.Match, dyad)
		} else {
			q.OptionalMatch = append(q.OptionalMatch, dyad)
		}
	}

	for _, c := range constraints {
		if _, ok := tax.NodeByID(c.AffectedNodeID); !ok {
			return q, unresolvable(c.AffectedNodeID)
		}
		expr := c.AffectedNodeID + "." + c.AttributeName +
			c.Comparator.CypherToken() + "'" + EscapeValue(strings.TrimSpace(c.Value)) + "'"
		q.Where = append(q.Where, expr)
	}

	return q, nil
}

func unresolvable(id string) error {
	return pipeerr.New("search", "cypher", pipeerr.ErrCodeValidation,
		"taxonomy references unknown node "+id)
}
