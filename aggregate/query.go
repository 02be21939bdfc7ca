package aggregate

import (
	"context"
	"fmt"
	"strings"

	"github.com/partsol/checkmate/cloudevent"
	"github.com/partsol/checkmate/graph"
	"github.com/partsol/checkmate/pipeerr"
	"github.com/partsol/checkmate/search"
	"github.com/partsol/checkmate/taxonomy"
)

// DefaultTerm seeds the simple query when the event carries no usable
// search term at all.
const DefaultTerm = "T"

// SearchTerm extracts the effective term from the event payload. A parent
// search query wins over the refined query, which wins over the bare term.
func SearchTerm(p *cloudevent.Payload) string {
	for _, term := range []string{p.ParentSearch, p.SearchQuery, p.SearchTerm} {
		if strings.TrimSpace(term) != "" {
			return term
		}
	}
	return ""
}

// QueryBuilder turns an event payload into an executable Search. Terms
// using the advanced "AND"-joined grammar are parsed as such; everything
// else becomes a starts-with match on the taxonomy's start node.
type QueryBuilder struct{}

func (QueryBuilder) Build(tax *taxonomy.Taxonomy, p *cloudevent.Payload) (*search.Search, error) {
	term := SearchTerm(p)
	if term == "" {
		term = DefaultTerm
	}
	if strings.Contains(term, "AND") {
		return search.BuildAdvanced(tax, p.SearchID, term)
	}
	return search.BuildSimple(tax, p.SearchID, term)
}

// ParameterizedCypher renders the search as match clauses plus a where
// predicate whose constraint values are bound parameters, not literals.
func ParameterizedCypher(tax *taxonomy.Taxonomy, constraints []taxonomy.NodeConstraint) (string, map[string]interface{}, error) {
	q, err := search.BuildCypher(tax, nil)
	if err != nil {
		return "", nil, err
	}

	params := make(map[string]interface{}, len(constraints))
	for i, c := range constraints {
		if _, ok := tax.NodeByID(c.AffectedNodeID); !ok {
			return "", nil, pipeerr.New("aggregate", "cypher", pipeerr.ErrCodeValidation,
				"constraint references unknown node "+c.AffectedNodeID)
		}
		name := fmt.Sprintf("p%d", i)
		q.Where = append(q.Where,
			c.AffectedNodeID+"."+c.AttributeName+c.Comparator.CypherToken()+"$"+name)
		params[name] = strings.TrimSpace(c.Value)
	}
	return q.String(), params, nil
}

// Executor runs a compiled search against the property graph.
type Executor struct {
	Graph graph.Client
}

func (e *Executor) Execute(ctx context.Context, tax *taxonomy.Taxonomy, s *search.Search) (*graph.Rows, error) {
	cypher, params, err := ParameterizedCypher(tax, s.NodeConstraints(tax))
	if err != nil {
		return nil, err
	}
	return e.Graph.Query(ctx, cypher, params)
}
