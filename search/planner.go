package search

import (
	"encoding/json"
	"log/slog"

	"github.com/partsol/checkmate/cloudevent"
	"github.com/partsol/checkmate/pipeerr"
	"github.com/partsol/checkmate/taxonomy"
)

// ExpansionQuery is one per-(path, data source) sub-query derived from a
// taxonomy traversal. Items are ordered: traversal items first, the tenant
// marker last.
type ExpansionQuery struct {
	ID         string
	SearchID   string
	TaxonomyID string
	DataSource taxonomy.DataSource
	Items      []cloudevent.QueryItem
}

// PayloadItems renders the query as a cloud-event searchQueries list: the
// search/taxonomy/expansion-query header items followed by the traversal
// items.
func (q ExpansionQuery) PayloadItems() []cloudevent.QueryItem {
	items := []cloudevent.QueryItem{
		{Key: cloudevent.KeySearchID, Value: q.SearchID, Subject: cloudevent.SubjectSearch},
		{Key: cloudevent.KeyTaxonomyID, Value: q.TaxonomyID, Subject: cloudevent.SubjectTaxonomy},
		{Key: cloudevent.KeyExpansionQueryID, Value: q.ID, Subject: cloudevent.SubjectExpansionQuery},
	}
	return append(items, q.Items...)
}

// Planner derives expansion queries and the Cypher view from a search.
type Planner struct {
	Logger *slog.Logger
}

// Plan enumerates all simple paths from the taxonomy's start node and emits
// one ExpansionQuery per (path, data source) that carries at least one
// property constraint. Purely structural paths are discarded; queries whose
// ordered items serialize identically are emitted once. Output order is
// deterministic: paths in depth-first discovery order, data sources in the
// caller's order.
func (p *Planner) Plan(tax *taxonomy.Taxonomy, s *Search, sources []taxonomy.DataSource, tenant string) ([]ExpansionQuery, CypherQuery, error) {
	constraints := s.NodeConstraints(tax)
	byNode := make(map[string][]taxonomy.NodeConstraint)
	for _, c := range constraints {
		byNode[c.AffectedNodeID] = append(byNode[c.AffectedNodeID], c)
	}

	cypher, err := BuildCypher(tax, constraints)
	if err != nil {
		return nil, CypherQuery{}, err
	}

	paths := enumeratePaths(tax)

	var queries []ExpansionQuery
	seen := make(map[string]struct{})
	for _, path := range paths {
		for _, source := range sources {
			q, ok, err := p.pathQuery(tax, s, byNode, path, source, tenant)
			if err != nil {
				return nil, CypherQuery{}, err
			}
			if !ok {
				continue
			}
			canon, err := json.Marshal(q.Items)
			if err != nil {
				return nil, CypherQuery{}, pipeerr.New("search", "plan",
					pipeerr.ErrCodeHandler, "failed to serialize expansion items").WithCause(err)
			}
			key := string(q.DataSource) + "|" + string(canon)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			queries = append(queries, q)
		}
	}

	return queries, cypher, nil
}

// pathQuery builds the candidate query for one (path, source) pair. The
// second return is false for purely structural paths.
func (p *Planner) pathQuery(tax *taxonomy.Taxonomy, s *Search, byNode map[string][]taxonomy.NodeConstraint, path []string, source taxonomy.DataSource, tenant string) (ExpansionQuery, bool, error) {
	var items []cloudevent.QueryItem
	var pathProps []cloudevent.Property
	constrained := false

	for i := 0; i < len(path)-1; i++ {
		nodeID := path[i]
		props := propertiesFor(byNode[nodeID])
		if len(props) == 0 {
			continue
		}
		constrained = true
		pathProps = append(pathProps, props...)
		item, err := nodeItem(tax, nodeID, props, source)
		if err != nil {
			return ExpansionQuery{}, false, err
		}
		items = append(items, item)
	}

	if !constrained {
		return ExpansionQuery{}, false, nil
	}

	// The terminal node is the target of the expansion. When it carries no
	// constraint of its own it inherits the path's, so a fetcher always
	// sees what drove the query.
	terminalID := path[len(path)-1]
	props := propertiesFor(byNode[terminalID])
	if len(props) == 0 {
		props = pathProps
	}
	item, err := nodeItem(tax, terminalID, props, source)
	if err != nil {
		return ExpansionQuery{}, false, err
	}
	items = append(items, item)

	items = append(items, cloudevent.QueryItem{
		Key:     cloudevent.KeyTenantName,
		Value:   tenant,
		Subject: cloudevent.SubjectTenant,
	})

	return ExpansionQuery{
		ID:         taxonomy.NewID(""),
		SearchID:   s.ID,
		TaxonomyID: s.TaxonomyID,
		DataSource: source,
		Items:      items,
	}, true, nil
}

func nodeItem(tax *taxonomy.Taxonomy, nodeID string, props []cloudevent.Property, source taxonomy.DataSource) (cloudevent.QueryItem, error) {
	node, ok := tax.NodeByID(nodeID)
	if !ok {
		return cloudevent.QueryItem{}, pipeerr.New("search", "plan",
			pipeerr.ErrCodeValidation, "path references unknown node "+nodeID)
	}
	return cloudevent.QueryItem{
		Key:            cloudevent.KeyName,
		Value:          node.Name(),
		Subject:        string(node.Type),
		TaxonomyNodeID: nodeID,
		Properties:     props,
		DataSource:     string(source),
	}, nil
}

func propertiesFor(constraints []taxonomy.NodeConstraint) []cloudevent.Property {
	if len(constraints) == 0 {
		return nil
	}
	props := make([]cloudevent.Property, 0, len(constraints))
	for _, c := range constraints {
		props = append(props, cloudevent.Property{
			Key:     c.Comparator.PropertyKey(),
			Value:   c.Value,
			Subject: c.AttributeName,
			Type:    cloudevent.PropertyType,
		})
	}
	return props
}

// enumeratePaths lists every simple path from the start node to each other
// node. Targets iterate in taxonomy node order; per target, neighbors
// expand depth-first in relationship order.
func enumeratePaths(tax *taxonomy.Taxonomy) [][]string {
	var paths [][]string
	for _, target := range tax.Nodes {
		if target.ID == tax.StartID {
			continue
		}
		visited := map[string]bool{tax.StartID: true}
		walk(tax, []string{tax.StartID}, target.ID, visited, &paths)
	}
	return paths
}

func walk(tax *taxonomy.Taxonomy, path []string, target string, visited map[string]bool, out *[][]string) {
	current := path[len(path)-1]
	if current == target {
		*out = append(*out, append([]string(nil), path...))
		return
	}
	for _, next := range tax.Neighbors(current) {
		if visited[next] {
			continue
		}
		visited[next] = true
		walk(tax, append(path, next), target, visited, out)
		visited[next] = false
	}
}
