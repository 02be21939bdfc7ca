package aggregate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsol/checkmate/cloudevent"
	"github.com/partsol/checkmate/graph"
	"github.com/partsol/checkmate/pipeline"
	"github.com/partsol/checkmate/taxonomy"
)

func personEmailTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax := &taxonomy.Taxonomy{
		Name:    "person-email",
		ID:      "tax1",
		StartID: "A",
		Nodes: []taxonomy.Node{
			{ID: "A", Type: taxonomy.NodePerson, Attributes: map[string]string{"name": "person"}},
			{ID: "B", Type: taxonomy.NodeEmail, Attributes: map[string]string{"name": "email"}},
		},
		Relationships: []taxonomy.Relationship{
			{ID: "r1", Type: "KNOWS", Multiplicity: taxonomy.RequiredOne, SourceID: "A", TargetID: "B"},
		},
	}
	require.NoError(t, tax.Validate())
	return tax
}

func TestSearchTermPrecedence(t *testing.T) {
	p := &cloudevent.Payload{
		SearchTerm:   "bare",
		SearchQuery:  "refined",
		ParentSearch: "parent",
	}
	assert.Equal(t, "parent", SearchTerm(p))

	p.ParentSearch = ""
	assert.Equal(t, "refined", SearchTerm(p))

	p.SearchQuery = "  "
	assert.Equal(t, "bare", SearchTerm(p))

	assert.Equal(t, "", SearchTerm(&cloudevent.Payload{}))
}

func TestParameterizedCypherBindsValues(t *testing.T) {
	tax := personEmailTaxonomy(t)

	q, err := QueryBuilder{}.Build(tax, &cloudevent.Payload{SearchTerm: "Tom"})
	require.NoError(t, err)

	cypher, params, err := ParameterizedCypher(tax, q.NodeConstraints(tax))
	require.NoError(t, err)

	assert.Equal(t,
		"MATCH (A:Person)-[:KNOWS]-(B:Email) OPTIONAL MATCH WHERE 1=1 AND A.name STARTS WITH $p0 RETURN DISTINCT *",
		cypher)
	assert.Equal(t, map[string]interface{}{"p0": "Tom"}, params)
}

func TestQueryBuilderDefaultsEmptyTerm(t *testing.T) {
	tax := personEmailTaxonomy(t)

	q, err := QueryBuilder{}.Build(tax, &cloudevent.Payload{})
	require.NoError(t, err)

	_, params, err := ParameterizedCypher(tax, q.NodeConstraints(tax))
	require.NoError(t, err)
	assert.Equal(t, DefaultTerm, params["p0"])
}

func TestQueryBuilderDetectsAdvancedGrammar(t *testing.T) {
	tax := personEmailTaxonomy(t)

	q, err := QueryBuilder{}.Build(tax, &cloudevent.Payload{
		SearchQuery: "ignored AND email:tom@acme.io",
	})
	require.NoError(t, err)

	constraints := q.NodeConstraints(tax)
	require.Len(t, constraints, 1)
	assert.Equal(t, "B", constraints[0].AffectedNodeID)
	assert.Equal(t, taxonomy.CompEquals, constraints[0].Comparator)
	assert.Equal(t, "tom@acme.io", constraints[0].Value)
}

func nodeValue(id, name, nodeType string) graph.NodeValue {
	props := map[string]interface{}{"id": id}
	if name != "" {
		props["name"] = name
	}
	if nodeType != "" {
		props["NodeType"] = nodeType
	}
	return graph.NodeValue{Properties: props}
}

func TestAggregateDedupesAcrossDeliveries(t *testing.T) {
	rows := &graph.Rows{Values: [][]interface{}{
		{nodeValue("n1", "Tom", "Person"), graph.EdgeValue{Relation: "KNOWS"}, nodeValue("n2", "", "")},
	}}

	var agg Aggregator
	nodes, edges := agg.Aggregate("c1", rows)

	require.Len(t, nodes, 2)
	assert.Equal(t, Node{
		ID: "n1", Name: "Tom", EntityType: "Person", ExternalID: "n1",
		AdditionalType: []string{"thing", "person"}, PopularityScore: 0.1,
	}, nodes[0])
	assert.Equal(t, "NO_NAME", nodes[1].Name)
	assert.Equal(t, "Thing", nodes[1].EntityType)
	assert.Equal(t, []string{"thing"}, nodes[1].AdditionalType)

	require.Len(t, edges, 1)
	assert.Equal(t, Edge{Relationship: "KNOWS", SourceID: "n1", DestinationID: "n2"}, edges[0])

	// Same correlation id again: redelivery adds nothing.
	nodes, _ = agg.Aggregate("c1", rows)
	assert.Empty(t, nodes)

	// A different search sees the nodes fresh.
	nodes, _ = agg.Aggregate("c2", rows)
	assert.Len(t, nodes, 2)
}

func TestAggregatePrefersTextOverName(t *testing.T) {
	rows := &graph.Rows{Values: [][]interface{}{
		{graph.NodeValue{Properties: map[string]interface{}{
			"id": "n1", "name": "fallback", "text": "display",
		}}},
	}}
	nodes, _ := (&Aggregator{}).Aggregate("c1", rows)
	require.Len(t, nodes, 1)
	assert.Equal(t, "display", nodes[0].Name)
}

func TestAggregateSkipsDanglingEdges(t *testing.T) {
	// OPTIONAL MATCH miss: the edge has no target node in the row.
	rows := &graph.Rows{Values: [][]interface{}{
		{nodeValue("n1", "Tom", "Person"), graph.EdgeValue{Relation: "KNOWS"}, nil},
	}}
	nodes, edges := (&Aggregator{}).Aggregate("c1", rows)
	assert.Len(t, nodes, 1)
	assert.Empty(t, edges)
}

func TestPersistCopiesIdentity(t *testing.T) {
	p := &cloudevent.Payload{
		CorrelationID: "c1",
		SearchID:      "s1",
		SearchType:    "simple",
		QueryDepth:    "2",
		TenantName:    "acme",
	}
	data, err := Persist(p, nil, nil)
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "c1", result.CorrelationID)
	assert.Equal(t, "s1", result.SearchID)
	assert.Equal(t, "simple", result.QueryType)
	assert.Equal(t, "2", result.QueryDepth)
	assert.Equal(t, "acme", result.TenantName)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.NotNil(t, result.Nodes)
	assert.NotNil(t, result.Edges)
}

type fixedGraph struct {
	rows    *graph.Rows
	queries []string
	params  []map[string]interface{}
}

func (g *fixedGraph) Query(ctx context.Context, cypher string, params map[string]interface{}) (*graph.Rows, error) {
	g.queries = append(g.queries, cypher)
	g.params = append(g.params, params)
	return g.rows, nil
}
func (g *fixedGraph) Merge(context.Context, []string) error { return nil }
func (g *fixedGraph) Close() error                          { return nil }

func TestStageHandlerEmitsResultView(t *testing.T) {
	tax := personEmailTaxonomy(t)
	store := taxonomy.NewStore(t.TempDir())
	require.NoError(t, store.Save(tax))

	g := &fixedGraph{rows: &graph.Rows{Values: [][]interface{}{
		{nodeValue("n1", "Tom", "Person")},
	}}}
	stage := &Stage{Taxonomies: store, Graph: g}

	payload, err := (&cloudevent.Payload{
		CorrelationID: "c1",
		SearchTerm:    "Tom",
		SearchQueries: []cloudevent.QueryItem{
			{Key: cloudevent.KeyTaxonomyID, Value: "tax1", Subject: cloudevent.SubjectTaxonomy},
		},
	}).Encode()
	require.NoError(t, err)

	out, err := stage.Handler()(context.Background(), payload, pipeline.Event{CorrelationID: "c1"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	var result Result
	require.NoError(t, json.Unmarshal(out[0], &result))
	assert.Equal(t, "c1", result.CorrelationID)
	require.Len(t, result.Nodes, 1)
	assert.Equal(t, "Tom", result.Nodes[0].Name)

	require.Len(t, g.params, 1)
	assert.Equal(t, "Tom", g.params[0]["p0"])
}

func TestStageHandlerSkipsEventsWithoutTaxonomy(t *testing.T) {
	stage := &Stage{Taxonomies: taxonomy.NewStore(t.TempDir()), Graph: &fixedGraph{rows: &graph.Rows{}}}

	payload, err := (&cloudevent.Payload{CorrelationID: "c1"}).Encode()
	require.NoError(t, err)

	out, err := stage.Handler()(context.Background(), payload, pipeline.Event{})
	require.NoError(t, err)
	assert.Nil(t, out)
}
