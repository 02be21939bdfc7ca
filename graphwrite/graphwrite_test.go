package graphwrite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsol/checkmate/graph"
	"github.com/partsol/checkmate/staging"
	"github.com/partsol/checkmate/taxonomy"
)

func vendorPlan(t *testing.T) *Plan {
	t.Helper()
	p := &Plan{
		From:              []string{"vendor"},
		FromProps:         []string{"answer"},
		To:                []string{"relatedPersons", "relatedOrganizations"},
		ToProps:           []string{"answer"},
		Relationship:      []string{"HAS_PROVIDED_BUSINESS_TO"},
		RelationshipProps: []string{"amount"},
		PropMap:           map[string]string{"answer": "name"},
		Types: map[string]string{
			"vendor":               "Person",
			"relatedPersons":       "Person",
			"relatedOrganizations": "Organization",
		},
		Thresholds: map[string]float64{
			"vendor":               0.9,
			"relatedPersons":       0.9,
			"relatedOrganizations": 0.9,
			"amount":               0.9,
		},
	}
	require.NoError(t, p.Normalize())
	return p
}

func TestNormalizeRightPads(t *testing.T) {
	p := vendorPlan(t)
	assert.Equal(t, 2, p.Projections())
	assert.Equal(t, []string{"vendor", "vendor"}, p.From)
	assert.Equal(t, []string{"relatedPersons", "relatedOrganizations"}, p.To)
	assert.Equal(t, []string{"HAS_PROVIDED_BUSINESS_TO", "HAS_PROVIDED_BUSINESS_TO"}, p.Relationship)
	assert.Equal(t, []string{"amount", "amount"}, p.RelationshipProps)
}

func TestNormalizeRejectsEmptyList(t *testing.T) {
	p := &Plan{From: []string{"vendor"}, To: nil, Relationship: []string{"R"},
		FromProps: []string{"answer"}, ToProps: []string{"answer"}, RelationshipProps: []string{"x"}}
	err := p.Normalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIG_ERROR")
}

func TestProjectionPlanScenario(t *testing.T) {
	p := vendorPlan(t)
	doc := &staging.Document{
		ID: "doc1",
		Fields: map[string][]staging.Candidate{
			"vendor":         {{Answer: "V", Score: 0.95}},
			"relatedPersons": {{Answer: "P", Score: 0.8}},
			"amount":         {{Answer: "42", Score: 0.99}},
		},
	}

	dyads := (&Projector{Plan: p}).Project(doc)

	// Index 0: relatedPersons candidate dropped by threshold, leaving an
	// unnamed target. Index 1: relatedOrganizations absent, so that
	// projection is skipped.
	require.Len(t, dyads, 1)
	d := dyads[0]
	assert.Equal(t, taxonomy.NodePerson, d.FromType)
	assert.Equal(t, map[string]string{"name": "V"}, d.FromProps)
	assert.Equal(t, "HAS_PROVIDED_BUSINESS_TO", d.EdgeType)
	assert.Equal(t, map[string]string{"amount": "42"}, d.EdgeProps)
	assert.Empty(t, d.ToProps["name"], "dropped candidate leaves the target unnamed")
}

func TestProjectSkipsUnknownTypeTags(t *testing.T) {
	p := vendorPlan(t)
	p.Types["vendor"] = "person" // tags are case-sensitive

	doc := &staging.Document{Fields: map[string][]staging.Candidate{
		"vendor":         {{Answer: "V", Score: 0.95}},
		"relatedPersons": {{Answer: "P", Score: 0.95}},
	}}
	dyads := (&Projector{Plan: p}).Project(doc)
	assert.Empty(t, dyads)
}

func TestClauseFormatting(t *testing.T) {
	d := Dyad{
		FromType:  taxonomy.NodePerson,
		FromProps: map[string]string{"name": "V"},
		EdgeType:  "HAS_PROVIDED_BUSINESS_TO",
		EdgeProps: map[string]string{"amount": "42"},
		ToType:    taxonomy.NodeOrganization,
		ToProps:   map[string]string{"name": "O'Corp"},
	}
	clause, err := d.Clause(3)
	require.NoError(t, err)
	assert.Equal(t,
		"(f3:Person {name:'V'})-[:HAS_PROVIDED_BUSINESS_TO {amount:'42'}]->(t3:Organization {name:'O''Corp'})",
		clause)

	// Identical dyads format identically, keeping MERGE idempotent.
	again, err := d.Clause(3)
	require.NoError(t, err)
	assert.Equal(t, clause, again)
}

func TestClauseRequiresNames(t *testing.T) {
	d := Dyad{FromProps: map[string]string{"name": "V"}, ToProps: map[string]string{}}
	_, err := d.Clause(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
}

// fakeGraph records merges and can fail on demand.
type fakeGraph struct {
	merges  [][]string
	failOn  int // 1-based merge call to fail, 0 = never
	queries []string
}

func (g *fakeGraph) Query(ctx context.Context, cypher string, params map[string]interface{}) (*graph.Rows, error) {
	g.queries = append(g.queries, cypher)
	return &graph.Rows{}, nil
}

func (g *fakeGraph) Merge(ctx context.Context, clauses []string) error {
	g.merges = append(g.merges, append([]string(nil), clauses...))
	if g.failOn != 0 && len(g.merges) == g.failOn {
		return fmt.Errorf("store rejected statement")
	}
	return nil
}

func (g *fakeGraph) Close() error { return nil }

func dyadSource(dyads []Dyad) NextDyad {
	i := 0
	return func(ctx context.Context) (*Dyad, bool, error) {
		if i >= len(dyads) {
			return nil, false, nil
		}
		d := dyads[i]
		i++
		return &d, true, nil
	}
}

func namedDyad(n int) Dyad {
	return Dyad{
		FromType:  taxonomy.NodePerson,
		FromProps: map[string]string{"name": fmt.Sprintf("from-%d", n)},
		EdgeType:  "KNOWS",
		ToType:    taxonomy.NodePerson,
		ToProps:   map[string]string{"name": fmt.Sprintf("to-%d", n)},
	}
}

func TestWriterChunksAndCommits(t *testing.T) {
	var dyads []Dyad
	for i := 0; i < 250; i++ {
		dyads = append(dyads, namedDyad(i))
	}

	store := &fakeGraph{}
	w := &Writer{Client: store, ChunkSize: 100}
	written, err := w.Write(context.Background(), dyadSource(dyads))
	require.NoError(t, err)

	assert.Equal(t, 250, written)
	require.Len(t, store.merges, 3)
	assert.Len(t, store.merges[0], 100)
	assert.Len(t, store.merges[1], 100)
	assert.Len(t, store.merges[2], 50)
}

func TestWriterChunkedFailureScenario(t *testing.T) {
	// 150 valid dyads, then one missing a name: one successful 100-clause
	// statement, then the second chunk never commits and the error
	// surfaces.
	var dyads []Dyad
	for i := 0; i < 150; i++ {
		dyads = append(dyads, namedDyad(i))
	}
	bad := namedDyad(150)
	bad.ToProps = map[string]string{}
	dyads = append(dyads, bad)

	store := &fakeGraph{}
	w := &Writer{Client: store, ChunkSize: 100}
	written, err := w.Write(context.Background(), dyadSource(dyads))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	assert.Equal(t, 100, written)
	require.Len(t, store.merges, 1)
	assert.Len(t, store.merges[0], 100)
}

func TestWriterSurfacesStoreErrors(t *testing.T) {
	var dyads []Dyad
	for i := 0; i < 120; i++ {
		dyads = append(dyads, namedDyad(i))
	}
	store := &fakeGraph{failOn: 2}
	w := &Writer{Client: store, ChunkSize: 100}
	written, err := w.Write(context.Background(), dyadSource(dyads))

	require.Error(t, err)
	assert.Equal(t, 100, written)
}

func TestStreamDyadsProjectsLazily(t *testing.T) {
	p := vendorPlan(t)
	docs := []*staging.Document{
		{ID: "d1", Fields: map[string][]staging.Candidate{
			"vendor":         {{Answer: "V1", Score: 0.95}},
			"relatedPersons": {{Answer: "P1", Score: 0.95}},
		}},
		{ID: "d2", Fields: map[string][]staging.Candidate{
			"vendor":         {{Answer: "V2", Score: 0.95}},
			"relatedPersons": {{Answer: "P2", Score: 0.95}},
		}},
	}
	i := 0
	hits := staging.NewHitStream(func(ctx context.Context, offset, count int) ([]*staging.Document, error) {
		if i >= len(docs) {
			return nil, nil
		}
		page := []*staging.Document{docs[i]}
		i++
		return page, nil
	}, 1)

	next := StreamDyads(hits, &Projector{Plan: p})
	var got []Dyad
	for {
		d, ok, err := next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, *d)
	}
	// One surviving projection per document.
	require.Len(t, got, 2)
	assert.Equal(t, "V1", got[0].FromProps["name"])
	assert.Equal(t, "P1", got[0].ToProps["name"])
	assert.Equal(t, "V2", got[1].FromProps["name"])
}
