package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsol/checkmate/cloudevent"
	"github.com/partsol/checkmate/taxonomy"
)

// personEmailTaxonomy is the two-node shape used across these tests:
// A (Person, start) --KNOWS (required)--> B (Email).
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

func TestSimpleSearchPlan(t *testing.T) {
	tax := personEmailTaxonomy(t)

	s, err := BuildSimple(tax, "s1", "Tom")
	require.NoError(t, err)

	sources := []taxonomy.DataSource{taxonomy.SourceCVE, taxonomy.SourceDataScraper}
	queries, cypher, err := (&Planner{}).Plan(tax, s, sources, "acme")
	require.NoError(t, err)

	assert.Equal(t,
		"MATCH (A:Person)-[:KNOWS]-(B:Email) OPTIONAL MATCH WHERE 1=1 AND A.name STARTS WITH 'Tom' RETURN DISTINCT *",
		cypher.String())

	require.Len(t, queries, 2, "one query per data source")
	for i, q := range queries {
		assert.Equal(t, sources[i], q.DataSource)
		assert.Equal(t, "s1", q.SearchID)
		assert.Equal(t, "tax1", q.TaxonomyID)

		// Two node items, A then B, plus the tenant marker.
		require.Len(t, q.Items, 3)
		assert.Equal(t, "A", q.Items[0].TaxonomyNodeID)
		assert.Equal(t, "Person", q.Items[0].Subject)
		assert.Equal(t, "B", q.Items[1].TaxonomyNodeID)
		assert.Equal(t, "Email", q.Items[1].Subject)

		for _, item := range q.Items[:2] {
			require.Len(t, item.Properties, 1)
			assert.Equal(t, "STARTSWITH", item.Properties[0].Key)
			assert.Equal(t, "Tom", item.Properties[0].Value)
			assert.Equal(t, "name", item.Properties[0].Subject)
			assert.Equal(t, string(sources[i]), item.DataSource)
		}

		tenant := q.Items[2]
		assert.Equal(t, cloudevent.KeyTenantName, tenant.Key)
		assert.Equal(t, "acme", tenant.Value)
		assert.Equal(t, cloudevent.SubjectTenant, tenant.Subject)
	}
}

func TestAdvancedParse(t *testing.T) {
	tax := personEmailTaxonomy(t)

	constraints, err := ParseAdvanced(tax, "person AND email: a@b.co AND address: LA")
	require.NoError(t, err)
	require.Len(t, constraints, 2)

	assert.Equal(t, "B", constraints[0].AffectedNodeID)
	assert.Equal(t, taxonomy.CompEquals, constraints[0].Comparator)
	assert.Equal(t, "a@b.co", constraints[0].Value)

	assert.Equal(t, "A", constraints[1].AffectedNodeID)
	assert.Equal(t, taxonomy.CompStartsWith, constraints[1].Comparator)
	assert.Equal(t, "address", constraints[1].AttributeName)
	assert.Equal(t, "LA", constraints[1].Value)
}

func TestAdvancedParseRejections(t *testing.T) {
	tax := personEmailTaxonomy(t)

	cases := map[string]string{
		"no atoms":      "person",
		"missing colon": "person AND nocolon",
		"empty atom":    "person AND  AND a:b",
		"empty value":   "person AND address:",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAdvanced(tax, raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "PARSE_ERROR")
		})
	}
}

func TestPlanDiscardsStructuralPaths(t *testing.T) {
	tax := personEmailTaxonomy(t)

	s := New("s1", tax.ID) // no constraints anywhere
	queries, _, err := (&Planner{}).Plan(tax, s,
		[]taxonomy.DataSource{taxonomy.SourceCVE}, "acme")
	require.NoError(t, err)
	assert.Empty(t, queries)
}

func TestPlanIsDeterministic(t *testing.T) {
	tax := personEmailTaxonomy(t)
	sources := []taxonomy.DataSource{taxonomy.SourceCVE, taxonomy.SourcePeopleDataLabs}

	run := func() []ExpansionQuery {
		s, err := BuildSimple(tax, "s1", "Tom")
		require.NoError(t, err)
		queries, _, err := (&Planner{}).Plan(tax, s, sources, "acme")
		require.NoError(t, err)
		return queries
	}

	a, b := run(), run()
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Items, b[i].Items)
		assert.Equal(t, a[i].DataSource, b[i].DataSource)
	}
}

func TestPlanDeduplicatesEquivalentPaths(t *testing.T) {
	// Parallel edges A->B produce two paths with identical items.
	tax := personEmailTaxonomy(t)
	tax.Relationships = append(tax.Relationships,
		taxonomy.Relationship{ID: "r2", Type: "MAILS", Multiplicity: taxonomy.OptionalMany, SourceID: "A", TargetID: "B"})
	require.NoError(t, tax.Validate())

	s, err := BuildSimple(tax, "s1", "Tom")
	require.NoError(t, err)
	queries, _, err := (&Planner{}).Plan(tax, s,
		[]taxonomy.DataSource{taxonomy.SourceCVE}, "acme")
	require.NoError(t, err)
	assert.Len(t, queries, 1)
}

func TestSearchConstraintsAreAppendOnly(t *testing.T) {
	tax := personEmailTaxonomy(t)
	base, err := taxonomy.NewNodeConstraint("A", taxonomy.NodePerson, "name",
		taxonomy.CompStartsWith, "T")
	require.NoError(t, err)
	tax.NodeConstraints = []taxonomy.NodeConstraint{base}

	s := New("s1", tax.ID)
	extra, err := taxonomy.NewNodeConstraint("B", taxonomy.NodeEmail, "name",
		taxonomy.CompEquals, "a@b.co")
	require.NoError(t, err)
	s.AddConstraint(extra)

	got := s.NodeConstraints(tax)
	require.Len(t, got, 2)
	assert.Equal(t, base, got[0], "taxonomy constraints come first and survive layering")
	assert.Equal(t, extra, got[1])
	assert.Len(t, tax.NodeConstraints, 1, "taxonomy itself is never mutated")
}

func TestCypherEscapesQuotes(t *testing.T) {
	tax := personEmailTaxonomy(t)
	c, err := taxonomy.NewNodeConstraint("A", taxonomy.NodePerson, "name",
		taxonomy.CompEquals, "O'Brien")
	require.NoError(t, err)

	q, err := BuildCypher(tax, []taxonomy.NodeConstraint{c})
	require.NoError(t, err)
	assert.Contains(t, q.String(), "A.name = 'O''Brien'")
}

func TestPayloadItemsHeader(t *testing.T) {
	q := ExpansionQuery{ID: "eq1", SearchID: "s1", TaxonomyID: "tax1",
		Items: []cloudevent.QueryItem{{Key: "name", Value: "Tom"}}}

	items := q.PayloadItems()
	require.Len(t, items, 4)
	assert.Equal(t, cloudevent.KeySearchID, items[0].Key)
	assert.Equal(t, cloudevent.KeyTaxonomyID, items[1].Key)
	assert.Equal(t, cloudevent.KeyExpansionQueryID, items[2].Key)
	assert.Equal(t, "eq1", items[2].Value)
}
