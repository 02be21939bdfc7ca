package taxonomy

import "fmt"

// DyadSpec is one row of a declarative taxonomy definition: a source node, a
// destination node and the relationship between them. BuildFromDyads
// assembles the full multi-graph from a sequence of rows; nodes appearing in
// several rows are created once, keyed by type + id.
type DyadSpec struct {
	Source       EndpointSpec     `yaml:"source" json:"Source"`
	Destination  EndpointSpec     `yaml:"destination" json:"Destination"`
	Relationship RelationshipSpec `yaml:"relationship" json:"Relationship"`
}

// EndpointSpec names one endpoint of a dyad row.
type EndpointSpec struct {
	NodeType string `yaml:"nodeType" json:"NodeType"`
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
}

// RelationshipSpec names the edge of a dyad row.
type RelationshipSpec struct {
	Type         string       `yaml:"relationshipType" json:"RelationshipType"`
	Multiplicity Multiplicity `yaml:"relationshipMultiplicity" json:"RelationshipMultiplicity"`
}

// BuildFromDyads assembles a Taxonomy from dyad rows. The start node is the
// source endpoint of the first row. Node identity is (type, id); the first
// occurrence defines the node's name.
func BuildFromDyads(name string, rows []DyadSpec) (*Taxonomy, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("taxonomy %s: no dyad rows", name)
	}
	t := &Taxonomy{Name: name, ID: NewID("n")}

	nodeIDs := make(map[string]string) // (type+id) -> node id
	addNode := func(ep EndpointSpec) (string, error) {
		key := ep.NodeType + ep.ID
		if id, ok := nodeIDs[key]; ok {
			return id, nil
		}
		nt, err := ParseNodeType(ep.NodeType)
		if err != nil {
			return "", fmt.Errorf("taxonomy %s: %w", name, err)
		}
		displayName := ep.Name
		if displayName == "" {
			displayName = ep.NodeType
		}
		n := NewNode(nt, displayName)
		if ep.ID != "" {
			n.ID = ep.ID
		}
		nodeIDs[key] = n.ID
		t.Nodes = append(t.Nodes, n)
		return n.ID, nil
	}

	for i, row := range rows {
		srcID, err := addNode(row.Source)
		if err != nil {
			return nil, err
		}
		dstID, err := addNode(row.Destination)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			t.StartID = srcID
		}
		if !row.Relationship.Multiplicity.Valid() {
			return nil, fmt.Errorf("taxonomy %s: row %d: unknown multiplicity %q", name, i, row.Relationship.Multiplicity)
		}
		t.Relationships = append(t.Relationships,
			NewRelationship(row.Relationship.Type, row.Relationship.Multiplicity, srcID, dstID))
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// BuildPersonTaxonomy constructs the person discovery taxonomy the pipeline
// ships with: a Person start node fanned out to the identity artifacts the
// ingress workers know how to resolve.
func BuildPersonTaxonomy(name string) (*Taxonomy, error) {
	person := NewNode(NodePerson, "person")
	email := NewNode(NodeEmail, "email")
	phone := NewNode(NodePhone, "phone")
	org := NewNode(NodeOrganization, "organization")
	school := NewNode(NodeSchool, "school")
	social := NewNode(NodeSocialMedia, "socialMedia")
	breach := NewNode(NodeDataBreach, "dataBreach")
	work := NewNode(NodePublishedWork, "publishedWork")

	t := &Taxonomy{
		Name:    name,
		ID:      NewID("n"),
		StartID: person.ID,
		Nodes:   []Node{person, email, phone, org, school, social, breach, work},
		Relationships: []Relationship{
			NewRelationship("HAS_EMAIL", RequiredOne, person.ID, email.ID),
			NewRelationship("HAS_PHONE", OptionalZeroOrMore, person.ID, phone.ID),
			NewRelationship("WORKS_FOR", OptionalMany, person.ID, org.ID),
			NewRelationship("ATTENDED", OptionalZeroOrMore, person.ID, school.ID),
			NewRelationship("HAS_PROFILE", OptionalMany, person.ID, social.ID),
			NewRelationship("EXPOSED_IN", OptionalZeroOrMore, email.ID, breach.ID),
			NewRelationship("AUTHORED", OptionalZeroOrMore, person.ID, work.ID),
		},
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
