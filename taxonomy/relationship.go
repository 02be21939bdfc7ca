package taxonomy

import "fmt"

// Multiplicity constrains how many target entities a relationship may bind.
// Required multiplicities place the edge in the query's MATCH clause;
// optional ones in OPTIONAL MATCH.
type Multiplicity string

const (
	RequiredOne        Multiplicity = "REQUIRED_ONE"
	RequiredMany       Multiplicity = "REQUIRED_MANY"
	OptionalMany       Multiplicity = "OPTIONAL_MANY"
	OptionalZeroOrMore Multiplicity = "OPTIONAL_ZERO_OR_MORE"
)

// Valid reports whether m is a known multiplicity.
func (m Multiplicity) Valid() bool {
	switch m {
	case RequiredOne, RequiredMany, OptionalMany, OptionalZeroOrMore:
		return true
	}
	return false
}

// Required reports whether the relationship must bind at least one target.
func (m Multiplicity) Required() bool {
	return m == RequiredOne || m == RequiredMany
}

// Relationship is a typed edge between two nodes of the same taxonomy,
// referenced by id. PropertyValue and Confidence are optional payload
// carried by learned edges.
type Relationship struct {
	ID            string       `yaml:"id" json:"id"`
	Type          string       `yaml:"type" json:"type"`
	Multiplicity  Multiplicity `yaml:"multiplicity" json:"multiplicity"`
	SourceID      string       `yaml:"sourceId" json:"sourceId"`
	TargetID      string       `yaml:"targetId" json:"targetId"`
	PropertyValue string       `yaml:"propertyValue,omitempty" json:"propertyValue,omitempty"`
	Confidence    float64      `yaml:"confidence,omitempty" json:"confidence,omitempty"`
}

// NewRelationship creates an edge of the given type and multiplicity
// between two node ids, with a fresh id.
func NewRelationship(relType string, mult Multiplicity, sourceID, targetID string) Relationship {
	return Relationship{
		ID:           NewID("r"),
		Type:         relType,
		Multiplicity: mult,
		SourceID:     sourceID,
		TargetID:     targetID,
	}
}

// Validate checks the edge's own fields. Referential integrity against the
// node set is checked by Taxonomy.Validate.
func (r Relationship) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("relationship id is required")
	}
	if r.Type == "" {
		return fmt.Errorf("relationship %s: type is required", r.ID)
	}
	if !r.Multiplicity.Valid() {
		return fmt.Errorf("relationship %s: unknown multiplicity %q", r.ID, r.Multiplicity)
	}
	if r.SourceID == "" || r.TargetID == "" {
		return fmt.Errorf("relationship %s: source and target ids are required", r.ID)
	}
	return nil
}
