package taxonomy

import (
	"github.com/partsol/checkmate/pipeerr"
)

// NodeConstraint narrows the admissible values of one attribute of one
// taxonomy node.
type NodeConstraint struct {
	AffectedNodeID string     `yaml:"affectedNodeId" json:"affectedNodeId"`
	NodeType       NodeType   `yaml:"nodeType" json:"nodeType"`
	AttributeName  string     `yaml:"attributeName" json:"attributeName"`
	Comparator     Comparator `yaml:"comparator" json:"comparator"`
	Value          string     `yaml:"value" json:"value"`
}

// NewNodeConstraint builds a node constraint, validating that the attribute
// exists on the node type's schema.
func NewNodeConstraint(nodeID string, nodeType NodeType, attribute string, cmp Comparator, value string) (NodeConstraint, error) {
	if !nodeType.HasAttribute(attribute) {
		return NodeConstraint{}, pipeerr.New("taxonomy", "constraint", pipeerr.ErrCodeValidation,
			"attribute "+attribute+" does not exist for node type "+string(nodeType))
	}
	if !cmp.Valid() {
		return NodeConstraint{}, pipeerr.New("taxonomy", "constraint", pipeerr.ErrCodeValidation,
			"unknown comparator "+string(cmp))
	}
	return NodeConstraint{
		AffectedNodeID: nodeID,
		NodeType:       nodeType,
		AttributeName:  attribute,
		Comparator:     cmp,
		Value:          value,
	}, nil
}

// RelationshipConstraint narrows the admissible values of one attribute of
// one taxonomy relationship.
type RelationshipConstraint struct {
	AffectedRelationshipID string     `yaml:"affectedRelationshipId" json:"affectedRelationshipId"`
	RelationshipType       string     `yaml:"relationshipType" json:"relationshipType"`
	AttributeName          string     `yaml:"attributeName" json:"attributeName"`
	Comparator             Comparator `yaml:"comparator" json:"comparator"`
	Value                  string     `yaml:"value" json:"value"`
}

// relationshipAttributes is the attribute schema shared by all relationship
// types: the optional payload fields of Relationship.
var relationshipAttributes = map[string]bool{
	"propertyValue": true,
	"confidence":    true,
}

// NewRelationshipConstraint builds a relationship constraint, validating the
// attribute against the relationship schema.
func NewRelationshipConstraint(relID, relType, attribute string, cmp Comparator, value string) (RelationshipConstraint, error) {
	if !relationshipAttributes[attribute] {
		return RelationshipConstraint{}, pipeerr.New("taxonomy", "constraint", pipeerr.ErrCodeValidation,
			"attribute "+attribute+" does not exist for relationship type "+relType)
	}
	if !cmp.Valid() {
		return RelationshipConstraint{}, pipeerr.New("taxonomy", "constraint", pipeerr.ErrCodeValidation,
			"unknown comparator "+string(cmp))
	}
	return RelationshipConstraint{
		AffectedRelationshipID: relID,
		RelationshipType:       relType,
		AttributeName:          attribute,
		Comparator:             cmp,
		Value:                  value,
	}, nil
}
