package taxonomy

import (
	"strings"

	"github.com/google/uuid"
)

// Node is a vertex of a taxonomy: an opaque stable identifier, a canonical
// type tag, and a string-keyed attribute bag. Nodes are immutable once the
// owning Taxonomy has been validated; relationships reference nodes by id,
// never by pointer, so a taxonomy forms no ownership cycles.
type Node struct {
	ID         string            `yaml:"id" json:"id"`
	Type       NodeType          `yaml:"type" json:"type"`
	Attributes map[string]string `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// NewNode creates a node of the given type with a fresh id and the given
// display name.
func NewNode(nodeType NodeType, name string) Node {
	return Node{
		ID:   NewID("n"),
		Type: nodeType,
		Attributes: map[string]string{
			"name": name,
		},
	}
}

// Attribute returns the attribute value and whether it is set.
func (n Node) Attribute(name string) (string, bool) {
	v, ok := n.Attributes[name]
	return v, ok
}

// Name returns the node's display name, or the empty string.
func (n Node) Name() string {
	return n.Attributes["name"]
}

// NewID returns a fresh hex identifier with the given single-letter prefix,
// matching the wire form of taxonomy artifact ids (e.g. "n6dba5b9…").
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
