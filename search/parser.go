package search

import (
	"strings"

	"github.com/partsol/checkmate/pipeerr"
	"github.com/partsol/checkmate/taxonomy"
)

// ParseAdvanced parses a `type AND key:value AND …` expression into node
// constraints over the taxonomy. The leading type atom is discarded. An
// `email` key binds an EQUALS constraint to the taxonomy's Email node;
// every other key binds a STARTSWITH constraint on that attribute of the
// start node. No quoting or escapes are decoded.
func ParseAdvanced(tax *taxonomy.Taxonomy, raw string) ([]taxonomy.NodeConstraint, error) {
	atoms := strings.Split(raw, "AND")
	if len(atoms) < 2 {
		return nil, parseError("expected at least one key:value atom after the type")
	}

	start, ok := tax.StartNode()
	if !ok {
		return nil, parseError("taxonomy has no start node")
	}

	constraints := make([]taxonomy.NodeConstraint, 0, len(atoms)-1)
	for _, atom := range atoms[1:] {
		atom = strings.TrimSpace(atom)
		if atom == "" {
			return nil, parseError("empty atom")
		}
		key, value, found := strings.Cut(atom, ":")
		if !found {
			return nil, parseError("atom without ':': " + atom)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return nil, parseError("atom with empty key or value: " + atom)
		}

		var (
			c   taxonomy.NodeConstraint
			err error
		)
		if key == "email" {
			email, ok := tax.NodeByType(taxonomy.NodeEmail)
			if !ok {
				return nil, parseError("taxonomy has no Email node for email atom")
			}
			c, err = taxonomy.NewNodeConstraint(email.ID, email.Type, "name",
				taxonomy.CompEquals, value)
		} else {
			c, err = taxonomy.NewNodeConstraint(start.ID, start.Type, key,
				taxonomy.CompStartsWith, value)
		}
		if err != nil {
			return nil, err
		}
		constraints = append(constraints, c)
	}
	return constraints, nil
}

// BuildSimple creates a search constraining the start node's name with
// STARTSWITH on the term. An empty term falls back to "t", matching the
// historical default query.
func BuildSimple(tax *taxonomy.Taxonomy, searchID, term string) (*Search, error) {
	start, ok := tax.StartNode()
	if !ok {
		return nil, parseError("taxonomy has no start node")
	}
	if term == "" {
		term = "t"
	}
	c, err := taxonomy.NewNodeConstraint(start.ID, start.Type, "name",
		taxonomy.CompStartsWith, term)
	if err != nil {
		return nil, err
	}
	s := New(searchID, tax.ID)
	s.AddConstraint(c)
	return s, nil
}

// BuildAdvanced creates a search from an advanced expression.
func BuildAdvanced(tax *taxonomy.Taxonomy, searchID, raw string) (*Search, error) {
	constraints, err := ParseAdvanced(tax, raw)
	if err != nil {
		return nil, err
	}
	s := New(searchID, tax.ID)
	for _, c := range constraints {
		s.AddConstraint(c)
	}
	return s, nil
}

func parseError(msg string) error {
	return pipeerr.New("search", "parse", pipeerr.ErrCodeParse, msg)
}
