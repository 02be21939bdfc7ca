package taxonomy

import "fmt"

// Comparator is the tagged comparison operator carried by a constraint.
// The tag values are the wire form used inside cloud-event property items.
type Comparator string

const (
	CompStartsWith         Comparator = "startsWith"
	CompEndsWith           Comparator = "endsWith"
	CompEquals             Comparator = "equals"
	CompDifferent          Comparator = "different"
	CompGreaterThan        Comparator = "greater_than"
	CompLessThan           Comparator = "less_than"
	CompGreaterOrEqualThan Comparator = "greater_or_equal_than"
	CompLessOrEqualThan    Comparator = "less_or_equal_than"
	CompContains           Comparator = "contains"
	CompRegex              Comparator = "regex"
)

// cypherTokens maps each comparator onto its Cypher operator. Tokens are
// space-padded so they concatenate directly between an attribute reference
// and a quoted value.
var cypherTokens = map[Comparator]string{
	CompStartsWith:         " STARTS WITH ",
	CompEndsWith:           " ENDS WITH ",
	CompEquals:             " = ",
	CompDifferent:          " <> ",
	CompGreaterThan:        " > ",
	CompLessThan:           " < ",
	CompGreaterOrEqualThan: " >= ",
	CompLessOrEqualThan:    " <= ",
	CompContains:           " CONTAINS ",
	CompRegex:              " =~ ",
}

// Valid reports whether c is a known comparator tag.
func (c Comparator) Valid() bool {
	_, ok := cypherTokens[c]
	return ok
}

// CypherToken returns the space-padded Cypher operator for c.
func (c Comparator) CypherToken() string {
	return cypherTokens[c]
}

// PropertyKey returns the wire key used for this comparator inside a
// cloud-event property item, e.g. "STARTSWITH".
func (c Comparator) PropertyKey() string {
	switch c {
	case CompStartsWith:
		return "STARTSWITH"
	case CompEndsWith:
		return "ENDSWITH"
	case CompEquals:
		return "EQUALS"
	case CompDifferent:
		return "DIFFERENT"
	case CompGreaterThan:
		return "GREATERTHAN"
	case CompLessThan:
		return "LESSTHAN"
	case CompGreaterOrEqualThan:
		return "GREATEROREQUALTHAN"
	case CompLessOrEqualThan:
		return "LESSOREQUALTHAN"
	case CompContains:
		return "CONTAINS"
	case CompRegex:
		return "REGEX"
	default:
		return string(c)
	}
}

// ParseComparator converts a wire tag to a Comparator.
func ParseComparator(s string) (Comparator, error) {
	c := Comparator(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown comparator %q", s)
	}
	return c, nil
}
