package staging

import (
	"strings"

	"github.com/partsol/checkmate/cloudevent"
)

// queriedSubjects are the constrained attribute names a payload property
// must target to contribute a search term.
var queriedSubjects = map[string]bool{"name": true}

// BuildQuery turns a cloud-event payload into a full-text query: one fuzzy
// AND term per constraint property whose subject is a queried attribute,
// matched across the plan's entity fields. Terms are lowercased. An empty
// result means the payload carried nothing searchable.
func BuildQuery(payload *cloudevent.Payload, fields []string) string {
	if payload == nil || len(fields) == 0 {
		return ""
	}
	fieldExpr := "@" + strings.Join(fields, "|") + ":"

	var terms []string
	for _, item := range payload.SearchQueries {
		for _, prop := range item.Properties {
			if !queriedSubjects[prop.Subject] {
				continue
			}
			value := strings.ToLower(strings.TrimSpace(prop.Value))
			if value == "" {
				continue
			}
			terms = append(terms, fieldExpr+"("+fuzzy(value)+")")
		}
	}
	return strings.Join(terms, " ")
}

// fuzzy wraps each word of the term in fuzzy-match markers.
func fuzzy(term string) string {
	words := strings.Fields(term)
	for i, w := range words {
		words[i] = "%" + w + "%"
	}
	return strings.Join(words, " ")
}
