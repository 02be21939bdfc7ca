package graphwrite

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/partsol/checkmate/pipeerr"
	"github.com/partsol/checkmate/staging"
	"github.com/partsol/checkmate/taxonomy"
)

// Dyad is one projected graph write: two typed endpoints and the edge
// between them, each carrying string properties.
type Dyad struct {
	FromType  taxonomy.NodeType
	FromProps map[string]string
	EdgeType  string
	EdgeProps map[string]string
	ToType    taxonomy.NodeType
	ToProps   map[string]string
}

// Clause formats the dyad as a MERGE pattern with index-scoped aliases.
// Both endpoints must carry a name property.
func (d Dyad) Clause(idx int) (string, error) {
	if d.FromProps["name"] == "" || d.ToProps["name"] == "" {
		return "", pipeerr.New("graphwrite", "clause", pipeerr.ErrCodeValidation,
			fmt.Sprintf("dyad %d is missing a name property on an endpoint", idx))
	}
	return fmt.Sprintf("(f%d:%s %s)-[:%s %s]->(t%d:%s %s)",
		idx, d.FromType, formatProps(d.FromProps),
		d.EdgeType, formatProps(d.EdgeProps),
		idx, d.ToType, formatProps(d.ToProps)), nil
}

// formatProps renders {k:'v', …} with sorted keys so identical dyads always
// produce identical clauses (MERGE idempotence depends on it).
func formatProps(props map[string]string) string {
	if len(props) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":'"+strings.ReplaceAll(props[k], "'", "''")+"'")
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Projector applies a normalized plan to staged documents.
type Projector struct {
	Plan   *Plan
	Logger *slog.Logger
}

// Project filters the document's candidates by threshold, then yields one
// dyad per (projection index, from-candidate, to-candidate) combination.
// A projection whose to-field has no surviving candidates still yields a
// dyad with an unnamed target, so the gap is visible downstream. Unknown
// type tags skip the dyad and are reported.
func (p *Projector) Project(doc *staging.Document) []Dyad {
	fields := p.filter(doc)

	var dyads []Dyad
	for i := 0; i < p.Plan.Projections(); i++ {
		fromField := p.Plan.From[i]
		toField := p.Plan.To[i]

		fromType, ok := p.nodeType(fromField)
		if !ok {
			continue
		}
		toType, ok := p.nodeType(toField)
		if !ok {
			continue
		}

		edgeProps := p.edgeProps(fields, i)

		froms := fields[fromField]
		// A to-field absent from the document skips the projection; a
		// present field whose candidates were all dropped still yields a
		// dyad with an unnamed target so the gap is visible downstream.
		tos, present := fields[toField]
		if !present {
			continue
		}
		if len(tos) == 0 {
			tos = []staging.Candidate{{}}
		}
		for _, f := range froms {
			for _, t := range tos {
				dyads = append(dyads, Dyad{
					FromType:  fromType,
					FromProps: p.endpointProps(p.Plan.FromProps[i], f),
					EdgeType:  p.Plan.Relationship[i],
					EdgeProps: edgeProps,
					ToType:    toType,
					ToProps:   p.endpointProps(p.Plan.ToProps[i], t),
				})
			}
		}
	}
	return dyads
}

// filter drops candidates scoring under their field's threshold. Fields
// without a threshold pass through.
func (p *Projector) filter(doc *staging.Document) map[string][]staging.Candidate {
	out := make(map[string][]staging.Candidate, len(doc.Fields))
	for field, candidates := range doc.Fields {
		threshold, bounded := p.Plan.Thresholds[field]
		if !bounded {
			out[field] = candidates
			continue
		}
		var kept []staging.Candidate
		for _, c := range candidates {
			if c.Score >= threshold {
				kept = append(kept, c)
			}
		}
		out[field] = kept
	}
	return out
}

// nodeType resolves the field's type tag. Tags outside the node-type
// enumeration skip the dyad.
func (p *Projector) nodeType(field string) (taxonomy.NodeType, bool) {
	tag := p.Plan.Types[field]
	parsed, err := taxonomy.ParseNodeType(tag)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Warn("skipping dyad with unknown type tag",
				"field", field, "tag", tag)
		}
		return "", false
	}
	return parsed.Schema(), true
}

// endpointProps copies the candidate's answer under the renamed property
// key, plus any extracted props.
func (p *Projector) endpointProps(key string, c staging.Candidate) map[string]string {
	props := map[string]string{p.Plan.rename(key): c.Answer}
	for k, v := range c.Props {
		props[p.Plan.rename(k)] = v
	}
	return props
}

// edgeProps pulls the relationship property for projection i from the
// document field of the same name, using the first surviving candidate.
func (p *Projector) edgeProps(fields map[string][]staging.Candidate, i int) map[string]string {
	key := p.Plan.RelationshipProps[i]
	candidates := fields[key]
	if len(candidates) == 0 {
		return nil
	}
	return map[string]string{p.Plan.rename(key): candidates[0].Answer}
}
