// Package graphwrite projects staged documents into typed dyads and
// persists them in bounded MERGE batches.
package graphwrite

import (
	"sort"
	"strings"

	"github.com/partsol/checkmate/pipeerr"
)

// Plan is the projection plan mapping document fields onto graph writes.
// From, To and Relationship are parallel lists; shorter lists are
// right-padded by repeating their first element (Normalize). PropMap
// renames copied property keys; Types maps document fields to node-type
// tags; Thresholds drops low-scoring candidates before projection.
type Plan struct {
	From              []string `yaml:"from"`
	FromProps         []string `yaml:"fromProps"`
	To                []string `yaml:"to"`
	ToProps           []string `yaml:"toProps"`
	Relationship      []string `yaml:"relationship"`
	RelationshipProps []string `yaml:"relationshipProps"`

	PropMap    map[string]string  `yaml:"propMap"`
	Types      map[string]string  `yaml:"types"`
	Thresholds map[string]float64 `yaml:"thresholds"`

	ChunkSize int `yaml:"chunkSize"`
}

// DefaultChunkSize bounds clauses per MERGE statement.
const DefaultChunkSize = 100

// Normalize right-pads every parallel list to the longest length by
// repeating its first element. A list that is used but empty cannot be
// padded and is a configuration error.
func (p *Plan) Normalize() error {
	lists := map[string]*[]string{
		"from":              &p.From,
		"fromProps":         &p.FromProps,
		"to":                &p.To,
		"toProps":           &p.ToProps,
		"relationship":      &p.Relationship,
		"relationshipProps": &p.RelationshipProps,
	}

	longest := 0
	for _, l := range lists {
		if len(*l) > longest {
			longest = len(*l)
		}
	}
	if longest == 0 {
		return pipeerr.New("graphwrite", "normalize", pipeerr.ErrCodeConfig,
			"projection plan has no lists")
	}

	for name, l := range lists {
		if len(*l) == 0 {
			return pipeerr.New("graphwrite", "normalize", pipeerr.ErrCodeConfig,
				"projection plan list "+name+" is empty")
		}
		for len(*l) < longest {
			*l = append(*l, (*l)[0])
		}
	}

	if p.ChunkSize <= 0 {
		p.ChunkSize = DefaultChunkSize
	}
	return nil
}

// Projections returns the aligned list length after Normalize.
func (p *Plan) Projections() int { return len(p.From) }

// rename maps a property key through PropMap, falling through to the key
// itself.
func (p *Plan) rename(key string) string {
	if mapped, ok := p.PropMap[key]; ok {
		return mapped
	}
	return key
}

// TypeFields returns the distinct type tags of the plan, lowercased, in
// sorted order. The staging query matches across these fields.
func (p *Plan) TypeFields() []string {
	seen := make(map[string]bool)
	var fields []string
	for _, tag := range p.Types {
		tag = strings.ToLower(tag)
		if !seen[tag] {
			seen[tag] = true
			fields = append(fields, tag)
		}
	}
	sort.Strings(fields)
	return fields
}

// EntityFields returns the distinct document fields the plan reads, sorted.
// Store implementations index these.
func (p *Plan) EntityFields() []string {
	seen := make(map[string]bool)
	var fields []string
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				fields = append(fields, n)
			}
		}
	}
	add(p.From)
	add(p.To)
	add(p.RelationshipProps)
	sort.Strings(fields)
	return fields
}
