// Package staging is the full-text store where ingress workers park raw
// documents between fetching and graph writing. A staged document holds,
// per entity field, the scored candidate sub-entities extracted from the
// source.
package staging

import (
	"context"
)

// Candidate is one scored sub-entity extracted for a field.
type Candidate struct {
	Answer string            `json:"answer"`
	Score  float64           `json:"score"`
	Props  map[string]string `json:"props,omitempty"`
}

// Document is one staged hit.
type Document struct {
	ID     string
	Fields map[string][]Candidate
}

// Store is the staging-store surface the pipeline uses.
type Store interface {
	// EnsureIndex creates the full-text index if it does not exist.
	EnsureIndex(ctx context.Context) error

	// Stage persists one document.
	Stage(ctx context.Context, doc *Document) error

	// Search runs a full-text query and returns a lazy stream of hits.
	Search(ctx context.Context, query string) (*HitStream, error)

	Close() error
}

// fetchPage loads one page of hits at the given offset.
type fetchPage func(ctx context.Context, offset, count int) ([]*Document, error)

// HitStream pages through search hits lazily; no full materialization.
type HitStream struct {
	fetch    fetchPage
	pageSize int

	offset int
	page   []*Document
	done   bool
}

// DefaultPageSize bounds how many hits a stream holds in memory at once.
const DefaultPageSize = 50

// NewHitStream wraps a page fetcher. Used by store implementations and by
// fakes in tests.
func NewHitStream(fetch fetchPage, pageSize int) *HitStream {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &HitStream{fetch: fetch, pageSize: pageSize}
}

// Next returns the next hit. The boolean is false when the stream is
// exhausted.
func (s *HitStream) Next(ctx context.Context) (*Document, bool, error) {
	for len(s.page) == 0 {
		if s.done {
			return nil, false, nil
		}
		page, err := s.fetch(ctx, s.offset, s.pageSize)
		if err != nil {
			return nil, false, err
		}
		s.offset += len(page)
		s.page = page
		if len(page) < s.pageSize {
			s.done = true
		}
	}
	doc := s.page[0]
	s.page = s.page[1:]
	return doc, true, nil
}

// Reset rewinds the stream to the first hit.
func (s *HitStream) Reset() {
	s.offset = 0
	s.page = nil
	s.done = false
}
