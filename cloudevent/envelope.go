// Package cloudevent implements the uniform message envelope the pipeline
// stages exchange over the event bus: a versioned payload carried as raw
// bytes under data.value, plus the routing and causality metadata
// (correlation id, parent id, ttl, expansion depth) every stage must
// preserve when it republishes.
package cloudevent

import (
	"time"

	"github.com/google/uuid"
)

// Envelope event types.
const (
	TypeSearch    = "search"
	TypeExpand    = "expand"
	TypeQuery     = "query"
	TypeExpansion = "expansion"
)

// Envelope subjects.
const (
	EnvSubjectPerson       = "person"
	EnvSubjectOrganization = "organization"
	EnvSubjectThing        = "thing"
)

// SourcePipeline is the default producing-service tag.
const SourcePipeline = "PIPELINE"

// DefaultTTL is the hop budget stamped on fresh envelopes.
const DefaultTTL = 30

// timeLayout is UTC at second granularity.
const timeLayout = "2006-01-02T15:04:05Z"

// Extensions is the envelope's extension block. CorrelationID is stable
// from the originating search through all descendant events; ParentID names
// the direct predecessor; Depth increments on expansion.
type Extensions struct {
	CorrelationID string `json:"correlationid"`
	ParentID      string `json:"parentId,omitempty"`
	TTL           int    `json:"ttl"`
	Depth         int    `json:"depth"`
	ClientID      string `json:"clientId,omitempty"`
}

// Data wraps the payload bytes. Carrying raw bytes (not a nested object)
// lets pass-through stages forward the value untouched.
type Data struct {
	Value []byte `json:"value"`
}

// Envelope is the uniform cloud-event message layout.
type Envelope struct {
	ID         string     `json:"id"`
	ParentID   string     `json:"parentId,omitempty"`
	Time       string     `json:"time"`
	Type       string     `json:"type"`
	Source     string     `json:"source"`
	Subject    string     `json:"subject"`
	Extensions Extensions `json:"extensions"`
	Data       Data       `json:"data"`
}

// Options tunes Generate. Zero values fall back to the documented defaults.
type Options struct {
	ID       string
	ParentID string
	ClientID string
	Depth    int
	Type     string
	Subject  string
	Source   string
}

// now is stubbed in tests.
var now = func() time.Time { return time.Now().UTC() }

// Generate builds a fresh envelope around the payload. The payload's id,
// searchId, correlationId and parentId are overwritten to match the
// envelope so downstream handlers may rely on either. The extensions'
// correlation id equals the envelope id unless the payload already carries
// one.
func Generate(payload *Payload, opts Options) (*Envelope, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	depth := opts.Depth
	if depth == 0 {
		depth = 1
	}
	evType := opts.Type
	if evType == "" {
		evType = TypeExpand
	}
	subject := opts.Subject
	if subject == "" {
		subject = EnvSubjectPerson
	}
	source := opts.Source
	if source == "" {
		source = SourcePipeline
	}

	corr := payload.CorrelationID
	if corr == "" {
		corr = id
	}

	env := &Envelope{
		ID:       id,
		ParentID: opts.ParentID,
		Time:     now().Format(timeLayout),
		Type:     evType,
		Source:   source,
		Subject:  subject,
		Extensions: Extensions{
			CorrelationID: corr,
			ParentID:      opts.ParentID,
			TTL:           DefaultTTL,
			Depth:         depth,
			ClientID:      opts.ClientID,
		},
	}

	payload.ID = env.ID
	payload.SearchID = env.ID
	payload.CorrelationID = corr
	payload.ParentID = env.ParentID

	value, err := payload.Encode()
	if err != nil {
		return nil, err
	}
	env.Data.Value = value
	return env, nil
}

// DeriveFrom copies the envelope with a fresh timestamp and the new payload
// bytes, keeping id and extensions intact. Pass-through stages use this so
// causal metadata survives republication.
func DeriveFrom(env *Envelope, payload []byte) *Envelope {
	out := *env
	out.Time = now().Format(timeLayout)
	out.Data = Data{Value: payload}
	return &out
}

// DeriveExpansion promotes the envelope's id to parent id, assigns a fresh
// id, increments the expansion depth and resets the type to "expansion".
// Fan-out handlers use this for each child event they emit.
func DeriveExpansion(env *Envelope, payload []byte) *Envelope {
	out := *env
	out.ParentID = env.ID
	out.ID = uuid.NewString()
	out.Type = TypeExpansion
	out.Source = SourcePipeline
	out.Time = now().Format(timeLayout)
	out.Extensions.ParentID = env.ID
	out.Extensions.Depth = env.Extensions.Depth + 1
	out.Data = Data{Value: payload}
	return &out
}
