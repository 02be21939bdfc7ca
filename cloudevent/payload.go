package cloudevent

import (
	"encoding/json"

	"github.com/partsol/checkmate/pipeerr"
)

// Recognized top-level keys of searchQueries items.
const (
	KeySearchID         = "search-id"
	KeyTaxonomyID       = "taxonomy-id"
	KeyExpansionQueryID = "expansion-query-id"
	KeyTenantName       = "tenant-name"
	KeyName             = "name"
)

// Recognized subjects of searchQueries items. A node-type tag is also a
// valid subject for name items.
const (
	SubjectSearch         = "Search"
	SubjectTaxonomy       = "Taxonomy"
	SubjectExpansionQuery = "ExpansionQuery"
	SubjectTenant         = "Tenant"
	SubjectNode           = "Node"
)

// Property is one constraint entry inside a query item. Key is a comparator
// tag (e.g. "STARTSWITH"), Subject the constrained attribute name.
type Property struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Subject string `json:"subject"`
	Type    string `json:"type"`
}

// PropertyType is the fixed Type value of constraint properties.
const PropertyType = "property"

// QueryItem is one entry of a payload's searchQueries sequence. The JSON
// field names are the hyphenated wire keys.
type QueryItem struct {
	Key            string     `json:"key"`
	Value          string     `json:"value"`
	Subject        string     `json:"subject"`
	TaxonomyNodeID string     `json:"taxonomy-node-id,omitempty"`
	Properties     []Property `json:"properties,omitempty"`
	DataSource     string     `json:"data-source,omitempty"`
}

// Payload is the JSON body carried under an envelope's data.value. Stages
// decode it on entry and re-encode it on return; unknown fields are
// preserved only by stages that forward the raw bytes unchanged.
type Payload struct {
	ID            string      `json:"id,omitempty"`
	SearchID      string      `json:"searchId,omitempty"`
	CorrelationID string      `json:"correlationId,omitempty"`
	ParentID      string      `json:"parentId,omitempty"`
	SearchType    string      `json:"searchType,omitempty"`
	SearchQuery   string      `json:"searchQuery,omitempty"`
	SearchTerm    string      `json:"searchTerm,omitempty"`
	ParentSearch  string      `json:"parentSearchQuery,omitempty"`
	QueryDepth    string      `json:"queryDepth,omitempty"`
	TenantName    string      `json:"tenantName,omitempty"`
	SearchQueries []QueryItem `json:"searchQueries,omitempty"`
}

// DecodePayload parses payload bytes. Decode failures are PARSE_ERRORs that
// terminate processing of the triggering event.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, pipeerr.New("cloudevent", "decode", pipeerr.ErrCodeParse,
			"malformed event payload").WithCause(err)
	}
	return &p, nil
}

// Encode serializes the payload back to wire bytes.
func (p *Payload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, pipeerr.New("cloudevent", "encode", pipeerr.ErrCodeParse,
			"failed to encode event payload").WithCause(err)
	}
	return data, nil
}

// ItemByKey returns the first searchQueries item with the given top-level
// key, e.g. KeyTaxonomyID.
func (p *Payload) ItemByKey(key string) (QueryItem, bool) {
	for _, item := range p.SearchQueries {
		if item.Key == key {
			return item, true
		}
	}
	return QueryItem{}, false
}

// TaxonomyID returns the payload's taxonomy id item value, or "".
func (p *Payload) TaxonomyID() string {
	if item, ok := p.ItemByKey(KeyTaxonomyID); ok {
		return item.Value
	}
	return ""
}

// Tenant returns the payload's tenant marker value, or "".
func (p *Payload) Tenant() string {
	if item, ok := p.ItemByKey(KeyTenantName); ok {
		return item.Value
	}
	return p.TenantName
}
