package staging

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/partsol/checkmate/pipeerr"
)

// RedisStore implements Store on RediSearch: documents are hashes under
// {index}:{id}, one hash field per entity field holding the JSON-encoded
// candidate list, plus a flattened text field per entity field for the
// full-text index.
type RedisStore struct {
	client   *redis.Client
	index    string
	fields   []string
	pageSize int
}

// textField names the indexed flattened view of an entity field.
func textField(field string) string { return field + "_text" }

// NewRedisStore connects to the staging store. fields lists the entity
// fields the index covers.
func NewRedisStore(addr, index string, fields []string) (*RedisStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, pipeerr.New("staging", "connect", pipeerr.ErrCodeConfig,
			"failed to parse staging address").WithCause(err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, pipeerr.New("staging", "connect", pipeerr.ErrCodeUpstream,
			"failed to connect to staging store").WithCause(err)
	}
	return &RedisStore{
		client:   client,
		index:    index,
		fields:   fields,
		pageSize: DefaultPageSize,
	}, nil
}

// EnsureIndex creates the full-text index over the flattened text fields.
// An already-existing index is fine.
func (s *RedisStore) EnsureIndex(ctx context.Context) error {
	schema := make([]*redis.FieldSchema, 0, len(s.fields))
	for _, f := range s.fields {
		schema = append(schema, &redis.FieldSchema{
			FieldName: textField(f),
			FieldType: redis.SearchFieldTypeText,
		})
	}
	err := s.client.FTCreate(ctx, s.index, &redis.FTCreateOptions{
		OnHash: true,
		Prefix: []interface{}{s.index + ":"},
	}, schema...).Err()
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return pipeerr.New("staging", "ensure-index", pipeerr.ErrCodeUpstream,
			"failed to create staging index").WithCause(err)
	}
	return nil
}

// Stage writes the document hash. Each entity field stores its candidates
// as JSON and a lowercased answer list for the text index.
func (s *RedisStore) Stage(ctx context.Context, doc *Document) error {
	values := make(map[string]interface{}, len(doc.Fields)*2)
	for field, candidates := range doc.Fields {
		encoded, err := json.Marshal(candidates)
		if err != nil {
			return pipeerr.New("staging", "stage", pipeerr.ErrCodeHandler,
				"failed to encode candidates for "+field).WithCause(err)
		}
		values[field] = string(encoded)

		answers := make([]string, 0, len(candidates))
		for _, c := range candidates {
			answers = append(answers, strings.ToLower(c.Answer))
		}
		values[textField(field)] = strings.Join(answers, " ")
	}
	if err := s.client.HSet(ctx, s.index+":"+doc.ID, values).Err(); err != nil {
		return pipeerr.New("staging", "stage", pipeerr.ErrCodeUpstream,
			"failed to stage document "+doc.ID).WithCause(err)
	}
	return nil
}

// Search returns a lazy stream over the query's hits.
func (s *RedisStore) Search(ctx context.Context, query string) (*HitStream, error) {
	if query == "" {
		return nil, pipeerr.New("staging", "search", pipeerr.ErrCodeValidation,
			"empty staging query")
	}
	return NewHitStream(func(ctx context.Context, offset, count int) ([]*Document, error) {
		res, err := s.client.FTSearchWithArgs(ctx, s.index, query, &redis.FTSearchOptions{
			LimitOffset: offset,
			Limit:       count,
		}).Result()
		if err != nil {
			return nil, pipeerr.New("staging", "search", pipeerr.ErrCodeUpstream,
				"staging query failed").WithCause(err)
		}
		docs := make([]*Document, 0, len(res.Docs))
		for _, hit := range res.Docs {
			doc, err := s.decode(hit)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}, s.pageSize), nil
}

func (s *RedisStore) decode(hit redis.Document) (*Document, error) {
	doc := &Document{
		ID:     strings.TrimPrefix(hit.ID, s.index+":"),
		Fields: make(map[string][]Candidate, len(s.fields)),
	}
	for _, field := range s.fields {
		raw, ok := hit.Fields[field]
		if !ok || raw == "" {
			continue
		}
		var candidates []Candidate
		if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
			return nil, pipeerr.New("staging", "search", pipeerr.ErrCodeParse,
				"malformed candidates in document "+hit.ID).WithCause(err)
		}
		doc.Fields[field] = candidates
	}
	return doc, nil
}

// Close releases the connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
