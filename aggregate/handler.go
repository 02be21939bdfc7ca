package aggregate

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/partsol/checkmate/cloudevent"
	"github.com/partsol/checkmate/graph"
	"github.com/partsol/checkmate/pipeerr"
	"github.com/partsol/checkmate/pipeline"
	"github.com/partsol/checkmate/taxonomy"
)

// Result is the search-result view published downstream after each
// aggregation round. Identity fields are copied from the triggering
// payload so the consumer can correlate updates.
type Result struct {
	CorrelationID string `json:"correlationId"`
	SearchID      string `json:"searchId,omitempty"`
	QueryType     string `json:"queryType,omitempty"`
	QueryDepth    string `json:"queryDepth,omitempty"`
	TenantName    string `json:"tenantName,omitempty"`
	Status        string `json:"status"`
	Nodes         []Node `json:"nodes"`
	Edges         []Edge `json:"edges"`
}

// StatusCompleted marks a result view that reflects every row the query
// returned for this round.
const StatusCompleted = "COMPLETED"

// Stage wires query building, execution and aggregation into a pipeline
// handler. One Stage instance serves the consumer group's whole stream, so
// the aggregator's dedupe state spans events.
type Stage struct {
	Taxonomies *taxonomy.Store
	Graph      graph.Client
	Logger     *slog.Logger

	builder QueryBuilder
	agg     Aggregator
}

// Persist renders the aggregated view as the outbound payload bytes.
func Persist(p *cloudevent.Payload, nodes []Node, edges []Edge) ([]byte, error) {
	if nodes == nil {
		nodes = []Node{}
	}
	if edges == nil {
		edges = []Edge{}
	}
	result := Result{
		CorrelationID: p.CorrelationID,
		SearchID:      p.SearchID,
		QueryType:     p.SearchType,
		QueryDepth:    p.QueryDepth,
		TenantName:    p.Tenant(),
		Status:        StatusCompleted,
		Nodes:         nodes,
		Edges:         edges,
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, pipeerr.New("aggregate", "persist", pipeerr.ErrCodeParse,
			"failed to encode result view").WithCause(err)
	}
	return data, nil
}

// Handler decodes the event, re-runs the search against the graph and
// emits the updated result view. Events without a taxonomy id are
// acknowledged without effect.
func (s *Stage) Handler() pipeline.Handler {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	executor := &Executor{Graph: s.Graph}

	return func(ctx context.Context, payload []byte, ev pipeline.Event) ([][]byte, error) {
		p, err := cloudevent.DecodePayload(payload)
		if err != nil {
			return nil, err
		}
		taxonomyID := p.TaxonomyID()
		if taxonomyID == "" {
			logger.Warn("event carries no taxonomy id, skipping",
				"correlationid", ev.CorrelationID)
			return nil, nil
		}

		tax, err := s.Taxonomies.Load(taxonomyID)
		if err != nil {
			return nil, err
		}
		q, err := s.builder.Build(tax, p)
		if err != nil {
			return nil, err
		}
		rows, err := executor.Execute(ctx, tax, q)
		if err != nil {
			return nil, err
		}

		nodes, edges := s.agg.Aggregate(ev.CorrelationID, rows)
		logger.Info("aggregated search result",
			"correlationid", ev.CorrelationID,
			"nodes", len(nodes),
			"edges", len(edges))

		out, err := Persist(p, nodes, edges)
		if err != nil {
			return nil, err
		}
		return [][]byte{out}, nil
	}
}
