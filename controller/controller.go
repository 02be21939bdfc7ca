// Package controller implements the search-intake stage: it turns an
// incoming search event into a taxonomy-driven fan-out of expansion
// queries, one outbound event per (path, data source), and hands the
// compiled Cypher to the DAG orchestrator.
package controller

import (
	"context"
	"log/slog"
	"strings"

	"github.com/partsol/checkmate/cloudevent"
	"github.com/partsol/checkmate/orchestrator"
	"github.com/partsol/checkmate/pipeline"
	"github.com/partsol/checkmate/registry"
	"github.com/partsol/checkmate/search"
	"github.com/partsol/checkmate/taxonomy"
)

// SearchTypeAdvanced selects the AND-joined filter grammar. Any other
// value falls back to the simple starts-with search.
const SearchTypeAdvanced = "advance"

// Triggerer starts the downstream DAG run for a compiled query.
type Triggerer interface {
	TriggerDAGRun(ctx context.Context, cypherQuery string) error
}

var _ Triggerer = (*orchestrator.Client)(nil)

// Stage is the controller's handler state. Registry and Airflow are
// optional; a nil registry means the static DataSources list is
// authoritative, a nil Airflow skips DAG triggering.
type Stage struct {
	Taxonomies *taxonomy.Store
	TaxonomyID string
	Sources    []taxonomy.DataSource
	Registry   registry.Registry
	Airflow    Triggerer
	Tenant     string
	MaxDepth   int
	Logger     *slog.Logger

	planner search.Planner
}

// sources returns the fan-out list, narrowed to live registrations when a
// registry is wired. A registry failure falls back to the static list so a
// flaky etcd cannot stall searches.
func (s *Stage) sources(ctx context.Context, logger *slog.Logger) []taxonomy.DataSource {
	if s.Registry == nil {
		return s.Sources
	}
	live, err := s.Registry.Sources(ctx)
	if err != nil {
		logger.Warn("registry lookup failed, using static data sources", "error", err)
		return s.Sources
	}
	alive := make(map[taxonomy.DataSource]bool, len(live))
	for _, src := range live {
		alive[src] = true
	}
	var out []taxonomy.DataSource
	for _, src := range s.Sources {
		if alive[src] {
			out = append(out, src)
		}
	}
	return out
}

// build compiles the payload into a Search. Advanced parse failures are
// returned so the caller can drop the event.
func (s *Stage) build(tax *taxonomy.Taxonomy, p *cloudevent.Payload) (*search.Search, error) {
	if p.SearchType == SearchTypeAdvanced {
		return search.BuildAdvanced(tax, p.SearchID, p.SearchQuery)
	}
	return search.BuildSimple(tax, p.SearchID, p.SearchQuery)
}

// Handler returns the pipeline handler. The runtime derives expansion
// envelopes for its outputs, so each outbound event gets a fresh id, the
// inbound id as parent and an incremented depth.
func (s *Stage) Handler() pipeline.Handler {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, payload []byte, ev pipeline.Event) ([][]byte, error) {
		if s.MaxDepth > 0 && ev.Envelope != nil && ev.Envelope.Extensions.Depth >= s.MaxDepth {
			logger.Info("expansion depth limit reached, dropping event",
				"correlationid", ev.CorrelationID,
				"depth", ev.Envelope.Extensions.Depth)
			return nil, nil
		}

		p, err := cloudevent.DecodePayload(payload)
		if err != nil {
			return nil, err
		}
		queryDepth := strings.TrimSpace(p.QueryDepth)
		if queryDepth == "" {
			logger.Error("event carries no queryDepth", "correlationid", ev.CorrelationID)
			queryDepth = "0"
		}

		taxonomyID := p.TaxonomyID()
		if taxonomyID == "" {
			taxonomyID = s.TaxonomyID
		}
		tax, err := s.Taxonomies.Load(taxonomyID)
		if err != nil {
			return nil, err
		}

		q, err := s.build(tax, p)
		if err != nil {
			logger.Error("unable to parse search query",
				"correlationid", ev.CorrelationID,
				"searchQuery", p.SearchQuery,
				"error", err)
			return nil, nil
		}

		tenant := p.Tenant()
		if tenant == "" {
			tenant = s.Tenant
		}
		queries, cypher, err := s.planner.Plan(tax, q, s.sources(ctx, logger), tenant)
		if err != nil {
			return nil, err
		}

		if s.Airflow != nil {
			if err := s.Airflow.TriggerDAGRun(ctx, cypher.String()); err != nil {
				logger.Error("dag trigger failed", "correlationid", ev.CorrelationID, "error", err)
			}
		}

		out := make([][]byte, 0, len(queries))
		for _, eq := range queries {
			derived := *p
			derived.QueryDepth = queryDepth
			derived.SearchQueries = eq.PayloadItems()
			data, err := derived.Encode()
			if err != nil {
				return nil, err
			}
			out = append(out, data)
		}
		logger.Info("planned search fan-out",
			"correlationid", ev.CorrelationID,
			"taxonomy", taxonomyID,
			"queries", len(out))
		return out, nil
	}
}
