package graphwrite

import (
	"context"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/partsol/checkmate/cloudevent"
	"github.com/partsol/checkmate/graph"
	"github.com/partsol/checkmate/pipeerr"
	"github.com/partsol/checkmate/pipeline"
	"github.com/partsol/checkmate/staging"
)

// LoadPlan reads and normalizes a projection plan artifact.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pipeerr.New("graphwrite", "loadplan", pipeerr.ErrCodeConfig,
			"projection plan not found at "+path).WithCause(err)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, pipeerr.New("graphwrite", "loadplan", pipeerr.ErrCodeParse,
			"malformed projection plan "+path).WithCause(err)
	}
	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Stage turns staged documents into graph writes: it searches the staging
// store with the event's constraint terms, projects the hits into dyads
// and MERGEs them in chunks.
type Stage struct {
	Plan   *Plan
	Store  staging.Store
	Graph  graph.Client
	Logger *slog.Logger
}

func (s *Stage) Handler() pipeline.Handler {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	projector := &Projector{Plan: s.Plan, Logger: logger}
	writer := &Writer{Client: s.Graph, ChunkSize: s.Plan.ChunkSize, Logger: logger}

	return func(ctx context.Context, payload []byte, ev pipeline.Event) ([][]byte, error) {
		p, err := cloudevent.DecodePayload(payload)
		if err != nil {
			return nil, err
		}
		query := staging.BuildQuery(p, s.Plan.TypeFields())
		if query == "" {
			logger.Info("event carries no queryable constraints, skipping",
				"correlationid", ev.CorrelationID)
			return nil, nil
		}

		hits, err := s.Store.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		written, err := writer.Write(ctx, StreamDyads(hits, projector))
		if err != nil {
			return nil, err
		}
		logger.Info("merged staged hits into graph",
			"correlationid", ev.CorrelationID,
			"query", query,
			"dyads", written)

		return [][]byte{payload}, nil
	}
}
