// Package fetcher defines the contract ingress workers implement and the
// stage glue that turns a fetcher into a pipeline handler: build a
// source-specific query from the expansion payload, fetch, stage the
// documents, and re-emit the payload downstream.
package fetcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/partsol/checkmate/cloudevent"
	"github.com/partsol/checkmate/pipeline"
	"github.com/partsol/checkmate/staging"
	"github.com/partsol/checkmate/taxonomy"
)

// Fetcher is implemented once per external data source. BuildQuery's result
// is opaque to the runtime; only Fetch interprets it.
type Fetcher interface {
	DataSource() taxonomy.DataSource
	BuildQuery(payload *cloudevent.Payload) (any, error)
	Fetch(ctx context.Context, query any) ([]*staging.Document, error)
}

// targetsSource reports whether any query item addresses the data source.
func targetsSource(payload *cloudevent.Payload, source taxonomy.DataSource) bool {
	for _, item := range payload.SearchQueries {
		if item.DataSource == string(source) {
			return true
		}
	}
	return false
}

// Stage adapts a Fetcher into a pipeline handler. Events addressed to
// other data sources are acknowledged without effect; fetched documents
// are staged and the inbound payload re-emitted for the graph-discovery
// stage.
func Stage(f Fetcher, store staging.Store, logger *slog.Logger) pipeline.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("dataSource", string(f.DataSource()))

	// The index is created lazily on the first event this worker stages.
	// A failed attempt is retried on the next event rather than latched.
	var (
		indexMu    sync.Mutex
		indexReady bool
	)
	ensureIndex := func(ctx context.Context) error {
		indexMu.Lock()
		defer indexMu.Unlock()
		if indexReady {
			return nil
		}
		if err := store.EnsureIndex(ctx); err != nil {
			return err
		}
		indexReady = true
		return nil
	}

	return func(ctx context.Context, payload []byte, ev pipeline.Event) ([][]byte, error) {
		decoded, err := cloudevent.DecodePayload(payload)
		if err != nil {
			return nil, err
		}
		if !targetsSource(decoded, f.DataSource()) {
			return nil, nil
		}

		if err := ensureIndex(ctx); err != nil {
			return nil, err
		}

		query, err := f.BuildQuery(decoded)
		if err != nil {
			return nil, err
		}
		docs, err := f.Fetch(ctx, query)
		if err != nil {
			return nil, err
		}

		for _, doc := range docs {
			if err := store.Stage(ctx, doc); err != nil {
				return nil, err
			}
		}
		logger.Info("staged fetch results",
			"correlationid", ev.CorrelationID,
			"documents", len(docs))

		return [][]byte{payload}, nil
	}
}
