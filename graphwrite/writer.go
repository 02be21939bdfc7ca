package graphwrite

import (
	"context"
	"log/slog"

	"github.com/partsol/checkmate/graph"
	"github.com/partsol/checkmate/staging"
)

// Writer persists a dyad stream in bounded chunks. Each chunk executes as
// one transactional MERGE statement; the first failure stops the stream and
// surfaces with no automatic retry; the store rolls the failed statement
// back. Clauses carry no volatile values, so re-running an identical
// stream leaves the graph unchanged.
type Writer struct {
	Client    graph.Client
	ChunkSize int
	Logger    *slog.Logger
}

// NextDyad yields the next dyad of a stream; false means exhausted.
type NextDyad func(ctx context.Context) (*Dyad, bool, error)

// Write drains the stream. Returns the number of dyads committed.
func (w *Writer) Write(ctx context.Context, next NextDyad) (int, error) {
	chunkSize := w.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	written := 0
	clauses := make([]string, 0, chunkSize)
	idx := 0

	flush := func() error {
		if len(clauses) == 0 {
			return nil
		}
		if err := w.Client.Merge(ctx, clauses); err != nil {
			return err
		}
		written += len(clauses)
		if w.Logger != nil {
			w.Logger.Debug("committed graph chunk", "clauses", len(clauses))
		}
		clauses = clauses[:0]
		return nil
	}

	for {
		dyad, ok, err := next(ctx)
		if err != nil {
			return written, err
		}
		if !ok {
			break
		}
		clause, err := dyad.Clause(idx)
		if err != nil {
			return written, err
		}
		idx++
		clauses = append(clauses, clause)
		if len(clauses) == chunkSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}

	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}

// StreamDyads adapts a staging hit stream plus a projector into a dyad
// stream, projecting documents on demand.
func StreamDyads(hits *staging.HitStream, projector *Projector) NextDyad {
	var pending []Dyad
	return func(ctx context.Context) (*Dyad, bool, error) {
		for len(pending) == 0 {
			doc, ok, err := hits.Next(ctx)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, nil
			}
			pending = projector.Project(doc)
		}
		d := pending[0]
		pending = pending[1:]
		return &d, true, nil
	}
}
