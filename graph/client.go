// Package graph wraps the property-graph store. The pipeline needs two
// operations: parameterized Cypher reads for the aggregator and
// comma-joined MERGE batches for the graph writer, each batch executing as
// one transactional statement.
package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FalkorDB/falkordb-go/v2"

	"github.com/partsol/checkmate/pipeerr"
)

// Rows is a decoded query result: column names plus row values. Graph
// entities are normalized to NodeValue/EdgeValue; scalars pass through.
type Rows struct {
	Columns []string
	Values  [][]interface{}
}

// NodeValue is a returned graph node, reduced to its property map.
type NodeValue struct {
	Properties map[string]interface{}
}

// EdgeValue is a returned relationship. Endpoint identity is positional:
// in a row the edge sits between its source and target nodes.
type EdgeValue struct {
	Relation   string
	Properties map[string]interface{}
}

// Client is the store surface the pipeline depends on.
type Client interface {
	// Query runs a Cypher statement with bound parameters.
	Query(ctx context.Context, cypher string, params map[string]interface{}) (*Rows, error)

	// Merge joins the clauses with commas into a single MERGE statement
	// and executes it as one transactional unit. A failed statement is
	// rolled back by the store.
	Merge(ctx context.Context, clauses []string) error

	Close() error
}

// Config holds the store connection settings.
type Config struct {
	Addr      string
	Password  string
	GraphName string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type falkorClient struct {
	db    *falkordb.FalkorDB
	graph *falkordb.Graph
}

// Connect opens the store connection and selects the graph.
func Connect(cfg Config) (Client, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.GraphName == "" {
		cfg.GraphName = "checkmate"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}

	db, err := falkordb.FalkorDBNew(&falkordb.ConnectionOption{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err != nil {
		return nil, pipeerr.New("graph", "connect", pipeerr.ErrCodeUpstream,
			"failed to connect to graph store").WithCause(err)
	}

	return &falkorClient{db: db, graph: db.SelectGraph(cfg.GraphName)}, nil
}

func (c *falkorClient) Query(ctx context.Context, cypher string, params map[string]interface{}) (*Rows, error) {
	result, err := c.graph.Query(cypher, params, nil)
	if err != nil {
		return nil, pipeerr.New("graph", "query", pipeerr.ErrCodeUpstream,
			"graph query failed").WithCause(err)
	}

	rows := &Rows{}
	first := true
	for result.Next() {
		record := result.Record()
		if first {
			rows.Columns = record.Keys()
			first = false
		}
		values := record.Values()
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = normalizeValue(v)
		}
		rows.Values = append(rows.Values, row)
	}
	return rows, nil
}

// normalizeValue maps the driver's entity types onto the package's
// wire-independent values. Nil comes from OPTIONAL MATCH misses.
func normalizeValue(v interface{}) interface{} {
	switch e := v.(type) {
	case falkordb.Node:
		return NodeValue{Properties: e.Properties}
	case *falkordb.Node:
		return NodeValue{Properties: e.Properties}
	case falkordb.Edge:
		return EdgeValue{Relation: e.Relation, Properties: e.Properties}
	case *falkordb.Edge:
		return EdgeValue{Relation: e.Relation, Properties: e.Properties}
	default:
		return v
	}
}

func (c *falkorClient) Merge(ctx context.Context, clauses []string) error {
	if len(clauses) == 0 {
		return nil
	}
	statement := "MERGE " + strings.Join(clauses, ",")
	if _, err := c.graph.Query(statement, nil, nil); err != nil {
		return pipeerr.New("graph", "merge", pipeerr.ErrCodeUpstream,
			fmt.Sprintf("merge of %d clauses failed", len(clauses))).WithCause(err)
	}
	return nil
}

func (c *falkorClient) Close() error {
	if c.db != nil && c.db.Conn != nil {
		return c.db.Conn.Close()
	}
	return nil
}
