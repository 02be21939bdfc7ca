// Package registry tracks which ingress workers are alive, per data source.
// Workers register under a leased key; the pipeline controller narrows its
// fan-out to data sources with at least one live registration.
package registry

import (
	"context"
	"time"

	"github.com/partsol/checkmate/taxonomy"
)

// WorkerInfo describes one ingress worker instance.
type WorkerInfo struct {
	DataSource taxonomy.DataSource `json:"dataSource"`
	Service    string              `json:"service"`
	InstanceID string              `json:"instanceId"`
	Endpoint   string              `json:"endpoint,omitempty"`
	StartedAt  time.Time           `json:"startedAt"`
}

// Registry is the data-source registry surface.
type Registry interface {
	// Register announces the worker and keeps its lease alive until
	// Deregister or Close.
	Register(ctx context.Context, info WorkerInfo) error

	// Sources returns the data sources with at least one live worker.
	Sources(ctx context.Context) ([]taxonomy.DataSource, error)

	// Workers lists the live workers of one data source.
	Workers(ctx context.Context, source taxonomy.DataSource) ([]WorkerInfo, error)

	// Deregister removes the worker's key and releases its lease.
	Deregister(ctx context.Context, info WorkerInfo) error

	Close() error
}

// Config holds the registry connection settings.
type Config struct {
	Endpoints []string
	Namespace string
	// TTL is the lease duration in seconds; keepalives renew at TTL/3.
	TTL int
	TLS *TLSConfig
}

// TLSConfig enables mutual TLS towards the registry cluster.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CAFile   string
}
