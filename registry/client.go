package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/partsol/checkmate/pipeerr"
	"github.com/partsol/checkmate/taxonomy"
)

// Client implements Registry on an etcd cluster. Registrations live under
// /{namespace}/datasources/{dataSource}/{instanceID} with a leased TTL;
// keepalives renew every TTL/3 so a crashed worker expires on its own.
//
// All methods are safe for concurrent use.
type Client struct {
	client    *clientv3.Client
	namespace string
	ttl       int

	mu        sync.Mutex
	leases    map[string]clientv3.LeaseID
	cancelFns map[string]context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
}

// NewClient connects to the registry cluster and verifies connectivity.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, pipeerr.New("registry", "connect", pipeerr.ErrCodeConfig,
			"registry endpoints cannot be empty")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "checkmate"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	}
	tlsConfig, err := clientTLS(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientCfg.TLS = tlsConfig
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, pipeerr.New("registry", "connect", pipeerr.ErrCodeUpstream,
			"failed to create registry client").WithCause(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, pipeerr.New("registry", "connect", pipeerr.ErrCodeUpstream,
			"registry health check failed").WithCause(err)
	}

	return &Client{
		client:    cli,
		namespace: cfg.Namespace,
		ttl:       cfg.TTL,
		leases:    make(map[string]clientv3.LeaseID),
		cancelFns: make(map[string]context.CancelFunc),
	}, nil
}

// sourcePrefix is the key prefix of one data source's registrations.
func (c *Client) sourcePrefix(source taxonomy.DataSource) string {
	return fmt.Sprintf("/%s/datasources/%s/", c.namespace, source)
}

// workerKey is the full key of one worker registration.
func (c *Client) workerKey(info WorkerInfo) string {
	return c.sourcePrefix(info.DataSource) + info.InstanceID
}

// Register writes the worker's key under a fresh lease and starts a
// keepalive goroutine.
func (c *Client) Register(ctx context.Context, info WorkerInfo) error {
	if !info.DataSource.Valid() {
		return pipeerr.New("registry", "register", pipeerr.ErrCodeValidation,
			"unknown data source "+string(info.DataSource))
	}
	if info.InstanceID == "" {
		return pipeerr.New("registry", "register", pipeerr.ErrCodeValidation,
			"worker instance id is required")
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}

	data, err := json.Marshal(info)
	if err != nil {
		return pipeerr.New("registry", "register", pipeerr.ErrCodeHandler,
			"failed to encode worker info").WithCause(err)
	}

	lease, err := c.client.Grant(ctx, int64(c.ttl))
	if err != nil {
		return pipeerr.New("registry", "register", pipeerr.ErrCodeUpstream,
			"failed to grant registry lease").WithCause(err)
	}

	key := c.workerKey(info)
	if _, err := c.client.Put(ctx, key, string(data), clientv3.WithLease(lease.ID)); err != nil {
		return pipeerr.New("registry", "register", pipeerr.ErrCodeUpstream,
			"failed to write registration "+key).WithCause(err)
	}

	keepCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return pipeerr.New("registry", "register", pipeerr.ErrCodeUpstream,
			"registry client is closed")
	}
	c.leases[key] = lease.ID
	c.cancelFns[key] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go c.keepAlive(keepCtx, lease.ID)
	return nil
}

// keepAlive renews the lease every TTL/3 until cancelled. A missed renewal
// is left to the lease expiry: the registration disappears on its own.
func (c *Client) keepAlive(ctx context.Context, leaseID clientv3.LeaseID) {
	defer c.wg.Done()
	interval := time.Duration(c.ttl) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.client.KeepAliveOnce(context.Background(), leaseID)
		}
	}
}

// Sources lists data sources with at least one live registration, in
// enumeration order.
func (c *Client) Sources(ctx context.Context) ([]taxonomy.DataSource, error) {
	var sources []taxonomy.DataSource
	for _, source := range taxonomy.DataSources() {
		resp, err := c.client.Get(ctx, c.sourcePrefix(source),
			clientv3.WithPrefix(), clientv3.WithCountOnly())
		if err != nil {
			return nil, pipeerr.New("registry", "sources", pipeerr.ErrCodeUpstream,
				"failed to list registrations").WithCause(err)
		}
		if resp.Count > 0 {
			sources = append(sources, source)
		}
	}
	return sources, nil
}

// Workers lists the live workers of one data source, sorted by instance id.
func (c *Client) Workers(ctx context.Context, source taxonomy.DataSource) ([]WorkerInfo, error) {
	resp, err := c.client.Get(ctx, c.sourcePrefix(source), clientv3.WithPrefix())
	if err != nil {
		return nil, pipeerr.New("registry", "workers", pipeerr.ErrCodeUpstream,
			"failed to list workers").WithCause(err)
	}
	workers := make([]WorkerInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info WorkerInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			return nil, pipeerr.New("registry", "workers", pipeerr.ErrCodeParse,
				"malformed registration "+string(kv.Key)).WithCause(err)
		}
		workers = append(workers, info)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].InstanceID < workers[j].InstanceID })
	return workers, nil
}

// Deregister removes the worker's key and stops its keepalive.
func (c *Client) Deregister(ctx context.Context, info WorkerInfo) error {
	key := c.workerKey(info)

	c.mu.Lock()
	if cancel, ok := c.cancelFns[key]; ok {
		cancel()
		delete(c.cancelFns, key)
	}
	leaseID, hasLease := c.leases[key]
	delete(c.leases, key)
	c.mu.Unlock()

	if _, err := c.client.Delete(ctx, key); err != nil {
		return pipeerr.New("registry", "deregister", pipeerr.ErrCodeUpstream,
			"failed to delete registration "+key).WithCause(err)
	}
	if hasLease {
		_, _ = c.client.Revoke(ctx, leaseID)
	}
	return nil
}

// Close stops every keepalive and closes the connection. Registrations
// expire with their leases.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for key, cancel := range c.cancelFns {
		cancel()
		delete(c.cancelFns, key)
	}
	c.mu.Unlock()

	c.wg.Wait()
	return c.client.Close()
}
