// Package orchestrator triggers the external Airflow DAG that runs the
// compiled Cypher against the knowledge graph.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/partsol/checkmate/pipeerr"
)

// Config carries the Airflow endpoint and credentials. Token is sent as the
// raw Authorization header value; User/Password as basic auth on top, the
// way the scheduler's webserver expects both.
type Config struct {
	Host     string
	Port     int
	DAG      string
	User     string
	Password string
	Token    string
	Timeout  time.Duration
}

const defaultTimeout = 10 * time.Second

// Client posts DAG run requests to the Airflow REST API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *Client) runsURL() string {
	return fmt.Sprintf("http://%s:%d/api/v1/dags/%s/dagRuns", c.cfg.Host, c.cfg.Port, c.cfg.DAG)
}

// TriggerDAGRun starts one DAG run with the Cypher query as its conf.
// Failures are UPSTREAM_ERRORs; callers treat them as non-fatal and keep
// the pipeline running.
func (c *Client) TriggerDAGRun(ctx context.Context, cypherQuery string) error {
	body, err := json.Marshal(map[string]interface{}{
		"conf": map[string]string{"cypherQuery": cypherQuery},
	})
	if err != nil {
		return pipeerr.New("orchestrator", "trigger", pipeerr.ErrCodeParse,
			"failed to encode dag run conf").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.runsURL(), bytes.NewReader(body))
	if err != nil {
		return pipeerr.New("orchestrator", "trigger", pipeerr.ErrCodeConfig,
			"invalid airflow endpoint").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", c.cfg.Token)
	}
	if c.cfg.User != "" {
		req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pipeerr.New("orchestrator", "trigger", pipeerr.ErrCodeUpstream,
			"airflow request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pipeerr.New("orchestrator", "trigger", pipeerr.ErrCodeUpstream,
			fmt.Sprintf("airflow returned status %d", resp.StatusCode))
	}
	c.logger.Debug("triggered dag run", "dag", c.cfg.DAG)
	return nil
}
