// Package config loads stage configuration. Environment variables are
// authoritative; an optional stage.yaml file fills in what the environment
// leaves unset, and hard defaults cover the rest.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/partsol/checkmate/pipeerr"
)

// Config carries every knob a stage binary needs. Fields irrelevant to a
// given stage stay at their zero value.
type Config struct {
	// Event bus.
	BusAddr     string `yaml:"busAddr"`
	BusUsername string `yaml:"busUsername"`
	BusPassword string `yaml:"busPassword"`

	// Topic naming.
	Environment string `yaml:"environment"`
	Tenant      string `yaml:"tenant"`

	// Stage identity and dispatch.
	Service         string   `yaml:"service"`
	GroupID         string   `yaml:"groupId"`
	MaxWorkers      int      `yaml:"maxWorkers"`
	InboundProducer string   `yaml:"inboundProducer"`
	InboundEvents   []string `yaml:"inboundEvents"`
	OutboundEvent   string   `yaml:"outboundEvent"`
	KeyPrefix       string   `yaml:"keyPrefix"`

	// Graph store.
	GraphURI      string `yaml:"graphUri"`
	GraphName     string `yaml:"graphName"`
	GraphUser     string `yaml:"graphUser"`
	GraphPassword string `yaml:"graphPassword"`

	// Staging store.
	StagingAddr  string `yaml:"stagingAddr"`
	StagingIndex string `yaml:"stagingIndex"`

	// Taxonomy artifacts and expansion policy.
	TaxonomyDir string   `yaml:"taxonomyDir"`
	TaxonomyID  string   `yaml:"taxonomyId"`
	MaxDepth    int      `yaml:"maxDepth"`
	DataSources []string `yaml:"dataSources"`

	// Graph-discovery projection plan.
	PlanFile string `yaml:"planFile"`

	// Data-source registry.
	EtcdEndpoints []string `yaml:"etcdEndpoints"`
	EtcdNamespace string   `yaml:"etcdNamespace"`

	// DAG orchestrator.
	AirflowHost     string `yaml:"airflowHost"`
	AirflowPort     int    `yaml:"airflowPort"`
	AirflowDAG      string `yaml:"airflowDag"`
	AirflowUser     string `yaml:"airflowUser"`
	AirflowPassword string `yaml:"airflowPassword"`
	AirflowToken    string `yaml:"airflowToken"`
}

func defaults() Config {
	return Config{
		BusAddr:       "redis://localhost:6379",
		Environment:   "dev",
		Tenant:        "default",
		MaxWorkers:    0,
		GraphName:     "checkmate",
		StagingIndex:  "staging",
		TaxonomyDir:   "taxonomies",
		MaxDepth:      1,
		AirflowDAG:    "cypher_dag",
		AirflowPort:   8080,
		EtcdNamespace: "checkmate",
	}
}

// Load resolves the configuration: defaults, then the YAML file named by
// CHECKMATE_CONFIG_FILE (if any), then CHECKMATE_* environment variables on
// top.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CHECKMATE_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, pipeerr.New("config", "load", pipeerr.ErrCodeConfig,
				"failed to read config file "+path).WithCause(err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, pipeerr.New("config", "load", pipeerr.ErrCodeParse,
				"failed to parse config file "+path).WithCause(err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.BusAddr, "CHECKMATE_BUS_ADDR")
	setString(&cfg.BusUsername, "CHECKMATE_BUS_USERNAME")
	setString(&cfg.BusPassword, "CHECKMATE_BUS_PASSWORD")
	setString(&cfg.Environment, "CHECKMATE_ENV")
	setString(&cfg.Tenant, "CHECKMATE_TENANT")
	setString(&cfg.Service, "CHECKMATE_SERVICE")
	setString(&cfg.GroupID, "CHECKMATE_GROUP_ID")
	setInt(&cfg.MaxWorkers, "CHECKMATE_MAX_WORKERS")
	setString(&cfg.InboundProducer, "CHECKMATE_INBOUND_PRODUCER")
	setList(&cfg.InboundEvents, "CHECKMATE_INBOUND_EVENTS")
	setString(&cfg.OutboundEvent, "CHECKMATE_OUTBOUND_EVENT")
	setString(&cfg.KeyPrefix, "CHECKMATE_KEY_PREFIX")
	setString(&cfg.GraphURI, "CHECKMATE_GRAPH_URI")
	setString(&cfg.GraphName, "CHECKMATE_GRAPH_NAME")
	setString(&cfg.GraphUser, "CHECKMATE_GRAPH_USER")
	setString(&cfg.GraphPassword, "CHECKMATE_GRAPH_PASSWORD")
	setString(&cfg.StagingAddr, "CHECKMATE_STAGING_ADDR")
	setString(&cfg.StagingIndex, "CHECKMATE_STAGING_INDEX")
	setString(&cfg.TaxonomyDir, "CHECKMATE_TAXONOMY_DIR")
	setString(&cfg.TaxonomyID, "CHECKMATE_TAXONOMY_ID")
	setInt(&cfg.MaxDepth, "CHECKMATE_MAX_DEPTH")
	setString(&cfg.PlanFile, "CHECKMATE_PLAN_FILE")
	setList(&cfg.DataSources, "CHECKMATE_DATA_SOURCES")
	setList(&cfg.EtcdEndpoints, "CHECKMATE_ETCD_ENDPOINTS")
	setString(&cfg.EtcdNamespace, "CHECKMATE_ETCD_NAMESPACE")
	setString(&cfg.AirflowHost, "CHECKMATE_AIRFLOW_HOST")
	setInt(&cfg.AirflowPort, "CHECKMATE_AIRFLOW_PORT")
	setString(&cfg.AirflowDAG, "CHECKMATE_AIRFLOW_DAG")
	setString(&cfg.AirflowUser, "CHECKMATE_AIRFLOW_USER")
	setString(&cfg.AirflowPassword, "CHECKMATE_AIRFLOW_PASSWORD")
	setString(&cfg.AirflowToken, "CHECKMATE_AIRFLOW_TOKEN")
}

func (c *Config) validate() error {
	if c.MaxWorkers < 0 {
		return pipeerr.New("config", "validate", pipeerr.ErrCodeConfig,
			"maxWorkers must be >= 0")
	}
	if c.MaxDepth < 1 {
		return pipeerr.New("config", "validate", pipeerr.ErrCodeConfig,
			"maxDepth must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
