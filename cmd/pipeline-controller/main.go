// The pipeline-controller consumes incoming search events, plans the
// taxonomy-driven expansion fan-out and triggers the Cypher DAG.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/partsol/checkmate/bus"
	"github.com/partsol/checkmate/config"
	"github.com/partsol/checkmate/controller"
	"github.com/partsol/checkmate/health"
	"github.com/partsol/checkmate/orchestrator"
	"github.com/partsol/checkmate/pipeline"
	"github.com/partsol/checkmate/registry"
	"github.com/partsol/checkmate/taxonomy"
	"github.com/partsol/checkmate/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration failed", "error", err)
		os.Exit(1)
	}
	if cfg.Service == "" {
		cfg.Service = "pipeline-controller"
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("service", cfg.Service)

	shutdownTelemetry := telemetry.Setup(context.Background(), cfg.Service, logger)
	defer shutdownTelemetry(context.Background())

	checks := []health.Check{health.TCP("bus", cfg.BusAddr, 0)}
	if cfg.AirflowHost != "" {
		checks = append(checks, health.TCP("airflow",
			fmt.Sprintf("%s:%d", cfg.AirflowHost, cfg.AirflowPort), 0))
	}
	if !health.Run(context.Background(), logger, checks...) {
		logger.Warn("starting with unreachable dependencies")
	}

	b, err := bus.NewRedisBus(bus.Options{
		Addr:     cfg.BusAddr,
		Username: cfg.BusUsername,
		Password: cfg.BusPassword,
	})
	if err != nil {
		logger.Error("bus connection failed", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	stage := &controller.Stage{
		Taxonomies: taxonomy.NewStore(cfg.TaxonomyDir),
		TaxonomyID: cfg.TaxonomyID,
		Tenant:     cfg.Tenant,
		MaxDepth:   cfg.MaxDepth,
		Logger:     logger,
	}
	for _, src := range cfg.DataSources {
		ds := taxonomy.DataSource(src)
		if !ds.Valid() {
			logger.Warn("ignoring unknown data source", "dataSource", src)
			continue
		}
		stage.Sources = append(stage.Sources, ds)
	}

	if len(cfg.EtcdEndpoints) > 0 {
		reg, err := registry.NewClient(registry.Config{
			Endpoints: cfg.EtcdEndpoints,
			Namespace: cfg.EtcdNamespace,
		})
		if err != nil {
			logger.Error("registry connection failed", "error", err)
			os.Exit(1)
		}
		defer reg.Close()
		stage.Registry = reg
	}

	if cfg.AirflowHost != "" {
		stage.Airflow = orchestrator.NewClient(orchestrator.Config{
			Host:     cfg.AirflowHost,
			Port:     cfg.AirflowPort,
			DAG:      cfg.AirflowDAG,
			User:     cfg.AirflowUser,
			Password: cfg.AirflowPassword,
			Token:    cfg.AirflowToken,
		}, logger)
	}

	metrics, err := telemetry.NewStageMetrics()
	if err != nil {
		logger.Warn("metrics unavailable", "error", err)
	}

	runner := pipeline.New(pipeline.Options{
		Service:       cfg.Service,
		Environment:   cfg.Environment,
		GroupID:       cfg.GroupID,
		InboundTopics: bus.InboundTopics(cfg.Environment, cfg.Tenant, cfg.InboundProducer, cfg.InboundEvents),
		OutboundEvent: cfg.OutboundEvent,
		KeyPrefix:     cfg.KeyPrefix,
		MaxWorkers:    cfg.MaxWorkers,
		Expansion:     true,
	}, b, stage.Handler(), logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx); err != nil {
		logger.Error("stage stopped", "error", err)
		os.Exit(1)
	}
}
