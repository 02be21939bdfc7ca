// The data-aggregator re-runs each search against the knowledge graph and
// publishes the aggregated result view.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/partsol/checkmate/aggregate"
	"github.com/partsol/checkmate/bus"
	"github.com/partsol/checkmate/config"
	"github.com/partsol/checkmate/graph"
	"github.com/partsol/checkmate/health"
	"github.com/partsol/checkmate/pipeline"
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
		cfg.Service = "data-aggregator"
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("service", cfg.Service)

	shutdownTelemetry := telemetry.Setup(context.Background(), cfg.Service, logger)
	defer shutdownTelemetry(context.Background())

	if !health.Run(context.Background(), logger,
		health.TCP("bus", cfg.BusAddr, 0),
		health.TCP("graph", cfg.GraphURI, 0)) {
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

	g, err := graph.Connect(graph.Config{
		Addr:      cfg.GraphURI,
		Password:  cfg.GraphPassword,
		GraphName: cfg.GraphName,
	})
	if err != nil {
		logger.Error("graph connection failed", "error", err)
		os.Exit(1)
	}
	defer g.Close()

	stage := &aggregate.Stage{
		Taxonomies: taxonomy.NewStore(cfg.TaxonomyDir),
		Graph:      g,
		Logger:     logger,
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
	}, b, stage.Handler(), logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx); err != nil {
		logger.Error("stage stopped", "error", err)
		os.Exit(1)
	}
}
