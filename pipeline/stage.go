// Package pipeline implements the generic event-driven stage runtime: poll
// one event at a time from the inbound topics, dispatch to the stage handler
// with a strict concurrency cap, publish the handler's outputs to the
// derived outbound topic, and acknowledge only after the outputs are on the
// bus.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/partsol/checkmate/bus"
	"github.com/partsol/checkmate/cloudevent"
	"github.com/partsol/checkmate/pipeerr"
	"github.com/partsol/checkmate/telemetry"
)

// Event is the decoded inbound context handed to a handler alongside the
// payload bytes.
type Event struct {
	Envelope      *cloudevent.Envelope
	Topic         string
	Key           string
	Tenant        string
	CorrelationID string
	ParentID      string
}

// Handler processes one event's payload and returns zero or more output
// payloads. A nil slice publishes nothing. An error acknowledges the event
// without publishing, except fatal-class errors, which leave the event
// unacked and stop the stage.
type Handler func(ctx context.Context, payload []byte, ev Event) ([][]byte, error)

// Options configures a stage.
type Options struct {
	// Service names this stage; it becomes the producer segment of the
	// outbound topic.
	Service string

	// Environment is the leading topic segment.
	Environment string

	// GroupID is the consumer group; ConsumerID identifies this instance
	// within the group.
	GroupID    string
	ConsumerID string

	// InboundTopics lists the fully qualified topics to consume.
	InboundTopics []string

	// OutboundEvent is the trailing segment of the derived outbound topic.
	// Empty means the stage never publishes.
	OutboundEvent string

	// KeyPrefix, when set, rewrites outbound keys to {KeyPrefix}:{suffix}.
	KeyPrefix string

	// MaxWorkers strictly caps concurrent handler invocations. Zero means
	// synchronous processing on the poll goroutine.
	MaxWorkers int

	// Expansion switches outbound envelope derivation from pass-through to
	// fan-out: each output gets a fresh id, the inbound id as parent, and
	// an incremented depth.
	Expansion bool

	PollTimeout   time.Duration
	ShutdownGrace time.Duration
}

// Stage is one pipeline worker.
type Stage struct {
	opts    Options
	bus     bus.Bus
	handler Handler
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.StageMetrics

	wg    sync.WaitGroup
	slots chan struct{}
	fatal chan error
}

// New builds a stage. Metrics may be nil (instruments become no-ops).
func New(opts Options, b bus.Bus, handler Handler, logger *slog.Logger, metrics *telemetry.StageMetrics) *Stage {
	if opts.PollTimeout == 0 {
		opts.PollTimeout = time.Second
	}
	if opts.ShutdownGrace == 0 {
		opts.ShutdownGrace = 30 * time.Second
	}
	if opts.ConsumerID == "" {
		opts.ConsumerID = opts.Service
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Stage{
		opts:    opts,
		bus:     b,
		handler: handler,
		logger:  logger.With("service", opts.Service),
		tracer:  telemetry.Tracer(),
		metrics: metrics,
		fatal:   make(chan error, 1),
	}
	if opts.MaxWorkers > 0 {
		s.slots = make(chan struct{}, opts.MaxWorkers)
	}
	return s
}

// Run subscribes and processes events until ctx is cancelled or an
// unrecoverable bus error occurs. On cancellation it drains in-flight
// handlers up to ShutdownGrace and returns nil; unacked events are
// redelivered by the bus.
func (s *Stage) Run(ctx context.Context) error {
	if err := s.bus.Subscribe(ctx, s.opts.InboundTopics, s.opts.GroupID, s.opts.ConsumerID); err != nil {
		return err
	}
	s.logger.Info("stage started",
		"topics", s.opts.InboundTopics,
		"group", s.opts.GroupID,
		"maxWorkers", s.opts.MaxWorkers)

	for {
		select {
		case <-ctx.Done():
			return s.drain()
		case err := <-s.fatal:
			s.drain()
			return err
		default:
		}

		if s.slots != nil {
			select {
			case s.slots <- struct{}{}:
			case <-ctx.Done():
				return s.drain()
			case err := <-s.fatal:
				s.drain()
				return err
			}
		}

		msg, err := s.bus.Poll(ctx, s.opts.PollTimeout)
		if err != nil {
			s.release()
			if ctx.Err() != nil {
				return s.drain()
			}
			s.drain()
			return err
		}
		if msg == nil {
			s.release()
			continue
		}

		if s.slots == nil {
			if err := s.process(ctx, msg); err != nil {
				s.drain()
				return err
			}
			continue
		}

		s.wg.Add(1)
		go func(m *bus.Message) {
			defer s.wg.Done()
			defer s.release()
			if err := s.process(ctx, m); err != nil {
				select {
				case s.fatal <- err:
				default:
				}
			}
		}(msg)
	}
}

func (s *Stage) release() {
	if s.slots != nil {
		select {
		case <-s.slots:
		default:
		}
	}
}

func (s *Stage) drain() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.ShutdownGrace):
		s.logger.Warn("shutdown grace elapsed with handlers in flight")
	}
	return nil
}

// process decodes, dispatches, publishes, and acknowledges one event.
// Event-class handler failures ack and return nil; fatal-class handler
// failures and bus failures return the error and stop the stage.
func (s *Stage) process(ctx context.Context, msg *bus.Message) error {
	tenant := bus.TenantOf(msg.Topic)
	s.metrics.RecordHandled(ctx, s.opts.Service, tenant)
	s.metrics.HandlerStarted(ctx, s.opts.Service)
	defer s.metrics.HandlerDone(ctx, s.opts.Service)

	var env cloudevent.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		s.logger.Error("dropping undecodable event",
			"topic", msg.Topic, "offset", msg.ID, "error", err)
		s.metrics.RecordFailed(ctx, s.opts.Service, tenant)
		return s.ack(ctx, msg)
	}

	ctx, span := s.tracer.Start(ctx, "pipeline.handle", trace.WithAttributes(
		attribute.String("correlationid", env.Extensions.CorrelationID),
		attribute.String("topic", msg.Topic),
		attribute.String("tenant", tenant),
	))
	defer span.End()

	payload, err := s.backfillIdentity(&env)
	if err != nil {
		s.logger.Error("dropping event with undecodable payload",
			"topic", msg.Topic, "id", env.ID, "error", err)
		s.metrics.RecordFailed(ctx, s.opts.Service, tenant)
		return s.ack(ctx, msg)
	}

	ev := Event{
		Envelope:      &env,
		Topic:         msg.Topic,
		Key:           msg.Key,
		Tenant:        tenant,
		CorrelationID: env.Extensions.CorrelationID,
		ParentID:      env.Extensions.ParentID,
	}

	outputs, err := s.handler(ctx, payload, ev)
	if err != nil {
		s.metrics.RecordFailed(ctx, s.opts.Service, tenant)
		if pipeerr.IsFatal(err) {
			// Leave the event unacked so the bus redelivers it to the
			// replacement consumer.
			s.logger.Error("handler failed with fatal error, stopping stage",
				"correlationid", ev.CorrelationID,
				"topic", msg.Topic,
				"error", err)
			return err
		}
		s.logger.Error("handler failed",
			"correlationid", ev.CorrelationID,
			"topic", msg.Topic,
			"error", err,
			"class", pipeerr.ClassOf(err))
		return s.ack(ctx, msg)
	}

	if len(outputs) > 0 && s.opts.OutboundEvent != "" {
		topic := bus.Topic(s.opts.Environment, tenant, s.opts.Service, s.opts.OutboundEvent)
		key := msg.Key
		if s.opts.KeyPrefix != "" && key != "" {
			key = bus.PrefixKey(s.opts.KeyPrefix, key)
		}
		for _, out := range outputs {
			var outEnv *cloudevent.Envelope
			if s.opts.Expansion {
				outEnv = cloudevent.DeriveExpansion(&env, out)
			} else {
				outEnv = cloudevent.DeriveFrom(&env, out)
			}
			value, err := json.Marshal(outEnv)
			if err != nil {
				return pipeerr.New(s.opts.Service, "publish", pipeerr.ErrCodeBus,
					"failed to encode outbound envelope").WithCause(err)
			}
			if err := s.bus.Publish(ctx, topic, key, value); err != nil {
				return err
			}
		}
		s.metrics.RecordPublished(ctx, s.opts.Service, tenant, int64(len(outputs)))
	}

	return s.ack(ctx, msg)
}

// backfillIdentity guarantees the payload carries the envelope's causal ids
// before the handler sees it, so handlers may rely on either layer.
func (s *Stage) backfillIdentity(env *cloudevent.Envelope) ([]byte, error) {
	payload, err := cloudevent.DecodePayload(env.Data.Value)
	if err != nil {
		return nil, err
	}
	changed := false
	if payload.CorrelationID == "" {
		payload.CorrelationID = env.Extensions.CorrelationID
		if payload.CorrelationID == "" {
			payload.CorrelationID = env.ID
		}
		changed = true
	}
	if payload.ParentID == "" && env.Extensions.ParentID != "" {
		payload.ParentID = env.Extensions.ParentID
		changed = true
	}
	if !changed {
		return env.Data.Value, nil
	}
	return payload.Encode()
}

// ack is best-effort under concurrent dispatch: the bus redelivers on a
// missed ack and handlers stay idempotent.
func (s *Stage) ack(ctx context.Context, msg *bus.Message) error {
	if err := s.bus.Ack(ctx, msg); err != nil {
		s.logger.Warn("ack failed, event will be redelivered",
			"topic", msg.Topic, "offset", msg.ID, "error", err)
	}
	return nil
}
