package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsol/checkmate/bus"
	"github.com/partsol/checkmate/cloudevent"
	"github.com/partsol/checkmate/pipeerr"
)

// fakeBus is an in-memory Bus for exercising the stage loop.
type fakeBus struct {
	mu        sync.Mutex
	inbound   []*bus.Message
	published []*bus.Message
	acked     []string
	events    []string // interleaved "publish:<topic>" / "ack:<id>" log
	pubErr    error
}

func (f *fakeBus) Subscribe(context.Context, []string, string, string) error { return nil }

func (f *fakeBus) Poll(ctx context.Context, timeout time.Duration) (*bus.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) == 0 {
		return nil, nil
	}
	msg := f.inbound[0]
	f.inbound = f.inbound[1:]
	return msg, nil
}

func (f *fakeBus) Ack(ctx context.Context, msg *bus.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, msg.ID)
	f.events = append(f.events, "ack:"+msg.ID)
	return nil
}

func (f *fakeBus) Publish(ctx context.Context, topic, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	f.published = append(f.published, &bus.Message{Topic: topic, Key: key, Value: value})
	f.events = append(f.events, "publish:"+topic)
	return nil
}

func (f *fakeBus) Close() error { return nil }

func (f *fakeBus) ackedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acked)
}

func inboundMessage(t *testing.T, id, topic, key string) *bus.Message {
	t.Helper()
	env, err := cloudevent.Generate(&cloudevent.Payload{SearchQuery: "Tom"}, cloudevent.Options{})
	require.NoError(t, err)
	value, err := json.Marshal(env)
	require.NoError(t, err)
	return &bus.Message{Topic: topic, ID: id, Key: key, Value: value}
}

func runUntilAcked(t *testing.T, s *Stage, fb *fakeBus, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for fb.ackedCount() < want {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("timed out waiting for %d acks, got %d", want, fb.ackedCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)
}

func TestStageStrictWorkerCap(t *testing.T) {
	fb := &fakeBus{}
	for i := 0; i < 6; i++ {
		fb.inbound = append(fb.inbound, inboundMessage(t, "m"+string(rune('0'+i)), "dev.acme.controller.search", ""))
	}

	var inFlight, peak atomic.Int32
	handler := func(ctx context.Context, payload []byte, ev Event) ([][]byte, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}

	s := New(Options{
		Service:       "discovery",
		Environment:   "dev",
		GroupID:       "g1",
		InboundTopics: []string{"dev.acme.controller.search"},
		MaxWorkers:    2,
		PollTimeout:   time.Millisecond,
	}, fb, handler, nil, nil)

	runUntilAcked(t, s, fb, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2), "in-flight handlers exceeded the cap")
}

func TestStageFanOutCorrelation(t *testing.T) {
	fb := &fakeBus{}
	msg := inboundMessage(t, "m1", "dev.acme.controller.search", "raw:k1")
	fb.inbound = append(fb.inbound, msg)

	var parent cloudevent.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &parent))

	handler := func(ctx context.Context, payload []byte, ev Event) ([][]byte, error) {
		return [][]byte{
			[]byte(`{"searchQuery":"a"}`),
			[]byte(`{"searchQuery":"b"}`),
			[]byte(`{"searchQuery":"c"}`),
		}, nil
	}

	s := New(Options{
		Service:       "discovery",
		Environment:   "dev",
		GroupID:       "g1",
		InboundTopics: []string{"dev.acme.controller.search"},
		OutboundEvent: "expansion",
		KeyPrefix:     "staged",
		Expansion:     true,
		PollTimeout:   time.Millisecond,
	}, fb, handler, nil, nil)

	runUntilAcked(t, s, fb, 1)
	require.Len(t, fb.published, 3)

	seen := map[string]bool{}
	for _, out := range fb.published {
		assert.Equal(t, "dev.acme.discovery.expansion", out.Topic)
		assert.Equal(t, "staged:k1", out.Key)

		var child cloudevent.Envelope
		require.NoError(t, json.Unmarshal(out.Value, &child))
		assert.Equal(t, parent.Extensions.CorrelationID, child.Extensions.CorrelationID)
		assert.Equal(t, parent.ID, child.ParentID)
		assert.Equal(t, parent.Extensions.Depth+1, child.Extensions.Depth)
		assert.False(t, seen[child.ID], "child ids must be distinct")
		seen[child.ID] = true
	}

	// Publish happens before the inbound commit.
	require.GreaterOrEqual(t, len(fb.events), 4)
	assert.Equal(t, "ack:m1", fb.events[len(fb.events)-1])
}

func TestStageHandlerErrorAcksWithoutPublishing(t *testing.T) {
	fb := &fakeBus{}
	fb.inbound = append(fb.inbound, inboundMessage(t, "m1", "dev.acme.controller.search", ""))

	handler := func(ctx context.Context, payload []byte, ev Event) ([][]byte, error) {
		return nil, errors.New("boom")
	}

	s := New(Options{
		Service:       "discovery",
		Environment:   "dev",
		GroupID:       "g1",
		InboundTopics: []string{"dev.acme.controller.search"},
		OutboundEvent: "expansion",
		PollTimeout:   time.Millisecond,
	}, fb, handler, nil, nil)

	runUntilAcked(t, s, fb, 1)
	assert.Empty(t, fb.published)
}

func TestStageFatalHandlerErrorStopsStage(t *testing.T) {
	fb := &fakeBus{}
	fb.inbound = append(fb.inbound, inboundMessage(t, "m1", "dev.acme.controller.search", ""))

	handler := func(ctx context.Context, payload []byte, ev Event) ([][]byte, error) {
		return nil, pipeerr.New("discovery", "handle", pipeerr.ErrCodeBus,
			"lost the bus connection")
	}

	s := New(Options{
		Service:       "discovery",
		Environment:   "dev",
		GroupID:       "g1",
		InboundTopics: []string{"dev.acme.controller.search"},
		OutboundEvent: "expansion",
		PollTimeout:   time.Millisecond,
	}, fb, handler, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, pipeerr.ErrCodeBus, pipeerr.CodeOf(err))
	assert.Empty(t, fb.acked, "fatal handler error must leave the event for redelivery")
	assert.Empty(t, fb.published)
}

func TestStagePublishErrorIsFatal(t *testing.T) {
	fb := &fakeBus{pubErr: errors.New("broker down")}
	fb.inbound = append(fb.inbound, inboundMessage(t, "m1", "dev.acme.controller.search", ""))

	handler := func(ctx context.Context, payload []byte, ev Event) ([][]byte, error) {
		return [][]byte{[]byte(`{}`)}, nil
	}

	s := New(Options{
		Service:       "discovery",
		Environment:   "dev",
		GroupID:       "g1",
		InboundTopics: []string{"dev.acme.controller.search"},
		OutboundEvent: "expansion",
		PollTimeout:   time.Millisecond,
	}, fb, handler, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Empty(t, fb.acked, "failed publish must not commit the inbound event")
}

func TestStageSynchronousPathBackfillsPayloadIdentity(t *testing.T) {
	fb := &fakeBus{}

	// Envelope whose payload bytes lack the causal ids.
	env, err := cloudevent.Generate(&cloudevent.Payload{}, cloudevent.Options{})
	require.NoError(t, err)
	env.Data.Value = []byte(`{"searchQuery":"bare"}`)
	value, err := json.Marshal(env)
	require.NoError(t, err)
	fb.inbound = append(fb.inbound, &bus.Message{Topic: "dev.acme.controller.search", ID: "m1", Value: value})

	var got *cloudevent.Payload
	handler := func(ctx context.Context, payload []byte, ev Event) ([][]byte, error) {
		p, err := cloudevent.DecodePayload(payload)
		if err != nil {
			return nil, err
		}
		got = p
		return nil, nil
	}

	s := New(Options{
		Service:       "discovery",
		Environment:   "dev",
		GroupID:       "g1",
		InboundTopics: []string{"dev.acme.controller.search"},
		PollTimeout:   time.Millisecond,
	}, fb, handler, nil, nil)

	runUntilAcked(t, s, fb, 1)
	require.NotNil(t, got)
	assert.Equal(t, env.Extensions.CorrelationID, got.CorrelationID)
}
