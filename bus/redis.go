package bus

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/partsol/checkmate/pipeerr"
)

// Options configures the Redis streams bus.
type Options struct {
	// Addr is the Redis connection string (e.g. "redis://localhost:6379").
	Addr string

	// Username and Password authenticate the connection when the broker
	// requires it.
	Username string
	Password string

	// ConnectTimeout bounds connection establishment. Default 5s.
	ConnectTimeout time.Duration

	// FlushTimeout bounds each publish call. Default 30s.
	FlushTimeout time.Duration
}

// RedisBus implements Bus over Redis streams with consumer groups.
type RedisBus struct {
	client       *redis.Client
	flushTimeout time.Duration

	group    string
	consumer string
	topics   []string
	// next indexes the topic polled first on the next Poll call, so a busy
	// stream cannot starve the others.
	next int
}

// NewRedisBus connects to the broker and verifies the connection.
func NewRedisBus(opts Options) (*RedisBus, error) {
	if opts.Addr == "" {
		opts.Addr = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.FlushTimeout == 0 {
		opts.FlushTimeout = 30 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.Addr)
	if err != nil {
		return nil, pipeerr.New("bus", "connect", pipeerr.ErrCodeConfig,
			"failed to parse bus address").WithCause(err)
	}
	if opts.Username != "" {
		redisOpts.Username = opts.Username
	}
	if opts.Password != "" {
		redisOpts.Password = opts.Password
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, pipeerr.New("bus", "connect", pipeerr.ErrCodeBus,
			"failed to connect to event bus").WithCause(err)
	}

	return &RedisBus{client: client, flushTimeout: opts.FlushTimeout}, nil
}

// Subscribe creates the consumer group on every topic. Groups start at the
// beginning of the stream so a stage deployed after its producer still sees
// the backlog.
func (b *RedisBus) Subscribe(ctx context.Context, topics []string, group, consumer string) error {
	for _, topic := range topics {
		err := b.client.XGroupCreateMkStream(ctx, topic, group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return pipeerr.New("bus", "subscribe", pipeerr.ErrCodeBus,
				"failed to create consumer group on "+topic).WithCause(err)
		}
	}
	b.topics = topics
	b.group = group
	b.consumer = consumer
	return nil
}

// Poll reads at most one entry across the subscribed topics, blocking up to
// timeout. Topics are rotated between calls for fairness.
func (b *RedisBus) Poll(ctx context.Context, timeout time.Duration) (*Message, error) {
	if len(b.topics) == 0 {
		return nil, pipeerr.New("bus", "poll", pipeerr.ErrCodeBus, "poll before subscribe")
	}

	streams := make([]string, 0, len(b.topics)*2)
	for i := range b.topics {
		streams = append(streams, b.topics[(b.next+i)%len(b.topics)])
	}
	for range b.topics {
		streams = append(streams, ">")
	}
	b.next = (b.next + 1) % len(b.topics)

	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  streams,
		Count:    1,
		Block:    timeout,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, pipeerr.New("bus", "poll", pipeerr.ErrCodeBus, "poll failed").WithCause(err)
	}

	for _, stream := range res {
		for _, entry := range stream.Messages {
			return decodeEntry(stream.Stream, entry), nil
		}
	}
	return nil, nil
}

func decodeEntry(topic string, entry redis.XMessage) *Message {
	msg := &Message{Topic: topic, ID: entry.ID}
	if k, ok := entry.Values["key"].(string); ok {
		msg.Key = k
	}
	if v, ok := entry.Values["value"].(string); ok {
		msg.Value = []byte(v)
	}
	return msg
}

// Ack marks the entry processed for this group.
func (b *RedisBus) Ack(ctx context.Context, msg *Message) error {
	if err := b.client.XAck(ctx, msg.Topic, b.group, msg.ID).Err(); err != nil {
		return pipeerr.New("bus", "ack", pipeerr.ErrCodeBus,
			"failed to ack "+msg.ID+" on "+msg.Topic).WithCause(err)
	}
	return nil
}

// Publish appends an entry to the topic. The call is bounded by the
// configured flush timeout; failures are fatal bus errors.
func (b *RedisBus) Publish(ctx context.Context, topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.flushTimeout)
	defer cancel()

	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{"key": key, "value": string(value)},
	}).Err()
	if err != nil {
		return pipeerr.New("bus", "publish", pipeerr.ErrCodeBus,
			"failed to publish to "+topic).WithCause(err)
	}
	return nil
}

// Close closes the underlying connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
