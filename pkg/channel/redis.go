package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
)

const redisPayloadField = "payload"

type RedisOptions struct {
	// URL is either redis://[user:pass@]host:port/db or a bare host:port.
	URL string
	// Creds is "password" or "user:password"; it overrides credentials in URL.
	Creds string
}

func redisLogger() *zap.Logger {
	return common.GetLoggerWith(
		common.LoggerNameChannel,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryRedis),
	)
}

// ConnectRedis creates a client and pings it. Rejected credentials come back as
// *AuthError.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	var options *redis.Options
	if strings.HasPrefix(opts.URL, "redis://") || strings.HasPrefix(opts.URL, "rediss://") {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		options = parsed
	} else {
		options = &redis.Options{Addr: opts.URL}
	}

	if opts.Creds != "" {
		if user, pass, ok := strings.Cut(opts.Creds, ":"); ok {
			options.Username = user
			options.Password = pass
		} else {
			options.Password = opts.Creds
		}
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		if isRedisAuthError(err) {
			return nil, &AuthError{Broker: common.BrokerRedis, Err: err}
		}
		return nil, fmt.Errorf("connect to redis %s: %w", options.Addr, err)
	}

	redisLogger().Info("Connected to Redis", zap.String("addr", options.Addr))
	return client, nil
}

func isRedisAuthError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "NOAUTH") ||
		strings.HasPrefix(msg, "WRONGPASS") ||
		strings.Contains(msg, "invalid password") ||
		strings.Contains(msg, "invalid username-password pair")
}

// NewRedisPublisher appends payloads to a stream through an AsyncPublisher, so
// Publish never waits on XADD.
func NewRedisPublisher(client *redis.Client, stream string, queueSize int) *AsyncPublisher {
	logger := redisLogger().With(zap.String("stream", stream))
	return NewAsyncPublisher(common.BrokerRedis, queueSize, func(ctx context.Context, payload []byte) error {
		id, err := client.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]interface{}{redisPayloadField: string(payload)},
		}).Result()
		if err != nil {
			return fmt.Errorf("xadd %s: %w", stream, err)
		}
		logger.Debug("Appended message", zap.String("id", id))
		return nil
	})
}

type RedisSubscriberOptions struct {
	Stream   string
	Group    string
	Consumer string
	// Block bounds each XREADGROUP call.
	Block time.Duration
	// ReclaimIdle is how long a pending message waits before another worker
	// claims it. Nak'd messages are redelivered this way.
	ReclaimIdle time.Duration
}

// RedisSubscriber reads a stream through a consumer group. Ack is XACK; Nak
// leaves the entry pending until the reclaim loop hands it out again.
type RedisSubscriber struct {
	client *redis.Client
	opts   RedisSubscriberOptions
	logger *zap.Logger
}

func NewRedisSubscriber(ctx context.Context, client *redis.Client, opts RedisSubscriberOptions) (*RedisSubscriber, error) {
	if opts.Block <= 0 {
		opts.Block = time.Second
	}
	if opts.ReclaimIdle <= 0 {
		opts.ReclaimIdle = 30 * time.Second
	}

	err := client.XGroupCreateMkStream(ctx, opts.Stream, opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group %s: %w", opts.Group, err)
	}

	return &RedisSubscriber{
		client: client,
		opts:   opts,
		logger: redisLogger().With(
			zap.String("stream", opts.Stream),
			zap.String("group", opts.Group),
		),
	}, nil
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}
	handlerCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.readLoop(ctx, handlerCtx, fmt.Sprintf("%s-%d", s.opts.Consumer, worker), handler)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.reclaimLoop(ctx, handlerCtx, handler)
	}()

	s.logger.Info("Subscribed", zap.Int("workers", workers))
	wg.Wait()
	s.logger.Info("Unsubscribed")
	return nil
}

func (s *RedisSubscriber) readLoop(ctx, handlerCtx context.Context, consumer string, handler Handler) {
	for ctx.Err() == nil {
		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.opts.Group,
			Consumer: consumer,
			Streams:  []string{s.opts.Stream, ">"},
			Count:    1,
			Block:    s.opts.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.logger.Warn("Read failed", zap.String("consumer", consumer), zap.Error(err))
			sleepCtx(ctx, s.opts.Block)
			continue
		}

		for _, stream := range streams {
			for _, m := range stream.Messages {
				handler(handlerCtx, s.message(m))
			}
		}
	}
}

func (s *RedisSubscriber) reclaimLoop(ctx, handlerCtx context.Context, handler Handler) {
	consumer := s.opts.Consumer + "-reclaim"
	ticker := time.NewTicker(s.opts.ReclaimIdle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := "0-0"
		for ctx.Err() == nil {
			msgs, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   s.opts.Stream,
				Group:    s.opts.Group,
				MinIdle:  s.opts.ReclaimIdle,
				Start:    start,
				Count:    100,
				Consumer: consumer,
			}).Result()
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("Reclaim failed", zap.Error(err))
				}
				break
			}
			for _, m := range msgs {
				s.logger.Info("Reclaimed pending message", zap.String("id", m.ID))
				handler(handlerCtx, s.message(m))
			}
			if next == "0-0" || len(msgs) == 0 {
				break
			}
			start = next
		}
	}
}

func (s *RedisSubscriber) message(m redis.XMessage) *redisMessage {
	var data []byte
	switch v := m.Values[redisPayloadField].(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	}
	return &redisMessage{client: s.client, stream: s.opts.Stream, group: s.opts.Group, id: m.ID, data: data}
}

func (s *RedisSubscriber) Close() error {
	return s.client.Close()
}

type redisMessage struct {
	client *redis.Client
	stream string
	group  string
	id     string
	data   []byte
}

func (m *redisMessage) Data() []byte {
	return m.data
}

func (m *redisMessage) Ack() error {
	return m.client.XAck(context.Background(), m.stream, m.group, m.id).Err()
}

// Nak leaves the entry in the pending list. The reclaim loop redelivers it once
// it has been idle for ReclaimIdle.
func (m *redisMessage) Nak() error {
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
