package channel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/metrics"
)

type NATSOptions struct {
	URL string
	// Creds is either "user:password" or the path of a NATS .creds file.
	Creds string
	Name  string
}

func natsLogger() *zap.Logger {
	return common.GetLoggerWith(
		common.LoggerNameChannel,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryNats),
	)
}

// ConnectNATS dials the broker. Credential failures come back as *AuthError.
func ConnectNATS(opts NATSOptions) (*nats.Conn, error) {
	logger := natsLogger()

	options := []nats.Option{
		nats.Name(opts.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	credOpt, err := natsCredentialOption(opts.Creds)
	if err != nil {
		return nil, err
	}
	if credOpt != nil {
		options = append(options, credOpt)
	}

	nc, err := nats.Connect(opts.URL, options...)
	if err != nil {
		if isNATSAuthError(err) {
			return nil, &AuthError{Broker: common.BrokerNATS, Err: err}
		}
		return nil, fmt.Errorf("connect to nats %s: %w", opts.URL, err)
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return nc, nil
}

func natsCredentialOption(creds string) (nats.Option, error) {
	if creds == "" {
		return nil, nil
	}
	if _, err := os.Stat(creds); err == nil {
		return nats.UserCredentials(creds), nil
	}
	if user, pass, ok := strings.Cut(creds, ":"); ok {
		return nats.UserInfo(user, pass), nil
	}
	return nil, &AuthError{
		Broker: common.BrokerNATS,
		Err:    fmt.Errorf("credentials file %s not readable", creds),
	}
}

func isNATSAuthError(err error) bool {
	return errors.Is(err, nats.ErrAuthorization) ||
		errors.Is(err, nats.ErrAuthExpired) ||
		errors.Is(err, nats.ErrAuthRevoked) ||
		errors.Is(err, nats.ErrAccountAuthExpired)
}

// EnsureStream creates the stream that captures subject, or updates it in place.
func EnsureStream(ctx context.Context, js jetstream.JetStream, stream, subject string) (jetstream.Stream, error) {
	s, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Heart rate events from the chest strap producer",
		Subjects:    []string{subject},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}
	return s, nil
}

// NATSPublisher publishes to JetStream without waiting for the PubAck. Rejected
// publishes surface through the async error handler.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
	logger  *zap.Logger
}

func NewNATSPublisher(ctx context.Context, nc *nats.Conn, stream, subject string) (*NATSPublisher, error) {
	logger := natsLogger().With(zap.String("subject", subject))

	js, err := jetstream.New(nc,
		jetstream.WithPublishAsyncMaxPending(4096),
		jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
			metrics.AsyncPublishFailures.WithLabelValues(common.BrokerNATS).Inc()
			logger.Error("Async publish failed",
				zap.Error(err),
				zap.String("msg_id", msg.Header.Get(nats.MsgIdHdr)),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	if _, err := EnsureStream(ctx, js, stream, subject); err != nil {
		return nil, err
	}

	return &NATSPublisher{nc: nc, js: js, subject: subject, logger: logger}, nil
}

func (p *NATSPublisher) Publish(payload []byte) error {
	if p.nc.IsClosed() {
		return ErrClosed
	}
	if _, err := p.js.PublishAsync(p.subject, payload, jetstream.WithMsgID(uuid.NewString())); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}

// Close waits for outstanding PubAcks, then drains the connection.
func (p *NATSPublisher) Close(ctx context.Context) error {
	if p.nc.IsClosed() {
		return nil
	}

	var err error
	select {
	case <-p.js.PublishAsyncComplete():
	case <-ctx.Done():
		err = ctx.Err()
		p.logger.Warn("Closing with publishes pending", zap.Int("pending", p.js.PublishAsyncPending()))
	}

	if drainErr := p.nc.Drain(); drainErr != nil && err == nil {
		err = drainErr
	}
	return err
}

type NATSSubscriberOptions struct {
	Stream  string
	Subject string
	Durable string
	AckWait time.Duration
	// MaxDeliver caps redeliveries, -1 is unlimited.
	MaxDeliver int
	// NakDelay postpones the redelivery of a nak'd message.
	NakDelay      time.Duration
	MaxAckPending int
}

type NATSSubscriber struct {
	nc       *nats.Conn
	consumer jetstream.Consumer
	nakDelay time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

func NewNATSSubscriber(ctx context.Context, nc *nats.Conn, opts NATSSubscriberOptions) (*NATSSubscriber, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	if _, err := EnsureStream(ctx, js, opts.Stream, opts.Subject); err != nil {
		return nil, err
	}

	if opts.AckWait <= 0 {
		opts.AckWait = 30 * time.Second
	}
	if opts.MaxDeliver == 0 {
		opts.MaxDeliver = -1
	}
	if opts.MaxAckPending <= 0 {
		opts.MaxAckPending = 1000
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, opts.Stream, jetstream.ConsumerConfig{
		Durable:       opts.Durable,
		Description:   "Persists heart rate readings",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       opts.AckWait,
		MaxDeliver:    opts.MaxDeliver,
		MaxAckPending: opts.MaxAckPending,
		FilterSubject: opts.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", opts.Durable, err)
	}

	return &NATSSubscriber{
		nc:       nc,
		consumer: consumer,
		nakDelay: opts.NakDelay,
		logger: natsLogger().With(
			zap.String("stream", opts.Stream),
			zap.String("durable", opts.Durable),
		),
	}, nil
}

// Subscribe blocks until ctx is done. Handlers already running when ctx ends
// are waited for, and they get a context that is not cancelled by shutdown.
func (s *NATSSubscriber) Subscribe(ctx context.Context, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}
	handlerCtx := context.WithoutCancel(ctx)

	consumeContexts := make([]jetstream.ConsumeContext, 0, workers)
	stopAll := func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		for _, cc := range consumeContexts {
			cc.Stop()
		}
		s.inflight.Wait()
	}

	for i := 0; i < workers; i++ {
		worker := i
		cc, err := s.consumer.Consume(func(m jetstream.Msg) {
			s.mu.Lock()
			if s.stopped {
				s.mu.Unlock()
				return
			}
			s.inflight.Add(1)
			s.mu.Unlock()
			defer s.inflight.Done()

			handler(handlerCtx, &natsMessage{msg: m, nakDelay: s.nakDelay})
		}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			s.logger.Warn("Consume error", zap.Int("worker", worker), zap.Error(err))
		}))
		if err != nil {
			stopAll()
			return fmt.Errorf("start worker %d: %w", worker, err)
		}
		consumeContexts = append(consumeContexts, cc)
	}

	s.logger.Info("Subscribed", zap.Int("workers", workers))
	<-ctx.Done()
	stopAll()
	s.logger.Info("Unsubscribed")
	return nil
}

func (s *NATSSubscriber) Close() error {
	if s.nc.IsClosed() {
		return nil
	}
	return s.nc.Drain()
}

type natsMessage struct {
	msg      jetstream.Msg
	nakDelay time.Duration
}

func (m *natsMessage) Data() []byte {
	return m.msg.Data()
}

func (m *natsMessage) Ack() error {
	return m.msg.Ack()
}

func (m *natsMessage) Nak() error {
	if m.nakDelay > 0 {
		return m.msg.NakWithDelay(m.nakDelay)
	}
	return m.msg.Nak()
}
