package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
)

type Config struct {
	// Broker is common.BrokerNATS (default) or common.BrokerRedis.
	Broker string
	URL    string
	Topic  string
	Creds  string
	// Stream names the JetStream stream; the Redis stream key is the topic.
	Stream string
	// ClientName identifies the connection to the broker.
	ClientName string
}

func ConfigFromEnv() Config {
	return Config{
		Broker:     common.GetEnv(common.EnvKeyHRBroker, common.BrokerNATS),
		URL:        common.GetEnv(common.EnvKeyHRBrokerURL, ""),
		Topic:      common.GetEnv(common.EnvKeyHRTopic, ""),
		Creds:      common.GetEnv(common.EnvKeyHRBrokerCreds, ""),
		Stream:     common.DefaultStreamName,
		ClientName: "polar-hr",
	}
}

// Configured reports whether a broker endpoint and topic are both known.
func (c Config) Configured() bool {
	return c.URL != "" && c.Topic != ""
}

func (c Config) stream() string {
	if c.Stream == "" {
		return common.DefaultStreamName
	}
	return c.Stream
}

// OpenPublisher resolves the channel once. Without configuration, or when the
// broker cannot be reached, the result is a LocalSink writing to fallback.
// Only an *AuthError is returned as an error.
func OpenPublisher(ctx context.Context, cfg Config, fallback io.Writer) (Publisher, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameChannel,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryLocal),
	)

	if !cfg.Configured() {
		logger.Info("No channel configured, events go to the local sink")
		return NewLocalSink(fallback), nil
	}

	pub, err := openBrokerPublisher(ctx, cfg)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		logger.Warn("Channel unavailable, events go to the local sink",
			zap.String("broker", cfg.Broker),
			zap.String("url", cfg.URL),
			zap.Error(err),
		)
		return NewLocalSink(fallback), nil
	}
	return pub, nil
}

func openBrokerPublisher(ctx context.Context, cfg Config) (Publisher, error) {
	switch cfg.Broker {
	case common.BrokerRedis:
		client, err := ConnectRedis(ctx, RedisOptions{URL: cfg.URL, Creds: cfg.Creds})
		if err != nil {
			return nil, err
		}
		return NewRedisPublisher(client, cfg.Topic, 0), nil
	case common.BrokerNATS, "":
		nc, err := ConnectNATS(NATSOptions{URL: cfg.URL, Creds: cfg.Creds, Name: cfg.ClientName})
		if err != nil {
			return nil, err
		}
		pub, err := NewNATSPublisher(ctx, nc, cfg.stream(), cfg.Topic)
		if err != nil {
			nc.Close()
			return nil, err
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

type SubscriberOptions struct {
	Consumer   string
	AckWait    time.Duration
	MaxDeliver int
	NakDelay   time.Duration
}

// OpenSubscriber connects the consumer side. Unlike the producer there is no
// local fallback: a consumer without a broker has nothing to do.
func OpenSubscriber(ctx context.Context, cfg Config, opts SubscriberOptions) (Subscriber, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("broker url and topic are required")
	}

	switch cfg.Broker {
	case common.BrokerRedis:
		client, err := ConnectRedis(ctx, RedisOptions{URL: cfg.URL, Creds: cfg.Creds})
		if err != nil {
			return nil, err
		}
		sub, err := NewRedisSubscriber(ctx, client, RedisSubscriberOptions{
			Stream:      cfg.Topic,
			Group:       opts.Consumer,
			Consumer:    cfg.ClientName,
			ReclaimIdle: opts.AckWait,
		})
		if err != nil {
			client.Close()
			return nil, err
		}
		return sub, nil
	case common.BrokerNATS, "":
		nc, err := ConnectNATS(NATSOptions{URL: cfg.URL, Creds: cfg.Creds, Name: cfg.ClientName})
		if err != nil {
			return nil, err
		}
		sub, err := NewNATSSubscriber(ctx, nc, NATSSubscriberOptions{
			Stream:     cfg.stream(),
			Subject:    cfg.Topic,
			Durable:    opts.Consumer,
			AckWait:    opts.AckWait,
			MaxDeliver: opts.MaxDeliver,
			NakDelay:   opts.NakDelay,
		})
		if err != nil {
			nc.Close()
			return nil, err
		}
		return sub, nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}
