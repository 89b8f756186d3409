package channel

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/metrics"
)

// SendFunc is a blocking publish used behind an AsyncPublisher.
type SendFunc func(ctx context.Context, payload []byte) error

// AsyncPublisher turns a blocking send into a non-waiting Publish. One goroutine
// drains a bounded queue, so payloads leave in the order they were published.
// When the queue is full the payload is dropped and ErrQueueFull returned.
type AsyncPublisher struct {
	broker string
	send   SendFunc
	queue  chan []byte
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func NewAsyncPublisher(broker string, queueSize int, send SendFunc) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &AsyncPublisher{
		broker: broker,
		send:   send,
		queue:  make(chan []byte, queueSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: common.GetLoggerWith(
			common.LoggerNameChannel,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryDelivery),
			zap.String("broker", broker),
		),
	}
	go p.loop()
	return p
}

func (p *AsyncPublisher) Publish(payload []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) loop() {
	defer close(p.done)
	for payload := range p.queue {
		if err := p.send(p.ctx, payload); err != nil {
			metrics.AsyncPublishFailures.WithLabelValues(p.broker).Inc()
			p.logger.Error("Failed to publish message", zap.Error(err), zap.Int("size", len(payload)))
		}
	}
}

// Close stops accepting payloads and waits for the queue to drain. When ctx
// expires first, in-flight sends are cancelled and ctx.Err() is returned.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.done
		return ctx.Err()
	}
}
