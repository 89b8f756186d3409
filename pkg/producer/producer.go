// Package producer bridges a heart-rate notification source to the channel.
package producer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/channel"
	"liyu1981.xyz/polar-hr-pipeline/pkg/codec"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/metrics"
)

type Producer struct {
	pub    channel.Publisher
	logger *zap.Logger

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

func New(pub channel.Publisher) *Producer {
	return &Producer{
		pub: pub,
		logger: common.GetLoggerWith(
			common.LoggerNameProducer,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryIngest),
		),
	}
}

// Ingest is the notification callback. It never blocks on the broker and
// never reports failures back to the source; they are logged and counted.
// Once Stop has been called, events are dropped.
func (p *Producer) Ingest(ev codec.Event) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		metrics.ProducedEvents.WithLabelValues(metrics.OutcomeDropped).Inc()
		return
	}
	p.inflight.Add(1)
	p.mu.Unlock()
	defer p.inflight.Done()

	payload, err := codec.Encode(ev)
	if err != nil {
		metrics.ProducedEvents.WithLabelValues(metrics.OutcomeEncodeError).Inc()
		p.logger.Error("Failed to encode event", zap.Error(err), zap.Int64("timestamp", ev.Timestamp))
		return
	}

	if err := p.pub.Publish(payload); err != nil {
		outcome := metrics.OutcomePublishError
		if errors.Is(err, channel.ErrQueueFull) {
			outcome = metrics.OutcomeDropped
		}
		metrics.ProducedEvents.WithLabelValues(outcome).Inc()
		p.logger.Warn("Failed to publish event", zap.Error(err), zap.Int64("timestamp", ev.Timestamp))
		return
	}

	metrics.ProducedEvents.WithLabelValues(metrics.OutcomePublished).Inc()
	p.logger.Debug("Published event",
		zap.Int64("timestamp", ev.Timestamp),
		zap.Int("bpm", ev.BPM),
		zap.Int("rr_interval", ev.RRInterval.Scalar()),
	)
}

// Stop sets the shared termination flag and waits for in-flight Ingest calls.
func (p *Producer) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.inflight.Wait()
}

func (p *Producer) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Run feeds src into Ingest until ctx is done, quit fires or the source ends.
// The source's own error, such as a device that was never found, is returned.
func (p *Producer) Run(ctx context.Context, src Source, quit <-chan struct{}) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-quit:
			p.logger.Info("Quitting on user command")
		case <-runCtx.Done():
		}
		cancel()
	}()

	err := src.Run(runCtx, p.Ingest)
	p.Stop()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ListenForQuit closes the returned channel when a line reading "quit", "q" or
// nothing at all is read from r. EOF does not quit.
func ListenForQuit(r io.Reader) <-chan struct{} {
	quit := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
			case "", "q", "quit":
				close(quit)
				return
			}
		}
	}()
	return quit
}
