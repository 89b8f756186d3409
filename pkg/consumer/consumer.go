// Package consumer persists heart-rate events taken off the channel.
//
// Per message:
//
//	not JSON / not an object    -> ack, dropped
//	type other than "HR"        -> ack, ignored
//	missing timestamp or bpm    -> ack, dropped
//	storage write fails         -> nak, redelivered
//	stored                      -> ack, after the write returned
package consumer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/channel"
	"liyu1981.xyz/polar-hr-pipeline/pkg/codec"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/heartrate"
	"liyu1981.xyz/polar-hr-pipeline/pkg/metrics"
	"liyu1981.xyz/polar-hr-pipeline/pkg/models"
)

type Outcome string

const (
	OutcomeStored      Outcome = metrics.OutcomeStored
	OutcomeNacked      Outcome = metrics.OutcomeNacked
	OutcomeDecodeError Outcome = metrics.OutcomeDecodeError
	OutcomeInvalid     Outcome = metrics.OutcomeInvalid
	OutcomeIgnored     Outcome = metrics.OutcomeIgnored
	OutcomeAckFailed   Outcome = metrics.OutcomeAckFailed
)

type Consumer struct {
	reading heartrate.IReading
	logger  *zap.Logger
}

func New(reading heartrate.IReading) *Consumer {
	return &Consumer{
		reading: reading,
		logger: common.GetLoggerWith(
			common.LoggerNameConsumer,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryDelivery),
		),
	}
}

// Handle processes one delivery and settles it with exactly one Ack or Nak.
func (c *Consumer) Handle(ctx context.Context, msg channel.Message) Outcome {
	outcome := c.handle(ctx, msg)
	metrics.ConsumedMessages.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (c *Consumer) handle(ctx context.Context, msg channel.Message) Outcome {
	data := msg.Data()

	decoded, err := codec.Decode(data)
	if err != nil {
		var decodeErr *codec.DecodeError
		var validationErr *codec.ValidationError
		switch {
		case errors.As(err, &decodeErr):
			c.logger.Warn("Dropping undecodable message", zap.Error(err), zap.Int("size", len(data)))
			return c.ack(msg, OutcomeDecodeError)
		case errors.As(err, &validationErr):
			c.logger.Warn("Dropping invalid heart rate event", zap.String("field", validationErr.Field), zap.Error(err))
			return c.ack(msg, OutcomeInvalid)
		default:
			c.logger.Error("Unexpected decode failure", zap.Error(err))
			return c.ack(msg, OutcomeDecodeError)
		}
	}

	if decoded.Kind == codec.KindIgnored {
		c.logger.Debug("Ignoring message", zap.String("type", decoded.Type))
		return c.ack(msg, OutcomeIgnored)
	}

	ev := decoded.Event
	reading := models.HeartRateReading{
		SensorTimestamp: ev.Timestamp,
		BPM:             ev.BPM,
		RRInterval:      ev.RRInterval.Scalar(),
		Energy:          ev.Energy,
	}

	start := time.Now()
	err = c.reading.CreateReading(ctx, &reading)
	metrics.StoreDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Error("Failed to persist reading, requesting redelivery",
			zap.Error(err),
			zap.Int64("sensor_timestamp", ev.Timestamp),
		)
		if nakErr := msg.Nak(); nakErr != nil {
			c.logger.Error("Failed to nak message", zap.Error(nakErr))
		}
		return OutcomeNacked
	}

	return c.ack(msg, OutcomeStored)
}

func (c *Consumer) ack(msg channel.Message, outcome Outcome) Outcome {
	if err := msg.Ack(); err != nil {
		c.logger.Error("Failed to ack message", zap.String("outcome", string(outcome)), zap.Error(err))
		return OutcomeAckFailed
	}
	return outcome
}

// Run consumes until ctx is done, with workers concurrent handlers.
func (c *Consumer) Run(ctx context.Context, sub channel.Subscriber, workers int) error {
	c.logger.Info("Consumer starting", zap.Int("workers", workers))
	err := sub.Subscribe(ctx, workers, func(ctx context.Context, msg channel.Message) {
		c.Handle(ctx, msg)
	})
	c.logger.Info("Consumer stopped")
	return err
}
