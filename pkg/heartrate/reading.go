package heartrate

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/models"
)

func (h *HeartRate) createReading(ctx context.Context, input *models.HeartRateReading) error {
	logger := common.GetLoggerWith(
		common.LoggerNameHeartRateCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryReading),
	)

	if input == nil {
		return errors.New("reading is nil")
	}

	// id and created_at are assigned here, never taken from the caller
	reading := models.HeartRateReading{
		SensorTimestamp: input.SensorTimestamp,
		BPM:             input.BPM,
		RRInterval:      input.RRInterval,
		Energy:          input.Energy,
	}

	if err := h.Db.Conn.WithContext(ctx).Create(&reading).Error; err != nil {
		logger.Error("Failed to store reading", zap.Error(err), zap.Int64("sensor_timestamp", reading.SensorTimestamp))
		return &StorageError{Op: "create", Err: err}
	}

	logger.Info("Stored reading",
		zap.Uint("id", reading.ID),
		zap.Int("bpm", reading.BPM),
		zap.Int("rr_interval", reading.RRInterval),
	)

	*input = reading
	return nil
}

type IReadingImpl struct {
	hr *HeartRate
}

func (ir *IReadingImpl) CreateReading(ctx context.Context, reading *models.HeartRateReading) error {
	return ir.hr.createReading(ctx, reading)
}

func (h *HeartRate) GetIReading() IReading {
	return &IReadingImpl{hr: h}
}
