package heartrate

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/models"
)

// cutoff reads the clock once per request so every query of that request
// filters the same row set. The zero time means no window.
func (h *HeartRate) cutoff(window models.TimeWindow) time.Time {
	if !window.IsSet() {
		return time.Time{}
	}
	return window.Cutoff(h.now())
}

func windowed(tx *gorm.DB, cutoff time.Time) *gorm.DB {
	q := tx.Model(&models.HeartRateReading{})
	if !cutoff.IsZero() {
		q = q.Where("created_at >= ?", cutoff)
	}
	return q
}

func (h *HeartRate) listReadings(ctx context.Context, window models.TimeWindow, page models.Page) ([]models.HeartRateReading, int64, error) {
	cutoff := h.cutoff(window)
	conn := h.Db.Conn.WithContext(ctx)

	var total int64
	if err := windowed(conn, cutoff).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := windowed(conn, cutoff).Order("created_at desc").Order("id desc")
	if page.Size > 0 {
		q = q.Offset(page.Offset()).Limit(page.Size)
	}

	readings := []models.HeartRateReading{}
	if err := q.Find(&readings).Error; err != nil {
		return nil, 0, err
	}
	return readings, total, nil
}

func (h *HeartRate) getReading(ctx context.Context, id uint) (*models.HeartRateReading, error) {
	var reading models.HeartRateReading
	err := h.Db.Conn.WithContext(ctx).First(&reading, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reading, nil
}

func (h *HeartRate) latestReading(ctx context.Context) (*models.HeartRateReading, error) {
	var reading models.HeartRateReading
	err := h.Db.Conn.WithContext(ctx).
		Order("created_at desc").
		Order("id desc").
		Take(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reading, nil
}

type aggregateRow struct {
	Count         int64    `gorm:"column:count"`
	AvgBPM        *float64 `gorm:"column:avg_bpm"`
	MinBPM        *int64   `gorm:"column:min_bpm"`
	MaxBPM        *int64   `gorm:"column:max_bpm"`
	AvgRRInterval *float64 `gorm:"column:avg_rr_interval"`
}

func (h *HeartRate) readingStats(ctx context.Context, window models.TimeWindow) (*models.ReadingStats, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameHeartRateCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryQuery),
	)

	cutoff := h.cutoff(window)
	stats := &models.ReadingStats{}

	// one read transaction, so the aggregates and the time bounds see the same rows
	err := h.Db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row aggregateRow
		err := windowed(tx, cutoff).
			Select("COUNT(id) AS count, AVG(bpm) AS avg_bpm, MIN(bpm) AS min_bpm, MAX(bpm) AS max_bpm, AVG(rr_interval) AS avg_rr_interval").
			Scan(&row).Error
		if err != nil {
			return err
		}

		stats.Count = row.Count
		stats.AvgBPM = roundOneDecimal(row.AvgBPM)
		stats.MinBPM = row.MinBPM
		stats.MaxBPM = row.MaxBPM
		stats.AvgRRInterval = roundOneDecimal(row.AvgRRInterval)

		if row.Count == 0 {
			return nil
		}

		// time bounds are read as rows: aggregate datetime columns lose their type in sqlite
		var earliest, latest models.HeartRateReading
		if err := windowed(tx, cutoff).Order("created_at asc").Take(&earliest).Error; err != nil {
			return err
		}
		if err := windowed(tx, cutoff).Order("created_at desc").Take(&latest).Error; err != nil {
			return err
		}
		stats.TimeRangeStart = &earliest.CreatedAt
		stats.TimeRangeEnd = &latest.CreatedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Computed reading stats", zap.Int64("count", stats.Count), zap.Int("window_minutes", window.Minutes))

	return stats, nil
}

func roundOneDecimal(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*10) / 10
	return &r
}

type IQueryImpl struct {
	hr *HeartRate
}

func (iq *IQueryImpl) ListReadings(ctx context.Context, window models.TimeWindow, page models.Page) ([]models.HeartRateReading, int64, error) {
	return iq.hr.listReadings(ctx, window, page)
}

func (iq *IQueryImpl) GetReading(ctx context.Context, id uint) (*models.HeartRateReading, error) {
	return iq.hr.getReading(ctx, id)
}

func (iq *IQueryImpl) LatestReading(ctx context.Context) (*models.HeartRateReading, error) {
	return iq.hr.latestReading(ctx)
}

func (iq *IQueryImpl) ReadingStats(ctx context.Context, window models.TimeWindow) (*models.ReadingStats, error) {
	return iq.hr.readingStats(ctx, window)
}

func (h *HeartRate) GetIQuery() IQuery {
	return &IQueryImpl{hr: h}
}
