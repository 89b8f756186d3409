package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrReadingImmutable = errors.New("heart rate readings cannot be updated")

// HeartRateReading is one persisted sample. Rows are append-only.
type HeartRateReading struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SensorTimestamp int64     `gorm:"column:sensor_timestamp;not null" json:"sensor_timestamp"`
	BPM             int       `gorm:"column:bpm;not null" json:"bpm"`
	RRInterval      int       `gorm:"column:rr_interval;not null" json:"rr_interval"`
	Energy          *float64  `gorm:"column:energy" json:"energy"`
	CreatedAt       time.Time `gorm:"column:created_at;index" json:"created_at"`
}

func (HeartRateReading) TableName() string {
	return "heart_rate_readings"
}

func (r *HeartRateReading) BeforeUpdate(tx *gorm.DB) error {
	return ErrReadingImmutable
}

func (r HeartRateReading) SensorTimestampSeconds() float64 {
	return float64(r.SensorTimestamp) / 1e9
}

func (r HeartRateReading) RRIntervalSeconds() float64 {
	return float64(r.RRInterval) / 1000
}

// TimeWindow restricts a query to rows created in the last Minutes minutes.
// A zero window means no filter.
type TimeWindow struct {
	Minutes int
}

func (w TimeWindow) IsSet() bool {
	return w.Minutes > 0
}

func (w TimeWindow) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(w.Minutes) * time.Minute)
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// ReadingStats holds aggregates over a filtered set. Nil fields mean the set was empty.
type ReadingStats struct {
	Count          int64      `json:"count"`
	AvgBPM         *float64   `json:"avg_bpm"`
	MinBPM         *int64     `json:"min_bpm"`
	MaxBPM         *int64     `json:"max_bpm"`
	AvgRRInterval  *float64   `json:"avg_rr_interval"`
	TimeRangeStart *time.Time `json:"time_range_start"`
	TimeRangeEnd   *time.Time `json:"time_range_end"`
}
