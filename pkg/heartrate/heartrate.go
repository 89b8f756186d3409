package heartrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"liyu1981.xyz/polar-hr-pipeline/pkg/db"
	"liyu1981.xyz/polar-hr-pipeline/pkg/models"
)

//go:generate mockgen -source=heartrate.go -destination=mocks/mock_heartrate.go -package=mocks

var ErrNotFound = errors.New("heart rate reading not found")

// StorageError marks a failed write. The write path treats it as transient.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("heart rate storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

type IReading interface {
	CreateReading(ctx context.Context, reading *models.HeartRateReading) error
}

type IQuery interface {
	ListReadings(ctx context.Context, window models.TimeWindow, page models.Page) ([]models.HeartRateReading, int64, error)
	GetReading(ctx context.Context, id uint) (*models.HeartRateReading, error)
	LatestReading(ctx context.Context) (*models.HeartRateReading, error)
	ReadingStats(ctx context.Context, window models.TimeWindow) (*models.ReadingStats, error)
}

type HeartRate struct {
	Db      db.DB
	Reading IReading
	Query   IQuery

	// Now is the reference clock for time windows, time.Now when nil.
	Now func() time.Time
}

type ServiceOpts struct {
	Reading IReading
	Query   IQuery
}

func (h *HeartRate) WithServices(opts ServiceOpts) *HeartRate {
	if opts.Reading != nil {
		h.Reading = opts.Reading
	}
	if opts.Query != nil {
		h.Query = opts.Query
	}
	return h
}

// New wires the default services over d.
func New(d *db.DB) *HeartRate {
	h := &HeartRate{Db: *d}
	return h.WithServices(ServiceOpts{
		Reading: h.GetIReading(),
		Query:   h.GetIQuery(),
	})
}

func (h *HeartRate) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
