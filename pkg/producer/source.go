package producer

import (
	"context"
	"math/rand/v2"
	"time"

	"liyu1981.xyz/polar-hr-pipeline/pkg/codec"
)

// Source pushes heart-rate events into emit until ctx is done or the source
// ends on its own, e.g. a sensor disconnect. emit is called from one goroutine
// at a time, in notification order.
type Source interface {
	Run(ctx context.Context, emit func(codec.Event)) error
}

// SyntheticSource stands in for the sensor in test mode.
type SyntheticSource struct {
	Rand     *rand.Rand
	Now      func() time.Time
	MinDelay time.Duration
	MaxDelay time.Duration
	MinBPM   int
	MaxBPM   int
	MinRR    int
	MaxRR    int
}

func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{
		Rand:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		Now:      time.Now,
		MinDelay: 50 * time.Millisecond,
		MaxDelay: 200 * time.Millisecond,
		MinBPM:   100,
		MaxBPM:   120,
		MinRR:    500,
		MaxRR:    900,
	}
}

// Next draws one event stamped with the current wall clock.
func (s *SyntheticSource) Next() codec.Event {
	bpm := s.MinBPM + s.Rand.IntN(s.MaxBPM-s.MinBPM+1)
	rr := s.MinRR + s.Rand.IntN(s.MaxRR-s.MinRR+1)
	return codec.NewHeartRateEvent(s.Now().UnixNano(), bpm, codec.ScalarRR(rr), nil)
}

func (s *SyntheticSource) delay() time.Duration {
	span := int64(s.MaxDelay - s.MinDelay)
	if span <= 0 {
		return s.MinDelay
	}
	return s.MinDelay + time.Duration(s.Rand.Int64N(span+1))
}

// Run emits immediately, then once per random delay.
func (s *SyntheticSource) Run(ctx context.Context, emit func(codec.Event)) error {
	if ctx.Err() != nil {
		return nil
	}
	emit(s.Next())

	timer := time.NewTimer(s.delay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			emit(s.Next())
			timer.Reset(s.delay())
		}
	}
}
