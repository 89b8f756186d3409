package producer

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"liyu1981.xyz/polar-hr-pipeline/pkg/channel"
	"liyu1981.xyz/polar-hr-pipeline/pkg/channel/mocks"
	"liyu1981.xyz/polar-hr-pipeline/pkg/codec"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/metrics"
)

func seededSource(now time.Time) *SyntheticSource {
	s := NewSyntheticSource()
	s.Rand = rand.New(rand.NewPCG(1, 2))
	s.Now = func() time.Time { return now }
	return s
}

func TestSyntheticSource_Ranges(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := seededSource(now)

	for i := 0; i < 1000; i++ {
		ev := s.Next()
		assert.Equal(t, codec.TypeHeartRate, ev.Type)
		assert.Equal(t, now.UnixNano(), ev.Timestamp)
		assert.GreaterOrEqual(t, ev.BPM, 100)
		assert.LessOrEqual(t, ev.BPM, 120)
		assert.GreaterOrEqual(t, ev.RRInterval.Scalar(), 500)
		assert.LessOrEqual(t, ev.RRInterval.Scalar(), 900)
		assert.Nil(t, ev.Energy)

		d := s.delay()
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}

func TestSyntheticSource_RunStopsOnCancel(t *testing.T) {
	s := seededSource(time.Now())
	s.MinDelay, s.MaxDelay = time.Millisecond, 2*time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	count := 0
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(codec.Event) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 5
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSyntheticSource_EmitsBeforeFirstDelay(t *testing.T) {
	s := seededSource(time.Now())
	s.MinDelay, s.MaxDelay = time.Hour, time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan codec.Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ev codec.Event) { events <- ev })
	}()

	select {
	case ev := <-events:
		assert.Equal(t, codec.TypeHeartRate, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no event before the first delay elapsed")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Len(t, events, 0, "only one event without waiting a delay")
}

func TestSyntheticSource_CancelledBeforeRun(t *testing.T) {
	s := seededSource(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	emitted := 0
	require.NoError(t, s.Run(ctx, func(codec.Event) { emitted++ }))
	assert.Equal(t, 0, emitted)
}

func TestIngest_PublishesEncodedEvent(t *testing.T) {
	common.SetTestLoggerNop()
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)

	ev := codec.NewHeartRateEvent(1766417260747938000, 119, codec.ScalarRR(521), nil)
	pub.EXPECT().Publish(gomock.Any()).DoAndReturn(func(payload []byte) error {
		assert.JSONEq(t,
			`{"type":"HR","timestamp":1766417260747938000,"bpm":119,"rr_interval":521,"energy":null}`,
			string(payload))
		return nil
	})

	before := testutil.ToFloat64(metrics.ProducedEvents.WithLabelValues(metrics.OutcomePublished))
	New(pub).Ingest(ev)
	after := testutil.ToFloat64(metrics.ProducedEvents.WithLabelValues(metrics.OutcomePublished))
	assert.Equal(t, 1.0, after-before)
}

func TestIngest_PublishFailureIsSwallowed(t *testing.T) {
	common.SetTestLoggerNop()
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)

	gomock.InOrder(
		pub.EXPECT().Publish(gomock.Any()).Return(errors.New("broker gone")),
		pub.EXPECT().Publish(gomock.Any()).Return(channel.ErrQueueFull),
		pub.EXPECT().Publish(gomock.Any()).Return(nil),
	)

	p := New(pub)
	assert.NotPanics(t, func() {
		p.Ingest(codec.NewHeartRateEvent(1, 100, codec.ScalarRR(600), nil))
		p.Ingest(codec.NewHeartRateEvent(2, 101, codec.ScalarRR(600), nil))
		p.Ingest(codec.NewHeartRateEvent(3, 102, codec.ScalarRR(600), nil))
	})
}

func TestIngest_DropsAfterStop(t *testing.T) {
	common.SetTestLoggerNop()
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any()).Times(0)

	p := New(pub)
	p.Stop()
	assert.True(t, p.Stopped())
	p.Ingest(codec.NewHeartRateEvent(1, 100, codec.ScalarRR(600), nil))
}

func TestIngest_KeepsNotificationOrder(t *testing.T) {
	common.SetTestLoggerNop()
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)

	var got []int64
	pub.EXPECT().Publish(gomock.Any()).DoAndReturn(func(payload []byte) error {
		decoded, err := codec.Decode(payload)
		require.NoError(t, err)
		got = append(got, decoded.Event.Timestamp)
		return nil
	}).Times(10)

	p := New(pub)
	for i := int64(0); i < 10; i++ {
		p.Ingest(codec.NewHeartRateEvent(i, 100, codec.ScalarRR(600), nil))
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

type scriptedSource struct {
	events []codec.Event
	err    error
	block  bool
}

func (s *scriptedSource) Run(ctx context.Context, emit func(codec.Event)) error {
	for _, ev := range s.events {
		emit(ev)
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func TestRun_QuitStopsSource(t *testing.T) {
	common.SetTestLoggerNop()
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any()).Return(nil).Times(2)

	src := &scriptedSource{
		events: []codec.Event{
			codec.NewHeartRateEvent(1, 100, codec.ScalarRR(600), nil),
			codec.NewHeartRateEvent(2, 100, codec.ScalarRR(600), nil),
		},
		block: true,
	}

	quit := make(chan struct{})
	p := New(pub)
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), src, quit) }()

	close(quit)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not stop on quit")
	}
	assert.True(t, p.Stopped())
}

func TestRun_ReturnsSourceError(t *testing.T) {
	common.SetTestLoggerNop()
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)

	notFound := &DeviceNotFoundError{Filter: "polar", ScanWindow: 10 * time.Second}
	err := New(pub).Run(context.Background(), &scriptedSource{err: notFound}, nil)

	var target *DeviceNotFoundError
	require.True(t, errors.As(err, &target))
	assert.Contains(t, err.Error(), `"polar"`)
}

func TestListenForQuit(t *testing.T) {
	quit := ListenForQuit(strings.NewReader("hello\n  QUIT \nmore\n"))
	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("quit not signalled")
	}

	quit = ListenForQuit(strings.NewReader("\n"))
	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("empty line should quit")
	}

	r, w := io.Pipe()
	defer w.Close()
	quit = ListenForQuit(r)
	_, _ = w.Write([]byte("status\n"))
	select {
	case <-quit:
		t.Fatal("unexpected quit")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMatchesDeviceName(t *testing.T) {
	assert.True(t, MatchesDeviceName("Polar H10 A1B2C3D4", "polar"))
	assert.True(t, MatchesDeviceName("my POLAR strap", "polar"))
	assert.False(t, MatchesDeviceName("Garmin HRM-Pro", "polar"))
	assert.False(t, MatchesDeviceName("", "polar"))
}
