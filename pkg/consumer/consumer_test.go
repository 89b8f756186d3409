package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"liyu1981.xyz/polar-hr-pipeline/pkg/channel"
	channelmocks "liyu1981.xyz/polar-hr-pipeline/pkg/channel/mocks"
	"liyu1981.xyz/polar-hr-pipeline/pkg/codec"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/db"
	"liyu1981.xyz/polar-hr-pipeline/pkg/heartrate"
	hrmocks "liyu1981.xyz/polar-hr-pipeline/pkg/heartrate/mocks"
	"liyu1981.xyz/polar-hr-pipeline/pkg/metrics"
	"liyu1981.xyz/polar-hr-pipeline/pkg/models"
)

func setup(t *testing.T) (*gomock.Controller, *Consumer, *hrmocks.MockIReading, *channelmocks.MockMessage) {
	common.SetTestLoggerNop()
	ctrl := gomock.NewController(t)
	reading := hrmocks.NewMockIReading(ctrl)
	msg := channelmocks.NewMockMessage(ctrl)
	return ctrl, New(reading), reading, msg
}

func encode(t *testing.T, ev codec.Event) []byte {
	payload, err := codec.Encode(ev)
	require.NoError(t, err)
	return payload
}

func TestHandle_StoresThenAcks(t *testing.T) {
	_, c, reading, msg := setup(t)

	msg.EXPECT().Data().Return(encode(t, codec.NewHeartRateEvent(1766417260747938000, 119, codec.ScalarRR(521), nil)))
	gomock.InOrder(
		reading.EXPECT().CreateReading(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, r *models.HeartRateReading) error {
				assert.Equal(t, int64(1766417260747938000), r.SensorTimestamp)
				assert.Equal(t, 119, r.BPM)
				assert.Equal(t, 521, r.RRInterval)
				assert.Nil(t, r.Energy)
				return nil
			}),
		msg.EXPECT().Ack().Return(nil),
	)

	assert.Equal(t, OutcomeStored, c.Handle(context.Background(), msg))
}

func TestHandle_RRSequencePersistsFirst(t *testing.T) {
	_, c, reading, msg := setup(t)

	msg.EXPECT().Data().Return([]byte(`{"type":"HR","timestamp":10,"bpm":80,"rr_interval":[700,650],"energy":3.5}`))
	gomock.InOrder(
		reading.EXPECT().CreateReading(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, r *models.HeartRateReading) error {
				assert.Equal(t, 700, r.RRInterval)
				require.NotNil(t, r.Energy)
				assert.Equal(t, 3.5, *r.Energy)
				return nil
			}),
		msg.EXPECT().Ack().Return(nil),
	)

	assert.Equal(t, OutcomeStored, c.Handle(context.Background(), msg))
}

func TestHandle_StorageFailureNaks(t *testing.T) {
	_, c, reading, msg := setup(t)

	msg.EXPECT().Data().Return(encode(t, codec.NewHeartRateEvent(10, 80, codec.ScalarRR(600), nil)))
	gomock.InOrder(
		reading.EXPECT().CreateReading(gomock.Any(), gomock.Any()).
			Return(&heartrate.StorageError{Op: "create", Err: errors.New("database is locked")}),
		msg.EXPECT().Nak().Return(nil),
	)
	msg.EXPECT().Ack().Times(0)

	assert.Equal(t, OutcomeNacked, c.Handle(context.Background(), msg))
}

func TestHandle_DropsWithoutPersisting(t *testing.T) {
	cases := map[string]Outcome{
		`not json at all`:                        OutcomeDecodeError,
		`[1,2]`:                                  OutcomeDecodeError,
		`{"type":"ACC","timestamp":10,"x":[1]}`:  OutcomeIgnored,
		`{"bpm":80,"timestamp":10}`:              OutcomeIgnored,
		`{"type":"HR","bpm":80}`:                 OutcomeInvalid,
		`{"type":"HR","timestamp":10}`:           OutcomeInvalid,
		`{"type":"HR","timestamp":10,"bpm":"x"}`: OutcomeInvalid,
	}

	for payload, want := range cases {
		t.Run(payload, func(t *testing.T) {
			_, c, reading, msg := setup(t)

			msg.EXPECT().Data().Return([]byte(payload))
			msg.EXPECT().Ack().Return(nil).Times(1)
			msg.EXPECT().Nak().Times(0)
			reading.EXPECT().CreateReading(gomock.Any(), gomock.Any()).Times(0)

			assert.Equal(t, want, c.Handle(context.Background(), msg))
		})
	}
}

func TestHandle_AckFailure(t *testing.T) {
	_, c, reading, msg := setup(t)

	msg.EXPECT().Data().Return(encode(t, codec.NewHeartRateEvent(10, 80, codec.ScalarRR(600), nil)))
	reading.EXPECT().CreateReading(gomock.Any(), gomock.Any()).Return(nil)
	msg.EXPECT().Ack().Return(errors.New("connection closed"))

	assert.Equal(t, OutcomeAckFailed, c.Handle(context.Background(), msg))
}

func TestHandle_CountsOutcomes(t *testing.T) {
	_, c, _, msg := setup(t)

	before := testutil.ToFloat64(metrics.ConsumedMessages.WithLabelValues(metrics.OutcomeIgnored))
	msg.EXPECT().Data().Return([]byte(`{"type":"ACC"}`))
	msg.EXPECT().Ack().Return(nil)
	c.Handle(context.Background(), msg)

	after := testutil.ToFloat64(metrics.ConsumedMessages.WithLabelValues(metrics.OutcomeIgnored))
	assert.Equal(t, 1.0, after-before)
}

func TestRun_DelegatesToSubscriber(t *testing.T) {
	ctrl, c, reading, msg := setup(t)
	sub := channelmocks.NewMockSubscriber(ctrl)

	msg.EXPECT().Data().Return(encode(t, codec.NewHeartRateEvent(10, 80, codec.ScalarRR(600), nil)))
	reading.EXPECT().CreateReading(gomock.Any(), gomock.Any()).Return(nil)
	msg.EXPECT().Ack().Return(nil)

	sub.EXPECT().Subscribe(gomock.Any(), 3, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ int, handler channel.Handler) error {
			handler(ctx, msg)
			return nil
		})

	require.NoError(t, c.Run(context.Background(), sub, 3))
}

func TestEndToEnd_EmbeddedBroker(t *testing.T) {
	common.SetTestLoggerNop()
	ctx := context.Background()

	es, err := channel.NewEmbeddedServer(channel.EmbeddedOptions{StoreDir: t.TempDir(), Port: -1})
	require.NoError(t, err)
	t.Cleanup(es.Shutdown)

	dbInstance, err := db.Open(db.UseNamedMemorySqliteDialector(uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbInstance.Close() })
	hr := heartrate.New(dbInstance)

	cfg := channel.Config{URL: es.ClientURL(), Topic: "e2e.hr", Stream: "E2E"}

	sub, err := channel.OpenSubscriber(ctx, cfg, channel.SubscriberOptions{Consumer: "e2e-recorder"})
	require.NoError(t, err)
	defer sub.Close()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- New(hr.Reading).Run(runCtx, sub, 1)
	}()

	pub, err := channel.OpenPublisher(ctx, cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &channel.NATSPublisher{}, pub)

	require.NoError(t, pub.Publish([]byte(`garbage`)))
	require.NoError(t, pub.Publish([]byte(`{"type":"ACC","timestamp":1,"x":3}`)))
	require.NoError(t, pub.Publish([]byte(`{"type":"HR","bpm":90}`)))
	require.NoError(t, pub.Publish(encode(t, codec.NewHeartRateEvent(1766417260747938000, 119, codec.ScalarRR(521), nil))))
	require.NoError(t, pub.Close(ctx))

	var stats *models.ReadingStats
	require.Eventually(t, func() bool {
		stats, err = hr.Query.ReadingStats(ctx, models.TimeWindow{})
		return err == nil && stats.Count == 1
	}, 10*time.Second, 50*time.Millisecond)

	require.NotNil(t, stats.AvgBPM)
	assert.Equal(t, 119.0, *stats.AvgBPM)
	assert.Equal(t, int64(119), *stats.MinBPM)
	assert.Equal(t, int64(119), *stats.MaxBPM)
	require.NotNil(t, stats.AvgRRInterval)
	assert.Equal(t, 521.0, *stats.AvgRRInterval)
	assert.NotNil(t, stats.TimeRangeStart)
	assert.NotNil(t, stats.TimeRangeEnd)

	latest, err := hr.Query.LatestReading(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1766417260747938000), latest.SensorTimestamp)
	assert.Nil(t, latest.Energy)

	cancel()
	require.NoError(t, <-done)

	readings, total, err := hr.Query.ListReadings(ctx, models.TimeWindow{}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, readings, 1)
}
