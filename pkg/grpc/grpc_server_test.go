package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/db"
	"liyu1981.xyz/polar-hr-pipeline/pkg/heartrate"
	"liyu1981.xyz/polar-hr-pipeline/pkg/heartrate/mocks"
	"liyu1981.xyz/polar-hr-pipeline/pkg/metrics"
	"liyu1981.xyz/polar-hr-pipeline/pkg/models"
	_ "liyu1981.xyz/polar-hr-pipeline/pkg/testing"
)

const bufSize = 1024 * 1024

var fixedNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func startTestServer(t *testing.T, qs *QueryServer) *HeartRateQueryClient {
	listener := bufconn.Listen(bufSize)

	server := qs.NewServer()
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
			return listener.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewHeartRateQueryClient(conn)
}

func newQueryServer(t *testing.T) *QueryServer {
	common.SetTestLoggerNop()

	dbInstance, err := db.Open(db.UseNamedMemorySqliteDialector(uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbInstance.Close() })

	hr := heartrate.New(dbInstance)
	hr.Now = func() time.Time { return fixedNow }

	return &QueryServer{HeartRate: hr}
}

func seed(t *testing.T, qs *QueryServer, bpm, rr int, createdAt time.Time) models.HeartRateReading {
	reading := models.HeartRateReading{
		SensorTimestamp: 1766417260747938000,
		BPM:             bpm,
		RRInterval:      rr,
		CreatedAt:       createdAt,
	}
	require.NoError(t, qs.HeartRate.Db.Conn.Create(&reading).Error)
	return reading
}

func TestLatestAndGet(t *testing.T) {
	qs := newQueryServer(t)
	client := startTestServer(t, qs)
	ctx := context.Background()

	_, err := client.Latest(ctx)
	assert.Equal(t, codes.NotFound, status.Code(err))

	seed(t, qs, 90, 700, fixedNow.Add(-2*time.Minute))
	newest := seed(t, qs, 119, 521, fixedNow.Add(-1*time.Minute))

	latest, err := client.Latest(ctx)
	require.NoError(t, err)
	fields := latest.AsMap()
	assert.Equal(t, float64(newest.ID), fields["id"])
	assert.Equal(t, float64(119), fields["bpm"])
	assert.Equal(t, "1766417260747938000", fields["sensor_timestamp"])
	assert.InDelta(t, 0.521, fields["rr_interval_seconds"], 1e-9)
	assert.Nil(t, fields["energy"])

	got, err := client.Get(ctx, uint64(newest.ID))
	require.NoError(t, err)
	assert.Equal(t, float64(521), got.AsMap()["rr_interval"])

	_, err = client.Get(ctx, 9999)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.Get(ctx, 0)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListWindow(t *testing.T) {
	qs := newQueryServer(t)
	client := startTestServer(t, qs)
	ctx := context.Background()

	seed(t, qs, 100, 600, fixedNow.Add(-10*time.Minute))
	recent := seed(t, qs, 110, 550, fixedNow.Add(-1*time.Minute))

	list, err := client.List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, list.Values, 1)
	assert.Equal(t, float64(recent.ID), list.Values[0].GetStructValue().AsMap()["id"])

	for _, minutes := range []int64{0, -3} {
		list, err = client.List(ctx, minutes)
		require.NoError(t, err)
		require.Len(t, list.Values, 2, minutes)
		assert.Equal(t, float64(recent.ID), list.Values[0].GetStructValue().AsMap()["id"], "newest first")
	}
}

func TestStats(t *testing.T) {
	qs := newQueryServer(t)
	client := startTestServer(t, qs)
	ctx := context.Background()

	empty, err := client.Stats(ctx, 0)
	require.NoError(t, err)
	fields := empty.AsMap()
	assert.Equal(t, float64(0), fields["count"])
	assert.Nil(t, fields["avg_bpm"])
	assert.Nil(t, fields["time_range_start"])

	seed(t, qs, 60, 1000, fixedNow.Add(-30*time.Minute))
	seed(t, qs, 119, 521, fixedNow.Add(-1*time.Minute))

	stats, err := client.Stats(ctx, 5)
	require.NoError(t, err)
	fields = stats.AsMap()
	assert.Equal(t, float64(1), fields["count"])
	assert.Equal(t, 119.0, fields["avg_bpm"])
	assert.Equal(t, float64(119), fields["min_bpm"])
	assert.Equal(t, float64(119), fields["max_bpm"])
	assert.Equal(t, 521.0, fields["avg_rr_interval"])

	stats, err = client.Stats(ctx, 0)
	require.NoError(t, err)
	fields = stats.AsMap()
	assert.Equal(t, float64(2), fields["count"])
	assert.Equal(t, 89.5, fields["avg_bpm"])
	assert.NotNil(t, fields["time_range_start"])
	assert.NotNil(t, fields["time_range_end"])
}

func TestRateLimitInterceptor(t *testing.T) {
	qs := newQueryServer(t)
	qs.RateLimiterStore = heartrate.NewRateLimiterStore(0, 1)
	client := startTestServer(t, qs)
	ctx := context.Background()

	_, err := client.Stats(ctx, 0)
	require.NoError(t, err)

	_, err = client.Stats(ctx, 0)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = client.Latest(ctx)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err), "limit is shared across methods")
}

func TestQueryErrors(t *testing.T) {
	qs := newQueryServer(t)
	ctrl := gomock.NewController(t)
	mockQuery := mocks.NewMockIQuery(ctrl)
	qs.HeartRate.WithServices(heartrate.ServiceOpts{Query: mockQuery})
	client := startTestServer(t, qs)
	ctx := context.Background()

	boom := errors.New("database is locked")
	mockQuery.EXPECT().LatestReading(gomock.Any()).Return(nil, boom)
	mockQuery.EXPECT().GetReading(gomock.Any(), uint(7)).Return(nil, boom)
	mockQuery.EXPECT().ListReadings(gomock.Any(), models.TimeWindow{}, models.Page{}).Return(nil, int64(0), boom)
	mockQuery.EXPECT().ReadingStats(gomock.Any(), models.TimeWindow{Minutes: 5}).Return(nil, boom)

	_, err := client.Latest(ctx)
	assert.Equal(t, codes.Internal, status.Code(err))
	_, err = client.Get(ctx, 7)
	assert.Equal(t, codes.Internal, status.Code(err))
	_, err = client.List(ctx, 0)
	assert.Equal(t, codes.Internal, status.Code(err))
	_, err = client.Stats(ctx, 5)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "database is locked")
}

func TestCountRequestsInterceptor(t *testing.T) {
	qs := newQueryServer(t)
	client := startTestServer(t, qs)

	counter := metrics.APIRequests.WithLabelValues("grpc", MethodLatest, codes.NotFound.String())
	before := testutil.ToFloat64(counter)

	_, err := client.Latest(context.Background())
	require.Error(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestCheckClientLimiter(t *testing.T) {
	qs := &QueryServer{}
	for i := 0; i < 5; i++ {
		assert.True(t, qs.CheckClientLimiter("10.0.0.1"), "no store means no limit")
	}
	assert.Nil(t, qs.GetLimiter("10.0.0.1"))

	qs.RateLimiterStore = heartrate.NewRateLimiterStore(0, 2)
	assert.True(t, qs.CheckClientLimiter("10.0.0.1"))
	assert.True(t, qs.CheckClientLimiter("10.0.0.1"))
	assert.False(t, qs.CheckClientLimiter("10.0.0.1"))
	assert.True(t, qs.CheckClientLimiter("10.0.0.2"))
}
