package grpc

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	z "github.com/Oudwins/zog"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/heartrate"
	"liyu1981.xyz/polar-hr-pipeline/pkg/models"
)

func validateReadingID(id *int) z.ZogIssueList {
	var readingIDValidator = z.Int().GT(0).Required()
	return readingIDValidator.Validate(id)
}

// windowFromMinutes drops invalid windows instead of rejecting the call.
func windowFromMinutes(req *wrapperspb.Int64Value) models.TimeWindow {
	if req.GetValue() > math.MaxInt32 {
		return models.TimeWindow{}
	}
	minutes := int(req.GetValue())
	var minutesValidator = z.Int().GT(0)
	if issues := minutesValidator.Validate(&minutes); issues != nil {
		return models.TimeWindow{}
	}
	return models.TimeWindow{Minutes: minutes}
}

func logger() *zap.Logger {
	return common.GetLoggerWith(
		common.LoggerNameGrpcServer,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryQuery),
	)
}

func internalError(op string, err error) error {
	logger().Error("Query failed", zap.String("op", op), zap.Error(err))
	return status.Errorf(codes.Internal, "%s: %v", op, err)
}

// readingValue mirrors the REST representation. sensor_timestamp is a decimal
// string because a float64 number cannot hold nanosecond epochs exactly.
func readingValue(r models.HeartRateReading) map[string]any {
	var energy any
	if r.Energy != nil {
		energy = *r.Energy
	}
	return map[string]any{
		"id":                       float64(r.ID),
		"sensor_timestamp":         strconv.FormatInt(r.SensorTimestamp, 10),
		"sensor_timestamp_seconds": r.SensorTimestampSeconds(),
		"bpm":                      r.BPM,
		"rr_interval":              r.RRInterval,
		"rr_interval_seconds":      r.RRIntervalSeconds(),
		"energy":                   energy,
		"created_at":               r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (s *QueryServer) Latest(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	reading, err := s.HeartRate.Query.LatestReading(ctx)
	if errors.Is(err, heartrate.ErrNotFound) {
		return nil, status.Error(codes.NotFound, "No readings available")
	}
	if err != nil {
		return nil, internalError("latest", err)
	}
	return structpb.NewStruct(readingValue(*reading))
}

func (s *QueryServer) Get(ctx context.Context, req *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	if req.GetValue() > math.MaxInt32 {
		return nil, status.Error(codes.NotFound, "Not found.")
	}
	id := int(req.GetValue())
	if issues := validateReadingID(&id); issues != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation error: %v", issues)
	}

	reading, err := s.HeartRate.Query.GetReading(ctx, uint(id))
	if errors.Is(err, heartrate.ErrNotFound) {
		return nil, status.Error(codes.NotFound, "Not found.")
	}
	if err != nil {
		return nil, internalError("get", err)
	}
	return structpb.NewStruct(readingValue(*reading))
}

func (s *QueryServer) List(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.ListValue, error) {
	readings, _, err := s.HeartRate.Query.ListReadings(ctx, windowFromMinutes(req), models.Page{})
	if err != nil {
		return nil, internalError("list", err)
	}

	values := make([]any, 0, len(readings))
	for _, r := range readings {
		values = append(values, readingValue(r))
	}
	return structpb.NewList(values)
}

func (s *QueryServer) Stats(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	stats, err := s.HeartRate.Query.ReadingStats(ctx, windowFromMinutes(req))
	if err != nil {
		return nil, internalError("stats", err)
	}

	fields := map[string]any{
		"count":            stats.Count,
		"avg_bpm":          nil,
		"min_bpm":          nil,
		"max_bpm":          nil,
		"avg_rr_interval":  nil,
		"time_range_start": nil,
		"time_range_end":   nil,
	}
	if stats.AvgBPM != nil {
		fields["avg_bpm"] = *stats.AvgBPM
	}
	if stats.MinBPM != nil {
		fields["min_bpm"] = *stats.MinBPM
	}
	if stats.MaxBPM != nil {
		fields["max_bpm"] = *stats.MaxBPM
	}
	if stats.AvgRRInterval != nil {
		fields["avg_rr_interval"] = *stats.AvgRRInterval
	}
	if stats.TimeRangeStart != nil {
		fields["time_range_start"] = stats.TimeRangeStart.UTC().Format(time.RFC3339Nano)
	}
	if stats.TimeRangeEnd != nil {
		fields["time_range_end"] = stats.TimeRangeEnd.UTC().Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(fields)
}
