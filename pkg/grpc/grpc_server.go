package grpc

import (
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"liyu1981.xyz/polar-hr-pipeline/pkg/heartrate"
)

type QueryServer struct {
	HeartRate        *heartrate.HeartRate
	RateLimiterStore *heartrate.RateLimiterStore
}

func (s *QueryServer) GetLimiter(clientKey string) *rate.Limiter {
	if s.RateLimiterStore == nil {
		return nil
	} else {
		return s.RateLimiterStore.GetLimiter(clientKey)
	}
}

func (s *QueryServer) CheckClientLimiter(clientKey string) bool {
	return s.RateLimiterStore.Allow(clientKey)
}

// RateLimitedRequests lists the request types of every query method.
func RateLimitedRequests() []proto.Message {
	return []proto.Message{
		&emptypb.Empty{},
		&wrapperspb.UInt64Value{},
		&wrapperspb.Int64Value{},
	}
}

// NewServer builds a grpc.Server with the query service registered behind the
// request counter and the per-peer limiter.
func (s *QueryServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		CountRequestsInterceptor,
		s.CreateRateLimitInterceptor(RateLimitedRequests()),
	))
	server := grpc.NewServer(opts...)
	RegisterHeartRateQueryServer(server, s)
	return server
}
