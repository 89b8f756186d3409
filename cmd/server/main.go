package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/db"
	hrGrpc "liyu1981.xyz/polar-hr-pipeline/pkg/grpc"
	"liyu1981.xyz/polar-hr-pipeline/pkg/heartrate"
	hrHttp "liyu1981.xyz/polar-hr-pipeline/pkg/http"
)

func main() {
	var err error

	err = godotenv.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded, using the environment only")
	}

	dialector, err := db.DialectorFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	dbInstance := db.GetInstance(dialector)

	grpcHostPort := common.GetEnv(common.EnvKeyHRGrpcHostPort, "")
	httpHostPort := common.GetEnv(common.EnvKeyHRHttpHostPort, ":8000")

	var defaultRate float64
	var defaultBurst int64

	if defaultRate, err = strconv.ParseFloat(common.GetEnv(common.EnvKeyHRDefaultRate, "10"), 64); err != nil {
		log.Fatal("Invalid HR_DEFAULT_RATE, should be a float64 value")
	}

	if defaultBurst, err = strconv.ParseInt(common.GetEnv(common.EnvKeyHRDefaultBurst, "20"), 10, 64); err != nil {
		log.Fatal("Invalid HR_DEFAULT_BURST, should be an int value")
	}

	pageSize := common.GetEnvAsInt(common.EnvKeyHRPageSize, common.DefaultPageSize)

	logger := common.GetLoggerWith(common.LoggerNameRestfulServer)
	defer common.SyncLogger()

	hr := heartrate.New(dbInstance)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiterField := zap.String("default_limiter",
		fmt.Sprintf("{\"default_rate\": %v, \"default_burst\": %v}", defaultRate, defaultBurst))

	if grpcHostPort != "" {
		grpcServer := &hrGrpc.QueryServer{
			HeartRate:        hr,
			RateLimiterStore: heartrate.NewRateLimiterStore(rate.Limit(defaultRate), int(defaultBurst)),
		}
		s := grpcServer.NewServer()
		logger.Info("gRPC server created with:", limiterField)

		listener, err := net.Listen("tcp", grpcHostPort)
		if err != nil {
			log.Fatalf("failed to listen: %v", err)
		}

		go func() {
			logger.Info("Starting gRPC server on: " + grpcHostPort)
			if err := s.Serve(listener); err != nil {
				logger.Error("gRPC server failed to serve", zap.Error(err))
				stop()
			}
		}()
		defer s.GracefulStop()
	}

	rs := &hrHttp.RestfulServer{
		Server:           gin.Default(),
		HeartRate:        hr,
		RateLimiterStore: heartrate.NewRateLimiterStore(rate.Limit(defaultRate), int(defaultBurst)),
		PageSize:         pageSize,
	}
	rs.Setup()

	logger.Info("http server created with:", limiterField, zap.Int("page_size", pageSize))

	srv := &http.Server{Addr: httpHostPort, Handler: rs.Server}
	go func() {
		logger.Info("Starting HTTP server on: " + httpHostPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed to serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
}
