package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/channel"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/consumer"
	"liyu1981.xyz/polar-hr-pipeline/pkg/db"
	"liyu1981.xyz/polar-hr-pipeline/pkg/heartrate"
)

const (
	exitOK          = 0
	exitUsage       = 1
	exitFailure     = 2
	exitChannelAuth = 5
)

func startEmbeddedBroker(logger *zap.Logger, cfg *channel.Config) (*channel.EmbeddedServer, error) {
	// file credentials only make sense against an external server
	user, password, ok := strings.Cut(cfg.Creds, ":")
	if !ok {
		user, password = "", ""
	}

	es, err := channel.NewEmbeddedServer(channel.EmbeddedOptions{
		StoreDir: common.GetEnv(common.EnvKeyHRNatsStoreDir, "data"),
		Port:     common.GetEnvAsInt(common.EnvKeyHRNatsPort, 4222),
		Username: user,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("start embedded NATS server: %w", err)
	}

	cfg.Broker = common.BrokerNATS
	if cfg.URL == "" {
		cfg.URL = es.ClientURL()
	}
	if cfg.Topic == "" {
		cfg.Topic = common.DefaultTopic
	}
	logger.Info("Embedded NATS server started",
		zap.String("url", cfg.URL),
		zap.String("topic", cfg.Topic),
	)
	return es, nil
}

func startMetricsServer(logger *zap.Logger, hostPort string) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{Addr: hostPort, Handler: engine}
	go func() {
		logger.Info("Starting metrics server on: " + hostPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

// run consumes until ctx is done and returns the process exit status.
func run(ctx context.Context, stderr io.Writer) int {
	logger := common.GetLoggerWith(
		common.LoggerNameConsumer,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryWorkerPool),
	)
	defer common.SyncLogger()

	fail := func(code int, msg string, err error) int {
		logger.Error(msg, zap.Error(err))
		fmt.Fprintf(stderr, "%s: %v\n", msg, err)
		return code
	}

	dialector, err := db.DialectorFromEnv()
	if err != nil {
		return fail(exitUsage, "Invalid database configuration", err)
	}
	dbInstance, err := db.Open(dialector)
	if err != nil {
		return fail(exitFailure, "Failed to open database", err)
	}
	defer dbInstance.Close()
	hr := heartrate.New(dbInstance)

	cfg := channel.ConfigFromEnv()
	cfg.ClientName = "polar-hr-consumer-" + uuid.NewString()[:8]

	if common.GetEnvAsBool(common.EnvKeyHRNatsEmbedded, false) {
		es, err := startEmbeddedBroker(logger, &cfg)
		if err != nil {
			return fail(exitFailure, "Failed to start embedded broker", err)
		}
		defer es.Shutdown()
	}

	if !cfg.Configured() {
		return fail(exitUsage, "Invalid channel configuration",
			fmt.Errorf("%s and %s are required", common.EnvKeyHRBrokerURL, common.EnvKeyHRTopic))
	}

	sub, err := channel.OpenSubscriber(ctx, cfg, channel.SubscriberOptions{
		Consumer:   common.GetEnv(common.EnvKeyHRConsumerName, common.DefaultConsumerName),
		AckWait:    30 * time.Second,
		MaxDeliver: common.GetEnvAsInt(common.EnvKeyHRMaxDeliver, -1),
		NakDelay:   common.GetEnvAsDuration(common.EnvKeyHRNakDelay, 2*time.Second),
	})
	if err != nil {
		var authErr *channel.AuthError
		if errors.As(err, &authErr) {
			return fail(exitChannelAuth, "Broker rejected credentials", err)
		}
		return fail(exitFailure, "Failed to subscribe", err)
	}
	defer sub.Close()

	if hostPort := common.GetEnv(common.EnvKeyHRMetricsHostPort, ""); hostPort != "" {
		srv := startMetricsServer(logger, hostPort)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	workers := common.GetEnvAsInt(common.EnvKeyHRConsumerWorkers, 4)
	logger.Info("Consumer created with:",
		zap.String("broker", cfg.Broker),
		zap.String("url", cfg.URL),
		zap.String("topic", cfg.Topic),
		zap.Int("workers", workers),
	)

	c := consumer.New(hr.Reading)
	if err := c.Run(ctx, sub, workers); err != nil && !errors.Is(err, context.Canceled) {
		return fail(exitFailure, "Consumer failed", err)
	}
	return exitOK
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded, using the environment only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Stderr)
	stop()
	os.Exit(code)
}
