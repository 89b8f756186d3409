package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/channel"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/producer"
)

const (
	exitOK             = 0
	exitUsage          = 1
	exitFailure        = 2
	exitDeviceNotFound = 4
	exitChannelAuth    = 5
)

const closeTimeout = 5 * time.Second

type options struct {
	test        bool
	broker      string
	brokerURL   string
	topic       string
	brokerCreds string
	scanTimeout time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	cfg := channel.ConfigFromEnv()
	opts := options{}

	fs := pflag.NewFlagSet("producer", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.test, "test", false, "emit synthetic heart rate events instead of reading a sensor")
	fs.StringVar(&opts.broker, "broker", cfg.Broker, "broker kind: nats or redis")
	fs.StringVar(&opts.brokerURL, "broker-url", cfg.URL, "broker URL, requires --topic")
	fs.StringVar(&opts.topic, "topic", cfg.Topic, "topic (subject or stream key), requires --broker-url")
	fs.StringVar(&opts.brokerCreds, "broker-creds", cfg.Creds, "broker credentials: user:password or a credentials file")
	fs.DurationVar(&opts.scanTimeout, "scan-timeout", producer.DefaultScanWindow, "how long to scan for a sensor")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if fs.Changed("broker-url") != fs.Changed("topic") {
		return opts, errors.New("--broker-url and --topic must be given together")
	}
	if (opts.brokerURL == "") != (opts.topic == "") {
		return opts, errors.New("broker url and topic must both be set or both be empty")
	}
	return opts, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	logger := common.GetLoggerWith(
		common.LoggerNameProducer,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryIngest),
	)
	defer common.SyncLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, err := channel.OpenPublisher(ctx, channel.Config{
		Broker:     opts.broker,
		URL:        opts.brokerURL,
		Topic:      opts.topic,
		Creds:      opts.brokerCreds,
		Stream:     common.DefaultStreamName,
		ClientName: "polar-hr-producer",
	}, stdout)
	if err != nil {
		logger.Error("Failed to open channel", zap.Error(err))
		fmt.Fprintln(stderr, err)
		var authErr *channel.AuthError
		if errors.As(err, &authErr) {
			return exitChannelAuth
		}
		return exitFailure
	}

	var src producer.Source
	if opts.test {
		src = producer.NewSyntheticSource()
		logger.Info("Running in test mode with synthetic events")
	} else {
		src = producer.NewBLESource(opts.scanTimeout)
		logger.Info("Scanning for a heart rate sensor", zap.Duration("scan_timeout", opts.scanTimeout))
	}
	fmt.Fprintln(stderr, "Press Enter or type q to quit.")

	p := producer.New(pub)
	runErr := p.Run(ctx, src, producer.ListenForQuit(stdin))

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := pub.Close(closeCtx); err != nil {
		logger.Warn("Failed to close channel cleanly", zap.Error(err))
	}

	var notFound *producer.DeviceNotFoundError
	switch {
	case runErr == nil:
		logger.Info("Producer stopped")
		return exitOK
	case errors.Is(runErr, producer.ErrDisconnected):
		logger.Info("Sensor disconnected, producer stopped")
		return exitOK
	case errors.As(runErr, &notFound):
		logger.Error("Sensor not found", zap.Error(runErr))
		fmt.Fprintln(stderr, runErr)
		return exitDeviceNotFound
	default:
		logger.Error("Producer failed", zap.Error(runErr))
		fmt.Fprintln(stderr, runErr)
		return exitFailure
	}
}

func main() {
	// .env is optional for the producer, flags and the environment suffice
	_ = godotenv.Load()

	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
