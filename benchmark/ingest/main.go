package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"liyu1981.xyz/polar-hr-pipeline/pkg/channel"
	"liyu1981.xyz/polar-hr-pipeline/pkg/codec"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	hrGrpc "liyu1981.xyz/polar-hr-pipeline/pkg/grpc"
	"liyu1981.xyz/polar-hr-pipeline/pkg/models"
	"liyu1981.xyz/polar-hr-pipeline/pkg/producer"
)

var (
	maxEvents    = pflag.Int("events", 1000, "number of synthetic events to publish")
	publishers   = pflag.Int("publishers", 4, "concurrent publishing goroutines")
	httpHostPort = pflag.String("http", "127.0.0.1:8000", "query API HTTP address")
	grpcHostPort = pflag.String("grpc", "", "query API gRPC address, optional")
	waitTimeout  = pflag.Duration("wait", 2*time.Minute, "how long to wait for the consumer to catch up")
)

func fetchCount(client *resty.Client) int64 {
	var stats models.ReadingStats
	resp, err := client.R().SetResult(&stats).Get("/heartrate/stats/")
	if err != nil {
		log.Fatal("Failed to query stats: ", err)
	}
	if resp.StatusCode() != http.StatusOK {
		log.Fatalf("stats returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return stats.Count
}

func main() {
	_ = godotenv.Load()
	pflag.Parse()
	common.SetTestLoggerNop()

	client := resty.New().
		SetBaseURL("http://" + *httpHostPort).
		SetTimeout(5 * time.Second)

	resp, err := client.R().Get("/healthz")
	if err != nil {
		log.Fatal("Failed to connect to HTTP server: ", err)
	}
	if resp.StatusCode() != http.StatusOK {
		log.Fatal("HTTP server not available")
	}
	fmt.Printf("http server verified\n")

	cfg := channel.ConfigFromEnv()
	if !cfg.Configured() {
		log.Fatalf("%s and %s must be set", common.EnvKeyHRBrokerURL, common.EnvKeyHRTopic)
	}
	cfg.ClientName = "polar-hr-benchmark"

	ctx := context.Background()
	pub, err := channel.OpenPublisher(ctx, cfg, nil)
	if err != nil {
		log.Fatal("Failed to open channel: ", err)
	}
	if _, local := pub.(*channel.LocalSink); local {
		log.Fatal("Broker unreachable, refusing to benchmark the local sink")
	}

	baseline := fetchCount(client)
	fmt.Printf("baseline count=%v\n", baseline)

	src := producer.NewSyntheticSource()
	var srcMu sync.Mutex

	startTime := time.Now()
	wg := sync.WaitGroup{}
	perPublisher := *maxEvents / *publishers
	for i := range *publishers {
		n := perPublisher
		if i == *publishers-1 {
			n = *maxEvents - perPublisher*(*publishers-1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range n {
				srcMu.Lock()
				ev := src.Next()
				srcMu.Unlock()

				payload, err := codec.Encode(ev)
				if err != nil {
					log.Fatal(err)
				}
				for {
					err := pub.Publish(payload)
					if err == nil {
						break
					}
					if !errors.Is(err, channel.ErrQueueFull) {
						log.Fatal("publish failed: ", err)
					}
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}
	wg.Wait()

	closeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pub.Close(closeCtx); err != nil {
		log.Fatal("Failed to flush publisher: ", err)
	}
	usedTime := time.Since(startTime)
	fmt.Printf(
		"published %v events: used time=%v seconds, throughput=%v events/second\n",
		*maxEvents, usedTime.Seconds(), float64(*maxEvents)/usedTime.Seconds(),
	)

	target := baseline + int64(*maxEvents)
	deadline := time.Now().Add(*waitTimeout)
	for {
		count := fetchCount(client)
		fmt.Printf("\rstored %v/%v", count-baseline, *maxEvents)
		if count >= target {
			break
		}
		if time.Now().After(deadline) {
			fmt.Println()
			log.Fatalf("consumer did not catch up within %v", *waitTimeout)
		}
		time.Sleep(250 * time.Millisecond)
	}
	usedTime = time.Since(startTime)
	fmt.Printf(
		"\nend to end %v events: used time=%v seconds, throughput=%v events/second\n",
		*maxEvents, usedTime.Seconds(), float64(*maxEvents)/usedTime.Seconds(),
	)

	if *grpcHostPort == "" {
		return
	}

	conn, err := grpc.NewClient(*grpcHostPort, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal("Failed to connect to gRPC server: ", err)
	}
	defer conn.Close()

	stats, err := hrGrpc.NewHeartRateQueryClient(conn).Stats(ctx, 0)
	if err != nil {
		log.Fatal("gRPC stats failed: ", err)
	}
	fmt.Printf("gRPC stats: %v\n", stats.AsMap())
}
