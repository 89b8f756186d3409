package channel

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
)

type EmbeddedOptions struct {
	// StoreDir holds JetStream file storage.
	StoreDir string
	// Port is the client port, -1 picks a random one.
	Port     int
	Username string
	Password string
}

// EmbeddedServer is an in-process NATS server with JetStream, for local runs
// without a broker deployment and for tests.
type EmbeddedServer struct {
	server *server.Server
	opts   EmbeddedOptions
}

func NewEmbeddedServer(opts EmbeddedOptions) (*EmbeddedServer, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameChannel,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryNats),
	)

	serverOpts := &server.Options{
		JetStream: true,
		StoreDir:  filepath.Join(opts.StoreDir, "nats-store"),
		Host:      "127.0.0.1",
		Port:      opts.Port,
		HTTPPort:  -1,
		NoSigs:    true,
		Username:  opts.Username,
		Password:  opts.Password,
	}

	if err := os.MkdirAll(serverOpts.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("create nats store dir: %w", err)
	}

	ns, err := server.NewServer(serverOpts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready for connections")
	}

	logger.Info("Embedded NATS server started", zap.String("client_url", ns.ClientURL()))

	return &EmbeddedServer{server: ns, opts: opts}, nil
}

func (es *EmbeddedServer) ClientURL() string {
	return es.server.ClientURL()
}

// Connect opens a client connection carrying the server's own credentials.
func (es *EmbeddedServer) Connect() (*nats.Conn, error) {
	var options []nats.Option
	if es.opts.Username != "" {
		options = append(options, nats.UserInfo(es.opts.Username, es.opts.Password))
	}
	return nats.Connect(es.ClientURL(), options...)
}

func (es *EmbeddedServer) Shutdown() {
	if es.server != nil {
		es.server.Shutdown()
		es.server.WaitForShutdown()
	}
	common.GetLoggerWith(
		common.LoggerNameChannel,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryNats),
	).Info("Embedded NATS server stopped")
}
