package channel

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
)

// LocalSink is the publisher used when no broker is configured. Each payload is
// logged and, when out is set, written to it as one line.
type LocalSink struct {
	mu     sync.Mutex
	out    io.Writer
	logger *zap.Logger
}

func NewLocalSink(out io.Writer) *LocalSink {
	return &LocalSink{
		out: out,
		logger: common.GetLoggerWith(
			common.LoggerNameChannel,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryLocal),
		),
	}
}

func (s *LocalSink) Publish(payload []byte) error {
	s.logger.Info("Local sink event", zap.ByteString("payload", payload))

	if s.out == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "%s\n", payload)
	return err
}

func (s *LocalSink) Close(_ context.Context) error {
	return nil
}
