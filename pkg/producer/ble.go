package producer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/codec"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"tinygo.org/x/bluetooth"
)

const DefaultScanWindow = 10 * time.Second

// DeviceNotFoundError means no advertisement matched within the scan window.
type DeviceNotFoundError struct {
	Filter     string
	ScanWindow time.Duration
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("no BLE device named like %q found within %s", e.Filter, e.ScanWindow)
}

var ErrDisconnected = errors.New("sensor disconnected")

// MatchesDeviceName is the advertisement filter: a case-insensitive substring.
func MatchesDeviceName(name, filter string) bool {
	return name != "" && strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

// BLESource reads Heart Rate Measurement notifications from one paired strap.
type BLESource struct {
	Adapter    *bluetooth.Adapter
	NameFilter string
	ScanWindow time.Duration
	Now        func() time.Time

	logger *zap.Logger
}

func NewBLESource(scanWindow time.Duration) *BLESource {
	if scanWindow <= 0 {
		scanWindow = DefaultScanWindow
	}
	return &BLESource{
		Adapter:    bluetooth.DefaultAdapter,
		NameFilter: "polar",
		ScanWindow: scanWindow,
		Now:        time.Now,
		logger: common.GetLoggerWith(
			common.LoggerNameProducer,
			zap.String(common.LoggerFieldCategory, common.LoggerCategorySource),
		),
	}
}

func (s *BLESource) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	var (
		found   bluetooth.ScanResult
		matched bool
		mu      sync.Mutex
	)

	scanCtx, cancel := context.WithTimeout(ctx, s.ScanWindow)
	defer cancel()
	go func() {
		<-scanCtx.Done()
		_ = s.Adapter.StopScan()
	}()

	s.logger.Info("Scanning for BLE devices", zap.String("filter", s.NameFilter), zap.Duration("window", s.ScanWindow))
	err := s.Adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !MatchesDeviceName(result.LocalName(), s.NameFilter) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if matched {
			return
		}
		found, matched = result, true
		_ = adapter.StopScan()
	})
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("ble scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !matched {
		if ctx.Err() != nil {
			return bluetooth.ScanResult{}, ctx.Err()
		}
		return bluetooth.ScanResult{}, &DeviceNotFoundError{Filter: s.NameFilter, ScanWindow: s.ScanWindow}
	}
	return found, nil
}

// Run scans, connects and streams notifications until ctx is done or the
// sensor disconnects, in which case ErrDisconnected is returned.
func (s *BLESource) Run(ctx context.Context, emit func(codec.Event)) error {
	if err := s.Adapter.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	result, err := s.scan(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("Found sensor", zap.String("name", result.LocalName()), zap.String("address", result.Address.String()))

	disconnected := make(chan struct{})
	var disconnectOnce sync.Once
	s.Adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if !connected {
			disconnectOnce.Do(func() { close(disconnected) })
		}
	})

	device, err := s.Adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", result.Address.String(), err)
	}
	defer func() {
		if err := device.Disconnect(); err != nil {
			s.logger.Debug("Disconnect failed", zap.Error(err))
		}
	}()

	services, err := device.DiscoverServices([]bluetooth.UUID{bluetooth.ServiceUUIDHeartRate})
	if err != nil {
		return fmt.Errorf("discover heart rate service: %w", err)
	}
	if len(services) == 0 {
		return errors.New("heart rate service not present")
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{bluetooth.CharacteristicUUIDHeartRateMeasurement})
	if err != nil {
		return fmt.Errorf("discover heart rate measurement: %w", err)
	}
	if len(chars) == 0 {
		return errors.New("heart rate measurement characteristic not present")
	}

	// notifications are delivered one at a time by the stack; mu keeps emit
	// serialized if a backend ever calls concurrently
	var mu sync.Mutex
	err = chars[0].EnableNotifications(func(frame []byte) {
		received := s.Now()
		m, err := ParseHeartRateMeasurement(frame)
		if err != nil {
			s.logger.Warn("Dropping malformed frame", zap.Error(err), zap.Binary("frame", frame))
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range m.Events(received) {
			emit(ev)
		}
	})
	if err != nil {
		return fmt.Errorf("enable notifications: %w", err)
	}
	s.logger.Info("Heart rate notifications started")

	select {
	case <-ctx.Done():
		_ = chars[0].EnableNotifications(nil)
		return nil
	case <-disconnected:
		s.logger.Warn("Sensor disconnected")
		return ErrDisconnected
	}
}
