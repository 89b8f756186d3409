package heartrate

import (
	"bufio"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"liyu1981.xyz/polar-hr-pipeline/pkg/db"
	"liyu1981.xyz/polar-hr-pipeline/pkg/heartrate/mocks"
	"liyu1981.xyz/polar-hr-pipeline/pkg/models"
)

var fixedNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func GetMockHeartRateWithMemorySqliteDialector(t *testing.T, useMockIReading, useMockIQuery bool) (
	*gomock.Controller,
	*HeartRate,
	*mocks.MockIReading,
	*mocks.MockIQuery,
) {
	ctrl := gomock.NewController(t)

	mockIReading := mocks.NewMockIReading(ctrl)
	mockIQuery := mocks.NewMockIQuery(ctrl)

	// every test gets its own database so counts and aggregates stay exact
	dbInstance, err := db.Open(db.UseNamedMemorySqliteDialector(uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbInstance.Close() })

	hrInstance := &HeartRate{Db: *dbInstance, Now: func() time.Time { return fixedNow }}

	readingService := hrInstance.GetIReading()
	if useMockIReading {
		readingService = mockIReading
	}

	queryService := hrInstance.GetIQuery()
	if useMockIQuery {
		queryService = mockIQuery
	}

	hrInstance.WithServices(ServiceOpts{
		Reading: readingService,
		Query:   queryService,
	})

	return ctrl, hrInstance, mockIReading, mockIQuery
}

func seedReading(t *testing.T, h *HeartRate, bpm, rr int, createdAt time.Time) models.HeartRateReading {
	reading := models.HeartRateReading{
		SensorTimestamp: createdAt.UnixNano(),
		BPM:             bpm,
		RRInterval:      rr,
		CreatedAt:       createdAt,
	}
	require.NoError(t, h.Db.Conn.Create(&reading).Error)
	return reading
}

func ParseLogs(r io.Reader) []any {
	scanner := bufio.NewScanner(r)
	var logs []any

	for scanner.Scan() {
		line := scanner.Text()
		var j any
		if err := json.Unmarshal([]byte(line), &j); err == nil {
			logs = append(logs, j)
		}
	}
	return logs
}
