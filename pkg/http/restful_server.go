package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/heartrate"
	"liyu1981.xyz/polar-hr-pipeline/pkg/metrics"
)

type RestfulServer struct {
	Server           *gin.Engine
	HeartRate        *heartrate.HeartRate
	RateLimiterStore *heartrate.RateLimiterStore
	// PageSize is the list page size when the client sends none.
	PageSize int
}

func (rs *RestfulServer) logger() *zap.Logger {
	return common.GetLoggerWith(
		common.LoggerNameRestfulServer,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryQuery),
	)
}

func (rs *RestfulServer) GetLimiter(clientKey string) *rate.Limiter {
	if rs.RateLimiterStore == nil {
		return nil
	} else {
		return rs.RateLimiterStore.GetLimiter(clientKey)
	}
}

func (rs *RestfulServer) CheckClientLimiter(clientKey string) bool {
	return rs.RateLimiterStore.Allow(clientKey)
}

func (rs *RestfulServer) SetLimiter(clientKey string, clientRate float64, clientBurst int) {
	if rs.RateLimiterStore == nil {
		return
	}
	rs.RateLimiterStore.SetLimiter(clientKey, rate.Limit(clientRate), clientBurst)
}

func (rs *RestfulServer) rateLimit(c *gin.Context) {
	if !rs.CheckClientLimiter(c.ClientIP()) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "Request was throttled."})
		return
	}
	c.Next()
}

func countRequests(c *gin.Context) {
	c.Next()
	operation := c.FullPath()
	if operation == "" {
		operation = "unmatched"
	}
	metrics.APIRequests.WithLabelValues("http", operation, strconv.Itoa(c.Writer.Status())).Inc()
}

func (rs *RestfulServer) Setup() {
	rs.Server.Use(countRequests)

	rs.Server.GET("/healthz", rs.HealthCheck)
	rs.Server.GET("/metrics", gin.WrapH(promhttp.Handler()))

	readings := rs.Server.Group("/heartrate", rs.rateLimit)
	{
		readings.GET("/", rs.ListReadings)
		readings.GET("/latest/", rs.LatestReading)
		readings.GET("/stats/", rs.ReadingStats)
		readings.GET("/:id/", rs.GetReading)
	}
}
