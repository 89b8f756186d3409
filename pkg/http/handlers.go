package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/heartrate"
	"liyu1981.xyz/polar-hr-pipeline/pkg/models"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
)

type ReadingResponse struct {
	ID                     uint      `json:"id"`
	SensorTimestamp        int64     `json:"sensor_timestamp"`
	SensorTimestampSeconds float64   `json:"sensor_timestamp_seconds"`
	BPM                    int       `json:"bpm"`
	RRInterval             int       `json:"rr_interval"`
	RRIntervalSeconds      float64   `json:"rr_interval_seconds"`
	Energy                 *float64  `json:"energy"`
	CreatedAt              time.Time `json:"created_at"`
}

func NewReadingResponse(r models.HeartRateReading) ReadingResponse {
	return ReadingResponse{
		ID:                     r.ID,
		SensorTimestamp:        r.SensorTimestamp,
		SensorTimestampSeconds: r.SensorTimestampSeconds(),
		BPM:                    r.BPM,
		RRInterval:             r.RRInterval,
		RRIntervalSeconds:      r.RRIntervalSeconds(),
		Energy:                 r.Energy,
		CreatedAt:              r.CreatedAt,
	}
}

type ListResponse struct {
	Count    int64             `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []ReadingResponse `json:"results"`
}

type WindowQuery struct {
	Minutes int `zog:"minutes"`
}

var windowQuerySchema = z.Struct(z.Shape{
	"minutes": z.Int().GT(0),
})

type PageQuery struct {
	Page     int `zog:"page"`
	PageSize int `zog:"page_size"`
}

var pageQuerySchema = z.Struct(z.Shape{
	"page":     z.Int().GT(0),
	"pageSize": z.Int().GT(0).LTE(common.MaxPageSize),
})

var readingIDValidator = z.Int().Required().GT(0)

// parseReadingID accepts positive integer path ids only.
func parseReadingID(raw string) (int, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	if issues := readingIDValidator.Validate(&id); issues != nil {
		return 0, false
	}
	return id, true
}

// parseWindow never fails: a missing, non-numeric or non-positive minutes
// value means no filter.
func parseWindow(c *gin.Context) models.TimeWindow {
	var q WindowQuery
	if errs := windowQuerySchema.Parse(zhttp.Request(c.Request), &q); errs != nil {
		return models.TimeWindow{}
	}
	if q.Minutes <= 0 {
		return models.TimeWindow{}
	}
	return models.TimeWindow{Minutes: q.Minutes}
}

// parsePage falls back to the first page of the default size on bad input.
func (rs *RestfulServer) parsePage(c *gin.Context) models.Page {
	size := rs.PageSize
	if size <= 0 {
		size = common.DefaultPageSize
	}
	page := models.Page{Number: 1, Size: size}

	var q PageQuery
	if errs := pageQuerySchema.Parse(zhttp.Request(c.Request), &q); errs != nil {
		return page
	}
	if q.Page > 0 {
		page.Number = q.Page
	}
	if q.PageSize > 0 && q.PageSize <= common.MaxPageSize {
		page.Size = q.PageSize
	}
	return page
}

func pageURL(c *gin.Context, number int) *string {
	u := url.URL{
		Scheme: "http",
		Host:   c.Request.Host,
		Path:   c.Request.URL.Path,
	}
	if c.Request.TLS != nil {
		u.Scheme = "https"
	}
	q := c.Request.URL.Query()
	if number <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(number))
	}
	u.RawQuery = q.Encode()
	s := u.String()
	return &s
}

func (rs *RestfulServer) internalError(c *gin.Context, op string, err error) {
	rs.logger().Error("Query failed", zap.String("op", op), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (rs *RestfulServer) ListReadings(c *gin.Context) {
	window := parseWindow(c)
	page := rs.parsePage(c)

	readings, total, err := rs.HeartRate.Query.ListReadings(c.Request.Context(), window, page)
	if err != nil {
		rs.internalError(c, "list", err)
		return
	}

	resp := ListResponse{
		Count:   total,
		Results: common.Mapper(readings, NewReadingResponse),
	}
	if int64(page.Offset()+len(readings)) < total {
		resp.Next = pageURL(c, page.Number+1)
	}
	if page.Number > 1 {
		resp.Previous = pageURL(c, page.Number-1)
	}

	c.JSON(http.StatusOK, resp)
}

func (rs *RestfulServer) GetReading(c *gin.Context) {
	id, ok := parseReadingID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}

	reading, err := rs.HeartRate.Query.GetReading(c.Request.Context(), uint(id))
	if errors.Is(err, heartrate.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	if err != nil {
		rs.internalError(c, "get", err)
		return
	}

	c.JSON(http.StatusOK, NewReadingResponse(*reading))
}

func (rs *RestfulServer) LatestReading(c *gin.Context) {
	reading, err := rs.HeartRate.Query.LatestReading(c.Request.Context())
	if errors.Is(err, heartrate.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "No readings available"})
		return
	}
	if err != nil {
		rs.internalError(c, "latest", err)
		return
	}

	c.JSON(http.StatusOK, NewReadingResponse(*reading))
}

func (rs *RestfulServer) ReadingStats(c *gin.Context) {
	stats, err := rs.HeartRate.Query.ReadingStats(c.Request.Context(), parseWindow(c))
	if err != nil {
		rs.internalError(c, "stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
