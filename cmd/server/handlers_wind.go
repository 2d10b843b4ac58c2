package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// Wind Handlers
// ============================================================================

func (app *App) handleWindCurrent(c *gin.Context) {
	stationID := app.primaryStationID()
	if stationID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no station configured"})
		return
	}
	m, err := app.store.LatestMeasurement(stationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no measurements yet"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (app *App) handleWindStream(c *gin.Context) {
	app.hub.HandleSSE(c, app.snapshotFrame)
}

func (app *App) handleWindWS(c *gin.Context) {
	app.hub.HandleWebSocket(c, app.snapshotFrame)
}

// handleWindHistory serves raw rows for the last N hours, or the per-day
// week view when the param is the literal "week".
func (app *App) handleWindHistory(c *gin.Context) {
	if c.Param("hours") == "week" {
		app.handleWindHistoryWeek(c)
		return
	}

	hours := paramInt(c, "hours", 24)
	if hours < 1 || hours > 24*7 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be 1..168"})
		return
	}

	stationID := c.Query("station")
	if stationID == "" {
		stationID = app.primaryStationID()
	}
	ms, err := app.store.MeasurementsSince(stationID, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stationId":    stationID,
		"hours":        hours,
		"count":        len(ms),
		"measurements": ms,
	})
}

// handleWindHistoryWeek groups the last N local days, each filtered to the
// activity window.
func (app *App) handleWindHistoryWeek(c *gin.Context) {
	days := queryInt(c, "days", 7)
	if days < 1 || days > 31 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be 1..31"})
		return
	}

	stationID := app.primaryStationID()
	loc := app.config.Location()
	now := time.Now().In(loc)

	type dayGroup struct {
		Date         string        `json:"date"`
		Count        int           `json:"count"`
		Measurements []Measurement `json:"measurements"`
	}
	groups := make([]dayGroup, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		ms, err := app.store.MeasurementsForLocalDay(stationID, day,
			app.config.WindowStartHour, app.config.WindowEndHour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		groups = append(groups, dayGroup{
			Date:         day.Format("2006-01-02"),
			Count:        len(ms),
			Measurements: ms,
		})
	}
	c.JSON(http.StatusOK, gin.H{"stationId": stationID, "days": groups})
}

func (app *App) handleTodayGradient(c *gin.Context) {
	start := queryInt(c, "start", app.config.WindowStartHour)
	end := queryInt(c, "end", app.config.WindowEndHour)
	interval := queryInt(c, "interval", 60)
	if start < 0 || end > 23 || start > end {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hour range"})
		return
	}
	if interval < 1 || interval > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval must be 1..180 minutes"})
		return
	}

	buckets, err := app.store.TodayBuckets(app.primaryStationID(), start, end, interval)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"intervalMinutes": interval, "buckets": buckets})
}

func (app *App) handleWindStatistics(c *gin.Context) {
	hours := paramInt(c, "hours", 24)
	if hours < 1 || hours > 24*7 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be 1..168"})
		return
	}

	cacheKey := fmt.Sprintf("stats:%d", hours)
	if cached, ok := app.cache.Get(cacheKey); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	stationID := app.primaryStationID()
	ms, err := app.store.MeasurementsSince(stationID, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(ms) == 0 {
		c.JSON(http.StatusOK, gin.H{"stationId": stationID, "hours": hours, "count": 0})
		return
	}

	var speeds, dirs []float64
	var maxGust float64
	for _, m := range ms {
		speeds = append(speeds, m.WindSpeedKnots)
		dirs = append(dirs, float64(m.WindDir))
		if g := maxGustOf(m); g != nil && *g > maxGust {
			maxGust = *g
		}
	}

	stats := gin.H{
		"stationId":    stationID,
		"hours":        hours,
		"count":        len(ms),
		"minSpeed":     minOf(speeds),
		"avgSpeed":     round1(mean(speeds)),
		"maxSpeed":     maxOf(speeds),
		"maxGust":      maxGust,
		"avgDirection": CircularMeanInt(dirs),
		"trend":        trendFromMeasurements(ms),
	}
	app.cache.Set(cacheKey, stats, time.Minute)
	c.JSON(http.StatusOK, stats)
}

func (app *App) handleWindTrend(c *gin.Context) {
	trend, err := ComputeTrend(app.store, app.primaryStationID())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trend)
}

func (app *App) handleWindSafety(c *gin.Context) {
	m, err := app.store.LatestMeasurement(app.primaryStationID())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no measurements yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"safety":         ClassifySafety(m.WindSpeedKnots, m.WindDir),
		"windSpeedKnots": m.WindSpeedKnots,
		"windDir":        m.WindDir,
		"offshore":       isOffshore(m.WindDir),
		"onshore":        isOnshore(m.WindDir),
		"timestamp":      m.Timestamp.UTC().Format(time.RFC3339),
	})
}

func (app *App) handleCollect(c *gin.Context) {
	if err := app.collector.RunCycle(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ============================================================================
// Calibration Handlers
// ============================================================================

func (app *App) handleCalibrationGet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"offset": app.calibration.Offset()})
}

func (app *App) handleCalibrationSet(c *gin.Context) {
	var body struct {
		Offset *float64 `json:"offset"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Offset == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {offset: number}"})
		return
	}
	if err := app.calibration.SetOffset(*body.Offset); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Cached payloads embed calibrated directions.
	app.cache.Clear()
	c.JSON(http.StatusOK, gin.H{"offset": app.calibration.Offset()})
}

// ============================================================================
// Param helpers
// ============================================================================

func paramInt(c *gin.Context, name string, def int) int {
	raw := c.Param(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
