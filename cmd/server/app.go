package main

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// Application Wiring
// ============================================================================

// App composes every component and carries them into the request handlers.
// All dependencies are passed explicitly; nothing lives at package level.
type App struct {
	config      *AppConfig
	store       *Store
	calibration *Calibration
	hub         *StreamHub
	collector   *Collector
	aggregator  *Aggregator
	forecast    *ForecastService
	scorer      *Scorer
	engine      *NotificationEngine
	cache       *ResponseCache
	dataDir     string
	startTime   time.Time
}

// corsMiddleware lets the browser clients (PWA, dashboard) call /api from
// any origin and short-circuits preflight requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// RegisterRoutes wires the /api surface onto the router.
func (app *App) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	api.GET("/version", app.handleVersion)
	api.GET("/health", app.handleHealth)
	api.GET("/health/detailed", app.handleHealthDetailed)

	wind := api.Group("/wind")
	{
		wind.GET("/current", app.handleWindCurrent)
		wind.GET("/stream", app.handleWindStream)
		wind.GET("/ws", app.handleWindWS)
		wind.GET("/history", app.handleWindHistory)
		// "/history/week" is resolved inside the param handler; gin's tree
		// cannot hold both the literal and the param route.
		wind.GET("/history/:hours", app.handleWindHistory)
		wind.GET("/today/gradient", app.handleTodayGradient)
		wind.GET("/today/full", app.handleTodayFull)
		wind.GET("/statistics", app.handleWindStatistics)
		wind.GET("/statistics/:hours", app.handleWindStatistics)
		wind.GET("/trend", app.handleWindTrend)
		wind.GET("/safety", app.handleWindSafety)
		wind.GET("/forecast", app.handleForecast)
		wind.GET("/forecast/models", app.handleForecastModels)
		wind.GET("/forecast/compare", app.handleForecastCompare)
		wind.POST("/forecast/snapshot", app.handleForecastSnapshot)
		wind.POST("/forecast/evaluate", app.handleForecastEvaluate)
		wind.POST("/collect", app.handleCollect)
	}

	api.GET("/calibration", app.handleCalibrationGet)
	api.POST("/calibration", app.handleCalibrationSet)

	archive := api.Group("/archive")
	{
		archive.GET("/days", app.handleArchiveDays)
		archive.GET("/days/:days", app.handleArchiveDays)
		archive.GET("/day/:date", app.handleArchiveDay)
		archive.GET("/statistics", app.handleArchiveStatistics)
		archive.GET("/statistics/:days", app.handleArchiveStatistics)
		archive.GET("/patterns", app.handleArchivePatterns)
		archive.GET("/patterns/:days", app.handleArchivePatterns)
		archive.POST("/hourly", app.handleArchiveHourly)
	}

	notif := api.Group("/notifications")
	{
		notif.POST("/subscribe", app.handleSubscribe)
		notif.POST("/unsubscribe", app.handleUnsubscribe)
		notif.GET("/stats", app.handleNotificationStats)
		notif.POST("/test", app.handleNotificationTest)
		notif.POST("/apns/register", app.handleAPNSRegister)
		notif.POST("/apns/unregister", app.handleAPNSUnregister)
	}
}

// primaryStationID panics-free accessor; "" when no station configured.
func (app *App) primaryStationID() string {
	if p := app.config.PrimaryStation(); p != nil {
		return p.ID
	}
	return ""
}

// snapshotFrame builds the immediate frame for new stream subscribers.
func (app *App) snapshotFrame() *WindUpdateFrame {
	stationID := app.primaryStationID()
	if stationID == "" {
		return nil
	}
	m, err := app.store.LatestMeasurement(stationID)
	if err != nil || m == nil {
		return nil
	}
	frame := &WindUpdateFrame{
		Type:        "wind_update",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Measurement: m,
		Safety:      ClassifySafety(m.WindSpeedKnots, m.WindDir),
	}
	if trend, err := ComputeTrend(app.store, stationID); err == nil {
		frame.Trend = trend
	}
	return frame
}
