package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// System Handlers
// ============================================================================

const appVersion = "1.4.2"

func (app *App) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":   appVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (app *App) handleHealth(c *gin.Context) {
	status := "ok"
	dbErr := ""
	if err := app.store.DB().Ping(); err != nil {
		status = "degraded"
		dbErr = err.Error()
	}

	lastCycle, lastErr := app.collector.Status()
	payload := gin.H{
		"status":        status,
		"uptimeSeconds": int(time.Since(app.startTime).Seconds()),
		"streamClients": app.hub.ClientCount(),
		"inWindow":      app.config.InActivityWindow(time.Now()),
	}
	if dbErr != "" {
		payload["dbError"] = dbErr
	}
	if !lastCycle.IsZero() {
		payload["lastIngestion"] = lastCycle.UTC().Format(time.RFC3339)
	}
	if lastErr != "" {
		payload["lastIngestionError"] = lastErr
	}
	if last := app.forecast.LastCycle(); !last.IsZero() {
		payload["lastForecast"] = last.UTC().Format(time.RFC3339)
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, payload)
}

func (app *App) handleHealthDetailed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":     appVersion,
		"host":        CollectDiagnostics(app.dataDir),
		"calibration": app.calibration.Offset(),
		"stations":    len(app.config.Stations),
		"models":      len(app.config.Models),
	})
}
