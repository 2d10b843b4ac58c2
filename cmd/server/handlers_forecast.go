package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// Forecast Handlers
// ============================================================================

// handleForecast serves the corrected forecast for one model. With no model
// (or model=best) the current best scored model is used, falling back to the
// configured default.
func (app *App) handleForecast(c *gin.Context) {
	modelID, err := app.forecast.ResolveModel(c.Query("model"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hours, err := app.forecast.CorrectedForecast(modelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": modelID, "hours": hours})
}

func (app *App) handleForecastModels(c *gin.Context) {
	scores, err := app.store.ModelScores()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	best, err := app.store.BestModel(bestModelMinEvals)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if best == "" {
		best = app.config.DefaultModel
	}
	c.JSON(http.StatusOK, gin.H{"bestModel": best, "models": scores})
}

// handleForecastCompare serves every model's corrected forecast side by side.
func (app *App) handleForecastCompare(c *gin.Context) {
	if cached, ok := app.cache.Get("forecast:compare"); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	models := make(map[string][]ForecastHour, len(app.config.Models))
	for _, model := range app.config.Models {
		hours, err := app.forecast.CorrectedForecast(model.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		models[model.ID] = hours
	}

	payload := gin.H{"models": models}
	app.cache.Set("forecast:compare", payload, 5*time.Minute)
	c.JSON(http.StatusOK, payload)
}

func (app *App) handleForecastSnapshot(c *gin.Context) {
	if err := app.forecast.RunCycle(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	app.cache.Invalidate("forecast:compare")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (app *App) handleForecastEvaluate(c *gin.Context) {
	if err := app.scorer.RunCycle(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleTodayFull combines today's realised buckets with the remaining
// forecast hours; the timeline view renders both in one pass.
func (app *App) handleTodayFull(c *gin.Context) {
	loc := app.config.Location()
	now := time.Now().In(loc)

	buckets, err := app.store.TodayBuckets(app.primaryStationID(),
		app.config.WindowStartHour, app.config.WindowEndHour, 60)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	modelID, err := app.forecast.ResolveModel(c.Query("model"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	forecast, err := app.forecast.CorrectedForecast(modelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	today := now.Format("2006-01-02")
	var future []ForecastHour
	for _, h := range forecast {
		if h.Date == today && h.HourLocal > now.Hour() {
			future = append(future, h)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"date":     today,
		"model":    modelID,
		"actual":   buckets,
		"forecast": future,
	})
}
