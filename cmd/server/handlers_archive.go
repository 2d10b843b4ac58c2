package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// Archive Handlers
// ============================================================================

func (app *App) handleArchiveDays(c *gin.Context) {
	days := paramInt(c, "days", 7)
	if days < 1 || days > 365 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be 1..365"})
		return
	}
	aggs, err := app.store.AggregatesSince(app.primaryStationID(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "count": len(aggs), "aggregates": aggs})
}

func (app *App) handleArchiveDay(c *gin.Context) {
	date, err := time.ParseInLocation("2006-01-02", c.Param("date"), app.config.Location())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be yyyy-mm-dd"})
		return
	}
	aggs, err := app.store.AggregatesForLocalDate(app.primaryStationID(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date.Format("2006-01-02"), "aggregates": aggs})
}

func (app *App) handleArchiveStatistics(c *gin.Context) {
	days := paramInt(c, "days", 30)
	if days < 1 || days > 365 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be 1..365"})
		return
	}

	aggs, err := app.store.AggregatesSince(app.primaryStationID(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(aggs) == 0 {
		c.JSON(http.StatusOK, gin.H{"days": days, "hoursArchived": 0})
		return
	}

	var speeds, dirs []float64
	var maxGust, maxSpeed float64
	daysSeen := make(map[string]bool)
	loc := app.config.Location()
	for _, a := range aggs {
		speeds = append(speeds, a.AvgSpeed)
		dirs = append(dirs, float64(a.AvgDirection))
		if a.MaxSpeed > maxSpeed {
			maxSpeed = a.MaxSpeed
		}
		if a.MaxGust != nil && *a.MaxGust > maxGust {
			maxGust = *a.MaxGust
		}
		daysSeen[a.HourTs.In(loc).Format("2006-01-02")] = true
	}

	c.JSON(http.StatusOK, gin.H{
		"days":          days,
		"daysCovered":   len(daysSeen),
		"hoursArchived": len(aggs),
		"avgSpeed":      round1(mean(speeds)),
		"maxSpeed":      maxSpeed,
		"maxGust":       maxGust,
		"avgDirection":  CircularMeanInt(dirs),
	})
}

// handleArchivePatterns averages the archive per local hour of day, the
// "what does 14:00 usually look like" view.
func (app *App) handleArchivePatterns(c *gin.Context) {
	days := paramInt(c, "days", 30)
	if days < 1 || days > 365 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be 1..365"})
		return
	}

	aggs, err := app.store.AggregatesSince(app.primaryStationID(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	loc := app.config.Location()
	type hourAcc struct {
		speeds []float64
		dirs   []float64
	}
	byHour := make(map[int]*hourAcc)
	for _, a := range aggs {
		h := a.HourTs.In(loc).Hour()
		acc := byHour[h]
		if acc == nil {
			acc = &hourAcc{}
			byHour[h] = acc
		}
		acc.speeds = append(acc.speeds, a.AvgSpeed)
		acc.dirs = append(acc.dirs, float64(a.AvgDirection))
	}

	type hourPattern struct {
		Hour         int     `json:"hour"`
		AvgSpeed     float64 `json:"avgSpeed"`
		MaxSpeed     float64 `json:"maxSpeed"`
		AvgDirection int     `json:"avgDirection"`
		SampleCount  int     `json:"sampleCount"`
	}
	patterns := make([]hourPattern, 0, 24)
	for h := 0; h < 24; h++ {
		acc, ok := byHour[h]
		if !ok {
			continue
		}
		patterns = append(patterns, hourPattern{
			Hour:         h,
			AvgSpeed:     round1(mean(acc.speeds)),
			MaxSpeed:     maxOf(acc.speeds),
			AvgDirection: CircularMeanInt(acc.dirs),
			SampleCount:  len(acc.speeds),
		})
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "patterns": patterns})
}

func (app *App) handleArchiveHourly(c *gin.Context) {
	if err := app.aggregator.RunCycle(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
