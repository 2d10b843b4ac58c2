package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// Notification Handlers
// ============================================================================

// handleSubscribe accepts a standard Web Push subscription document.
func (app *App) handleSubscribe(c *gin.Context) {
	var sub PushSubscription
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed subscription"})
		return
	}
	if sub.Endpoint == "" || sub.Keys["p256dh"] == "" || sub.Keys["auth"] == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subscription must carry endpoint, p256dh and auth"})
		return
	}
	sub.CreatedAt = time.Now().UTC()

	if err := app.engine.subs.Add(sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "subscribed"})
}

func (app *App) handleUnsubscribe(c *gin.Context) {
	var body struct {
		Endpoint string `json:"endpoint"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {endpoint: string}"})
		return
	}
	if err := app.engine.subs.Remove(body.Endpoint); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unsubscribed"})
}

func (app *App) handleNotificationStats(c *gin.Context) {
	c.JSON(http.StatusOK, app.engine.Stats())
}

func (app *App) handleNotificationTest(c *gin.Context) {
	sent := app.engine.SendTest()
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

func (app *App) handleAPNSRegister(c *gin.Context) {
	var body struct {
		Token  string `json:"token"`
		Locale string `json:"locale"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must carry a token"})
		return
	}
	if err := app.engine.tokens.Add(DeviceToken{
		Token:     body.Token,
		Locale:    body.Locale,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "registered"})
}

func (app *App) handleAPNSUnregister(c *gin.Context) {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must carry a token"})
		return
	}
	if err := app.engine.tokens.Remove(body.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unregistered"})
}
