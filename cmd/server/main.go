package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "windward",
		Short: "Coastal wind monitoring back office",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("windward %s\n", appVersion)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate config and environment, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck()
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCheck validates the deployment without starting workers.
func runCheck() error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}
	fmt.Printf("✅ Config valid: %d station(s), %d model(s), window %02d:00–%02d:59 %s\n",
		len(config.Stations), len(config.Models),
		config.WindowStartHour, config.WindowEndHour, config.Timezone)

	db, err := InitDatabase(GetDBPath())
	if err != nil {
		return fmt.Errorf("database check failed: %w", err)
	}
	db.Close()
	fmt.Printf("✅ Database reachable at %s\n", GetDBPath())

	diag := CollectDiagnostics(GetDataDir())
	fmt.Printf("✅ Host: %s (%s), mem %.1f%%, disk %.1f%%\n",
		diag.Hostname, diag.Platform, diag.MemoryPercent, diag.DiskPercent)
	return nil
}

func runServer() error {
	fmt.Printf("🌊 windward %s starting\n", appVersion)

	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := InitDatabase(GetDBPath())
	if err != nil {
		return fmt.Errorf("initialising database: %w", err)
	}
	defer db.Close()

	dataDir := GetDataDir()
	calibration := NewCalibration(dataDir)
	store := NewStore(db, calibration, config.Location())

	for _, model := range config.Models {
		if err := store.EnsureModelScore(model.ID); err != nil {
			return fmt.Errorf("seeding model scores: %w", err)
		}
	}

	var webPush *WebPushSender
	if config.VAPID != nil && config.VAPID.PrivateKey != "" {
		webPush, err = NewWebPushSender(config.VAPID)
		if err != nil {
			return fmt.Errorf("web push setup: %w", err)
		}
		fmt.Println("🔔 Web push enabled")
	} else {
		fmt.Println("🔕 Web push disabled (no VAPID keys)")
	}

	apns, err := NewAPNSSender(dataDir)
	if err != nil {
		return fmt.Errorf("APNs setup: %w", err)
	}
	if apns != nil {
		fmt.Println("📱 APNs enabled")
	} else {
		fmt.Println("📴 APNs disabled (no credentials)")
	}

	subs := NewSubscriptionStore(dataDir)
	tokens := NewTokenStore(dataDir)
	engine := NewNotificationEngine(store, config, subs, tokens, webPush, apns)

	hub := NewStreamHub()
	collector := NewCollector(store, config, hub, engine)
	aggregator := NewAggregator(store, config)
	forecast := NewForecastService(store, config)
	scorer := NewScorer(store, config)

	app := &App{
		config:      config,
		store:       store,
		calibration: calibration,
		hub:         hub,
		collector:   collector,
		aggregator:  aggregator,
		forecast:    forecast,
		scorer:      scorer,
		engine:      engine,
		cache:       NewResponseCache(),
		dataDir:     dataDir,
		startTime:   time.Now(),
	}

	scheduler := NewScheduler(config)
	jobs := []struct {
		spec       string
		name       string
		windowOnly bool
		run        func(context.Context) error
	}{
		{"*/5 * * * *", "ingestion", true, collector.RunCycle},
		{"0 * * * *", "aggregation", false, func(context.Context) error { return aggregator.RunCycle() }},
		{"0 */3 * * *", "forecast", true, forecast.RunCycle},
		{"30 21 * * *", "scoring", false, func(context.Context) error { return scorer.RunCycle() }},
		{"0 3 * * *", "cleanup", false, func(context.Context) error { return store.CleanupOldData() }},
	}
	for _, j := range jobs {
		if err := scheduler.Register(j.spec, j.name, j.windowOnly, j.run); err != nil {
			return err
		}
	}

	// Prime the store so the first stream subscriber sees fresh data.
	if len(config.Stations) > 0 && config.InActivityWindow(time.Now()) {
		go func() {
			if err := collector.RunCycle(context.Background()); err != nil {
				log.Printf("Startup ingestion failed: %v", err)
			}
		}()
	}

	scheduler.Start()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(corsMiddleware())
	app.RegisterRoutes(router)

	port := config.Port
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:    config.Host + ":" + port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("🚀 Listening on %s\n", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		fmt.Printf("\n🛑 Received %s, shutting down\n", sig)
	}

	hub.Shutdown()
	scheduler.Stop(10 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	fmt.Println("👋 Stopped")
	return nil
}
