package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// ============================================================================
// Ingestion Worker
// ============================================================================

// Collector fans out one fetch per configured station, stores whatever came
// back, and hands the primary station's reading to the live stream and the
// notification engine. One station failing never blocks another; a cycle
// fails only when every station failed.
type Collector struct {
	store   *Store
	config  *AppConfig
	drivers []StationDriver
	client  *http.Client

	hub    *StreamHub
	engine *NotificationEngine

	mu        sync.Mutex
	lastCycle time.Time
	lastError string
}

// NewCollector builds drivers for every configured station. Stations with an
// unknown kind are skipped with a warning rather than failing startup.
func NewCollector(store *Store, config *AppConfig, hub *StreamHub, engine *NotificationEngine) *Collector {
	c := &Collector{
		store:  store,
		config: config,
		client: &http.Client{Timeout: stationFetchTimeout + time.Second},
		hub:    hub,
		engine: engine,
	}
	for _, sc := range config.Stations {
		driver, err := NewStationDriver(sc)
		if err != nil {
			log.Printf("Skipping station %s: %v", sc.ID, err)
			continue
		}
		c.drivers = append(c.drivers, driver)
	}
	return c
}

type fetchResult struct {
	stationID   string
	measurement *Measurement
	err         error
}

// RunCycle performs one ingestion pass. Called by the scheduler every five
// minutes inside the activity window, and once at startup.
func (c *Collector) RunCycle(ctx context.Context) error {
	if len(c.drivers) == 0 {
		return fmt.Errorf("no stations configured")
	}

	results := make([]fetchResult, len(c.drivers))
	var wg sync.WaitGroup
	for i, d := range c.drivers {
		wg.Add(1)
		go func(i int, d StationDriver) {
			defer wg.Done()
			m, err := d.Fetch(ctx, c.client)
			results[i] = fetchResult{stationID: d.StationID(), measurement: m, err: err}
		}(i, d)
	}
	wg.Wait()

	primary := c.config.PrimaryStation()
	var primaryMeasurement *Measurement
	stored := 0
	for _, r := range results {
		if r.err != nil {
			log.Printf("Station fetch failed: %v", r.err)
			continue
		}
		if err := c.store.InsertMeasurement(r.measurement); err != nil {
			log.Printf("Storing measurement for %s failed: %v", r.stationID, err)
			continue
		}
		stored++
		if primary != nil && r.stationID == primary.ID {
			primaryMeasurement = r.measurement
		}
	}

	c.mu.Lock()
	if stored > 0 {
		c.lastCycle = time.Now()
		c.lastError = ""
	}
	c.mu.Unlock()

	if stored == 0 {
		err := fmt.Errorf("all %d stations failed", len(c.drivers))
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
		return err
	}

	if primaryMeasurement != nil {
		c.broadcast(primaryMeasurement)
		if c.engine != nil {
			c.engine.Evaluate(primaryMeasurement)
		}
	}

	fmt.Printf("🌬️  Ingestion cycle: %d/%d stations stored\n", stored, len(c.drivers))
	return nil
}

// broadcast pushes a wind_update frame, with the freshly computed trend and
// safety classification, to every stream client.
func (c *Collector) broadcast(m *Measurement) {
	if c.hub == nil {
		return
	}

	frame := WindUpdateFrame{
		Type:        "wind_update",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Measurement: m,
		Safety:      ClassifySafety(m.WindSpeedKnots, m.WindDir),
	}
	if trend, err := ComputeTrend(c.store, m.StationID); err == nil {
		frame.Trend = trend
	}
	c.hub.Broadcast(frame)
}

// Status reports the last successful cycle time for health checks.
func (c *Collector) Status() (time.Time, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCycle, c.lastError
}
