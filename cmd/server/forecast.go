package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ============================================================================
// Forecast Ingestion & Serving
// ============================================================================

const forecastFetchTimeout = 15 * time.Second

// ForecastService polls every configured model and serves corrected
// forecasts. Models share one upstream API shape and differ only in base URL.
type ForecastService struct {
	store  *Store
	config *AppConfig
	client *http.Client

	mu        sync.Mutex
	lastCycle time.Time
}

func NewForecastService(store *Store, config *AppConfig) *ForecastService {
	return &ForecastService{
		store:  store,
		config: config,
		client: &http.Client{Timeout: forecastFetchTimeout + time.Second},
	}
}

// hourlyForecast is the upstream response: parallel arrays keyed by local
// ISO timestamps, speeds in km/h.
type hourlyForecast struct {
	Hourly struct {
		Time          []string  `json:"time"`
		WindSpeed10m  []float64 `json:"wind_speed_10m"`
		WindDir10m    []float64 `json:"wind_direction_10m"`
		WindGusts10m  []float64 `json:"wind_gusts_10m"`
	} `json:"hourly"`
}

// RunCycle snapshots a 3-day hourly forecast from every model. One model
// failing never aborts the others.
func (f *ForecastService) RunCycle(ctx context.Context) error {
	if len(f.config.Models) == 0 {
		return fmt.Errorf("no models configured")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(f.config.Models))
	for i, model := range f.config.Models {
		wg.Add(1)
		go func(i int, model ModelConfig) {
			defer wg.Done()
			errs[i] = f.snapshotModel(ctx, model)
		}(i, model)
	}
	wg.Wait()

	ok := 0
	for i, err := range errs {
		if err != nil {
			log.Printf("Forecast fetch for %s failed: %v", f.config.Models[i].ID, err)
			continue
		}
		ok++
	}
	if ok == 0 {
		return fmt.Errorf("all %d models failed", len(f.config.Models))
	}

	f.mu.Lock()
	f.lastCycle = time.Now()
	f.mu.Unlock()
	fmt.Printf("🔮 Forecast cycle: %d/%d models snapshotted\n", ok, len(f.config.Models))
	return nil
}

func (f *ForecastService) snapshotModel(ctx context.Context, model ModelConfig) error {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", f.config.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", f.config.Longitude))
	q.Set("hourly", "wind_speed_10m,wind_direction_10m,wind_gusts_10m")
	q.Set("timezone", f.config.Timezone)
	q.Set("forecast_days", "3")
	endpoint := model.BaseURL + "/forecast?" + q.Encode()

	ctx, cancel := context.WithTimeout(ctx, forecastFetchTimeout)
	defer cancel()

	var payload hourlyForecast
	if err := fetchJSON(ctx, f.client, endpoint, &payload); err != nil {
		return err
	}

	h := payload.Hourly
	if len(h.Time) == 0 || len(h.Time) != len(h.WindSpeed10m) ||
		len(h.Time) != len(h.WindDir10m) || len(h.Time) != len(h.WindGusts10m) {
		return fmt.Errorf("malformed hourly arrays (%d times)", len(h.Time))
	}

	now := time.Now().UTC()
	inserted := 0
	for i, iso := range h.Time {
		// Upstream emits "2006-01-02T15:04" in the requested timezone.
		t, err := time.ParseInLocation("2006-01-02T15:04", iso, f.config.Location())
		if err != nil {
			log.Printf("Model %s: skipping unparseable hour %q", model.ID, iso)
			continue
		}
		snap := &ForecastSnapshot{
			ModelID:         model.ID,
			SnapshotTs:      now,
			TargetDate:      t.Format("2006-01-02"),
			TargetHourLocal: t.Hour(),
			SpeedKnots:      round1(h.WindSpeed10m[i] * kmhToKnots),
			GustKnots:       round1(h.WindGusts10m[i] * kmhToKnots),
			DirectionDeg:    int(NormalizeDegrees(h.WindDir10m[i])),
		}
		if err := f.store.InsertForecastSnapshot(snap); err != nil {
			return fmt.Errorf("storing snapshot: %w", err)
		}
		inserted++
	}
	if inserted == 0 {
		return fmt.Errorf("no usable hours in response")
	}
	return nil
}

// CorrectedForecast serves the latest snapshot per upcoming hour with the
// model's correction factor multiplied into the speeds. Unscored models are
// served with factor 1.0.
func (f *ForecastService) CorrectedForecast(modelID string) ([]ForecastHour, error) {
	factor := 1.0
	if score, err := f.store.GetModelScore(modelID); err != nil {
		return nil, err
	} else if score != nil && score.CorrectionFactor > 0 {
		factor = score.CorrectionFactor
	}

	today := time.Now().In(f.config.Location()).Format("2006-01-02")
	snaps, err := f.store.LatestSnapshots(modelID, today)
	if err != nil {
		return nil, err
	}

	hours := make([]ForecastHour, 0, len(snaps))
	for _, s := range snaps {
		hours = append(hours, ForecastHour{
			Date:         s.TargetDate,
			HourLocal:    s.TargetHourLocal,
			SpeedKnots:   round1(s.SpeedKnots * factor),
			GustKnots:    round1(s.GustKnots * factor),
			DirectionDeg: s.DirectionDeg,
			SnapshotTs:   s.SnapshotTs.UTC().Format(time.RFC3339),
		})
	}
	return hours, nil
}

// ResolveModel maps "best" (or "") onto the best scored model, falling back
// to the configured default, and validates explicit model ids.
func (f *ForecastService) ResolveModel(requested string) (string, error) {
	if requested == "" || requested == "best" {
		best, err := f.store.BestModel(10)
		if err != nil {
			return "", err
		}
		if best != "" {
			return best, nil
		}
		return f.config.DefaultModel, nil
	}
	for _, m := range f.config.Models {
		if m.ID == requested {
			return requested, nil
		}
	}
	return "", fmt.Errorf("unknown model %q", requested)
}

// LastCycle reports the last successful poll for health checks.
func (f *ForecastService) LastCycle() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCycle
}
