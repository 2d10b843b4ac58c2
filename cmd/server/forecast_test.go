package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func forecastServer(t *testing.T, day string, speedsKmh []float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast" {
			http.NotFound(w, r)
			return
		}
		times, speeds, dirs, gusts := "", "", "", ""
		for i, s := range speedsKmh {
			if i > 0 {
				times, speeds, dirs, gusts = times+",", speeds+",", dirs+",", gusts+","
			}
			times += fmt.Sprintf(`"%sT%02d:00"`, day, 10+i)
			speeds += fmt.Sprintf("%v", s)
			dirs += "100"
			gusts += fmt.Sprintf("%v", s+10)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"hourly":{"time":[%s],"wind_speed_10m":[%s],"wind_direction_10m":[%s],"wind_gusts_10m":[%s]}}`,
			times, speeds, dirs, gusts)
	}))
}

func TestForecastIngestion(t *testing.T) {
	h := NewTestHelper(t)
	defer h.Close()

	t.Run("Snapshots stored with km/h conversion", func(t *testing.T) {
		config := testConfig()
		today := time.Now().In(config.Location()).Format("2006-01-02")
		srv := forecastServer(t, today, []float64{20, 25})
		defer srv.Close()

		config.Models = []ModelConfig{{ID: "openmeteo", BaseURL: srv.URL}}
		svc := NewForecastService(h.store, config)

		if err := svc.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle failed: %v", err)
		}

		snaps, err := h.store.LatestSnapshots("openmeteo", today)
		if err != nil {
			t.Fatalf("LatestSnapshots failed: %v", err)
		}
		if len(snaps) != 2 {
			t.Fatalf("Expected 2 snapshots, got %d", len(snaps))
		}
		// 20 km/h × 0.539957 = 10.8 kn
		if snaps[0].SpeedKnots != 10.8 {
			t.Errorf("Expected 10.8 kn, got %v", snaps[0].SpeedKnots)
		}
		if snaps[0].TargetHourLocal != 10 {
			t.Errorf("Expected hour 10, got %d", snaps[0].TargetHourLocal)
		}
	})

	t.Run("One model failing does not abort others", func(t *testing.T) {
		config := testConfig()
		today := time.Now().In(config.Location()).Format("2006-01-02")
		good := forecastServer(t, today, []float64{18})
		defer good.Close()
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer bad.Close()

		config.Models = []ModelConfig{
			{ID: "good-model", BaseURL: good.URL},
			{ID: "bad-model", BaseURL: bad.URL},
		}
		svc := NewForecastService(h.store, config)
		if err := svc.RunCycle(context.Background()); err != nil {
			t.Fatalf("Partial success should not error: %v", err)
		}

		snaps, _ := h.store.LatestSnapshots("good-model", today)
		if len(snaps) != 1 {
			t.Errorf("Expected the good model's snapshot, got %d", len(snaps))
		}
	})

	t.Run("All models failing fails the cycle", func(t *testing.T) {
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer bad.Close()

		config := testConfig()
		config.Models = []ModelConfig{{ID: "only", BaseURL: bad.URL}}
		svc := NewForecastService(h.store, config)
		if err := svc.RunCycle(context.Background()); err == nil {
			t.Error("Expected error when every model fails")
		}
	})
}

func TestCorrectedForecast(t *testing.T) {
	h := NewTestHelper(t)
	defer h.Close()
	config := testConfig()
	svc := NewForecastService(h.store, config)

	today := time.Now().In(config.Location()).Format("2006-01-02")
	if err := h.store.InsertForecastSnapshot(&ForecastSnapshot{
		ModelID:         "openmeteo",
		SnapshotTs:      time.Now().UTC(),
		TargetDate:      today,
		TargetHourLocal: 15,
		SpeedKnots:      10,
		GustKnots:       14,
		DirectionDeg:    95,
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	t.Run("Unscored model served with factor 1", func(t *testing.T) {
		hours, err := svc.CorrectedForecast("openmeteo")
		if err != nil {
			t.Fatalf("CorrectedForecast failed: %v", err)
		}
		if len(hours) != 1 || hours[0].SpeedKnots != 10 {
			t.Errorf("Expected uncorrected 10 kn, got %+v", hours)
		}
	})

	t.Run("Correction factor multiplies speeds", func(t *testing.T) {
		if err := h.store.ReplaceModelScores([]ModelScore{{
			ModelID:          "openmeteo",
			CorrectionFactor: 1.2,
			EvalCount:        15,
			LastUpdated:      time.Now(),
		}}); err != nil {
			t.Fatalf("ReplaceModelScores failed: %v", err)
		}

		hours, err := svc.CorrectedForecast("openmeteo")
		if err != nil {
			t.Fatalf("CorrectedForecast failed: %v", err)
		}
		if hours[0].SpeedKnots != 12 {
			t.Errorf("Expected corrected 12 kn, got %v", hours[0].SpeedKnots)
		}
		if hours[0].GustKnots != 16.8 {
			t.Errorf("Expected corrected gust 16.8 kn, got %v", hours[0].GustKnots)
		}
		if hours[0].DirectionDeg != 95 {
			t.Errorf("Direction must not be corrected, got %d", hours[0].DirectionDeg)
		}
	})
}

func TestResolveModel(t *testing.T) {
	h := NewTestHelper(t)
	defer h.Close()
	config := testConfig()
	svc := NewForecastService(h.store, config)

	t.Run("Defaults to configured model when nothing scored", func(t *testing.T) {
		got, err := svc.ResolveModel("")
		if err != nil {
			t.Fatalf("ResolveModel failed: %v", err)
		}
		if got != "openmeteo" {
			t.Errorf("Expected configured default, got %q", got)
		}
	})

	t.Run("Warming model never selected as best", func(t *testing.T) {
		if err := h.store.ReplaceModelScores([]ModelScore{{
			ModelID:          "openmeteo",
			CompositeScore:   0.01,
			EvalCount:        9,
			CorrectionFactor: 1,
			LastUpdated:      time.Now(),
		}}); err != nil {
			t.Fatalf("ReplaceModelScores failed: %v", err)
		}
		got, err := svc.ResolveModel("best")
		if err != nil {
			t.Fatalf("ResolveModel failed: %v", err)
		}
		if got != "openmeteo" {
			t.Errorf("Expected default fallback, got %q", got)
		}

		// Crosses the threshold: now eligible.
		if err := h.store.ReplaceModelScores([]ModelScore{{
			ModelID:          "openmeteo",
			CompositeScore:   0.01,
			EvalCount:        10,
			CorrectionFactor: 1,
			LastUpdated:      time.Now(),
		}}); err != nil {
			t.Fatalf("ReplaceModelScores failed: %v", err)
		}
		got, err = svc.ResolveModel("best")
		if err != nil {
			t.Fatalf("ResolveModel failed: %v", err)
		}
		if got != "openmeteo" {
			t.Errorf("Expected openmeteo, got %q", got)
		}
	})

	t.Run("Unknown model rejected", func(t *testing.T) {
		if _, err := svc.ResolveModel("nope"); err == nil {
			t.Error("Expected error for unknown model")
		}
	})
}
