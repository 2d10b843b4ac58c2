package main

import (
	"database/sql"
	"os"
	"testing"
	"time"
)

// TestHelper provides a temp-file store for tests
type TestHelper struct {
	db          *sql.DB
	dbPath      string
	store       *Store
	calibration *Calibration
}

// NewTestHelper creates a helper with a fully initialised schema and a zero
// calibration offset
func NewTestHelper(t *testing.T) *TestHelper {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "windward_test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp db: %v", err)
	}
	dbPath := tmpFile.Name()
	tmpFile.Close()

	db, err := InitDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to init test database: %v", err)
	}

	calibration := NewCalibration(t.TempDir())
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Fatalf("Failed to load test timezone: %v", err)
	}

	return &TestHelper{
		db:          db,
		dbPath:      dbPath,
		store:       NewStore(db, calibration, loc),
		calibration: calibration,
	}
}

// Close cleans up the test helper
func (h *TestHelper) Close() {
	if h.db != nil {
		h.db.Close()
	}
	os.Remove(h.dbPath)
	os.Remove(h.dbPath + "-wal")
	os.Remove(h.dbPath + "-shm")
}

// InsertTestMeasurement writes one reading with the given age and values
func (h *TestHelper) InsertTestMeasurement(t *testing.T, stationID string, ts time.Time, speed float64, dir int) {
	t.Helper()
	if err := h.store.InsertMeasurement(&Measurement{
		StationID:      stationID,
		Timestamp:      ts,
		WindSpeedKnots: speed,
		WindDir:        dir,
	}); err != nil {
		t.Fatalf("Failed to insert measurement: %v", err)
	}
}

func TestMeasurementRoundTrip(t *testing.T) {
	h := NewTestHelper(t)
	defer h.Close()

	now := time.Now().UTC().Truncate(time.Second)

	t.Run("LatestMeasurement returns nil when empty", func(t *testing.T) {
		m, err := h.store.LatestMeasurement("tarragona-port")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if m != nil {
			t.Errorf("Expected nil, got %+v", m)
		}
	})

	t.Run("Insert and read back", func(t *testing.T) {
		gust := 18.5
		if err := h.store.InsertMeasurement(&Measurement{
			StationID:      "tarragona-port",
			Timestamp:      now,
			WindSpeedKnots: 12.3,
			WindGustKnots:  &gust,
			WindDir:        85,
		}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		m, err := h.store.LatestMeasurement("tarragona-port")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if m == nil {
			t.Fatal("Expected a measurement")
		}
		if m.WindSpeedKnots != 12.3 || m.WindDir != 85 {
			t.Errorf("Got speed=%v dir=%v", m.WindSpeedKnots, m.WindDir)
		}
		if m.WindGustKnots == nil || *m.WindGustKnots != 18.5 {
			t.Errorf("Gust not preserved: %v", m.WindGustKnots)
		}
		if !m.Timestamp.Equal(now) {
			t.Errorf("Timestamp mismatch: got %v want %v", m.Timestamp, now)
		}
	})

	t.Run("RecentMeasurements newest first", func(t *testing.T) {
		h.InsertTestMeasurement(t, "tarragona-port", now.Add(time.Minute), 14, 90)
		h.InsertTestMeasurement(t, "tarragona-port", now.Add(2*time.Minute), 15, 95)

		ms, err := h.store.RecentMeasurements("tarragona-port", 2)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(ms) != 2 {
			t.Fatalf("Expected 2 rows, got %d", len(ms))
		}
		if !ms[0].Timestamp.After(ms[1].Timestamp) {
			t.Error("Expected newest-first ordering")
		}
	})

	t.Run("Stations are isolated", func(t *testing.T) {
		h.InsertTestMeasurement(t, "other-station", now, 5, 180)
		ms, err := h.store.RecentMeasurements("other-station", 10)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(ms) != 1 {
			t.Errorf("Expected 1 row for other-station, got %d", len(ms))
		}
	})
}

func TestCalibrationAppliedOnRead(t *testing.T) {
	h := NewTestHelper(t)
	defer h.Close()

	now := time.Now().UTC()
	h.InsertTestMeasurement(t, "st", now, 10, 350)

	if err := h.calibration.SetOffset(30); err != nil {
		t.Fatalf("SetOffset failed: %v", err)
	}

	t.Run("Measurement read is calibrated", func(t *testing.T) {
		m, err := h.store.LatestMeasurement("st")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if m.WindDir != 20 {
			t.Errorf("Expected calibrated direction 20, got %d", m.WindDir)
		}
	})

	t.Run("Raw read path skips calibration", func(t *testing.T) {
		ms, err := h.store.MeasurementsBetweenRaw("st", now.Add(-time.Minute), now.Add(time.Minute))
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(ms) != 1 || ms[0].WindDir != 350 {
			t.Errorf("Expected raw direction 350, got %+v", ms)
		}
	})

	t.Run("Aggregate read is calibrated exactly once", func(t *testing.T) {
		hourStart := now.Truncate(time.Hour)
		if err := h.store.UpsertHourlyAggregate(&HourlyAggregate{
			StationID:         "st",
			HourTs:            hourStart,
			AvgSpeed:          10,
			MinSpeed:          10,
			MaxSpeed:          10,
			AvgDirection:      350,
			DominantDirection: 350,
			MeasurementCount:  1,
		}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		aggs, err := h.store.AggregatesSince("st", 1)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(aggs) != 1 || aggs[0].AvgDirection != 20 {
			t.Errorf("Expected calibrated aggregate direction 20, got %+v", aggs)
		}
	})
}

func TestHourlyAggregateUpsert(t *testing.T) {
	h := NewTestHelper(t)
	defer h.Close()

	hour := time.Now().UTC().Truncate(time.Hour)
	base := &HourlyAggregate{
		StationID:         "st",
		HourTs:            hour,
		AvgSpeed:          10,
		MinSpeed:          8,
		MaxSpeed:          13,
		AvgDirection:      90,
		DominantDirection: 90,
		MeasurementCount:  12,
	}
	if err := h.store.UpsertHourlyAggregate(base); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	base.AvgSpeed = 11
	base.MeasurementCount = 13
	if err := h.store.UpsertHourlyAggregate(base); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	aggs, err := h.store.AggregatesSince("st", 1)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(aggs) != 1 {
		t.Fatalf("Expected last-write-wins single row, got %d", len(aggs))
	}
	if aggs[0].AvgSpeed != 11 || aggs[0].MeasurementCount != 13 {
		t.Errorf("Upsert did not overwrite: %+v", aggs[0])
	}
}

func TestSnapshotSelection(t *testing.T) {
	h := NewTestHelper(t)
	defer h.Close()

	hourTs := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	insert := func(snapTs time.Time, speed float64) {
		t.Helper()
		if err := h.store.InsertForecastSnapshot(&ForecastSnapshot{
			ModelID:         "openmeteo",
			SnapshotTs:      snapTs,
			TargetDate:      "2026-08-20",
			TargetHourLocal: 10,
			SpeedKnots:      speed,
			GustKnots:       speed + 3,
			DirectionDeg:    100,
		}); err != nil {
			t.Fatalf("Insert snapshot failed: %v", err)
		}
	}

	insert(hourTs.Add(-6*time.Hour), 12)
	insert(hourTs.Add(-2*time.Hour), 14)
	insert(hourTs.Add(time.Hour), 20) // after the hour, must be ignored

	t.Run("Picks latest pre-observation snapshot", func(t *testing.T) {
		snap, err := h.store.LatestSnapshotBefore("openmeteo", "2026-08-20", 10, hourTs)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if snap == nil {
			t.Fatal("Expected a snapshot")
		}
		if snap.SpeedKnots != 14 {
			t.Errorf("Expected the 14 kn snapshot, got %v", snap.SpeedKnots)
		}
	})

	t.Run("Nil when none precede the hour", func(t *testing.T) {
		snap, err := h.store.LatestSnapshotBefore("openmeteo", "2026-08-20", 10, hourTs.Add(-7*time.Hour))
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if snap != nil {
			t.Errorf("Expected nil, got %+v", snap)
		}
	})
}

func TestBestModelGating(t *testing.T) {
	h := NewTestHelper(t)
	defer h.Close()

	scores := []ModelScore{
		{ModelID: "warming", CompositeScore: 0.1, EvalCount: 5, CorrectionFactor: 1, LastUpdated: time.Now()},
		{ModelID: "scored", CompositeScore: 0.4, EvalCount: 20, CorrectionFactor: 1, LastUpdated: time.Now()},
	}
	if err := h.store.ReplaceModelScores(scores); err != nil {
		t.Fatalf("ReplaceModelScores failed: %v", err)
	}

	best, err := h.store.BestModel(10)
	if err != nil {
		t.Fatalf("BestModel failed: %v", err)
	}
	if best != "scored" {
		t.Errorf("Expected scored model despite worse composite, got %q", best)
	}

	t.Run("Empty when nobody qualifies", func(t *testing.T) {
		best, err := h.store.BestModel(100)
		if err != nil {
			t.Fatalf("BestModel failed: %v", err)
		}
		if best != "" {
			t.Errorf("Expected empty, got %q", best)
		}
	})
}

func TestCleanupOldData(t *testing.T) {
	h := NewTestHelper(t)
	defer h.Close()

	now := time.Now().UTC()
	h.InsertTestMeasurement(t, "st", now.AddDate(0, 0, -10), 10, 90)
	h.InsertTestMeasurement(t, "st", now, 11, 95)

	if err := h.store.CleanupOldData(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	ms, err := h.store.RecentMeasurements("st", 10)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(ms) != 1 {
		t.Errorf("Expected only the fresh row to survive, got %d", len(ms))
	}
}
