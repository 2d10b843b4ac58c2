package main

import (
	"math"
	"testing"
	"time"
)

func TestScoring(t *testing.T) {
	h := NewTestHelper(t)
	defer h.Close()
	config := testConfig()
	scorer := NewScorer(h.store, config)

	loc := config.Location()
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, loc)
	hourTs := day.Add(10 * time.Hour)

	if err := h.store.UpsertHourlyAggregate(&HourlyAggregate{
		StationID:         "primary",
		HourTs:            hourTs,
		AvgSpeed:          16,
		MinSpeed:          14,
		MaxSpeed:          18,
		AvgDirection:      100,
		DominantDirection: 100,
		MeasurementCount:  12,
	}); err != nil {
		t.Fatalf("Upsert aggregate failed: %v", err)
	}
	if err := h.store.InsertForecastSnapshot(&ForecastSnapshot{
		ModelID:         "openmeteo",
		SnapshotTs:      day.Add(6 * time.Hour),
		TargetDate:      "2026-08-20",
		TargetHourLocal: 10,
		SpeedKnots:      14,
		GustKnots:       18,
		DirectionDeg:    110,
	}); err != nil {
		t.Fatalf("Insert snapshot failed: %v", err)
	}

	t.Run("Accuracy row from snapshot vs aggregate", func(t *testing.T) {
		n, err := scorer.scoreDay("openmeteo", "primary", day)
		if err != nil {
			t.Fatalf("scoreDay failed: %v", err)
		}
		if n != 1 {
			t.Fatalf("Expected 1 scored hour, got %d", n)
		}

		rows, err := h.store.AccuracyRows("openmeteo")
		if err != nil {
			t.Fatalf("AccuracyRows failed: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("Expected 1 row, got %d", len(rows))
		}
		r := rows[0]
		if r.SpeedError != 2 {
			t.Errorf("Expected speed error 2, got %v", r.SpeedError)
		}
		if r.DirectionError != 10 {
			t.Errorf("Expected direction error 10, got %v", r.DirectionError)
		}
		if r.EvalDate != "2026-08-20" || r.TargetHourLocal != 10 {
			t.Errorf("Bad row key: %+v", r)
		}
	})

	t.Run("Correction factor moves toward actual over forecast", func(t *testing.T) {
		if err := scorer.recomputeScores(); err != nil {
			t.Fatalf("recomputeScores failed: %v", err)
		}
		score, err := h.store.GetModelScore("openmeteo")
		if err != nil || score == nil {
			t.Fatalf("GetModelScore failed: %v", err)
		}
		if math.Abs(score.CorrectionFactor-16.0/14.0) > 0.01 {
			t.Errorf("Expected correction ≈1.14, got %v", score.CorrectionFactor)
		}
		if score.EvalCount != 1 {
			t.Errorf("Expected eval count 1, got %d", score.EvalCount)
		}
	})

	t.Run("Rescoring is deterministic", func(t *testing.T) {
		if _, err := scorer.scoreDay("openmeteo", "primary", day); err != nil {
			t.Fatalf("Second scoreDay failed: %v", err)
		}
		if err := scorer.recomputeScores(); err != nil {
			t.Fatalf("Second recompute failed: %v", err)
		}
		first, _ := h.store.GetModelScore("openmeteo")

		if _, err := scorer.scoreDay("openmeteo", "primary", day); err != nil {
			t.Fatalf("Third scoreDay failed: %v", err)
		}
		if err := scorer.recomputeScores(); err != nil {
			t.Fatalf("Third recompute failed: %v", err)
		}
		second, _ := h.store.GetModelScore("openmeteo")

		if math.Abs(first.RMSESpeed-second.RMSESpeed) > 1e-9 ||
			math.Abs(first.CompositeScore-second.CompositeScore) > 1e-9 ||
			math.Abs(first.CorrectionFactor-second.CorrectionFactor) > 1e-9 ||
			first.EvalCount != second.EvalCount {
			t.Errorf("Rescoring changed results: %+v vs %+v", first, second)
		}
	})
}

func TestRollupModel(t *testing.T) {
	now := time.Now()

	t.Run("Empty rows yield neutral score", func(t *testing.T) {
		score := rollupModel("m", nil, now)
		if score.CorrectionFactor != 1.0 || score.EvalCount != 0 {
			t.Errorf("Expected neutral score, got %+v", score)
		}
	})

	t.Run("Ratio clamp excludes outliers", func(t *testing.T) {
		rows := []AccuracyRow{
			{ActualSpeed: 10, ForecastSpeed: 10, SpeedError: 0},
			{ActualSpeed: 30, ForecastSpeed: 10, SpeedError: 20}, // ratio 3.0, excluded
			{ActualSpeed: 12, ForecastSpeed: 10, SpeedError: 2},
		}
		score := rollupModel("m", rows, now)
		want := (1.0 + 1.2) / 2
		if math.Abs(score.CorrectionFactor-want) > 1e-9 {
			t.Errorf("Expected correction %v, got %v", want, score.CorrectionFactor)
		}
	})

	t.Run("Error statistics", func(t *testing.T) {
		rows := []AccuracyRow{
			{ActualSpeed: 10, ForecastSpeed: 13, SpeedError: 3, DirectionError: 10},
			{ActualSpeed: 14, ForecastSpeed: 15, SpeedError: 1, DirectionError: 20},
		}
		score := rollupModel("m", rows, now)
		if math.Abs(score.MAESpeed-2) > 1e-9 {
			t.Errorf("Expected MAE 2, got %v", score.MAESpeed)
		}
		wantRMSE := math.Sqrt((9.0 + 1.0) / 2)
		if math.Abs(score.RMSESpeed-wantRMSE) > 1e-9 {
			t.Errorf("Expected RMSE %v, got %v", wantRMSE, score.RMSESpeed)
		}
		if math.Abs(score.MAEDirection-15) > 1e-9 {
			t.Errorf("Expected direction MAE 15, got %v", score.MAEDirection)
		}
	})
}

func TestPearson(t *testing.T) {
	t.Run("Perfect correlation", func(t *testing.T) {
		got := pearson([]float64{1, 2, 3}, []float64{2, 4, 6})
		if math.Abs(got-1) > 1e-9 {
			t.Errorf("Expected 1, got %v", got)
		}
	})
	t.Run("Perfect anticorrelation", func(t *testing.T) {
		got := pearson([]float64{1, 2, 3}, []float64{6, 4, 2})
		if math.Abs(got+1) > 1e-9 {
			t.Errorf("Expected -1, got %v", got)
		}
	})
	t.Run("No variance", func(t *testing.T) {
		if got := pearson([]float64{5, 5, 5}, []float64{1, 2, 3}); got != 0 {
			t.Errorf("Expected 0, got %v", got)
		}
	})
}

func TestCompositeScoreNormalisation(t *testing.T) {
	scores := []ModelScore{
		{ModelID: "a", RMSESpeed: 4, MAESpeed: 3, CorrelationSpeed: 0.9},
		{ModelID: "b", RMSESpeed: 2, MAESpeed: 1.5, CorrelationSpeed: 0.8},
	}
	applyCompositeScores(scores)

	// a: 0.5·1 + 0.3·1 + 0.2·0.1 = 0.82
	if math.Abs(scores[0].CompositeScore-0.82) > 1e-9 {
		t.Errorf("Expected 0.82 for a, got %v", scores[0].CompositeScore)
	}
	// b: 0.5·0.5 + 0.3·0.5 + 0.2·0.2 = 0.44
	if math.Abs(scores[1].CompositeScore-0.44) > 1e-9 {
		t.Errorf("Expected 0.44 for b, got %v", scores[1].CompositeScore)
	}
	if scores[1].CompositeScore >= scores[0].CompositeScore {
		t.Error("Better model should score lower")
	}
}
