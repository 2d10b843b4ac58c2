package main

import (
	"fmt"
	"log"
	"math"
	"time"
)

// ============================================================================
// Forecast Scoring Worker
// ============================================================================

const (
	scoringLookbackDays = 14
	bestModelMinEvals   = 10
)

// Scorer evaluates every model against the realised hourly aggregates and
// recomputes the per-model rollups. Runs nightly, after the activity window
// closes.
type Scorer struct {
	store  *Store
	config *AppConfig
}

func NewScorer(store *Store, config *AppConfig) *Scorer {
	return &Scorer{store: store, config: config}
}

// RunCycle scores the last 14 local days for every model, then rebuilds the
// model_scores table in one transaction.
func (s *Scorer) RunCycle() error {
	primary := s.config.PrimaryStation()
	if primary == nil {
		return fmt.Errorf("no primary station to score against")
	}

	loc := s.config.Location()
	now := time.Now().In(loc)

	for _, model := range s.config.Models {
		scored := 0
		for dayOffset := 0; dayOffset < scoringLookbackDays; dayOffset++ {
			date := now.AddDate(0, 0, -dayOffset)
			n, err := s.scoreDay(model.ID, primary.ID, date)
			if err != nil {
				log.Printf("Scoring %s for %s failed: %v", model.ID, date.Format("2006-01-02"), err)
				continue
			}
			scored += n
		}
		if scored > 0 {
			fmt.Printf("🎯 Scored %d hour(s) for model %s\n", scored, model.ID)
		}
	}

	return s.recomputeScores()
}

// scoreDay upserts one AccuracyRow per eligible realised hour of the given
// local date. Hours with no pre-observation snapshot are skipped.
func (s *Scorer) scoreDay(modelID, stationID string, date time.Time) (int, error) {
	aggs, err := s.store.AggregatesForLocalDate(stationID, date)
	if err != nil {
		return 0, err
	}

	loc := s.config.Location()
	dateStr := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc).Format("2006-01-02")
	scored := 0
	for _, agg := range aggs {
		hourLocal := agg.HourTs.In(loc).Hour()
		if hourLocal < s.config.WindowStartHour || hourLocal > s.config.WindowEndHour {
			continue
		}

		snap, err := s.store.LatestSnapshotBefore(modelID, dateStr, hourLocal, agg.HourTs)
		if err != nil {
			return scored, err
		}
		if snap == nil {
			continue
		}

		row := &AccuracyRow{
			ModelID:           modelID,
			EvalDate:          dateStr,
			TargetHourLocal:   hourLocal,
			ActualSpeed:       agg.AvgSpeed,
			ActualDirection:   agg.AvgDirection,
			ForecastSpeed:     snap.SpeedKnots,
			ForecastDirection: snap.DirectionDeg,
			SpeedError:        math.Abs(snap.SpeedKnots - agg.AvgSpeed),
			DirectionError:    AngularDistance(float64(snap.DirectionDeg), float64(agg.AvgDirection)),
		}
		if err := s.store.UpsertAccuracy(row); err != nil {
			return scored, err
		}
		scored++
	}
	return scored, nil
}

// recomputeScores rebuilds every model's rollup from its accuracy rows and
// writes them atomically.
func (s *Scorer) recomputeScores() error {
	now := time.Now()
	scores := make([]ModelScore, 0, len(s.config.Models))
	for _, model := range s.config.Models {
		rows, err := s.store.AccuracyRows(model.ID)
		if err != nil {
			return err
		}
		scores = append(scores, rollupModel(model.ID, rows, now))
	}

	applyCompositeScores(scores)
	return s.store.ReplaceModelScores(scores)
}

// rollupModel computes one model's error statistics. CompositeScore is filled
// in later, once the cross-model maxima are known.
func rollupModel(modelID string, rows []AccuracyRow, now time.Time) ModelScore {
	score := ModelScore{ModelID: modelID, CorrectionFactor: 1.0, LastUpdated: now}
	if len(rows) == 0 {
		return score
	}

	n := float64(len(rows))
	var sqSpeed, absSpeed, sqDir, absDir float64
	var actuals, forecasts []float64
	var ratios []float64
	for _, r := range rows {
		sqSpeed += r.SpeedError * r.SpeedError
		absSpeed += r.SpeedError
		sqDir += r.DirectionError * r.DirectionError
		absDir += r.DirectionError
		actuals = append(actuals, r.ActualSpeed)
		forecasts = append(forecasts, r.ForecastSpeed)
		if r.ForecastSpeed > 0 {
			ratio := r.ActualSpeed / r.ForecastSpeed
			if ratio >= 0.5 && ratio <= 2.0 {
				ratios = append(ratios, ratio)
			}
		}
	}

	score.EvalCount = len(rows)
	score.RMSESpeed = math.Sqrt(sqSpeed / n)
	score.MAESpeed = absSpeed / n
	score.RMSEDirection = math.Sqrt(sqDir / n)
	score.MAEDirection = absDir / n
	score.CorrelationSpeed = pearson(actuals, forecasts)
	if len(ratios) > 0 {
		score.CorrectionFactor = mean(ratios)
	}
	return score
}

// applyCompositeScores normalises each error term by its cross-model maximum
// (floored at 1 to avoid division blowups) and combines them lower-is-better.
func applyCompositeScores(scores []ModelScore) {
	maxRMSE, maxMAE := 1.0, 1.0
	for _, sc := range scores {
		if sc.RMSESpeed > maxRMSE {
			maxRMSE = sc.RMSESpeed
		}
		if sc.MAESpeed > maxMAE {
			maxMAE = sc.MAESpeed
		}
	}
	for i := range scores {
		sc := &scores[i]
		sc.CompositeScore = 0.5*(sc.RMSESpeed/maxRMSE) + 0.3*(sc.MAESpeed/maxMAE) + 0.2*(1-sc.CorrelationSpeed)
	}
}

// pearson returns the correlation of two equal-length series, 0 when either
// side has no variance.
func pearson(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) == 0 {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
