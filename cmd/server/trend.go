package main

import (
	"math"
)

// ============================================================================
// Trend Derivation
// ============================================================================

// ComputeTrend derives the one-hour speed trend and direction stability for a
// station from its last 12 readings. Computed on demand, never stored.
func ComputeTrend(store *Store, stationID string) (*TrendResult, error) {
	ms, err := store.RecentMeasurements(stationID, 12)
	if err != nil {
		return nil, err
	}
	return trendFromMeasurements(ms), nil
}

// trendFromMeasurements expects readings newest first, as the store returns
// them. The first six form the current window, the next six the previous one.
func trendFromMeasurements(ms []Measurement) *TrendResult {
	var curSpeeds, prevSpeeds []float64
	for i, m := range ms {
		if i < 6 {
			curSpeeds = append(curSpeeds, m.WindSpeedKnots)
		} else if i < 12 {
			prevSpeeds = append(prevSpeeds, m.WindSpeedKnots)
		}
	}

	result := &TrendResult{SampleCount: len(ms)}
	if len(curSpeeds) < 3 || len(prevSpeeds) < 3 {
		result.Status = "insufficient_data"
		return result
	}

	cur := mean(curSpeeds)
	prev := mean(prevSpeeds)
	delta := cur - prev
	var deltaPct float64
	if prev != 0 {
		deltaPct = 100 * delta / prev
	}

	result.Status = "ok"
	result.CurrentMean = round1(cur)
	result.PreviousMean = round1(prev)
	result.DeltaKnots = round1(delta)
	result.DeltaPercent = round1(deltaPct)
	result.SpeedTrend = classifySpeedTrend(deltaPct)

	var dirs []float64
	for i := 0; i < len(ms) && i < 6; i++ {
		dirs = append(dirs, float64(ms[i].WindDir))
	}
	spread := CircularSpread(dirs)
	result.DirectionSpread = math.Round(spread*10) / 10
	switch {
	case spread < 15:
		result.DirectionStatus = "stable"
	case spread < 30:
		result.DirectionStatus = "variable"
	default:
		result.DirectionStatus = "changing"
	}
	return result
}

func classifySpeedTrend(deltaPct float64) string {
	switch {
	case deltaPct > 15:
		return "increasing_strong"
	case deltaPct >= 5:
		return "increasing"
	case deltaPct < -15:
		return "decreasing_strong"
	case deltaPct <= -5:
		return "decreasing"
	default:
		return "stable"
	}
}
