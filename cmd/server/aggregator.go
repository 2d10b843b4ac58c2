package main

import (
	"fmt"
	"log"
	"math"
	"time"
)

// ============================================================================
// Aggregation Worker
// ============================================================================

// Aggregator collapses each station's previous whole local hour into one
// HourlyAggregate row. Runs at the top of every hour.
type Aggregator struct {
	store  *Store
	config *AppConfig
}

func NewAggregator(store *Store, config *AppConfig) *Aggregator {
	return &Aggregator{store: store, config: config}
}

// RunCycle archives the previous whole local hour for every station. Hours
// with no measurements are skipped, not written as zeros.
func (a *Aggregator) RunCycle() error {
	now := time.Now().In(a.config.Location())
	hourStart := localHourStart(now).Add(-time.Hour)

	archived := 0
	for _, sc := range a.config.Stations {
		agg, err := a.AggregateHour(sc.ID, hourStart)
		if err != nil {
			log.Printf("Archiving %s hour %s failed: %v", sc.ID, hourStart.Format("15:04"), err)
			continue
		}
		if agg == nil {
			continue
		}
		if err := a.store.UpsertHourlyAggregate(agg); err != nil {
			log.Printf("Writing aggregate for %s failed: %v", sc.ID, err)
			continue
		}
		archived++
	}
	if archived > 0 {
		fmt.Printf("📦 Archived hour %s for %d station(s)\n", hourStart.Format("15:04"), archived)
	}
	return nil
}

// AggregateHour computes one station's aggregate for the hour starting at
// hourStart. Returns nil when the hour holds no measurements.
func (a *Aggregator) AggregateHour(stationID string, hourStart time.Time) (*HourlyAggregate, error) {
	ms, err := a.store.MeasurementsBetweenRaw(stationID, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, nil
	}

	speeds := make([]float64, 0, len(ms))
	dirs := make([]float64, 0, len(ms))
	var gusts, temps, hums, press []float64
	var maxGust *float64
	for _, m := range ms {
		speeds = append(speeds, m.WindSpeedKnots)
		dirs = append(dirs, float64(m.WindDir))
		if m.WindGustKnots != nil {
			gusts = append(gusts, *m.WindGustKnots)
		}
		if g := maxGustOf(m); g != nil && (maxGust == nil || *g > *maxGust) {
			v := *g
			maxGust = &v
		}
		if m.Temperature != nil {
			temps = append(temps, *m.Temperature)
		}
		if m.Humidity != nil {
			hums = append(hums, *m.Humidity)
		}
		if m.Pressure != nil {
			press = append(press, *m.Pressure)
		}
	}

	agg := &HourlyAggregate{
		StationID:         stationID,
		HourTs:            hourStart,
		AvgSpeed:          round1(mean(speeds)),
		MinSpeed:          minOf(speeds),
		MaxSpeed:          maxOf(speeds),
		MaxGust:           maxGust,
		AvgDirection:      CircularMeanInt(dirs),
		DominantDirection: dominantDirection(dirs),
		MeasurementCount:  len(ms),
	}
	if len(gusts) > 0 {
		v := round1(mean(gusts))
		agg.AvgGust = &v
	}
	if len(temps) > 0 {
		v := round1(mean(temps))
		agg.AvgTemp = &v
	}
	if len(hums) > 0 {
		v := round1(mean(hums))
		agg.AvgHumidity = &v
	}
	if len(press) > 0 {
		v := round1(mean(press))
		agg.AvgPressure = &v
	}
	return agg, nil
}

// localHourStart returns the top of t's wall-clock hour in t's own zone.
// Truncate would cut absolute hours and drift in zones with fractional
// offsets like +05:45.
func localHourStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// dominantDirection returns the midheading of the most populated 22.5° sector.
// Ties go to the sector seen first.
func dominantDirection(dirs []float64) int {
	if len(dirs) == 0 {
		return 0
	}
	counts := make(map[int]int, 16)
	order := make([]int, 0, 16)
	for _, d := range dirs {
		sector := int(math.Floor(NormalizeDegrees(d)/22.5)) % 16
		if counts[sector] == 0 {
			order = append(order, sector)
		}
		counts[sector]++
	}
	best, bestCount := order[0], counts[order[0]]
	for _, s := range order[1:] {
		if counts[s] > bestCount {
			best, bestCount = s, counts[s]
		}
	}
	return int(math.Round(float64(best)*22.5)) % 360
}
