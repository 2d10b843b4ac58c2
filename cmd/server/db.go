package main

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// ============================================================================
// Storage Layer
// ============================================================================

// Store is the sole writer for measurements, aggregates, snapshots, accuracy
// rows, and model scores. Every direction it hands back has the calibration
// offset applied; raw values stay untouched on disk.
type Store struct {
	db          *sql.DB
	calibration *Calibration
	loc         *time.Location
}

// NewStore wraps an initialised database handle.
func NewStore(db *sql.DB, calibration *Calibration, loc *time.Location) *Store {
	return &Store{db: db, calibration: calibration, loc: loc}
}

// DB exposes the raw handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// InitDatabase opens the SQLite store and creates the schema. Schema errors
// are fatal; the caller is expected to abort startup.
func InitDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		fmt.Printf("⚠️  Failed to enable WAL mode: %v\n", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		fmt.Printf("⚠️  Failed to set synchronous mode: %v\n", err)
	}

	// A handful of workers plus the request handler share this pool.
	db.SetMaxOpenConns(8)

	_, err = db.Exec(`
		-- Raw measurements (pruned after 7 days)
		CREATE TABLE IF NOT EXISTS measurements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			station_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			wind_speed_knots REAL NOT NULL,
			wind_gust_knots REAL,
			max_gust_knots REAL,
			wind_direction_deg INTEGER NOT NULL,
			wind_direction_avg_deg INTEGER,
			temperature REAL,
			humidity REAL,
			pressure REAL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_measurements_station_time ON measurements(station_id, timestamp DESC);

		-- One row per station per whole hour (kept long-term)
		CREATE TABLE IF NOT EXISTS hourly_aggregates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			station_id TEXT NOT NULL,
			hour_ts TEXT NOT NULL,
			avg_speed REAL NOT NULL,
			min_speed REAL NOT NULL,
			max_speed REAL NOT NULL,
			avg_gust REAL,
			max_gust REAL,
			avg_direction_deg INTEGER NOT NULL,
			dominant_direction_deg INTEGER NOT NULL,
			avg_temp REAL,
			avg_humidity REAL,
			avg_pressure REAL,
			measurement_count INTEGER NOT NULL,
			UNIQUE(station_id, hour_ts)
		);

		CREATE INDEX IF NOT EXISTS idx_aggregates_station_hour ON hourly_aggregates(station_id, hour_ts DESC);

		-- Forecast snapshots (pruned after 14 days)
		CREATE TABLE IF NOT EXISTS forecast_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model_id TEXT NOT NULL,
			snapshot_ts TEXT NOT NULL,
			target_date TEXT NOT NULL,
			target_hour_local INTEGER NOT NULL,
			speed_knots REAL NOT NULL,
			gust_knots REAL NOT NULL,
			direction_deg INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_model_target ON forecast_snapshots(model_id, target_date, target_hour_local);

		-- Per-hour scoring rows, one per (model, date, hour)
		CREATE TABLE IF NOT EXISTS forecast_accuracy (
			model_id TEXT NOT NULL,
			eval_date TEXT NOT NULL,
			target_hour_local INTEGER NOT NULL,
			actual_speed REAL NOT NULL,
			actual_direction INTEGER NOT NULL,
			forecast_speed REAL NOT NULL,
			forecast_direction INTEGER NOT NULL,
			speed_error REAL NOT NULL,
			direction_error REAL NOT NULL,
			UNIQUE(model_id, eval_date, target_hour_local)
		);

		-- Rollup scores, one row per model
		CREATE TABLE IF NOT EXISTS model_scores (
			model_id TEXT PRIMARY KEY,
			rmse_speed REAL NOT NULL DEFAULT 0,
			mae_speed REAL NOT NULL DEFAULT 0,
			rmse_direction REAL NOT NULL DEFAULT 0,
			mae_direction REAL NOT NULL DEFAULT 0,
			correlation_speed REAL NOT NULL DEFAULT 0,
			correction_factor REAL NOT NULL DEFAULT 1.0,
			eval_count INTEGER NOT NULL DEFAULT 0,
			composite_score REAL NOT NULL DEFAULT 0,
			last_updated TEXT
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return db, nil
}

// ============================================================================
// Measurements
// ============================================================================

// InsertMeasurement appends one raw reading. The timestamp is the upstream's
// observation time, stored as UTC.
func (s *Store) InsertMeasurement(m *Measurement) error {
	_, err := s.db.Exec(`
		INSERT INTO measurements (station_id, timestamp, wind_speed_knots, wind_gust_knots, max_gust_knots,
			wind_direction_deg, wind_direction_avg_deg, temperature, humidity, pressure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.StationID, m.Timestamp.UTC().Format(time.RFC3339),
		m.WindSpeedKnots, m.WindGustKnots, m.MaxGustKnots,
		m.WindDir, m.WindDirAvg, m.Temperature, m.Humidity, m.Pressure,
	)
	return err
}

func (s *Store) scanMeasurements(rows *sql.Rows) ([]Measurement, error) {
	out, err := s.scanMeasurementsRaw(rows)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].WindDir = s.calibration.Apply(out[i].WindDir)
		if out[i].WindDirAvg != nil {
			v := s.calibration.Apply(*out[i].WindDirAvg)
			out[i].WindDirAvg = &v
		}
	}
	return out, nil
}

func (s *Store) scanMeasurementsRaw(rows *sql.Rows) ([]Measurement, error) {
	var out []Measurement
	for rows.Next() {
		var m Measurement
		var ts string
		if err := rows.Scan(&m.ID, &m.StationID, &ts,
			&m.WindSpeedKnots, &m.WindGustKnots, &m.MaxGustKnots,
			&m.WindDir, &m.WindDirAvg, &m.Temperature, &m.Humidity, &m.Pressure); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", ts, err)
		}
		m.Timestamp = t
		out = append(out, m)
	}
	return out, rows.Err()
}

const measurementCols = `id, station_id, timestamp, wind_speed_knots, wind_gust_knots, max_gust_knots,
	wind_direction_deg, wind_direction_avg_deg, temperature, humidity, pressure`

// LatestMeasurement returns the most recent reading for a station, or nil
// when the station has never reported.
func (s *Store) LatestMeasurement(stationID string) (*Measurement, error) {
	ms, err := s.RecentMeasurements(stationID, 1)
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return &ms[0], nil
}

// RecentMeasurements returns the n most recent readings, newest first.
func (s *Store) RecentMeasurements(stationID string, n int) ([]Measurement, error) {
	rows, err := s.db.Query(`
		SELECT `+measurementCols+` FROM measurements
		WHERE station_id = ? ORDER BY timestamp DESC LIMIT ?`, stationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanMeasurements(rows)
}

// MeasurementsSince returns readings newer than the cutoff, newest first.
func (s *Store) MeasurementsSince(stationID string, since time.Time) ([]Measurement, error) {
	rows, err := s.db.Query(`
		SELECT `+measurementCols+` FROM measurements
		WHERE station_id = ? AND timestamp >= ? ORDER BY timestamp DESC`,
		stationID, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanMeasurements(rows)
}

// MeasurementsBetween returns readings in [from, to), oldest first.
func (s *Store) MeasurementsBetween(stationID string, from, to time.Time) ([]Measurement, error) {
	return s.measurementsBetween(stationID, from, to, true)
}

// MeasurementsBetweenRaw is the archiver's read path: directions come back
// uncalibrated so the offset is applied exactly once, when the aggregate is
// later read.
func (s *Store) MeasurementsBetweenRaw(stationID string, from, to time.Time) ([]Measurement, error) {
	return s.measurementsBetween(stationID, from, to, false)
}

func (s *Store) measurementsBetween(stationID string, from, to time.Time, calibrated bool) ([]Measurement, error) {
	rows, err := s.db.Query(`
		SELECT `+measurementCols+` FROM measurements
		WHERE station_id = ? AND timestamp >= ? AND timestamp < ? ORDER BY timestamp ASC`,
		stationID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !calibrated {
		return s.scanMeasurementsRaw(rows)
	}
	return s.scanMeasurements(rows)
}

// MeasurementsForLocalDay returns one local day's readings whose local hour
// falls in [h0, h1], oldest first. All grouping is done in the activity zone.
func (s *Store) MeasurementsForLocalDay(stationID string, day time.Time, h0, h1 int) ([]Measurement, error) {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
	ms, err := s.MeasurementsBetween(stationID, midnight, midnight.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	var out []Measurement
	for _, m := range ms {
		h := m.Timestamp.In(s.loc).Hour()
		if h >= h0 && h <= h1 {
			out = append(out, m)
		}
	}
	return out, nil
}

// TodayBuckets aggregates the current local day into interval-minute buckets
// aligned on the local clock, restricted to hours [startHour, endHour].
func (s *Store) TodayBuckets(stationID string, startHour, endHour, intervalMin int) ([]WindBucket, error) {
	if intervalMin <= 0 {
		intervalMin = 60
	}
	now := time.Now().In(s.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	ms, err := s.MeasurementsBetween(stationID, midnight, midnight.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	type acc struct {
		speeds []float64
		dirs   []float64
		gust   *float64
	}
	buckets := make(map[int64]*acc)
	for _, m := range ms {
		lt := m.Timestamp.In(s.loc)
		if lt.Hour() < startHour || lt.Hour() > endHour {
			continue
		}
		minOfDay := lt.Hour()*60 + lt.Minute()
		key := int64(minOfDay / intervalMin)
		a := buckets[key]
		if a == nil {
			a = &acc{}
			buckets[key] = a
		}
		a.speeds = append(a.speeds, m.WindSpeedKnots)
		a.dirs = append(a.dirs, float64(m.WindDir))
		if g := maxGustOf(m); g != nil {
			if a.gust == nil || *g > *a.gust {
				a.gust = g
			}
		}
	}

	var out []WindBucket
	for key := int64(startHour * 60 / intervalMin); key <= int64(endHour*60/intervalMin); key++ {
		a, ok := buckets[key]
		if !ok {
			continue
		}
		start := midnight.Add(time.Duration(key*int64(intervalMin)) * time.Minute)
		b := WindBucket{
			BucketStart:  start,
			AvgSpeed:     mean(a.speeds),
			MinSpeed:     minOf(a.speeds),
			MaxSpeed:     maxOf(a.speeds),
			MaxGust:      a.gust,
			AvgDirection: CircularMeanInt(a.dirs),
			SampleCount:  len(a.speeds),
		}
		out = append(out, b)
	}
	return out, nil
}

// ============================================================================
// Hourly Aggregates
// ============================================================================

// UpsertHourlyAggregate writes one archive row, last-write-wins on re-archiving.
func (s *Store) UpsertHourlyAggregate(a *HourlyAggregate) error {
	_, err := s.db.Exec(`
		INSERT INTO hourly_aggregates (station_id, hour_ts, avg_speed, min_speed, max_speed,
			avg_gust, max_gust, avg_direction_deg, dominant_direction_deg,
			avg_temp, avg_humidity, avg_pressure, measurement_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, hour_ts) DO UPDATE SET
			avg_speed = excluded.avg_speed,
			min_speed = excluded.min_speed,
			max_speed = excluded.max_speed,
			avg_gust = excluded.avg_gust,
			max_gust = excluded.max_gust,
			avg_direction_deg = excluded.avg_direction_deg,
			dominant_direction_deg = excluded.dominant_direction_deg,
			avg_temp = excluded.avg_temp,
			avg_humidity = excluded.avg_humidity,
			avg_pressure = excluded.avg_pressure,
			measurement_count = excluded.measurement_count`,
		a.StationID, a.HourTs.UTC().Format(time.RFC3339),
		a.AvgSpeed, a.MinSpeed, a.MaxSpeed, a.AvgGust, a.MaxGust,
		a.AvgDirection, a.DominantDirection,
		a.AvgTemp, a.AvgHumidity, a.AvgPressure, a.MeasurementCount,
	)
	return err
}

func (s *Store) scanAggregates(rows *sql.Rows) ([]HourlyAggregate, error) {
	var out []HourlyAggregate
	for rows.Next() {
		var a HourlyAggregate
		var ts string
		if err := rows.Scan(&a.StationID, &ts, &a.AvgSpeed, &a.MinSpeed, &a.MaxSpeed,
			&a.AvgGust, &a.MaxGust, &a.AvgDirection, &a.DominantDirection,
			&a.AvgTemp, &a.AvgHumidity, &a.AvgPressure, &a.MeasurementCount); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("bad hour_ts %q: %w", ts, err)
		}
		a.HourTs = t
		a.AvgDirection = s.calibration.Apply(a.AvgDirection)
		a.DominantDirection = s.calibration.Apply(a.DominantDirection)
		out = append(out, a)
	}
	return out, rows.Err()
}

const aggregateCols = `station_id, hour_ts, avg_speed, min_speed, max_speed, avg_gust, max_gust,
	avg_direction_deg, dominant_direction_deg, avg_temp, avg_humidity, avg_pressure, measurement_count`

// AggregatesSince returns archive rows covering the last N days, newest first.
func (s *Store) AggregatesSince(stationID string, days int) ([]HourlyAggregate, error) {
	cutoff := time.Now().In(s.loc).AddDate(0, 0, -days)
	rows, err := s.db.Query(`
		SELECT `+aggregateCols+` FROM hourly_aggregates
		WHERE station_id = ? AND hour_ts >= ? ORDER BY hour_ts DESC`,
		stationID, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAggregates(rows)
}

// AggregatesForLocalDate returns one local date's archive rows, oldest first.
func (s *Store) AggregatesForLocalDate(stationID string, date time.Time) ([]HourlyAggregate, error) {
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc)
	rows, err := s.db.Query(`
		SELECT `+aggregateCols+` FROM hourly_aggregates
		WHERE station_id = ? AND hour_ts >= ? AND hour_ts < ? ORDER BY hour_ts ASC`,
		stationID,
		midnight.UTC().Format(time.RFC3339),
		midnight.AddDate(0, 0, 1).UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAggregates(rows)
}

// ============================================================================
// Forecast Snapshots
// ============================================================================

// InsertForecastSnapshot appends one snapshot row. Duplicates per target hour
// are expected and resolved at scoring/read time.
func (s *Store) InsertForecastSnapshot(f *ForecastSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO forecast_snapshots (model_id, snapshot_ts, target_date, target_hour_local,
			speed_knots, gust_knots, direction_deg)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ModelID, f.SnapshotTs.UTC().Format(time.RFC3339),
		f.TargetDate, f.TargetHourLocal, f.SpeedKnots, f.GustKnots, f.DirectionDeg,
	)
	return err
}

// LatestSnapshots returns, for each (date, hour) at or after fromDate, the
// snapshot with the newest snapshot_ts for the given model. Rows come back
// ordered by date then hour.
func (s *Store) LatestSnapshots(modelID, fromDate string) ([]ForecastSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT f.id, f.model_id, f.snapshot_ts, f.target_date, f.target_hour_local,
			f.speed_knots, f.gust_knots, f.direction_deg
		FROM forecast_snapshots f
		JOIN (
			SELECT target_date, target_hour_local, MAX(snapshot_ts) AS latest
			FROM forecast_snapshots
			WHERE model_id = ? AND target_date >= ?
			GROUP BY target_date, target_hour_local
		) sel ON f.target_date = sel.target_date
			AND f.target_hour_local = sel.target_hour_local
			AND f.snapshot_ts = sel.latest
		WHERE f.model_id = ?
		ORDER BY f.target_date ASC, f.target_hour_local ASC`,
		modelID, fromDate, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// LatestSnapshotBefore returns the newest snapshot for (model, date, hour)
// taken strictly before the cutoff, or nil when none qualifies.
func (s *Store) LatestSnapshotBefore(modelID, targetDate string, hour int, cutoff time.Time) (*ForecastSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT id, model_id, snapshot_ts, target_date, target_hour_local, speed_knots, gust_knots, direction_deg
		FROM forecast_snapshots
		WHERE model_id = ? AND target_date = ? AND target_hour_local = ? AND snapshot_ts < ?
		ORDER BY snapshot_ts DESC LIMIT 1`,
		modelID, targetDate, hour, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	snaps, err := scanSnapshots(rows)
	if err != nil || len(snaps) == 0 {
		return nil, err
	}
	return &snaps[0], nil
}

func scanSnapshots(rows *sql.Rows) ([]ForecastSnapshot, error) {
	var out []ForecastSnapshot
	for rows.Next() {
		var f ForecastSnapshot
		var ts string
		if err := rows.Scan(&f.ID, &f.ModelID, &ts, &f.TargetDate, &f.TargetHourLocal,
			&f.SpeedKnots, &f.GustKnots, &f.DirectionDeg); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("bad snapshot_ts %q: %w", ts, err)
		}
		f.SnapshotTs = t
		out = append(out, f)
	}
	return out, rows.Err()
}

// ============================================================================
// Accuracy & Scores
// ============================================================================

// UpsertAccuracy writes one scored hour, idempotently.
func (s *Store) UpsertAccuracy(r *AccuracyRow) error {
	_, err := s.db.Exec(`
		INSERT INTO forecast_accuracy (model_id, eval_date, target_hour_local,
			actual_speed, actual_direction, forecast_speed, forecast_direction, speed_error, direction_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id, eval_date, target_hour_local) DO UPDATE SET
			actual_speed = excluded.actual_speed,
			actual_direction = excluded.actual_direction,
			forecast_speed = excluded.forecast_speed,
			forecast_direction = excluded.forecast_direction,
			speed_error = excluded.speed_error,
			direction_error = excluded.direction_error`,
		r.ModelID, r.EvalDate, r.TargetHourLocal,
		r.ActualSpeed, r.ActualDirection, r.ForecastSpeed, r.ForecastDirection,
		r.SpeedError, r.DirectionError,
	)
	return err
}

// AccuracyRows returns all scored hours for one model, oldest date first.
func (s *Store) AccuracyRows(modelID string) ([]AccuracyRow, error) {
	rows, err := s.db.Query(`
		SELECT model_id, eval_date, target_hour_local, actual_speed, actual_direction,
			forecast_speed, forecast_direction, speed_error, direction_error
		FROM forecast_accuracy WHERE model_id = ?
		ORDER BY eval_date ASC, target_hour_local ASC`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccuracyRow
	for rows.Next() {
		var r AccuracyRow
		if err := rows.Scan(&r.ModelID, &r.EvalDate, &r.TargetHourLocal,
			&r.ActualSpeed, &r.ActualDirection, &r.ForecastSpeed, &r.ForecastDirection,
			&r.SpeedError, &r.DirectionError); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EnsureModelScore initialises the rollup row for a model once.
func (s *Store) EnsureModelScore(modelID string) error {
	_, err := s.db.Exec(`
		INSERT INTO model_scores (model_id) VALUES (?)
		ON CONFLICT(model_id) DO NOTHING`, modelID)
	return err
}

// ReplaceModelScores writes the recomputed rollups in one transaction so a
// half-updated score table is never observable.
func (s *Store) ReplaceModelScores(scores []ModelScore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, sc := range scores {
		if _, err := tx.Exec(`
			INSERT INTO model_scores (model_id, rmse_speed, mae_speed, rmse_direction, mae_direction,
				correlation_speed, correction_factor, eval_count, composite_score, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(model_id) DO UPDATE SET
				rmse_speed = excluded.rmse_speed,
				mae_speed = excluded.mae_speed,
				rmse_direction = excluded.rmse_direction,
				mae_direction = excluded.mae_direction,
				correlation_speed = excluded.correlation_speed,
				correction_factor = excluded.correction_factor,
				eval_count = excluded.eval_count,
				composite_score = excluded.composite_score,
				last_updated = excluded.last_updated`,
			sc.ModelID, sc.RMSESpeed, sc.MAESpeed, sc.RMSEDirection, sc.MAEDirection,
			sc.CorrelationSpeed, sc.CorrectionFactor, sc.EvalCount, sc.CompositeScore,
			sc.LastUpdated.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ModelScores returns all rollup rows.
func (s *Store) ModelScores() ([]ModelScore, error) {
	rows, err := s.db.Query(`
		SELECT model_id, rmse_speed, mae_speed, rmse_direction, mae_direction,
			correlation_speed, correction_factor, eval_count, composite_score, last_updated
		FROM model_scores ORDER BY composite_score ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelScore
	for rows.Next() {
		var sc ModelScore
		var updated sql.NullString
		if err := rows.Scan(&sc.ModelID, &sc.RMSESpeed, &sc.MAESpeed, &sc.RMSEDirection,
			&sc.MAEDirection, &sc.CorrelationSpeed, &sc.CorrectionFactor, &sc.EvalCount,
			&sc.CompositeScore, &updated); err != nil {
			return nil, err
		}
		if updated.Valid {
			if t, err := time.Parse(time.RFC3339, updated.String); err == nil {
				sc.LastUpdated = t
			}
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// GetModelScore returns one model's rollup, or nil when the model is unknown.
func (s *Store) GetModelScore(modelID string) (*ModelScore, error) {
	scores, err := s.ModelScores()
	if err != nil {
		return nil, err
	}
	for i := range scores {
		if scores[i].ModelID == modelID {
			return &scores[i], nil
		}
	}
	return nil, nil
}

// BestModel returns the model with the lowest composite score among those
// with at least minEvals accuracy rows, or "" when none qualifies.
func (s *Store) BestModel(minEvals int) (string, error) {
	var modelID string
	err := s.db.QueryRow(`
		SELECT model_id FROM model_scores
		WHERE eval_count >= ?
		ORDER BY composite_score ASC LIMIT 1`, minEvals).Scan(&modelID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return modelID, nil
}

// ============================================================================
// Cleanup
// ============================================================================

// CleanupOldData prunes raw measurements after 7 days, snapshots and accuracy
// rows after 14, and aggregates after 365.
func (s *Store) CleanupOldData() error {
	now := time.Now()

	if _, err := s.db.Exec(`DELETE FROM measurements WHERE timestamp < ?`,
		now.AddDate(0, 0, -7).UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("pruning measurements: %w", err)
	}

	snapshotCutoff := now.In(s.loc).AddDate(0, 0, -14).Format("2006-01-02")
	if _, err := s.db.Exec(`DELETE FROM forecast_snapshots WHERE target_date < ?`, snapshotCutoff); err != nil {
		return fmt.Errorf("pruning snapshots: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM forecast_accuracy WHERE eval_date < ?`, snapshotCutoff); err != nil {
		return fmt.Errorf("pruning accuracy rows: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM hourly_aggregates WHERE hour_ts < ?`,
		now.AddDate(0, 0, -365).UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("pruning aggregates: %w", err)
	}

	return nil
}

// ============================================================================
// Small numeric helpers
// ============================================================================

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func minOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// maxGustOf picks the strongest gust figure a reading carries, preferring the
// daily max when present.
func maxGustOf(m Measurement) *float64 {
	if m.MaxGustKnots != nil {
		return m.MaxGustKnots
	}
	return m.WindGustKnots
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
