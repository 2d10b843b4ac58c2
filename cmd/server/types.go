package main

import (
	"time"
)

// ============================================================================
// Core Domain Types
// ============================================================================

// Measurement is one raw wind reading from a station. Speeds are already
// normalised to knots at ingestion time; direction is stored raw and
// calibrated on the way out of the store.
type Measurement struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	StationID      string    `json:"stationId"`
	WindSpeedKnots float64   `json:"windSpeedKnots"`
	WindGustKnots  *float64  `json:"windGustKnots,omitempty"`
	MaxGustKnots   *float64  `json:"maxGustKnots,omitempty"`
	WindDir        int       `json:"windDir"`
	WindDirAvg     *int      `json:"windDirAvg,omitempty"`
	Temperature    *float64  `json:"temperature,omitempty"`
	Humidity       *float64  `json:"humidity,omitempty"`
	Pressure       *float64  `json:"pressure,omitempty"`
}

// HourlyAggregate collapses one whole local hour of raw readings for one
// station. Directions are circular means, never arithmetic ones.
type HourlyAggregate struct {
	StationID         string    `json:"stationId"`
	HourTs            time.Time `json:"hourTs"`
	AvgSpeed          float64   `json:"avgSpeed"`
	MinSpeed          float64   `json:"minSpeed"`
	MaxSpeed          float64   `json:"maxSpeed"`
	AvgGust           *float64  `json:"avgGust,omitempty"`
	MaxGust           *float64  `json:"maxGust,omitempty"`
	AvgDirection      int       `json:"avgDirection"`
	DominantDirection int       `json:"dominantDirection"`
	AvgTemp           *float64  `json:"avgTemp,omitempty"`
	AvgHumidity       *float64  `json:"avgHumidity,omitempty"`
	AvgPressure       *float64  `json:"avgPressure,omitempty"`
	MeasurementCount  int       `json:"measurementCount"`
}

// ForecastSnapshot is one forecast hour as recorded at its polling instant.
// Multiple snapshots per (model, date, hour) are expected; scoring picks the
// latest one taken before the realised hour.
type ForecastSnapshot struct {
	ID              int64     `json:"id"`
	ModelID         string    `json:"modelId"`
	SnapshotTs      time.Time `json:"snapshotTs"`
	TargetDate      string    `json:"targetDate"` // local date, YYYY-MM-DD
	TargetHourLocal int       `json:"targetHourLocal"`
	SpeedKnots      float64   `json:"speedKnots"`
	GustKnots       float64   `json:"gustKnots"`
	DirectionDeg    int       `json:"directionDeg"`
}

// AccuracyRow is one scored forecast hour for one model.
type AccuracyRow struct {
	ModelID           string  `json:"modelId"`
	EvalDate          string  `json:"evalDate"`
	TargetHourLocal   int     `json:"targetHourLocal"`
	ActualSpeed       float64 `json:"actualSpeed"`
	ActualDirection   int     `json:"actualDirection"`
	ForecastSpeed     float64 `json:"forecastSpeed"`
	ForecastDirection int     `json:"forecastDirection"`
	SpeedError        float64 `json:"speedError"`
	DirectionError    float64 `json:"directionError"`
}

// ModelScore is the per-model accuracy rollup. CompositeScore is unitless and
// lower-is-better; CorrectionFactor multiplies forecast speeds at read time.
type ModelScore struct {
	ModelID          string    `json:"modelId"`
	RMSESpeed        float64   `json:"rmseSpeed"`
	MAESpeed         float64   `json:"maeSpeed"`
	RMSEDirection    float64   `json:"rmseDirection"`
	MAEDirection     float64   `json:"maeDirection"`
	CorrelationSpeed float64   `json:"correlationSpeed"`
	CorrectionFactor float64   `json:"correctionFactor"`
	EvalCount        int       `json:"evalCount"`
	CompositeScore   float64   `json:"compositeScore"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// ForecastHour is a forecast row as served to clients, with the model's
// correction factor already applied to the speeds.
type ForecastHour struct {
	Date         string  `json:"date"`
	HourLocal    int     `json:"hourLocal"`
	SpeedKnots   float64 `json:"speedKnots"`
	GustKnots    float64 `json:"gustKnots"`
	DirectionDeg int     `json:"directionDeg"`
	SnapshotTs   string  `json:"snapshotTs"`
}

// WindBucket is one k-minute bucket of the current local day.
type WindBucket struct {
	BucketStart  time.Time `json:"bucketStart"`
	AvgSpeed     float64   `json:"avgSpeed"`
	MinSpeed     float64   `json:"minSpeed"`
	MaxSpeed     float64   `json:"maxSpeed"`
	MaxGust      *float64  `json:"maxGust,omitempty"`
	AvgDirection int       `json:"avgDirection"`
	SampleCount  int       `json:"sampleCount"`
}

// ============================================================================
// Derived Types
// ============================================================================

// TrendResult is the on-demand speed/direction trend over the last hour.
type TrendResult struct {
	Status           string  `json:"status"` // ok | insufficient_data
	SpeedTrend       string  `json:"speedTrend,omitempty"`
	DeltaKnots       float64 `json:"deltaKnots"`
	DeltaPercent     float64 `json:"deltaPercent"`
	CurrentMean      float64 `json:"currentMean"`
	PreviousMean     float64 `json:"previousMean"`
	DirectionStatus  string  `json:"directionStatus,omitempty"` // stable | variable | changing
	DirectionSpread  float64 `json:"directionSpread"`
	SampleCount      int     `json:"sampleCount"`
}

// SafetyLevel is the shared wind classification (§ safety rules).
type SafetyLevel string

const (
	SafetyLow    SafetyLevel = "low"
	SafetyGood   SafetyLevel = "good"
	SafetyMedium SafetyLevel = "medium"
	SafetyHigh   SafetyLevel = "high"
	SafetyDanger SafetyLevel = "danger"
)

// ============================================================================
// Stream Frames
// ============================================================================

// WindUpdateFrame is the JSON object written to every live-stream client on
// each successful ingestion cycle.
type WindUpdateFrame struct {
	Type        string       `json:"type"` // wind_update
	Timestamp   string       `json:"timestamp"`
	Measurement *Measurement `json:"measurement"`
	Trend       *TrendResult `json:"trend,omitempty"`
	Safety      SafetyLevel  `json:"safety"`
}

// StreamCloseFrame is sent on graceful shutdown where possible.
type StreamCloseFrame struct {
	Type string `json:"type"` // close
}

// ============================================================================
// Push Types
// ============================================================================

// PushSubscription is a standard Web Push subscription as registered by a
// browser, persisted to a JSON array on disk.
type PushSubscription struct {
	Endpoint  string            `json:"endpoint"`
	Keys      map[string]string `json:"keys"` // p256dh, auth
	Locale    string            `json:"locale,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// DeviceToken is a registered mobile push token, persisted to a JSON array.
type DeviceToken struct {
	Token     string    `json:"token"`
	Locale    string    `json:"locale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationPayload is what both delivery channels carry.
type NotificationPayload struct {
	Title        string  `json:"title"`
	Body         string  `json:"body"`
	SpeedKnots   float64 `json:"speedKnots"`
	AvgSpeed20m  float64 `json:"avgSpeed20m"`
	URL          string  `json:"url"`
	Icon         string  `json:"icon,omitempty"`
	Badge        string  `json:"badge,omitempty"`
	Timestamp    string  `json:"timestamp"`
}

// NotificationStats reports delivery counters for the stats endpoint.
type NotificationStats struct {
	Subscriptions  int    `json:"subscriptions"`
	DeviceTokens   int    `json:"deviceTokens"`
	SentToday      int    `json:"sentToday"`
	WebDelivered   uint64 `json:"webDelivered"`
	WebFailed      uint64 `json:"webFailed"`
	WebPruned      uint64 `json:"webPruned"`
	APNSDelivered  uint64 `json:"apnsDelivered"`
	APNSFailed     uint64 `json:"apnsFailed"`
	APNSPruned     uint64 `json:"apnsPruned"`
	MobileEnabled  bool   `json:"mobileEnabled"`
	LastEvaluation string `json:"lastEvaluation,omitempty"`
}
