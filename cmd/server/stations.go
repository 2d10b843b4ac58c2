package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// ============================================================================
// Station Drivers
// ============================================================================

const (
	stationFetchTimeout = 15 * time.Second

	mphToKnots = 0.868976
	mpsToKnots = 1.94384
	kmhToKnots = 0.539957
)

// StationDriver fetches and decodes one station's payload shape into a
// Measurement with speeds already in knots.
type StationDriver interface {
	Fetch(ctx context.Context, client *http.Client) (*Measurement, error)
	StationID() string
}

// NewStationDriver maps a station config onto its driver.
func NewStationDriver(cfg StationConfig) (StationDriver, error) {
	switch cfg.Kind {
	case "rest_public_array":
		return &publicArrayDriver{cfg: cfg}, nil
	case "rest_snapshot":
		return &snapshotDriver{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown station kind %q for station %s", cfg.Kind, cfg.ID)
	}
}

func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, stationFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ============================================================================
// Public array format
// ============================================================================

// publicArrayDriver reads the `{data: [{lastData: {...}}]}` shape. Speeds
// come in mph, temperature in °F, pressure in inHg.
type publicArrayDriver struct {
	cfg StationConfig
}

type publicArrayPayload struct {
	Data []struct {
		LastData publicArrayReading `json:"lastData"`
	} `json:"data"`
}

type publicArrayReading struct {
	DateUTC      int64    `json:"dateutc"` // epoch millis
	WindSpeedMph float64  `json:"windspeedmph"`
	WindGustMph  *float64 `json:"windgustmph"`
	MaxDailyGust *float64 `json:"maxdailygust"`
	WindDir      int      `json:"winddir"`
	WindDirAvg   *int     `json:"winddir_avg10m"`
	TempF        *float64 `json:"tempf"`
	Humidity     *float64 `json:"humidity"`
	BaromRelIn   *float64 `json:"baromrelin"`
}

func (d *publicArrayDriver) StationID() string { return d.cfg.ID }

func (d *publicArrayDriver) Fetch(ctx context.Context, client *http.Client) (*Measurement, error) {
	var payload publicArrayPayload
	if err := fetchJSON(ctx, client, d.cfg.Endpoint, &payload); err != nil {
		return nil, fmt.Errorf("station %s: %w", d.cfg.ID, err)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("station %s: empty data array", d.cfg.ID)
	}

	r := payload.Data[0].LastData
	m := &Measurement{
		StationID:      d.cfg.ID,
		Timestamp:      time.UnixMilli(r.DateUTC).UTC(),
		WindSpeedKnots: round1(r.WindSpeedMph * mphToKnots),
		WindDir:        r.WindDir % 360,
		WindDirAvg:     r.WindDirAvg,
		Humidity:       r.Humidity,
	}
	if r.WindGustMph != nil {
		g := round1(*r.WindGustMph * mphToKnots)
		m.WindGustKnots = &g
	}
	if r.MaxDailyGust != nil {
		g := round1(*r.MaxDailyGust * mphToKnots)
		m.MaxGustKnots = &g
	}
	if r.TempF != nil {
		c := round1((*r.TempF - 32) * 5 / 9)
		m.Temperature = &c
	}
	if r.BaromRelIn != nil {
		hpa := math.Round(*r.BaromRelIn*33.8639*10) / 10
		m.Pressure = &hpa
	}
	return m, nil
}

// ============================================================================
// Snapshot format
// ============================================================================

// snapshotDriver reads the flat `{epoch, wspd, wspdhi, wdir, wdiravg, bar}`
// shape. Speeds come in m/s, pressure already in hPa.
type snapshotDriver struct {
	cfg StationConfig
}

type snapshotReading struct {
	Epoch   int64    `json:"epoch"`
	Wspd    float64  `json:"wspd"`
	WspdHi  *float64 `json:"wspdhi"`
	Wdir    int      `json:"wdir"`
	WdirAvg *int     `json:"wdiravg"`
	Temp    *float64 `json:"temp"`
	Bar     *float64 `json:"bar"`
}

func (d *snapshotDriver) StationID() string { return d.cfg.ID }

func (d *snapshotDriver) Fetch(ctx context.Context, client *http.Client) (*Measurement, error) {
	var r snapshotReading
	if err := fetchJSON(ctx, client, d.cfg.Endpoint, &r); err != nil {
		return nil, fmt.Errorf("station %s: %w", d.cfg.ID, err)
	}
	if r.Epoch == 0 {
		return nil, fmt.Errorf("station %s: missing epoch", d.cfg.ID)
	}

	m := &Measurement{
		StationID:      d.cfg.ID,
		Timestamp:      time.Unix(r.Epoch, 0).UTC(),
		WindSpeedKnots: round1(r.Wspd * mpsToKnots),
		WindDir:        r.Wdir % 360,
		WindDirAvg:     r.WdirAvg,
		Temperature:    r.Temp,
		Pressure:       r.Bar,
	}
	if r.WspdHi != nil {
		g := round1(*r.WspdHi * mpsToKnots)
		m.WindGustKnots = &g
	}
	return m, nil
}
