package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ConfigFilename        = "windward-config.json"
	DBFilename            = "windward.db"
	SubscriptionsFilename = "push-subscriptions.json"
	TokensFilename        = "device-tokens.json"
	CalibrationFilename   = "calibration.json"
	APNSCredsFilename     = "apns-credentials.json"
)

// StationConfig identifies one upstream weather station.
type StationConfig struct {
	ID        string `json:"id" yaml:"id"`
	Kind      string `json:"kind" yaml:"kind"` // rest_public_array | rest_snapshot
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	IsPrimary bool   `json:"is_primary" yaml:"is_primary"`
}

// ModelConfig identifies one forecast model. Models differ only in base URL.
type ModelConfig struct {
	ID      string `json:"id" yaml:"id"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// NotificationSettings tunes the stability predicate and the push payloads.
type NotificationSettings struct {
	Enabled            bool                     `json:"enabled" yaml:"enabled"`
	MinSpeedKnots      float64                  `json:"min_speed_knots" yaml:"min_speed_knots"`
	StabilitySamples   int                      `json:"stability_samples" yaml:"stability_samples"`
	MaxDirectionSpread float64                  `json:"max_direction_spread" yaml:"max_direction_spread"`
	MaxGustDelta       float64                  `json:"max_gust_delta" yaml:"max_gust_delta"`
	ClickURL           string                   `json:"click_url" yaml:"click_url"`
	Icon               string                   `json:"icon" yaml:"icon"`
	Badge              string                   `json:"badge" yaml:"badge"`
	DefaultLocale      string                   `json:"default_locale" yaml:"default_locale"`
	Locales            map[string]LocaleStrings `json:"locales" yaml:"locales"`
}

// LocaleStrings is a precomputed title/body pair for one locale. The wind
// figures are substituted with fmt verbs (%.1f current, %.1f average).
type LocaleStrings struct {
	Title string `json:"title" yaml:"title"`
	Body  string `json:"body" yaml:"body"`
}

// VAPIDConfig holds the Web Push signing material. Keys are base64url raw
// P-256 values, the same encoding browsers hand out.
type VAPIDConfig struct {
	PublicKey  string `json:"public_key" yaml:"public_key"`
	PrivateKey string `json:"private_key" yaml:"private_key"`
	Subject    string `json:"subject" yaml:"subject"` // mailto: or https: contact
}

// AppConfig is the whole server configuration document.
type AppConfig struct {
	Port            string          `json:"port,omitempty" yaml:"port"`
	Host            string          `json:"host,omitempty" yaml:"host"`
	Latitude        float64         `json:"latitude" yaml:"latitude"`
	Longitude       float64         `json:"longitude" yaml:"longitude"`
	Timezone        string          `json:"timezone" yaml:"timezone"`
	WindowStartHour int             `json:"window_start_hour" yaml:"window_start_hour"`
	WindowEndHour   int             `json:"window_end_hour" yaml:"window_end_hour"`
	Stations        []StationConfig `json:"stations" yaml:"stations"`
	Models          []ModelConfig   `json:"models" yaml:"models"`
	DefaultModel    string          `json:"default_model" yaml:"default_model"`

	Notifications NotificationSettings `json:"notifications" yaml:"notifications"`
	VAPID         *VAPIDConfig         `json:"vapid,omitempty" yaml:"vapid"`
}

func getExeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func GetConfigPath() string {
	if p := os.Getenv("WINDWARD_CONFIG_PATH"); p != "" {
		return p
	}
	return filepath.Join(getExeDir(), ConfigFilename)
}

func GetDBPath() string {
	if p := os.Getenv("WINDWARD_DB_PATH"); p != "" {
		return p
	}
	return filepath.Join(getExeDir(), DBFilename)
}

// GetDataDir is where the file-backed state lives (subscriptions, tokens,
// calibration, push credentials).
func GetDataDir() string {
	if p := os.Getenv("WINDWARD_DATA_DIR"); p != "" {
		return p
	}
	return getExeDir()
}

// Location resolves the activity zone. Falls back to UTC only if the
// configured zone is unknown, which is logged loudly at startup.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		fmt.Printf("⚠️  Unknown timezone %q, falling back to UTC\n", c.Timezone)
		return time.UTC
	}
	return loc
}

// PrimaryStation returns the station whose data drives the stream and the
// notification decisions. At most one station is primary; when none is
// marked, the first configured station wins.
func (c *AppConfig) PrimaryStation() *StationConfig {
	for i := range c.Stations {
		if c.Stations[i].IsPrimary {
			return &c.Stations[i]
		}
	}
	if len(c.Stations) > 0 {
		return &c.Stations[0]
	}
	return nil
}

// InActivityWindow reports whether t (in the activity zone) falls inside the
// daily window. The end hour is inclusive.
func (c *AppConfig) InActivityWindow(t time.Time) bool {
	h := t.In(c.Location()).Hour()
	return h >= c.WindowStartHour && h <= c.WindowEndHour
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Latitude:        41.0765,
		Longitude:       1.1398,
		Timezone:        "Europe/Madrid",
		WindowStartHour: 6,
		WindowEndHour:   19,
		Stations:        []StationConfig{},
		Models: []ModelConfig{
			{ID: "openmeteo", BaseURL: "https://api.open-meteo.com/v1"},
			{ID: "openmeteo_gfs", BaseURL: "https://api.open-meteo.com/v1/gfs"},
			{ID: "openmeteo_icon", BaseURL: "https://api.open-meteo.com/v1/dwd-icon"},
		},
		DefaultModel: "openmeteo",
		Notifications: NotificationSettings{
			Enabled:            true,
			MinSpeedKnots:      8,
			StabilitySamples:   4,
			MaxDirectionSpread: 30,
			MaxGustDelta:       7,
			DefaultLocale:      "en",
			Locales: map[string]LocaleStrings{
				"en": {
					Title: "Wind is on!",
					Body:  "Steady %.1f kn (20 min avg %.1f kn). Go ride.",
				},
				"es": {
					Title: "¡Hay viento!",
					Body:  "Constante a %.1f kn (media 20 min %.1f kn). A navegar.",
				},
			},
		},
	}
}

// LoadConfig reads the config document, seeding defaults on first run.
// A path ending in .yaml/.yml is parsed as YAML; everything else as JSON.
func LoadConfig() (*AppConfig, error) {
	path := GetConfigPath()
	fmt.Printf("📂 Loading config from: %s\n", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			config := defaultConfig()
			if err := SaveConfig(config); err != nil {
				return nil, fmt.Errorf("seeding default config: %w", err)
			}
			fmt.Println("✅ Seeded default config (no stations configured yet)")
			return config, nil
		}
		return nil, err
	}

	config := defaultConfig()
	if isYAMLPath(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if config.WindowStartHour < 0 || config.WindowEndHour > 23 || config.WindowStartHour > config.WindowEndHour {
		return nil, fmt.Errorf("invalid activity window %d..%d", config.WindowStartHour, config.WindowEndHour)
	}
	primaries := 0
	for _, s := range config.Stations {
		if s.IsPrimary {
			primaries++
		}
	}
	if primaries > 1 {
		return nil, fmt.Errorf("at most one station may be primary, got %d", primaries)
	}

	return config, nil
}

// SaveConfig writes the config document back where it was loaded from.
func SaveConfig(config *AppConfig) error {
	path := GetConfigPath()
	var data []byte
	var err error
	if isYAMLPath(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
