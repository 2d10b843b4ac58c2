package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Seeds defaults on first run", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "windward-config.json")
		t.Setenv("WINDWARD_CONFIG_PATH", path)

		config, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if config.Timezone != "Europe/Madrid" {
			t.Errorf("Expected default timezone, got %q", config.Timezone)
		}
		if len(config.Models) != 3 {
			t.Errorf("Expected 3 default models, got %d", len(config.Models))
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Default config was not written: %v", err)
		}
	})

	t.Run("Rejects inverted activity window", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "windward-config.json")
		t.Setenv("WINDWARD_CONFIG_PATH", path)
		os.WriteFile(path, []byte(`{"timezone":"Europe/Madrid","window_start_hour":19,"window_end_hour":6}`), 0600)

		if _, err := LoadConfig(); err == nil {
			t.Error("Expected error for inverted window")
		}
	})

	t.Run("Rejects two primary stations", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "windward-config.json")
		t.Setenv("WINDWARD_CONFIG_PATH", path)
		os.WriteFile(path, []byte(`{
			"timezone": "Europe/Madrid",
			"window_start_hour": 6,
			"window_end_hour": 19,
			"stations": [
				{"id": "a", "kind": "rest_snapshot", "endpoint": "http://a", "is_primary": true},
				{"id": "b", "kind": "rest_snapshot", "endpoint": "http://b", "is_primary": true}
			]
		}`), 0600)

		if _, err := LoadConfig(); err == nil {
			t.Error("Expected error for two primaries")
		}
	})

	t.Run("YAML config parses", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "windward.yaml")
		t.Setenv("WINDWARD_CONFIG_PATH", path)
		os.WriteFile(path, []byte("timezone: Europe/Madrid\nwindow_start_hour: 7\nwindow_end_hour: 18\n"), 0600)

		config, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if config.WindowStartHour != 7 || config.WindowEndHour != 18 {
			t.Errorf("YAML values not applied: %d..%d", config.WindowStartHour, config.WindowEndHour)
		}
	})
}

func TestPrimaryStation(t *testing.T) {
	t.Run("Marked primary wins", func(t *testing.T) {
		config := &AppConfig{Stations: []StationConfig{
			{ID: "a"},
			{ID: "b", IsPrimary: true},
		}}
		if p := config.PrimaryStation(); p == nil || p.ID != "b" {
			t.Errorf("Expected b, got %+v", p)
		}
	})

	t.Run("First station is fallback", func(t *testing.T) {
		config := &AppConfig{Stations: []StationConfig{{ID: "a"}, {ID: "b"}}}
		if p := config.PrimaryStation(); p == nil || p.ID != "a" {
			t.Errorf("Expected a, got %+v", p)
		}
	})

	t.Run("Nil when unconfigured", func(t *testing.T) {
		config := &AppConfig{}
		if p := config.PrimaryStation(); p != nil {
			t.Errorf("Expected nil, got %+v", p)
		}
	})
}

func TestInActivityWindow(t *testing.T) {
	config := &AppConfig{Timezone: "Europe/Madrid", WindowStartHour: 6, WindowEndHour: 19}
	loc := config.Location()

	cases := []struct {
		hour int
		want bool
	}{
		{5, false},
		{6, true},
		{12, true},
		{19, true}, // end hour inclusive
		{20, false},
	}
	for _, c := range cases {
		at := time.Date(2026, 8, 20, c.hour, 30, 0, 0, loc)
		if got := config.InActivityWindow(at); got != c.want {
			t.Errorf("InActivityWindow(%02d:30) = %v, want %v", c.hour, got, c.want)
		}
	}
}
