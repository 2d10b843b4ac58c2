package main

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func stabilityWindow(speeds []float64, dirs []int, maxGust float64) []Measurement {
	now := time.Now().UTC()
	ms := make([]Measurement, len(speeds))
	for i := range speeds {
		ms[i] = Measurement{
			StationID:      "primary",
			Timestamp:      now.Add(-time.Duration(i) * 5 * time.Minute),
			WindSpeedKnots: speeds[i],
			WindDir:        dirs[i],
		}
	}
	if maxGust > 0 {
		ms[0].MaxGustKnots = &maxGust
	}
	return ms
}

func TestStabilityCheck(t *testing.T) {
	settings := &testConfig().Notifications

	t.Run("Steady building wind passes", func(t *testing.T) {
		// Newest first: 12, 11, 10, 9, building over the window.
		ms := stabilityWindow([]float64{12, 11, 10, 9}, []int{90, 95, 100, 85}, 15)
		ok, reason := StabilityCheck(ms, settings)
		if !ok {
			t.Errorf("Expected pass, got %q", reason)
		}
	})

	t.Run("One reading below threshold fails", func(t *testing.T) {
		ms := stabilityWindow([]float64{12, 11, 7, 9}, []int{90, 95, 100, 85}, 15)
		ok, reason := StabilityCheck(ms, settings)
		if ok {
			t.Fatal("Expected failure")
		}
		if reason != "wind dropped below threshold" {
			t.Errorf("Expected threshold reason, got %q", reason)
		}
	})

	t.Run("Direction deviation over 30 fails", func(t *testing.T) {
		ms := stabilityWindow([]float64{12, 11, 10, 9}, []int{90, 160, 90, 95}, 15)
		ok, reason := StabilityCheck(ms, settings)
		if ok {
			t.Fatal("Expected failure")
		}
		if reason != "direction too variable" {
			t.Errorf("Expected variability reason, got %q", reason)
		}
	})

	t.Run("Gust delta over 7 fails", func(t *testing.T) {
		ms := stabilityWindow([]float64{12, 11, 10, 9}, []int{90, 95, 100, 85}, 19)
		ok, reason := StabilityCheck(ms, settings)
		if ok {
			t.Fatal("Expected failure")
		}
		if reason != "too gusty" {
			t.Errorf("Expected gust reason, got %q", reason)
		}
	})

	t.Run("Fading wind fails", func(t *testing.T) {
		// Newest first: recent half mean 9, earlier half mean 12.
		ms := stabilityWindow([]float64{9, 9, 12, 12}, []int{90, 95, 100, 85}, 13)
		ok, reason := StabilityCheck(ms, settings)
		if ok {
			t.Fatal("Expected failure")
		}
		if reason != "wind fading" {
			t.Errorf("Expected fading reason, got %q", reason)
		}
	})

	t.Run("Too few samples fails quietly", func(t *testing.T) {
		ms := stabilityWindow([]float64{12, 11}, []int{90, 95}, 14)
		ok, reason := StabilityCheck(ms, settings)
		if ok || reason != "" {
			t.Errorf("Expected silent failure, got ok=%v reason=%q", ok, reason)
		}
	})
}

// testVAPID builds a throwaway VAPID keypair.
func testVAPID(t *testing.T) *VAPIDConfig {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Generating VAPID key failed: %v", err)
	}
	return &VAPIDConfig{
		PublicKey:  base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		PrivateKey: base64.RawURLEncoding.EncodeToString(key.Bytes()),
		Subject:    "mailto:test@example.com",
	}
}

// testSubscription builds a subscription with real client-side keys pointed
// at the given endpoint.
func testSubscription(t *testing.T, endpoint string) PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Generating client key failed: %v", err)
	}
	auth := make([]byte, 16)
	rand.Read(auth)
	return PushSubscription{
		Endpoint: endpoint,
		Keys: map[string]string{
			"p256dh": base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			"auth":   base64.RawURLEncoding.EncodeToString(auth),
		},
		CreatedAt: time.Now().UTC(),
	}
}

func newTestEngine(t *testing.T, config *AppConfig) *NotificationEngine {
	t.Helper()
	h := NewTestHelper(t)
	t.Cleanup(h.Close)

	webPush, err := NewWebPushSender(testVAPID(t))
	if err != nil {
		t.Fatalf("Web push setup failed: %v", err)
	}
	subs := NewSubscriptionStore(t.TempDir())
	tokens := NewTokenStore(t.TempDir())
	return NewNotificationEngine(h.store, config, subs, tokens, webPush, nil)
}

func TestNotificationRateCap(t *testing.T) {
	var delivered atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	engine := newTestEngine(t, testConfig())
	if err := engine.subs.Add(testSubscription(t, srv.URL)); err != nil {
		t.Fatalf("Add subscription failed: %v", err)
	}

	// The predicate holding for hours means repeated dispatch calls; only
	// the first within a local day may deliver.
	for i := 0; i < 5; i++ {
		engine.dispatch(10, 9.5)
	}

	if got := delivered.Load(); got != 1 {
		t.Errorf("Expected exactly 1 delivery, got %d", got)
	}
	if engine.Stats().SentToday != 1 {
		t.Errorf("Expected sentToday 1, got %d", engine.Stats().SentToday)
	}
}

func TestNotificationPruning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	engine := newTestEngine(t, testConfig())
	if err := engine.subs.Add(testSubscription(t, srv.URL)); err != nil {
		t.Fatalf("Add subscription failed: %v", err)
	}

	engine.dispatch(10, 9.5)

	if engine.subs.Count() != 0 {
		t.Errorf("410 endpoint should have been pruned, %d left", engine.subs.Count())
	}
	if engine.Stats().WebPruned != 1 {
		t.Errorf("Expected prune counter 1, got %d", engine.Stats().WebPruned)
	}
}

func TestTransientFailureKeepsEligibility(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	engine := newTestEngine(t, testConfig())
	if err := engine.subs.Add(testSubscription(t, srv.URL)); err != nil {
		t.Fatalf("Add subscription failed: %v", err)
	}

	engine.dispatch(10, 9.5)
	if engine.subs.Count() != 1 {
		t.Fatal("Transient failure must not prune")
	}

	engine.dispatch(10, 9.5)
	if got := calls.Load(); got != 2 {
		t.Errorf("Expected a retry on the next cycle, got %d calls", got)
	}
	if engine.Stats().WebDelivered != 1 {
		t.Errorf("Expected 1 delivery after retry, got %d", engine.Stats().WebDelivered)
	}
}

func TestSubscriptionStorePersistence(t *testing.T) {
	dir := t.TempDir()
	store := NewSubscriptionStore(dir)

	sub := testSubscription(t, "https://push.example/abc")
	sub.Locale = "es"
	if err := store.Add(sub); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	t.Run("Duplicate endpoint replaces", func(t *testing.T) {
		if err := store.Add(sub); err != nil {
			t.Fatalf("Re-add failed: %v", err)
		}
		if store.Count() != 1 {
			t.Errorf("Expected 1 subscription, got %d", store.Count())
		}
	})

	t.Run("Survives reload", func(t *testing.T) {
		reloaded := NewSubscriptionStore(dir)
		subs := reloaded.All()
		if len(subs) != 1 || subs[0].Endpoint != sub.Endpoint || subs[0].Locale != "es" {
			t.Errorf("Reload lost data: %+v", subs)
		}
	})

	t.Run("Remove unknown endpoint is a no-op", func(t *testing.T) {
		if err := store.Remove("https://push.example/nope"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if store.Count() != 1 {
			t.Errorf("Expected 1 subscription, got %d", store.Count())
		}
	})
}
