package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// Recipient Stores
// ============================================================================
//
// Subscriptions and device tokens live in small JSON arrays on disk,
// rewritten whole on every mutation. The in-memory copy is authoritative
// between writes.

// SubscriptionStore holds the registered Web Push subscriptions.
type SubscriptionStore struct {
	mu   sync.Mutex
	path string
	subs []PushSubscription
}

func NewSubscriptionStore(dataDir string) *SubscriptionStore {
	s := &SubscriptionStore{path: filepath.Join(dataDir, SubscriptionsFilename)}
	if data, err := os.ReadFile(s.path); err == nil {
		if err := json.Unmarshal(data, &s.subs); err != nil {
			log.Printf("Ignoring corrupt subscription file %s: %v", s.path, err)
			s.subs = nil
		}
	}
	return s
}

// Add registers a subscription, replacing any existing one with the same
// endpoint.
func (s *SubscriptionStore) Add(sub PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].Endpoint == sub.Endpoint {
			s.subs[i] = sub
			return s.persistLocked()
		}
	}
	s.subs = append(s.subs, sub)
	return s.persistLocked()
}

// Remove deletes a subscription by endpoint. Removing an unknown endpoint
// is not an error.
func (s *SubscriptionStore) Remove(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.subs[:0]
	for _, sub := range s.subs {
		if sub.Endpoint != endpoint {
			kept = append(kept, sub)
		}
	}
	s.subs = kept
	return s.persistLocked()
}

// All returns a copy of the current subscriptions.
func (s *SubscriptionStore) All() []PushSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PushSubscription, len(s.subs))
	copy(out, s.subs)
	return out
}

func (s *SubscriptionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *SubscriptionStore) persistLocked() error {
	data, err := json.MarshalIndent(s.subs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// TokenStore holds the registered mobile device tokens.
type TokenStore struct {
	mu     sync.Mutex
	path   string
	tokens []DeviceToken
}

func NewTokenStore(dataDir string) *TokenStore {
	s := &TokenStore{path: filepath.Join(dataDir, TokensFilename)}
	if data, err := os.ReadFile(s.path); err == nil {
		if err := json.Unmarshal(data, &s.tokens); err != nil {
			log.Printf("Ignoring corrupt token file %s: %v", s.path, err)
			s.tokens = nil
		}
	}
	return s
}

func (s *TokenStore) Add(t DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tokens {
		if s.tokens[i].Token == t.Token {
			s.tokens[i] = t
			return s.persistLocked()
		}
	}
	s.tokens = append(s.tokens, t)
	return s.persistLocked()
}

func (s *TokenStore) Remove(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tokens[:0]
	for _, t := range s.tokens {
		if t.Token != token {
			kept = append(kept, t)
		}
	}
	s.tokens = kept
	return s.persistLocked()
}

func (s *TokenStore) All() []DeviceToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeviceToken, len(s.tokens))
	copy(out, s.tokens)
	return out
}

func (s *TokenStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *TokenStore) persistLocked() error {
	data, err := json.MarshalIndent(s.tokens, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// ============================================================================
// Notification Engine
// ============================================================================

// NotificationEngine evaluates the stability predicate on every ingestion
// cycle and dispatches pushes, capped at one per recipient per local
// calendar day.
type NotificationEngine struct {
	store   *Store
	config  *AppConfig
	subs    *SubscriptionStore
	tokens  *TokenStore
	webPush *WebPushSender // nil when no VAPID keys configured
	apns    *APNSSender    // nil when no credentials on disk

	mu       sync.Mutex
	ledger   map[string]time.Time // recipient key -> last notified instant
	lastEval time.Time

	webDelivered  atomic.Uint64
	webFailed     atomic.Uint64
	webPruned     atomic.Uint64
	apnsDelivered atomic.Uint64
	apnsFailed    atomic.Uint64
	apnsPruned    atomic.Uint64
}

func NewNotificationEngine(store *Store, config *AppConfig, subs *SubscriptionStore,
	tokens *TokenStore, webPush *WebPushSender, apns *APNSSender) *NotificationEngine {
	return &NotificationEngine{
		store:   store,
		config:  config,
		subs:    subs,
		tokens:  tokens,
		webPush: webPush,
		apns:    apns,
		ledger:  make(map[string]time.Time),
	}
}

// Evaluate runs the stability predicate after an ingestion cycle. Dispatch
// happens in a background task so the ingestion cycle is never blocked on
// push endpoints.
func (e *NotificationEngine) Evaluate(latest *Measurement) {
	if !e.config.Notifications.Enabled {
		return
	}

	e.mu.Lock()
	e.lastEval = time.Now()
	e.mu.Unlock()

	n := e.config.Notifications.StabilitySamples
	if n < 2 {
		n = 4
	}
	ms, err := e.store.RecentMeasurements(latest.StationID, n)
	if err != nil {
		log.Printf("Notification evaluation read failed: %v", err)
		return
	}

	ok, reason := StabilityCheck(ms, &e.config.Notifications)
	if !ok {
		if reason != "" {
			log.Printf("Notification predicate: %s", reason)
		}
		return
	}

	var speeds []float64
	for _, m := range ms {
		speeds = append(speeds, m.WindSpeedKnots)
	}
	go e.dispatch(latest.WindSpeedKnots, round1(mean(speeds)))
}

// StabilityCheck applies the four conditions over the window (newest first,
// as the store returns it). Returns a loggable reason on failure.
func StabilityCheck(ms []Measurement, settings *NotificationSettings) (bool, string) {
	need := settings.StabilitySamples
	if need < 2 {
		need = 4
	}
	if len(ms) < need {
		return false, ""
	}
	ms = ms[:need]

	minSpeed := settings.MinSpeedKnots
	if minSpeed <= 0 {
		minSpeed = 8
	}
	for _, m := range ms {
		if m.WindSpeedKnots < minSpeed {
			return false, "wind dropped below threshold"
		}
	}

	var speeds, dirs []float64
	var maxGust float64
	for _, m := range ms {
		speeds = append(speeds, m.WindSpeedKnots)
		dirs = append(dirs, float64(m.WindDir))
		if g := maxGustOf(m); g != nil && *g > maxGust {
			maxGust = *g
		}
	}

	maxSpread := settings.MaxDirectionSpread
	if maxSpread <= 0 {
		maxSpread = 30
	}
	if MaxAngularDeviation(dirs) > maxSpread {
		return false, "direction too variable"
	}

	maxGustDelta := settings.MaxGustDelta
	if maxGustDelta <= 0 {
		maxGustDelta = 7
	}
	avg := mean(speeds)
	if maxGust > 0 && maxGust-avg > maxGustDelta {
		return false, "too gusty"
	}

	// Newest first: the first half is the recent window.
	half := len(speeds) / 2
	recent := mean(speeds[:half])
	earlier := mean(speeds[half:])
	if recent-earlier < -1 {
		return false, "wind fading"
	}

	return true, ""
}

// dispatch fans the payload out to every recipient not yet notified today.
func (e *NotificationEngine) dispatch(currentSpeed, avgSpeed float64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sent := 0
	for _, sub := range e.subs.All() {
		if !e.claimToday("web:" + sub.Endpoint) {
			continue
		}
		payload := e.buildPayload(sub.Locale, currentSpeed, avgSpeed)
		data, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		if e.webPush == nil {
			e.releaseClaim("web:" + sub.Endpoint)
			continue
		}
		gone, err := e.webPush.Send(ctx, &sub, data)
		if err != nil {
			e.webFailed.Add(1)
			if gone {
				e.webPruned.Add(1)
				if err := e.subs.Remove(sub.Endpoint); err != nil {
					log.Printf("Pruning subscription failed: %v", err)
				}
			} else {
				e.releaseClaim("web:" + sub.Endpoint)
			}
			log.Printf("Web push to %s failed: %v", sub.Endpoint, err)
			continue
		}
		e.webDelivered.Add(1)
		sent++
	}

	if e.apns != nil {
		for _, t := range e.tokens.All() {
			if !e.claimToday("apns:" + t.Token) {
				continue
			}
			payload := e.buildPayload(t.Locale, currentSpeed, avgSpeed)
			gone, err := e.apns.Send(ctx, t.Token, payload)
			if err != nil {
				e.apnsFailed.Add(1)
				if gone {
					e.apnsPruned.Add(1)
					if err := e.tokens.Remove(t.Token); err != nil {
						log.Printf("Pruning device token failed: %v", err)
					}
				} else {
					e.releaseClaim("apns:" + t.Token)
				}
				log.Printf("APNs push failed: %v", err)
				continue
			}
			e.apnsDelivered.Add(1)
			sent++
		}
	}

	if sent > 0 {
		fmt.Printf("🔔 Dispatched %d notification(s)\n", sent)
	}
}

// claimToday marks a recipient as notified now unless their last
// notification already falls on today's local calendar date.
func (e *NotificationEngine) claimToday(key string) bool {
	loc := e.config.Location()
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.ledger[key]; ok {
		ly, lm, ld := last.In(loc).Date()
		ny, nm, nd := now.In(loc).Date()
		if ly == ny && lm == nm && ld == nd {
			return false
		}
	}
	e.ledger[key] = now
	return true
}

// releaseClaim undoes a claim after a transient delivery failure so the
// recipient stays eligible today.
func (e *NotificationEngine) releaseClaim(key string) {
	e.mu.Lock()
	delete(e.ledger, key)
	e.mu.Unlock()
}

func (e *NotificationEngine) buildPayload(locale string, currentSpeed, avgSpeed float64) *NotificationPayload {
	settings := &e.config.Notifications
	if locale == "" {
		locale = settings.DefaultLocale
	}
	strings, ok := settings.Locales[locale]
	if !ok {
		strings = settings.Locales[settings.DefaultLocale]
	}

	return &NotificationPayload{
		Title:       strings.Title,
		Body:        fmt.Sprintf(strings.Body, currentSpeed, avgSpeed),
		SpeedKnots:  currentSpeed,
		AvgSpeed20m: avgSpeed,
		URL:         settings.ClickURL,
		Icon:        settings.Icon,
		Badge:       settings.Badge,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// SendTest bypasses the predicate and the rate cap; used by the admin test
// endpoint.
func (e *NotificationEngine) SendTest() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sent := 0
	for _, sub := range e.subs.All() {
		if e.webPush == nil {
			break
		}
		payload := e.buildPayload(sub.Locale, 0, 0)
		payload.Title = "Test notification"
		payload.Body = "Push delivery is working."
		data, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		if _, err := e.webPush.Send(ctx, &sub, data); err != nil {
			log.Printf("Test web push failed: %v", err)
			continue
		}
		sent++
	}
	if e.apns != nil {
		for _, t := range e.tokens.All() {
			payload := e.buildPayload(t.Locale, 0, 0)
			payload.Title = "Test notification"
			payload.Body = "Push delivery is working."
			if _, err := e.apns.Send(ctx, t.Token, payload); err != nil {
				log.Printf("Test APNs push failed: %v", err)
				continue
			}
			sent++
		}
	}
	return sent
}

// Stats snapshots the delivery counters.
func (e *NotificationEngine) Stats() NotificationStats {
	e.mu.Lock()
	lastEval := e.lastEval
	e.mu.Unlock()

	stats := NotificationStats{
		Subscriptions: e.subs.Count(),
		DeviceTokens:  e.tokens.Count(),
		SentToday:     e.countSentToday(),
		WebDelivered:  e.webDelivered.Load(),
		WebFailed:     e.webFailed.Load(),
		WebPruned:     e.webPruned.Load(),
		APNSDelivered: e.apnsDelivered.Load(),
		APNSFailed:    e.apnsFailed.Load(),
		APNSPruned:    e.apnsPruned.Load(),
		MobileEnabled: e.apns != nil,
	}
	if !lastEval.IsZero() {
		stats.LastEvaluation = lastEval.UTC().Format(time.RFC3339)
	}
	return stats
}

// countSentToday counts ledger entries whose local date is today.
func (e *NotificationEngine) countSentToday() int {
	loc := e.config.Location()
	ny, nm, nd := time.Now().In(loc).Date()

	e.mu.Lock()
	defer e.mu.Unlock()
	count := 0
	for _, last := range e.ledger {
		ly, lm, ld := last.In(loc).Date()
		if ly == ny && lm == nm && ld == nd {
			count++
		}
	}
	return count
}
