package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ============================================================================
// APNs Delivery
// ============================================================================

const (
	apnsProduction = "https://api.push.apple.com"
	apnsTimeout    = 15 * time.Second

	// Apple accepts provider tokens for up to an hour; refresh well before.
	apnsTokenLifetime = 50 * time.Minute
)

// apnsCredentials is the on-disk credential document. A missing document
// silently disables the mobile channel.
type apnsCredentials struct {
	KeyPath  string `json:"key_path"`
	KeyID    string `json:"key_id"`
	TeamID   string `json:"team_id"`
	BundleID string `json:"bundle_id"`
	Host     string `json:"host,omitempty"`
}

// APNSSender delivers alerts over Apple's HTTP/2 API, signing with an ES256
// provider token that is cached and reused for up to 50 minutes.
type APNSSender struct {
	creds  apnsCredentials
	key    *ecdsa.PrivateKey
	client *http.Client

	mu          sync.Mutex
	cachedToken string
	tokenIssued time.Time
}

// NewAPNSSender loads the credential document and signing key from dataDir.
// Returns (nil, nil) when no credentials are present.
func NewAPNSSender(dataDir string) (*APNSSender, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, APNSCredsFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var creds apnsCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing APNs credentials: %w", err)
	}
	if creds.KeyPath == "" || creds.KeyID == "" || creds.TeamID == "" || creds.BundleID == "" {
		return nil, fmt.Errorf("incomplete APNs credentials")
	}

	keyPath := creds.KeyPath
	if !filepath.IsAbs(keyPath) {
		keyPath = filepath.Join(dataDir, keyPath)
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading APNs signing key: %w", err)
	}
	key, err := parseP8Key(keyData)
	if err != nil {
		return nil, err
	}

	return &APNSSender{
		creds:  creds,
		key:    key,
		client: &http.Client{Timeout: apnsTimeout},
	}, nil
}

func parseP8Key(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("APNs key is not PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing APNs key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("APNs key is not an EC key")
	}
	return key, nil
}

// providerToken returns a valid signed token, reusing the cached one while
// it is younger than 50 minutes.
func (a *APNSSender) providerToken() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cachedToken != "" && time.Since(a.tokenIssued) < apnsTokenLifetime {
		return a.cachedToken, nil
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": a.creds.TeamID,
		"iat": now.Unix(),
	})
	token.Header["kid"] = a.creds.KeyID
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", err
	}
	a.cachedToken = signed
	a.tokenIssued = now
	return signed, nil
}

type apnsResponse struct {
	Reason string `json:"reason"`
}

// Send pushes one alert to a device token. gone=true means the token is
// permanently invalid and must be pruned.
func (a *APNSSender) Send(ctx context.Context, deviceToken string, payload *NotificationPayload) (gone bool, err error) {
	body, err := json.Marshal(map[string]any{
		"aps": map[string]any{
			"alert": map[string]string{
				"title": payload.Title,
				"body":  payload.Body,
			},
			"sound":             "default",
			"interruption-level": "time-sensitive",
		},
		"speedKnots":  payload.SpeedKnots,
		"avgSpeed20m": payload.AvgSpeed20m,
		"url":         payload.URL,
		"timestamp":   payload.Timestamp,
	})
	if err != nil {
		return false, err
	}

	host := a.creds.Host
	if host == "" {
		host = apnsProduction
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		host+"/3/device/"+deviceToken, bytes.NewReader(body))
	if err != nil {
		return false, err
	}

	token, err := a.providerToken()
	if err != nil {
		return false, err
	}
	req.Header.Set("authorization", "bearer "+token)
	req.Header.Set("apns-topic", a.creds.BundleID)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("apns-priority", "10")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return false, nil
	}

	var apnsErr apnsResponse
	json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apnsErr)

	switch apnsErr.Reason {
	case "BadDeviceToken", "Unregistered", "DeviceTokenNotForTopic":
		return true, fmt.Errorf("token invalid: %s", apnsErr.Reason)
	}
	if resp.StatusCode == http.StatusGone {
		return true, fmt.Errorf("token gone (status 410)")
	}
	return false, fmt.Errorf("APNs returned %d (%s)", resp.StatusCode, apnsErr.Reason)
}
