package main

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// ============================================================================
// Web Push (VAPID + aes128gcm)
// ============================================================================

const (
	webPushTimeout = 15 * time.Second
	webPushTTL     = 3600
	recordSize     = 4096
)

// WebPushSender delivers encrypted payloads to browser push endpoints,
// signing each request with the deployment's VAPID key pair.
type WebPushSender struct {
	config *VAPIDConfig
	client *http.Client
	key    *ecdsa.PrivateKey
}

// NewWebPushSender parses the configured VAPID material. Returns an error
// when the private key doesn't decode to a P-256 scalar.
func NewWebPushSender(config *VAPIDConfig) (*WebPushSender, error) {
	raw, err := base64.RawURLEncoding.DecodeString(config.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decoding VAPID private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("VAPID private key must be 32 bytes, got %d", len(raw))
	}

	d := new(big.Int).SetBytes(raw)
	x, y := elliptic.P256().ScalarBaseMult(raw)
	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
		D:         d,
	}

	return &WebPushSender{
		config: config,
		client: &http.Client{Timeout: webPushTimeout},
		key:    key,
	}, nil
}

// Send encrypts and posts one payload. A 404 or 410 response means the
// subscription is dead and the caller should prune it.
func (w *WebPushSender) Send(ctx context.Context, sub *PushSubscription, payload []byte) (gone bool, err error) {
	body, err := encryptPayload(sub, payload)
	if err != nil {
		return false, fmt.Errorf("encrypting payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("TTL", fmt.Sprintf("%d", webPushTTL))
	req.Header.Set("Urgency", "high")

	auth, err := w.vapidHeader(sub.Endpoint)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", auth)

	resp, err := w.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return true, fmt.Errorf("subscription gone (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return false, nil
}

// vapidHeader builds the `vapid t=...,k=...` authorization value. The JWT
// audience is the push service origin, not the full endpoint.
func (w *WebPushSender) vapidHeader(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"aud": u.Scheme + "://" + u.Host,
		"exp": time.Now().Add(12 * time.Hour).Unix(),
		"sub": w.config.Subject,
	})
	signed, err := token.SignedString(w.key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("vapid t=%s,k=%s", signed, w.config.PublicKey), nil
}

// encryptPayload implements RFC 8291 single-record aes128gcm encryption
// against the subscription's p256dh/auth keys.
func encryptPayload(sub *PushSubscription, plaintext []byte) ([]byte, error) {
	clientPubRaw, err := base64.RawURLEncoding.DecodeString(padlessB64(sub.Keys["p256dh"]))
	if err != nil {
		return nil, fmt.Errorf("decoding p256dh: %w", err)
	}
	authSecret, err := base64.RawURLEncoding.DecodeString(padlessB64(sub.Keys["auth"]))
	if err != nil {
		return nil, fmt.Errorf("decoding auth: %w", err)
	}

	curve := ecdh.P256()
	clientPub, err := curve.NewPublicKey(clientPubRaw)
	if err != nil {
		return nil, fmt.Errorf("parsing p256dh: %w", err)
	}

	ephemeral, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	sharedSecret, err := ephemeral.ECDH(clientPub)
	if err != nil {
		return nil, err
	}
	serverPub := ephemeral.PublicKey().Bytes()

	// IKM = HKDF(auth, ecdh_secret, "WebPush: info" || 0x00 || ua_pub || as_pub)
	keyInfo := append([]byte("WebPush: info\x00"), clientPubRaw...)
	keyInfo = append(keyInfo, serverPub...)
	ikm := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sharedSecret, authSecret, keyInfo), ikm); err != nil {
		return nil, err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	cek := make([]byte, 16)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte("Content-Encoding: aes128gcm\x00")), cek); err != nil {
		return nil, err
	}
	nonce := make([]byte, 12)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte("Content-Encoding: nonce\x00")), nonce); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	// Single record: plaintext, 0x02 delimiter, sealed.
	record := append(append([]byte{}, plaintext...), 0x02)
	ciphertext := gcm.Seal(nil, nonce, record, nil)

	// Body header: salt(16) || rs(4) || idlen(1) || as_pub(65)
	var buf bytes.Buffer
	buf.Write(salt)
	binary.Write(&buf, binary.BigEndian, uint32(recordSize))
	buf.WriteByte(byte(len(serverPub)))
	buf.Write(serverPub)
	buf.Write(ciphertext)

	return buf.Bytes(), nil
}

// padlessB64 strips padding so both padded and raw base64url inputs decode.
func padlessB64(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}
