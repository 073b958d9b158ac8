// Package webhook delivers tweet lifecycle events to subscriber endpoints.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReplayWindowExceeded is returned when the timestamp is outside the replay window.
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = errors.New("invalid signature")
)

// DefaultReplayWindow bounds how stale a signed timestamp may be.
const DefaultReplayWindow = 5 * time.Minute

// SecretPrefix marks webhook signing secrets so they are recognizable in configs.
const SecretPrefix = "whsec_"

// SignPayload computes the HMAC-SHA256 signature for a delivery.
// The canonical string is "{timestamp}.{payloadJSON}".
func SignPayload(secret string, timestamp int64, payloadJSON []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payloadJSON)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayload checks a delivery signature with replay protection.
func VerifyPayload(secret, signature string, timestamp int64, payloadJSON []byte, replayWindow time.Duration) error {
	skew := time.Now().Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(replayWindow.Seconds()) {
		return ErrReplayWindowExceeded
	}

	expected := SignPayload(secret, timestamp, payloadJSON)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// NewSecret generates a signing secret with 256 bits of entropy.
// The value is stored server-side and shown to the user once at creation.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}
