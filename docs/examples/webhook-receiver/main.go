// Chirp Webhook Receiver Example
//
// This is a minimal example of how to receive and verify Chirp webhooks.
//
// Usage:
//   export CHIRP_WEBHOOK_SECRET="whsec_your_secret_here"
//   go run main.go
//
// Then configure your Chirp webhook endpoint to point to
// http://your-server:9000/webhook

package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"
)

// TweetEvent represents the webhook payload for tweet lifecycle events.
type TweetEvent struct {
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      TweetData `json:"data"`
}

type TweetData struct {
	TweetID    string `json:"tweet_id"`
	AuthorID   string `json:"author_id"`
	TextLength int    `json:"text_length"`
	Hidden     bool   `json:"hidden"`
}

func main() {
	secret := os.Getenv("CHIRP_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("CHIRP_WEBHOOK_SECRET environment variable is required")
	}

	http.HandleFunc("/webhook", webhookHandler(secret))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting webhook receiver on :9000")
	log.Println("Endpoint: http://localhost:9000/webhook")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func webhookHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Read body
		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Printf("Error reading body: %v", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		// Get signature headers
		signature := r.Header.Get("X-Chirp-Signature")
		timestamp := r.Header.Get("X-Chirp-Timestamp")
		if signature == "" || timestamp == "" {
			log.Println("Missing X-Chirp-Signature or X-Chirp-Timestamp header")
			http.Error(w, "Missing signature", http.StatusUnauthorized)
			return
		}

		// Verify signature
		if !verifySignature(signature, timestamp, body, secret) {
			log.Println("Invalid signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		// Parse event
		var event TweetEvent
		if err := json.Unmarshal(body, &event); err != nil {
			log.Printf("Error parsing JSON: %v", err)
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		// Process the event
		log.Printf("✓ Received %s event %s", event.EventType, event.EventID)
		log.Printf("  Tweet ID:    %s", event.Data.TweetID)
		log.Printf("  Author ID:   %s", event.Data.AuthorID)
		log.Printf("  Text length: %d", event.Data.TextLength)
		log.Printf("  Hidden:      %v", event.Data.Hidden)
		log.Printf("  Delivery:    %s", r.Header.Get("X-Chirp-Delivery-Id"))

		// Respond with 200 OK
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	}
}

// verifySignature verifies the HMAC-SHA256 signature from Chirp.
//
// X-Chirp-Signature carries hex(HMAC-SHA256(secret, "{timestamp}.{body}"))
// and X-Chirp-Timestamp the Unix seconds the payload was signed at.
func verifySignature(signature, timestamp string, body []byte, secret string) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	// Replay protection (±5 min tolerance)
	if math.Abs(float64(time.Now().Unix()-ts)) > 300 {
		log.Println("Signature timestamp too old or in future")
		return false
	}

	// Compute expected signature over "{timestamp}.{body}"
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison
	return hmac.Equal([]byte(signature), []byte(expected))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
