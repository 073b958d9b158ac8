package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubReceiver simulates a subscriber endpoint. It verifies signatures
// the way a real receiver would and can fail a configured number of
// requests before succeeding.
type stubReceiver struct {
	Server     *httptest.Server
	Secret     string
	failsLeft  atomic.Int32
	mu         sync.Mutex
	deliveries []receivedDelivery
}

type receivedDelivery struct {
	Signature   string
	Timestamp   int64
	DeliveryID  string
	Payload     json.RawMessage
	SignatureOK bool
}

func newStubReceiver(secret string) *stubReceiver {
	sr := &stubReceiver{Secret: secret}
	sr.Server = httptest.NewServer(http.HandlerFunc(sr.handle))
	return sr
}

func (sr *stubReceiver) handle(w http.ResponseWriter, r *http.Request) {
	if sr.failsLeft.Add(-1) >= 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	signature := r.Header.Get(HeaderSignature)
	timestamp, _ := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	deliveryID := r.Header.Get(HeaderDeliveryID)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sr.mu.Lock()
	sr.deliveries = append(sr.deliveries, receivedDelivery{
		Signature:   signature,
		Timestamp:   timestamp,
		DeliveryID:  deliveryID,
		Payload:     body,
		SignatureOK: sr.verify(signature, timestamp, body),
	})
	sr.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

// verify recomputes the signature independently, as receiver docs tell
// subscribers to do.
func (sr *stubReceiver) verify(signature string, timestamp int64, payload []byte) bool {
	mac := hmac.New(sha256.New, []byte(sr.Secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (sr *stubReceiver) setFailCount(n int32) {
	sr.failsLeft.Store(n)
}

func (sr *stubReceiver) received() []receivedDelivery {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return append([]receivedDelivery{}, sr.deliveries...)
}

func (sr *stubReceiver) Close() {
	sr.Server.Close()
}

func postSigned(t *testing.T, sr *stubReceiver, secret, deliveryID string, payload []byte) *http.Response {
	t.Helper()

	timestamp := time.Now().Unix()
	req, err := http.NewRequest(http.MethodPost, sr.Server.URL, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	ApplyHeaders(req, RequestHeaders{
		Signature:  SignPayload(secret, timestamp, payload),
		Timestamp:  strconv.FormatInt(timestamp, 10),
		DeliveryID: deliveryID,
	})

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	return resp
}

func TestReceiver_SignatureVerification(t *testing.T) {
	secret := "whsec_receiver_test"
	receiver := newStubReceiver(secret)
	defer receiver.Close()

	payload := []byte(`{"event_type":"tweet.created","event_id":"evt123"}`)
	resp := postSigned(t, receiver, secret, "delivery_001", payload)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	deliveries := receiver.received()
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	if !deliveries[0].SignatureOK {
		t.Error("signature verification failed at receiver")
	}
	if deliveries[0].DeliveryID != "delivery_001" {
		t.Errorf("delivery ID mismatch: got %q", deliveries[0].DeliveryID)
	}
}

func TestReceiver_WrongSecretRejected(t *testing.T) {
	receiver := newStubReceiver("whsec_real_secret")
	defer receiver.Close()

	payload := []byte(`{"event_type":"tweet.hidden"}`)
	resp := postSigned(t, receiver, "whsec_wrong_secret", "delivery_002", payload)
	defer resp.Body.Close()

	deliveries := receiver.received()
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	if deliveries[0].SignatureOK {
		t.Error("expected signature verification to fail with wrong secret")
	}
}

func TestReceiver_FailThenSucceed(t *testing.T) {
	secret := "whsec_retry_test"
	receiver := newStubReceiver(secret)
	defer receiver.Close()

	receiver.setFailCount(2)

	payload := []byte(`{"event_type":"tweet.deleted"}`)

	for attempt, wantStatus := range []int{http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK} {
		resp := postSigned(t, receiver, secret, fmt.Sprintf("retry_%d", attempt), payload)
		if resp.StatusCode != wantStatus {
			t.Errorf("attempt %d: expected %d, got %d", attempt, wantStatus, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// Failed attempts are rejected before the receiver records them.
	if got := len(receiver.received()); got != 1 {
		t.Errorf("expected 1 recorded delivery, got %d", got)
	}
}

func TestCanonicalStringFormat(t *testing.T) {
	// Pins the exact canonical string subscribers must reproduce.
	secret := "whsec_doc_test"
	timestamp := int64(1736600000)
	payload := []byte(`{"event_type":"tweet.created","data":{"tweet_id":"abc123"}}`)

	canonical := `1736600000.{"event_type":"tweet.created","data":{"tweet_id":"abc123"}}`
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	expected := hex.EncodeToString(mac.Sum(nil))

	if got := SignPayload(secret, timestamp, payload); got != expected {
		t.Errorf("signature mismatch\nexpected: %s\nactual:   %s", expected, got)
	}
}

func TestHTTPClient_DoesNotFollowRedirects(t *testing.T) {
	client := NewHTTPClient()

	if client.Timeout != clientTimeout {
		t.Errorf("expected %v timeout, got %v", clientTimeout, client.Timeout)
	}

	redirectServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer redirectServer.Close()

	resp, err := client.Get(redirectServer.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("client should not follow redirects, got status %d", resp.StatusCode)
	}
}
