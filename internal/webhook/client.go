package webhook

import (
	"net"
	"net/http"
	"time"
)

const (
	clientTimeout         = 30 * time.Second
	dialTimeout           = 10 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 15 * time.Second
)

// Signature headers attached to every delivery request.
const (
	HeaderSignature  = "X-Chirp-Signature"
	HeaderTimestamp  = "X-Chirp-Timestamp"
	HeaderDeliveryID = "X-Chirp-Delivery-Id"
)

const userAgent = "Chirp-Webhook/1.0"

// NewHTTPClient returns an HTTP client tuned for webhook delivery.
// Redirects are not followed; a redirecting endpoint counts as a failure
// response rather than a new target.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   tlsHandshakeTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// RequestHeaders carries the per-delivery header values.
type RequestHeaders struct {
	Signature  string
	Timestamp  string
	DeliveryID string
}

// ApplyHeaders sets the content type, identity, and signature headers.
func ApplyHeaders(req *http.Request, h RequestHeaders) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderSignature, h.Signature)
	req.Header.Set(HeaderTimestamp, h.Timestamp)
	req.Header.Set(HeaderDeliveryID, h.DeliveryID)
}
