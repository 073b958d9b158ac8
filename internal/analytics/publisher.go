package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chirp/chirp/internal/metrics"
)

const (
	// StreamKey is the Redis stream carrying view events.
	StreamKey = "stream:view_events"

	// DeadLetterStreamKey collects poison messages.
	DeadLetterStreamKey = "stream:view_events:dlq"

	// MaxStreamLen caps the stream length (approximately).
	MaxStreamLen = 100000

	// PublishTimeout bounds a single publish so it never stalls a
	// permalink response.
	PublishTimeout = 100 * time.Millisecond
)

// ViewEventPayload is the compact wire format for stream messages.
type ViewEventPayload struct {
	TweetID     string `json:"tid"`
	Referrer    string `json:"r,omitempty"`
	UserAgent   string `json:"ua,omitempty"`
	VisitorHash string `json:"vh"`
	CountryCode string `json:"cc,omitempty"`
	ViewedAt    int64  `json:"t"` // Unix milliseconds
}

// Publisher enqueues view events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a view event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "analytics.publisher"),
		metrics: recorder,
	}
}

// Publish adds a view event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event ViewEventPayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller. Errors are logged
// and counted, never returned; losing a view beats slowing a permalink.
func (p *Publisher) PublishAsync(event ViewEventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish view event",
				"tweet_id", event.TweetID,
				"error", err,
			)
			p.metrics.IncAnalyticsEventPublished("dropped")
			return
		}

		p.logger.Debug("view event published",
			"tweet_id", event.TweetID,
			"stream_id", streamID,
		)
		p.metrics.IncAnalyticsEventPublished("success")
	}()
}

// GenerateVisitorHash creates a privacy-safe visitor identifier:
// SHA256(IP + UserAgent + daily_salt) truncated to 16 hex chars. The
// salt rotates at midnight UTC so visitors cannot be tracked across days.
func GenerateVisitorHash(ip, userAgent string, viewedAt time.Time) string {
	dailySalt := fmt.Sprintf("chirp:%s", viewedAt.UTC().Format("2006-01-02"))

	data := ip + userAgent + dailySalt
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])[:16]
}

// SanitizeReferrer strips query parameters and fragments from the
// referrer URL and truncates it.
func SanitizeReferrer(ref string) string {
	if ref == "" {
		return ""
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""

	sanitized := parsed.String()
	if len(sanitized) > 500 {
		return sanitized[:500]
	}
	return sanitized
}

// TruncateUserAgent bounds the stored user agent string.
func TruncateUserAgent(ua string) string {
	if len(ua) > 500 {
		return ua[:500]
	}
	return ua
}

// ExtractCountryCode normalizes the CF-IPCountry header value.
// Returns empty string when the header is missing or malformed.
func ExtractCountryCode(cfIPCountry string) string {
	if cfIPCountry != "" && len(cfIPCountry) == 2 {
		return strings.ToUpper(cfIPCountry)
	}
	return ""
}

// ExtractReferrerDomain reduces a referrer URL to its domain.
// Empty referrers count as "(direct)".
func ExtractReferrerDomain(ref string) string {
	if ref == "" {
		return "(direct)"
	}

	parsed, err := url.Parse(ref)
	if err != nil || parsed.Host == "" {
		return "(unknown)"
	}

	return parsed.Host
}
