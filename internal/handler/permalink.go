package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chirp/chirp/internal/analytics"
	"github.com/chirp/chirp/internal/handler/dto"
	"github.com/chirp/chirp/internal/middleware"
	"github.com/chirp/chirp/internal/service"
)

// PermalinkHandler serves the public permalink endpoint.
type PermalinkHandler struct {
	svc       *service.TweetService
	publisher *analytics.Publisher
	logger    *slog.Logger
}

// NewPermalinkHandler creates a new PermalinkHandler.
func NewPermalinkHandler(svc *service.TweetService, publisher *analytics.Publisher, logger *slog.Logger) *PermalinkHandler {
	return &PermalinkHandler{
		svc:       svc,
		publisher: publisher,
		logger:    logger,
	}
}

// PermalinkResponse is the public representation of a tweet.
// The author's account details are never exposed here.
type PermalinkResponse struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	TextLength int       `json:"text_length"`
	AuthorID   string    `json:"author_id"`
	ViewCount  int64     `json:"view_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Resolve handles GET /t/{id} for public tweet reads.
// Hidden and deleted tweets resolve as not found.
func (h *PermalinkHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// A malformed ID cannot name a tweet; skip the cache and DB entirely.
	if err := middleware.ValidateID(id); err != nil {
		h.writeError(w, http.StatusNotFound, "TWEET_NOT_FOUND", "Tweet not found")
		return
	}

	start := time.Now()

	tweet, cacheHit, err := h.svc.ResolvePermalink(r.Context(), id)
	duration := time.Since(start)

	if err != nil {
		h.handleResolveError(w, id, err, duration)
		return
	}

	// Increment view counter asynchronously
	h.svc.IncrementViewAsync(id)

	// Publish analytics event asynchronously (fire-and-forget)
	if h.publisher != nil {
		viewedAt := time.Now()
		event := analytics.ViewEventPayload{
			TweetID:     tweet.ID,
			Referrer:    analytics.SanitizeReferrer(r.Header.Get("Referer")),
			UserAgent:   analytics.TruncateUserAgent(r.Header.Get("User-Agent")),
			VisitorHash: analytics.GenerateVisitorHash(getClientIP(r), r.Header.Get("User-Agent"), viewedAt),
			CountryCode: analytics.ExtractCountryCode(r.Header.Get("CF-IPCountry")),
			ViewedAt:    viewedAt.UnixMilli(),
		}
		h.publisher.PublishAsync(event)
	}

	h.logger.Info("permalink_resolved",
		"tweet_id", id,
		"cache_hit", cacheHit,
		"duration_ms", float64(duration.Microseconds())/1000,
	)

	// Set security headers
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Cache-Control", "private, max-age=0")

	writeJSON(w, http.StatusOK, PermalinkResponse{
		ID:         tweet.ID,
		Text:       tweet.Text,
		TextLength: tweet.TextLength(),
		AuthorID:   tweet.AuthorID,
		ViewCount:  tweet.ViewCount,
		CreatedAt:  tweet.CreatedAt,
	})
}

// handleResolveError handles errors during permalink resolution.
// Hidden tweets are indistinguishable from missing ones on this path.
func (h *PermalinkHandler) handleResolveError(w http.ResponseWriter, id string, err error, duration time.Duration) {
	switch {
	case errors.Is(err, service.ErrTweetNotFound):
		h.logger.Info("permalink_not_found",
			"tweet_id", id,
			"duration_ms", float64(duration.Microseconds())/1000,
		)
		h.writeError(w, http.StatusNotFound, "TWEET_NOT_FOUND", "Tweet not found")

	default:
		h.logger.Error("permalink_error",
			"tweet_id", id,
			"error", err,
			"duration_ms", float64(duration.Microseconds())/1000,
		)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// writeError writes a JSON error response for permalink failures.
func (h *PermalinkHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	// Set security headers even on errors
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=0")

	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// getClientIP extracts the client IP address from the request.
func getClientIP(r *http.Request) string {
	// Check Cloudflare header first
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	// Check X-Forwarded-For
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		// Take the first IP in the chain
		for i := 0; i < len(ip); i++ {
			if ip[i] == ',' {
				return ip[:i]
			}
		}
		return ip
	}
	// Check X-Real-IP
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	// Fall back to RemoteAddr
	return r.RemoteAddr
}
