package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chirp/chirp/internal/handler/dto"
	"github.com/chirp/chirp/internal/model"
	"github.com/chirp/chirp/internal/service"
)

// AdminTweetSearcher defines the interface for tweet lookup operations.
type AdminTweetSearcher interface {
	GetTweetByID(ctx context.Context, id string) (*model.Tweet, error)
	SearchTweetsByText(ctx context.Context, fragment string, limit int) ([]*model.Tweet, error)
}

// AdminKeyLister defines the interface for listing API keys.
type AdminKeyLister interface {
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
}

// AdminHandler provides admin-only endpoints for moderation and operations.
// Routes using it must sit behind the admin scope middleware.
type AdminHandler struct {
	tweetRepo AdminTweetSearcher
	keyRepo   AdminKeyLister
	userSvc   *service.UserService
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(tweetRepo AdminTweetSearcher, keyRepo AdminKeyLister, userSvc *service.UserService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		tweetRepo: tweetRepo,
		keyRepo:   keyRepo,
		userSvc:   userSvc,
		logger:    logger,
	}
}

// TweetLookupResponse represents the response for tweet lookup.
type TweetLookupResponse struct {
	Tweets []AdminTweetResponse `json:"tweets"`
	Total  int                  `json:"total"`
}

// AdminTweetResponse represents a tweet in admin context with extended info.
// Unlike the public views, it includes hidden and deleted rows.
type AdminTweetResponse struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	TextLength int        `json:"text_length"`
	Hidden     bool       `json:"hidden"`
	Status     string     `json:"status"`
	AuthorID   string     `json:"author_id"`
	ViewCount  int64      `json:"view_count"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// LookupTweets handles GET /api/v1/admin/tweets?q={id|text}
// Searches by tweet ID (exact match) or text content (partial match).
func (h *AdminHandler) LookupTweets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeErrorJSON(w, http.StatusBadRequest, "MISSING_QUERY", "query parameter 'q' is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var tweets []*model.Tweet

	// Try exact ID lookup first
	if tweet, err := h.tweetRepo.GetTweetByID(ctx, query); err == nil {
		tweets = append(tweets, tweet)
	}

	// Fall back to text search
	if len(tweets) == 0 {
		found, err := h.tweetRepo.SearchTweetsByText(ctx, query, 20)
		if err != nil {
			h.logger.Error("failed to search tweets by text",
				"error", err,
				"query", truncateForLog(query, 100),
			)
		} else {
			tweets = found
		}
	}

	response := TweetLookupResponse{
		Tweets: make([]AdminTweetResponse, 0, len(tweets)),
		Total:  len(tweets),
	}

	for _, tweet := range tweets {
		response.Tweets = append(response.Tweets, AdminTweetResponse{
			ID:         tweet.ID,
			Text:       tweet.Text,
			TextLength: tweet.TextLength(),
			Hidden:     tweet.Hidden,
			Status:     string(tweet.Status()),
			AuthorID:   tweet.AuthorID,
			ViewCount:  tweet.ViewCount,
			DeletedAt:  tweet.DeletedAt,
			CreatedAt:  tweet.CreatedAt,
			UpdatedAt:  tweet.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// AdminAPIKeyListResponse represents the response for API key listing.
type AdminAPIKeyListResponse struct {
	Keys  []model.APIKeyResponse `json:"keys"`
	Total int                    `json:"total"`
}

// ListAPIKeysByUser handles GET /api/v1/admin/api-keys?user_id={id}
// Lists all API keys for a specific user (admin only).
func (h *AdminHandler) ListAPIKeysByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeErrorJSON(w, http.StatusBadRequest, "MISSING_USER_ID", "query parameter 'user_id' is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	keys, err := h.keyRepo.ListAPIKeysByUserID(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list API keys",
			"error", err,
			"user_id", userID,
		)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list API keys")
		return
	}

	response := AdminAPIKeyListResponse{
		Keys:  make([]model.APIKeyResponse, 0, len(keys)),
		Total: len(keys),
	}

	for _, key := range keys {
		response.Keys = append(response.Keys, key.ToResponse())
	}

	writeJSON(w, http.StatusOK, response)
}

// PromoteUser handles POST /api/v1/admin/users/{id}/promote
// Grants admin rights to the target user.
func (h *AdminHandler) PromoteUser(w http.ResponseWriter, r *http.Request) {
	authCtx := getAuthContext(r.Context())
	if authCtx == nil {
		writeErrorJSON(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeErrorJSON(w, http.StatusBadRequest, "MISSING_ID", "User ID is required")
		return
	}

	user, err := h.userSvc.PromoteAdmin(r.Context(), authCtx.Actor(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			writeErrorJSON(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		case errors.Is(err, service.ErrForbidden):
			writeErrorJSON(w, http.StatusForbidden, "FORBIDDEN", "Admin rights required")
		default:
			h.logger.Error("failed to promote user", "error", err, "user_id", userID)
			writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to promote user")
		}
		return
	}

	h.logger.Info("user_promoted",
		"user_id", user.ID,
		"promoted_by", authCtx.UserID,
	)

	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

// StatsResponse represents operational statistics.
type StatsResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime,omitempty"`
}

// Stats handles GET /api/v1/admin/stats
// Returns basic operational statistics.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response := StatsResponse{
		Timestamp: time.Now().UTC(),
		Service:   "chirp",
		Version:   "1.0.0", // TODO: inject at build time
	}
	writeJSON(w, http.StatusOK, response)
}

// truncateForLog truncates a string for logging purposes.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// writeErrorJSON writes a JSON error response.
func writeErrorJSON(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
