package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chirp/chirp/internal/auth"
	"github.com/chirp/chirp/internal/changeset"
	"github.com/chirp/chirp/internal/handler/dto"
	"github.com/chirp/chirp/internal/middleware"
	"github.com/chirp/chirp/internal/model"
	"github.com/chirp/chirp/internal/repository"
	"github.com/chirp/chirp/internal/service"
	"github.com/chirp/chirp/internal/webhook"
)

// getAuthContext is a helper to extract auth context from request.
func getAuthContext(ctx context.Context) *model.AuthContext {
	return auth.AuthFromContext(ctx)
}

// TweetHandler handles HTTP requests for tweet operations.
type TweetHandler struct {
	svc       *service.TweetService
	publisher *webhook.Publisher
	logger    *slog.Logger
}

// NewTweetHandler creates a new TweetHandler.
func NewTweetHandler(svc *service.TweetService, publisher *webhook.Publisher, logger *slog.Logger) *TweetHandler {
	return &TweetHandler{
		svc:       svc,
		publisher: publisher,
		logger:    logger,
	}
}

// Create handles POST /api/v1/tweets.
func (h *TweetHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := getAuthContext(r.Context()).Actor()
	if actor == nil {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req dto.CreateTweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := middleware.ValidateTweetText(req.Text); err != nil {
		h.writeTextValidationError(w, err)
		return
	}

	input := service.CreateTweetInput{
		Text:   req.Text,
		Hidden: req.Hidden,
	}

	tweet, err := h.svc.CreateTweet(r.Context(), actor, input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("tweet_created",
		"tweet_id", tweet.ID,
		"author_id", tweet.AuthorID,
		"text_length", tweet.TextLength(),
		"hidden", tweet.Hidden,
	)

	h.notifyWebhooks(model.EventTypeTweetCreated, tweet)

	response := dto.ToTweetResponse(tweet, h.svc.BaseURL())
	writeJSON(w, http.StatusCreated, response)
}

// Get handles GET /api/v1/tweets/{id}.
func (h *TweetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// A malformed ID cannot name a tweet; skip the DB round-trip.
	if err := middleware.ValidateID(id); err != nil {
		h.writeError(w, http.StatusNotFound, "TWEET_NOT_FOUND", "Tweet not found")
		return
	}

	actor := getAuthContext(r.Context()).Actor()

	tweet, err := h.svc.GetTweet(r.Context(), actor, id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	response := dto.ToTweetResponse(tweet, h.svc.BaseURL())
	writeJSON(w, http.StatusOK, response)
}

// List handles GET /api/v1/tweets.
func (h *TweetHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := getAuthContext(r.Context()).Actor()
	query := r.URL.Query()

	limit := 20
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	input := service.ListTweetsInput{
		AuthorID: query.Get("author_id"),
		Cursor:   query.Get("cursor"),
		Limit:    limit,
	}

	// Parse date filters
	if after := query.Get("created_after"); after != "" {
		if t, err := time.Parse(time.RFC3339, after); err == nil {
			input.CreatedAfter = &t
		}
	}
	if before := query.Get("created_before"); before != "" {
		if t, err := time.Parse(time.RFC3339, before); err == nil {
			input.CreatedBefore = &t
		}
	}

	result, err := h.svc.ListTweets(r.Context(), actor, input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	response := dto.ToTweetListResponse(result.Tweets, h.svc.BaseURL(), result.NextCursor, result.HasMore)
	writeJSON(w, http.StatusOK, response)
}

// Update handles PATCH /api/v1/tweets/{id}.
func (h *TweetHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		h.writeError(w, http.StatusNotFound, "TWEET_NOT_FOUND", "Tweet not found")
		return
	}

	actor := getAuthContext(r.Context()).Actor()
	if actor == nil {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req dto.UpdateTweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if req.Text != nil {
		if err := middleware.ValidateTweetText(*req.Text); err != nil {
			h.writeTextValidationError(w, err)
			return
		}
	}

	input := service.UpdateTweetInput{
		Text:   req.Text,
		Hidden: req.Hidden,
	}

	tweet, err := h.svc.UpdateTweet(r.Context(), actor, id, input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("tweet_updated",
		"tweet_id", tweet.ID,
		"author_id", tweet.AuthorID,
		"hidden", tweet.Hidden,
	)

	// Hiding a previously visible tweet is its own event.
	if req.Hidden != nil && *req.Hidden && tweet.Hidden {
		h.notifyWebhooks(model.EventTypeTweetHidden, tweet)
	}

	response := dto.ToTweetResponse(tweet, h.svc.BaseURL())
	writeJSON(w, http.StatusOK, response)
}

// Delete handles DELETE /api/v1/tweets/{id}.
func (h *TweetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		h.writeError(w, http.StatusNotFound, "TWEET_NOT_FOUND", "Tweet not found")
		return
	}

	actor := getAuthContext(r.Context()).Actor()
	if actor == nil {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	tweet, err := h.svc.DeleteTweet(r.Context(), actor, id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("tweet_deleted", "tweet_id", id, "author_id", tweet.AuthorID)

	h.notifyWebhooks(model.EventTypeTweetDeleted, tweet)

	w.WriteHeader(http.StatusNoContent)
}

// notifyWebhooks fans a tweet event out to the author's webhook endpoints.
// Failures are logged; the API response does not depend on queueing.
func (h *TweetHandler) notifyWebhooks(eventType model.EventType, tweet *model.Tweet) {
	if h.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.publisher.PublishTweetEvent(ctx, eventType, tweet); err != nil {
		h.logger.Error("webhook_publish_failed",
			"event_type", string(eventType),
			"tweet_id", tweet.ID,
			"error", err,
		)
	}
}

// handleServiceError maps service errors to HTTP responses.
func (h *TweetHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrTweetNotFound):
		h.writeError(w, http.StatusNotFound, "TWEET_NOT_FOUND", "Tweet not found")
	case errors.Is(err, service.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not allowed to perform this action")
	case errors.Is(err, changeset.ErrTextRequired):
		h.writeError(w, http.StatusBadRequest, "TEXT_REQUIRED", "Tweet text is required")
	case errors.Is(err, changeset.ErrTextTooLong):
		h.writeError(w, http.StatusUnprocessableEntity, "TEXT_TOO_LONG", "Tweet text exceeds maximum length")
	case errors.Is(err, changeset.ErrAuthorRequired):
		h.writeError(w, http.StatusBadRequest, "AUTHOR_REQUIRED", "Tweet author is required")
	case errors.Is(err, service.ErrNoChanges):
		h.writeError(w, http.StatusBadRequest, "NO_CHANGES", "No changes to apply")
	case errors.Is(err, repository.ErrInvalidCursor):
		h.writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid pagination cursor")
	default:
		h.logger.Error("internal_error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// writeTextValidationError maps tweet text validation failures caught at
// the edge, using the same codes the changeset pipeline maps to.
func (h *TweetHandler) writeTextValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, middleware.ErrTweetTextEmpty):
		h.writeError(w, http.StatusBadRequest, "TEXT_REQUIRED", "Tweet text is required")
	case errors.Is(err, middleware.ErrTweetTextTooLong):
		h.writeError(w, http.StatusUnprocessableEntity, "TEXT_TOO_LONG", "Tweet text exceeds maximum length")
	default:
		h.writeError(w, http.StatusBadRequest, "TEXT_INVALID", "Tweet text contains invalid characters")
	}
}

// writeError writes an error response.
func (h *TweetHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
