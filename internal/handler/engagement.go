package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chirp/chirp/internal/handler/dto"
	"github.com/chirp/chirp/internal/middleware"
	"github.com/chirp/chirp/internal/model"
	"github.com/chirp/chirp/internal/repository"
	"github.com/chirp/chirp/internal/service"
)

// EngagementHandler serves view analytics for tweets.
type EngagementHandler struct {
	viewRepo *repository.ViewEventRepository
	tweetSvc *service.TweetService
	logger   *slog.Logger
}

// NewEngagementHandler creates a new EngagementHandler.
func NewEngagementHandler(viewRepo *repository.ViewEventRepository, tweetSvc *service.TweetService, logger *slog.Logger) *EngagementHandler {
	return &EngagementHandler{
		viewRepo: viewRepo,
		tweetSvc: tweetSvc,
		logger:   logger.With("component", "handler.engagement"),
	}
}

// GetTweetEngagement handles GET /api/v1/tweets/{id}/engagement.
// The tweet must be readable by the actor; hidden tweets expose their
// stats only to the author or an admin.
func (h *EngagementHandler) GetTweetEngagement(w http.ResponseWriter, r *http.Request) {
	tweetID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(tweetID); err != nil {
		h.writeError(w, http.StatusNotFound, "TWEET_NOT_FOUND", "Tweet not found")
		return
	}

	actor := getAuthContext(r.Context()).Actor()
	if _, err := h.tweetSvc.GetTweet(r.Context(), actor, tweetID); err != nil {
		h.writeError(w, http.StatusNotFound, "TWEET_NOT_FOUND", "Tweet not found")
		return
	}

	from, to := h.parseTimeRange(r)
	includes := h.parseIncludes(r)

	summary, err := h.viewRepo.GetEngagementSummary(r.Context(), tweetID, from, to)
	if err != nil {
		h.logger.Error("failed to get engagement summary", "tweet_id", tweetID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch engagement stats")
		return
	}

	response := &model.EngagementResponse{
		TweetID:     tweetID,
		Summary:     *summary,
		GeneratedAt: time.Now().UTC(),
	}
	response.Period.From = from.Format("2006-01-02")
	response.Period.To = to.Format("2006-01-02")

	if includes["daily"] {
		dailyStats, err := h.viewRepo.GetDailyStats(r.Context(), tweetID, from, to)
		if err != nil {
			h.logger.Error("failed to get daily stats", "tweet_id", tweetID, "error", err)
			h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch engagement stats")
			return
		}
		for _, stat := range dailyStats {
			response.Breakdown.Daily = append(response.Breakdown.Daily, model.DailyViewBreakdown{
				Date:           stat.Date.Format("2006-01-02"),
				TotalViews:     stat.TotalViews,
				UniqueVisitors: stat.UniqueVisitors,
			})
		}
	}

	if includes["referrers"] {
		referrers, err := h.viewRepo.GetTopReferrers(r.Context(), tweetID, from, to, 10)
		if err != nil {
			h.logger.Error("failed to get top referrers", "tweet_id", tweetID, "error", err)
		} else {
			response.Breakdown.Referrers = referrers
		}
	}

	if includes["countries"] {
		countries, err := h.viewRepo.GetTopCountries(r.Context(), tweetID, from, to, 10)
		if err != nil {
			h.logger.Error("failed to get top countries", "tweet_id", tweetID, "error", err)
		} else {
			response.Breakdown.Countries = countries
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// parseTimeRange extracts from/to dates from query params.
func (h *EngagementHandler) parseTimeRange(r *http.Request) (time.Time, time.Time) {
	now := time.Now().UTC()
	defaultFrom := now.AddDate(0, 0, -7) // 7 days ago
	defaultTo := now

	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	from := defaultFrom
	to := defaultTo

	if fromStr != "" {
		if parsed, err := time.Parse("2006-01-02", fromStr); err == nil {
			from = parsed
		}
	}

	if toStr != "" {
		if parsed, err := time.Parse("2006-01-02", toStr); err == nil {
			to = parsed
		}
	}

	// Cap to 90 days max
	if to.Sub(from) > 90*24*time.Hour {
		from = to.AddDate(0, 0, -90)
	}

	// Don't allow future dates
	if to.After(now) {
		to = now
	}

	return from, to
}

// parseIncludes extracts included breakdown types from query.
func (h *EngagementHandler) parseIncludes(r *http.Request) map[string]bool {
	includes := make(map[string]bool)
	includeStr := r.URL.Query().Get("include")

	if includeStr == "" {
		// Default: include all
		includes["referrers"] = true
		includes["countries"] = true
		includes["daily"] = true
		return includes
	}

	for _, inc := range strings.Split(includeStr, ",") {
		if inc = strings.TrimSpace(inc); inc != "" {
			includes[inc] = true
		}
	}

	return includes
}

// writeError writes a JSON error response.
func (h *EngagementHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
