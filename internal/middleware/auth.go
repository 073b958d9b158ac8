package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chirp/chirp/internal/auth"
	"github.com/chirp/chirp/internal/cache"
	"github.com/chirp/chirp/internal/model"
	"github.com/chirp/chirp/internal/repository"
)

// minAuthDuration is the minimum time spent on auth so response timing
// does not reveal whether a key prefix exists.
const minAuthDuration = 200 * time.Millisecond

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger     *slog.Logger
	Repository *repository.Repository
	Cache      *cache.Cache
}

// Auth authenticates API requests. It extracts the API key from the
// request, verifies it against candidate hashes sharing the key's
// prefix, and injects an AuthContext carrying the resolved user and
// admin flag into the request context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			// Consistent timing regardless of outcome.
			defer func() {
				elapsed := time.Since(startTime)
				if elapsed < minAuthDuration {
					time.Sleep(minAuthDuration - elapsed)
				}
			}()

			key := extractAPIKey(r)
			if key == "" {
				logAuthFailure(cfg.Logger, r, "missing_key")
				writeAuthError(w)
				return
			}

			parsed, err := auth.ParseAPIKey(key)
			if err != nil {
				logAuthFailure(cfg.Logger, r, "invalid_format")
				writeAuthError(w)
				return
			}

			// Cache first; the cached context already carries the
			// admin flag so no DB round-trip is needed.
			cacheKey := auth.QuickHash(key)
			authCtx, _ := cfg.Cache.GetAuthContext(r.Context(), cacheKey)
			if authCtx != nil {
				logAuthSuccess(cfg.Logger, r, authCtx, true)
				next.ServeHTTP(w, r.WithContext(auth.ContextWithAuth(r.Context(), authCtx)))
				return
			}

			candidates, err := cfg.Repository.GetAuthCandidatesByPrefix(r.Context(), parsed.Prefix)
			if err != nil {
				cfg.Logger.Error("database error during auth",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			// Verify against each candidate, prefixes can collide.
			var matched *repository.AuthCandidate
			for _, c := range candidates {
				match, err := auth.VerifySecret(key, c.Key.KeyHash)
				if err != nil {
					continue
				}
				if match {
					matched = c
					break
				}
			}

			if matched == nil {
				logAuthFailure(cfg.Logger, r, "invalid_key")
				writeAuthError(w)
				return
			}

			authCtx = &model.AuthContext{
				KeyID:         matched.Key.ID,
				KeyPrefix:     matched.Key.KeyPrefix,
				UserID:        matched.Key.UserID,
				ActorIsAdmin:  matched.ActorIsAdmin,
				Scopes:        matched.Key.Scopes,
				RateLimitTier: matched.Key.RateLimitTier,
			}

			_ = cfg.Cache.SetAuthContext(r.Context(), cacheKey, authCtx)

			// last_used_at is advisory; update off the request path.
			keyID := matched.Key.ID
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = cfg.Repository.UpdateAPIKeyLastUsed(ctx, keyID)
			}()

			logAuthSuccess(cfg.Logger, r, authCtx, false)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithAuth(r.Context(), authCtx)))
		})
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

func logAuthSuccess(logger *slog.Logger, r *http.Request, authCtx *model.AuthContext, cacheHit bool) {
	logger.Info("authentication successful",
		slog.String("key_id", authCtx.KeyID),
		slog.String("key_prefix", authCtx.KeyPrefix),
		slog.String("user_id", authCtx.UserID),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.Bool("cache_hit", cacheHit),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// extractAPIKey reads the key from "Authorization: Bearer <key>" or
// the X-API-Key header.
func extractAPIKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// writeAuthError writes a 401 with the same message for every failure
// mode to prevent key enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid or missing API key"}}`))
}
