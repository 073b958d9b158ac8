package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/chirp/chirp/internal/cache"
	"github.com/chirp/chirp/internal/handler/dto"
	"github.com/chirp/chirp/internal/metrics"
	"github.com/chirp/chirp/internal/repository"
	"github.com/chirp/chirp/internal/service"
	"github.com/chirp/chirp/internal/testutil"
)

func TestPermalink_CacheMissThenHit(t *testing.T) {
	ctx, env := newPermalinkTestEnv(t)

	author := testutil.NewTestUser(t)
	if err := env.repo.CreateUser(ctx, author); err != nil {
		t.Fatalf("create user: %v", err)
	}

	tweet, err := env.svc.CreateTweet(ctx, author, service.CreateTweetInput{
		Text: "permalink cache test",
	})
	if err != nil {
		t.Fatalf("create tweet: %v", err)
	}

	// CreateTweet warms the cache; clear it to exercise the miss path.
	if err := env.cache.DeleteTweet(ctx, tweet.ID); err != nil {
		t.Fatalf("clear cache: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/t/"+tweet.ID, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var payload PermalinkResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.ID != tweet.ID || payload.Text != tweet.Text {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	snap := env.recorder.Snapshot()
	if snap.PermalinkCacheMisses != 1 || snap.PermalinkCacheHits != 0 {
		t.Fatalf("unexpected cache counters: hits=%d misses=%d", snap.PermalinkCacheHits, snap.PermalinkCacheMisses)
	}

	if _, err := env.cache.GetTweet(ctx, tweet.ID); err != nil {
		t.Fatalf("expected cached tweet, got %v", err)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/t/"+tweet.ID, nil)
	rec2 := httptest.NewRecorder()
	env.router.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Fatalf("expected status 200 on second read, got %d", rec2.Code)
	}

	snap2 := env.recorder.Snapshot()
	if snap2.PermalinkCacheHits != 1 || snap2.PermalinkCacheMisses != 1 {
		t.Fatalf("unexpected cache counters after hit: hits=%d misses=%d", snap2.PermalinkCacheHits, snap2.PermalinkCacheMisses)
	}
}

func TestPermalink_HiddenTweetNotFound(t *testing.T) {
	ctx, env := newPermalinkTestEnv(t)

	author := testutil.NewTestUser(t)
	if err := env.repo.CreateUser(ctx, author); err != nil {
		t.Fatalf("create user: %v", err)
	}

	hidden := true
	tweet, err := env.svc.CreateTweet(ctx, author, service.CreateTweetInput{
		Text:   "this one is private",
		Hidden: &hidden,
	})
	if err != nil {
		t.Fatalf("create hidden tweet: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/t/"+tweet.ID, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for hidden tweet, got %d", rec.Code)
	}

	var payload dto.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "TWEET_NOT_FOUND" {
		t.Fatalf("expected TWEET_NOT_FOUND, got %q", payload.Code)
	}
}

func TestPermalink_DeletedTweetNotFound(t *testing.T) {
	ctx, env := newPermalinkTestEnv(t)

	author := testutil.NewTestUser(t)
	if err := env.repo.CreateUser(ctx, author); err != nil {
		t.Fatalf("create user: %v", err)
	}

	tweet, err := env.svc.CreateTweet(ctx, author, service.CreateTweetInput{
		Text: "soon to be deleted",
	})
	if err != nil {
		t.Fatalf("create tweet: %v", err)
	}

	if _, err := env.svc.DeleteTweet(ctx, author, tweet.ID); err != nil {
		t.Fatalf("delete tweet: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/t/"+tweet.ID, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for deleted tweet, got %d", rec.Code)
	}

	if _, err := env.cache.GetTweet(ctx, tweet.ID); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("expected cache miss for deleted tweet, got %v", err)
	}
}

type permalinkTestEnv struct {
	repo     *repository.Repository
	cache    *cache.Cache
	recorder *metrics.InMemoryRecorder
	svc      *service.TweetService
	router   *chi.Mux
}

func newPermalinkTestEnv(t *testing.T) (context.Context, *permalinkTestEnv) {
	t.Helper()

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	repo, err := repository.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetUsersSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset users schema: %v", err)
	}
	if err := testutil.ResetTweetsSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset tweets schema: %v", err)
	}

	cacheClient, err := cache.New(ctx, redisURL)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() {
		_ = cacheClient.Close()
	})

	if err := testutil.FlushRedis(ctx, cacheClient.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	recorder := metrics.NewInMemory()
	svc := service.NewTweetService(repo, cacheClient, "http://localhost:8080", recorder)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	permalinkHandler := NewPermalinkHandler(svc, nil, logger)

	router := chi.NewRouter()
	router.Get("/t/{id}", permalinkHandler.Resolve)

	return ctx, &permalinkTestEnv{
		repo:     repo,
		cache:    cacheClient,
		recorder: recorder,
		svc:      svc,
		router:   router,
	}
}
