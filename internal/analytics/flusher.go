package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/chirp/chirp/internal/cache"
	"github.com/chirp/chirp/internal/repository"
)

// DefaultFlushInterval is how often buffered view counters move to Postgres.
const DefaultFlushInterval = 30 * time.Second

// ViewCountFlusher periodically drains the per-tweet view counters
// buffered in Redis into the tweets table. Counters accumulate in Redis
// on the permalink hot path so a view never costs a database write.
type ViewCountFlusher struct {
	cache    *cache.Cache
	repo     *repository.Repository
	logger   *slog.Logger
	interval time.Duration
}

// NewViewCountFlusher creates a flusher with the default interval.
func NewViewCountFlusher(c *cache.Cache, repo *repository.Repository, logger *slog.Logger) *ViewCountFlusher {
	return &ViewCountFlusher{
		cache:    c,
		repo:     repo,
		logger:   logger.With("component", "analytics.flusher"),
		interval: DefaultFlushInterval,
	}
}

// SetInterval overrides the default flush interval.
func (f *ViewCountFlusher) SetInterval(interval time.Duration) {
	if interval > 0 {
		f.interval = interval
	}
}

// Run flushes on a fixed interval until the context is cancelled.
// A final flush runs on shutdown so counters are not stranded in Redis.
func (f *ViewCountFlusher) Run(ctx context.Context) error {
	f.logger.Info("view count flusher started", "interval", f.interval)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			f.FlushOnce(flushCtx)
			cancel()
			f.logger.Info("view count flusher stopping")
			return ctx.Err()
		case <-ticker.C:
			f.FlushOnce(ctx)
		}
	}
}

// FlushOnce moves every buffered counter to Postgres. Each counter is
// read destructively (GETDEL), so a failed DB write logs the loss
// instead of double counting on the next pass.
func (f *ViewCountFlusher) FlushOnce(ctx context.Context) {
	keys, err := f.cache.ScanViewKeys(ctx)
	if err != nil {
		f.logger.Warn("failed to scan view keys", "error", err)
		return
	}

	var flushed int
	for _, key := range keys {
		tweetID := cache.ExtractTweetIDFromViewKey(key)
		if tweetID == "" {
			continue
		}

		count, err := f.cache.GetAndResetViews(ctx, tweetID)
		if err != nil {
			f.logger.Warn("failed to reset view counter", "tweet_id", tweetID, "error", err)
			continue
		}
		if count == 0 {
			continue
		}

		if err := f.repo.IncrementViewCount(ctx, tweetID, count); err != nil {
			f.logger.Error("failed to persist view count, views lost",
				"tweet_id", tweetID,
				"count", count,
				"error", err,
			)
			continue
		}
		flushed++
	}

	if flushed > 0 {
		f.logger.Debug("view counters flushed", "tweets", flushed)
	}
}
