package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chirp/chirp/internal/model"
)

// Cache key prefixes and TTLs.
const (
	tweetKeyPrefix    = "tweet:"
	negCacheKeySuffix = ":neg"
	viewsKeyPrefix    = "views:"

	// DefaultTweetTTL is the TTL for cached tweet data.
	DefaultTweetTTL = 24 * time.Hour

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// GetTweet retrieves a tweet from cache by ID.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetTweet(ctx context.Context, id string) (*model.CachedTweet, error) {
	key := tweetKeyPrefix + id

	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	cached := &model.CachedTweet{
		Text:      result["text"],
		Hidden:    result["hidden"],
		AuthorID:  result["author_id"],
		DeletedAt: result["deleted_at"],
		UpdatedAt: result["updated_at"],
	}

	return cached, nil
}

// SetTweet stores a tweet in cache.
func (c *Cache) SetTweet(ctx context.Context, tweet *model.Tweet) error {
	key := tweetKeyPrefix + tweet.ID
	cached := tweet.ToCachedTweet()

	fields := map[string]any{
		"text":       cached.Text,
		"hidden":     cached.Hidden,
		"author_id":  cached.AuthorID,
		"updated_at": cached.UpdatedAt,
	}

	// Only set optional fields if they have values
	if cached.DeletedAt != "" {
		fields["deleted_at"] = cached.DeletedAt
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, DefaultTweetTTL)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to cache tweet: %w", err)
	}

	// Remove negative cache if exists
	c.client.Del(ctx, key+negCacheKeySuffix)

	return nil
}

// DeleteTweet removes a tweet from cache.
func (c *Cache) DeleteTweet(ctx context.Context, id string) error {
	key := tweetKeyPrefix + id

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+negCacheKeySuffix)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete tweet from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a tweet ID is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, id string) (bool, error) {
	key := tweetKeyPrefix + id + negCacheKeySuffix

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a tweet ID as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, id string) error {
	key := tweetKeyPrefix + id + negCacheKeySuffix

	err := c.client.SetEx(ctx, key, "", NegativeCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}

// IncrementViews increments the view counter in Redis.
// This is fire-and-forget for the permalink path.
func (c *Cache) IncrementViews(ctx context.Context, id string) error {
	key := viewsKeyPrefix + id

	err := c.client.Incr(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}

	return nil
}

// GetAndResetViews gets the current view count and resets it.
// Used by the background job to flush to PostgreSQL.
func (c *Cache) GetAndResetViews(ctx context.Context, id string) (int64, error) {
	key := viewsKeyPrefix + id

	result, err := c.client.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get and reset views: %w", err)
	}

	count, err := strconv.ParseInt(result, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse view count: %w", err)
	}

	return count, nil
}

// ScanViewKeys scans for all view counter keys.
// Used by the background job to find which tweets have pending view updates.
func (c *Cache) ScanViewKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		var scanKeys []string
		var err error

		scanKeys, cursor, err = c.client.Scan(ctx, cursor, viewsKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan view keys: %w", err)
		}

		keys = append(keys, scanKeys...)

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// ExtractTweetIDFromViewKey extracts the tweet ID from a view counter key.
func ExtractTweetIDFromViewKey(key string) string {
	if len(key) > len(viewsKeyPrefix) {
		return key[len(viewsKeyPrefix):]
	}
	return ""
}
