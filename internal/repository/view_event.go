package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chirp/chirp/internal/model"
)

// ViewEventRepository provides database access for permalink view events.
type ViewEventRepository struct {
	repo *Repository
}

// NewViewEventRepository creates a new ViewEventRepository.
func NewViewEventRepository(repo *Repository) *ViewEventRepository {
	return &ViewEventRepository{repo: repo}
}

// BulkInsert inserts multiple view events with idempotency via ON CONFLICT DO NOTHING.
func (r *ViewEventRepository) BulkInsert(ctx context.Context, events []*model.ViewEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO view_events (
			id, event_id, tweet_id, referrer, user_agent,
			visitor_hash, country_code, viewed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, event := range events {
		batch.Queue(query,
			event.ID,
			event.EventID,
			event.TweetID,
			nullableString(event.Referrer),
			nullableString(event.UserAgent),
			event.VisitorHash,
			nullableString(event.CountryCode),
			event.ViewedAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// UpdateDailyStats recomputes daily_tweet_stats rows touched by the given batch.
func (r *ViewEventRepository) UpdateDailyStats(ctx context.Context, events []*model.ViewEvent) error {
	if len(events) == 0 {
		return nil
	}

	keys := uniqueDailyKeys(events)
	for _, key := range keys {
		acc, err := r.recalculateDailyStat(ctx, key.tweetID, key.date)
		if err != nil {
			return fmt.Errorf("recalculate daily stat %s:%s: %w", key.tweetID, key.date.Format("2006-01-02"), err)
		}
		if err := r.upsertDailyStat(ctx, acc); err != nil {
			return fmt.Errorf("upsert daily stat %s:%s: %w", key.tweetID, key.date.Format("2006-01-02"), err)
		}
	}

	return nil
}

// dailyStatsAccumulator accumulates stats for a single tweet/date combination.
type dailyStatsAccumulator struct {
	tweetID        string
	date           time.Time
	totalViews     int64
	uniqueVisitors int64
	referrers      map[string]int64
	countries      map[string]int64
	visitorSeen    map[string]bool
}

type dailyStatsKey struct {
	tweetID string
	date    time.Time
}

func uniqueDailyKeys(events []*model.ViewEvent) []dailyStatsKey {
	seen := make(map[string]dailyStatsKey)
	for _, event := range events {
		day := event.ViewedAt.UTC().Truncate(24 * time.Hour)
		key := fmt.Sprintf("%s:%s", event.TweetID, day.Format("2006-01-02"))
		seen[key] = dailyStatsKey{tweetID: event.TweetID, date: day}
	}

	keys := make([]dailyStatsKey, 0, len(seen))
	for _, key := range seen {
		keys = append(keys, key)
	}
	return keys
}

func (r *ViewEventRepository) recalculateDailyStat(ctx context.Context, tweetID string, date time.Time) (*dailyStatsAccumulator, error) {
	start := date.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	query := `
		SELECT COALESCE(referrer, ''), COALESCE(country_code, ''), visitor_hash
		FROM view_events
		WHERE tweet_id = $1 AND viewed_at >= $2 AND viewed_at < $3
	`

	rows, err := r.repo.pool.Query(ctx, query, tweetID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query view events: %w", err)
	}
	defer rows.Close()

	events := make([]*model.ViewEvent, 0)
	for rows.Next() {
		var referrer, country, visitorHash string
		if err := rows.Scan(&referrer, &country, &visitorHash); err != nil {
			return nil, fmt.Errorf("scan view event: %w", err)
		}
		events = append(events, &model.ViewEvent{
			Referrer:    referrer,
			CountryCode: country,
			VisitorHash: visitorHash,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate view events: %w", err)
	}

	acc := accumulateDailyStats(events)
	acc.tweetID = tweetID
	acc.date = start
	return acc, nil
}

func accumulateDailyStats(events []*model.ViewEvent) *dailyStatsAccumulator {
	acc := &dailyStatsAccumulator{
		referrers:   make(map[string]int64),
		countries:   make(map[string]int64),
		visitorSeen: make(map[string]bool),
	}

	for _, event := range events {
		acc.totalViews++

		if event.VisitorHash != "" && !acc.visitorSeen[event.VisitorHash] {
			acc.visitorSeen[event.VisitorHash] = true
			acc.uniqueVisitors++
		}

		if event.Referrer != "" {
			acc.referrers[referrerDomain(event.Referrer)]++
		} else {
			acc.referrers["(direct)"]++
		}

		if event.CountryCode != "" {
			acc.countries[event.CountryCode]++
		}
	}

	return acc
}

// upsertDailyStat inserts or updates a daily_tweet_stats row.
func (r *ViewEventRepository) upsertDailyStat(ctx context.Context, acc *dailyStatsAccumulator) error {
	referrerJSON, _ := json.Marshal(acc.referrers)
	countryJSON, _ := json.Marshal(acc.countries)
	id := fmt.Sprintf("%s:%s", acc.tweetID, acc.date.Format("2006-01-02"))

	query := `
		INSERT INTO daily_tweet_stats (
			id, tweet_id, date, total_views, unique_visitors,
			referrer_breakdown, country_breakdown, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (tweet_id, date) DO UPDATE SET
			total_views = EXCLUDED.total_views,
			unique_visitors = EXCLUDED.unique_visitors,
			referrer_breakdown = EXCLUDED.referrer_breakdown,
			country_breakdown = EXCLUDED.country_breakdown,
			updated_at = NOW()
	`

	_, err := r.repo.pool.Exec(ctx, query,
		id,
		acc.tweetID,
		acc.date,
		acc.totalViews,
		acc.uniqueVisitors,
		referrerJSON,
		countryJSON,
	)

	return err
}

// GetDailyStats retrieves daily stats for a tweet within a date range.
func (r *ViewEventRepository) GetDailyStats(ctx context.Context, tweetID string, from, to time.Time) ([]*model.DailyTweetStats, error) {
	query := `
		SELECT id, tweet_id, date, total_views, unique_visitors,
			   referrer_breakdown, country_breakdown, created_at, updated_at
		FROM daily_tweet_stats
		WHERE tweet_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC
	`

	rows, err := r.repo.pool.Query(ctx, query, tweetID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []*model.DailyTweetStats
	for rows.Next() {
		stat, err := r.scanDailyStat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

// GetEngagementSummary retrieves aggregated view stats for a tweet.
func (r *ViewEventRepository) GetEngagementSummary(ctx context.Context, tweetID string, from, to time.Time) (*model.EngagementSummary, error) {
	query := `
		SELECT
			COALESCE(SUM(total_views), 0) as total_views,
			COALESCE(SUM(unique_visitors), 0) as unique_visitors,
			COUNT(*) as days
		FROM daily_tweet_stats
		WHERE tweet_id = $1 AND date >= $2 AND date <= $3
	`

	var totalViews, uniqueVisitors int64
	var days int

	err := r.repo.pool.QueryRow(ctx, query, tweetID, from, to).Scan(&totalViews, &uniqueVisitors, &days)
	if err != nil {
		return nil, fmt.Errorf("query engagement summary: %w", err)
	}

	var avgViewsPerDay float64
	if days > 0 {
		avgViewsPerDay = float64(totalViews) / float64(days)
	}

	return &model.EngagementSummary{
		TotalViews:     totalViews,
		UniqueVisitors: uniqueVisitors,
		AvgViewsPerDay: avgViewsPerDay,
	}, nil
}

// GetTopReferrers returns the top referrer domains for a tweet.
func (r *ViewEventRepository) GetTopReferrers(ctx context.Context, tweetID string, from, to time.Time, limit int) ([]model.ReferrerBreakdown, error) {
	query := `
		SELECT key as domain, SUM(value::bigint) as views
		FROM daily_tweet_stats, jsonb_each_text(referrer_breakdown)
		WHERE tweet_id = $1 AND date >= $2 AND date <= $3
		GROUP BY key
		ORDER BY views DESC
		LIMIT $4
	`

	rows, err := r.repo.pool.Query(ctx, query, tweetID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query top referrers: %w", err)
	}
	defer rows.Close()

	var referrers []model.ReferrerBreakdown
	for rows.Next() {
		var ref model.ReferrerBreakdown
		if err := rows.Scan(&ref.Domain, &ref.Views); err != nil {
			return nil, fmt.Errorf("scan referrer: %w", err)
		}
		referrers = append(referrers, ref)
	}

	return referrers, rows.Err()
}

// GetTopCountries returns the top countries for a tweet.
func (r *ViewEventRepository) GetTopCountries(ctx context.Context, tweetID string, from, to time.Time, limit int) ([]model.CountryBreakdown, error) {
	query := `
		SELECT key as code, SUM(value::bigint) as views
		FROM daily_tweet_stats, jsonb_each_text(country_breakdown)
		WHERE tweet_id = $1 AND date >= $2 AND date <= $3
		GROUP BY key
		ORDER BY views DESC
		LIMIT $4
	`

	rows, err := r.repo.pool.Query(ctx, query, tweetID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query top countries: %w", err)
	}
	defer rows.Close()

	var countries []model.CountryBreakdown
	for rows.Next() {
		var c model.CountryBreakdown
		if err := rows.Scan(&c.Code, &c.Views); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		countries = append(countries, c)
	}

	return countries, rows.Err()
}

// scanDailyStat scans a row into DailyTweetStats.
func (r *ViewEventRepository) scanDailyStat(rows pgx.Rows) (*model.DailyTweetStats, error) {
	var stat model.DailyTweetStats
	var referrerJSON, countryJSON []byte

	err := rows.Scan(
		&stat.ID,
		&stat.TweetID,
		&stat.Date,
		&stat.TotalViews,
		&stat.UniqueVisitors,
		&referrerJSON,
		&countryJSON,
		&stat.CreatedAt,
		&stat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(referrerJSON) > 0 {
		_ = json.Unmarshal(referrerJSON, &stat.ReferrerBreakdown)
	}
	if len(countryJSON) > 0 {
		_ = json.Unmarshal(countryJSON, &stat.CountryBreakdown)
	}

	return &stat, nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// referrerDomain extracts the host from a referrer URL.
func referrerDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(unknown)"
	}
	return u.Host
}
