// Package model defines domain entities for the application.
package model

import "time"

// ViewEvent represents a single permalink view of a tweet.
type ViewEvent struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // Idempotency key (Redis stream ID)

	// Tweet reference
	TweetID  string `json:"tweet_id"`
	AuthorID string `json:"author_id,omitempty"` // Tweet author id (not persisted)

	// Request metadata
	Referrer  string `json:"referrer,omitempty"`   // Referer header (truncated 500 chars)
	UserAgent string `json:"user_agent,omitempty"` // UA string (truncated 500 chars)

	// Privacy-safe visitor identification
	VisitorHash string `json:"visitor_hash"` // SHA256(IP + UA + daily_salt)[0:16]

	// Optional geo (from CF-IPCountry header)
	CountryCode string `json:"country_code,omitempty"` // ISO 3166-1 alpha-2

	// Timestamps
	ViewedAt  time.Time `json:"viewed_at"`  // Event timestamp
	CreatedAt time.Time `json:"created_at"` // DB insertion time
}

// DailyTweetStats represents pre-aggregated daily statistics for a tweet.
type DailyTweetStats struct {
	ID      string    `json:"id"`       // Composite: tweet_id:date
	TweetID string    `json:"tweet_id"` // FK to tweets.id
	Date    time.Time `json:"date"`     // UTC date (time component zeroed)

	// Counters
	TotalViews     int64 `json:"total_views"`
	UniqueVisitors int64 `json:"unique_visitors"`

	// Breakdowns (stored as JSONB in Postgres)
	ReferrerBreakdown map[string]int64 `json:"referrer_breakdown,omitempty"`
	CountryBreakdown  map[string]int64 `json:"country_breakdown,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EngagementSummary represents aggregated view stats for API response.
type EngagementSummary struct {
	TotalViews     int64   `json:"total_views"`
	UniqueVisitors int64   `json:"unique_visitors"`
	AvgViewsPerDay float64 `json:"avg_views_per_day"`
}

// EngagementResponse represents the full engagement API response.
type EngagementResponse struct {
	TweetID string `json:"tweet_id"`
	Period  struct {
		From string `json:"from"` // ISO date
		To   string `json:"to"`   // ISO date
	} `json:"period"`
	Summary   EngagementSummary `json:"summary"`
	Breakdown struct {
		Daily     []DailyViewBreakdown `json:"daily,omitempty"`
		Referrers []ReferrerBreakdown  `json:"referrers,omitempty"`
		Countries []CountryBreakdown   `json:"countries,omitempty"`
	} `json:"breakdown"`
	GeneratedAt time.Time `json:"generated_at"`
}

// DailyViewBreakdown represents views for a single day.
type DailyViewBreakdown struct {
	Date           string `json:"date"` // ISO date
	TotalViews     int64  `json:"total_views"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// ReferrerBreakdown represents views from a referrer domain.
type ReferrerBreakdown struct {
	Domain string `json:"domain"`
	Views  int64  `json:"views"`
}

// CountryBreakdown represents views from a country.
type CountryBreakdown struct {
	Code  string `json:"code"` // ISO 3166-1 alpha-2
	Views int64  `json:"views"`
}
