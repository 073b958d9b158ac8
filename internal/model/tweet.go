// Package model defines domain entities for the application.
package model

import (
	"strconv"
	"time"
	"unicode/utf8"
)

// MaxTweetTextLength is the maximum tweet text length in Unicode code points.
const MaxTweetTextLength = 144

// TweetStatus represents the computed visibility status of a tweet.
type TweetStatus string

const (
	TweetStatusVisible TweetStatus = "visible"
	TweetStatusHidden  TweetStatus = "hidden"
	TweetStatusDeleted TweetStatus = "deleted"
)

// Tweet represents a single post authored by a user.
type Tweet struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Hidden    bool       `json:"hidden"`
	AuthorID  string     `json:"author_id"`
	ViewCount int64      `json:"view_count"`
	DeletedAt *time.Time `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TextLength computes the derived length of the tweet text.
// Counted in Unicode code points, not bytes.
func (t *Tweet) TextLength() int {
	return utf8.RuneCountInString(t.Text)
}

// Status computes the current status of the tweet.
func (t *Tweet) Status() TweetStatus {
	if t.DeletedAt != nil {
		return TweetStatusDeleted
	}
	if t.Hidden {
		return TweetStatusHidden
	}
	return TweetStatusVisible
}

// IsVisible returns true if the tweet can be read by non-authors.
func (t *Tweet) IsVisible() bool {
	return t.Status() == TweetStatusVisible
}

// CachedTweet represents tweet data stored in Redis cache.
// Uses string types for Redis hash compatibility.
type CachedTweet struct {
	Text      string `redis:"text"`
	Hidden    string `redis:"hidden"` // "1" or "0"
	AuthorID  string `redis:"author_id"`
	DeletedAt string `redis:"deleted_at"` // Unix timestamp or empty
	UpdatedAt string `redis:"updated_at"` // Unix timestamp
}

// ToTweet converts CachedTweet to the Tweet domain model.
func (c *CachedTweet) ToTweet(id string) *Tweet {
	tweet := &Tweet{
		ID:       id,
		Text:     c.Text,
		Hidden:   c.Hidden == "1",
		AuthorID: c.AuthorID,
	}

	if c.DeletedAt != "" {
		if ts, err := strconv.ParseInt(c.DeletedAt, 10, 64); err == nil {
			t := time.Unix(ts, 0)
			tweet.DeletedAt = &t
		}
	}

	if c.UpdatedAt != "" {
		if ts, err := strconv.ParseInt(c.UpdatedAt, 10, 64); err == nil {
			tweet.UpdatedAt = time.Unix(ts, 0)
		}
	}

	return tweet
}

// ToCachedTweet converts Tweet domain model to CachedTweet.
func (t *Tweet) ToCachedTweet() *CachedTweet {
	cached := &CachedTweet{
		Text:      t.Text,
		Hidden:    boolToString(t.Hidden),
		AuthorID:  t.AuthorID,
		UpdatedAt: strconv.FormatInt(t.UpdatedAt.Unix(), 10),
	}

	if t.DeletedAt != nil {
		cached.DeletedAt = strconv.FormatInt(t.DeletedAt.Unix(), 10)
	}

	return cached
}

// boolToString converts boolean to "1" or "0".
func boolToString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
