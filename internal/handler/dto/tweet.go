// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/chirp/chirp/internal/model"
)

// CreateTweetRequest represents the request body for posting a tweet.
type CreateTweetRequest struct {
	Text   string `json:"text"`
	Hidden *bool  `json:"hidden,omitempty"`
}

// UpdateTweetRequest represents the request body for editing a tweet.
type UpdateTweetRequest struct {
	Text   *string `json:"text,omitempty"`
	Hidden *bool   `json:"hidden,omitempty"`
}

// TweetResponse represents a tweet in API responses.
type TweetResponse struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	TextLength   int       `json:"text_length"`
	Hidden       bool      `json:"hidden"`
	Status       string    `json:"status"`
	AuthorID     string    `json:"author_id"`
	PermalinkURL string    `json:"permalink_url"`
	ViewCount    int64     `json:"view_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TweetListResponse represents a paginated list of tweets.
type TweetListResponse struct {
	Data       []TweetResponse `json:"data"`
	Pagination *Pagination     `json:"pagination"`
}

// Pagination provides cursor-based pagination info.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToTweetResponse converts a Tweet model to TweetResponse DTO.
func ToTweetResponse(tweet *model.Tweet, baseURL string) *TweetResponse {
	return &TweetResponse{
		ID:           tweet.ID,
		Text:         tweet.Text,
		TextLength:   tweet.TextLength(),
		Hidden:       tweet.Hidden,
		Status:       string(tweet.Status()),
		AuthorID:     tweet.AuthorID,
		PermalinkURL: baseURL + "/t/" + tweet.ID,
		ViewCount:    tweet.ViewCount,
		CreatedAt:    tweet.CreatedAt,
		UpdatedAt:    tweet.UpdatedAt,
	}
}

// ToTweetListResponse converts a slice of Tweet models to TweetListResponse.
func ToTweetListResponse(tweets []*model.Tweet, baseURL string, nextCursor string, hasMore bool) *TweetListResponse {
	responses := make([]TweetResponse, len(tweets))
	for i, tweet := range tweets {
		responses[i] = *ToTweetResponse(tweet, baseURL)
	}
	return &TweetListResponse{
		Data: responses,
		Pagination: &Pagination{
			NextCursor: nextCursor,
			HasMore:    hasMore,
		},
	}
}
