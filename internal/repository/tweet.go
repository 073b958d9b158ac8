package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chirp/chirp/internal/model"
)

// Common errors for tweet repository operations.
var (
	ErrTweetNotFound = errors.New("tweet not found")
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)

// TweetFilter defines filters for listing tweets.
type TweetFilter struct {
	AuthorID      string
	IncludeHidden bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// PaginationCursor represents decoded cursor for pagination.
type PaginationCursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateTweet inserts a new tweet into the database.
func (r *Repository) CreateTweet(ctx context.Context, tweet *model.Tweet) error {
	query := `
		INSERT INTO tweets (id, text, hidden, author_id, view_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		tweet.ID,
		tweet.Text,
		tweet.Hidden,
		tweet.AuthorID,
		tweet.ViewCount,
		tweet.CreatedAt,
		tweet.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create tweet: %w", err)
	}

	return nil
}

// GetTweetByID retrieves a tweet by its ID.
// This is the hot path for permalink reads.
func (r *Repository) GetTweetByID(ctx context.Context, id string) (*model.Tweet, error) {
	query := `
		SELECT id, text, hidden, author_id, view_count, deleted_at, created_at, updated_at
		FROM tweets
		WHERE id = $1 AND deleted_at IS NULL
	`

	tweet, err := scanTweet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTweetNotFound
		}
		return nil, fmt.Errorf("failed to get tweet by ID: %w", err)
	}

	return tweet, nil
}

// ListTweets retrieves a paginated list of tweets, newest first.
// Hidden tweets are excluded unless the filter allows them.
func (r *Repository) ListTweets(ctx context.Context, filter TweetFilter, cursor string, limit int) ([]*model.Tweet, string, error) {
	// Decode cursor if provided
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		cursorData, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
	}

	// Build query with filters
	query := `
		SELECT id, text, hidden, author_id, view_count, deleted_at, created_at, updated_at
		FROM tweets
		WHERE deleted_at IS NULL
	`
	var args []any
	argIndex := 1

	if filter.AuthorID != "" {
		query += fmt.Sprintf(" AND author_id = $%d", argIndex)
		args = append(args, filter.AuthorID)
		argIndex++
	}

	if !filter.IncludeHidden {
		query += " AND hidden = FALSE"
	}

	if cursorData != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, cursorData.CreatedAt, cursorData.ID)
		argIndex += 2
	}

	if filter.CreatedAfter != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIndex)
		args = append(args, *filter.CreatedAfter)
		argIndex++
	}

	if filter.CreatedBefore != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIndex)
		args = append(args, *filter.CreatedBefore)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // Fetch one extra to determine hasMore

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list tweets: %w", err)
	}
	defer rows.Close()

	var tweets []*model.Tweet
	for rows.Next() {
		tweet, err := scanTweetFromRows(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan tweet: %w", err)
		}
		tweets = append(tweets, tweet)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating tweets: %w", err)
	}

	// Determine if there are more results
	var nextCursor string
	if len(tweets) > limit {
		tweets = tweets[:limit] // Remove extra row
		last := tweets[len(tweets)-1]
		nextCursor = encodeCursor(&PaginationCursor{
			ID:        last.ID,
			CreatedAt: last.CreatedAt,
		})
	}

	return tweets, nextCursor, nil
}

// UpdateTweet updates a tweet's mutable fields (text, hidden).
func (r *Repository) UpdateTweet(ctx context.Context, tweet *model.Tweet) error {
	query := `
		UPDATE tweets
		SET text = $2, hidden = $3, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query,
		tweet.ID,
		tweet.Text,
		tweet.Hidden,
		tweet.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update tweet: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrTweetNotFound
	}

	return nil
}

// DeleteTweet performs a soft delete on a tweet.
func (r *Repository) DeleteTweet(ctx context.Context, id string) error {
	query := `
		UPDATE tweets
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete tweet: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrTweetNotFound
	}

	return nil
}

// IncrementViewCount adds to the view counter for a tweet.
// This is called from the analytics worker, not the permalink path.
func (r *Repository) IncrementViewCount(ctx context.Context, id string, count int64) error {
	query := `
		UPDATE tweets
		SET view_count = view_count + $2
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, id, count)
	if err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}

	return nil
}

// SearchTweetsByText finds tweets whose text contains the given fragment.
// Includes hidden and deleted tweets; intended for admin lookup only.
func (r *Repository) SearchTweetsByText(ctx context.Context, fragment string, limit int) ([]*model.Tweet, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, text, hidden, author_id, view_count, deleted_at, created_at, updated_at
		FROM tweets
		WHERE text ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, fragment, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search tweets: %w", err)
	}
	defer rows.Close()

	var tweets []*model.Tweet
	for rows.Next() {
		tweet, err := scanTweetFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tweet: %w", err)
		}
		tweets = append(tweets, tweet)
	}

	return tweets, rows.Err()
}

// TweetExists checks if a tweet ID exists and is not deleted.
func (r *Repository) TweetExists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM tweets WHERE id = $1 AND deleted_at IS NULL)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check tweet existence: %w", err)
	}

	return exists, nil
}

// scanTweet scans a single row into a Tweet model.
func scanTweet(row pgx.Row) (*model.Tweet, error) {
	var tweet model.Tweet
	err := row.Scan(
		&tweet.ID,
		&tweet.Text,
		&tweet.Hidden,
		&tweet.AuthorID,
		&tweet.ViewCount,
		&tweet.DeletedAt,
		&tweet.CreatedAt,
		&tweet.UpdatedAt,
	)
	return &tweet, err
}

// scanTweetFromRows scans a row from pgx.Rows into a Tweet model.
func scanTweetFromRows(rows pgx.Rows) (*model.Tweet, error) {
	var tweet model.Tweet
	err := rows.Scan(
		&tweet.ID,
		&tweet.Text,
		&tweet.Hidden,
		&tweet.AuthorID,
		&tweet.ViewCount,
		&tweet.DeletedAt,
		&tweet.CreatedAt,
		&tweet.UpdatedAt,
	)
	return &tweet, err
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	// PostgreSQL error code 23505 is unique_violation
	return err != nil && (strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "unique"))
}

// encodeCursor encodes pagination cursor to base64.
func encodeCursor(cursor *PaginationCursor) string {
	data, _ := json.Marshal(cursor)
	return base64.URLEncoding.EncodeToString(data)
}

// decodeCursor decodes base64 pagination cursor.
func decodeCursor(s string) (*PaginationCursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	var cursor PaginationCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}
