//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chirp/chirp/internal/testutil"
)

// ============================================================================
// Tweet Repository Integration Tests
// ============================================================================

func TestIntegrationTweetRepository_CreateTweet(t *testing.T) {
	ctx, repo := newTweetTestEnv(t)

	author := createTestAuthor(t, ctx, repo)
	tweet := testutil.NewTestTweet(t, author.ID)

	if err := repo.CreateTweet(ctx, tweet); err != nil {
		t.Fatalf("CreateTweet failed: %v", err)
	}

	retrieved, err := repo.GetTweetByID(ctx, tweet.ID)
	if err != nil {
		t.Fatalf("GetTweetByID failed: %v", err)
	}

	if retrieved.Text != tweet.Text {
		t.Errorf("Text mismatch: got %q, want %q", retrieved.Text, tweet.Text)
	}
	if retrieved.AuthorID != author.ID {
		t.Errorf("AuthorID mismatch: got %q, want %q", retrieved.AuthorID, author.ID)
	}
	if retrieved.Hidden {
		t.Error("new tweet should not be hidden by default")
	}
	if retrieved.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestIntegrationTweetRepository_GetByID_NotFound(t *testing.T) {
	ctx, repo := newTweetTestEnv(t)

	_, err := repo.GetTweetByID(ctx, "nonexistent-id")
	if !errors.Is(err, ErrTweetNotFound) {
		t.Errorf("Expected ErrTweetNotFound, got: %v", err)
	}
}

func TestIntegrationTweetRepository_UpdateTweet(t *testing.T) {
	ctx, repo := newTweetTestEnv(t)

	author := createTestAuthor(t, ctx, repo)
	tweet := testutil.NewTestTweet(t, author.ID)

	if err := repo.CreateTweet(ctx, tweet); err != nil {
		t.Fatalf("CreateTweet failed: %v", err)
	}

	tweet.Text = "edited text"
	tweet.Hidden = true
	tweet.UpdatedAt = time.Now().UTC()

	if err := repo.UpdateTweet(ctx, tweet); err != nil {
		t.Fatalf("UpdateTweet failed: %v", err)
	}

	retrieved, err := repo.GetTweetByID(ctx, tweet.ID)
	if err != nil {
		t.Fatalf("GetTweetByID failed: %v", err)
	}

	if retrieved.Text != "edited text" {
		t.Errorf("Text not updated: got %q", retrieved.Text)
	}
	if !retrieved.Hidden {
		t.Error("Hidden not updated")
	}
	if !retrieved.UpdatedAt.After(retrieved.CreatedAt) {
		t.Error("UpdatedAt should be after CreatedAt")
	}
}

func TestIntegrationTweetRepository_UpdateTweet_NotFound(t *testing.T) {
	ctx, repo := newTweetTestEnv(t)

	author := createTestAuthor(t, ctx, repo)
	tweet := testutil.NewTestTweet(t, author.ID)
	tweet.ID = "nonexistent-id"

	if err := repo.UpdateTweet(ctx, tweet); !errors.Is(err, ErrTweetNotFound) {
		t.Errorf("Expected ErrTweetNotFound, got: %v", err)
	}
}

func TestIntegrationTweetRepository_DeleteTweet_SoftDelete(t *testing.T) {
	ctx, repo := newTweetTestEnv(t)

	author := createTestAuthor(t, ctx, repo)
	tweet := testutil.NewTestTweet(t, author.ID)

	if err := repo.CreateTweet(ctx, tweet); err != nil {
		t.Fatalf("CreateTweet failed: %v", err)
	}

	if err := repo.DeleteTweet(ctx, tweet.ID); err != nil {
		t.Fatalf("DeleteTweet failed: %v", err)
	}

	// Soft deleted tweets are invisible to reads.
	if _, err := repo.GetTweetByID(ctx, tweet.ID); !errors.Is(err, ErrTweetNotFound) {
		t.Errorf("Expected ErrTweetNotFound after soft delete, got: %v", err)
	}

	// A second delete reports not found.
	if err := repo.DeleteTweet(ctx, tweet.ID); !errors.Is(err, ErrTweetNotFound) {
		t.Errorf("Expected ErrTweetNotFound on double delete, got: %v", err)
	}
}

func TestIntegrationTweetRepository_ListTweets_Pagination(t *testing.T) {
	ctx, repo := newTweetTestEnv(t)

	author := createTestAuthor(t, ctx, repo)
	for i := 0; i < 5; i++ {
		tweet := testutil.NewTestTweet(t, author.ID)
		if err := repo.CreateTweet(ctx, tweet); err != nil {
			t.Fatalf("CreateTweet failed: %v", err)
		}
		time.Sleep(1 * time.Millisecond) // Ensure different created_at
	}

	filter := TweetFilter{AuthorID: author.ID}
	tweets, nextCursor, err := repo.ListTweets(ctx, filter, "", 2)
	if err != nil {
		t.Fatalf("ListTweets failed: %v", err)
	}

	if len(tweets) != 2 {
		t.Errorf("Expected 2 tweets, got %d", len(tweets))
	}
	if nextCursor == "" {
		t.Error("Expected nextCursor for more pages")
	}

	tweets2, nextCursor2, err := repo.ListTweets(ctx, filter, nextCursor, 2)
	if err != nil {
		t.Fatalf("ListTweets (page 2) failed: %v", err)
	}

	if len(tweets2) != 2 {
		t.Errorf("Expected 2 tweets on page 2, got %d", len(tweets2))
	}

	for _, a := range tweets {
		for _, b := range tweets2 {
			if a.ID == b.ID {
				t.Errorf("Duplicate tweet ID across pages: %s", a.ID)
			}
		}
	}

	tweets3, _, err := repo.ListTweets(ctx, filter, nextCursor2, 2)
	if err != nil {
		t.Fatalf("ListTweets (page 3) failed: %v", err)
	}

	if len(tweets3) != 1 {
		t.Errorf("Expected 1 tweet on page 3, got %d", len(tweets3))
	}
}

func TestIntegrationTweetRepository_ListTweets_HiddenFilter(t *testing.T) {
	ctx, repo := newTweetTestEnv(t)

	author := createTestAuthor(t, ctx, repo)

	visible := testutil.NewTestTweet(t, author.ID)
	if err := repo.CreateTweet(ctx, visible); err != nil {
		t.Fatalf("CreateTweet failed: %v", err)
	}

	hidden := testutil.NewTestTweet(t, author.ID)
	hidden.Hidden = true
	if err := repo.CreateTweet(ctx, hidden); err != nil {
		t.Fatalf("CreateTweet (hidden) failed: %v", err)
	}

	// Default: hidden excluded
	tweets, _, err := repo.ListTweets(ctx, TweetFilter{AuthorID: author.ID}, "", 10)
	if err != nil {
		t.Fatalf("ListTweets failed: %v", err)
	}
	if len(tweets) != 1 {
		t.Errorf("Expected 1 visible tweet, got %d", len(tweets))
	}

	// IncludeHidden: both returned
	tweets, _, err = repo.ListTweets(ctx, TweetFilter{AuthorID: author.ID, IncludeHidden: true}, "", 10)
	if err != nil {
		t.Fatalf("ListTweets (include hidden) failed: %v", err)
	}
	if len(tweets) != 2 {
		t.Errorf("Expected 2 tweets with IncludeHidden, got %d", len(tweets))
	}
}

func TestIntegrationTweetRepository_ListTweets_InvalidCursor(t *testing.T) {
	ctx, repo := newTweetTestEnv(t)

	_, _, err := repo.ListTweets(ctx, TweetFilter{}, "!!!garbage!!!", 10)
	if !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("Expected ErrInvalidCursor, got: %v", err)
	}
}

func TestIntegrationTweetRepository_IncrementViewCount(t *testing.T) {
	ctx, repo := newTweetTestEnv(t)

	author := createTestAuthor(t, ctx, repo)
	tweet := testutil.NewTestTweet(t, author.ID)

	if err := repo.CreateTweet(ctx, tweet); err != nil {
		t.Fatalf("CreateTweet failed: %v", err)
	}

	if err := repo.IncrementViewCount(ctx, tweet.ID, 5); err != nil {
		t.Fatalf("IncrementViewCount failed: %v", err)
	}

	retrieved, err := repo.GetTweetByID(ctx, tweet.ID)
	if err != nil {
		t.Fatalf("GetTweetByID failed: %v", err)
	}
	if retrieved.ViewCount != 5 {
		t.Errorf("ViewCount mismatch: got %d, want 5", retrieved.ViewCount)
	}

	if err := repo.IncrementViewCount(ctx, tweet.ID, 3); err != nil {
		t.Fatalf("IncrementViewCount (2) failed: %v", err)
	}

	retrieved2, _ := repo.GetTweetByID(ctx, tweet.ID)
	if retrieved2.ViewCount != 8 {
		t.Errorf("ViewCount after second increment: got %d, want 8", retrieved2.ViewCount)
	}
}

func TestIntegrationTweetRepository_TweetExists(t *testing.T) {
	ctx, repo := newTweetTestEnv(t)

	author := createTestAuthor(t, ctx, repo)
	tweet := testutil.NewTestTweet(t, author.ID)

	exists, err := repo.TweetExists(ctx, tweet.ID)
	if err != nil {
		t.Fatalf("TweetExists failed: %v", err)
	}
	if exists {
		t.Error("tweet should not exist before creation")
	}

	if err := repo.CreateTweet(ctx, tweet); err != nil {
		t.Fatalf("CreateTweet failed: %v", err)
	}

	exists, err = repo.TweetExists(ctx, tweet.ID)
	if err != nil {
		t.Fatalf("TweetExists (after create) failed: %v", err)
	}
	if !exists {
		t.Error("tweet should exist after creation")
	}

	if err := repo.DeleteTweet(ctx, tweet.ID); err != nil {
		t.Fatalf("DeleteTweet failed: %v", err)
	}

	exists, err = repo.TweetExists(ctx, tweet.ID)
	if err != nil {
		t.Fatalf("TweetExists (after delete) failed: %v", err)
	}
	if exists {
		t.Error("tweet should not exist after soft delete")
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newTweetTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
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

	// Tweets reference users, so users reset first.
	if err := testutil.ResetUsersSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset users schema: %v", err)
	}
	if err := testutil.ResetTweetsSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset tweets schema: %v", err)
	}

	return ctx, repo
}
