// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chirp/chirp/internal/cache"
	"github.com/chirp/chirp/internal/changeset"
	"github.com/chirp/chirp/internal/metrics"
	"github.com/chirp/chirp/internal/model"
	"github.com/chirp/chirp/internal/policy"
	"github.com/chirp/chirp/internal/repository"
)

// Service errors.
var (
	ErrTweetNotFound = errors.New("tweet not found")
	ErrForbidden     = errors.New("forbidden")
	ErrNoChanges     = errors.New("no changes to apply")
)

// TweetService handles tweet business logic. Every operation takes the
// acting user; authorization runs here, not in the handlers.
type TweetService struct {
	repo    *repository.Repository
	cache   *cache.Cache
	baseURL string
	metrics metrics.Recorder
}

// NewTweetService creates a new TweetService.
func NewTweetService(repo *repository.Repository, cache *cache.Cache, baseURL string, recorder metrics.Recorder) *TweetService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &TweetService{
		repo:    repo,
		cache:   cache,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		metrics: recorder,
	}
}

// CreateTweetInput defines input for posting a tweet.
type CreateTweetInput struct {
	Text   string
	Hidden *bool // nil applies the default (false)
}

// CreateTweet validates and posts a new tweet authored by the actor.
// Validation errors match the changeset package sentinels via errors.Is.
func (s *TweetService) CreateTweet(ctx context.Context, actor *model.User, input CreateTweetInput) (*model.Tweet, error) {
	if d := policy.Check(actor, policy.ActionCreateTweet, nil); !d.Allowed {
		s.metrics.IncPolicyDenied(policy.ActionCreateTweet.String())
		return nil, fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}

	cs := changeset.ForCreate(changeset.CreateInput{
		Text:     input.Text,
		Hidden:   input.Hidden,
		AuthorID: actor.ID,
	})

	tweet, err := cs.Apply(time.Now())
	if err != nil {
		return nil, err
	}
	tweet.ID = ulid.Make().String()

	if err := s.repo.CreateTweet(ctx, tweet); err != nil {
		return nil, fmt.Errorf("failed to create tweet: %w", err)
	}

	s.metrics.IncTweetCreated()

	// Warm the cache; permalink reads follow immediately after posting.
	_ = s.cache.SetTweet(ctx, tweet) // Eventual consistency is acceptable

	return tweet, nil
}

// GetTweet retrieves a tweet on behalf of the actor.
// A tweet the actor may not read is reported as not found rather than
// forbidden, so hidden tweets do not leak their existence.
func (s *TweetService) GetTweet(ctx context.Context, actor *model.User, id string) (*model.Tweet, error) {
	tweet, err := s.repo.GetTweetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTweetNotFound) {
			return nil, ErrTweetNotFound
		}
		return nil, err
	}

	if d := policy.Check(actor, policy.ActionReadTweet, tweet); !d.Allowed {
		s.metrics.IncPolicyDenied(policy.ActionReadTweet.String())
		return nil, ErrTweetNotFound
	}

	return tweet, nil
}

// ListTweetsInput defines input for listing tweets.
type ListTweetsInput struct {
	AuthorID      string
	Cursor        string
	Limit         int
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// ListTweetsOutput defines output for listing tweets.
type ListTweetsOutput struct {
	Tweets     []*model.Tweet
	NextCursor string
	HasMore    bool
}

// ListTweets retrieves a paginated list of tweets the actor may read.
// Hidden tweets are included only when the actor is their author.
func (s *TweetService) ListTweets(ctx context.Context, actor *model.User, input ListTweetsInput) (*ListTweetsOutput, error) {
	// Set defaults
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 20
	}

	// The actor's own timeline may include hidden tweets; everyone
	// else sees only visible ones. Rows are still policy-checked below.
	includeHidden := actor != nil && input.AuthorID != "" && actor.ID == input.AuthorID

	filter := repository.TweetFilter{
		AuthorID:      input.AuthorID,
		IncludeHidden: includeHidden,
		CreatedAfter:  input.CreatedAfter,
		CreatedBefore: input.CreatedBefore,
	}

	tweets, nextCursor, err := s.repo.ListTweets(ctx, filter, input.Cursor, input.Limit)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return nil, repository.ErrInvalidCursor
		}
		return nil, err
	}

	readable := make([]*model.Tweet, 0, len(tweets))
	for _, tweet := range tweets {
		if policy.Can(actor, policy.ActionReadTweet, tweet) {
			readable = append(readable, tweet)
		}
	}

	return &ListTweetsOutput{
		Tweets:     readable,
		NextCursor: nextCursor,
		HasMore:    nextCursor != "",
	}, nil
}

// UpdateTweetInput defines input for editing a tweet.
// Nil fields are left unchanged.
type UpdateTweetInput struct {
	Text   *string
	Hidden *bool
}

// UpdateTweet applies a validated partial update to a tweet.
// Only the author or an admin may update.
func (s *TweetService) UpdateTweet(ctx context.Context, actor *model.User, id string, input UpdateTweetInput) (*model.Tweet, error) {
	tweet, err := s.repo.GetTweetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTweetNotFound) {
			return nil, ErrTweetNotFound
		}
		return nil, err
	}

	if d := policy.Check(actor, policy.ActionUpdateTweet, tweet); !d.Allowed {
		s.metrics.IncPolicyDenied(policy.ActionUpdateTweet.String())
		return nil, fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}

	cs := changeset.ForUpdate(tweet, changeset.UpdateInput{
		Text:   input.Text,
		Hidden: input.Hidden,
	})

	updated, err := cs.Apply(time.Now())
	if err != nil {
		if errors.Is(err, changeset.ErrNoChanges) {
			return nil, ErrNoChanges
		}
		return nil, err
	}

	if err := s.repo.UpdateTweet(ctx, updated); err != nil {
		if errors.Is(err, repository.ErrTweetNotFound) {
			return nil, ErrTweetNotFound
		}
		return nil, err
	}

	s.metrics.IncTweetUpdated()

	// Invalidate cache
	_ = s.cache.DeleteTweet(ctx, updated.ID) // Eventual consistency is acceptable

	return updated, nil
}

// DeleteTweet soft-deletes a tweet. Only the author or an admin may delete.
func (s *TweetService) DeleteTweet(ctx context.Context, actor *model.User, id string) (*model.Tweet, error) {
	tweet, err := s.repo.GetTweetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTweetNotFound) {
			return nil, ErrTweetNotFound
		}
		return nil, err
	}

	if d := policy.Check(actor, policy.ActionDeleteTweet, tweet); !d.Allowed {
		s.metrics.IncPolicyDenied(policy.ActionDeleteTweet.String())
		return nil, fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}

	if err := s.repo.DeleteTweet(ctx, id); err != nil {
		if errors.Is(err, repository.ErrTweetNotFound) {
			return nil, ErrTweetNotFound
		}
		return nil, err
	}

	s.metrics.IncTweetDeleted()

	_ = s.cache.DeleteTweet(ctx, id)

	return tweet, nil
}

// ResolvePermalink resolves a tweet ID for the public permalink page.
// This is the hot path - optimized for speed with cache-first lookup.
// Hidden and deleted tweets resolve as not found.
func (s *TweetService) ResolvePermalink(ctx context.Context, id string) (*model.Tweet, bool, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObservePermalinkDuration(time.Since(start))
	}()

	cacheHit := false

	// Step 1: Try cache
	cached, err := s.cache.GetTweet(ctx, id)
	if err == nil {
		cacheHit = true
		s.metrics.IncPermalinkCacheHit()
		tweet := cached.ToTweet(id)
		validated, err := s.validatePermalinkTweet(ctx, tweet)
		return validated, cacheHit, err
	}

	// Step 2: Check negative cache
	if !errors.Is(err, cache.ErrCacheMiss) {
		// Redis error - fall through to DB
	} else {
		s.metrics.IncPermalinkCacheMiss()
		isNegative, _ := s.cache.IsNegativelyCached(ctx, id)
		if isNegative {
			return nil, cacheHit, ErrTweetNotFound
		}
	}

	// Step 3: DB lookup
	tweet, err := s.repo.GetTweetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTweetNotFound) {
			_ = s.cache.SetNegativeCache(ctx, id)
			return nil, cacheHit, ErrTweetNotFound
		}
		return nil, cacheHit, err
	}

	// Step 4: Backfill cache
	_ = s.cache.SetTweet(ctx, tweet)

	// Step 5: Validate and return
	validated, err := s.validatePermalinkTweet(ctx, tweet)
	return validated, cacheHit, err
}

// IncrementViewAsync increments the view counter asynchronously.
// It deliberately detaches from the request context so a client
// disconnect does not lose the view.
func (s *TweetService) IncrementViewAsync(id string) {
	// Fire and forget - don't block the permalink response
	go func() {
		_ = s.cache.IncrementViews(context.Background(), id)
	}()
}

// BaseURL returns the configured public base URL.
func (s *TweetService) BaseURL() string {
	return s.baseURL
}

// PermalinkURL returns the public URL for a tweet.
func (s *TweetService) PermalinkURL(id string) string {
	return s.baseURL + "/t/" + id
}

// validatePermalinkTweet applies the anonymous-read policy to a tweet
// resolved on the public path.
func (s *TweetService) validatePermalinkTweet(ctx context.Context, tweet *model.Tweet) (*model.Tweet, error) {
	if tweet.DeletedAt != nil {
		_ = s.cache.DeleteTweet(ctx, tweet.ID)
		return nil, ErrTweetNotFound
	}

	if !policy.Can(nil, policy.ActionReadTweet, tweet) {
		s.metrics.IncPolicyDenied(policy.ActionReadTweet.String())
		return nil, ErrTweetNotFound
	}

	return tweet, nil
}
