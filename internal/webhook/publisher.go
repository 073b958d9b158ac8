package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chirp/chirp/internal/model"
)

// Publisher fans tweet lifecycle events out to delivery records.
// The worker picks the records up asynchronously; publishing never
// blocks on the network.
type Publisher struct {
	repo   *Repository
	logger *slog.Logger
}

// NewPublisher creates a webhook publisher.
func NewPublisher(repo *Repository, logger *slog.Logger) *Publisher {
	return &Publisher{
		repo:   repo,
		logger: logger.With("component", "webhook.publisher"),
	}
}

// PublishTweetEvent creates one pending delivery per endpoint the
// author has subscribed to the event. A tweet mutation is the event
// source, so deliveries fan out to the author's endpoints only.
func (p *Publisher) PublishTweetEvent(ctx context.Context, eventType model.EventType, tweet *model.Tweet) error {
	endpoints, err := p.repo.ListActiveEndpointsForEvent(ctx, tweet.AuthorID, eventType)
	if err != nil {
		return fmt.Errorf("failed to list active endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	eventID := ulid.Make().String()
	payload := model.WebhookPayload{
		EventType: string(eventType),
		EventID:   eventID,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"tweet_id":    tweet.ID,
			"author_id":   tweet.AuthorID,
			"text_length": tweet.TextLength(),
			"hidden":      tweet.Hidden,
		},
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	for _, endpoint := range endpoints {
		delivery := &model.WebhookDelivery{
			ID:           ulid.Make().String(),
			EndpointID:   endpoint.ID,
			EventID:      eventID,
			EventType:    eventType,
			PayloadJSON:  string(payloadJSON),
			Status:       model.DeliveryStatusPending,
			AttemptCount: 0,
			MaxAttempts:  DefaultMaxAttempts,
			NextRetryAt:  now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := p.repo.CreateDelivery(ctx, delivery); err != nil {
			p.logger.Warn("failed to create delivery",
				"endpoint_id", endpoint.ID,
				"event_type", eventType,
				"tweet_id", tweet.ID,
				"error", err,
			)
			continue
		}

		p.logger.Debug("webhook delivery created",
			"delivery_id", delivery.ID,
			"endpoint_id", endpoint.ID,
			"event_type", eventType,
		)
	}

	return nil
}
