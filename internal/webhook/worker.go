package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chirp/chirp/internal/metrics"
	"github.com/chirp/chirp/internal/model"
)

const (
	// DefaultBatchSize is the number of deliveries taken per poll.
	DefaultBatchSize = 50
	// DefaultPollInterval is the pause between polls for due deliveries.
	DefaultPollInterval = 5 * time.Second
	// DefaultQueueDepthInterval is how often the backlog gauge is refreshed.
	DefaultQueueDepthInterval = 10 * time.Second
)

// Worker drains the delivery queue, sending signed HTTP requests to
// subscriber endpoints and scheduling retries on failure.
type Worker struct {
	repo               *Repository
	client             *http.Client
	logger             *slog.Logger
	metrics            metrics.Recorder
	batchSize          int
	pollInterval       time.Duration
	queueDepthInterval time.Duration
	lastQueueDepth     time.Time
	started            bool
}

// NewWorker creates a delivery worker.
func NewWorker(repo *Repository, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		repo:               repo,
		client:             NewHTTPClient(),
		logger:             logger.With("component", "webhook.worker"),
		metrics:            recorder,
		batchSize:          DefaultBatchSize,
		pollInterval:       DefaultPollInterval,
		queueDepthInterval: DefaultQueueDepthInterval,
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.started {
		return errors.New("worker already started")
	}
	w.started = true

	w.logger.Info("webhook worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
			}
		}
	}
}

// processOnce takes one batch of due deliveries and attempts each.
func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	deliveries, err := w.repo.DuePendingDeliveries(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch due deliveries: %w", err)
	}

	for _, delivery := range deliveries {
		if err := w.deliver(ctx, delivery); err != nil {
			w.logger.Warn("delivery failed",
				"delivery_id", delivery.ID,
				"error", err,
			)
		}
	}

	return nil
}

// deliver attempts one signed POST to the endpoint.
func (w *Worker) deliver(ctx context.Context, delivery *model.WebhookDelivery) error {
	endpoint, err := w.repo.GetEndpoint(ctx, delivery.EndpointID)
	if err != nil {
		if errors.Is(err, ErrEndpointNotFound) {
			// Endpoint removed since fan-out, stop retrying.
			return w.repo.MarkDeliveryFailed(ctx, delivery.ID, nil, "endpoint deleted", time.Now(), true)
		}
		return err
	}

	if !endpoint.IsActive() {
		return w.repo.MarkDeliveryFailed(ctx, delivery.ID, nil, "endpoint disabled", time.Now(), true)
	}

	timestamp := time.Now().Unix()
	signature := SignPayload(endpoint.Secret, timestamp, []byte(delivery.PayloadJSON))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TargetURL, bytes.NewReader([]byte(delivery.PayloadJSON)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	ApplyHeaders(req, RequestHeaders{
		Signature:  signature,
		Timestamp:  strconv.FormatInt(timestamp, 10),
		DeliveryID: delivery.ID,
	})

	start := time.Now()
	resp, err := w.client.Do(req)
	duration := time.Since(start)

	w.metrics.ObserveWebhookDeliveryDuration(duration)

	if err != nil {
		return w.recordFailure(ctx, delivery, nil, err.Error())
	}
	defer resp.Body.Close()

	// Drain a little so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.logger.Info("webhook delivered",
			"delivery_id", delivery.ID,
			"target_host", TargetHost(endpoint.TargetURL),
			"http_status", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
		)
		w.metrics.IncWebhookDelivery("success")
		return w.repo.MarkDeliverySucceeded(ctx, delivery.ID, resp.StatusCode)
	}

	return w.recordFailure(ctx, delivery, &resp.StatusCode, fmt.Sprintf("HTTP %d", resp.StatusCode))
}

// recordFailure updates the delivery after a failed attempt and
// schedules the next retry, if any remain.
func (w *Worker) recordFailure(ctx context.Context, delivery *model.WebhookDelivery, httpStatus *int, errMsg string) error {
	nextAttempt := delivery.AttemptCount + 1
	exhausted := IsExhausted(nextAttempt, delivery.MaxAttempts)

	status := "failed"
	if exhausted {
		status = "exhausted"
	}

	w.logger.Warn("webhook delivery failed",
		"delivery_id", delivery.ID,
		"attempt", nextAttempt,
		"exhausted", exhausted,
		"error", errMsg,
	)

	w.metrics.IncWebhookDelivery(status)

	return w.repo.MarkDeliveryFailed(ctx, delivery.ID, httpStatus, errMsg, NextAttemptAt(nextAttempt), exhausted)
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if time.Since(w.lastQueueDepth) < w.queueDepthInterval {
		return
	}
	w.lastQueueDepth = time.Now()

	depth, err := w.repo.QueueDepth(ctx)
	if err != nil {
		w.logger.Warn("failed to get queue depth", "error", err)
		return
	}
	w.metrics.SetWebhookQueueDepth(depth)
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetPollInterval overrides the default poll interval.
func (w *Worker) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		w.pollInterval = interval
	}
}
