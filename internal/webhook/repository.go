package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/chirp/chirp/internal/model"
)

// Repository persists webhook endpoints and delivery records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webhook repository on an existing pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateEndpoint inserts a new webhook endpoint.
func (r *Repository) CreateEndpoint(ctx context.Context, endpoint *model.WebhookEndpoint) error {
	query := `
		INSERT INTO webhook_endpoints (
			id, user_id, target_url, secret, enabled,
			event_types, name, description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		endpoint.ID,
		endpoint.UserID,
		endpoint.TargetURL,
		endpoint.Secret,
		endpoint.Enabled,
		pq.Array(eventTypeStrings(endpoint.EventTypes)),
		endpoint.Name,
		endpoint.Description,
		endpoint.CreatedAt,
		endpoint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert webhook endpoint: %w", err)
	}
	return nil
}

// GetEndpoint retrieves an endpoint by ID. Soft-deleted endpoints are invisible.
func (r *Repository) GetEndpoint(ctx context.Context, id string) (*model.WebhookEndpoint, error) {
	query := `
		SELECT id, user_id, target_url, secret, enabled, event_types,
		       name, description, created_at, updated_at, deleted_at
		FROM webhook_endpoints
		WHERE id = $1 AND deleted_at IS NULL
	`

	var endpoint model.WebhookEndpoint
	var eventTypes []string

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&endpoint.ID,
		&endpoint.UserID,
		&endpoint.TargetURL,
		&endpoint.Secret,
		&endpoint.Enabled,
		pq.Array(&eventTypes),
		&endpoint.Name,
		&endpoint.Description,
		&endpoint.CreatedAt,
		&endpoint.UpdatedAt,
		&endpoint.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEndpointNotFound
		}
		return nil, fmt.Errorf("failed to query webhook endpoint: %w", err)
	}

	endpoint.EventTypes = toEventTypes(eventTypes)
	return &endpoint, nil
}

// ListEndpointsByUser returns all live endpoints owned by a user.
func (r *Repository) ListEndpointsByUser(ctx context.Context, userID string) ([]*model.WebhookEndpoint, error) {
	query := `
		SELECT id, user_id, target_url, secret, enabled, event_types,
		       name, description, created_at, updated_at
		FROM webhook_endpoints
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook endpoints: %w", err)
	}
	defer rows.Close()

	return scanEndpoints(rows)
}

// ListActiveEndpointsForEvent returns the enabled endpoints of a user
// that subscribe to the given event type.
func (r *Repository) ListActiveEndpointsForEvent(ctx context.Context, userID string, eventType model.EventType) ([]*model.WebhookEndpoint, error) {
	query := `
		SELECT id, user_id, target_url, secret, enabled, event_types,
		       name, description, created_at, updated_at
		FROM webhook_endpoints
		WHERE user_id = $1
		  AND deleted_at IS NULL
		  AND enabled = true
		  AND $2 = ANY(event_types)
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, userID, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("failed to query active webhook endpoints: %w", err)
	}
	defer rows.Close()

	return scanEndpoints(rows)
}

// UpdateEndpoint applies configuration changes to an endpoint.
func (r *Repository) UpdateEndpoint(ctx context.Context, endpoint *model.WebhookEndpoint) error {
	query := `
		UPDATE webhook_endpoints
		SET target_url = $2, enabled = $3, event_types = $4,
		    name = $5, description = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query,
		endpoint.ID,
		endpoint.TargetURL,
		endpoint.Enabled,
		pq.Array(eventTypeStrings(endpoint.EventTypes)),
		endpoint.Name,
		endpoint.Description,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// RotateEndpointSecret replaces the signing secret for an endpoint.
func (r *Repository) RotateEndpointSecret(ctx context.Context, id, secret string) error {
	query := `
		UPDATE webhook_endpoints
		SET secret = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, id, secret, time.Now())
	if err != nil {
		return fmt.Errorf("failed to rotate endpoint secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// DeleteEndpoint soft-deletes an endpoint. Pending deliveries for it
// are exhausted by the worker on the next poll.
func (r *Repository) DeleteEndpoint(ctx context.Context, id string) error {
	query := `
		UPDATE webhook_endpoints
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// CreateDelivery records a pending delivery. Inserting the same event
// for the same endpoint twice is a no-op, which makes event fan-out
// safe to retry.
func (r *Repository) CreateDelivery(ctx context.Context, delivery *model.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			id, endpoint_id, event_id, event_type, payload_json,
			status, attempt_count, max_attempts, next_retry_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id, endpoint_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		delivery.ID,
		delivery.EndpointID,
		delivery.EventID,
		string(delivery.EventType),
		[]byte(delivery.PayloadJSON),
		string(delivery.Status),
		delivery.AttemptCount,
		delivery.MaxAttempts,
		delivery.NextRetryAt,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert webhook delivery: %w", err)
	}
	return nil
}

// DuePendingDeliveries returns deliveries whose retry time has passed,
// for endpoints that are still live and enabled.
func (r *Repository) DuePendingDeliveries(ctx context.Context, limit int) ([]*model.WebhookDelivery, error) {
	query := `
		SELECT d.id, d.endpoint_id, d.event_id, d.event_type, d.payload_json,
		       d.status, d.attempt_count, d.max_attempts, d.next_retry_at,
		       d.last_attempt_at, d.last_http_status, d.last_error,
		       d.created_at, d.updated_at
		FROM webhook_deliveries d
		JOIN webhook_endpoints e ON d.endpoint_id = e.id
		WHERE d.status IN ('pending', 'failed')
		  AND d.next_retry_at <= $1
		  AND e.deleted_at IS NULL
		  AND e.enabled = true
		ORDER BY d.next_retry_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// MarkDeliverySucceeded records a successful attempt.
func (r *Repository) MarkDeliverySucceeded(ctx context.Context, id string, httpStatus int) error {
	query := `
		UPDATE webhook_deliveries
		SET status = 'success',
		    attempt_count = attempt_count + 1,
		    last_attempt_at = $2,
		    last_http_status = $3,
		    last_error = NULL,
		    updated_at = $2
		WHERE id = $1
	`

	now := time.Now()
	if _, err := r.pool.Exec(ctx, query, id, now, httpStatus); err != nil {
		return fmt.Errorf("failed to mark delivery succeeded: %w", err)
	}
	return nil
}

// MarkDeliveryFailed records a failed attempt and schedules the retry,
// or exhausts the delivery when the attempt budget is spent.
func (r *Repository) MarkDeliveryFailed(ctx context.Context, id string, httpStatus *int, errMsg string, nextRetryAt time.Time, exhausted bool) error {
	status := string(model.DeliveryStatusFailed)
	if exhausted {
		status = string(model.DeliveryStatusExhausted)
	}

	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}

	query := `
		UPDATE webhook_deliveries
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    last_attempt_at = $3,
		    last_http_status = $4,
		    last_error = $5,
		    next_retry_at = $6,
		    updated_at = $3
		WHERE id = $1
	`

	now := time.Now()
	if _, err := r.pool.Exec(ctx, query, id, status, now, httpStatus, errMsg, nextRetryAt); err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}
	return nil
}

// GetDelivery retrieves a delivery by ID.
func (r *Repository) GetDelivery(ctx context.Context, id string) (*model.WebhookDelivery, error) {
	query := `
		SELECT id, endpoint_id, event_id, event_type, payload_json,
		       status, attempt_count, max_attempts, next_retry_at,
		       last_attempt_at, last_http_status, last_error,
		       created_at, updated_at
		FROM webhook_deliveries
		WHERE id = $1
	`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery: %w", err)
	}
	defer rows.Close()

	deliveries, err := scanDeliveries(rows)
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, ErrDeliveryNotFound
	}
	return deliveries[0], nil
}

// ListDeliveriesByEndpoint returns a page of deliveries for an endpoint,
// newest first, optionally filtered by status.
func (r *Repository) ListDeliveriesByEndpoint(ctx context.Context, endpointID string, statuses []string, limit, offset int) ([]*model.WebhookDelivery, int, error) {
	var where strings.Builder
	args := []any{endpointID}
	argIdx := 2

	where.WriteString("WHERE endpoint_id = $1")
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", argIdx)
			args = append(args, s)
			argIdx++
		}
		where.WriteString(fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ",")))
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM webhook_deliveries %s`, where.String())
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count deliveries: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, endpoint_id, event_id, event_type, payload_json,
		       status, attempt_count, max_attempts, next_retry_at,
		       last_attempt_at, last_http_status, last_error,
		       created_at, updated_at
		FROM webhook_deliveries
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where.String(), argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	deliveries, err := scanDeliveries(rows)
	if err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

// RequeueExhaustedDelivery puts an exhausted delivery back in the queue
// for a manual retry.
func (r *Repository) RequeueExhaustedDelivery(ctx context.Context, id string) error {
	query := `
		UPDATE webhook_deliveries
		SET status = 'pending',
		    next_retry_at = $2,
		    updated_at = $2
		WHERE id = $1 AND status = 'exhausted'
	`

	tag, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to requeue delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// QueueDepth counts deliveries still awaiting a successful attempt.
func (r *Repository) QueueDepth(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM webhook_deliveries
		WHERE status IN ('pending', 'failed')
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count queue depth: %w", err)
	}
	return count, nil
}

func scanEndpoints(rows pgx.Rows) ([]*model.WebhookEndpoint, error) {
	var endpoints []*model.WebhookEndpoint
	for rows.Next() {
		var endpoint model.WebhookEndpoint
		var eventTypes []string

		if err := rows.Scan(
			&endpoint.ID,
			&endpoint.UserID,
			&endpoint.TargetURL,
			&endpoint.Secret,
			&endpoint.Enabled,
			pq.Array(&eventTypes),
			&endpoint.Name,
			&endpoint.Description,
			&endpoint.CreatedAt,
			&endpoint.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan webhook endpoint: %w", err)
		}

		endpoint.EventTypes = toEventTypes(eventTypes)
		endpoints = append(endpoints, &endpoint)
	}
	return endpoints, rows.Err()
}

func scanDeliveries(rows pgx.Rows) ([]*model.WebhookDelivery, error) {
	var deliveries []*model.WebhookDelivery
	for rows.Next() {
		var d model.WebhookDelivery
		var eventType, status string
		var payload []byte
		var lastError *string

		if err := rows.Scan(
			&d.ID,
			&d.EndpointID,
			&d.EventID,
			&eventType,
			&payload,
			&status,
			&d.AttemptCount,
			&d.MaxAttempts,
			&d.NextRetryAt,
			&d.LastAttemptAt,
			&d.LastHTTPStatus,
			&lastError,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}

		d.EventType = model.EventType(eventType)
		d.Status = model.DeliveryStatus(status)
		d.PayloadJSON = string(payload)
		if lastError != nil {
			d.LastError = *lastError
		}
		deliveries = append(deliveries, &d)
	}
	return deliveries, rows.Err()
}

func eventTypeStrings(eventTypes []model.EventType) []string {
	out := make([]string, len(eventTypes))
	for i, et := range eventTypes {
		out[i] = string(et)
	}
	return out
}

func toEventTypes(values []string) []model.EventType {
	out := make([]model.EventType, len(values))
	for i, v := range values {
		out[i] = model.EventType(v)
	}
	return out
}
