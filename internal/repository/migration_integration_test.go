//go:build integration

package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chirp/chirp/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ============================================================================
// Migration Integration Tests
// ============================================================================

func TestIntegrationMigration_ApplyAllTables(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	tables := []string{
		"users",
		"tweets",
		"api_keys",
		"view_events",
		"daily_tweet_stats",
		"webhook_endpoints",
		"webhook_deliveries",
	}

	for _, table := range tables {
		t.Run(table, func(t *testing.T) {
			exists, err := tableExists(ctx, pool, table)
			if err != nil {
				t.Fatalf("tableExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Table %q should exist after migrations", table)
			}
		})
	}
}

func TestIntegrationMigration_TweetsTableSchema(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	expectedColumns := []string{
		"id",
		"text",
		"hidden",
		"author_id",
		"view_count",
		"deleted_at",
		"created_at",
		"updated_at",
	}

	for _, col := range expectedColumns {
		t.Run(col, func(t *testing.T) {
			exists, err := columnExists(ctx, pool, "tweets", col)
			if err != nil {
				t.Fatalf("columnExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Column %q should exist in tweets table", col)
			}
		})
	}
}

func TestIntegrationMigration_TweetsConstraints(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	authorID := testutil.UniqueID("user")
	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, email, is_admin) VALUES ($1, $2, FALSE)
	`, authorID, authorID+"@example.com")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}

	// Empty text fails the check constraint
	_, err = pool.Exec(ctx, `
		INSERT INTO tweets (id, text, author_id) VALUES ('t-empty', '', $1)
	`, authorID)
	if err == nil {
		t.Error("Expected check constraint violation for empty text")
	}

	// Text over 144 characters fails the check constraint
	longText := strings.Repeat("a", 145)
	_, err = pool.Exec(ctx, `
		INSERT INTO tweets (id, text, author_id) VALUES ('t-long', $1, $2)
	`, longText, authorID)
	if err == nil {
		t.Error("Expected check constraint violation for text > 144 chars")
	}

	// Missing author fails the foreign key constraint
	_, err = pool.Exec(ctx, `
		INSERT INTO tweets (id, text, author_id) VALUES ('t-orphan', 'hello', 'no-such-user')
	`)
	if err == nil {
		t.Error("Expected foreign key violation for unknown author")
	}
}

func TestIntegrationMigration_APIKeysTableSchema(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	expectedColumns := []string{
		"id",
		"user_id",
		"key_hash",
		"key_prefix",
		"scopes",
		"rate_limit_tier",
		"name",
		"revoked_at",
		"last_used_at",
		"created_at",
	}

	for _, col := range expectedColumns {
		t.Run(col, func(t *testing.T) {
			exists, err := columnExists(ctx, pool, "api_keys", col)
			if err != nil {
				t.Fatalf("columnExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Column %q should exist in api_keys table", col)
			}
		})
	}
}

func TestIntegrationMigration_AnalyticsTablesSchema(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	viewEventCols := []string{
		"id",
		"event_id",
		"tweet_id",
		"referrer",
		"user_agent",
		"visitor_hash",
		"country_code",
		"viewed_at",
		"created_at",
	}

	for _, col := range viewEventCols {
		exists, err := columnExists(ctx, pool, "view_events", col)
		if err != nil {
			t.Fatalf("columnExists failed: %v", err)
		}
		if !exists {
			t.Errorf("Column %q should exist in view_events table", col)
		}
	}

	statsColumns := []string{
		"id",
		"tweet_id",
		"date",
		"total_views",
		"unique_visitors",
		"referrer_breakdown",
		"country_breakdown",
	}

	for _, col := range statsColumns {
		exists, err := columnExists(ctx, pool, "daily_tweet_stats", col)
		if err != nil {
			t.Fatalf("columnExists failed: %v", err)
		}
		if !exists {
			t.Errorf("Column %q should exist in daily_tweet_stats table", col)
		}
	}
}

func TestIntegrationMigration_WebhookTablesSchema(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	endpointCols := []string{
		"id",
		"user_id",
		"target_url",
		"secret",
		"enabled",
		"event_types",
		"name",
		"description",
		"created_at",
		"updated_at",
		"deleted_at",
	}

	for _, col := range endpointCols {
		exists, err := columnExists(ctx, pool, "webhook_endpoints", col)
		if err != nil {
			t.Fatalf("columnExists failed: %v", err)
		}
		if !exists {
			t.Errorf("Column %q should exist in webhook_endpoints table", col)
		}
	}

	deliveryCols := []string{
		"id",
		"endpoint_id",
		"event_id",
		"event_type",
		"payload_json",
		"status",
		"attempt_count",
		"max_attempts",
		"next_retry_at",
		"last_attempt_at",
		"last_http_status",
		"last_error",
		"created_at",
		"updated_at",
	}

	for _, col := range deliveryCols {
		exists, err := columnExists(ctx, pool, "webhook_deliveries", col)
		if err != nil {
			t.Fatalf("columnExists failed: %v", err)
		}
		if !exists {
			t.Errorf("Column %q should exist in webhook_deliveries table", col)
		}
	}
}

func TestIntegrationMigration_RollbackTweets(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	root, err := testutil.ProjectRoot()
	if err != nil {
		t.Fatalf("ProjectRoot failed: %v", err)
	}

	downPath := filepath.Join(root, "migrations", "000003_tweets.down.sql")
	downSQL, err := os.ReadFile(downPath)
	if err != nil {
		t.Fatalf("read down migration: %v", err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		t.Fatalf("apply down migration: %v", err)
	}

	exists, err := tableExists(ctx, pool, "tweets")
	if err != nil {
		t.Fatalf("tableExists failed: %v", err)
	}
	if exists {
		t.Error("tweets table should not exist after rollback")
	}

	// Re-apply up migration for cleanup
	upPath := filepath.Join(root, "migrations", "000003_tweets.up.sql")
	upSQL, err := os.ReadFile(upPath)
	if err != nil {
		t.Fatalf("read up migration: %v", err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		t.Fatalf("reapply up migration: %v", err)
	}
}

func TestIntegrationMigration_Idempotency(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	root, err := testutil.ProjectRoot()
	if err != nil {
		t.Fatalf("ProjectRoot failed: %v", err)
	}

	// Re-applying init should be a no-op via IF NOT EXISTS clauses.
	upPath := filepath.Join(root, "migrations", "000001_init.up.sql")
	upSQL, err := os.ReadFile(upPath)
	if err != nil {
		t.Fatalf("read init up migration: %v", err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		t.Fatalf("second apply should not fail: %v", err)
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newMigrationTestEnv(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	return ctx, pool
}
