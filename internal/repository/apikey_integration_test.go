//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chirp/chirp/internal/model"
	"github.com/chirp/chirp/internal/testutil"
)

// ============================================================================
// API Key Repository Integration Tests
// ============================================================================

func TestIntegrationAPIKeyRepository_CreateAPIKey(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	user := createTestAuthor(t, ctx, repo)
	key := testutil.NewTestAPIKey(t, user.ID)

	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	retrieved, err := repo.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID failed: %v", err)
	}

	if retrieved.UserID != user.ID {
		t.Errorf("UserID mismatch: got %q, want %q", retrieved.UserID, user.ID)
	}
	if retrieved.KeyHash != key.KeyHash {
		t.Errorf("KeyHash mismatch: got %q, want %q", retrieved.KeyHash, key.KeyHash)
	}
	if retrieved.KeyPrefix != key.KeyPrefix {
		t.Errorf("KeyPrefix mismatch: got %q, want %q", retrieved.KeyPrefix, key.KeyPrefix)
	}
	if retrieved.RateLimitTier != model.TierFree {
		t.Errorf("RateLimitTier mismatch: got %q, want %q", retrieved.RateLimitTier, model.TierFree)
	}
}

func TestIntegrationAPIKeyRepository_GetByID_NotFound(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	_, err := repo.GetAPIKeyByID(ctx, "nonexistent-key-id")
	if !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Expected ErrAPIKeyNotFound, got: %v", err)
	}
}

func TestIntegrationAPIKeyRepository_AuthCandidatesByPrefix(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	user := createTestAuthor(t, ctx, repo)
	prefix := "ck_live_pref"

	key1 := testutil.NewTestAPIKey(t, user.ID)
	key1.KeyPrefix = prefix
	key2 := testutil.NewTestAPIKey(t, user.ID)
	key2.KeyPrefix = prefix

	if err := repo.CreateAPIKey(ctx, key1); err != nil {
		t.Fatalf("CreateAPIKey (1) failed: %v", err)
	}
	time.Sleep(1 * time.Millisecond)
	if err := repo.CreateAPIKey(ctx, key2); err != nil {
		t.Fatalf("CreateAPIKey (2) failed: %v", err)
	}

	candidates, err := repo.GetAuthCandidatesByPrefix(ctx, prefix)
	if err != nil {
		t.Fatalf("GetAuthCandidatesByPrefix failed: %v", err)
	}

	if len(candidates) != 2 {
		t.Errorf("Expected 2 candidates, got %d", len(candidates))
	}
	for _, c := range candidates {
		if c.Key.KeyPrefix != prefix {
			t.Errorf("KeyPrefix mismatch: got %q, want %q", c.Key.KeyPrefix, prefix)
		}
		if c.ActorIsAdmin {
			t.Error("candidate should not carry admin flag for a regular user")
		}
	}
}

func TestIntegrationAPIKeyRepository_AuthCandidates_AdminFlag(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	user := createTestAuthor(t, ctx, repo)
	if err := repo.SetUserAdmin(ctx, user.ID, true); err != nil {
		t.Fatalf("SetUserAdmin failed: %v", err)
	}

	key := testutil.NewTestAPIKey(t, user.ID)
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	candidates, err := repo.GetAuthCandidatesByPrefix(ctx, key.KeyPrefix)
	if err != nil {
		t.Fatalf("GetAuthCandidatesByPrefix failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}
	if !candidates[0].ActorIsAdmin {
		t.Error("candidate should carry the owner's admin flag")
	}
}

func TestIntegrationAPIKeyRepository_AuthCandidates_ExcludesRevoked(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	user := createTestAuthor(t, ctx, repo)
	prefix := "ck_live_rvk1"

	key1 := testutil.NewTestAPIKey(t, user.ID)
	key1.KeyPrefix = prefix
	key2 := testutil.NewTestAPIKey(t, user.ID)
	key2.KeyPrefix = prefix

	if err := repo.CreateAPIKey(ctx, key1); err != nil {
		t.Fatalf("CreateAPIKey (1) failed: %v", err)
	}
	time.Sleep(1 * time.Millisecond)
	if err := repo.CreateAPIKey(ctx, key2); err != nil {
		t.Fatalf("CreateAPIKey (2) failed: %v", err)
	}

	if err := repo.RevokeAPIKey(ctx, key1.ID); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}

	candidates, err := repo.GetAuthCandidatesByPrefix(ctx, prefix)
	if err != nil {
		t.Fatalf("GetAuthCandidatesByPrefix failed: %v", err)
	}

	if len(candidates) != 1 {
		t.Errorf("Expected 1 active candidate, got %d", len(candidates))
	}
	if len(candidates) > 0 && candidates[0].Key.ID != key2.ID {
		t.Errorf("Expected key2, got key %s", candidates[0].Key.ID)
	}
}

func TestIntegrationAPIKeyRepository_ListByUserID(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	user := createTestAuthor(t, ctx, repo)
	for i := 0; i < 3; i++ {
		key := testutil.NewTestAPIKey(t, user.ID)
		if err := repo.CreateAPIKey(ctx, key); err != nil {
			t.Fatalf("CreateAPIKey (%d) failed: %v", i, err)
		}
		time.Sleep(1 * time.Millisecond)
	}

	keys, err := repo.ListAPIKeysByUserID(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListAPIKeysByUserID failed: %v", err)
	}

	if len(keys) != 3 {
		t.Errorf("Expected 3 keys, got %d", len(keys))
	}
	for _, k := range keys {
		if k.UserID != user.ID {
			t.Errorf("UserID mismatch: got %q, want %q", k.UserID, user.ID)
		}
	}
}

func TestIntegrationAPIKeyRepository_RevokeAPIKey(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	user := createTestAuthor(t, ctx, repo)
	key := testutil.NewTestAPIKey(t, user.ID)

	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	if err := repo.RevokeAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}

	retrieved, err := repo.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID failed: %v", err)
	}
	if retrieved.RevokedAt == nil {
		t.Error("RevokedAt should be set after revocation")
	}
	if !retrieved.IsRevoked() {
		t.Error("IsRevoked() should return true")
	}

	// Second revoke should fail (already revoked)
	if err := repo.RevokeAPIKey(ctx, key.ID); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Expected ErrAPIKeyNotFound on double revoke, got: %v", err)
	}
}

func TestIntegrationAPIKeyRepository_UpdateLastUsed(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	user := createTestAuthor(t, ctx, repo)
	key := testutil.NewTestAPIKey(t, user.ID)

	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	retrieved, _ := repo.GetAPIKeyByID(ctx, key.ID)
	if retrieved.LastUsedAt != nil {
		t.Error("LastUsedAt should be nil initially")
	}

	if err := repo.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
		t.Fatalf("UpdateAPIKeyLastUsed failed: %v", err)
	}

	retrieved, _ = repo.GetAPIKeyByID(ctx, key.ID)
	if retrieved.LastUsedAt == nil {
		t.Error("LastUsedAt should be set after update")
	}
}

func TestIntegrationAPIKeyRepository_ScopesPersistence(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	user := createTestAuthor(t, ctx, repo)
	key := testutil.NewTestAPIKey(t, user.ID)
	key.Scopes = []string{model.ScopeRead, model.ScopeWrite, model.ScopeWebhook}

	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	retrieved, err := repo.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID failed: %v", err)
	}

	if len(retrieved.Scopes) != 3 {
		t.Errorf("Expected 3 scopes, got %d", len(retrieved.Scopes))
	}

	if !retrieved.HasScope(model.ScopeRead) {
		t.Error("Key should have read scope")
	}
	if !retrieved.HasScope(model.ScopeWebhook) {
		t.Error("Key should have webhook scope")
	}
	if retrieved.HasScope(model.ScopeAdmin) {
		t.Error("Key should not have admin scope")
	}
}

func TestIntegrationAPIKeyRepository_TierPersistence(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	tiers := []string{model.TierFree, model.TierPro, model.TierUnlimited}

	for _, tier := range tiers {
		t.Run(tier, func(t *testing.T) {
			user := createTestAuthor(t, ctx, repo)
			key := testutil.NewTestAPIKeyWithTier(t, user.ID, tier)

			if err := repo.CreateAPIKey(ctx, key); err != nil {
				t.Fatalf("CreateAPIKey failed: %v", err)
			}

			retrieved, err := repo.GetAPIKeyByID(ctx, key.ID)
			if err != nil {
				t.Fatalf("GetAPIKeyByID failed: %v", err)
			}

			if retrieved.RateLimitTier != tier {
				t.Errorf("RateLimitTier mismatch: got %q, want %q", retrieved.RateLimitTier, tier)
			}

			settings := retrieved.RateLimit()
			expected := model.TierSettings[tier]
			if settings.RequestsPerMinute != expected.RequestsPerMinute {
				t.Errorf("RPM mismatch: got %d, want %d", settings.RequestsPerMinute, expected.RequestsPerMinute)
			}
		})
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newAPIKeyTestEnv(t *testing.T) (context.Context, *Repository) {
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

	// Reset users first (api_keys depends on users)
	if err := testutil.ResetUsersSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset users schema: %v", err)
	}
	if err := testutil.ResetAPIKeysSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset api_keys schema: %v", err)
	}

	return ctx, repo
}
