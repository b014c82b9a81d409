package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secure-events/backend/internal/models"
)

func TestIssueAndValidate(t *testing.T) {
	store := NewMemoryStore(24 * time.Hour)
	ctx := context.Background()
	accountID := uuid.New()

	token, session, err := store.Issue(ctx, accountID, models.RoleStudent)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, accountID, session.AccountID)
	assert.Equal(t, models.RoleStudent, session.Role)
	assert.False(t, session.Revoked)

	validated, err := store.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, validated.ID)
	assert.Equal(t, accountID, validated.AccountID)
}

func TestTokensAreUnique(t *testing.T) {
	store := NewMemoryStore(24 * time.Hour)
	ctx := context.Background()
	accountID := uuid.New()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, _, err := store.Issue(ctx, accountID, models.RoleStudent)
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestValidateRejectsUnknownToken(t *testing.T) {
	store := NewMemoryStore(24 * time.Hour)
	_, err := store.Validate(context.Background(), "not-a-real-token")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestRevoke(t *testing.T) {
	store := NewMemoryStore(24 * time.Hour)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, uuid.New(), models.RoleAdmin)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, token))
	_, err = store.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	// Revoking again, or revoking garbage, is a no-op.
	assert.NoError(t, store.Revoke(ctx, token))
	assert.NoError(t, store.Revoke(ctx, "unknown"))
}

func TestConcurrentValidateAndRevoke(t *testing.T) {
	store := NewMemoryStore(24 * time.Hour)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, uuid.New(), models.RoleStudent)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				sess, err := store.Validate(ctx, token)
				if err == nil && sess.Revoked {
					t.Error("validate returned a revoked session")
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 1000; j++ {
			_ = store.Revoke(ctx, token)
		}
	}()
	wg.Wait()

	_, err = store.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateRejectsExpiredSession(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, uuid.New(), models.RoleStudent)
	require.NoError(t, err)

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = store.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestDeleteExpired(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := store.Issue(ctx, uuid.New(), models.RoleStudent)
		require.NoError(t, err)
	}

	deleted, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	deleted, err = store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestRawTokenNeverStored(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	token, session, err := store.Issue(context.Background(), uuid.New(), models.RoleStudent)
	require.NoError(t, err)
	assert.NotEqual(t, token, session.TokenHash)
	assert.Equal(t, hashToken(token), session.TokenHash)
}
