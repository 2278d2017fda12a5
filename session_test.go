package bank_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-bank"
)

func TestSessionStoreIssueAndLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser("alice", bank.UserStatusApproved)

	clock := newFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	store := bank.NewSessionStore(f.repo.Sessions(), time.Hour, bank.WithSessionClock(clock.Now))

	session, err := store.Issue(ctx, user.ID, bank.SessionMeta{IP: "10.0.0.1", UserAgent: "curl/8"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, clock.Now().Add(time.Hour), session.ExpiresAt)

	found, err := store.Lookup(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)
	assert.Equal(t, "10.0.0.1", found.IP)
	assert.Equal(t, "curl/8", found.UserAgent)
}

func TestSessionStoreTokensAreDistinct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser("alice", bank.UserStatusApproved)

	store := bank.NewSessionStore(f.repo.Sessions(), time.Hour)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		session, err := store.Issue(ctx, user.ID, bank.SessionMeta{})
		require.NoError(t, err)
		assert.False(t, seen[session.ID], "token reused")
		seen[session.ID] = true
	}

	count, err := f.repo.Sessions().CountByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestSessionStoreLazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser("alice", bank.UserStatusApproved)

	clock := newFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	store := bank.NewSessionStore(f.repo.Sessions(), time.Hour, bank.WithSessionClock(clock.Now))

	session, err := store.Issue(ctx, user.ID, bank.SessionMeta{})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	// the row is still present until the token is presented
	assert.Equal(t, 1, f.count((*bank.Session)(nil), "id = ?", session.ID))

	_, err = store.Lookup(ctx, session.ID)
	assert.ErrorIs(t, err, bank.ErrSessionExpired)
	assert.Equal(t, 0, f.count((*bank.Session)(nil), "id = ?", session.ID))

	_, err = store.Lookup(ctx, session.ID)
	assert.ErrorIs(t, err, bank.ErrInvalidSession)
}

func TestSessionStoreExpiresAtBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser("alice", bank.UserStatusApproved)

	clock := newFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	store := bank.NewSessionStore(f.repo.Sessions(), time.Hour, bank.WithSessionClock(clock.Now))

	session, err := store.Issue(ctx, user.ID, bank.SessionMeta{})
	require.NoError(t, err)

	clock.Advance(time.Hour - time.Second)
	_, err = store.Lookup(ctx, session.ID)
	require.NoError(t, err)

	// still valid at exactly expires_at
	clock.Advance(time.Second)
	_, err = store.Lookup(ctx, session.ID)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = store.Lookup(ctx, session.ID)
	assert.ErrorIs(t, err, bank.ErrSessionExpired)
}

func TestSessionStoreSweepKeepsSessionAtExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser("alice", bank.UserStatusApproved)

	clock := newFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	store := bank.NewSessionStore(f.repo.Sessions(), time.Hour, bank.WithSessionClock(clock.Now))

	session, err := store.Issue(ctx, user.ID, bank.SessionMeta{})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	removed, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
	assert.Equal(t, 1, f.count((*bank.Session)(nil), "id = ?", session.ID))
}

func TestSessionStoreLookupRejectsUnknownAndEmpty(t *testing.T) {
	f := newFixture(t)
	store := bank.NewSessionStore(f.repo.Sessions(), time.Hour)

	_, err := store.Lookup(context.Background(), "  ")
	assert.ErrorIs(t, err, bank.ErrUnauthenticated)

	_, err = store.Lookup(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, bank.ErrInvalidSession)
}

func TestSessionStoreRevokeAndSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser("alice", bank.UserStatusApproved)

	clock := newFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	store := bank.NewSessionStore(f.repo.Sessions(), time.Hour, bank.WithSessionClock(clock.Now))

	first, err := store.Issue(ctx, user.ID, bank.SessionMeta{})
	require.NoError(t, err)
	second, err := store.Issue(ctx, user.ID, bank.SessionMeta{})
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, first.ID))
	_, err = store.Lookup(ctx, first.ID)
	assert.ErrorIs(t, err, bank.ErrInvalidSession)

	clock.Advance(3 * time.Hour)
	removed, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, 0, f.count((*bank.Session)(nil), "id = ?", second.ID))
}

func TestSessionStoreTokenGeneratorFailure(t *testing.T) {
	f := newFixture(t)
	user := f.createUser("alice", bank.UserStatusApproved)

	store := bank.NewSessionStore(f.repo.Sessions(), time.Hour,
		bank.WithSessionTokenGenerator(func() (string, error) {
			return "", errors.New("entropy exhausted")
		}),
	)

	_, err := store.Issue(context.Background(), user.ID, bank.SessionMeta{})
	require.Error(t, err)
	assert.Equal(t, 500, bank.HTTPStatus(err))
}

func TestNewSessionTokenEntropy(t *testing.T) {
	token, err := bank.NewSessionToken()
	require.NoError(t, err)
	// 32 random bytes, base64url without padding
	assert.Len(t, token, 43)

	other, err := bank.NewSessionToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestSessionStoreDefaultsTTL(t *testing.T) {
	store := bank.NewSessionStore(nil, 0)
	assert.Equal(t, bank.DefaultOptions().SessionTTL, store.TTL())
}
