package bank_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-bank"
)

func TestAuthenticatorSignInRequiresApproval(t *testing.T) {
	tests := []struct {
		name    string
		status  bank.UserStatus
		allowed bool
	}{
		{name: "approved", status: bank.UserStatusApproved, allowed: true},
		{name: "pending", status: bank.UserStatusPending},
		{name: "rejected", status: bank.UserStatusRejected},
		{name: "suspended", status: bank.UserStatusSuspended},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			user := f.createUser("carol", tt.status)

			result, err := f.auth.SignIn(context.Background(), "carol", testPassword, bank.SessionMeta{IP: "127.0.0.1"})
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, user.ID, result.User.ID)
				assert.NotEmpty(t, result.SessionID)
				assert.Len(t, f.events.ofType(bank.ActivityEventLoginSuccess), 1)
				return
			}

			require.Error(t, err)
			assert.Nil(t, result)

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, bank.TextCodeAccountNotActive, richErr.TextCode)
			assert.Equal(t, string(tt.status), richErr.Metadata["status"])
			assert.Equal(t, 403, bank.HTTPStatus(err))

			count, err := f.repo.Sessions().CountByUser(context.Background(), user.ID)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestAuthenticatorPendingSignInWhenEnabled(t *testing.T) {
	f := newFixture(t, func(o *bank.Options) { o.AllowPendingSignIn = true })
	f.createUser("carol", bank.UserStatusPending)

	result, err := f.auth.SignIn(context.Background(), "carol", testPassword, bank.SessionMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionID)

	f.createUser("dave", bank.UserStatusSuspended)
	_, err = f.auth.SignIn(context.Background(), "dave", testPassword, bank.SessionMeta{})
	assert.True(t, bank.HasTextCode(err, bank.TextCodeAccountNotActive))
}

func TestAuthenticatorAdminAlwaysSignsIn(t *testing.T) {
	f := newFixture(t)

	result, err := f.auth.SignIn(context.Background(), "admin@bank.test", testPassword, bank.SessionMeta{})
	require.NoError(t, err)
	assert.True(t, result.User.IsAdmin)

	principal, err := f.auth.Resolve(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.True(t, principal.IsAdmin())
}

func TestAuthenticatorSignInByUsernameOrEmail(t *testing.T) {
	f := newFixture(t)
	f.createUser("carol", bank.UserStatusApproved)

	for _, identifier := range []string{"carol", "Carol", "CAROL", "carol@bank.test", "CAROL@bank.test", "Carol@Bank.Test"} {
		_, err := f.auth.SignIn(context.Background(), identifier, testPassword, bank.SessionMeta{})
		assert.NoError(t, err, identifier)
	}
}

func TestAuthenticatorInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.createUser("carol", bank.UserStatusApproved)

	_, err := f.auth.SignIn(context.Background(), "carol", "wrong-password", bank.SessionMeta{})
	assert.ErrorIs(t, err, bank.ErrMismatchedHashAndPassword)

	_, err = f.auth.SignIn(context.Background(), "nobody", testPassword, bank.SessionMeta{})
	assert.ErrorIs(t, err, bank.ErrMismatchedHashAndPassword)

	failures := f.events.ofType(bank.ActivityEventLoginFailure)
	assert.Len(t, failures, 2)
}

func TestAuthenticatorThrottlesRepeatedFailures(t *testing.T) {
	f := newFixture(t, func(o *bank.Options) { o.MaxLoginAttempts = 3 })
	f.createUser("carol", bank.UserStatusApproved)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.auth.SignIn(ctx, "carol", "wrong-password", bank.SessionMeta{})
		require.ErrorIs(t, err, bank.ErrMismatchedHashAndPassword)
	}

	_, err := f.auth.SignIn(ctx, "carol", testPassword, bank.SessionMeta{})
	assert.ErrorIs(t, err, bank.ErrTooManyLoginAttempts)
	assert.Equal(t, 429, bank.HTTPStatus(err))
}

func TestAuthenticatorAdminNotLockedOutByFailures(t *testing.T) {
	f := newFixture(t, func(o *bank.Options) { o.MaxLoginAttempts = 3 })
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := f.auth.SignIn(ctx, "admin@bank.test", "wrong-password", bank.SessionMeta{})
		require.ErrorIs(t, err, bank.ErrMismatchedHashAndPassword)
	}

	result, err := f.auth.SignIn(ctx, "admin@bank.test", testPassword, bank.SessionMeta{})
	require.NoError(t, err)
	assert.True(t, result.User.IsAdmin)
}

func TestAuthenticatorAdminThrottledWithoutBypass(t *testing.T) {
	f := newFixture(t, func(o *bank.Options) {
		o.MaxLoginAttempts = 3
		o.AdminBypassesLifecycle = false
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.auth.SignIn(ctx, "admin@bank.test", "wrong-password", bank.SessionMeta{})
		require.ErrorIs(t, err, bank.ErrMismatchedHashAndPassword)
	}

	_, err := f.auth.SignIn(ctx, "admin@bank.test", testPassword, bank.SessionMeta{})
	assert.ErrorIs(t, err, bank.ErrTooManyLoginAttempts)
}

func TestAuthenticatorEachSignInIssuesFreshSession(t *testing.T) {
	f := newFixture(t)
	f.createUser("carol", bank.UserStatusApproved)
	ctx := context.Background()

	first, err := f.auth.SignIn(ctx, "carol", testPassword, bank.SessionMeta{})
	require.NoError(t, err)
	second, err := f.auth.SignIn(ctx, "carol", testPassword, bank.SessionMeta{})
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionID, second.SessionID)

	// both stay valid
	_, err = f.auth.Resolve(ctx, first.SessionID)
	assert.NoError(t, err)
	_, err = f.auth.Resolve(ctx, second.SessionID)
	assert.NoError(t, err)
}

func TestAuthenticatorSignOut(t *testing.T) {
	f := newFixture(t)
	f.createUser("carol", bank.UserStatusApproved)
	ctx := context.Background()

	result, err := f.auth.SignIn(ctx, "carol", testPassword, bank.SessionMeta{})
	require.NoError(t, err)

	principal, err := f.auth.Resolve(ctx, result.SessionID)
	require.NoError(t, err)

	require.NoError(t, f.auth.SignOut(ctx, principal))

	_, err = f.auth.Resolve(ctx, result.SessionID)
	assert.ErrorIs(t, err, bank.ErrInvalidSession)
	assert.Len(t, f.events.ofType(bank.ActivityEventLogout), 1)

	assert.ErrorIs(t, f.auth.SignOut(ctx, nil), bank.ErrUnauthenticated)
}

func TestAuthenticatorResolveDeletedUser(t *testing.T) {
	f := newFixture(t)
	user := f.createUser("carol", bank.UserStatusApproved)
	ctx := context.Background()

	result, err := f.auth.SignIn(ctx, "carol", testPassword, bank.SessionMeta{})
	require.NoError(t, err)

	// remove only the user row so the session is left dangling
	_, err = f.db.ExecContext(ctx, "PRAGMA foreign_keys = OFF")
	require.NoError(t, err)
	_, err = f.db.NewDelete().Model((*bank.User)(nil)).Where("id = ?", user.ID).Exec(ctx)
	require.NoError(t, err)

	_, err = f.auth.Resolve(ctx, result.SessionID)
	assert.ErrorIs(t, err, bank.ErrUnauthenticated)
}

func TestCheckSignInAllowed(t *testing.T) {
	admin := &bank.User{IsAdmin: true, Status: bank.UserStatusSuspended}

	assert.NoError(t, bank.CheckSignInAllowed(admin, bank.DefaultOptions()))

	strict := bank.DefaultOptions()
	strict.AdminBypassesLifecycle = false
	assert.Error(t, bank.CheckSignInAllowed(admin, strict))

	assert.ErrorIs(t, bank.CheckSignInAllowed(nil, bank.DefaultOptions()), bank.ErrMismatchedHashAndPassword)
	assert.NoError(t, bank.CheckSignInAllowed(&bank.User{Status: bank.UserStatusApproved}, bank.DefaultOptions()))
}
