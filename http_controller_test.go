package bank_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-bank"
)

func newRouterContext(principal *bank.Principal) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("IP").Return("127.0.0.1").Maybe()
	ctx.On("GetString", "User-Agent", "").Return("bank-test").Maybe()
	ctx.On("OriginalURL").Return("/").Maybe()
	if principal != nil {
		ctx.LocalsMock[bank.DefaultOptions().ContextKey] = principal
	}
	return ctx
}

func bindPayload[T any](ctx *router.MockContext, payload T) {
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		dst := args.Get(0).(*T)
		*dst = payload
	}).Return(nil)
}

func captureJSON(ctx *router.MockContext, status int) *any {
	var out any
	ctx.On("JSON", status, mock.Anything).Run(func(args mock.Arguments) {
		out = args.Get(1)
	}).Return(nil)
	return &out
}

func (f *fixture) controller() *bank.Controller {
	return bank.NewController(f.repo, f.auth,
		bank.WithControllerActivitySink(f.sink),
		bank.WithControllerRelay(f.relay),
	)
}

func (f *fixture) principalFor(username string) *bank.Principal {
	f.t.Helper()
	result, err := f.auth.SignIn(context.Background(), username, testPassword, bank.SessionMeta{})
	require.NoError(f.t, err)
	principal, err := f.auth.Resolve(context.Background(), result.SessionID)
	require.NoError(f.t, err)
	return principal
}

func TestControllerSignIn(t *testing.T) {
	f := newFixture(t)
	f.createUser("alice", bank.UserStatusApproved)
	f.createUser("paula", bank.UserStatusPending)
	ctrl := f.controller()

	t.Run("approved user", func(t *testing.T) {
		ctx := newRouterContext(nil)
		bindPayload(ctx, bank.SignInRequest{Identifier: "alice", Password: testPassword})
		out := captureJSON(ctx, http.StatusOK)

		require.NoError(t, ctrl.SignIn(ctx))

		result, ok := (*out).(*bank.AuthResult)
		require.True(t, ok)
		assert.NotEmpty(t, result.SessionID)
		assert.Equal(t, "alice", result.User.Username)
		assert.Equal(t, 1, f.count((*bank.Session)(nil), "user_id = ?", result.User.ID))
	})

	t.Run("pending user", func(t *testing.T) {
		ctx := newRouterContext(nil)
		bindPayload(ctx, bank.SignInRequest{Identifier: "paula", Password: testPassword})

		err := ctrl.SignIn(ctx)
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, bank.HTTPStatus(err))
		assert.True(t, bank.HasTextCode(err, bank.TextCodeAccountNotActive))
	})

	t.Run("missing password", func(t *testing.T) {
		ctx := newRouterContext(nil)
		bindPayload(ctx, bank.SignInRequest{Identifier: "alice"})

		err := ctrl.SignIn(ctx)
		assert.True(t, bank.HasTextCode(err, bank.TextCodeValidation))
	})
}

func TestControllerSignUp(t *testing.T) {
	f := newFixture(t)
	ctrl := f.controller()

	ctx := newRouterContext(nil)
	bindPayload(ctx, bank.RegisterUserMessage{
		Username: "carol",
		Email:    "carol@example.com",
		Password: testPassword,
	})
	out := captureJSON(ctx, http.StatusCreated)

	require.NoError(t, ctrl.SignUp(ctx))

	result, ok := (*out).(*bank.AuthResult)
	require.True(t, ok)
	assert.Equal(t, bank.UserStatusPending, result.User.Status)

	session, err := f.auth.Sessions().Lookup(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, session.UserID)
}

func TestControllerMe(t *testing.T) {
	f := newFixture(t)
	f.createUser("alice", bank.UserStatusApproved)
	ctrl := f.controller()

	principal := f.principalFor("alice")
	ctx := newRouterContext(principal)
	out := captureJSON(ctx, http.StatusOK)

	require.NoError(t, ctrl.Me(ctx))
	user, ok := (*out).(*bank.User)
	require.True(t, ok)
	assert.Equal(t, principal.User.ID, user.ID)

	err := ctrl.Me(newRouterContext(nil))
	assert.ErrorIs(t, err, bank.ErrUnauthenticated)
}

func TestControllerSendMessage(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser("alice", bank.UserStatusApproved)
	ctrl := f.controller()
	principal := f.principalFor("alice")

	t.Run("defaults to the admin", func(t *testing.T) {
		ctx := newRouterContext(principal)
		bindPayload(ctx, bank.SendMessageRequest{Content: "  help please  "})
		out := captureJSON(ctx, http.StatusCreated)

		require.NoError(t, ctrl.SendMessage(ctx))
		msg, ok := (*out).(*bank.Message)
		require.True(t, ok)
		assert.Equal(t, f.admin.ID, msg.ReceiverID)
		assert.Equal(t, alice.ID, msg.SenderID)
		assert.Equal(t, "help please", msg.Content)
	})

	t.Run("rejects messages to self", func(t *testing.T) {
		ctx := newRouterContext(principal)
		bindPayload(ctx, bank.SendMessageRequest{ReceiverID: alice.ID.String(), Content: "hi me"})

		err := ctrl.SendMessage(ctx)
		assert.True(t, bank.HasTextCode(err, bank.TextCodeValidation))
	})

	t.Run("unknown receiver", func(t *testing.T) {
		ctx := newRouterContext(principal)
		bindPayload(ctx, bank.SendMessageRequest{ReceiverID: uuid.NewString(), Content: "hello?"})

		err := ctrl.SendMessage(ctx)
		assert.Equal(t, http.StatusNotFound, bank.HTTPStatus(err))
	})

	t.Run("empty content", func(t *testing.T) {
		ctx := newRouterContext(principal)
		bindPayload(ctx, bank.SendMessageRequest{Content: "   "})

		err := ctrl.SendMessage(ctx)
		assert.True(t, bank.HasTextCode(err, bank.TextCodeValidation))
	})
}

func TestControllerListUsers(t *testing.T) {
	f := newFixture(t)
	f.createUser("alice", bank.UserStatusApproved)
	f.createUser("paula", bank.UserStatusPending)
	ctrl := f.controller()

	ctx := newRouterContext(nil)
	ctx.QueriesM["status"] = "pending"
	out := captureJSON(ctx, http.StatusOK)

	require.NoError(t, ctrl.ListUsers(ctx))
	body, ok := (*out).(router.ViewContext)
	require.True(t, ok)
	assert.Equal(t, 1, body["count"])

	ctx = newRouterContext(nil)
	ctx.QueriesM["status"] = "archived"
	assert.ErrorIs(t, ctrl.ListUsers(ctx), bank.ErrInvalidStatus)
}

func TestControllerChangeUserStatus(t *testing.T) {
	f := newFixture(t)
	paula := f.createUser("paula", bank.UserStatusPending)
	ctrl := f.controller()
	admin := f.principalFor("admin")

	ctx := newRouterContext(admin)
	ctx.ParamsM["id"] = paula.ID.String()
	bindPayload(ctx, bank.ChangeStatusMessage{Status: "approved"})
	out := captureJSON(ctx, http.StatusOK)

	require.NoError(t, ctrl.ChangeUserStatus(ctx))
	user, ok := (*out).(*bank.User)
	require.True(t, ok)
	assert.Equal(t, bank.UserStatusApproved, user.Status)

	ctx = newRouterContext(admin)
	ctx.ParamsM["id"] = "not-a-uuid"
	err := ctrl.ChangeUserStatus(ctx)
	assert.True(t, bank.HasTextCode(err, bank.TextCodeValidation))
}

func TestControllerDeleteUserRejectsAdmin(t *testing.T) {
	f := newFixture(t)
	ctrl := f.controller()
	admin := f.principalFor("admin")

	ctx := newRouterContext(admin)
	ctx.ParamsM["id"] = f.admin.ID.String()

	err := ctrl.DeleteUser(ctx)
	assert.ErrorIs(t, err, bank.ErrAdminImmutable)
	assert.Equal(t, http.StatusForbidden, bank.HTTPStatus(err))
}

func TestRouteGuards(t *testing.T) {
	f := newFixture(t)
	f.createUser("alice", bank.UserStatusApproved)
	f.createUser("paula", bank.UserStatusPending)
	guards := bank.NewHTTPAuthenticator(f.auth, f.auth.Config())

	alice := f.principalFor("alice")
	admin := f.principalFor("admin")

	pending, err := f.auth.Sessions().Issue(context.Background(), f.createUser("penny", bank.UserStatusPending).ID, bank.SessionMeta{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		guard    router.MiddlewareFunc
		token    string
		wantCode int
		wantText string
	}{
		{name: "protected with session", guard: guards.ProtectedRoute(), token: alice.SessionID()},
		{name: "protected pending user", guard: guards.ProtectedRoute(), token: pending.ID},
		{name: "protected without token", guard: guards.ProtectedRoute(), wantCode: http.StatusUnauthorized, wantText: bank.TextCodeUnauthenticated},
		{name: "protected unknown token", guard: guards.ProtectedRoute(), token: "nope", wantCode: http.StatusUnauthorized, wantText: bank.TextCodeInvalidSession},
		{name: "admin route as admin", guard: guards.AdminRoute(), token: admin.SessionID()},
		{name: "admin route as user", guard: guards.AdminRoute(), token: alice.SessionID(), wantCode: http.StatusForbidden, wantText: bank.TextCodeForbidden},
		{name: "approved route as approved", guard: guards.ApprovedRoute(), token: alice.SessionID()},
		{name: "approved route as pending", guard: guards.ApprovedRoute(), token: pending.ID, wantCode: http.StatusForbidden, wantText: bank.TextCodeAccountNotActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := ""
			if tt.token != "" {
				header = "Bearer " + tt.token
			}

			ctx := newRouterContext(nil)
			ctx.HeadersM["Authorization"] = header
			ctx.On("GetString", "Authorization", "").Return(header).Maybe()
			ctx.On("Locals", mock.Anything, mock.Anything).Return(nil).Maybe()
			ctx.On("SetContext", mock.Anything).Return().Maybe()

			var out *any
			if tt.wantCode != 0 {
				out = captureJSON(ctx, tt.wantCode)
			}

			reached := false
			handler := tt.guard(func(router.Context) error {
				reached = true
				return nil
			})

			require.NoError(t, handler(ctx))

			if tt.wantCode == 0 {
				assert.True(t, reached)
				return
			}

			assert.False(t, reached)
			body, ok := (*out).(bank.ErrorResponse)
			require.True(t, ok)
			assert.Equal(t, tt.wantText, body.Error.TextCode)
		})
	}
}
