package bank_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-bank"
)

func TestUserStateMachineApprovesPendingUser(t *testing.T) {
	repo := &MockStatusUpdater{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	user := &bank.User{
		ID:     uuid.New(),
		Status: bank.UserStatusPending,
	}

	repo.On("UpdateStatus", mock.Anything, user.ID, bank.UserStatusApproved, mock.Anything).
		Return(&bank.User{ID: user.ID, Status: bank.UserStatusApproved, StatusChangedAt: &now}, nil).Once()

	sm := bank.NewUserStateMachine(repo, bank.WithStateMachineClock(func() time.Time { return now }))

	result, err := sm.Transition(context.Background(), bank.ActorRef{ID: "admin", Type: bank.ActorTypeAdmin}, user, bank.UserStatusApproved)
	require.NoError(t, err)
	assert.True(t, result.IsApproved())
	require.NotNil(t, result.StatusChangedAt)
	assert.Equal(t, now, result.StatusChangedAt.UTC())
	repo.AssertExpectations(t)
}

func TestUserStateMachineAllowsEveryPair(t *testing.T) {
	for _, from := range bank.UserStatuses {
		for _, to := range bank.UserStatuses {
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				repo := &MockStatusUpdater{}
				user := &bank.User{ID: uuid.New(), Status: from}

				repo.On("UpdateStatus", mock.Anything, user.ID, to, mock.Anything).
					Return(&bank.User{ID: user.ID, Status: to}, nil).Once()

				sm := bank.NewUserStateMachine(repo)
				result, err := sm.Transition(context.Background(), bank.ActorRef{}, user, to)
				require.NoError(t, err)
				assert.Equal(t, to, result.Status)
				assert.Equal(t, to, sm.CurrentStatus(result))
			})
		}
	}
}

func TestUserStateMachineRejectsUnknownStatus(t *testing.T) {
	repo := &MockStatusUpdater{}
	user := &bank.User{ID: uuid.New(), Status: bank.UserStatusPending}

	sm := bank.NewUserStateMachine(repo)

	_, err := sm.Transition(context.Background(), bank.ActorRef{}, user, bank.UserStatus("deleted"))
	require.Error(t, err)
	assert.ErrorIs(t, err, bank.ErrInvalidStatus)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUserStateMachineRejectsAdmin(t *testing.T) {
	repo := &MockStatusUpdater{}
	admin := &bank.User{ID: uuid.New(), IsAdmin: true, Status: bank.UserStatusApproved}

	sm := bank.NewUserStateMachine(repo)

	_, err := sm.Transition(context.Background(), bank.ActorRef{}, admin, bank.UserStatusSuspended)
	assert.ErrorIs(t, err, bank.ErrAdminImmutable)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUserStateMachineRequiresUser(t *testing.T) {
	sm := bank.NewUserStateMachine(&MockStatusUpdater{})

	_, err := sm.Transition(context.Background(), bank.ActorRef{}, nil, bank.UserStatusApproved)
	require.Error(t, err)
	assert.True(t, bank.HasTextCode(err, bank.TextCodeValidation))
}

func TestUserStateMachineDefaultsEmptyStatusToPending(t *testing.T) {
	sm := bank.NewUserStateMachine(&MockStatusUpdater{})
	user := &bank.User{ID: uuid.New()}

	assert.Equal(t, bank.UserStatusPending, sm.CurrentStatus(user))
	assert.Equal(t, bank.UserStatus(""), sm.CurrentStatus(nil))
}

func TestUserStateMachineRunsHooksWithMetadata(t *testing.T) {
	repo := &MockStatusUpdater{}
	user := &bank.User{
		ID:     uuid.New(),
		Status: bank.UserStatusApproved,
	}

	repo.On("UpdateStatus", mock.Anything, user.ID, bank.UserStatusSuspended, mock.Anything).
		Return(&bank.User{ID: user.ID, Status: bank.UserStatusSuspended, StatusReason: "policy"}, nil).Once()

	var beforeCalled, afterCalled bool
	var reasonSeen string
	var metadataSeen map[string]any

	before := func(ctx context.Context, tc bank.TransitionContext) error {
		beforeCalled = true
		reasonSeen = tc.Meta.Reason
		metadataSeen = tc.Meta.Metadata
		return nil
	}
	after := func(ctx context.Context, tc bank.TransitionContext) error {
		afterCalled = true
		assert.Equal(t, bank.UserStatusApproved, tc.From)
		assert.Equal(t, bank.UserStatusSuspended, tc.To)
		return nil
	}

	sm := bank.NewUserStateMachine(repo)

	result, err := sm.Transition(
		context.Background(),
		bank.ActorRef{ID: "admin"},
		user,
		bank.UserStatusSuspended,
		bank.WithTransitionReason("policy"),
		bank.WithTransitionMetadata(map[string]any{"ticket": "123"}),
		bank.WithBeforeTransitionHook(before),
		bank.WithAfterTransitionHook(after),
	)
	require.NoError(t, err)
	assert.True(t, beforeCalled)
	assert.True(t, afterCalled)
	assert.Equal(t, "policy", reasonSeen)
	require.NotNil(t, metadataSeen)
	assert.Equal(t, "123", metadataSeen["ticket"])
	assert.Equal(t, "policy", result.StatusReason)
	repo.AssertExpectations(t)
}

func TestUserStateMachineBeforeHookAbortsTransition(t *testing.T) {
	repo := &MockStatusUpdater{}
	user := &bank.User{ID: uuid.New(), Status: bank.UserStatusPending}

	sm := bank.NewUserStateMachine(repo)

	_, err := sm.Transition(context.Background(), bank.ActorRef{}, user, bank.UserStatusApproved,
		bank.WithBeforeTransitionHook(func(ctx context.Context, tc bank.TransitionContext) error {
			return errors.New("kyc pending")
		}),
	)
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "transition hook failed", richErr.Message)
	assert.Equal(t, string(bank.HookPhaseBefore), richErr.Metadata["phase"])
	assert.Equal(t, bank.UserStatusPending, user.Status)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUserStateMachineEmitsActivityEvent(t *testing.T) {
	repo := &MockStatusUpdater{}
	sink := &MockActivitySink{}
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	user := &bank.User{
		ID:     uuid.New(),
		Status: bank.UserStatusPending,
	}

	repo.On("UpdateStatus", mock.Anything, user.ID, bank.UserStatusRejected, mock.Anything).
		Return(&bank.User{ID: user.ID, Status: bank.UserStatusRejected}, nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt bank.ActivityEvent) bool {
		return evt.EventType == bank.ActivityEventUserStatusChanged &&
			evt.UserID == user.ID.String() &&
			evt.FromStatus == bank.UserStatusPending &&
			evt.ToStatus == bank.UserStatusRejected &&
			evt.Metadata["reason"] == "incomplete documents" &&
			evt.OccurredAt.Equal(now)
	})).Return(nil).Once()

	sm := bank.NewUserStateMachine(
		repo,
		bank.WithStateMachineClock(func() time.Time { return now }),
		bank.WithStateMachineActivitySink(sink),
	)

	_, err := sm.Transition(context.Background(), bank.ActorRef{ID: "admin"}, user, bank.UserStatusRejected,
		bank.WithTransitionReason("incomplete documents"),
	)
	require.NoError(t, err)

	repo.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestUserStateMachineSinkFailureDoesNotFailTransition(t *testing.T) {
	repo := &MockStatusUpdater{}
	sink := &MockActivitySink{}
	user := &bank.User{ID: uuid.New(), Status: bank.UserStatusPending}

	repo.On("UpdateStatus", mock.Anything, user.ID, bank.UserStatusApproved, mock.Anything).
		Return(&bank.User{ID: user.ID, Status: bank.UserStatusApproved}, nil).Once()
	sink.On("Record", mock.Anything, mock.Anything).Return(errors.New("sink down")).Once()

	sm := bank.NewUserStateMachine(repo, bank.WithStateMachineActivitySink(sink))

	result, err := sm.Transition(context.Background(), bank.ActorRef{}, user, bank.UserStatusApproved)
	require.NoError(t, err)
	assert.True(t, result.IsApproved())
	sink.AssertExpectations(t)
}

func TestUserStateMachinePersistenceErrorIsReturned(t *testing.T) {
	repo := &MockStatusUpdater{}
	user := &bank.User{ID: uuid.New(), Status: bank.UserStatusPending}

	repo.On("UpdateStatus", mock.Anything, user.ID, bank.UserStatusApproved, mock.Anything).
		Return(nil, bank.NewNotFoundError("user", user.ID.String())).Once()

	sm := bank.NewUserStateMachine(repo)

	_, err := sm.Transition(context.Background(), bank.ActorRef{}, user, bank.UserStatusApproved)
	require.Error(t, err)
	assert.True(t, bank.HasTextCode(err, bank.TextCodeNotFound))
	assert.Equal(t, bank.UserStatusPending, user.Status)
}

func TestUserStateMachineTransitionPolicy(t *testing.T) {
	errNoReinstate := errors.New("rejected accounts stay rejected")
	repo := &MockStatusUpdater{}
	user := &bank.User{ID: uuid.New(), Status: bank.UserStatusRejected}

	sm := bank.NewUserStateMachine(repo, bank.WithTransitionPolicy(func(u *bank.User, target bank.UserStatus) error {
		if u.Status == bank.UserStatusRejected && target == bank.UserStatusApproved {
			return errNoReinstate
		}
		return nil
	}))

	_, err := sm.Transition(context.Background(), bank.ActorRef{}, user, bank.UserStatusApproved)
	assert.ErrorIs(t, err, errNoReinstate)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	repo.On("UpdateStatus", mock.Anything, user.ID, bank.UserStatusSuspended, mock.Anything).
		Return(&bank.User{ID: user.ID, Status: bank.UserStatusSuspended}, nil).Once()

	result, err := sm.Transition(context.Background(), bank.ActorRef{}, user, bank.UserStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, bank.UserStatusSuspended, result.Status)
	repo.AssertExpectations(t)
}
