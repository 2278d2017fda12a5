package bank

import (
	"context"
	"maps"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TransitionMetadata is the reason and free form details an operator
// attaches to a status change.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is what hooks see about the change in flight
type TransitionContext struct {
	Actor ActorRef
	User  *User
	From  UserStatus
	To    UserStatus
	Meta  TransitionMetadata
}

// TransitionHook runs around the status write
type TransitionHook func(ctx context.Context, tc TransitionContext) error

type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionPolicy decides whether user may move to target. A nil error
// allows the change.
type TransitionPolicy func(user *User, target UserStatus) error

// UserStateMachine moves accounts through pending, approved, rejected and
// suspended.
type UserStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus, opts ...TransitionOption) (*User, error)
	CurrentStatus(user *User) UserStatus
}

// StatusUpdater is the persistence the state machine needs
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
}

// HookErrorHandler maps a failed hook to the error Transition returns
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

type StateMachineOption func(*accountLifecycle)

type TransitionOption func(*transitionPlan)

func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(l *accountLifecycle) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithStateMachineActivitySink receives one user.status.changed event per
// committed transition.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(l *accountLifecycle) {
		l.sink = normalizeActivitySink(sink)
	}
}

func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(l *accountLifecycle) {
		if handler != nil {
			l.onHookError = handler
		}
	}
}

func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(l *accountLifecycle) {
		l.logger = resolveLogger(logger)
	}
}

// WithTransitionPolicy adds a rule checked after the admin guard. Rules run
// in registration order.
func WithTransitionPolicy(policy TransitionPolicy) StateMachineOption {
	return func(l *accountLifecycle) {
		if policy != nil {
			l.policies = append(l.policies, policy)
		}
	}
}

func WithTransitionReason(reason string) TransitionOption {
	return func(p *transitionPlan) {
		p.meta.Reason = reason
	}
}

func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(p *transitionPlan) {
		if len(metadata) == 0 {
			return
		}
		if p.meta.Metadata == nil {
			p.meta.Metadata = make(map[string]any, len(metadata))
		}
		maps.Copy(p.meta.Metadata, metadata)
	}
}

func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(p *transitionPlan) {
		if h != nil {
			p.before = append(p.before, h)
		}
	}
}

func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(p *transitionPlan) {
		if h != nil {
			p.after = append(p.after, h)
		}
	}
}

// NewUserStateMachine returns the account lifecycle. Any status may move to
// any status, itself included, so re-applying a status still writes and
// still notifies. The admin account never transitions.
func NewUserStateMachine(users StatusUpdater, opts ...StateMachineOption) UserStateMachine {
	l := &accountLifecycle{
		users:       users,
		now:         utcNow,
		sink:        noopActivitySink{},
		logger:      defLogger{},
		onHookError: defaultHookErrorHandler,
		policies:    []TransitionPolicy{adminIsImmutable},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

type accountLifecycle struct {
	users       StatusUpdater
	now         func() time.Time
	sink        ActivitySink
	logger      Logger
	onHookError HookErrorHandler
	policies    []TransitionPolicy
}

type transitionPlan struct {
	meta   TransitionMetadata
	before []TransitionHook
	after  []TransitionHook
}

func adminIsImmutable(user *User, _ UserStatus) error {
	if user.IsAdmin {
		return ErrAdminImmutable
	}
	return nil
}

func (l *accountLifecycle) Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, NewValidationError("user is required", map[string]any{
			"target": string(target),
		})
	}

	if !target.IsValid() {
		return nil, ErrInvalidStatus
	}

	for _, allow := range l.policies {
		if err := allow(user, target); err != nil {
			return nil, err
		}
	}

	plan := &transitionPlan{}
	for _, opt := range opts {
		if opt != nil {
			opt(plan)
		}
	}

	tc := TransitionContext{
		Actor: actor,
		User:  user,
		From:  l.CurrentStatus(user),
		To:    target,
		Meta: TransitionMetadata{
			Reason:   plan.meta.Reason,
			Metadata: maps.Clone(plan.meta.Metadata),
		},
	}

	if err := l.runHooks(ctx, HookPhaseBefore, plan.before, tc); err != nil {
		return nil, err
	}

	at := l.now()
	stored, err := l.users.UpdateStatus(ctx, user.ID, target,
		WithStatusReason(tc.Meta.Reason),
		WithStatusChangedAt(at),
	)
	if err != nil {
		return nil, err
	}

	if stored != nil {
		user.Status = stored.Status
		user.StatusReason = stored.StatusReason
		user.StatusChangedAt = stored.StatusChangedAt
		user.UpdatedAt = stored.UpdatedAt
	} else {
		user.Status = target
		user.StatusReason = tc.Meta.Reason
		user.StatusChangedAt = &at
	}
	transitionsTotal.WithLabelValues(string(tc.From), string(target)).Inc()

	if err := l.runHooks(ctx, HookPhaseAfter, plan.after, tc); err != nil {
		return nil, err
	}

	activityRecorder{sink: l.sink, logger: l.logger, now: l.now}.record(ctx, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromStatus: tc.From,
		ToStatus:   target,
		Metadata:   tc.Meta.eventMetadata(),
		OccurredAt: at,
	})

	return user, nil
}

// CurrentStatus treats a blank status as pending
func (l *accountLifecycle) CurrentStatus(user *User) UserStatus {
	if user == nil {
		return ""
	}
	user.EnsureStatus()
	return user.Status
}

func (l *accountLifecycle) runHooks(ctx context.Context, phase TransitionHookPhase, hooks []TransitionHook, tc TransitionContext) error {
	for _, hook := range hooks {
		if err := hook(ctx, tc); err != nil {
			if l.onHookError == nil {
				return err
			}
			return l.onHookError(ctx, phase, err, tc)
		}
	}
	return nil
}

func defaultHookErrorHandler(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, "transition hook failed").
		WithMetadata(map[string]any{
			"phase":   string(phase),
			"user_id": tc.User.ID.String(),
			"from":    string(tc.From),
			"to":      string(tc.To),
		})
}

func (m TransitionMetadata) eventMetadata() map[string]any {
	if m.Reason == "" && len(m.Metadata) == 0 {
		return nil
	}

	out := make(map[string]any, len(m.Metadata)+1)
	maps.Copy(out, m.Metadata)
	if m.Reason != "" {
		out["reason"] = m.Reason
	}
	return out
}
