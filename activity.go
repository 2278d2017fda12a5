package bank

import (
	"context"
	"errors"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserSignup             ActivityEventType = "user.signup"
	ActivityEventUserStatusChanged      ActivityEventType = "user.status.changed"
	ActivityEventUserProfileUpdated     ActivityEventType = "user.profile.updated"
	ActivityEventUserDeleted            ActivityEventType = "user.deleted"
	ActivityEventLoginSuccess           ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure           ActivityEventType = "auth.login.failure"
	ActivityEventLogout                 ActivityEventType = "auth.logout"
	ActivityEventPasswordResetRequested ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetForced    ActivityEventType = "auth.password.reset_forced"
	ActivityEventCardSubmitted          ActivityEventType = "card.submitted"
	ActivityEventCardApproved           ActivityEventType = "card.approved"
	ActivityEventCardRejected           ActivityEventType = "card.rejected"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

const (
	ActorTypeUser   = "user"
	ActorTypeAdmin  = "admin"
	ActorTypeSystem = "system"
)

// ActorFromUser builds the actor reference for u
func ActorFromUser(u *User) ActorRef {
	if u == nil {
		return ActorRef{Type: ActorTypeSystem}
	}
	if u.IsAdmin {
		return ActorRef{ID: u.ID.String(), Type: ActorTypeAdmin}
	}
	return ActorRef{ID: u.ID.String(), Type: ActorTypeUser}
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans an event out to every sink. All sinks run even
// when one fails; the failures are joined.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// activityRecorder stamps and forwards events, logging sink failures so
// the triggering operation never fails because of them.
type activityRecorder struct {
	sink   ActivitySink
	logger Logger
	now    func() time.Time
}

func (r activityRecorder) record(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: ActorTypeSystem}
	}

	if event.OccurredAt.IsZero() {
		now := r.now
		if now == nil {
			now = utcNow
		}
		event.OccurredAt = now()
	}

	sink := normalizeActivitySink(r.sink)
	if err := sink.Record(ctx, event); err != nil {
		resolveLogger(r.logger).Warn("activity sink error",
			"event", string(event.EventType),
			"user_id", event.UserID,
			"error", err,
		)
	}
}
