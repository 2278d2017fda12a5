package bank

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// RelayStore is the persistence the relay writes to
type RelayStore interface {
	Users() Users
	Notifications() Notifications
	Messages() Messages
}

// RelayOption customizes a Relay
type RelayOption func(*Relay)

// WithRelayLogger sets the logger used for delivery failures
func WithRelayLogger(logger Logger) RelayOption {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRelayClock injects a custom clock (useful for tests).
func WithRelayClock(clock func() time.Time) RelayOption {
	return func(r *Relay) {
		if clock != nil {
			r.now = clock
		}
	}
}

// Relay turns activity events into notification and message rows. It is
// an ActivitySink: the action that produced an event has already been
// committed when Record runs, so delivery failures are logged and counted
// and never undo that action.
type Relay struct {
	repo   RelayStore
	logger Logger
	now    func() time.Time
}

var _ ActivitySink = (*Relay)(nil)

// NewRelay creates a relay over repo
func NewRelay(repo RelayStore, opts ...RelayOption) *Relay {
	r := &Relay{
		repo:   repo,
		logger: defLogger{},
		now:    utcNow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Notify appends an unread notification for userID
func (r *Relay) Notify(ctx context.Context, userID uuid.UUID, kind NotificationKind, text string) (*Notification, error) {
	record, err := r.repo.Notifications().Create(ctx, &Notification{
		UserID:    userID,
		Kind:      kind,
		Message:   text,
		CreatedAt: r.now(),
	})
	if err != nil {
		relayFailuresTotal.WithLabelValues(relayKindNotification).Inc()
		r.logger.Error("relay notification failed",
			"user_id", userID.String(),
			"kind", string(kind),
			"error", err,
		)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create notification")
	}
	relayDeliveriesTotal.WithLabelValues(relayKindNotification).Inc()
	return record, nil
}

// SendMessage appends an unread message from sender to receiver
func (r *Relay) SendMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string) (*Message, error) {
	record, err := r.repo.Messages().Create(ctx, &Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  r.now(),
	})
	if err != nil {
		relayFailuresTotal.WithLabelValues(relayKindMessage).Inc()
		r.logger.Error("relay message failed",
			"sender_id", senderID.String(),
			"receiver_id", receiverID.String(),
			"error", err,
		)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send message")
	}
	relayDeliveriesTotal.WithLabelValues(relayKindMessage).Inc()
	return record, nil
}

// Record implements ActivitySink.
func (r *Relay) Record(ctx context.Context, event ActivityEvent) error {
	switch event.EventType {
	case ActivityEventUserSignup:
		return r.onSignup(ctx, event)
	case ActivityEventUserStatusChanged:
		return r.onStatusChanged(ctx, event)
	case ActivityEventPasswordResetRequested:
		return r.onPasswordResetRequested(ctx, event)
	case ActivityEventPasswordResetForced:
		return r.onPasswordResetForced(ctx, event)
	case ActivityEventCardSubmitted:
		return r.onCardSubmitted(ctx, event)
	case ActivityEventCardApproved, ActivityEventCardRejected:
		return r.onCardReviewed(ctx, event)
	default:
		return nil
	}
}

func (r *Relay) onSignup(ctx context.Context, event ActivityEvent) error {
	user, err := r.subject(ctx, event)
	if err != nil {
		return err
	}
	admin, err := r.repo.Users().GetAdmin(ctx)
	if err != nil {
		return r.lookupFailed(event, err)
	}

	_, nerr := r.Notify(ctx, admin.ID, NotificationKindSignup, signupNotice(user))
	_, merr := r.SendMessage(ctx, admin.ID, user.ID, welcomeMessage(user))
	return errors.Join(nerr, merr)
}

func (r *Relay) onStatusChanged(ctx context.Context, event ActivityEvent) error {
	user, err := r.subject(ctx, event)
	if err != nil {
		return err
	}
	sender, err := r.sender(ctx, event.Actor)
	if err != nil {
		return r.lookupFailed(event, err)
	}

	reason := metadataString(event.Metadata, "reason")
	_, nerr := r.Notify(ctx, user.ID, NotificationKindStatus, statusNotice(event.ToStatus))
	_, merr := r.SendMessage(ctx, sender, user.ID, statusMessage(event.ToStatus, reason))
	return errors.Join(nerr, merr)
}

func (r *Relay) onPasswordResetRequested(ctx context.Context, event ActivityEvent) error {
	user, err := r.subject(ctx, event)
	if err != nil {
		return err
	}
	admin, err := r.repo.Users().GetAdmin(ctx)
	if err != nil {
		return r.lookupFailed(event, err)
	}
	_, err = r.Notify(ctx, admin.ID, NotificationKindPasswordReset, passwordResetRequestNotice(user))
	return err
}

func (r *Relay) onPasswordResetForced(ctx context.Context, event ActivityEvent) error {
	user, err := r.subject(ctx, event)
	if err != nil {
		return err
	}
	sender, err := r.sender(ctx, event.Actor)
	if err != nil {
		return r.lookupFailed(event, err)
	}
	_, nerr := r.Notify(ctx, user.ID, NotificationKindPasswordReset, passwordResetNotice())
	_, merr := r.SendMessage(ctx, sender, user.ID, passwordResetMessage())
	return errors.Join(nerr, merr)
}

func (r *Relay) onCardSubmitted(ctx context.Context, event ActivityEvent) error {
	user, err := r.subject(ctx, event)
	if err != nil {
		return err
	}
	admin, err := r.repo.Users().GetAdmin(ctx)
	if err != nil {
		return r.lookupFailed(event, err)
	}
	_, err = r.Notify(ctx, admin.ID, NotificationKindCard, cardSubmittedNotice(user,
		metadataString(event.Metadata, "brand"),
		metadataString(event.Metadata, "last4"),
	))
	return err
}

func (r *Relay) onCardReviewed(ctx context.Context, event ActivityEvent) error {
	user, err := r.subject(ctx, event)
	if err != nil {
		return err
	}
	approved := event.EventType == ActivityEventCardApproved
	_, err = r.Notify(ctx, user.ID, NotificationKindCard, cardReviewedNotice(approved,
		metadataString(event.Metadata, "last4"),
	))
	return err
}

func (r *Relay) subject(ctx context.Context, event ActivityEvent) (*User, error) {
	id, err := uuid.Parse(event.UserID)
	if err != nil {
		return nil, r.lookupFailed(event, err)
	}
	user, err := r.repo.Users().GetByID(ctx, id)
	if err != nil {
		return nil, r.lookupFailed(event, err)
	}
	return user, nil
}

// sender resolves who signs relay messages: the acting admin when known,
// otherwise the bootstrap admin.
func (r *Relay) sender(ctx context.Context, actor ActorRef) (uuid.UUID, error) {
	if actor.Type == ActorTypeAdmin {
		if id, err := uuid.Parse(actor.ID); err == nil {
			return id, nil
		}
	}
	admin, err := r.repo.Users().GetAdmin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return admin.ID, nil
}

func (r *Relay) lookupFailed(event ActivityEvent, err error) error {
	relayFailuresTotal.WithLabelValues("lookup").Inc()
	r.logger.Error("relay lookup failed",
		"event", string(event.EventType),
		"user_id", event.UserID,
		"error", err,
	)
	return err
}

func metadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
