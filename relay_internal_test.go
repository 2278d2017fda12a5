package bank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers struct {
	Users
	byID  map[uuid.UUID]*User
	admin *User
}

func (s *stubUsers) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, NewNotFoundError("user", id.String())
}

func (s *stubUsers) GetAdmin(context.Context) (*User, error) {
	if s.admin == nil {
		return nil, NewNotFoundError("admin", "")
	}
	return s.admin, nil
}

type stubNotifications struct {
	Notifications
	err     error
	created []*Notification
}

func (s *stubNotifications) Create(_ context.Context, n *Notification) (*Notification, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, n)
	return n, nil
}

type stubMessages struct {
	Messages
	err     error
	created []*Message
}

func (s *stubMessages) Create(_ context.Context, m *Message) (*Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, m)
	return m, nil
}

type stubRelayStore struct {
	users         *stubUsers
	notifications *stubNotifications
	messages      *stubMessages
}

func (s stubRelayStore) Users() Users                 { return s.users }
func (s stubRelayStore) Notifications() Notifications { return s.notifications }
func (s stubRelayStore) Messages() Messages           { return s.messages }

func newStubRelayStore() (stubRelayStore, *User, *User) {
	admin := &User{ID: uuid.New(), Username: "admin", IsAdmin: true, Status: UserStatusApproved}
	user := &User{ID: uuid.New(), Username: "alice", Email: "alice@bank.test", Status: UserStatusPending}
	store := stubRelayStore{
		users: &stubUsers{
			byID:  map[uuid.UUID]*User{admin.ID: admin, user.ID: user},
			admin: admin,
		},
		notifications: &stubNotifications{},
		messages:      &stubMessages{},
	}
	return store, admin, user
}

func TestRelayStatusChangeSignedByActor(t *testing.T) {
	store, admin, user := newStubRelayStore()
	relay := NewRelay(store)

	err := relay.Record(context.Background(), ActivityEvent{
		EventType: ActivityEventUserStatusChanged,
		Actor:     ActorFromUser(admin),
		UserID:    user.ID.String(),
		ToStatus:  UserStatusSuspended,
		Metadata:  map[string]any{"reason": " fraud check "},
	})
	require.NoError(t, err)

	require.Len(t, store.notifications.created, 1)
	assert.Equal(t, user.ID, store.notifications.created[0].UserID)
	assert.Equal(t, "Your account status changed to suspended", store.notifications.created[0].Message)

	require.Len(t, store.messages.created, 1)
	msg := store.messages.created[0]
	assert.Equal(t, admin.ID, msg.SenderID)
	assert.Equal(t, user.ID, msg.ReceiverID)
	assert.Contains(t, msg.Content, "Reason: fraud check")
}

func TestRelayFallsBackToBootstrapAdmin(t *testing.T) {
	store, admin, user := newStubRelayStore()
	relay := NewRelay(store)

	err := relay.Record(context.Background(), ActivityEvent{
		EventType: ActivityEventPasswordResetForced,
		Actor:     ActorRef{Type: "system"},
		UserID:    user.ID.String(),
	})
	require.NoError(t, err)

	require.Len(t, store.messages.created, 1)
	assert.Equal(t, admin.ID, store.messages.created[0].SenderID)
}

func TestRelayIgnoresUnrelatedEvents(t *testing.T) {
	store, _, user := newStubRelayStore()
	relay := NewRelay(store)

	for _, eventType := range []ActivityEventType{ActivityEventLoginSuccess, ActivityEventLogout, ActivityEventUserDeleted} {
		require.NoError(t, relay.Record(context.Background(), ActivityEvent{
			EventType: eventType,
			UserID:    user.ID.String(),
		}))
	}

	assert.Empty(t, store.notifications.created)
	assert.Empty(t, store.messages.created)
}

func TestRelayCountsFailures(t *testing.T) {
	store, _, user := newStubRelayStore()
	store.notifications.err = errors.New("disk full")
	relay := NewRelay(store)

	notifBefore := testutil.ToFloat64(relayFailuresTotal.WithLabelValues(relayKindNotification))
	msgBefore := testutil.ToFloat64(relayDeliveriesTotal.WithLabelValues(relayKindMessage))

	err := relay.Record(context.Background(), ActivityEvent{
		EventType: ActivityEventUserSignup,
		Actor:     ActorFromUser(user),
		UserID:    user.ID.String(),
	})
	require.Error(t, err)

	// the welcome message still goes out
	require.Len(t, store.messages.created, 1)
	assert.Equal(t, notifBefore+1, testutil.ToFloat64(relayFailuresTotal.WithLabelValues(relayKindNotification)))
	assert.Equal(t, msgBefore+1, testutil.ToFloat64(relayDeliveriesTotal.WithLabelValues(relayKindMessage)))
}

func TestRelayUnknownSubject(t *testing.T) {
	store, _, _ := newStubRelayStore()
	relay := NewRelay(store)

	lookupBefore := testutil.ToFloat64(relayFailuresTotal.WithLabelValues("lookup"))

	err := relay.Record(context.Background(), ActivityEvent{
		EventType: ActivityEventCardSubmitted,
		UserID:    uuid.NewString(),
	})
	require.Error(t, err)
	assert.Equal(t, lookupBefore+1, testutil.ToFloat64(relayFailuresTotal.WithLabelValues("lookup")))

	err = relay.Record(context.Background(), ActivityEvent{
		EventType: ActivityEventCardSubmitted,
		UserID:    "not-a-uuid",
	})
	require.Error(t, err)
	assert.Empty(t, store.notifications.created)
}

func TestCardExpired(t *testing.T) {
	now := time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC)

	assert.False(t, cardExpired(6, 2026, now), "current month is still valid")
	assert.False(t, cardExpired(1, 2027, now))
	assert.True(t, cardExpired(5, 2026, now))
	assert.True(t, cardExpired(12, 2025, now))
}

func TestLastFour(t *testing.T) {
	assert.Equal(t, "4444", lastFour("5555-5555-5555-4444"))
	assert.Equal(t, "12", lastFour("12"))
}
