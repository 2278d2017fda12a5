package activitymap

import (
	"strings"
	"time"

	bank "github.com/goliatone/go-bank"
)

const (
	// MetadataKeyActorType stores the actor type derived from bank.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStatus stores the source status of a lifecycle transition.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the target status of a lifecycle transition.
	MetadataKeyToStatus = "to_status"
	// MetadataKeyCardID is set by card events and becomes their object id.
	MetadataKeyCardID = "card_id"
)

const (
	objectTypeUser = "user"
	objectTypeCard = "card"
	defaultActorID = "system"
)

// Record is the audit shape of a bank.ActivityEvent
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
	now           func() time.Time
}

// Normalize converts an event into a Record. Card events point at the card,
// every other event points at the user it concerns. The channel defaults to
// the event type prefix: user, auth or card.
func Normalize(event bank.ActivityEvent, opts ...Option) Record {
	options := normalizeOptions{
		actorFallback: defaultActorID,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	verb := string(event.EventType)
	channel := options.channel
	if channel == "" {
		channel, _, _ = strings.Cut(verb, ".")
	}

	objectType, objectID := objectTypeUser, strings.TrimSpace(event.UserID)
	if strings.HasPrefix(verb, "card.") {
		if id, ok := event.Metadata[MetadataKeyCardID].(string); ok && id != "" {
			objectType, objectID = objectTypeCard, id
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	return Record{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.UserID),
			options.actorFallback,
		),
		Verb:       verb,
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithChannel forces the channel of every record.
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the actor id used when the event names none.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if id := strings.TrimSpace(actorID); id != "" {
			opts.actorFallback = id
		}
	}
}

// WithClock stamps events that carry no time (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

func normalizeMetadata(event bank.ActivityEvent) map[string]any {
	metadata := map[string]any{}
	for key, value := range event.Metadata {
		metadata[key] = value
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			metadata[MetadataKeyActorType] = actorType
		}
	}
	if event.FromStatus != "" {
		metadata[MetadataKeyFromStatus] = string(event.FromStatus)
	}
	if event.ToStatus != "" {
		metadata[MetadataKeyToStatus] = string(event.ToStatus)
	}

	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
