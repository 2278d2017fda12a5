package bank

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ReviewCardMessage approves or rejects a card submission
type ReviewCardMessage struct {
	Actor      ActorRef          `json:"-"`
	CardID     uuid.UUID         `json:"-"`
	Approved   bool              `json:"approved"`
	OnResponse func(*CreditCard) `json:"-"`
}

func (e ReviewCardMessage) Type() string { return "card.review" }

// ReviewCardHandler records the admin decision on a card
type ReviewCardHandler struct {
	cards    Cards
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewReviewCardHandler creates the handler
func NewReviewCardHandler(cards Cards) *ReviewCardHandler {
	return &ReviewCardHandler{
		cards:    cards,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      utcNow,
	}
}

// WithActivitySink sets the sink used to emit card events.
func (h *ReviewCardHandler) WithActivitySink(sink ActivitySink) *ReviewCardHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ReviewCardHandler) WithLogger(logger Logger) *ReviewCardHandler {
	h.logger = resolveLogger(logger)
	return h
}

func (h *ReviewCardHandler) Execute(ctx context.Context, event ReviewCardMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during card review",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ReviewCardHandler) execute(ctx context.Context, event ReviewCardMessage) error {
	if event.CardID == uuid.Nil {
		return NewValidationError("card id required", map[string]any{"field": "id"})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	card, err := h.cards.SetApproval(ctx, event.CardID, event.Approved, h.now())
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to review card")
	}

	eventType := ActivityEventCardRejected
	if card.IsApproved {
		eventType = ActivityEventCardApproved
	}

	h.logger.Info("card reviewed", "card_id", card.ID.String(), "approved", card.IsApproved, "actor_id", event.Actor.ID)

	activityRecorder{sink: h.activity, logger: h.logger, now: h.now}.record(ctx, ActivityEvent{
		EventType: eventType,
		Actor:     event.Actor,
		UserID:    card.UserID.String(),
		Metadata: map[string]any{
			"card_id": card.ID.String(),
			"brand":   card.Brand,
			"last4":   card.Last4,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(card)
	}

	return nil
}
