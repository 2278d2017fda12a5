package bank

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

var cvvPattern = regexp.MustCompile(`^[0-9]{3,4}$`)

// SubmitCardMessage carries raw card details. Only the token, the last four
// digits and the brand survive past the handler.
type SubmitCardMessage struct {
	Actor      ActorRef          `json:"-"`
	UserID     uuid.UUID         `json:"-"`
	Number     string            `json:"card_number"`
	HolderName string            `json:"holder_name"`
	ExpMonth   int               `json:"exp_month"`
	ExpYear    int               `json:"exp_year"`
	CVV        string            `json:"cvv"`
	OnResponse func(*CreditCard) `json:"-"`
}

func (e SubmitCardMessage) Type() string { return "card.submit" }

// Validate will run validation rules
func (e SubmitCardMessage) Validate() error {
	return validatePayload(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Number, validation.Required, is.CreditCard),
			validation.Field(&e.HolderName, validation.Required, validation.Length(2, 100)),
			validation.Field(&e.ExpMonth, validation.Required, validation.Min(1), validation.Max(12)),
			validation.Field(&e.ExpYear, validation.Required, validation.Min(2000), validation.Max(2100)),
			validation.Field(&e.CVV, validation.Required, validation.Match(cvvPattern)),
		)
	}, "invalid card payload")
}

// SubmitCardHandler tokenizes and stores a card submission
type SubmitCardHandler struct {
	cards     Cards
	tokenizer *CardTokenizer
	activity  ActivitySink
	logger    Logger
	now       func() time.Time
}

// NewSubmitCardHandler creates the handler
func NewSubmitCardHandler(cards Cards, tokenizer *CardTokenizer) *SubmitCardHandler {
	if tokenizer == nil {
		tokenizer = NewCardTokenizer("")
	}
	return &SubmitCardHandler{
		cards:     cards,
		tokenizer: tokenizer,
		activity:  noopActivitySink{},
		logger:    defLogger{},
		now:       utcNow,
	}
}

// WithActivitySink sets the sink used to emit card events.
func (h *SubmitCardHandler) WithActivitySink(sink ActivitySink) *SubmitCardHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *SubmitCardHandler) WithLogger(logger Logger) *SubmitCardHandler {
	h.logger = resolveLogger(logger)
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *SubmitCardHandler) WithClock(clock func() time.Time) *SubmitCardHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *SubmitCardHandler) Execute(ctx context.Context, event SubmitCardMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during card submission",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SubmitCardHandler) execute(ctx context.Context, event SubmitCardMessage) error {
	event.Number = NormalizeCardNumber(event.Number)
	event.HolderName = strings.TrimSpace(event.HolderName)
	event.CVV = strings.TrimSpace(event.CVV)

	if err := event.Validate(); err != nil {
		return err
	}

	now := h.now()
	if cardExpired(event.ExpMonth, event.ExpYear, now) {
		return NewValidationError("card is expired", map[string]any{
			"exp_month": event.ExpMonth,
			"exp_year":  event.ExpYear,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	card, err := h.cards.Create(ctx, &CreditCard{
		UserID:     event.UserID,
		Token:      h.tokenizer.Tokenize(event.Number),
		Last4:      lastFour(event.Number),
		Brand:      CardBrand(event.Number),
		HolderName: event.HolderName,
		ExpMonth:   event.ExpMonth,
		ExpYear:    event.ExpYear,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store card submission")
	}

	h.logger.Info("card submitted", "user_id", event.UserID.String(), "card_id", card.ID.String(), "brand", card.Brand)

	activityRecorder{sink: h.activity, logger: h.logger, now: h.now}.record(ctx, ActivityEvent{
		EventType: ActivityEventCardSubmitted,
		Actor:     event.Actor,
		UserID:    event.UserID.String(),
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

// cardExpired reports whether the card stopped being valid before the
// month that contains now.
func cardExpired(month, year int, now time.Time) bool {
	now = now.UTC()
	if year != now.Year() {
		return year < now.Year()
	}
	return month < int(now.Month())
}
