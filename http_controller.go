package bank

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Controller serves the JSON API
type Controller struct {
	Debug  bool
	Logger Logger
	Repo   RepositoryManager
	Auther *Authenticator
	Relay  *Relay

	activity  ActivitySink
	tokenizer *CardTokenizer

	register      *RegisterUserHandler
	resetRequest  *RequestPasswordResetHandler
	resetForce    *ForcePasswordResetHandler
	deleteUser    *DeleteUserHandler
	changeStatus  *ChangeStatusHandler
	updateProfile *UpdateProfileHandler
	submitCard    *SubmitCardHandler
	reviewCard    *ReviewCardHandler
}

type ControllerOption func(*Controller) *Controller

// WithControllerLogger sets the logger used by the controller and its handlers
func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = resolveLogger(logger)
		return c
	}
}

// WithControllerActivitySink sets the sink every command emits to
func WithControllerActivitySink(sink ActivitySink) ControllerOption {
	return func(c *Controller) *Controller {
		c.activity = normalizeActivitySink(sink)
		return c
	}
}

// WithControllerRelay sets the relay used for user to user messages
func WithControllerRelay(relay *Relay) ControllerOption {
	return func(c *Controller) *Controller {
		c.Relay = relay
		return c
	}
}

// WithControllerCardTokenizer sets the card tokenizer
func WithControllerCardTokenizer(tokenizer *CardTokenizer) ControllerOption {
	return func(c *Controller) *Controller {
		c.tokenizer = tokenizer
		return c
	}
}

// WithControllerDebug dumps request payloads to the log
func WithControllerDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

// NewController wires the command handlers over repo
func NewController(repo RepositoryManager, auther *Authenticator, opts ...ControllerOption) *Controller {
	if repo == nil {
		panic("Missing RepositoryManager in bank controller...")
	}

	if auther == nil {
		panic("Missing Authenticator in bank controller...")
	}

	c := &Controller{
		Logger:   defLogger{},
		Repo:     repo,
		Auther:   auther,
		activity: noopActivitySink{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Relay == nil {
		c.Relay = NewRelay(repo, WithRelayLogger(c.Logger))
	}

	if c.tokenizer == nil {
		c.tokenizer = NewCardTokenizer(auther.Config().GetCardTokenKey())
	}

	machine := NewUserStateMachine(repo.Users(),
		WithStateMachineActivitySink(c.activity),
		WithStateMachineLogger(c.Logger),
	)

	c.register = NewRegisterUserHandler(repo, auther.Sessions()).
		WithActivitySink(c.activity).
		WithLogger(c.Logger)
	c.resetRequest = NewRequestPasswordResetHandler(repo).
		WithActivitySink(c.activity).
		WithLogger(c.Logger)
	c.resetForce = NewForcePasswordResetHandler(repo, auther.Sessions()).
		WithActivitySink(c.activity).
		WithLogger(c.Logger)
	c.deleteUser = NewDeleteUserHandler(repo).
		WithActivitySink(c.activity).
		WithLogger(c.Logger)
	c.changeStatus = NewChangeStatusHandler(repo.Users(), machine).
		WithLogger(c.Logger)
	c.updateProfile = NewUpdateProfileHandler(repo.Users()).
		WithActivitySink(c.activity).
		WithLogger(c.Logger)
	c.submitCard = NewSubmitCardHandler(repo.Cards(), c.tokenizer).
		WithActivitySink(c.activity).
		WithLogger(c.Logger)
	c.reviewCard = NewReviewCardHandler(repo.Cards()).
		WithActivitySink(c.activity).
		WithLogger(c.Logger)

	return c
}

// RegisterRoutes mounts the API on app
func RegisterRoutes[T any](app router.Router[T], c *Controller, guards *RouteAuthenticator) {
	session := guards.ProtectedRoute()
	admin := guards.AdminRoute()
	approved := guards.ApprovedRoute()

	app.Post("/signin", c.route("/signin", c.SignIn)).SetName("signin.post")
	app.Post("/signup", c.route("/signup", c.SignUp)).SetName("signup.post")
	app.Post("/password-reset", c.route("/password-reset", c.RequestPasswordReset)).SetName("pwd-reset.post")

	app.Post("/logout", c.route("/logout", c.Logout), session).SetName("logout.post")
	app.Get("/me", c.route("/me", c.Me), session).SetName("me.get")
	app.Put("/me", c.route("/me", c.UpdateMe), session).SetName("me.put")

	app.Get("/admin/users", c.route("/admin/users", c.ListUsers), admin).SetName("admin.users.list")
	app.Get("/admin/users/:id", c.route("/admin/users/:id", c.GetUser), admin).SetName("admin.users.get")
	app.Put("/admin/users/:id", c.route("/admin/users/:id", c.ChangeUserStatus), admin).SetName("admin.users.status")
	app.Delete("/admin/users/:id", c.route("/admin/users/:id", c.DeleteUser), admin).SetName("admin.users.delete")
	app.Post("/admin/reset-password/:id", c.route("/admin/reset-password/:id", c.ForcePasswordReset), admin).SetName("admin.pwd-reset.post")
	app.Get("/admin/cards", c.route("/admin/cards", c.ListAllCards), admin).SetName("admin.cards.list")
	app.Put("/admin/cards/:id", c.route("/admin/cards/:id", c.ReviewCard), admin).SetName("admin.cards.review")

	app.Get("/messages", c.route("/messages", c.ListMessages), session).SetName("messages.list")
	app.Get("/messages/unread", c.route("/messages/unread", c.UnreadMessages), session).SetName("messages.unread")
	app.Post("/messages", c.route("/messages", c.SendMessage), session).SetName("messages.post")
	app.Put("/messages/read", c.route("/messages/read", c.MarkMessagesRead), session).SetName("messages.read")

	app.Get("/notifications", c.route("/notifications", c.ListNotifications), session).SetName("notifications.list")
	app.Put("/notifications/read", c.route("/notifications/read", c.MarkNotificationsRead), session).SetName("notifications.read")

	app.Post("/cards", c.route("/cards", c.SubmitCard), approved).SetName("cards.post")
	app.Get("/cards", c.route("/cards", c.ListCards), session).SetName("cards.list")

	app.Get("/health", c.Health).SetName("health.get")
}

type routerContext = router.Context

// statusRecorder remembers the status of the JSON response
type statusRecorder struct {
	routerContext
	status int
}

func (r *statusRecorder) JSON(code int, v any) error {
	r.status = code
	return r.routerContext.JSON(code, v)
}

// route renders handler errors and records request metrics
func (c *Controller) route(name string, h router.HandlerFunc) router.HandlerFunc {
	return func(ctx router.Context) error {
		start := time.Now()
		rec := &statusRecorder{routerContext: ctx, status: http.StatusOK}

		err := h(rec)
		if err != nil {
			richErr := AsRichError(err)
			rec.status = HTTPStatus(richErr)
			if rec.status >= http.StatusInternalServerError {
				c.Logger.Error("request failed", "route", name, "error", err)
			} else {
				c.Logger.Debug("request rejected", "route", name, "text_code", richErr.TextCode)
			}
			err = WriteError(ctx, richErr)
		}

		httpRequestsTotal.WithLabelValues(ctx.Method(), name, statusLabel(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(ctx.Method(), name).Observe(time.Since(start).Seconds())
		return err
	}
}

func (c *Controller) bind(ctx router.Context, payload any) error {
	if err := ctx.Bind(payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidation)
	}

	if c.Debug {
		c.Logger.Debug("request payload", "path", ctx.OriginalURL(), "payload", print.MaybePrettyJSON(payload))
	}

	return nil
}

func (c *Controller) principal(ctx router.Context) (*Principal, error) {
	p, ok := GetRouterPrincipal(ctx, c.Auther.Config().GetContextKey())
	if !ok {
		if p, ok = FromContext(ctx.Context()); !ok {
			return nil, ErrUnauthenticated
		}
	}
	return p, nil
}

func sessionMeta(ctx router.Context) SessionMeta {
	return SessionMeta{
		IP:        ctx.IP(),
		UserAgent: ctx.GetString("User-Agent", ""),
	}
}

func paramUUID(ctx router.Context, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(ctx.Param(name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, NewValidationError("invalid "+name, map[string]any{name: raw})
	}
	return id, nil
}

// SignInRequest payload
type SignInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Validate will run validation rules
func (r SignInRequest) Validate() error {
	return validatePayload(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Identifier, validation.Required),
			validation.Field(&r.Password, validation.Required),
		)
	}, "invalid sign in payload")
}

func (c *Controller) SignIn(ctx router.Context) error {
	payload := new(SignInRequest)
	if err := c.bind(ctx, payload); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	result, err := c.Auther.SignIn(ctx.Context(), strings.TrimSpace(payload.Identifier), payload.Password, sessionMeta(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, result)
}

func (c *Controller) SignUp(ctx router.Context) error {
	payload := new(RegisterUserMessage)
	if err := c.bind(ctx, payload); err != nil {
		return err
	}

	var result *AuthResult
	payload.Session = sessionMeta(ctx)
	payload.OnResponse = func(r *AuthResult) { result = r }

	if err := c.register.Execute(ctx.Context(), *payload); err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, result)
}

func (c *Controller) RequestPasswordReset(ctx router.Context) error {
	payload := new(RequestPasswordResetMessage)
	if err := c.bind(ctx, payload); err != nil {
		return err
	}

	if err := c.resetRequest.Execute(ctx.Context(), *payload); err != nil {
		return err
	}

	return ctx.JSON(http.StatusAccepted, router.ViewContext{
		"message": "if the account exists the administrator has been notified",
	})
}

func (c *Controller) Logout(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	if err := c.Auther.SignOut(ctx.Context(), p); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{"success": true})
}

func (c *Controller) Me(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p.User)
}

func (c *Controller) UpdateMe(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	payload := new(UpdateProfileMessage)
	if err := c.bind(ctx, payload); err != nil {
		return err
	}

	var user *User
	payload.Actor = ActorFromUser(p.User)
	payload.UserID = p.UserUUID()
	payload.OnResponse = func(u *User) { user = u }

	if err := c.updateProfile.Execute(ctx.Context(), *payload); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, user)
}

func (c *Controller) ListUsers(ctx router.Context) error {
	filter := UserFilter{}
	if raw := strings.TrimSpace(ctx.Query("status", "")); raw != "" {
		status, ok := ParseUserStatus(raw)
		if !ok {
			return ErrInvalidStatus
		}
		filter.Status = status
	}

	users, err := c.Repo.Users().List(ctx.Context(), filter)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"users": users,
		"count": len(users),
	})
}

func (c *Controller) GetUser(ctx router.Context) error {
	id, err := paramUUID(ctx, "id")
	if err != nil {
		return err
	}

	user, err := c.Repo.Users().GetByID(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, user)
}

func (c *Controller) ChangeUserStatus(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	id, err := paramUUID(ctx, "id")
	if err != nil {
		return err
	}

	payload := new(ChangeStatusMessage)
	if err := c.bind(ctx, payload); err != nil {
		return err
	}

	var user *User
	payload.Actor = ActorFromUser(p.User)
	payload.UserID = id
	payload.OnResponse = func(u *User) { user = u }

	if err := c.changeStatus.Execute(ctx.Context(), *payload); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, user)
}

func (c *Controller) DeleteUser(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	id, err := paramUUID(ctx, "id")
	if err != nil {
		return err
	}

	var result *DeleteUserResponse
	err = c.deleteUser.Execute(ctx.Context(), DeleteUserMessage{
		Actor:      ActorFromUser(p.User),
		UserID:     id,
		OnResponse: func(r *DeleteUserResponse) { result = r },
	})
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, result)
}

func (c *Controller) ForcePasswordReset(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	id, err := paramUUID(ctx, "id")
	if err != nil {
		return err
	}

	payload := new(ForcePasswordResetMessage)
	if err := c.bind(ctx, payload); err != nil {
		return err
	}

	var result *ForcePasswordResetResponse
	payload.Actor = ActorFromUser(p.User)
	payload.UserID = id
	payload.OnResponse = func(r *ForcePasswordResetResponse) { result = r }

	if err := c.resetForce.Execute(ctx.Context(), *payload); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, result)
}

func (c *Controller) ListAllCards(ctx router.Context) error {
	filter := CardFilter{}
	switch strings.ToLower(strings.TrimSpace(ctx.Query("approved", ""))) {
	case "true":
		approved := true
		filter.Approved = &approved
	case "false":
		approved := false
		filter.Approved = &approved
	}

	cards, err := c.Repo.Cards().List(ctx.Context(), filter)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"cards": cards,
		"count": len(cards),
	})
}

func (c *Controller) ReviewCard(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	id, err := paramUUID(ctx, "id")
	if err != nil {
		return err
	}

	payload := new(ReviewCardMessage)
	if err := c.bind(ctx, payload); err != nil {
		return err
	}

	var card *CreditCard
	payload.Actor = ActorFromUser(p.User)
	payload.CardID = id
	payload.OnResponse = func(r *CreditCard) { card = r }

	if err := c.reviewCard.Execute(ctx.Context(), *payload); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, card)
}

func (c *Controller) ListMessages(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	if raw := strings.TrimSpace(ctx.Query("with", "")); raw != "" {
		partner, err := uuid.Parse(raw)
		if err != nil {
			return NewValidationError("invalid partner id", map[string]any{"with": raw})
		}

		thread, err := c.Repo.Messages().Thread(ctx.Context(), p.UserUUID(), partner)
		if err != nil {
			return err
		}

		return ctx.JSON(http.StatusOK, router.ViewContext{
			"partner_id": partner,
			"messages":   thread,
		})
	}

	conversations, err := c.Repo.Messages().Conversations(ctx.Context(), p.UserUUID())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"conversations": conversations,
	})
}

func (c *Controller) UnreadMessages(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	count, err := c.Repo.Messages().CountUnread(ctx.Context(), p.UserUUID())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{"unread": count})
}

// SendMessageRequest payload. An empty receiver addresses the admin.
type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

// Validate will run validation rules
func (r SendMessageRequest) Validate() error {
	return validatePayload(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.ReceiverID, validation.Length(0, 36)),
			validation.Field(&r.Content, validation.Required, validation.Length(1, 2000)),
		)
	}, "invalid message payload")
}

func (c *Controller) SendMessage(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	payload := new(SendMessageRequest)
	if err := c.bind(ctx, payload); err != nil {
		return err
	}

	payload.Content = strings.TrimSpace(payload.Content)
	if err := payload.Validate(); err != nil {
		return err
	}

	var receiver *User
	if raw := strings.TrimSpace(payload.ReceiverID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return NewValidationError("invalid receiver id", map[string]any{"receiver_id": raw})
		}
		if receiver, err = c.Repo.Users().GetByID(ctx.Context(), id); err != nil {
			return err
		}
	} else if receiver, err = c.Repo.Users().GetAdmin(ctx.Context()); err != nil {
		return err
	}

	if receiver.ID == p.UserUUID() {
		return NewValidationError("cannot send a message to yourself", nil)
	}

	msg, err := c.Relay.SendMessage(ctx.Context(), p.UserUUID(), receiver.ID, payload.Content)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, msg)
}

// MarkReadRequest payload
type MarkReadRequest struct {
	PartnerID string   `json:"partner_id"`
	IDs       []string `json:"ids"`
}

func (c *Controller) MarkMessagesRead(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	payload := new(MarkReadRequest)
	if err := c.bind(ctx, payload); err != nil {
		return err
	}

	partner, err := uuid.Parse(strings.TrimSpace(payload.PartnerID))
	if err != nil {
		return NewValidationError("invalid partner id", map[string]any{"partner_id": payload.PartnerID})
	}

	updated, err := c.Repo.Messages().MarkThreadRead(ctx.Context(), p.UserUUID(), partner)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{"updated": updated})
}

func (c *Controller) ListNotifications(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	records, err := c.Repo.Notifications().ListByUser(ctx.Context(), p.UserUUID())
	if err != nil {
		return err
	}

	unread := 0
	for _, n := range records {
		if !n.IsRead {
			unread++
		}
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"notifications": records,
		"unread":        unread,
	})
}

func (c *Controller) MarkNotificationsRead(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	payload := new(MarkReadRequest)
	if err := c.bind(ctx, payload); err != nil {
		return err
	}

	updated, err := c.Repo.Notifications().MarkRead(ctx.Context(), p.UserUUID(), payload.IDs...)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{"updated": updated})
}

func (c *Controller) SubmitCard(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	payload := new(SubmitCardMessage)
	if err := c.bind(ctx, payload); err != nil {
		return err
	}

	var card *CreditCard
	payload.Actor = ActorFromUser(p.User)
	payload.UserID = p.UserUUID()
	payload.OnResponse = func(r *CreditCard) { card = r }

	if err := c.submitCard.Execute(ctx.Context(), *payload); err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, card)
}

func (c *Controller) ListCards(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return err
	}

	cards, err := c.Repo.Cards().ListByUser(ctx.Context(), p.UserUUID())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{"cards": cards})
}

func (c *Controller) Health(ctx router.Context) error {
	return ctx.JSON(http.StatusOK, router.ViewContext{"status": "ok"})
}
