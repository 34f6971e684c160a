// Package commands обрабатывает текстовые команды и нажатия кнопок бота.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/magabrotheeeer/botgate/internal/botapi"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

// Тексты ответов бота.
const (
	helpText        = "Команды: /login вход в кабинет, /buy <тариф> оплата, /status подписки, /logout_all выход на всех устройствах."
	deniedText      = "Доступ для этой учётной записи закрыт."
	logoutAllText   = "Все сессии завершены. Для входа используйте /login."
	noSubsText      = "Активных подписок нет."
	buyUsageText    = "Укажите тариф: /buy <id тарифа>."
	tierMissingText = "Тариф не найден или недоступен для покупки."
	failureText     = "Не удалось выполнить команду, попробуйте позже."
)

// ErrNoSender обновление без отправителя.
var ErrNoSender = errors.New("update has no sender")

// Identities заведение личностей.
type Identities interface {
	EnsureIdentity(ctx context.Context, externalID int64, displayName string) (*models.Identity, error)
}

// Tokens выпуск токенов входа.
type Tokens interface {
	Issue(ctx context.Context, identityID string) (string, error)
	TTL() time.Duration
}

// Checkout создание счёта.
type Checkout interface {
	Checkout(ctx context.Context, identityID, tierID string, chatID int64) (*models.PaymentRecord, error)
}

// Subscriptions чтение подписок.
type Subscriptions interface {
	ListSubscriptions(ctx context.Context, identityID string) ([]*models.Subscription, error)
}

// Rotator отзыв всех сессий.
type Rotator interface {
	Rotate(ctx context.Context, identityID string) error
}

// Messenger ответы пользователю.
type Messenger interface {
	Text(ctx context.Context, chatID int64, text string)
	LoginLink(ctx context.Context, chatID int64, link string, ttl time.Duration)
	AnswerCallback(ctx context.Context, callbackID, text string)
}

// Router маршрутизатор команд бота.
type Router struct {
	identities    Identities
	tokens        Tokens
	checkout      Checkout
	subscriptions Subscriptions
	rotator       Rotator
	messenger     Messenger
	callbackURL   string
	log           *slog.Logger
}

// Deps зависимости Router.
type Deps struct {
	Identities    Identities
	Tokens        Tokens
	Checkout      Checkout
	Subscriptions Subscriptions
	Rotator       Rotator
	Messenger     Messenger
}

// New создаёт Router. publicBaseURL адрес, по которому доступен /auth/callback.
func New(deps Deps, publicBaseURL string, log *slog.Logger) *Router {
	return &Router{
		identities:    deps.Identities,
		tokens:        deps.Tokens,
		checkout:      deps.Checkout,
		subscriptions: deps.Subscriptions,
		rotator:       deps.Rotator,
		messenger:     deps.Messenger,
		callbackURL:   strings.TrimRight(publicBaseURL, "/") + "/auth/callback",
		log:           log,
	}
}

// HandleCommand обрабатывает текстовую команду.
func (r *Router) HandleCommand(ctx context.Context, msg *botapi.Message) error {
	const op = "commands.HandleCommand"

	if msg.From == nil {
		return fmt.Errorf("%s: %w", op, ErrNoSender)
	}
	name, args := ParseCommand(msg.Text)
	log := r.log.With(slog.String("op", op), slog.String("command", name))
	chatID := msg.Chat.ID

	identity, err := r.identities.EnsureIdentity(ctx, msg.From.ID, msg.From.DisplayName())
	if err != nil {
		r.messenger.Text(ctx, chatID, failureText)
		return fmt.Errorf("%s: %w", op, err)
	}
	if !identity.Active() {
		log.Info("command from inactive identity", slog.String("identity_id", identity.ID))
		r.messenger.Text(ctx, chatID, deniedText)
		return nil
	}

	switch name {
	case "start", "login":
		err = r.sendLoginLink(ctx, identity, chatID)
	case "buy":
		if len(args) == 0 {
			r.messenger.Text(ctx, chatID, buyUsageText)
			return nil
		}
		err = r.buy(ctx, identity, args[0], chatID)
	case "status":
		err = r.status(ctx, identity, chatID)
	case "logout_all":
		err = r.logoutAll(ctx, identity, chatID)
	default:
		r.messenger.Text(ctx, chatID, helpText)
		return nil
	}
	if err != nil {
		r.messenger.Text(ctx, chatID, failureText)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// HandleCallback обрабатывает нажатие inline-кнопки: "login" или "buy:<тариф>".
func (r *Router) HandleCallback(ctx context.Context, q *botapi.CallbackQuery) error {
	const op = "commands.HandleCallback"

	r.messenger.AnswerCallback(ctx, q.ID, "")

	chatID := q.From.ID
	if q.Message != nil {
		chatID = q.Message.Chat.ID
	}

	identity, err := r.identities.EnsureIdentity(ctx, q.From.ID, q.From.DisplayName())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !identity.Active() {
		r.messenger.Text(ctx, chatID, deniedText)
		return nil
	}

	action, arg, _ := strings.Cut(q.Data, ":")
	switch action {
	case "login":
		err = r.sendLoginLink(ctx, identity, chatID)
	case "buy":
		err = r.buy(ctx, identity, arg, chatID)
	default:
		r.messenger.Text(ctx, chatID, helpText)
		return nil
	}
	if err != nil {
		r.messenger.Text(ctx, chatID, failureText)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Router) sendLoginLink(ctx context.Context, identity *models.Identity, chatID int64) error {
	token, err := r.tokens.Issue(ctx, identity.ID)
	if err != nil {
		return err
	}
	r.messenger.LoginLink(ctx, chatID, r.LoginURL(token), r.tokens.TTL())
	return nil
}

// LoginURL собирает ссылку входа.
func (r *Router) LoginURL(token string) string {
	return r.callbackURL + "?" + url.Values{"token": {token}}.Encode()
}

func (r *Router) buy(ctx context.Context, identity *models.Identity, tierID string, chatID int64) error {
	if tierID == "" {
		r.messenger.Text(ctx, chatID, buyUsageText)
		return nil
	}
	_, err := r.checkout.Checkout(ctx, identity.ID, tierID, chatID)
	if errors.Is(err, storage.ErrTierNotFound) {
		r.messenger.Text(ctx, chatID, tierMissingText)
		return nil
	}
	return err
}

func (r *Router) status(ctx context.Context, identity *models.Identity, chatID int64) error {
	subs, err := r.subscriptions.ListSubscriptions(ctx, identity.ID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		r.messenger.Text(ctx, chatID, noSubsText)
		return nil
	}
	var b strings.Builder
	b.WriteString("Подписки:")
	for _, s := range subs {
		fmt.Fprintf(&b, "\n%s: %s до %s", s.ServiceID, s.Status, s.ExpiresAt.UTC().Format("02.01.2006"))
	}
	r.messenger.Text(ctx, chatID, b.String())
	return nil
}

func (r *Router) logoutAll(ctx context.Context, identity *models.Identity, chatID int64) error {
	if err := r.rotator.Rotate(ctx, identity.ID); err != nil {
		return err
	}
	r.messenger.Text(ctx, chatID, logoutAllText)
	return nil
}

// ParseCommand разбирает "/cmd@bot arg1 arg2" на имя и аргументы.
// Для текста без "/" имя пустое.
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}
