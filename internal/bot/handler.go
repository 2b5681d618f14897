// Package bot is the chat front end of the login flow: it turns Telegram
// updates into user record changes and login answers.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"userbot-connect/internal/login"
	"userbot-connect/internal/telemetry"
	telemetrydomain "userbot-connect/internal/telemetry/domain"
	userdomain "userbot-connect/internal/user/domain"
	"userbot-connect/internal/user/repository"
)

const eventSource = "bot"

// Logins is the part of login.Coordinator the handler drives.
type Logins interface {
	GetOrCreateResolver(userID int64, phone string) *login.Resolver
	Active(userID int64) bool
	RoutePhoneNumber(userID int64, phone string) bool
	RouteDigit(userID int64, digit string) error
	RouteCode(userID int64, code string) bool
	RoutePassword(userID int64, password string) bool
	CurrentCode(userID int64) string
	ClearCode(userID int64)
	Cancel(userID int64, reason error) bool
}

// Sessions is the part of the session store the handler needs.
type Sessions interface {
	Get(userID int64) (string, bool)
	Delete(ctx context.Context, userID int64) error
}

// Workers stops running userbots.
type Workers interface {
	Stop(ctx context.Context, userID int64) bool
}

// Deps holds the collaborators of a Handler. Events and Workers may be nil.
type Deps struct {
	Sender        Sender
	Notifier      *Notifier
	Logins        Logins
	Users         repository.Repository
	Sessions      Sessions
	Workers       Workers
	Events        telemetry.EventEmitter
	CodeLength    int
	ActivationTTL time.Duration
	// Language is assigned to new users whose Telegram language is unsupported.
	Language string
	Now      func() time.Time
}

// Handler routes Telegram updates.
type Handler struct {
	Deps
}

// NewHandler returns a Handler. A nil Notifier is replaced by one sending
// through deps.Sender.
func NewHandler(deps Deps) *Handler {
	if deps.Notifier == nil {
		deps.Notifier = NewNotifier(deps.Sender, deps.Users)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if !SupportedLanguage(deps.Language) {
		deps.Language = userdomain.DefaultLanguage
	}
	if deps.CodeLength <= 0 {
		deps.CodeLength = login.DefaultCodeLength
	}
	if deps.ActivationTTL <= 0 {
		deps.ActivationTTL = login.DefaultActivationTTL
	}
	return &Handler{Deps: deps}
}

// HandleUpdate processes one update. Failures are logged and reported to the
// user; they never stop the update loop.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	var (
		err    error
		chatID int64
		lang   = userdomain.DefaultLanguage
	)
	switch {
	case upd.CallbackQuery != nil:
		q := upd.CallbackQuery
		if q.From == nil || q.Message == nil || q.Message.Chat == nil {
			return
		}
		chatID = q.Message.Chat.ID
		lang, err = h.handleCallback(ctx, q)
	case upd.Message != nil:
		msg := upd.Message
		if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
			return
		}
		chatID = msg.Chat.ID
		lang, err = h.handleMessage(ctx, msg)
	default:
		return
	}
	if err != nil {
		log.Printf("bot: update %d: %v", upd.UpdateID, err)
		h.reply(chatID, T(lang, "error"), nil)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	u, err := h.loadUser(ctx, msg.From)
	if err != nil {
		return userdomain.DefaultLanguage, err
	}
	lang := u.Language

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			h.reply(msg.Chat.ID, T(lang, "welcome"), startKeyboard(lang))
			return lang, nil
		case "connect":
			return lang, h.connect(ctx, msg.Chat.ID, u)
		case "share":
			return lang, h.share(ctx, msg.Chat.ID, u)
		case "cancel":
			return lang, h.cancel(ctx, msg.Chat.ID, u)
		case "logout":
			return lang, h.logout(ctx, msg.Chat.ID, u)
		case "lang":
			return h.setLanguage(ctx, msg, u)
		}
		return lang, nil
	}

	if msg.Contact != nil {
		return lang, h.contact(ctx, msg, u)
	}

	text := strings.TrimSpace(msg.Text)
	switch text {
	case "":
		return lang, nil
	case T(lang, "btn_connect"):
		return lang, h.connect(ctx, msg.Chat.ID, u)
	case T(lang, "btn_share"):
		return lang, h.share(ctx, msg.Chat.ID, u)
	}

	switch u.AuthState {
	case userdomain.AuthStateAwaitingCode:
		h.typedCode(msg.Chat.ID, u, text)
	case userdomain.AuthStateAwaiting2FA:
		h.password(msg, u, text)
	}
	return lang, nil
}

// loadUser returns the user record, creating a guest on first contact.
func (h *Handler) loadUser(ctx context.Context, from *tgbotapi.User) (*userdomain.User, error) {
	u, err := h.Users.GetByID(ctx, from.ID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", from.ID, err)
	}
	if u != nil {
		return u, nil
	}
	lang := from.LanguageCode
	if !SupportedLanguage(lang) {
		lang = h.Language
	}
	u = userdomain.NewGuest(from.ID, from.UserName, lang, h.Now())
	if err := h.Users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user %d: %w", from.ID, err)
	}
	log.Printf("bot: user %d: registered", u.ID)
	return u, nil
}

func (h *Handler) connect(ctx context.Context, chatID int64, u *userdomain.User) error {
	lang := u.Language
	if !u.IsActive(h.Now()) {
		h.reply(chatID, T(lang, "activate_first"), nil)
		return nil
	}
	if _, ok := h.Sessions.Get(u.ID); ok {
		h.reply(chatID, T(lang, "already_connected"), nil)
		return nil
	}
	if err := h.Users.SetAuthState(ctx, u.ID, userdomain.AuthStateAwaitingContact); err != nil {
		return fmt.Errorf("set auth state: %w", err)
	}
	h.reply(chatID, T(lang, "connect_prompt"), contactKeyboard(lang))
	return nil
}

func (h *Handler) share(ctx context.Context, chatID int64, u *userdomain.User) error {
	lang := u.Language
	if u.IsActive(h.Now()) {
		h.reply(chatID, T(lang, "already_active"), nil)
		return nil
	}
	if err := h.Users.SetAuthState(ctx, u.ID, userdomain.AuthStateAwaitingShareContact); err != nil {
		return fmt.Errorf("set auth state: %w", err)
	}
	days := int(h.ActivationTTL / (24 * time.Hour))
	h.reply(chatID, T(lang, "share_prompt", days), contactKeyboard(lang))
	return nil
}

// contact starts the login once the user shares their own number.
func (h *Handler) contact(ctx context.Context, msg *tgbotapi.Message, u *userdomain.User) error {
	lang := u.Language
	c := msg.Contact
	if c.UserID != msg.From.ID {
		h.reply(msg.Chat.ID, T(lang, "contact_not_own"), nil)
		return nil
	}
	if !u.AuthState.AwaitingContact() {
		h.reply(msg.Chat.ID, T(lang, "contact_unexpected"), nil)
		return nil
	}
	phone, err := NormalizePhone(c.PhoneNumber)
	if err != nil {
		h.reply(msg.Chat.ID, T(lang, "invalid_phone"), nil)
		return nil
	}
	log.Printf("bot: user %d: contact received %s", u.ID, maskPhone(phone))

	pendingShare := u.AuthState == userdomain.AuthStateAwaitingShareContact
	if err := h.Users.BeginLogin(ctx, u.ID, phone, pendingShare); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	r := h.Logins.GetOrCreateResolver(u.ID, phone)
	h.Logins.RoutePhoneNumber(u.ID, phone)

	h.reply(msg.Chat.ID, T(lang, "contact_received"), tgbotapi.NewRemoveKeyboard(false))
	prompt := tgbotapi.NewMessage(msg.Chat.ID, codePromptText(lang, r.CurrentCode(), r.CodeLength()))
	prompt.ReplyMarkup = numericKeyboard(lang)
	sent, err := h.Sender.Send(prompt)
	if err != nil {
		return fmt.Errorf("send code prompt: %w", err)
	}
	h.Notifier.trackPrompt(u.ID, sent.MessageID)
	return nil
}

// handleCallback handles the code keypad.
func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) (string, error) {
	userID := q.From.ID
	lang := h.Notifier.language(ctx, userID)
	answer := ""
	defer func() { _, _ = h.Sender.Request(tgbotapi.NewCallback(q.ID, answer)) }()

	if !h.Logins.Active(userID) {
		answer = T(lang, "no_login")
		h.edit(q.Message.Chat.ID, q.Message.MessageID, T(lang, "no_login"), nil)
		return lang, nil
	}

	switch data := q.Data; {
	case data == callbackCancel:
		// The coordinator reports the cancellation through the Notifier.
		h.Logins.Cancel(userID, login.ErrLoginCancelled)
		return lang, nil
	case data == callbackClear:
		h.Logins.ClearCode(userID)
	case strings.HasPrefix(data, callbackDigitPrefix):
		err := h.Logins.RouteDigit(userID, strings.TrimPrefix(data, callbackDigitPrefix))
		switch {
		case errors.Is(err, login.ErrCodeComplete):
			answer = T(lang, "code_complete")
			return lang, nil
		case err != nil:
			return lang, nil
		}
	default:
		return lang, nil
	}

	code := h.Logins.CurrentCode(userID)
	if code == "" && q.Data != callbackClear {
		h.edit(q.Message.Chat.ID, q.Message.MessageID, T(lang, "code_submitted"), nil)
		return lang, nil
	}
	kb := numericKeyboard(lang)
	h.edit(q.Message.Chat.ID, q.Message.MessageID, codePromptText(lang, code, h.CodeLength), &kb)
	return lang, nil
}

// typedCode accepts a code typed as text while the keypad is shown.
func (h *Handler) typedCode(chatID int64, u *userdomain.User, text string) {
	lang := u.Language
	code := strings.Join(strings.Fields(text), "")
	if !isDigits(code) {
		h.reply(chatID, T(lang, "use_keypad"), nil)
		return
	}
	if !h.Logins.RouteCode(u.ID, code) {
		h.reply(chatID, T(lang, "no_login"), nil)
		return
	}
	h.reply(chatID, T(lang, "code_submitted"), nil)
}

// password forwards the two-factor password and removes it from the chat.
func (h *Handler) password(msg *tgbotapi.Message, u *userdomain.User, text string) {
	lang := u.Language
	_, _ = h.Sender.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID))
	if !h.Logins.RoutePassword(u.ID, text) {
		h.reply(msg.Chat.ID, T(lang, "no_login"), nil)
		return
	}
	h.reply(msg.Chat.ID, T(lang, "password_received"), nil)
}

func (h *Handler) cancel(ctx context.Context, chatID int64, u *userdomain.User) error {
	if h.Logins.Cancel(u.ID, login.ErrLoginCancelled) {
		return nil
	}
	if u.AuthState != userdomain.AuthStateGuest && u.AuthState != userdomain.AuthStateDone {
		if err := h.Users.SetAuthState(ctx, u.ID, userdomain.AuthStateGuest); err != nil {
			return fmt.Errorf("set auth state: %w", err)
		}
	}
	h.reply(chatID, T(u.Language, "nothing_to_cancel"), startKeyboard(u.Language))
	return nil
}

// logout drops the stored session and stops the user's userbot.
func (h *Handler) logout(ctx context.Context, chatID int64, u *userdomain.User) error {
	h.Logins.Cancel(u.ID, login.ErrLoginCancelled)
	if h.Workers != nil {
		h.Workers.Stop(ctx, u.ID)
	}
	if err := h.Sessions.Delete(ctx, u.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := h.Users.SetAuthState(ctx, u.ID, userdomain.AuthStateGuest); err != nil {
		return fmt.Errorf("set auth state: %w", err)
	}
	if h.Events != nil {
		telemetry.EmitAsync(h.Events, ctx, telemetrydomain.NewEvent(u.ID, telemetrydomain.EventLogout, eventSource, nil))
	}
	log.Printf("bot: user %d: logged out", u.ID)
	h.reply(chatID, T(u.Language, "logged_out"), startKeyboard(u.Language))
	return nil
}

func (h *Handler) setLanguage(ctx context.Context, msg *tgbotapi.Message, u *userdomain.User) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(msg.CommandArguments()))
	if !SupportedLanguage(lang) {
		h.reply(msg.Chat.ID, T(u.Language, "lang_usage"), nil)
		return u.Language, nil
	}
	if err := h.Users.SetLanguage(ctx, u.ID, lang); err != nil {
		return lang, fmt.Errorf("update user: %w", err)
	}
	h.reply(msg.Chat.ID, T(lang, "lang_set"), startKeyboard(lang))
	return lang, nil
}

func (h *Handler) reply(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := h.Sender.Send(msg); err != nil {
		log.Printf("bot: chat %d: send: %v", chatID, err)
	}
}

func (h *Handler) edit(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	var c tgbotapi.EditMessageTextConfig
	if kb != nil {
		c = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *kb)
	} else {
		c = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	if _, err := h.Sender.Request(c); err != nil {
		log.Printf("bot: chat %d: edit message %d: %v", chatID, messageID, err)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
