package bot

import (
	"context"
	"errors"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"userbot-connect/internal/login"
	userdomain "userbot-connect/internal/user/domain"
)

// Sender is the subset of *tgbotapi.BotAPI the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// UserReader looks up the language of a user.
type UserReader interface {
	GetByID(ctx context.Context, id int64) (*userdomain.User, error)
}

// Notifier sends login progress messages to users. Bot users talk to the bot
// in a private chat, so the chat id is the user id.
type Notifier struct {
	sender Sender
	users  UserReader

	mu      sync.Mutex
	prompts map[int64]int // user id → message id of the code keypad
}

// NewNotifier returns a Notifier sending through sender.
func NewNotifier(sender Sender, users UserReader) *Notifier {
	return &Notifier{sender: sender, users: users, prompts: make(map[int64]int)}
}

// PasswordRequired asks the user for the two-factor password.
func (n *Notifier) PasswordRequired(ctx context.Context, userID int64, hint string) error {
	lang := n.language(ctx, userID)
	n.dismissPrompt(userID, T(lang, "code_submitted"))
	text := T(lang, "password_prompt")
	if hint != "" {
		text += "\n" + T(lang, "password_hint", hint)
	}
	_, err := n.sender.Send(tgbotapi.NewMessage(userID, text))
	return err
}

// LoginFailed tells the user the login ended without a session.
func (n *Notifier) LoginFailed(ctx context.Context, userID int64, reason error) error {
	lang := n.language(ctx, userID)
	key := "login_failed"
	switch {
	case errors.Is(reason, login.ErrIdleTimeout):
		key = "login_timeout"
	case errors.Is(reason, login.ErrLoginCancelled):
		key = "login_cancelled"
	}
	n.dismissPrompt(userID, T(lang, key))
	msg := tgbotapi.NewMessage(userID, T(lang, key))
	msg.ReplyMarkup = startKeyboard(lang)
	_, err := n.sender.Send(msg)
	return err
}

// LoginSucceeded confirms a persisted login.
func (n *Notifier) LoginSucceeded(ctx context.Context, userID int64) error {
	lang := n.language(ctx, userID)
	n.dismissPrompt(userID, T(lang, "code_submitted"))
	_, err := n.sender.Send(tgbotapi.NewMessage(userID, T(lang, "login_success")))
	return err
}

func (n *Notifier) language(ctx context.Context, userID int64) string {
	if n.users == nil {
		return userdomain.DefaultLanguage
	}
	u, err := n.users.GetByID(ctx, userID)
	if err != nil || u == nil || u.Language == "" {
		return userdomain.DefaultLanguage
	}
	return u.Language
}

func (n *Notifier) trackPrompt(userID int64, messageID int) {
	n.mu.Lock()
	n.prompts[userID] = messageID
	n.mu.Unlock()
}

func (n *Notifier) prompt(userID int64) (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, ok := n.prompts[userID]
	return id, ok
}

// dismissPrompt replaces the code keypad with text. Editing without a markup
// removes the inline keyboard.
func (n *Notifier) dismissPrompt(userID int64, text string) {
	n.mu.Lock()
	id, ok := n.prompts[userID]
	delete(n.prompts, userID)
	n.mu.Unlock()
	if !ok {
		return
	}
	_, _ = n.sender.Request(tgbotapi.NewEditMessageText(userID, id, text))
}
