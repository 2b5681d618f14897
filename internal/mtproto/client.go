// Package mtproto runs Telegram user-account sessions with gotd: the
// interactive login that produces a session token and the long-lived client
// started from one.
package mtproto

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"userbot-connect/internal/login"
)

// ErrUnauthorized is returned by Serve when the stored session is no longer valid.
var ErrUnauthorized = errors.New("mtproto: session is not authorized")

// Client holds the application credentials shared by every user session.
type Client struct {
	appID   int
	appHash string
}

// NewClient returns a Client for the given MTProto application.
func NewClient(appID int, appHash string) *Client {
	return &Client{appID: appID, appHash: appHash}
}

// Authenticate runs the login flow for userID, asking cb for the phone
// number, code and two-factor password as the server requires them. It
// returns the resulting session as an opaque token.
func (c *Client) Authenticate(ctx context.Context, userID int64, cb login.Callbacks) (string, error) {
	storage := &memorySession{}
	client := telegram.NewClient(c.appID, c.appHash, telegram.Options{
		SessionStorage: storage,
		NoUpdates:      true,
	})
	err := client.Run(ctx, func(ctx context.Context) error {
		a := authenticator{cb: cb, hint: passwordHint(client.API())}
		return client.Auth().IfNecessary(ctx, auth.NewFlow(a, auth.SendCodeOptions{}))
	})
	if err != nil {
		return "", fmt.Errorf("mtproto: authenticate user %d: %w", userID, err)
	}
	data := storage.snapshot()
	if len(data) == 0 {
		return "", fmt.Errorf("mtproto: authenticate user %d: no session was stored", userID)
	}
	return EncodeSession(data), nil
}

// Serve runs a client from token until ctx is done. It fails fast with
// ErrUnauthorized when the session was revoked.
func (c *Client) Serve(ctx context.Context, userID int64, token string) error {
	data, err := DecodeSession(token)
	if err != nil {
		return err
	}
	client := telegram.NewClient(c.appID, c.appHash, telegram.Options{
		SessionStorage: &memorySession{data: data},
	})
	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return err
		}
		if !status.Authorized {
			return ErrUnauthorized
		}
		log.Printf("mtproto: user %d: userbot online as account %d", userID, status.User.ID)
		<-ctx.Done()
		return ctx.Err()
	})
}

// passwordHint fetches the two-factor hint; an empty hint is fine.
func passwordHint(api *tg.Client) func(ctx context.Context) string {
	return func(ctx context.Context) string {
		p, err := api.AccountGetPassword(ctx)
		if err != nil {
			log.Printf("mtproto: fetch password hint: %v", err)
			return ""
		}
		hint, _ := p.GetHint()
		return hint
	}
}

// authenticator adapts login callbacks to gotd's auth.UserAuthenticator.
type authenticator struct {
	cb   login.Callbacks
	hint func(ctx context.Context) string
}

func (a authenticator) Phone(ctx context.Context) (string, error) {
	return a.cb.PhoneNumber(ctx)
}

func (a authenticator) Password(ctx context.Context) (string, error) {
	hint := ""
	if a.hint != nil {
		hint = a.hint(ctx)
	}
	return a.cb.Password(ctx, hint)
}

func (a authenticator) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.cb.Code(ctx)
}

// Accounts are never created from the bot.
func (a authenticator) AcceptTermsOfService(context.Context, tg.HelpTermsOfService) error {
	return login.ErrSignUpRequired
}

func (a authenticator) SignUp(context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, login.ErrSignUpRequired
}
