package mtproto

import (
	"context"
	"errors"
	"testing"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"userbot-connect/internal/login"
)

var _ auth.UserAuthenticator = authenticator{}

func TestSessionToken_RoundTrip(t *testing.T) {
	raw := []byte(`{"Version":1,"Data":{"DC":2}}`)
	got, err := DecodeSession(EncodeSession(raw))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(raw) {
		t.Errorf("decoded = %s, want %s", got, raw)
	}
	if _, err := DecodeSession(""); err == nil {
		t.Error("empty token should fail")
	}
	if _, err := DecodeSession("%%%"); err == nil {
		t.Error("invalid base64 should fail")
	}
}

func TestMemorySession(t *testing.T) {
	ctx := context.Background()
	var m memorySession
	if _, err := m.LoadSession(ctx); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("empty load err = %v, want session.ErrNotFound", err)
	}
	buf := []byte("abc")
	_ = m.StoreSession(ctx, buf)
	buf[0] = 'x'
	got, err := m.LoadSession(ctx)
	if err != nil || string(got) != "abc" {
		t.Errorf("LoadSession = %q, %v; stored data must be copied", got, err)
	}
}

func TestAuthenticator_DelegatesToCallbacks(t *testing.T) {
	var gotHint string
	a := authenticator{
		cb: login.Callbacks{
			PhoneNumber: func(context.Context) (string, error) { return "+15551234567", nil },
			Code:        func(context.Context) (string, error) { return "91234", nil },
			Password: func(_ context.Context, hint string) (string, error) {
				gotHint = hint
				return "pw", nil
			},
		},
		hint: func(context.Context) string { return "mother's maiden name" },
	}
	ctx := context.Background()
	if p, _ := a.Phone(ctx); p != "+15551234567" {
		t.Errorf("Phone = %q", p)
	}
	if c, _ := a.Code(ctx, &tg.AuthSentCode{}); c != "91234" {
		t.Errorf("Code = %q", c)
	}
	if pw, _ := a.Password(ctx); pw != "pw" || gotHint != "mother's maiden name" {
		t.Errorf("Password = %q with hint %q", pw, gotHint)
	}
	if _, err := a.SignUp(ctx); !errors.Is(err, login.ErrSignUpRequired) {
		t.Errorf("SignUp err = %v", err)
	}
	if err := a.AcceptTermsOfService(ctx, tg.HelpTermsOfService{}); !errors.Is(err, login.ErrSignUpRequired) {
		t.Errorf("AcceptTermsOfService err = %v", err)
	}
}
