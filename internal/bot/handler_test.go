package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"userbot-connect/internal/login"
	userdomain "userbot-connect/internal/user/domain"
)

type fakeSender struct {
	mu     sync.Mutex
	nextID int
	sent   []tgbotapi.Chattable
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.sent = append(s.sent, c)
	return tgbotapi.Message{MessageID: s.nextID}, nil
}

func (s *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (s *fakeSender) messages() []tgbotapi.MessageConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range s.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSender) hasText(text string) bool {
	for _, m := range s.messages() {
		if strings.Contains(m.Text, text) {
			return true
		}
	}
	return false
}

func (s *fakeSender) deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.sent {
		if _, ok := c.(tgbotapi.DeleteMessageConfig); ok {
			n++
		}
	}
	return n
}

type memUsers struct {
	mu    sync.Mutex
	users map[int64]*userdomain.User
}

func newMemUsers(users ...*userdomain.User) *memUsers {
	m := &memUsers{users: map[int64]*userdomain.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) Create(_ context.Context, u *userdomain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Update(_ context.Context, u *userdomain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return userdomain.ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) SetAuthState(_ context.Context, id int64, state userdomain.AuthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return userdomain.ErrNotFound
	}
	u.AuthState = state
	return nil
}

func (m *memUsers) SetLanguage(_ context.Context, id int64, language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return userdomain.ErrNotFound
	}
	u.Language = language
	return nil
}

func (m *memUsers) BeginLogin(_ context.Context, id int64, phone string, pendingShare bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return userdomain.ErrNotFound
	}
	u.Phone = phone
	u.PendingShareActivation = pendingShare
	u.AuthState = userdomain.AuthStateAwaitingCode
	return nil
}

func (m *memUsers) CompleteLogin(_ context.Context, id int64, now time.Time, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, userdomain.ErrNotFound
	}
	return u.CompleteLogin(now, ttl), nil
}

func (m *memUsers) get(id int64) userdomain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

type memSessions struct {
	mu     sync.Mutex
	tokens map[int64]string
}

func newMemSessions() *memSessions { return &memSessions{tokens: map[int64]string{}} }

func (m *memSessions) Get(userID int64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[userID]
	return t, ok
}

func (m *memSessions) Set(_ context.Context, userID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = token
	return nil
}

func (m *memSessions) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID)
	return nil
}

type stopRecorder struct {
	mu      sync.Mutex
	stopped []int64
}

func (s *stopRecorder) Stop(_ context.Context, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, userID)
	return true
}

type clientFunc func(ctx context.Context, userID int64, cb login.Callbacks) (string, error)

func (f clientFunc) Authenticate(ctx context.Context, userID int64, cb login.Callbacks) (string, error) {
	return f(ctx, userID, cb)
}

type testBot struct {
	h        *Handler
	sender   *fakeSender
	users    *memUsers
	sessions *memSessions
	workers  *stopRecorder
	logins   *login.Coordinator
	nextUpd  int
}

func newTestBot(t *testing.T, client login.Client, users ...*userdomain.User) *testBot {
	t.Helper()
	b := &testBot{
		sender:   &fakeSender{},
		users:    newMemUsers(users...),
		sessions: newMemSessions(),
		workers:  &stopRecorder{},
	}
	notifier := NewNotifier(b.sender, b.users)
	b.logins = login.NewCoordinator(login.Deps{
		Client:   client,
		Sessions: b.sessions,
		Users:    b.users,
		Notifier: notifier,
		PostLogin: func(ctx context.Context, userID int64, _ string) error {
			return notifier.LoginSucceeded(ctx, userID)
		},
	}, login.Options{CodeLength: 5})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.logins.Shutdown(ctx)
	})
	b.h = NewHandler(Deps{
		Sender:   b.sender,
		Notifier: notifier,
		Logins:   b.logins,
		Users:    b.users,
		Sessions: b.sessions,
		Workers:  b.workers,
	})
	return b
}

func (b *testBot) update() int {
	b.nextUpd++
	return b.nextUpd
}

func (b *testBot) text(userID int64, text string) {
	msg := &tgbotapi.Message{
		MessageID: 1000 + b.update(),
		From:      &tgbotapi.User{ID: userID, UserName: "tester", LanguageCode: LangEn},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	b.h.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: b.nextUpd, Message: msg})
}

func (b *testBot) contact(userID, ownerID int64, phone string) {
	msg := &tgbotapi.Message{
		MessageID: 1000 + b.update(),
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Contact:   &tgbotapi.Contact{PhoneNumber: phone, UserID: ownerID},
	}
	b.h.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: b.nextUpd, Message: msg})
}

func (b *testBot) press(userID int64, data string) {
	q := &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: userID, Type: "private"}},
		Data:    data,
	}
	b.h.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: b.update(), CallbackQuery: q})
}

func activeUser(id int64) *userdomain.User {
	u := userdomain.NewGuest(id, "tester", LangEn, time.Now())
	u.Status = userdomain.UserStatusActive
	return u
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func blockingClient() login.Client {
	return clientFunc(func(ctx context.Context, _ int64, cb login.Callbacks) (string, error) {
		if _, err := cb.PhoneNumber(ctx); err != nil {
			return "", err
		}
		_, err := cb.Code(ctx)
		if err == nil {
			err = errors.New("unexpected code")
		}
		return "", err
	})
}

func TestStartRegistersGuest(t *testing.T) {
	b := newTestBot(t, blockingClient())
	b.text(7, "/start")

	u := b.users.get(7)
	if u.Status != userdomain.UserStatusDisabled || u.AuthState != userdomain.AuthStateGuest || u.Language != LangEn {
		t.Errorf("user = %+v", u)
	}
	if !b.sender.hasText(T(LangEn, "welcome")) {
		t.Error("welcome not sent")
	}
}

func TestConnectRequiresActiveSubscription(t *testing.T) {
	b := newTestBot(t, blockingClient())
	b.text(7, "/connect")

	if !b.sender.hasText(T(LangEn, "activate_first")) {
		t.Error("activate_first not sent")
	}
	if got := b.users.get(7).AuthState; got != userdomain.AuthStateGuest {
		t.Errorf("auth state = %s", got)
	}
}

func TestShareAsksForContact(t *testing.T) {
	b := newTestBot(t, blockingClient())
	b.text(7, "/share")

	if got := b.users.get(7).AuthState; got != userdomain.AuthStateAwaitingShareContact {
		t.Errorf("auth state = %s", got)
	}
	if !b.sender.hasText(T(LangEn, "share_prompt", 30)) {
		t.Error("share prompt not sent")
	}
}

func TestContactOfAnotherUserIsRejected(t *testing.T) {
	b := newTestBot(t, blockingClient(), activeUser(7))
	b.text(7, "/connect")
	b.contact(7, 8, "998901234567")

	if !b.sender.hasText(T(LangEn, "contact_not_own")) {
		t.Error("contact_not_own not sent")
	}
	if b.logins.Active(7) {
		t.Error("login started for a foreign contact")
	}
}

func TestContactWithoutConnectIsIgnored(t *testing.T) {
	b := newTestBot(t, blockingClient(), activeUser(7))
	b.contact(7, 7, "998901234567")

	if !b.sender.hasText(T(LangEn, "contact_unexpected")) {
		t.Error("contact_unexpected not sent")
	}
	if b.logins.Active(7) {
		t.Error("login started without /connect")
	}
}

func TestKeypadLoginStoresSession(t *testing.T) {
	gotPhone := make(chan string, 1)
	client := clientFunc(func(ctx context.Context, _ int64, cb login.Callbacks) (string, error) {
		phone, err := cb.PhoneNumber(ctx)
		if err != nil {
			return "", err
		}
		gotPhone <- phone
		code, err := cb.Code(ctx)
		if err != nil {
			return "", err
		}
		return "tok-" + code, nil
	})
	b := newTestBot(t, client, activeUser(7))

	b.text(7, "/connect")
	if got := b.users.get(7).AuthState; got != userdomain.AuthStateAwaitingContact {
		t.Fatalf("auth state after /connect = %s", got)
	}
	b.contact(7, 7, "998901234567")

	u := b.users.get(7)
	if u.Phone != "+998901234567" || u.AuthState != userdomain.AuthStateAwaitingCode || u.PendingShareActivation {
		t.Fatalf("user after contact = %+v", u)
	}
	select {
	case p := <-gotPhone:
		if p != "+998901234567" {
			t.Errorf("client phone = %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the phone number")
	}

	b.press(7, callbackDigitPrefix+"1")
	b.press(7, callbackDigitPrefix+"2")
	b.press(7, callbackClear)
	for _, d := range "12345" {
		b.press(7, callbackDigitPrefix+string(d))
	}

	eventually(t, "session", func() bool {
		tok, ok := b.sessions.Get(7)
		return ok && tok == "tok-12345"
	})
	eventually(t, "success message", func() bool { return b.sender.hasText(T(LangEn, "login_success")) })
	if got := b.users.get(7).AuthState; got != userdomain.AuthStateDone {
		t.Errorf("auth state = %s", got)
	}
}

func TestShareContactMarksPendingActivation(t *testing.T) {
	b := newTestBot(t, blockingClient())
	b.text(7, "/share")
	b.contact(7, 7, "+998 90 123 45 67")

	u := b.users.get(7)
	if !u.PendingShareActivation || u.AuthState != userdomain.AuthStateAwaitingCode {
		t.Errorf("user = %+v", u)
	}
	if !b.logins.Active(7) {
		t.Error("login not started")
	}
}

func TestPasswordIsRoutedAndDeleted(t *testing.T) {
	gotPassword := make(chan string, 1)
	client := clientFunc(func(ctx context.Context, _ int64, cb login.Callbacks) (string, error) {
		if _, err := cb.PhoneNumber(ctx); err != nil {
			return "", err
		}
		pw, err := cb.Password(ctx, "pet name")
		if err != nil {
			return "", err
		}
		gotPassword <- pw
		return "tok", nil
	})
	b := newTestBot(t, client, activeUser(7))
	b.text(7, "/connect")
	b.contact(7, 7, "998901234567")

	eventually(t, "awaiting_2fa", func() bool { return b.users.get(7).AuthState == userdomain.AuthStateAwaiting2FA })
	eventually(t, "password request", func() bool {
		r, ok := b.logins.Resolver(7)
		if !ok {
			return false
		}
		k, awaiting := r.Awaiting()
		return awaiting && k == login.KindPassword
	})
	if !b.sender.hasText(T(LangEn, "password_hint", "pet name")) {
		t.Error("hint not relayed")
	}

	b.text(7, "hunter2")
	select {
	case pw := <-gotPassword:
		if pw != "hunter2" {
			t.Errorf("password = %q", pw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the password")
	}
	if b.sender.deletes() != 1 {
		t.Errorf("deletes = %d, want 1", b.sender.deletes())
	}
}

func TestKeypadCancelAbandonsLogin(t *testing.T) {
	b := newTestBot(t, blockingClient(), activeUser(7))
	b.text(7, "/connect")
	b.contact(7, 7, "998901234567")

	b.press(7, callbackCancel)

	eventually(t, "cancel message", func() bool { return b.sender.hasText(T(LangEn, "login_cancelled")) })
	if b.logins.Active(7) {
		t.Error("login still registered")
	}
	eventually(t, "failed state", func() bool { return b.users.get(7).AuthState == userdomain.AuthStateFailed })
}

func TestKeypadWithoutLogin(t *testing.T) {
	b := newTestBot(t, blockingClient(), activeUser(7))
	b.press(7, callbackDigitPrefix+"1")

	var answered bool
	for _, c := range b.sender.sent {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok && cb.Text == T(LangEn, "no_login") {
			answered = true
		}
	}
	if !answered {
		t.Error("callback not answered with no_login")
	}
}

func TestTypedCodeWhileAwaitingCode(t *testing.T) {
	gotCode := make(chan string, 1)
	client := clientFunc(func(ctx context.Context, _ int64, cb login.Callbacks) (string, error) {
		if _, err := cb.PhoneNumber(ctx); err != nil {
			return "", err
		}
		code, err := cb.Code(ctx)
		if err != nil {
			return "", err
		}
		gotCode <- code
		return "tok", nil
	})
	b := newTestBot(t, client, activeUser(7))
	b.text(7, "/connect")
	b.contact(7, 7, "998901234567")

	b.text(7, "abc")
	if !b.sender.hasText(T(LangEn, "use_keypad")) {
		t.Error("use_keypad not sent for non-digits")
	}

	eventually(t, "code request", func() bool {
		r, ok := b.logins.Resolver(7)
		if !ok {
			return false
		}
		k, awaiting := r.Awaiting()
		return awaiting && k == login.KindCode
	})
	b.text(7, "54 321")
	select {
	case code := <-gotCode:
		if code != "54321" {
			t.Errorf("code = %q", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the code")
	}
}

func TestLogoutDropsSession(t *testing.T) {
	u := activeUser(7)
	u.AuthState = userdomain.AuthStateDone
	b := newTestBot(t, blockingClient(), u)
	_ = b.sessions.Set(context.Background(), 7, "tok")

	b.text(7, "/logout")

	if _, ok := b.sessions.Get(7); ok {
		t.Error("session still stored")
	}
	if len(b.workers.stopped) != 1 || b.workers.stopped[0] != 7 {
		t.Errorf("stopped = %v", b.workers.stopped)
	}
	if got := b.users.get(7).AuthState; got != userdomain.AuthStateGuest {
		t.Errorf("auth state = %s", got)
	}
}

func TestConnectWhenAlreadyConnected(t *testing.T) {
	b := newTestBot(t, blockingClient(), activeUser(7))
	_ = b.sessions.Set(context.Background(), 7, "tok")

	b.text(7, "/connect")
	if !b.sender.hasText(T(LangEn, "already_connected")) {
		t.Error("already_connected not sent")
	}
}

func TestLangCommand(t *testing.T) {
	b := newTestBot(t, blockingClient(), activeUser(7))
	b.text(7, "/lang ru")
	if got := b.users.get(7).Language; got != LangRu {
		t.Errorf("language = %q", got)
	}
	b.text(7, "/lang xx")
	if !b.sender.hasText(T(LangRu, "lang_usage")) {
		t.Error("usage not sent")
	}
}

func TestRunStopsWhenUpdatesClose(t *testing.T) {
	b := newTestBot(t, blockingClient())
	updates := make(chan tgbotapi.Update, 1)
	updates <- tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: 9, LanguageCode: LangEn},
		Chat:      &tgbotapi.Chat{ID: 9, Type: "private"},
		Text:      "/start",
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}}
	close(updates)

	if err := b.h.Run(context.Background(), updates); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !b.sender.hasText(T(LangEn, "welcome")) {
		t.Error("update not handled")
	}
}
