package login

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"userbot-connect/internal/telemetry"
	telemetrydomain "userbot-connect/internal/telemetry/domain"
	userdomain "userbot-connect/internal/user/domain"
)

const (
	// DefaultIdleTimeout is how long an in-progress login may go without user
	// input before the sweeper abandons it.
	DefaultIdleTimeout = 10 * time.Minute
	// DefaultSweepInterval is how often Run checks for idle logins.
	DefaultSweepInterval = 30 * time.Second
	// DefaultActivationTTL is the subscription period granted by share activation.
	DefaultActivationTTL = 30 * 24 * time.Hour

	completionTimeout = 30 * time.Second
	eventSource       = "login"
)

// Callbacks is the question surface an authentication client drives. Each
// function blocks until the user answers or the login ends.
type Callbacks struct {
	PhoneNumber func(ctx context.Context) (string, error)
	Code        func(ctx context.Context) (string, error)
	Password    func(ctx context.Context, hint string) (string, error)
}

// Client runs the account authentication protocol for one user. Authenticate
// returns the opaque session token on success.
type Client interface {
	Authenticate(ctx context.Context, userID int64, cb Callbacks) (string, error)
}

// SessionStore is the minimal session store needed by the coordinator.
type SessionStore interface {
	Set(ctx context.Context, userID int64, token string) error
}

// UserRepo is the minimal user repository needed by the coordinator. Both
// methods are field-level writes so chat-side updates are never overwritten.
type UserRepo interface {
	SetAuthState(ctx context.Context, id int64, state userdomain.AuthState) error
	CompleteLogin(ctx context.Context, id int64, now time.Time, ttl time.Duration) (bool, error)
}

// Notifier tells the user about login progress the coordinator observes.
type Notifier interface {
	PasswordRequired(ctx context.Context, userID int64, hint string) error
	LoginFailed(ctx context.Context, userID int64, reason error) error
}

// EventEmitter receives login lifecycle events. Best-effort.
type EventEmitter interface {
	Emit(ctx context.Context, event *telemetrydomain.Event) error
}

// PostLoginHook runs after a successful login has been persisted and
// deregistered. Its error is logged and never reopens the login.
type PostLoginHook func(ctx context.Context, userID int64, token string) error

// Deps holds the collaborators of a Coordinator. Client and Sessions are
// required; the rest may be nil.
type Deps struct {
	Client    Client
	Sessions  SessionStore
	Users     UserRepo
	Notifier  Notifier
	Events    EventEmitter
	Metrics   *Metrics
	PostLogin PostLoginHook
}

// Options tunes a Coordinator. Zero values select the defaults.
type Options struct {
	CodeLength    int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	ActivationTTL time.Duration
	Now           func() time.Time
}

// Coordinator owns the userID → Resolver registry. It starts logins, routes
// late-arriving answers and runs the completion side effects.
type Coordinator struct {
	deps          Deps
	codeLength    int
	idleTimeout   time.Duration
	sweepInterval time.Duration
	activationTTL time.Duration
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	resolvers sync.Map // int64 → *Resolver

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewCoordinator returns a Coordinator with the given dependencies.
func NewCoordinator(deps Deps, opts Options) *Coordinator {
	if opts.CodeLength <= 0 {
		opts.CodeLength = DefaultCodeLength
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.ActivationTTL <= 0 {
		opts.ActivationTTL = DefaultActivationTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		deps:          deps,
		codeLength:    opts.CodeLength,
		idleTimeout:   opts.IdleTimeout,
		sweepInterval: opts.SweepInterval,
		activationTTL: opts.ActivationTTL,
		now:           opts.Now,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// StartLogin returns the in-progress login for userID, creating it and
// starting the authentication client in the background if there is none.
// It never waits for the login to finish.
func (c *Coordinator) StartLogin(userID int64, phone string) *Resolver {
	if v, ok := c.resolvers.Load(userID); ok {
		return v.(*Resolver)
	}
	r := newResolver(userID, phone, c.codeLength, c.now)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		r.fail(ErrLoginCancelled)
		return r
	}
	actual, loaded := c.resolvers.LoadOrStore(userID, r)
	if loaded {
		c.mu.Unlock()
		return actual.(*Resolver)
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.deps.Metrics.started(c.ctx)
	c.emit(userID, telemetrydomain.EventLoginStarted, map[string]string{"phone_known": fmt.Sprint(r.PhoneNumber() != "")})
	log.Printf("login: user %d: login started", userID)

	go c.drive(r)
	return r
}

// GetOrCreateResolver returns the existing login for userID or starts one.
func (c *Coordinator) GetOrCreateResolver(userID int64, phone string) *Resolver {
	return c.StartLogin(userID, phone)
}

// Resolver returns the in-progress login for userID.
func (c *Coordinator) Resolver(userID int64) (*Resolver, bool) {
	v, ok := c.resolvers.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(*Resolver), true
}

// Active reports whether userID has a login in progress.
func (c *Coordinator) Active(userID int64) bool {
	_, ok := c.resolvers.Load(userID)
	return ok
}

// Len returns the number of logins in progress.
func (c *Coordinator) Len() int {
	n := 0
	c.resolvers.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// RoutePhoneNumber forwards a phone number to userID's login. No-op without one.
func (c *Coordinator) RoutePhoneNumber(userID int64, phone string) bool {
	r, ok := c.Resolver(userID)
	if !ok {
		return false
	}
	return r.SupplyPhoneNumber(phone)
}

// RouteDigit appends one code digit to userID's login. No-op without one.
func (c *Coordinator) RouteDigit(userID int64, digit string) error {
	r, ok := c.Resolver(userID)
	if !ok {
		return nil
	}
	return r.AppendCodeDigit(digit)
}

// RouteCode forwards a whole code to userID's login. No-op without one.
func (c *Coordinator) RouteCode(userID int64, code string) bool {
	r, ok := c.Resolver(userID)
	if !ok {
		return false
	}
	return r.SupplyCode(code)
}

// RoutePassword forwards the two-factor password to userID's login. No-op
// without one.
func (c *Coordinator) RoutePassword(userID int64, password string) bool {
	r, ok := c.Resolver(userID)
	if !ok {
		return false
	}
	return r.SupplyPassword(password)
}

// CurrentCode returns the digits typed so far for userID, or "".
func (c *Coordinator) CurrentCode(userID int64) string {
	r, ok := c.Resolver(userID)
	if !ok {
		return ""
	}
	return r.CurrentCode()
}

// ClearCode empties userID's digit buffer.
func (c *Coordinator) ClearCode(userID int64) {
	if r, ok := c.Resolver(userID); ok {
		r.ClearCode()
	}
}

// Cancel abandons userID's login and removes it from the registry.
func (c *Coordinator) Cancel(userID int64, reason error) bool {
	r, ok := c.Resolver(userID)
	if !ok {
		return false
	}
	cancelled := r.Cancel(reason)
	c.deregister(r)
	return cancelled
}

// Run abandons logins idle for longer than the idle timeout until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return nil
		case <-ticker.C:
			c.SweepIdle()
		}
	}
}

// SweepIdle cancels every login whose last activity is older than the idle
// timeout and returns how many were cancelled.
func (c *Coordinator) SweepIdle() int {
	cutoff := c.now().Add(-c.idleTimeout)
	n := 0
	c.resolvers.Range(func(_, v any) bool {
		r := v.(*Resolver)
		if r.LastActivity().Before(cutoff) && r.Cancel(ErrIdleTimeout) {
			c.deregister(r)
			n++
		}
		return true
	})
	return n
}

// Shutdown cancels all in-progress logins and waits for their drives to
// return or ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.resolvers.Range(func(_, v any) bool {
		v.(*Resolver).Cancel(ErrLoginCancelled)
		return true
	})
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) drive(r *Resolver) {
	defer c.wg.Done()

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	go func() {
		select {
		case <-r.Done():
			c.deregister(r)
			cancel()
		case <-ctx.Done():
		}
	}()

	token, err := c.deps.Client.Authenticate(ctx, r.userID, c.callbacks(r))
	if err == nil {
		err = c.complete(r, token)
	}
	if err != nil {
		c.fail(r, err)
	}
}

func (c *Coordinator) callbacks(r *Resolver) Callbacks {
	return Callbacks{
		PhoneNumber: r.RequestPhoneNumber,
		Code:        r.RequestCode,
		Password: func(ctx context.Context, hint string) (string, error) {
			// The slot is open before the user is asked so an instant reply is not stale.
			wait, err := r.expectPassword(hint)
			if err != nil {
				return "", err
			}
			c.setAuthState(ctx, r.userID, userdomain.AuthStateAwaiting2FA)
			log.Printf("login: user %d: two-factor password required", r.userID)
			c.emit(r.userID, telemetrydomain.EventLoginPasswordRequired, nil)
			if c.deps.Notifier != nil {
				if err := c.deps.Notifier.PasswordRequired(ctx, r.userID, hint); err != nil {
					log.Printf("login: user %d: notify password required: %v", r.userID, err)
				}
			}
			return wait(ctx)
		},
	}
}

// complete persists the token and applies the success side effects. A
// persistence failure is returned so the drive takes the failure path.
func (c *Coordinator) complete(r *Resolver, token string) error {
	if outcome, _ := r.Outcome(); outcome != OutcomeInProgress {
		return ErrLoginFinished
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), completionTimeout)
	defer cancel()

	if err := c.deps.Sessions.Set(ctx, r.userID, token); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistSession, err)
	}

	activated := c.finishUser(ctx, r.userID)

	r.succeed()
	c.deregister(r)

	c.deps.Metrics.succeeded(ctx)
	c.emit(r.userID, telemetrydomain.EventLoginSucceeded, map[string]string{"activated": fmt.Sprint(activated)})
	log.Printf("login: user %d: login successful (activated=%t)", r.userID, activated)

	if c.deps.PostLogin != nil {
		if err := c.deps.PostLogin(ctx, r.userID, token); err != nil {
			log.Printf("login: user %d: post-login hook: %v", r.userID, err)
		}
	}
	return nil
}

// finishUser marks the user record done and applies share activation when it
// was pending. Failures are logged; the session is already persisted.
func (c *Coordinator) finishUser(ctx context.Context, userID int64) bool {
	if c.deps.Users == nil {
		return false
	}
	activated, err := c.deps.Users.CompleteLogin(ctx, userID, c.now(), c.activationTTL)
	if err != nil {
		if !errors.Is(err, userdomain.ErrNotFound) {
			log.Printf("login: user %d: complete user record: %v", userID, err)
		}
		return false
	}
	return activated
}

func (c *Coordinator) fail(r *Resolver, err error) {
	if !r.fail(err) {
		// Already abandoned; report the abandonment reason.
		if _, reason := r.Outcome(); reason != nil {
			err = reason
		}
	}
	c.deregister(r)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), completionTimeout)
	defer cancel()

	outcome, _ := r.Outcome()
	eventType := telemetrydomain.EventLoginFailed
	if outcome == OutcomeAbandoned {
		eventType = telemetrydomain.EventLoginAbandoned
		c.deps.Metrics.abandoned(ctx)
	} else {
		c.deps.Metrics.failed(ctx)
	}
	log.Printf("login: user %d: login %s: %v", r.userID, outcome, err)
	c.emit(r.userID, eventType, map[string]string{"reason": err.Error()})

	c.setAuthState(ctx, r.userID, userdomain.AuthStateFailed)
	// No user-facing failure message while the process is shutting down.
	if c.deps.Notifier != nil && c.ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		if nerr := c.deps.Notifier.LoginFailed(ctx, r.userID, err); nerr != nil {
			log.Printf("login: user %d: notify failure: %v", r.userID, nerr)
		}
	}
}

func (c *Coordinator) deregister(r *Resolver) {
	if c.resolvers.CompareAndDelete(r.userID, r) {
		c.deps.Metrics.deregistered(c.ctx)
	}
}

func (c *Coordinator) setAuthState(ctx context.Context, userID int64, state userdomain.AuthState) {
	if c.deps.Users == nil {
		return
	}
	if err := c.deps.Users.SetAuthState(ctx, userID, state); err != nil && !errors.Is(err, userdomain.ErrNotFound) {
		log.Printf("login: user %d: set auth state %s: %v", userID, state, err)
	}
}

func (c *Coordinator) emit(userID int64, eventType string, metadata map[string]string) {
	if c.deps.Events == nil {
		return
	}
	event := telemetrydomain.NewEvent(userID, eventType, eventSource, metadata)
	event.CreatedAt = c.now().UTC()
	telemetry.EmitAsync(c.deps.Events, c.ctx, event)
}
