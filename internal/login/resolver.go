// Package login coordinates interactive Telegram account logins: it bridges an
// authentication client that blocks on "phone?", "code?" and "password?" with
// chat input that arrives piecemeal and at the user's pace.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Sentinel errors returned by Resolver and Coordinator.
var (
	ErrLoginCancelled  = errors.New("login cancelled")
	ErrIdleTimeout     = errors.New("login abandoned after inactivity")
	ErrAlreadyAwaiting = errors.New("answer already being awaited")
	ErrCodeComplete    = errors.New("code already complete")
	ErrInvalidDigit    = errors.New("code digit must be a single decimal digit")
	ErrLoginFinished   = errors.New("login already finished")
	ErrPersistSession  = errors.New("persist session")
	ErrSignUpRequired  = errors.New("phone number is not registered")
)

// DefaultCodeLength is the length of Telegram login codes.
const DefaultCodeLength = 5

// Kind identifies one of the three answers a login can wait for.
type Kind int

const (
	KindPhone Kind = iota
	KindCode
	KindPassword
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindPhone:
		return "phone"
	case KindCode:
		return "code"
	case KindPassword:
		return "password"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SlotState is the state of one pending answer.
type SlotState int

const (
	SlotUnrequested SlotState = iota
	SlotAwaiting
	SlotAnswered
)

func (s SlotState) String() string {
	switch s {
	case SlotUnrequested:
		return "unrequested"
	case SlotAwaiting:
		return "awaiting"
	case SlotAnswered:
		return "answered"
	default:
		return "unknown"
	}
}

// Outcome is the lifecycle state of a login.
type Outcome int

const (
	OutcomeInProgress Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInProgress:
		return "in_progress"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// slot is a single-use rendezvous: one requester parks on ch, one supplier
// fills it. ch has capacity one so a supplier never blocks.
type slot struct {
	state SlotState
	ch    chan string
}

// Resolver is the state of one user's in-progress login. All methods are safe
// for concurrent use; Request* calls block, every other method returns
// immediately.
type Resolver struct {
	userID     int64
	codeLength int
	now        func() time.Time

	mu           sync.Mutex
	phone        string
	code         []byte
	hint         string
	slots        [kindCount]slot
	outcome      Outcome
	reason       error
	lastActivity time.Time
	done         chan struct{}
}

// NewResolver returns a Resolver for userID. phone may be empty, in which case
// RequestPhoneNumber waits for SupplyPhoneNumber. codeLength <= 0 selects the
// default code length.
func NewResolver(userID int64, phone string, codeLength int) *Resolver {
	return newResolver(userID, phone, codeLength, nil)
}

func newResolver(userID int64, phone string, codeLength int, now func() time.Time) *Resolver {
	if codeLength <= 0 {
		codeLength = DefaultCodeLength
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		userID:       userID,
		codeLength:   codeLength,
		now:          now,
		phone:        strings.TrimSpace(phone),
		code:         make([]byte, 0, codeLength),
		lastActivity: now(),
		done:         make(chan struct{}),
	}
}

// UserID returns the user this login belongs to.
func (r *Resolver) UserID() int64 { return r.userID }

// CodeLength returns the number of digits a complete code has.
func (r *Resolver) CodeLength() int { return r.codeLength }

// RequestPhoneNumber returns the phone number, waiting for SupplyPhoneNumber
// when none was given at construction.
func (r *Resolver) RequestPhoneNumber(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.phone != "" && r.outcome == OutcomeInProgress {
		r.slots[KindPhone].state = SlotAnswered
		phone := r.phone
		r.mu.Unlock()
		return phone, nil
	}
	r.mu.Unlock()
	return r.await(ctx, KindPhone, nil)
}

// RequestCode waits until a complete code is assembled, returns it and clears
// the buffer. A code completed before the request is returned immediately.
func (r *Resolver) RequestCode(ctx context.Context) (string, error) {
	return r.await(ctx, KindCode, func() (string, bool) {
		if len(r.code) < r.codeLength {
			return "", false
		}
		code := string(r.code)
		r.code = r.code[:0]
		return code, true
	})
}

// RequestPassword waits for SupplyPassword. hint is kept so it can be relayed
// to the user; the Resolver does not deliver it.
func (r *Resolver) RequestPassword(ctx context.Context, hint string) (string, error) {
	wait, err := r.expectPassword(hint)
	if err != nil {
		return "", err
	}
	return wait(ctx)
}

// expectPassword marks the password slot awaiting and returns the wait for its
// answer. A password supplied after it returns is accepted, so the user can be
// asked between the two steps.
func (r *Resolver) expectPassword(hint string) (func(ctx context.Context) (string, error), error) {
	r.mu.Lock()
	r.hint = hint
	r.mu.Unlock()
	ch, _, _, err := r.register(KindPassword, nil)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (string, error) {
		return r.wait(ctx, KindPassword, ch)
	}, nil
}

// await parks the caller on the slot for kind. ready, when non-nil, runs under
// the lock and may answer without parking.
func (r *Resolver) await(ctx context.Context, kind Kind, ready func() (string, bool)) (string, error) {
	ch, v, answered, err := r.register(kind, ready)
	if err != nil || answered {
		return v, err
	}
	return r.wait(ctx, kind, ch)
}

// register opens the slot for kind. answered is true when ready produced v
// without parking; otherwise ch receives the answer.
func (r *Resolver) register(kind Kind, ready func() (string, bool)) (ch chan string, v string, answered bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome != OutcomeInProgress {
		return nil, "", false, r.failureLocked()
	}
	if ready != nil {
		if v, ok := ready(); ok {
			r.slots[kind].state = SlotAnswered
			return nil, v, true, nil
		}
	}
	s := &r.slots[kind]
	if s.state == SlotAwaiting {
		return nil, "", false, fmt.Errorf("%s: %w", kind, ErrAlreadyAwaiting)
	}
	ch = make(chan string, 1)
	s.state = SlotAwaiting
	s.ch = ch
	r.touchLocked()
	return ch, "", false, nil
}

func (r *Resolver) wait(ctx context.Context, kind Kind, ch chan string) (string, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-r.done:
		select {
		case v := <-ch:
			return v, nil
		default:
		}
		r.mu.Lock()
		r.releaseLocked(kind, ch)
		err := r.failureLocked()
		r.mu.Unlock()
		return "", err
	case <-ctx.Done():
		r.mu.Lock()
		r.releaseLocked(kind, ch)
		finished := r.outcome != OutcomeInProgress
		err := r.failureLocked()
		r.mu.Unlock()
		// A supplier may have won the race before the slot was released.
		select {
		case v := <-ch:
			return v, nil
		default:
		}
		if finished {
			return "", err
		}
		return "", ctx.Err()
	}
}

func (r *Resolver) releaseLocked(kind Kind, ch chan string) {
	s := &r.slots[kind]
	if s.ch == ch {
		s.ch = nil
		s.state = SlotUnrequested
	}
}

// resolveLocked hands v to the requester parked on kind. It reports false when
// nothing is awaiting that slot.
func (r *Resolver) resolveLocked(kind Kind, v string) bool {
	s := &r.slots[kind]
	if r.outcome != OutcomeInProgress || s.state != SlotAwaiting || s.ch == nil {
		return false
	}
	s.ch <- v
	s.ch = nil
	s.state = SlotAnswered
	r.touchLocked()
	return true
}

// SupplyPhoneNumber answers a pending phone request. The phone number is set
// at most once; a call with nothing awaiting is ignored.
func (r *Resolver) SupplyPhoneNumber(phone string) bool {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.resolveLocked(KindPhone, phone) {
		return false
	}
	r.phone = phone
	return true
}

// SupplyCode answers a pending code request with a whole code and clears the
// digit buffer. A call with nothing awaiting is ignored.
func (r *Resolver) SupplyCode(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.resolveLocked(KindCode, code) {
		return false
	}
	r.code = r.code[:0]
	return true
}

// SupplyPassword answers a pending password request. A call with nothing
// awaiting is ignored.
func (r *Resolver) SupplyPassword(password string) bool {
	if password == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(KindPassword, password)
}

// AppendCodeDigit appends one digit to the code buffer. When the buffer reaches
// the code length and a code request is waiting, the request is completed with
// the buffer in the same critical section. Digits beyond the code length are
// rejected with ErrCodeComplete.
func (r *Resolver) AppendCodeDigit(digit string) error {
	if len(digit) != 1 || digit[0] < '0' || digit[0] > '9' {
		return ErrInvalidDigit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome != OutcomeInProgress {
		return ErrLoginFinished
	}
	if len(r.code) >= r.codeLength {
		return ErrCodeComplete
	}
	r.touchLocked()
	r.code = append(r.code, digit[0])
	if len(r.code) == r.codeLength && r.resolveLocked(KindCode, string(r.code)) {
		r.code = r.code[:0]
	}
	return nil
}

// ClearCode empties the digit buffer.
func (r *Resolver) ClearCode() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	r.code = r.code[:0]
}

// CurrentCode returns the digits typed so far.
func (r *Resolver) CurrentCode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.code)
}

// PhoneNumber returns the phone number, or "" when not yet known.
func (r *Resolver) PhoneNumber() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phone
}

// PasswordHint returns the hint passed to the last RequestPassword call.
func (r *Resolver) PasswordHint() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hint
}

// State returns the state of the slot for kind.
func (r *Resolver) State(kind Kind) SlotState {
	if kind < 0 || kind >= kindCount {
		return SlotUnrequested
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[kind].state
}

// Awaiting returns the kind currently being waited for, if any.
func (r *Resolver) Awaiting() (Kind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := Kind(0); k < kindCount; k++ {
		if r.slots[k].state == SlotAwaiting {
			return k, true
		}
	}
	return 0, false
}

// Outcome returns the lifecycle state and, for failed or abandoned logins, the
// reason.
func (r *Resolver) Outcome() (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome, r.reason
}

// Done is closed once the login reaches a terminal outcome.
func (r *Resolver) Done() <-chan struct{} { return r.done }

// LastActivity returns the time of the last user input or construction.
func (r *Resolver) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// Cancel abandons the login. Any caller blocked in a Request* call returns an
// error wrapping ErrLoginCancelled and reason. Cancel on a finished login is a
// no-op.
func (r *Resolver) Cancel(reason error) bool {
	if reason == nil {
		reason = ErrLoginCancelled
	}
	return r.finish(OutcomeAbandoned, reason)
}

// succeed and fail are used by the Coordinator once the client returns.
func (r *Resolver) succeed() bool { return r.finish(OutcomeSucceeded, nil) }

func (r *Resolver) fail(reason error) bool { return r.finish(OutcomeFailed, reason) }

func (r *Resolver) finish(outcome Outcome, reason error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome != OutcomeInProgress {
		return false
	}
	r.outcome = outcome
	r.reason = reason
	close(r.done)
	return true
}

func (r *Resolver) failureLocked() error {
	switch {
	case r.outcome == OutcomeSucceeded:
		return ErrLoginFinished
	case r.reason == nil:
		return ErrLoginCancelled
	case errors.Is(r.reason, ErrLoginCancelled):
		return r.reason
	default:
		return fmt.Errorf("%w: %w", ErrLoginCancelled, r.reason)
	}
}

func (r *Resolver) touchLocked() {
	r.lastActivity = r.now()
}
