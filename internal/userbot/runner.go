// Package userbot keeps one long-lived MTProto client running per
// authenticated user.
package userbot

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"userbot-connect/internal/mtproto"
)

const defaultRetryDelay = 15 * time.Second

// Server runs one user's client until ctx is done.
type Server interface {
	Serve(ctx context.Context, userID int64, token string) error
}

// RevokedFunc is called once when a user's session is rejected by the server.
type RevokedFunc func(ctx context.Context, userID int64)

// Option configures a Runner.
type Option func(*Runner)

// WithRetryDelay sets the pause between restarts of a failed client.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.retryDelay = d
		}
	}
}

// WithOnRevoked sets the callback for sessions that are no longer authorized.
func WithOnRevoked(f RevokedFunc) Option {
	return func(r *Runner) { r.onRevoked = f }
}

type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner supervises per-user clients. Start is idempotent per user.
type Runner struct {
	server     Server
	retryDelay time.Duration
	onRevoked  RevokedFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[int64]*worker
}

// NewRunner returns a Runner that starts clients through server.
func NewRunner(server Server, opts ...Option) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		server:     server,
		retryDelay: defaultRetryDelay,
		ctx:        ctx,
		cancel:     cancel,
		workers:    map[int64]*worker{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches a client for userID unless one is already running. It
// reports whether a new client was started.
func (r *Runner) Start(userID int64, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return false
	}
	if _, ok := r.workers[userID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(r.ctx)
	w := &worker{cancel: cancel, done: make(chan struct{})}
	r.workers[userID] = w
	go r.run(ctx, userID, token, w)
	log.Printf("userbot: user %d: started", userID)
	return true
}

// PostLogin starts the client for a freshly authenticated user.
func (r *Runner) PostLogin(_ context.Context, userID int64, token string) error {
	r.Start(userID, token)
	return nil
}

// Rehydrate starts a client for every stored session and returns how many were started.
func (r *Runner) Rehydrate(sessions map[int64]string) int {
	n := 0
	for id, token := range sessions {
		if r.Start(id, token) {
			n++
		}
	}
	log.Printf("userbot: rehydrated %d of %d sessions", n, len(sessions))
	return n
}

// Stop stops userID's client and waits for it to exit or ctx to expire.
func (r *Runner) Stop(ctx context.Context, userID int64) bool {
	r.mu.Lock()
	w, ok := r.workers[userID]
	if ok {
		delete(r.workers, userID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	w.cancel()
	select {
	case <-w.done:
	case <-ctx.Done():
	}
	log.Printf("userbot: user %d: stopped", userID)
	return true
}

// StopAll stops every client and refuses new ones.
func (r *Runner) StopAll(ctx context.Context) error {
	r.mu.Lock()
	r.cancel()
	workers := r.workers
	r.workers = map[int64]*worker{}
	r.mu.Unlock()

	for _, w := range workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Running reports whether userID has a client.
func (r *Runner) Running(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workers[userID]
	return ok
}

// Len returns the number of running clients.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

func (r *Runner) run(ctx context.Context, userID int64, token string, w *worker) {
	defer close(w.done)
	defer r.forget(userID, w)

	for {
		err := r.server.Serve(ctx, userID, token)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, mtproto.ErrUnauthorized) {
			log.Printf("userbot: user %d: session revoked", userID)
			if r.onRevoked != nil {
				r.onRevoked(context.WithoutCancel(ctx), userID)
			}
			return
		}
		log.Printf("userbot: user %d: client exited: %v; restarting in %s", userID, err, r.retryDelay)
		t := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (r *Runner) forget(userID int64, w *worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workers[userID] == w {
		delete(r.workers, userID)
	}
}
