// Package sessionstore persists opaque session tokens keyed by user id.
//
// Reads are served from memory after Open; every mutation is written through
// to the backing store before it returns.
package sessionstore

import (
	"context"
	"errors"
	"log"
	"strconv"
)

var (
	// ErrInvalidKey is returned when a sealing key is not 32 bytes.
	ErrInvalidKey = errors.New("sessionstore: sealing key must be 32 bytes")
	// ErrSealed is returned when a sealed token is read without a matching key.
	ErrSealed = errors.New("sessionstore: token is sealed and cannot be opened")
)

// Store is the session persistence contract shared by the backends.
type Store interface {
	// Get returns the token for userID from memory.
	Get(userID int64) (string, bool)
	// Set stores token for userID and persists the change before returning.
	Set(ctx context.Context, userID int64, token string) error
	// Delete removes userID and persists the change. Deleting an absent user is not an error.
	Delete(ctx context.Context, userID int64) error
	// All returns a copy of every stored session.
	All() map[int64]string
	Len() int
	Close() error
}

func formatKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// decodeEntries turns persisted key/value pairs into sessions. Entries whose
// key is not a user id or whose token cannot be opened are returned in opaque,
// verbatim, so a rewrite can carry them forward instead of dropping them.
func decodeEntries(raw map[string]string, sealer Sealer, backend string) (sessions map[int64]string, opaque map[string]string) {
	sessions = make(map[int64]string, len(raw))
	opaque = map[string]string{}
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			log.Printf("sessionstore: %s: keeping unrecognised entry %q as is", backend, k)
			opaque[k] = v
			continue
		}
		token, err := openToken(sealer, v)
		if err != nil {
			log.Printf("sessionstore: %s: user %d unreadable, kept sealed: %v", backend, id, err)
			opaque[k] = v
			continue
		}
		sessions[id] = token
	}
	return sessions, opaque
}

func copySessions(m map[int64]string) map[int64]string {
	out := make(map[int64]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
