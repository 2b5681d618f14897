package mtproto

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/gotd/td/session"
)

// EncodeSession turns raw gotd session data into a printable token.
func EncodeSession(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeSession reverses EncodeSession.
func DecodeSession(token string) ([]byte, error) {
	if token == "" {
		return nil, errors.New("mtproto: empty session token")
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("mtproto: decode session token: %w", err)
	}
	return data, nil
}

// memorySession is a session.Storage kept in memory; the caller persists it.
type memorySession struct {
	mu   sync.Mutex
	data []byte
}

var _ session.Storage = (*memorySession)(nil)

func (m *memorySession) LoadSession(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *memorySession) StoreSession(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memorySession) snapshot() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}
