package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps sessions in a single JSON object file mapping user id to
// token. Every mutation rewrites the whole file through a temp file and rename.
// Entries that could not be opened at load are rewritten byte for byte until
// the user's session is set or deleted.
type FileStore struct {
	path   string
	sealer Sealer

	mu       sync.RWMutex
	sessions map[int64]string
	opaque   map[string]string
}

// OpenFile loads the store at path. A missing file is an empty store; the
// file and its directory are created by the first mutation.
func OpenFile(path string, sealer Sealer) (*FileStore, error) {
	s := &FileStore{path: path, sealer: sealer, sessions: map[int64]string{}, opaque: map[string]string{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("sessionstore: no session file at %s, starting empty", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: read %s: %w", path, err)
	}
	var raw map[string]string
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("sessionstore: parse %s: %w", path, err)
		}
	}
	s.sessions, s.opaque = decodeEntries(raw, sealer, "file")
	log.Printf("sessionstore: loaded %d sessions from %s (%d unreadable kept)", len(s.sessions), path, len(s.opaque))
	return s, nil
}

func (s *FileStore) Get(userID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.sessions[userID]
	return t, ok
}

// Set stores token and rewrites the file. On a write failure the previous
// in-memory value is restored and the error returned.
func (s *FileStore) Set(_ context.Context, userID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := formatKey(userID)
	prev, had := s.sessions[userID]
	prevOpaque, hadOpaque := s.opaque[key]
	s.sessions[userID] = token
	delete(s.opaque, key)
	if err := s.flushLocked(); err != nil {
		if had {
			s.sessions[userID] = prev
		} else {
			delete(s.sessions, userID)
		}
		if hadOpaque {
			s.opaque[key] = prevOpaque
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := formatKey(userID)
	prev, had := s.sessions[userID]
	prevOpaque, hadOpaque := s.opaque[key]
	if !had && !hadOpaque {
		return nil
	}
	delete(s.sessions, userID)
	delete(s.opaque, key)
	if err := s.flushLocked(); err != nil {
		if had {
			s.sessions[userID] = prev
		}
		if hadOpaque {
			s.opaque[key] = prevOpaque
		}
		return err
	}
	return nil
}

func (s *FileStore) All() map[int64]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySessions(s.sessions)
}

func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) flushLocked() error {
	raw := make(map[string]string, len(s.sessions)+len(s.opaque))
	for k, v := range s.opaque {
		raw[k] = v
	}
	for id, token := range s.sessions {
		v, err := sealToken(s.sealer, token)
		if err != nil {
			return fmt.Errorf("sessionstore: seal user %d: %w", id, err)
		}
		raw[formatKey(id)] = v
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("sessionstore: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("sessionstore: write %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sessionstore: write %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sessionstore: sync %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("sessionstore: replace %s: %w", s.path, err)
	}
	return nil
}
