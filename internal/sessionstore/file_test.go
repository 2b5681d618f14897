package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestOpenFile_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "session.json")
	s, err := OpenFile(path, nil)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("file should not exist before first Set, stat err = %v", err)
	}

	if err := s.Set(context.Background(), 1001, "tok-A"); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("file not created by Set: %v", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["1001"] != "tok-A" {
		t.Errorf("persisted = %v, want 1001 → tok-A", raw)
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()
	s, _ := OpenFile(path, nil)
	_ = s.Set(ctx, 1, "one")
	_ = s.Set(ctx, 2, "two")
	_ = s.Set(ctx, 1, "uno")
	if err := s.Delete(ctx, 2); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenFile(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	all := reopened.All()
	if len(all) != 1 || all[1] != "uno" {
		t.Errorf("All = %v, want {1: uno}", all)
	}
	if _, ok := reopened.Get(2); ok {
		t.Error("deleted user should be absent")
	}
}

func TestFileStore_DeleteAbsentIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s, _ := OpenFile(path, nil)
	if err := s.Delete(context.Background(), 99); err != nil {
		t.Errorf("Delete absent = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Error("deleting an absent user should not write the file")
	}
}

func TestFileStore_WriteFailureIsVisibleAndRolledBack(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := OpenFile(filepath.Join(blocker, "session.json"), nil)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := s.Set(context.Background(), 5, "tok"); err == nil {
		t.Fatal("Set should fail when the directory cannot be created")
	}
	if _, ok := s.Get(5); ok {
		t.Error("failed Set must not leave the token in memory")
	}
}

func TestOpenFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	_ = os.WriteFile(path, []byte("{not json"), 0o600)
	if _, err := OpenFile(path, nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOpenFile_SkipsBadKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	_ = os.WriteFile(path, []byte(`{"12":"a","abc":"b"}`), 0o600)
	s, err := OpenFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if err := s.Set(context.Background(), 13, "c"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["abc"] != "b" {
		t.Errorf("unrecognised entry dropped on rewrite: %v", raw)
	}
}

func TestFileStore_SealedAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	sealer, err := NewSecretboxSealer([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatal(err)
	}
	s, _ := OpenFile(path, sealer)
	if err := s.Set(context.Background(), 7, "secret-token"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "secret-token") {
		t.Error("token stored in clear text")
	}

	reopened, _ := OpenFile(path, sealer)
	if got, _ := reopened.Get(7); got != "secret-token" {
		t.Errorf("Get = %q, want secret-token", got)
	}
	unkeyed, _ := OpenFile(path, nil)
	if unkeyed.Len() != 0 {
		t.Error("sealed entries must be skipped without a key")
	}
}

func TestFileStore_ConcurrentSets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s, _ := OpenFile(path, nil)
	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := s.Set(context.Background(), id, "t"); err != nil {
				t.Errorf("Set %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()
	reopened, _ := OpenFile(path, nil)
	if reopened.Len() != 20 {
		t.Errorf("Len after reopen = %d, want 20", reopened.Len())
	}
}

func TestFileStore_RewriteKeepsEntriesItCannotOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	key, _ := NewSecretboxSealer([]byte(strings.Repeat("k", 32)))
	wrongKey, _ := NewSecretboxSealer([]byte(strings.Repeat("w", 32)))
	ctx := context.Background()

	s, _ := OpenFile(path, key)
	if err := s.Set(ctx, 1, "tok-1"); err != nil {
		t.Fatal(err)
	}

	for name, sealer := range map[string]Sealer{"no key": nil, "wrong key": wrongKey} {
		other, err := OpenFile(path, sealer)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if _, ok := other.Get(1); ok {
			t.Errorf("%s: unreadable session must not be served", name)
		}
		if err := other.Set(ctx, 2, "tok-2"); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}

	reopened, err := OpenFile(path, key)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := reopened.Get(1); got != "tok-1" {
		t.Errorf("user 1 session = %q after rewrites under another key, want tok-1", got)
	}
}

func TestFileStore_DeleteDropsUnreadableEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	key, _ := NewSecretboxSealer([]byte(strings.Repeat("k", 32)))
	ctx := context.Background()

	s, _ := OpenFile(path, key)
	_ = s.Set(ctx, 1, "tok-1")

	unkeyed, _ := OpenFile(path, nil)
	if err := unkeyed.Delete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	reopened, _ := OpenFile(path, key)
	if reopened.Len() != 0 {
		t.Errorf("Len = %d, want 0 after deleting the unreadable entry", reopened.Len())
	}
}
