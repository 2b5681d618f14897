package sessionstore

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisStore_AbsentHashStartsEmpty(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	s, err := OpenRedis(ctx, client, "userbot:sessions", nil)
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	defer s.Close()
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
	if err := s.Set(ctx, 42, "tok-A"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, ok := s.Get(42); !ok || got != "tok-A" {
		t.Errorf("Get = %q, %v", got, ok)
	}
}

func TestRedisStore_PersistsAcrossOpen(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	s, _ := OpenRedis(ctx, client, "k", nil)
	_ = s.Set(ctx, 1, "a")
	_ = s.Set(ctx, 2, "b")
	_ = s.Delete(ctx, 1)

	if got := mr.HGet("k", "2"); got != "b" {
		t.Errorf("hash field 2 = %q, want b", got)
	}
	again, err := OpenRedis(ctx, redis.NewClient(&redis.Options{Addr: mr.Addr()}), "k", nil)
	if err != nil {
		t.Fatal(err)
	}
	all := again.All()
	if len(all) != 1 || all[2] != "b" {
		t.Errorf("All = %v, want {2: b}", all)
	}
}

func TestRedisStore_WriteFailureLeavesMemoryUnchanged(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	s, _ := OpenRedis(ctx, client, "k", nil)
	mr.Close()
	if err := s.Set(ctx, 3, "x"); err == nil {
		t.Fatal("Set should fail when redis is down")
	}
	if _, ok := s.Get(3); ok {
		t.Error("failed Set must not be visible")
	}
}

func TestRedisStore_UnreadableFieldSurvivesOtherWrites(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	key, _ := NewSecretboxSealer([]byte(strings.Repeat("k", 32)))

	s, _ := OpenRedis(ctx, client, "k", key)
	_ = s.Set(ctx, 1, "tok-1")
	sealed := mr.HGet("k", "1")

	unkeyed, err := OpenRedis(ctx, redis.NewClient(&redis.Options{Addr: mr.Addr()}), "k", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := unkeyed.Get(1); ok {
		t.Error("unreadable session must not be served")
	}
	if err := unkeyed.Set(ctx, 2, "tok-2"); err != nil {
		t.Fatal(err)
	}
	if got := mr.HGet("k", "1"); got != sealed {
		t.Errorf("field 1 = %q, want sealed value untouched", got)
	}
}
