package db

import (
	"io/fs"
	"strings"
	"testing"
	"time"
)

func TestOpen_RejectsBadDSN(t *testing.T) {
	for _, dsn := range []string{"", "invalid-dsn", "postgres://user:pass@/db?connect_timeout=1"} {
		t.Run(dsn, func(t *testing.T) {
			db, err := Open(dsn)
			if err == nil {
				db.Close()
				t.Fatalf("Open(%q) should fail", dsn)
			}
			if db != nil {
				t.Error("Open should return nil db when error occurs")
			}
		})
	}
}

func TestMigrationFS_PairsUpAndDown(t *testing.T) {
	names, err := fs.Glob(MigrationFS, "migrations/*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 {
		t.Fatal("no migrations embedded")
	}
	ups, downs := 0, 0
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups++
		case strings.HasSuffix(n, ".down.sql"):
			downs++
		default:
			t.Errorf("migration %q has no direction suffix", n)
		}
	}
	if ups != downs {
		t.Errorf("up migrations = %d, down migrations = %d", ups, downs)
	}
}

func TestMigrationFS_CreatesBotUsers(t *testing.T) {
	b, err := fs.ReadFile(MigrationFS, "migrations/000001_bot_users.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	for _, col := range []string{"auth_state", "pending_share_activation", "expires_at"} {
		if !strings.Contains(string(b), col) {
			t.Errorf("bot_users migration missing column %q", col)
		}
	}
}

func TestOptions_IgnoreNonPositive(t *testing.T) {
	cfg := poolConfig{maxOpen: 10, maxIdleTime: time.Minute}
	WithMaxOpenConns(0)(&cfg)
	WithMaxIdleTime(-time.Second)(&cfg)
	if cfg.maxOpen != 10 || cfg.maxIdleTime != time.Minute {
		t.Errorf("cfg = %+v, want defaults kept", cfg)
	}
	WithMaxOpenConns(3)(&cfg)
	WithMaxIdleTime(time.Hour)(&cfg)
	if cfg.maxOpen != 3 || cfg.maxIdleTime != time.Hour {
		t.Errorf("cfg = %+v, want overrides applied", cfg)
	}
}
