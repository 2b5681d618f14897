// seed activates bot users for local testing so /connect can be tried
// without going through share activation.
// Idempotent: existing users are updated, missing ones are created.
//
//	go run ./cmd/seed -users 123456789,987654321 -days 30
package main

import (
	"context"
	"flag"
	"log"
	"strconv"
	"strings"
	"time"

	"userbot-connect/internal/config"
	"userbot-connect/internal/db"
	"userbot-connect/internal/user/domain"
	"userbot-connect/internal/user/repository"
)

func main() {
	ids := flag.String("users", "", "Comma-separated Telegram user ids to activate")
	days := flag.Int("days", 30, "Subscription length in days")
	lang := flag.String("lang", domain.DefaultLanguage, "Language for newly created users")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	userIDs, err := parseIDs(*ids)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if len(userIDs) == 0 {
		log.Fatal("seed: -users is required")
	}

	conn, err := db.Open(cfg.DatabaseURL, db.WithMaxOpenConns(2))
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := repository.NewPostgresRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()
	expires := now.AddDate(0, 0, *days)

	for _, id := range userIDs {
		u, err := users.GetByID(ctx, id)
		if err != nil {
			log.Fatalf("seed: load user %d: %v", id, err)
		}
		created := u == nil
		if created {
			u = domain.NewGuest(id, "", *lang, now)
		}
		u.Status = domain.UserStatusActive
		u.PayMode = domain.PayModePaid
		u.ExpiresAt = &expires
		u.UpdatedAt = now
		if created {
			err = users.Create(ctx, u)
		} else {
			err = users.Update(ctx, u)
		}
		if err != nil {
			log.Fatalf("seed: save user %d: %v", id, err)
		}
		log.Printf("seed: user %d active until %s (created=%t)", id, expires.Format(time.DateOnly), created)
	}
}

func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
