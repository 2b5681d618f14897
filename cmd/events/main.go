// events prints a user's recent login events from the login_events table.
//
//	go run ./cmd/events -user 123456789 -limit 20
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"userbot-connect/internal/config"
	"userbot-connect/internal/db"
	telemetryrepo "userbot-connect/internal/telemetry/repository"
)

func main() {
	userID := flag.Int64("user", 0, "Telegram user id")
	limit := flag.Int("limit", 20, "Maximum number of events")
	flag.Parse()

	if *userID == 0 {
		log.Fatal("events: -user is required")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	conn, err := db.Open(cfg.DatabaseURL, db.WithMaxOpenConns(2))
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events, err := telemetryrepo.NewPostgresRepository(conn).ListByUser(ctx, *userID, int32(*limit))
	if err != nil {
		log.Fatalf("events: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tSOURCE\tMETADATA")
	for _, e := range events {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+e.Metadata[k])
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.EventType, e.Source, strings.Join(pairs, " "))
	}
	_ = w.Flush()
}
