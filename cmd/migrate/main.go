// migrate applies the embedded migrations.
//
//	go run ./cmd/migrate                  # all the way up
//	go run ./cmd/migrate -direction down  # all the way down
//	go run ./cmd/migrate -steps -1        # roll back one
//	go run ./cmd/migrate -status
package main

import (
	"flag"
	"fmt"
	"os"

	"userbot-connect/internal/config"
	"userbot-connect/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", migrate.DirectionUp, "Migration direction: up or down")
	steps := flag.Int("steps", 0, "Apply n migrations (negative rolls back); overrides -direction")
	status := flag.Bool("status", false, "Print the applied version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env or set DATABASE_URL")
		os.Exit(1)
	}

	switch {
	case *status:
		version, dirty, err := migrate.Status(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		fmt.Printf("version %d (dirty=%t)\n", version, dirty)
		return
	case *steps != 0:
		err = migrate.Steps(cfg.DatabaseURL, *steps)
	default:
		err = migrate.Run(cfg.DatabaseURL, *direction)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
