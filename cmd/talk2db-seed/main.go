package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/talk2db/talk2db/internal/config"
	"github.com/talk2db/talk2db/internal/database"
	"github.com/talk2db/talk2db/internal/migrations"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|reset|status")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	flag.Parse()

	cfg, err := config.LoadForTooling("talk2db-seed", os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, target, err := database.Open(ctx, database.Config{URL: cfg.Database.URL, Schema: cfg.Database.Schema})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner()
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s) to %s\n", applied, target.Driver)
	case "down":
		rolledBack, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", rolledBack)
	case "reset":
		rolledBack, applied, err := runner.Reset(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration reset failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d and re-applied %d migration(s) on %s\n", rolledBack, applied, target.Driver)
	case "status":
		statuses, err := runner.Status(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration status failed: %v\n", err)
			os.Exit(1)
		}
		for _, status := range statuses {
			state := "pending"
			if status.Applied {
				state = "applied"
			}
			fmt.Printf("%06d %-20s %s\n", status.Version, status.Name, state)
		}
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}
