package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"attendance/internal/config"
	"attendance/internal/database"
	"attendance/internal/logging"
)

func main() {
	command := flag.String("command", "up", "migration command: up, down or status")
	target := flag.Int64("to", 0, "version to roll back to with -command down")
	flag.Parse()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	migrationsDir := os.Getenv("MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "./migrations"
	}

	logger, closer, err := logging.New(config.LogConfig{Level: os.Getenv("LOG_LEVEL")})
	if err != nil {
		log.Fatalf("log setup error: %v", err)
	}
	defer closer.Close()

	m, err := database.NewMigrator(databaseURL, migrationsDir, logger)
	if err != nil {
		log.Fatalf("migrator: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch *command {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx, *target)
	case "status":
		err = m.Status(ctx)
	default:
		log.Fatalf("unknown command %q", *command)
	}
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	logger.Info("migration command finished", "command", *command, "dir", migrationsDir)
}
