package main

import (
	"context"
	"log"
	"os"

	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down] [dir]")
	}
	direction := os.Args[1]

	dir := "migrations"
	if len(os.Args) > 2 {
		dir = os.Args[2]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	ran, err := database.Migrate(ctx, db, dir, direction)
	if err != nil {
		log.Fatalf("Migrate %s: %v", direction, err)
	}

	for _, name := range ran {
		log.Printf("Ran migration: %s", name)
	}
	log.Printf("Successfully ran %d migration(s) %s", len(ran), direction)
}
