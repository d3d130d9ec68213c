// Command migrate runs schema operations for the backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"hearth/internal/config"
	"hearth/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate/main.go <up|status>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		if err := database.ApplySchema(ctx, db); err != nil {
			return fmt.Errorf("schema apply failed: %w", err)
		}
		log.Println("schema applied")
	case "status":
		migrator := db.WithContext(ctx).Migrator()
		missing := 0
		for _, m := range database.PersistentModels() {
			stmt := db.Model(m).Statement
			if err := stmt.Parse(m); err != nil {
				return fmt.Errorf("parse model: %w", err)
			}
			ok := migrator.HasTable(m)
			if !ok {
				missing++
			}
			log.Printf("%-20s present=%t", stmt.Schema.Table, ok)
		}
		log.Printf("env=%s tables=%d missing=%d", cfg.Env, len(database.PersistentModels()), missing)
	default:
		return usage()
	}

	return nil
}
