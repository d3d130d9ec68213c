// Command seed populates the database with demo data for Hearth.
package main

import (
	"context"
	"flag"
	"log"

	"hearth/internal/config"
	"hearth/internal/database"
	"hearth/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numGroups := flag.Int("groups", 8, "Number of groups to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	numChats := flag.Int("chats", 30, "Number of direct chats to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	scenario := flag.String("scenario", "", "YAML scenario file to apply instead of random data")
	randSeed := flag.Int64("seed", 0, "Random seed for reproducible content (0 picks one)")
	fast := flag.Bool("fast", false, "Hash the shared password at minimum bcrypt cost")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("❌ Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	opts := seed.Options{
		NumUsers:    *numUsers,
		NumGroups:   *numGroups,
		NumPosts:    *numPosts,
		NumChats:    *numChats,
		ShouldClean: *shouldClean,
		SkipBcrypt:  *fast,
		RandSeed:    *randSeed,
	}
	s, err := seed.NewSeeder(db, opts)
	if err != nil {
		log.Fatalf("❌ Seeder setup failed: %v", err)
	}

	ctx := context.Background()
	var sum seed.Summary
	if *scenario != "" {
		log.Printf("Applying scenario: %s (ignoring size flags)", *scenario)
		sc, err := seed.LoadScenario(*scenario)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		if *shouldClean {
			if err := s.ClearAll(ctx); err != nil {
				log.Fatalf("❌ Cleanup failed: %v", err)
			}
		}
		if sum, err = s.ApplyScenario(ctx, sc); err != nil {
			log.Fatalf("❌ Scenario seeding failed: %v", err)
		}
	} else {
		log.Printf("Target: %d users, %d groups, %d posts, %d chats, clean=%v",
			*numUsers, *numGroups, *numPosts, *numChats, *shouldClean)
		if sum, err = s.Run(ctx, opts); err != nil {
			log.Fatalf("❌ Seeding failed: %v", err)
		}
	}

	log.Printf("✨ All done! %+v", sum)
	log.Printf("📧 All seeded users have the password: %s", seed.DefaultPassword)
}
