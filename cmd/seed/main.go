// Command seed fills the database with demo accounts and meals.
package main

import (
	"context"
	"flag"
	"log"

	"dietlog/internal/config"
	"dietlog/internal/database"
	"dietlog/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.Users, "Number of users to create")
	numMeals := flag.Int("meals", defaults.MealsPerUser, "Number of meals per user")
	shouldClean := flag.Bool("clean", defaults.Clean, "Clean database before seeding")
	preset := flag.String("preset", "", "Path to a YAML preset (overrides the other flags)")
	flag.Parse()

	opts := defaults
	if *preset != "" {
		loaded, err := seed.LoadPreset(*preset)
		if err != nil {
			log.Fatalf("Failed to load preset: %v", err)
		}
		opts = loaded
		log.Printf("Applying preset %s", *preset)
	} else {
		opts.Users = *numUsers
		opts.MealsPerUser = *numMeals
		opts.Clean = *shouldClean
	}
	log.Printf("Target: %d users, %d meals each, clean=%v", opts.Users, opts.MealsPerUser, opts.Clean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if _, err := seed.NewSeeder(db, opts).Run(context.Background()); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Done. All seeded users have the password: %s", opts.Password)
}
