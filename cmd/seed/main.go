// Command seed populates the database with demo access requests.
package main

import (
	"flag"
	"log"

	"greenroom/internal/config"
	"greenroom/internal/database"
	"greenroom/internal/seed"
)

func main() {
	active := flag.Int("active", 22, "Number of active users to create")
	pending := flag.Int("pending", 40, "Number of pending requests to create")
	expired := flag.Int("expired", 8, "Number of expired users to create")
	failed := flag.Int("failed", 2, "Number of failed requests to create")
	wipe := flag.Bool("wipe", true, "Clear access requests and audit log before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	opts := seed.Options{
		Active:   *active,
		Pending:  *pending,
		Expired:  *expired,
		Failed:   *failed,
		MaxSlots: cfg.MaxSlots,
		Wipe:     *wipe,
	}
	if err := seed.Run(db, opts); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d active, %d pending, %d expired, %d failed requests",
		*active, *pending, *expired, *failed)
}
