// Command seed fills the configured store with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/francozeta/musicbox/internal/bootstrap"
	"github.com/francozeta/musicbox/internal/config"
	"github.com/francozeta/musicbox/internal/mongostore"
	"github.com/francozeta/musicbox/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	numReviews := flag.Int("reviews", 100, "Number of top-level reviews to create")
	maxReplies := flag.Int("replies", 4, "Maximum replies per top-level review")
	maxDays := flag.Int("days", 90, "Spread creation times over this many past days")
	shouldClean := flag.Bool("clean", false, "Delete existing data before seeding")
	randSeed := flag.Int64("seed", 0, "Random seed; 0 picks one from the clock")
	flag.Parse()

	log.Printf("Target: %d users, %d reviews, up to %d replies each, clean=%v",
		*numUsers, *numReviews, *maxReplies, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SkipRedis: true})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer rt.Close(ctx)

	if *shouldClean {
		if rt.Mongo != nil {
			err = mongostore.Clean(ctx, rt.Mongo)
		} else {
			err = seed.CleanGorm(ctx, rt.SQL)
		}
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		log.Println("Existing data removed")
	}

	sum, err := seed.NewSeeder(rt.Store, seed.Options{
		NumUsers:   *numUsers,
		NumReviews: *numReviews,
		MaxReplies: *maxReplies,
		MaxDays:    *maxDays,
		Seed:       *randSeed,
	}).Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d communities, %d reviews, %d replies",
		sum.Users, sum.Communities, sum.Reviews, sum.Replies)
}
