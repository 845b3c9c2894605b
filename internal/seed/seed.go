// Package seed fills a store with demo communities, users and review threads
// for development and testing.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/francozeta/musicbox/internal/middleware"
	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/repository"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	NumUsers   int
	NumReviews int
	// MaxReplies caps the replies generated per top-level review.
	MaxReplies int
	MaxDays    int
	// Seed makes a run reproducible; zero picks one from the clock.
	Seed int64
}

// Summary counts what a run created.
type Summary struct {
	Users       int
	Communities int
	Reviews     int
	Replies     int
}

// Seeder writes generated data through a repository.Store.
type Seeder struct {
	store   repository.Store
	factory *Factory
	opts    Options
}

func NewSeeder(store repository.Store, opts Options) *Seeder {
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return &Seeder{store: store, factory: NewFactory(opts.Seed, opts.MaxDays), opts: opts}
}

// Run creates users, the built-in communities, top-level reviews spread over
// them, and nested reply threads.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if s.opts.NumUsers <= 0 {
		return sum, fmt.Errorf("seed needs at least one user")
	}

	users := make([]*models.User, 0, s.opts.NumUsers)
	for i := 0; i < s.opts.NumUsers; i++ {
		u := s.factory.BuildUser(i)
		if err := s.store.Users().Upsert(ctx, u); err != nil {
			return sum, fmt.Errorf("seed user %s: %w", u.Username, err)
		}
		users = append(users, u)
	}
	sum.Users = len(users)

	communityIDs, err := Communities(ctx, s.store, users[0].ID)
	if err != nil {
		return sum, err
	}
	sum.Communities = len(communityIDs)

	faker := s.factory.faker
	for i := 0; i < s.opts.NumReviews; i++ {
		author := users[faker.Number(0, len(users)-1)]
		communityID := ""
		if len(communityIDs) > 0 && faker.Bool() {
			communityID = communityIDs[faker.Number(0, len(communityIDs)-1)]
		}
		review := s.factory.BuildReview(author, communityID)
		if err := s.createReview(ctx, review); err != nil {
			return sum, err
		}
		sum.Reviews++

		n, err := s.replyThread(ctx, review, users)
		if err != nil {
			return sum, err
		}
		sum.Replies += n
	}

	middleware.Logger.InfoContext(ctx, "seed complete",
		slog.Int("users", sum.Users),
		slog.Int("communities", sum.Communities),
		slog.Int("reviews", sum.Reviews),
		slog.Int("replies", sum.Replies),
	)
	return sum, nil
}

func (s *Seeder) createReview(ctx context.Context, review *models.Review) error {
	return s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Reviews().Create(ctx, review); err != nil {
			return err
		}
		if err := tx.Users().AppendReview(ctx, review.AuthorID, review.ID); err != nil {
			return err
		}
		if review.CommunityID != nil {
			return tx.Communities().AppendReview(ctx, *review.CommunityID, review.ID)
		}
		return nil
	})
}

// replyThread adds up to MaxReplies replies, each under the root or an earlier reply.
func (s *Seeder) replyThread(ctx context.Context, root *models.Review, users []*models.User) (int, error) {
	if s.opts.MaxReplies <= 0 {
		return 0, nil
	}
	faker := s.factory.faker
	thread := []*models.Review{root}
	count := faker.Number(0, s.opts.MaxReplies)
	for i := 0; i < count; i++ {
		parent := thread[faker.Number(0, len(thread)-1)]
		reply := s.factory.BuildReply(parent, users[faker.Number(0, len(users)-1)])
		if err := s.store.Reviews().Create(ctx, reply); err != nil {
			return i, fmt.Errorf("seed reply: %w", err)
		}
		thread = append(thread, reply)
	}
	return count, nil
}

// CleanGorm removes every row the seeder can create, join tables first.
func CleanGorm(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, model := range []interface{}{
			&models.UserReview{},
			&models.CommunityReview{},
			&models.CommunityMember{},
			&models.Review{},
			&models.Community{},
			&models.User{},
		} {
			if err := all.Delete(model).Error; err != nil {
				return fmt.Errorf("clean %T: %w", model, err)
			}
		}
		return nil
	})
}
