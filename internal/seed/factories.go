package seed

import (
	"fmt"
	"strings"
	"time"

	"github.com/francozeta/musicbox/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// Factory builds domain entities with fake content. It never persists.
type Factory struct {
	faker   *gofakeit.Faker
	maxDays int
	now     func() time.Time
}

// NewFactory returns a Factory. The same seed yields the same entities.
func NewFactory(seed int64, maxDays int) *Factory {
	if maxDays <= 0 {
		maxDays = 90
	}
	return &Factory{faker: gofakeit.New(seed), maxDays: maxDays, now: time.Now}
}

// BuildUser returns an onboarded user; n keeps usernames unique within a run.
func (f *Factory) BuildUser(n int) *models.User {
	handle := sanitizeHandle(f.faker.Username())
	suffix := fmt.Sprintf("_%d", n)
	if len(handle)+len(suffix) > 30 {
		handle = handle[:30-len(suffix)]
	}

	name := f.faker.FirstName() + " " + f.faker.LastName()
	if len(name) > 30 {
		name = name[:30]
	}
	return &models.User{
		ID:        "user_" + strings.ReplaceAll(f.faker.UUID(), "-", ""),
		Username:  handle + suffix,
		Name:      name,
		Bio:       f.faker.HipsterSentence(12),
		Image:     fmt.Sprintf("https://picsum.photos/seed/%s/300/300", f.faker.UUID()),
		Onboarded: true,
	}
}

// BuildReview returns a top-level review; communityID may be empty.
func (f *Factory) BuildReview(author *models.User, communityID string) *models.Review {
	rating := float64(f.faker.Number(0, 2*models.MaxRating)) / 2
	review := &models.Review{
		ID:             f.faker.UUID(),
		AuthorID:       author.ID,
		Text:           f.faker.Paragraph(1, 3, 12, " "),
		SongTitle:      titleCase(f.faker.Adjective() + " " + f.faker.Noun()),
		Artist:         f.faker.FirstName() + " " + f.faker.LastName(),
		Rating:         &rating,
		ListenedBefore: f.faker.Bool(),
		CreatedAt:      f.pastTime(),
	}
	if communityID != "" {
		review.CommunityID = &communityID
	}
	return review
}

// BuildReply returns a reply to parent, created after it.
func (f *Factory) BuildReply(parent *models.Review, author *models.User) *models.Review {
	parentID := parent.ID
	return &models.Review{
		ID:          f.faker.UUID(),
		AuthorID:    author.ID,
		Text:        f.faker.Sentence(f.faker.Number(3, 14)),
		ParentID:    &parentID,
		CommunityID: parent.CommunityID,
		CreatedAt:   parent.CreatedAt.Add(time.Duration(f.faker.Number(1, 600)) * time.Minute),
	}
}

// pastTime spreads timestamps over the last maxDays.
func (f *Factory) pastTime() time.Time {
	back := time.Duration(f.faker.Number(0, f.maxDays*24*60)) * time.Minute
	return f.now().UTC().Add(-back)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// sanitizeHandle keeps only characters a username may contain.
func sanitizeHandle(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() < 3 {
		b.WriteString("fan")
	}
	return b.String()
}
