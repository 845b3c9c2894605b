package seed

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/repository"

	"gopkg.in/yaml.v3"
)

//go:embed communities.yml
var communitiesFixture []byte

// CommunityFixture is one built-in community.
type CommunityFixture struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	Name     string `yaml:"name"`
	Bio      string `yaml:"bio"`
}

// LoadCommunities parses the embedded fixture.
func LoadCommunities() ([]CommunityFixture, error) {
	var doc struct {
		Communities []CommunityFixture `yaml:"communities"`
	}
	if err := yaml.Unmarshal(communitiesFixture, &doc); err != nil {
		return nil, fmt.Errorf("parse communities fixture: %w", err)
	}
	return doc.Communities, nil
}

// Communities creates every built-in community owned by creatorID. Existing
// ones are left untouched; the ids of all fixtures are returned.
func Communities(ctx context.Context, store repository.Store, creatorID string) ([]string, error) {
	fixtures, err := LoadCommunities()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(fixtures))
	for _, item := range fixtures {
		err := store.Transaction(ctx, func(tx repository.Store) error {
			err := tx.Communities().Create(ctx, &models.Community{
				ID:          item.ID,
				Username:    item.Username,
				Name:        item.Name,
				Bio:         item.Bio,
				CreatedByID: creatorID,
			})
			if models.HasCode(err, models.CodeConflict) {
				return nil
			}
			if err != nil {
				return err
			}
			return tx.Communities().AddMember(ctx, item.ID, creatorID)
		})
		if err != nil {
			return nil, fmt.Errorf("seed community %s: %w", item.Username, err)
		}
		ids = append(ids, item.ID)
	}
	return ids, nil
}
