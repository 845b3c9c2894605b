package mongostore

import (
	"time"

	"github.com/francozeta/musicbox/internal/models"
)

type userDoc struct {
	ID          string    `bson:"_id"`
	Username    string    `bson:"username"`
	Name        string    `bson:"name"`
	Bio         string    `bson:"bio,omitempty"`
	Image       string    `bson:"image,omitempty"`
	Onboarded   bool      `bson:"onboarded"`
	Reviews     []string  `bson:"reviews"`
	Communities []string  `bson:"communities"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d *userDoc) toModel() *models.User {
	return &models.User{
		ID:        d.ID,
		Username:  d.Username,
		Name:      d.Name,
		Bio:       d.Bio,
		Image:     d.Image,
		Onboarded: d.Onboarded,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type communityDoc struct {
	ID          string    `bson:"_id"`
	Username    string    `bson:"username"`
	Name        string    `bson:"name"`
	Image       string    `bson:"image,omitempty"`
	Bio         string    `bson:"bio,omitempty"`
	CreatedByID string    `bson:"created_by"`
	Reviews     []string  `bson:"reviews"`
	Members     []string  `bson:"members"`
	CreatedAt   time.Time `bson:"created_at"`
}

func (d *communityDoc) toModel() *models.Community {
	return &models.Community{
		ID:          d.ID,
		Username:    d.Username,
		Name:        d.Name,
		Image:       d.Image,
		Bio:         d.Bio,
		CreatedByID: d.CreatedByID,
		CreatedAt:   d.CreatedAt,
	}
}

func communityDocFrom(c *models.Community) *communityDoc {
	return &communityDoc{
		ID:          c.ID,
		Username:    c.Username,
		Name:        c.Name,
		Image:       c.Image,
		Bio:         c.Bio,
		CreatedByID: c.CreatedByID,
		Reviews:     []string{},
		Members:     []string{},
		CreatedAt:   c.CreatedAt,
	}
}

type reviewDoc struct {
	ID             string    `bson:"_id"`
	AuthorID       string    `bson:"author_id"`
	Text           string    `bson:"text"`
	SongTitle      string    `bson:"song_title,omitempty"`
	Artist         string    `bson:"artist,omitempty"`
	Rating         *float64  `bson:"rating,omitempty"`
	ListenedBefore bool      `bson:"listened_before"`
	ParentID       *string   `bson:"parent_id"`
	CommunityID    *string   `bson:"community_id"`
	CreatedAt      time.Time `bson:"created_at"`
}

func (d *reviewDoc) toModel() *models.Review {
	return &models.Review{
		ID:             d.ID,
		AuthorID:       d.AuthorID,
		Text:           d.Text,
		SongTitle:      d.SongTitle,
		Artist:         d.Artist,
		Rating:         d.Rating,
		ListenedBefore: d.ListenedBefore,
		ParentID:       d.ParentID,
		CommunityID:    d.CommunityID,
		CreatedAt:      d.CreatedAt,
	}
}

func reviewDocFrom(r *models.Review) *reviewDoc {
	return &reviewDoc{
		ID:             r.ID,
		AuthorID:       r.AuthorID,
		Text:           r.Text,
		SongTitle:      r.SongTitle,
		Artist:         r.Artist,
		Rating:         r.Rating,
		ListenedBefore: r.ListenedBefore,
		ParentID:       r.ParentID,
		CommunityID:    r.CommunityID,
		CreatedAt:      r.CreatedAt,
	}
}

// card trims a user to what embedded author views show.
func (d *userDoc) card() *models.User {
	return &models.User{ID: d.ID, Username: d.Username, Name: d.Name, Image: d.Image}
}

func (d *communityDoc) card() *models.Community {
	return &models.Community{ID: d.ID, Username: d.Username, Name: d.Name, Image: d.Image}
}
