package database

import "github.com/francozeta/musicbox/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Join records come after the entities they reference.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Community{},
		&models.Review{},
		&models.UserReview{},
		&models.CommunityReview{},
		&models.CommunityMember{},
	}
}
