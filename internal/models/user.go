// Package models contains the persisted entities and API error types.
package models

import "time"

// User is a member profile keyed by the identity provider's id.
type User struct {
	ID          string      `gorm:"primaryKey;size:128" json:"id"`
	Username    string      `gorm:"size:30;not null;uniqueIndex" json:"username"`
	Name        string      `gorm:"size:30;not null" json:"name"`
	Bio         string      `gorm:"type:text" json:"bio,omitempty"`
	Image       string      `json:"image,omitempty"`
	Onboarded   bool        `gorm:"not null;default:false" json:"onboarded"`
	Reviews     []Review    `gorm:"many2many:user_reviews;joinForeignKey:UserID;joinReferences:ReviewID" json:"reviews,omitempty"`
	Communities []Community `gorm:"many2many:community_members;joinForeignKey:UserID;joinReferences:CommunityID" json:"communities,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (User) TableName() string {
	return "users"
}

// UserReview links a user to a review they own. The set is populated on
// top-level review creation and pruned on cascading delete.
type UserReview struct {
	UserID    string    `gorm:"primaryKey;size:128"`
	ReviewID  string    `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (UserReview) TableName() string {
	return "user_reviews"
}
