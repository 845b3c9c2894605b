package models

import "time"

// Community groups users and the reviews attributed to it.
type Community struct {
	ID          string    `gorm:"primaryKey;size:128" json:"id"`
	Username    string    `gorm:"size:30;not null;uniqueIndex" json:"username"`
	Name        string    `gorm:"size:120;not null" json:"name"`
	Image       string    `json:"image,omitempty"`
	Bio         string    `gorm:"type:text" json:"bio,omitempty"`
	CreatedByID string    `gorm:"size:128;index" json:"created_by_id,omitempty"`
	CreatedBy   *User     `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	Reviews     []Review  `gorm:"many2many:community_reviews;joinForeignKey:CommunityID;joinReferences:ReviewID" json:"reviews,omitempty"`
	Members     []User    `gorm:"many2many:community_members;joinForeignKey:CommunityID;joinReferences:UserID" json:"members,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Community) TableName() string {
	return "communities"
}

// CommunityReview attributes a review to a community.
type CommunityReview struct {
	CommunityID string    `gorm:"primaryKey;size:128"`
	ReviewID    string    `gorm:"primaryKey;size:36;index"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (CommunityReview) TableName() string {
	return "community_reviews"
}

// CommunityMember records a user's membership in a community.
type CommunityMember struct {
	CommunityID string    `gorm:"primaryKey;size:128"`
	UserID      string    `gorm:"primaryKey;size:128;index"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (CommunityMember) TableName() string {
	return "community_members"
}
