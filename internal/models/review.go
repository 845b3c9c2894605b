package models

import "time"

// MaxRating is the top of the rating scale.
const MaxRating = 5

// Review is either a top-level song review or, when ParentID is set, a reply
// inside another review's thread. Replies carry no song fields.
type Review struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	AuthorID       string     `gorm:"size:128;not null;index" json:"author_id"`
	Author         *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Text           string     `gorm:"type:text;not null" json:"text"`
	SongTitle      string     `gorm:"size:200" json:"song_title,omitempty"`
	Artist         string     `gorm:"size:200" json:"artist,omitempty"`
	Rating         *float64   `json:"rating,omitempty"`
	ListenedBefore bool       `gorm:"not null;default:false" json:"listened_before"`
	ParentID       *string    `gorm:"size:36;index" json:"parent_id,omitempty"`
	Children       []Review   `gorm:"foreignKey:ParentID" json:"children,omitempty"`
	CommunityID    *string    `gorm:"size:128;index" json:"community_id,omitempty"`
	Community      *Community `gorm:"foreignKey:CommunityID" json:"community,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Review) TableName() string {
	return "reviews"
}

// IsReply reports whether the review sits under a parent.
func (r *Review) IsReply() bool {
	return r.ParentID != nil && *r.ParentID != ""
}
