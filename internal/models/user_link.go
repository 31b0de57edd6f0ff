package models

import "time"

// UserLink binds one chat user to one tracker identity. At most one active
// link exists per chat user, and a tracker identity belongs to at most one
// chat user (unique indexes on both columns).
type UserLink struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ChatUserID     string `gorm:"size:64;not null;uniqueIndex"`
	TrackerUserID  string `gorm:"size:64;not null;uniqueIndex"`
	TrackerLogin   string `gorm:"size:64;not null"`
	TrackerEmail   string `gorm:"size:128"`
	TokenHash      string `gorm:"size:64"` // SHA-256 hex of the personal tracker token
	TokenCreatedAt *time.Time
	IsActive       bool `gorm:"not null;default:false"`
	LastSeenAt     *time.Time
	RegisteredAt   time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
