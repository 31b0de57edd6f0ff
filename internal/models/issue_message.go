// Package models defines the GORM persistence models for the desk bot.
package models

import "time"

// Claim states for an IssueMessage. Only TryClaim/CommitClaim/RevertClaim
// in the store package move a row between them.
const (
	ClaimPending  = "pending"
	ClaimClaiming = "claiming"
	ClaimClaimed  = "claimed"
)

// IssueMessage is the persisted association between one tracker issue and
// the chat message that mirrors it. It is created on the first "created"
// webhook and never deleted; later webhooks and claims only mutate it.
type IssueMessage struct {
	IssueID     string `gorm:"primaryKey;size:32"`
	ChatID      string `gorm:"size:64"`
	MessageID   string `gorm:"size:64"` // empty until the first send is attached; immutable after
	Summary     string `gorm:"not null"`
	Description string `gorm:"type:text"`
	Link        string `gorm:"size:255"`
	AssigneeRef string `gorm:"size:64"`
	StatusLabel string `gorm:"size:64"`
	ClaimState  string `gorm:"size:16;default:pending;index"`
	ClaimantRef string `gorm:"size:64"` // identity recorded by TryClaim, confirmed by CommitClaim
	Version     int64  `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
