package models

import "time"

// IssueAlert is one scheduled stale-status reminder for an issue. A batch
// of alerts (one per configured step) is created when an issue enters the
// watched state and cleared when it leaves it or gets claimed.
type IssueAlert struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	IssueID   string `gorm:"size:32;not null;index:idx_issue_alerts_issue;uniqueIndex:idx_issue_alerts_step"`
	Step      int    `gorm:"not null;uniqueIndex:idx_issue_alerts_step"`
	ChatID    string `gorm:"size:64;not null"`
	MessageID string `gorm:"size:64;not null"`
	SendAfter time.Time `gorm:"not null;index"`
	SentAt    *time.Time
	CreatedAt time.Time
}
