// Package store persists the issue↔message mapping and implements the
// claim state machine. All cross-request coordination goes through the
// database: the conditional updates here are the only concurrency control
// in the system, so the service can run as multiple instances.
package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qvnt33/agromat-it-desk-bot/internal/models"
)

var (
	// ErrNotFound reports that no mapping row exists for the issue.
	ErrNotFound = errors.New("store: issue message not found")
	// ErrConflict reports that a conditional claim transition lost a race
	// or found the row in an incompatible state.
	ErrConflict = errors.New("store: claim conflict")
	// ErrAlreadyAttached reports a second AttachMessage with different
	// message coordinates, which means a duplicate send happened upstream.
	ErrAlreadyAttached = errors.New("store: message already attached")
)

// EventFields carries the projected issue fields from a webhook event.
// Empty fields are left untouched on merge.
type EventFields struct {
	Summary     string
	Description string
	Link        string
	AssigneeRef string
	StatusLabel string
}

// Get returns the mapping row for an issue.
func Get(db *gorm.DB, issueID string) (*models.IssueMessage, error) {
	var row models.IssueMessage
	err := db.Where("issue_id = ?", issueID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", issueID, err)
	}
	return &row, nil
}

// UpsertFromEvent creates the mapping row on first sight of an issue and
// merges non-empty fields into it afterwards. A fresh row starts in the
// pending state at version 0. MessageID and the claim columns are never
// written here, so ingestion can interleave with an in-flight claim.
func UpsertFromEvent(db *gorm.DB, issueID string, fields EventFields) (*models.IssueMessage, error) {
	if issueID == "" {
		return nil, fmt.Errorf("store: issue id is required")
	}

	row := models.IssueMessage{
		IssueID:     issueID,
		Summary:     fields.Summary,
		Description: fields.Description,
		Link:        fields.Link,
		AssigneeRef: fields.AssigneeRef,
		StatusLabel: fields.StatusLabel,
		ClaimState:  models.ClaimPending,
		Version:     0,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("store: upsert %s: %w", issueID, res.Error)
	}
	if res.RowsAffected == 1 {
		return &row, nil
	}

	// Row already exists: merge whatever the event carried.
	updates := map[string]interface{}{}
	if fields.Summary != "" {
		updates["summary"] = fields.Summary
	}
	if fields.Description != "" {
		updates["description"] = fields.Description
	}
	if fields.Link != "" {
		updates["link"] = fields.Link
	}
	if fields.AssigneeRef != "" {
		updates["assignee_ref"] = fields.AssigneeRef
	}
	if fields.StatusLabel != "" {
		updates["status_label"] = fields.StatusLabel
	}
	if len(updates) > 0 {
		updates["version"] = gorm.Expr("version + 1")
		if err := db.Model(&models.IssueMessage{}).
			Where("issue_id = ?", issueID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("store: merge %s: %w", issueID, err)
		}
	}
	return Get(db, issueID)
}

// AttachMessage records the chat coordinates of the rendered message,
// exactly once per issue. Re-attaching the same coordinates is a no-op;
// different coordinates mean a duplicate send and return ErrAlreadyAttached
// so the caller can detect redelivery.
func AttachMessage(db *gorm.DB, issueID, chatID, messageID string) error {
	if chatID == "" || messageID == "" {
		return fmt.Errorf("store: attach %s: chat and message ids are required", issueID)
	}

	res := db.Model(&models.IssueMessage{}).
		Where("issue_id = ? AND message_id = ''", issueID).
		Updates(map[string]interface{}{"chat_id": chatID, "message_id": messageID})
	if res.Error != nil {
		return fmt.Errorf("store: attach %s: %w", issueID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	row, err := Get(db, issueID)
	if err != nil {
		return err
	}
	if row.ChatID == chatID && row.MessageID == messageID {
		return nil
	}
	return fmt.Errorf("store: attach %s: %w", issueID, ErrAlreadyAttached)
}

// TryClaim atomically moves a pending row at the expected version into the
// claiming state and records the claimant. It is a single conditional
// UPDATE; at most one of any number of concurrent callers succeeds. The
// new version is returned on success, ErrConflict when the row moved first.
func TryClaim(db *gorm.DB, issueID, claimant string, expectedVersion int64) (int64, error) {
	if claimant == "" {
		return 0, fmt.Errorf("store: claim %s: claimant is required", issueID)
	}

	newVersion := expectedVersion + 1
	res := db.Model(&models.IssueMessage{}).
		Where("issue_id = ? AND claim_state = ? AND version = ?", issueID, models.ClaimPending, expectedVersion).
		Updates(map[string]interface{}{
			"claim_state":  models.ClaimClaiming,
			"claimant_ref": claimant,
			"version":      newVersion,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("store: claim %s: %w", issueID, res.Error)
	}
	if res.RowsAffected == 1 {
		return newVersion, nil
	}

	if _, err := Get(db, issueID); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("store: claim %s: %w", issueID, ErrConflict)
}

// CommitClaim finalizes a claim after the tracker accepted the assignment.
// Committing an already-committed claim by the same claimant is a no-op,
// which keeps the commit safe to attempt regardless of whether the
// originating request is still alive. The version is untouched; only
// event merges and TryClaim advance it, so a full create-then-claim cycle
// ends at version 1.
func CommitClaim(db *gorm.DB, issueID, claimant string) error {
	res := db.Model(&models.IssueMessage{}).
		Where("issue_id = ? AND claim_state = ? AND claimant_ref = ?", issueID, models.ClaimClaiming, claimant).
		Updates(map[string]interface{}{
			"claim_state":  models.ClaimClaimed,
			"assignee_ref": claimant,
		})
	if res.Error != nil {
		return fmt.Errorf("store: commit %s: %w", issueID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	row, err := Get(db, issueID)
	if err != nil {
		return err
	}
	if row.ClaimState == models.ClaimClaimed && row.AssigneeRef == claimant {
		return nil
	}
	return fmt.Errorf("store: commit %s: %w", issueID, ErrConflict)
}

// RevertClaim returns a claiming row to pending after the external call
// failed. The version stays advanced, so a concurrent claimer holding the
// old version still loses its TryClaim.
func RevertClaim(db *gorm.DB, issueID string) error {
	res := db.Model(&models.IssueMessage{}).
		Where("issue_id = ? AND claim_state = ?", issueID, models.ClaimClaiming).
		Updates(map[string]interface{}{
			"claim_state":  models.ClaimPending,
			"claimant_ref": "",
		})
	if res.Error != nil {
		return fmt.Errorf("store: revert %s: %w", issueID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	_, err := Get(db, issueID)
	return err
}
