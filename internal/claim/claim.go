// Package claim coordinates the accept workflow: a chat user presses the
// accept control, the issue is assigned to them in the tracker, and the
// chat message is updated to show the new owner. At most one user wins a
// given issue; everything races through the store's conditional updates.
package claim

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/qvnt33/agromat-it-desk-bot/internal/alerts"
	"github.com/qvnt33/agromat-it-desk-bot/internal/chat"
	"github.com/qvnt33/agromat-it-desk-bot/internal/directory"
	"github.com/qvnt33/agromat-it-desk-bot/internal/models"
	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
	"github.com/qvnt33/agromat-it-desk-bot/internal/store"
	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker"
)

// Action is a decoded accept press from the chat platform.
type Action struct {
	// ActionID identifies the press for the platform's acknowledgement
	// call (Telegram callback query id, Slack trigger id).
	ActionID string
	// ChatUserID is the platform id of the user who pressed.
	ChatUserID string
	// ChatID and MessageID locate the message the control lives on.
	ChatID    string
	MessageID string
	// IssueID is the issue encoded in the control's payload.
	IssueID string
}

// Coordinator runs the accept workflow. Safe for concurrent use; every
// state transition is a conditional update in the store.
type Coordinator struct {
	DB       *gorm.DB
	Tracker  tracker.Gateway
	Chat     chat.Gateway
	Renderer render.Renderer
	// InProgressStatus is the tracker status set on a successful claim.
	// Empty skips the status change.
	InProgressStatus string
	// Alerts cancels stale-status reminders on claim; nil disables.
	Alerts *alerts.Scheduler
}

// Accept processes one accept press. Every outcome, win, lose or internal
// failure, is acknowledged to the pressing user exactly once; the
// acknowledgement on internal-failure paths is best effort. An error
// return reports the failure itself, the user has already been told.
func (c *Coordinator) Accept(ctx context.Context, act Action) error {
	link, err := directory.Resolve(c.DB, act.ChatUserID)
	if err != nil {
		if errors.Is(err, directory.ErrNotLinked) || errors.Is(err, directory.ErrInactive) {
			return c.answer(ctx, act, "You are not registered. Send your tracker token to the bot first.")
		}
		c.answerFailure(ctx, act)
		return fmt.Errorf("claim: resolve user %s: %w", act.ChatUserID, err)
	}
	claimant := link.TrackerLogin

	row, err := store.Get(c.DB, act.IssueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("claim: accept for unknown issue %s from %s", act.IssueID, claimant)
			return c.answer(ctx, act, "This issue is no longer tracked.")
		}
		c.answerFailure(ctx, act)
		return fmt.Errorf("claim: load %s: %w", act.IssueID, err)
	}
	if row.ClaimState != models.ClaimPending {
		return c.answerSettled(ctx, act, row, claimant)
	}

	version, err := store.TryClaim(c.DB, act.IssueID, claimant, row.Version)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Someone else moved the row between our read and the claim.
			settled, gerr := store.Get(c.DB, act.IssueID)
			if gerr != nil {
				c.answerFailure(ctx, act)
				return fmt.Errorf("claim: reload %s: %w", act.IssueID, gerr)
			}
			return c.answerSettled(ctx, act, settled, claimant)
		}
		c.answerFailure(ctx, act)
		return fmt.Errorf("claim: try %s: %w", act.IssueID, err)
	}
	log.Printf("claim: %s claiming %s at version %d", claimant, act.IssueID, version)

	if err := c.Tracker.Assign(ctx, act.IssueID, claimant); err != nil {
		log.Printf("claim: assign %s to %s failed: %v", act.IssueID, claimant, err)
		if rerr := store.RevertClaim(c.DB, act.IssueID); rerr != nil {
			log.Printf("claim: revert %s: %v", act.IssueID, rerr)
		}
		return c.answer(ctx, act, "The tracker rejected the assignment. Try again.")
	}

	// The assignment holds even if the status change does not; a claim is
	// never rolled back past a successful Assign.
	if c.InProgressStatus != "" {
		if err := c.Tracker.SetStatus(ctx, act.IssueID, c.InProgressStatus); err != nil {
			log.Printf("claim: set status %q on %s: %v", c.InProgressStatus, act.IssueID, err)
		}
	}

	if err := store.CommitClaim(c.DB, act.IssueID, claimant); err != nil {
		c.answerFailure(ctx, act)
		return fmt.Errorf("claim: commit %s: %w", act.IssueID, err)
	}
	if c.Alerts != nil {
		c.Alerts.Cancel(act.IssueID)
	}

	c.refreshMessage(ctx, act.IssueID)
	return c.answer(ctx, act, fmt.Sprintf("Issue %s is yours.", act.IssueID))
}

// answerSettled acknowledges a press on an issue that is already past
// pending. The original winner pressing again still hears success.
func (c *Coordinator) answerSettled(ctx context.Context, act Action, row *models.IssueMessage, claimant string) error {
	if row.ClaimState == models.ClaimClaimed && row.AssigneeRef == claimant {
		return c.answer(ctx, act, fmt.Sprintf("Issue %s is yours.", act.IssueID))
	}
	owner := row.ClaimantRef
	if owner == "" {
		owner = row.AssigneeRef
	}
	if owner == "" {
		return c.answer(ctx, act, fmt.Sprintf("Issue %s was already taken.", act.IssueID))
	}
	return c.answer(ctx, act, fmt.Sprintf("Issue %s was already taken by %s.", act.IssueID, owner))
}

// refreshMessage re-renders the chat message after a settled claim so the
// accept control disappears. Failures are logged, not surfaced; the claim
// itself already committed.
func (c *Coordinator) refreshMessage(ctx context.Context, issueID string) {
	row, err := store.Get(c.DB, issueID)
	if err != nil {
		log.Printf("claim: reload %s for refresh: %v", issueID, err)
		return
	}
	if row.MessageID == "" {
		return
	}
	if err := c.Chat.Edit(ctx, row.ChatID, row.MessageID, c.Renderer.Issue(row)); err != nil {
		log.Printf("claim: refresh message for %s: %v", issueID, err)
	}
}

func (c *Coordinator) answer(ctx context.Context, act Action, text string) error {
	if err := c.Chat.AnswerAction(ctx, act.ActionID, text); err != nil {
		return fmt.Errorf("claim: answer %s: %w", act.ActionID, err)
	}
	return nil
}

// answerFailure tells the pressing user an internal step failed. Best
// effort: the caller is about to return the underlying error anyway.
func (c *Coordinator) answerFailure(ctx context.Context, act Action) {
	if err := c.Chat.AnswerAction(ctx, act.ActionID, "Something went wrong. Try again."); err != nil {
		log.Printf("claim: answer %s: %v", act.ActionID, err)
	}
}
