// Package ingest turns inbound tracker webhook events into mapping
// mutations and chat projections.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/qvnt33/agromat-it-desk-bot/internal/alerts"
	"github.com/qvnt33/agromat-it-desk-bot/internal/chat"
	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
	"github.com/qvnt33/agromat-it-desk-bot/internal/sanitize"
	"github.com/qvnt33/agromat-it-desk-bot/internal/store"
)

// Handler processes normalized issue events. It is safe for concurrent
// use; all coordination happens through the store.
type Handler struct {
	DB       *gorm.DB
	Chat     chat.Gateway
	Renderer render.Renderer
	// ChatID is the channel issue messages are posted to.
	ChatID string
	// EditWindow bounds how long after the original send a message can
	// still be edited (the chat platform enforces it; Telegram allows
	// 48h). Zero disables the guard.
	EditWindow time.Duration
	// Alerts schedules stale-status reminders; nil disables them.
	Alerts *alerts.Scheduler
}

// HandleCreated projects a "created" event: upsert the mapping row, send
// the message, attach its coordinates. Duplicate deliveries are absorbed:
// a row that already has a message attached is left alone.
func (h *Handler) HandleCreated(ctx context.Context, ev *IssueEvent) error {
	row, err := store.UpsertFromEvent(h.DB, ev.IssueID, store.EventFields{
		Summary:     ev.Summary,
		Description: sanitize.Description(ev.Description),
		Link:        ev.Link,
		AssigneeRef: ev.Assignee,
		StatusLabel: ev.Status,
	})
	if err != nil {
		return err
	}

	if row.MessageID != "" {
		log.Printf("ingest: duplicate created event for %s, message already attached", ev.IssueID)
		return nil
	}

	messageID, err := h.Chat.Send(ctx, h.ChatID, h.Renderer.Issue(row))
	if err != nil {
		return fmt.Errorf("ingest: send %s: %w", ev.IssueID, err)
	}
	if err := store.AttachMessage(h.DB, ev.IssueID, h.ChatID, messageID); err != nil {
		if errors.Is(err, store.ErrAlreadyAttached) {
			// A concurrent duplicate delivery attached first; ours is the
			// redundant send.
			log.Printf("ingest: lost attach race for %s, duplicate message %s in chat", ev.IssueID, messageID)
			return nil
		}
		return err
	}

	if h.Alerts != nil {
		h.Alerts.Schedule(ev.IssueID, ev.Status, h.ChatID, messageID)
	}
	return nil
}

// HandleUpdated projects an "updated" event onto the existing message.
// Updates for issues the system never saw a creation for are logged and
// dropped; they cannot be reconstructed.
func (h *Handler) HandleUpdated(ctx context.Context, ev *IssueEvent) error {
	if _, err := store.Get(h.DB, ev.IssueID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("ingest: update for unknown issue %s, dropping", ev.IssueID)
			return nil
		}
		return err
	}

	description := ""
	if ev.Description != "" {
		description = sanitize.Description(ev.Description)
	}
	row, err := store.UpsertFromEvent(h.DB, ev.IssueID, store.EventFields{
		Summary:     ev.Summary,
		Description: description,
		Link:        ev.Link,
		AssigneeRef: ev.Assignee,
		StatusLabel: ev.Status,
	})
	if err != nil {
		return err
	}

	if h.Alerts != nil {
		h.Alerts.Reconcile(ev.IssueID, ev.Status, row.ChatID, row.MessageID)
	}

	if row.MessageID == "" {
		return nil
	}
	if h.EditWindow > 0 && time.Since(row.CreatedAt) > h.EditWindow {
		log.Printf("ingest: edit window expired for %s, leaving message %s stale", ev.IssueID, row.MessageID)
		return nil
	}
	if err := h.Chat.Edit(ctx, row.ChatID, row.MessageID, h.Renderer.Issue(row)); err != nil {
		return fmt.Errorf("ingest: edit %s: %w", ev.IssueID, err)
	}
	return nil
}
