// Package alerts nags the channel about issues stuck in the watched
// status. Reminders are persisted so restarts do not lose or duplicate
// them; a cron-driven poller delivers the due ones.
package alerts

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qvnt33/agromat-it-desk-bot/internal/chat"
	"github.com/qvnt33/agromat-it-desk-bot/internal/config"
	"github.com/qvnt33/agromat-it-desk-bot/internal/models"
	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
)

// batchLimit caps how many reminders one poll tick delivers.
const batchLimit = 20

// Scheduler persists and delivers stale-status reminders.
type Scheduler struct {
	DB   *gorm.DB
	Chat chat.Gateway
	Cfg  config.AlertsConfig

	cron *cron.Cron
}

// New creates a Scheduler. It does nothing until Start is called.
func New(db *gorm.DB, gw chat.Gateway, cfg config.AlertsConfig) *Scheduler {
	return &Scheduler{DB: db, Chat: gw, Cfg: cfg}
}

// Start begins polling for due reminders. No-op when alerts are disabled
// or no steps are configured.
func (s *Scheduler) Start() error {
	if !s.enabled() {
		return nil
	}
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %ds", s.Cfg.PollSeconds)
	if _, err := s.cron.AddFunc(spec, s.deliverDue); err != nil {
		return fmt.Errorf("alerts: schedule poller: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the poller and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Schedule creates the reminder batch for an issue that just entered the
// watched status. Existing steps for the issue are kept (upsert on
// issue+step), so redelivered webhooks do not reset the clock.
func (s *Scheduler) Schedule(issueID, status, chatID, messageID string) {
	if !s.enabled() || issueID == "" || !s.isWatched(status) {
		return
	}
	now := time.Now().UTC()
	for i, step := range s.Cfg.Steps {
		alert := models.IssueAlert{
			IssueID:   issueID,
			Step:      i,
			ChatID:    chatID,
			MessageID: messageID,
			SendAfter: now.Add(time.Duration(step.Minutes) * time.Minute),
		}
		if err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "issue_id"}, {Name: "step"}},
			DoNothing: true,
		}).Create(&alert).Error; err != nil {
			log.Printf("alerts: schedule %s step %d: %v", issueID, i, err)
		}
	}
}

// Reconcile aligns the reminder state with a status change: entering the
// watched status schedules reminders, leaving it cancels them.
func (s *Scheduler) Reconcile(issueID, status, chatID, messageID string) {
	if !s.enabled() || issueID == "" || status == "" {
		return
	}
	if s.isWatched(status) {
		s.Schedule(issueID, status, chatID, messageID)
		return
	}
	s.Cancel(issueID)
}

// Cancel drops all pending reminders for an issue.
func (s *Scheduler) Cancel(issueID string) {
	if issueID == "" {
		return
	}
	if err := s.DB.Where("issue_id = ? AND sent_at IS NULL", issueID).
		Delete(&models.IssueAlert{}).Error; err != nil {
		log.Printf("alerts: cancel %s: %v", issueID, err)
	}
}

// deliverDue delivers every reminder whose time has come. Delivery is
// at most once: the row is claimed with a conditional update before the
// send, so concurrent pollers or a crash mid-send cannot deliver twice.
// A reminder whose send fails after claiming is dropped.
func (s *Scheduler) deliverDue() {
	var due []models.IssueAlert
	err := s.DB.Where("sent_at IS NULL AND send_after <= ?", time.Now().UTC()).
		Order("send_after ASC").Limit(batchLimit).Find(&due).Error
	if err != nil {
		log.Printf("alerts: fetch due: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, alert := range due {
		if alert.Step >= len(s.Cfg.Steps) {
			// Config shrank since the row was written.
			s.DB.Delete(&models.IssueAlert{}, alert.ID)
			continue
		}
		res := s.DB.Model(&models.IssueAlert{}).
			Where("id = ? AND sent_at IS NULL", alert.ID).
			Update("sent_at", time.Now().UTC())
		if res.Error != nil {
			log.Printf("alerts: claim reminder %s step %d: %v", alert.IssueID, alert.Step, res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			// Another poller took it.
			continue
		}
		step := s.Cfg.Steps[alert.Step]
		text := strings.ReplaceAll(step.Message, "{issue_id}", alert.IssueID)
		if _, err := s.Chat.Send(ctx, alert.ChatID, render.Message{IssueID: alert.IssueID, Text: text}); err != nil {
			log.Printf("alerts: send reminder %s step %d: %v", alert.IssueID, alert.Step, err)
		}
	}
}

func (s *Scheduler) enabled() bool {
	return s.Cfg.Enabled && len(s.Cfg.Steps) > 0
}

func (s *Scheduler) isWatched(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), s.Cfg.StateName)
}
