package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qvnt33/agromat-it-desk-bot/internal/models"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.IssueMessage{},
		&models.UserLink{},
		&models.IssueAlert{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Copy transfers all rows from src to dst, upserting on primary key. It is
// used by "deskbot migrate copy" to move a SQLite deployment onto MySQL.
func Copy(src, dst *gorm.DB) error {
	if err := AutoMigrate(dst); err != nil {
		return err
	}

	var messages []models.IssueMessage
	if err := src.Find(&messages).Error; err != nil {
		return fmt.Errorf("db: copy: read issue messages: %w", err)
	}
	for i := range messages {
		if err := dst.Clauses(clause.OnConflict{UpdateAll: true}).Create(&messages[i]).Error; err != nil {
			return fmt.Errorf("db: copy: issue message %s: %w", messages[i].IssueID, err)
		}
	}

	// Links and alerts carry autoincrement ids plus their own unique keys,
	// so a blind upsert can trip the wrong index. Resolve the destination
	// id by natural key instead.
	var links []models.UserLink
	if err := src.Find(&links).Error; err != nil {
		return fmt.Errorf("db: copy: read user links: %w", err)
	}
	for i := range links {
		var existing models.UserLink
		err := dst.Where("chat_user_id = ?", links[i].ChatUserID).First(&existing).Error
		switch {
		case err == nil:
			links[i].ID = existing.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			links[i].ID = 0
		default:
			return fmt.Errorf("db: copy: user link %s: %w", links[i].ChatUserID, err)
		}
		if err := dst.Save(&links[i]).Error; err != nil {
			return fmt.Errorf("db: copy: user link %s: %w", links[i].ChatUserID, err)
		}
	}

	var alerts []models.IssueAlert
	if err := src.Find(&alerts).Error; err != nil {
		return fmt.Errorf("db: copy: read issue alerts: %w", err)
	}
	for i := range alerts {
		var existing models.IssueAlert
		err := dst.Where("issue_id = ? AND step = ?", alerts[i].IssueID, alerts[i].Step).First(&existing).Error
		switch {
		case err == nil:
			alerts[i].ID = existing.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			alerts[i].ID = 0
		default:
			return fmt.Errorf("db: copy: issue alert %s/%d: %w", alerts[i].IssueID, alerts[i].Step, err)
		}
		if err := dst.Save(&alerts[i]).Error; err != nil {
			return fmt.Errorf("db: copy: issue alert %s/%d: %w", alerts[i].IssueID, alerts[i].Step, err)
		}
	}

	return nil
}
