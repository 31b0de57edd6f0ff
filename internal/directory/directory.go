// Package directory manages chat-user → tracker-identity links. The core
// reads it for claim authorization; the registration flows write it.
package directory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qvnt33/agromat-it-desk-bot/internal/models"
	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker"
)

var (
	// ErrNotLinked reports that a chat user has no link row at all.
	ErrNotLinked = errors.New("directory: user not linked")
	// ErrInactive reports that the link exists but has been deactivated.
	ErrInactive = errors.New("directory: user link inactive")
	// ErrLoginTaken reports that the tracker identity is already linked
	// to a different chat user.
	ErrLoginTaken = errors.New("directory: tracker identity already linked")
)

// Outcome describes the result of a registration attempt.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeAlreadyConnected Outcome = "already_connected"
	OutcomeForeignOwner     Outcome = "foreign_owner"
)

// Resolve returns the active link for a chat user and updates its
// last-seen timestamp. ErrNotLinked / ErrInactive distinguish the two
// rejection cases for the caller's answer text.
func Resolve(db *gorm.DB, chatUserID string) (*models.UserLink, error) {
	var link models.UserLink
	err := db.Where("chat_user_id = ?", chatUserID).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("directory: resolve %s: %w", chatUserID, err)
	}
	if !link.IsActive {
		return nil, ErrInactive
	}
	touchLastSeen(db, chatUserID)
	return &link, nil
}

// ResolveByTracker returns the active link owning a tracker identity.
func ResolveByTracker(db *gorm.DB, trackerUserID string) (*models.UserLink, error) {
	var link models.UserLink
	err := db.Where("tracker_user_id = ? AND is_active = ?", trackerUserID, true).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("directory: resolve tracker %s: %w", trackerUserID, err)
	}
	return &link, nil
}

// Register links a chat user to the tracker account owning the given
// personal token. The token is validated against the tracker and only its
// SHA-256 hash is stored. Re-registering with the same token reports
// OutcomeAlreadyConnected; a token whose account belongs to another chat
// user reports OutcomeForeignOwner without touching anything.
func Register(ctx context.Context, db *gorm.DB, gw tracker.Gateway, chatUserID, token string) (Outcome, error) {
	if chatUserID == "" {
		return "", fmt.Errorf("directory: chat user id is required")
	}
	user, err := gw.ValidateToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("directory: validate token: %w", err)
	}

	hash := hashToken(token)
	if owner, err := ResolveByTracker(db, user.ID); err == nil {
		if owner.ChatUserID != chatUserID {
			return OutcomeForeignOwner, nil
		}
		if owner.TokenHash == hash {
			touchLastSeen(db, chatUserID)
			return OutcomeAlreadyConnected, nil
		}
	} else if !errors.Is(err, ErrNotLinked) {
		return "", err
	}

	now := time.Now().UTC()
	if err := upsertLink(db, models.UserLink{
		ChatUserID:     chatUserID,
		TrackerUserID:  user.ID,
		TrackerLogin:   user.Login,
		TrackerEmail:   user.Email,
		TokenHash:      hash,
		TokenCreatedAt: &now,
		IsActive:       true,
		LastSeenAt:     &now,
		RegisteredAt:   now,
	}); err != nil {
		return "", err
	}
	return OutcomeSuccess, nil
}

// LinkLogin links a chat user to a tracker account by login, without a
// token. Used by the chat "/register <login>" command; such links can
// claim issues but carry no credentials.
func LinkLogin(ctx context.Context, db *gorm.DB, gw tracker.Gateway, chatUserID, login string) (*models.UserLink, error) {
	if chatUserID == "" || login == "" {
		return nil, fmt.Errorf("directory: chat user id and login are required")
	}
	user, err := gw.LookupUser(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("directory: lookup %s: %w", login, err)
	}

	if owner, err := ResolveByTracker(db, user.ID); err == nil && owner.ChatUserID != chatUserID {
		return nil, ErrLoginTaken
	} else if err != nil && !errors.Is(err, ErrNotLinked) {
		return nil, err
	}

	now := time.Now().UTC()
	link := models.UserLink{
		ChatUserID:    chatUserID,
		TrackerUserID: user.ID,
		TrackerLogin:  user.Login,
		TrackerEmail:  user.Email,
		IsActive:      true,
		LastSeenAt:    &now,
		RegisteredAt:  now,
	}
	if err := upsertLink(db, link); err != nil {
		return nil, err
	}
	return &link, nil
}

// Deactivate disables a link and drops its token hash.
func Deactivate(db *gorm.DB, chatUserID string) error {
	now := time.Now().UTC()
	res := db.Model(&models.UserLink{}).
		Where("chat_user_id = ?", chatUserID).
		Updates(map[string]interface{}{
			"is_active":        false,
			"token_hash":       "",
			"token_created_at": nil,
			"last_seen_at":     now,
		})
	if res.Error != nil {
		return fmt.Errorf("directory: deactivate %s: %w", chatUserID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotLinked
	}
	return nil
}

// List returns every link, newest registration first.
func List(db *gorm.DB) ([]models.UserLink, error) {
	var links []models.UserLink
	if err := db.Order("registered_at DESC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("directory: list: %w", err)
	}
	return links, nil
}

// upsertLink replaces the chat user's link with the given values,
// preserving the original registration timestamp if a row already exists.
func upsertLink(db *gorm.DB, link models.UserLink) error {
	var existing models.UserLink
	err := db.Where("chat_user_id = ?", link.ChatUserID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Create(&link).Error; err != nil {
			return fmt.Errorf("directory: create link %s: %w", link.ChatUserID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("directory: upsert link %s: %w", link.ChatUserID, err)
	}

	link.ID = existing.ID
	link.RegisteredAt = existing.RegisteredAt
	link.CreatedAt = existing.CreatedAt
	if err := db.Save(&link).Error; err != nil {
		return fmt.Errorf("directory: update link %s: %w", link.ChatUserID, err)
	}
	return nil
}

func touchLastSeen(db *gorm.DB, chatUserID string) {
	now := time.Now().UTC()
	db.Model(&models.UserLink{}).Where("chat_user_id = ?", chatUserID).Update("last_seen_at", now)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
