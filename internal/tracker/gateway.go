// Package tracker defines the capability interface to the issue tracker.
// Backend implementations live in subpackages (youtrack, github) and carry
// their own retry/backoff; callers see either success, ErrPermanent for
// rejections that retrying cannot fix, or a wrapped transport error once
// retries are exhausted.
package tracker

import (
	"context"
	"errors"
)

// ErrPermanent marks tracker rejections that must not be retried, such as
// permission or validation failures.
var ErrPermanent = errors.New("tracker: permanent failure")

// ErrUserNotFound reports that a user lookup matched nothing.
var ErrUserNotFound = errors.New("tracker: user not found")

// User identifies a tracker account.
type User struct {
	ID    string
	Login string
	Email string
}

// Gateway is the tracker capability interface used by the core.
type Gateway interface {
	// Assign sets the issue assignee to the given identity (login).
	Assign(ctx context.Context, issueID, identity string) error

	// SetStatus moves the issue to the given status.
	SetStatus(ctx context.Context, issueID, status string) error

	// LookupUser resolves a tracker account by login.
	LookupUser(ctx context.Context, login string) (*User, error)

	// ValidateToken verifies a personal token and returns the account it
	// belongs to. Used by the registration flow.
	ValidateToken(ctx context.Context, token string) (*User, error)
}
