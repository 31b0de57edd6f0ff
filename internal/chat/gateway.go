// Package chat defines the capability interface to the chat platform.
// Platform-specific implementations live in subpackages (telegram, slack,
// discord); the core only ever sees this contract.
package chat

import (
	"context"

	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
)

// Gateway is the interface that platform implementations must satisfy.
// All methods take a context; calls to the platform are the only
// suspension points in a request and carry per-call timeouts.
type Gateway interface {
	// Send posts a rendered issue message to a channel and returns the
	// platform message identifier used for later edits.
	Send(ctx context.Context, chatID string, msg render.Message) (string, error)

	// Edit replaces a previously sent message in place. The message
	// coordinates never change after the first send.
	Edit(ctx context.Context, chatID, messageID string, msg render.Message) error

	// AnswerAction acknowledges a pending user action (button press)
	// with a short text. Every action must be answered exactly once.
	AnswerAction(ctx context.Context, actionID, text string) error
}
