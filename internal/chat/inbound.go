package chat

import "errors"

// ErrIgnore reports an inbound payload the platform gateway understands
// but the core should not act on (bot's own messages, unrelated update
// kinds). Callers drop the payload silently.
var ErrIgnore = errors.New("chat: ignorable inbound payload")

// InboundKind discriminates the inbound payloads the core reacts to.
type InboundKind string

const (
	// KindAction is a button press on an issue message.
	KindAction InboundKind = "action"
	// KindCommand is a text command sent directly to the bot.
	KindCommand InboundKind = "command"
)

// Inbound is a platform webhook payload normalized to the core's terms.
type Inbound struct {
	Kind InboundKind
	// ActionID is the platform handle for acknowledging a KindAction.
	ActionID string
	// ChatUserID is the platform id of the originating user.
	ChatUserID string
	// ChatID and MessageID locate the message an action was pressed on.
	ChatID    string
	MessageID string
	// Payload is the action's callback data or the command text.
	Payload string
}

// ActionDecoder turns a raw platform webhook body into an Inbound.
// Implemented by the platform gateways alongside Gateway.
type ActionDecoder interface {
	DecodeAction(body []byte) (*Inbound, error)
}
