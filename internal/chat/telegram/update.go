package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/qvnt33/agromat-it-desk-bot/internal/chat"
)

// update mirrors the slice of the Bot API Update object the bot reacts to.
type update struct {
	CallbackQuery *struct {
		ID   string `json:"id"`
		From struct {
			ID    int64 `json:"id"`
			IsBot bool  `json:"is_bot"`
		} `json:"from"`
		Message *struct {
			MessageID int64 `json:"message_id"`
			Chat      struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
		Data string `json:"data"`
	} `json:"callback_query"`
	Message *struct {
		From struct {
			ID    int64 `json:"id"`
			IsBot bool  `json:"is_bot"`
		} `json:"from"`
		Chat struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// DecodeAction normalizes a Telegram webhook update. Button presses become
// KindAction; private-chat text becomes KindCommand. Everything else is
// chat.ErrIgnore.
func (g *Gateway) DecodeAction(body []byte) (*chat.Inbound, error) {
	var u update
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("telegram: decode update: %w", err)
	}

	if cb := u.CallbackQuery; cb != nil {
		if cb.From.IsBot {
			return nil, chat.ErrIgnore
		}
		inbound := &chat.Inbound{
			Kind:       chat.KindAction,
			ActionID:   cb.ID,
			ChatUserID: strconv.FormatInt(cb.From.ID, 10),
			Payload:    cb.Data,
		}
		// The message is absent when the original is too old for Telegram
		// to reference; the press is still answerable.
		if cb.Message != nil {
			inbound.ChatID = strconv.FormatInt(cb.Message.Chat.ID, 10)
			inbound.MessageID = strconv.FormatInt(cb.Message.MessageID, 10)
		}
		return inbound, nil
	}

	if m := u.Message; m != nil {
		if m.From.IsBot || m.Chat.Type != "private" {
			return nil, chat.ErrIgnore
		}
		text := strings.TrimSpace(m.Text)
		if text == "" {
			return nil, chat.ErrIgnore
		}
		return &chat.Inbound{
			Kind:       chat.KindCommand,
			ChatUserID: strconv.FormatInt(m.From.ID, 10),
			ChatID:     strconv.FormatInt(m.Chat.ID, 10),
			Payload:    text,
		}, nil
	}

	return nil, chat.ErrIgnore
}
