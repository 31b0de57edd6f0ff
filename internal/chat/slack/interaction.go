package slack

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	slackapi "github.com/slack-go/slack"

	"github.com/qvnt33/agromat-it-desk-bot/internal/chat"
)

// DecodeAction normalizes a Slack interactivity webhook. Slack posts the
// interaction as a form field named "payload" holding JSON.
func (g *Gateway) DecodeAction(body []byte) (*chat.Inbound, error) {
	raw := string(body)
	if strings.HasPrefix(raw, "payload=") || strings.Contains(raw, "&payload=") {
		values, err := url.ParseQuery(raw)
		if err != nil {
			return nil, fmt.Errorf("slack: decode form: %w", err)
		}
		raw = values.Get("payload")
	}

	var callback slackapi.InteractionCallback
	if err := json.Unmarshal([]byte(raw), &callback); err != nil {
		return nil, fmt.Errorf("slack: decode interaction: %w", err)
	}
	if callback.Type != slackapi.InteractionTypeBlockActions {
		return nil, chat.ErrIgnore
	}
	actions := callback.ActionCallback.BlockActions
	if len(actions) == 0 {
		return nil, chat.ErrIgnore
	}

	return &chat.Inbound{
		Kind:       chat.KindAction,
		ActionID:   callback.ResponseURL,
		ChatUserID: callback.User.ID,
		ChatID:     callback.Container.ChannelID,
		MessageID:  callback.Container.MessageTs,
		Payload:    actions[0].Value,
	}, nil
}
