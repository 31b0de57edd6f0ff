package discord

import (
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/qvnt33/agromat-it-desk-bot/internal/chat"
)

// DecodeAction normalizes a Discord interaction webhook. Only component
// presses (buttons) are acted on; pings and other interaction kinds are
// chat.ErrIgnore for the caller to acknowledge per Discord's rules.
func (g *Gateway) DecodeAction(body []byte) (*chat.Inbound, error) {
	var interaction discordgo.Interaction
	if err := json.Unmarshal(body, &interaction); err != nil {
		return nil, fmt.Errorf("discord: decode interaction: %w", err)
	}
	if interaction.Type != discordgo.InteractionMessageComponent {
		return nil, chat.ErrIgnore
	}

	userID := ""
	switch {
	case interaction.Member != nil && interaction.Member.User != nil:
		userID = interaction.Member.User.ID
	case interaction.User != nil:
		userID = interaction.User.ID
	}

	messageID := ""
	if interaction.Message != nil {
		messageID = interaction.Message.ID
	}

	data := interaction.MessageComponentData()
	return &chat.Inbound{
		Kind:       chat.KindAction,
		ActionID:   interaction.ID + ":" + interaction.Token,
		ChatUserID: userID,
		ChatID:     interaction.ChannelID,
		MessageID:  messageID,
		Payload:    data.CustomID,
	}, nil
}
