// Package discord implements the chat Gateway on the Discord REST API.
// Button presses arrive as interaction webhooks; the action id packs the
// interaction id and token so the acknowledgement can reach the right
// interaction.
package discord

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// Gateway talks to one Discord bot.
type Gateway struct {
	sess session
}

// Opts holds parameters for creating a Discord Gateway.
type Opts struct {
	BotToken string
	// For testing: inject a mock session instead of the real API.
	Session session
}

// New creates a Discord Gateway.
func New(opts Opts) (*Gateway, error) {
	if opts.Session != nil {
		return &Gateway{sess: opts.Session}, nil
	}
	if opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	sess, err := discordgo.New("Bot " + opts.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return &Gateway{sess: sess}, nil
}

// Send posts the issue message with an accept button component when the
// message offers one. Returns the Discord message snowflake.
func (g *Gateway) Send(ctx context.Context, chatID string, msg render.Message) (string, error) {
	data := &discordgo.MessageSend{
		Content:    toDiscord(msg.Text),
		Components: acceptComponents(msg),
	}
	sent, err := g.sess.ChannelMessageSendComplex(chatID, data, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: send to %s: %w", chatID, err)
	}
	return sent.ID, nil
}

// Edit rewrites the message content and components in place.
func (g *Gateway) Edit(ctx context.Context, chatID, messageID string, msg render.Message) error {
	content := toDiscord(msg.Text)
	components := acceptComponents(msg)
	edit := &discordgo.MessageEdit{
		Channel:    chatID,
		ID:         messageID,
		Content:    &content,
		Components: &components,
	}
	if _, err := g.sess.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: edit %s in %s: %w", messageID, chatID, err)
	}
	return nil
}

// AnswerAction replies to the interaction with an ephemeral message. The
// action id is "<interaction id>:<interaction token>" as packed by
// DecodeAction.
func (g *Gateway) AnswerAction(ctx context.Context, actionID, text string) error {
	id, token, ok := strings.Cut(actionID, ":")
	if !ok {
		return fmt.Errorf("discord: answer: malformed action id %q", actionID)
	}
	err := g.sess.InteractionRespond(
		&discordgo.Interaction{ID: id, Token: token},
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: text,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("discord: answer %s: %w", id, err)
	}
	return nil
}

func acceptComponents(msg render.Message) []discordgo.MessageComponent {
	if !msg.ShowAccept {
		return []discordgo.MessageComponent{}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Accept",
					Style:    discordgo.PrimaryButton,
					CustomID: render.AcceptAction + "|" + msg.IssueID,
				},
			},
		},
	}
}

var boldTag = regexp.MustCompile(`</?b>`)

// toDiscord converts the renderer's minimal HTML to Discord markdown.
func toDiscord(text string) string {
	s := boldTag.ReplaceAllString(text, "**")
	return html.UnescapeString(s)
}
