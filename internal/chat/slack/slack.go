// Package slack implements the chat Gateway on the Slack Web API.
package slack

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
)

const answerTimeout = 10 * time.Second

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error)
}

// responsePoster delivers an ephemeral acknowledgement to a response URL.
type responsePoster interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gateway talks to one Slack workspace.
type Gateway struct {
	client responsePoster
	api    slackClient
}

// Opts holds parameters for creating a Slack Gateway.
type Opts struct {
	BotToken string // xoxb-... bot token
	// For testing: inject mocks instead of real clients.
	API    slackClient
	Client responsePoster
}

// New creates a Slack Gateway.
func New(opts Opts) (*Gateway, error) {
	if opts.API == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	g := &Gateway{api: opts.API, client: opts.Client}
	if g.api == nil {
		g.api = slackapi.New(opts.BotToken)
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: answerTimeout}
	}
	return g, nil
}

// Send posts the issue message as Block Kit blocks. Returns the message
// timestamp, Slack's message identifier.
func (g *Gateway) Send(ctx context.Context, chatID string, msg render.Message) (string, error) {
	_, ts, err := g.api.PostMessageContext(ctx, chatID, buildOptions(msg)...)
	if err != nil {
		return "", fmt.Errorf("slack: post to %s: %w", chatID, err)
	}
	return ts, nil
}

// Edit rewrites the message blocks in place.
func (g *Gateway) Edit(ctx context.Context, chatID, messageID string, msg render.Message) error {
	if _, _, _, err := g.api.UpdateMessageContext(ctx, chatID, messageID, buildOptions(msg)...); err != nil {
		return fmt.Errorf("slack: update %s in %s: %w", messageID, chatID, err)
	}
	return nil
}

// AnswerAction posts an ephemeral reply to the interaction's response URL.
// The action id carries the URL; Slack hands one out per press.
func (g *Gateway) AnswerAction(ctx context.Context, actionID, text string) error {
	payload := fmt.Sprintf(`{"response_type":"ephemeral","replace_original":false,"text":%q}`, text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, actionID, strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("slack: answer: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: answer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack: answer: response url returned %d", resp.StatusCode)
	}
	return nil
}

// buildOptions translates a rendered message into Block Kit: a section
// with the text plus, when offered, an actions block with the accept
// button.
func buildOptions(msg render.Message) []slackapi.MsgOption {
	blocks := []slackapi.Block{
		slackapi.NewSectionBlock(
			slackapi.NewTextBlockObject(slackapi.MarkdownType, toMrkdwn(msg.Text), false, false),
			nil, nil,
		),
	}
	if msg.ShowAccept {
		button := slackapi.NewButtonBlockElement(
			render.AcceptAction,
			render.AcceptAction+"|"+msg.IssueID,
			slackapi.NewTextBlockObject(slackapi.PlainTextType, "Accept", false, false),
		)
		button.Style = slackapi.StylePrimary
		blocks = append(blocks, slackapi.NewActionBlock("claim", button))
	}
	return []slackapi.MsgOption{slackapi.MsgOptionBlocks(blocks...)}
}

var boldTag = regexp.MustCompile(`</?b>`)

// toMrkdwn converts the renderer's minimal HTML to Slack mrkdwn.
func toMrkdwn(text string) string {
	s := boldTag.ReplaceAllString(text, "*")
	return html.UnescapeString(s)
}
