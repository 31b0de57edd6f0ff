// Package telegram implements the chat Gateway over the Telegram Bot API.
// Plain HTTP is used; the Bot API is a small JSON surface and the
// ecosystem wrappers drag in long-polling machinery this service does not
// want.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	// maxAttempts bounds retries on transport errors and rate limits.
	maxAttempts = 3
	callTimeout = 10 * time.Second
)

// httpDoer abstracts the HTTP client for test injection.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gateway talks to one bot on the Telegram Bot API.
type Gateway struct {
	token   string
	baseURL string
	client  httpDoer
}

// Opts holds parameters for creating a Telegram Gateway.
type Opts struct {
	Token string
	// BaseURL overrides the API host, mainly for tests.
	BaseURL string
	// Client injects an HTTP client; nil uses a default with timeouts.
	Client httpDoer
}

// New creates a Telegram Gateway.
func New(opts Opts) (*Gateway, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	g := &Gateway{
		token:   opts.Token,
		baseURL: opts.BaseURL,
		client:  opts.Client,
	}
	if g.baseURL == "" {
		g.baseURL = defaultBaseURL
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: callTimeout}
	}
	return g, nil
}

// Send posts the message with an inline accept keyboard when the message
// carries the accept control. Returns the Telegram message id as a string.
func (g *Gateway) Send(ctx context.Context, chatID string, msg render.Message) (string, error) {
	params := map[string]interface{}{
		"chat_id":    chatID,
		"text":       msg.Text,
		"parse_mode": "HTML",
	}
	if markup := acceptMarkup(msg); markup != nil {
		params["reply_markup"] = markup
	}

	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := g.call(ctx, "sendMessage", params, &result); err != nil {
		return "", fmt.Errorf("telegram: send to %s: %w", chatID, err)
	}
	return strconv.FormatInt(result.MessageID, 10), nil
}

// Edit replaces the message text and keyboard in place.
func (g *Gateway) Edit(ctx context.Context, chatID, messageID string, msg render.Message) error {
	id, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: edit %s: bad message id: %w", messageID, err)
	}
	params := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": id,
		"text":       msg.Text,
		"parse_mode": "HTML",
	}
	if markup := acceptMarkup(msg); markup != nil {
		params["reply_markup"] = markup
	}
	if err := g.call(ctx, "editMessageText", params, nil); err != nil {
		return fmt.Errorf("telegram: edit %s in %s: %w", messageID, chatID, err)
	}
	return nil
}

// AnswerAction answers the callback query so the client stops its spinner.
func (g *Gateway) AnswerAction(ctx context.Context, actionID, text string) error {
	params := map[string]interface{}{
		"callback_query_id": actionID,
		"text":              text,
	}
	if err := g.call(ctx, "answerCallbackQuery", params, nil); err != nil {
		return fmt.Errorf("telegram: answer %s: %w", actionID, err)
	}
	return nil
}

// acceptMarkup builds the inline keyboard for a message that offers the
// accept control. Messages without it get no keyboard, which also clears
// a previous one on edit.
func acceptMarkup(msg render.Message) map[string]interface{} {
	if !msg.ShowAccept {
		return nil
	}
	return map[string]interface{}{
		"inline_keyboard": [][]map[string]string{{{
			"text":          "Accept",
			"callback_data": render.AcceptAction + "|" + msg.IssueID,
		}}},
	}
}

// apiResponse is the Bot API envelope every method returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// call performs one Bot API method with bounded retries. Rate limits wait
// the server-advised interval; other 4xx responses are permanent.
func (g *Gateway) call(ctx context.Context, method string, params map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", g.baseURL, g.token, method)

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		var envelope apiResponse
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
		if !envelope.OK {
			apiErr := fmt.Errorf("%s: api error %d: %s", method, envelope.ErrorCode, envelope.Description)
			if envelope.ErrorCode == http.StatusTooManyRequests {
				// Honor the server-advised pause before the retry fires.
				if wait := envelope.Parameters.RetryAfter; wait > 0 {
					select {
					case <-time.After(time.Duration(wait) * time.Second):
					case <-ctx.Done():
						return backoff.Permanent(ctx.Err())
					}
				}
				return apiErr
			}
			if envelope.ErrorCode >= 400 && envelope.ErrorCode < 500 {
				return backoff.Permanent(apiErr)
			}
			return apiErr
		}
		if out != nil {
			if err := json.Unmarshal(envelope.Result, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode %s result: %w", method, err))
			}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	return backoff.Retry(operation, policy)
}
