package slack

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	slackapi "github.com/slack-go/slack"

	"github.com/qvnt33/agromat-it-desk-bot/internal/chat"
	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
)

// mockAPI records Web API calls.
type mockAPI struct {
	posted  []postedCall
	updated []updatedCall
	postErr error
}

type postedCall struct {
	ChannelID string
	Options   []slackapi.MsgOption
}

type updatedCall struct {
	ChannelID string
	Timestamp string
}

func (m *mockAPI) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	if m.postErr != nil {
		return "", "", m.postErr
	}
	m.posted = append(m.posted, postedCall{ChannelID: channelID, Options: options})
	return channelID, "1724000000.000100", nil
}

func (m *mockAPI) UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error) {
	m.updated = append(m.updated, updatedCall{ChannelID: channelID, Timestamp: timestamp})
	return channelID, timestamp, "", nil
}

// mockPoster records response-URL deliveries.
type mockPoster struct {
	requests []*http.Request
	bodies   []string
	status   int
}

func (m *mockPoster) Do(req *http.Request) (*http.Response, error) {
	raw, _ := io.ReadAll(req.Body)
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, string(raw))
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("ok"))}, nil
}

func testGateway(t *testing.T) (*Gateway, *mockAPI, *mockPoster) {
	t.Helper()
	api := &mockAPI{}
	poster := &mockPoster{}
	g, err := New(Opts{API: api, Client: poster})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g, api, poster
}

func TestSendReturnsTimestamp(t *testing.T) {
	g, api, _ := testGateway(t)

	ts, err := g.Send(context.Background(), "C123", render.Message{IssueID: "HD-42", Text: "<b>HD-42</b>", ShowAccept: true})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ts != "1724000000.000100" {
		t.Errorf("timestamp = %q", ts)
	}
	if len(api.posted) != 1 || api.posted[0].ChannelID != "C123" {
		t.Fatalf("posted = %+v", api.posted)
	}
}

func TestSendPropagatesError(t *testing.T) {
	g, api, _ := testGateway(t)
	api.postErr = errors.New("channel_not_found")

	if _, err := g.Send(context.Background(), "C404", render.Message{Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEditTargetsOriginalTimestamp(t *testing.T) {
	g, api, _ := testGateway(t)

	if err := g.Edit(context.Background(), "C123", "1724000000.000100", render.Message{Text: "x"}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if len(api.updated) != 1 || api.updated[0].Timestamp != "1724000000.000100" {
		t.Fatalf("updated = %+v", api.updated)
	}
}

func TestAnswerActionPostsEphemeral(t *testing.T) {
	g, _, poster := testGateway(t)

	err := g.AnswerAction(context.Background(), "https://hooks.slack.test/actions/T1/abc", "Issue HD-42 is yours.")
	if err != nil {
		t.Fatalf("AnswerAction: %v", err)
	}
	if len(poster.requests) != 1 {
		t.Fatalf("requests = %d", len(poster.requests))
	}
	if poster.requests[0].URL.String() != "https://hooks.slack.test/actions/T1/abc" {
		t.Errorf("url = %q", poster.requests[0].URL)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(poster.bodies[0]), &payload); err != nil {
		t.Fatalf("answer body not JSON: %v", err)
	}
	if payload["response_type"] != "ephemeral" {
		t.Errorf("response_type = %v", payload["response_type"])
	}
}

func TestAnswerActionRejectsBadStatus(t *testing.T) {
	g, _, poster := testGateway(t)
	poster.status = http.StatusNotFound

	if err := g.AnswerAction(context.Background(), "https://hooks.slack.test/x", "hi"); err == nil {
		t.Fatal("expected error for non-2xx response url status")
	}
}

func TestDecodeActionBlockAction(t *testing.T) {
	g, _, _ := testGateway(t)
	payload := `{
		"type": "block_actions",
		"user": {"id": "U7001"},
		"container": {"channel_id": "C123", "message_ts": "1724000000.000100"},
		"response_url": "https://hooks.slack.test/actions/T1/abc",
		"actions": [{"action_id": "accept", "value": "accept|HD-42"}]
	}`
	body := "payload=" + url.QueryEscape(payload)

	inbound, err := g.DecodeAction([]byte(body))
	if err != nil {
		t.Fatalf("DecodeAction: %v", err)
	}
	if inbound.Kind != chat.KindAction {
		t.Errorf("kind = %q", inbound.Kind)
	}
	if inbound.ChatUserID != "U7001" || inbound.Payload != "accept|HD-42" {
		t.Errorf("inbound = %+v", inbound)
	}
	if inbound.ActionID != "https://hooks.slack.test/actions/T1/abc" {
		t.Errorf("action id = %q", inbound.ActionID)
	}
	if inbound.ChatID != "C123" || inbound.MessageID != "1724000000.000100" {
		t.Errorf("coordinates = %q %q", inbound.ChatID, inbound.MessageID)
	}
}

func TestDecodeActionIgnoresOtherTypes(t *testing.T) {
	g, _, _ := testGateway(t)
	_, err := g.DecodeAction([]byte(`{"type": "view_submission"}`))
	if !errors.Is(err, chat.ErrIgnore) {
		t.Fatalf("err = %v, want ErrIgnore", err)
	}
}

func TestToMrkdwn(t *testing.T) {
	got := toMrkdwn("<b>HD-42</b> &amp; more")
	if got != "*HD-42* & more" {
		t.Errorf("toMrkdwn = %q", got)
	}
}
