package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  port: 9090
  webhook_secret: hook-secret
  action_secret: action-secret
database:
  driver: sqlite
  path: /tmp/deskbot.db
tracker:
  kind: youtrack
  youtrack:
    base_url: https://yt.example/
    token: perm:xyz
chat:
  platform: telegram
  chat_id: "-100200"
  telegram:
    bot_token: "123:abc"
alerts:
  enabled: true
  state_name: New
  steps:
    - minutes: 10
      message: still new
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Tracker.YouTrack.BaseURL != "https://yt.example" {
		t.Errorf("base url = %q, trailing slash not trimmed", cfg.Tracker.YouTrack.BaseURL)
	}
	if cfg.Chat.ChatID != "-100200" {
		t.Errorf("chat id = %q", cfg.Chat.ChatID)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
tracker:
  youtrack:
    base_url: https://yt.example
chat:
  chat_id: "-1"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "deskbot.db" {
		t.Errorf("default database = %+v", cfg.Database)
	}
	if cfg.Tracker.YouTrack.AssigneeField != "Assignee" || cfg.Tracker.YouTrack.StateField != "State" {
		t.Errorf("default fields = %+v", cfg.Tracker.YouTrack)
	}
	if cfg.Tracker.YouTrack.InProgressState != "In Progress" {
		t.Errorf("default in-progress state = %q", cfg.Tracker.YouTrack.InProgressState)
	}
	if cfg.Render.DescriptionMaxLen != 500 {
		t.Errorf("default description cap = %d", cfg.Render.DescriptionMaxLen)
	}
	if cfg.Alerts.PollSeconds != 30 {
		t.Errorf("default poll seconds = %d", cfg.Alerts.PollSeconds)
	}
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	_, err := Parse([]byte(`
database:
  driver: postgres
tracker:
  youtrack:
    base_url: https://yt.example
chat:
  chat_id: "-1"
`))
	if err == nil || !strings.Contains(err.Error(), "database.driver") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseRequiresChatID(t *testing.T) {
	_, err := Parse([]byte(`
tracker:
  youtrack:
    base_url: https://yt.example
`))
	if err == nil || !strings.Contains(err.Error(), "chat.chat_id") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseRequiresGitHubRepo(t *testing.T) {
	_, err := Parse([]byte(`
tracker:
  kind: github
chat:
  chat_id: "-1"
`))
	if err == nil || !strings.Contains(err.Error(), "tracker.github") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseRejectsBadAlertStep(t *testing.T) {
	_, err := Parse([]byte(`
tracker:
  youtrack:
    base_url: https://yt.example
chat:
  chat_id: "-1"
alerts:
  steps:
    - minutes: 0
      message: ""
`))
	if err == nil || !strings.Contains(err.Error(), "alerts.steps[0]") {
		t.Fatalf("err = %v", err)
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("DESKBOT_TRACKER_TOKEN", "perm:from-env")
	t.Setenv("DESKBOT_ACTION_SECRET", "env-action")

	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Tracker.YouTrack.Token != "perm:from-env" {
		t.Errorf("tracker token = %q", cfg.Tracker.YouTrack.Token)
	}
	if cfg.Server.ActionSecret != "env-action" {
		t.Errorf("action secret = %q", cfg.Server.ActionSecret)
	}
}
