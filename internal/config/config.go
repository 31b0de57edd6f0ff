// Package config provides YAML-based configuration loading for the desk bot.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration, loaded from config.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Chat     ChatConfig     `yaml:"chat"`
	Render   RenderConfig   `yaml:"render"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// ServerConfig holds the inbound HTTP listener settings.
type ServerConfig struct {
	Port          int    `yaml:"port"`
	ActionSecret  string `yaml:"action_secret"`  // shared secret for /action callbacks
	WebhookSecret string `yaml:"webhook_secret"` // bearer secret for tracker webhooks
}

// DatabaseConfig selects and configures the backing store.
// Driver is "sqlite" (Path) or "mysql" (Host/Port/User/Password/Database).
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// TrackerConfig configures the issue tracker gateway. Kind is "youtrack"
// or "github".
type TrackerConfig struct {
	Kind     string         `yaml:"kind"`
	YouTrack YouTrackConfig `yaml:"youtrack"`
	GitHub   GitHubConfig   `yaml:"github"`
}

// YouTrackConfig holds YouTrack REST API access settings.
type YouTrackConfig struct {
	BaseURL         string `yaml:"base_url"`
	Token           string `yaml:"token"`
	Project         string `yaml:"project"`
	AssigneeField   string `yaml:"assignee_field"`
	StateField      string `yaml:"state_field"`
	InProgressState string `yaml:"in_progress_state"`
}

// GitHubConfig holds GitHub Issues access settings.
type GitHubConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	Token string `yaml:"token"`
}

// ChatConfig configures the chat platform gateway. Platform is "telegram",
// "slack" or "discord".
type ChatConfig struct {
	Platform string         `yaml:"platform"`
	ChatID   string         `yaml:"chat_id"` // default channel for issue messages
	Telegram TelegramConfig `yaml:"telegram"`
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
}

// SlackConfig holds Slack Web API settings.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// RenderConfig tunes message rendering.
type RenderConfig struct {
	DescriptionMaxLen int `yaml:"description_max_len"`
}

// AlertsConfig configures stale-status reminders.
type AlertsConfig struct {
	Enabled     bool        `yaml:"enabled"`
	StateName   string      `yaml:"state_name"`
	PollSeconds int         `yaml:"poll_seconds"`
	Steps       []AlertStep `yaml:"steps"`
}

// AlertStep is one escalating reminder: fire Minutes after the issue
// entered the watched state, with the given message.
type AlertStep struct {
	Minutes int    `yaml:"minutes"`
	Message string `yaml:"message"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "deskbot.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Tracker.Kind == "" {
		c.Tracker.Kind = "youtrack"
	}
	c.Tracker.YouTrack.BaseURL = strings.TrimRight(c.Tracker.YouTrack.BaseURL, "/")
	if c.Tracker.YouTrack.AssigneeField == "" {
		c.Tracker.YouTrack.AssigneeField = "Assignee"
	}
	if c.Tracker.YouTrack.StateField == "" {
		c.Tracker.YouTrack.StateField = "State"
	}
	if c.Tracker.YouTrack.InProgressState == "" {
		c.Tracker.YouTrack.InProgressState = "In Progress"
	}
	if c.Chat.Platform == "" {
		c.Chat.Platform = "telegram"
	}
	if c.Render.DescriptionMaxLen == 0 {
		c.Render.DescriptionMaxLen = 500
	}
	if c.Alerts.StateName == "" {
		c.Alerts.StateName = "New"
	}
	if c.Alerts.PollSeconds < 30 {
		c.Alerts.PollSeconds = 30
	}
}

// applyEnv lets secrets come from the environment instead of the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DESKBOT_TRACKER_TOKEN"); v != "" {
		c.Tracker.YouTrack.Token = v
		c.Tracker.GitHub.Token = v
	}
	if v := os.Getenv("DESKBOT_CHAT_TOKEN"); v != "" {
		c.Chat.Telegram.BotToken = v
		c.Chat.Slack.BotToken = v
		c.Chat.Discord.BotToken = v
	}
	if v := os.Getenv("DESKBOT_ACTION_SECRET"); v != "" {
		c.Server.ActionSecret = v
	}
	if v := os.Getenv("DESKBOT_WEBHOOK_SECRET"); v != "" {
		c.Server.WebhookSecret = v
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.Driver == "mysql" && c.Database.Database == "" {
		errs = append(errs, "database.database is required for mysql")
	}
	switch c.Tracker.Kind {
	case "youtrack":
		if c.Tracker.YouTrack.BaseURL == "" {
			errs = append(errs, "tracker.youtrack.base_url is required")
		}
	case "github":
		if c.Tracker.GitHub.Owner == "" || c.Tracker.GitHub.Repo == "" {
			errs = append(errs, "tracker.github.owner and tracker.github.repo are required")
		}
	default:
		errs = append(errs, fmt.Sprintf("tracker.kind %q is not supported", c.Tracker.Kind))
	}
	switch c.Chat.Platform {
	case "telegram", "slack", "discord":
	default:
		errs = append(errs, fmt.Sprintf("chat.platform %q is not supported", c.Chat.Platform))
	}
	if c.Chat.ChatID == "" {
		errs = append(errs, "chat.chat_id is required")
	}
	for i, s := range c.Alerts.Steps {
		if s.Minutes <= 0 {
			errs = append(errs, fmt.Sprintf("alerts.steps[%d].minutes must be positive", i))
		}
		if s.Message == "" {
			errs = append(errs, fmt.Sprintf("alerts.steps[%d].message is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
