package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qvnt33/agromat-it-desk-bot/internal/alerts"
	"github.com/qvnt33/agromat-it-desk-bot/internal/chat"
	"github.com/qvnt33/agromat-it-desk-bot/internal/chat/discord"
	"github.com/qvnt33/agromat-it-desk-bot/internal/chat/slack"
	"github.com/qvnt33/agromat-it-desk-bot/internal/chat/telegram"
	"github.com/qvnt33/agromat-it-desk-bot/internal/claim"
	"github.com/qvnt33/agromat-it-desk-bot/internal/config"
	"github.com/qvnt33/agromat-it-desk-bot/internal/db"
	"github.com/qvnt33/agromat-it-desk-bot/internal/httpapi"
	"github.com/qvnt33/agromat-it-desk-bot/internal/ingest"
	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker"
	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker/github"
	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker/youtrack"
)

// telegramEditWindow is how long Telegram allows editing a sent message.
const telegramEditWindow = 48 * time.Hour

// platformGateway is what a chat subpackage provides: outbound calls plus
// decoding of its own webhook format.
type platformGateway interface {
	chat.Gateway
	chat.ActionDecoder
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Long:  "Connects to the database and both gateways, then serves tracker webhooks and chat callbacks until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deskbot.yaml", "path to deskbot config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database ready (%s)\n", cfg.Database.Driver)

	trackerGW, err := buildTracker(cfg)
	if err != nil {
		return err
	}
	chatGW, err := buildChat(cfg)
	if err != nil {
		return err
	}

	renderer := render.Renderer{DescriptionMaxLen: cfg.Render.DescriptionMaxLen}

	scheduler := alerts.New(gormDB, chatGW, cfg.Alerts)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	editWindow := time.Duration(0)
	if cfg.Chat.Platform == "telegram" {
		editWindow = telegramEditWindow
	}

	server := &httpapi.Server{
		DB: gormDB,
		Ingest: &ingest.Handler{
			DB:         gormDB,
			Chat:       chatGW,
			Renderer:   renderer,
			ChatID:     cfg.Chat.ChatID,
			EditWindow: editWindow,
			Alerts:     scheduler,
		},
		Claims: &claim.Coordinator{
			DB:               gormDB,
			Tracker:          trackerGW,
			Chat:             chatGW,
			Renderer:         renderer,
			InProgressStatus: cfg.Tracker.YouTrack.InProgressState,
			Alerts:           scheduler,
		},
		Chat:           chatGW,
		Decoder:        chatGW,
		Tracker:        trackerGW,
		TrackerBaseURL: cfg.Tracker.YouTrack.BaseURL,
		WebhookSecret:  cfg.Server.WebhookSecret,
		ActionSecret:   cfg.Server.ActionSecret,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return httpapi.Start(ctx, httpapi.StartOpts{
		Server: server,
		Port:   cfg.Server.Port,
		Out:    out,
	})
}

func buildTracker(cfg *config.Config) (tracker.Gateway, error) {
	switch cfg.Tracker.Kind {
	case "youtrack":
		return youtrack.New(youtrack.Opts{
			BaseURL:       cfg.Tracker.YouTrack.BaseURL,
			Token:         cfg.Tracker.YouTrack.Token,
			AssigneeField: cfg.Tracker.YouTrack.AssigneeField,
			StateField:    cfg.Tracker.YouTrack.StateField,
		})
	case "github":
		return github.New(github.Opts{
			Owner: cfg.Tracker.GitHub.Owner,
			Repo:  cfg.Tracker.GitHub.Repo,
			Token: cfg.Tracker.GitHub.Token,
		})
	default:
		return nil, fmt.Errorf("unknown tracker kind %q", cfg.Tracker.Kind)
	}
}

func buildChat(cfg *config.Config) (platformGateway, error) {
	switch cfg.Chat.Platform {
	case "telegram":
		return telegram.New(telegram.Opts{Token: cfg.Chat.Telegram.BotToken})
	case "slack":
		return slack.New(slack.Opts{BotToken: cfg.Chat.Slack.BotToken})
	case "discord":
		return discord.New(discord.Opts{BotToken: cfg.Chat.Discord.BotToken})
	default:
		return nil, fmt.Errorf("unknown chat platform %q", cfg.Chat.Platform)
	}
}
