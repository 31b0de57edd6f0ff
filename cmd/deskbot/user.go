package main

import (
	"context"
	"fmt"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gorm.io/gorm"

	"github.com/qvnt33/agromat-it-desk-bot/internal/config"
	"github.com/qvnt33/agromat-it-desk-bot/internal/db"
	"github.com/qvnt33/agromat-it-desk-bot/internal/directory"
	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage chat user to tracker account links",
	}

	cmd.AddCommand(newUserLinkCmd())
	cmd.AddCommand(newUserRegisterCmd())
	cmd.AddCommand(newUserRevokeCmd())
	cmd.AddCommand(newUserListCmd())
	return cmd
}

// userDeps opens everything the user commands need.
func userDeps(configPath string) (*gorm.DB, tracker.Gateway, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, nil, err
	}
	gw, err := buildTracker(cfg)
	if err != nil {
		return nil, nil, err
	}
	return gormDB, gw, nil
}

func newUserLinkCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "link <chat-user-id> <tracker-login>",
		Short: "Link a chat user to a tracker account by login",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, gw, err := userDeps(configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			link, err := directory.LinkLogin(ctx, gormDB, gw, args[0], args[1])
			if err != nil {
				return fmt.Errorf("link %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked chat user %s to %s (%s)\n",
				link.ChatUserID, link.TrackerLogin, link.TrackerUserID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deskbot.yaml", "path to deskbot config file")
	return cmd
}

func newUserRegisterCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "register <chat-user-id>",
		Short: "Register a chat user with a tracker token",
		Long:  "Prompts for the user's personal tracker token without echoing it, validates it against the tracker, and stores the link.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, gw, err := userDeps(configPath)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), "Tracker token: ")
			raw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			outcome, err := directory.Register(ctx, gormDB, gw, args[0], string(raw))
			if err != nil {
				return fmt.Errorf("register %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registration result: %s\n", outcome)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deskbot.yaml", "path to deskbot config file")
	return cmd
}

func newUserRevokeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "revoke <chat-user-id>",
		Short: "Deactivate a chat user's link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, _, err := userDeps(configPath)
			if err != nil {
				return err
			}
			if err := directory.Deactivate(gormDB, args[0]); err != nil {
				return fmt.Errorf("revoke %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked link for chat user %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deskbot.yaml", "path to deskbot config file")
	return cmd
}

func newUserListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all user links",
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, _, err := userDeps(configPath)
			if err != nil {
				return err
			}
			links, err := directory.List(gormDB)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHAT USER\tTRACKER LOGIN\tACTIVE\tLAST SEEN")
			for _, link := range links {
				lastSeen := "-"
				if link.LastSeenAt != nil {
					lastSeen = link.LastSeenAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", link.ChatUserID, link.TrackerLogin, link.IsActive, lastSeen)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deskbot.yaml", "path to deskbot config file")
	return cmd
}
