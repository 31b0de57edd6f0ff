package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qvnt33/agromat-it-desk-bot/internal/chat"
	"github.com/qvnt33/agromat-it-desk-bot/internal/claim"
	"github.com/qvnt33/agromat-it-desk-bot/internal/directory"
	"github.com/qvnt33/agromat-it-desk-bot/internal/ingest"
	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
)

// maxBodySize caps webhook bodies; tracker payloads are small.
const maxBodySize = 1 << 20

func (s *Server) handleHealth(c *gin.Context) {
	sqlDB, err := s.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requireWebhookSecret guards the tracker endpoints. The secret travels
// in a header or, for trackers that cannot set headers, a query param.
func (s *Server) requireWebhookSecret(c *gin.Context) {
	if s.WebhookSecret == "" {
		return
	}
	got := c.GetHeader("X-Webhook-Secret")
	if got == "" {
		got = c.Query("secret")
	}
	if got != s.WebhookSecret {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "bad secret"})
	}
}

// requireActionSecret guards the action endpoint. Telegram delivers the
// secret in its own header; other platforms use X-Action-Secret.
func (s *Server) requireActionSecret(c *gin.Context) {
	if s.ActionSecret == "" {
		return
	}
	got := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
	if got == "" {
		got = c.GetHeader("X-Action-Secret")
	}
	if got != s.ActionSecret {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "bad secret"})
	}
}

// handleIssueCreated ingests a creation event. Malformed payloads are the
// caller's fault and get 400; processing failures are logged and answered
// 200 so the tracker does not redeliver what will fail again.
func (s *Server) handleIssueCreated(c *gin.Context) {
	ev, ok := s.bindEvent(c)
	if !ok {
		return
	}
	if err := s.Ingest.HandleCreated(c.Request.Context(), ev); err != nil {
		log.Printf("httpapi: issue-created %s: %v", ev.IssueID, err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// handleIssueUpdated ingests an update event. Updates for unknown issues
// are absorbed inside the handler.
func (s *Server) handleIssueUpdated(c *gin.Context) {
	ev, ok := s.bindEvent(c)
	if !ok {
		return
	}
	if err := s.Ingest.HandleUpdated(c.Request.Context(), ev); err != nil {
		log.Printf("httpapi: issue-updated %s: %v", ev.IssueID, err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) bindEvent(c *gin.Context) (*ingest.IssueEvent, bool) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return nil, false
	}
	ev, err := ingest.ParseEvent(payload, s.TrackerBaseURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return ev, true
}

// handleAction receives the chat platform's webhook: button presses and
// direct commands. The platform gateway decodes its own wire format.
func (s *Server) handleAction(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	inbound, err := s.Decoder.DecodeAction(body)
	if err != nil {
		if errors.Is(err, chat.ErrIgnore) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	switch inbound.Kind {
	case chat.KindAction:
		s.dispatchAction(c, inbound)
	case chat.KindCommand:
		s.dispatchCommand(c, inbound)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

// dispatchAction routes a button press. Only the accept action exists.
func (s *Server) dispatchAction(c *gin.Context, inbound *chat.Inbound) {
	name, issueID, ok := strings.Cut(inbound.Payload, "|")
	if !ok || name != render.AcceptAction || issueID == "" {
		log.Printf("httpapi: unknown action payload %q from %s", inbound.Payload, inbound.ChatUserID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	act := claim.Action{
		ActionID:   inbound.ActionID,
		ChatUserID: inbound.ChatUserID,
		ChatID:     inbound.ChatID,
		MessageID:  inbound.MessageID,
		IssueID:    issueID,
	}
	if err := s.Claims.Accept(c.Request.Context(), act); err != nil {
		log.Printf("httpapi: accept %s by %s: %v", issueID, inbound.ChatUserID, err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// dispatchCommand handles direct messages to the bot: registration and
// the help text everything else falls back to.
func (s *Server) dispatchCommand(c *gin.Context, inbound *chat.Inbound) {
	text := strings.TrimSpace(inbound.Payload)
	reply := ""

	switch {
	case strings.HasPrefix(text, "/register"):
		token := strings.TrimSpace(strings.TrimPrefix(text, "/register"))
		reply = s.register(c, inbound, token)
	case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/help"):
		reply = "Send /register <your tracker token> to link your account."
	default:
		// Bare tokens are common; users paste them without the command.
		if looksLikeToken(text) {
			reply = s.register(c, inbound, text)
		} else {
			reply = "Unknown command. Send /register <your tracker token> to link your account."
		}
	}

	if reply != "" {
		if _, err := s.Chat.Send(c.Request.Context(), inbound.ChatID, render.Message{Text: reply}); err != nil {
			log.Printf("httpapi: reply to %s: %v", inbound.ChatUserID, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) register(c *gin.Context, inbound *chat.Inbound, arg string) string {
	if arg == "" {
		return "Usage: /register <your tracker token or login>"
	}
	if !looksLikeToken(arg) {
		return s.registerByLogin(c, inbound, arg)
	}
	outcome, err := directory.Register(c.Request.Context(), s.DB, s.Tracker, inbound.ChatUserID, arg)
	if err != nil {
		log.Printf("httpapi: register %s: %v", inbound.ChatUserID, err)
		return "The token was not accepted by the tracker. Check it and try again."
	}
	switch outcome {
	case directory.OutcomeAlreadyConnected:
		return "This account is already linked."
	case directory.OutcomeForeignOwner:
		return "This token belongs to an account linked by someone else."
	default:
		link, err := directory.Resolve(s.DB, inbound.ChatUserID)
		if err != nil {
			return "Registered."
		}
		return fmt.Sprintf("Registered as %s.", link.TrackerLogin)
	}
}

// registerByLogin links by tracker login instead of a token. Weaker than
// token registration but mirrors what operators ask for in practice.
func (s *Server) registerByLogin(c *gin.Context, inbound *chat.Inbound, login string) string {
	link, err := directory.LinkLogin(c.Request.Context(), s.DB, s.Tracker, inbound.ChatUserID, login)
	if err != nil {
		if errors.Is(err, directory.ErrLoginTaken) {
			return "That tracker account is already linked to someone else."
		}
		log.Printf("httpapi: link login %q for %s: %v", login, inbound.ChatUserID, err)
		return "That tracker login was not found."
	}
	return fmt.Sprintf("Registered as %s.", link.TrackerLogin)
}

// looksLikeToken recognizes tracker token shapes (YouTrack permanent
// tokens, GitHub PATs) pasted without the command.
func looksLikeToken(text string) bool {
	if strings.ContainsAny(text, " \n") {
		return false
	}
	return strings.HasPrefix(text, "perm:") || strings.HasPrefix(text, "perm-") ||
		strings.HasPrefix(text, "ghp_") || strings.HasPrefix(text, "github_pat_")
}
