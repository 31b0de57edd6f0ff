// Package httpapi exposes the webhook surface: tracker event ingestion
// and the chat platform's interaction callbacks.
package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qvnt33/agromat-it-desk-bot/internal/chat"
	"github.com/qvnt33/agromat-it-desk-bot/internal/claim"
	"github.com/qvnt33/agromat-it-desk-bot/internal/ingest"
	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker"
)

// Server wires the webhook handlers to the core services.
type Server struct {
	DB      *gorm.DB
	Ingest  *ingest.Handler
	Claims  *claim.Coordinator
	Chat    chat.Gateway
	Decoder chat.ActionDecoder
	Tracker tracker.Gateway

	// TrackerBaseURL builds issue links for payloads that omit one.
	TrackerBaseURL string
	// WebhookSecret guards the tracker endpoints; empty disables the check.
	WebhookSecret string
	// ActionSecret guards the action endpoint; empty disables the check.
	ActionSecret string
}

// StartOpts holds configuration for the webhook server.
type StartOpts struct {
	Server *Server
	Port   int
	Out    io.Writer
}

// Start launches the webhook HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Server == nil {
		return fmt.Errorf("httpapi: server is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := opts.Server.Routes()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Webhook server listening on :%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: %w", err)
	}
	return nil
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	router.POST("/issue-created", s.requireWebhookSecret, s.handleIssueCreated)
	router.POST("/issue-updated", s.requireWebhookSecret, s.handleIssueUpdated)
	router.POST("/action", s.requireActionSecret, s.handleAction)

	return router
}
