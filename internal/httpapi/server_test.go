package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qvnt33/agromat-it-desk-bot/internal/chat"
	"github.com/qvnt33/agromat-it-desk-bot/internal/chat/telegram"
	"github.com/qvnt33/agromat-it-desk-bot/internal/claim"
	"github.com/qvnt33/agromat-it-desk-bot/internal/ingest"
	"github.com/qvnt33/agromat-it-desk-bot/internal/models"
	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
	"github.com/qvnt33/agromat-it-desk-bot/internal/store"
	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.IssueMessage{}, &models.UserLink{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testServer(t *testing.T) (*Server, *chat.MockGateway, *tracker.MockGateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testDB(t)
	gw := chat.NewMockGateway()
	trk := tracker.NewMockGateway()
	renderer := render.Renderer{DescriptionMaxLen: 500}
	decoder, err := telegram.New(telegram.Opts{Token: "test"})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	s := &Server{
		DB: db,
		Ingest: &ingest.Handler{
			DB: db, Chat: gw, Renderer: renderer, ChatID: "-100200",
		},
		Claims: &claim.Coordinator{
			DB: db, Tracker: trk, Chat: gw, Renderer: renderer, InProgressStatus: "In Progress",
		},
		Chat:    gw,
		Decoder: decoder,
		Tracker: trk,
	}
	return s, gw, trk
}

func post(t *testing.T, s *Server, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func TestIssueCreatedSendsMessage(t *testing.T) {
	s, gw, _ := testServer(t)

	rec := post(t, s, "/issue-created", `{"idReadable": "HD-42", "summary": "Printer broken"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(gw.Sent) != 1 {
		t.Fatalf("sent = %d", len(gw.Sent))
	}

	row, err := store.Get(s.DB, "HD-42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.MessageID == "" {
		t.Error("message not attached")
	}
}

func TestIssueCreatedMalformedJSON(t *testing.T) {
	s, gw, _ := testServer(t)

	rec := post(t, s, "/issue-created", `{"idReadable": `, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(gw.Sent) != 0 {
		t.Error("malformed payload must not reach the chat")
	}
}

func TestIssueCreatedMissingID(t *testing.T) {
	s, _, _ := testServer(t)

	rec := post(t, s, "/issue-created", `{"summary": "no id"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIssueCreatedChatFailureStillAccepted(t *testing.T) {
	s, gw, _ := testServer(t)
	gw.SendErr = http.ErrHandlerTimeout

	rec := post(t, s, "/issue-created", `{"idReadable": "HD-42", "summary": "x"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, processing failures must not bounce the webhook", rec.Code)
	}
}

func TestIssueUpdatedUnknownIssueAccepted(t *testing.T) {
	s, gw, _ := testServer(t)

	rec := post(t, s, "/issue-updated", `{"idReadable": "HD-404", "summary": "ghost"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(gw.Sent) != 0 && len(gw.Edited) != 0 {
		t.Error("unknown issue must not touch the chat")
	}
}

func TestWebhookSecretEnforced(t *testing.T) {
	s, _, _ := testServer(t)
	s.WebhookSecret = "hunter2"

	rec := post(t, s, "/issue-created", `{"idReadable": "HD-42"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status without secret = %d", rec.Code)
	}

	rec = post(t, s, "/issue-created", `{"idReadable": "HD-42"}`,
		map[string]string{"X-Webhook-Secret": "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status with secret = %d", rec.Code)
	}
}

func TestActionSecretEnforced(t *testing.T) {
	s, _, _ := testServer(t)
	s.ActionSecret = "hunter2"

	rec := post(t, s, "/action", `{}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status without secret = %d", rec.Code)
	}

	rec = post(t, s, "/action", `{}`,
		map[string]string{"X-Telegram-Bot-Api-Secret-Token": "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status with secret = %d", rec.Code)
	}
}

func TestActionAcceptFlow(t *testing.T) {
	s, gw, trk := testServer(t)

	if _, err := store.UpsertFromEvent(s.DB, "HD-42", store.EventFields{Summary: "x"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.AttachMessage(s.DB, "HD-42", "-100200", "117"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	s.DB.Create(&models.UserLink{ChatUserID: "7001", TrackerUserID: "u-9", TrackerLogin: "ada", IsActive: true})

	body := `{
		"callback_query": {
			"id": "cb-1",
			"from": {"id": 7001},
			"message": {"message_id": 117, "chat": {"id": -100200}},
			"data": "accept|HD-42"
		}
	}`
	rec := post(t, s, "/action", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if trk.AssignCount() != 1 {
		t.Fatalf("assign count = %d", trk.AssignCount())
	}
	row, _ := store.Get(s.DB, "HD-42")
	if row.ClaimState != models.ClaimClaimed || row.AssigneeRef != "ada" {
		t.Fatalf("row = %+v", row)
	}
	if len(gw.Answered) != 1 {
		t.Fatalf("answers = %+v", gw.Answered)
	}
}

func TestActionRegisterCommand(t *testing.T) {
	s, gw, trk := testServer(t)
	trk.TokenUsers["perm:abc"] = &tracker.User{ID: "u-9", Login: "ada"}

	body := `{
		"message": {
			"from": {"id": 7001},
			"chat": {"id": 7001, "type": "private"},
			"text": "/register perm:abc"
		}
	}`
	rec := post(t, s, "/action", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if len(gw.Sent) != 1 || !strings.Contains(gw.Sent[0].Msg.Text, "ada") {
		t.Fatalf("reply = %+v", gw.Sent)
	}

	link := models.UserLink{}
	if err := s.DB.Where("chat_user_id = ?", "7001").First(&link).Error; err != nil {
		t.Fatalf("link not created: %v", err)
	}
	if link.TrackerLogin != "ada" || !link.IsActive {
		t.Errorf("link = %+v", link)
	}
}

func TestActionRegisterByLogin(t *testing.T) {
	s, gw, trk := testServer(t)
	trk.Users["ada"] = &tracker.User{ID: "u-9", Login: "ada"}

	body := `{
		"message": {
			"from": {"id": 7001},
			"chat": {"id": 7001, "type": "private"},
			"text": "/register ada"
		}
	}`
	rec := post(t, s, "/action", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(gw.Sent) != 1 || !strings.Contains(gw.Sent[0].Msg.Text, "ada") {
		t.Fatalf("reply = %+v", gw.Sent)
	}

	link := models.UserLink{}
	if err := s.DB.Where("chat_user_id = ?", "7001").First(&link).Error; err != nil {
		t.Fatalf("link not created: %v", err)
	}
	if link.TrackerUserID != "u-9" {
		t.Errorf("link = %+v", link)
	}
}

func TestActionIgnoresGroupChatter(t *testing.T) {
	s, gw, _ := testServer(t)

	body := `{
		"message": {
			"from": {"id": 7001},
			"chat": {"id": -100200, "type": "supergroup"},
			"text": "hello"
		}
	}`
	rec := post(t, s, "/action", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(gw.Sent) != 0 {
		t.Error("group chatter must not get replies")
	}
}

func TestHealthz(t *testing.T) {
	s, _, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
