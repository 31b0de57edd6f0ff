package directory

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qvnt33/agromat-it-desk-bot/internal/models"
	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.UserLink{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testGateway() *tracker.MockGateway {
	gw := tracker.NewMockGateway()
	gw.TokenUsers["tok-jdoe"] = &tracker.User{ID: "u-1", Login: "jdoe", Email: "jdoe@example.com"}
	gw.Users["jdoe"] = &tracker.User{ID: "u-1", Login: "jdoe", Email: "jdoe@example.com"}
	gw.Users["asmith"] = &tracker.User{ID: "u-2", Login: "asmith"}
	return gw
}

func TestRegister_Success(t *testing.T) {
	db := testDB(t)
	gw := testGateway()

	outcome, err := Register(context.Background(), db, gw, "tg-100", "tok-jdoe")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if outcome != OutcomeSuccess {
		t.Errorf("outcome = %q, want success", outcome)
	}

	link, err := Resolve(db, "tg-100")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if link.TrackerLogin != "jdoe" {
		t.Errorf("TrackerLogin = %q, want jdoe", link.TrackerLogin)
	}
	if link.TokenHash == "" || link.TokenHash == "tok-jdoe" {
		t.Errorf("TokenHash = %q, want a hash of the token", link.TokenHash)
	}
}

func TestRegister_SameTokenAlreadyConnected(t *testing.T) {
	db := testDB(t)
	gw := testGateway()

	Register(context.Background(), db, gw, "tg-100", "tok-jdoe")
	outcome, err := Register(context.Background(), db, gw, "tg-100", "tok-jdoe")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if outcome != OutcomeAlreadyConnected {
		t.Errorf("outcome = %q, want already_connected", outcome)
	}
}

func TestRegister_ForeignOwner(t *testing.T) {
	db := testDB(t)
	gw := testGateway()

	Register(context.Background(), db, gw, "tg-100", "tok-jdoe")
	outcome, err := Register(context.Background(), db, gw, "tg-200", "tok-jdoe")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if outcome != OutcomeForeignOwner {
		t.Errorf("outcome = %q, want foreign_owner", outcome)
	}
	// The original owner is untouched.
	if _, err := Resolve(db, "tg-100"); err != nil {
		t.Errorf("original owner lost: %v", err)
	}
}

func TestRegister_InvalidToken(t *testing.T) {
	db := testDB(t)
	gw := testGateway()

	_, err := Register(context.Background(), db, gw, "tg-100", "bogus")
	if err == nil {
		t.Fatal("expected error for invalid token")
	}
}

func TestLinkLogin_TakenByOther(t *testing.T) {
	db := testDB(t)
	gw := testGateway()

	if _, err := LinkLogin(context.Background(), db, gw, "tg-100", "jdoe"); err != nil {
		t.Fatalf("first link: %v", err)
	}
	_, err := LinkLogin(context.Background(), db, gw, "tg-200", "jdoe")
	if !errors.Is(err, ErrLoginTaken) {
		t.Errorf("err = %v, want ErrLoginTaken", err)
	}
}

func TestLinkLogin_RelinkSameUser(t *testing.T) {
	db := testDB(t)
	gw := testGateway()

	LinkLogin(context.Background(), db, gw, "tg-100", "jdoe")
	link, err := LinkLogin(context.Background(), db, gw, "tg-100", "asmith")
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if link.TrackerLogin != "asmith" {
		t.Errorf("TrackerLogin = %q, want asmith", link.TrackerLogin)
	}
}

func TestResolve_NotLinked(t *testing.T) {
	db := testDB(t)
	_, err := Resolve(db, "tg-404")
	if !errors.Is(err, ErrNotLinked) {
		t.Errorf("err = %v, want ErrNotLinked", err)
	}
}

func TestDeactivate(t *testing.T) {
	db := testDB(t)
	gw := testGateway()
	Register(context.Background(), db, gw, "tg-100", "tok-jdoe")

	if err := Deactivate(db, "tg-100"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err := Resolve(db, "tg-100")
	if !errors.Is(err, ErrInactive) {
		t.Errorf("err = %v, want ErrInactive", err)
	}

	var link models.UserLink
	db.Where("chat_user_id = ?", "tg-100").First(&link)
	if link.TokenHash != "" {
		t.Errorf("TokenHash = %q, want cleared", link.TokenHash)
	}
}
