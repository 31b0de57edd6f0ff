package youtrack

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker"
)

// mockDoer routes requests to canned responses by path prefix.
type mockDoer struct {
	responses map[string]mockResponse // path prefix -> response
	requests  []*http.Request
	bodies    []string
}

type mockResponse struct {
	status int
	body   string
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		body = string(raw)
	}
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)

	for prefix, resp := range m.responses {
		if strings.HasPrefix(req.URL.Path, prefix) {
			status := resp.status
			if status == 0 {
				status = http.StatusOK
			}
			return &http.Response{
				StatusCode: status,
				Body:       io.NopCloser(strings.NewReader(resp.body)),
			}, nil
		}
	}
	return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(`{}`))}, nil
}

const issueJSON = `{
	"id": "2-117",
	"customFields": [
		{"id": "cf-1", "projectCustomField": {"field": {"name": "Assignee"}}},
		{"id": "cf-2", "projectCustomField": {
			"field": {"name": "State"},
			"bundle": {"values": [
				{"id": "st-1", "name": "New"},
				{"id": "st-2", "name": "In Progress"}
			]}
		}}
	]
}`

func testGateway(t *testing.T, doer *mockDoer) *Gateway {
	t.Helper()
	g, err := New(Opts{BaseURL: "https://yt.example", Token: "perm:xyz", Client: doer})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestAssignPostsUserFieldValue(t *testing.T) {
	doer := &mockDoer{responses: map[string]mockResponse{
		"/api/users":                     {body: `[{"id": "u-9", "login": "ada", "email": "ada@example.com"}]`},
		"/api/issues/2-117/customFields": {body: `{"id": "cf-1"}`},
		"/api/issues/HD-42":              {body: issueJSON},
	}}
	g := testGateway(t, doer)

	if err := g.Assign(context.Background(), "HD-42", "ada"); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	last := doer.requests[len(doer.requests)-1]
	if last.Method != http.MethodPost || !strings.Contains(last.URL.Path, "/api/issues/2-117/customFields/cf-1") {
		t.Fatalf("final call = %s %s", last.Method, last.URL.Path)
	}
	if !strings.Contains(doer.bodies[len(doer.bodies)-1], `"u-9"`) {
		t.Errorf("payload missing user id: %s", doer.bodies[len(doer.bodies)-1])
	}
}

func TestAssignUnknownLogin(t *testing.T) {
	doer := &mockDoer{responses: map[string]mockResponse{
		"/api/users": {body: `[{"id": "u-9", "login": "grace"}]`},
	}}
	g := testGateway(t, doer)

	err := g.Assign(context.Background(), "HD-42", "ada")
	if !errors.Is(err, tracker.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestSetStatusResolvesBundleValue(t *testing.T) {
	doer := &mockDoer{responses: map[string]mockResponse{
		"/api/issues/2-117/customFields": {body: `{"id": "cf-2"}`},
		"/api/issues/HD-42":              {body: issueJSON},
	}}
	g := testGateway(t, doer)

	if err := g.SetStatus(context.Background(), "HD-42", "In Progress"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	last := doer.bodies[len(doer.bodies)-1]
	if !strings.Contains(last, `"st-2"`) {
		t.Errorf("payload missing bundle value id: %s", last)
	}
}

func TestSetStatusUnknownStateIsPermanent(t *testing.T) {
	doer := &mockDoer{responses: map[string]mockResponse{
		"/api/issues/HD-42": {body: issueJSON},
	}}
	g := testGateway(t, doer)

	err := g.SetStatus(context.Background(), "HD-42", "Nonexistent")
	if !errors.Is(err, tracker.ErrPermanent) {
		t.Fatalf("err = %v, want ErrPermanent", err)
	}
}

func TestValidateTokenReturnsProfile(t *testing.T) {
	doer := &mockDoer{responses: map[string]mockResponse{
		"/api/users/me": {body: `{"id": "u-9", "login": "ada", "email": "ada@example.com"}`},
	}}
	g := testGateway(t, doer)

	user, err := g.ValidateToken(context.Background(), "perm:abc")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if user.ID != "u-9" || user.Login != "ada" {
		t.Errorf("user = %+v", user)
	}
	if auth := doer.requests[0].Header.Get("Authorization"); auth != "Bearer perm:abc" {
		t.Errorf("validated with wrong token: %q", auth)
	}
}

func TestValidateTokenRejected(t *testing.T) {
	doer := &mockDoer{responses: map[string]mockResponse{
		"/api/users/me": {status: http.StatusUnauthorized, body: `{}`},
	}}
	g := testGateway(t, doer)

	_, err := g.ValidateToken(context.Background(), "bad")
	if !errors.Is(err, tracker.ErrPermanent) {
		t.Fatalf("err = %v, want ErrPermanent", err)
	}
}

func TestDoJSONPermanentOn4xx(t *testing.T) {
	doer := &mockDoer{responses: map[string]mockResponse{
		"/api/issues/HD-42": {status: http.StatusForbidden, body: `{"error": "no access"}`},
	}}
	g := testGateway(t, doer)

	err := g.SetStatus(context.Background(), "HD-42", "In Progress")
	if !errors.Is(err, tracker.ErrPermanent) {
		t.Fatalf("err = %v, want ErrPermanent", err)
	}
	if len(doer.requests) != 1 {
		t.Errorf("request count = %d, 4xx must not retry", len(doer.requests))
	}
}
