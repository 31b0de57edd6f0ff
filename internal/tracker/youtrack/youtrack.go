// Package youtrack implements the tracker Gateway over the YouTrack REST
// API. Assignee and state live in custom fields, so writes go through the
// issue's per-project field descriptors rather than a flat PATCH.
package youtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker"
)

const (
	// maxAttempts bounds retries on transport and 5xx failures.
	maxAttempts = 3
	callTimeout = 10 * time.Second
)

// httpDoer abstracts the HTTP client for test injection.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gateway talks to one YouTrack instance.
type Gateway struct {
	baseURL string
	token   string
	client  httpDoer

	// assigneeField and stateField are the custom field names this
	// project uses; instances localize them.
	assigneeField string
	stateField    string
}

// Opts holds parameters for creating a YouTrack Gateway.
type Opts struct {
	BaseURL string
	Token   string
	// AssigneeField and StateField name the custom fields; defaults are
	// "Assignee" and "State".
	AssigneeField string
	StateField    string
	// Client injects an HTTP client; nil uses a default with timeouts.
	Client httpDoer
}

// New creates a YouTrack Gateway.
func New(opts Opts) (*Gateway, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("youtrack: base url is required")
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("youtrack: token is required")
	}
	g := &Gateway{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		token:         opts.Token,
		client:        opts.Client,
		assigneeField: opts.AssigneeField,
		stateField:    opts.StateField,
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: callTimeout}
	}
	if g.assigneeField == "" {
		g.assigneeField = "Assignee"
	}
	if g.stateField == "" {
		g.stateField = "State"
	}
	return g, nil
}

// Assign sets the issue's assignee custom field to the user behind the
// given login.
func (g *Gateway) Assign(ctx context.Context, issueID, identity string) error {
	user, err := g.LookupUser(ctx, identity)
	if err != nil {
		return fmt.Errorf("youtrack: assign %s: %w", issueID, err)
	}
	internalID, field, err := g.resolveField(ctx, issueID, g.assigneeField)
	if err != nil {
		return fmt.Errorf("youtrack: assign %s: %w", issueID, err)
	}

	payload := map[string]interface{}{
		"value": map[string]interface{}{"id": user.ID},
	}
	if err := g.setField(ctx, internalID, field.ID, payload); err != nil {
		return fmt.Errorf("youtrack: assign %s to %s: %w", issueID, identity, err)
	}
	return nil
}

// SetStatus moves the issue's state custom field to the named state. The
// state must exist in the field's bundle; anything else is permanent.
func (g *Gateway) SetStatus(ctx context.Context, issueID, status string) error {
	internalID, field, err := g.resolveField(ctx, issueID, g.stateField)
	if err != nil {
		return fmt.Errorf("youtrack: set status on %s: %w", issueID, err)
	}

	valueID := ""
	for _, v := range field.ProjectCustomField.Bundle.Values {
		if strings.EqualFold(v.Name, status) {
			valueID = v.ID
			break
		}
	}
	if valueID == "" {
		return fmt.Errorf("youtrack: set status on %s: state %q not in bundle: %w", issueID, status, tracker.ErrPermanent)
	}

	payload := map[string]interface{}{
		"value": map[string]interface{}{"id": valueID},
	}
	if err := g.setField(ctx, internalID, field.ID, payload); err != nil {
		return fmt.Errorf("youtrack: set status %q on %s: %w", status, issueID, err)
	}
	return nil
}

// LookupUser resolves a YouTrack account by exact login match.
func (g *Gateway) LookupUser(ctx context.Context, login string) (*tracker.User, error) {
	query := url.Values{}
	query.Set("query", login)
	query.Set("fields", "id,login,email")

	var users []struct {
		ID    string `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := g.doJSON(ctx, http.MethodGet, "/api/users?"+query.Encode(), nil, &users); err != nil {
		return nil, fmt.Errorf("youtrack: lookup user %s: %w", login, err)
	}
	for _, u := range users {
		if u.Login == login {
			return &tracker.User{ID: u.ID, Login: u.Login, Email: u.Email}, nil
		}
	}
	return nil, fmt.Errorf("youtrack: lookup user %s: %w", login, tracker.ErrUserNotFound)
}

// ValidateToken verifies a personal token by fetching its own profile.
func (g *Gateway) ValidateToken(ctx context.Context, token string) (*tracker.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/api/users/me?fields=id,login,email", nil)
	if err != nil {
		return nil, fmt.Errorf("youtrack: validate token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtrack: validate token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("youtrack: validate token: rejected: %w", tracker.ErrPermanent)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtrack: validate token: status %d", resp.StatusCode)
	}

	var user struct {
		ID    string `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("youtrack: validate token: decode: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("youtrack: validate token: empty profile: %w", tracker.ErrPermanent)
	}
	return &tracker.User{ID: user.ID, Login: user.Login, Email: user.Email}, nil
}

// issueFields is the slice of the issue descriptor the gateway reads.
type issueFields struct {
	ID           string        `json:"id"`
	CustomFields []customField `json:"customFields"`
}

type customField struct {
	ID                 string `json:"id"`
	ProjectCustomField struct {
		Field struct {
			Name string `json:"name"`
		} `json:"field"`
		Bundle struct {
			Values []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"values"`
		} `json:"bundle"`
	} `json:"projectCustomField"`
}

// resolveField fetches the issue and picks the named custom field. The
// readable issue id works directly as a path segment.
func (g *Gateway) resolveField(ctx context.Context, issueID, fieldName string) (string, *customField, error) {
	path := "/api/issues/" + url.PathEscape(issueID) +
		"?fields=id,customFields(id,projectCustomField(field(name),bundle(values(id,name))))"

	var issue issueFields
	if err := g.doJSON(ctx, http.MethodGet, path, nil, &issue); err != nil {
		return "", nil, err
	}
	for i := range issue.CustomFields {
		if strings.EqualFold(issue.CustomFields[i].ProjectCustomField.Field.Name, fieldName) {
			return issue.ID, &issue.CustomFields[i], nil
		}
	}
	return "", nil, fmt.Errorf("field %q not on issue: %w", fieldName, tracker.ErrPermanent)
}

// setField posts a new custom field value.
func (g *Gateway) setField(ctx context.Context, internalID, fieldID string, payload map[string]interface{}) error {
	path := "/api/issues/" + url.PathEscape(internalID) + "/customFields/" + url.PathEscape(fieldID) + "?fields=id"
	return g.doJSON(ctx, http.MethodPost, path, payload, nil)
}

// doJSON performs one API call with bounded retries. 4xx responses are
// permanent failures; transport errors and 5xx retry.
func (g *Gateway) doJSON(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+g.token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return backoff.Permanent(fmt.Errorf("%s %s: status %d: %s: %w",
				method, path, resp.StatusCode, strings.TrimSpace(string(raw)), tracker.ErrPermanent))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	return backoff.Retry(operation, policy)
}
