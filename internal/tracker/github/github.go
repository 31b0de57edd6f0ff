// Package github implements the tracker Gateway on the GitHub Issues API.
// Issue ids are the numeric issue numbers of a single repository; status
// changes map to labels, with "closed" handled as a real state change.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/qvnt33/agromat-it-desk-bot/internal/tracker"
)

// issuesClient abstracts the go-github methods we use, enabling test mocks.
type issuesClient interface {
	AddAssignees(ctx context.Context, owner, repo string, number int, assignees []string) (*gogithub.Issue, *gogithub.Response, error)
	Edit(ctx context.Context, owner, repo string, number int, issue *gogithub.IssueRequest) (*gogithub.Issue, *gogithub.Response, error)
	AddLabelsToIssue(ctx context.Context, owner, repo string, number int, labels []string) ([]*gogithub.Label, *gogithub.Response, error)
}

// usersClient abstracts the user lookup methods.
type usersClient interface {
	Get(ctx context.Context, user string) (*gogithub.User, *gogithub.Response, error)
}

// Gateway talks to the issues of one GitHub repository.
type Gateway struct {
	owner  string
	repo   string
	issues issuesClient
	users  usersClient
	// newClient builds a client for a different token, used by
	// ValidateToken. Swappable in tests.
	newClient func(token string) usersClient
}

// Opts holds parameters for creating a GitHub Gateway.
type Opts struct {
	Owner string
	Repo  string
	Token string
	// For testing: inject mocks instead of the real API clients.
	Issues issuesClient
	Users  usersClient
}

// New creates a GitHub Gateway.
func New(opts Opts) (*Gateway, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("github: owner and repo are required")
	}
	g := &Gateway{
		owner:  opts.Owner,
		repo:   opts.Repo,
		issues: opts.Issues,
		users:  opts.Users,
		newClient: func(token string) usersClient {
			return apiClient(token).Users
		},
	}
	if g.issues == nil || g.users == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("github: token is required")
		}
		client := apiClient(opts.Token)
		if g.issues == nil {
			g.issues = client.Issues
		}
		if g.users == nil {
			g.users = client.Users
		}
	}
	return g, nil
}

// apiClient builds an authenticated go-github client.
func apiClient(token string) *gogithub.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return gogithub.NewClient(oauth2.NewClient(context.Background(), src))
}

// Assign adds the login as an issue assignee.
func (g *Gateway) Assign(ctx context.Context, issueID, identity string) error {
	number, err := issueNumber(issueID)
	if err != nil {
		return err
	}
	if _, resp, err := g.issues.AddAssignees(ctx, g.owner, g.repo, number, []string{identity}); err != nil {
		return fmt.Errorf("github: assign %s to %s: %w", issueID, identity, classify(resp, err))
	}
	return nil
}

// SetStatus applies the status to the issue. "closed" and "done" close
// it; anything else becomes a label.
func (g *Gateway) SetStatus(ctx context.Context, issueID, status string) error {
	number, err := issueNumber(issueID)
	if err != nil {
		return err
	}
	switch strings.ToLower(status) {
	case "closed", "done", "resolved":
		state := "closed"
		req := &gogithub.IssueRequest{State: &state}
		if _, resp, err := g.issues.Edit(ctx, g.owner, g.repo, number, req); err != nil {
			return fmt.Errorf("github: close %s: %w", issueID, classify(resp, err))
		}
	default:
		if _, resp, err := g.issues.AddLabelsToIssue(ctx, g.owner, g.repo, number, []string{status}); err != nil {
			return fmt.Errorf("github: label %s with %q: %w", issueID, status, classify(resp, err))
		}
	}
	return nil
}

// LookupUser resolves a GitHub account by login.
func (g *Gateway) LookupUser(ctx context.Context, login string) (*tracker.User, error) {
	user, resp, err := g.users.Get(ctx, login)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("github: lookup user %s: %w", login, tracker.ErrUserNotFound)
		}
		return nil, fmt.Errorf("github: lookup user %s: %w", login, classify(resp, err))
	}
	return userOf(user), nil
}

// ValidateToken verifies a personal access token by fetching its own
// profile with a client built around it.
func (g *Gateway) ValidateToken(ctx context.Context, token string) (*tracker.User, error) {
	user, resp, err := g.newClient(token).Get(ctx, "")
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("github: validate token: rejected: %w", tracker.ErrPermanent)
		}
		return nil, fmt.Errorf("github: validate token: %w", err)
	}
	return userOf(user), nil
}

func userOf(u *gogithub.User) *tracker.User {
	return &tracker.User{
		ID:    strconv.FormatInt(u.GetID(), 10),
		Login: u.GetLogin(),
		Email: u.GetEmail(),
	}
}

// issueNumber parses "42" or "owner/repo#42" style ids.
func issueNumber(issueID string) (int, error) {
	raw := issueID
	if idx := strings.LastIndexByte(raw, '#'); idx >= 0 {
		raw = raw[idx+1:]
	}
	number, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("github: issue id %q is not a number: %w", issueID, tracker.ErrPermanent)
	}
	return number, nil
}

// classify marks client-side API rejections permanent.
func classify(resp *gogithub.Response, err error) error {
	if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%v: %w", err, tracker.ErrPermanent)
	}
	return err
}
