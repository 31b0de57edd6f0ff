package tracker

import (
	"context"
	"sync"
)

// AssignCall records one Assign call on the mock.
type AssignCall struct {
	IssueID  string
	Identity string
}

// StatusCall records one SetStatus call on the mock.
type StatusCall struct {
	IssueID string
	Status  string
}

// MockGateway implements Gateway for testing. Calls are recorded; errors
// and lookup results are injectable.
type MockGateway struct {
	mu          sync.Mutex
	Assigned    []AssignCall
	Statuses    []StatusCall
	AssignErr   error
	StatusErr   error
	Users       map[string]*User // login -> user
	TokenUsers  map[string]*User // token -> user
	LookupErr   error
	ValidateErr error
}

// NewMockGateway creates an empty MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Users:      map[string]*User{},
		TokenUsers: map[string]*User{},
	}
}

// Assign records the call or returns the injected error.
func (m *MockGateway) Assign(ctx context.Context, issueID, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AssignErr != nil {
		return m.AssignErr
	}
	m.Assigned = append(m.Assigned, AssignCall{IssueID: issueID, Identity: identity})
	return nil
}

// SetStatus records the call or returns the injected error.
func (m *MockGateway) SetStatus(ctx context.Context, issueID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StatusErr != nil {
		return m.StatusErr
	}
	m.Statuses = append(m.Statuses, StatusCall{IssueID: issueID, Status: status})
	return nil
}

// LookupUser returns the configured user for a login.
func (m *MockGateway) LookupUser(ctx context.Context, login string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	u, ok := m.Users[login]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// ValidateToken returns the configured user for a token.
func (m *MockGateway) ValidateToken(ctx context.Context, token string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ValidateErr != nil {
		return nil, m.ValidateErr
	}
	u, ok := m.TokenUsers[token]
	if !ok {
		return nil, ErrPermanent
	}
	return u, nil
}

// AssignCount returns the number of successful Assign calls.
func (m *MockGateway) AssignCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Assigned)
}
