package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/peoplestack/ems-api/internal/data"
	domainauth "github.com/peoplestack/ems-api/internal/domain/auth"
	"github.com/peoplestack/ems-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider  = (*MockIdentityProvider)(nil)
	_ ports.UserStore         = (*MemoryUserStore)(nil)
	_ ports.EmployeeDirectory = (*MemoryDirectory)(nil)
	_ ports.LoginStateStore   = (*MemoryStateStore)(nil)
)

// MockIdentityProvider simulates an identity provider with overridable funcs
// and deterministic defaults.
type MockIdentityProvider struct {
	AuthCodeURLFunc  func(ctx context.Context, in ports.AuthCodeInput) (string, error)
	ExchangeFunc     func(ctx context.Context, code, nonce string) (string, error)
	FetchProfileFunc func(ctx context.Context, accessToken string) (domainauth.Profile, error)

	// Defaults used when the funcs above are nil.
	AuthURL string
	Profile domainauth.Profile
}

// NewMockIdentityProvider creates a provider double with sensible defaults.
func NewMockIdentityProvider() *MockIdentityProvider {
	return &MockIdentityProvider{
		AuthURL: "https://mock-idp/authorize",
		Profile: domainauth.Profile{ID: "mock-provider-1", Email: "mock.user@example.com"},
	}
}

func (m *MockIdentityProvider) AuthCodeURL(ctx context.Context, in ports.AuthCodeInput) (string, error) {
	if m.AuthCodeURLFunc != nil {
		return m.AuthCodeURLFunc(ctx, in)
	}
	if in.State == "" {
		return "", errors.New("state is required")
	}
	return fmt.Sprintf("%s?state=%s&login_hint=%s", m.AuthURL, in.State, in.LoginHint), nil
}

func (m *MockIdentityProvider) Exchange(ctx context.Context, code, nonce string) (string, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code, nonce)
	}
	if code == "" {
		return "", errors.New("authorization code is required")
	}
	return "mock-access-token", nil
}

func (m *MockIdentityProvider) FetchProfile(ctx context.Context, accessToken string) (domainauth.Profile, error) {
	if m.FetchProfileFunc != nil {
		return m.FetchProfileFunc(ctx, accessToken)
	}
	return m.Profile, nil
}

// MemoryUserStore is an in-memory ports.UserStore keyed by user id.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[int64]*domainauth.UserAccount

	// Err, when set, is returned from every method to simulate store failure.
	Err error
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: map[int64]*domainauth.UserAccount{}}
}

// Add stores a copy of the account, keyed by its ID.
func (s *MemoryUserStore) Add(u domainauth.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

func (s *MemoryUserStore) FindByID(_ context.Context, id int64) (*domainauth.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) FindByProviderIDOrEmail(_ context.Context, providerUserID, email string) (*domainauth.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var byEmail *domainauth.UserAccount
	for _, u := range s.users {
		if !u.Active {
			continue
		}
		if providerUserID != "" && u.ProviderUserID == providerUserID {
			cp := *u
			return &cp, nil
		}
		if strings.EqualFold(u.Email, email) {
			byEmail = u
		}
	}
	if byEmail != nil {
		cp := *byEmail
		return &cp, nil
	}
	return nil, data.ErrUserNotFound
}

func (s *MemoryUserStore) SetRefreshToken(_ context.Context, id int64, refreshToken *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return data.ErrUserNotFound
	}
	if refreshToken == nil {
		u.RefreshToken = nil
		return nil
	}
	cp := *refreshToken
	u.RefreshToken = &cp
	return nil
}

func (s *MemoryUserStore) RebindProviderID(_ context.Context, id int64, providerUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return data.ErrUserNotFound
	}
	u.ProviderUserID = providerUserID
	return nil
}

// Get returns the stored account for assertions, or nil.
func (s *MemoryUserStore) Get(id int64) *domainauth.UserAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// MemoryDirectory is an in-memory ports.EmployeeDirectory keyed by code.
type MemoryDirectory struct {
	mu        sync.Mutex
	employees map[string]*domainauth.Employee
}

// NewMemoryDirectory creates an empty in-memory employee directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{employees: map[string]*domainauth.Employee{}}
}

// Add stores a copy of the employee, keyed by its code.
func (d *MemoryDirectory) Add(e domainauth.Employee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := e
	d.employees[e.Code] = &cp
}

func (d *MemoryDirectory) FindByCode(_ context.Context, code string) (*domainauth.Employee, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.employees[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, data.ErrEmployeeNotFound
	}
	cp := *e
	return &cp, nil
}

// MemoryStateStore is an in-memory ports.LoginStateStore with one-shot reads.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]ports.LoginState
}

// NewMemoryStateStore creates an empty in-memory login-state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: map[string]ports.LoginState{}}
}

func (s *MemoryStateStore) Save(_ context.Context, st ports.LoginState) error {
	if st.State == "" {
		return errors.New("login state cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.State] = st
	return nil
}

func (s *MemoryStateStore) Get(_ context.Context, state string) (ports.LoginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[state]
	if !ok {
		return ports.LoginState{}, errors.New("login state not found")
	}
	delete(s.states, state)
	return st, nil
}

// Len reports how many pending states remain, for assertions.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
