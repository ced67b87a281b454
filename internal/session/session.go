package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vidstream/client/internal/models"
)

var (
	// ErrNotAuthenticated indicates no credentials are held by the session.
	ErrNotAuthenticated = errors.New("session not authenticated")
	// ErrTokenExpired indicates the bearer token's lifetime has elapsed.
	ErrTokenExpired = errors.New("session token expired")
)

// Session holds the identity and bearer token supplied by the external
// identity provider. It is the single place credentials live; every consumer
// reads through it and a 401 anywhere tears it down exactly once.
type Session struct {
	mu        sync.RWMutex
	token     string
	user      models.User
	signedOut bool
	hooks     map[int]func()
	nextHook  int

	now func() time.Time
}

// New constructs an empty session.
func New() *Session {
	return &Session{
		hooks: make(map[int]func()),
		now:   time.Now,
	}
}

// SetCredentials installs a token and identity, re-arming the session after a
// previous sign-out.
func (s *Session) SetCredentials(token string, user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = user
	s.signedOut = false
}

// Token returns the current bearer token, empty when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the current identity record.
func (s *Session) User() models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Authenticated reports whether the session holds credentials.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && !s.signedOut
}

// OnSignOut registers a hook invoked when the session is torn down. The
// returned function deregisters the hook and is safe to call more than once.
func (s *Session) OnSignOut(hook func()) func() {
	s.mu.Lock()
	id := s.nextHook
	s.nextHook++
	s.hooks[id] = hook
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.hooks, id)
		s.mu.Unlock()
	}
}

// SignOut clears the token and identity and fires the registered hooks.
// Repeated calls without new credentials are no-ops, so concurrent 401
// responses collapse into a single global sign-out side effect.
func (s *Session) SignOut() {
	s.mu.Lock()
	if s.signedOut {
		s.mu.Unlock()
		return
	}
	s.signedOut = true
	s.token = ""
	s.user = models.User{}

	hooks := make([]func(), 0, len(s.hooks))
	for _, hook := range s.hooks {
		hooks = append(hooks, hook)
	}
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

// TokenExpiry extracts the expiry claim from the bearer token. The signature
// is not verified; the server remains the authority, this is only used to
// avoid handing out stream URLs that are already dead.
func (s *Session) TokenExpiry() (time.Time, error) {
	token := s.Token()
	if token == "" {
		return time.Time{}, ErrNotAuthenticated
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// Valid reports whether the session is authenticated with an unexpired token.
// Tokens without an expiry claim are treated as valid.
func (s *Session) Valid() error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}

	exp, err := s.TokenExpiry()
	if errors.Is(err, jwt.ErrTokenMalformed) {
		// Opaque token; the server alone knows its lifetime.
		return nil
	}
	if err != nil {
		return err
	}
	if !exp.IsZero() && s.now().After(exp) {
		return ErrTokenExpired
	}
	return nil
}
