package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// State is the purchaser's position in the login → credential → ready flow
type State string

const (
	StateLogin           State = "login"
	StateCredentialSetup State = "credential-setup"
	StateReady           State = "ready"
)

// ErrInvalidTransition is returned when an action is not allowed in the current state
var ErrInvalidTransition = errors.New("invalid session transition")

// Session is the explicit per-purchaser context passed to every handler
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	APIKey    string    `json:"-"`
	Model     string    `json:"model,omitempty"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a fresh session in the login state
func New() (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{ID: id, State: StateLogin, CreatedAt: now, UpdatedAt: now}, nil
}

func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Authenticate records a verified purchaser and moves to credential setup
func (s *Session) Authenticate(userID string) error {
	if s.State != StateLogin {
		return fmt.Errorf("%w: authenticate from %s", ErrInvalidTransition, s.State)
	}
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidTransition)
	}
	s.UserID = userID
	s.State = StateCredentialSetup
	s.Touch()
	return nil
}

// SetCredential caches a validated API key and optional model override.
// Allowed from credential-setup and ready (to replace the key).
func (s *Session) SetCredential(apiKey, model string) error {
	if s.State != StateCredentialSetup && s.State != StateReady {
		return fmt.Errorf("%w: set credential from %s", ErrInvalidTransition, s.State)
	}
	if apiKey == "" {
		return fmt.Errorf("%w: empty credential", ErrInvalidTransition)
	}
	s.APIKey = apiKey
	s.Model = model
	s.State = StateReady
	s.Touch()
	return nil
}

// ClearCredential drops the cached key and returns to credential setup
func (s *Session) ClearCredential() error {
	if s.State != StateReady {
		return fmt.Errorf("%w: clear credential from %s", ErrInvalidTransition, s.State)
	}
	s.APIKey = ""
	s.Model = ""
	s.State = StateCredentialSetup
	s.Touch()
	return nil
}

// Logout resets the session to the login state from anywhere
func (s *Session) Logout() {
	s.UserID = ""
	s.APIKey = ""
	s.Model = ""
	s.State = StateLogin
	s.Touch()
}

// Ready reports whether analyses may run
func (s *Session) Ready() bool {
	return s.State == StateReady && s.UserID != "" && s.APIKey != ""
}

// Touch records activity; the store expires sessions idle past its max age
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}
