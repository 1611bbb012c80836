package auth

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// loginAttempt is one outstanding redirect to the Entra ID authorization
// endpoint. The nonce travels inside the id token and is checked against
// this record when the callback returns.
type loginAttempt struct {
	nonce   string
	expires time.Time
}

// StateStore tracks in-flight sign-in attempts keyed by the OAuth2 state
// parameter. A state verifies at most once and only within its TTL, which
// bounds how long a login redirect can sit in a browser tab before the
// callback is rejected.
type StateStore struct {
	mu      sync.Mutex
	pending map[string]loginAttempt
	ttl     time.Duration
}

// NewStateStore constructs a store whose attempts expire after ttl.
func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{
		pending: make(map[string]loginAttempt),
		ttl:     ttl,
	}
}

// Create registers a fresh attempt and returns its state and nonce.
func (s *StateStore) Create() (state string, nonce string, err error) {
	state, err = randomToken()
	if err != nil {
		return "", "", err
	}
	nonce, err = randomToken()
	if err != nil {
		return "", "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(time.Now())
	s.pending[state] = loginAttempt{nonce: nonce, expires: time.Now().Add(s.ttl)}
	return state, nonce, nil
}

// Verify consumes the state and hands back its nonce. The attempt is
// removed whether or not it is still valid, so a replayed callback fails.
func (s *StateStore) Verify(state string) (string, bool) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)

	attempt, ok := s.pending[state]
	if !ok {
		return "", false
	}
	delete(s.pending, state)
	if now.After(attempt.expires) {
		return "", false
	}
	return attempt.nonce, true
}

func (s *StateStore) pruneLocked(now time.Time) {
	for state, attempt := range s.pending {
		if now.After(attempt.expires) {
			delete(s.pending, state)
		}
	}
}

func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
