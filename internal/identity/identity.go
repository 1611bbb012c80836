// Package identity models the signed-in user as asserted by the Entra ID
// token, persisted across page loads inside the cookie session.
package identity

import (
	"encoding/json"

	"github.com/beacon-portal/beacon-portal/internal/shared"
)

// Session value keys. Two values are kept: the authenticated flag and the
// JSON-serialised profile blob.
const (
	sessionKeyAuthenticated = "authenticated"
	sessionKeyProfile       = "profile"
)

// Profile carries the identity claims this application consumes. Roles is
// the raw `roles` claim; an absent claim is stored as an empty list.
type Profile struct {
	Subject string   `json:"sub"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
}

// Session is the per-browser identity state. It is a plain value threaded
// into the resolver and the gate, never ambient state.
type Session struct {
	Authenticated bool
	Profile       *Profile
}

// Roles returns the raw role assertions, nil-safe.
func (s Session) Roles() []string {
	if s.Profile == nil {
		return nil
	}
	return s.Profile.Roles
}

// FromSession restores the identity from the cookie session. Corrupted
// stored values are never partially trusted: both values are cleared and the
// result is unauthenticated, so a later load does not fail the same way.
func FromSession(sess *shared.Session) Session {
	if sess == nil {
		return Session{}
	}
	flag := sess.Get(sessionKeyAuthenticated)
	if flag != "true" {
		// A flag value other than "true", or a leftover profile with no
		// flag, is corrupt state; discard it in full.
		if flag != "" || sess.Get(sessionKeyProfile) != "" {
			Clear(sess)
		}
		return Session{}
	}
	raw := sess.Get(sessionKeyProfile)
	if raw == "" {
		Clear(sess)
		return Session{}
	}
	var profile Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		Clear(sess)
		return Session{}
	}
	if profile.Roles == nil {
		profile.Roles = []string{}
	}
	return Session{Authenticated: true, Profile: &profile}
}

// Store writes the authenticated identity into the cookie session.
func Store(sess *shared.Session, profile Profile) error {
	if sess == nil {
		return nil
	}
	if profile.Roles == nil {
		profile.Roles = []string{}
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	sess.Set(sessionKeyAuthenticated, "true")
	sess.Set(sessionKeyProfile, string(raw))
	sess.SetUser(profile.Subject)
	return nil
}

// Clear removes the identity values from the session.
func Clear(sess *shared.Session) {
	if sess == nil {
		return
	}
	sess.Delete(sessionKeyAuthenticated)
	sess.Delete(sessionKeyProfile)
	sess.SetUser("")
}
