package identity_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/beacon-portal/beacon-portal/internal/identity"
	"github.com/beacon-portal/beacon-portal/internal/shared"
	_ "github.com/beacon-portal/beacon-portal/testing"
)

func newSession(t *testing.T) *shared.Session {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sm := shared.NewSessionManager(client, "beacon_session", "test-secret", time.Hour, false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(req.Context(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return sess
}

func TestStoreAndRestore(t *testing.T) {
	sess := newSession(t)

	profile := identity.Profile{
		Subject: "00000000-0000-0000-0000-000000000001",
		Name:    "Pat Example",
		Email:   "pat@example.com",
		Roles:   []string{"Superuser"},
	}
	if err := identity.Store(sess, profile); err != nil {
		t.Fatalf("store: %v", err)
	}

	id := identity.FromSession(sess)
	if !id.Authenticated {
		t.Fatal("expected authenticated identity")
	}
	if id.Profile.Subject != profile.Subject || id.Profile.Email != profile.Email {
		t.Fatalf("profile mismatch: %+v", id.Profile)
	}
	if len(id.Roles()) != 1 || id.Roles()[0] != "Superuser" {
		t.Fatalf("roles mismatch: %v", id.Roles())
	}
	if sess.User() != profile.Subject {
		t.Fatalf("session user not set: %q", sess.User())
	}
}

func TestAbsentRolesBecomeEmptyList(t *testing.T) {
	sess := newSession(t)
	if err := identity.Store(sess, identity.Profile{Subject: "sub", Email: "a@b.c"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	id := identity.FromSession(sess)
	if id.Roles() == nil || len(id.Roles()) != 0 {
		t.Fatalf("expected empty role list, got %v", id.Roles())
	}
}

// A profile blob that no longer parses must not be partially trusted: the
// restore comes back unauthenticated and both values are removed, so the
// next page load starts clean.
func TestCorruptProfileCleared(t *testing.T) {
	sess := newSession(t)
	sess.Set("authenticated", "true")
	sess.Set("profile", "{not json")

	id := identity.FromSession(sess)
	if id.Authenticated {
		t.Fatal("corrupt profile must not authenticate")
	}
	if sess.Get("authenticated") != "" || sess.Get("profile") != "" {
		t.Fatal("corrupt values must be cleared")
	}

	// A second restore sees a clean unauthenticated session.
	if again := identity.FromSession(sess); again.Authenticated {
		t.Fatal("expected unauthenticated on reload")
	}
}

// A flag value other than "true" is corrupt state; the stale profile next
// to it must go as well.
func TestCorruptFlagClearsProfile(t *testing.T) {
	sess := newSession(t)
	sess.Set("authenticated", "yes")
	sess.Set("profile", `{"sub":"stale","roles":["Admin"]}`)

	id := identity.FromSession(sess)
	if id.Authenticated {
		t.Fatal("corrupt flag must not authenticate")
	}
	if sess.Get("authenticated") != "" || sess.Get("profile") != "" {
		t.Fatal("both values must be cleared")
	}
}

func TestMissingProfileCleared(t *testing.T) {
	sess := newSession(t)
	sess.Set("authenticated", "true")

	id := identity.FromSession(sess)
	if id.Authenticated {
		t.Fatal("flag without profile must not authenticate")
	}
	if sess.Get("authenticated") != "" {
		t.Fatal("dangling flag must be cleared")
	}
}

func TestClear(t *testing.T) {
	sess := newSession(t)
	if err := identity.Store(sess, identity.Profile{Subject: "sub", Roles: []string{"Admin"}}); err != nil {
		t.Fatalf("store: %v", err)
	}
	identity.Clear(sess)
	if id := identity.FromSession(sess); id.Authenticated {
		t.Fatal("expected unauthenticated after clear")
	}
	if sess.User() != "" {
		t.Fatalf("session user not cleared: %q", sess.User())
	}
}

func TestNilSession(t *testing.T) {
	if id := identity.FromSession(nil); id.Authenticated {
		t.Fatal("nil session must be unauthenticated")
	}
	if err := identity.Store(nil, identity.Profile{}); err != nil {
		t.Fatalf("store on nil session: %v", err)
	}
	identity.Clear(nil)
}
