package rbac_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/beacon-portal/beacon-portal/internal/identity"
	"github.com/beacon-portal/beacon-portal/internal/rbac"
	"github.com/beacon-portal/beacon-portal/internal/shared"
	"github.com/beacon-portal/beacon-portal/internal/view"
	_ "github.com/beacon-portal/beacon-portal/testing"
)

func newGate(t *testing.T) rbac.Gate {
	t.Helper()
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return rbac.Gate{Logger: logger, Templates: templates}
}

func newSessionManager(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "beacon_session", "test-secret", time.Hour, false)
}

// gateRequest builds a request whose context carries a session. A nil
// profile leaves the session unauthenticated.
func gateRequest(t *testing.T, sm *shared.SessionManager, target string, profile *identity.Profile) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	sess, err := sm.Load(req.Context(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if profile != nil {
		if err := identity.Store(sess, *profile); err != nil {
			t.Fatalf("store identity: %v", err)
		}
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestGateUnauthenticated(t *testing.T) {
	gate := newGate(t)
	sm := newSessionManager(t)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rec := httptest.NewRecorder()
	gate.RequirePermission(rbac.PermViewAnalytics)(next).ServeHTTP(rec, gateRequest(t, sm, "/analytics", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("protected handler must not run")
	}
	if !strings.Contains(rec.Body.String(), "Authentication required") {
		t.Fatalf("expected sign-in prompt, got: %s", rec.Body.String())
	}
}

func TestGateDenied(t *testing.T) {
	gate := newGate(t)
	sm := newSessionManager(t)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	profile := &identity.Profile{Subject: "sub-1", Name: "Pat", Roles: []string{"User"}}
	rec := httptest.NewRecorder()
	gate.RequireRoles(rbac.RoleAdmin)(next).ServeHTTP(rec, gateRequest(t, sm, "/users", profile))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if called {
		t.Fatal("protected handler must not run")
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Access denied") {
		t.Fatalf("expected denial page, got: %s", body)
	}
	// The denial page must not name the role that would have been accepted.
	if strings.Contains(body, "Admin") {
		t.Fatalf("denial page leaks required role: %s", body)
	}
}

func TestRequireAuthenticated(t *testing.T) {
	gate := newGate(t)
	sm := newSessionManager(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := gate.RequireAuthenticated()(next)

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, gateRequest(t, sm, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rec.Code)
	}

	// Signed in without any recognised role still passes.
	rec = httptest.NewRecorder()
	profile := &identity.Profile{Subject: "sub-4", Roles: []string{}}
	protected.ServeHTTP(rec, gateRequest(t, sm, "/", profile))
	if rec.Code != http.StatusOK {
		t.Fatalf("role-less: expected 200, got %d", rec.Code)
	}
}

func TestGateAllows(t *testing.T) {
	gate := newGate(t)
	sm := newSessionManager(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("page body"))
	})

	profile := &identity.Profile{Subject: "sub-2", Name: "Sam", Roles: []string{"Superuser"}}
	rec := httptest.NewRecorder()
	gate.RequirePermission(rbac.PermViewSettings)(next).ServeHTTP(rec, gateRequest(t, sm, "/settings", profile))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "page body") {
		t.Fatalf("expected protected body, got: %s", rec.Body.String())
	}
}

// Evaluating the same request twice yields the same decision; the gate keeps
// no per-request state.
func TestGateRepeatable(t *testing.T) {
	gate := newGate(t)
	sm := newSessionManager(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := gate.RequireRoles(rbac.RoleAdmin)(next)

	req := gateRequest(t, sm, "/users", &identity.Profile{Subject: "sub-3", Roles: []string{"User"}})
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("pass %d: expected 403, got %d", i, rec.Code)
		}
	}
}

func TestNavForUnauthenticated(t *testing.T) {
	nav := rbac.NavFor(identity.Session{})
	if len(nav) != 1 || nav[0].Path != "/welcome" {
		t.Fatalf("expected only the welcome entry, got %v", nav)
	}
}

func TestNavForRoles(t *testing.T) {
	cases := []struct {
		roles []string
		paths []string
	}{
		{[]string{"User"}, []string{"/", "/analytics"}},
		{[]string{"Superuser"}, []string{"/", "/analytics", "/settings"}},
		{[]string{"Admin"}, []string{"/", "/analytics", "/settings", "/users"}},
	}
	for _, tc := range cases {
		id := identity.Session{Authenticated: true, Profile: &identity.Profile{Roles: tc.roles}}
		nav := rbac.NavFor(id)
		if len(nav) != len(tc.paths) {
			t.Fatalf("roles %v: expected %d entries, got %v", tc.roles, len(tc.paths), nav)
		}
		for i, want := range tc.paths {
			if nav[i].Path != want {
				t.Fatalf("roles %v: entry %d is %s, want %s", tc.roles, i, nav[i].Path, want)
			}
		}
	}
}

func TestBadge(t *testing.T) {
	if got := rbac.Badge([]string{"User", "Admin"}); got != "Admin" {
		t.Fatalf("expected Admin badge, got %q", got)
	}
	if got := rbac.Badge(nil); got != "No role" {
		t.Fatalf("expected fallback badge, got %q", got)
	}
}
