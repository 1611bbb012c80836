package rbac

import (
	"log/slog"
	"net/http"

	"github.com/beacon-portal/beacon-portal/internal/identity"
	"github.com/beacon-portal/beacon-portal/internal/shared"
	"github.com/beacon-portal/beacon-portal/internal/view"
)

// Gate wraps page handlers with an authentication and authorization
// precondition. Each evaluation is stateless; the identity session read from
// the request context is the only input.
type Gate struct {
	Logger    *slog.Logger
	Templates *view.Engine
	Audit     *shared.AuditLogger
}

// RequireAuthenticated halts rendering for anonymous visitors only. Any
// signed-in identity passes, including one whose roles claim matches no
// known role; pages behind it handle the no-role case themselves.
func (g Gate) RequireAuthenticated() func(http.Handler) http.Handler {
	return g.require(func([]string) bool { return true })
}

// RequireRoles halts rendering unless the effective role is one of the
// given roles.
func (g Gate) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	return g.require(func(raw []string) bool {
		return HasRole(raw, roles...)
	})
}

// RequirePermission halts rendering unless the effective role grants the
// permission.
func (g Gate) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return g.require(func(raw []string) bool {
		return HasPermission(raw, perm)
	})
}

func (g Gate) require(allowed func([]string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			id := identity.FromSession(sess)

			if !id.Authenticated {
				g.halt(w, r, id, http.StatusUnauthorized, "pages/unauthenticated.html", "Authentication required")
				return
			}

			if !allowed(id.Roles()) {
				// The denial message names neither the caller's roles nor
				// the ones that would have been accepted.
				g.halt(w, r, id, http.StatusForbidden, "pages/denied.html", "Access denied")
				return
			}

			if g.Audit != nil {
				entry := shared.AuditLog{
					Actor:    id.Profile.Subject,
					Action:   "page.view",
					Entity:   "page",
					EntityID: r.URL.Path,
				}
				if err := g.Audit.Record(r.Context(), entry); err != nil && g.Logger != nil {
					g.Logger.Warn("record page access", slog.Any("error", err))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g Gate) halt(w http.ResponseWriter, r *http.Request, id identity.Session, status int, page, title string) {
	if g.Templates == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	data := view.TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		SignedIn:    id.Authenticated,
		UserName:    displayName(id),
		RoleBadge:   Badge(id.Roles()),
		Nav:         NavFor(id),
	}
	if err := g.Templates.RenderStatus(w, status, page, data); err != nil {
		if g.Logger != nil {
			g.Logger.Error("render gate page", slog.String("page", page), slog.Any("error", err))
		}
		http.Error(w, http.StatusText(status), status)
	}
}

// NavFor lists the navigation entries the identity may reach. An
// unauthenticated visitor only sees the public entries.
func NavFor(id identity.Session) []view.NavItem {
	if !id.Authenticated {
		return []view.NavItem{{Label: "Welcome", Path: "/welcome"}}
	}
	items := []view.NavItem{{Label: "Home", Path: "/"}}
	raw := id.Roles()
	if HasPermission(raw, PermViewAnalytics) {
		items = append(items, view.NavItem{Label: "Analytics", Path: "/analytics"})
	}
	if HasPermission(raw, PermViewSettings) {
		items = append(items, view.NavItem{Label: "Settings", Path: "/settings"})
	}
	if HasPermission(raw, PermManageUsers) {
		items = append(items, view.NavItem{Label: "Users", Path: "/users"})
	}
	return items
}

// Badge renders the effective role for headers and sidebars.
func Badge(raw []string) string {
	role, ok := EffectiveRole(raw)
	if !ok {
		return "No role"
	}
	return string(role)
}

func displayName(id identity.Session) string {
	if id.Profile == nil {
		return ""
	}
	if id.Profile.Name != "" {
		return id.Profile.Name
	}
	return id.Profile.Email
}
