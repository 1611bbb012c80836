// Package pages serves the portal pages behind the access gate.
package pages

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/beacon-portal/beacon-portal/internal/directory"
	"github.com/beacon-portal/beacon-portal/internal/identity"
	"github.com/beacon-portal/beacon-portal/internal/platform/httpx"
	"github.com/beacon-portal/beacon-portal/internal/rbac"
	"github.com/beacon-portal/beacon-portal/internal/shared"
	"github.com/beacon-portal/beacon-portal/internal/view"
)

const settingsSessionKey = "settings"

// Handler renders the portal pages.
type Handler struct {
	logger      *slog.Logger
	templates   *view.Engine
	csrfManager *shared.CSRFManager
	gate        rbac.Gate
	directory   *directory.Service
	validator   *validator.Validate

	authDisabled bool
	missingVars  []string
	defaultLimit int
}

// NewHandler constructs the pages handler.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, gate rbac.Gate, dir *directory.Service, authDisabled bool, missingVars []string, defaultLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = directory.DefaultPageSize
	}
	return &Handler{
		logger:       logger,
		templates:    templates,
		csrfManager:  csrf,
		gate:         gate,
		directory:    dir,
		validator:    validator.New(),
		authDisabled: authDisabled,
		missingVars:  missingVars,
		defaultLimit: defaultLimit,
	}
}

// MountRoutes registers page routes. Pages that declare no requirement are
// unprotected; everything else composes gate-then-render explicitly.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/welcome", h.showWelcome)
	r.With(h.gate.RequireAuthenticated()).Get("/", h.showHome)
	r.With(h.gate.RequirePermission(rbac.PermViewAnalytics)).Get("/analytics", h.showAnalytics)
	r.With(h.gate.RequirePermission(rbac.PermViewSettings)).Get("/settings", h.showSettings)
	r.With(h.gate.RequirePermission(rbac.PermEditSettings)).Post("/settings", h.saveSettings)
	r.With(h.gate.RequireRoles(rbac.RoleAdmin)).Get("/users", h.showUsers)
	r.With(h.gate.RequireRoles(rbac.RoleAdmin)).Get("/api/users", h.listUsersJSON)
}

func (h *Handler) baseData(r *http.Request, title string) view.TemplateData {
	sess := shared.SessionFromContext(r.Context())
	id := identity.FromSession(sess)

	data := view.TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		SignedIn:    id.Authenticated,
		RoleBadge:   rbac.Badge(id.Roles()),
		Nav:         rbac.NavFor(id),
	}
	if id.Profile != nil {
		data.UserName = id.Profile.Name
		if data.UserName == "" {
			data.UserName = id.Profile.Email
		}
	}
	if sess != nil {
		data.Flash = sess.PopFlash()
		if token, err := h.csrfManager.EnsureToken(r.Context(), sess); err == nil {
			data.CSRFToken = token
		}
	}
	return data
}

func (h *Handler) render(w http.ResponseWriter, page string, data view.TemplateData) {
	if err := h.templates.Render(w, page, data); err != nil {
		h.logger.Error("render page", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type welcomeData struct {
	SignInEnabled bool
	MissingVars   []string
}

func (h *Handler) showWelcome(w http.ResponseWriter, r *http.Request) {
	data := h.baseData(r, "Beacon Portal")
	data.Data = welcomeData{
		SignInEnabled: !h.authDisabled,
		MissingVars:   h.missingVars,
	}
	h.render(w, "pages/landing.html", data)
}

type homeData struct {
	Email       string
	Subject     string
	Permissions []rbac.Permission
}

func (h *Handler) showHome(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	id := identity.FromSession(sess)

	data := h.baseData(r, "Home")
	home := homeData{}
	if id.Profile != nil {
		home.Email = id.Profile.Email
		home.Subject = id.Profile.Subject
	}
	if role, ok := rbac.EffectiveRole(id.Roles()); ok {
		home.Permissions = rbac.Permissions(role)
	}
	data.Data = home
	h.render(w, "pages/home.html", data)
}

type analyticsMetric struct {
	Label string
	Value int64
	Delta string
}

func (h *Handler) showAnalytics(w http.ResponseWriter, r *http.Request) {
	data := h.baseData(r, "Analytics")
	// Demonstration figures; this template app has no analytics store.
	data.Data = []analyticsMetric{
		{Label: "Page views", Value: 1284412, Delta: "+4.2%"},
		{Label: "Unique visitors", Value: 83241, Delta: "+1.9%"},
		{Label: "Sign-ins this week", Value: 1127, Delta: "+12%"},
		{Label: "Avg. session minutes", Value: 14, Delta: "-0.8%"},
	}
	h.render(w, "pages/analytics.html", data)
}

// SettingsForm carries the editable preferences. Values live in the session
// only; a template app has no settings store.
type SettingsForm struct {
	Theme        string `json:"theme" validate:"required,oneof=light dark"`
	ItemsPerPage int    `json:"items_per_page" validate:"required,min=10,max=100"`
	Digest       bool   `json:"digest"`
}

func defaultSettings() SettingsForm {
	return SettingsForm{Theme: "light", ItemsPerPage: 25}
}

type settingsData struct {
	Form    SettingsForm
	Errors  map[string]string
	CanEdit bool
	Saved   bool
}

func (h *Handler) loadSettings(sess *shared.Session) SettingsForm {
	form := defaultSettings()
	if sess == nil {
		return form
	}
	raw := sess.Get(settingsSessionKey)
	if raw == "" {
		return form
	}
	if err := json.Unmarshal([]byte(raw), &form); err != nil {
		sess.Delete(settingsSessionKey)
		return defaultSettings()
	}
	return form
}

func (h *Handler) showSettings(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	id := identity.FromSession(sess)

	data := h.baseData(r, "Settings")
	data.Data = settingsData{
		Form:    h.loadSettings(sess),
		CanEdit: rbac.HasPermission(id.Roles(), rbac.PermEditSettings),
	}
	h.render(w, "pages/settings.html", data)
}

func (h *Handler) saveSettings(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	itemsPerPage, _ := strconv.Atoi(r.PostFormValue("items_per_page"))
	form := SettingsForm{
		Theme:        r.PostFormValue("theme"),
		ItemsPerPage: itemsPerPage,
		Digest:       r.PostFormValue("digest") == "on",
	}

	fieldErrors := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fieldErrors[fieldErr.Field()] = "invalid value"
			}
		} else {
			fieldErrors["general"] = "invalid input"
		}
	}

	if len(fieldErrors) > 0 {
		data := h.baseData(r, "Settings")
		data.Data = settingsData{Form: form, Errors: fieldErrors, CanEdit: true}
		w.WriteHeader(http.StatusBadRequest)
		if err := h.templates.Render(w, "pages/settings.html", data); err != nil {
			h.logger.Error("render settings invalid", slog.Any("error", err))
		}
		return
	}

	if sess != nil {
		raw, err := json.Marshal(form)
		if err == nil {
			sess.Set(settingsSessionKey, string(raw))
		}
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Settings saved"})
	}
	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}

type usersData struct {
	Records     []directory.Record
	Placeholder bool
	Notice      string
	Limit       int
}

func (h *Handler) showUsers(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page := usersData{Limit: limit}
	records, err := h.directory.Snapshot(r.Context(), limit)
	switch {
	case err == nil:
		page.Records = records
	case errors.Is(err, directory.ErrUnavailable):
		h.logger.Warn("directory unavailable, using placeholder", slog.Any("error", err))
		page.Records = directory.Placeholder()
		page.Placeholder = true
		page.Notice = directory.PlaceholderNotice
	default:
		// Page failures stay page-local; the placeholder keeps the page
		// rendering instead of erroring out.
		h.logger.Error("directory snapshot", slog.Any("error", err))
		page.Records = directory.Placeholder()
		page.Placeholder = true
		page.Notice = directory.PlaceholderNotice
	}

	data := h.baseData(r, "Users")
	data.Data = page
	h.render(w, "pages/users.html", data)
}

// listUsersJSON is the machine-readable variant of the users page. Unlike
// the HTML page it does not substitute the placeholder dataset; an outage
// surfaces as a problem-details response.
func (h *Handler) listUsersJSON(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.directory.Snapshot(r.Context(), limit)
	if err != nil {
		h.logger.Warn("directory snapshot for api", slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: directory snapshot", httpx.ErrUnavailable))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"value": records, "count": len(records)})
}
