package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/beacon-portal/beacon-portal/internal/identity"
	"github.com/beacon-portal/beacon-portal/internal/shared"
)

// Handler wires HTTP endpoints for the Entra ID sign-in flow.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	states         *StateStore
	cfg            Config
	provider       *providerMetadata
	keys           *jwksCache
	httpClient     *http.Client
	disabled       bool
}

// NewHandler constructs a Handler. When the registration is incomplete the
// handler stays mounted but every endpoint reports that sign-in is not
// configured.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, cfg Config) (*Handler, error) {
	h := &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		states:         NewStateStore(10 * time.Minute),
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}

	if !cfg.Enabled() {
		h.disabled = true
		return h, nil
	}

	metadata, err := discoverProvider(context.Background(), h.httpClient, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	h.provider = metadata
	h.keys = newJWKSCache(metadata.JWKSURI, h.httpClient)
	return h, nil
}

// Disabled reports whether sign-in is unavailable due to missing
// configuration.
func (h *Handler) Disabled() bool {
	return h.disabled
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.beginLogin)
	r.Get("/callback", h.handleCallback)
	r.Post("/logout", h.handleLogout)
}

func (h *Handler) beginLogin(w http.ResponseWriter, r *http.Request) {
	if h.disabled {
		h.failToLanding(w, r, "Sign-in is not configured on this deployment.")
		return
	}

	state, nonce, err := h.states.Create()
	if err != nil {
		h.logger.Error("create login state", slog.Any("error", err))
		h.failToLanding(w, r, "Could not start sign-in. Please try again.")
		return
	}

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", h.cfg.ClientID)
	query.Set("redirect_uri", h.cfg.RedirectURL)
	query.Set("scope", h.cfg.scopeString())
	query.Set("state", state)
	query.Set("nonce", nonce)
	query.Set("response_mode", "query")

	http.Redirect(w, r, h.provider.AuthorizationEndpoint+"?"+query.Encode(), http.StatusSeeOther)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if h.disabled {
		h.failToLanding(w, r, "Sign-in is not configured on this deployment.")
		return
	}

	if errCode := r.URL.Query().Get("error"); errCode != "" {
		h.logger.Warn("provider returned error", slog.String("code", errCode))
		h.failToLanding(w, r, "Sign-in was cancelled or rejected by the identity provider.")
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		h.failToLanding(w, r, "Sign-in response was incomplete. Please try again.")
		return
	}

	nonce, ok := h.states.Verify(state)
	if !ok {
		h.failToLanding(w, r, "Sign-in attempt expired. Please try again.")
		return
	}

	token, err := h.exchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("exchange authorization code", slog.Any("error", err))
		h.failToLanding(w, r, "Could not complete sign-in with the identity provider.")
		return
	}

	claims, err := verifyIDToken(r.Context(), h.keys, token.IDToken)
	if err == nil {
		err = claims.Validate(h.cfg.ClientID, h.cfg.Issuer, nonce)
	}
	if err != nil {
		h.logger.Warn("id token validation failed", slog.Any("error", err))
		h.failToLanding(w, r, "Sign-in could not be verified.")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	profile := identity.Profile{
		Subject: claims.Subject,
		Name:    claims.Name,
		Email:   claims.EmailAddress(),
		Roles:   claims.Roles,
	}
	if err := identity.Store(sess, profile); err != nil {
		h.logger.Error("store identity", slog.Any("error", err))
		h.failToLanding(w, r, "Could not establish your session.")
		return
	}

	acct := Account{Subject: profile.Subject, Email: profile.Email, Name: profile.Name}
	if err := h.service.RecordSignIn(r.Context(), acct); err != nil {
		h.logger.Warn("record sign-in", slog.Any("error", err))
	}
	if sess != nil && sess.ID != "" {
		expiresAt := time.Now().Add(h.sessionManager.TTL())
		if err := h.service.RegisterSession(r.Context(), sess.ID, profile.Subject, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	}

	if sess != nil {
		name := profile.Name
		if name == "" {
			name = profile.Email
		}
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: fmt.Sprintf("Welcome, %s", name)})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		identity.Clear(sess)
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/welcome", http.StatusSeeOther)
}

func (h *Handler) failToLanding(w http.ResponseWriter, r *http.Request, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: message})
	}
	http.Redirect(w, r, "/welcome", http.StatusSeeOther)
}

func (h *Handler) exchangeCode(ctx context.Context, code string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", h.cfg.RedirectURL)
	form.Set("client_id", h.cfg.ClientID)
	if h.cfg.ClientSecret != "" {
		form.Set("client_secret", h.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.provider.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("token endpoint returned %d: %s", res.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&token); err != nil {
		return nil, err
	}
	return &token, nil
}
