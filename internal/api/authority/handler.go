package authority

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/bearer"
	"github.com/trackwise/edgeauth/internal/api/middleware"
	"github.com/trackwise/edgeauth/internal/api/presenter"
	"github.com/trackwise/edgeauth/internal/buildinfo"
	"github.com/trackwise/edgeauth/internal/logging"
	guard "github.com/trackwise/edgeauth/middleware"
)

// Service is the session authority as seen by the HTTP layer.
// *edgeauth.Engine implements it.
type Service interface {
	edgeauth.AuthorityVerifier
	Issue(ctx context.Context, username, password string) (*edgeauth.IssuedToken, error)
	Register(ctx context.Context, in edgeauth.NewPrincipal) (*edgeauth.Principal, error)
	Revoke(ctx context.Context, token string) (*edgeauth.SessionInfo, bool, error)
	ListPrincipals(ctx context.Context, skip, limit int) ([]edgeauth.Principal, error)
	UpdateRole(ctx context.Context, principalID string, role edgeauth.Role) (*edgeauth.Principal, error)
}

var _ Service = (*edgeauth.Engine)(nil)

type Handler struct {
	svc     Service
	metrics http.Handler
}

// New returns the authority handler. metrics may be nil, in which case
// GET /metrics answers 404.
func New(svc Service, metrics http.Handler) *Handler {
	return &Handler{svc: svc, metrics: metrics}
}

// Routes builds the full authority router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Logging)
	r.Use(middleware.Recover)
	r.Use(middleware.ClientIP)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		presenter.Error(w, r, edgeauth.ErrNotFound)
	})

	r.Get("/", h.root)
	r.Get("/health", h.health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", h.token)
		r.Post("/register", h.register)
		r.Post("/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(guard.RequireAuthority(h.svc))
			r.Get("/users/me", h.me)

			r.Group(func(r chi.Router) {
				r.Use(guard.RequireRole(edgeauth.RoleManager, edgeauth.RoleAdmin))
				r.Get("/users", h.listUsers)
				r.Put("/users/{id}/role", h.updateRole)
			})
		})
	})
	return r
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, map[string]string{
		"message": "Authentication Service",
		"version": buildinfo.Version,
	}, http.StatusOK)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, map[string]string{"status": "healthy"}, http.StatusOK)
}

// token is the OAuth2 password-grant style login: form fields username and
// password.
func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		presenter.Error(w, r, errors.Join(edgeauth.ErrInvalidInput, err))
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		presenter.Error(w, r, edgeauth.ErrInvalidInput)
		return
	}

	issued, err := h.svc.Issue(r.Context(), username, password)
	if err != nil {
		presenter.Error(w, r, err)
		return
	}
	presenter.JSON(w, r, tokenResponse{AccessToken: issued.AccessToken, TokenType: "bearer"}, http.StatusOK)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in edgeauth.NewPrincipal
	if err := presenter.Decode(r, &in); err != nil {
		presenter.Error(w, r, err)
		return
	}

	p, err := h.svc.Register(r.Context(), in)
	if err != nil {
		presenter.Error(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("principal_id", p.ID).Msg("principal.registered")
	presenter.JSON(w, r, p, http.StatusOK)
}

// logout revokes the presented token. Revoking an already revoked session
// succeeds; an unknown token is 401.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, err := bearer.ParseHeader(r.Header.Get("Authorization"))
	if err != nil {
		presenter.Error(w, r, err)
		return
	}
	if _, _, err := h.svc.Revoke(r.Context(), token); err != nil {
		presenter.Error(w, r, err)
		return
	}
	presenter.JSON(w, r, map[string]string{"message": "Successfully logged out"}, http.StatusOK)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := guard.PrincipalFromContext(r.Context())
	presenter.JSON(w, r, p, http.StatusOK)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	skip, err := intQuery(r, "skip", 0)
	if err != nil {
		presenter.Error(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", 100)
	if err != nil {
		presenter.Error(w, r, err)
		return
	}

	list, err := h.svc.ListPrincipals(r.Context(), skip, limit)
	if err != nil {
		presenter.Error(w, r, err)
		return
	}
	if list == nil {
		list = []edgeauth.Principal{}
	}
	presenter.JSON(w, r, list, http.StatusOK)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	role, err := edgeauth.ParseRole(strings.TrimSpace(r.URL.Query().Get("new_role")))
	if err != nil {
		presenter.Error(w, r, err)
		return
	}

	p, err := h.svc.UpdateRole(r.Context(), id, role)
	if err != nil {
		presenter.Error(w, r, err)
		return
	}

	actor, _ := guard.PrincipalFromContext(r.Context())
	logging.Ctx(r.Context()).Info().
		Str("principal_id", p.ID).
		Str("role", string(p.Role)).
		Str("actor", actor.Username).
		Msg("principal.role_updated")
	presenter.JSON(w, r, p, http.StatusOK)
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Join(edgeauth.ErrInvalidInput, err)
	}
	return n, nil
}
