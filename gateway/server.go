package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/internal/api/middleware"
	"github.com/trackwise/edgeauth/internal/api/presenter"
	"github.com/trackwise/edgeauth/internal/buildinfo"
	guard "github.com/trackwise/edgeauth/middleware"
)

// Config configures the edge gateway.
type Config struct {
	Upstreams      Upstreams
	Timeout        time.Duration
	AllowedOrigins []string
}

// Gateway is the edge HTTP handler: CORS, public-route policy, stateless
// bearer verification and proxying.
type Gateway struct {
	routes    *RouteTable
	forwarder *Forwarder
	protected http.Handler
	handler   http.Handler
}

type routeContextKey struct{}

// New builds a Gateway. The verifier is consulted for every non-public
// proxied request and nothing else.
func New(cfg Config, verifier edgeauth.StatelessVerifier) (*Gateway, error) {
	if verifier == nil {
		return nil, errors.New("gateway: verifier is required")
	}
	routes, err := NewRouteTable(cfg.Upstreams)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		routes:    routes,
		forwarder: NewForwarder(cfg.Timeout),
	}
	g.protected = guard.RequireStateless(verifier)(http.HandlerFunc(g.forward))
	g.handler = g.router(cfg.AllowedOrigins)
	return g, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.ServeHTTP(w, r)
}

func (g *Gateway) router(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Logging)
	r.Use(middleware.Recover)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           600,
	}))
	r.Use(preflight)

	r.Get("/", g.handleRoot)
	r.Get("/health", g.handleHealth)
	r.NotFound(g.handleProxy)
	r.MethodNotAllowed(g.handleProxy)
	return r
}

// preflight answers every OPTIONS request with an empty 200 before any
// authentication or upstream call.
func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, map[string]string{
		"message": "API Gateway",
		"version": buildinfo.Version,
	}, http.StatusOK)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, map[string]string{"status": "healthy"}, http.StatusOK)
}

var proxiedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodDelete: {},
	http.MethodPatch:  {},
}

func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	route, err := g.routes.Resolve(r.URL.EscapedPath())
	if err != nil {
		presenter.Error(w, r, err)
		return
	}
	if _, ok := proxiedMethods[r.Method]; !ok {
		presenter.Code(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	r = r.WithContext(context.WithValue(r.Context(), routeContextKey{}, route))
	if route.Public {
		g.forward(w, r)
		return
	}
	g.protected.ServeHTTP(w, r)
}

func (g *Gateway) forward(w http.ResponseWriter, r *http.Request) {
	route := r.Context().Value(routeContextKey{}).(Route)
	g.forwarder.Forward(w, r, route)
}
