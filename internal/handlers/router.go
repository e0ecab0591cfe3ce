package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/returns/internal/platform/httpx"
)

const (
	apiPrefix             = "/api/v1"
	defaultRequestTimeout = 60 * time.Second
)

// RouteRegistrar mounts a handler group onto its sub-router.
type RouteRegistrar func(r chi.Router)

type routeGroup struct {
	prefix  string
	feature string
	routes  RouteRegistrar
}

type routerConfig struct {
	timeout        time.Duration
	middlewares    []func(http.Handler) http.Handler
	apiMiddlewares []func(http.Handler) http.Handler
	health         *HealthHandlers
	metrics        http.Handler
	groups         []routeGroup
}

// Option configures NewRouter.
type Option func(*routerConfig)

func (cfg *routerConfig) setRoutes(prefix string, reg RouteRegistrar) {
	for i := range cfg.groups {
		if cfg.groups[i].prefix == prefix {
			cfg.groups[i].routes = reg
			return
		}
	}
}

// NewRouter builds the HTTP surface: /healthz, /readyz and /metrics at the root, and the return
// and shipping groups under /api/v1. A group whose service is not configured answers 503.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		timeout: defaultRequestTimeout,
		groups: []routeGroup{
			{prefix: "/returns", feature: "returns"},
			{prefix: "/return-requests", feature: "shipping"},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(cfg.timeout))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed",
			fmt.Sprintf("%s is not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(apiPrefix, func(api chi.Router) {
		for _, mw := range cfg.apiMiddlewares {
			if mw != nil {
				api.Use(mw)
			}
		}
		for _, group := range cfg.groups {
			if group.routes != nil {
				api.Route(group.prefix, group.routes)
				continue
			}
			api.Mount(group.prefix, featureDisabled(group.feature))
		}
	})
	return r
}

func featureDisabled(feature string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w,
			httpx.NewError("feature_disabled", feature+" is not configured on this deployment", http.StatusServiceUnavailable).
				WithDetails(map[string]any{"feature": feature}))
	})
}

// WithMiddlewares appends middleware applied to every route.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// WithAPIMiddlewares appends middleware applied only under /api/v1.
func WithAPIMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.apiMiddlewares = append(cfg.apiMiddlewares, mw...) }
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) { cfg.metrics = h }
}

// WithReturnRoutes mounts the return lifecycle handlers at /api/v1/returns.
func WithReturnRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.setRoutes("/returns", reg) }
}

// WithShippingRoutes mounts the carrier shipment handlers at /api/v1/return-requests.
func WithShippingRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.setRoutes("/return-requests", reg) }
}
