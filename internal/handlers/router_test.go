package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/services"
)

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestRouterProbes(t *testing.T) {
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(
		WithHealthSystemService(readinessOf(services.ReadinessReport{Status: domain.HealthOK})),
	)))

	rr := serve(router, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/readyz").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/metrics").Code)
}

func TestRouterUnconfiguredGroupsAreDisabled(t *testing.T) {
	router := NewRouter()

	for path, feature := range map[string]string{
		"/api/v1/returns":                               "returns",
		"/api/v1/returns/ret_1/transitions":             "returns",
		"/api/v1/return-requests/ret_1/shipping/status": "shipping",
	} {
		rr := serve(router, http.MethodGet, path)
		require.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
		body := errorBody(t, rr)
		assert.Equal(t, "feature_disabled", body["error"], path)
		assert.Equal(t, feature, body["feature"], path)
	}
}

func TestRouterMountsRegistrarsAndMetrics(t *testing.T) {
	registrar := func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("returns_refunds_total 0\n"))
	})
	router := NewRouter(WithReturnRoutes(registrar), WithShippingRoutes(registrar), WithMetricsHandler(metrics))

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/api/v1/returns").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/api/v1/return-requests").Code)

	rr := serve(router, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "returns_refunds_total 0\n", rr.Body.String())
}

func TestRouterNotFoundAndMethodNotAllowed(t *testing.T) {
	router := NewRouter()

	rr := serve(router, http.MethodGet, "/does/not/exist")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "route_not_found", errorBody(t, rr)["error"])

	rr = serve(router, http.MethodPost, "/healthz")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "method_not_allowed", errorBody(t, rr)["error"])
}

func TestRouterAPIMiddlewareScope(t *testing.T) {
	tag := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Scope", "api")
			next.ServeHTTP(w, r)
		})
	}
	router := NewRouter(WithAPIMiddlewares(tag))

	assert.Equal(t, "api", serve(router, http.MethodGet, "/api/v1/return-requests/ret_1/shipping/status").Header().Get("X-Scope"))
	assert.Empty(t, serve(router, http.MethodGet, "/healthz").Header().Get("X-Scope"))
}
