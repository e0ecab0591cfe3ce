package handlers

import (
	"net/http"
	"time"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/services"
)

// HealthHandlers serves /healthz and /readyz.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	now    func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService sets the readiness source. Without one /readyz only reflects liveness.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) { h.system = svc }
}

func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = info }
}

func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

type buildPayload struct {
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commit_sha,omitempty"`
	Environment string `json:"environment,omitempty"`
	StartedAt   string `json:"started_at"`
}

type dependencyPayload struct {
	Name      string  `json:"name"`
	Critical  bool    `json:"critical"`
	Status    string  `json:"status"`
	Detail    string  `json:"detail,omitempty"`
	Error     string  `json:"error,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
	CheckedAt string  `json:"checked_at,omitempty"`
}

type probePayload struct {
	Status       string              `json:"status"`
	Build        buildPayload        `json:"build"`
	Uptime       string              `json:"uptime"`
	GeneratedAt  string              `json:"generated_at"`
	Dependencies []dependencyPayload `json:"dependencies,omitempty"`
	Features     map[string]bool     `json:"features,omitempty"`
	Error        string              `json:"error,omitempty"`
}

func newBuildPayload(info services.BuildInfo) buildPayload {
	return buildPayload{
		Version:     info.Version,
		CommitSHA:   info.CommitSHA,
		Environment: info.Environment,
		StartedAt:   info.StartedAt.UTC().Format(time.RFC3339),
	}
}

// Healthz answers 200 whenever the process is serving; it never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.now().UTC()
	writeJSONResponse(w, http.StatusOK, probePayload{
		Status:      string(domain.HealthOK),
		Build:       newBuildPayload(h.build),
		Uptime:      now.Sub(h.build.StartedAt).Truncate(time.Second).String(),
		GeneratedAt: now.Format(time.RFC3339),
	})
}

// Readyz answers 200 only when every dependency is ok, otherwise 503 with the report.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.Readiness(r.Context())
	if err != nil {
		now := h.now().UTC()
		writeJSONResponse(w, http.StatusServiceUnavailable, probePayload{
			Status:      string(domain.HealthError),
			Build:       newBuildPayload(h.build),
			Uptime:      now.Sub(h.build.StartedAt).Truncate(time.Second).String(),
			GeneratedAt: now.Format(time.RFC3339),
			Error:       err.Error(),
		})
		return
	}

	payload := probePayload{
		Status:       string(report.Status),
		Build:        newBuildPayload(report.Build),
		Uptime:       report.Uptime.Truncate(time.Second).String(),
		GeneratedAt:  report.GeneratedAt.UTC().Format(time.RFC3339),
		Dependencies: make([]dependencyPayload, 0, len(report.Dependencies)),
		Features:     report.Features,
	}
	for _, dep := range report.Dependencies {
		entry := dependencyPayload{
			Name:      dep.Name,
			Critical:  dep.Critical,
			Status:    string(dep.Status),
			Detail:    dep.Detail,
			Error:     dep.Error,
			LatencyMS: float64(dep.Latency.Microseconds()) / 1000,
		}
		if !dep.CheckedAt.IsZero() {
			entry.CheckedAt = dep.CheckedAt.UTC().Format(time.RFC3339Nano)
		}
		payload.Dependencies = append(payload.Dependencies, entry)
	}

	status := http.StatusOK
	if report.Status != domain.HealthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
