package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/repositories"
)

// Feature names reported on the readiness endpoint.
const (
	FeatureRefunds  = "refunds"
	FeatureShipping = "shipping"
	FeatureEvents   = "events"
	FeatureReceipts = "receipts"
)

// SystemServiceDeps wires the readiness service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	Features         map[string]bool
}

type systemService struct {
	health   repositories.HealthRepository
	now      func() time.Time
	build    BuildInfo
	features map[string]bool
}

var _ SystemService = (*systemService)(nil)

func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = now()
	}
	build.StartedAt = build.StartedAt.UTC()
	return &systemService{
		health:   deps.HealthRepository,
		now:      func() time.Time { return now().UTC() },
		build:    build,
		features: maps.Clone(deps.Features),
	}, nil
}

// Readiness probes every dependency. The report is ok only when all probes pass; a failed
// non-critical dependency degrades it and a failed critical one makes it an error.
func (s *systemService) Readiness(ctx context.Context) (ReadinessReport, error) {
	probes, err := s.health.Probe(ctx)
	if err != nil {
		return ReadinessReport{}, fmt.Errorf("probe dependencies: %w", err)
	}

	generatedAt := s.now()
	report := ReadinessReport{
		Status:       domain.HealthOK,
		Build:        s.build,
		Uptime:       generatedAt.Sub(s.build.StartedAt),
		GeneratedAt:  generatedAt,
		Dependencies: probes,
		Features:     maps.Clone(s.features),
	}
	if report.Features == nil {
		report.Features = map[string]bool{}
	}
	for _, probe := range probes {
		report.Status = report.Status.Worse(probe.Status)
	}
	return report, nil
}
