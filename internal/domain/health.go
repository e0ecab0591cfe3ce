package domain

import "time"

// HealthStatus grades a dependency or the service as a whole.
type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
	HealthError    HealthStatus = "error"
)

func (s HealthStatus) severity() int {
	switch s {
	case HealthOK, "":
		return 0
	case HealthDegraded:
		return 1
	default:
		return 2
	}
}

// Worse returns whichever of s and other is more severe.
func (s HealthStatus) Worse(other HealthStatus) HealthStatus {
	if other.severity() > s.severity() {
		return other
	}
	if s == "" {
		return HealthOK
	}
	return s
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// DependencyHealth is the outcome of one probe.
type DependencyHealth struct {
	Name      string
	Critical  bool
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// ReadinessReport is what /readyz renders. Features lists which optional integrations
// (refunds, shipping, event publishing) the process was started with.
type ReadinessReport struct {
	Status       HealthStatus
	Build        BuildInfo
	Uptime       time.Duration
	GeneratedAt  time.Time
	Dependencies []DependencyHealth
	Features     map[string]bool
}
