package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/returns/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyCheck probes one backing service for the readiness endpoint. A failing critical
// check makes the report an error; a failing non-critical check only degrades it.
type DependencyCheck struct {
	Name     string
	Timeout  time.Duration
	Critical bool
	Check    func(context.Context) error
}

// Pinger is implemented by every store the returns service depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck builds a DependencyCheck around a store's Ping method.
func PingCheck(name string, pinger Pinger, critical bool) DependencyCheck {
	return DependencyCheck{Name: name, Critical: critical, Check: pinger.Ping}
}

// DependencyHealthOption customises NewDependencyHealthRepository.
type DependencyHealthOption func(*dependencyHealth)

// WithDependencyTimeout sets the timeout for checks that do not carry their own.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(h *dependencyHealth) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// WithDependencyClock overrides the clock used for timestamps and latency.
func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(h *dependencyHealth) {
		if clock != nil {
			h.now = clock
		}
	}
}

type dependencyHealth struct {
	checks  []DependencyCheck
	timeout time.Duration
	now     func() time.Time
}

var _ HealthRepository = (*dependencyHealth)(nil)

// NewDependencyHealthRepository returns a HealthRepository that runs checks concurrently on
// every Probe.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	seen := make(map[string]bool, len(checks))
	for _, check := range checks {
		name := strings.TrimSpace(check.Name)
		switch {
		case name == "":
			return nil, errors.New("health repository: dependency check missing name")
		case check.Check == nil:
			return nil, fmt.Errorf("health repository: dependency %s missing check function", name)
		case seen[name]:
			return nil, fmt.Errorf("health repository: duplicate dependency %s", name)
		}
		seen[name] = true
	}

	h := &dependencyHealth{
		checks:  append([]DependencyCheck(nil), checks...),
		timeout: defaultProbeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

func (h *dependencyHealth) Probe(ctx context.Context) ([]domain.DependencyHealth, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]domain.DependencyHealth, len(h.checks))
	var wg sync.WaitGroup
	for i := range h.checks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.probe(ctx, h.checks[i])
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

func (h *dependencyHealth) probe(ctx context.Context, check DependencyCheck) domain.DependencyHealth {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = h.timeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := h.now()
	err := check.Check(probeCtx)
	end := h.now()
	if err == nil {
		// a probe that ignores its context may report success after the deadline
		err = probeCtx.Err()
	}

	result := domain.DependencyHealth{
		Name:      check.Name,
		Critical:  check.Critical,
		Status:    domain.HealthOK,
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	if err == nil {
		return result
	}

	result.Error = err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		result.Detail = "cancelled"
	}
	result.Status = domain.HealthDegraded
	if check.Critical {
		result.Status = domain.HealthError
	}
	return result
}
