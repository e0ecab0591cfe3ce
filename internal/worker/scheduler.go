package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/hanko-field/returns/internal/platform/idempotency"
	"github.com/hanko-field/returns/internal/platform/observability"
	"github.com/hanko-field/returns/internal/services"
)

const (
	handoffJobName        = "returns_carrier_handoff_recovery"
	sweepJobName          = "returns_idempotency_sweep"
	defaultHandoffTimeout = 2 * time.Minute
	defaultSweepTimeout   = time.Minute
)

// Scheduler runs the background sweeps of the returns saga.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
	jobs      []gocron.Job
}

// NewScheduler constructs a scheduler that logs through the supplied zap logger.
func NewScheduler(logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := gocron.NewScheduler(
		gocron.WithLogger(observability.NewKeyValueAdapter(logger.Named("gocron"))),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("worker: create scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// RegisterHandoffRecovery replays paid shipments whose in_transit transition was not recorded.
// Overlapping runs are rescheduled rather than queued.
func (s *Scheduler) RegisterHandoffRecovery(shipments services.CarrierShipmentService, interval time.Duration, batchSize int) error {
	if shipments == nil {
		return errors.New("worker: carrier shipment service is required")
	}
	if interval <= 0 {
		return errors.New("worker: handoff interval must be positive")
	}
	job := &HandoffRecoveryJob{
		Shipments: shipments,
		BatchSize: batchSize,
		Timeout:   defaultHandoffTimeout,
		Logger:    s.logger.Named("handoff"),
	}
	return s.register(handoffJobName, interval, job.Execute)
}

// RegisterIdempotencySweep purges expired idempotency records. Stores that expire entries on
// their own (Redis) report zero removals.
func (s *Scheduler) RegisterIdempotencySweep(store idempotency.Store, interval time.Duration, batchSize int) error {
	if store == nil {
		return errors.New("worker: idempotency store is required")
	}
	if interval <= 0 {
		return errors.New("worker: sweep interval must be positive")
	}
	job := &IdempotencySweepJob{
		Store:     store,
		BatchSize: batchSize,
		Timeout:   defaultSweepTimeout,
		Logger:    s.logger.Named("idempotency"),
	}
	return s.register(sweepJobName, interval, job.Execute)
}

func (s *Scheduler) register(name string, interval time.Duration, task func(context.Context)) error {
	registered, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task, context.Background()),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("worker: register %s: %w", name, err)
	}
	s.jobs = append(s.jobs, registered)
	return nil
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info("worker scheduler started", zap.Int("jobs", len(s.jobs)))
}

// RunNow triggers every registered job immediately.
func (s *Scheduler) RunNow() error {
	var errs []error
	for _, job := range s.jobs {
		if err := job.RunNow(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Shutdown() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("worker: shutdown scheduler: %w", err)
	}
	s.logger.Info("worker scheduler stopped")
	return nil
}

// HandoffRecoveryJob is one sweep over shipments flagged handoffPending.
type HandoffRecoveryJob struct {
	Shipments services.CarrierShipmentService
	BatchSize int
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Execute runs a sweep and logs its report. Errors are logged, never returned, so the next tick
// retries.
func (j *HandoffRecoveryJob) Execute(ctx context.Context) {
	logger := j.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	report, err := j.Shipments.RecoverHandoffs(ctx, j.BatchSize)
	if err != nil {
		logger.Error("handoff recovery failed", zap.Error(err))
		return
	}
	if report.Scanned == 0 {
		logger.Debug("handoff recovery found nothing to do")
		return
	}
	fields := []zap.Field{
		zap.Int("scanned", report.Scanned),
		zap.Int("recovered", report.Recovered),
		zap.Int("cleared", report.Cleared),
		zap.Int("failed", report.Failed),
	}
	if report.Failed > 0 {
		logger.Warn("handoff recovery finished with failures", fields...)
		return
	}
	logger.Info("handoff recovery finished", fields...)
}

// IdempotencySweepJob is one purge of expired idempotency records.
type IdempotencySweepJob struct {
	Store     idempotency.Store
	BatchSize int
	Timeout   time.Duration
	Logger    *zap.Logger
	Clock     func() time.Time
}

func (j *IdempotencySweepJob) Execute(ctx context.Context) {
	logger := j.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now
	if j.Clock != nil {
		now = j.Clock
	}
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	removed, err := j.Store.Sweep(ctx, now().UTC(), j.BatchSize)
	if err != nil {
		logger.Error("idempotency sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("idempotency sweep removed expired keys", zap.Int("removed", removed))
	}
}
