package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/repositories"
)

const (
	returnIDPrefix   = "ret_"
	shipmentIDPrefix = "csh_"
	eventIDPrefix    = "evt_"

	tracerName = "github.com/hanko-field/returns/internal/services"

	resultSuccess = "success"
	resultFailure = "failure"
)

const (
	returnEventCreated          = "return.created"
	returnEventRefundCompleted  = "return.refund.completed"
	returnEventRefundFailed     = "return.refund.failed"
	returnEventShipmentSubmit   = "return.shipment.submitted"
	returnEventShipmentPaid     = "return.shipment.paid"
	returnEventReplacementAdded = "return.replacement.recorded"
)

// transitionEventTypes maps lifecycle events to the published event type.
var transitionEventTypes = map[ReturnEvent]string{
	ReturnEventApprove:  "return.approved",
	ReturnEventReject:   "return.rejected",
	ReturnEventShip:     "return.in_transit",
	ReturnEventReceive:  "return.received",
	ReturnEventInspect:  "return.inspecting",
	ReturnEventComplete: "return.completed",
	ReturnEventCancel:   "return.cancelled",
}

// sagaRuntime bundles the cross-cutting collaborators every returns service shares.
type sagaRuntime struct {
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
	events  ReturnEventPublisher
	metrics SagaMetrics
	tracer  trace.Tracer
}

func newSagaRuntime(clock func() time.Time, idGen func() string, logger func(context.Context, string, map[string]any), events ReturnEventPublisher, metrics SagaMetrics) sagaRuntime {
	if clock == nil {
		clock = time.Now
	}
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	if metrics == nil {
		metrics = noopSagaMetrics{}
	}
	return sagaRuntime{
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		logger:  logger,
		events:  events,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

func (r sagaRuntime) now() time.Time {
	return r.clock()
}

func (r sagaRuntime) startSpan(ctx context.Context, name, returnID string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("returns.return_id", returnID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (r sagaRuntime) publish(ctx context.Context, eventType string, ret domain.ReturnRequest, actorID string, data map[string]any) {
	if r.events == nil {
		return
	}
	event := ReturnLifecycleEvent{
		ID:         eventIDPrefix + r.newID(),
		Type:       eventType,
		ReturnID:   ret.ID,
		OrderID:    ret.OrderID,
		Status:     string(ret.Status),
		ActorID:    actorID,
		OccurredAt: r.now(),
	}
	if data != nil {
		event.Data = maps.Clone(data)
	}
	if err := r.events.PublishReturnEvent(ctx, event); err != nil {
		r.logger(ctx, "returns.event.publish.failed", map[string]any{
			"type":     eventType,
			"returnID": ret.ID,
			"status":   string(ret.Status),
			"error":    err.Error(),
		})
	}
}

func resultLabel(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}

// mapReturnRepoError translates repository failures into service sentinels.
func mapReturnRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrReturnNotFound, repoErr.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrReturnVersionConflict, repoErr.Error())
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrReturnUnavailable, repoErr.Error())
		}
	}
	return err
}

func mapOrderReadError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrReturnOrderNotFound, repoErr.Error())
	}
	return err
}

// checkExpectedVersion rejects callers that read an older version than the one stored.
func checkExpectedVersion(ret domain.ReturnRequest, expected *int64) error {
	if expected == nil || *expected == ret.Version {
		return nil
	}
	return fmt.Errorf("%w: return %s is at version %d, caller read %d", ErrReturnVersionConflict, ret.ID, ret.Version, *expected)
}

type noopSagaMetrics struct{}

func (noopSagaMetrics) ObserveTransition(string, string)  {}
func (noopSagaMetrics) ObserveCarrierCall(string, string) {}
func (noopSagaMetrics) ObserveRefund(string)              {}
func (noopSagaMetrics) ObservePointsAdjustment(string)    {}
