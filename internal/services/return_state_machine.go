package services

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/returns/internal/domain"
)

// ReturnEvent names a lifecycle transition request.
type ReturnEvent string

const (
	ReturnEventApprove  ReturnEvent = "approve"
	ReturnEventReject   ReturnEvent = "reject"
	ReturnEventShip     ReturnEvent = "ship"
	ReturnEventReceive  ReturnEvent = "receive"
	ReturnEventInspect  ReturnEvent = "inspect"
	ReturnEventComplete ReturnEvent = "complete"
	ReturnEventCancel   ReturnEvent = "cancel"
)

// ReturnEvents lists every lifecycle event.
func ReturnEvents() []ReturnEvent {
	return []ReturnEvent{
		ReturnEventApprove,
		ReturnEventReject,
		ReturnEventShip,
		ReturnEventReceive,
		ReturnEventInspect,
		ReturnEventComplete,
		ReturnEventCancel,
	}
}

type transitionKey struct {
	from  domain.ReturnStatus
	event ReturnEvent
}

// returnTransitions is the only definition of legal lifecycle edges.
var returnTransitions = map[transitionKey]domain.ReturnStatus{
	{domain.ReturnStatusRequested, ReturnEventApprove}:   domain.ReturnStatusApproved,
	{domain.ReturnStatusRequested, ReturnEventReject}:    domain.ReturnStatusRejected,
	{domain.ReturnStatusApproved, ReturnEventShip}:       domain.ReturnStatusInTransit,
	{domain.ReturnStatusInTransit, ReturnEventReceive}:   domain.ReturnStatusReceived,
	{domain.ReturnStatusReceived, ReturnEventInspect}:    domain.ReturnStatusInspecting,
	{domain.ReturnStatusReceived, ReturnEventComplete}:   domain.ReturnStatusCompleted,
	{domain.ReturnStatusInspecting, ReturnEventComplete}: domain.ReturnStatusCompleted,
	{domain.ReturnStatusRequested, ReturnEventCancel}:    domain.ReturnStatusCancelled,
	{domain.ReturnStatusApproved, ReturnEventCancel}:     domain.ReturnStatusCancelled,
}

// NextReturnStatus looks up the target status for an event without mutating anything.
func NextReturnStatus(from domain.ReturnStatus, event ReturnEvent) (domain.ReturnStatus, bool) {
	next, ok := returnTransitions[transitionKey{from: from, event: event}]
	return next, ok
}

// TransitionInput carries the event-specific payload.
type TransitionInput struct {
	Event          ReturnEvent
	AdminNotes     string
	Reason         string
	Courier        string
	TrackingNumber string
	At             time.Time
}

// Apply evaluates the event against the return's current status and returns the transitioned copy.
// The input return is never modified; on error the caller's value is still the authoritative state.
func Apply(ret domain.ReturnRequest, input TransitionInput) (domain.ReturnRequest, error) {
	next, ok := NextReturnStatus(ret.Status, input.Event)
	if !ok {
		return ret, &InvalidTransitionError{From: ret.Status, Event: input.Event}
	}

	switch input.Event {
	case ReturnEventReject:
		if strings.TrimSpace(input.Reason) == "" {
			return ret, fmt.Errorf("%w: rejection reason is required", ErrReturnInvalidInput)
		}
	case ReturnEventShip:
		if strings.TrimSpace(input.Courier) == "" || strings.TrimSpace(input.TrackingNumber) == "" {
			return ret, fmt.Errorf("%w: courier and tracking number are required", ErrReturnInvalidInput)
		}
	}

	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	out := ret.Clone()
	out.Status = next
	out.UpdatedAt = at

	switch input.Event {
	case ReturnEventApprove:
		out.ApprovedAt = &at
		out.AdminNotes = mergeNotes(out.AdminNotes, input.AdminNotes)
	case ReturnEventReject:
		out.RejectedAt = &at
		out.RejectionReason = strings.TrimSpace(input.Reason)
	case ReturnEventShip:
		out.InTransitAt = &at
		out.ReturnCourier = strings.TrimSpace(input.Courier)
		out.ReturnTrackingNumber = strings.TrimSpace(input.TrackingNumber)
	case ReturnEventReceive:
		out.ReceivedAt = &at
	case ReturnEventInspect:
		out.InspectingAt = &at
	case ReturnEventComplete:
		out.CompletedAt = &at
		out.AdminNotes = mergeNotes(out.AdminNotes, input.AdminNotes)
	case ReturnEventCancel:
		out.CancelledAt = &at
		if reason := strings.TrimSpace(input.Reason); reason != "" {
			out.AdminNotes = mergeNotes(out.AdminNotes, "Cancelled: "+reason)
		}
	}
	return out, nil
}

// mergeNotes appends a new note on its own line, keeping earlier notes intact.
func mergeNotes(existing, addition string) string {
	existing = strings.TrimSpace(existing)
	addition = strings.TrimSpace(addition)
	switch {
	case addition == "":
		return existing
	case existing == "":
		return addition
	default:
		return existing + "\n" + addition
	}
}
