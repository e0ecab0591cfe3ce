package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/returns/internal/domain"
)

func transitionInputFor(event ReturnEvent, at time.Time) TransitionInput {
	return TransitionInput{
		Event:          event,
		Reason:         "duplicate order",
		Courier:        "DHL",
		TrackingNumber: "T1",
		AdminNotes:     "checked",
		At:             at,
	}
}

func TestApplyOnlyLegalEdgesSucceed(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	legal := map[domain.ReturnStatus]map[ReturnEvent]domain.ReturnStatus{
		domain.ReturnStatusRequested: {
			ReturnEventApprove: domain.ReturnStatusApproved,
			ReturnEventReject:  domain.ReturnStatusRejected,
			ReturnEventCancel:  domain.ReturnStatusCancelled,
		},
		domain.ReturnStatusApproved: {
			ReturnEventShip:   domain.ReturnStatusInTransit,
			ReturnEventCancel: domain.ReturnStatusCancelled,
		},
		domain.ReturnStatusInTransit:  {ReturnEventReceive: domain.ReturnStatusReceived},
		domain.ReturnStatusReceived:   {ReturnEventInspect: domain.ReturnStatusInspecting, ReturnEventComplete: domain.ReturnStatusCompleted},
		domain.ReturnStatusInspecting: {ReturnEventComplete: domain.ReturnStatusCompleted},
	}

	successes := 0
	for _, from := range domain.ReturnStatuses() {
		for _, event := range ReturnEvents() {
			ret := domain.ReturnRequest{
				ID:             "ret_1",
				Status:         from,
				RefundAmount:   8000,
				ShippingRefund: 500,
				TotalRefund:    8500,
			}
			next, err := Apply(ret, transitionInputFor(event, at))

			want, ok := legal[from][event]
			if !ok {
				var transitionErr *InvalidTransitionError
				require.ErrorAs(t, err, &transitionErr, "%s --%s-->", from, event)
				assert.True(t, errors.Is(err, ErrReturnInvalidTransition))
				assert.Equal(t, from, transitionErr.From)
				assert.Equal(t, event, transitionErr.Event)
				assert.Equal(t, ret, next, "failed transition must not mutate")
				continue
			}

			successes++
			require.NoError(t, err, "%s --%s-->", from, event)
			assert.Equal(t, want, next.Status)
			assert.Equal(t, int64(8500), next.TotalRefund)
			assert.Equal(t, next.RefundAmount+next.ShippingRefund, next.TotalRefund)
			assert.Equal(t, from, ret.Status, "input must not be mutated")
		}
	}
	assert.Equal(t, 9, successes)
	assert.Len(t, returnTransitions, 9)
}

func TestApplySetsEventTimestamps(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		from  domain.ReturnStatus
		event ReturnEvent
		field func(domain.ReturnRequest) *time.Time
	}{
		{domain.ReturnStatusRequested, ReturnEventApprove, func(r domain.ReturnRequest) *time.Time { return r.ApprovedAt }},
		{domain.ReturnStatusRequested, ReturnEventReject, func(r domain.ReturnRequest) *time.Time { return r.RejectedAt }},
		{domain.ReturnStatusApproved, ReturnEventShip, func(r domain.ReturnRequest) *time.Time { return r.InTransitAt }},
		{domain.ReturnStatusInTransit, ReturnEventReceive, func(r domain.ReturnRequest) *time.Time { return r.ReceivedAt }},
		{domain.ReturnStatusReceived, ReturnEventInspect, func(r domain.ReturnRequest) *time.Time { return r.InspectingAt }},
		{domain.ReturnStatusInspecting, ReturnEventComplete, func(r domain.ReturnRequest) *time.Time { return r.CompletedAt }},
		{domain.ReturnStatusApproved, ReturnEventCancel, func(r domain.ReturnRequest) *time.Time { return r.CancelledAt }},
	}
	for _, tc := range cases {
		t.Run(string(tc.event), func(t *testing.T) {
			next, err := Apply(domain.ReturnRequest{Status: tc.from}, transitionInputFor(tc.event, at))
			require.NoError(t, err)
			ts := tc.field(next)
			require.NotNil(t, ts)
			assert.True(t, ts.Equal(at))
			assert.True(t, next.UpdatedAt.Equal(at))
		})
	}
}

func TestApplyGuardsRequirePayload(t *testing.T) {
	_, err := Apply(domain.ReturnRequest{Status: domain.ReturnStatusRequested}, TransitionInput{Event: ReturnEventReject, Reason: "  "})
	require.ErrorIs(t, err, ErrReturnInvalidInput)

	_, err = Apply(domain.ReturnRequest{Status: domain.ReturnStatusApproved}, TransitionInput{Event: ReturnEventShip, Courier: "DHL"})
	require.ErrorIs(t, err, ErrReturnInvalidInput)

	_, err = Apply(domain.ReturnRequest{Status: domain.ReturnStatusApproved}, TransitionInput{Event: ReturnEventShip, TrackingNumber: "T1"})
	require.ErrorIs(t, err, ErrReturnInvalidInput)
}

func TestApplyRecordsCarrierAndNotes(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	ret := domain.ReturnRequest{Status: domain.ReturnStatusRequested, AdminNotes: "customer called"}

	approved, err := Apply(ret, TransitionInput{Event: ReturnEventApprove, AdminNotes: "ok to return", At: at})
	require.NoError(t, err)
	assert.Equal(t, "customer called\nok to return", approved.AdminNotes)

	shipped, err := Apply(approved, TransitionInput{Event: ReturnEventShip, Courier: " DHL ", TrackingNumber: "T1", At: at})
	require.NoError(t, err)
	assert.Equal(t, "DHL", shipped.ReturnCourier)
	assert.Equal(t, "T1", shipped.ReturnTrackingNumber)

	cancelled, err := Apply(approved, TransitionInput{Event: ReturnEventCancel, Reason: "customer kept item", At: at})
	require.NoError(t, err)
	assert.Equal(t, "customer called\nok to return\nCancelled: customer kept item", cancelled.AdminNotes)

	rejected, err := Apply(ret, TransitionInput{Event: ReturnEventReject, Reason: "duplicate order", At: at})
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusRejected, rejected.Status)
	assert.Equal(t, "duplicate order", rejected.RejectionReason)
	require.NotNil(t, rejected.RejectedAt)

	_, err = Apply(rejected, TransitionInput{Event: ReturnEventApprove, At: at})
	require.ErrorIs(t, err, ErrReturnInvalidTransition)
}
