package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hanko-field/returns/internal/platform/httpx"
	"github.com/hanko-field/returns/internal/services"
)

type errorMapping struct {
	target error
	code   string
	status int
}

// returnErrorMappings is ordered: the first matching sentinel wins.
var returnErrorMappings = []errorMapping{
	{services.ErrReturnInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrCarrierAddressMissing, "invalid_request", http.StatusBadRequest},
	{services.ErrCarrierInvalidPhone, "invalid_request", http.StatusBadRequest},
	{services.ErrCarrierWarehouseMissing, "warehouse_not_configured", http.StatusBadRequest},

	{services.ErrReturnNotFound, "return_not_found", http.StatusNotFound},
	{services.ErrReturnOrderNotFound, "order_not_found", http.StatusNotFound},
	{services.ErrCarrierShipmentNotFound, "shipment_not_found", http.StatusNotFound},
	{services.ErrRefundNoCapturedPayment, "captured_payment_not_found", http.StatusNotFound},

	{services.ErrReturnInvalidTransition, "invalid_transition", http.StatusConflict},
	{services.ErrCarrierAlreadySubmitted, "already_submitted", http.StatusConflict},
	{services.ErrCarrierNotSubmitted, "not_submitted", http.StatusConflict},
	{services.ErrReturnDuplicatePending, "duplicate_pending", http.StatusConflict},
	{services.ErrReturnWindowExpired, "window_expired", http.StatusConflict},
	{services.ErrReturnNotEligible, "not_eligible", http.StatusConflict},
	{services.ErrRefundAlreadyCompleted, "refund_already_completed", http.StatusConflict},
	{services.ErrRefundNotCompleted, "return_not_completed", http.StatusConflict},
	{services.ErrRefundNotRefundType, "not_refund_type", http.StatusConflict},
	{services.ErrReplacementAlreadyRecorded, "replacement_already_recorded", http.StatusConflict},
	{services.ErrReturnVersionConflict, "version_conflict", http.StatusConflict},

	{services.ErrInsufficientCarrierCredit, "insufficient_carrier_credit", http.StatusPaymentRequired},
	{services.ErrCarrierUpstream, "carrier_error", http.StatusBadGateway},
	{services.ErrRefundGateway, "refund_failed", http.StatusBadGateway},

	{services.ErrReturnUnavailable, "store_unavailable", http.StatusServiceUnavailable},
}

// writeReturnError renders service errors from the return, carrier, and refund workflows.
// Messages carry the upstream text verbatim.
func writeReturnError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, mapping := range returnErrorMappings {
		if !errors.Is(err, mapping.target) {
			continue
		}
		apiErr := httpx.NewError(mapping.code, err.Error(), mapping.status)
		var submitted *services.AlreadySubmittedError
		if errors.As(err, &submitted) {
			apiErr = apiErr.WithDetails(map[string]any{"order_no": submitted.OrderNo})
		}
		var transition *services.InvalidTransitionError
		if errors.As(err, &transition) {
			apiErr = apiErr.WithDetails(map[string]any{
				"current_status": string(transition.From),
				"event":          string(transition.Event),
			})
		}
		httpx.WriteError(ctx, w, apiErr)
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process return request", http.StatusInternalServerError))
}

func wrapInvalidInput(err error) error {
	return fmt.Errorf("%w: %s", services.ErrReturnInvalidInput, err.Error())
}
