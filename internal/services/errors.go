package services

import (
	"errors"
	"fmt"

	domain "github.com/hanko-field/returns/internal/domain"
)

var (
	// ErrReturnInvalidInput signals malformed or missing request fields.
	ErrReturnInvalidInput = errors.New("returns: invalid input")
	// ErrReturnNotFound indicates the return request does not exist.
	ErrReturnNotFound = errors.New("returns: return not found")
	// ErrReturnOrderNotFound indicates the originating order does not exist.
	ErrReturnOrderNotFound = errors.New("returns: order not found")
	// ErrReturnNotEligible indicates the order is not in a returnable fulfillment state.
	ErrReturnNotEligible = errors.New("returns: only delivered orders can be returned")
	// ErrReturnWindowExpired indicates the return window has elapsed since delivery.
	ErrReturnWindowExpired = errors.New("returns: return window expired")
	// ErrReturnDuplicatePending indicates another open return exists for the order.
	ErrReturnDuplicatePending = errors.New("returns: a pending return already exists for this order")
	// ErrReturnInvalidTransition is wrapped by InvalidTransitionError.
	ErrReturnInvalidTransition = errors.New("returns: invalid status transition")
	// ErrReturnVersionConflict indicates the caller wrote against a stale version.
	ErrReturnVersionConflict = errors.New("returns: version conflict")
	// ErrReturnUnavailable indicates the return store could not be reached.
	ErrReturnUnavailable = errors.New("returns: store unavailable")
	// ErrReplacementAlreadyRecorded indicates a replacement order was already linked to the return.
	ErrReplacementAlreadyRecorded = errors.New("returns: replacement already recorded")

	// ErrCarrierAddressMissing indicates the order has no usable pickup address.
	ErrCarrierAddressMissing = errors.New("returns: customer address missing")
	// ErrCarrierWarehouseMissing indicates the warehouse address is not configured.
	ErrCarrierWarehouseMissing = errors.New("returns: warehouse address not configured")
	// ErrCarrierInvalidPhone indicates a sender or receiver phone cannot be normalised.
	ErrCarrierInvalidPhone = errors.New("returns: invalid phone number")
	// ErrCarrierAlreadySubmitted is wrapped by AlreadySubmittedError.
	ErrCarrierAlreadySubmitted = errors.New("returns: shipment already submitted")
	// ErrCarrierNotSubmitted indicates payment was requested before the shipment was booked.
	ErrCarrierNotSubmitted = errors.New("returns: shipment not submitted")
	// ErrCarrierShipmentNotFound indicates no shipment exists for the return.
	ErrCarrierShipmentNotFound = errors.New("returns: shipment not found")
	// ErrCarrierUpstream is wrapped by CarrierError.
	ErrCarrierUpstream = errors.New("returns: carrier error")
	// ErrInsufficientCarrierCredit indicates the carrier account balance cannot cover the shipment.
	ErrInsufficientCarrierCredit = errors.New("returns: insufficient carrier credit")

	// ErrRefundNotCompleted indicates a refund was requested before the return completed.
	ErrRefundNotCompleted = errors.New("returns: return must be completed before refund")
	// ErrRefundAlreadyCompleted indicates the refund was already issued.
	ErrRefundAlreadyCompleted = errors.New("returns: refund already completed")
	// ErrRefundNotRefundType indicates a replacement return was sent to the refund workflow.
	ErrRefundNotRefundType = errors.New("returns: return type is not refund")
	// ErrRefundNoCapturedPayment indicates the order has no captured payment to reverse.
	ErrRefundNoCapturedPayment = errors.New("returns: no captured payment found")
	// ErrRefundGateway is wrapped by RefundGatewayError.
	ErrRefundGateway = errors.New("returns: refund failed")
)

// InvalidTransitionError reports an event that is not legal from the current status.
type InvalidTransitionError struct {
	From  domain.ReturnStatus
	Event ReturnEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s a return in status %s", ErrReturnInvalidTransition, e.Event, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrReturnInvalidTransition }

// AlreadySubmittedError carries the carrier order number of the existing booking.
type AlreadySubmittedError struct {
	OrderNo string
}

func (e *AlreadySubmittedError) Error() string {
	return fmt.Sprintf("%s: order %s", ErrCarrierAlreadySubmitted, e.OrderNo)
}

func (e *AlreadySubmittedError) Unwrap() error { return ErrCarrierAlreadySubmitted }

// CarrierError carries the carrier's remark verbatim.
type CarrierError struct {
	Operation string
	Remark    string
	Err       error
}

func (e *CarrierError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("%s: %s", ErrCarrierUpstream, e.Remark)
	}
	return fmt.Sprintf("%s: %s: %s", ErrCarrierUpstream, e.Operation, e.Remark)
}

// Unwrap exposes both the sentinel and the transport cause.
func (e *CarrierError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCarrierUpstream}
	}
	return []error{ErrCarrierUpstream, e.Err}
}

// RefundGatewayError carries the payment gateway's failure message.
type RefundGatewayError struct {
	Message string
	Err     error
}

func (e *RefundGatewayError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRefundGateway, e.Message)
}

func (e *RefundGatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRefundGateway}
	}
	return []error{ErrRefundGateway, e.Err}
}

// carrierRemarker is implemented by carrier client errors that carry an upstream remark.
type carrierRemarker interface {
	error
	Remark() string
}

// creditShortfall is implemented by carrier errors that can flag an account balance problem.
type creditShortfall interface {
	InsufficientCredit() bool
}

func classifyCarrierError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var shortfall creditShortfall
	if errors.As(err, &shortfall) && shortfall.InsufficientCredit() {
		return fmt.Errorf("%w: %s", ErrInsufficientCarrierCredit, err.Error())
	}
	var remarker carrierRemarker
	if errors.As(err, &remarker) {
		return &CarrierError{Operation: operation, Remark: remarker.Remark(), Err: err}
	}
	return &CarrierError{Operation: operation, Remark: err.Error(), Err: err}
}
