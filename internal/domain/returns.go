package domain

import (
	"time"
)

// ReturnStatus is the canonical lifecycle state of a return request.
type ReturnStatus string

const (
	ReturnStatusRequested  ReturnStatus = "requested"
	ReturnStatusApproved   ReturnStatus = "approved"
	ReturnStatusRejected   ReturnStatus = "rejected"
	ReturnStatusInTransit  ReturnStatus = "in_transit"
	ReturnStatusReceived   ReturnStatus = "received"
	ReturnStatusInspecting ReturnStatus = "inspecting"
	ReturnStatusCompleted  ReturnStatus = "completed"
	ReturnStatusCancelled  ReturnStatus = "cancelled"
)

// ReturnStatuses lists every status in lifecycle order.
func ReturnStatuses() []ReturnStatus {
	return []ReturnStatus{
		ReturnStatusRequested,
		ReturnStatusApproved,
		ReturnStatusRejected,
		ReturnStatusInTransit,
		ReturnStatusReceived,
		ReturnStatusInspecting,
		ReturnStatusCompleted,
		ReturnStatusCancelled,
	}
}

// Valid reports whether the status is a known lifecycle state.
func (s ReturnStatus) Valid() bool {
	for _, candidate := range ReturnStatuses() {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s ReturnStatus) IsTerminal() bool {
	switch s {
	case ReturnStatusRejected, ReturnStatusCompleted, ReturnStatusCancelled:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the return still blocks a new return for the same order.
func (s ReturnStatus) IsOpen() bool {
	switch s {
	case ReturnStatusRequested, ReturnStatusApproved, ReturnStatusInTransit, ReturnStatusReceived, ReturnStatusInspecting:
		return true
	default:
		return false
	}
}

// ReturnType selects how a return is resolved.
type ReturnType string

const (
	ReturnTypeRefund      ReturnType = "refund"
	ReturnTypeReplacement ReturnType = "replacement"
)

// Valid reports whether the return type is supported.
func (t ReturnType) Valid() bool {
	return t == ReturnTypeRefund || t == ReturnTypeReplacement
}

// ReturnReason is the closed set of reasons a customer may give.
type ReturnReason string

const (
	ReturnReasonDefective      ReturnReason = "defective"
	ReturnReasonWrongItem      ReturnReason = "wrong_item"
	ReturnReasonNotAsDescribed ReturnReason = "not_as_described"
	ReturnReasonChangedMind    ReturnReason = "changed_mind"
	ReturnReasonOther          ReturnReason = "other"
)

// Valid reports whether the reason belongs to the closed enumeration.
func (r ReturnReason) Valid() bool {
	switch r {
	case ReturnReasonDefective, ReturnReasonWrongItem, ReturnReasonNotAsDescribed, ReturnReasonChangedMind, ReturnReasonOther:
		return true
	default:
		return false
	}
}

// RefundStatus tracks the refund sub-workflow. The zero value means no refund was attempted.
type RefundStatus string

const (
	RefundStatusNone       RefundStatus = ""
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
)

// ReturnItem is the immutable snapshot of a returned line item.
type ReturnItem struct {
	ItemID      string
	VariantID   string
	ProductName string
	Quantity    int
	UnitPrice   int64
}

// DiscountSnapshot captures the original order's pricing adjustments for audit.
type DiscountSnapshot struct {
	OriginalOrderTotal int64
	CouponCode         string
	CouponDiscount     int64
	PointsRedeemed     int64
	PointsDiscount     int64
	PWPDiscount        int64
}

// ReturnRequest is the aggregate root of the returns lifecycle.
type ReturnRequest struct {
	ID            string
	OrderID       string
	CustomerID    string
	Status        ReturnStatus
	ReturnType    ReturnType
	Reason        ReturnReason
	ReasonDetails string
	Items         []ReturnItem
	Currency      string

	RefundAmount   int64
	ShippingRefund int64
	TotalRefund    int64

	Discounts DiscountSnapshot

	ReturnTrackingNumber string
	ReturnCourier        string

	RequestedAt  time.Time
	ApprovedAt   *time.Time
	RejectedAt   *time.Time
	InTransitAt  *time.Time
	ReceivedAt   *time.Time
	InspectingAt *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time

	RefundStatus    RefundStatus
	RefundReference string
	RefundedAt      *time.Time

	ReplacementOrderID   string
	ReplacementCreatedAt *time.Time

	AdminNotes      string
	RejectionReason string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefundDue is the amount owed to the customer, derived from its components rather than TotalRefund.
func (r ReturnRequest) RefundDue() int64 {
	return r.RefundAmount + r.ShippingRefund
}

// Clone returns a deep copy so callers can mutate without aliasing slices or timestamps.
func (r ReturnRequest) Clone() ReturnRequest {
	out := r
	if r.Items != nil {
		out.Items = make([]ReturnItem, len(r.Items))
		copy(out.Items, r.Items)
	}
	out.ApprovedAt = cloneTime(r.ApprovedAt)
	out.RejectedAt = cloneTime(r.RejectedAt)
	out.InTransitAt = cloneTime(r.InTransitAt)
	out.ReceivedAt = cloneTime(r.ReceivedAt)
	out.InspectingAt = cloneTime(r.InspectingAt)
	out.CompletedAt = cloneTime(r.CompletedAt)
	out.CancelledAt = cloneTime(r.CancelledAt)
	out.RefundedAt = cloneTime(r.RefundedAt)
	out.ReplacementCreatedAt = cloneTime(r.ReplacementCreatedAt)
	return out
}

// PointsAdjustment reports the outcome of the loyalty ledger correction for a refunded return.
type PointsAdjustment struct {
	PointsDeducted int64
	PointsRestored int64
	NewBalance     int64
}

func cloneTime(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	value := *ts
	return &value
}
