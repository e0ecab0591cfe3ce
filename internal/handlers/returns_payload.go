package handlers

import (
	"time"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/services"
)

type returnItemRequest struct {
	ItemID      string `json:"item_id" validate:"required,max=128"`
	VariantID   string `json:"variant_id" validate:"max=128"`
	ProductName string `json:"product_name" validate:"max=256"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice   *int64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
}

type createReturnRequest struct {
	OrderID        string              `json:"order_id" validate:"required,max=128"`
	ReturnType     string              `json:"return_type" validate:"required,oneof=refund replacement"`
	Reason         string              `json:"reason" validate:"required,oneof=defective wrong_item not_as_described changed_mind other"`
	ReasonDetails  string              `json:"reason_details" validate:"max=2000"`
	Items          []returnItemRequest `json:"items" validate:"required,min=1,dive"`
	RefundAmount   int64               `json:"refund_amount" validate:"gte=0"`
	ShippingRefund int64               `json:"shipping_refund" validate:"gte=0"`
	AdminNotes     string              `json:"admin_notes" validate:"max=2000"`
}

type approveReturnRequest struct {
	AdminNotes string `json:"admin_notes" validate:"max=2000"`
	Version    *int64 `json:"version,omitempty" validate:"omitempty,gt=0"`
}

type rejectReturnRequest struct {
	Reason  string `json:"reason" validate:"required,max=2000"`
	Version *int64 `json:"version,omitempty" validate:"omitempty,gt=0"`
}

type inTransitRequest struct {
	Courier        string `json:"courier" validate:"required,max=128"`
	TrackingNumber string `json:"tracking_number" validate:"required,max=128"`
	Version        *int64 `json:"version,omitempty" validate:"omitempty,gt=0"`
}

type versionOnlyRequest struct {
	Version *int64 `json:"version,omitempty" validate:"omitempty,gt=0"`
}

type completeReturnRequest struct {
	AdminNotes string `json:"admin_notes" validate:"max=2000"`
	Version    *int64 `json:"version,omitempty" validate:"omitempty,gt=0"`
}

type cancelReturnRequest struct {
	Reason  string `json:"reason" validate:"max=2000"`
	Version *int64 `json:"version,omitempty" validate:"omitempty,gt=0"`
}

type replacementRequest struct {
	ReplacementOrderID string `json:"replacement_order_id" validate:"required,max=128"`
	Version            *int64 `json:"version,omitempty" validate:"omitempty,gt=0"`
}

type returnItemPayload struct {
	ItemID      string `json:"item_id"`
	VariantID   string `json:"variant_id,omitempty"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

type discountPayload struct {
	OriginalOrderTotal int64  `json:"original_order_total"`
	CouponCode         string `json:"coupon_code,omitempty"`
	CouponDiscount     int64  `json:"coupon_discount"`
	PointsRedeemed     int64  `json:"points_redeemed"`
	PointsDiscount     int64  `json:"points_discount"`
	PWPDiscount        int64  `json:"pwp_discount"`
}

type returnPayload struct {
	ID                   string              `json:"id"`
	OrderID              string              `json:"order_id"`
	CustomerID           string              `json:"customer_id,omitempty"`
	Status               string              `json:"status"`
	ReturnType           string              `json:"return_type"`
	Reason               string              `json:"reason"`
	ReasonDetails        string              `json:"reason_details,omitempty"`
	Items                []returnItemPayload `json:"items"`
	Currency             string              `json:"currency"`
	RefundAmount         int64               `json:"refund_amount"`
	ShippingRefund       int64               `json:"shipping_refund"`
	TotalRefund          int64               `json:"total_refund"`
	Discounts            discountPayload     `json:"discounts"`
	ReturnTrackingNumber string              `json:"return_tracking_number,omitempty"`
	ReturnCourier        string              `json:"return_courier,omitempty"`
	RequestedAt          string              `json:"requested_at"`
	ApprovedAt           *string             `json:"approved_at,omitempty"`
	RejectedAt           *string             `json:"rejected_at,omitempty"`
	InTransitAt          *string             `json:"in_transit_at,omitempty"`
	ReceivedAt           *string             `json:"received_at,omitempty"`
	InspectingAt         *string             `json:"inspecting_at,omitempty"`
	CompletedAt          *string             `json:"completed_at,omitempty"`
	CancelledAt          *string             `json:"cancelled_at,omitempty"`
	RefundStatus         string              `json:"refund_status,omitempty"`
	RefundReference      string              `json:"refund_reference,omitempty"`
	RefundedAt           *string             `json:"refunded_at,omitempty"`
	ReplacementOrderID   string              `json:"replacement_order_id,omitempty"`
	ReplacementCreatedAt *string             `json:"replacement_created_at,omitempty"`
	AdminNotes           string              `json:"admin_notes,omitempty"`
	RejectionReason      string              `json:"rejection_reason,omitempty"`
	Version              int64               `json:"version"`
	CreatedAt            string              `json:"created_at"`
	UpdatedAt            string              `json:"updated_at"`
}

type returnResponse struct {
	Return returnPayload `json:"return"`
}

type returnListResponse struct {
	Items         []returnPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type refundPayload struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
	Currency string `json:"currency"`
}

type pointsPayload struct {
	PointsDeducted int64 `json:"points_deducted"`
	PointsRestored int64 `json:"points_restored"`
	NewBalance     int64 `json:"new_balance"`
}

type refundResponse struct {
	Return returnPayload  `json:"return"`
	Refund refundPayload  `json:"refund"`
	Points *pointsPayload `json:"points"`
}

func buildReturnPayload(ret services.ReturnRequest) returnPayload {
	items := make([]returnItemPayload, 0, len(ret.Items))
	for _, item := range ret.Items {
		items = append(items, returnItemPayload{
			ItemID:      item.ItemID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return returnPayload{
		ID:             ret.ID,
		OrderID:        ret.OrderID,
		CustomerID:     ret.CustomerID,
		Status:         string(ret.Status),
		ReturnType:     string(ret.ReturnType),
		Reason:         string(ret.Reason),
		ReasonDetails:  ret.ReasonDetails,
		Items:          items,
		Currency:       ret.Currency,
		RefundAmount:   ret.RefundAmount,
		ShippingRefund: ret.ShippingRefund,
		TotalRefund:    ret.TotalRefund,
		Discounts: discountPayload{
			OriginalOrderTotal: ret.Discounts.OriginalOrderTotal,
			CouponCode:         ret.Discounts.CouponCode,
			CouponDiscount:     ret.Discounts.CouponDiscount,
			PointsRedeemed:     ret.Discounts.PointsRedeemed,
			PointsDiscount:     ret.Discounts.PointsDiscount,
			PWPDiscount:        ret.Discounts.PWPDiscount,
		},
		ReturnTrackingNumber: ret.ReturnTrackingNumber,
		ReturnCourier:        ret.ReturnCourier,
		RequestedAt:          formatTime(ret.RequestedAt),
		ApprovedAt:           formatTimePointer(ret.ApprovedAt),
		RejectedAt:           formatTimePointer(ret.RejectedAt),
		InTransitAt:          formatTimePointer(ret.InTransitAt),
		ReceivedAt:           formatTimePointer(ret.ReceivedAt),
		InspectingAt:         formatTimePointer(ret.InspectingAt),
		CompletedAt:          formatTimePointer(ret.CompletedAt),
		CancelledAt:          formatTimePointer(ret.CancelledAt),
		RefundStatus:         string(ret.RefundStatus),
		RefundReference:      ret.RefundReference,
		RefundedAt:           formatTimePointer(ret.RefundedAt),
		ReplacementOrderID:   ret.ReplacementOrderID,
		ReplacementCreatedAt: formatTimePointer(ret.ReplacementCreatedAt),
		AdminNotes:           ret.AdminNotes,
		RejectionReason:      ret.RejectionReason,
		Version:              ret.Version,
		CreatedAt:            formatTime(ret.CreatedAt),
		UpdatedAt:            formatTime(ret.UpdatedAt),
	}
}

func buildRefundResponse(outcome services.RefundOutcome) refundResponse {
	resp := refundResponse{
		Return: buildReturnPayload(outcome.Return),
		Refund: refundPayload{
			ID:       outcome.Refund.ID,
			Amount:   outcome.Refund.Amount,
			Status:   outcome.Refund.Status,
			Currency: outcome.Refund.Currency,
		},
	}
	if outcome.Points != nil {
		resp.Points = &pointsPayload{
			PointsDeducted: outcome.Points.PointsDeducted,
			PointsRestored: outcome.Points.PointsRestored,
			NewBalance:     outcome.Points.NewBalance,
		}
	}
	return resp
}

func (r createReturnRequest) toCommand(actorID string) services.CreateReturnCommand {
	items := make([]services.ReturnItemInput, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, services.ReturnItemInput{
			ItemID:      item.ItemID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return services.CreateReturnCommand{
		OrderID:        r.OrderID,
		ReturnType:     domain.ReturnType(r.ReturnType),
		Reason:         domain.ReturnReason(r.Reason),
		ReasonDetails:  r.ReasonDetails,
		Items:          items,
		RefundAmount:   r.RefundAmount,
		ShippingRefund: r.ShippingRefund,
		AdminNotes:     r.AdminNotes,
		ActorID:        actorID,
	}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func formatTimePointer(ts *time.Time) *string {
	if ts == nil || ts.IsZero() {
		return nil
	}
	value := formatTime(*ts)
	return &value
}
