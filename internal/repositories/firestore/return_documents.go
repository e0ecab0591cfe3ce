package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/returns/internal/domain"
)

type returnItemDocument struct {
	ItemID      string `firestore:"itemId"`
	VariantID   string `firestore:"variantId,omitempty"`
	ProductName string `firestore:"productName"`
	Quantity    int    `firestore:"quantity"`
	UnitPrice   int64  `firestore:"unitPrice"`
}

type discountDocument struct {
	OriginalOrderTotal int64  `firestore:"originalOrderTotal"`
	CouponCode         string `firestore:"couponCode,omitempty"`
	CouponDiscount     int64  `firestore:"couponDiscount"`
	PointsRedeemed     int64  `firestore:"pointsRedeemed"`
	PointsDiscount     int64  `firestore:"pointsDiscount"`
	PWPDiscount        int64  `firestore:"pwpDiscount"`
}

type returnDocument struct {
	OrderID       string               `firestore:"orderId"`
	CustomerID    string               `firestore:"customerId"`
	Status        string               `firestore:"status"`
	ReturnType    string               `firestore:"returnType"`
	Reason        string               `firestore:"reason"`
	ReasonDetails string               `firestore:"reasonDetails,omitempty"`
	Items         []returnItemDocument `firestore:"items"`
	Currency      string               `firestore:"currency"`

	RefundAmount   int64            `firestore:"refundAmount"`
	ShippingRefund int64            `firestore:"shippingRefund"`
	TotalRefund    int64            `firestore:"totalRefund"`
	Discounts      discountDocument `firestore:"discounts"`

	ReturnTrackingNumber string `firestore:"returnTrackingNumber,omitempty"`
	ReturnCourier        string `firestore:"returnCourier,omitempty"`

	RequestedAt  time.Time  `firestore:"requestedAt"`
	ApprovedAt   *time.Time `firestore:"approvedAt,omitempty"`
	RejectedAt   *time.Time `firestore:"rejectedAt,omitempty"`
	InTransitAt  *time.Time `firestore:"inTransitAt,omitempty"`
	ReceivedAt   *time.Time `firestore:"receivedAt,omitempty"`
	InspectingAt *time.Time `firestore:"inspectingAt,omitempty"`
	CompletedAt  *time.Time `firestore:"completedAt,omitempty"`
	CancelledAt  *time.Time `firestore:"cancelledAt,omitempty"`

	RefundStatus    string     `firestore:"refundStatus,omitempty"`
	RefundReference string     `firestore:"refundReference,omitempty"`
	RefundedAt      *time.Time `firestore:"refundedAt,omitempty"`

	ReplacementOrderID   string     `firestore:"replacementOrderId,omitempty"`
	ReplacementCreatedAt *time.Time `firestore:"replacementCreatedAt,omitempty"`

	AdminNotes      string `firestore:"adminNotes,omitempty"`
	RejectionReason string `firestore:"rejectionReason,omitempty"`

	Version   int64     `firestore:"version"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeReturn(ret domain.ReturnRequest) returnDocument {
	items := make([]returnItemDocument, 0, len(ret.Items))
	for _, item := range ret.Items {
		items = append(items, returnItemDocument{
			ItemID:      item.ItemID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return returnDocument{
		OrderID:       ret.OrderID,
		CustomerID:    ret.CustomerID,
		Status:        string(ret.Status),
		ReturnType:    string(ret.ReturnType),
		Reason:        string(ret.Reason),
		ReasonDetails: ret.ReasonDetails,
		Items:         items,
		Currency:      ret.Currency,

		RefundAmount:   ret.RefundAmount,
		ShippingRefund: ret.ShippingRefund,
		TotalRefund:    ret.TotalRefund,
		Discounts: discountDocument{
			OriginalOrderTotal: ret.Discounts.OriginalOrderTotal,
			CouponCode:         ret.Discounts.CouponCode,
			CouponDiscount:     ret.Discounts.CouponDiscount,
			PointsRedeemed:     ret.Discounts.PointsRedeemed,
			PointsDiscount:     ret.Discounts.PointsDiscount,
			PWPDiscount:        ret.Discounts.PWPDiscount,
		},

		ReturnTrackingNumber: ret.ReturnTrackingNumber,
		ReturnCourier:        ret.ReturnCourier,

		RequestedAt:  ret.RequestedAt.UTC(),
		ApprovedAt:   utcPtr(ret.ApprovedAt),
		RejectedAt:   utcPtr(ret.RejectedAt),
		InTransitAt:  utcPtr(ret.InTransitAt),
		ReceivedAt:   utcPtr(ret.ReceivedAt),
		InspectingAt: utcPtr(ret.InspectingAt),
		CompletedAt:  utcPtr(ret.CompletedAt),
		CancelledAt:  utcPtr(ret.CancelledAt),

		RefundStatus:    string(ret.RefundStatus),
		RefundReference: ret.RefundReference,
		RefundedAt:      utcPtr(ret.RefundedAt),

		ReplacementOrderID:   ret.ReplacementOrderID,
		ReplacementCreatedAt: utcPtr(ret.ReplacementCreatedAt),

		AdminNotes:      ret.AdminNotes,
		RejectionReason: ret.RejectionReason,

		Version:   ret.Version,
		CreatedAt: ret.CreatedAt.UTC(),
		UpdatedAt: ret.UpdatedAt.UTC(),
	}
}

func decodeReturn(id string, doc returnDocument) domain.ReturnRequest {
	items := make([]domain.ReturnItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.ReturnItem{
			ItemID:      item.ItemID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return domain.ReturnRequest{
		ID:            id,
		OrderID:       doc.OrderID,
		CustomerID:    doc.CustomerID,
		Status:        domain.ReturnStatus(doc.Status),
		ReturnType:    domain.ReturnType(doc.ReturnType),
		Reason:        domain.ReturnReason(doc.Reason),
		ReasonDetails: doc.ReasonDetails,
		Items:         items,
		Currency:      doc.Currency,

		RefundAmount:   doc.RefundAmount,
		ShippingRefund: doc.ShippingRefund,
		TotalRefund:    doc.TotalRefund,
		Discounts: domain.DiscountSnapshot{
			OriginalOrderTotal: doc.Discounts.OriginalOrderTotal,
			CouponCode:         doc.Discounts.CouponCode,
			CouponDiscount:     doc.Discounts.CouponDiscount,
			PointsRedeemed:     doc.Discounts.PointsRedeemed,
			PointsDiscount:     doc.Discounts.PointsDiscount,
			PWPDiscount:        doc.Discounts.PWPDiscount,
		},

		ReturnTrackingNumber: doc.ReturnTrackingNumber,
		ReturnCourier:        doc.ReturnCourier,

		RequestedAt:  doc.RequestedAt,
		ApprovedAt:   doc.ApprovedAt,
		RejectedAt:   doc.RejectedAt,
		InTransitAt:  doc.InTransitAt,
		ReceivedAt:   doc.ReceivedAt,
		InspectingAt: doc.InspectingAt,
		CompletedAt:  doc.CompletedAt,
		CancelledAt:  doc.CancelledAt,

		RefundStatus:    domain.RefundStatus(doc.RefundStatus),
		RefundReference: doc.RefundReference,
		RefundedAt:      doc.RefundedAt,

		ReplacementOrderID:   doc.ReplacementOrderID,
		ReplacementCreatedAt: doc.ReplacementCreatedAt,

		AdminNotes:      doc.AdminNotes,
		RejectionReason: doc.RejectionReason,

		Version:   doc.Version,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

type addressDocument struct {
	Name       string `firestore:"name,omitempty"`
	Company    string `firestore:"company,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
	Email      string `firestore:"email,omitempty"`
	Line1      string `firestore:"line1,omitempty"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city,omitempty"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
}

func encodeAddress(addr domain.Address) addressDocument {
	return addressDocument(addr)
}

func decodeAddress(doc addressDocument) domain.Address {
	return domain.Address(doc)
}

// Weights and rates are stored as decimal strings; Firestore floats would lose the 2dp precision.
type carrierShipmentDocument struct {
	ReturnID string `firestore:"returnId"`
	RecordID string `firestore:"recordId"`

	OrderNo     string `firestore:"orderNo,omitempty"`
	ParcelNo    string `firestore:"parcelNo,omitempty"`
	AWB         string `firestore:"awb,omitempty"`
	TrackingURL string `firestore:"trackingUrl,omitempty"`

	ServiceID   string `firestore:"serviceId"`
	ServiceName string `firestore:"serviceName,omitempty"`
	CourierID   string `firestore:"courierId,omitempty"`
	CourierName string `firestore:"courierName,omitempty"`
	Weight      string `firestore:"weight"`
	Rate        string `firestore:"rate"`

	PickupDate string `firestore:"pickupDate,omitempty"`
	PickupTime string `firestore:"pickupTime,omitempty"`
	Content    string `firestore:"content,omitempty"`

	Sender   addressDocument `firestore:"sender"`
	Receiver addressDocument `firestore:"receiver"`

	Status         string `firestore:"status"`
	HandoffPending bool   `firestore:"handoffPending"`
	Sandbox        bool   `firestore:"sandbox"`

	CreatedAt time.Time  `firestore:"createdAt"`
	UpdatedAt time.Time  `firestore:"updatedAt"`
	PaidAt    *time.Time `firestore:"paidAt,omitempty"`
}

func encodeShipment(shipment domain.CarrierShipment) carrierShipmentDocument {
	return carrierShipmentDocument{
		ReturnID:       shipment.ReturnID,
		RecordID:       shipment.ID,
		OrderNo:        shipment.OrderNo,
		ParcelNo:       shipment.ParcelNo,
		AWB:            shipment.AWB,
		TrackingURL:    shipment.TrackingURL,
		ServiceID:      shipment.ServiceID,
		ServiceName:    shipment.ServiceName,
		CourierID:      shipment.CourierID,
		CourierName:    shipment.CourierName,
		Weight:         shipment.Weight.String(),
		Rate:           shipment.Rate.String(),
		PickupDate:     shipment.PickupDate,
		PickupTime:     shipment.PickupTime,
		Content:        shipment.Content,
		Sender:         encodeAddress(shipment.Sender),
		Receiver:       encodeAddress(shipment.Receiver),
		Status:         string(shipment.Status),
		HandoffPending: shipment.HandoffPending,
		Sandbox:        shipment.Sandbox,
		CreatedAt:      shipment.CreatedAt.UTC(),
		UpdatedAt:      shipment.UpdatedAt.UTC(),
		PaidAt:         utcPtr(shipment.PaidAt),
	}
}

func decodeShipment(doc carrierShipmentDocument) (domain.CarrierShipment, error) {
	weight, err := parseDecimal(doc.Weight)
	if err != nil {
		return domain.CarrierShipment{}, fmt.Errorf("weight: %w", err)
	}
	rate, err := parseDecimal(doc.Rate)
	if err != nil {
		return domain.CarrierShipment{}, fmt.Errorf("rate: %w", err)
	}
	return domain.CarrierShipment{
		ID:             doc.RecordID,
		ReturnID:       doc.ReturnID,
		OrderNo:        doc.OrderNo,
		ParcelNo:       doc.ParcelNo,
		AWB:            doc.AWB,
		TrackingURL:    doc.TrackingURL,
		ServiceID:      doc.ServiceID,
		ServiceName:    doc.ServiceName,
		CourierID:      doc.CourierID,
		CourierName:    doc.CourierName,
		Weight:         weight,
		Rate:           rate,
		PickupDate:     doc.PickupDate,
		PickupTime:     doc.PickupTime,
		Content:        doc.Content,
		Sender:         decodeAddress(doc.Sender),
		Receiver:       decodeAddress(doc.Receiver),
		Status:         domain.CarrierShipmentStatus(doc.Status),
		HandoffPending: doc.HandoffPending,
		Sandbox:        doc.Sandbox,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
		PaidAt:         doc.PaidAt,
	}, nil
}

func parseDecimal(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}

func utcPtr(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	value := ts.UTC()
	return &value
}
