package domain

import "time"

// GatewayRefundRequest asks the payment gateway to reverse part or all of a captured payment.
type GatewayRefundRequest struct {
	Provider       string
	IntentID       string
	Amount         int64
	Currency       string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// GatewayRefund summarises a reversal accepted by the payment gateway.
type GatewayRefund struct {
	ID        string
	Amount    int64
	Currency  string
	Status    string
	CreatedAt time.Time
}

// PointsAdjustmentRequest is a signed ledger correction scoped to a return.
type PointsAdjustmentRequest struct {
	CustomerID string
	OrderID    string
	ReturnID   string
	Deduct     int64
	Restore    int64
	Reason     string
}
