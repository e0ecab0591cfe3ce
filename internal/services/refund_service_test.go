package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/repositories/memory"
)

type stubRefundGateway struct {
	refund   domain.GatewayRefund
	err      error
	calls    int
	requests []domain.GatewayRefundRequest
}

func (s *stubRefundGateway) Refund(_ context.Context, req domain.GatewayRefundRequest) (domain.GatewayRefund, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if s.err != nil {
		return domain.GatewayRefund{}, s.err
	}
	return s.refund, nil
}

type stubPointsLedger struct {
	points    OrderPoints
	pointsErr error
	adjustErr error
	balance   int64
	requests  []domain.PointsAdjustmentRequest
}

func (s *stubPointsLedger) OrderPoints(context.Context, string, string) (OrderPoints, error) {
	return s.points, s.pointsErr
}

func (s *stubPointsLedger) Adjust(_ context.Context, req domain.PointsAdjustmentRequest) (PointsAdjustment, error) {
	s.requests = append(s.requests, req)
	if s.adjustErr != nil {
		return PointsAdjustment{}, s.adjustErr
	}
	s.balance = s.balance - req.Deduct + req.Restore
	return PointsAdjustment{PointsDeducted: req.Deduct, PointsRestored: req.Restore, NewBalance: s.balance}, nil
}

type stubReceipts struct {
	names []string
}

func (s *stubReceipts) StoreReceipt(_ context.Context, returnID, name string, _ any) (string, error) {
	s.names = append(s.names, name)
	return "returns/" + returnID + "/" + name, nil
}

func newTestRefundService(t *testing.T, store *memory.Store, gateway RefundGateway, points PointsLedger, receipts ReceiptArchive) RefundService {
	t.Helper()
	svc, err := NewRefundService(RefundServiceDeps{
		Returns:  store,
		Orders:   &stubOrderReader{orders: map[string]domain.Order{"ord_1": deliveredOrder()}},
		Gateway:  gateway,
		Points:   points,
		Receipts: receipts,
		Clock:    func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewRefundService: %v", err)
	}
	return svc
}

func seedCompletedReturn(t *testing.T, store *memory.Store, mutate func(*domain.ReturnRequest)) {
	t.Helper()
	completed := testNow.Add(-time.Hour)
	ret := domain.ReturnRequest{
		ID:             "ret_1",
		OrderID:        "ord_1",
		CustomerID:     "cus_1",
		Status:         domain.ReturnStatusCompleted,
		ReturnType:     domain.ReturnTypeRefund,
		Currency:       "MYR",
		RefundAmount:   8000,
		ShippingRefund: 500,
		TotalRefund:    8500,
		CompletedAt:    &completed,
	}
	if mutate != nil {
		mutate(&ret)
	}
	if err := store.Insert(context.Background(), ret); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestRefundFullLifecycleRefundsComponentSum(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	orders := &stubOrderReader{orders: map[string]domain.Order{"ord_1": deliveredOrder()}}
	returnsSvc := newTestReturnService(t, store, orders, nil)

	ret, err := returnsSvc.CreateReturn(ctx, validCreateCommand())
	if err != nil {
		t.Fatalf("CreateReturn: %v", err)
	}
	if ret.TotalRefund != 8500 {
		t.Fatalf("expected total 8500, got %d", ret.TotalRefund)
	}
	steps := []TransitionReturnCommand{
		{ReturnID: ret.ID, Event: ReturnEventApprove},
		{ReturnID: ret.ID, Event: ReturnEventShip, Courier: "DHL", TrackingNumber: "T1"},
		{ReturnID: ret.ID, Event: ReturnEventReceive},
		{ReturnID: ret.ID, Event: ReturnEventInspect},
		{ReturnID: ret.ID, Event: ReturnEventComplete, AdminNotes: "all parts present"},
	}
	for _, step := range steps {
		next, err := returnsSvc.Transition(ctx, step)
		if err != nil {
			t.Fatalf("%s: %v", step.Event, err)
		}
		if next.TotalRefund != 8500 {
			t.Fatalf("%s altered total refund: %d", step.Event, next.TotalRefund)
		}
	}

	gateway := &stubRefundGateway{refund: domain.GatewayRefund{ID: "re_1", Amount: 8500, Currency: "MYR", Status: "succeeded"}}
	points := &stubPointsLedger{points: OrderPoints{Earned: 120, Redeemed: 200}, balance: 1000}
	receipts := &stubReceipts{}
	refunds := newTestRefundService(t, store, gateway, points, receipts)

	outcome, err := refunds.ProcessRefund(ctx, ProcessRefundCommand{ReturnID: ret.ID})
	if err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}
	if gateway.calls != 1 || gateway.requests[0].Amount != 8500 {
		t.Fatalf("expected one gateway call for 8500, got %+v", gateway.requests)
	}
	req := gateway.requests[0]
	if req.IntentID != "pi_123" || req.IdempotencyKey != "return:"+ret.ID+":refund" {
		t.Fatalf("unexpected gateway request: %+v", req)
	}
	if req.Metadata["return_id"] != ret.ID || req.Metadata["order_id"] != "ord_1" {
		t.Fatalf("missing reconciliation metadata: %+v", req.Metadata)
	}
	if outcome.Return.RefundStatus != domain.RefundStatusCompleted || outcome.Return.RefundReference != "re_1" || outcome.Return.RefundedAt == nil {
		t.Fatalf("unexpected refund fields: %+v", outcome.Return)
	}
	if outcome.Points == nil || outcome.Points.PointsDeducted != 120 || outcome.Points.PointsRestored != 200 || outcome.Points.NewBalance != 1080 {
		t.Fatalf("unexpected points adjustment: %+v", outcome.Points)
	}
	if len(points.requests) != 1 || points.requests[0].ReturnID != ret.ID || points.requests[0].CustomerID != "cus_1" {
		t.Fatalf("unexpected ledger call: %+v", points.requests)
	}
	if len(receipts.names) != 1 || receipts.names[0] != "refund.json" {
		t.Fatalf("expected refund receipt, got %v", receipts.names)
	}
}

func TestRefundUsesComponentsNotStaleTotal(t *testing.T) {
	store := memory.NewStore()
	seedCompletedReturn(t, store, func(r *domain.ReturnRequest) { r.TotalRefund = 9999 })
	gateway := &stubRefundGateway{refund: domain.GatewayRefund{ID: "re_1"}}
	svc := newTestRefundService(t, store, gateway, nil, nil)

	outcome, err := svc.ProcessRefund(context.Background(), ProcessRefundCommand{ReturnID: "ret_1"})
	if err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}
	if gateway.requests[0].Amount != 8500 {
		t.Fatalf("expected 8500, got %d", gateway.requests[0].Amount)
	}
	if outcome.Refund.Amount != 8500 || outcome.Refund.Currency != "MYR" {
		t.Fatalf("expected defaults filled on refund summary, got %+v", outcome.Refund)
	}
	if outcome.Points != nil {
		t.Fatalf("expected nil points without a ledger, got %+v", outcome.Points)
	}
}

func TestRefundPreconditions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.ReturnRequest)
		id     string
		want   error
	}{
		{name: "missing", id: "ret_missing", want: ErrReturnNotFound},
		{name: "not completed", id: "ret_1", mutate: func(r *domain.ReturnRequest) { r.Status = domain.ReturnStatusInspecting }, want: ErrRefundNotCompleted},
		{name: "already refunded", id: "ret_1", mutate: func(r *domain.ReturnRequest) {
			r.RefundStatus = domain.RefundStatusCompleted
			r.RefundReference = "re_0"
		}, want: ErrRefundAlreadyCompleted},
		{name: "replacement", id: "ret_1", mutate: func(r *domain.ReturnRequest) { r.ReturnType = domain.ReturnTypeReplacement }, want: ErrRefundNotRefundType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewStore()
			seedCompletedReturn(t, store, tc.mutate)
			gateway := &stubRefundGateway{}
			svc := newTestRefundService(t, store, gateway, nil, nil)

			_, err := svc.ProcessRefund(context.Background(), ProcessRefundCommand{ReturnID: tc.id})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if gateway.calls != 0 {
				t.Fatalf("expected no gateway call, got %d", gateway.calls)
			}
		})
	}
}

func TestRefundGatewayFailureMarksFailed(t *testing.T) {
	store := memory.NewStore()
	seedCompletedReturn(t, store, nil)
	gateway := &stubRefundGateway{err: errors.New("charge_already_refunded")}
	svc := newTestRefundService(t, store, gateway, nil, nil)

	_, err := svc.ProcessRefund(context.Background(), ProcessRefundCommand{ReturnID: "ret_1"})
	var gatewayErr *RefundGatewayError
	if !errors.As(err, &gatewayErr) || gatewayErr.Message != "charge_already_refunded" {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if !errors.Is(err, ErrRefundGateway) {
		t.Fatalf("expected ErrRefundGateway, got %v", err)
	}

	stored, _ := store.FindByID(context.Background(), "ret_1")
	if stored.RefundStatus != domain.RefundStatusFailed {
		t.Fatalf("expected failed refund status, got %q", stored.RefundStatus)
	}

	// A failed refund may be retried.
	gateway.err = nil
	gateway.refund = domain.GatewayRefund{ID: "re_2"}
	if _, err := svc.ProcessRefund(context.Background(), ProcessRefundCommand{ReturnID: "ret_1"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestRefundWithoutCapturedPayment(t *testing.T) {
	store := memory.NewStore()
	seedCompletedReturn(t, store, nil)
	order := deliveredOrder()
	for i := range order.PaymentCollections {
		for j := range order.PaymentCollections[i].Payments {
			order.PaymentCollections[i].Payments[j].CapturedAt = nil
		}
	}
	gateway := &stubRefundGateway{}
	svc, err := NewRefundService(RefundServiceDeps{
		Returns: store,
		Orders:  &stubOrderReader{orders: map[string]domain.Order{"ord_1": order}},
		Gateway: gateway,
		Clock:   func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewRefundService: %v", err)
	}

	_, err = svc.ProcessRefund(context.Background(), ProcessRefundCommand{ReturnID: "ret_1"})
	if !errors.Is(err, ErrRefundNoCapturedPayment) {
		t.Fatalf("expected no captured payment, got %v", err)
	}
	if gateway.calls != 0 {
		t.Fatalf("expected no gateway call")
	}
	stored, _ := store.FindByID(context.Background(), "ret_1")
	if stored.RefundStatus != domain.RefundStatusFailed {
		t.Fatalf("expected failed refund status, got %q", stored.RefundStatus)
	}
}

func TestRefundSucceedsWhenPointsLedgerFails(t *testing.T) {
	for name, ledger := range map[string]*stubPointsLedger{
		"lookup fails": {pointsErr: errors.New("ledger timeout")},
		"adjust fails": {points: OrderPoints{Earned: 50}, adjustErr: errors.New("ledger conflict")},
	} {
		t.Run(name, func(t *testing.T) {
			store := memory.NewStore()
			seedCompletedReturn(t, store, nil)
			var logged []string
			svc, err := NewRefundService(RefundServiceDeps{
				Returns: store,
				Orders:  &stubOrderReader{orders: map[string]domain.Order{"ord_1": deliveredOrder()}},
				Gateway: &stubRefundGateway{refund: domain.GatewayRefund{ID: "re_1", Amount: 8500}},
				Points:  ledger,
				Clock:   func() time.Time { return testNow },
				Logger: func(_ context.Context, event string, _ map[string]any) {
					logged = append(logged, event)
				},
			})
			if err != nil {
				t.Fatalf("NewRefundService: %v", err)
			}

			outcome, err := svc.ProcessRefund(context.Background(), ProcessRefundCommand{ReturnID: "ret_1"})
			if err != nil {
				t.Fatalf("ProcessRefund: %v", err)
			}
			if outcome.Return.RefundStatus != domain.RefundStatusCompleted {
				t.Fatalf("expected completed, got %q", outcome.Return.RefundStatus)
			}
			if outcome.Points != nil {
				t.Fatalf("expected nil points, got %+v", outcome.Points)
			}
			if len(logged) != 1 {
				t.Fatalf("expected ledger failure to be logged once, got %v", logged)
			}
		})
	}
}

func TestFindCapturedPaymentScansAllCollections(t *testing.T) {
	order := deliveredOrder()
	payment, ok := FindCapturedPayment(order, DefaultRefundProviderID)
	if !ok || payment.ID != "pay_1" {
		t.Fatalf("expected pay_1, got %+v (%v)", payment, ok)
	}
	if _, ok := FindCapturedPayment(order, "paypal"); ok {
		t.Fatalf("expected no paypal capture")
	}
}
