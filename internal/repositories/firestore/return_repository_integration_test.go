//go:build integration

package firestore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/repositories"
)

func TestReturnRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "returns-test")

	repo, err := NewReturnRepository(provider)
	if err != nil {
		t.Fatalf("new return repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"ret_a", "ret_b", "ret_c"} {
		ret := domain.ReturnRequest{
			ID:             id,
			OrderID:        "ord_1",
			CustomerID:     "cus_1",
			Status:         domain.ReturnStatusRequested,
			ReturnType:     domain.ReturnTypeRefund,
			Reason:         domain.ReturnReasonDefective,
			Items:          []domain.ReturnItem{{ItemID: "item_1", VariantID: "var_1", ProductName: "Seal", Quantity: 1, UnitPrice: 2500}},
			Currency:       "MYR",
			RefundAmount:   2500,
			ShippingRefund: 500,
			TotalRefund:    3000,
			RequestedAt:    base.Add(time.Duration(i) * time.Hour),
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
			UpdatedAt:      base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Insert(ctx, ret); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	if err := repo.Insert(ctx, domain.ReturnRequest{ID: "ret_a"}); !repositories.HasCode(err, repositories.StoreErrorAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}

	got, err := repo.FindByID(ctx, "ret_a")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Version != 1 || got.TotalRefund != 3000 || len(got.Items) != 1 {
		t.Fatalf("unexpected return %+v", got)
	}

	byOrder, err := repo.ListByOrder(ctx, "ord_1")
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	if len(byOrder) != 3 || byOrder[0].ID != "ret_c" {
		t.Fatalf("expected newest first, got %+v", byOrder)
	}

	first, err := repo.List(ctx, repositories.ReturnListFilter{Pagination: domain.Pagination{PageSize: 2}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Items) != 2 || first.NextPageToken == "" {
		t.Fatalf("expected first page with token, got %+v", first)
	}
	second, err := repo.List(ctx, repositories.ReturnListFilter{Pagination: domain.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Items) != 1 || second.Items[0].ID != "ret_a" || second.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", second)
	}

	// Concurrent writers against the same version: exactly one wins.
	const writers = 4
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			next := got.Clone()
			next.Status = domain.ReturnStatusApproved
			_, err := repo.Update(ctx, next, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case repositories.HasCode(err, repositories.StoreErrorVersionConflict):
				conflicts++
			default:
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || conflicts != writers-1 {
		t.Fatalf("expected one winner, got wins=%d conflicts=%d", wins, conflicts)
	}

	stored, err := repo.FindByID(ctx, "ret_a")
	if err != nil {
		t.Fatalf("find after update: %v", err)
	}
	if stored.Version != 2 || stored.Status != domain.ReturnStatusApproved {
		t.Fatalf("unexpected stored return %+v", stored)
	}
}

func TestCarrierShipmentRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "shipments-test")

	returns, err := NewReturnRepository(provider)
	if err != nil {
		t.Fatalf("new return repository: %v", err)
	}
	shipments, err := NewCarrierShipmentRepository(provider)
	if err != nil {
		t.Fatalf("new shipment repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	ret := domain.ReturnRequest{
		ID:          "ret_ship",
		OrderID:     "ord_2",
		Status:      domain.ReturnStatusApproved,
		ReturnType:  domain.ReturnTypeRefund,
		Reason:      domain.ReturnReasonWrongItem,
		RequestedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := returns.Insert(ctx, ret); err != nil {
		t.Fatalf("insert return: %v", err)
	}

	shipment := domain.CarrierShipment{
		ID:          "csh_1",
		ReturnID:    ret.ID,
		OrderNo:     "EI-0001",
		ServiceID:   "EP-CS0I",
		CourierName: "J&T",
		Weight:      decimal.RequireFromString("0.60"),
		Rate:        decimal.RequireFromString("7.50"),
		Status:      domain.CarrierShipmentOrderCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := shipments.Create(ctx, shipment); err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	duplicate := shipment
	duplicate.OrderNo = "EI-0002"
	if err := shipments.Create(ctx, duplicate); !repositories.HasCode(err, repositories.StoreErrorAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}

	loaded, err := shipments.FindByReturnID(ctx, ret.ID)
	if err != nil {
		t.Fatalf("find shipment: %v", err)
	}
	if !loaded.Weight.Equal(decimal.RequireFromString("0.6")) || loaded.OrderNo != "EI-0001" {
		t.Fatalf("unexpected shipment %+v", loaded)
	}

	paidAt := now.Add(time.Hour)
	paid := loaded
	paid.AWB = "AWB123"
	paid.Status = domain.CarrierShipmentPaid
	paid.PaidAt = &paidAt
	transit := ret.Clone()
	transit.Status = domain.ReturnStatusInTransit

	if _, err := shipments.CommitHandoff(ctx, paid, transit, 7); !repositories.HasCode(err, repositories.StoreErrorVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	untouched, _ := shipments.FindByReturnID(ctx, ret.ID)
	if untouched.AWB != "" {
		t.Fatalf("shipment must not change on conflict, got %+v", untouched)
	}

	saved, err := shipments.CommitHandoff(ctx, paid, transit, 1)
	if err != nil {
		t.Fatalf("commit handoff: %v", err)
	}
	if saved.Version != 2 || saved.Status != domain.ReturnStatusInTransit {
		t.Fatalf("unexpected saved return %+v", saved)
	}

	paid.HandoffPending = true
	if err := shipments.Update(ctx, paid); err != nil {
		t.Fatalf("update shipment: %v", err)
	}
	pending, err := shipments.ListHandoffPending(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].AWB != "AWB123" {
		t.Fatalf("unexpected pending list %+v", pending)
	}
}
