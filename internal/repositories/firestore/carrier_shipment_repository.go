package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hanko-field/returns/internal/domain"
	pfirestore "github.com/hanko-field/returns/internal/platform/firestore"
	"github.com/hanko-field/returns/internal/repositories"
)

const (
	carrierShipmentsCollection = "carrier_shipments"
	defaultHandoffScanLimit    = 50
)

// CarrierShipmentRepository stores one shipment document per return, keyed by the return id.
type CarrierShipmentRepository struct {
	provider  *pfirestore.Provider
	shipments *pfirestore.Collection[carrierShipmentDocument]
	returns   *ReturnRepository
}

var (
	_ repositories.CarrierShipmentRepository = (*CarrierShipmentRepository)(nil)
	_ repositories.CarrierHandoff            = (*CarrierShipmentRepository)(nil)
)

// NewCarrierShipmentRepository constructs a Firestore-backed shipment repository.
func NewCarrierShipmentRepository(provider *pfirestore.Provider) (*CarrierShipmentRepository, error) {
	if provider == nil {
		return nil, errors.New("carrier shipment repository requires firestore provider")
	}
	returns, err := NewReturnRepository(provider)
	if err != nil {
		return nil, err
	}
	return &CarrierShipmentRepository{
		provider:  provider,
		shipments: pfirestore.NewCollection[carrierShipmentDocument](provider, carrierShipmentsCollection),
		returns:   returns,
	}, nil
}

// FindByReturnID loads the shipment booked for the return.
func (r *CarrierShipmentRepository) FindByReturnID(ctx context.Context, returnID string) (domain.CarrierShipment, error) {
	if r == nil || r.provider == nil {
		return domain.CarrierShipment{}, errors.New("carrier shipment repository not initialised")
	}
	id := strings.TrimSpace(returnID)
	if id == "" {
		return domain.CarrierShipment{}, repositories.NewStoreError(repositories.StoreErrorNotFound, "return id is required", nil)
	}
	doc, err := r.shipments.Get(ctx, id)
	if err != nil {
		return domain.CarrierShipment{}, err
	}
	shipment, err := decodeShipment(doc.Data)
	if err != nil {
		return domain.CarrierShipment{}, fmt.Errorf("firestore carrier_shipments decode %s: %w", id, err)
	}
	return shipment, nil
}

// Create stores the shipment unless a booking with an order number already exists.
func (r *CarrierShipmentRepository) Create(ctx context.Context, shipment domain.CarrierShipment) error {
	if r == nil || r.provider == nil {
		return errors.New("carrier shipment repository not initialised")
	}
	id := strings.TrimSpace(shipment.ReturnID)
	if id == "" {
		return errors.New("shipment return id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.shipments.Doc(ctx, id)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			return tx.Create(ref, encodeShipment(shipment))
		case codes.OK:
		default:
			return err
		}

		var existing carrierShipmentDocument
		if err := snapshot.DataTo(&existing); err != nil {
			return fmt.Errorf("firestore carrier_shipments decode %s: %w", id, err)
		}
		if existing.OrderNo != "" {
			return repositories.NewStoreError(repositories.StoreErrorAlreadySubmitted, existing.OrderNo, nil)
		}
		return tx.Set(ref, encodeShipment(shipment))
	})
	if err != nil {
		return unwrapStoreError("carrier_shipments.create", err)
	}
	return nil
}

// Update overwrites an existing shipment document.
func (r *CarrierShipmentRepository) Update(ctx context.Context, shipment domain.CarrierShipment) error {
	if r == nil || r.provider == nil {
		return errors.New("carrier shipment repository not initialised")
	}
	id := strings.TrimSpace(shipment.ReturnID)
	ref, err := r.shipments.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, shipmentUpdates(shipment)); err != nil {
		if status.Code(err) == codes.NotFound {
			return repositories.NewStoreError(repositories.StoreErrorNotFound, fmt.Sprintf("shipment for return %s not found", id), err)
		}
		return pfirestore.WrapError("carrier_shipments.update", err)
	}
	return nil
}

// ListHandoffPending returns shipments that were paid but whose return transition was not
// recorded yet.
func (r *CarrierShipmentRepository) ListHandoffPending(ctx context.Context, limit int) ([]domain.CarrierShipment, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("carrier shipment repository not initialised")
	}
	if limit <= 0 {
		limit = defaultHandoffScanLimit
	}
	docs, err := r.shipments.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("handoffPending", "==", true).OrderBy("returnId", firestore.Asc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.CarrierShipment, 0, len(docs))
	for _, doc := range docs {
		shipment, err := decodeShipment(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("firestore carrier_shipments decode %s: %w", doc.ID, err)
		}
		out = append(out, shipment)
	}
	return out, nil
}

// CommitHandoff writes the paid shipment and the in_transit return in a single transaction.
// The return is only written when its stored version still equals expectedVersion.
func (r *CarrierShipmentRepository) CommitHandoff(ctx context.Context, shipment domain.CarrierShipment, ret domain.ReturnRequest, expectedVersion int64) (domain.ReturnRequest, error) {
	if r == nil || r.provider == nil {
		return domain.ReturnRequest{}, errors.New("carrier shipment repository not initialised")
	}
	id := strings.TrimSpace(shipment.ReturnID)

	var saved domain.ReturnRequest
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.shipments.Doc(ctx, id)
		if err != nil {
			return err
		}
		// reads must precede writes inside a Firestore transaction
		if _, err := tx.Get(ref); err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStoreError(repositories.StoreErrorNotFound, fmt.Sprintf("shipment for return %s not found", id), err)
			}
			return err
		}
		saved, err = r.returns.updateInTx(ctx, tx, ret, expectedVersion)
		if err != nil {
			return err
		}
		return tx.Set(ref, encodeShipment(shipment))
	})
	if err != nil {
		return domain.ReturnRequest{}, unwrapStoreError("carrier_shipments.commit_handoff", err)
	}
	return saved, nil
}

func shipmentUpdates(shipment domain.CarrierShipment) []firestore.Update {
	doc := encodeShipment(shipment)
	return []firestore.Update{
		{Path: "recordId", Value: doc.RecordID},
		{Path: "orderNo", Value: doc.OrderNo},
		{Path: "parcelNo", Value: doc.ParcelNo},
		{Path: "awb", Value: doc.AWB},
		{Path: "trackingUrl", Value: doc.TrackingURL},
		{Path: "serviceId", Value: doc.ServiceID},
		{Path: "serviceName", Value: doc.ServiceName},
		{Path: "courierId", Value: doc.CourierID},
		{Path: "courierName", Value: doc.CourierName},
		{Path: "weight", Value: doc.Weight},
		{Path: "rate", Value: doc.Rate},
		{Path: "pickupDate", Value: doc.PickupDate},
		{Path: "pickupTime", Value: doc.PickupTime},
		{Path: "content", Value: doc.Content},
		{Path: "sender", Value: doc.Sender},
		{Path: "receiver", Value: doc.Receiver},
		{Path: "status", Value: doc.Status},
		{Path: "handoffPending", Value: doc.HandoffPending},
		{Path: "sandbox", Value: doc.Sandbox},
		{Path: "updatedAt", Value: doc.UpdatedAt},
		{Path: "paidAt", Value: doc.PaidAt},
	}
}
