package repositories

import (
	"context"

	domain "github.com/hanko-field/returns/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ReturnListFilter narrows return listings.
type ReturnListFilter struct {
	Statuses   []domain.ReturnStatus
	OrderID    string
	CustomerID string
	Pagination domain.Pagination
}

// ReturnRepository persists return requests. Every write after Insert is guarded by the version the
// caller read: Update stores the request with Version = expectedVersion+1 or fails with a
// StoreErrorVersionConflict when the stored version differs.
type ReturnRepository interface {
	Insert(ctx context.Context, ret domain.ReturnRequest) error
	FindByID(ctx context.Context, returnID string) (domain.ReturnRequest, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error)
	List(ctx context.Context, filter ReturnListFilter) (domain.CursorPage[domain.ReturnRequest], error)
	Update(ctx context.Context, ret domain.ReturnRequest, expectedVersion int64) (domain.ReturnRequest, error)
}

// CarrierShipmentRepository persists the return-leg shipment booking, one per return.
type CarrierShipmentRepository interface {
	FindByReturnID(ctx context.Context, returnID string) (domain.CarrierShipment, error)
	// Create stores a submitted shipment. It fails with StoreErrorAlreadySubmitted when a shipment
	// with an order number already exists for the return.
	Create(ctx context.Context, shipment domain.CarrierShipment) error
	Update(ctx context.Context, shipment domain.CarrierShipment) error
	ListHandoffPending(ctx context.Context, limit int) ([]domain.CarrierShipment, error)
}

// CarrierHandoff records a paid shipment and the matching return transition as one atomic write.
type CarrierHandoff interface {
	CommitHandoff(ctx context.Context, shipment domain.CarrierShipment, ret domain.ReturnRequest, expectedVersion int64) (domain.ReturnRequest, error)
}

// HealthRepository probes the backing services. Results are ordered by dependency name.
type HealthRepository interface {
	Probe(ctx context.Context) ([]domain.DependencyHealth, error)
}
