// Package memory provides in-process implementations of the returns repositories for tests and
// local development without Firestore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/platform/pagination"
	"github.com/hanko-field/returns/internal/repositories"
)

const defaultPageSize = 50

// Store holds returns and carrier shipments behind a single lock so handoffs stay atomic.
type Store struct {
	mu        sync.Mutex
	returns   map[string]domain.ReturnRequest
	shipments map[string]domain.CarrierShipment
}

var (
	_ repositories.ReturnRepository          = (*Store)(nil)
	_ repositories.CarrierShipmentRepository = (*ShipmentStore)(nil)
	_ repositories.CarrierHandoff            = (*Store)(nil)
)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		returns:   make(map[string]domain.ReturnRequest),
		shipments: make(map[string]domain.CarrierShipment),
	}
}

// Shipments exposes the carrier shipment repository sharing this store's lock.
func (s *Store) Shipments() *ShipmentStore {
	return &ShipmentStore{store: s}
}

// Insert implements repositories.ReturnRepository.
func (s *Store) Insert(_ context.Context, ret domain.ReturnRequest) error {
	id := strings.TrimSpace(ret.ID)
	if id == "" {
		return repositories.NewStoreError(repositories.StoreErrorNotFound, "return id is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.returns[id]; exists {
		return repositories.NewStoreError(repositories.StoreErrorAlreadyExists, fmt.Sprintf("return %s already exists", id), nil)
	}
	if ret.Version <= 0 {
		ret.Version = 1
	}
	s.returns[id] = ret.Clone()
	return nil
}

// FindByID implements repositories.ReturnRepository.
func (s *Store) FindByID(_ context.Context, returnID string) (domain.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret, ok := s.returns[strings.TrimSpace(returnID)]
	if !ok {
		return domain.ReturnRequest{}, repositories.NewStoreError(repositories.StoreErrorNotFound, fmt.Sprintf("return %s not found", returnID), nil)
	}
	return ret.Clone(), nil
}

// ListByOrder implements repositories.ReturnRepository.
func (s *Store) ListByOrder(_ context.Context, orderID string) ([]domain.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ReturnRequest
	for _, ret := range s.returns {
		if ret.OrderID == orderID {
			out = append(out, ret.Clone())
		}
	}
	sortReturns(out)
	return out, nil
}

// List implements repositories.ReturnRepository with the same keyset tokens as Firestore.
func (s *Store) List(_ context.Context, filter repositories.ReturnListFilter) (domain.CursorPage[domain.ReturnRequest], error) {
	s.mu.Lock()
	matched := make([]domain.ReturnRequest, 0, len(s.returns))
	for _, ret := range s.returns {
		if matchesFilter(ret, filter) {
			matched = append(matched, ret.Clone())
		}
	}
	s.mu.Unlock()

	sortReturns(matched)

	cursor, err := pagination.Decode(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.ReturnRequest]{}, fmt.Errorf("%w: %v", repositories.ErrInvalidPageToken, err)
	}
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	page := domain.CursorPage[domain.ReturnRequest]{}
	for _, ret := range matched {
		if !cursor.Follows(ret.CreatedAt, ret.ID) {
			continue
		}
		if len(page.Items) == size {
			last := page.Items[size-1]
			page.NextPageToken = pagination.Encode(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Items = append(page.Items, ret)
	}
	return page, nil
}

// Update implements repositories.ReturnRepository with an optimistic version check.
func (s *Store) Update(_ context.Context, ret domain.ReturnRequest, expectedVersion int64) (domain.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ret, expectedVersion)
}

// CommitHandoff implements repositories.CarrierHandoff.
func (s *Store) CommitHandoff(_ context.Context, shipment domain.CarrierShipment, ret domain.ReturnRequest, expectedVersion int64) (domain.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shipments[shipment.ReturnID]; !ok {
		return domain.ReturnRequest{}, repositories.NewStoreError(repositories.StoreErrorNotFound, fmt.Sprintf("shipment for return %s not found", shipment.ReturnID), nil)
	}
	stored, err := s.updateLocked(ret, expectedVersion)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	s.shipments[shipment.ReturnID] = shipment
	return stored, nil
}

func (s *Store) updateLocked(ret domain.ReturnRequest, expectedVersion int64) (domain.ReturnRequest, error) {
	current, ok := s.returns[ret.ID]
	if !ok {
		return domain.ReturnRequest{}, repositories.NewStoreError(repositories.StoreErrorNotFound, fmt.Sprintf("return %s not found", ret.ID), nil)
	}
	if current.Version != expectedVersion {
		return domain.ReturnRequest{}, repositories.NewStoreError(repositories.StoreErrorVersionConflict, fmt.Sprintf("return %s is at version %d, expected %d", ret.ID, current.Version, expectedVersion), nil)
	}
	ret.Version = expectedVersion + 1
	s.returns[ret.ID] = ret.Clone()
	return ret.Clone(), nil
}

// ShipmentStore implements repositories.CarrierShipmentRepository on top of Store.
type ShipmentStore struct {
	store *Store
}

// FindByReturnID implements repositories.CarrierShipmentRepository.
func (s *ShipmentStore) FindByReturnID(_ context.Context, returnID string) (domain.CarrierShipment, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	shipment, ok := s.store.shipments[strings.TrimSpace(returnID)]
	if !ok {
		return domain.CarrierShipment{}, repositories.NewStoreError(repositories.StoreErrorNotFound, fmt.Sprintf("shipment for return %s not found", returnID), nil)
	}
	return shipment, nil
}

// Create implements repositories.CarrierShipmentRepository.
func (s *ShipmentStore) Create(_ context.Context, shipment domain.CarrierShipment) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if existing, ok := s.store.shipments[shipment.ReturnID]; ok && existing.Submitted() {
		return repositories.NewStoreError(repositories.StoreErrorAlreadySubmitted, existing.OrderNo, nil)
	}
	s.store.shipments[shipment.ReturnID] = shipment
	return nil
}

// Update implements repositories.CarrierShipmentRepository.
func (s *ShipmentStore) Update(_ context.Context, shipment domain.CarrierShipment) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.shipments[shipment.ReturnID]; !ok {
		return repositories.NewStoreError(repositories.StoreErrorNotFound, fmt.Sprintf("shipment for return %s not found", shipment.ReturnID), nil)
	}
	s.store.shipments[shipment.ReturnID] = shipment
	return nil
}

// ListHandoffPending implements repositories.CarrierShipmentRepository.
func (s *ShipmentStore) ListHandoffPending(_ context.Context, limit int) ([]domain.CarrierShipment, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	var out []domain.CarrierShipment
	for _, shipment := range s.store.shipments {
		if shipment.HandoffPending {
			out = append(out, shipment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReturnID < out[j].ReturnID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesFilter(ret domain.ReturnRequest, filter repositories.ReturnListFilter) bool {
	if filter.OrderID != "" && ret.OrderID != filter.OrderID {
		return false
	}
	if filter.CustomerID != "" && ret.CustomerID != filter.CustomerID {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, status := range filter.Statuses {
		if ret.Status == status {
			return true
		}
	}
	return false
}

func sortReturns(items []domain.ReturnRequest) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
