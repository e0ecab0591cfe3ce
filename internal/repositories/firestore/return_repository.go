package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hanko-field/returns/internal/domain"
	pfirestore "github.com/hanko-field/returns/internal/platform/firestore"
	"github.com/hanko-field/returns/internal/platform/pagination"
	"github.com/hanko-field/returns/internal/repositories"
)

const (
	returnsCollection      = "returns"
	defaultReturnsPageSize = 50
	maxReturnsPageSize     = 100
)

// ReturnRepository persists return requests in Firestore. Writes after Insert run inside a
// transaction that re-reads the document and compares versions before overwriting it.
type ReturnRepository struct {
	provider *pfirestore.Provider
	docs     *pfirestore.Collection[returnDocument]
}

var _ repositories.ReturnRepository = (*ReturnRepository)(nil)

// NewReturnRepository constructs a Firestore-backed return repository.
func NewReturnRepository(provider *pfirestore.Provider) (*ReturnRepository, error) {
	if provider == nil {
		return nil, errors.New("return repository requires firestore provider")
	}
	return &ReturnRepository{
		provider: provider,
		docs:     pfirestore.NewCollection[returnDocument](provider, returnsCollection),
	}, nil
}

// Insert stores a new return request and fails when the identifier is already taken.
func (r *ReturnRepository) Insert(ctx context.Context, ret domain.ReturnRequest) error {
	if r == nil || r.provider == nil {
		return errors.New("return repository not initialised")
	}
	id := strings.TrimSpace(ret.ID)
	if id == "" {
		return errors.New("return id is required")
	}
	if ret.Version <= 0 {
		ret.Version = 1
	}

	ref, err := r.docs.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeReturn(ret)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return repositories.NewStoreError(repositories.StoreErrorAlreadyExists, fmt.Sprintf("return %s already exists", id), err)
		}
		return pfirestore.WrapError("returns.insert", err)
	}
	return nil
}

// FindByID loads a single return request.
func (r *ReturnRepository) FindByID(ctx context.Context, returnID string) (domain.ReturnRequest, error) {
	if r == nil || r.provider == nil {
		return domain.ReturnRequest{}, errors.New("return repository not initialised")
	}
	id := strings.TrimSpace(returnID)
	if id == "" {
		return domain.ReturnRequest{}, repositories.NewStoreError(repositories.StoreErrorNotFound, "return id is required", nil)
	}
	doc, err := r.docs.Get(ctx, id)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	return decodeReturn(doc.ID, doc.Data), nil
}

// ListByOrder returns every return raised against the order, newest first.
func (r *ReturnRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("return repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, nil
	}
	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.ReturnRequest, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeReturn(doc.ID, doc.Data))
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// List pages through return requests ordered by creation time descending.
func (r *ReturnRepository) List(ctx context.Context, filter repositories.ReturnListFilter) (domain.CursorPage[domain.ReturnRequest], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.ReturnRequest]{}, errors.New("return repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultReturnsPageSize
	case pageSize > maxReturnsPageSize:
		pageSize = maxReturnsPageSize
	}

	startAfter, err := decodeReturnCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.ReturnRequest]{}, err
	}

	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
			q = q.Where("orderId", "==", orderID)
		}
		if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
			q = q.Where("customerId", "==", customerID)
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, st := range filter.Statuses {
				statuses = append(statuses, string(st))
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if startAfter != nil {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.ReturnRequest]{}, err
	}

	page := domain.CursorPage[domain.ReturnRequest]{}
	for i, doc := range docs {
		if i == pageSize {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.Encode(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Items = append(page.Items, decodeReturn(doc.ID, doc.Data))
	}
	return page, nil
}

// Update overwrites the return when the stored version equals expectedVersion and stores it
// with the next version.
func (r *ReturnRepository) Update(ctx context.Context, ret domain.ReturnRequest, expectedVersion int64) (domain.ReturnRequest, error) {
	if r == nil || r.provider == nil {
		return domain.ReturnRequest{}, errors.New("return repository not initialised")
	}
	var saved domain.ReturnRequest
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var err error
		saved, err = r.updateInTx(ctx, tx, ret, expectedVersion)
		return err
	})
	if err != nil {
		return domain.ReturnRequest{}, unwrapStoreError("returns.update", err)
	}
	return saved, nil
}

func (r *ReturnRepository) updateInTx(ctx context.Context, tx *firestore.Transaction, ret domain.ReturnRequest, expectedVersion int64) (domain.ReturnRequest, error) {
	id := strings.TrimSpace(ret.ID)
	ref, err := r.docs.Doc(ctx, id)
	if err != nil {
		return domain.ReturnRequest{}, err
	}

	snapshot, err := tx.Get(ref)
	switch status.Code(err) {
	case codes.OK:
	case codes.NotFound:
		return domain.ReturnRequest{}, repositories.NewStoreError(repositories.StoreErrorNotFound, fmt.Sprintf("return %s not found", id), err)
	default:
		return domain.ReturnRequest{}, err
	}

	var current returnDocument
	if err := snapshot.DataTo(&current); err != nil {
		return domain.ReturnRequest{}, fmt.Errorf("firestore returns decode %s: %w", id, err)
	}
	if current.Version != expectedVersion {
		return domain.ReturnRequest{}, repositories.NewStoreError(
			repositories.StoreErrorVersionConflict,
			fmt.Sprintf("return %s is at version %d, expected %d", id, current.Version, expectedVersion),
			nil,
		)
	}

	ret.Version = expectedVersion + 1
	if err := tx.Set(ref, encodeReturn(ret)); err != nil {
		return domain.ReturnRequest{}, err
	}
	return ret, nil
}

func decodeReturnCursor(token string) ([]any, error) {
	cursor, err := pagination.Decode(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repositories.ErrInvalidPageToken, err)
	}
	if cursor.IsZero() {
		return nil, nil
	}
	return []any{cursor.CreatedAt, cursor.ID}, nil
}

// unwrapStoreError surfaces typed store errors raised inside a transaction ahead of the
// transport classification added by RunTransaction.
func unwrapStoreError(op string, err error) error {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		return storeErr
	}
	var fsErr *pfirestore.Error
	if errors.As(err, &fsErr) {
		return fsErr
	}
	return pfirestore.WrapError(op, err)
}
