// Package orderstore reads orders, customers, and catalog weights from the commerce Postgres
// database. The returns service never writes to these tables.
package orderstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/platform/config"
	"github.com/hanko-field/returns/internal/repositories"
)

// Open connects to Postgres and applies the pool limits from cfg.
func Open(cfg config.PostgresConfig) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("orderstore: postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("orderstore: open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("orderstore: sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// Store implements the order, customer, and variant weight readers used by the services.
type Store struct {
	db *gorm.DB
}

// New wraps an open GORM handle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("orderstore: gorm db is required")
	}
	return &Store{db: db}, nil
}

// FindOrder loads the order with its items, shipping address, and payment collections.
func (s *Store) FindOrder(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, repositories.NewStoreError(repositories.StoreErrorNotFound, "order id is required", nil)
	}
	var record orderRecord
	err := s.db.WithContext(ctx).
		Preload("ShippingAddress").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("PaymentCollections", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("PaymentCollections.Payments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		return domain.Order{}, wrapError("orders.find", fmt.Sprintf("order %s not found", id), err)
	}
	return record.toDomain(), nil
}

// FindCustomer loads a customer profile.
func (s *Store) FindCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.Customer{}, repositories.NewStoreError(repositories.StoreErrorNotFound, "customer id is required", nil)
	}
	var record customerRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return domain.Customer{}, wrapError("customers.find", fmt.Sprintf("customer %s not found", id), err)
	}
	return record.toDomain(), nil
}

// VariantWeights returns kilogram weights keyed by variant id. Unknown or weightless variants
// are absent from the result.
func (s *Store) VariantWeights(ctx context.Context, variantIDs []string) (map[string]decimal.Decimal, error) {
	ids := uniqueIDs(variantIDs)
	out := make(map[string]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var records []variantRecord
	if err := s.db.WithContext(ctx).Select("id", "weight").Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, wrapError("product_variants.weights", "", err)
	}
	for _, record := range records {
		if record.Weight.Valid {
			out[record.ID] = record.Weight.Decimal
		}
	}
	return out, nil
}

// Ping verifies the connection for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func wrapError(op, notFoundMessage string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		storeErr := repositories.NewStoreError(repositories.StoreErrorNotFound, notFoundMessage, err)
		storeErr.Op = op
		return storeErr
	}
	storeErr := repositories.NewStoreError(repositories.StoreErrorUnavailable, err.Error(), err)
	storeErr.Op = op
	return storeErr
}
