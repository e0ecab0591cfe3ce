// Package points implements the loyalty ledger on the commerce Postgres database.
package points

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/services"
)

// Transaction kinds stored in loyalty_transactions.
const (
	KindEarn          = "earn"
	KindRedeem        = "redeem"
	KindReturnDeduct  = "return_deduct"
	KindReturnRestore = "return_restore"
)

// ErrInvalidAdjustment is returned for requests missing their identifying keys.
var ErrInvalidAdjustment = errors.New("points: customer, order, and return ids are required")

type accountRecord struct {
	CustomerID string `gorm:"primaryKey"`
	Balance    int64
	UpdatedAt  time.Time
}

func (accountRecord) TableName() string { return "loyalty_accounts" }

type transactionRecord struct {
	ID         uint   `gorm:"primaryKey"`
	CustomerID string `gorm:"index:idx_loyalty_tx_customer_order"`
	OrderID    string `gorm:"index:idx_loyalty_tx_customer_order"`
	ReturnID   string
	Kind       string `gorm:"size:32"`
	Points     int64
	Note       string
	CreatedAt  time.Time
}

func (transactionRecord) TableName() string { return "loyalty_transactions" }

type adjustmentRecord struct {
	ID             uint   `gorm:"primaryKey"`
	CustomerID     string `gorm:"uniqueIndex:idx_return_points_key"`
	OrderID        string `gorm:"uniqueIndex:idx_return_points_key"`
	ReturnID       string `gorm:"uniqueIndex:idx_return_points_key"`
	PointsDeducted int64
	PointsRestored int64
	NewBalance     int64
	Reason         string
	CreatedAt      time.Time
}

func (adjustmentRecord) TableName() string { return "return_points_adjustments" }

func (r adjustmentRecord) toDomain() domain.PointsAdjustment {
	return domain.PointsAdjustment{
		PointsDeducted: r.PointsDeducted,
		PointsRestored: r.PointsRestored,
		NewBalance:     r.NewBalance,
	}
}

// Ledger implements services.PointsLedger.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

var _ services.PointsLedger = (*Ledger)(nil)

// Option customises the ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.now = clock
		}
	}
}

// NewLedger wraps an open GORM handle.
func NewLedger(db *gorm.DB, opts ...Option) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("points: gorm db is required")
	}
	ledger := &Ledger{db: db, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(ledger)
		}
	}
	return ledger, nil
}

// Migrate creates the adjustment table and the ledger tables when they are missing.
func (l *Ledger) Migrate(ctx context.Context) error {
	return l.db.WithContext(ctx).AutoMigrate(&accountRecord{}, &transactionRecord{}, &adjustmentRecord{})
}

// OrderPoints sums the points earned and redeemed on the order by the customer.
func (l *Ledger) OrderPoints(ctx context.Context, customerID, orderID string) (services.OrderPoints, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	err := l.db.WithContext(ctx).
		Model(&transactionRecord{}).
		Select("kind, COALESCE(SUM(points), 0) AS total").
		Where("customer_id = ? AND order_id = ? AND kind IN ?", strings.TrimSpace(customerID), strings.TrimSpace(orderID), []string{KindEarn, KindRedeem}).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return services.OrderPoints{}, fmt.Errorf("points: order totals: %w", err)
	}
	var out services.OrderPoints
	for _, row := range rows {
		switch row.Kind {
		case KindEarn:
			out.Earned = row.Total
		case KindRedeem:
			out.Redeemed = row.Total
		}
	}
	return out, nil
}

// Adjust applies -Deduct and +Restore to the customer's balance. A repeated request for the same
// (customer, order, return) returns the stored adjustment without touching the balance. The
// balance may go negative when earned points were already spent.
func (l *Ledger) Adjust(ctx context.Context, req domain.PointsAdjustmentRequest) (domain.PointsAdjustment, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	orderID := strings.TrimSpace(req.OrderID)
	returnID := strings.TrimSpace(req.ReturnID)
	if customerID == "" || orderID == "" || returnID == "" {
		return domain.PointsAdjustment{}, ErrInvalidAdjustment
	}
	if req.Deduct < 0 || req.Restore < 0 {
		return domain.PointsAdjustment{}, fmt.Errorf("points: deduct and restore must be non-negative")
	}

	var result adjustmentRecord
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, found, err := findAdjustment(tx, customerID, orderID, returnID)
		if err != nil {
			return err
		}
		if found {
			result = existing
			return nil
		}

		now := l.now().UTC()
		account := accountRecord{CustomerID: customerID, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&account).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("customer_id = ?", customerID).First(&account).Error; err != nil {
			return err
		}

		account.Balance = account.Balance - req.Deduct + req.Restore
		account.UpdatedAt = now
		if err := tx.Model(&accountRecord{}).Where("customer_id = ?", customerID).
			Updates(map[string]any{"balance": account.Balance, "updated_at": now}).Error; err != nil {
			return err
		}

		entries := make([]transactionRecord, 0, 2)
		if req.Deduct > 0 {
			entries = append(entries, transactionRecord{CustomerID: customerID, OrderID: orderID, ReturnID: returnID, Kind: KindReturnDeduct, Points: -req.Deduct, Note: req.Reason, CreatedAt: now})
		}
		if req.Restore > 0 {
			entries = append(entries, transactionRecord{CustomerID: customerID, OrderID: orderID, ReturnID: returnID, Kind: KindReturnRestore, Points: req.Restore, Note: req.Reason, CreatedAt: now})
		}
		if len(entries) > 0 {
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
		}

		result = adjustmentRecord{
			CustomerID:     customerID,
			OrderID:        orderID,
			ReturnID:       returnID,
			PointsDeducted: req.Deduct,
			PointsRestored: req.Restore,
			NewBalance:     account.Balance,
			Reason:         req.Reason,
			CreatedAt:      now,
		}
		return tx.Create(&result).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// a concurrent request stored the adjustment first
		existing, found, findErr := findAdjustment(l.db.WithContext(ctx), customerID, orderID, returnID)
		if findErr == nil && found {
			return existing.toDomain(), nil
		}
	}
	if err != nil {
		return domain.PointsAdjustment{}, fmt.Errorf("points: adjust: %w", err)
	}
	return result.toDomain(), nil
}

// Ping verifies the connection.
func (l *Ledger) Ping(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func findAdjustment(db *gorm.DB, customerID, orderID, returnID string) (adjustmentRecord, bool, error) {
	var record adjustmentRecord
	err := db.Where("customer_id = ? AND order_id = ? AND return_id = ?", customerID, orderID, returnID).
		Take(&record).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return adjustmentRecord{}, false, nil
	case err != nil:
		return adjustmentRecord{}, false, err
	default:
		return record, true, nil
	}
}
