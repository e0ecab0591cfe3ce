// Package config assembles the returns service configuration from RETURNS_* environment
// variables, an optional .env file and Secret Manager references.
package config

import "time"

// Config is the full runtime configuration. Struct tags are checked by Load after secrets are
// resolved.
type Config struct {
	Server        ServerConfig
	Observability ObservabilityConfig
	Firestore     FirestoreConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	PubSub        PubSubConfig
	Storage       StorageConfig
	Stripe        StripeConfig
	Carrier       CarrierConfig
	Warehouse     WarehouseConfig
	Returns       ReturnsConfig
	Idempotency   IdempotencyConfig
	Worker        WorkerConfig
}

type ServerConfig struct {
	Port           string        `validate:"required,numeric"`
	ReadTimeout    time.Duration `validate:"gt=0"`
	WriteTimeout   time.Duration `validate:"gt=0"`
	IdleTimeout    time.Duration `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
}

type ObservabilityConfig struct {
	LogLevel    string `validate:"oneof=debug info warn error"`
	ServiceName string `validate:"required"`
}

type FirestoreConfig struct {
	ProjectID    string `validate:"required"`
	EmulatorHost string
}

// PostgresConfig points at the commerce database: orders, customers, catalog weights and the
// points ledger.
type PostgresConfig struct {
	DSN             string `validate:"required"`
	MaxOpenConns    int    `validate:"gt=0"`
	MaxIdleConns    int    `validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration
}

// RedisConfig switches the idempotency store to Redis when Addr is set.
type RedisConfig struct {
	Addr     string `validate:"omitempty,hostname_port"`
	Password string
	DB       int `validate:"gte=0"`
}

// PubSubConfig names the lifecycle event and recovery job topics. Either may be empty.
type PubSubConfig struct {
	ProjectID   string
	EventsTopic string
	JobsTopic   string
}

type StorageConfig struct {
	ReceiptsBucket string
}

type StripeConfig struct {
	APIKey string
}

type CarrierConfig struct {
	BaseURL                 string `validate:"required,url"`
	APIKey                  string
	Sandbox                 bool
	Timeout                 time.Duration `validate:"gt=0"`
	ExcludedServiceKeywords []string
}

// WarehouseConfig is where returned parcels are delivered.
type WarehouseConfig struct {
	Name       string
	Company    string
	Phone      string
	Email      string `validate:"omitempty,email"`
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string `validate:"len=2"`
}

type ReturnsConfig struct {
	WindowDays       int    `validate:"gt=0"`
	DefaultCurrency  string `validate:"len=3,alpha"`
	RefundProviderID string `validate:"required"`
}

// Window is the eligibility window measured from delivery.
func (c ReturnsConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

type IdempotencyConfig struct {
	Header           string        `validate:"required"`
	TTL              time.Duration `validate:"gt=0"`
	CleanupInterval  time.Duration `validate:"gt=0"`
	CleanupBatchSize int           `validate:"gt=0"`
}

// WorkerConfig schedules the carrier handoff recovery job.
type WorkerConfig struct {
	HandoffInterval  time.Duration `validate:"gt=0"`
	HandoffBatchSize int           `validate:"gt=0"`
}
