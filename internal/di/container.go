package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/payments"
	"github.com/hanko-field/returns/internal/platform/carrier"
	"github.com/hanko-field/returns/internal/platform/config"
	pfirestore "github.com/hanko-field/returns/internal/platform/firestore"
	"github.com/hanko-field/returns/internal/platform/idempotency"
	"github.com/hanko-field/returns/internal/platform/jobs"
	"github.com/hanko-field/returns/internal/platform/metrics"
	"github.com/hanko-field/returns/internal/platform/observability"
	"github.com/hanko-field/returns/internal/platform/orderstore"
	"github.com/hanko-field/returns/internal/platform/points"
	platformstorage "github.com/hanko-field/returns/internal/platform/storage"
	"github.com/hanko-field/returns/internal/repositories"
	firestoreRepo "github.com/hanko-field/returns/internal/repositories/firestore"
	"github.com/hanko-field/returns/internal/services"
)

// Services bundles the service-layer contracts that handlers and workers rely upon. A nil field
// means the integration it needs is not configured.
type Services struct {
	Returns   services.ReturnService
	Shipments services.CarrierShipmentService
	Refunds   services.RefundService
	System    services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config      config.Config
	Services    Services
	Metrics     *metrics.Saga
	Idempotency idempotency.Store

	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	logger  *zap.Logger
	build   services.BuildInfo
	clock   func() time.Time
	migrate bool
}

// WithLogger sets the base logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBuildInfo sets the metadata reported by the health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock overrides the time source passed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLedgerMigration runs the points ledger schema migration during startup.
func WithLedgerMigration() Option {
	return func(o *containerOptions) {
		o.migrate = true
	}
}

// NewContainer constructs the runtime dependencies. Optional integrations (Redis, Pub/Sub,
// receipt storage, Stripe, and the carrier) are skipped when their configuration is empty.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (_ *Container, err error) {
	options := containerOptions{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.Close(closeCtx)
		}
	}()

	provider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := provider.Client(ctx); err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	c.closers = append(c.closers, provider.Close)

	returnRepo, err := firestoreRepo.NewReturnRepository(provider)
	if err != nil {
		return nil, err
	}
	shipmentRepo, err := firestoreRepo.NewCarrierShipmentRepository(provider)
	if err != nil {
		return nil, err
	}

	db, err := orderstore.Open(cfg.Postgres)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error { return closeDB(db) })
	orders, err := orderstore.New(db)
	if err != nil {
		return nil, err
	}
	ledger, err := points.NewLedger(db, points.WithClock(options.clock))
	if err != nil {
		return nil, err
	}
	if options.migrate {
		if err := ledger.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("points ledger migrate: %w", err)
		}
	}

	checks := []repositories.DependencyCheck{
		repositories.PingCheck("firestore", provider, true),
		repositories.PingCheck("postgres", orders, true),
		repositories.PingCheck("pointsLedger", ledger, false),
	}

	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		store := idempotency.NewRedisStore(client)
		c.Idempotency = store
		checks = append(checks, repositories.PingCheck("redis", store, false))
	} else {
		c.Idempotency = idempotency.NewMemoryStore()
	}

	var (
		events   services.ReturnEventPublisher
		handoffs services.HandoffJobPublisher
	)
	if cfg.PubSub.ProjectID != "" && (cfg.PubSub.EventsTopic != "" || cfg.PubSub.JobsTopic != "") {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		if name := strings.TrimSpace(cfg.PubSub.EventsTopic); name != "" {
			topic := client.Topic(name)
			c.closers = append(c.closers, stopTopic(topic))
			publisher, err := jobs.NewPubSubEventPublisher(topic)
			if err != nil {
				return nil, err
			}
			events = publisher
		}
		if name := strings.TrimSpace(cfg.PubSub.JobsTopic); name != "" {
			topic := client.Topic(name)
			c.closers = append(c.closers, stopTopic(topic))
			publisher, err := jobs.NewPubSubHandoffPublisher(topic)
			if err != nil {
				return nil, err
			}
			handoffs = publisher
		}
	}

	var receipts services.ReceiptArchive
	if bucket := strings.TrimSpace(cfg.Storage.ReceiptsBucket); bucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		archive, err := platformstorage.NewReceiptArchive(client, bucket)
		if err != nil {
			return nil, err
		}
		receipts = archive
	}

	c.Metrics = metrics.NewSaga()

	returnSvc, err := services.NewReturnService(services.ReturnServiceDeps{
		Returns:      returnRepo,
		Orders:       orders,
		Clock:        options.clock,
		ReturnWindow: cfg.Returns.Window(),
		Events:       events,
		Metrics:      c.Metrics,
		Logger:       observability.EventLogger(options.logger.Named("returns")),
	})
	if err != nil {
		return nil, fmt.Errorf("build return service: %w", err)
	}
	c.Services.Returns = returnSvc

	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		gateway, err := buildRefundGateway(cfg, options)
		if err != nil {
			return nil, err
		}
		refundSvc, err := services.NewRefundService(services.RefundServiceDeps{
			Returns:    returnRepo,
			Orders:     orders,
			Gateway:    gateway,
			Points:     ledger,
			Receipts:   receipts,
			ProviderID: cfg.Returns.RefundProviderID,
			Clock:      options.clock,
			Events:     events,
			Metrics:    c.Metrics,
			Logger:     observability.EventLogger(options.logger.Named("refunds")),
		})
		if err != nil {
			return nil, fmt.Errorf("build refund service: %w", err)
		}
		c.Services.Refunds = refundSvc
	} else {
		options.logger.Warn("stripe api key not configured; refunds disabled")
	}

	if strings.TrimSpace(cfg.Carrier.APIKey) != "" {
		client, err := carrier.NewClient(carrier.Config{
			BaseURL: cfg.Carrier.BaseURL,
			APIKey:  cfg.Carrier.APIKey,
			Timeout: cfg.Carrier.Timeout,
			Logger:  carrier.Logger(observability.EventLogger(options.logger.Named("carrier"))),
		})
		if err != nil {
			return nil, fmt.Errorf("build carrier client: %w", err)
		}
		var payer services.CarrierPaymentGateway = client
		if cfg.Carrier.Sandbox {
			payer = carrier.NewSimulatedPaymentGateway(options.clock)
		}
		shipmentSvc, err := services.NewCarrierShipmentService(services.CarrierShipmentServiceDeps{
			Returns:                 returnRepo,
			Shipments:               shipmentRepo,
			Handoff:                 shipmentRepo,
			Orders:                  orders,
			Customers:               orders,
			Weights:                 orders,
			Carrier:                 client,
			Payments:                payer,
			Jobs:                    handoffs,
			Receipts:                receipts,
			Warehouse:               warehouseAddress(cfg.Warehouse),
			ExcludedServiceKeywords: cfg.Carrier.ExcludedServiceKeywords,
			Clock:                   options.clock,
			Events:                  events,
			Metrics:                 c.Metrics,
			Logger:                  observability.EventLogger(options.logger.Named("carrier")),
		})
		if err != nil {
			return nil, fmt.Errorf("build carrier shipment service: %w", err)
		}
		c.Services.Shipments = shipmentSvc
	} else {
		options.logger.Warn("carrier api key not configured; shipping disabled")
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            options.clock,
		Build:            options.build,
		Features: map[string]bool{
			services.FeatureRefunds:  c.Services.Refunds != nil,
			services.FeatureShipping: c.Services.Shipments != nil,
			services.FeatureEvents:   events != nil,
			services.FeatureReceipts: receipts != nil,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build system service: %w", err)
	}
	c.Services.System = systemSvc

	return c, nil
}

// Close releases clients in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func buildRefundGateway(cfg config.Config, options containerOptions) (*payments.Gateway, error) {
	refunder, err := payments.NewStripeRefunder(payments.StripeConfig{
		APIKey: cfg.Stripe.APIKey,
		Logger: payments.Logger(observability.EventLogger(options.logger.Named("payments"))),
		Clock:  options.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("build stripe refunder: %w", err)
	}
	gateway, err := payments.NewGateway(map[string]payments.Refunder{cfg.Returns.RefundProviderID: refunder})
	if err != nil {
		return nil, fmt.Errorf("build payment gateway: %w", err)
	}
	return gateway, nil
}

func warehouseAddress(cfg config.WarehouseConfig) domain.Address {
	return domain.Address{
		Name:       cfg.Name,
		Company:    cfg.Company,
		Phone:      cfg.Phone,
		Email:      cfg.Email,
		Line1:      cfg.Line1,
		Line2:      cfg.Line2,
		City:       cfg.City,
		State:      cfg.State,
		PostalCode: cfg.PostalCode,
		Country:    cfg.Country,
	}
}

func stopTopic(topic *pubsub.Topic) func(context.Context) error {
	return func(context.Context) error {
		topic.Stop()
		return nil
	}
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
