package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	liveCarrierURL    = "https://connect.easyparcel.my/"
	sandboxCarrierURL = "https://demo.connect.easyparcel.my/"
)

// SecretResolver turns a secret://name reference into its value. *secrets.Fetcher implements it.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(ctx context.Context, ref string) (string, error)

func (f SecretResolverFunc) Resolve(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

type Option func(*loader)

type loader struct {
	envFile        string
	overrides      map[string]string
	systemEnv      bool
	resolver       SecretResolver
	required       []string
	panicOnMissing bool
}

// WithEnvFile sets the .env file read for local overrides; "" disables it. Defaults to .env.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// WithEnvMap supplies values that win over both the process environment and the .env file.
func WithEnvMap(values map[string]string) Option {
	return func(l *loader) { l.overrides = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(l *loader) { l.systemEnv = false }
}

func WithSecretResolver(resolver SecretResolver) Option {
	return func(l *loader) { l.resolver = resolver }
}

// WithRequiredSecrets names secret-backed fields (Postgres.DSN, Stripe.APIKey, Carrier.APIKey,
// Redis.Password) that must resolve to a non-empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(l *loader) { l.required = append(l.required, names...) }
}

// WithPanicOnMissingSecrets makes Load panic with *MissingSecretsError instead of returning it.
func WithPanicOnMissingSecrets() Option {
	return func(l *loader) { l.panicOnMissing = true }
}

func newLoader(opts []Option) *loader {
	l := &loader{envFile: ".env", systemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// values merges the sources. Precedence: overrides, process environment, .env file.
func (l *loader) values() (map[string]string, error) {
	merged := map[string]string{}
	if l.envFile != "" {
		dot, err := godotenv.Read(l.envFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: parse %s: %w", l.envFile, err)
		default:
			for k, v := range dot {
				merged[k] = v
			}
		}
	}
	if l.systemEnv {
		for _, entry := range os.Environ() {
			if key, value, ok := strings.Cut(entry, "="); ok {
				merged[key] = value
			}
		}
	}
	for k, v := range l.overrides {
		merged[k] = v
	}
	return merged, nil
}

// EnvironmentValues returns the merged raw values, for settings needed before Load runs
// (logger level, secret fetcher wiring).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	return newLoader(opts).values()
}

// Load reads, resolves and validates the configuration.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	l := newLoader(opts)
	raw, err := l.values()
	if err != nil {
		return Config{}, err
	}

	env := envReader{values: raw}
	cfg := Config{
		Server: ServerConfig{
			Port:           env.str("RETURNS_SERVER_PORT", "8080"),
			ReadTimeout:    env.duration("RETURNS_SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   env.duration("RETURNS_SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    env.duration("RETURNS_SERVER_IDLE_TIMEOUT", 2*time.Minute),
			RequestTimeout: env.duration("RETURNS_SERVER_REQUEST_TIMEOUT", time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:    strings.ToLower(env.str("RETURNS_LOG_LEVEL", "info")),
			ServiceName: env.str("RETURNS_SERVICE_NAME", "returns-api"),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("RETURNS_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("RETURNS_FIRESTORE_EMULATOR_HOST", ""),
		},
		Postgres: PostgresConfig{
			DSN:             env.str("RETURNS_POSTGRES_DSN", ""),
			MaxOpenConns:    env.integer("RETURNS_POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    env.integer("RETURNS_POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: env.duration("RETURNS_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     env.str("RETURNS_REDIS_ADDR", ""),
			Password: env.str("RETURNS_REDIS_PASSWORD", ""),
			DB:       env.integer("RETURNS_REDIS_DB", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:   env.str("RETURNS_PUBSUB_PROJECT_ID", ""),
			EventsTopic: env.str("RETURNS_PUBSUB_EVENTS_TOPIC", ""),
			JobsTopic:   env.str("RETURNS_PUBSUB_JOBS_TOPIC", ""),
		},
		Storage: StorageConfig{ReceiptsBucket: env.str("RETURNS_STORAGE_RECEIPTS_BUCKET", "")},
		Stripe:  StripeConfig{APIKey: env.str("RETURNS_STRIPE_API_KEY", "")},
		Carrier: CarrierConfig{
			BaseURL:                 env.str("RETURNS_CARRIER_BASE_URL", ""),
			APIKey:                  env.str("RETURNS_CARRIER_API_KEY", ""),
			Sandbox:                 env.flag("RETURNS_CARRIER_SANDBOX", false),
			Timeout:                 env.duration("RETURNS_CARRIER_TIMEOUT", 20*time.Second),
			ExcludedServiceKeywords: env.list("RETURNS_CARRIER_EXCLUDED_KEYWORDS"),
		},
		Warehouse: WarehouseConfig{
			Name:       env.str("RETURNS_WAREHOUSE_NAME", ""),
			Company:    env.str("RETURNS_WAREHOUSE_COMPANY", ""),
			Phone:      env.str("RETURNS_WAREHOUSE_PHONE", ""),
			Email:      env.str("RETURNS_WAREHOUSE_EMAIL", ""),
			Line1:      env.str("RETURNS_WAREHOUSE_LINE1", ""),
			Line2:      env.str("RETURNS_WAREHOUSE_LINE2", ""),
			City:       env.str("RETURNS_WAREHOUSE_CITY", ""),
			State:      env.str("RETURNS_WAREHOUSE_STATE", ""),
			PostalCode: env.str("RETURNS_WAREHOUSE_POSTCODE", ""),
			Country:    strings.ToUpper(env.str("RETURNS_WAREHOUSE_COUNTRY", "MY")),
		},
		Returns: ReturnsConfig{
			WindowDays:       env.integer("RETURNS_WINDOW_DAYS", 30),
			DefaultCurrency:  strings.ToUpper(env.str("RETURNS_DEFAULT_CURRENCY", "MYR")),
			RefundProviderID: strings.ToLower(env.str("RETURNS_REFUND_PROVIDER_ID", "stripe")),
		},
		Idempotency: IdempotencyConfig{
			Header:           env.str("RETURNS_IDEMPOTENCY_HEADER", "Idempotency-Key"),
			TTL:              env.duration("RETURNS_IDEMPOTENCY_TTL", 24*time.Hour),
			CleanupInterval:  env.duration("RETURNS_IDEMPOTENCY_CLEANUP_INTERVAL", time.Hour),
			CleanupBatchSize: env.integer("RETURNS_IDEMPOTENCY_CLEANUP_BATCH", 200),
		},
		Worker: WorkerConfig{
			HandoffInterval:  env.duration("RETURNS_WORKER_HANDOFF_INTERVAL", time.Minute),
			HandoffBatchSize: env.integer("RETURNS_WORKER_HANDOFF_BATCH", 50),
		},
	}
	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}

	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Carrier.BaseURL == "" {
		cfg.Carrier.BaseURL = liveCarrierURL
		if cfg.Carrier.Sandbox {
			cfg.Carrier.BaseURL = sandboxCarrierURL
		}
	}

	resolved, err := l.resolveSecrets(ctx, map[string]*string{
		"Postgres.DSN":   &cfg.Postgres.DSN,
		"Redis.Password": &cfg.Redis.Password,
		"Stripe.APIKey":  &cfg.Stripe.APIKey,
		"Carrier.APIKey": &cfg.Carrier.APIKey,
	})
	if err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	if missing := missingSecrets(l.required, resolved); missing != nil {
		if l.panicOnMissing {
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

// resolveSecrets replaces secret:// and sm:// values in place and returns every field's final
// value keyed by field name.
func (l *loader) resolveSecrets(ctx context.Context, fields map[string]*string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for name, field := range fields {
		value := strings.TrimSpace(*field)
		if ref, ok := secretReference(value); ok {
			if l.resolver == nil {
				return nil, &SecretError{Ref: ref, Err: errNoSecretResolver}
			}
			secret, err := l.resolver.Resolve(ctx, ref)
			if err != nil {
				return nil, &SecretError{Ref: ref, Err: err}
			}
			value = secret
		}
		*field = value
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func secretReference(value string) (string, bool) {
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		return "secret://" + rest, true
	}
	return value, strings.HasPrefix(value, "secret://")
}

func missingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var names []string
	seen := map[string]bool{}
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if resolved[name] == "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func validate(cfg Config) error {
	err := structValidator.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config: validate: %w", err)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, strings.TrimPrefix(fe.Namespace(), "Config."))
	}
	return &ValidationError{fields: fields}
}

// envReader reads typed values. Unparseable values are collected rather than defaulted.
type envReader struct {
	values map[string]string
	errs   []error
}

func (r *envReader) lookup(key string) (string, bool) {
	value := strings.TrimSpace(r.values[key])
	return value, value != ""
}

func (r *envReader) str(key, fallback string) string {
	if value, ok := r.lookup(key); ok {
		return value
	}
	return fallback
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	value, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: %w", key, err))
		return fallback
	}
	return d
}

func (r *envReader) integer(key string, fallback int) int {
	value, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: %w", key, err))
		return fallback
	}
	return n
}

func (r *envReader) flag(key string, fallback bool) bool {
	value, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	r.errs = append(r.errs, fmt.Errorf("config: %s: %q is not a boolean", key, value))
	return fallback
}

func (r *envReader) list(key string) []string {
	value, _ := r.lookup(key)
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
