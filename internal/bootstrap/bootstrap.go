// Package bootstrap performs the startup steps shared by the api and worker binaries: reading
// the environment, building the logger, wiring Secret Manager and loading the configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/returns/internal/platform/config"
	"github.com/hanko-field/returns/internal/platform/observability"
	"github.com/hanko-field/returns/internal/platform/secrets"
	"github.com/hanko-field/returns/internal/services"
)

// Runtime is what a binary needs once startup succeeded.
type Runtime struct {
	Env    map[string]string
	Logger *zap.Logger
	Config config.Config
	Build  services.BuildInfo

	fetcher *secrets.Fetcher
}

// Start runs the shared startup sequence for service ("api" or "worker"). Failures are returned
// rather than logged so main can decide how to exit.
func Start(ctx context.Context, service string, opts ...config.Option) (*Runtime, error) {
	startedAt := time.Now().UTC()
	env, err := config.EnvironmentValues(opts...)
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	serviceName := lookup(env, "RETURNS_SERVICE_NAME")
	if serviceName == "" {
		serviceName = "returns-" + service
	}
	logger, err := observability.NewLogger(lookup(env, "RETURNS_LOG_LEVEL"), serviceName)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	fetcher, err := secrets.NewFetcher(ctx, secretOptions(env, logger.Named("secrets"))...)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("build secret fetcher: %w", err)
	}

	loadOpts := append([]config.Option{}, opts...)
	loadOpts = append(loadOpts,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(RequiredSecrets(service, env)...),
	)
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		_ = fetcher.Close()
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		_ = logger.Sync()
		return nil, err
	}

	return &Runtime{
		Env:     env,
		Logger:  logger,
		Config:  cfg,
		Build:   BuildInfo(env, startedAt),
		fetcher: fetcher,
	}, nil
}

// Close releases the secret client and flushes the logger.
func (r *Runtime) Close() {
	if err := r.fetcher.Close(); err != nil {
		r.Logger.Warn("secret fetcher close error", zap.Error(err))
	}
	_ = r.Logger.Sync()
}

// RequiredSecrets lists the secret-backed fields that must resolve for service. Optional
// integrations are only required when their variable is set at all. The worker exists to
// drive the carrier so it always needs the carrier key.
func RequiredSecrets(service string, env map[string]string) []string {
	required := []string{"Postgres.DSN"}
	optional := map[string]string{
		"RETURNS_CARRIER_API_KEY": "Carrier.APIKey",
		"RETURNS_REDIS_PASSWORD":  "Redis.Password",
		"RETURNS_STRIPE_API_KEY":  "Stripe.APIKey",
	}
	for _, key := range []string{"RETURNS_CARRIER_API_KEY", "RETURNS_REDIS_PASSWORD", "RETURNS_STRIPE_API_KEY"} {
		if lookup(env, key) != "" || (service == "worker" && key == "RETURNS_CARRIER_API_KEY") {
			required = append(required, optional[key])
		}
	}
	return required
}

// BuildInfo reads the build metadata injected at deploy time.
func BuildInfo(env map[string]string, startedAt time.Time) services.BuildInfo {
	info := services.BuildInfo{
		Version:     lookup(env, "RETURNS_BUILD_VERSION"),
		CommitSHA:   lookup(env, "RETURNS_BUILD_COMMIT_SHA"),
		Environment: strings.ToLower(lookup(env, "RETURNS_ENVIRONMENT")),
		StartedAt:   startedAt,
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.CommitSHA == "" {
		info.CommitSHA = "unknown"
	}
	if info.Environment == "" {
		info.Environment = "local"
	}
	return info
}

func secretOptions(env map[string]string, logger *zap.Logger) []secrets.Option {
	opts := []secrets.Option{
		secrets.WithLogger(logger),
		secrets.WithEnvironment(strings.ToLower(lookup(env, "RETURNS_ENVIRONMENT"))),
	}
	if path := lookup(env, "RETURNS_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	project := lookup(env, "RETURNS_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup(env, "RETURNS_FIRESTORE_PROJECT_ID")
	}
	if project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if projects := keyValues(lookup(env, "RETURNS_SECRET_PROJECT_IDS")); len(projects) > 0 {
		byEnv := make(map[string]string, len(projects))
		for label, id := range projects {
			byEnv[strings.ToLower(label)] = id
		}
		opts = append(opts, secrets.WithProjectMap(byEnv))
	}
	if pins := versionPins(lookup(env, "RETURNS_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if file := lookup(env, "RETURNS_GOOGLE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return opts
}

// versionPins parses "ref=version" pairs. A ref may carry an environment prefix
// ("prod:stripe_api_key=4") and may omit the secret:// scheme.
func versionPins(raw string) map[string]string {
	pins := map[string]string{}
	for ref, version := range keyValues(raw) {
		scope := ""
		if label, rest, ok := strings.Cut(ref, ":"); ok && !strings.HasPrefix(rest, "//") {
			scope = strings.ToLower(strings.TrimSpace(label)) + ":"
			ref = strings.TrimSpace(rest)
		}
		if name, ok := strings.CutPrefix(ref, "sm://"); ok {
			ref = "secret://" + name
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		pins[scope+ref] = version
	}
	return pins
}

// keyValues parses "a=1,b=2". Entries without a key or value are skipped.
func keyValues(raw string) map[string]string {
	out := map[string]string{}
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(entry, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if ok && key != "" && value != "" {
			out[key] = value
		}
	}
	return out
}

func lookup(env map[string]string, key string) string {
	return strings.TrimSpace(env[key])
}
