// Package secrets resolves secret:// references from configuration against Google Secret
// Manager, with a local file for development machines without credentials.
package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultLocalFile = ".secrets.local"

// newClient is replaced in tests.
var newClient = func(ctx context.Context, opts ...option.ClientOption) (accessor, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves and caches secret values. Secret Manager is consulted first; the local file is
// used when no project is configured, no client could be built, or Secret Manager refuses the
// call for credential or availability reasons. Missing secrets never fall back.
type Fetcher struct {
	client     accessor
	clientOpts []option.ClientOption
	ownsClient bool
	logger     *zap.Logger

	env            string
	defaultProject string
	projects       map[string]string
	pins           map[string]string

	localPath string
	localOnce sync.Once
	local     map[string]string
	localErr  error

	mu    sync.Mutex
	cache map[string]string

	resolutions metric.Int64Counter
}

// Option customises NewFetcher.
type Option func(*Fetcher)

func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEnvironment selects the entry of the project map, and env-scoped version pins, to use.
func WithEnvironment(env string) Option {
	return func(f *Fetcher) {
		if env = strings.ToLower(strings.TrimSpace(env)); env != "" {
			f.env = env
		}
	}
}

// WithDefaultProject sets the project used when the environment has no mapping.
func WithDefaultProject(projectID string) Option {
	return func(f *Fetcher) { f.defaultProject = strings.TrimSpace(projectID) }
}

// WithProjectMap maps environment names to Secret Manager projects.
func WithProjectMap(projects map[string]string) Option {
	return func(f *Fetcher) {
		for env, project := range projects {
			f.projects[strings.ToLower(env)] = strings.TrimSpace(project)
		}
	}
}

// WithVersionPins pins references to explicit versions. Keys are canonical references, optionally
// prefixed with "env:" to apply to one environment only.
func WithVersionPins(pins map[string]string) Option {
	return func(f *Fetcher) {
		for ref, version := range pins {
			f.pins[ref] = strings.TrimSpace(version)
		}
	}
}

// WithFallbackFile overrides the local secrets file.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) { f.localPath = strings.TrimSpace(path) }
}

// WithClientOptions is passed to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(f *Fetcher) { f.clientOpts = append(f.clientOpts, opts...) }
}

// WithMeter records resolutions on meter instead of the global meter provider.
func WithMeter(meter metric.Meter) Option {
	return func(f *Fetcher) {
		if meter != nil {
			f.resolutions = newResolutionCounter(meter)
		}
	}
}

func withAccessor(client accessor) Option {
	return func(f *Fetcher) {
		f.client = client
		f.ownsClient = false
	}
}

// NewFetcher builds a Fetcher. Failing to create the Secret Manager client is not an error: the
// fetcher then serves from the local file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:    zap.NewNop(),
		env:       "local",
		projects:  make(map[string]string),
		pins:      make(map[string]string),
		localPath: defaultLocalFile,
		cache:     make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if f.resolutions == nil {
		f.resolutions = newResolutionCounter(otel.Meter("github.com/hanko-field/returns/internal/platform/secrets"))
	}
	if f.client == nil {
		client, err := newClient(ctx, f.clientOpts...)
		f.setClient(client, err)
	}
	return f, nil
}

func (f *Fetcher) setClient(client accessor, err error) {
	if err != nil {
		f.logger.Warn("secret manager client unavailable; using local secrets file", zap.Error(err))
		return
	}
	f.client = client
	f.ownsClient = true
}

func newResolutionCounter(meter metric.Meter) metric.Int64Counter {
	counter, err := meter.Int64Counter("secrets.resolutions",
		metric.WithDescription("Secret resolutions by source"))
	if err != nil {
		return nil
	}
	return counter
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value for ref. Fetcher satisfies config.SecretResolver.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	ref, err := parseReference(raw)
	if err != nil {
		return "", err
	}
	version := f.version(ref)
	key := cacheKey(ref.canonical, version)

	f.mu.Lock()
	value, ok := f.cache[key]
	f.mu.Unlock()
	if ok {
		f.count(ctx, "cache")
		return value, nil
	}

	project := f.project(ref)
	if project != "" && f.client != nil {
		value, err := f.access(ctx, ref.resource(project, version))
		switch {
		case err == nil:
			f.remember(key, value)
			f.count(ctx, "secret_manager")
			return value, nil
		case !localFallbackAllowed(err):
			f.count(ctx, "error")
			return "", fmt.Errorf("secrets: resolve %s: %w", ref.canonical, err)
		}
		f.logger.Debug("secret manager refused; trying local secrets file", zap.String("ref", ref.canonical), zap.Error(err))
	}

	value, err = f.fromLocalFile(ref, version)
	if err != nil {
		f.count(ctx, "error")
		return "", err
	}
	f.remember(key, value)
	f.count(ctx, "local")
	return value, nil
}

// Forget evicts every cached version of ref.
func (f *Fetcher) Forget(raw string) {
	ref, err := parseReference(raw)
	if err != nil {
		return
	}
	prefix := cacheKey(ref.canonical, "")
	f.mu.Lock()
	for key := range f.cache {
		if strings.HasPrefix(key, prefix) {
			delete(f.cache, key)
		}
	}
	f.mu.Unlock()
}

func (f *Fetcher) access(ctx context.Context, resource string) (string, error) {
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", resource)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) fromLocalFile(ref reference, version string) (string, error) {
	f.localOnce.Do(func() {
		f.local, f.localErr = readLocalFile(f.localPath)
	})
	if f.localErr != nil {
		return "", f.localErr
	}
	if value, ok := f.local[cacheKey(ref.canonical, version)]; ok {
		return value, nil
	}
	if value, ok := f.local[ref.canonical]; ok {
		return value, nil
	}
	return "", fmt.Errorf("secrets: %s not found in %s", ref.canonical, f.localPath)
}

func (f *Fetcher) project(ref reference) string {
	if ref.project != "" {
		return ref.project
	}
	if project := f.projects[f.env]; project != "" {
		return project
	}
	return f.defaultProject
}

func (f *Fetcher) version(ref reference) string {
	if ref.version != "" {
		return ref.version
	}
	if pin := f.pins[f.env+":"+ref.canonical]; pin != "" {
		return pin
	}
	if pin := f.pins[ref.canonical]; pin != "" {
		return pin
	}
	return latestVersion
}

func (f *Fetcher) remember(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) count(ctx context.Context, source string) {
	if f.resolutions != nil {
		f.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}
}

func localFallbackAllowed(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
