package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/returns/internal/platform/config"
)

const (
	emulatorHostEnv = "FIRESTORE_EMULATOR_HOST"
	projectIDEnv    = "GOOGLE_CLOUD_PROJECT"

	connectTimeout = 10 * time.Second
	txMaxAttempts  = 5
	txTimeout      = 15 * time.Second

	// pingCollection is read by Ping; any collection works since an empty result is healthy.
	pingCollection = "returns"
)

// ErrClosed is returned by Client once Close has been called.
var ErrClosed = errors.New("firestore: provider closed")

// Provider owns the process-wide Firestore client. The client is created on first use and
// shared by every repository built on the provider.
type Provider struct {
	cfg config.FirestoreConfig

	mu     sync.Mutex
	client *firestore.Client
	closed bool
}

// NewProvider returns a provider for the configured project. No connection is made until
// Client is called.
func NewProvider(cfg config.FirestoreConfig) *Provider {
	return &Provider{cfg: cfg}
}

// Client returns the shared client, connecting on the first call.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.client != nil {
		return p.client, nil
	}
	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *Provider) connect(ctx context.Context) (*firestore.Client, error) {
	projectID := strings.TrimSpace(p.cfg.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv(projectIDEnv))
	}
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}

	var opts []option.ClientOption
	if host := p.emulatorHost(); host != "" {
		// the SDK reads the variable directly for some code paths
		if os.Getenv(emulatorHostEnv) == "" {
			_ = os.Setenv(emulatorHostEnv, host)
		}
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := firestore.NewClient(dialCtx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: connect to %s: %w", projectID, err)
	}
	return client, nil
}

func (p *Provider) emulatorHost() string {
	if host := strings.TrimSpace(p.cfg.EmulatorHost); host != "" {
		return host
	}
	return strings.TrimSpace(os.Getenv(emulatorHostEnv))
}

// Close shuts the client down. Later calls to Client fail with ErrClosed.
func (p *Provider) Close(context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.closed = true
	p.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

// RunTransaction runs fn in a read-write transaction. Errors returned by fn reach the caller
// unchanged unless Firestore itself failed, in which case they are classified with WrapError.
func (p *Provider) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *firestore.Transaction) error) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, txTimeout)
		defer cancel()
	}
	err = client.RunTransaction(ctx, fn, firestore.MaxAttempts(txMaxAttempts))
	return WrapError("transaction", err)
}

// Ping performs a one-document read for readiness checks.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	iter := client.Collection(pingCollection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return WrapError("ping", err)
	}
	return nil
}
