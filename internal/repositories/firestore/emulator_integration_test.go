//go:build integration

package firestore

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	pconfig "github.com/hanko-field/returns/internal/platform/config"
	pfirestore "github.com/hanko-field/returns/internal/platform/firestore"
)

// newEmulatorProvider binds a provider to the emulator named by FIRESTORE_EMULATOR_HOST, e.g.
//
//	gcloud emulators firestore start --host-port=127.0.0.1:8787
//	FIRESTORE_EMULATOR_HOST=127.0.0.1:8787 go test -tags integration ./internal/repositories/firestore/...
//
// Every call gets its own project ID so tests never see each other's documents.
func newEmulatorProvider(t *testing.T, prefix string) *pfirestore.Provider {
	t.Helper()
	host := strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST"))
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	conn, err := net.DialTimeout("tcp", host, 2*time.Second)
	if err != nil {
		t.Skipf("firestore emulator unreachable at %s: %v", host, err)
	}
	_ = conn.Close()

	projectID := fmt.Sprintf("%s-%s", prefix, strings.ToLower(ulid.Make().String()[20:]))
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: projectID, EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}
