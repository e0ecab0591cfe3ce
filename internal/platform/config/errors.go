package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var errNoSecretResolver = errors.New("no secret resolver configured")

// ValidationError lists the Config fields (Postgres.DSN, Returns.WindowDays, ...) that failed
// their constraints.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return "config: invalid or missing fields: " + strings.Join(e.fields, ", ")
}

func (e *ValidationError) Fields() []string {
	return slices.Clone(e.fields)
}

// SecretError wraps a failure to resolve a secret:// reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve %s: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError reports required secret-backed fields that resolved to nothing.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("config: %d required secret(s) missing", len(e.names))
}

// Names returns the missing field names, sorted.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := slices.Clone(e.names)
	slices.Sort(out)
	return out
}

// RedactedNames returns short hashes of the missing names, safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	names := e.Names()
	for i, name := range names {
		names[i] = redactSecretName(name)
	}
	slices.Sort(names)
	return names
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
