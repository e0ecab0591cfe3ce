package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequiredSecrets(t *testing.T) {
	assert.Equal(t, []string{"Postgres.DSN"}, RequiredSecrets("api", map[string]string{}))
	assert.Equal(t, []string{"Postgres.DSN", "Carrier.APIKey"}, RequiredSecrets("worker", map[string]string{}))
	assert.Equal(t,
		[]string{"Postgres.DSN", "Carrier.APIKey", "Stripe.APIKey"},
		RequiredSecrets("api", map[string]string{
			"RETURNS_CARRIER_API_KEY": "secret://carrier_api_key",
			"RETURNS_STRIPE_API_KEY":  "secret://stripe_api_key",
			"RETURNS_REDIS_PASSWORD":  " ",
		}),
	)
}

func TestBuildInfoDefaults(t *testing.T) {
	started := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)

	info := BuildInfo(map[string]string{}, started)
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "unknown", info.CommitSHA)
	assert.Equal(t, "local", info.Environment)
	assert.Equal(t, started, info.StartedAt)

	info = BuildInfo(map[string]string{
		"RETURNS_BUILD_VERSION":    "1.8.2",
		"RETURNS_BUILD_COMMIT_SHA": "4be1d0a",
		"RETURNS_ENVIRONMENT":      " PROD ",
	}, started)
	assert.Equal(t, "1.8.2", info.Version)
	assert.Equal(t, "4be1d0a", info.CommitSHA)
	assert.Equal(t, "prod", info.Environment)
}

func TestVersionPins(t *testing.T) {
	pins := versionPins("stripe_api_key=4, prod:carrier_api_key=7, sm://postgres_dsn=2, stg:secret://redis_password=1, broken, =3")
	assert.Equal(t, map[string]string{
		"secret://stripe_api_key":       "4",
		"prod:secret://carrier_api_key": "7",
		"secret://postgres_dsn":          "2",
		"stg:secret://redis_password":    "1",
	}, pins)
}

func TestKeyValues(t *testing.T) {
	assert.Equal(t, map[string]string{"prod": "returns-prod", "stg": "returns-stg"},
		keyValues(" prod = returns-prod ,stg=returns-stg,,dev="))
	assert.Empty(t, keyValues(""))
}
