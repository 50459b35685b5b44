package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("ledger-service")
	require.NoError(t, err)

	assert.Equal(t, "ledger-service", cfg.Server.ServiceName)
	assert.Equal(t, "usd", cfg.Ledger.Currency)
	assert.Equal(t, 2000, cfg.Ledger.CommissionBps)
	assert.Equal(t, int64(500), cfg.Ledger.MinPayoutAmount)
	assert.Equal(t, 30*time.Minute, cfg.Ledger.PayoutStaleness)
	assert.Equal(t, 5*time.Minute, cfg.Ledger.ReconcileInterval)
	assert.Equal(t, 15*time.Second, cfg.Ledger.ProcessorTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LEDGER_COMMISSION_BPS", "1500")
	t.Setenv("LEDGER_PAYOUT_STALENESS", "1h")
	t.Setenv("LEDGER_MIN_PAYOUT_AMOUNT", "1000")

	cfg, err := Load("ledger-service")
	require.NoError(t, err)

	assert.Equal(t, 1500, cfg.Ledger.CommissionBps)
	assert.Equal(t, time.Hour, cfg.Ledger.PayoutStaleness)
	assert.Equal(t, int64(1000), cfg.Ledger.MinPayoutAmount)
}

func TestLoad_RejectsInvalidCommission(t *testing.T) {
	t.Setenv("LEDGER_COMMISSION_BPS", "10000")

	_, err := Load("ledger-service")
	assert.Error(t, err)
}

func TestLoad_RequiresJWTSecretInProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load("ledger-service")
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p",
		DBName: "driverledger", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://u:p@db:5432/driverledger?sslmode=disable", d.DSN())
}
