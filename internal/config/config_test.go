package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	cfg := Load()

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 3*time.Second, cfg.LedgerLockTimeout)
	assert.Equal(t, 3, cfg.LedgerMaxRetries)
	assert.Equal(t, 5, cfg.KeygenMaxAttempts)
	assert.Equal(t, 60, cfg.ValidateRateLimit)
	assert.Equal(t, time.Hour, cfg.ExpirySweepInterval)
	assert.Equal(t, 7, cfg.ExpiryWarnDays)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "POSTGRES")
	t.Setenv("DATABASE_URL", "postgres://localhost/licenses")
	t.Setenv("LEDGER_LOCK_TIMEOUT", "750ms")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "120")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://admin.example.com, https://ops.example.com")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg := Load()
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 750*time.Millisecond, cfg.LedgerLockTimeout)
	assert.Equal(t, 2*time.Minute, cfg.ExpirySweepInterval)
	assert.Equal(t, []string{"https://admin.example.com", "https://ops.example.com"}, cfg.AllowedOrigins)
	assert.EqualValues(t, 20, cfg.DBMaxConns)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	assert.Error(t, Load().Validate())

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("APP_ENV", "production")
	assert.Error(t, Load().Validate())

	t.Setenv("STORE_DRIVER", "sqlite")
	assert.Error(t, Load().Validate())
}
