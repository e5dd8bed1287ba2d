package postgres

import (
	"testing"
	"time"

	"merchant-ledger/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig_AppliesLimits(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:            "ledger-db",
		Port:            5433,
		User:            "ledger",
		Password:        "secret",
		DBName:          "merchant_ledger",
		SSLMode:         "disable",
		MaxConns:        12,
		MinConns:        3,
		ConnMaxLifetime: 15 * time.Minute,
	}

	pc, err := poolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "ledger-db", pc.ConnConfig.Host)
	assert.Equal(t, uint16(5433), pc.ConnConfig.Port)
	assert.Equal(t, "merchant_ledger", pc.ConnConfig.Database)
	assert.Equal(t, int32(12), pc.MaxConns)
	assert.Equal(t, int32(3), pc.MinConns)
	assert.Equal(t, 15*time.Minute, pc.MaxConnLifetime)
}

func TestPoolConfig_KeepsDriverDefaultsWhenUnset(t *testing.T) {
	pc, err := poolConfig(config.DatabaseConfig{
		Host: "localhost", Port: 5432, User: "ledger", DBName: "merchant_ledger", SSLMode: "disable",
	})
	require.NoError(t, err)

	assert.Greater(t, pc.MaxConns, int32(0))
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
}

func TestPoolConfig_PasswordWithReservedCharacters(t *testing.T) {
	pc, err := poolConfig(config.DatabaseConfig{
		Host: "localhost", Port: 5432, User: "ledger", Password: "p@ss:w/rd?#",
		DBName: "merchant_ledger", SSLMode: "disable",
	})
	require.NoError(t, err)
	assert.Equal(t, "p@ss:w/rd?#", pc.ConnConfig.Password)
	assert.Equal(t, "ledger", pc.ConnConfig.User)
}
