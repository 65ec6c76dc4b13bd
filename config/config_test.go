package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, key := range []string{
		"DB_DRIVER", "DATABASE_URL", "HTTP_ADDR", "GATEWAY_TOKEN", "ADMIN_ID",
		"PROFILE_SYNC_URL", "SYNC_SERVICE_TOKEN", "LOG_LEVEL",
		"CLOUDFLARE_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_ACCESS_KEY_SECRET", "R2_BUCKET_NAME",
	} {
		t.Setenv(key, kv[key])
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, nil)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "ledger.db", cfg.DatabaseURL)
	assert.Equal(t, ":5200", cfg.HTTPAddr)
	assert.Zero(t, cfg.AdminID)
	assert.False(t, cfg.R2.Enabled())
	assert.Error(t, cfg.ValidateServe())
}

func TestLoad_Values(t *testing.T) {
	setEnv(t, map[string]string{
		"DB_DRIVER":             "postgres",
		"DATABASE_URL":          "postgres://ledger@localhost/ledger",
		"GATEWAY_TOKEN":         "secret",
		"ADMIN_ID":              "123456",
		"LOG_LEVEL":             "DEBUG",
		"CLOUDFLARE_ACCOUNT_ID": "acct",
		"R2_ACCESS_KEY_ID":      "id",
		"R2_ACCESS_KEY_SECRET":  "s",
		"R2_BUCKET_NAME":        "b",
	})
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(123456), cfg.AdminID)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.R2.Enabled())
	assert.NoError(t, cfg.ValidateServe())

	cfg.ProfileSyncURL = "http://profiles"
	assert.Error(t, cfg.ValidateServe())
}

func TestLoad_Invalid(t *testing.T) {
	setEnv(t, map[string]string{"DB_DRIVER": "mysql"})
	_, err := Load()
	assert.Error(t, err)

	setEnv(t, map[string]string{"ADMIN_ID": "admin"})
	_, err = Load()
	assert.Error(t, err)
}
