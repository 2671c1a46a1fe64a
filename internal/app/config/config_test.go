package config_test

import (
	"testing"
	"time"

	"walink/internal/app/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddress())

		assert.Equal(t, 120*time.Second, cfg.WhatsApp.QRTimeout)
		assert.Equal(t, 5*time.Second, cfg.WhatsApp.ReconnectInterval)
		assert.Equal(t, 5, cfg.WhatsApp.MaxReconnectAttempts)
		assert.Equal(t, 50, cfg.WhatsApp.MaxDevicesPerUser)
		assert.True(t, cfg.WhatsApp.AutoConnect)

		assert.Equal(t, "walink", cfg.Database.Name)
		assert.Equal(t, 5432, cfg.Database.Port)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "9090")
		t.Setenv("WA_QR_TIMEOUT", "45s")
		t.Setenv("WA_MAX_RECONNECT_ATTEMPTS", "3")
		t.Setenv("WA_MAX_DEVICES_PER_USER", "10")
		t.Setenv("WA_AUTO_CONNECT", "false")
		t.Setenv("DB_NAME", "walink_test")

		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 45*time.Second, cfg.WhatsApp.QRTimeout)
		assert.Equal(t, 3, cfg.WhatsApp.MaxReconnectAttempts)
		assert.Equal(t, 10, cfg.WhatsApp.MaxDevicesPerUser)
		assert.False(t, cfg.WhatsApp.AutoConnect)
		assert.Equal(t, "walink_test", cfg.Database.Name)
	})

	t.Run("rejects an invalid port", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "70000")

		_, err := config.Load()
		require.Error(t, err)
	})

	t.Run("malformed values fall back to defaults", func(t *testing.T) {
		t.Setenv("WA_QR_TIMEOUT", "soon")
		t.Setenv("WA_MAX_RECONNECT_ATTEMPTS", "many")

		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, 120*time.Second, cfg.WhatsApp.QRTimeout)
		assert.Equal(t, 5, cfg.WhatsApp.MaxReconnectAttempts)
	})
}
