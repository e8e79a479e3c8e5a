package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://pits.example.com, https://scores.example.com")
	t.Setenv("MQTT_BROKER", "tcp://arena.local:1883")
	t.Setenv("DB_MAX_OPEN_CONNS", "12")
	t.Setenv("DB_CONNECT_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DatabaseConfig{MaxOpenConns: 12, ConnectTimeout: 2 * time.Second}, cfg.Database)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"https://pits.example.com", "https://scores.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.MQTT.Enabled())
	assert.Equal(t, "nrc/arena", cfg.MQTT.TopicPrefix)
	assert.False(t, cfg.R2.Enabled())
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("SERVER_PORT", "70000")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("LOG_LEVEL", "loud")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("DB_CONN_MAX_LIFETIME", "forever")
	_, err = Load()
	assert.Error(t, err)
}
