package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8082, cfg.Server.Port)
	assert.Equal(t, FanoutLocal, cfg.Chat.Fanout)
	assert.Equal(t, MessageStoreCockroach, cfg.Chat.MessageStore)
	assert.Equal(t, 10*time.Second, cfg.Chat.HandshakeTimeout)
	assert.Equal(t, uint32(64*1024), cfg.Crypto.KDFMemoryKiB)
	assert.Equal(t, 5, cfg.Lockout.MaxAttempts)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WS_FANOUT", "redis")
	t.Setenv("MESSAGE_STORE", "cassandra")
	t.Setenv("CASSANDRA_HOSTS", "cass-1,cass-2")
	t.Setenv("WS_HANDSHAKE_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, FanoutRedis, cfg.Chat.Fanout)
	assert.Equal(t, MessageStoreCassandra, cfg.Chat.MessageStore)
	assert.Equal(t, []string{"cass-1", "cass-2"}, cfg.Cassandra.Hosts)
	assert.Equal(t, 3*time.Second, cfg.Chat.HandshakeTimeout)
}

func TestLoad_ProductionRequiresStrongSecret(t *testing.T) {
	t.Setenv("ENV", "production")

	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "too-short")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_RejectsUnknownBackends(t *testing.T) {
	t.Setenv("WS_FANOUT", "kafka")
	_, err := Load()
	assert.ErrorContains(t, err, "WS_FANOUT")

	t.Setenv("WS_FANOUT", "local")
	t.Setenv("MESSAGE_STORE", "sqlite")
	_, err = Load()
	assert.ErrorContains(t, err, "MESSAGE_STORE")
}
