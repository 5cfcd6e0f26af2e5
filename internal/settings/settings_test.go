package settings

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pensionportal/recovery"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.Addr)
	assert.Equal(t, []string{"NSS"}, s.IdentifierPrefixes)
	assert.Equal(t, 15*time.Minute, s.RateWindow)
	assert.Equal(t, "memory", s.StoreBackend)

	cfg := s.EngineConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Minute, cfg.Reset.CodeTTL)
	assert.Equal(t, 30*time.Minute, cfg.Reset.SessionTTL)
	assert.Equal(t, 3, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, recovery.HasherBcrypt, cfg.Password.Hasher)
	assert.Equal(t, recovery.StoreMemory, cfg.Store.Backend)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("RECOVERY_IDENTIFIER_PREFIXES", " nss , ext ")
	t.Setenv("RECOVERY_CODE_VALIDITY_MINUTES", "5")
	t.Setenv("RECOVERY_RATE_WINDOW", "1h")
	t.Setenv("RECOVERY_RATE_MAX_ATTEMPTS", "7")
	t.Setenv("RECOVERY_STORE_BACKEND", "REDIS")
	t.Setenv("RECOVERY_PRODUCTION_MODE", "true")

	s, err := Load("")
	require.NoError(t, err)

	cfg := s.EngineConfig()
	assert.Equal(t, []string{"NSS", "EXT"}, cfg.Reset.IdentifierPrefixes)
	assert.Equal(t, 5*time.Minute, cfg.Reset.CodeTTL)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, 7, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, recovery.StoreRedis, cfg.Store.Backend)
	assert.True(t, cfg.Security.ProductionMode)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("RECOVERY_RATE_MAX_ATTEMPTS", "lots")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("RECOVERY_TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.10 ,2001:db8::/32")

	s, err := Load("")
	require.NoError(t, err)

	prefixes, err := s.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 3)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.0.2.10/32", prefixes[1].String())
	assert.Equal(t, "2001:db8::/32", prefixes[2].String())
}

func TestLoad_TrustedProxiesDefaultEmpty(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	prefixes, err := s.TrustedProxyPrefixes()
	require.NoError(t, err)
	assert.Empty(t, prefixes)
}

func TestLoad_InvalidTrustedProxy(t *testing.T) {
	t.Setenv("RECOVERY_TRUSTED_PROXIES", "10.0.0.0/33")

	_, err := Load("")
	assert.ErrorContains(t, err, "RECOVERY_TRUSTED_PROXIES")
}

func TestLoad_EnvFile(t *testing.T) {
	const key = "RECOVERY_SMS_GATEWAY_URL"
	require.Empty(t, os.Getenv(key))
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), "recovery.env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=https://sms.example.org/send\n"), 0o600))

	s, err := Load(path)
	require.NoError(t, err)

	sms, ok := s.SMSConfig()
	assert.True(t, ok)
	assert.Equal(t, "https://sms.example.org/send", sms.URL)

	_, ok = s.SMTPConfig()
	assert.False(t, ok)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestEngineConfig_WeakProductionRejected(t *testing.T) {
	t.Setenv("RECOVERY_PRODUCTION_MODE", "true")
	t.Setenv("RECOVERY_BCRYPT_COST", "10")

	s, err := Load("")
	require.NoError(t, err)

	cfg := s.EngineConfig()
	assert.Error(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Settings{LogLevel: "warn", LogFormat: "json"}.NewLogger(&buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)
	assert.Contains(t, buf.String(), `"app":"recovery"`)
}

func TestNewLogger_ProductionIgnoresConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := Settings{LogLevel: "bogus", LogFormat: "console", ProductionMode: true}.NewLogger(&buf)

	logger.Info().Msg("json line")
	assert.Contains(t, buf.String(), `"level":"info"`)
}
