package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func seedB64() string {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(seed)
}

func TestLoadDevDefaults(t *testing.T) {
	t.Setenv("SESSIONAUTH_DEV", "true")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)
	assert.True(t, cfg.Dev)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 5, cfg.MaxLoginAttempts)
	assert.Equal(t, "sa", cfg.KeyPrefix)

	engineCfg, err := cfg.Engine()
	require.NoError(t, err)
	assert.Len(t, engineCfg.JWT.SigningKeys["default"], ed25519.PrivateKeySize, "dev mode generates an ephemeral key")
	assert.True(t, engineCfg.Audit.Enabled)
}

func TestLoadRequiresDatabaseAndKeyOutsideDev(t *testing.T) {
	_, err := Load(missingEnvFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSIONAUTH_DATABASE_URL")

	t.Setenv("SESSIONAUTH_DATABASE_URL", "postgres://localhost/auth")
	_, err = Load(missingEnvFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSIONAUTH_JWT_SIGNING_KEY")
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	t.Setenv("SESSIONAUTH_DEV", "true")
	t.Setenv("SESSIONAUTH_LOG_FORMAT", "xml")

	_, err := Load(missingEnvFile(t))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authd.env")
	content := "SESSIONAUTH_DEV=true\nSESSIONAUTH_HTTP_ADDR=:9090\nSESSIONAUTH_LOCKOUT_DURATION=30m\nSESSIONAUTH_LOG_FORMAT=console\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SESSIONAUTH_HTTP_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Minute, cfg.LockoutDuration)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoadRejectsUnreadableEnvFile(t *testing.T) {
	t.Setenv("SESSIONAUTH_DEV", "true")

	_, err := Load(t.TempDir())
	require.Error(t, err, "a directory is not a readable env file")
	assert.Contains(t, err.Error(), "read env file")
}

func TestLoadRejectsMalformedEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authd.env")
	require.NoError(t, os.WriteFile(path, []byte("SESSIONAUTH_DEV=true\nthis line is not an assignment\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEngineDecodesEd25519Seed(t *testing.T) {
	t.Setenv("SESSIONAUTH_DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("SESSIONAUTH_JWT_SIGNING_KEY", seedB64())
	t.Setenv("SESSIONAUTH_JWT_ISSUER", "authd")
	t.Setenv("SESSIONAUTH_JWT_ACCESS_TTL", "5m")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	engineCfg, err := cfg.Engine()
	require.NoError(t, err)
	seed, _ := base64.StdEncoding.DecodeString(seedB64())
	assert.Equal(t, []byte(ed25519.NewKeyFromSeed(seed)), engineCfg.JWT.SigningKeys["default"])
	assert.Equal(t, "authd", engineCfg.JWT.Issuer)
	assert.Equal(t, 5*time.Minute, engineCfg.JWT.AccessTTL)
}

func TestEngineRejectsBadKeys(t *testing.T) {
	cases := map[string]string{
		"not base64": "%%%",
		"wrong size": base64.StdEncoding.EncodeToString([]byte("short")),
	}
	for name, key := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{SigningKey: key, SigningMethod: "ed25519", ActiveKeyID: "default"}
			_, err := cfg.Engine()
			assert.Error(t, err)
		})
	}
}

func TestEngineRunsValidate(t *testing.T) {
	t.Setenv("SESSIONAUTH_DEV", "true")
	t.Setenv("SESSIONAUTH_JWT_REFRESH_TTL", "1m")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	_, err = cfg.Engine()
	assert.Error(t, err, "refresh TTL shorter than access TTL")
}
