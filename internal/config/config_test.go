package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"SONDE_SECRET": "a-very-long-enough-secret",
		"PORT":         "3000",
		"HOST":         "0.0.0.0",
	}
}

func TestLoad_Valid(t *testing.T) {
	setEnv(t, baseEnv())
	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, SecretSourceLocal, cfg.SecretSource)
}

func TestLoad_RejectsShortSecret(t *testing.T) {
	env := baseEnv()
	env["SONDE_SECRET"] = "short"
	setEnv(t, env)

	_, err := Load(zap.NewNop())
	assert.ErrorContains(t, err, "SONDE_SECRET")
}

func TestLoad_AcceptsDeprecatedAPIKeyAlias(t *testing.T) {
	env := baseEnv()
	delete(env, "SONDE_SECRET")
	env["SONDE_API_KEY"] = "a-very-long-enough-secret"
	setEnv(t, env)

	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "a-very-long-enough-secret", cfg.Secret)
}

func TestLoad_RejectsOutOfRangePort(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "70000"
	setEnv(t, env)

	_, err := Load(zap.NewNop())
	assert.ErrorContains(t, err, "PORT")
}

func TestLoad_RejectsNonIntegerPort(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "not-a-number"
	setEnv(t, env)

	_, err := Load(zap.NewNop())
	assert.Error(t, err)
}

func TestLoad_RejectsKeyvaultSecretSource(t *testing.T) {
	env := baseEnv()
	env["SONDE_SECRET_SOURCE"] = "keyvault"
	setEnv(t, env)

	_, err := Load(zap.NewNop())
	assert.ErrorContains(t, err, "not implemented")
}

func TestLoad_RejectsUnknownSecretSource(t *testing.T) {
	env := baseEnv()
	env["SONDE_SECRET_SOURCE"] = "vault"
	setEnv(t, env)

	_, err := Load(zap.NewNop())
	assert.Error(t, err)
}

func TestLoad_DefaultsPortAndHost(t *testing.T) {
	env := map[string]string{"SONDE_SECRET": "a-very-long-enough-secret"}
	setEnv(t, env)

	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
}
