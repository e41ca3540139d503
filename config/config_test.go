package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-cli/aperture/aperr"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestManagerSpecLifecycle(t *testing.T) {
	m := newTestManager(t)
	raw := []byte("openapi: 3.0.0\n")

	require.NoError(t, m.AddSpec("petstore", raw, false))
	assert.True(t, m.HasSpec("petstore"))

	err := m.AddSpec("petstore", raw, false)
	require.Error(t, err)
	assert.Equal(t, aperr.Configuration, aperr.KindOf(err))
	assert.Contains(t, err.Error(), "--force")

	require.NoError(t, m.AddSpec("petstore", raw, true))

	require.NoError(t, m.AddSpec("billing", raw, false))
	names, err := m.ListAPIs()
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "petstore"}, names)

	require.NoError(t, m.RemoveSpec("billing"))
	names, err = m.ListAPIs()
	require.NoError(t, err)
	assert.Equal(t, []string{"petstore"}, names)

	err = m.RemoveSpec("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestManagerListSkipsMappingFiles(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.AddSpec("petstore", []byte("openapi: 3.0.0\n"), false))
	require.NoError(t, writeFile(m.MappingPath("petstore"), "commands: {}\n"))

	names, err := m.ListAPIs()
	require.NoError(t, err)
	assert.Equal(t, []string{"petstore"}, names)
}

func TestGlobalConfigRoundTrip(t *testing.T) {
	m := newTestManager(t)

	cfg, err := m.LoadGlobal()
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeoutSecs, cfg.TimeoutSecs())

	cfg.DefaultTimeoutSecs = 45
	cfg.AgentDefaults.JSONErrors = true
	cfg.SetSecret("petstore", "apiKey", "PETSTORE_KEY")
	cfg.SetURL("petstore", "", "https://override.example.com")
	cfg.SetURL("petstore", "staging", "https://staging.example.com")
	require.NoError(t, m.SaveGlobal(cfg))

	loaded, err := m.LoadGlobal()
	require.NoError(t, err)
	assert.Equal(t, 45, loaded.TimeoutSecs())
	assert.True(t, loaded.AgentDefaults.JSONErrors)

	api := loaded.API("petstore")
	assert.Equal(t, "https://override.example.com", api.BaseURLOverride)
	assert.Equal(t, "https://staging.example.com", api.EnvironmentURLs["staging"])
	assert.Equal(t, SecretRef{Source: "env", Name: "PETSTORE_KEY"}, api.Secrets["apiKey"])
}

func TestSecretOverrides(t *testing.T) {
	cfg := &GlobalConfig{}
	cfg.SetSecret("petstore", "apiKey", "KEY_A")
	cfg.SetSecret("petstore", "bearer", "KEY_B")

	assert.True(t, cfg.RemoveSecret("petstore", "apiKey"))
	assert.False(t, cfg.RemoveSecret("petstore", "apiKey"))
	assert.Len(t, cfg.API("petstore").Secrets, 1)

	cfg.ClearSecrets("petstore")
	assert.Empty(t, cfg.API("petstore").Secrets)
}

func TestSettings(t *testing.T) {
	cfg := &GlobalConfig{}

	require.NoError(t, SetSetting(cfg, SettingDefaultTimeoutSecs, "90"))
	v, err := GetSetting(cfg, SettingDefaultTimeoutSecs)
	require.NoError(t, err)
	assert.Equal(t, "90", v)

	require.NoError(t, SetSetting(cfg, SettingJSONErrors, "true"))
	assert.True(t, cfg.AgentDefaults.JSONErrors)

	assert.Error(t, SetSetting(cfg, SettingDefaultTimeoutSecs, "zero"))
	assert.Error(t, SetSetting(cfg, SettingDefaultTimeoutSecs, "-1"))
	assert.Error(t, SetSetting(cfg, SettingJSONErrors, "maybe"))
	assert.Error(t, SetSetting(cfg, "no.such.key", "1"))
	_, err = GetSetting(cfg, "no.such.key")
	assert.Error(t, err)

	all := Settings(cfg)
	require.Len(t, all, 2)
	assert.Equal(t, SettingDefaultTimeoutSecs, all[0].Key)
	assert.Equal(t, "90", all[0].Value)
}
