// Package config owns the on-disk configuration directory: the TOML global
// config with its per-API overrides, the verbatim stored specs, and the
// locations the cached specs and response cache live under. It also resolves
// base URLs and server-variable templates for outgoing requests.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/aperture-cli/aperture/aperr"
)

// DefaultTimeoutSecs is the per-request HTTP timeout when the config does
// not set one.
const DefaultTimeoutSecs = 30

// GlobalConfig is the decoded config.toml.
type GlobalConfig struct {
	DefaultTimeoutSecs int                  `toml:"default_timeout_secs,omitempty"`
	AgentDefaults      AgentDefaults        `toml:"agent_defaults,omitempty"`
	APIConfigs         map[string]APIConfig `toml:"api_configs,omitempty"`
}

// AgentDefaults are behaviors agents opt into for every invocation.
type AgentDefaults struct {
	JSONErrors bool `toml:"json_errors,omitempty"`
}

// APIConfig carries per-API overrides keyed by API name.
type APIConfig struct {
	BaseURLOverride string               `toml:"base_url_override,omitempty"`
	EnvironmentURLs map[string]string    `toml:"environment_urls,omitempty"`
	Secrets         map[string]SecretRef `toml:"secrets,omitempty"`
}

// SecretRef points a security scheme at the environment variable holding its
// credential. Source is always "env".
type SecretRef struct {
	Source string `toml:"source"`
	Name   string `toml:"name"`
}

// TimeoutSecs returns the effective per-request timeout.
func (c *GlobalConfig) TimeoutSecs() int {
	if c == nil || c.DefaultTimeoutSecs <= 0 {
		return DefaultTimeoutSecs
	}
	return c.DefaultTimeoutSecs
}

// API returns the overrides for name, or a zero value when none exist.
func (c *GlobalConfig) API(name string) APIConfig {
	if c == nil {
		return APIConfig{}
	}
	return c.APIConfigs[name]
}

func (c *GlobalConfig) ensureAPI(name string) APIConfig {
	if c.APIConfigs == nil {
		c.APIConfigs = make(map[string]APIConfig)
	}
	return c.APIConfigs[name]
}

// SetSecret records a per-API secret override.
func (c *GlobalConfig) SetSecret(api, scheme, envVar string) {
	ac := c.ensureAPI(api)
	if ac.Secrets == nil {
		ac.Secrets = make(map[string]SecretRef)
	}
	ac.Secrets[scheme] = SecretRef{Source: "env", Name: envVar}
	c.APIConfigs[api] = ac
}

// RemoveSecret drops a per-API secret override. It reports whether the
// override existed.
func (c *GlobalConfig) RemoveSecret(api, scheme string) bool {
	ac := c.API(api)
	if _, ok := ac.Secrets[scheme]; !ok {
		return false
	}
	delete(ac.Secrets, scheme)
	c.APIConfigs[api] = ac
	return true
}

// ClearSecrets drops every secret override for an API.
func (c *GlobalConfig) ClearSecrets(api string) {
	ac := c.API(api)
	ac.Secrets = nil
	if c.APIConfigs != nil {
		c.APIConfigs[api] = ac
	}
}

// SetURL records a base URL override. An empty environment sets the general
// override; otherwise the environment-specific one.
func (c *GlobalConfig) SetURL(api, environment, url string) {
	ac := c.ensureAPI(api)
	if environment == "" {
		ac.BaseURLOverride = url
	} else {
		if ac.EnvironmentURLs == nil {
			ac.EnvironmentURLs = make(map[string]string)
		}
		ac.EnvironmentURLs[environment] = url
	}
	c.APIConfigs[api] = ac
}

// Manager locates and persists everything under the config directory.
type Manager struct {
	root string
}

// Dir resolves the config directory root: APERTURE_CONFIG_DIR when set,
// otherwise the platform user-config location.
func Dir() (string, error) {
	if dir := os.Getenv("APERTURE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", aperr.Wrap(aperr.Configuration, err, "cannot determine user config directory")
	}
	return filepath.Join(base, "aperture"), nil
}

// NewManager returns a manager rooted at dir and creates the layout.
func NewManager(dir string) (*Manager, error) {
	m := &Manager{root: dir}
	for _, d := range []string{m.SpecsDir(), m.SpecCacheDir(), m.ResponseCacheDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, aperr.Wrap(aperr.Configuration, err, "failed to create config directory %s", d)
		}
	}
	return m, nil
}

func (m *Manager) Root() string             { return m.root }
func (m *Manager) SpecsDir() string         { return filepath.Join(m.root, "specs") }
func (m *Manager) SpecCacheDir() string     { return filepath.Join(m.root, ".cache") }
func (m *Manager) ResponseCacheDir() string { return filepath.Join(m.root, ".cache", "responses") }
func (m *Manager) ConfigPath() string       { return filepath.Join(m.root, "config.toml") }

// SpecPath is the verbatim stored spec for an API.
func (m *Manager) SpecPath(name string) string {
	return filepath.Join(m.SpecsDir(), name+".yaml")
}

// MappingPath is the optional command mapping for an API.
func (m *Manager) MappingPath(name string) string {
	return filepath.Join(m.SpecsDir(), name+".mapping.yaml")
}

// LoadGlobal decodes config.toml. A missing file yields an empty config.
func (m *Manager) LoadGlobal() (*GlobalConfig, error) {
	var cfg GlobalConfig
	_, err := toml.DecodeFile(m.ConfigPath(), &cfg)
	if os.IsNotExist(err) {
		return &cfg, nil
	}
	if err != nil {
		return nil, aperr.Wrap(aperr.Configuration, err, "failed to parse %s", m.ConfigPath())
	}
	return &cfg, nil
}

// SaveGlobal writes config.toml as a whole.
func (m *Manager) SaveGlobal(cfg *GlobalConfig) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return aperr.Wrap(aperr.Configuration, err, "failed to encode config")
	}
	if err := os.WriteFile(m.ConfigPath(), buf.Bytes(), 0o600); err != nil {
		return aperr.Wrap(aperr.Configuration, err, "failed to write %s", m.ConfigPath())
	}
	return nil
}

// HasSpec reports whether an API is registered.
func (m *Manager) HasSpec(name string) bool {
	_, err := os.Stat(m.SpecPath(name))
	return err == nil
}

// AddSpec stores the raw spec bytes verbatim. Registering an existing name
// without force is a Configuration error.
func (m *Manager) AddSpec(name string, raw []byte, force bool) error {
	if m.HasSpec(name) && !force {
		return aperr.New(aperr.Configuration,
			"API %q is already registered; use --force to overwrite", name)
	}
	if err := os.WriteFile(m.SpecPath(name), raw, 0o644); err != nil {
		return aperr.Wrap(aperr.Configuration, err, "failed to store spec for %q", name)
	}
	return nil
}

// RemoveSpec deletes the stored spec, its mapping, and its cached form.
func (m *Manager) RemoveSpec(name string) error {
	if !m.HasSpec(name) {
		return aperr.New(aperr.Configuration, "API %q is not registered", name)
	}
	if err := os.Remove(m.SpecPath(name)); err != nil {
		return aperr.Wrap(aperr.Configuration, err, "failed to remove spec for %q", name)
	}
	_ = os.Remove(m.MappingPath(name))
	_ = os.Remove(filepath.Join(m.SpecCacheDir(), name+".bin"))
	return nil
}

// ListAPIs returns the registered API names in sorted order.
func (m *Manager) ListAPIs() ([]string, error) {
	entries, err := os.ReadDir(m.SpecsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, aperr.Wrap(aperr.Configuration, err, "failed to list specs directory")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".mapping.yaml") {
			continue
		}
		if base, ok := strings.CutSuffix(name, ".yaml"); ok {
			names = append(names, base)
		}
	}
	sort.Strings(names)
	return names, nil
}
