package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-cli/aperture/aperr"
	"github.com/aperture-cli/aperture/spec"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestResolveBaseURLPriority(t *testing.T) {
	cached := &spec.CachedSpec{BaseURL: "https://api.example.com"}
	cfg := &GlobalConfig{}
	cfg.SetURL("petstore", "", "https://override.example.com")
	cfg.SetURL("petstore", "staging", "https://staging.example.com")

	env := map[string]string{"APERTURE_BASE_URL": "http://env.local"}
	r := &URLResolver{Env: envMap(env)}

	// Explicit beats everything.
	assert.Equal(t, "http://flag.local",
		r.Resolve("http://flag.local", "petstore", cfg, cached))

	// Without APERTURE_ENV the general override wins over the env var.
	assert.Equal(t, "https://override.example.com",
		r.Resolve("", "petstore", cfg, cached))

	// With APERTURE_ENV set the environment-specific override wins.
	env["APERTURE_ENV"] = "staging"
	assert.Equal(t, "https://staging.example.com",
		r.Resolve("", "petstore", cfg, cached))

	// An environment with no mapping falls through to the general override.
	env["APERTURE_ENV"] = "production"
	assert.Equal(t, "https://override.example.com",
		r.Resolve("", "petstore", cfg, cached))
}

func TestResolveBaseURLFallbacks(t *testing.T) {
	cached := &spec.CachedSpec{BaseURL: "https://first-server.example.com"}
	env := map[string]string{}
	r := &URLResolver{Env: envMap(env)}

	assert.Equal(t, "https://first-server.example.com",
		r.Resolve("", "petstore", &GlobalConfig{}, cached))

	env["APERTURE_BASE_URL"] = "http://env.local"
	assert.Equal(t, "http://env.local",
		r.Resolve("", "petstore", &GlobalConfig{}, cached))

	delete(env, "APERTURE_BASE_URL")
	assert.Equal(t, FallbackBaseURL,
		r.Resolve("", "petstore", &GlobalConfig{}, &spec.CachedSpec{}))
}

func TestSubstituteServerVariables(t *testing.T) {
	vars := map[string]spec.ServerVariable{
		"region": {Default: "us-east-1", Enum: []string{"us-east-1", "eu-west-1"}},
		"port":   {Default: "443"},
	}
	base := "https://{region}.example.com:{port}"

	url, err := SubstituteServerVariables(base, vars, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://us-east-1.example.com:443", url)

	url, err = SubstituteServerVariables(base, vars, []string{"region=eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, "https://eu-west-1.example.com:443", url)
}

func TestSubstituteServerVariablesErrors(t *testing.T) {
	vars := map[string]spec.ServerVariable{
		"region": {Default: "us-east-1", Enum: []string{"us-east-1"}},
	}
	base := "https://{region}.example.com"

	_, err := SubstituteServerVariables(base, vars, []string{"region=mars-1"})
	require.Error(t, err)
	assert.Equal(t, aperr.InvalidServerVarValue, aperr.KindOf(err))

	_, err = SubstituteServerVariables(base, vars, []string{"zone=a"})
	require.Error(t, err)
	assert.Equal(t, aperr.UnknownServerVariable, aperr.KindOf(err))

	_, err = SubstituteServerVariables(base, vars, []string{"not-a-pair"})
	require.Error(t, err)
	assert.Equal(t, aperr.InvalidArgument, aperr.KindOf(err))
}

func TestSubstituteServerVariablesFallsBackWhenUnresolved(t *testing.T) {
	base := "https://{region}.example.com"

	// No declared variables can fill the token; the URL is used as written.
	url, err := SubstituteServerVariables(base, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, base, url)
}
