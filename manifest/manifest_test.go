package manifest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-cli/aperture/spec"
)

func sampleSpec() *spec.CachedSpec {
	return &spec.CachedSpec{
		FormatVersion: spec.FormatVersion,
		Name:          "petstore",
		Version:       "1.2.0",
		BaseURL:       "https://petstore.example.com",
		SecuritySchemes: map[string]spec.SecurityScheme{
			"apiKey": {
				Kind: spec.SchemeAPIKey, Location: "header", ParamName: "X-API-Key",
				Secret: &spec.SecretBinding{Source: "env", Name: "PETSTORE_KEY"},
			},
		},
		Commands: []spec.CachedCommand{
			{
				Tag: "pets", Name: "list-pets", OperationID: "listPets",
				Method: "GET", Path: "/pets",
				SecuritySchemes: []string{"apiKey"},
				Parameters: []spec.CachedParameter{
					{Name: "limit", Location: "query", Type: "integer", FlagName: "limit"},
				},
			},
			{
				Tag: "pets", Name: "create-pet", OperationID: "createPet",
				Method: "POST", Path: "/pets",
				RequestBody: &spec.CachedRequestBody{ContentType: "application/json", Required: true},
			},
			{
				Tag: "internal", Name: "debug", OperationID: "debugOp",
				Method: "GET", Path: "/debug", Hidden: true,
			},
		},
	}
}

func TestBuildManifest(t *testing.T) {
	m := Build(map[string]*spec.CachedSpec{"petstore": sampleSpec()})

	api := m.APIs["petstore"]
	assert.Equal(t, "1.2.0", api.Version)
	require.Contains(t, api.Commands, "pets")
	assert.Len(t, api.Commands["pets"], 2)
	// Hidden commands are left out entirely.
	assert.NotContains(t, api.Commands, "internal")

	scheme := api.SecuritySchemes["apiKey"]
	assert.Equal(t, "api_key", scheme.Kind)
	require.NotNil(t, scheme.Secret)
	assert.Equal(t, "PETSTORE_KEY", scheme.Secret.Name)
}

func TestManifestOmitsEmptyFields(t *testing.T) {
	m := Build(map[string]*spec.CachedSpec{"petstore": sampleSpec()})
	data, err := m.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	apis := decoded["apis"].(map[string]any)
	api := apis["petstore"].(map[string]any)
	commands := api["commands"].(map[string]any)
	pets := commands["pets"].([]any)

	// create-pet sorts first; it has no parameters or security and those
	// keys must be absent, as must false booleans like deprecated.
	create := pets[0].(map[string]any)
	require.Equal(t, "create-pet", create["name"])
	assert.NotContains(t, create, "parameters")
	assert.NotContains(t, create, "security")
	assert.NotContains(t, create, "deprecated")

	list := pets[1].(map[string]any)
	assert.Contains(t, list, "parameters")
	assert.NotContains(t, list, "request_body")
}
