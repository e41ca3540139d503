package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-cli/aperture/aperr"
	"github.com/aperture-cli/aperture/openapi"
)

func parseDoc(t *testing.T, src string) *openapi.Document {
	t.Helper()
	doc, err := openapi.Parse([]byte(src))
	require.NoError(t, err)
	return doc
}

const petstore = `
openapi: 3.0.3
info:
  title: Petstore
  version: 1.2.0
servers:
  - url: https://petstore.example.com/v1
components:
  securitySchemes:
    apiKey:
      type: apiKey
      in: header
      name: X-API-Key
      x-aperture-secret:
        source: env
        name: PETSTORE_KEY
paths:
  /pets:
    get:
      operationId: listPets
      tags: [pets]
      summary: List all pets
      parameters:
        - name: limit
          in: query
          schema:
            type: integer
            format: int32
            default: 20
      security:
        - apiKey: []
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: array
    post:
      operationId: createPet
      tags: [pets]
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
      responses:
        "201":
          description: created
  /pets/{petId}:
    get:
      operationId: getPetById
      tags: [pets]
      parameters:
        - name: petId
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: ok
`

func TestTransformPetstore(t *testing.T) {
	doc := parseDoc(t, petstore)
	cached, err := Transform(doc, TransformOptions{Name: "petstore"})
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, cached.FormatVersion)
	assert.Equal(t, "petstore", cached.Name)
	assert.Equal(t, "1.2.0", cached.Version)
	assert.Equal(t, "https://petstore.example.com/v1", cached.BaseURL)
	require.Len(t, cached.Commands, 3)

	list := cached.FindCommand("pets", "list-pets")
	require.NotNil(t, list)
	assert.Equal(t, "GET", list.Method)
	assert.Equal(t, "/pets", list.Path)
	assert.Equal(t, []string{"apiKey"}, list.SecuritySchemes)
	require.Len(t, list.Parameters, 1)
	assert.Equal(t, "limit", list.Parameters[0].Name)
	assert.Equal(t, "limit", list.Parameters[0].FlagName)
	assert.Equal(t, "integer", list.Parameters[0].Type)
	assert.Equal(t, "20", list.Parameters[0].Default)
	assert.False(t, list.Parameters[0].Required)

	byID := cached.FindCommand("pets", "get-pet-by-id")
	require.NotNil(t, byID)
	require.Len(t, byID.Parameters, 1)
	assert.True(t, byID.Parameters[0].Required)
	assert.Equal(t, "pet-id", byID.Parameters[0].FlagName)

	create := cached.FindCommand("pets", "create-pet")
	require.NotNil(t, create)
	require.NotNil(t, create.RequestBody)
	assert.Equal(t, "application/json", create.RequestBody.ContentType)
	assert.True(t, create.RequestBody.Required)

	scheme, ok := cached.SecuritySchemes["apiKey"]
	require.True(t, ok)
	assert.Equal(t, SchemeAPIKey, scheme.Kind)
	assert.Equal(t, "header", scheme.Location)
	assert.Equal(t, "X-API-Key", scheme.ParamName)
	require.NotNil(t, scheme.Secret)
	assert.Equal(t, "PETSTORE_KEY", scheme.Secret.Name)
}

func TestTransformUntaggedAndMissingOperationID(t *testing.T) {
	doc := parseDoc(t, `
openapi: 3.1.0
info:
  title: Minimal
  version: 0.1.0
paths:
  /users/{id}/posts:
    get:
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: ok
`)
	cached, err := Transform(doc, TransformOptions{Name: "minimal"})
	require.NoError(t, err)
	require.Len(t, cached.Commands, 1)

	cmd := &cached.Commands[0]
	assert.Equal(t, DefaultGroup, cmd.Tag)
	assert.Equal(t, "get-users-id-posts", cmd.Name)
	assert.Empty(t, cached.BaseURL)
}

func TestTransformResolvesParameterRefs(t *testing.T) {
	doc := parseDoc(t, `
openapi: 3.0.0
info:
  title: Refs
  version: 1.0.0
components:
  parameters:
    PageSize:
      name: pageSize
      in: query
      schema:
        type: integer
paths:
  /items:
    get:
      operationId: listItems
      parameters:
        - $ref: "#/components/parameters/PageSize"
      responses:
        "200":
          description: ok
`)
	cached, err := Transform(doc, TransformOptions{Name: "refs"})
	require.NoError(t, err)
	require.Len(t, cached.Commands, 1)
	require.Len(t, cached.Commands[0].Parameters, 1)
	assert.Equal(t, "pageSize", cached.Commands[0].Parameters[0].Name)
	assert.Equal(t, "page-size", cached.Commands[0].Parameters[0].FlagName)
}

func TestTransformRejectsCircularParameterRefs(t *testing.T) {
	doc := parseDoc(t, `
openapi: 3.0.0
info:
  title: Refs
  version: 1.0.0
components:
  parameters:
    A:
      $ref: "#/components/parameters/B"
    B:
      $ref: "#/components/parameters/A"
paths:
  /items:
    get:
      operationId: listItems
      parameters:
        - $ref: "#/components/parameters/A"
      responses:
        "200":
          description: ok
`)
	_, err := Transform(doc, TransformOptions{Name: "refs"})
	require.Error(t, err)
	assert.Equal(t, aperr.Validation, aperr.KindOf(err))
	assert.Contains(t, err.Error(), "circular")
}

func TestTransformSkipsExcludedEndpoints(t *testing.T) {
	doc := parseDoc(t, petstore)
	cached, err := Transform(doc, TransformOptions{
		Name: "petstore",
		Skipped: []openapi.SkippedEndpoint{
			{Path: "/pets", Method: "POST", Reason: "file uploads are not supported"},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, cached.FindCommand("pets", "create-pet"))
	assert.NotNil(t, cached.FindCommand("pets", "list-pets"))
	require.Len(t, cached.Skipped, 1)
}

func TestTransformFlagNameCollision(t *testing.T) {
	doc := parseDoc(t, `
openapi: 3.0.0
info:
  title: Collide
  version: 1.0.0
paths:
  /items:
    get:
      operationId: listItems
      parameters:
        - name: pageSize
          in: query
          schema:
            type: integer
        - name: page-size
          in: header
          schema:
            type: integer
      responses:
        "200":
          description: ok
`)
	_, err := Transform(doc, TransformOptions{Name: "collide"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collide on flag name")
}

func TestConvertSchemeVariants(t *testing.T) {
	tests := []struct {
		name      string
		scheme    openapi.SecurityScheme
		want      SchemeKind
		supported bool
	}{
		{"bearer", openapi.SecurityScheme{Type: "http", Scheme: "Bearer", BearerFormat: "JWT"}, SchemeHTTPBearer, true},
		{"basic", openapi.SecurityScheme{Type: "http", Scheme: "basic"}, SchemeHTTPBasic, true},
		{"dpop token", openapi.SecurityScheme{Type: "http", Scheme: "DPoP"}, SchemeHTTPToken, true},
		{"oauth2", openapi.SecurityScheme{Type: "oauth2"}, "", false},
		{"openIdConnect", openapi.SecurityScheme{Type: "openIdConnect"}, "", false},
		{"negotiate", openapi.SecurityScheme{Type: "http", Scheme: "negotiate"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convertScheme(&tt.scheme)
			assert.Equal(t, tt.supported, ok)
			if ok {
				assert.Equal(t, tt.want, got.Kind)
			}
		})
	}
}
