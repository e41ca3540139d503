package openapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-cli/aperture/aperr"
)

const minimalSpec = `
openapi: 3.0.3
info:
  title: Minimal
  version: 0.1.0
paths:
  /things:
    get:
      operationId: listThings
      responses:
        "200":
          description: ok
`

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalSpec), 0o644))

	loader := &Loader{}
	doc, raw, err := loader.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Minimal", doc.Info.Title)
	assert.Equal(t, []byte(minimalSpec), raw)
}

func TestLoadMissingFile(t *testing.T) {
	loader := &Loader{}
	_, _, err := loader.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, aperr.Load, aperr.KindOf(err))
}

func TestLoadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(minimalSpec))
	}))
	defer srv.Close()

	loader := &Loader{}
	doc, _, err := loader.Load(srv.URL + "/spec.yaml")
	require.NoError(t, err)
	assert.Equal(t, "listThings", doc.Paths["/things"].Get.OperationID)
}

func TestLoadFromURLNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	loader := &Loader{}
	_, _, err := loader.Load(srv.URL)
	require.Error(t, err)
	assert.Equal(t, aperr.RemoteFetch, aperr.KindOf(err))
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestLoadFromURLBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, MaxRemoteSpecBytes+1))
	}))
	defer srv.Close()

	loader := &Loader{}
	_, _, err := loader.Load(srv.URL)
	require.Error(t, err)
	assert.Equal(t, aperr.RemoteFetch, aperr.KindOf(err))
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadFromURLAtSizeLimit(t *testing.T) {
	padded := make([]byte, MaxRemoteSpecBytes)
	copy(padded, minimalSpec)
	for i := len(minimalSpec); i < len(padded); i++ {
		padded[i] = '\n'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(padded)
	}))
	defer srv.Close()

	loader := &Loader{}
	doc, _, err := loader.Load(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Minimal", doc.Info.Title)
}

func TestParseRejectsNon3x(t *testing.T) {
	_, err := Parse([]byte("swagger: \"2.0\"\ninfo: {title: Old, version: \"1\"}\n"))
	require.Error(t, err)
	assert.Equal(t, aperr.Validation, aperr.KindOf(err))
	assert.Contains(t, err.Error(), "only 3.x")
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("{openapi: 3.0.0"))
	require.Error(t, err)
	assert.Equal(t, aperr.Load, aperr.KindOf(err))
}

func TestSchemaRoundtripKeepsRawFragment(t *testing.T) {
	doc, err := Parse([]byte(`
openapi: 3.0.3
info: {title: S, version: "1"}
paths:
  /items:
    get:
      operationId: listItems
      parameters:
        - name: sort
          in: query
          schema:
            type: string
            enum: [asc, desc]
            default: asc
      responses:
        "200": {description: ok}
`))
	require.NoError(t, err)
	schema := doc.Paths["/items"].Get.Parameters[0].Schema
	require.NotNil(t, schema)
	assert.Equal(t, "string", schema.Type)
	assert.Equal(t, "asc", schema.Default)
	assert.Equal(t, []any{"asc", "desc"}, schema.Enum)
	assert.Contains(t, schema.Raw, "enum")
}
