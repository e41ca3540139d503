package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-cli/aperture/aperr"
)

func TestExtractCaptures(t *testing.T) {
	body := `{"id":"user-42","count":3,"active":true,"score":1.5,
		"tags":["a","b"],"nested":{"deep":{"value":"x"}}}`

	got, err := ExtractCaptures("create", body, map[string]string{
		"id":     ".id",
		"count":  ".count",
		"active": ".active",
		"score":  ".score",
		"tags":   ".tags",
		"deep":   ".nested.deep.value",
		"root":   ".",
		"index":  ".tags[0]",
	})
	require.NoError(t, err)

	assert.Equal(t, "user-42", got["id"])
	assert.Equal(t, "3", got["count"])
	assert.Equal(t, "true", got["active"])
	assert.Equal(t, "1.5", got["score"])
	assert.Equal(t, `["a","b"]`, got["tags"])
	assert.Equal(t, "x", got["deep"])
	assert.Equal(t, "a", got["index"])
	assert.Contains(t, got["root"], `"id":"user-42"`)
}

func TestExtractCapturesMissingKeyIsNull(t *testing.T) {
	got, err := ExtractCaptures("op", `{"id":1}`, map[string]string{"x": ".nope"})
	require.NoError(t, err)
	assert.Equal(t, "null", got["x"])
}

func TestExtractCapturesInvalidBody(t *testing.T) {
	_, err := ExtractCaptures("op", "not json", map[string]string{"x": ".id"})
	require.Error(t, err)
	assert.Equal(t, aperr.CaptureFailed, aperr.KindOf(err))
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestExtractCapturesBadQuery(t *testing.T) {
	_, err := ExtractCaptures("op", `{}`, map[string]string{"x": ".["})
	require.Error(t, err)
	assert.Equal(t, aperr.CaptureFailed, aperr.KindOf(err))
}

func TestExtractCapturesEmpty(t *testing.T) {
	got, err := ExtractCaptures("op", "ignored", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
