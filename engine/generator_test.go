package engine

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-cli/aperture/aperr"
	"github.com/aperture-cli/aperture/spec"
)

func petstoreSpec() *spec.CachedSpec {
	return &spec.CachedSpec{
		FormatVersion: spec.FormatVersion,
		Name:          "petstore",
		Commands: []spec.CachedCommand{
			{
				Tag: "pets", Name: "get-pet", OperationID: "getPet",
				Method: "GET", Path: "/pets/{petId}",
				Parameters: []spec.CachedParameter{
					{Name: "petId", Location: "path", Required: true, Type: "string", FlagName: "pet-id"},
					{Name: "verbose", Location: "query", Type: "boolean", FlagName: "verbose"},
					{Name: "limit", Location: "query", Type: "integer", FlagName: "limit"},
					{Name: "X-Trace", Location: "header", Type: "string", FlagName: "x-trace"},
					{Name: "session", Location: "cookie", Type: "string", FlagName: "session"},
					{Name: "sort", Location: "query", Type: "string", FlagName: "sort", Enum: []string{"asc", "desc"}},
				},
			},
			{
				Tag: "pets", Name: "create-pet", OperationID: "createPet",
				Method: "POST", Path: "/pets",
				RequestBody: &spec.CachedRequestBody{ContentType: "application/json", Required: true},
			},
		},
	}
}

// runCapture executes the generated tree with argv and returns the translated
// call from the leaf handler.
func runCapture(t *testing.T, cached *spec.CachedSpec, positional bool, argv ...string) (*OperationCall, []string, error) {
	t.Helper()
	var (
		call   *OperationCall
		extras []string
	)
	g := &Generator{Positional: positional}
	root := g.Build(cached, func(cmd *cobra.Command, command *spec.CachedCommand, args []string) error {
		var err error
		call, extras, err = Translate(cached.Name, command, cmd.Flags(), args, positional)
		return err
	})
	root.SetArgs(argv)
	err := root.Execute()
	return call, extras, err
}

func TestGeneratedTreeAndTranslation(t *testing.T) {
	call, _, err := runCapture(t, petstoreSpec(), false,
		"pets", "get-pet", "--pet-id", "fido 1", "--limit", "5", "--x-trace", "abc",
		"--session", "s1", "--sort", "asc")
	require.NoError(t, err)

	assert.Equal(t, "GET", call.Method)
	assert.Equal(t, "/pets/fido%201", call.Path)
	// Booleans always contribute; omission is literal "false".
	assert.Contains(t, call.Query, Pair{"verbose", "false"})
	assert.Contains(t, call.Query, Pair{"limit", "5"})
	assert.Contains(t, call.Query, Pair{"sort", "asc"})
	assert.Equal(t, "abc", call.Headers["X-Trace"])
	assert.Equal(t, []Pair{{"session", "s1"}}, call.Cookies)
}

func TestBooleanPresenceIsTrue(t *testing.T) {
	call, _, err := runCapture(t, petstoreSpec(), false,
		"pets", "get-pet", "--pet-id", "1", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, call.Query, Pair{"verbose", "true"})
	// Optional non-boolean flags left unset contribute nothing.
	for _, q := range call.Query {
		assert.NotEqual(t, "limit", q.Key)
	}
}

func TestRequiredFlagEnforced(t *testing.T) {
	_, _, err := runCapture(t, petstoreSpec(), false, "pets", "get-pet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pet-id")
}

func TestPositionalMode(t *testing.T) {
	call, extras, err := runCapture(t, petstoreSpec(), true,
		"pets", "get-pet", "fido", "region=eu", "--verbose")
	require.NoError(t, err)
	assert.Equal(t, "/pets/fido", call.Path)
	assert.Equal(t, []string{"region=eu"}, extras)
	assert.Contains(t, call.Query, Pair{"verbose", "true"})

	_, _, err = runCapture(t, petstoreSpec(), true, "pets", "get-pet")
	require.Error(t, err)
	assert.Equal(t, aperr.InvalidArgument, aperr.KindOf(err))
}

func TestEnumValidation(t *testing.T) {
	_, _, err := runCapture(t, petstoreSpec(), false,
		"pets", "get-pet", "--pet-id", "1", "--sort", "sideways")
	require.Error(t, err)
	assert.Equal(t, aperr.InvalidArgument, aperr.KindOf(err))
	assert.Contains(t, err.Error(), "asc, desc")
}

func TestBodyFlag(t *testing.T) {
	call, _, err := runCapture(t, petstoreSpec(), false,
		"pets", "create-pet", "--body", `{"name":"fido"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"fido"}`, call.Body)

	_, _, err = runCapture(t, petstoreSpec(), false,
		"pets", "create-pet", "--body", "{not json")
	require.Error(t, err)
	assert.Equal(t, aperr.InvalidArgument, aperr.KindOf(err))
}

func TestHiddenAndAliasedCommands(t *testing.T) {
	cached := petstoreSpec()
	cached.Commands[0].Aliases = []string{"fetch-pet"}
	cached.Commands[0].Hidden = true

	call, _, err := runCapture(t, cached, false, "pets", "fetch-pet", "--pet-id", "1")
	require.NoError(t, err)
	assert.Equal(t, "getPet", call.OperationID)
}
