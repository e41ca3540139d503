package spec

import (
	"os"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	st := &Store{Dir: t.TempDir()}
	s := twoCommandSpec()
	s.BaseURL = "https://demo.example.com"

	require.NoError(t, st.Save(s))
	loaded, err := st.Load("demo")
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestStoreLoadMissing(t *testing.T) {
	st := &Store{Dir: t.TempDir()}
	_, err := st.Load("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestStoreStaleFormatVersion(t *testing.T) {
	st := &Store{Dir: t.TempDir()}
	old := twoCommandSpec()
	old.FormatVersion = FormatVersion + 1
	data, err := cbor.Marshal(old)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(st.Path("demo"), data, 0o644))

	_, err = st.Load("demo")
	assert.ErrorIs(t, err, ErrStale)
}

func TestStoreRemove(t *testing.T) {
	st := &Store{Dir: t.TempDir()}
	require.NoError(t, st.Save(twoCommandSpec()))
	require.NoError(t, st.Remove("demo"))
	require.NoError(t, st.Remove("demo"))
	_, err := st.Load("demo")
	require.Error(t, err)
}
