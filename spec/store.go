package spec

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/aperture-cli/aperture/aperr"
)

// ErrStale marks a stored spec whose format version no longer matches;
// callers re-derive from the original document.
var ErrStale = errors.New("cached spec format is stale")

// Store persists cached specs as CBOR under a directory, one file per API.
type Store struct {
	Dir string
}

// Path returns the cache file for an API name.
func (st *Store) Path(name string) string {
	return filepath.Join(st.Dir, name+".bin")
}

// Save encodes the spec and writes it atomically.
func (st *Store) Save(s *CachedSpec) error {
	if err := os.MkdirAll(st.Dir, 0o755); err != nil {
		return aperr.Wrap(aperr.Configuration, err, "failed to create cache directory %s", st.Dir)
	}
	data, err := cbor.Marshal(s)
	if err != nil {
		return aperr.Wrap(aperr.Configuration, err, "failed to encode cached spec %s", s.Name)
	}

	path := st.Path(s.Name)
	tmp, err := os.CreateTemp(st.Dir, s.Name+".*.tmp")
	if err != nil {
		return aperr.Wrap(aperr.Configuration, err, "failed to stage cached spec %s", s.Name)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return aperr.Wrap(aperr.Configuration, err, "failed to write cached spec %s", s.Name)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return aperr.Wrap(aperr.Configuration, err, "failed to write cached spec %s", s.Name)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return aperr.Wrap(aperr.Configuration, err, "failed to install cached spec %s", s.Name)
	}
	return nil
}

// Load reads and decodes the cached spec for name. A version mismatch
// returns ErrStale; a missing file surfaces os.IsNotExist via the cause.
func (st *Store) Load(name string) (*CachedSpec, error) {
	data, err := os.ReadFile(st.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, aperr.Wrap(aperr.Configuration, err, "API %q is not registered", name)
		}
		return nil, aperr.Wrap(aperr.Configuration, err, "failed to read cached spec %s", name)
	}
	var s CachedSpec
	if err := cbor.Unmarshal(data, &s); err != nil {
		// Undecodable caches are treated like a format bump.
		return nil, ErrStale
	}
	if s.FormatVersion != FormatVersion {
		return nil, ErrStale
	}
	return &s, nil
}

// Remove deletes the cached spec for name. Missing files are not an error.
func (st *Store) Remove(name string) error {
	if err := os.Remove(st.Path(name)); err != nil && !os.IsNotExist(err) {
		return aperr.Wrap(aperr.Configuration, err, "failed to remove cached spec %s", name)
	}
	return nil
}
