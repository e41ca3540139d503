package respcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	cfg.Dir = t.TempDir()
	return New(cfg)
}

func sampleEntry() *Entry {
	return &Entry{
		Body:       `{"ok":true}`,
		StatusCode: 200,
		Headers:    map[string]string{"content-type": "application/json"},
		RequestInfo: RequestInfo{
			Method: "GET",
			URL:    "https://api.example.com/pets",
		},
	}
}

func TestCachePutGet(t *testing.T) {
	c := newTestCache(t, Config{})
	fp := Fingerprint("GET", "https://api.example.com/pets", nil, "")

	_, ok := c.Get("petstore", "list-pets", fp)
	assert.False(t, ok)

	require.NoError(t, c.Put("petstore", "list-pets", fp, sampleEntry(), 0))

	got, ok := c.Get("petstore", "list-pets", fp)
	require.True(t, ok)
	assert.Equal(t, `{"ok":true}`, got.Body)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, int64(DefaultTTLSeconds), got.TTLSeconds)

	// File naming carries api, operation and 16 hash chars.
	matches, err := filepath.Glob(filepath.Join(c.cfg.Dir, "petstore_list-pets_*_cache.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0], fp[:16])
}

func TestCacheExpiryIsLazy(t *testing.T) {
	c := newTestCache(t, Config{TTLSeconds: 60})
	fp := Fingerprint("GET", "https://x", nil, "")
	require.NoError(t, c.Put("api", "op", fp, sampleEntry(), 0))

	// Move the clock past the TTL.
	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, ok := c.Get("api", "op", fp)
	assert.False(t, ok)

	// The expired file was removed on read.
	matches, _ := filepath.Glob(filepath.Join(c.cfg.Dir, "*_cache.json"))
	assert.Empty(t, matches)
}

func TestCachePerCallTTLOverride(t *testing.T) {
	c := newTestCache(t, Config{TTLSeconds: 60})
	fp := Fingerprint("GET", "https://x", nil, "")
	require.NoError(t, c.Put("api", "op", fp, sampleEntry(), 3600))

	got, ok := c.Get("api", "op", fp)
	require.True(t, ok)
	assert.Equal(t, int64(3600), got.TTLSeconds)
}

func TestCacheEvictsOldestBeyondMaxEntries(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 2})

	for i, url := range []string{"https://x/1", "https://x/2", "https://x/3"} {
		fp := Fingerprint("GET", url, nil, "")
		require.NoError(t, c.Put("api", "op", fp, sampleEntry(), 0))
		// Distinct mtimes so eviction order is deterministic.
		path := c.entryPath("api", "op", fp)
		old := time.Now().Add(time.Duration(i-10) * time.Minute)
		require.NoError(t, os.Chtimes(path, old, old))
	}

	matches, _ := filepath.Glob(filepath.Join(c.cfg.Dir, "*_cache.json"))
	assert.Len(t, matches, 2)

	// The oldest entry is the one evicted.
	_, ok := c.Get("api", "op", Fingerprint("GET", "https://x/1", nil, ""))
	assert.False(t, ok)
	_, ok = c.Get("api", "op", Fingerprint("GET", "https://x/3", nil, ""))
	assert.True(t, ok)
}

func TestCacheClearAndStats(t *testing.T) {
	c := newTestCache(t, Config{})
	require.NoError(t, c.Put("petstore", "op",
		Fingerprint("GET", "https://x/1", nil, ""), sampleEntry(), 0))
	require.NoError(t, c.Put("petstore", "op",
		Fingerprint("GET", "https://x/2", nil, ""), sampleEntry(), 0))
	require.NoError(t, c.Put("billing", "op",
		Fingerprint("GET", "https://x/3", nil, ""), sampleEntry(), 0))

	stats, err := c.Stats("")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 3, stats.ValidEntries)
	assert.Positive(t, stats.TotalSizeBytes)

	stats, err = c.Stats("petstore")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)

	n, err := c.ClearAPI("petstore")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCacheCorruptEntryIsAMiss(t *testing.T) {
	c := newTestCache(t, Config{})
	fp := Fingerprint("GET", "https://x", nil, "")
	path := c.entryPath("api", "op", fp)
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, ok := c.Get("api", "op", fp)
	assert.False(t, ok)
}
