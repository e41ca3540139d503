package respcache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aperture-cli/aperture/aperr"
)

const (
	// DefaultTTLSeconds applies when no TTL is configured.
	DefaultTTLSeconds = 300

	// DefaultMaxEntries caps the per-API entry count before eviction.
	DefaultMaxEntries = 1000

	fileSuffix = "_cache.json"
)

// Config controls one cache instance.
type Config struct {
	Dir        string
	TTLSeconds int64
	MaxEntries int

	// AllowAuthenticated permits caching of requests that carry an
	// Authorization header. Off by default.
	AllowAuthenticated bool
}

// Entry is one cached response on disk.
type Entry struct {
	Body        string            `json:"body"`
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers,omitempty"`
	CachedAt    int64             `json:"cached_at"`
	TTLSeconds  int64             `json:"ttl_seconds"`
	RequestInfo RequestInfo       `json:"request_info"`
}

// RequestInfo records what produced an entry, with credential headers
// already stripped.
type RequestInfo struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Stats summarizes the cache directory.
type Stats struct {
	TotalEntries   int   `json:"total_entries"`
	ValidEntries   int   `json:"valid_entries"`
	ExpiredEntries int   `json:"expired_entries"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// Cache is the on-disk response cache. The directory is shared across
// processes; every file operation stands alone.
type Cache struct {
	cfg Config
	now func() time.Time
}

// New returns a cache over cfg.Dir, applying defaults for zero fields.
func New(cfg Config) *Cache {
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = DefaultTTLSeconds
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	return &Cache{cfg: cfg, now: time.Now}
}

// AllowAuthenticated reports whether authenticated requests may be cached.
func (c *Cache) AllowAuthenticated() bool { return c.cfg.AllowAuthenticated }

// entryPath builds the {api}_{operation}_{hash16}_cache.json file name.
func (c *Cache) entryPath(api, operation, fingerprint string) string {
	hash := fingerprint
	if len(hash) > 16 {
		hash = hash[:16]
	}
	name := fmt.Sprintf("%s_%s_%s%s", api, operation, hash, fileSuffix)
	return filepath.Join(c.cfg.Dir, name)
}

// Get returns the entry for the fingerprint when present and unexpired.
// Expired entries are removed on the spot. Cache failures are a miss, never
// an error.
func (c *Cache) Get(api, operation, fingerprint string) (*Entry, bool) {
	path := c.entryPath(api, operation, fingerprint)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Debug("discarding unreadable cache entry", slog.String("path", path))
		_ = os.Remove(path)
		return nil, false
	}
	if c.now().Unix() > entry.CachedAt+entry.TTLSeconds {
		_ = os.Remove(path)
		return nil, false
	}
	return &entry, true
}

// Put stores a response. The TTL defaults to the configured one when the
// caller passes zero. After the write, entries for the API beyond the
// configured maximum are evicted oldest-first by modification time.
func (c *Cache) Put(api, operation, fingerprint string, entry *Entry, ttlSeconds int64) error {
	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return aperr.Wrap(aperr.CacheUnavailable, err, "cannot create cache directory %s", c.cfg.Dir)
	}
	if ttlSeconds <= 0 {
		ttlSeconds = c.cfg.TTLSeconds
	}
	entry.CachedAt = c.now().Unix()
	entry.TTLSeconds = ttlSeconds

	data, err := json.Marshal(entry)
	if err != nil {
		return aperr.Wrap(aperr.CacheUnavailable, err, "cannot encode cache entry")
	}

	path := c.entryPath(api, operation, fingerprint)
	tmp, err := os.CreateTemp(c.cfg.Dir, ".cache-*.tmp")
	if err != nil {
		return aperr.Wrap(aperr.CacheUnavailable, err, "cannot stage cache entry")
	}
	if _, err := tmp.Write(data); err == nil {
		err = tmp.Close()
	} else {
		_ = tmp.Close()
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return aperr.Wrap(aperr.CacheUnavailable, err, "cannot write cache entry")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return aperr.Wrap(aperr.CacheUnavailable, err, "cannot install cache entry")
	}

	c.evict(api)
	return nil
}

// evict trims the API's entries to the configured maximum, oldest mtime
// first.
func (c *Cache) evict(api string) {
	files, err := c.listEntries(api)
	if err != nil || len(files) <= c.cfg.MaxEntries {
		return
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime.Before(files[j].mtime)
	})
	for _, f := range files[:len(files)-c.cfg.MaxEntries] {
		_ = os.Remove(f.path)
	}
}

type entryFile struct {
	path  string
	size  int64
	mtime time.Time
}

func (c *Cache) listEntries(api string) ([]entryFile, error) {
	dirents, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var files []entryFile
	for _, d := range dirents {
		name := d.Name()
		if !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		if api != "" && !strings.HasPrefix(name, api+"_") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		files = append(files, entryFile{
			path:  filepath.Join(c.cfg.Dir, name),
			size:  info.Size(),
			mtime: info.ModTime(),
		})
	}
	return files, nil
}

// ClearAPI removes every entry for one API and returns the count.
func (c *Cache) ClearAPI(api string) (int, error) {
	return c.clear(api)
}

// ClearAll removes every entry and returns the count.
func (c *Cache) ClearAll() (int, error) {
	return c.clear("")
}

func (c *Cache) clear(api string) (int, error) {
	files, err := c.listEntries(api)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, aperr.Wrap(aperr.CacheUnavailable, err, "cannot read cache directory")
	}
	cleared := 0
	for _, f := range files {
		if err := os.Remove(f.path); err == nil {
			cleared++
		}
	}
	return cleared, nil
}

// Stats reports entry counts and total size, optionally filtered to one API.
func (c *Cache) Stats(api string) (Stats, error) {
	var stats Stats
	files, err := c.listEntries(api)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, aperr.Wrap(aperr.CacheUnavailable, err, "cannot read cache directory")
	}
	now := c.now().Unix()
	for _, f := range files {
		stats.TotalEntries++
		stats.TotalSizeBytes += f.size

		data, err := os.ReadFile(f.path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if now > entry.CachedAt+entry.TTLSeconds {
			stats.ExpiredEntries++
		} else {
			stats.ValidEntries++
		}
	}
	return stats, nil
}
