package openapi

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aperture-cli/aperture/aperr"
)

const (
	// MaxRemoteSpecBytes caps the body size accepted when fetching a spec
	// from a URL.
	MaxRemoteSpecBytes = 10 << 20

	// DefaultFetchTimeout bounds a remote spec fetch.
	DefaultFetchTimeout = 30 * time.Second
)

// Loader reads OpenAPI documents from local paths or HTTP(S) URLs.
type Loader struct {
	// Timeout for remote fetches. Zero means DefaultFetchTimeout.
	Timeout time.Duration

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Load reads and parses the document at source, which is either a filesystem
// path or an http(s) URL. The raw bytes are returned alongside the parsed
// document so callers can persist the spec verbatim.
func (l *Loader) Load(source string) (*Document, []byte, error) {
	var (
		raw []byte
		err error
	)
	if isURL(source) {
		raw, err = l.fetch(source)
	} else {
		raw, err = os.ReadFile(source)
		if err != nil {
			err = aperr.Wrap(aperr.Load, err, "failed to read spec file %s", source)
		}
	}
	if err != nil {
		return nil, nil, err
	}

	doc, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return doc, raw, nil
}

// Parse decodes an OpenAPI document from YAML or JSON bytes and checks the
// version marker. YAML is a superset of JSON, so one decoder covers both.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, aperr.Wrap(aperr.Load, err, "failed to parse OpenAPI document")
	}
	if !strings.HasPrefix(doc.OpenAPI, "3") {
		return nil, aperr.New(aperr.Validation,
			"unsupported OpenAPI version %q: only 3.x documents are supported", doc.OpenAPI)
	}
	return &doc, nil
}

func (l *Loader) fetch(url string) ([]byte, error) {
	client := l.Client
	if client == nil {
		timeout := l.Timeout
		if timeout <= 0 {
			timeout = DefaultFetchTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	slog.Debug("fetching remote spec", slog.String("url", url))
	resp, err := client.Get(url)
	if err != nil {
		return nil, aperr.Wrap(aperr.RemoteFetch, err, "failed to fetch spec from %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, aperr.New(aperr.RemoteFetch, "fetching spec from %s returned HTTP %d", url, resp.StatusCode).
			With("status", resp.StatusCode)
	}

	// Read one byte past the cap to distinguish "exactly at the limit"
	// from "too large".
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxRemoteSpecBytes+1))
	if err != nil {
		return nil, aperr.Wrap(aperr.RemoteFetch, err, "failed to read spec body from %s", url)
	}
	if len(body) > MaxRemoteSpecBytes {
		return nil, aperr.New(aperr.RemoteFetch,
			"spec from %s is too large: body exceeds %s", url, byteLimitLabel).
			With("reason", fmt.Sprintf("body too large: exceeds %s", byteLimitLabel))
	}
	return body, nil
}

const byteLimitLabel = "10 MiB"

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
