// Package engine turns cached commands into cobra commands, translates
// parsed flags into concrete HTTP calls, and executes them with auth,
// caching and retry applied.
package engine

import (
	"time"

	"github.com/aperture-cli/aperture/config"
	"github.com/aperture-cli/aperture/respcache"
)

// Pair is an ordered key/value. Query and cookie order is insertion order.
type Pair struct {
	Key   string
	Value string
}

// OperationCall is the fully resolved target of one request.
type OperationCall struct {
	APIName     string
	OperationID string

	BaseURL string
	Method  string

	// Path has path parameters substituted and URL-encoded.
	Path string

	Query   []Pair
	Headers map[string]string
	Cookies []Pair

	// Body is JSON text; empty means no body.
	Body string

	// SecuritySchemes are the scheme names bound (or attempted) for this
	// call, surfaced in auth failure hints.
	SecuritySchemes []string
}

// SetHeader records a header, allocating the map on first use.
func (c *OperationCall) SetHeader(name, value string) {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[name] = value
}

// CallResult is the outcome of executing an OperationCall.
type CallResult struct {
	Status  int
	Headers map[string]string
	Body    string

	FromCache bool
	DryRun    bool
	Elapsed   time.Duration
}

// ExecContext carries per-invocation execution options.
type ExecContext struct {
	DryRun         bool
	IdempotencyKey string

	// Cache enables response caching when non-nil.
	Cache           *respcache.Cache
	CacheTTLSeconds int64

	// Retry enables the retry policy when non-nil.
	Retry *RetryPolicy

	Config *config.GlobalConfig

	// SecretEnvVars are the environment variable names behind the call's
	// security schemes, echoed in 401/403 hints.
	SecretEnvVars []string
}
