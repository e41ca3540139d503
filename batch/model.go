// Package batch executes a file of CLI invocations against registered APIs,
// either sequentially along a dependency graph with variable capture, or
// concurrently with bounded parallelism and rate limiting.
package batch

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aperture-cli/aperture/aperr"
)

// File is a parsed batch file. YAML decoding covers the JSON form too.
type File struct {
	Metadata   *Metadata   `yaml:"metadata,omitempty"`
	Operations []Operation `yaml:"operations"`
}

// Metadata carries optional batch-level settings.
type Metadata struct {
	Name        string    `yaml:"name,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Defaults    *Defaults `yaml:"defaults,omitempty"`
}

// Defaults are applied to every operation that does not set the field
// itself.
type Defaults struct {
	UseCache      *bool             `yaml:"use_cache,omitempty"`
	Retry         *int              `yaml:"retry,omitempty"`
	RetryDelay    *int64            `yaml:"retry_delay,omitempty"`
	RetryMaxDelay *int64            `yaml:"retry_max_delay,omitempty"`
	ForceRetry    *bool             `yaml:"force_retry,omitempty"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

// Operation is one invocation inside a batch.
type Operation struct {
	ID          string   `yaml:"id,omitempty"`
	Args        []string `yaml:"args"`
	Description string   `yaml:"description,omitempty"`

	Headers map[string]string `yaml:"headers,omitempty"`

	UseCache *bool `yaml:"use_cache,omitempty"`

	// Retry overrides, mirroring the global flags. Delays are in
	// milliseconds.
	Retry         *int   `yaml:"retry,omitempty"`
	RetryDelay    *int64 `yaml:"retry_delay,omitempty"`
	RetryMaxDelay *int64 `yaml:"retry_max_delay,omitempty"`
	ForceRetry    *bool  `yaml:"force_retry,omitempty"`

	// Capture writes scalars; CaptureAppend appends to named lists. Both
	// map variable names to queries against the JSON response body.
	Capture       map[string]string `yaml:"capture,omitempty"`
	CaptureAppend map[string]string `yaml:"capture_append,omitempty"`

	DependsOn []string `yaml:"depends_on,omitempty"`

	SuppressOutput bool `yaml:"suppress_output,omitempty"`
}

// HasDependencyFeatures reports whether the operation participates in the
// dependency graph. Empty maps and lists count as absent.
func (o *Operation) HasDependencyFeatures() bool {
	return len(o.Capture) > 0 || len(o.CaptureAppend) > 0 || len(o.DependsOn) > 0
}

// HasDependencies reports whether any operation forces dependent mode.
func (f *File) HasDependencies() bool {
	for i := range f.Operations {
		if f.Operations[i].HasDependencyFeatures() {
			return true
		}
	}
	return false
}

// ApplyDefaults folds metadata defaults into each operation. Values set on
// the operation win; default headers fill in only missing keys.
func (f *File) ApplyDefaults() {
	if f.Metadata == nil || f.Metadata.Defaults == nil {
		return
	}
	d := f.Metadata.Defaults
	for i := range f.Operations {
		op := &f.Operations[i]
		if op.UseCache == nil {
			op.UseCache = d.UseCache
		}
		if op.Retry == nil {
			op.Retry = d.Retry
		}
		if op.RetryDelay == nil {
			op.RetryDelay = d.RetryDelay
		}
		if op.RetryMaxDelay == nil {
			op.RetryMaxDelay = d.RetryMaxDelay
		}
		if op.ForceRetry == nil {
			op.ForceRetry = d.ForceRetry
		}
		for name, value := range d.Headers {
			if _, ok := op.Headers[name]; !ok {
				if op.Headers == nil {
					op.Headers = make(map[string]string)
				}
				op.Headers[name] = value
			}
		}
	}
}

// LoadFile reads and parses a batch file (YAML or JSON).
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, aperr.Wrap(aperr.Load, err, "failed to read batch file %s", path)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, aperr.Wrap(aperr.Load, err, "failed to parse batch file %s", path)
	}
	if len(f.Operations) == 0 {
		return nil, aperr.New(aperr.Validation, "batch file %s declares no operations", path)
	}
	return &f, nil
}

// OperationResult is the outcome of one operation.
type OperationResult struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`

	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Status    int    `json:"status,omitempty"`
	Body      string `json:"body,omitempty"`
	FromCache bool   `json:"from_cache,omitempty"`

	Elapsed time.Duration `json:"elapsed_ns,omitempty"`
}

// Result aggregates a batch run. Results are indexed by input order.
type Result struct {
	Results      []OperationResult `json:"results"`
	SuccessCount int               `json:"success_count"`
	FailureCount int               `json:"failure_count"`
	Elapsed      time.Duration     `json:"elapsed_ns"`
}

func (r *Result) tally() {
	r.SuccessCount, r.FailureCount = 0, 0
	for i := range r.Results {
		if r.Results[i].Success {
			r.SuccessCount++
		} else {
			r.FailureCount++
		}
	}
}
