package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aperture-cli/aperture/aperr"
	"github.com/aperture-cli/aperture/config"
	"github.com/aperture-cli/aperture/respcache"
)

// Executor dispatches operation calls over HTTP.
type Executor struct {
	// Client overrides the HTTP client. When nil, a client with the
	// config's default_timeout_secs is used per call.
	Client *http.Client

	// Version stamps the User-Agent.
	Version string

	// Sleep substitutes the retry backoff in tests. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

func (e *Executor) sleep(d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (e *Executor) client(cfg *config.GlobalConfig) *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return &http.Client{Timeout: time.Duration(cfg.TimeoutSecs()) * time.Second}
}

// Execute performs one call: URL assembly, headers, cache lookup, dispatch
// with retry, and cache store.
func (e *Executor) Execute(ctx context.Context, call *OperationCall, ec ExecContext) (*CallResult, error) {
	fullURL := buildURL(call)
	headers := e.assembleHeaders(call, ec)

	cacheable := e.cacheable(call, ec, headers)
	var fingerprint string
	if cacheable {
		fingerprint = respcache.Fingerprint(call.Method, fullURL, headers, call.Body)
		if entry, ok := ec.Cache.Get(call.APIName, call.OperationID, fingerprint); ok {
			slog.Debug("response cache hit",
				slog.String("operation", call.OperationID),
				slog.String("fingerprint", fingerprint[:16]))
			return &CallResult{
				Status:    entry.StatusCode,
				Headers:   entry.Headers,
				Body:      entry.Body,
				FromCache: true,
			}, nil
		}
	}

	if ec.DryRun {
		return dryRunResult(call, fullURL, headers), nil
	}

	client := e.client(ec.Config)
	start := time.Now()
	for attempt := 0; ; attempt++ {
		resp, err := e.dispatch(ctx, client, call, fullURL, headers)
		if err != nil {
			if ec.Retry.ShouldRetry(attempt, call.Method, 0, true, ec.IdempotencyKey != "") {
				e.backoff(ec.Retry, attempt, call.OperationID)
				continue
			}
			return nil, aperr.Wrap(aperr.Transport, err, "request to %s failed", fullURL)
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, aperr.Wrap(aperr.Transport, readErr, "failed to read response from %s", fullURL)
		}

		if resp.StatusCode >= 400 {
			if ec.Retry.ShouldRetry(attempt, call.Method, resp.StatusCode, false, ec.IdempotencyKey != "") {
				e.backoff(ec.Retry, attempt, call.OperationID)
				continue
			}
			return nil, e.httpError(call, ec, resp.StatusCode, string(body))
		}

		result := &CallResult{
			Status:  resp.StatusCode,
			Headers: flattenHeaders(resp.Header),
			Body:    string(body),
			Elapsed: time.Since(start),
		}
		if cacheable {
			e.store(call, ec, fingerprint, fullURL, headers, result)
		}
		return result, nil
	}
}

func (e *Executor) backoff(p *RetryPolicy, attempt int, operationID string) {
	delay := p.Delay(attempt)
	slog.Debug("retrying request",
		slog.String("operation", operationID),
		slog.Int("attempt", attempt+1),
		slog.Duration("delay", delay))
	e.sleep(delay)
}

func (e *Executor) dispatch(ctx context.Context, client *http.Client, call *OperationCall, fullURL string, headers map[string]string) (*http.Response, error) {
	var body io.Reader
	if call.Body != "" {
		body = strings.NewReader(call.Body)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, fullURL, body)
	if err != nil {
		return nil, err
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	return client.Do(req)
}

func (e *Executor) httpError(call *OperationCall, ec ExecContext, status int, body string) error {
	err := aperr.NewHTTP(status, body, call.APIName, call.OperationID, call.SecuritySchemes)
	if (status == http.StatusUnauthorized || status == http.StatusForbidden) && len(ec.SecretEnvVars) > 0 {
		err.Message += fmt.Sprintf(" (check environment variables: %s)",
			strings.Join(ec.SecretEnvVars, ", "))
		err.With("secret_env_vars", ec.SecretEnvVars)
	}
	return err
}

// cacheable applies the gate: caching enabled, idempotent method, and no
// Authorization header unless the cache allows authenticated requests.
func (e *Executor) cacheable(call *OperationCall, ec ExecContext, headers map[string]string) bool {
	if ec.Cache == nil || ec.DryRun {
		return false
	}
	if call.Method != http.MethodGet && call.Method != http.MethodHead {
		return false
	}
	if hasAuthorizationHeader(headers) && !ec.Cache.AllowAuthenticated() {
		return false
	}
	return true
}

// hasAuthorizationHeader matches case-insensitively; batch-file headers
// arrive with whatever casing the file used.
func hasAuthorizationHeader(headers map[string]string) bool {
	for name := range headers {
		if strings.EqualFold(name, "Authorization") {
			return true
		}
	}
	return false
}

func (e *Executor) store(call *OperationCall, ec ExecContext, fingerprint, fullURL string, headers map[string]string, result *CallResult) {
	reqHeaders := make(map[string]string)
	for name, value := range headers {
		if !respcache.IsSensitiveHeader(name) {
			reqHeaders[name] = value
		}
	}
	entry := &respcache.Entry{
		Body:       result.Body,
		StatusCode: result.Status,
		Headers:    result.Headers,
		RequestInfo: respcache.RequestInfo{
			Method:  call.Method,
			URL:     fullURL,
			Headers: reqHeaders,
		},
	}
	if err := ec.Cache.Put(call.APIName, call.OperationID, fingerprint, entry, ec.CacheTTLSeconds); err != nil {
		// Cache failures never fail the request.
		slog.Warn("failed to store response in cache", slog.Any("error", err))
	}
}

func (e *Executor) assembleHeaders(call *OperationCall, ec ExecContext) map[string]string {
	headers := make(map[string]string, len(call.Headers)+4)
	for name, value := range call.Headers {
		headers[name] = value
	}
	if _, ok := headers["User-Agent"]; !ok {
		headers["User-Agent"] = "aperture/" + e.Version
	}
	if call.Body != "" {
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}
	if ec.IdempotencyKey != "" {
		headers["Idempotency-Key"] = ec.IdempotencyKey
	}
	if len(call.Cookies) > 0 {
		pairs := make([]string, 0, len(call.Cookies))
		for _, c := range call.Cookies {
			pairs = append(pairs, c.Key+"="+c.Value)
		}
		headers["Cookie"] = strings.Join(pairs, "; ")
	}
	return headers
}

// buildURL joins base and path and appends the query string in insertion
// order.
func buildURL(call *OperationCall) string {
	base := strings.TrimSuffix(call.BaseURL, "/")
	path := call.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	full := base + path
	if len(call.Query) == 0 {
		return full
	}
	var sb strings.Builder
	sb.WriteString(full)
	for i, q := range call.Query {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(q.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(q.Value))
	}
	return sb.String()
}

// dryRunResult describes the request that would have been sent. Credential
// headers are masked.
func dryRunResult(call *OperationCall, fullURL string, headers map[string]string) *CallResult {
	masked := make(map[string]string, len(headers))
	for name, value := range headers {
		if respcache.IsSensitiveHeader(name) {
			masked[name] = "***"
		} else {
			masked[name] = value
		}
	}
	doc := map[string]any{
		"dry_run": true,
		"method":  call.Method,
		"url":     fullURL,
		"headers": masked,
	}
	if call.Body != "" {
		doc["body"] = json.RawMessage(call.Body)
	}
	out, _ := json.MarshalIndent(doc, "", "  ")
	return &CallResult{DryRun: true, Body: string(out)}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[strings.ToLower(name)] = values[0]
		}
	}
	return out
}
