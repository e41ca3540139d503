// Package respcache is the on-disk response cache. Entries are JSON files
// keyed by a fingerprint of the request; credential-bearing headers never
// enter the fingerprint so rotating a token cannot fork the cache.
package respcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// sensitiveHeaders are excluded from the fingerprint by exact lower-cased
// name.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"x-api-key":           true,
	"api-key":             true,
	"token":               true,
	"bearer":              true,
	"cookie":              true,
}

// IsSensitiveHeader reports whether a header may carry credentials. The
// x-auth- and x-api- prefixes are matched in addition to the exact names.
func IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	if sensitiveHeaders[lower] {
		return true
	}
	return strings.HasPrefix(lower, "x-auth-") || strings.HasPrefix(lower, "x-api-")
}

// Fingerprint hashes method, URL, the sorted non-sensitive headers, and the
// body. The result is hex-encoded SHA-256.
func Fingerprint(method, url string, headers map[string]string, body string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})

	keys := make([]string, 0, len(headers))
	for name := range headers {
		if !IsSensitiveHeader(name) {
			keys = append(keys, strings.ToLower(name))
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		h.Write([]byte(key))
		h.Write([]byte{':'})
		h.Write([]byte(headerValue(headers, key)))
		h.Write([]byte{0})
	}

	if body != "" {
		h.Write([]byte(body))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func headerValue(headers map[string]string, lowerKey string) string {
	for name, value := range headers {
		if strings.ToLower(name) == lowerKey {
			return value
		}
	}
	return ""
}
