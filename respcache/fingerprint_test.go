package respcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIgnoresSensitiveHeaders(t *testing.T) {
	base := Fingerprint("GET", "https://api.example.com/pets", map[string]string{
		"Accept": "application/json",
	}, "")

	withAuth := Fingerprint("GET", "https://api.example.com/pets", map[string]string{
		"Accept":        "application/json",
		"Authorization": "Bearer secret",
		"X-API-Key":     "key",
		"Cookie":        "sid=1",
		"X-Auth-Token":  "t",
	}, "")

	assert.Equal(t, base, withAuth)
}

func TestFingerprintVariesOnInputs(t *testing.T) {
	h := map[string]string{"Accept": "application/json"}
	base := Fingerprint("GET", "https://api.example.com/pets", h, "")

	assert.NotEqual(t, base, Fingerprint("HEAD", "https://api.example.com/pets", h, ""))
	assert.NotEqual(t, base, Fingerprint("GET", "https://api.example.com/pets?limit=1", h, ""))
	assert.NotEqual(t, base, Fingerprint("GET", "https://api.example.com/pets", h, `{"a":1}`))
	assert.NotEqual(t, base, Fingerprint("GET", "https://api.example.com/pets",
		map[string]string{"Accept": "text/plain"}, ""))
}

func TestFingerprintHeaderOrderIndependent(t *testing.T) {
	a := Fingerprint("GET", "https://x", map[string]string{"A": "1", "B": "2"}, "")
	b := Fingerprint("GET", "https://x", map[string]string{"B": "2", "A": "1"}, "")
	assert.Equal(t, a, b)
}

func TestIsSensitiveHeader(t *testing.T) {
	for _, name := range []string{
		"Authorization", "authorization", "Proxy-Authorization",
		"X-API-Key", "api-key", "token", "bearer", "Cookie",
		"X-Auth-Token", "x-auth-session", "X-Api-Token",
	} {
		assert.True(t, IsSensitiveHeader(name), name)
	}
	for _, name := range []string{"Accept", "Content-Type", "X-Request-ID", "User-Agent"} {
		assert.False(t, IsSensitiveHeader(name), name)
	}
}
