package engine

import (
	"encoding/base64"
	"os"

	"github.com/aperture-cli/aperture/aperr"
	"github.com/aperture-cli/aperture/config"
	"github.com/aperture-cli/aperture/spec"
)

// Binder attaches credentials to a call. Env defaults to os.Getenv.
type Binder struct {
	Env func(string) string
}

func (b *Binder) getenv(key string) string {
	if b != nil && b.Env != nil {
		return b.Env(key)
	}
	return os.Getenv(key)
}

// Bind resolves and applies every scheme named on the call. Per scheme, the
// secret's environment variable comes from the per-API config override
// first, then the scheme's x-aperture-secret binding; a scheme with neither
// is left unbound and the request proceeds unauthenticated.
func (b *Binder) Bind(call *OperationCall, schemes map[string]spec.SecurityScheme, overrides map[string]config.SecretRef) error {
	for _, name := range call.SecuritySchemes {
		scheme, ok := schemes[name]
		if !ok {
			continue
		}
		envVar := ""
		if ref, ok := overrides[name]; ok && ref.Name != "" {
			envVar = ref.Name
		} else if scheme.Secret != nil {
			envVar = scheme.Secret.Name
		}
		if envVar == "" {
			continue
		}
		value := b.getenv(envVar)
		if value == "" {
			return aperr.NewSecretNotSet(name, envVar)
		}
		applyScheme(call, scheme, value)
	}
	return nil
}

func applyScheme(call *OperationCall, scheme spec.SecurityScheme, value string) {
	switch scheme.Kind {
	case spec.SchemeAPIKey:
		switch scheme.Location {
		case "query":
			call.Query = append(call.Query, Pair{scheme.ParamName, value})
		case "cookie":
			call.Cookies = append(call.Cookies, Pair{scheme.ParamName, value})
		default:
			call.SetHeader(scheme.ParamName, value)
		}
	case spec.SchemeHTTPBearer:
		call.SetHeader("Authorization", "Bearer "+value)
	case spec.SchemeHTTPBasic:
		// The value is expected to already be user:pass.
		call.SetHeader("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(value)))
	case spec.SchemeHTTPToken:
		call.SetHeader("Authorization", scheme.SchemeName+" "+value)
	}
}

// SecretEnvVars lists the environment variable names the call's schemes
// declare, for 401/403 hints.
func SecretEnvVars(schemeNames []string, schemes map[string]spec.SecurityScheme, overrides map[string]config.SecretRef) []string {
	var vars []string
	for _, name := range schemeNames {
		if ref, ok := overrides[name]; ok && ref.Name != "" {
			vars = append(vars, ref.Name)
			continue
		}
		if s, ok := schemes[name]; ok && s.Secret != nil {
			vars = append(vars, s.Secret.Name)
		}
	}
	return vars
}
