package config

import (
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/aperture-cli/aperture/aperr"
	"github.com/aperture-cli/aperture/spec"
)

// FallbackBaseURL is used when nothing else names a base URL.
const FallbackBaseURL = "https://api.example.com"

// URLResolver chooses the base URL for an API and substitutes server-variable
// templates. Env defaults to os.Getenv; tests substitute it.
type URLResolver struct {
	Env func(string) string
}

func (r *URLResolver) getenv(key string) string {
	if r != nil && r.Env != nil {
		return r.Env(key)
	}
	return os.Getenv(key)
}

// Resolve picks the base URL by priority: an explicit override, the
// per-API environment-specific override for $APERTURE_ENV, the per-API
// general override, $APERTURE_BASE_URL, the spec's first server, and
// finally FallbackBaseURL.
func (r *URLResolver) Resolve(explicit, apiName string, cfg *GlobalConfig, cached *spec.CachedSpec) string {
	if explicit != "" {
		return explicit
	}
	api := cfg.API(apiName)
	if env := r.getenv("APERTURE_ENV"); env != "" {
		if url, ok := api.EnvironmentURLs[env]; ok && url != "" {
			return url
		}
	}
	if api.BaseURLOverride != "" {
		return api.BaseURLOverride
	}
	if url := r.getenv("APERTURE_BASE_URL"); url != "" {
		return url
	}
	if cached != nil && cached.BaseURL != "" {
		return cached.BaseURL
	}
	return FallbackBaseURL
}

const maxServerVarNameLen = 64

var (
	serverVarName  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	serverVarToken = regexp.MustCompile(`\{([^{}]*)\}`)
)

// SubstituteServerVariables fills {x} tokens in base. Values come from
// key=value args, then variable defaults. Malformed args, unknown variable
// names and enum violations are errors; a token the declared variables
// cannot fill makes the function fall back to the unsubstituted URL.
func SubstituteServerVariables(base string, vars map[string]spec.ServerVariable, args []string) (string, error) {
	if !strings.Contains(base, "{") {
		return base, nil
	}

	values := make(map[string]string, len(vars))
	for name, v := range vars {
		if v.Default != "" {
			values[name] = v.Default
		}
	}
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return "", aperr.New(aperr.InvalidArgument,
				"malformed server variable argument %q: expected name=value", arg)
		}
		if !serverVarName.MatchString(name) || len(name) > maxServerVarNameLen {
			return "", aperr.New(aperr.UnknownServerVariable,
				"invalid server variable name %q", name)
		}
		v, declared := vars[name]
		if !declared {
			return "", aperr.New(aperr.UnknownServerVariable,
				"server variable %q is not declared by the API", name)
		}
		if len(v.Enum) > 0 && !contains(v.Enum, value) {
			return "", aperr.New(aperr.InvalidServerVarValue,
				"value %q for server variable %q is not one of %v", value, name, v.Enum)
		}
		values[name] = value
	}

	unresolved := ""
	out := serverVarToken.ReplaceAllStringFunc(base, func(token string) string {
		name := token[1 : len(token)-1]
		if v, ok := values[name]; ok {
			return v
		}
		if unresolved == "" {
			unresolved = name
		}
		return token
	})
	if unresolved != "" {
		// Backward compatibility: an unfillable template falls back to the
		// URL as written.
		slog.Warn("server URL template left unresolved",
			slog.String("url", base), slog.String("variable", unresolved))
		return base, nil
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

// UnresolvedTemplateError builds the error surfaced when a caller opts out
// of the fallback and wants strict template resolution.
func UnresolvedTemplateError(name string) error {
	return aperr.New(aperr.UnresolvedTemplateVariable,
		"server URL template variable {%s} has no value", name)
}
