// Package manifest builds the capability document emitted by
// --describe-json: a stable JSON description of every registered API and
// its commands, intended for agents discovering what the CLI can do.
package manifest

import (
	"encoding/json"
	"sort"

	"github.com/aperture-cli/aperture/spec"
)

// Manifest is the top-level capability document. Field order and key names
// are stable; empty collections and false booleans are omitted.
type Manifest struct {
	APIs map[string]API `json:"apis"`
}

// API describes one registered API.
type API struct {
	Name            string                    `json:"name"`
	Version         string                    `json:"version,omitempty"`
	BaseURL         string                    `json:"base_url,omitempty"`
	Commands        map[string][]Command      `json:"commands,omitempty"`
	SecuritySchemes map[string]SecurityScheme `json:"security_schemes,omitempty"`
	SkippedCount    int                       `json:"skipped_endpoints,omitempty"`
}

// Command describes one invocable operation.
type Command struct {
	Name        string      `json:"name"`
	OperationID string      `json:"operation_id,omitempty"`
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	Summary     string      `json:"summary,omitempty"`
	Description string      `json:"description,omitempty"`
	Aliases     []string    `json:"aliases,omitempty"`
	Deprecated  bool        `json:"deprecated,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty"`
	RequestBody *Body       `json:"request_body,omitempty"`
	Security    []string    `json:"security,omitempty"`
}

// Parameter describes one flag or positional argument.
type Parameter struct {
	Name        string   `json:"name"`
	Flag        string   `json:"flag"`
	Location    string   `json:"location"`
	Type        string   `json:"type"`
	Format      string   `json:"format,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Description string   `json:"description,omitempty"`
	Default     string   `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Example     string   `json:"example,omitempty"`
}

// Body describes a JSON request body accepted via --body.
type Body struct {
	ContentType string `json:"content_type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
}

// SecurityScheme describes how a scheme authenticates and which environment
// variable feeds it.
type SecurityScheme struct {
	Kind      string              `json:"kind"`
	Location  string              `json:"location,omitempty"`
	ParamName string              `json:"param_name,omitempty"`
	Secret    *spec.SecretBinding `json:"aperture_secret,omitempty"`
}

// Build assembles the manifest from the cached specs keyed by API name.
// Hidden commands are excluded.
func Build(specs map[string]*spec.CachedSpec) *Manifest {
	m := &Manifest{APIs: make(map[string]API, len(specs))}
	for name, cached := range specs {
		m.APIs[name] = describeAPI(cached)
	}
	return m
}

// JSON renders the manifest deterministically.
func (m *Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func describeAPI(cached *spec.CachedSpec) API {
	api := API{
		Name:         cached.Name,
		Version:      cached.Version,
		BaseURL:      cached.BaseURL,
		SkippedCount: len(cached.Skipped),
	}

	for i := range cached.Commands {
		c := &cached.Commands[i]
		if c.Hidden {
			continue
		}
		if api.Commands == nil {
			api.Commands = make(map[string][]Command)
		}
		group := c.EffectiveGroup()
		api.Commands[group] = append(api.Commands[group], describeCommand(c))
	}
	for _, commands := range api.Commands {
		sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })
	}

	for name, scheme := range cached.SecuritySchemes {
		if api.SecuritySchemes == nil {
			api.SecuritySchemes = make(map[string]SecurityScheme)
		}
		api.SecuritySchemes[name] = SecurityScheme{
			Kind:      string(scheme.Kind),
			Location:  scheme.Location,
			ParamName: scheme.ParamName,
			Secret:    scheme.Secret,
		}
	}
	return api
}

func describeCommand(c *spec.CachedCommand) Command {
	out := Command{
		Name:        c.EffectiveName(),
		OperationID: c.OperationID,
		Method:      c.Method,
		Path:        c.Path,
		Summary:     c.Summary,
		Description: c.Description,
		Aliases:     c.Aliases,
		Deprecated:  c.Deprecated,
		Security:    c.SecuritySchemes,
	}
	for i := range c.Parameters {
		p := &c.Parameters[i]
		out.Parameters = append(out.Parameters, Parameter{
			Name:        p.Name,
			Flag:        p.FlagName,
			Location:    p.Location,
			Type:        p.Type,
			Format:      p.Format,
			Required:    p.Required,
			Description: p.Description,
			Default:     p.Default,
			Enum:        p.Enum,
			Example:     p.Example,
		})
	}
	if c.RequestBody != nil {
		out.RequestBody = &Body{
			ContentType: c.RequestBody.ContentType,
			Required:    c.RequestBody.Required,
			Description: c.RequestBody.Description,
			Example:     c.RequestBody.Example,
		}
	}
	return out
}
