// Package spec holds the cached, denormalized model of a registered API and
// the transformer that derives it from a validated OpenAPI document. The
// cached model is what command generation and request dispatch run on; the
// original document is never consulted after registration.
package spec

import (
	"github.com/aperture-cli/aperture/openapi"
)

// FormatVersion is the cached-spec schema version. A stored spec with a
// different version is discarded and re-derived from the original document.
const FormatVersion = 1

// DefaultGroup is the command group for untagged operations.
const DefaultGroup = "default"

// CachedSpec is the canonical in-memory model of one registered API.
type CachedSpec struct {
	FormatVersion   int                        `cbor:"1,keyasint"`
	Name            string                     `cbor:"2,keyasint"`
	Version         string                     `cbor:"3,keyasint"`
	Commands        []CachedCommand            `cbor:"4,keyasint"`
	BaseURL         string                     `cbor:"5,keyasint,omitempty"`
	Servers         []string                   `cbor:"6,keyasint,omitempty"`
	ServerVariables map[string]ServerVariable  `cbor:"7,keyasint,omitempty"`
	SecuritySchemes map[string]SecurityScheme  `cbor:"8,keyasint,omitempty"`
	Skipped         []openapi.SkippedEndpoint  `cbor:"9,keyasint,omitempty"`
}

// ServerVariable mirrors an OpenAPI server variable for URL templates.
type ServerVariable struct {
	Default     string   `cbor:"1,keyasint"`
	Enum        []string `cbor:"2,keyasint,omitempty"`
	Description string   `cbor:"3,keyasint,omitempty"`
}

// SchemeKind enumerates the supported security scheme variants.
type SchemeKind string

const (
	SchemeAPIKey     SchemeKind = "api_key"
	SchemeHTTPBearer SchemeKind = "http_bearer"
	SchemeHTTPBasic  SchemeKind = "http_basic"
	SchemeHTTPToken  SchemeKind = "http_token"
)

// SecurityScheme is the closed variant of schemes the binder can attach.
type SecurityScheme struct {
	Kind SchemeKind `cbor:"1,keyasint"`

	// Location and ParamName apply to SchemeAPIKey.
	Location  string `cbor:"2,keyasint,omitempty"`
	ParamName string `cbor:"3,keyasint,omitempty"`

	// BearerFormat applies to SchemeHTTPBearer.
	BearerFormat string `cbor:"4,keyasint,omitempty"`

	// SchemeName applies to SchemeHTTPToken.
	SchemeName string `cbor:"5,keyasint,omitempty"`

	// Secret is the x-aperture-secret binding, when declared.
	Secret *SecretBinding `cbor:"6,keyasint,omitempty"`
}

// SecretBinding names the environment variable holding a credential.
type SecretBinding struct {
	Source string `cbor:"1,keyasint" json:"source"`
	Name   string `cbor:"2,keyasint" json:"name"`
}

// CachedCommand is one operation of the API.
type CachedCommand struct {
	Tag         string `cbor:"1,keyasint"`
	Name        string `cbor:"2,keyasint"`
	Summary     string `cbor:"3,keyasint,omitempty"`
	Description string `cbor:"4,keyasint,omitempty"`
	OperationID string `cbor:"5,keyasint"`
	Method      string `cbor:"6,keyasint"`
	Path        string `cbor:"7,keyasint"`

	Parameters  []CachedParameter  `cbor:"8,keyasint,omitempty"`
	RequestBody *CachedRequestBody `cbor:"9,keyasint,omitempty"`
	Responses   []CachedResponse   `cbor:"10,keyasint,omitempty"`

	// SecuritySchemes is the flattened union of scheme names across the
	// operation's security alternatives.
	SecuritySchemes []string `cbor:"11,keyasint,omitempty"`

	// Display overrides from the user command mapping.
	DisplayGroup string   `cbor:"12,keyasint,omitempty"`
	DisplayName  string   `cbor:"13,keyasint,omitempty"`
	Aliases      []string `cbor:"14,keyasint,omitempty"`
	Hidden       bool     `cbor:"15,keyasint,omitempty"`
	Deprecated   bool     `cbor:"16,keyasint,omitempty"`
}

// EffectiveGroup is the CLI group the command is reachable under.
func (c *CachedCommand) EffectiveGroup() string {
	if c.DisplayGroup != "" {
		return c.DisplayGroup
	}
	return c.Tag
}

// EffectiveName is the CLI name the command is reachable under.
func (c *CachedCommand) EffectiveName() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// CachedParameter is one parameter of an operation.
type CachedParameter struct {
	Name        string `cbor:"1,keyasint"`
	Location    string `cbor:"2,keyasint"`
	Required    bool   `cbor:"3,keyasint,omitempty"`
	Description string `cbor:"4,keyasint,omitempty"`

	// Schema is the serialized schema fragment (compact JSON).
	Schema string `cbor:"5,keyasint,omitempty"`

	// Type is the semantic tag: string, integer, number, boolean, array, object.
	Type    string   `cbor:"6,keyasint"`
	Format  string   `cbor:"7,keyasint,omitempty"`
	Default string   `cbor:"8,keyasint,omitempty"`
	Enum    []string `cbor:"9,keyasint,omitempty"`
	Example string   `cbor:"10,keyasint,omitempty"`

	// FlagName is the kebab-cased CLI name for the parameter.
	FlagName string `cbor:"11,keyasint"`
}

// CachedRequestBody is the JSON request body of an operation.
type CachedRequestBody struct {
	ContentType string `cbor:"1,keyasint"`
	Schema      string `cbor:"2,keyasint,omitempty"`
	Required    bool   `cbor:"3,keyasint,omitempty"`
	Description string `cbor:"4,keyasint,omitempty"`
	Example     string `cbor:"5,keyasint,omitempty"`
}

// CachedResponse is one response alternative.
type CachedResponse struct {
	StatusCode  string `cbor:"1,keyasint"`
	ContentType string `cbor:"2,keyasint,omitempty"`
	Schema      string `cbor:"3,keyasint,omitempty"`
}

// FindCommand locates a command by effective group and name or alias.
func (s *CachedSpec) FindCommand(group, name string) *CachedCommand {
	for i := range s.Commands {
		c := &s.Commands[i]
		if c.EffectiveGroup() != group {
			continue
		}
		if c.EffectiveName() == name {
			return c
		}
		for _, alias := range c.Aliases {
			if alias == name {
				return c
			}
		}
	}
	return nil
}

// Groups returns the effective group names in first-appearance order.
func (s *CachedSpec) Groups() []string {
	seen := make(map[string]bool)
	var groups []string
	for i := range s.Commands {
		g := s.Commands[i].EffectiveGroup()
		if !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}
	return groups
}
