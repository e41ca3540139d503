// Package openapi holds a minimal OpenAPI 3.x document model together with
// the loader and validator that gate which endpoints the runtime can serve.
//
// The model deliberately keeps $ref fields visible instead of resolving them
// during decoding: validation must reject references in security schemes and
// request bodies, and parameter references are resolved later with an
// explicit visited set and depth bound.
package openapi

import "gopkg.in/yaml.v3"

// Document is the root of a parsed OpenAPI 3.x description.
type Document struct {
	OpenAPI    string                `yaml:"openapi"`
	Info       Info                  `yaml:"info"`
	Servers    []Server              `yaml:"servers"`
	Paths      map[string]*PathItem  `yaml:"paths"`
	Components *Components           `yaml:"components"`
	Security   []SecurityRequirement `yaml:"security"`
}

// Info carries API metadata.
type Info struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

// Server is one entry of the servers array.
type Server struct {
	URL         string                     `yaml:"url"`
	Description string                     `yaml:"description"`
	Variables   map[string]*ServerVariable `yaml:"variables"`
}

// ServerVariable describes a {token} in a server URL template.
type ServerVariable struct {
	Enum        []string `yaml:"enum"`
	Default     string   `yaml:"default"`
	Description string   `yaml:"description"`
}

// PathItem groups the operations available on one path template.
type PathItem struct {
	Summary     string       `yaml:"summary"`
	Description string       `yaml:"description"`
	Get         *Operation   `yaml:"get"`
	Put         *Operation   `yaml:"put"`
	Post        *Operation   `yaml:"post"`
	Delete      *Operation   `yaml:"delete"`
	Options     *Operation   `yaml:"options"`
	Head        *Operation   `yaml:"head"`
	Patch       *Operation   `yaml:"patch"`
	Parameters  []*Parameter `yaml:"parameters"`
}

// Operations returns the defined operations keyed by upper-case HTTP method,
// in a fixed method order.
func (p *PathItem) Operations() []MethodOperation {
	ops := []MethodOperation{
		{"GET", p.Get},
		{"PUT", p.Put},
		{"POST", p.Post},
		{"DELETE", p.Delete},
		{"OPTIONS", p.Options},
		{"HEAD", p.Head},
		{"PATCH", p.Patch},
	}
	out := ops[:0]
	for _, mo := range ops {
		if mo.Operation != nil {
			out = append(out, mo)
		}
	}
	return out
}

// MethodOperation pairs an HTTP method with its operation.
type MethodOperation struct {
	Method    string
	Operation *Operation
}

// Operation describes one API operation.
type Operation struct {
	Tags        []string              `yaml:"tags"`
	Summary     string                `yaml:"summary"`
	Description string                `yaml:"description"`
	OperationID string                `yaml:"operationId"`
	Parameters  []*Parameter          `yaml:"parameters"`
	RequestBody *RequestBody          `yaml:"requestBody"`
	Responses   map[string]*Response  `yaml:"responses"`
	Security    []SecurityRequirement `yaml:"security"`
	Deprecated  bool                  `yaml:"deprecated"`
}

// SecurityRequirement maps scheme names to required scopes. One requirement
// is one alternative; a request satisfies the list by satisfying any single
// requirement in it.
type SecurityRequirement map[string][]string

// Parameter describes a single operation parameter, or a reference to one
// under #/components/parameters when Ref is non-empty.
type Parameter struct {
	Ref         string                `yaml:"$ref"`
	Name        string                `yaml:"name"`
	In          string                `yaml:"in"`
	Description string                `yaml:"description"`
	Required    bool                  `yaml:"required"`
	Schema      *Schema               `yaml:"schema"`
	Content     map[string]*MediaType `yaml:"content"`
	Example     any                   `yaml:"example"`
}

// RequestBody describes an operation request body. Ref is kept so validation
// can reject referenced bodies.
type RequestBody struct {
	Ref         string                `yaml:"$ref"`
	Description string                `yaml:"description"`
	Required    bool                  `yaml:"required"`
	Content     map[string]*MediaType `yaml:"content"`
}

// MediaType binds a content type to its schema and example.
type MediaType struct {
	Schema  *Schema `yaml:"schema"`
	Example any     `yaml:"example"`
}

// Response describes one response alternative of an operation.
type Response struct {
	Description string                `yaml:"description"`
	Content     map[string]*MediaType `yaml:"content"`
}

// SecurityScheme describes an entry of components.securitySchemes. Ref is
// kept so validation can reject schemes defined by reference.
type SecurityScheme struct {
	Ref            string          `yaml:"$ref"`
	Type           string          `yaml:"type"`
	Description    string          `yaml:"description"`
	Name           string          `yaml:"name"`
	In             string          `yaml:"in"`
	Scheme         string          `yaml:"scheme"`
	BearerFormat   string          `yaml:"bearerFormat"`
	ApertureSecret *ApertureSecret `yaml:"x-aperture-secret"`
}

// ApertureSecret is the x-aperture-secret extension binding a scheme to the
// environment variable holding its credential.
type ApertureSecret struct {
	Source string `yaml:"source"`
	Name   string `yaml:"name"`
}

// Components holds the reusable objects referenced from the rest of the
// document.
type Components struct {
	Parameters      map[string]*Parameter      `yaml:"parameters"`
	RequestBodies   map[string]*RequestBody    `yaml:"requestBodies"`
	SecuritySchemes map[string]*SecurityScheme `yaml:"securitySchemes"`
}

// Schema is a JSON schema fragment. Only the fields the command generator
// needs are lifted out; Raw preserves the full fragment for fingerprinting.
type Schema struct {
	Type    string
	Format  string
	Default any
	Enum    []any
	Example any
	Raw     map[string]any
}

// UnmarshalYAML decodes the full schema fragment into Raw and lifts the
// generator-relevant fields.
func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	s.Raw = raw
	if v, ok := raw["type"].(string); ok {
		s.Type = v
	}
	if v, ok := raw["format"].(string); ok {
		s.Format = v
	}
	s.Default = raw["default"]
	s.Example = raw["example"]
	if v, ok := raw["enum"].([]any); ok {
		s.Enum = v
	}
	return nil
}

// MarshalYAML round-trips the raw fragment.
func (s *Schema) MarshalYAML() (any, error) { return s.Raw, nil }
