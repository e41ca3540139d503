package spec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/aperture-cli/aperture/aperr"
	"github.com/aperture-cli/aperture/openapi"
)

// maxRefDepth bounds parameter $ref chains.
const maxRefDepth = 10

// TransformOptions carry the registration context into the transformer.
type TransformOptions struct {
	// Name is the API name the spec was registered under.
	Name string

	// Skipped lists endpoints the validator excluded.
	Skipped []openapi.SkippedEndpoint

	// Warnings from validation, persisted for later display.
	Warnings []string
}

// Transform converts a validated OpenAPI document into the cached model.
func Transform(doc *openapi.Document, opts TransformOptions) (*CachedSpec, error) {
	cached := &CachedSpec{
		FormatVersion: FormatVersion,
		Name:          opts.Name,
		Version:       doc.Info.Version,
		Skipped:       opts.Skipped,
	}

	for _, server := range doc.Servers {
		cached.Servers = append(cached.Servers, server.URL)
		for name, v := range server.Variables {
			if v == nil {
				continue
			}
			if cached.ServerVariables == nil {
				cached.ServerVariables = make(map[string]ServerVariable)
			}
			cached.ServerVariables[name] = ServerVariable{
				Default:     v.Default,
				Enum:        v.Enum,
				Description: v.Description,
			}
		}
	}
	if len(cached.Servers) > 0 {
		cached.BaseURL = cached.Servers[0]
	}

	if err := transformSecuritySchemes(doc, cached); err != nil {
		return nil, err
	}

	skipped := make(map[string]bool, len(opts.Skipped))
	for _, s := range opts.Skipped {
		skipped[s.Method+" "+s.Path] = true
	}

	// Deterministic output: walk paths in sorted order.
	paths := make([]string, 0, len(doc.Paths))
	for path := range doc.Paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		item := doc.Paths[path]
		if item == nil {
			continue
		}
		for _, mo := range item.Operations() {
			if skipped[mo.Method+" "+path] {
				continue
			}
			cmd, err := transformOperation(doc, cached, path, mo.Method, mo.Operation, item.Parameters)
			if err != nil {
				return nil, err
			}
			cached.Commands = append(cached.Commands, *cmd)
		}
	}

	return cached, nil
}

func transformSecuritySchemes(doc *openapi.Document, cached *CachedSpec) error {
	if doc.Components == nil {
		return nil
	}
	for name, s := range doc.Components.SecuritySchemes {
		if s == nil || s.Ref != "" {
			continue
		}
		scheme, supported := convertScheme(s)
		if !supported {
			continue
		}
		if cached.SecuritySchemes == nil {
			cached.SecuritySchemes = make(map[string]SecurityScheme)
		}
		cached.SecuritySchemes[name] = scheme
	}
	return nil
}

// convertScheme maps an OpenAPI scheme onto the closed variant. Unsupported
// kinds (oauth2, openIdConnect, negotiate-style http) report supported=false
// and are left out of the cached model.
func convertScheme(s *openapi.SecurityScheme) (SecurityScheme, bool) {
	var secret *SecretBinding
	if s.ApertureSecret != nil {
		secret = &SecretBinding{Source: s.ApertureSecret.Source, Name: s.ApertureSecret.Name}
	}
	switch s.Type {
	case "apiKey":
		return SecurityScheme{
			Kind:      SchemeAPIKey,
			Location:  s.In,
			ParamName: s.Name,
			Secret:    secret,
		}, true
	case "http":
		scheme := strings.ToLower(s.Scheme)
		switch scheme {
		case "bearer":
			return SecurityScheme{Kind: SchemeHTTPBearer, BearerFormat: s.BearerFormat, Secret: secret}, true
		case "basic":
			return SecurityScheme{Kind: SchemeHTTPBasic, Secret: secret}, true
		case "negotiate", "oauth", "oauth2", "openidconnect":
			return SecurityScheme{}, false
		default:
			// Any other http scheme is carried opaquely as a token scheme.
			return SecurityScheme{Kind: SchemeHTTPToken, SchemeName: s.Scheme, Secret: secret}, true
		}
	}
	return SecurityScheme{}, false
}

func transformOperation(doc *openapi.Document, cached *CachedSpec, path, method string, op *openapi.Operation, inherited []*openapi.Parameter) (*CachedCommand, error) {
	cmd := &CachedCommand{
		Tag:         DefaultGroup,
		Summary:     op.Summary,
		Description: op.Description,
		OperationID: op.OperationID,
		Method:      method,
		Path:        path,
		Deprecated:  op.Deprecated,
	}
	if len(op.Tags) > 0 {
		cmd.Tag = strcase.ToKebab(op.Tags[0])
	}
	cmd.Name = commandName(op.OperationID, method, path)

	// Operation parameters take precedence over path-item parameters with
	// the same name and location.
	params, err := mergeParameters(doc, op.Parameters, inherited)
	if err != nil {
		return nil, aperr.Wrap(aperr.Validation, err, "operation %s %s", method, path)
	}

	flagNames := make(map[string]string, len(params))
	for _, p := range params {
		cp, err := transformParameter(p)
		if err != nil {
			return nil, aperr.Wrap(aperr.Validation, err, "operation %s %s", method, path)
		}
		if prev, dup := flagNames[cp.FlagName]; dup {
			return nil, aperr.New(aperr.Validation,
				"operation %s %s: parameters %q and %q collide on flag name %q",
				method, path, prev, cp.Name, cp.FlagName)
		}
		flagNames[cp.FlagName] = cp.Name
		cmd.Parameters = append(cmd.Parameters, *cp)
	}

	if op.RequestBody != nil {
		body, err := transformRequestBody(op.RequestBody)
		if err != nil {
			return nil, aperr.Wrap(aperr.Validation, err, "operation %s %s", method, path)
		}
		cmd.RequestBody = body
	}

	cmd.Responses = transformResponses(op.Responses)
	cmd.SecuritySchemes = effectiveSchemes(doc, cached, op)
	return cmd, nil
}

// commandName derives the CLI leaf name: the kebab-cased operation id, with
// a method+path fallback for operations without one.
func commandName(operationID, method, path string) string {
	if operationID != "" {
		return strcase.ToKebab(operationID)
	}
	cleaned := strings.NewReplacer("{", "", "}", "", "/", "-").Replace(strings.Trim(path, "/"))
	if cleaned == "" {
		return strings.ToLower(method)
	}
	return strcase.ToKebab(strings.ToLower(method) + "-" + cleaned)
}

// mergeParameters resolves references and merges path-item parameters under
// operation parameters.
func mergeParameters(doc *openapi.Document, own, inherited []*openapi.Parameter) ([]*openapi.Parameter, error) {
	var out []*openapi.Parameter
	seen := make(map[string]bool)
	add := func(p *openapi.Parameter) error {
		resolved, err := ResolveParameter(doc, p)
		if err != nil {
			return err
		}
		key := resolved.In + ":" + resolved.Name
		if seen[key] {
			return nil
		}
		seen[key] = true
		out = append(out, resolved)
		return nil
	}
	for _, p := range own {
		if err := add(p); err != nil {
			return nil, err
		}
	}
	for _, p := range inherited {
		if err := add(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ResolveParameter follows $ref chains through components.parameters,
// rejecting cycles and chains deeper than the depth bound. Resolution is
// idempotent: a parameter without a reference is returned unchanged.
func ResolveParameter(doc *openapi.Document, p *openapi.Parameter) (*openapi.Parameter, error) {
	visited := make(map[string]bool)
	depth := 0
	for p != nil && p.Ref != "" {
		if depth++; depth > maxRefDepth {
			return nil, aperr.New(aperr.Validation,
				"parameter reference chain exceeds depth limit %d", maxRefDepth)
		}
		if visited[p.Ref] {
			return nil, aperr.New(aperr.Validation,
				"circular parameter reference: %s", p.Ref)
		}
		visited[p.Ref] = true

		name, ok := strings.CutPrefix(p.Ref, "#/components/parameters/")
		if !ok {
			return nil, aperr.New(aperr.Validation,
				"unsupported parameter reference %q: only #/components/parameters/ references are resolvable", p.Ref)
		}
		if doc.Components == nil || doc.Components.Parameters[name] == nil {
			return nil, aperr.New(aperr.Validation,
				"parameter reference %q does not resolve", p.Ref)
		}
		p = doc.Components.Parameters[name]
	}
	if p == nil {
		return nil, aperr.New(aperr.Validation, "parameter is null")
	}
	return p, nil
}

func transformParameter(p *openapi.Parameter) (*CachedParameter, error) {
	if p.Schema == nil {
		return nil, fmt.Errorf("parameter %q does not declare a schema", p.Name)
	}
	cp := &CachedParameter{
		Name:        p.Name,
		Location:    p.In,
		Required:    p.Required || p.In == "path",
		Description: p.Description,
		Type:        p.Schema.Type,
		Format:      p.Schema.Format,
		Schema:      compactJSON(p.Schema.Raw),
		FlagName:    strcase.ToKebab(p.Name),
	}
	if cp.Type == "" {
		cp.Type = "string"
	}
	cp.Default = scalarText(p.Schema.Default)
	for _, e := range p.Schema.Enum {
		cp.Enum = append(cp.Enum, scalarText(e))
	}
	example := p.Example
	if example == nil {
		example = p.Schema.Example
	}
	cp.Example = scalarText(example)
	return cp, nil
}

func transformRequestBody(body *openapi.RequestBody) (*CachedRequestBody, error) {
	// Pick the JSON content type; validation guaranteed one exists.
	types := make([]string, 0, len(body.Content))
	for ct := range body.Content {
		types = append(types, ct)
	}
	sort.Strings(types)
	for _, ct := range types {
		if !openapi.IsJSONContentType(ct) {
			continue
		}
		media := body.Content[ct]
		out := &CachedRequestBody{
			ContentType: ct,
			Required:    body.Required,
			Description: body.Description,
		}
		if media != nil && media.Schema != nil {
			out.Schema = compactJSON(media.Schema.Raw)
		}
		if media != nil && media.Example != nil {
			out.Example = scalarText(media.Example)
		}
		return out, nil
	}
	return nil, fmt.Errorf("request body has no JSON content type")
}

func transformResponses(responses map[string]*openapi.Response) []CachedResponse {
	codes := make([]string, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var out []CachedResponse
	for _, code := range codes {
		resp := responses[code]
		cr := CachedResponse{StatusCode: code}
		if resp != nil {
			cts := make([]string, 0, len(resp.Content))
			for ct := range resp.Content {
				cts = append(cts, ct)
			}
			sort.Strings(cts)
			for _, ct := range cts {
				if openapi.IsJSONContentType(ct) {
					cr.ContentType = ct
					if resp.Content[ct] != nil && resp.Content[ct].Schema != nil {
						cr.Schema = compactJSON(resp.Content[ct].Schema.Raw)
					}
					break
				}
			}
		}
		out = append(out, cr)
	}
	return out
}

// effectiveSchemes flattens the operation's security requirements to the
// union of scheme names, keeping only schemes the cached model carries.
// Alternative semantics are intentionally not preserved.
func effectiveSchemes(doc *openapi.Document, cached *CachedSpec, op *openapi.Operation) []string {
	security := op.Security
	if security == nil {
		security = doc.Security
	}
	seen := make(map[string]bool)
	var names []string
	for _, alternative := range security {
		for name := range alternative {
			if seen[name] {
				continue
			}
			seen[name] = true
			if _, ok := cached.SecuritySchemes[name]; ok {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func compactJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// scalarText renders a schema scalar (default, enum member, example) as the
// text the CLI shows and substitutes. Strings stay raw; everything else is
// compact JSON.
func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return compactJSON(v)
	}
}
