package openapi

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aperture-cli/aperture/aperr"
)

// SkippedEndpoint records an operation excluded from command generation and
// the human-readable reason.
type SkippedEndpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	ContentType string `json:"content_type,omitempty"`
	Reason      string `json:"reason"`
}

// Result accumulates the outcome of validating one document.
type Result struct {
	Warnings []string
	Skipped  []SkippedEndpoint
}

// envVarName is the accepted shape for x-aperture-secret environment
// variable names.
var envVarName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// httpSchemesUnsupported closes over the http scheme names that cannot be
// treated as opaque bearer-like tokens.
var httpSchemesUnsupported = map[string]bool{
	"negotiate":     true,
	"oauth":         true,
	"oauth2":        true,
	"openidconnect": true,
}

// contentTypeReasons maps a MIME base type to the user-facing skip reason.
var contentTypeReasons = map[string]string{
	"multipart/form-data":               "file uploads are not supported",
	"application/octet-stream":          "binary data uploads are not supported",
	"application/pdf":                   "PDF uploads are not supported",
	"application/xml":                   "XML content is not supported",
	"text/xml":                          "XML content is not supported",
	"application/x-www-form-urlencoded": "form-encoded data is not supported",
	"text/plain":                        "plain text content is not supported",
	"text/csv":                          "CSV content is not supported",
	"application/x-ndjson":              "newline-delimited JSON is not supported",
	"application/graphql":               "GraphQL content is not supported",
}

// UnsupportedContentTypeReason returns the skip reason for a content type
// the runtime cannot send.
func UnsupportedContentTypeReason(contentType string) string {
	base := mimeBase(contentType)
	if reason, ok := contentTypeReasons[base]; ok {
		return reason
	}
	if strings.HasPrefix(base, "image/") {
		return "image uploads are not supported"
	}
	return "is not supported"
}

// IsJSONContentType reports whether the MIME base type is application/json
// (case-insensitive) or a +json suffix type.
func IsJSONContentType(contentType string) bool {
	base := mimeBase(contentType)
	return base == "application/json" || strings.HasSuffix(base, "+json")
}

func mimeBase(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// Validate checks the document against the feature set the runtime supports.
// In strict mode any incompatibility is an error; otherwise incompatible
// endpoints are recorded as skipped with a warning.
func Validate(doc *Document, strict bool) (*Result, error) {
	v := &validator{doc: doc, strict: strict, result: &Result{}}
	if err := v.validateSecuritySchemes(); err != nil {
		return nil, err
	}
	if err := v.validatePaths(); err != nil {
		return nil, err
	}
	return v.result, nil
}

type validator struct {
	doc    *Document
	strict bool
	result *Result

	// scheme name -> reason, for schemes that exist but cannot be used
	unsupportedSchemes map[string]string
}

func (v *validator) schemes() map[string]*SecurityScheme {
	if v.doc.Components == nil {
		return nil
	}
	return v.doc.Components.SecuritySchemes
}

func (v *validator) validateSecuritySchemes() error {
	v.unsupportedSchemes = make(map[string]string)

	for name, scheme := range v.schemes() {
		if scheme == nil {
			continue
		}
		if scheme.Ref != "" {
			return aperr.New(aperr.Validation,
				"security scheme %q is defined by reference; scheme references are not supported", name)
		}
		if err := validateApertureSecret(name, scheme.ApertureSecret); err != nil {
			return err
		}

		reason := unsupportedSchemeReason(scheme)
		if reason == "" {
			continue
		}
		if v.strict {
			return aperr.New(aperr.Validation,
				"security scheme %q uses unsupported authentication: %s", name, reason)
		}
		v.unsupportedSchemes[name] = reason
		v.warnf("security scheme %q uses unsupported authentication: %s", name, reason)
	}
	return nil
}

func unsupportedSchemeReason(scheme *SecurityScheme) string {
	switch scheme.Type {
	case "oauth2":
		return "OAuth2 authentication is not supported"
	case "openIdConnect":
		return "OpenID Connect authentication is not supported"
	case "http":
		if httpSchemesUnsupported[strings.ToLower(scheme.Scheme)] {
			return fmt.Sprintf("HTTP %q authentication is not supported", scheme.Scheme)
		}
	}
	return ""
}

func validateApertureSecret(scheme string, secret *ApertureSecret) error {
	if secret == nil {
		return nil
	}
	if secret.Source != "env" {
		return aperr.New(aperr.Validation,
			"security scheme %q: x-aperture-secret source must be \"env\", got %q", scheme, secret.Source)
	}
	if !envVarName.MatchString(secret.Name) {
		return aperr.New(aperr.Validation,
			"security scheme %q: x-aperture-secret name %q is not a valid environment variable name", scheme, secret.Name)
	}
	return nil
}

func (v *validator) validatePaths() error {
	for path, item := range v.doc.Paths {
		if item == nil {
			continue
		}
		for _, p := range item.Parameters {
			if err := v.validateParameter(path, p); err != nil {
				return err
			}
		}
		for _, mo := range item.Operations() {
			if err := v.validateOperation(path, mo.Method, mo.Operation); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *validator) validateOperation(path, method string, op *Operation) error {
	for _, p := range op.Parameters {
		if err := v.validateParameter(path, p); err != nil {
			return err
		}
	}
	if skipped, err := v.validateSecurity(path, method, op); err != nil || skipped {
		return err
	}
	return v.validateRequestBody(path, method, op.RequestBody)
}

// validateSecurity checks that every referenced scheme exists and skips
// operations whose every security alternative requires unsupported schemes.
func (v *validator) validateSecurity(path, method string, op *Operation) (bool, error) {
	security := op.Security
	if security == nil {
		security = v.doc.Security
	}
	if len(security) == 0 {
		return false, nil
	}

	schemes := v.schemes()
	usable := false
	var reason string
	for _, alternative := range security {
		altUsable := true
		for name := range alternative {
			if _, defined := schemes[name]; !defined {
				return false, aperr.New(aperr.Validation,
					"operation %s %s references undefined security scheme %q", method, path, name)
			}
			if r, bad := v.unsupportedSchemes[name]; bad {
				altUsable = false
				reason = r
			}
		}
		if altUsable {
			usable = true
		}
	}
	if usable {
		return false, nil
	}

	// Strict mode already rejected the scheme definitions themselves.
	msg := fmt.Sprintf("unsupported authentication: %s", reason)
	v.result.Skipped = append(v.result.Skipped, SkippedEndpoint{
		Path:   path,
		Method: method,
		Reason: msg,
	})
	v.warnf("skipping %s %s: %s", method, path, msg)
	return true, nil
}

func (v *validator) validateParameter(path string, p *Parameter) error {
	if p == nil || p.Ref != "" {
		// References are resolved by the transformer with cycle detection.
		return nil
	}
	if len(p.Content) > 0 {
		return aperr.New(aperr.Validation,
			"parameter %q at %s uses content-based serialization, which is not supported", p.Name, path)
	}
	if p.Schema == nil {
		return aperr.New(aperr.Validation,
			"parameter %q at %s does not declare a schema", p.Name, path)
	}
	return nil
}

func (v *validator) validateRequestBody(path, method string, body *RequestBody) error {
	if body == nil {
		return nil
	}
	if body.Ref != "" {
		return aperr.New(aperr.Validation,
			"request body of %s %s is defined by reference; body references are not supported", method, path)
	}

	if len(body.Content) == 0 {
		return aperr.New(aperr.Validation,
			"request body of %s %s declares no content types", method, path)
	}

	var firstUnsupported string
	hasJSON := false
	for contentType := range body.Content {
		if IsJSONContentType(contentType) {
			hasJSON = true
		} else if firstUnsupported == "" {
			firstUnsupported = contentType
		}
	}

	switch {
	case hasJSON && firstUnsupported != "":
		v.warnf("%s %s also declares non-JSON content type %q; only the JSON body is supported",
			method, path, firstUnsupported)
	case !hasJSON:
		reason := fmt.Sprintf("no supported content types: %s %s",
			firstUnsupported, UnsupportedContentTypeReason(firstUnsupported))
		if v.strict {
			return aperr.New(aperr.Validation, "request body of %s %s has %s", method, path, reason)
		}
		v.result.Skipped = append(v.result.Skipped, SkippedEndpoint{
			Path:        path,
			Method:      method,
			ContentType: firstUnsupported,
			Reason:      reason,
		})
		v.warnf("skipping %s %s: %s", method, path, reason)
	}
	return nil
}

func (v *validator) warnf(format string, args ...any) {
	v.result.Warnings = append(v.result.Warnings, fmt.Sprintf(format, args...))
}
