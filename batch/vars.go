package batch

import (
	"encoding/json"
	"strings"

	"github.com/aperture-cli/aperture/aperr"
)

// VariableStore holds captured values. Scalars and lists share one namespace
// for lookup; when a name exists as both, the list wins.
type VariableStore struct {
	scalars map[string]string
	lists   map[string][]string
}

// NewVariableStore returns an empty store.
func NewVariableStore() *VariableStore {
	return &VariableStore{
		scalars: make(map[string]string),
		lists:   make(map[string][]string),
	}
}

// Set writes a scalar.
func (s *VariableStore) Set(name, value string) {
	s.scalars[name] = value
}

// Append adds one element to the named list, creating it if absent.
func (s *VariableStore) Append(name, value string) {
	s.lists[name] = append(s.lists[name], value)
}

// lookup resolves a name, preferring the list form.
func (s *VariableStore) lookup(name string) (string, bool) {
	if values, ok := s.lists[name]; ok {
		out, err := json.Marshal(values)
		if err != nil {
			return "", false
		}
		return string(out), true
	}
	value, ok := s.scalars[name]
	return value, ok
}

// Interpolate replaces {{name}} tokens in arg. An unresolvable name fails
// with UnresolvedVariable; an unclosed {{ fails with InvalidInterpolation.
// Token content the grammar does not recognize passes through unchanged.
func (s *VariableStore) Interpolate(arg, operationID string) (string, error) {
	var sb strings.Builder
	rest := arg
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}
		sb.WriteString(rest[:open])
		rest = rest[open:]

		end := strings.Index(rest, "}}")
		if end < 0 {
			return "", aperr.New(aperr.InvalidInterpolation,
				"operation %q: unclosed {{ in argument %q", operationID, arg)
		}
		name := rest[2:end]
		if !validVarName(name) {
			sb.WriteString("{{")
			rest = rest[2:]
			continue
		}
		value, ok := s.lookup(name)
		if !ok {
			return "", aperr.NewUnresolvedVariable(name, operationID)
		}
		sb.WriteString(value)
		rest = rest[end+2:]
	}
}

// ExtractVarRefs returns the variable names referenced in one argument
// token, for implicit edge construction. Unclosed {{ is the same error the
// interpolator raises.
func ExtractVarRefs(arg string) ([]string, error) {
	var names []string
	rest := arg
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			return names, nil
		}
		rest = rest[open:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			return nil, aperr.New(aperr.InvalidInterpolation,
				"unclosed {{ in argument %q", arg)
		}
		name := rest[2:end]
		if validVarName(name) {
			names = append(names, name)
			rest = rest[end+2:]
		} else {
			rest = rest[2:]
		}
	}
}

// validVarName accepts the recognized token grammar: non-empty, no spaces,
// no nested braces.
func validVarName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, "{} \t\n")
}
