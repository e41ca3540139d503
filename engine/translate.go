package engine

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/spf13/pflag"

	"github.com/aperture-cli/aperture/aperr"
	"github.com/aperture-cli/aperture/spec"
)

// Translate converts parsed flags and positional arguments into an
// OperationCall. The returned extras are the key=value server-variable
// arguments left after positional parameters are consumed.
func Translate(apiName string, command *spec.CachedCommand, flags *pflag.FlagSet, args []string, positional bool) (*OperationCall, []string, error) {
	call := &OperationCall{
		APIName:         apiName,
		OperationID:     command.OperationID,
		Method:          command.Method,
		Path:            command.Path,
		SecuritySchemes: command.SecuritySchemes,
	}

	positionals := positionalParams(command, positional)
	if len(args) < len(positionals) {
		missing := positionals[len(args)]
		return nil, nil, aperr.New(aperr.InvalidArgument,
			"missing positional argument <%s>", missing.FlagName)
	}
	byName := make(map[string]string, len(positionals))
	for i, p := range positionals {
		byName[p.Name] = args[i]
	}
	extras := args[len(positionals):]

	for i := range command.Parameters {
		p := &command.Parameters[i]
		value, set, err := paramValue(p, flags, byName)
		if err != nil {
			return nil, nil, err
		}
		if !set {
			continue
		}
		if len(p.Enum) > 0 && !enumAllows(p.Enum, value) {
			return nil, nil, aperr.New(aperr.InvalidArgument,
				"value %q for --%s is not one of: %s", value, p.FlagName, strings.Join(p.Enum, ", "))
		}

		switch p.Location {
		case "path":
			call.Path = strings.ReplaceAll(call.Path, "{"+p.Name+"}", url.PathEscape(value))
		case "query":
			call.Query = append(call.Query, Pair{p.Name, value})
		case "header":
			call.SetHeader(p.Name, value)
		case "cookie":
			call.Cookies = append(call.Cookies, Pair{p.Name, value})
		}
	}

	if strings.Contains(call.Path, "{") {
		return nil, nil, aperr.New(aperr.InvalidArgument,
			"path %s has unresolved parameters", call.Path)
	}

	if command.RequestBody != nil {
		body, _ := flags.GetString("body")
		if body != "" {
			if !json.Valid([]byte(body)) {
				return nil, nil, aperr.New(aperr.InvalidArgument,
					"--body must be a valid JSON string")
			}
			call.Body = body
		}
	}

	return call, extras, nil
}

// paramValue resolves one parameter. Booleans are always set and contribute
// the literal "true" or "false"; other optional parameters contribute only
// when the flag was provided.
func paramValue(p *spec.CachedParameter, flags *pflag.FlagSet, positionals map[string]string) (string, bool, error) {
	if p.Type == "boolean" {
		b, err := flags.GetBool(p.FlagName)
		if err != nil {
			return "", false, aperr.Wrap(aperr.InvalidArgument, err, "flag --%s", p.FlagName)
		}
		if b {
			return "true", true, nil
		}
		return "false", true, nil
	}

	if v, ok := positionals[p.Name]; ok {
		return v, true, nil
	}

	f := flags.Lookup(p.FlagName)
	if f == nil {
		return "", false, nil
	}
	if !f.Changed && !p.Required {
		return "", false, nil
	}
	return f.Value.String(), true, nil
}

func enumAllows(enum []string, value string) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
	}
	return false
}
