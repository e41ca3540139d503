package batch

import (
	"encoding/json"
	"sort"

	"github.com/itchyny/gojq"

	"github.com/aperture-cli/aperture/aperr"
)

// ExtractCaptures evaluates every capture query of one operation against
// the response body and returns name -> captured string. A body that is not
// valid JSON fails every capture.
func ExtractCaptures(operationID, body string, queries map[string]string) (map[string]string, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(queries))
	for name := range queries {
		names = append(names, name)
	}
	sort.Strings(names)

	var data any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, aperr.NewCaptureFailed(operationID, queries[names[0]],
			"response body is not valid JSON")
	}

	out := make(map[string]string, len(queries))
	for _, name := range names {
		value, err := evalQuery(operationID, queries[name], data)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

// evalQuery runs one query and renders the first result as a string:
// strings are unquoted, null/booleans/numbers keep their JSON text, and
// objects and arrays serialize to compact JSON.
func evalQuery(operationID, query string, data any) (string, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return "", aperr.NewCaptureFailed(operationID, query, err.Error())
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return "", aperr.NewCaptureFailed(operationID, query, err.Error())
	}

	iter := code.Run(data)
	value, ok := iter.Next()
	if !ok {
		return "", aperr.NewCaptureFailed(operationID, query, "query produced no output")
	}
	if qerr, isErr := value.(error); isErr {
		return "", aperr.NewCaptureFailed(operationID, query, qerr.Error())
	}

	switch v := value.(type) {
	case string:
		return v, nil
	default:
		text, err := gojq.Marshal(value)
		if err != nil {
			return "", aperr.NewCaptureFailed(operationID, query, err.Error())
		}
		return string(text), nil
	}
}
