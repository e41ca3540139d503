// Package output renders response bodies as JSON, YAML, or a table, with an
// optional jq filter applied first.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/itchyny/gojq"
	"gopkg.in/yaml.v3"

	"github.com/aperture-cli/aperture/aperr"
)

// Format names accepted by --format.
const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
)

// ValidFormat reports whether name is a known output format.
func ValidFormat(name string) bool {
	return name == FormatJSON || name == FormatYAML || name == FormatTable
}

// Render writes body to w in the requested format. A non-JSON body is
// written through unchanged. filter, when non-empty, is a jq expression
// applied before formatting; each filter output renders separately.
func Render(w io.Writer, body, format, filter string) error {
	if strings.TrimSpace(body) == "" {
		return nil
	}

	var data any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		_, werr := fmt.Fprintln(w, body)
		return werr
	}

	values := []any{data}
	if filter != "" {
		filtered, err := applyFilter(filter, data)
		if err != nil {
			return err
		}
		values = filtered
	}

	for _, value := range values {
		if err := renderValue(w, value, format); err != nil {
			return err
		}
	}
	return nil
}

func applyFilter(filter string, data any) ([]any, error) {
	parsed, err := gojq.Parse(filter)
	if err != nil {
		return nil, aperr.Wrap(aperr.InvalidArgument, err, "invalid --jq filter %q", filter)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, aperr.Wrap(aperr.InvalidArgument, err, "invalid --jq filter %q", filter)
	}

	var out []any
	iter := code.Run(data)
	for {
		value, ok := iter.Next()
		if !ok {
			break
		}
		if qerr, isErr := value.(error); isErr {
			return nil, aperr.Wrap(aperr.InvalidArgument, qerr, "--jq filter failed")
		}
		out = append(out, value)
	}
	return out, nil
}

func renderValue(w io.Writer, value any, format string) error {
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(value)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatTable:
		return renderTable(w, value)
	default:
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
}

// renderTable draws an array of objects as rows under a sorted column
// header, a single object as key/value lines, and anything else as JSON.
func renderTable(w io.Writer, value any) error {
	switch v := value.(type) {
	case []any:
		return renderRows(w, v)
	case map[string]any:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, key := range sortedKeys(v) {
			fmt.Fprintf(tw, "%s\t%s\n", key, cellText(v[key]))
		}
		return tw.Flush()
	default:
		return renderValue(w, value, FormatJSON)
	}
}

func renderRows(w io.Writer, rows []any) error {
	columns := map[string]bool{}
	objects := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			// Heterogeneous arrays fall back to JSON.
			return renderValue(w, rows, FormatJSON)
		}
		objects = append(objects, obj)
		for key := range obj {
			columns[key] = true
		}
	}

	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	for _, obj := range objects {
		cells := make([]string, len(names))
		for i, name := range names {
			cells[i] = cellText(obj[name])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func cellText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
