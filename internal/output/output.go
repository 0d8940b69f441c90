// Package output renders CLI results as tables, JSON or YAML.
package output

import (
	"fmt"
	"strings"
)

// Format represents an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// FormatError reports an unsupported output format.
type FormatError struct {
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported output format: %s", e.Value)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	default:
		return "", &FormatError{Value: value}
	}
}

// Render encodes v as JSON or YAML, or calls renderTable for FormatTable.
func Render(format Format, v any, renderTable func() string) (string, error) {
	switch format {
	case FormatJSON:
		return encodeJSON(v, true)
	case FormatYAML:
		return encodeYAML(v)
	default:
		if renderTable == nil {
			return encodeJSON(v, true)
		}
		return renderTable(), nil
	}
}
