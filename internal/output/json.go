package output

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

func encodeJSON(v any, indent bool) (string, error) {
	var (
		data []byte
		err  error
	)

	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// encodeYAML goes through JSON first so field names follow the json tags.
func encodeYAML(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}
