package output

import (
	"encoding/json"

	"github.com/storelens/storelens/internal/core"
)

// JSONFormatter renders results as JSON, exactly as the API serves them.
type JSONFormatter struct {
	Indent bool
}

// FormatResult renders an audit result as JSON. A nil result renders empty.
func (f *JSONFormatter) FormatResult(result *core.AuditResult) (string, error) {
	if result == nil {
		return "", nil
	}
	return encodeJSON(result, f.Indent)
}

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
