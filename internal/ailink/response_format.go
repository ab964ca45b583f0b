package ailink

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/storelens/storelens/internal/ailink/driver"
	"github.com/storelens/storelens/internal/ailink/prompt"
)

const (
	formatJSONObject = "json_object"
	formatJSONSchema = "json_schema"
)

// Schema names are reduced to letters, digits and underscores.
var schemaNameUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// responseFormatForProvider asks for strict json_schema output when the
// driver supports it and the prompt declares a schema, json_object otherwise.
func responseFormatForProvider(resolved *ResolvedProvider, def *prompt.Prompt) *driver.ResponseFormat {
	if def == nil || len(def.Config.ResponseSchema) == 0 || !supportsSchema(resolved) {
		return &driver.ResponseFormat{Type: formatJSONObject}
	}
	name := schemaNameUnsafe.ReplaceAllString(strings.TrimSpace(def.Config.Slug), "_")
	if name == "" {
		name = "storelens_grade"
	}
	return &driver.ResponseFormat{
		Type:       formatJSONSchema,
		JSONSchema: &driver.JSONSchema{Name: name, Strict: true, Schema: def.Config.ResponseSchema},
	}
}

func supportsSchema(resolved *ResolvedProvider) bool {
	return resolved != nil && resolved.Driver != nil && resolved.Driver.Capabilities().SupportsJSONSchema
}

// isUnsupportedSchemaError recognises a 400 complaining about the requested
// response format, which older models answer to strict schemas.
func isUnsupportedSchemaError(err error) bool {
	var perr *driver.ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(perr.Message)
	return strings.Contains(msg, formatJSONSchema) || strings.Contains(msg, "response_format")
}

// fallbackToJSONObject downgrades a schema request; the response is still
// validated against the prompt schema locally.
func fallbackToJSONObject(req *driver.Request) {
	if req != nil && req.ResponseFormat != nil {
		req.ResponseFormat = &driver.ResponseFormat{Type: formatJSONObject}
	}
}
