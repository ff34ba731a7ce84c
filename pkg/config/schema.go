package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/proactor/internal/bytesize"
)

// JSONSchema returns the JSON schema of the configuration file, keyed by
// the yaml field names. Editors use it for completion and validation.
func JSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch t {
			case reflect.TypeOf(bytesize.ByteSize(0)):
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     `^\s*\d+(\.\d+)?\s*([KkMmGgTt]i?[Bb]?|[Bb])?\s*$`,
					Description: "size in bytes, e.g. 64Ki or 10MB",
				}
			case reflect.TypeOf(time.Duration(0)):
				return &jsonschema.Schema{
					Type:        "string",
					Description: "Go duration, e.g. 30s or 5m",
				}
			}
			return nil
		},
	}

	schema := r.Reflect(&Config{})
	schema.Title = "proactord configuration"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
