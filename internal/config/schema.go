package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaCache struct {
	once sync.Once
	data []byte
	err  error
}

// JSONSchema returns the JSON Schema describing the configuration file
// format, reflected from the Config struct. The result is cached.
func JSONSchema() ([]byte, error) {
	schemaCache.once.Do(func() {
		reflector := &jsonschema.Reflector{FieldNameTag: "yaml"}
		schema := reflector.Reflect(&Config{})
		schema.Title = "Concierge configuration"
		schemaCache.data, schemaCache.err = json.MarshalIndent(schema, "", "  ")
	})
	return schemaCache.data, schemaCache.err
}
