package index

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/index-v2.schema.json
var schemaV2 string

const schemaURL = "index-v2.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString(schemaURL, schemaV2)
})

// ValidateDocument checks a decoded index-v2 document against the embedded
// schema. doc must come from a json.Decoder, with or without UseNumber.
func ValidateDocument(doc any) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile index schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
