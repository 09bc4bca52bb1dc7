package storage

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/TomCreeper/Shopkeepers/internal/section"
)

//go:embed save.schema.json
var saveSchema string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Validate checks a save tree against the save file schema. Legacy layouts
// that the load pipeline still migrates are accepted.
func Validate(root *section.Section) error {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("save.schema.json", saveSchema)
	})
	if schemaErr != nil {
		return fmt.Errorf("compile save schema: %w", schemaErr)
	}
	// Round trip through JSON so the validator sees JSON types only.
	raw, err := json.Marshal(root.ToMap())
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
