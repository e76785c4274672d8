package guidance

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

//go:embed document.schema.json
var documentSchemaJSON []byte

// DocumentValidator checks encoded documents against the stored-content schema.
type DocumentValidator struct {
	schema *jsonschema.Schema
}

func NewDocumentValidator() (*DocumentValidator, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(documentSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	return &DocumentValidator{schema: schema}, nil
}

// Validate reports every schema violation in content.
func (v *DocumentValidator) Validate(content []byte) error {
	var instance map[string]interface{}
	if err := json.Unmarshal(content, &instance); err != nil {
		return fmt.Errorf("document is not a json object: %w", err)
	}
	result := v.schema.Validate(instance)
	if result.IsValid() {
		return nil
	}
	var messages []string
	for field, evalErr := range result.Errors {
		messages = append(messages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
	}
	sort.Strings(messages)
	return fmt.Errorf("document validation failed: %s", strings.Join(messages, "; "))
}
