// Package schema checks the structure of workflow definitions and reports
// violations with the line and column they occur at.
package schema

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kris-hansen/stepwise/utils/catalog"
)

//go:embed workflow.schema.json
var workflowSchema []byte

const schemaURL = "workflow.schema.json"

// Document returns the schema as a decoded JSON value. When providers is
// set, step provider types are limited to query-capable providers and action
// provider types to notify-capable ones.
func Document(providers catalog.Catalog) (map[string]any, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(workflowSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to decode workflow schema: %w", err)
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("workflow schema is not an object")
	}
	if providers == nil {
		return root, nil
	}

	defs, _ := root["$defs"].(map[string]any)
	if defs == nil {
		return nil, fmt.Errorf("workflow schema has no $defs")
	}
	if types := providers.QueryTypes(); len(types) > 0 {
		defs["stepType"] = enumOf(types)
	}
	if types := providers.NotifyTypes(); len(types) > 0 {
		defs["actionType"] = enumOf(types)
	}
	return root, nil
}

func enumOf(values []string) map[string]any {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return map[string]any{"type": "string", "enum": enum}
}

// Compile builds the workflow schema for the given catalog.
func Compile(providers catalog.Catalog) (*jsonschema.Schema, error) {
	doc, err := Document(providers)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add workflow schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow schema: %w", err)
	}
	return sch, nil
}
