// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the config file schema.
const SchemaID = "https://truthtribunal.dev/schemas/config.schema.json"

var compiledSchema = sync.OnceValues(compileSchema)

// GenerateSchema reflects Config into a JSON Schema. Unknown keys are
// rejected so typos in the config file surface immediately.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Tribunal configuration"
	schema.Description = "Schema for tribunal config.yaml files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
	}
	return data, nil
}

func compileSchema() (*jschema.Schema, error) {
	raw, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	c := jschema.NewCompiler()
	if err := c.AddResource("config.schema.json", doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	return sch, nil
}

// ValidateYAML checks a config file against the schema. An empty document
// is valid.
func ValidateYAML(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_INVALID").Wrapf(err, "invalid YAML")
	}
	if doc == nil {
		return nil
	}

	// Round-trip through JSON so numbers arrive as json.Number.
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrapf(err, "config is not JSON-compatible")
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(inst); err != nil {
		return oops.Code("CONFIG_INVALID").Errorf("%s", FormatSchemaError(err))
	}
	return nil
}

// FormatSchemaError flattens a validation error to a single line.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}
