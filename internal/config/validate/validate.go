package validate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

//go:embed schema/descriptor.schema.json
var descriptorSchema []byte

const descriptorSchemaName = "descriptor.schema.json"

// DescriptorSchema returns the embedded package descriptor schema.
func DescriptorSchema() []byte {
	return descriptorSchema
}

// ValidateAgainstSchema validates JSON data against the schema registered
// under name. ref selects a sub-schema (for example "#/definitions/step"); empty
// validates against the root.
func ValidateAgainstSchema(name string, schema []byte, data []byte, ref string) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(name, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("loading schema %s: %w", name, err)
	}

	sch, err := compiler.Compile(name + ref)
	if err != nil {
		return fmt.Errorf("compiling schema %s%s: %w", name, ref, err)
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("schema validation against %s%s failed: %w", name, ref, err)
	}
	return nil
}

// ValidateDescriptorJSON validates a JSON encoded package descriptor.
func ValidateDescriptorJSON(data []byte) error {
	return ValidateAgainstSchema(descriptorSchemaName, descriptorSchema, data, "")
}

// ValidateDescriptorYAML converts YAML to JSON and validates it as a package
// descriptor.
func ValidateDescriptorYAML(data []byte) error {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting descriptor YAML to JSON: %w", err)
	}
	return ValidateDescriptorJSON(jsonData)
}
