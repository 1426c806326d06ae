package validate

import (
	"strings"
	"testing"
)

// FuzzValidateAgainstSchema feeds arbitrary documents to a small schema.
func FuzzValidateAgainstSchema(f *testing.F) {
	stepSchema := []byte(`{
		"type": "object",
		"properties": {
			"from": {"type": "string"},
			"to": {"enum": ["bin", "share"]}
		},
		"required": ["from", "to"]
	}`)

	f.Add("step-schema", stepSchema, []byte(`{"from": "_output/bin/*", "to": "bin"}`))
	f.Add("step-schema", stepSchema, []byte(`{"from": "x"}`))
	f.Add("step-schema", stepSchema, []byte(`{}`))
	f.Add("step-schema", stepSchema, []byte(`null`))
	f.Add("step-schema", stepSchema, []byte(`[]`))
	f.Add("step-schema", stepSchema, []byte(`not json`))

	f.Fuzz(func(t *testing.T, name string, schema []byte, data []byte) {
		if name == "" || strings.ContainsAny(name, "#%") || len(name) < 3 {
			t.Skip("Skipping invalid schema name")
		}
		if len(schema) < 10 {
			t.Skip("Skipping too small schema")
		}
		_ = ValidateAgainstSchema(name, schema, data, "")
	})
}

// FuzzValidateDescriptorYAML makes sure arbitrary YAML never panics the validator.
func FuzzValidateDescriptorYAML(f *testing.F) {
	f.Add([]byte(validDescriptor))
	f.Add([]byte(""))
	f.Add([]byte("null"))
	f.Add([]byte("{}"))
	f.Add([]byte("name: [unclosed"))
	f.Add([]byte("---\n---\n"))
	f.Add([]byte("name: &a x\nurl: *a"))
	f.Add([]byte("install:\n  build: make\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		_ = ValidateDescriptorYAML(data)
	})
}
