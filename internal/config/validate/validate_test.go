package validate

import (
	"strings"
	"testing"
)

const validDescriptor = `name: macpine
desc: Lightweight Alpine Virtual Machines on MacOS
url: https://github.com/beringresearch/macpine/archive/refs/tags/v.01.tar.gz
sha256: 44454f832d28e91f4bc88bd55d5277ddfe046c54e0d2e68231689a960b7efe8e
license: Apache-2.0
dependencies:
  - name: go
    type: build
  - name: qemu
    type: runtime
    command: qemu-img
install:
  build: ["make", "all"]
  steps:
    - from: _output/bin/*
      to: bin
    - from: _output/share/*
      to: share
test:
  enabled: false
  steps:
    - run: "{bin}/alpine list"
      expect: NAME STATUS SSH PORTS ARCH PID
`

func TestValidateDescriptorYAML(t *testing.T) {
	if err := ValidateDescriptorYAML([]byte(validDescriptor)); err != nil {
		t.Fatalf("expected valid descriptor, got: %v", err)
	}
}

func TestValidateDescriptorYAMLRejects(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
	}{
		{"short_checksum", [2]string{"sha256: 44454f832d28e91f4bc88bd55d5277ddfe046c54e0d2e68231689a960b7efe8e", "sha256: 4445"}},
		{"bad_scheme", [2]string{"url: https://", "url: ftp://"}},
		{"bad_name", [2]string{"name: macpine", "name: Mac Pine"}},
		{"unknown_install_dir", [2]string{"to: share", "to: opt"}},
		{"unknown_dep_type", [2]string{"type: runtime", "type: optional"}},
		{"unknown_field", [2]string{"license: Apache-2.0", "license: Apache-2.0\nbottle: yes"}},
		{"empty_build", [2]string{`build: ["make", "all"]`, "build: []"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(validDescriptor, tt.replace[0], tt.replace[1], 1)
			if doc == validDescriptor {
				t.Fatalf("replacement %q did not apply", tt.replace[0])
			}
			if err := ValidateDescriptorYAML([]byte(doc)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidateAgainstSubSchema(t *testing.T) {
	err := ValidateAgainstSchema(descriptorSchemaName, DescriptorSchema(),
		[]byte(`{"from": "_output/bin/*", "to": "bin"}`), "#/definitions/step")
	if err != nil {
		t.Fatalf("expected valid step, got: %v", err)
	}
	err = ValidateAgainstSchema(descriptorSchemaName, DescriptorSchema(),
		[]byte(`{"from": "_output/bin/*"}`), "#/definitions/step")
	if err == nil {
		t.Error("expected missing 'to' to fail validation")
	}
}

func TestValidateAgainstSchemaInvalidJSON(t *testing.T) {
	if err := ValidateDescriptorJSON([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
