package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/open-edge-platform/pkg-installer/internal/archive"
	"github.com/open-edge-platform/pkg-installer/internal/config/validate"
)

//go:embed builtin/*.yml
var builtinFS embed.FS

// Dependency types. DependencyBoth is needed while building and by the
// installed package.
const (
	DependencyBuild   = "build"
	DependencyRuntime = "runtime"
	DependencyBoth    = "both"
)

// Install directory names accepted by InstallStep.To
const (
	DirBin     = "bin"
	DirShare   = "share"
	DirLib     = "lib"
	DirLibexec = "libexec"
	DirEtc     = "etc"
	DirPrefix  = "prefix"
)

// PackageDescriptor describes how to fetch, verify, build and install one
// package from a source archive.
type PackageDescriptor struct {
	Name         string           `yaml:"name"`
	Desc         string           `yaml:"desc,omitempty"`
	Homepage     string           `yaml:"homepage,omitempty"`
	Version      string           `yaml:"version,omitempty"`
	URL          string           `yaml:"url"`
	SHA256       string           `yaml:"sha256"`
	Signature    *SignatureConfig `yaml:"signature,omitempty"`
	License      string           `yaml:"license,omitempty"`
	Dependencies []Dependency     `yaml:"dependencies,omitempty"`
	Install      InstallConfig    `yaml:"install"`
	Test         TestConfig       `yaml:"test,omitempty"`

	// source is the file the descriptor was read from, empty for builtins
	source string
}

// SignatureConfig points at a detached OpenPGP signature and the public key
// that must have produced it. Relative key paths resolve against the
// descriptor file.
type SignatureConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// Dependency is a named external tool. Command is the executable probed on
// the host and defaults to Name.
type Dependency struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	Command string `yaml:"command,omitempty" json:"command,omitempty"`
}

// InstallConfig holds the build command and the copy steps run after it.
type InstallConfig struct {
	Build []string      `yaml:"build"`
	Env   []string      `yaml:"env,omitempty"`
	Steps []InstallStep `yaml:"steps"`
}

// InstallStep copies everything matching From (a glob relative to the
// source root) into the install directory named by To.
type InstallStep struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// TestConfig holds optional smoke tests run after install.
type TestConfig struct {
	Enabled bool       `yaml:"enabled"`
	Steps   []TestStep `yaml:"steps,omitempty"`
}

// TestStep runs a command and expects Expect to appear in its output.
type TestStep struct {
	Run    string `yaml:"run"`
	Expect string `yaml:"expect,omitempty"`
}

// BuiltinNames lists the descriptors shipped with the binary.
func BuiltinNames() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yml"))
	}
	sort.Strings(names)
	return names
}

// LoadDescriptor loads a descriptor from a YAML file, or from the builtin
// set when ref is not an existing path but names a builtin.
func LoadDescriptor(ref string) (*PackageDescriptor, error) {
	if _, err := os.Stat(ref); err == nil {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("reading descriptor %s: %w", ref, err)
		}
		d, err := ParseDescriptor(data)
		if err != nil {
			return nil, fmt.Errorf("descriptor %s: %w", ref, err)
		}
		abs, err := filepath.Abs(ref)
		if err != nil {
			return nil, fmt.Errorf("resolving descriptor path: %w", err)
		}
		d.source = abs
		return d, nil
	}

	data, err := builtinFS.ReadFile(path.Join("builtin", ref+".yml"))
	if err != nil {
		return nil, fmt.Errorf("descriptor %q is neither a file nor a builtin (builtins: %s)",
			ref, strings.Join(BuiltinNames(), ", "))
	}
	d, err := ParseDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("builtin descriptor %s: %w", ref, err)
	}
	return d, nil
}

// ParseDescriptor validates YAML data against the descriptor schema and
// decodes it.
func ParseDescriptor(data []byte) (*PackageDescriptor, error) {
	if err := validate.ValidateDescriptorYAML(data); err != nil {
		return nil, err
	}

	var d PackageDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing descriptor: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks the constraints the schema cannot express.
func (d *PackageDescriptor) Validate() error {
	if format, _ := archive.DetectFormat(d.urlPath()); format == archive.FormatUnknown {
		return fmt.Errorf("url %s does not name a supported archive", d.URL)
	}
	seen := make(map[string]bool)
	for _, dep := range d.Dependencies {
		key := dep.Type + "/" + dep.Name
		if seen[key] {
			return fmt.Errorf("duplicate %s dependency %q", dep.Type, dep.Name)
		}
		seen[key] = true
	}
	for _, step := range d.Install.Steps {
		if filepath.IsAbs(step.From) || strings.HasPrefix(path.Clean(filepath.ToSlash(step.From)), "../") {
			return fmt.Errorf("install step %q must stay inside the source tree", step.From)
		}
	}
	if d.Test.Enabled && len(d.Test.Steps) == 0 {
		return fmt.Errorf("test is enabled but has no steps")
	}
	return nil
}

// Source returns the file the descriptor was loaded from, empty for builtins.
func (d *PackageDescriptor) Source() string {
	return d.source
}

func (d *PackageDescriptor) urlPath() string {
	if u, err := url.Parse(d.URL); err == nil && u.Path != "" {
		return u.Path
	}
	return d.URL
}

// GetVersion returns the declared version, or one derived from the archive
// name: "v.01.tar.gz" gives "01", "macpine-1.2.0.tar.gz" gives "1.2.0".
func (d *PackageDescriptor) GetVersion() string {
	if d.Version != "" {
		return d.Version
	}
	base := path.Base(d.urlPath())
	if _, ext := archive.DetectFormat(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.TrimPrefix(base, d.Name+"-")
	if len(base) > 1 && (base[0] == 'v' || base[0] == 'V') {
		rest := strings.TrimPrefix(base[1:], ".")
		if rest != "" && rest[0] >= '0' && rest[0] <= '9' {
			base = rest
		}
	}
	return base
}

// ArchiveName is the cache file name for the source archive.
func (d *PackageDescriptor) ArchiveName() string {
	_, ext := archive.DetectFormat(d.urlPath())
	version := d.GetVersion()
	if version == "" {
		return d.Name + strings.ToLower(ext)
	}
	return d.Name + "-" + version + strings.ToLower(ext)
}

// BuildDeps returns the dependencies needed while building.
func (d *PackageDescriptor) BuildDeps() []Dependency {
	return d.depsOfType(DependencyBuild)
}

// RuntimeDeps returns the dependencies needed by the installed package.
func (d *PackageDescriptor) RuntimeDeps() []Dependency {
	return d.depsOfType(DependencyRuntime)
}

func (d *PackageDescriptor) depsOfType(t string) []Dependency {
	var out []Dependency
	for _, dep := range d.Dependencies {
		if dep.NeededAt(t) {
			out = append(out, dep)
		}
	}
	return out
}

// NeededAt reports whether dep is required at phase t (DependencyBuild or
// DependencyRuntime).
func (dep Dependency) NeededAt(t string) bool {
	return dep.Type == t || dep.Type == DependencyBoth
}

// ProbeCommand returns the executable checked on the host for dep.
func (dep Dependency) ProbeCommand() string {
	if dep.Command != "" {
		return dep.Command
	}
	return dep.Name
}

// SignatureKeyPath resolves the signature key path against the descriptor
// location.
func (d *PackageDescriptor) SignatureKeyPath() string {
	if d.Signature == nil {
		return ""
	}
	key := d.Signature.Key
	if filepath.IsAbs(key) || d.source == "" {
		return key
	}
	return filepath.Join(filepath.Dir(d.source), key)
}
