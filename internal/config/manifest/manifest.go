package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReceiptSchemaVersion is written into every receipt.
const ReceiptSchemaVersion = "1.0"

// InstallReceipt records what one install placed under the prefix.
type InstallReceipt struct {
	SchemaVersion       string   `json:"schema_version"`
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Version             string   `json:"version"`
	URL                 string   `json:"url"`
	SHA256              string   `json:"sha256"`
	License             string   `json:"license,omitempty"`
	InstalledAt         string   `json:"installed_at"`
	Prefix              string   `json:"prefix"`
	Files               []string `json:"files"`
	RuntimeDependencies []string `json:"runtime_dependencies,omitempty"`
}

// ErrNotInstalled is returned when no receipt exists for a package.
var ErrNotInstalled = errors.New("package is not installed")

// ErrInvalidName is returned for package names that cannot name a receipt.
var ErrInvalidName = errors.New("invalid package name")

// packageNamePattern matches the descriptor name rule.
var packageNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]*$`)

// NewReceipt returns a receipt with a fresh id and timestamp. files are
// paths relative to prefix.
func NewReceipt(name, version, url, sha256, prefix string, files []string) InstallReceipt {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	return InstallReceipt{
		SchemaVersion: ReceiptSchemaVersion,
		ID:            uuid.New().String(),
		Name:          name,
		Version:       version,
		URL:           url,
		SHA256:        strings.ToLower(sha256),
		InstalledAt:   time.Now().UTC().Format(time.RFC3339),
		Prefix:        prefix,
		Files:         sorted,
	}
}

// ReceiptDir returns the directory holding receipts for prefix.
func ReceiptDir(prefix string) string {
	return filepath.Join(prefix, "var", "pkg-installer", "receipts")
}

func receiptPath(prefix, name string) (string, error) {
	if !packageNamePattern.MatchString(name) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return filepath.Join(ReceiptDir(prefix), name+".json"), nil
}

// WriteManifestToFile writes a receipt as indented JSON.
func WriteManifestToFile(r InstallReceipt, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating receipt directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding receipt: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing receipt: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing receipt: %w", err)
	}
	return nil
}

// ReadManifestFromFile reads one receipt.
func ReadManifestFromFile(path string) (InstallReceipt, error) {
	var r InstallReceipt
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("decoding receipt %s: %w", path, err)
	}
	if r.Name == "" {
		return r, fmt.Errorf("receipt %s has no package name", path)
	}
	return r, nil
}

// WriteReceipt stores r under its prefix and returns the file path.
func WriteReceipt(r InstallReceipt) (string, error) {
	if r.Prefix == "" || r.Name == "" {
		return "", fmt.Errorf("receipt needs a name and a prefix")
	}
	path, err := receiptPath(r.Prefix, r.Name)
	if err != nil {
		return "", err
	}
	return path, WriteManifestToFile(r, path)
}

// ReadReceipt loads the receipt of name under prefix.
func ReadReceipt(prefix, name string) (InstallReceipt, error) {
	path, err := receiptPath(prefix, name)
	if err != nil {
		return InstallReceipt{}, err
	}
	r, err := ReadManifestFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	return r, err
}

// ListReceipts returns every receipt under prefix sorted by name.
func ListReceipts(prefix string) ([]InstallReceipt, error) {
	paths, err := filepath.Glob(filepath.Join(ReceiptDir(prefix), "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	var out []InstallReceipt
	for _, p := range paths {
		r, err := ReadManifestFromFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RemoveReceipt deletes the receipt of name under prefix.
func RemoveReceipt(prefix, name string) error {
	path, err := receiptPath(prefix, name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	return err
}
