package system_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-edge-platform/pkg-installer/internal/utils/shell"
	"github.com/open-edge-platform/pkg-installer/internal/utils/system"
)

func TestGetHostOsInfo(t *testing.T) {
	originalExecutor := shell.Default
	originalRelease := system.OsReleaseFile
	defer func() {
		shell.Default = originalExecutor
		system.OsReleaseFile = originalRelease
	}()

	tests := []struct {
		name         string
		mockCommands []shell.MockCommand
		osRelease    string
		expected     map[string]string
		expectError  bool
		errorMsg     string
	}{
		{
			name: "successful_os_release_parsing",
			mockCommands: []shell.MockCommand{
				{Pattern: "uname -m", Output: "x86_64\n"},
			},
			osRelease: `NAME="Ubuntu"
VERSION="22.04.3 LTS (Jammy Jellyfish)"
ID=ubuntu
ID_LIKE=debian
VERSION_ID="22.04"`,
			expected: map[string]string{"name": "Ubuntu", "version": "22.04", "arch": "x86_64"},
		},
		{
			name: "macos_fallback",
			mockCommands: []shell.MockCommand{
				{Pattern: "uname -m", Output: "arm64\n"},
				{Pattern: "uname -s", Output: "Darwin\n"},
				{Pattern: "sw_vers -productVersion", Output: "14.5\n"},
			},
			expected: map[string]string{"name": "macOS", "version": "14.5", "arch": "arm64"},
		},
		{
			name: "uname_failure",
			mockCommands: []shell.MockCommand{
				{Pattern: "uname -m", Error: fmt.Errorf("uname command failed")},
			},
			expected:    map[string]string{"name": "", "version": "", "arch": ""},
			expectError: true,
			errorMsg:    "failed to get host architecture",
		},
		{
			name: "unsupported_kernel",
			mockCommands: []shell.MockCommand{
				{Pattern: "uname -m", Output: "x86_64\n"},
				{Pattern: "uname -s", Output: "FreeBSD\n"},
			},
			expected:    map[string]string{"name": "", "version": "", "arch": "x86_64"},
			expectError: true,
			errorMsg:    "is not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			system.OsReleaseFile = filepath.Join(tempDir, "os-release")
			if tt.osRelease != "" {
				if err := os.WriteFile(system.OsReleaseFile, []byte(tt.osRelease), 0644); err != nil {
					t.Fatalf("write os-release: %v", err)
				}
			}
			shell.Default = shell.NewMockExecutor(tt.mockCommands)

			got, err := system.GetHostOsInfo()
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errorMsg)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q, got %v", tt.errorMsg, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for k, v := range tt.expected {
				if got[k] != v {
					t.Errorf("expected %s=%q, got %q", k, v, got[k])
				}
			}
		})
	}
}

func TestDetectOsDistributionIDLike(t *testing.T) {
	originalExecutor := shell.Default
	originalRelease := system.OsReleaseFile
	defer func() {
		shell.Default = originalExecutor
		system.OsReleaseFile = originalRelease
	}()

	system.OsReleaseFile = filepath.Join(t.TempDir(), "os-release")
	content := "NAME=\"Some Derivative\"\nID=derivative\nID_LIKE=\"rhel fedora\"\nVERSION_ID=9\n"
	if err := os.WriteFile(system.OsReleaseFile, []byte(content), 0644); err != nil {
		t.Fatalf("write os-release: %v", err)
	}
	shell.Default = shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: "uname -m", Output: "aarch64\n"},
	})

	dist, err := system.DetectOsDistribution()
	if err != nil {
		t.Fatalf("DetectOsDistribution failed: %v", err)
	}
	if dist.ID != "derivative" || dist.Arch != "aarch64" {
		t.Errorf("unexpected distribution %+v", dist)
	}
	if len(dist.PackageManagers) == 0 || dist.PackageManagers[0] != "dnf" {
		t.Errorf("expected dnf from ID_LIKE, got %v", dist.PackageManagers)
	}
}

func TestInstallHint(t *testing.T) {
	tests := []struct {
		name    string
		mgrs    []string
		pkg     string
		want    string
		wantErr bool
	}{
		{"brew_go", []string{"brew"}, "go", "brew install go", false},
		{"brew_qemu", []string{"brew"}, "qemu", "brew install qemu", false},
		{"apt_go_alias", []string{"apt", "dpkg"}, "go", "sudo apt-get install -y golang-go", false},
		{"apt_qemu_alias", []string{"apt"}, "qemu", "sudo apt-get install -y qemu-system", false},
		{"dnf_plain", []string{"dnf"}, "make", "sudo dnf install -y make", false},
		{"pacman", []string{"pacman"}, "qemu", "sudo pacman -S --noconfirm qemu-full", false},
		{"apk", []string{"apk"}, "go", "sudo apk add go", false},
		{"none", nil, "go", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := system.InstallHint(&system.OsDistribution{PackageManagers: tt.mgrs}, tt.pkg)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("InstallHint = %q, want %q", got, tt.want)
			}
		})
	}
}
