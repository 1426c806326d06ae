package system

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/open-edge-platform/pkg-installer/internal/utils/shell"
)

var (
	OsReleaseFile = "/etc/os-release"
)

// OsDistribution contains information about the host OS distribution
type OsDistribution struct {
	Name            string   // Distribution name (e.g., "Ubuntu", "macOS")
	Version         string   // Version (e.g., "22.04", "14.5")
	ID              string   // Distribution ID (e.g., "ubuntu", "darwin")
	IDLike          []string // Related distributions (e.g., ["debian"])
	Arch            string   // Machine architecture from uname -m
	PackageManagers []string // Package managers (e.g., ["apt", "dpkg"], ["brew"])
}

// GetHostOsInfo returns name, version and arch of the host.
func GetHostOsInfo() (map[string]string, error) {
	log := logger.Logger()
	var hostOsInfo = map[string]string{
		"name":    "",
		"version": "",
		"arch":    "",
	}

	output, err := shell.Default.ExecCmd("uname -m", "", nil)
	if err != nil {
		log.Errorf("Failed to get host architecture: %v", err)
		return hostOsInfo, fmt.Errorf("failed to get host architecture: %w", err)
	}
	hostOsInfo["arch"] = strings.TrimSpace(output)

	dist, err := DetectOsDistribution()
	if err != nil {
		return hostOsInfo, err
	}
	hostOsInfo["name"] = dist.Name
	hostOsInfo["version"] = dist.Version

	log.Debugf("Detected OS info: %s %s %s", hostOsInfo["name"], hostOsInfo["version"], hostOsInfo["arch"])
	return hostOsInfo, nil
}

// DetectOsDistribution detects the host distribution from /etc/os-release,
// falling back to uname and sw_vers on macOS.
func DetectOsDistribution() (*OsDistribution, error) {
	osInfo := &OsDistribution{}

	if arch, err := shell.Default.ExecCmdSilent("uname -m", "", nil); err == nil {
		osInfo.Arch = strings.TrimSpace(arch)
	}

	if _, err := os.Stat(OsReleaseFile); err == nil {
		if err := parseOsRelease(OsReleaseFile, osInfo); err != nil {
			return nil, err
		}
	} else {
		kernel, err := shell.Default.ExecCmdSilent("uname -s", "", nil)
		if err != nil {
			return nil, fmt.Errorf("failed to detect host OS: %w", err)
		}
		if strings.TrimSpace(kernel) != "Darwin" {
			return nil, fmt.Errorf("file %s not found and host kernel %q is not supported", OsReleaseFile, strings.TrimSpace(kernel))
		}
		osInfo.Name = "macOS"
		osInfo.ID = "darwin"
		if version, err := shell.Default.ExecCmdSilent("sw_vers -productVersion", "", nil); err == nil {
			osInfo.Version = strings.TrimSpace(version)
		}
	}

	osInfo.PackageManagers = detectPackageManagers(osInfo.ID, osInfo.IDLike)
	if len(osInfo.PackageManagers) == 0 {
		logger.Logger().Warnf("Could not determine package manager for distribution: %s (ID: %s)", osInfo.Name, osInfo.ID)
	}
	return osInfo, nil
}

func parseOsRelease(path string, osInfo *OsDistribution) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"")

		switch key {
		case "NAME":
			osInfo.Name = value
		case "VERSION_ID":
			osInfo.Version = value
		case "ID":
			osInfo.ID = strings.ToLower(value)
		case "ID_LIKE":
			osInfo.IDLike = strings.Fields(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	return nil
}

// detectPackageManagers determines the package managers based on distribution ID
func detectPackageManagers(id string, idLike []string) []string {
	if mgrs := packageManagersForID(id); len(mgrs) > 0 {
		return mgrs
	}
	for _, likeID := range idLike {
		if mgrs := packageManagersForID(likeID); len(mgrs) > 0 {
			return mgrs
		}
	}
	return detectFromCommands()
}

func packageManagersForID(id string) []string {
	switch strings.ToLower(id) {
	case "darwin":
		return []string{"brew"}
	case "ubuntu", "debian", "linuxmint", "pop", "elementary", "kali", "raspbian":
		return []string{"apt", "dpkg"}
	case "fedora", "rhel", "centos", "rocky", "almalinux":
		return []string{"dnf", "yum", "rpm"}
	case "opensuse", "opensuse-leap", "opensuse-tumbleweed", "sles":
		return []string{"zypper", "rpm"}
	case "arch", "manjaro", "endeavouros":
		return []string{"pacman"}
	case "alpine":
		return []string{"apk"}
	case "mariner", "azurelinux":
		return []string{"tdnf", "rpm"}
	default:
		return nil
	}
}

// detectFromCommands checks for package manager commands; order matters for precedence
func detectFromCommands() []string {
	for _, mgr := range []string{"brew", "apt", "dnf", "tdnf", "yum", "zypper", "pacman", "apk"} {
		exists, err := shell.IsCommandExist(mgr)
		if err == nil && exists {
			return []string{mgr}
		}
	}
	return nil
}

// packageAliases maps a dependency name to the package name used by a given
// package manager when the two differ.
var packageAliases = map[string]map[string]string{
	"go": {
		"apt":    "golang-go",
		"dnf":    "golang",
		"yum":    "golang",
		"tdnf":   "golang",
		"zypper": "go",
	},
	"qemu": {
		"apt":    "qemu-system",
		"dnf":    "qemu-kvm",
		"yum":    "qemu-kvm",
		"pacman": "qemu-full",
	},
}

// InstallHint returns the command a user would run to install pkgName with
// the host package manager.
func InstallHint(dist *OsDistribution, pkgName string) (string, error) {
	if dist == nil || len(dist.PackageManagers) == 0 {
		return "", fmt.Errorf("no package manager detected for host")
	}
	mgr := dist.PackageManagers[0]
	name := pkgName
	if alias, ok := packageAliases[pkgName][mgr]; ok {
		name = alias
	}

	switch mgr {
	case "brew":
		return "brew install " + name, nil
	case "apt":
		return "sudo apt-get install -y " + name, nil
	case "dnf", "yum", "tdnf", "zypper":
		return "sudo " + mgr + " install -y " + name, nil
	case "pacman":
		return "sudo pacman -S --noconfirm " + name, nil
	case "apk":
		return "sudo apk add " + name, nil
	default:
		return "", fmt.Errorf("unsupported package manager: %s", mgr)
	}
}
