package deps

import (
	"fmt"
	"strings"

	"github.com/open-edge-platform/pkg-installer/internal/config"
	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/open-edge-platform/pkg-installer/internal/utils/shell"
	"github.com/open-edge-platform/pkg-installer/internal/utils/system"
)

// Status is the host state of one dependency.
type Status struct {
	Dependency config.Dependency
	Found      bool
	Path       string
	Hint       string
}

// Report lists the status of every declared dependency.
type Report struct {
	Statuses []Status
}

// MissingBuild returns the build dependencies not found on the host.
func (r Report) MissingBuild() []Status {
	return r.missing(config.DependencyBuild)
}

// MissingRuntime returns the runtime dependencies not found on the host.
func (r Report) MissingRuntime() []Status {
	return r.missing(config.DependencyRuntime)
}

func (r Report) missing(t string) []Status {
	var out []Status
	for _, s := range r.Statuses {
		if !s.Found && s.Dependency.NeededAt(t) {
			out = append(out, s)
		}
	}
	return out
}

// MissingBuildError is returned when build dependencies are absent.
type MissingBuildError struct {
	Missing []Status
}

func (e *MissingBuildError) Error() string {
	var parts []string
	for _, s := range e.Missing {
		msg := fmt.Sprintf("%s (command %q)", s.Dependency.Name, s.Dependency.ProbeCommand())
		if s.Hint != "" {
			msg += ": try `" + s.Hint + "`"
		}
		parts = append(parts, msg)
	}
	return "missing build dependencies: " + strings.Join(parts, "; ")
}

// Check probes every dependency of d on the host.
func Check(d *config.PackageDescriptor) Report {
	log := logger.Logger()

	var report Report
	var dist *system.OsDistribution
	for _, dep := range d.Dependencies {
		s := Status{Dependency: dep}
		cmd := dep.ProbeCommand()

		out, err := shell.Default.ExecCmdSilent("command -v "+shell.Quote(cmd), "", nil)
		if p := strings.TrimSpace(out); err == nil && p != "" {
			s.Found = true
			s.Path = p
			log.Debugf("%s dependency %s found at %s", dep.Type, dep.Name, p)
		} else {
			if dist == nil {
				if detected, derr := system.DetectOsDistribution(); derr == nil {
					dist = detected
				} else {
					log.Debugf("host detection failed: %v", derr)
					dist = &system.OsDistribution{}
				}
			}
			if hint, herr := system.InstallHint(dist, dep.Name); herr == nil {
				s.Hint = hint
			}
		}
		report.Statuses = append(report.Statuses, s)
	}
	return report
}

// Ensure checks d and fails when a build dependency is missing. Missing
// runtime-only dependencies are only logged.
func Ensure(d *config.PackageDescriptor) (Report, error) {
	log := logger.Logger()

	report := Check(d)
	if missing := report.MissingBuild(); len(missing) > 0 {
		return report, &MissingBuildError{Missing: missing}
	}
	for _, s := range report.MissingRuntime() {
		if s.Hint != "" {
			log.Warnf("runtime dependency %s is not installed; install it with `%s`", s.Dependency.Name, s.Hint)
		} else {
			log.Warnf("runtime dependency %s is not installed", s.Dependency.Name)
		}
	}
	return report, nil
}
