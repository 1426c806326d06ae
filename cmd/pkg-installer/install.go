package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/pkg-installer/internal/config"
	"github.com/open-edge-platform/pkg-installer/internal/formulatest"
	"github.com/open-edge-platform/pkg-installer/internal/installer"
	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addInstallFlags registers the per-install options on fs.
func addInstallFlags(fs *pflag.FlagSet, opts *installer.Options) {
	fs.BoolVar(&opts.SkipTests, "skip-tests", false, "Do not run the post-install tests")
	fs.BoolVar(&opts.Force, "force", false, "Reinstall even when the package is already installed")
	fs.BoolVar(&opts.KeepWorkDir, "keep-work-dir", false, "Keep the extracted source tree after the install")
}

// createInstallCommand creates the install subcommand
func createInstallCommand() *cobra.Command {
	var opts installer.Options

	installCmd := &cobra.Command{
		Use:   "install [flags] DESCRIPTOR",
		Short: "Fetch, verify, build and install a package",
		Long: `Install runs the whole sequence for one package: check build
dependencies, fetch the source archive, verify its sha256 digest, build it
and copy the build output under the install prefix. Enabled post-install
tests run last; a failing test is reported but the install is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeInstall(cmd, args[0], opts)
		},
		ValidArgsFunction: descriptorCompletion,
	}
	addInstallFlags(installCmd.Flags(), &opts)
	return installCmd
}

func executeInstall(cmd *cobra.Command, ref string, opts installer.Options) error {
	log := logger.Logger()

	d, err := config.LoadDescriptor(ref)
	if err != nil {
		return err
	}

	inst := installer.New(config.Global(), !noProgress)
	res, err := inst.Install(cmd.Context(), d, opts)
	if err != nil {
		if res != nil && opts.KeepWorkDir && res.SourceDir != "" {
			log.Infof("source tree kept at %s", res.SourceDir)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s installed into %s (%d files)\n", res.Package, res.Version, res.Receipt.Prefix, len(res.Files))
	if !res.Test.Skipped {
		printTestReport(out, res.Test)
	}
	return res.Test.Err()
}

func printTestReport(w io.Writer, report formulatest.Report) {
	if report.Skipped {
		fmt.Fprintf(w, "tests for %s: skipped\n", report.Package)
		return
	}
	for _, s := range report.Steps {
		status := "ok"
		if !s.Passed {
			status = fmt.Sprintf("FAIL: %v", s.Err)
		}
		fmt.Fprintf(w, "test %s: %s\n", s.Command, status)
	}
}

// descriptorCompletion suggests builtin descriptor names and YAML files
func descriptorCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 && cmd.Name() != "fetch" {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var suggestions []string
	for _, name := range config.BuiltinNames() {
		if strings.HasPrefix(name, toComplete) {
			suggestions = append(suggestions, name)
		}
	}

	dir := filepath.Dir(toComplete)
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			ext := filepath.Ext(e.Name())
			if e.IsDir() || (ext != ".yml" && ext != ".yaml") {
				continue
			}
			candidate := filepath.Join(dir, e.Name())
			if dir == "." && !strings.HasPrefix(toComplete, "./") {
				candidate = e.Name()
			}
			if strings.HasPrefix(candidate, toComplete) {
				suggestions = append(suggestions, candidate)
			}
		}
	}
	return suggestions, cobra.ShellCompDirectiveNoFileComp
}
