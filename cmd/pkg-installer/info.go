package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/open-edge-platform/pkg-installer/internal/config"
	"github.com/open-edge-platform/pkg-installer/internal/config/manifest"
	"github.com/open-edge-platform/pkg-installer/internal/installer"
	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Output format command flags
var (
	infoFormat   string
	infoBuiltins bool
)

type packageInfo struct {
	Name         string                   `json:"name"`
	Version      string                   `json:"version"`
	Desc         string                   `json:"desc,omitempty"`
	Homepage     string                   `json:"homepage,omitempty"`
	License      string                   `json:"license,omitempty"`
	URL          string                   `json:"url"`
	SHA256       string                   `json:"sha256"`
	Build        []string                 `json:"build"`
	Dependencies []config.Dependency      `json:"dependencies,omitempty"`
	TestsEnabled bool                     `json:"tests_enabled"`
	Installed    *manifest.InstallReceipt `json:"installed,omitempty"`
}

// createInfoCommand creates the info subcommand
func createInfoCommand() *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info [flags] [DESCRIPTOR]",
		Short: "Show a package descriptor and its install state",
		Args: func(cmd *cobra.Command, args []string) error {
			if infoBuiltins {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE:              executeInfo,
		ValidArgsFunction: descriptorCompletion,
	}

	infoCmd.Flags().StringVar(&infoFormat, "format", "text", "Output format: text or json")
	infoCmd.Flags().BoolVar(&infoBuiltins, "builtins", false, "List the builtin descriptors")
	return infoCmd
}

func executeInfo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if infoBuiltins {
		for _, name := range config.BuiltinNames() {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	d, err := config.LoadDescriptor(args[0])
	if err != nil {
		return err
	}
	info := packageInfo{
		Name:         d.Name,
		Version:      d.GetVersion(),
		Desc:         d.Desc,
		Homepage:     d.Homepage,
		License:      d.License,
		URL:          d.URL,
		SHA256:       d.SHA256,
		Build:        d.Install.Build,
		Dependencies: d.Dependencies,
		TestsEnabled: d.Test.Enabled,
	}

	inst := installer.New(config.Global(), false)
	if layout, err := inst.Layout(); err == nil {
		r, err := manifest.ReadReceipt(layout.Prefix, d.Name)
		switch {
		case err == nil:
			info.Installed = &r
		case !errors.Is(err, manifest.ErrNotInstalled):
			logger.Logger().Warnf("reading receipt of %s: %v", d.Name, err)
		}
	}

	switch strings.ToLower(infoFormat) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "text":
		return renderInfoText(out, info)
	default:
		return fmt.Errorf("invalid --format %q (expected text|json)", infoFormat)
	}
}

func renderInfoText(w io.Writer, info packageInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "name:\t%s %s\n", info.Name, info.Version)
	if info.Desc != "" {
		fmt.Fprintf(tw, "desc:\t%s\n", info.Desc)
	}
	if info.Homepage != "" {
		fmt.Fprintf(tw, "homepage:\t%s\n", info.Homepage)
	}
	if info.License != "" {
		fmt.Fprintf(tw, "license:\t%s\n", info.License)
	}
	fmt.Fprintf(tw, "url:\t%s\n", info.URL)
	fmt.Fprintf(tw, "sha256:\t%s\n", info.SHA256)
	fmt.Fprintf(tw, "build:\t%s\n", strings.Join(info.Build, " "))
	for _, dep := range info.Dependencies {
		fmt.Fprintf(tw, "depends on:\t%s (%s)\n", dep.Name, dep.Type)
	}
	fmt.Fprintf(tw, "tests:\t%v\n", map[bool]string{true: "enabled", false: "disabled"}[info.TestsEnabled])
	if info.Installed != nil {
		fmt.Fprintf(tw, "installed:\t%s in %s (%d files, %s)\n",
			info.Installed.Version, info.Installed.Prefix, len(info.Installed.Files), info.Installed.InstalledAt)
	} else {
		fmt.Fprintf(tw, "installed:\tno\n")
	}
	return tw.Flush()
}

// createListCommand creates the list subcommand
func createListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List packages installed under the prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst := installer.New(config.Global(), false)
			receipts, err := inst.Installed()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(receipts) == 0 {
				fmt.Fprintln(out, "no packages installed")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tFILES\tINSTALLED")
			for _, r := range receipts {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Name, r.Version, len(r.Files), r.InstalledAt)
			}
			return tw.Flush()
		},
	}
}

// createUninstallCommand creates the uninstall subcommand
func createUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall NAME",
		Short: "Remove an installed package",
		Long: `Uninstall removes every file recorded in the package's install receipt,
prunes directories left empty and deletes the receipt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst := installer.New(config.Global(), false)
			r, err := inst.Uninstall(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uninstalled %s %s (%d files)\n", r.Name, r.Version, len(r.Files))
			return nil
		},
	}
}
