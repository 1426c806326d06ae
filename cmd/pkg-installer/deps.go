package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/open-edge-platform/pkg-installer/internal/config"
	"github.com/open-edge-platform/pkg-installer/internal/deps"
	"github.com/spf13/cobra"
)

// createDepsCommand creates the deps subcommand
func createDepsCommand() *cobra.Command {
	depsCmd := &cobra.Command{
		Use:   "deps [flags] DESCRIPTOR",
		Short: "Show whether a package's dependencies are present on this host",
		Long: `Deps probes every build and runtime dependency the descriptor declares
and prints where it was found, or how to install it with the host's
package manager. Missing build dependencies make the command fail.`,
		Args:              cobra.ExactArgs(1),
		RunE:              executeDeps,
		ValidArgsFunction: descriptorCompletion,
	}
	return depsCmd
}

func executeDeps(cmd *cobra.Command, args []string) error {
	d, err := config.LoadDescriptor(args[0])
	if err != nil {
		return err
	}

	report := deps.Check(d)
	if len(report.Statuses) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s declares no dependencies\n", d.Name)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tSTATUS\tDETAIL")
	for _, s := range report.Statuses {
		status, detail := "found", s.Path
		if !s.Found {
			status, detail = "missing", s.Hint
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Dependency.Name, s.Dependency.Type, status, detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if missing := report.MissingBuild(); len(missing) > 0 {
		return &deps.MissingBuildError{Missing: missing}
	}
	return nil
}
