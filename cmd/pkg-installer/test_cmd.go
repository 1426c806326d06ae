package main

import (
	"github.com/open-edge-platform/pkg-installer/internal/config"
	"github.com/open-edge-platform/pkg-installer/internal/installer"
	"github.com/spf13/cobra"
)

// createTestCommand creates the test subcommand
func createTestCommand() *cobra.Command {
	testCmd := &cobra.Command{
		Use:   "test [flags] DESCRIPTOR",
		Short: "Run the post-install tests of an installed package",
		Long: `Test runs the descriptor's test steps against the installed package.
The package must have been installed under the prefix first. Tests that
are disabled in the descriptor are skipped unless --force is given.`,
		Args:              cobra.ExactArgs(1),
		RunE:              executeTest,
		ValidArgsFunction: descriptorCompletion,
	}
	testCmd.Flags().Bool("force", false, "Run the test steps even when the descriptor disables them")
	return testCmd
}

func executeTest(cmd *cobra.Command, args []string) error {
	d, err := config.LoadDescriptor(args[0])
	if err != nil {
		return err
	}
	if force, _ := cmd.Flags().GetBool("force"); force && len(d.Test.Steps) > 0 {
		d.Test.Enabled = true
	}

	inst := installer.New(config.Global(), false)
	report, err := inst.Test(cmd.Context(), d)
	if err != nil {
		return err
	}
	printTestReport(cmd.OutOrStdout(), report)
	return report.Err()
}
