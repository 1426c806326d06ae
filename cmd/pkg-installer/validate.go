package main

import (
	"fmt"

	"github.com/open-edge-platform/pkg-installer/internal/config"
	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/spf13/cobra"
)

// createValidateCommand creates the validate subcommand
func createValidateCommand() *cobra.Command {
	validateCmd := &cobra.Command{
		Use:   "validate [flags] DESCRIPTOR",
		Short: "Validate a package descriptor",
		Long: `Validate a package descriptor against the schema without fetching or
building anything. The descriptor must be a YAML file following the
descriptor schema, or the name of a builtin descriptor.`,
		Args:              cobra.ExactArgs(1),
		RunE:              executeValidate,
		ValidArgsFunction: descriptorCompletion,
	}

	return validateCmd
}

// executeValidate handles the validate command logic
func executeValidate(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	ref := args[0]

	log.Infof("validating descriptor: %s", ref)

	d, err := config.LoadDescriptor(ref)
	if err != nil {
		return fmt.Errorf("descriptor validation failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid\n", ref)
	log.Infof("Package: %s %s", d.Name, d.GetVersion())
	log.Infof("Source: %s", d.URL)

	if verbose {
		log.Infof("Build: %v", d.Install.Build)
		for _, step := range d.Install.Steps {
			log.Infof("  install %s -> %s", step.From, step.To)
		}
		for _, dep := range d.Dependencies {
			log.Infof("  %s dependency: %s", dep.Type, dep.Name)
		}
		log.Infof("Tests enabled: %v", d.Test.Enabled)
	}

	return nil
}
