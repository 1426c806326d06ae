package main

import (
	"fmt"

	"github.com/open-edge-platform/pkg-installer/internal/config"
	"github.com/open-edge-platform/pkg-installer/internal/installer"
	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/open-edge-platform/pkg-installer/internal/verify"
	"github.com/spf13/cobra"
)

// createFetchCommand creates the fetch subcommand
func createFetchCommand() *cobra.Command {
	var reportDir string

	fetchCmd := &cobra.Command{
		Use:   "fetch [flags] DESCRIPTOR...",
		Short: "Download and verify source archives without building",
		Long: `Fetch downloads the source archives of one or more descriptors into the
cache directory using a pool of workers, then verifies each sha256 digest
(and signature, when the descriptor declares one).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeFetch(cmd, args, reportDir)
		},
		ValidArgsFunction: descriptorCompletion,
	}
	fetchCmd.Flags().StringVar(&reportDir, "report-dir", "",
		"Write the list of downloaded URLs to DIR/report-fetched.txt")
	return fetchCmd
}

func executeFetch(cmd *cobra.Command, refs []string, reportDir string) error {
	log := logger.Logger()

	descriptors := make([]*config.PackageDescriptor, 0, len(refs))
	for _, ref := range refs {
		d, err := config.LoadDescriptor(ref)
		if err != nil {
			return err
		}
		descriptors = append(descriptors, d)
	}

	inst := installer.New(config.Global(), !noProgress)
	paths, err := inst.FetchAll(cmd.Context(), descriptors)
	if err != nil {
		return err
	}
	for _, d := range descriptors {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.Name, paths[d.Name])
	}

	if reportDir != "" && logger.FetchedReport.Len() > 0 {
		path, err := logger.FetchedReport.WriteTo(reportDir)
		if err != nil {
			return err
		}
		log.Infof("fetch report written to %s", path)
	}
	return nil
}

// createVerifyCommand creates the verify subcommand
func createVerifyCommand() *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify [flags] DESCRIPTOR ARCHIVE",
		Short: "Check an archive against a descriptor's sha256 digest",
		Long: `Verify computes the sha256 digest of ARCHIVE and compares it with the
digest the descriptor declares. When the descriptor declares a signature,
pass the detached signature file with --signature to check it as well.`,
		Args:              cobra.ExactArgs(2),
		RunE:              executeVerify,
		ValidArgsFunction: descriptorCompletion,
	}
	verifyCmd.Flags().String("signature", "", "Detached OpenPGP signature of ARCHIVE")
	return verifyCmd
}

func executeVerify(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	d, err := config.LoadDescriptor(args[0])
	if err != nil {
		return err
	}
	archivePath := args[1]

	if err := verify.VerifyChecksum(archivePath, d.SHA256); err != nil {
		return err
	}
	log.Infof("sha256 of %s matches %s", archivePath, d.Name)

	sigPath, _ := cmd.Flags().GetString("signature")
	switch {
	case sigPath != "" && d.Signature == nil:
		return fmt.Errorf("descriptor %s declares no signature key", d.Name)
	case sigPath != "":
		if err := verify.VerifySignature(archivePath, sigPath, d.SignatureKeyPath()); err != nil {
			return err
		}
		log.Infof("signature of %s is valid", archivePath)
	case d.Signature != nil:
		log.Warnf("descriptor %s declares a signature; pass --signature to check it", d.Name)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", archivePath)
	return nil
}
