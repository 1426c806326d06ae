package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-edge-platform/pkg-installer/internal/builder"
	"github.com/open-edge-platform/pkg-installer/internal/config"
	"github.com/open-edge-platform/pkg-installer/internal/formulatest"
	"github.com/open-edge-platform/pkg-installer/internal/install"
	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/open-edge-platform/pkg-installer/internal/verify"
	"github.com/spf13/cobra"
)

// Global flags shared by every subcommand
var (
	configFile     string
	logLevel       string
	verbose        bool
	prefixOverride string
	noProgress     bool
)

// Process exit codes
const (
	exitOK        = 0
	exitGeneric   = 1
	exitIntegrity = 2
	exitBuild     = 3
	exitCopy      = 4
	exitTest      = 5
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd := createRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var buildErr *builder.BuildError
		// build output is streamed at info level; repeat it when that was hidden
		if errors.As(err, &buildErr) && buildErr.Output != "" && !infoEnabled() {
			fmt.Fprintf(os.Stderr, "\n%s", buildErr.Output)
		}
	}
	os.Exit(exitCode(err))
}

// createRootCommand builds the command tree with its global flags
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pkg-installer",
		Short: "Build and install packages from source descriptors",
		Long: `pkg-installer fetches a package's source archive, verifies its sha256
digest, builds it with the command the descriptor declares and copies the
build output under an install prefix.

A descriptor is a YAML file or the name of a builtin descriptor (see
"pkg-installer info --builtins").`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Global configuration file (default: ./"+config.ConfigFileName+" or ~/.config/pkg-installer/"+config.ConfigFileName+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides the config file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging (ignored when --log-level is set)")
	rootCmd.PersistentFlags().StringVar(&prefixOverride, "prefix", "",
		"Install prefix (overrides the config file)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false,
		"Disable download progress bars")

	rootCmd.AddCommand(createInstallCommand())
	rootCmd.AddCommand(createFetchCommand())
	rootCmd.AddCommand(createVerifyCommand())
	rootCmd.AddCommand(createTestCommand())
	rootCmd.AddCommand(createDepsCommand())
	rootCmd.AddCommand(createValidateCommand())
	rootCmd.AddCommand(createInfoCommand())
	rootCmd.AddCommand(createListCommand())
	rootCmd.AddCommand(createUninstallCommand())
	rootCmd.AddCommand(createVersionCommand())

	attachLoggingHooks(rootCmd)
	return rootCmd
}

// attachLoggingHooks sets up configuration and logging before every
// subcommand runs.
func attachLoggingHooks(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
			return initGlobals(cmd)
		}
	}
}

func initGlobals(cmd *cobra.Command) error {
	path, err := config.FindConfigFile(configFile)
	if err != nil {
		return err
	}
	cfg, err := config.LoadGlobalConfig(path)
	if err != nil {
		return err
	}
	if prefixOverride != "" {
		cfg.Prefix = prefixOverride
	}
	config.SetGlobal(cfg)

	level := resolveRequestedLogLevel(cmd)
	if level == "" {
		level = cfg.Logging.Level
	}
	if err := logger.Init(level); err != nil {
		return err
	}
	if path != "" {
		logger.Logger().Debugf("using config file %s", path)
	}
	return nil
}

// resolveRequestedLogLevel returns the level requested on the command line:
// --log-level wins, --verbose maps to debug, empty means use the config.
func resolveRequestedLogLevel(cmd *cobra.Command) string {
	if logLevel != "" {
		return logLevel
	}
	if cmd == nil {
		return ""
	}
	if f := cmd.Flags().Lookup("verbose"); f != nil && f.Changed && f.Value.String() == "true" {
		return "debug"
	}
	return ""
}

func infoEnabled() bool {
	switch logger.Level() {
	case "debug", "info":
		return true
	}
	return false
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var (
		sumErr   *verify.ChecksumError
		sigErr   *verify.SignatureError
		buildErr *builder.BuildError
		copyErr  *install.CopyError
		testErr  *formulatest.TestError
	)
	switch {
	case errors.As(err, &sumErr), errors.As(err, &sigErr):
		return exitIntegrity
	case errors.As(err, &buildErr):
		return exitBuild
	case errors.As(err, &copyErr):
		return exitCopy
	case errors.As(err, &testErr):
		return exitTest
	}
	return exitGeneric
}
