package builder

import (
	"context"
	"fmt"
	"os"

	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/open-edge-platform/pkg-installer/internal/utils/shell"
)

// BuildError is returned when the build command exits non-zero. Output is
// the command's combined output, unmodified.
type BuildError struct {
	Command string
	Dir     string
	Output  string
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build command %q failed in %s: %v", e.Command, e.Dir, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Run executes the build command argv inside sourceDir. env entries are
// KEY=VALUE pairs added to the environment; PREFIX is always set to prefix
// when it is not empty.
func Run(ctx context.Context, sourceDir string, argv []string, env []string, prefix string) (string, error) {
	log := logger.Logger()

	if len(argv) == 0 {
		return "", fmt.Errorf("no build command given")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if info, err := os.Stat(sourceDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("source directory %s is not usable: %v", sourceDir, err)
	}

	envVal := append([]string(nil), env...)
	if prefix != "" {
		envVal = append(envVal, "PREFIX="+prefix)
	}

	cmdStr := shell.JoinArgs(argv)
	log.Infof("building in %s: %s", sourceDir, cmdStr)

	output, err := shell.Default.ExecCmdWithStream(cmdStr, sourceDir, envVal)
	if err != nil {
		return output, &BuildError{Command: cmdStr, Dir: sourceDir, Output: output, Err: err}
	}
	log.Infof("build finished: %s", cmdStr)
	return output, nil
}
