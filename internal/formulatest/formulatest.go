package formulatest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open-edge-platform/pkg-installer/internal/config"
	"github.com/open-edge-platform/pkg-installer/internal/install"
	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/open-edge-platform/pkg-installer/internal/utils/shell"
)

// StepResult is the outcome of one test step.
type StepResult struct {
	Command string
	Expect  string
	Output  string
	Passed  bool
	Err     error
}

// Report collects the outcome of a package's post-install tests.
type Report struct {
	Package string
	Skipped bool
	Steps   []StepResult
}

// Failed reports whether any step failed.
func (r Report) Failed() bool {
	for _, s := range r.Steps {
		if !s.Passed {
			return true
		}
	}
	return false
}

// Err returns a *TestError when the report has failures, nil otherwise.
func (r Report) Err() error {
	if !r.Failed() {
		return nil
	}
	return &TestError{Report: r}
}

// TestError reports failed post-install tests. It never implies the
// install itself failed.
type TestError struct {
	Report Report
}

func (e *TestError) Error() string {
	failed := 0
	first := ""
	for _, s := range e.Report.Steps {
		if s.Passed {
			continue
		}
		if failed == 0 {
			first = s.Command
		}
		failed++
	}
	return fmt.Sprintf("%s: %d of %d test steps failed (first: %s)", e.Report.Package, failed, len(e.Report.Steps), first)
}

// Expand substitutes layout placeholders such as {bin} in cmd. Values are
// shell quoted.
func Expand(cmd string, layout install.Layout) string {
	for k, v := range layout.Placeholders() {
		cmd = strings.ReplaceAll(cmd, k, shell.Quote(v))
	}
	return cmd
}

// Run executes the enabled test steps of d against the install in layout.
// Commands run in a scratch directory outside the prefix. Failures are
// recorded in the report; Run itself never fails the install.
func Run(ctx context.Context, d *config.PackageDescriptor, layout install.Layout, executor shell.Executor) Report {
	log := logger.Logger()
	report := Report{Package: d.Name}

	if !d.Test.Enabled || len(d.Test.Steps) == 0 {
		log.Infof("tests for %s are disabled, skipping", d.Name)
		report.Skipped = true
		return report
	}
	if executor == nil {
		executor = shell.Default
	}

	scratch, err := os.MkdirTemp("", "pkg-installer-test-"+d.Name+"-")
	if err != nil {
		report.Steps = append(report.Steps, StepResult{Err: fmt.Errorf("creating test directory: %w", err)})
		return report
	}
	defer os.RemoveAll(scratch)

	env := []string{"HOME=" + scratch, "PREFIX=" + layout.Prefix}
	for _, step := range d.Test.Steps {
		res := StepResult{Command: Expand(step.Run, layout), Expect: step.Expect}
		if err := ctx.Err(); err != nil {
			res.Err = err
			report.Steps = append(report.Steps, res)
			continue
		}

		log.Infof("testing %s: %s", d.Name, res.Command)
		res.Output, res.Err = executor.ExecCmd(res.Command, scratch, env)
		switch {
		case res.Err != nil:
			log.Warnf("test step %q failed: %v", res.Command, res.Err)
		case step.Expect != "" && !strings.Contains(res.Output, step.Expect):
			res.Err = fmt.Errorf("output does not contain %q", step.Expect)
			log.Warnf("test step %q: %v", res.Command, res.Err)
		default:
			res.Passed = true
		}
		report.Steps = append(report.Steps, res)
	}
	return report
}
