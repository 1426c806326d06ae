package builder

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/open-edge-platform/pkg-installer/internal/utils/shell"
)

func TestRunSuccess(t *testing.T) {
	originalExecutor := shell.Default
	defer func() { shell.Default = originalExecutor }()

	mock := shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: "^make all$", Output: "go build -o _output/bin/alpine\n"},
	})
	shell.Default = mock

	out, err := Run(context.Background(), t.TempDir(), []string{"make", "all"}, nil, "/opt/pkg")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out, "_output/bin/alpine") {
		t.Errorf("unexpected output %q", out)
	}
	if calls := mock.Calls(); len(calls) != 1 || calls[0] != "make all" {
		t.Errorf("expected exactly one build call, got %v", calls)
	}
}

func TestRunFailureKeepsOutput(t *testing.T) {
	originalExecutor := shell.Default
	defer func() { shell.Default = originalExecutor }()

	shell.Default = shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: "make all", Output: "main.go:3: undefined: foo\n", Error: fmt.Errorf("exit status 2")},
	})

	_, err := Run(context.Background(), t.TempDir(), []string{"make", "all"}, nil, "")
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected BuildError, got %v", err)
	}
	if buildErr.Output != "main.go:3: undefined: foo\n" {
		t.Errorf("expected verbatim output, got %q", buildErr.Output)
	}
}

func TestRunPreconditions(t *testing.T) {
	originalExecutor := shell.Default
	defer func() { shell.Default = originalExecutor }()
	mock := shell.NewMockExecutor(nil)
	shell.Default = mock

	if _, err := Run(context.Background(), t.TempDir(), nil, nil, ""); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := Run(context.Background(), "/nonexistent/source", []string{"make"}, nil, ""); err == nil {
		t.Error("expected error for missing source dir")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, t.TempDir(), []string{"make"}, nil, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(mock.Calls()) != 0 {
		t.Errorf("no command may run when preconditions fail, got %v", mock.Calls())
	}
}

func TestRunRealShell(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no shell available")
	}
	dir := t.TempDir()
	out, err := Run(context.Background(), dir, []string{"sh", "-c", "echo prefix=$PREFIX; pwd"}, []string{"CGO_ENABLED=0"}, "/opt/pkg")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out, "prefix=/opt/pkg") {
		t.Errorf("expected PREFIX in environment, got %q", out)
	}
}
