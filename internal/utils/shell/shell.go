package shell

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
)

// Executor runs shell command strings. dir is the working directory, empty
// for the current one; envVal entries are KEY=VALUE pairs appended to the
// process environment.
type Executor interface {
	ExecCmd(cmdStr string, dir string, envVal []string) (string, error)
	ExecCmdSilent(cmdStr string, dir string, envVal []string) (string, error)
	ExecCmdWithStream(cmdStr string, dir string, envVal []string) (string, error)
	ExecCmdWithInput(inputStr string, cmdStr string, dir string, envVal []string) (string, error)
}

// Default is the executor used by the rest of the module. Tests replace it
// with a MockExecutor.
var Default Executor = &DefaultExecutor{}

// DefaultExecutor runs commands through the host shell.
type DefaultExecutor struct{}

// GetOSEnvirons returns the system environment variables
func GetOSEnvirons() map[string]string {
	environ := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			environ[parts[0]] = parts[1]
		}
	}
	return environ
}

// getShell returns the preferred shell, falling back to /bin/sh if bash is not available
func getShell() string {
	shells := []string{"/bin/bash", "/usr/bin/bash", "/bin/sh"}
	for _, shell := range shells {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	return "/bin/sh"
}

// Quote returns s quoted for a POSIX shell when it contains anything other
// than safe characters.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			strings.ContainsRune("-_./=:,+@%", c)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// JoinArgs quotes every argument and joins them into one command string.
func JoinArgs(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

// IsCommandExist checks if a command is resolvable on the host PATH
func IsCommandExist(cmd string) (bool, error) {
	if strings.TrimSpace(cmd) == "" {
		return false, fmt.Errorf("empty command name")
	}
	output, err := Default.ExecCmdSilent("command -v "+Quote(cmd), "", nil)
	if err != nil {
		// command -v exits non-zero when the command is missing
		return false, nil
	}
	return len(bytes.TrimSpace([]byte(output))) > 0, nil
}

func newCmd(cmdStr string, dir string, envVal []string) *exec.Cmd {
	cmd := exec.Command(getShell(), "-c", cmdStr)
	cmd.Dir = dir
	if len(envVal) > 0 {
		cmd.Env = append(os.Environ(), envVal...)
	}
	return cmd
}

func describe(cmdStr, dir string) string {
	if dir == "" {
		return "[" + cmdStr + "]"
	}
	return "[" + cmdStr + "] in " + dir
}

// ExecCmd executes a command and returns its combined output
func (e *DefaultExecutor) ExecCmd(cmdStr string, dir string, envVal []string) (string, error) {
	log := logger.Logger()
	log.Debugf("Exec: %s", describe(cmdStr, dir))

	output, err := newCmd(cmdStr, dir, envVal).CombinedOutput()
	outputStr := string(output)

	if err != nil {
		if outputStr != "" {
			log.Info(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s: %w", cmdStr, err)
	}
	if outputStr != "" {
		log.Debug(outputStr)
	}
	return outputStr, nil
}

// ExecCmdSilent executes a command without logging its output
func (e *DefaultExecutor) ExecCmdSilent(cmdStr string, dir string, envVal []string) (string, error) {
	output, err := newCmd(cmdStr, dir, envVal).CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("failed to exec %s: %w", cmdStr, err)
	}
	return string(output), nil
}

// ExecCmdWithStream executes a command, logging each output line as it
// arrives, and returns the combined output.
func (e *DefaultExecutor) ExecCmdWithStream(cmdStr string, dir string, envVal []string) (string, error) {
	log := logger.Logger()
	log.Debugf("Exec: %s", describe(cmdStr, dir))

	cmd := newCmd(cmdStr, dir, envVal)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe for command %s: %w", cmdStr, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe for command %s: %w", cmdStr, err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", cmdStr, err)
	}

	var (
		mu  sync.Mutex
		buf strings.Builder
		wg  sync.WaitGroup
	)
	var readErr error
	// Lines are read whole regardless of length; each pipe is drained to EOF.
	stream := func(pipe io.Reader) {
		defer wg.Done()
		reader := bufio.NewReader(pipe)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				str := strings.TrimRight(line, "\r\n")
				mu.Lock()
				buf.WriteString(str)
				buf.WriteByte('\n')
				mu.Unlock()
				if str != "" {
					log.Info(str)
				}
			}
			if err != nil {
				if err != io.EOF {
					mu.Lock()
					if readErr == nil {
						readErr = err
					}
					mu.Unlock()
					_, _ = io.Copy(io.Discard, pipe)
				}
				return
			}
		}
	}

	wg.Add(2)
	go stream(stdout)
	go stream(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return buf.String(), fmt.Errorf("failed to wait for command %s: %w", cmdStr, err)
	}
	if readErr != nil {
		return buf.String(), fmt.Errorf("failed to read output of command %s: %w", cmdStr, readErr)
	}
	return buf.String(), nil
}

// ExecCmdWithInput executes a command with input string
func (e *DefaultExecutor) ExecCmdWithInput(inputStr string, cmdStr string, dir string, envVal []string) (string, error) {
	log := logger.Logger()
	log.Debugf("Exec: %s", describe(cmdStr, dir))

	cmd := newCmd(cmdStr, dir, envVal)
	cmd.Stdin = strings.NewReader(inputStr)

	output, err := cmd.CombinedOutput()
	outputStr := string(output)
	if err != nil {
		if outputStr != "" {
			log.Info(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s with input: %w", cmdStr, err)
	}
	return outputStr, nil
}
