package shell

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// MockCommand maps a command pattern (regular expression, or plain substring
// when it does not compile) to a canned result.
type MockCommand struct {
	Pattern string
	Output  string
	Error   error
}

// MockExecutor is an Executor that never runs anything. It answers from its
// command table and records every command it was asked to run.
type MockExecutor struct {
	mu       sync.Mutex
	commands []MockCommand
	calls    []string
}

// NewMockExecutor returns a MockExecutor answering from commands.
func NewMockExecutor(commands []MockCommand) *MockExecutor {
	return &MockExecutor{commands: commands}
}

// Calls returns the commands executed so far, in order.
func (m *MockExecutor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Called reports whether any executed command matches pattern.
func (m *MockExecutor) Called(pattern string) bool {
	for _, c := range m.Calls() {
		if matches(pattern, c) {
			return true
		}
	}
	return false
}

func matches(pattern, cmdStr string) bool {
	if re, err := regexp.Compile(pattern); err == nil {
		return re.MatchString(cmdStr)
	}
	return strings.Contains(cmdStr, pattern)
}

func (m *MockExecutor) run(cmdStr string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, cmdStr)
	m.mu.Unlock()

	for _, c := range m.commands {
		if matches(c.Pattern, cmdStr) {
			return c.Output, c.Error
		}
	}
	return "", fmt.Errorf("unexpected command for mock executor: %s", cmdStr)
}

func (m *MockExecutor) ExecCmd(cmdStr string, dir string, envVal []string) (string, error) {
	return m.run(cmdStr)
}

func (m *MockExecutor) ExecCmdSilent(cmdStr string, dir string, envVal []string) (string, error) {
	return m.run(cmdStr)
}

func (m *MockExecutor) ExecCmdWithStream(cmdStr string, dir string, envVal []string) (string, error) {
	return m.run(cmdStr)
}

func (m *MockExecutor) ExecCmdWithInput(inputStr string, cmdStr string, dir string, envVal []string) (string, error) {
	return m.run(cmdStr)
}
