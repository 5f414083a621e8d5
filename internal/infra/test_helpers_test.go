package infra

import (
	"errors"
	"strings"
	"sync"
)

// mockCommandRunner is a test double for CommandRunner. Outputs are keyed by
// the full command line.
type mockCommandRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   [][]string
}

func newMockCommandRunner() *mockCommandRunner {
	return &mockCommandRunner{
		outputs: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (m *mockCommandRunner) On(output string, err error, name string, args ...string) {
	key := commandKey(name, args)
	m.outputs[key] = output
	if err != nil {
		m.errs[key] = err
	}
}

func (m *mockCommandRunner) Run(name string, args ...string) error {
	_, err := m.Output(name, args...)
	return err
}

func (m *mockCommandRunner) Output(name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]string{name}, args...))

	key := commandKey(name, args)
	if err, ok := m.errs[key]; ok {
		return nil, err
	}
	out, ok := m.outputs[key]
	if !ok {
		return nil, errors.New("command not found: " + name)
	}
	return []byte(out), nil
}

func (m *mockCommandRunner) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.calls...)
}

func commandKey(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	names map[int]string
}

func (m *mockProcessManager) FindByName(name string) ([]int, error) {
	var pids []int
	for pid, n := range m.names {
		if strings.EqualFold(n, name) {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	n, ok := m.names[pid]
	if !ok {
		return "", errors.New("no such process")
	}
	return n, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	delete(m.names, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	_, ok := m.names[pid]
	return ok
}

func (m *mockProcessManager) GetCurrentPID() int {
	return 1
}
