package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutostart_DarwinInstall(t *testing.T) {
	home := t.TempDir()
	runner := newMockCommandRunner()
	m := NewAutostartManagerWithDeps("darwin", home, runner)
	runner.On("", nil, "launchctl", "load", m.Path())

	require.NoError(t, m.Install("/usr/local/bin/pomomon", "/Users/me/.pomomon"))

	assert.Equal(t, filepath.Join(home, "Library", "LaunchAgents", "com.pomomon.daemon.plist"), m.Path())
	assert.True(t, m.IsInstalled())
	content, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Contains(t, string(content), "<string>/usr/local/bin/pomomon</string>")
	assert.Contains(t, string(content), "<string>daemon</string>")
	assert.Contains(t, string(content), "<string>/Users/me/.pomomon/pomomon.error.log</string>")
	assert.Equal(t, [][]string{{"launchctl", "load", m.Path()}}, runner.Calls())
}

func TestAutostart_LinuxInstallAndUninstall(t *testing.T) {
	home := t.TempDir()
	runner := newMockCommandRunner()
	runner.On("", nil, "systemctl", "--user", "daemon-reload")
	runner.On("", nil, "systemctl", "--user", "enable", "pomomon.service")
	runner.On("", nil, "systemctl", "--user", "disable", "pomomon.service")
	m := NewAutostartManagerWithDeps("linux", home, runner)

	require.NoError(t, m.Install("/home/me/bin/pomomon", "/home/me/.pomomon"))

	content, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Contains(t, string(content), `ExecStart="/home/me/bin/pomomon" daemon --data-dir "/home/me/.pomomon"`)

	require.NoError(t, m.Uninstall())
	assert.False(t, m.IsInstalled())
	assert.Contains(t, runner.Calls(), []string{"systemctl", "--user", "disable", "pomomon.service"})
}

func TestAutostart_NeedsUpdate(t *testing.T) {
	runner := newMockCommandRunner()
	m := NewAutostartManagerWithDeps("darwin", t.TempDir(), runner)
	runner.On("", nil, "launchctl", "load", m.Path())

	assert.False(t, m.NeedsUpdate("/a/pomomon", "/data"), "not installed")

	require.NoError(t, m.Install("/a/pomomon", "/data"))
	assert.False(t, m.NeedsUpdate("/a/pomomon", "/data"))
	assert.True(t, m.NeedsUpdate("/b/pomomon", "/data"), "binary moved")
}

func TestAutostart_Unsupported(t *testing.T) {
	m := NewAutostartManagerWithDeps("windows", t.TempDir(), newMockCommandRunner())

	assert.ErrorIs(t, m.Install("/x", "/d"), ErrAutostartUnsupported)
	assert.ErrorIs(t, m.Uninstall(), ErrAutostartUnsupported)
	assert.False(t, m.IsInstalled())
	assert.Empty(t, m.Path())
}
