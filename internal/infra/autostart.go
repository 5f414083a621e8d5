package infra

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

// AutostartLabel names the LaunchAgent and the systemd user unit.
const AutostartLabel = "com.pomomon.daemon"

// ErrAutostartUnsupported is returned on platforms without a supported service manager.
var ErrAutostartUnsupported = errors.New("autostart is not supported on this platform")

// LaunchAgent plist template (runs as user, restarted if it crashes)
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>daemon</string>
        <string>--data-dir</string>
        <string>{{.DataDir}}</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>

    <key>StandardErrorPath</key>
    <string>{{.ErrorLogPath}}</string>

    <key>ProcessType</key>
    <string>Interactive</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>
`

// systemd user unit template
const systemdUnitTemplate = `[Unit]
Description=pomomon Pomodoro timer ({{.Label}})
After=graphical-session.target

[Service]
ExecStart="{{.ExecutablePath}}" daemon --data-dir "{{.DataDir}}"
Restart=on-failure
RestartSec=10

[Install]
WantedBy=default.target
`

type unitConfig struct {
	Label          string
	ExecutablePath string
	DataDir        string
	ErrorLogPath   string
}

// AutostartManager installs pomomon as a login service: a LaunchAgent on
// macOS, a systemd user unit on Linux.
type AutostartManager struct {
	goos      string
	unitPath  string
	cmdRunner CommandRunner
}

// NewAutostartManager creates a manager for the current user and platform.
func NewAutostartManager() *AutostartManager {
	home, _ := os.UserHomeDir()
	return NewAutostartManagerWithDeps(runtime.GOOS, home, &RealCommandRunner{})
}

// NewAutostartManagerWithDeps creates a manager with custom dependencies (for testing).
func NewAutostartManagerWithDeps(goos, home string, cmdRunner CommandRunner) *AutostartManager {
	var unitPath string
	switch goos {
	case "darwin":
		unitPath = filepath.Join(home, "Library", "LaunchAgents", AutostartLabel+".plist")
	case "linux":
		unitPath = filepath.Join(home, ".config", "systemd", "user", "pomomon.service")
	}
	return &AutostartManager{
		goos:      goos,
		unitPath:  unitPath,
		cmdRunner: cmdRunner,
	}
}

// Path returns the service definition path, or "" when unsupported.
func (m *AutostartManager) Path() string {
	return m.unitPath
}

// render creates the service definition for the given binary and data dir.
func (m *AutostartManager) render(execPath, dataDir string) ([]byte, error) {
	var tmplStr string
	switch m.goos {
	case "darwin":
		tmplStr = launchAgentTemplate
	case "linux":
		tmplStr = systemdUnitTemplate
	default:
		return nil, ErrAutostartUnsupported
	}

	cfg := unitConfig{
		Label:          AutostartLabel,
		ExecutablePath: execPath,
		DataDir:        dataDir,
		ErrorLogPath:   filepath.Join(dataDir, "pomomon.error.log"),
	}

	tmpl, err := template.New("unit").Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to execute unit template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the service definition and registers it with the service manager.
func (m *AutostartManager) Install(execPath, dataDir string) error {
	content, err := m.render(execPath, dataDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.unitPath), 0755); err != nil {
		return err
	}
	if err := AtomicWrite(m.unitPath, content, 0644); err != nil {
		return err
	}
	return m.load()
}

// Uninstall unregisters and removes the service definition.
func (m *AutostartManager) Uninstall() error {
	if m.unitPath == "" {
		return ErrAutostartUnsupported
	}
	// Unload first (ignore errors if not loaded)
	_ = m.unload()

	if err := os.Remove(m.unitPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if m.goos == "linux" {
		_ = m.cmdRunner.Run("systemctl", "--user", "daemon-reload")
	}
	return nil
}

// IsInstalled checks if the service definition exists.
func (m *AutostartManager) IsInstalled() bool {
	if m.unitPath == "" {
		return false
	}
	_, err := os.Stat(m.unitPath)
	return err == nil
}

// NeedsUpdate reports whether the installed definition differs from what
// Install would write now, e.g. after the binary moved.
func (m *AutostartManager) NeedsUpdate(execPath, dataDir string) bool {
	if !m.IsInstalled() {
		return false // Doesn't exist, needs install not update
	}
	current, err := os.ReadFile(m.unitPath)
	if err != nil {
		return true
	}
	expected, err := m.render(execPath, dataDir)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

func (m *AutostartManager) load() error {
	if m.goos == "darwin" {
		// `launchctl load` is deprecated but still works for user agents
		return m.cmdRunner.Run("launchctl", "load", m.unitPath)
	}
	if err := m.cmdRunner.Run("systemctl", "--user", "daemon-reload"); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w", err)
	}
	return m.cmdRunner.Run("systemctl", "--user", "enable", "pomomon.service")
}

func (m *AutostartManager) unload() error {
	if m.goos == "darwin" {
		return m.cmdRunner.Run("launchctl", "unload", m.unitPath)
	}
	return m.cmdRunner.Run("systemctl", "--user", "disable", "pomomon.service")
}
