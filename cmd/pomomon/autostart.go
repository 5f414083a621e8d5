package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/infra"
)

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Start pomomon automatically at login",
	Long: `Installs a LaunchAgent (macOS) or systemd user unit (Linux) that runs the
daemon at login and restarts it if it crashes.`,
}

var autostartEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Install the login service",
	Args:  cobra.NoArgs,
	RunE:  runAutostartEnable,
}

var autostartDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Remove the login service",
	Args:  cobra.NoArgs,
	RunE:  runAutostartDisable,
}

var autostartStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the login service is installed",
	Args:  cobra.NoArgs,
	RunE:  runAutostartStatus,
}

func init() {
	autostartCmd.AddCommand(autostartEnableCmd)
	autostartCmd.AddCommand(autostartDisableCmd)
	autostartCmd.AddCommand(autostartStatusCmd)
	rootCmd.AddCommand(autostartCmd)
}

// executablePath resolves symlinks so the service survives a relinked shim.
func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

func runAutostartEnable(cmd *cobra.Command, args []string) error {
	exe, err := executablePath()
	if err != nil {
		return err
	}
	p := paths()
	m := infra.NewAutostartManager()

	if m.IsInstalled() && !m.NeedsUpdate(exe, p.DataDir) {
		fmt.Printf("Autostart already enabled (%s)\n", m.Path())
		return nil
	}
	if err := m.Install(exe, p.DataDir); err != nil {
		return fmt.Errorf("failed to enable autostart: %w", err)
	}
	fmt.Printf("Autostart enabled (%s)\n", m.Path())
	return nil
}

func runAutostartDisable(cmd *cobra.Command, args []string) error {
	m := infra.NewAutostartManager()
	if !m.IsInstalled() {
		fmt.Println("Autostart is not enabled")
		return nil
	}
	if err := m.Uninstall(); err != nil {
		return fmt.Errorf("failed to disable autostart: %w", err)
	}
	fmt.Println("Autostart disabled")
	return nil
}

func runAutostartStatus(cmd *cobra.Command, args []string) error {
	m := infra.NewAutostartManager()
	if !m.IsInstalled() {
		fmt.Println("Autostart: disabled")
		return nil
	}
	exe, err := executablePath()
	if err != nil {
		return err
	}
	fmt.Printf("Autostart: enabled (%s)\n", m.Path())
	if m.NeedsUpdate(exe, paths().DataDir) {
		fmt.Println("         definition is out of date; run 'pomomon autostart enable' to refresh")
	}
	return nil
}
