package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/infra"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/policy"
)

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Manage applications killed during work phases",
	Long: `Blocked applications are killed whenever they run during a work phase.
The list is stored in an encrypted database in the data directory.
Critical system processes can never be blocked.`,
}

var blockAddCmd = &cobra.Command{
	Use:   "add [name...]",
	Short: "Block applications by process name or preset",
	RunE:  runBlockAdd,
}

var blockRemoveCmd = &cobra.Command{
	Use:   "remove name...",
	Short: "Unblock applications",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBlockRemove,
}

var blockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocked applications and presets",
	Args:  cobra.NoArgs,
	RunE:  runBlockList,
}

var blockPreset string

func init() {
	blockAddCmd.Flags().StringVar(&blockPreset, "preset", "", "Block every process of a preset (steam, dota2)")

	blockCmd.AddCommand(blockAddCmd)
	blockCmd.AddCommand(blockRemoveCmd)
	blockCmd.AddCommand(blockListCmd)
	rootCmd.AddCommand(blockCmd)
}

func openBlocklist() (*infra.EncryptedBlocklist, error) {
	p := paths()
	if err := p.Ensure(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return infra.OpenBlocklist(p.DataDir)
}

func runBlockAdd(cmd *cobra.Command, args []string) error {
	names := append([]string(nil), args...)
	if blockPreset != "" {
		expanded, err := policy.NewRegistry().Expand(blockPreset)
		if err != nil {
			return err
		}
		names = append(names, expanded...)
	}
	if len(names) == 0 {
		return errors.New("give at least one name or --preset")
	}

	store, err := openBlocklist()
	if err != nil {
		return err
	}
	defer store.Close()

	for _, name := range names {
		if err := store.Add(name); err != nil {
			if errors.Is(err, policy.ErrProtected) {
				fmt.Printf("Skipped %s: %v\n", name, err)
				continue
			}
			return err
		}
		fmt.Printf("Blocked %s\n", policy.Normalize(name))
	}
	return nil
}

func runBlockRemove(cmd *cobra.Command, args []string) error {
	store, err := openBlocklist()
	if err != nil {
		return err
	}
	defer store.Close()

	for _, name := range args {
		if err := store.Remove(name); err != nil {
			return err
		}
		fmt.Printf("Unblocked %s\n", policy.Normalize(name))
	}
	return nil
}

func runBlockList(cmd *cobra.Command, args []string) error {
	store, err := openBlocklist()
	if err != nil {
		return err
	}
	defer store.Close()

	apps, err := store.List()
	if err != nil {
		return err
	}

	fmt.Println("\n=== Blocked Applications ===")
	if len(apps) == 0 {
		fmt.Println("None. Add one with 'pomomon block add <name>'.")
	} else {
		rows := make([][]string, 0, len(apps))
		for _, app := range apps {
			rows = append(rows, []string{app.Name, app.AddedAt.Format("2006-01-02 15:04"), strconv.Itoa(app.KillCount)})
		}
		renderTable(os.Stdout, []string{"App", "Added", "Kills"}, rows, terminalWidth())
	}

	fmt.Println("\nPresets:")
	registry := policy.NewRegistry()
	for _, id := range registry.List() {
		preset, _ := registry.Get(id)
		fmt.Printf("  [%s] %s: %v\n", id, preset.Name(), preset.ProcessNames())
	}
	fmt.Println("============================")
	return nil
}
