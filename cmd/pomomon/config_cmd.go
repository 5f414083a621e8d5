package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
	Long: `Configuration lives in config.yaml in the data directory. A running daemon
picks up durations, auto_phase, afk_timeout and show_warnings immediately;
other keys apply on the next start.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:       "set key value",
	Short:     "Change one configuration key",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.Keys,
	RunE:      runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	p := paths()
	cfg, err := config.Load(p.DataDir)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n", config.Path(p.DataDir))
	_, err = os.Stdout.Write(out)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	p := paths()
	cfg, err := config.Load(p.DataDir)
	if err != nil {
		return err
	}
	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := config.Save(p.DataDir, cfg); err != nil {
		return err
	}
	fmt.Printf("%s updated\n", args[0])
	return nil
}
