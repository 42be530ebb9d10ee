package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modoterra/gamehost/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage gamehost.yaml",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d games)\n", path, len(cfg.Games))
			return nil
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d error(s)\n", path, len(errs))
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  • %s\n", e)
		}
		return errors.Join(errs...)
	},
}

var (
	configInitExe   string
	configInitForce bool
)

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a default config file",
	Long:  "Writes YAML, or TOML when the file ends in .toml. With --exe a \"default\" game profile is added.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		cfg := config.Default()
		if configInitExe != "" {
			cfg.Games["default"] = config.Game{Exe: configInitExe}
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitExe, "exe", "", "emulator executable for a default game profile")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
}
