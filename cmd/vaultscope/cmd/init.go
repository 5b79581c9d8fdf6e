package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vaultscope/vaultscope/internal/config"
	"github.com/vaultscope/vaultscope/internal/output"
)

func newInitCmd(flags *rootFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a .vaultscope.yaml config file with the default settings so
they can be edited.

The file is written into the vault root (or the current directory).
Existing files are left alone unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, flags, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, flags *rootFlags, force bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg := config.Default()
	if flags.vaultPath != "" {
		cfg.Vault.Path = flags.vaultPath
	}

	target := flags.configPath
	if target == "" {
		target = filepath.Join(cfg.Vault.Path, config.DefaultConfigName)
	}

	if _, err := os.Stat(target); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", target)
	}

	if err := cfg.WriteYAML(target); err != nil {
		return err
	}

	out.Successf("Wrote %s", target)
	out.Status("", "Edit it, then run 'vaultscope index'.")
	return nil
}
