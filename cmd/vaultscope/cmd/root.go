// Package cmd provides the CLI commands for vaultscope.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultscope/vaultscope/internal/profiling"
	"github.com/vaultscope/vaultscope/pkg/version"
)

// rootFlags are shared across subcommands.
type rootFlags struct {
	configPath string
	vaultPath  string
	logLevel   string
	debug      bool

	profileCPU   string
	profileMem   string
	profileTrace string
}

// NewRootCmd creates the root command for the vaultscope CLI.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	profiler := profiling.NewProfiler()
	var cpuCleanup, traceCleanup func()

	cmd := &cobra.Command{
		Use:   "vaultscope",
		Short: "Hybrid semantic search for Markdown note vaults",
		Long: `Vaultscope indexes a Markdown note vault and serves hybrid search
combining keyword matching with semantic embeddings, optionally
refined by a cross-encoder reranker.

It runs entirely locally. Run 'vaultscope index' in your vault
directory, then 'vaultscope search "your question"'.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate(version.String() + "\n")

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (default .vaultscope.yaml in the working directory)")
	cmd.PersistentFlags().StringVar(&flags.vaultPath, "vault", "", "Vault root directory (overrides config)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Shorthand for --log-level debug")

	cmd.PersistentFlags().StringVar(&flags.profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&flags.profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&flags.profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		var err error
		if flags.profileCPU != "" {
			cpuCleanup, err = profiler.StartCPU(flags.profileCPU)
			if err != nil {
				return fmt.Errorf("failed to start CPU profile: %w", err)
			}
		}
		if flags.profileTrace != "" {
			traceCleanup, err = profiler.StartTrace(flags.profileTrace)
			if err != nil {
				if cpuCleanup != nil {
					cpuCleanup()
				}
				return fmt.Errorf("failed to start trace: %w", err)
			}
		}
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		if cpuCleanup != nil {
			cpuCleanup()
			cpuCleanup = nil
		}
		if traceCleanup != nil {
			traceCleanup()
			traceCleanup = nil
		}
		if flags.profileMem != "" {
			if err := profiler.WriteHeap(flags.profileMem); err != nil {
				return fmt.Errorf("failed to write memory profile: %w", err)
			}
		}
		return nil
	}

	cmd.AddCommand(newInitCmd(flags))
	cmd.AddCommand(newIndexCmd(flags))
	cmd.AddCommand(newSearchCmd(flags))
	cmd.AddCommand(newWatchCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
