package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/loom/internal/config"
	"github.com/untoldecay/loom/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Work-item orchestration server",
	Long: `loom tracks hierarchical work items through a role state machine,
with typed dependencies, gated notes and a tool surface served over
stdio or HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		// Flags override the config file and environment.
		overrides := []string{"db", "transport", "http-host", "http-port", "note-schema", "log-level", "log-file"}
		for _, key := range overrides {
			if f := cmd.Flags().Lookup(key); f != nil && f.Changed {
				config.Set(key, f.Value.String())
			}
		}
		logging.Initialize(logging.Options{
			Level: config.GetString("log-level"),
			File:  config.GetString("log-file"),
		})
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("db", "", "database file path (default .loom/loom.db)")
	pf.String("note-schema", "", "note-schema YAML path (default .loom/note-schema.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-file", "", "rotating log file (default stderr)")
}
