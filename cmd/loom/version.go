package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/loom/internal/server"
)

// Build can be set via ldflags at compile time.
var Build = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("loom version %s (%s)\n", server.Version, Build)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
