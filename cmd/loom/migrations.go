package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/loom/internal/storage/sqlite"
)

var migrationsCmd = &cobra.Command{
	Use:   "migrations",
	Short: "List registered database migrations",
	Run: func(cmd *cobra.Command, args []string) {
		for _, m := range sqlite.ListMigrations() {
			fmt.Printf("%-28s %s\n", m.Name, m.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(migrationsCmd)
}
