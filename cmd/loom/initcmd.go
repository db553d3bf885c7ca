package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/untoldecay/loom/internal/config"
	"github.com/untoldecay/loom/internal/storage/sqlite"
)

const defaultConfigYAML = `# loom configuration
# db: .loom/loom.db
# transport: stdio
# http-host: 127.0.0.1
# http-port: 8377
# note-schema: .loom/note-schema.yaml
# log-level: info
# log-file: ""
`

const defaultNoteSchemaYAML = `# Note schema: expected notes per tag. Entries marked required gate the
# transition out of their role until the note body is filled.
#
# tags:
#   bugfix:
#     - key: root-cause
#       role: work
#       required: true
#     - key: fix-verification
#       role: review
#       required: false
#
# preserve_tags: [bugfix, hotfix, critical]
# default_flow: [queue, work, review, terminal]
tags: {}
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a .loom workspace in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ".loom"
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}

		files := map[string]string{
			filepath.Join(dir, "config.yaml"):      defaultConfigYAML,
			filepath.Join(dir, "note-schema.yaml"): defaultNoteSchemaYAML,
		}
		for path, content := range files {
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("exists   %s\n", path)
				continue
			}
			if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Printf("created  %s\n", path)
		}

		// Opening the store creates the database and applies migrations.
		store, err := sqlite.New(cmd.Context(), config.DatabasePath())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		fmt.Printf("database %s\n", store.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
