// Package config wraps the process-wide viper configuration singleton.
//
// Precedence: environment variables > .loom/config.yaml (discovered by
// walking up from the working directory) > defaults. The singleton is
// initialized once at startup and treated as read-only afterwards.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Walk up from CWD to find a project .loom/config.yaml so commands work
	// from subdirectories.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".loom", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				break
			}
		}
	}

	// Environment variables take precedence over the config file.
	// E.g. LOOM_TRANSPORT, LOOM_HTTP_PORT, LOOM_NOTE_SCHEMA.
	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Unprefixed variables bound explicitly for compatibility with the
	// documented contract.
	_ = v.BindEnv("db", "DATABASE_PATH")

	v.SetDefault("db", filepath.Join(".loom", "loom.db"))
	v.SetDefault("transport", "stdio")
	v.SetDefault("http-host", "127.0.0.1")
	v.SetDefault("http-port", 8377)
	v.SetDefault("note-schema", filepath.Join(".loom", "note-schema.yaml"))
	v.SetDefault("log-file", "")
	v.SetDefault("log-level", "info")
	v.SetDefault("server-name", "loom")
	v.SetDefault("lock-timeout", "5s")
	v.SetDefault("statement-timeout", "30s")

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

func ensure() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

// GetString returns a string config value.
func GetString(key string) string { return ensure().GetString(key) }

// GetInt returns an integer config value.
func GetInt(key string) int { return ensure().GetInt(key) }

// GetBool returns a boolean config value.
func GetBool(key string) bool { return ensure().GetBool(key) }

// Set overrides a config value (used by CLI flags and tests).
func Set(key string, value any) { ensure().Set(key, value) }

// DatabasePath returns the resolved database file location.
func DatabasePath() string { return GetString("db") }

// NoteSchemaPath returns the note-schema configuration file location.
func NoteSchemaPath() string { return GetString("note-schema") }
