// Command admin inspects and maintains the station's data directory.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/app"
)

// Exit codes.
const (
	exitUserError = 1
	exitSysError  = 2
)

var (
	flagDataDir  string
	flagSettings string
	flagJSON     bool
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "Inspect and maintain shopkeeper data",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDataDir, "data", "./data", "runtime data directory")
	pf.StringVar(&flagSettings, "settings", "", "path to settings.yaml (defaults when empty)")
	pf.BoolVar(&flagJSON, "json", false, "output as JSON")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log station output")

	rootCmd.AddCommand(listCmd, showCmd, validateCmd, migrateCmd, backupCmd, backupsCmd, restoreCmd, journalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var ue userError
		if errors.As(err, &ue) {
			os.Exit(exitUserError)
		}
		os.Exit(exitSysError)
	}
}

// userError marks failures caused by bad input or bad data rather than the
// environment.
type userError struct{ error }

func userErrorf(format string, args ...any) error {
	return userError{fmt.Errorf(format, args...)}
}

func stationConfig() app.Config {
	return app.Config{DataDir: flagDataDir, SettingsPath: flagSettings}
}

func savePath() string { return stationConfig().SavePath() }

func logger() *zap.Logger {
	if !flagVerbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
