package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/TomCreeper/Shopkeepers/internal/app"
	"github.com/TomCreeper/Shopkeepers/internal/persistence/storage"
	"github.com/TomCreeper/Shopkeepers/internal/registry"
)

var migrateDryRun bool

type checkReport struct {
	Path        string   `json:"path"`
	DataVersion int      `json:"data_version"`
	SchemaError string   `json:"schema_error,omitempty"`
	Loaded      int      `json:"loaded"`
	Migrated    int      `json:"migrated"`
	Failures    []string `json:"failures,omitempty"`
	Written     bool     `json:"written"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the save file against the schema and load every shopkeeper",
	Long: `Validate never modifies the data directory. Shopkeepers are loaded from a
temporary copy of the save file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := check(false)
		if err != nil {
			return err
		}
		if err := printReport(rep); err != nil {
			return err
		}
		if rep.SchemaError != "" || len(rep.Failures) > 0 {
			return userErrorf("%s is not valid", rep.Path)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Load all shopkeepers and rewrite the save file in the current format",
	Long: `Migrate loads every shopkeeper, applying the same migrations the server applies
on startup, and writes the result back. Shopkeepers that fail to load keep
their saved data. A backup is written first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := check(!migrateDryRun)
		if err != nil {
			return err
		}
		return printReport(rep)
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "report what would change without writing")
}

func check(write bool) (checkReport, error) {
	path := savePath()
	rep := checkReport{Path: path}
	root, err := storage.ReadFile(path)
	if err != nil {
		return rep, err
	}
	rep.DataVersion = root.Int(storage.DataVersionKey, 1)
	if err := storage.Validate(root); err != nil {
		rep.SchemaError = err.Error()
	}

	cfg := stationConfig()
	cfg.DisableIndex = true
	if !write {
		tmp, err := os.MkdirTemp("", "shopkeepers-check-")
		if err != nil {
			return rep, err
		}
		defer os.RemoveAll(tmp)
		data, err := os.ReadFile(path)
		if err != nil {
			return rep, err
		}
		if err := os.WriteFile(filepath.Join(tmp, filepath.Base(path)), data, 0o644); err != nil {
			return rep, err
		}
		cfg.DataDir = tmp
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return rep, err
		}
		if _, err := backupData(data); err != nil {
			return rep, fmt.Errorf("backup before migrate: %w", err)
		}
	}

	st, err := app.New(logger(), prometheus.NewRegistry(), cfg)
	if err != nil {
		return rep, err
	}
	fillReport(&rep, st.LoadReport)
	if write {
		st.Storage.MarkDirty()
		rep.Written = true
	}
	if err := st.Shutdown(); err != nil {
		return rep, err
	}
	return rep, nil
}

func fillReport(rep *checkReport, lr registry.LoadReport) {
	rep.Loaded = lr.Loaded
	rep.Migrated = lr.Dirty
	for _, f := range lr.Failures {
		rep.Failures = append(rep.Failures, fmt.Sprintf("%s: %v", f.Key, f.Err))
	}
}

func printReport(rep checkReport) error {
	if flagJSON {
		return printJSON(rep)
	}
	fmt.Printf("file:         %s (data version %d)\n", rep.Path, rep.DataVersion)
	if rep.SchemaError != "" {
		fmt.Printf("schema:       %s\n", rep.SchemaError)
	} else {
		fmt.Println("schema:       ok")
	}
	fmt.Printf("loaded:       %d (%d migrated)\n", rep.Loaded, rep.Migrated)
	for _, f := range rep.Failures {
		fmt.Printf("failed:       %s\n", f)
	}
	if rep.Written {
		fmt.Println("save file rewritten")
	}
	return nil
}
