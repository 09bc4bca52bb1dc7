package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TomCreeper/Shopkeepers/internal/persistence/backup"
	"github.com/TomCreeper/Shopkeepers/internal/persistence/storage"
	"github.com/TomCreeper/Shopkeepers/internal/section"
)

var restoreForce bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a compressed backup of the save file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(savePath())
		if err != nil {
			return err
		}
		path, err := backupData(data)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := backup.List(stationConfig().BackupDir())
		if err != nil {
			return err
		}
		type entry struct {
			Path string      `json:"path"`
			Meta backup.Meta `json:"meta"`
		}
		var out []entry
		for _, p := range paths {
			meta, _, err := backup.Read(p)
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", p, err)
				continue
			}
			out = append(out, entry{Path: p, Meta: meta})
		}
		if flagJSON {
			return printJSON(out)
		}
		for _, e := range out {
			fmt.Printf("%s  v%d  %d bytes  %s\n", e.Meta.CreatedAt, e.Meta.DataVersion, e.Meta.Size, e.Path)
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [backup]",
	Short: "Replace the save file with a backup (the newest by default)",
	Long: `Restore replaces the save file with the content of a backup. The server must
be stopped, otherwise its next save overwrites the restored file. The current
save file is backed up first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		} else {
			paths, err := backup.List(stationConfig().BackupDir())
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return userErrorf("no backups in %s", stationConfig().BackupDir())
			}
			path = paths[0]
		}
		meta, data, err := backup.Read(path)
		if err != nil {
			return userErrorf("%s: %v", path, err)
		}
		if meta.DataVersion > storage.DataVersion && !restoreForce {
			return userErrorf("backup has data version %d, this build supports %d", meta.DataVersion, storage.DataVersion)
		}
		if _, err := section.Unmarshal(data); err != nil {
			return userErrorf("backup content is not a valid save file: %v", err)
		}

		if current, err := os.ReadFile(savePath()); err == nil {
			if _, err := backupData(current); err != nil {
				return fmt.Errorf("backup current save file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return err
		}
		if err := storage.WriteFileAtomic(savePath(), data); err != nil {
			return err
		}
		fmt.Printf("restored %s (created %s)\n", path, meta.CreatedAt)
		return nil
	},
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreForce, "force", false, "restore even if the backup has a newer data version")
}

func backupData(data []byte) (string, error) {
	version := storage.DataVersion
	if root, err := section.Unmarshal(data); err == nil {
		version = root.Int(storage.DataVersionKey, 1)
	}
	return backup.Write(stationConfig().BackupDir(), data, version, time.Now())
}
