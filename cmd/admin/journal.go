package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TomCreeper/Shopkeepers/internal/persistence/journal"
)

var journalLimit int

var journalCmd = &cobra.Command{
	Use:   "journal [file]",
	Short: "Print lifecycle journal entries (the newest journal file by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			files, err := filepath.Glob(filepath.Join(stationConfig().JournalDir(), "*.jsonl.zst"))
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return userErrorf("no journal files in %s", stationConfig().JournalDir())
			}
			sort.Strings(files)
			path = files[len(files)-1]
		}
		entries, err := journal.ReadFile(path)
		if err != nil {
			return err
		}
		if journalLimit > 0 && len(entries) > journalLimit {
			entries = entries[len(entries)-journalLimit:]
		}
		if flagJSON {
			return printJSON(entries)
		}
		for _, e := range entries {
			fmt.Printf("%s  %-22s %-8s #%d %s/%s %s,%d,%d,%d %s\n",
				e.Time.Format("15:04:05"), e.Event, e.Cause, e.ID, e.Type, e.Object, e.World, e.X, e.Y, e.Z, e.Name)
		}
		return nil
	},
}

func init() {
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 50, "print at most the last n entries (0 for all)")
}
