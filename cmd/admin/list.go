package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TomCreeper/Shopkeepers/internal/persistence/indexdb"
	"github.com/TomCreeper/Shopkeepers/internal/persistence/storage"
	"github.com/TomCreeper/Shopkeepers/internal/section"
)

var (
	listWorld   string
	listType    string
	listOwner   string
	listFromIdx bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved shopkeepers",
	Long: `List reads the save file, or the sqlite index with --index.

The index is refreshed after every save of a running server, so it may lag
behind the save file by one save.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := indexdb.Filter{World: listWorld, Type: listType, OwnerUUID: listOwner}
		rows, err := loadRows(cmd.Context(), f)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(rows)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tOBJECT\tWORLD\tX\tY\tZ\tNAME\tOWNER")
		for _, r := range rows {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				r.ID, r.Type, r.ObjectType, r.World, r.X, r.Y, r.Z, r.Name, r.Owner)
		}
		return tw.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the saved data of one shopkeeper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil || id <= 0 {
			return userErrorf("invalid id %q", args[0])
		}
		root, err := storage.ReadFile(savePath())
		if err != nil {
			return err
		}
		sec := root.Section(args[0])
		if sec == nil {
			return userErrorf("shopkeeper %d not found", id)
		}
		if flagJSON {
			return printJSON(sec.ToMap())
		}
		out, err := section.Marshal(sec)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	listCmd.Flags().StringVar(&listWorld, "world", "", "only shopkeepers in this world")
	listCmd.Flags().StringVar(&listType, "type", "", "only shopkeepers of this shop type")
	listCmd.Flags().StringVar(&listOwner, "owner", "", "only shopkeepers owned by this uuid")
	listCmd.Flags().BoolVar(&listFromIdx, "index", false, "query the sqlite index instead of the save file")
}

func loadRows(ctx context.Context, f indexdb.Filter) ([]indexdb.Row, error) {
	if listFromIdx {
		path := stationConfig().IndexPath()
		if !exists(path) {
			return nil, userErrorf("no index at %s", path)
		}
		idx, err := indexdb.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		return idx.List(ctx, f)
	}

	root, err := storage.ReadFile(savePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []indexdb.Row
	for _, r := range indexdb.RowsFromSave(root) {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
