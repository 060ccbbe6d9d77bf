package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/DIG-Network/dig-propagation-server/internal/bytesize"
	"github.com/DIG-Network/dig-propagation-server/internal/cli/output"
	"github.com/DIG-Network/dig-propagation-server/pkg/config"
	"github.com/DIG-Network/dig-propagation-server/pkg/storage"
)

var storesOutputFormat string

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "List committed stores",
	Long: `List the stores committed to the local storage root, with the number
of committed root hashes and the disk space each store occupies.

Examples:
  # List stores as a table
  propagationd stores

  # Machine-readable output
  propagationd stores --output json`,
	RunE: runStores,
}

func init() {
	storesCmd.Flags().StringVarP(&storesOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
}

// storeInfo is one row of the stores listing.
type storeInfo struct {
	ID        string `json:"id"        yaml:"id"`
	Roots     int    `json:"roots"     yaml:"roots"`
	DiskBytes int64  `json:"diskBytes" yaml:"diskBytes"`
}

// storeList renders the listing as a table.
type storeList []storeInfo

func (l storeList) Headers() []string {
	return []string{"STORE ID", "ROOTS", "SIZE"}
}

func (l storeList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		rows = append(rows, []string{
			s.ID,
			strconv.Itoa(s.Roots),
			bytesize.ByteSize(s.DiskBytes).String(),
		})
	}
	return rows
}

func runStores(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(storesOutputFormat)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	store, err := storage.NewStore(storage.NewLayout(cfg.Storage.Root))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	ids, err := store.ListStores()
	if err != nil {
		return fmt.Errorf("failed to list stores: %w", err)
	}

	list := make(storeList, 0, len(ids))
	for _, id := range ids {
		roots, err := store.ReadManifest(id)
		if err != nil {
			return fmt.Errorf("failed to read manifest for %s: %w", id, err)
		}
		usage, err := store.DiskUsage(id)
		if err != nil {
			return fmt.Errorf("failed to measure %s: %w", id, err)
		}
		list = append(list, storeInfo{ID: id, Roots: len(roots), DiskBytes: usage})
	}

	if len(list) == 0 && format == output.FormatTable {
		fmt.Println("No stores committed yet.")
		return nil
	}

	return output.NewPrinter(os.Stdout, format).Print(list)
}
