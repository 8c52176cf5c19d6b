package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/spf13/cobra"
)

func newDumpCmd(opts *rootOptions) *cobra.Command {
	var prefix string
	var keysOnly bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the contents of the Badger store",
		Long:  "Opens the configured Badger directory read-only. Stop the engine first; Badger holds an exclusive directory lock.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Type != enum.StoreTypeBadger {
				return fmt.Errorf("dump needs the badger store, config uses %s", cfg.Storage.Type)
			}
			db, err := badger.Open(badger.DefaultOptions(cfg.Storage.Badger.Directory).
				WithLogger(nil).
				WithReadOnly(true))
			if err != nil {
				return fmt.Errorf("open badger at %s: %w", cfg.Storage.Badger.Directory, err)
			}
			defer db.Close()

			n, err := dump(db, []byte(prefix), keysOnly, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nTotal keys found: %d\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only keys starting with this prefix")
	cmd.Flags().BoolVar(&keysOnly, "keys", false, "print keys without values")
	return cmd
}

func dump(db *badger.DB, prefix []byte, keysOnly bool, w io.Writer) (int, error) {
	count := 0
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = !keysOnly
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			count++
			fmt.Fprintf(w, "Key:   %s\n", item.Key())
			if keysOnly {
				continue
			}
			err := item.Value(func(val []byte) error {
				var pretty bytes.Buffer
				if json.Indent(&pretty, val, "       ", "  ") == nil {
					fmt.Fprintf(w, "Value: %s\n", pretty.Bytes())
				} else {
					fmt.Fprintf(w, "Value: %s\n", val)
				}
				fmt.Fprintf(w, "Size:  %d bytes\n---\n", len(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return count, err
}
