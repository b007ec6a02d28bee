package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/trezcool/maktaba/core/chat"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/notification"
	"github.com/trezcool/maktaba/core/remark"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/core/user"
)

// slotNames are the collections a slot backend holds, by short name.
var slotNames = []string{
	user.SlotName,
	library.BooksSlot,
	library.PapersSlot,
	library.CategoriesSlot,
	notification.SlotName,
	chat.SlotName,
	remark.SlotName,
}

func newReseedCommand(cli *commandLine) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reseed [SLOT...]",
		Short: "Remove slots so they are reseeded on next start",
		Long:  fmt.Sprintf("Known slots: %v", slotNames),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				args = slotNames
			}
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			removed, err := cli.reseed(cmd.Context(), args...)
			for _, key := range removed {
				printf(cmd.OutOrStdout(), "removed %s\n", key)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reseed every slot")
	return cmd
}

func (cli *commandLine) reseed(ctx context.Context, names ...string) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, name := range names {
		if !knownSlot(name) {
			return nil, fmt.Errorf("%q: no such slot", name)
		}
	}
	removed := make([]string, 0, len(names))
	for _, name := range names {
		key := store.Key(cli.conf.Storage.Namespace, name)
		if err := cli.slot.Remove(ctx, key); err != nil {
			return removed, err
		}
		removed = append(removed, key)
	}
	return removed, nil
}

func knownSlot(name string) bool {
	for _, n := range slotNames {
		if n == name {
			return true
		}
	}
	return false
}

func newSlotsCommand(cli *commandLine) *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "List stored slots and their sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			keys, err := cli.slot.Keys(ctx)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(keys))
			var total int64
			for key, size := range keys {
				names = append(names, key)
				total += size
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, key := range names {
				printf(w, "%s\t%s\n", key, units.HumanSize(float64(keys[key])))
			}
			printf(w, "total\t%s\n", units.HumanSize(float64(total)))
			if cli.conf.Storage.Quota != "" {
				printf(w, "quota\t%s per slot\n", cli.conf.Storage.Quota)
			}
			return w.Flush()
		},
	}
}
