package main

import (
	"github.com/spf13/cobra"
	"github.com/trezcool/goose"

	appfs "github.com/trezcool/maktaba/fs"
)

var gooseRunFunc = goose.RunFS // mockable

func newMigrateCommand(cli *commandLine) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run goose migrations against the postgres slot database",
		Long: "Commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version, " +
			"create NAME [go|sql], fix",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			return cli.migrate(args)
		},
	}
}

func (cli *commandLine) migrate(args []string) error {
	s, ok := cli.slot.(dbSlot)
	if !ok {
		return errNoDatabase
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], s.DB(), appfs.FS, "migrations", arguments...)
}
