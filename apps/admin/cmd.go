package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("migrate needs the postgres storage backend")
)

// dbSlot is implemented by slot backends that sit on a SQL database.
type dbSlot interface {
	DB() *sql.DB
}

type commandLine struct {
	conf   *core.Config
	slot   store.Slot
	users  *store.Store[user.User]
	usrSvc user.Service
}

func newRootCommand(cli *commandLine) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "Maktaba administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newAddUserCommand(cli),
		newResetPasswordCommand(cli),
		newMigrateCommand(cli),
		newReseedCommand(cli),
		newSlotsCommand(cli),
	)
	return cmd
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(cmd *cobra.Command) (string, error) {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		_ = cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func printf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
