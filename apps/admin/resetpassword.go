package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/maktaba/core/user"
)

func newResetPasswordCommand(cli *commandLine) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password. The password is prompted next.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			return cli.resetPassword(cmd.Context(), email, pwd)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "The user's email")
	return cmd
}

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	usr, err := cli.usrSvc.GetByEmail(email)
	if err != nil {
		return err
	}
	var hashed user.User
	if err := hashed.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return cli.users.Modify(ctx, usr.ID, func(u *user.User) {
		u.PasswordHash = hashed.PasswordHash
		u.UpdatedAt = time.Now().UTC()
	}).Err()
}
