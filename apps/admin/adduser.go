package main

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/user"
)

type addUserOptions struct {
	email   string
	name    string
	isAdmin bool
}

func newAddUserCommand(cli *commandLine) *cobra.Command {
	opts := &addUserOptions{}
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or upgrade an existing one. The password is prompted next.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.email) == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), opts.name, opts.email, pwd, opts.isAdmin)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "user %s (%s) saved with roles %v\n", usr.Email, usr.ID, usr.Roles)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.email, "email", "", "The user's email")
	cmd.Flags().StringVar(&opts.name, "name", "", "The user's name (defaults to the email's local part)")
	cmd.Flags().BoolVar(&opts.isAdmin, "admin", false, "Grant every admin role")
	return cmd
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd string, isAdmin bool) (user.User, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name, false)

	roles := user.StudentRoles
	if isAdmin {
		roles = user.AdminRoles
	}

	usr, err := cli.usrSvc.GetByEmail(email)
	if err != nil {
		if err != user.ErrNotFound {
			return user.User{}, err
		}
		if name == "" {
			name = strings.SplitN(email, "@", 2)[0]
		}
		return cli.usrSvc.Create(ctx, user.NewUser{Name: name, Email: email, Password: pwd, Roles: roles})
	}

	var hashed user.User
	if err := hashed.SetPassword(pwd); err != nil {
		return user.User{}, errors.Wrap(err, "hashing password")
	}
	res := cli.users.Modify(ctx, usr.ID, func(u *user.User) {
		if name != "" {
			u.Name = name
		}
		if isAdmin {
			u.Roles = roles
		}
		u.SetActive(true)
		u.PasswordHash = hashed.PasswordHash
		u.UpdatedAt = time.Now().UTC()
	})
	if err := res.Err(); err != nil {
		return user.User{}, err
	}
	return cli.usrSvc.GetByID(usr.ID)
}
