package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/profile"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var (
		na    auth.NewAccount
		roles []string
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create an account; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.readPassword("Enter password: ")
			if err != nil {
				return err
			}
			na.Password, na.PasswordConfirm = pwd, pwd
			return cli.addUser(cmd, na, roles)
		},
	}
	cmd.Flags().StringVar(&na.Name, "name", "", "display name")
	cmd.Flags().StringVar(&na.Username, "username", "", "username (optional)")
	cmd.Flags().StringVar(&na.Email, "email", "", "email")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "assigned role, may be repeated (eg. --role admin)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (cli *commandLine) addUser(cmd *cobra.Command, na auth.NewAccount, roles []string) error {
	if err := na.Validate(cli.validate); err != nil {
		return err
	}
	np := profile.NewProfile{Name: na.Name, Username: na.Username, Roles: roles}
	if err := np.Validate(cli.validate); err != nil {
		return err
	}
	identity, err := cli.authSvc.Register(cmd.Context(), na, roles...)
	if err != nil {
		return errors.Wrap(err, "registering account")
	}
	_, _ = fmt.Fprintf(cli.out, "created %s (%s)\n", identity.Email, identity.ID)
	return nil
}
