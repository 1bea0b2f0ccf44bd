package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trezcool/pesantren/core/auth"
)

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var login string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset an account's password; the new password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.readPassword("Enter password: ")
			if err != nil {
				return err
			}
			return cli.resetPassword(cmd, login, pwd)
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "email or username of the account")
	_ = cmd.MarkFlagRequired("login")
	return cmd
}

func (cli *commandLine) resetPassword(cmd *cobra.Command, login, pwd string) error {
	identity, err := cli.lookup(cmd, login)
	if err != nil {
		return err
	}
	pc := auth.PasswordChange{Password: pwd, PasswordConfirm: pwd, Current: "-"}
	if err = pc.Validate(cli.validate, "", "", identity.Email); err != nil {
		return err
	}
	if err = cli.authSvc.ResetPassword(cmd.Context(), identity.Email, pwd); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "password of %s reset\n", identity.Email)
	return nil
}
