package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trezcool/pesantren/core/rbac"
)

// operator is the subject the CLI acts as: an admin that is no account.
var operator = rbac.NewSubject(rbac.Admin, []rbac.Role{rbac.Admin})

func (cli *commandLine) grantCmd() *cobra.Command {
	var (
		login string
		roles []string
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Replace the roles assigned to an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.grant(cmd, login, roles)
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "email or username of the account")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "assigned role, may be repeated")
	_ = cmd.MarkFlagRequired("login")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func (cli *commandLine) grant(cmd *cobra.Command, login string, roles []string) error {
	identity, err := cli.lookup(cmd, login)
	if err != nil {
		return err
	}
	p, err := cli.profileSvc.SetRoles(cmd.Context(), operator, "", identity.ID, roles)
	if err != nil {
		return err
	}
	tags := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		tags = append(tags, r.String())
	}
	_, _ = fmt.Fprintf(cli.out, "%s: %s\n", identity.Email, strings.Join(tags, ", "))
	return nil
}
