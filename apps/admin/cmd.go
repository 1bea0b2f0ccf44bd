package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/profile"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errEmptyPassword = errors.New("password is required")
)

type commandLine struct {
	conf       *core.Config
	db         *sqlx.DB
	identities auth.Repository
	authSvc    auth.Service
	profileSvc profile.Service
	validate   *validator.Validate
	out        io.Writer

	// connect opens the database and wires the services before a command needing them runs.
	connect func(cli *commandLine) error
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Pesantren administration tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cli.out)
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cli.connect == nil || cli.db != nil || cmd.Name() == "createdb" {
			return nil
		}
		return cli.connect(cli)
	}
	root.AddCommand(
		cli.createDBCmd(),
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.grantCmd(),
	)
	return root
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func (cli *commandLine) createDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "createdb",
		Short: "Create the app database user and database if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return createDBFunc(cli.conf)
		},
	}
}

// readPassword prompts for a password without echoing it.
func (cli *commandLine) readPassword(prompt string) (string, error) {
	_, _ = fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}

// lookup finds the identity signing in with login, an email or a username.
func (cli *commandLine) lookup(cmd *cobra.Command, login string) (auth.Identity, error) {
	ctx := cmd.Context()
	login = core.CleanString(login, true /* lower */)
	email := login
	if !strings.Contains(login, "@") {
		var err error
		if email, err = cli.identities.ResolveUsernameToEmail(ctx, login); err != nil {
			return auth.Identity{}, errors.Wrapf(err, "finding %q", login)
		}
	}
	identity, err := cli.identities.GetIdentityByEmail(ctx, email)
	if err != nil {
		return auth.Identity{}, errors.Wrapf(err, "finding %q", login)
	}
	return identity, nil
}

// describe renders err for the terminal, listing the fields of a validation error.
func describe(err error) string {
	ve, ok := errors.Cause(err).(*core.ValidationError)
	if !ok {
		return err.Error()
	}
	lines := make([]string, 0, len(ve.Fields)+1)
	if ve.Err != nil && len(ve.Fields) == 0 {
		lines = append(lines, ve.Err.Error())
	}
	for _, f := range ve.Fields {
		lines = append(lines, f.Field+": "+f.Error)
	}
	return strings.Join(lines, "\n")
}
