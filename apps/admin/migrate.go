package main

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/trezcool/goose"

	"github.com/trezcool/pesantren/storage/database"
)

var (
	gooseRunFunc = runMigrations            // mockable
	createDBFunc = database.CreateIfNotExist // mockable
)

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [VERSION]",
		Short: "Migrate the database schema",
		Long: `Migrate the database schema. Commands:
  up          apply every pending migration
  up-by-one   apply the next migration
  up-to V     apply the migrations up to version V
  down        roll back the last migration
  down-to V   roll back the migrations down to version V
  redo        roll back the last migration then apply it again
  version     print the current version`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var db *sql.DB
			if cli.db != nil {
				db = cli.db.DB
			}
			return gooseRunFunc(cli, args[0], db, args[1:]...)
		},
	}
}

func runMigrations(cli *commandLine, command string, db *sql.DB, args ...string) error {
	fsys, dir := database.Migrations, database.MigrationsDir
	switch command {
	case "up":
		return goose.Up(db, fsys, dir)
	case "up-by-one":
		return goose.UpByOne(db, fsys, dir)
	case "up-to":
		v, err := parseVersion(command, args)
		if err != nil {
			return err
		}
		return goose.UpTo(db, fsys, dir, v)
	case "down":
		return goose.Down(db, fsys, dir)
	case "down-to":
		v, err := parseVersion(command, args)
		if err != nil {
			return err
		}
		return goose.DownTo(db, fsys, dir, v)
	case "redo":
		return goose.Redo(db, fsys, dir)
	case "version":
		v, err := goose.GetDBVersion(db)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cli.out, "version %d\n", v)
		return nil
	default:
		return fmt.Errorf("%q: no such command", command)
	}
}

func parseVersion(command string, args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%s must be of form: migrate %s VERSION", command, command)
	}
	v, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version must be a number (got '%s')", args[0])
	}
	return v, nil
}
