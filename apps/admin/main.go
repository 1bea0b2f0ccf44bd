package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/audit"
	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/profile"
	logsvc "github.com/trezcool/pesantren/services/logger"
	"github.com/trezcool/pesantren/storage/database"
	sqlxrepos "github.com/trezcool/pesantren/storage/database/sqlx"
)

func main() {
	conf, err := core.LoadConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	validate, translator := core.NewValidator(conf.Locale)
	profile.InitValidators(validate, translator)
	auth.InitValidators(validate, translator)

	cli := &commandLine{
		conf:     conf,
		validate: validate,
		out:      os.Stdout,
		connect: func(cli *commandLine) error {
			return connect(cli, logger)
		},
	}
	err = cli.run(os.Args[1:])
	if cli.db != nil {
		_ = cli.db.Close()
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
		os.Exit(1)
	}
}

// connect opens the app database and wires the services on top of it.
// The CLI never signs anyone in: sessions are revoked in memory and no mail is sent.
func connect(cli *commandLine, logger core.Logger) error {
	db, err := database.Open(cli.conf)
	if err != nil {
		return err
	}
	cli.db = db

	auditLog := audit.NewLogger(sqlxrepos.NewActivityWriter(db), logger)
	cli.identities = sqlxrepos.NewIdentityRepository(db)
	cli.profileSvc = profile.NewService(
		sqlxrepos.NewProfileRepository(db), sqlxrepos.NewScopeResolver(db), nil, auditLog, logger, cli.conf,
	)
	cli.authSvc = auth.NewService(
		cli.identities, cli.profileSvc, auth.NewMemoryRevoker(), nil, auditLog, logger, cli.conf,
	)
	return nil
}
