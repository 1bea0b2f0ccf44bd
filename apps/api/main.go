package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	echoapi "github.com/trezcool/pesantren/apps/api/echo"
	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/audit"
	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/guard"
	"github.com/trezcool/pesantren/core/metrics"
	"github.com/trezcool/pesantren/core/profile"
	"github.com/trezcool/pesantren/core/session"
	emailsvc "github.com/trezcool/pesantren/services/email"
	logsvc "github.com/trezcool/pesantren/services/logger"
	s3store "github.com/trezcool/pesantren/services/storage/s3"
	rediscache "github.com/trezcool/pesantren/storage/cache/redis"
	"github.com/trezcool/pesantren/storage/database"
	sqlxrepos "github.com/trezcool/pesantren/storage/database/sqlx"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.LoadConfig()
	if err != nil {
		return errors.Wrap(err, "loading config")
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()
	if err = database.Migrate(db.DB); err != nil {
		return err
	}

	// set up stores
	var revoker auth.Revoker = auth.NewMemoryRevoker()
	if conf.Redis.URL != "" {
		rr, err := rediscache.NewRevoker(conf.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "connecting to redis")
		}
		defer func() { _ = rr.Close() }()
		revoker = rr
	}

	var avatars profile.AvatarStore
	if conf.Bucket.Name != "" {
		if avatars, err = s3store.NewAvatarStore(context.Background(), conf.Bucket); err != nil {
			return errors.Wrap(err, "setting up avatar bucket")
		}
	}

	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// set up services
	auditLog := audit.NewLogger(sqlxrepos.NewActivityWriter(db), dbLogger)
	profileSvc := profile.NewService(
		sqlxrepos.NewProfileRepository(db), sqlxrepos.NewScopeResolver(db), avatars, auditLog, logger, conf,
	)
	authSvc := auth.NewService(
		sqlxrepos.NewIdentityRepository(db), profileSvc, revoker, mailSvc, auditLog, logger, conf,
	)
	sessions := session.NewManager(session.NewStore(), authSvc, profileSvc, session.SystemClock, conf.Session, logger)
	defer sessions.Close()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := core.NewValidator(conf.Locale)
	profile.InitValidators(validate, translator)
	auth.InitValidators(validate, translator)
	if err = auth.RegisterTranslations(translator); err != nil {
		return errors.Wrap(err, "registering translations")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err = metrics.Register(reg); err != nil {
		return errors.Wrap(err, "registering metrics")
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	debugSrv := &http.Server{Addr: conf.Server.DebugAddress, Handler: http.DefaultServeMux}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		AuthSvc:    authSvc,
		ProfileSvc: profileSvc,
		Sessions:   sessions,
		Guard:      guard.New(conf.Session, session.SystemClock),
		Validate:   validate,
		Translator: translator,
		Gatherer:   reg,
	})

	var g errgroup.Group
	g.Go(func() error {
		if err := debugSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
		return nil
	})
	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		err = errors.Wrap(err, "server error")

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
			if err = server.Close(); err != nil {
				err = errors.Wrap(err, "could not force stop server")
			}
		}
	}

	_ = debugSrv.Close()
	_ = g.Wait()
	return err
}
