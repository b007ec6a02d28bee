package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	dig_container "github.com/trezcool/maktaba/apps/api/di/dig"
	echoapi "github.com/trezcool/maktaba/apps/api/echo"
	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/session"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/core/user"
	appfs "github.com/trezcool/maktaba/fs"
)

const sessionSweepInterval = time.Minute

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		slot store.Slot,
		bus store.Bus,
		sessions *session.Manager,
		lib *library.Service,
		validate *validator.Validate,
		translator ut.Translator,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)
		library.InitValidators(validate, translator, lib)

		if err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf); err != nil {
			apiLogger.Fatal("parsing email templates", err)
		}
		if err := user.LoadCommonPasswords(appfs.FS, "assets/common-passwords.txt.gz"); err != nil {
			apiLogger.Fatal("loading common passwords", err)
		}

		defer func() {
			if err := slot.Close(); err != nil {
				apiLogger.Error("closing slot storage", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		workers, ctx := errgroup.WithContext(ctx)

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.Publish("sessions", expvar.Func(func() interface{} { return sessions.Len() }))

		if conf.Server.DebugHost != "" {
			go func() {
				if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
					apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
				}
			}()
		}

		// =========================================================================
		// Start background workers

		workers.Go(func() error { return sessions.Run(ctx, sessionSweepInterval) })

		// writes made by other processes on the same storage reach our stores
		if w, ok := slot.(store.Watcher); ok && conf.Storage.Watch {
			workers.Go(func() error {
				return errors.Wrap(store.Relay(ctx, w, bus), "relaying slot changes")
			})
		}

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case <-ctx.Done():
			apiLogger.Error("background worker stopped", workers.Wait())

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer scancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(sctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}

		cancel()
		if err := workers.Wait(); err != nil && errors.Cause(err) != context.Canceled {
			apiLogger.Error("stopping background workers", err)
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
