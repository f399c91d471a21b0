package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"time"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/trezcool/gamifica/apps/api/di/dig"
	echoapi "github.com/trezcool/gamifica/apps/api/echo"
	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/gamification"
)

const driftCheckTimeout = 5 * time.Second

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		gameSvc gamification.Service,
		server *echoapi.Server,
	) {
		apiLogger.Info(fmt.Sprintf("gamifica API starting : version %q, env %q", conf.Build, conf.Env))
		core.ParseEmailTemplates(apiLogger)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		if syncer, ok := apiLogger.(interface{ Sync() }); ok {
			defer syncer.Sync() // flush buffered entries and pending rollbar items
		}
		defer apiLogger.Info("gamifica API stopped")

		publishDebugVars(conf, gameSvc)
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		go server.Start()

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
			shutdown(server, conf.Server.ShutdownTimeout, apiLogger)
		}
	}))
}

// publishDebugVars exposes the reward settings and the ledger health under /debug/vars.
// /debug/pprof is registered by the net/http/pprof import.
func publishDebugVars(conf *core.Config, gameSvc gamification.Service) {
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	reward := expvar.NewMap("reward")
	reward.Add("reading_share_percent", int64(conf.Reward.ReadingSharePercent))
	pass := new(expvar.Float)
	pass.Set(conf.Reward.PassPercent)
	reward.Set("pass_percent", pass)

	expvar.Publish("rank_bands", expvar.Func(func() interface{} { return conf.Rank.Bands }))
	expvar.Publish("llm_models", expvar.Func(func() interface{} { return conf.LLM.Models }))

	// users whose cached XP no longer matches their ledger
	expvar.Publish("ledger_drift", expvar.Func(func() interface{} {
		ctx, cancel := context.WithTimeout(context.Background(), driftCheckTimeout)
		defer cancel()

		balances, err := gameSvc.VerifyLedger(ctx, "")
		if err != nil {
			return map[string]string{"error": err.Error()}
		}
		drifting := make(map[string]int)
		for _, b := range balances {
			if d := b.Drift(); d != 0 {
				drifting[b.Username] = d
			}
		}
		return drifting
	}))
}

// shutdown gives outstanding requests until timeout to complete, then forces the server down.
func shutdown(server *echoapi.Server, timeout time.Duration, logger core.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
