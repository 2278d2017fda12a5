package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	bank "github.com/goliatone/go-bank"
	"github.com/goliatone/go-bank/activitymap"
	"github.com/goliatone/go-bank/cmd/bankd/config"
)

type App struct {
	config *gconfig.Container[*config.BaseConfig]
	bunDB  *bun.DB
	repo   bank.RepositoryManager
	auth   *bank.Authenticator
	auther *bank.RouteAuthenticator
	ctrl   *bank.Controller
	srv    router.Server[*fiber.App]
	fiber  *fiber.App
	logger *glog.BaseLogger
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("bankd"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	if cfg.Raw().GetDebug() {
		fmt.Println("============")
		fmt.Println(print.MaybePrettyJSON(cfg.Raw()))
		fmt.Println("============")
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}
	defer app.bunDB.Close()

	if err := WithBank(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	logger := app.GetLogger("bankd")
	addr := app.Config().GetServer().GetAddress()

	go func() {
		logger.Info("listening", "address", addr)
		if err := app.srv.Serve(addr); err != nil {
			logger.Error("server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	logger.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, app.Config().GetServer().GetShutdownTimeout())
	defer cancel()

	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.Config().GetPersistence()

	var db *bun.DB
	switch cfg.GetDriver() {
	case "postgres":
		sqldb, err := sql.Open("pgx", cfg.GetDSN())
		if err != nil {
			return err
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.GetDSN())
		if err != nil {
			return err
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if cfg.GetDebug() {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.GetPingTimeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "database not reachable")
	}

	group, err := bank.Migrate(ctx, db)
	if err != nil {
		return err
	}
	if group != nil && !group.IsZero() {
		app.GetLogger("persistence").Info("migrated", "group", group.String())
	}

	app.bunDB = db
	app.repo = bank.NewRepositoryManager(db)
	app.repo.MustValidate()

	return nil
}

func WithBank(ctx context.Context, app *App) error {
	authCfg := app.Config().GetAuth()
	adminCfg := app.Config().GetAdmin()

	_, err := bank.EnsureAdmin(ctx, app.repo.Users(), bank.AdminSeed{
		Username: adminCfg.GetUsername(),
		Email:    adminCfg.GetEmail(),
		Password: adminCfg.GetPassword(),
	}, app.GetLogger("bootstrap"))
	if err != nil {
		return err
	}

	relay := bank.NewRelay(app.repo, bank.WithRelayLogger(app.GetLogger("relay")))
	sink := bank.MultiActivitySink{
		relay,
		activitymap.NewLogSink(app.GetLogger("audit")),
	}

	app.auth = bank.NewAuthenticator(app.repo, authCfg).
		WithLogger(app.GetLogger("auth")).
		WithActivitySink(sink)

	app.auther = bank.NewHTTPAuthenticator(app.auth, authCfg).
		WithLogger(app.GetLogger("auth:http"))

	app.ctrl = bank.NewController(app.repo, app.auth,
		bank.WithControllerLogger(app.GetLogger("bank:ctrl")),
		bank.WithControllerActivitySink(sink),
		bank.WithControllerRelay(relay),
		bank.WithControllerCardTokenizer(bank.NewCardTokenizer(authCfg.GetCardTokenKey())),
		bank.WithControllerDebug(app.Config().GetDebug()),
	)

	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	app.srv = router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:          true,
			EnablePrintRoutes:     app.Config().GetDebug(),
			StrictRouting:         false,
			DisableStartupMessage: !app.Config().GetDebug(),
		}))
	})
	app.fiber = app.srv.WrappedRouter()

	app.srv.Router().WithLogger(app.GetLogger("router"))

	bank.RegisterRoutes(app.srv.Router(), app.ctrl, app.auther)

	app.fiber.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
