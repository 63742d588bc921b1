package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"agenda-service/internal/app"
	"agenda-service/internal/config"
	appLog "agenda-service/internal/log"
	"agenda-service/internal/server"
	"agenda-service/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run serves until ctx is done and returns the process exit code. Deferred
// cleanup runs on every path.
func run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", os.Getenv("AGENDA_CONFIG"), "Path to config file")
	if err := fs.Parse(args); err != nil {
		appLog.Error("invalid arguments", err)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", *configPath)
		return 1
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	if err := cfg.ValidateServer(); err != nil {
		appLog.Error("invalid config", err)
		return 1
	}

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		appLog.Error("failed to connect to db", err, "driver", cfg.Database.Driver)
		return 1
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		appLog.Error("failed to migrate db", err)
		return 1
	}

	appInstance := app.New(st, cfg)

	syncJob, err := appInstance.StartSync(ctx)
	if err != nil {
		appLog.Error("failed to schedule google calendar sync", err)
		return 1
	}
	if syncJob != nil {
		defer func() { <-syncJob.Stop().Done() }()
	}

	router := gin.New()
	router.Use(gin.Recovery(), app.RequestLogger())
	appInstance.Register(router)

	appLog.Info("agenda service starting",
		"listen", cfg.Listen,
		"driver", cfg.Database.Driver,
		"google", cfg.Google.Enabled(),
	)
	if err := server.Run(ctx, cfg.Listen, router); err != nil {
		appLog.Error("http server failed", err)
		return 1
	}
	appLog.Info("agenda service stopped")
	return 0
}
