package main

import (
	"context"
	"os"
	"os/signal"

	"agenda-service/internal/cli"
	appLog "agenda-service/internal/log"
	"agenda-service/internal/present"
)

func main() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	appLog.SetLevel(appLog.ParseLevel(level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.RootCmd().ExecuteContext(ctx); err != nil {
		present.RenderNotice(os.Stderr, present.NoticeFor(err))
		stop()
		os.Exit(1)
	}
}
