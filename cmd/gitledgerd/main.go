// Package main starts the gitledger API server process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/gitledger/gitledger/internal/app"
	"github.com/gitledger/gitledger/internal/config"
)

var (
	configPath  = flag.String("config", "", "path to the YAML configuration file")
	migrateOnly = flag.Bool("migrate", false, "run database migrations and exit")
)

func main() {
	flag.Parse()

	cfg := config.AppConfig{ConfigPath: *configPath}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *migrateOnly {
		if err := app.Migrate(ctx, cfg); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	if err := app.RunServer(ctx, cfg); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
