package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/commits"
	"github.com/gitledger/gitledger/internal/config"
	"github.com/gitledger/gitledger/internal/db"
	"github.com/gitledger/gitledger/internal/events"
	apihttp "github.com/gitledger/gitledger/internal/http"
	"github.com/gitledger/gitledger/internal/http/api/admin"
	"github.com/gitledger/gitledger/internal/http/api/front"
	"github.com/gitledger/gitledger/internal/ledger"
	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/registry"
	"github.com/gitledger/gitledger/internal/security"
	"github.com/gitledger/gitledger/internal/settings"
)

// shutdownTimeout bounds how long in-flight requests may run after the
// process receives a stop signal.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database, runs migrations, and seeds the treasury
// account.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(conf.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	return db.EnsureTreasury(conn, conf.Pricing.TreasuryAddress)
}

// RunServer boots the ledger API server with database-backed components and
// serves until the context is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}
	configureLogging(conf.Log)

	conn, err := db.Open(conf.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errTreasury := db.EnsureTreasury(conn, conf.Pricing.TreasuryAddress); errTreasury != nil {
		return errTreasury
	}
	if errSnapshot := settings.RefreshDBConfigSnapshot(ctx, conn); errSnapshot != nil {
		log.WithError(errSnapshot).Warn("load settings snapshot failed")
	}
	if errSeed := ensureBootstrapOperator(conn); errSeed != nil {
		return errSeed
	}

	publisher, err := events.NewPublisher(conf.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	ledgerService := ledger.NewService(conn, conf.Pricing, conf.Ledger, publisher)
	registryService := registry.NewService(conn, publisher)
	commitService := commits.NewService(conn, ledgerService, conf.Commits, publisher)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), apihttp.RequestLogMiddleware())

	front.RegisterFrontRoutes(engine, conn, conf, front.Services{
		Registry: registryService,
		Commits:  commitService,
		Ledger:   ledgerService,
	})
	admin.RegisterAdminRoutes(engine, conn, conf)

	events.NewRetentionCleaner(conn).Start(ctx)

	server := &http.Server{
		Addr:              conf.Server.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		log.Info("server stopped")
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// configureLogging applies the configured level and, when a file is set,
// routes output through a size-rotated log file alongside stderr.
func configureLogging(cfg config.LogConfig) {
	level, err := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if strings.TrimSpace(cfg.File) == "" {
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
}

// ensureBootstrapOperator creates the first operator when the operators
// table is empty. The generated password is printed to the log exactly once;
// it is not recoverable afterwards.
func ensureBootstrapOperator(conn *gorm.DB) error {
	var count int64
	if err := conn.Model(&models.Operator{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	password, err := security.GenerateRandomString(16)
	if err != nil {
		return err
	}
	hashed, errHash := security.HashPassword(password)
	if errHash != nil {
		return errHash
	}
	operator := models.Operator{
		Username:        "admin",
		Password:        hashed,
		Active:          true,
		IsSuperOperator: true,
		Permissions:     datatypes.JSON([]byte("[]")),
	}
	if errCreate := conn.Create(&operator).Error; errCreate != nil {
		return errCreate
	}
	log.Warnf("created bootstrap operator %q with password %s, change it after first login", operator.Username, password)
	return nil
}
