package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dtroode/zklogin-recovery/internal/api/http/router"
	httpServer "github.com/dtroode/zklogin-recovery/internal/api/http/server"
	"github.com/dtroode/zklogin-recovery/internal/config"
	"github.com/dtroode/zklogin-recovery/internal/logger"
	"github.com/dtroode/zklogin-recovery/internal/metrics"
	"github.com/dtroode/zklogin-recovery/internal/model"
	"github.com/dtroode/zklogin-recovery/internal/ratelimit"
	"github.com/dtroode/zklogin-recovery/internal/repository/postgres"
	"github.com/dtroode/zklogin-recovery/internal/server"
	"github.com/dtroode/zklogin-recovery/internal/service"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewServerConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	var registry model.IdentityRegistry
	if cfg.Database.Enabled {
		db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatal("failed to initialize storage", "error", err)
		}
		defer db.Close()
		registry = postgres.NewIdentityRepository(db)
	} else {
		logger.Warn("identity registry disabled")
	}

	m := metrics.New()
	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	if limiter == nil {
		logger.Warn("rate limiting disabled", "rps", cfg.RateLimit.RPS, "burst", cfg.RateLimit.Burst)
	}

	derivationService := service.NewDerivation(cfg.Salt.Seed, registry, m, logger)

	h := router.New(derivationService, m, limiter, cfg.HTTP.TrustProxy, logger).Register()
	srv := httpServer.NewHTTPServer(h, fmt.Sprintf(":%s", cfg.HTTP.Port))

	var sl model.SecurityLayer

	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		err := s.Start(sl)
		if err != nil {
			logger.Error("failed to start server", "error", err)
			stop()
		}
	}(srv)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", srv.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
