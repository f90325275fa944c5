package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finease/internal/cli"
	"finease/internal/config"
	apphttp "finease/internal/http"
	"finease/internal/log"
	"finease/internal/services"
)

const (
	startupTimeout  = 2 * time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig(os.Stdout, (*config.Config).Validate)

	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	res := cli.OpenBackend(startCtx, logger, cfg, false)
	cancelStart()

	verifier, err := cli.NewVerifier(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize token verifier", log.FieldError, err, "auth_mode", cfg.AuthMode)
		_ = res.Cleanup()
		os.Exit(1)
	}

	var opts []services.Option
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	svc := services.NewTransactionService(res.Store, opts...)

	srv := apphttp.NewServer(":"+cfg.Port, svc, verifier, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             logger,
	})

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	go func() {
		logger.Info("Starting finease server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			"auth_mode", cfg.AuthMode,
			"events", res.Publisher != nil,
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			_ = res.Cleanup()
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
