package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/marchand/essence/internal/config"
	"github.com/marchand/essence/internal/events"
	"github.com/marchand/essence/internal/gateway"
	"github.com/marchand/essence/internal/handler"
	"github.com/marchand/essence/internal/logger"
	"github.com/marchand/essence/internal/middleware"
	"github.com/marchand/essence/internal/notification"
	"github.com/marchand/essence/internal/repository"
	"github.com/marchand/essence/internal/service"
	"github.com/marchand/essence/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(os.Stdout, cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Msg("starting essence")

	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Msg("migrations applied")

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	store := repository.New(pool)

	gw := gateway.NewHTTPClient(gateway.Config{
		Environment: cfg.Gateway.Environment,
		BaseURL:     cfg.Gateway.BaseURL,
		Email:       cfg.Gateway.Email,
		Password:    cfg.Gateway.Password,
	}, log)

	sender := notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		FromName: cfg.Email.FromName,
	}, log)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSUrl != "" {
		natsPub, err := events.Connect(cfg.NATSUrl, log)
		if err != nil {
			// Events are best-effort; a down broker must not block checkout.
			log.Warn().Err(err).Msg("nats unavailable, order events disabled")
		} else {
			publisher = natsPub
			defer natsPub.Close()
		}
	}

	if cfg.Metrics.Enabled {
		telemetry.Init(cfg.Metrics.Namespace)
	}

	orderService := service.NewOrderService(store, sender, publisher, log)
	reconciler := service.NewReconciler(store, gw, sender, publisher, log, cfg.Gateway.RedirectURL)
	verifier := service.NewSessionVerifier(store)

	e := buildServer(cfg, log)
	orderHandler := handler.NewOrderHandler(orderService)
	webhookHandler := handler.NewWebhookHandler(reconciler, gw, log)
	handler.RegisterRoutes(e, orderHandler, webhookHandler, verifier, pool, cfg.Metrics.Enabled)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Info().Str("addr", addr).Msg("listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildServer(cfg *config.Config, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(log)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestLogger(log))
	if cfg.Metrics.Enabled {
		e.Use(middleware.HTTPMetrics(cfg.Metrics.Namespace))
	}

	return e
}
