package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrJamesThe3rd/lipa/internal/app"
	"github.com/MrJamesThe3rd/lipa/internal/auth"
	"github.com/MrJamesThe3rd/lipa/internal/config"
	"github.com/MrJamesThe3rd/lipa/internal/database"
	lipaHttp "github.com/MrJamesThe3rd/lipa/internal/http"
	adminHandler "github.com/MrJamesThe3rd/lipa/internal/http/admin"
	callbackHandler "github.com/MrJamesThe3rd/lipa/internal/http/callback"
	invoiceHandler "github.com/MrJamesThe3rd/lipa/internal/http/invoice"
	paymentHandler "github.com/MrJamesThe3rd/lipa/internal/http/payment"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := database.Migrate(ctx, a.DB); err != nil {
		return err
	}

	if cfg.Mpesa.CallbackBaseURL == "" {
		slog.Warn("CALLBACK_URL is not set, the provider cannot deliver results")
	}

	var operatorAuth func(http.Handler) http.Handler
	if cfg.Auth.JWTSecret != "" {
		operatorAuth = auth.Middleware([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	} else {
		slog.Warn("JWT_SECRET is not set, operator routes are disabled")
	}

	var (
		paymentH  = paymentHandler.NewHandler(a.Checkout, a.Payments)
		callbackH = callbackHandler.NewHandler(a.Processor)
		adminH    = adminHandler.NewHandler(a.Payments, a.Sweeper)
		invoiceH  = invoiceHandler.NewHandler(a.Invoices)
	)

	router := lipaHttp.New(paymentH, callbackH, adminH, invoiceH, lipaHttp.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OperatorAuth:   operatorAuth,
		Metrics:        promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
	})

	go a.Sweeper.Run(ctx)

	if a.Consumer != nil {
		go func() {
			if err := a.Consumer.Run(ctx); err != nil {
				slog.Error("settlement consumer stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("starting server", "port", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	return nil
}
