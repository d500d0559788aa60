// Package main is the entry point for the browser-control gateway daemon:
// it launches one shared Chromium instance, wires the Session Manager, the
// Gateway WebSocket endpoint, and the HTTP surface of spec §6 together,
// and serves until a shutdown signal arrives.
//
// Grounded on netresearch-ldap-manager's cmd/ldap-manager/main.go:
// zerolog console output, a signal channel for SIGTERM/SIGINT/SIGHUP, a
// server-error channel raced against the signal channel, and a bounded
// graceful-shutdown context.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/brennhill/browserctl-gateway/internal/config"
	"github.com/brennhill/browserctl-gateway/internal/driver"
	"github.com/brennhill/browserctl-gateway/internal/gateway"
	"github.com/brennhill/browserctl-gateway/internal/httpapi"
	"github.com/brennhill/browserctl-gateway/internal/ratelimit"
	"github.com/brennhill/browserctl-gateway/internal/session"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().Int("port", cfg.Port).Msg("browserctl-gateway starting")

	pw, err := playwright.Run()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start playwright")
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to launch browser")
	}
	defer browser.Close()

	manager := session.New(browser, session.Config{
		MaxSessions:        cfg.MaxSessions,
		IdleTimeout:        cfg.IdleTimeout,
		MaxStepsPerSession: cfg.MaxStepsPerSession,
		Viewport:           driver.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
		ScreencastQuality:  cfg.ScreencastQuality,
		ScreencastMaxFPS:   cfg.ScreencastMaxFPS,
		SessionTokenBytes:  cfg.SessionTokenBytes,
		TempDir:            cfg.TempDir,
	}, log.Logger)
	defer manager.Close()

	limiter := ratelimit.New(nil)
	defer limiter.Close()

	gw := gateway.New(manager, limiter, log.Logger)
	defer gw.Close()

	httpSrv := httpapi.New(manager, log.Logger)

	mux := http.NewServeMux()
	httpSrv.Routes(mux)
	mux.Handle("/ws", gw)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server error")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
		os.Exit(1)
	}

	log.Info().Msg("graceful shutdown complete")
}
