// Copyright 2025-2026 KMT Marketplace

// Command wagateway runs the WhatsApp session gateway for the KMT
// classifieds backend. It owns the single linked device session, serves the
// operator QR page, and exposes the send endpoint the CRUD backend uses to
// deliver phone verification codes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mau.fi/util/exzerolog"

	"github.com/kmt/wagateway/pkg/gateway"
	"github.com/kmt/wagateway/pkg/gateway/authstore"
	"github.com/kmt/wagateway/pkg/gateway/wameow"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	writeExample := flag.Bool("example-config", false, "print the example config and exit")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("wagateway %s (%s, built %s)\n", Tag, Commit, BuildTime)
		return
	}
	if *writeExample {
		fmt.Print(gateway.ExampleConfig)
		return
	}

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	exzerolog.SetupDefaults(log)
	if cfg.LinkSecret == "" {
		log.Warn().Msg("link_secret is empty, the QR page and API will refuse all requests")
	}

	store := authstore.NewFSStore(cfg.AuthDir, *log)
	dialer := wameow.NewDialer(wameow.Config{
		DeviceName:     cfg.DeviceName,
		ConnectTimeout: cfg.ConnectTimeout(),
	}, *log)
	sup := gateway.NewSupervisor(cfg, store, dialer, *log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Startup mirrors the backend it serves: an initialization failure is
	// logged and the HTTP surface still comes up, so the operator can watch
	// the session recover (or restart the service) via /qr and /api/status.
	if err := sup.Initialize(ctx); err != nil {
		log.Error().Err(err).Msg("Initial session setup failed, continuing without a session")
	}

	api := gateway.NewAPI(sup, cfg.LinkSecret, *log)
	server := api.NewServer(cfg.ListenAddr)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Operator HTTP surface listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown did not finish cleanly")
	}
	sup.Close()
}
