// Command chatserver runs the terminal chat broadcast server.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatserver/internal/admin"
	"chatserver/internal/broadcast"
	"chatserver/internal/config"
	"chatserver/internal/filetransfer"
	"chatserver/internal/listener"
	"chatserver/internal/obs"
	"chatserver/internal/roster"
	"chatserver/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional YAML config file overlay")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		return 2
	}

	var tlsConfig *tls.Config
	if cfg.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertPath, cfg.TLSKeyPath)
		if err != nil {
			logger.Error("failed to load TLS material", "err", err)
			return 2
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	var auditStore *store.Store
	if cfg.AuditDBPath != "" {
		auditStore, err = store.Open(cfg.AuditDBPath)
		if err != nil {
			logger.Error("failed to open audit store", "err", err)
			return 1
		}
		defer auditStore.Close()
	}

	r := roster.New()
	if auditStore != nil {
		bans, err := auditStore.AllBans()
		if err != nil {
			logger.Error("failed to load ban list", "err", err)
			return 1
		}
		r.LoadBans(bans)
		logger.Info("loaded persisted bans", "count", len(bans))
	}

	bus := broadcast.New(cfg.BroadcastBuf)
	ft := filetransfer.New(r)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln := listener.New(cfg.Addr, tlsConfig, int64(cfg.MaxClients), cfg.RateLimit, r, bus, ft, logger)
	obsSrv := obs.New(r, obs.Counters{
		Connections:          ln.ConnectedCount,
		BroadcastSubscribers: bus.Count,
	})

	errCh := make(chan error, 2)
	go func() {
		if err := ln.Run(ctx); err != nil {
			errCh <- fmt.Errorf("listener: %w", err)
		}
	}()
	go func() {
		if err := obsSrv.Run(ctx, cfg.ObsAddr); err != nil {
			errCh <- fmt.Errorf("observability server: %w", err)
		}
	}()

	adminCtx, adminCancel := context.WithCancel(ctx)
	defer adminCancel()
	console := admin.New(r, logger, os.Stdin, os.Stdout)
	if auditStore != nil {
		console.Audit = auditStore
	}
	console.Shutdown = stop
	go console.Run(adminCtx)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server error", "err", err)
		stop()
		return 1
	}

	// Give in-flight sessions a moment to flush their Leave broadcasts.
	time.Sleep(200 * time.Millisecond)
	return 0
}
