package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/centerionware/smartbillsplitter-sub001/internal/config"
	"github.com/centerionware/smartbillsplitter-sub001/internal/health"
	"github.com/centerionware/smartbillsplitter-sub001/internal/logger"
	"github.com/centerionware/smartbillsplitter-sub001/internal/relay/api"
	"github.com/centerionware/smartbillsplitter-sub001/internal/relay/kv"
)

func main() {
	log := logger.New("billsync-relay")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Int("redis_backends", len(cfg.RedisAddrs)).
		Bool("postgres_backend", cfg.PostgresDSN != "").
		Bool("memory_backend", cfg.MemoryBackend).
		Msg("Relay starting…")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// -------- KV backends -------------------
	var backends []kv.Store
	var checkers []health.Checker
	for _, addr := range cfg.RedisAddrs {
		r, err := kv.NewRedis(ctx, addr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Str("addr", addr).Msg("Redis backend unavailable")
		}
		defer func() { _ = r.Close() }()
		backends = append(backends, r)
		checkers = append(checkers, health.NewPingChecker(r.Name(), r, log))
	}
	if cfg.PostgresDSN != "" {
		p, err := kv.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Postgres backend unavailable")
		}
		defer func() { _ = p.Close() }()
		backends = append(backends, p)
		checkers = append(checkers, health.NewPingChecker(p.Name(), p, log))
	}
	if cfg.MemoryBackend {
		backends = append(backends, kv.NewMemory())
	}
	store := kv.NewFederation(log, backends...)

	// -------- Health monitor ---------------
	monitor := health.NewMonitor(log, checkers...)
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second
	for _, c := range checkers {
		go c.Start(ctx, interval)
	}
	go monitor.Start(ctx, interval)

	// -------- Router & Server --------------
	handler := api.NewHandler(store, log)
	router := api.NewRouter(handler, monitor, api.NewMetrics())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server…")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}
