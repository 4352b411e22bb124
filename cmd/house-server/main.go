package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"game-house/internal/backend"
	"game-house/internal/config"
	"game-house/internal/house"
	"game-house/internal/logging"
	"game-house/internal/store"
	"game-house/internal/timer"
	httptransport "game-house/internal/transport/http"
	"game-house/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	if err := logging.Init(cfg.Log); err != nil {
		panic(err)
	}
	defer func() { _ = logging.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		states house.StateStore
		svc    backend.Service
		db     httptransport.Pinger
	)
	if cfg.Server.PostgresDSN != "" {
		st, err := store.New(cfg.Server.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("store init failed")
		}
		defer st.Close()
		if err := st.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("db ping failed")
		}
		states = st
		svc = backend.NewLedger(st, cfg.Server.InitialBalance)
		db = st
	} else {
		log.Warn().Msg("POSTGRES_DSN not set, balances and snapshots stay in memory")
		states = store.NewMemoryStates()
		svc = backend.NewMemory(cfg.Server.InitialBalance)
	}

	reg := timer.NewRegistry(timer.NewThreadDriver(cfg.Server.TimerResolution(), cfg.Server.TimerIdleTimeout()))
	h := house.New(cfg.Catalog, reg, states, svc)
	if err := h.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("house start failed")
	}
	if cfg.Server.CatalogPath != "" {
		cfg.Catalog.Watch(ctx, cfg.Server.CatalogReload())
	}

	router := httptransport.NewRouter(h, cfg.Server, db, ws.NewServer(h))
	httptransport.LogRoutes(router)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("house server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := h.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("house stop failed")
	}
}
