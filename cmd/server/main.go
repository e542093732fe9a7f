package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/org/secretshare/internal/api"
	"github.com/org/secretshare/internal/config"
	"github.com/org/secretshare/internal/crypto"
	"github.com/org/secretshare/internal/exchange"
	"github.com/org/secretshare/internal/expiry"
	"github.com/org/secretshare/internal/secret"
	"github.com/org/secretshare/internal/shortid"
	"github.com/org/secretshare/internal/storage"
	"github.com/org/secretshare/internal/sweep"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfgFile := "config.yaml"
	if v := os.Getenv("SECRETSHARE_CONFIG"); v != "" {
		cfgFile = v
	}
	cfg, found, err := config.Load(cfgFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if !found {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store.Type).Msg("failed to open store")
	}
	defer store.Close()

	codec, err := crypto.NewCodec(cfg.Sharing.Shares, cfg.Sharing.Threshold)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid sharing configuration")
	}
	gate, err := crypto.NewGate(cfg.PasswordCost)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid password cost")
	}
	ids, err := shortid.NewAllocator(cfg.ShortIDLength)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid short id length")
	}

	vault := secret.NewVault(store, secret.Config{
		Codec: codec,
		Gate:  gate,
		Policy: expiry.Policy{
			MaxMinutes: cfg.Expiry.MaxMinutes,
			MaxHours:   cfg.Expiry.MaxHours,
			MaxDays:    cfg.Expiry.MaxDays,
		},
		IDs: ids,
	})
	exch := exchange.NewService(store, exchange.Config{IDs: ids, MaxPeriod: cfg.Requests.MaxPeriod})

	sweeper := sweep.New(store, sweep.Config{
		Interval:          cfg.Sweep.Interval,
		SweepRequests:     cfg.Sweep.Requests,
		PendingRequestTTL: cfg.Sweep.PendingTTL,
	})
	go sweeper.Run(ctx)

	srv := api.NewServer(store, vault, exch, api.Config{
		ListenAddr:  cfg.ListenAddr,
		TLSCertFile: cfg.TLSCertFile,
		TLSKeyFile:  cfg.TLSKeyFile,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("store", cfg.Store.Type).
		Int("shares", codec.Shares).
		Int("threshold", codec.Threshold).
		Msg("server started")
	<-ctx.Done()

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().
		Int64("sweeps", sweeper.Runs()).
		Time("last_sweep", sweeper.LastRun()).
		Msg("server stopped")
}

func openStore(ctx context.Context, cfg config.StoreConfig) (storage.Backend, error) {
	switch cfg.Type {
	case "postgres":
		store, err := storage.NewPostgresBackend(ctx, cfg.DBUrl)
		if err != nil {
			return nil, err
		}
		if err := storage.RunMigrations(cfg.DBUrl, cfg.MigrationsDir); err != nil {
			store.Close()
			return nil, err
		}
		log.Info().Msg("migrations applied")
		return store, nil
	case "redis":
		return storage.NewRedisBackend(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	default:
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return storage.NewMemoryBackend(), nil
	}
}
