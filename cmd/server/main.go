package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	router "github.com/dkeye/meshcall/internal/adapters/http"
	"github.com/dkeye/meshcall/internal/adapters/redisstore"
	"github.com/dkeye/meshcall/internal/adapters/rtc"
	wsignal "github.com/dkeye/meshcall/internal/adapters/signal"
	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/app/orch"
	"github.com/dkeye/meshcall/internal/auth"
	"github.com/dkeye/meshcall/internal/config"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/directory"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(cfg.Level())
	cfg.WatchLogLevel(zerolog.SetGlobalLevel)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(parent context.Context, cfg *config.Config) error {
	ctx, stop := context.WithCancelCause(parent)
	defer stop(nil)

	dir, err := directory.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer dir.Close()

	ice, err := rtc.ICEServers(cfg.ICEServers)
	if err != nil {
		return err
	}

	hub := app.NewHub(cfg.NodeID, app.SimplePolicy{})
	var (
		registry core.ConnectionRegistry
		members  core.MembershipStore
		bus      *redisstore.Bus
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		registry = redisstore.NewRegistry(rdb)
		members = redisstore.NewMembership(rdb)
		bus = redisstore.NewBus(rdb, cfg.NodeID)
		hub.SetRemote(bus)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis registry")
	} else {
		registry = app.NewRegistry()
		members = app.NewRoomManager()
		log.Info().Msg("using in-memory registry, single node only")
	}

	o := &orch.Orchestrator{
		Registry:     registry,
		Members:      members,
		Rooms:        dir,
		Users:        dir,
		Hub:          hub,
		PeersTimeout: cfg.PeersTimeout,
	}
	verifier := auth.NewVerifier(cfg.JWTSecret)
	ctl := wsignal.NewSignalWSController(o, hub, verifier,
		wsignal.NewRoomRateLimiter(cfg.JoinRate.Limit, cfg.JoinRate.Interval),
		wsignal.Options{
			ReadLimit:      cfg.ReadLimit,
			PingPeriod:     cfg.PingPeriod,
			WriteWait:      cfg.WriteWait,
			SendBuffer:     cfg.SendBuffer,
			AllowedOrigins: cfg.AllowedOrigins,
		})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Signal:     ctl,
		Hub:        hub,
		Directory:  dir,
		Auth:       verifier,
		ICEServers: ice,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	var wg conc.WaitGroup
	if bus != nil {
		wg.Go(func() {
			if err := bus.Run(ctx, hub); err != nil {
				stop(fmt.Errorf("node bus: %w", err))
			}
		})
	}
	wg.Go(func() {
		log.Info().Str("addr", addr).Str("node", cfg.NodeID).Msg("meshcall server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop(err)
		}
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	wg.Wait()

	if err := context.Cause(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
