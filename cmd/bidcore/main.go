// Command bidcore runs the auction bid pipeline: the HTTP and websocket
// surface, the batch persister and the session monitor, all in one
// process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/flashbid/internal/auction"
	"github.com/dreamware/flashbid/internal/auth"
	"github.com/dreamware/flashbid/internal/bidding"
	"github.com/dreamware/flashbid/internal/broadcast"
	"github.com/dreamware/flashbid/internal/config"
	"github.com/dreamware/flashbid/internal/core"
	"github.com/dreamware/flashbid/internal/durable"
	"github.com/dreamware/flashbid/internal/hotstore"
	"github.com/dreamware/flashbid/internal/monitor"
	"github.com/dreamware/flashbid/internal/persist"
	"github.com/dreamware/flashbid/internal/session"
)

// broadcastPageSize is the leaderboard slice pushed to websocket
// subscribers on every change.
const broadcastPageSize = 50

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	if cfg.Debug {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := durable.NewPostgres(ctx, cfg.DatabaseURL, durable.PoolOptions{
		Size:     cfg.DurablePoolSize,
		Overflow: cfg.DurablePoolOverflow,
		Proxied:  cfg.ProxyMode,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("durable store unavailable")
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema bootstrap failed")
	}

	hot, err := hotstore.NewRedis(cfg.RedisURL, cfg.HotStoreMaxConnections, log)
	if err != nil {
		log.Fatal().Err(err).Msg("hot store unavailable")
	}
	defer hot.Close()

	params := session.NewParamCache(hot, db, cfg.CacheTTL(), log)
	tokens := auth.NewTokenManager(cfg.SecretKey, cfg.TokenTTL())
	authn := auth.NewAuthenticator(tokens, auth.NewCache(cfg.TokenCacheMaxEntries, cfg.TokenCacheTTL()), hot, log)

	reader := bidding.NewReader(params, hot, db, log)
	bcast := broadcast.NewBroadcaster(func(ctx context.Context, sessionID uuid.UUID) (*auction.LeaderboardSnapshot, error) {
		return reader.Leaderboard(ctx, sessionID, 1, broadcastPageSize)
	}, log)
	processor := bidding.NewProcessor(params, hot, bcast, log)

	persister := persist.NewPersister(hot, db, cfg.BatchInterval(), log)
	mon := monitor.NewMonitor(db, hot, persister, bcast, cfg.MonitorInterval(), log)

	srv := &server{
		core:     core.New(authn, tokens, processor, reader, bcast, mon, db, hot, log),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		log:      log,
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		persister.Start()
		return nil
	})
	g.Go(func() error {
		mon.Start()
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("bidcore listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutCtx)

		mon.Stop()
		persister.Stop()
		// One last drain so accepted bids are durable before exit.
		if err := persister.Cycle(shutCtx); err != nil {
			log.Error().Err(err).Msg("final persist cycle failed")
		}
		bcast.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("bidcore exited with error")
	}
	log.Info().Msg("bidcore stopped")
}
