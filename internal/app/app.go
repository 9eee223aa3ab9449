package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quest-engine/internal/auth"
	"github.com/gokatarajesh/quest-engine/internal/auth/jwt"
	"github.com/gokatarajesh/quest-engine/internal/config"
	"github.com/gokatarajesh/quest-engine/internal/db/memory"
	"github.com/gokatarajesh/quest-engine/internal/db/repository"
	"github.com/gokatarajesh/quest-engine/internal/leaderboard"
	"github.com/gokatarajesh/quest-engine/internal/logging"
	"github.com/gokatarajesh/quest-engine/internal/quest/api"
	"github.com/gokatarajesh/quest-engine/internal/question"
	"github.com/gokatarajesh/quest-engine/internal/reward"
	"github.com/gokatarajesh/quest-engine/internal/server"
	"github.com/gokatarajesh/quest-engine/internal/session"
	"github.com/gokatarajesh/quest-engine/internal/session/wsapi"
	"github.com/gokatarajesh/quest-engine/internal/submission"
	ws "github.com/gokatarajesh/quest-engine/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	workers   []worker
	bgCancels []context.CancelFunc
}

type worker struct {
	name string
	run  func(context.Context) error
}

// stores are the persistence seams chosen by STORAGE_BACKEND.
type stores struct {
	quests    question.QuestStore
	attempts  reward.AttemptStore
	snapshots leaderboard.SnapshotStore
}

// New bootstraps configs, logger, Postgres, Redis and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Str("storage", cfg.Storage.Backend).Msg("starting application bootstrap")

	loc, err := cfg.Rewards.Location()
	if err != nil {
		return nil, err
	}
	ranks, err := cfg.Rewards.Ranks()
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	a := &Application{
		cfg:       cfg,
		logger:    logger,
		redis:     redisClient,
		bgCancels: make([]context.CancelFunc, 0, 4),
	}

	st, err := a.openStores(ctx)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	// Question sets
	questionCache := question.NewCache(redisClient, cfg.Questions.CacheTTL)
	provider := question.NewProvider(st.quests, questionCache, question.ProviderOptions{
		DailyCount: cfg.Questions.DailyCount,
		Location:   loc,
	}, logger)

	// Rewards and leaderboards
	leaderboardSvc := leaderboard.NewService(redisClient, logger, leaderboard.ServiceOptions{
		TopN:     cfg.Leaderboard.SnapshotTopN,
		EntryTTL: cfg.Leaderboard.EntryTTL,
		Location: loc,
	})
	rewardSvc := reward.NewService(st.attempts, reward.ServiceOptions{
		MaxCommitRetries: cfg.Rewards.MaxCommitRetries,
		Metrics:          reward.NewMetrics(prometheus.DefaultRegisterer),
		Recorder:         leaderboardSvc,
	}, logger)
	submissionSvc := submission.NewService(provider, rewardSvc, submission.Options{
		Ranks:    ranks,
		Location: loc,
	}, logger)

	// Transport
	tokens := jwt.NewManager(jwt.TokenConfig{
		Secret: []byte(cfg.Security.JWTSecret),
		Issuer: cfg.Security.JWTIssuer,
	})
	wsHub := ws.NewHub(logger)
	sessionHandler := wsapi.NewHandler(provider, submissionSvc, wsHub, wsapi.Options{
		Progress:         session.NewRedisProgressStore(redisClient, cfg.Session.ProgressTTL, logger),
		AutoAdvanceDelay: cfg.Session.AutoAdvanceDelay,
		Upgrader:         server.NewWSUpgrader(cfg.CORS.AllowedOrigins),
	}, logger)
	lbHTTPHandler := leaderboard.NewHTTPHandler(leaderboardSvc, st.snapshots, logger)

	pingers := map[string]server.Pinger{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	if a.pool != nil {
		pingers["postgres"] = a.pool.Ping
	}

	a.http = server.NewHTTPServer(cfg, logger, server.Routes{
		Protect:     auth.Middleware(tokens, logger),
		Quests:      api.NewHandlers(provider, submissionSvc, logger),
		Sessions:    sessionHandler,
		Leaderboard: lbHTTPHandler.HandleGet,
		Pingers:     pingers,
	})

	// Background work
	a.workers = append(a.workers,
		worker{"leaderboard broadcaster", leaderboard.NewBroadcaster(redisClient, wsHub, "", logger).Run},
		worker{"question prewarm worker", question.NewPrewarmWorker(
			provider,
			cfg.Questions.DailyKinds,
			cfg.Questions.PrewarmInterval,
			cfg.Questions.FetchTimeout,
			logger,
		).Run},
	)
	if interval := cfg.Leaderboard.SnapshotInterval; interval > 0 && st.snapshots != nil {
		a.workers = append(a.workers, worker{"leaderboard snapshot worker", leaderboard.NewSnapshotWorker(
			leaderboardSvc,
			st.snapshots,
			interval,
			cfg.Leaderboard.SnapshotTopN,
			logger,
		).Run})
	}

	return a, nil
}

func (a *Application) openStores(ctx context.Context) (stores, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		quests := memory.NewQuestStore()
		if err := quests.LoadSeedFile(a.cfg.Storage.SeedFile); err != nil {
			return stores{}, fmt.Errorf("load quest seed: %w", err)
		}
		a.logger.Warn().Str("seed", a.cfg.Storage.SeedFile).Msg("using in-memory stores; attempts are lost on restart")
		return stores{quests: quests, attempts: memory.NewAttemptStore()}, nil
	default:
		pool, err := pgxpool.New(ctx, a.cfg.Postgres.ConnString())
		if err != nil {
			return stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		return stores{
			quests:    repository.NewQuestRepository(pool),
			attempts:  repository.NewAttemptRepository(pool),
			snapshots: repository.NewSnapshotRepository(pool),
		}, nil
	}
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return runErr
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	for _, w := range a.workers {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func(w worker) {
			if err := w.run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg(w.name + " stopped")
			}
		}(w)
	}
}
