package question

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const prewarmConcurrency = 4

// PrewarmWorker keeps today's and tomorrow's daily sets in the cache so the
// first session of the day does not pay for the load.
type PrewarmWorker struct {
	provider *Provider
	kinds    []string
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewPrewarmWorker(provider *Provider, kinds []string, interval, timeout time.Duration, logger zerolog.Logger) *PrewarmWorker {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &PrewarmWorker{
		provider: provider,
		kinds:    kinds,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With().Str("component", "question_prewarm_worker").Logger(),
	}
}

// Run blocks until context cancellation.
func (w *PrewarmWorker) Run(ctx context.Context) error {
	if w.provider == nil || len(w.kinds) == 0 {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick warms every configured kind once and returns how many sets loaded.
func (w *PrewarmWorker) Tick(ctx context.Context) int {
	now := w.provider.now()
	days := []time.Time{now, now.Add(24 * time.Hour)}

	var warmed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prewarmConcurrency)
	for _, kind := range w.kinds {
		for _, day := range days {
			g.Go(func() error {
				cctx, cancel := context.WithTimeout(gctx, w.timeout)
				defer cancel()

				if _, err := w.provider.GetQuestions(cctx, DailyScope(kind, day)); err != nil {
					w.logger.Warn().Err(err).Str("kind", kind).Time("day", day).Msg("prewarm failed")
					return nil
				}
				warmed.Add(1)
				return nil
			})
		}
	}
	_ = g.Wait()

	w.logger.Debug().Int64("warmed", warmed.Load()).Msg("daily sets prewarmed")
	return int(warmed.Load())
}
