// Package workload drives a SQL statement through a connection pool from many
// goroutines at once. The CLI's exec command uses it to exercise a pool
// against a real database.
//
// Every iteration leases a handle, executes the statement and closes the
// handle, so at most min(Workers, Capacity) connections are busy at a time
// and the pool never opens more than Capacity of them.
//
// Acquire has no timeout. A cancelled context stops workers between
// iterations, not while they wait for a lease.
package workload

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/dbpool/pkg/connpool"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// Config describes a workload.
type Config struct {
	Query      string  // Statement executed on every iteration
	Args       []any   // Statement arguments
	Workers    int     // Concurrent goroutines (default 1)
	Iterations int     // Total executions across all workers
	RatePerSec float64 // Upper bound on executions per second (0 = unlimited)
}

// Result summarizes a finished workload.
type Result struct {
	Executed  int64          `json:"executed"`
	Failed    int64          `json:"failed"`
	Duration  time.Duration  `json:"duration"`
	PerSecond float64        `json:"per_second"`
	Pool      connpool.Stats `json:"pool"`
}

// Runner executes a workload against a pool.
type Runner struct {
	pool    *connpool.Pool
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger

	next     atomic.Int64
	executed atomic.Int64
	failed   atomic.Int64
}

// NewRunner creates a runner. The runner is single-use.
func NewRunner(pool *connpool.Pool, config Config, logger *zap.Logger) *Runner {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		pool:   pool,
		config: config,
		logger: logger.With(zap.String("component", "workload")),
	}
	if config.RatePerSec > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(config.RatePerSec), 1)
	}
	return r
}

// Run executes the workload and blocks until every iteration has finished,
// ctx is cancelled, or the pool reports a fatal error. Statement failures and
// failed connection opens are counted, not returned. Each failed open costs
// the pool a slot, so once all of them are gone the run aborts with the
// pool's exhaustion error.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	r.logger.Info("starting workload",
		zap.String("query", r.config.Query),
		zap.Int("workers", r.config.Workers),
		zap.Int("iterations", r.config.Iterations),
		zap.Float64("rate_per_sec", r.config.RatePerSec))

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < r.config.Workers; w++ {
		worker := w
		g.Go(func() error {
			return r.work(gctx, worker)
		})
	}
	err := g.Wait()

	duration := time.Since(start)
	result := &Result{
		Executed: r.executed.Load(),
		Failed:   r.failed.Load(),
		Duration: duration,
		Pool:     r.pool.Stats(),
	}
	if duration > 0 {
		result.PerSecond = float64(result.Executed) / duration.Seconds()
	}

	if err != nil {
		r.logger.Error("workload aborted",
			zap.Int64("executed", result.Executed),
			zap.Int64("failed", result.Failed),
			zap.Error(err))
		return result, err
	}

	r.logger.Info("workload completed",
		zap.Int64("executed", result.Executed),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", duration),
		zap.Float64("per_second", result.PerSecond))

	return result, nil
}

func (r *Runner) work(ctx context.Context, worker int) error {
	log := r.logger.With(zap.Int("worker", worker))

	for r.next.Add(1) <= int64(r.config.Iterations) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := r.iterate(ctx, log); err != nil {
			return err
		}
	}
	return nil
}

// iterate runs one lease: acquire, execute, release. Only fatal pool errors
// and release failures are returned.
func (r *Runner) iterate(ctx context.Context, log *zap.Logger) error {
	h, err := r.pool.Acquire()
	if err != nil {
		if poolerrors.IsFatal(err) {
			return err
		}
		r.failed.Add(1)
		log.Warn("failed to lease connection", zap.Error(err))
		return nil
	}

	if _, err := h.ExecContext(ctx, r.config.Query, r.config.Args...); err != nil {
		r.failed.Add(1)
		log.Debug("statement failed", zap.Uint64("lease", h.ID()), zap.Error(err))
	} else {
		r.executed.Add(1)
	}

	return h.Close()
}
