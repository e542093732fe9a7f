// Package sweep periodically purges expired records from the store.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/org/secretshare/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// DefaultInterval is how often a sweep runs.
const DefaultInterval = time.Minute

var (
	deletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "secretshare_sweep_deleted_total",
		Help: "Records removed by the expiry sweeper.",
	}, []string{"kind"})

	errorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "secretshare_sweep_errors_total",
		Help: "Sweeps that failed and will be retried on the next tick.",
	})

	lastRunSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "secretshare_sweep_last_success_timestamp_seconds",
		Help: "Unix time of the last successful sweep.",
	})
)

func init() {
	prometheus.MustRegister(deletedTotal, errorsTotal, lastRunSeconds)
}

// Config controls what a Sweeper removes and how often.
type Config struct {
	Interval time.Duration
	// SweepRequests also removes activated requests past their deadline. Off by default:
	// request records are otherwise kept indefinitely.
	SweepRequests bool
	// PendingRequestTTL, when SweepRequests is set and the TTL is positive, removes requests
	// that were never opened and are older than the TTL.
	PendingRequestTTL time.Duration
	Now               func() time.Time
}

// Result is the outcome of one sweep.
type Result struct {
	Secrets  int64
	Requests int64
}

// Sweeper deletes expired secrets (and optionally requests) on a fixed interval.
type Sweeper struct {
	store storage.Backend
	cfg   Config

	runs    atomic.Int64
	lastRun atomic.Time
}

// New creates a Sweeper.
func New(store storage.Backend, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{store: store, cfg: cfg}
}

// Run sweeps once per interval until ctx is cancelled. Failures are logged and retried
// on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.cfg.Interval).Bool("requests", s.cfg.SweepRequests).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errorsTotal.Inc()
				log.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

// SweepOnce performs a single pass. Deleting nothing is not an error.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	var res Result
	now := s.cfg.Now().UTC()

	n, err := s.store.DeleteExpiredSecrets(ctx, now)
	if err != nil {
		return res, fmt.Errorf("deleting expired secrets: %w", err)
	}
	res.Secrets = n
	deletedTotal.WithLabelValues("secret").Add(float64(n))

	if s.cfg.SweepRequests {
		var pendingBefore time.Time
		if s.cfg.PendingRequestTTL > 0 {
			pendingBefore = now.Add(-s.cfg.PendingRequestTTL)
		}
		n, err := s.store.DeleteExpiredRequests(ctx, now, pendingBefore)
		if err != nil {
			return res, fmt.Errorf("deleting expired requests: %w", err)
		}
		res.Requests = n
		deletedTotal.WithLabelValues("request").Add(float64(n))
	}

	s.runs.Inc()
	s.lastRun.Store(now)
	lastRunSeconds.Set(float64(now.Unix()))
	if res.Secrets > 0 || res.Requests > 0 {
		log.Info().Int64("secrets", res.Secrets).Int64("requests", res.Requests).Msg("expired records swept")
	}
	return res, nil
}

// Runs returns the number of successful sweeps.
func (s *Sweeper) Runs() int64 { return s.runs.Load() }

// LastRun returns the time of the last successful sweep, zero if none.
func (s *Sweeper) LastRun() time.Time { return s.lastRun.Load() }
