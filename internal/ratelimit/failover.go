package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Failover is the production Limiter: it checks the shared store and degrades
// to the in-process fallback the moment the shared store errors. There are no
// blocking retries; rate limiting is advisory risk-reduction, not a
// correctness boundary, so a store outage must never fail a request.
type Failover struct {
	primary  Store
	fallback Store
	breaker  *circuitBreaker
	logger   *slog.Logger
	degraded prometheus.Gauge
	limit    int
	window   time.Duration

	probeMu   sync.Mutex
	lastProbe time.Time
}

// probeInterval caps how often the open circuit re-checks the shared store.
const probeInterval = time.Second

// probeTimeout bounds the background recovery check so a hanging store does
// not accumulate probe goroutines.
const probeTimeout = 2 * time.Second

// probeKey is the sentinel window the recovery probe writes to, so probes
// never charge an admission against a real client's window.
const probeKey = "limiter-probe"

// NewFailover builds a failover limiter over primary with an in-process
// fallback. The degraded gauge may be nil.
func NewFailover(primary Store, limit int, window time.Duration, logger *slog.Logger, degraded prometheus.Gauge) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{
		primary:  primary,
		fallback: NewMemoryStore(),
		breaker:  newCircuitBreaker(),
		logger:   logger,
		degraded: degraded,
		limit:    limit,
		window:   window,
	}
}

// Allow never returns an error: a primary-store failure flips to the fallback
// silently, logging the degradation once per state change.
func (f *Failover) Allow(ctx context.Context, key string) (*Result, error) {
	if f.breaker.IsOpen() {
		result, err := f.fallback.Allow(ctx, key, f.limit, f.window)
		if err != nil {
			// The in-memory store cannot realistically fail; admit rather
			// than block traffic on a limiter bug.
			return allowAll(f.limit, f.window), nil
		}
		f.probePrimary()
		return result, nil
	}

	result, err := f.primary.Allow(ctx, key, f.limit, f.window)
	if err == nil {
		f.breaker.RecordSuccess()
		return result, nil
	}

	wasOpen := f.breaker.IsOpen()
	if f.breaker.RecordFailure() && !wasOpen {
		f.setDegraded(true)
		f.logger.Warn("shared rate limit store unavailable, using in-process fallback", "error", err)
	} else {
		f.logger.Debug("shared rate limit store error", "error", err)
	}

	result, ferr := f.fallback.Allow(ctx, key, f.limit, f.window)
	if ferr != nil {
		return allowAll(f.limit, f.window), nil
	}
	return result, nil
}

// probePrimary issues an occasional half-open check so the circuit can close
// again once the shared store recovers. The probe runs in the background
// against the sentinel key; the fallback already decided this request, and a
// degraded check must never wait out the shared store's timeout.
func (f *Failover) probePrimary() {
	f.probeMu.Lock()
	if time.Since(f.lastProbe) < probeInterval {
		f.probeMu.Unlock()
		return
	}
	f.lastProbe = time.Now()
	f.probeMu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()

		if _, err := f.primary.Allow(ctx, probeKey, f.limit, f.window); err != nil {
			f.breaker.RecordFailure()
			return
		}
		if f.breaker.RecordSuccess() {
			f.setDegraded(false)
			f.logger.Info("shared rate limit store recovered, leaving fallback mode")
		}
	}()
}

func (f *Failover) setDegraded(degraded bool) {
	if f.degraded == nil {
		return
	}
	if degraded {
		f.degraded.Set(1)
	} else {
		f.degraded.Set(0)
	}
}

func allowAll(limit int, window time.Duration) *Result {
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   time.Now().Add(window),
	}
}
