package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusDegraded = "degraded"

	pingTimeout = 2 * time.Second
)

// Pinger is satisfied by *pgxpool.Pool and *bus.Bus.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is a named thing readiness depends on. An Optional dependency
// being down degrades readiness instead of failing it: the API keeps serving
// when only the event bus is unreachable, because publishing is best effort.
type Dependency struct {
	Name     string
	Pinger   Pinger
	Optional bool
}

type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Ready reports whether the result should be served as 200.
func (r HealthResult) Ready() bool {
	return r.Status != StatusDown
}

type Checker struct {
	deps   []Dependency
	logger *slog.Logger
	gauge  *prometheus.GaugeVec
}

// NewChecker registers voice_scheduler_health_check_up{dependency} on reg.
func NewChecker(logger *slog.Logger, reg prometheus.Registerer, deps ...Dependency) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "voice_scheduler",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		deps:   deps,
		logger: logger.With("component", "health"),
		gauge:  gauge,
	}
}

func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: StatusUp}
}

// Readiness pings all dependencies concurrently, each bounded by pingTimeout.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	var (
		mu     sync.Mutex
		result = HealthResult{Status: StatusUp, Checks: make(map[string]CheckResult, len(c.deps))}
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range c.deps {
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(gctx, pingTimeout)
			defer cancel()
			err := d.Pinger.Ping(pingCtx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.WarnContext(ctx, "health check failed", "dependency", d.Name, "optional", d.Optional, "error", err)
				result.Checks[d.Name] = CheckResult{Status: StatusDown, Error: err.Error()}
				c.gauge.WithLabelValues(d.Name).Set(0)
				switch {
				case !d.Optional:
					result.Status = StatusDown
				case result.Status == StatusUp:
					result.Status = StatusDegraded
				}
				return nil
			}
			result.Checks[d.Name] = CheckResult{Status: StatusUp}
			c.gauge.WithLabelValues(d.Name).Set(1)
			return nil
		})
	}
	_ = g.Wait()

	return result
}
