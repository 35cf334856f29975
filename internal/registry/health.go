package registry

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// ServiceStatus classifies one backend probe result.
type ServiceStatus string

const (
	StatusHealthy     ServiceStatus = "healthy"     // probe returned 200
	StatusUnhealthy   ServiceStatus = "unhealthy"   // probe returned non-200
	StatusUnavailable ServiceStatus = "unavailable" // probe failed at the transport level
)

// ServiceHealth is one service's probe outcome.
type ServiceHealth struct {
	Status    ServiceStatus `json:"status"`
	LatencyMs int64         `json:"latency_ms"`
}

// Report aggregates probe results over the whole route table. Overall is
// "healthy" iff every service is healthy, otherwise "degraded".
type Report struct {
	Overall  string                   `json:"status"`
	Services map[string]ServiceHealth `json:"services"`
}

// Checker probes every configured backend concurrently. It is a read-only
// diagnostic, separate from the request pipeline.
type Checker struct {
	registry *Registry
	client   *http.Client
	timeout  time.Duration
}

// NewChecker builds a Checker with the given per-probe timeout.
func NewChecker(registry *Registry, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		registry: registry,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
	}
}

// Check fans a health probe out to every service and collects the report.
// Individual probe failures are part of the report, never an error.
func (c *Checker) Check(ctx context.Context) Report {
	routes := c.registry.Routes()
	results := make([]ServiceHealth, len(routes))

	g, gctx := errgroup.WithContext(ctx)
	for i, route := range routes {
		g.Go(func() error {
			results[i] = c.probe(gctx, route)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Overall: "healthy", Services: make(map[string]ServiceHealth, len(routes))}
	for i, route := range routes {
		report.Services[route.Name] = results[i]
		if results[i].Status != StatusHealthy {
			report.Overall = "degraded"
		}
	}
	return report
}

func (c *Checker) probe(ctx context.Context, route Route) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, route.BaseURL+route.HealthPath, nil)
	if err != nil {
		return ServiceHealth{Status: StatusUnavailable}
	}

	resp, err := c.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return ServiceHealth{Status: StatusUnavailable, LatencyMs: latency}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return ServiceHealth{Status: StatusHealthy, LatencyMs: latency}
	}
	return ServiceHealth{Status: StatusUnhealthy, LatencyMs: latency}
}
