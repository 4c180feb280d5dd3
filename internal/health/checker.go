// Package health reports the agent's readiness through the standard grpc health service.
package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultInterval is how often dependencies are re-checked.
const DefaultInterval = 15 * time.Second

const checkTimeout = 3 * time.Second

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the routing policy can be evaluated (e.g. engine.RegoPolicy).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker keeps the overall ("") and shell service statuses of a grpc health server
// in line with the agent's dependencies. Nil dependencies are skipped.
type Checker struct {
	srv      *health.Server
	pinger   Pinger
	policy   PolicyChecker
	services []string
	log      *slog.Logger
}

// NewChecker returns a Checker that publishes to srv for the overall status and each named service.
func NewChecker(srv *health.Server, pinger Pinger, policy PolicyChecker, log *slog.Logger, services ...string) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		srv:      srv,
		pinger:   pinger,
		policy:   policy,
		services: append([]string{""}, services...),
		log:      log,
	}
}

// Check runs every dependency check once, publishes the result and returns it.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if c.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.pinger.PingContext(pctx)
		cancel()
		if err != nil {
			c.log.WarnContext(ctx, "health: database ping failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if c.policy != nil {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.policy.HealthCheck(pctx)
		cancel()
		if err != nil {
			c.log.WarnContext(ctx, "health: routing policy check failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	for _, name := range c.services {
		c.srv.SetServingStatus(name, st)
	}
	return st
}

// Run checks immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}
