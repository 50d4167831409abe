// Package health tracks reachability of the gateway's backing stores and
// exposes it through the standard gRPC health service.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// overall ("") status.
const ServiceName = "shardgate.Gateway"

// probeTimeout bounds a single probe.
const probeTimeout = 5 * time.Second

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// Report is a point-in-time health summary.
type Report struct {
	Serving bool              `json:"serving"`
	Checks  map[string]string `json:"checks"`
}

// Checker runs probes periodically and publishes the result.
type Checker struct {
	interval time.Duration
	server   *grpchealth.Server
	logger   *zap.Logger

	mu     sync.RWMutex
	probes map[string]Probe
	last   map[string]error
	ran    bool
}

// NewChecker creates a Checker that probes every interval once Run is called.
// Until the first check completes the gateway reports NOT_SERVING.
//
// Precondition: interval must be > 0; logger must be non-nil.
func NewChecker(interval time.Duration, logger *zap.Logger) *Checker {
	c := &Checker{
		interval: interval,
		server:   grpchealth.NewServer(),
		logger:   logger,
		probes:   make(map[string]Probe),
		last:     make(map[string]error),
	}
	c.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// AddProbe registers a named probe.
func (c *Checker) AddProbe(name string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
}

// Register attaches the gRPC health service to s.
func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.server)
}

// Check runs every probe once and publishes the outcome.
//
// Postcondition: The gRPC status is SERVING iff every probe succeeded.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	probes := make(map[string]Probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.RUnlock()

	results := make(map[string]error, len(probes))
	for name, p := range probes {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p(pctx)
		cancel()
		if err != nil {
			c.logger.Warn("health probe failed", zap.String("probe", name), zap.Error(err))
		}
		results[name] = err
	}

	c.mu.Lock()
	c.last = results
	c.ran = true
	c.mu.Unlock()

	report := c.Report()
	if report.Serving {
		c.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		c.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return report
}

// Report returns the outcome of the most recent Check.
func (c *Checker) Report() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r := Report{Serving: c.ran, Checks: make(map[string]string, len(c.last))}
	for name, err := range c.last {
		if err != nil {
			r.Checks[name] = "failing"
			r.Serving = false
			continue
		}
		r.Checks[name] = "ok"
	}
	return r
}

// Run checks immediately and then every interval until ctx is done.
//
// Postcondition: Returns ctx.Err(); the gRPC status is NOT_SERVING afterwards.
func (c *Checker) Run(ctx context.Context) error {
	c.Check(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

func (c *Checker) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
}
