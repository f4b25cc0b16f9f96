package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Check probes one backend dependency.
type Check func(ctx context.Context) error

// Health tracks dependency checks and publishes them over gRPC health and HTTP.
type Health struct {
	checks map[string]Check
	server *health.Server
	log    zerolog.Logger

	mu   sync.RWMutex
	last map[string]string
}

func NewHealth(checks map[string]Check, log zerolog.Logger) *Health {
	return &Health{
		checks: checks,
		server: health.NewServer(),
		log:    log,
		last:   make(map[string]string, len(checks)),
	}
}

// Evaluate runs every check and updates the serving status of each one
// plus the overall "" service.
func (h *Health) Evaluate(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		status := healthpb.HealthCheckResponse_SERVING
		results[name] = "ok"
		if err := check(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			results[name] = err.Error()
			healthy = false
		}
		h.server.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", overall)

	h.mu.Lock()
	h.last = results
	h.mu.Unlock()
	return results, healthy
}

// Run re-evaluates the checks every interval until ctx is done.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval/2)
		if _, ok := h.Evaluate(checkCtx); !ok {
			h.log.Warn().Interface("checks", h.Snapshot()).Msg("health degraded")
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Snapshot returns the last evaluated results.
func (h *Health) Snapshot() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.last))
	for k, v := range h.last {
		out[k] = v
	}
	return out
}

// Handler serves the checks as JSON, 503 when any of them fails.
func (h *Health) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		results, ok := h.Evaluate(ctx)
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": results})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": results})
	}
}

// Serve runs the gRPC health server on addr until ctx is done.
func (h *Health) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(
		grpc.UnaryInterceptor(GRPCServerMetricsUnaryInterceptor()),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthpb.RegisterHealthServer(srv, h.server)

	go func() {
		<-ctx.Done()
		h.server.Shutdown()
		srv.GracefulStop()
	}()

	h.log.Info().Str("addr", addr).Msg("grpc health server listening")
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
