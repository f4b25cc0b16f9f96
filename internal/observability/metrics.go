package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roomchat_ws_active_connections",
			Help: "Number of active websocket sessions.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_ws_events_total",
			Help: "Total number of websocket session events.",
		},
		[]string{"kind", "event"},
	)
	busPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_bus_published_total",
			Help: "Events published to the fan-out bus by event type.",
		},
		[]string{"type"},
	)
	busPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_bus_publish_errors_total",
			Help: "Total number of fan-out bus publish failures.",
		},
	)
	busDeliveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_bus_deliveries_total",
			Help: "Total number of bus messages enqueued to local sessions.",
		},
	)
	registryChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_registry_channels",
			Help: "Channels with at least one local subscriber.",
		},
	)
	slowConsumerEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_ws_evictions_total",
			Help: "Sessions closed because their outbound buffer was full.",
		},
		[]string{"kind"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_amqp_publish_errors_total",
			Help: "Total number of AMQP analytics publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		busPublishedTotal,
		busPublishErrorsTotal,
		busDeliveriesTotal,
		registryChannels,
		slowConsumerEvictionsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler exposes the default Prometheus registry.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncSlowConsumerEviction(kind string) {
	slowConsumerEvictionsTotal.WithLabelValues(kind).Inc()
}

func IncBusPublished(eventType string) {
	busPublishedTotal.WithLabelValues(eventType).Inc()
}

func SetRegistryChannels(n int) {
	registryChannels.Set(float64(n))
}

func IncBusPublishError() {
	busPublishErrorsTotal.Inc()
}

func AddBusDeliveries(n int) {
	busDeliveriesTotal.Add(float64(n))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
