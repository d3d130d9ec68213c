package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus

	// RedisErrors counts failed Redis calls made from request handlers.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_redis_errors_total",
		Help: "Redis errors by operation",
	}, []string{"operation"})

	// ActiveWebSockets is the number of open realtime connections on this instance.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_active_websockets",
		Help: "Open realtime connections",
	})
)

// InitMetrics returns the process-wide fiberprometheus instance. It registers
// on the default registry, so it is created at most once.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New(serviceName)
	})
	return prom
}

// MetricsMiddleware records request counts and latencies.
func MetricsMiddleware(p *fiberprometheus.FiberPrometheus) fiber.Handler {
	return p.Middleware
}
