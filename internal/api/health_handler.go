package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newsly/newsly/internal/pkg/httputil"
)

// BrokerStatus reports whether the job bus connection is up.
// *queue.Publisher implements it.
type BrokerStatus interface {
	IsConnected() bool
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status string                    `json:"status"` // healthy | degraded | unhealthy
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the health of one dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // up | down | degraded
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

const notConfigured = "not configured"

// HealthChecker probes Postgres, Redis and RabbitMQ. Any dependency may
// be nil and is then reported as not configured.
type HealthChecker struct {
	db        *sql.DB
	redis     *redis.Client
	broker    BrokerStatus
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(db *sql.DB, rdb *redis.Client, broker BrokerStatus) *HealthChecker {
	return &HealthChecker{db: db, redis: rdb, broker: broker, startTime: time.Now()}
}

// HandleHealth always answers 200; the body carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status: overallStatus(checks),
		Uptime: time.Since(hc.startTime).Round(time.Second).String(),
		Checks: checks,
	})
}

//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "alive"})
}

// HandleReadiness answers 503 while the database is unreachable.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := overallStatus(checks)
	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]any{
		"ready":  status == http.StatusOK,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 2)
	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()

	checks := map[string]ComponentCheck{"rabbitmq": hc.checkBroker()}
	for i := 0; i < 2; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return timed(time.Second, func() error { return hc.db.PingContext(ctx) })
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redis == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return timed(500*time.Millisecond, func() error { return hc.redis.Ping(ctx).Err() })
}

func (hc *HealthChecker) checkBroker() ComponentCheck {
	if hc.broker == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	if !hc.broker.IsConnected() {
		return ComponentCheck{Status: "down", Message: "connection closed"}
	}
	return ComponentCheck{Status: "up", Message: "connected"}
}

// timed runs ping and grades it; slower than slow is degraded.
func timed(slow time.Duration, ping func() error) ComponentCheck {
	start := time.Now()
	err := ping()
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > slow {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// overallStatus is unhealthy when a configured database is down, degraded
// when any other configured dependency is impaired, healthy otherwise.
func overallStatus(checks map[string]ComponentCheck) string {
	if db := checks["database"]; db.Status == "down" && db.Message != notConfigured {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == "degraded" || (c.Status == "down" && c.Message != notConfigured) {
			return "degraded"
		}
	}
	return "healthy"
}
