package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/David-Byun/wemake/internal/realtime"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	record := func(name string, ping func(context.Context) error) {
		start := time.Now()
		if err := ping(ctx); err != nil {
			checks[name] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
			return
		}
		checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	if h.db != nil {
		record("database", h.db.Ping)
	} else {
		checks["database"] = Check{Status: "fail", Message: "not configured"}
		allHealthy = false
	}

	// Redis is optional outside production.
	if h.redis != nil {
		record("redis", h.redis.Ping)
	}

	if h.feed != nil {
		record("feed", h.pingFeed)
	} else {
		checks["feed"] = Check{Status: "fail", Message: "not configured"}
		allHealthy = false
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	hostname, _ := os.Hostname()
	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Instance:  hostname,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	h.JSON(w, statusCode, resp)
}

// pingFeed round-trips an event through the feed on a private channel.
func (h *Handler) pingFeed(ctx context.Context) error {
	channel := "health:" + ulid.Make().String()
	got := make(chan struct{}, 1)

	sub, err := h.feed.Subscribe(ctx, channel, realtime.Filter{}, func(realtime.Event) {
		select {
		case got <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	e, err := realtime.NewEvent(realtime.EventInsert, "health", map[string]string{"ping": "pong"})
	if err != nil {
		return err
	}
	if err := h.feed.Publish(ctx, channel, e); err != nil {
		return err
	}

	select {
	case <-got:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "wemake",
		Version: version,
	})
}
