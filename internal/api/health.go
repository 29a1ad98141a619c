package api

import (
	"context"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Packages      int               `json:"packages"`
}

// Pinger is a dependency with a liveness check (database, cache).
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// BrokerStatus reports the event broker connection.
type BrokerStatus interface {
	IsConnected() bool
}

type HealthHandler struct {
	db        Pinger
	cache     Pinger       // nil when REDIS_URL is unset
	broker    BrokerStatus // nil when MQTT_BROKER_URL is unset
	catalog   interface{ Len() int }
	providers map[string]bool
	version   string
	startTime time.Time
}

func NewHealthHandler(db, cache Pinger, broker BrokerStatus, catalog interface{ Len() int }, providers map[string]bool, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		cache:     cache,
		broker:    broker,
		catalog:   catalog,
		providers: providers,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK
	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	// Database check
	if err := h.db.HealthCheck(ctx); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// MQTT check
	if h.broker != nil {
		if h.broker.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			degrade()
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	if h.cache != nil {
		if err := h.cache.HealthCheck(ctx); err != nil {
			checks["cache"] = "error"
			degrade()
		} else {
			checks["cache"] = "ok"
		}
	} else {
		checks["cache"] = "not_configured"
	}

	for name, configured := range h.providers {
		if configured {
			checks[name] = "configured"
		} else {
			checks[name] = "not_configured"
		}
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.catalog != nil {
		resp.Packages = h.catalog.Len()
	}
	WriteJSON(w, httpStatus, resp)
}
