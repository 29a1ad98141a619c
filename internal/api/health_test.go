package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubPinger struct{ err error }

func (p stubPinger) HealthCheck(context.Context) error { return p.err }

type stubBroker bool

func (b stubBroker) IsConnected() bool { return bool(b) }

type fixedLen int

func (n fixedLen) Len() int { return int(n) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		cache      Pinger
		broker     BrokerStatus
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name: "all_ok", db: stubPinger{}, cache: stubPinger{}, broker: stubBroker(true),
			wantCode: http.StatusOK, wantStatus: "healthy",
			wantChecks: map[string]string{"database": "ok", "cache": "ok", "mqtt": "ok"},
		},
		{
			name: "optional_not_configured", db: stubPinger{},
			wantCode: http.StatusOK, wantStatus: "healthy",
			wantChecks: map[string]string{"cache": "not_configured", "mqtt": "not_configured"},
		},
		{
			name: "broker_down_degrades", db: stubPinger{}, broker: stubBroker(false),
			wantCode: http.StatusOK, wantStatus: "degraded",
			wantChecks: map[string]string{"mqtt": "disconnected"},
		},
		{
			name: "database_down", db: stubPinger{err: errors.New("refused")}, cache: stubPinger{err: errors.New("refused")},
			wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy",
			wantChecks: map[string]string{"database": "error", "cache": "error"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, tt.cache, tt.broker, fixedLen(3), map[string]bool{"wompi": true}, "v1.0.0", time.Now())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			m := decodeBody(t, rec)
			if m["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", m["status"], tt.wantStatus)
			}
			if m["packages"] != float64(3) {
				t.Errorf("packages = %v", m["packages"])
			}
			checks := m["checks"].(map[string]any)
			for k, want := range tt.wantChecks {
				if checks[k] != want {
					t.Errorf("checks[%s] = %v, want %s", k, checks[k], want)
				}
			}
			if checks["wompi"] != "configured" {
				t.Errorf("checks[wompi] = %v", checks["wompi"])
			}
		})
	}
}
