package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestPoolStats_JSONTags(t *testing.T) {
	stats := &PoolStats{TotalConns: 10, MaxConns: 20, AcquireDuration: "1.5s", Healthy: true}
	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	json.Unmarshal(data, &m)
	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "acquire_duration", "healthy"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing JSON key %q", key)
		}
	}
}

func runHealth(t *testing.T, checks map[string]Check) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)
	if err := HealthHandler(checks)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	code, body := runHealth(t, map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return nil },
	})
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("expected healthy 200, got %d %v", code, body)
	}
}

func TestHealthHandler_OneFailing(t *testing.T) {
	code, body := runHealth(t, map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"mongo":    func(context.Context) error { return errors.New("no reachable servers") },
	})
	if code != http.StatusServiceUnavailable || body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy 503, got %d %v", code, body)
	}
	checks := body["checks"].(map[string]interface{})
	if checks["mongo"] != "no reachable servers" || checks["postgres"] != "ok" {
		t.Errorf("unexpected check results: %v", checks)
	}
}

func TestHealthHandler_NoChecks(t *testing.T) {
	code, _ := runHealth(t, map[string]Check{})
	if code != http.StatusOK {
		t.Errorf("expected 200 with no checks, got %d", code)
	}
}

func TestTxFromContext_Nil(t *testing.T) {
	if TxFromContext(context.Background()) != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey{}, "not-a-tx")
	if TxFromContext(ctx) != nil {
		t.Error("expected nil tx for wrong value type")
	}
}
