package adminapi

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/qthlink/qthlink/internal/audit"
	"github.com/qthlink/qthlink/internal/entity"
	"github.com/qthlink/qthlink/internal/server"
	"github.com/qthlink/qthlink/internal/session"
)

type stubProvider struct{}

func (stubProvider) ListEntities(ctx context.Context) ([]entity.Entity, error) {
	return []entity.Entity{
		{NativeID: "light.kitchen", Name: "Kitchen", State: "on"},
		{NativeID: "switch.heater", Name: "Heater", State: "off"},
	}, nil
}
func (stubProvider) TurnOn(ctx context.Context, nativeID string) error              { return nil }
func (stubProvider) TurnOff(ctx context.Context, nativeID string) error             { return nil }
func (stubProvider) SetValue(ctx context.Context, nativeID string, v float64) error { return nil }
func (stubProvider) TriggerAutomation(ctx context.Context, nativeID string) error   { return nil }

func testHandler(t *testing.T) (*Handler, *session.Registry, *audit.Logger) {
	t.Helper()

	registry := session.NewRegistry()
	cache := entity.NewCache(stubProvider{}, nil, time.Minute)

	auditLog, db, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}

	stats := func() server.Stats {
		return server.Stats{ActiveConnections: 1, MaxConnections: 10}
	}
	svc := NewService(registry, cache, stats, db)
	return NewHandler(svc), registry, auditLog
}

func call(t *testing.T, h *Handler, method string) json.RawMessage {
	t.Helper()
	resp := h.Handle(context.Background(), &RPCRequest{Method: method})
	if resp.Error != "" {
		t.Fatalf("%s: %s", method, resp.Error)
	}
	return resp.Result
}

func TestUnknownMethod(t *testing.T) {
	h, _, _ := testHandler(t)
	resp := h.Handle(context.Background(), &RPCRequest{Method: "nope"})
	if resp.Error == "" {
		t.Error("expected error for unknown method")
	}
}

func TestSessionList(t *testing.T) {
	h, registry, _ := testHandler(t)
	registry.Register("KN4XYZ", "10.0.0.1:4000")

	var sessions []session.Summary
	if err := json.Unmarshal(call(t, h, "session.list"), &sessions); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Identity != "KN4XYZ" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestServerStats(t *testing.T) {
	h, _, _ := testHandler(t)

	var stats server.Stats
	if err := json.Unmarshal(call(t, h, "server.stats"), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.ActiveConnections != 1 || stats.MaxConnections != 10 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCacheStatsAndRefresh(t *testing.T) {
	h, _, _ := testHandler(t)

	var stats CacheStats
	if err := json.Unmarshal(call(t, h, "cache.stats"), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !stats.Empty {
		t.Errorf("fresh cache should be empty: %+v", stats)
	}

	var result RefreshResult
	if err := json.Unmarshal(call(t, h, "cache.refresh"), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Entities != 2 || result.Generation != 1 {
		t.Errorf("refresh = %+v", result)
	}

	if err := json.Unmarshal(call(t, h, "cache.stats"), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Empty || stats.Entities != 2 {
		t.Errorf("stats after refresh = %+v", stats)
	}
}

func TestAuditVerify(t *testing.T) {
	h, _, auditLog := testHandler(t)

	auditLog.Log(audit.EventSessionStart, "KN4XYZ", "sid", "10.0.0.1:4000", nil)
	auditLog.Log(audit.EventSessionEnd, "KN4XYZ", "sid", "10.0.0.1:4000", nil)

	var out struct {
		Valid bool `json:"valid"`
		Count int  `json:"count"`
	}
	if err := json.Unmarshal(call(t, h, "audit.verify"), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Valid || out.Count != 2 {
		t.Errorf("verify = %+v", out)
	}
}
