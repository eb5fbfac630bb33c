// Package adminapi exposes a local operator API for the gateway:
// listing live sessions, server and cache statistics, forcing a cache
// refresh, and verifying the audit chain. It is served over gRPC on a
// unix socket or a loopback TCP address, never on the radio-facing
// listener.
package adminapi

import (
	"context"
	"database/sql"
	"time"

	"github.com/qthlink/qthlink/internal/audit"
	"github.com/qthlink/qthlink/internal/entity"
	"github.com/qthlink/qthlink/internal/server"
	"github.com/qthlink/qthlink/internal/session"
)

// Service implements the admin operations against live gateway state.
type Service struct {
	registry    *session.Registry
	cache       *entity.Cache
	serverStats func() server.Stats
	auditDB     *sql.DB
}

// NewService wires the service to the running gateway's components.
func NewService(registry *session.Registry, cache *entity.Cache, serverStats func() server.Stats, auditDB *sql.DB) *Service {
	return &Service{
		registry:    registry,
		cache:       cache,
		serverStats: serverStats,
		auditDB:     auditDB,
	}
}

// ListSessions returns every registered session.
func (s *Service) ListSessions() []session.Summary {
	return s.registry.ListActive()
}

// ServerStats returns the listener's operational counters.
func (s *Service) ServerStats() server.Stats {
	return s.serverStats()
}

// CacheStats describes the current entity cache snapshot.
type CacheStats struct {
	Generation uint64    `json:"generation"`
	Entities   int       `json:"entities"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds float64   `json:"age_seconds"`
	Empty      bool      `json:"empty"`
}

// CacheStats reports the state of the entity cache.
func (s *Service) CacheStats() CacheStats {
	snap := s.cache.Current()
	if snap == nil {
		return CacheStats{Empty: true}
	}
	age, _ := s.cache.Age()
	return CacheStats{
		Generation: snap.Generation,
		Entities:   snap.Len(),
		FetchedAt:  snap.FetchedAt,
		AgeSeconds: age.Seconds(),
	}
}

// RefreshResult is the outcome of a forced cache refresh.
type RefreshResult struct {
	Entities   int    `json:"entities"`
	Generation uint64 `json:"generation"`
}

// RefreshCache forces a cache refresh and returns the new snapshot size.
func (s *Service) RefreshCache(ctx context.Context) (RefreshResult, error) {
	n, err := s.cache.Refresh(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	var gen uint64
	if snap := s.cache.Current(); snap != nil {
		gen = snap.Generation
	}
	return RefreshResult{Entities: n, Generation: gen}, nil
}

// VerifyAuditChain re-walks the audit log's hash chain.
func (s *Service) VerifyAuditChain() (bool, int, error) {
	return audit.Verify(s.auditDB)
}
