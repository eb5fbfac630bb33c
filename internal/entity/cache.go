package entity

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is one immutable generation of the entity cache. Numeric ids
// are dense and 1-based within a snapshot; a refresh may renumber, so
// callers resolve every command against a single pinned snapshot.
type Snapshot struct {
	Generation uint64
	FetchedAt  time.Time
	Entities   []Entity // ordered by native id, NumericID = index+1

	byNative map[string]int
}

// ByNumericID looks up an entity by its dense numeric id.
func (s *Snapshot) ByNumericID(id int) (Entity, bool) {
	if s == nil || id < 1 || id > len(s.Entities) {
		return Entity{}, false
	}
	return s.Entities[id-1], true
}

// ByNativeID looks up an entity by its native id.
func (s *Snapshot) ByNativeID(nativeID string) (Entity, bool) {
	if s == nil {
		return Entity{}, false
	}
	idx, ok := s.byNative[nativeID]
	if !ok {
		return Entity{}, false
	}
	return s.Entities[idx], true
}

// Len returns the number of cached entities.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entities)
}

// Cache is the shared, TTL-bounded snapshot of remote entities.
// Reads are lock-free against the current snapshot; refreshes are
// serialized so concurrent callers coalesce onto one upstream fetch,
// and replacement is an atomic swap.
type Cache struct {
	provider Provider
	include  func(Entity) bool // nil = include everything
	ttl      time.Duration

	refreshMu sync.Mutex
	snap      atomic.Pointer[Snapshot]
	gen       atomic.Uint64
	now       func() time.Time
}

// NewCache creates a cache over the provider. include is the externally
// configured inclusion predicate (may be nil).
func NewCache(provider Provider, include func(Entity) bool, ttl time.Duration) *Cache {
	return &Cache{
		provider: provider,
		include:  include,
		ttl:      ttl,
		now:      time.Now,
	}
}

// List returns a snapshot of the cached entities. With useCache, a
// refresh happens only if the cache is empty or older than the TTL;
// without it, a refresh is forced.
func (c *Cache) List(ctx context.Context, useCache bool) (*Snapshot, error) {
	if useCache {
		if snap := c.snap.Load(); snap != nil && c.now().Sub(snap.FetchedAt) < c.ttl {
			return snap, nil
		}
	}
	if _, err := c.Refresh(ctx); err != nil {
		// A stale snapshot still beats failing a read command.
		if snap := c.snap.Load(); snap != nil {
			return snap, nil
		}
		return nil, err
	}
	return c.snap.Load(), nil
}

// Refresh fetches the full entity set, applies the inclusion predicate,
// renumbers, and atomically installs the new snapshot. Returns the
// entity count. Concurrent refreshes are serialized; a caller that was
// queued behind a completed refresh reuses its result instead of
// fetching again.
func (c *Cache) Refresh(ctx context.Context) (int, error) {
	entered := c.now()

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// A refresh that finished while this caller waited is fresh enough.
	if snap := c.snap.Load(); snap != nil && snap.FetchedAt.After(entered) {
		return snap.Len(), nil
	}

	fetched, err := c.provider.ListEntities(ctx)
	if err != nil {
		return 0, err
	}

	entities := make([]Entity, 0, len(fetched))
	for _, e := range fetched {
		if c.include != nil && !c.include(e) {
			continue
		}
		e.Domain = ParseDomain(e.NativeID)
		entities = append(entities, e)
	}

	// Sort by native id so numeric assignment is stable when the
	// provider's set is unchanged.
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].NativeID < entities[j].NativeID
	})

	byNative := make(map[string]int, len(entities))
	for i := range entities {
		entities[i].NumericID = i + 1
		byNative[entities[i].NativeID] = i
	}

	snap := &Snapshot{
		Generation: c.gen.Add(1),
		FetchedAt:  c.now(),
		Entities:   entities,
		byNative:   byNative,
	}
	c.snap.Store(snap)
	return len(entities), nil
}

// Current returns the current snapshot without refreshing (nil if the
// cache has never been filled).
func (c *Cache) Current() *Snapshot {
	return c.snap.Load()
}

// Invalidate drops the current snapshot so the next cached read refreshes.
func (c *Cache) Invalidate() {
	c.snap.Store(nil)
}

// Age returns how old the current snapshot is, and false when empty.
func (c *Cache) Age() (time.Duration, bool) {
	snap := c.snap.Load()
	if snap == nil {
		return 0, false
	}
	return c.now().Sub(snap.FetchedAt), true
}
