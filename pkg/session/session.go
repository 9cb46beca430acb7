// Package session provides per-token isolated resource stores with versioned
// records, soft-delete semantics and scheduled expiry.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
)

// Session is one user's isolated world. All methods are safe for concurrent
// use; writes on the same (type, id) serialize so that version histories have
// no gaps and no duplicates.
type Session struct {
	key       string
	createdAt time.Time

	mu        sync.RWMutex
	expiry    *time.Time
	hydrated  bool
	resources map[string]map[string]map[int64]model.Resource
	deleted   map[string]map[string]struct{}
	nextIDs   map[string]int64

	// hydrateOnce guards the hydration callback so that two concurrent
	// first-use requests under the same key load the pod data only once.
	hydrateOnce *sync.Once
}

func newSession(key string) *Session {
	return &Session{
		key:         key,
		createdAt:   time.Now(),
		resources:   make(map[string]map[string]map[int64]model.Resource),
		deleted:     make(map[string]map[string]struct{}),
		nextIDs:     make(map[string]int64),
		hydrateOnce: &sync.Once{},
	}
}

// Key returns the session key.
func (s *Session) Key() string { return s.key }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// SetExpiry sets the session expiry, inherited from the token's exp claim.
// A nil expiry means the session never expires on its own.
func (s *Session) SetExpiry(expiry *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry = expiry
}

// Expiry returns the session expiry, or nil.
func (s *Session) Expiry() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiry
}

// IsExpired reports whether the session is past its expiry at the given time.
func (s *Session) IsExpired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiry != nil && now.After(*s.expiry)
}

// Hydrated reports whether first-use loading has completed.
func (s *Session) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// SetHydrated marks first-use loading as completed (or not).
func (s *Session) SetHydrated(hydrated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrated = hydrated
}

// HydrateOnce runs fn at most once per session lifetime. Clear resets the
// latch together with the hydration flag.
func (s *Session) HydrateOnce(fn func()) {
	s.mu.RLock()
	once := s.hydrateOnce
	s.mu.RUnlock()
	once.Do(fn)
}

// Store inserts a resource at the given version and clears any tombstone for
// the id, so a store after a delete "undeletes".
func (s *Session) Store(resourceType, id string, version int64, resource model.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	typeMap, ok := s.resources[resourceType]
	if !ok {
		typeMap = make(map[string]map[int64]model.Resource)
		s.resources[resourceType] = typeMap
	}
	versions, ok := typeMap[id]
	if !ok {
		versions = make(map[int64]model.Resource)
		typeMap[id] = versions
	}
	versions[version] = resource

	if tombstones, ok := s.deleted[resourceType]; ok {
		delete(tombstones, id)
	}
}

// StoreNext stores a resource at the next version for (type, id) and clears
// any tombstone. The next version is derived from the highest stored version
// whether the id is tombstoned or not, so a revived id continues its history.
// The prepare callback runs with the chosen version before the resource
// becomes visible; version computation and insert happen under one write
// lock, so concurrent callers never produce duplicate versions. The returned
// flag reports whether the id was live (stored and not tombstoned) before
// this call.
func (s *Session) StoreNext(resourceType, id string, resource model.Resource, prepare func(version int64)) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	typeMap, ok := s.resources[resourceType]
	if !ok {
		typeMap = make(map[string]map[int64]model.Resource)
		s.resources[resourceType] = typeMap
	}
	versions, ok := typeMap[id]
	if !ok {
		versions = make(map[int64]model.Resource)
		typeMap[id] = versions
	}

	var latest int64
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	_, tombstoned := s.deleted[resourceType][id]
	existed := latest > 0 && !tombstoned

	version := latest + 1
	if prepare != nil {
		prepare(version)
	}
	versions[version] = resource

	if tombstoned {
		delete(s.deleted[resourceType], id)
	}
	return version, existed
}

// Get returns the stored resource for (type, id, version), or nil. A nil
// version selects the highest stored version.
func (s *Session) Get(resourceType, id string, version *int64) model.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.resources[resourceType][id]
	if len(versions) == 0 {
		return nil
	}
	if version != nil {
		return versions[*version]
	}
	var latest int64
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	return versions[latest]
}

// LatestVersion returns the highest stored version for (type, id), or 0 when
// nothing is stored.
func (s *Session) LatestVersion(resourceType, id string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest int64
	for v := range s.resources[resourceType][id] {
		if v > latest {
			latest = v
		}
	}
	return latest
}

// GetAll returns the latest version of every non-tombstoned id of the given
// type, ordered by id for stable output.
func (s *Session) GetAll(resourceType string) []model.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	typeMap := s.resources[resourceType]
	tombstones := s.deleted[resourceType]

	ids := make([]string, 0, len(typeMap))
	for id, versions := range typeMap {
		if len(versions) == 0 {
			continue
		}
		if _, gone := tombstones[id]; gone {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := make([]model.Resource, 0, len(ids))
	for _, id := range ids {
		versions := typeMap[id]
		var latest int64
		for v := range versions {
			if v > latest {
				latest = v
			}
		}
		results = append(results, versions[latest])
	}
	return results
}

// Delete tombstones an id. Prior versions remain readable by explicit
// version only through Get after the tombstone is cleared again.
func (s *Session) Delete(resourceType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tombstones, ok := s.deleted[resourceType]
	if !ok {
		tombstones = make(map[string]struct{})
		s.deleted[resourceType] = tombstones
	}
	tombstones[id] = struct{}{}
}

// IsDeleted reports whether the id is tombstoned.
func (s *Session) IsDeleted(resourceType, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, gone := s.deleted[resourceType][id]
	return gone
}

// Exists reports whether the id has stored versions and is not tombstoned.
func (s *Session) Exists(resourceType, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, gone := s.deleted[resourceType][id]; gone {
		return false
	}
	return len(s.resources[resourceType][id]) > 0
}

// NextID returns the next server-assigned id for the type, starting at 1 and
// strictly monotonic per type.
func (s *Session) NextID(resourceType string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextIDs[resourceType]++
	return s.nextIDs[resourceType]
}

// EnsureNextID advances the id counter so the next assigned id is greater
// than min. Hydration uses this to keep server-assigned ids clear of ids
// already present in the pod or the development data set.
func (s *Session) EnsureNextID(resourceType string, min int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextIDs[resourceType] < min {
		s.nextIDs[resourceType] = min
	}
}

// Clear drops all session state and resets the hydration flag and latch.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = make(map[string]map[string]map[int64]model.Resource)
	s.deleted = make(map[string]map[string]struct{})
	s.nextIDs = make(map[string]int64)
	s.hydrated = false
	s.hydrateOnce = &sync.Once{}
}
