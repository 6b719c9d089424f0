package certificates

import (
	"sync"
	"time"
)

// artifactRetention bounds how long a delivered artifact stays downloadable
// through this process
const artifactRetention = 24 * time.Hour

type artifact struct {
	path       string
	name       string
	archiveKey string
	storedAt   time.Time
}

// artifactRegistry maps request ids to artifacts. Expired entries are dropped
// on every store, so the map only holds the last retention window.
type artifactRegistry struct {
	mu      sync.Mutex
	entries map[string]artifact
	ttl     time.Duration
	now     func() time.Time
}

func newArtifactRegistry(ttl time.Duration) *artifactRegistry {
	return &artifactRegistry{
		entries: make(map[string]artifact),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *artifactRegistry) store(requestID string, a artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, existing := range r.entries {
		if now.Sub(existing.storedAt) >= r.ttl {
			delete(r.entries, id)
		}
	}
	a.storedAt = now
	r.entries[requestID] = a
}

func (r *artifactRegistry) load(requestID string) (artifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.entries[requestID]
	if !ok {
		return artifact{}, false
	}
	if r.now().Sub(a.storedAt) >= r.ttl {
		delete(r.entries, requestID)
		return artifact{}, false
	}
	return a, true
}

func (r *artifactRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
