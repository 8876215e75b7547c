package listings

import (
	"sync"

	"github.com/marketmirror/marketmirror/internal/metrics"
)

// PendingSet tracks folders with an outstanding remote request. A folder
// may be pending without having a cache record yet (mid-create). The
// bulk flag covers the one full-refresh operation and is independent of
// the per-folder entries.
type PendingSet struct {
	mu      sync.RWMutex
	folders map[string]struct{}
	bulk    bool
}

// NewPendingSet creates an empty pending set.
func NewPendingSet() *PendingSet {
	return &PendingSet{folders: make(map[string]struct{})}
}

// Begin marks a folder pending. Idempotent: marking an already-pending
// folder leaves the set unchanged.
func (p *PendingSet) Begin(folderID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.folders[folderID] = struct{}{}
	metrics.SetPendingUpdates(len(p.folders))
}

// End clears a folder's pending mark.
func (p *PendingSet) End(folderID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.folders, folderID)
	metrics.SetPendingUpdates(len(p.folders))
}

// Contains returns true if the folder has a request in flight.
func (p *PendingSet) Contains(folderID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.folders[folderID]
	return ok
}

// Len returns the number of pending folders.
func (p *PendingSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.folders)
}

// SetBulk sets or clears the global bulk-refresh flag.
func (p *PendingSet) SetBulk(updating bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bulk = updating
}

// Bulk returns the global bulk-refresh flag.
func (p *PendingSet) Bulk() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bulk
}
