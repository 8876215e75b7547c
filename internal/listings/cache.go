package listings

import (
	"fmt"
	"sync"

	"github.com/marketmirror/marketmirror/internal/metrics"
)

// Cache is the session-scoped mirror of the marketplace listing set,
// keyed by listing folder id. It maintains reverse indexes for the
// listing-id and version-folder lookups and enforces two invariants:
// a known listing id maps to exactly one folder, and a folder id is
// never a listing folder and a version folder at the same time.
//
// Records are never purged because the referenced local folder vanished;
// only an explicit Remove (delete confirmation) drops an entry.
type Cache struct {
	mu        sync.RWMutex
	records   map[string]Record
	byListing map[int]string    // listing id -> folder id
	byVersion map[string]string // version folder id -> folder id
	dirty     bool
}

// NewCache creates an empty listing cache.
func NewCache() *Cache {
	return &Cache{
		records:   make(map[string]Record),
		byListing: make(map[int]string),
		byVersion: make(map[string]string),
	}
}

// Upsert inserts or fully replaces the record for folderID. Callers
// supply the whole tuple; unknown fields use their unset sentinel.
// The edit URL of an existing record survives a replace unless the new
// tuple carries one.
func (c *Cache) Upsert(folderID string, listingID int, versionFolderID string, active bool) error {
	if folderID == "" {
		return fmt.Errorf("empty folder id")
	}
	if folderID == versionFolderID {
		return fmt.Errorf("folder %s cannot be its own version folder", folderID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if owner, ok := c.byVersion[folderID]; ok && owner != "" {
		return fmt.Errorf("folder %s is the version folder of listing folder %s", folderID, owner)
	}
	if versionFolderID != "" {
		if _, ok := c.records[versionFolderID]; ok {
			return fmt.Errorf("version folder %s is already a listing folder", versionFolderID)
		}
		if owner, ok := c.byVersion[versionFolderID]; ok && owner != folderID {
			return fmt.Errorf("version folder %s already belongs to %s", versionFolderID, owner)
		}
	}
	if listingID != UnknownListingID {
		if owner, ok := c.byListing[listingID]; ok && owner != folderID {
			return fmt.Errorf("listing id %d already bound to folder %s", listingID, owner)
		}
	}

	record := Record{
		FolderID:        folderID,
		ListingID:       listingID,
		VersionFolderID: versionFolderID,
		Active:          active,
	}
	if old, ok := c.records[folderID]; ok {
		record.EditURL = old.EditURL
		c.dropIndexesLocked(old)
	}
	c.records[folderID] = record
	c.addIndexesLocked(record)
	c.markDirtyLocked()
	return nil
}

// Remove deletes the record for folderID, reporting whether one existed.
func (c *Cache) Remove(folderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[folderID]
	if !ok {
		return false
	}
	c.dropIndexesLocked(record)
	delete(c.records, folderID)
	c.markDirtyLocked()
	return true
}

// SetListingID assigns the marketplace id of an existing record.
// Returns false if there is no record or the id is bound elsewhere.
func (c *Cache) SetListingID(folderID string, listingID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[folderID]
	if !ok {
		return false
	}
	if listingID != UnknownListingID {
		if owner, bound := c.byListing[listingID]; bound && owner != folderID {
			return false
		}
	}
	c.dropIndexesLocked(record)
	record.ListingID = listingID
	c.records[folderID] = record
	c.addIndexesLocked(record)
	c.markDirtyLocked()
	return true
}

// SetVersionFolder designates the active version folder of an existing
// record. Returns false if there is no record or the id would break the
// listing/version partition.
func (c *Cache) SetVersionFolder(folderID, versionFolderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[folderID]
	if !ok || versionFolderID == folderID {
		return false
	}
	if versionFolderID != "" {
		if _, listing := c.records[versionFolderID]; listing {
			return false
		}
		if owner, bound := c.byVersion[versionFolderID]; bound && owner != folderID {
			return false
		}
	}
	c.dropIndexesLocked(record)
	record.VersionFolderID = versionFolderID
	c.records[folderID] = record
	c.addIndexesLocked(record)
	c.markDirtyLocked()
	return true
}

// SetActive flips the published state of an existing record.
func (c *Cache) SetActive(folderID string, active bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[folderID]
	if !ok {
		return false
	}
	record.Active = active
	c.records[folderID] = record
	c.markDirtyLocked()
	return true
}

// SetEditURL stores the advisory edit URL of an existing record.
func (c *Cache) SetEditURL(folderID, editURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[folderID]
	if !ok {
		return false
	}
	record.EditURL = editURL
	c.records[folderID] = record
	c.markDirtyLocked()
	return true
}

// Get returns the record for folderID.
func (c *Cache) Get(folderID string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.records[folderID]
	return record, ok
}

// Contains returns true if folderID is a listing folder.
func (c *Cache) Contains(folderID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.records[folderID]
	return ok
}

// FolderFor is the reverse lookup from listing id to listing folder id.
func (c *Cache) FolderFor(listingID int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	folderID, ok := c.byListing[listingID]
	return folderID, ok
}

// VersionOwner returns the listing folder whose record designates
// versionFolderID as its version folder.
func (c *Cache) VersionOwner(versionFolderID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	folderID, ok := c.byVersion[versionFolderID]
	return folderID, ok
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// IsEmpty returns true when nothing has been reconciled yet.
func (c *Cache) IsEmpty() bool {
	return c.Len() == 0
}

// Records returns a snapshot of all records.
func (c *Cache) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Record, 0, len(c.records))
	for _, record := range c.records {
		out = append(out, record)
	}
	return out
}

// CheckAndClearDirty reads and atomically resets the dirty flag. The
// external stock-count refresher polls this; the flag is edge-triggered
// so one mutation burst costs one refresh.
func (c *Cache) CheckAndClearDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return false
	}
	c.dirty = false
	metrics.RecordStockRefresh()
	return true
}

// MarkDirty raises the dirty flag without a cache mutation.
func (c *Cache) MarkDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markDirtyLocked()
}

func (c *Cache) markDirtyLocked() {
	c.dirty = true
	metrics.SetListingsCached(len(c.records))
}

func (c *Cache) addIndexesLocked(record Record) {
	if record.ListingID != UnknownListingID {
		c.byListing[record.ListingID] = record.FolderID
	}
	if record.VersionFolderID != "" {
		c.byVersion[record.VersionFolderID] = record.FolderID
	}
}

func (c *Cache) dropIndexesLocked(record Record) {
	if record.ListingID != UnknownListingID {
		delete(c.byListing, record.ListingID)
	}
	if record.VersionFolderID != "" {
		delete(c.byVersion, record.VersionFolderID)
	}
}
