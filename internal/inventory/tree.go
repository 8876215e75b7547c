// Package inventory provides read access to the local folder hierarchy
// that listing records refer to. The hierarchy is owned elsewhere; the
// sync core only queries it.
package inventory

import (
	"fmt"
	"sync"
)

// Folder is one node in the inventory hierarchy.
type Folder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"` // empty for root folders
}

// Tree is an in-memory folder hierarchy with item placement.
type Tree struct {
	mu      sync.RWMutex
	folders map[string]*Folder
	items   map[string]string // item id -> containing folder id
}

// NewTree creates an empty hierarchy.
func NewTree() *Tree {
	return &Tree{
		folders: make(map[string]*Folder),
		items:   make(map[string]string),
	}
}

// AddFolder inserts a folder. A non-empty parent must already exist.
func (t *Tree) AddFolder(id, parentID, name string) error {
	if id == "" {
		return fmt.Errorf("empty folder id")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if parentID != "" {
		if _, ok := t.folders[parentID]; !ok {
			return fmt.Errorf("parent folder not found: %s", parentID)
		}
	}
	t.folders[id] = &Folder{ID: id, Name: name, ParentID: parentID}
	return nil
}

// MoveFolder reparents a folder.
func (t *Tree) MoveFolder(id, newParentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	folder, ok := t.folders[id]
	if !ok {
		return fmt.Errorf("folder not found: %s", id)
	}
	if newParentID != "" {
		if _, ok := t.folders[newParentID]; !ok {
			return fmt.Errorf("parent folder not found: %s", newParentID)
		}
	}
	folder.ParentID = newParentID
	return nil
}

// RemoveFolder deletes a folder and everything beneath it.
func (t *Tree) RemoveFolder(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeFolderLocked(id)
}

func (t *Tree) removeFolderLocked(id string) {
	for childID, folder := range t.folders {
		if folder.ParentID == id {
			t.removeFolderLocked(childID)
		}
	}
	for itemID, folderID := range t.items {
		if folderID == id {
			delete(t.items, itemID)
		}
	}
	delete(t.folders, id)
}

// AddItem places an item inside a folder.
func (t *Tree) AddItem(id, folderID string) error {
	if id == "" {
		return fmt.Errorf("empty item id")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.folders[folderID]; !ok {
		return fmt.Errorf("folder not found: %s", folderID)
	}
	t.items[id] = folderID
	return nil
}

// RemoveItem deletes an item.
func (t *Tree) RemoveItem(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, id)
}

// FolderExists returns true if the folder is present in the hierarchy.
func (t *Tree) FolderExists(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.folders[id]
	return ok
}

// ParentOf returns the parent folder of a folder or item. For an item the
// parent is its containing folder. The second result is false when the id
// is unknown or the folder is a root.
func (t *Tree) ParentOf(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if folderID, ok := t.items[id]; ok {
		return folderID, true
	}
	if folder, ok := t.folders[id]; ok && folder.ParentID != "" {
		return folder.ParentID, true
	}
	return "", false
}

// AncestryPath returns the folder chain for an item or folder, nearest
// first. For an item the chain starts at its containing folder; for a
// folder it starts at the folder itself. Unknown ids yield nil.
func (t *Tree) AncestryPath(id string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var path []string
	current := ""
	if folderID, ok := t.items[id]; ok {
		current = folderID
	} else if _, ok := t.folders[id]; ok {
		current = id
	} else {
		return nil
	}

	// Depth guard against reparenting cycles.
	for i := 0; current != "" && i < len(t.folders)+1; i++ {
		path = append(path, current)
		folder, ok := t.folders[current]
		if !ok {
			break
		}
		current = folder.ParentID
	}
	return path
}

// FolderCount returns the number of folders.
func (t *Tree) FolderCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.folders)
}

// Folders returns a snapshot of all folders.
func (t *Tree) Folders() []Folder {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Folder, 0, len(t.folders))
	for _, folder := range t.folders {
		out = append(out, *folder)
	}
	return out
}
