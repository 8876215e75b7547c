// Package listings is the client-side consistency core: it caches what we
// believe the marketplace currently knows about our listings, tracks
// folders with requests in flight, and answers folder classification
// queries for the rest of the application.
package listings

// UnknownListingID is the sentinel for a listing whose marketplace id has
// not been assigned yet.
const UnknownListingID = 0

// Record is one reconciled listing tuple. FolderID doubles as the cache
// key; it stays on the record because the remote protocol echoes it back.
type Record struct {
	FolderID        string `json:"folder_id"`
	ListingID       int    `json:"listing_id"`
	VersionFolderID string `json:"version_folder_id,omitempty"`
	Active          bool   `json:"active"`
	EditURL         string `json:"edit_url,omitempty"`
}

// Listed returns true once the marketplace has assigned a listing id.
func (r Record) Listed() bool {
	return r.ListingID != UnknownListingID
}
