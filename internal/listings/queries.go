package listings

// Classification queries over the cache and the local folder hierarchy.
// These are read-only and never touch the network; they answer from
// whatever the cache currently holds.

// IsListed reports whether folderID has a listing record. This is pure
// map membership; a record whose listing id is still unknown counts.
func (s *Syncer) IsListed(folderID string) bool {
	return s.cache.Contains(folderID)
}

// IsListedAndActive reports whether folderID is listed and published.
func (s *Syncer) IsListedAndActive(folderID string) bool {
	record, ok := s.cache.Get(folderID)
	return ok && record.Active
}

// IsVersionFolder reports whether folderID is the designated version
// folder of some listing.
func (s *Syncer) IsVersionFolder(folderID string) bool {
	_, ok := s.cache.VersionOwner(folderID)
	return ok
}

// ActivationState reports the published flag for a listed folder.
func (s *Syncer) ActivationState(folderID string) bool {
	record, ok := s.cache.Get(folderID)
	return ok && record.Active
}

// ListingID returns the marketplace id bound to folderID, or
// UnknownListingID when the folder is not listed.
func (s *Syncer) ListingID(folderID string) int {
	record, ok := s.cache.Get(folderID)
	if !ok {
		return UnknownListingID
	}
	return record.ListingID
}

// VersionFolder returns the designated version folder of folderID's
// listing, or "" when there is none.
func (s *Syncer) VersionFolder(folderID string) string {
	record, ok := s.cache.Get(folderID)
	if !ok {
		return ""
	}
	return record.VersionFolderID
}

// ListingURL returns the listing's edit page URL, or "".
func (s *Syncer) ListingURL(folderID string) string {
	record, ok := s.cache.Get(folderID)
	if !ok {
		return ""
	}
	return record.EditURL
}

// ListingFolder resolves a marketplace listing id back to the local
// folder it is bound to.
func (s *Syncer) ListingFolder(listingID int) (string, bool) {
	return s.cache.FolderFor(listingID)
}

// ActiveFolderOf walks up from id through the folder hierarchy and
// returns the nearest ancestor that is the version folder of an active
// listing. Returns "" when no such ancestor exists or when no hierarchy
// is configured.
func (s *Syncer) ActiveFolderOf(id string) string {
	if s.hierarchy == nil {
		return ""
	}
	for _, ancestor := range s.hierarchy.AncestryPath(id) {
		owner, ok := s.cache.VersionOwner(ancestor)
		if !ok {
			continue
		}
		if record, found := s.cache.Get(owner); found && record.Active {
			return ancestor
		}
	}
	return ""
}

// IsInActiveFolder reports whether id sits under the version folder of
// an active listing.
func (s *Syncer) IsInActiveFolder(id string) bool {
	return s.ActiveFolderOf(id) != ""
}

// IsUpdating reports whether folderID has an operation in flight, either
// its own pending request or a bulk refresh touching everything.
func (s *Syncer) IsUpdating(folderID string) bool {
	return s.pending.Contains(folderID) || s.pending.Bulk()
}
