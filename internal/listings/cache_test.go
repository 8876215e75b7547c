package listings

import "testing"

func TestCacheUpsertAndGet(t *testing.T) {
	c := NewCache()
	if err := c.Upsert("F1", 42, "V1", true); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	record, ok := c.Get("F1")
	if !ok {
		t.Fatal("record not found after upsert")
	}
	if record.ListingID != 42 || record.VersionFolderID != "V1" || !record.Active {
		t.Errorf("unexpected record: %+v", record)
	}
	if c.Len() != 1 || c.IsEmpty() {
		t.Errorf("Len=%d IsEmpty=%v, want 1/false", c.Len(), c.IsEmpty())
	}
}

func TestCacheRejectsEmptyFolder(t *testing.T) {
	c := NewCache()
	if err := c.Upsert("", 1, "", false); err == nil {
		t.Fatal("expected error for empty folder id")
	}
}

func TestCacheListingIDUniqueness(t *testing.T) {
	c := NewCache()
	if err := c.Upsert("F1", 42, "", true); err != nil {
		t.Fatalf("upsert F1: %v", err)
	}
	if err := c.Upsert("F2", 42, "", true); err == nil {
		t.Fatal("expected error reusing listing id 42 on another folder")
	}
	// Re-upserting the same folder with the same id is fine.
	if err := c.Upsert("F1", 42, "V1", false); err != nil {
		t.Fatalf("re-upsert F1: %v", err)
	}
}

func TestCacheVersionFolderPartition(t *testing.T) {
	c := NewCache()
	if err := c.Upsert("F1", 1, "V1", true); err != nil {
		t.Fatalf("upsert F1: %v", err)
	}
	// A version folder of one listing cannot become a listing folder.
	if err := c.Upsert("V1", 2, "", true); err == nil {
		t.Fatal("expected error listing a version folder")
	}
	// Another listing cannot claim the same version folder.
	if err := c.Upsert("F2", 2, "V1", true); err == nil {
		t.Fatal("expected error binding V1 to a second listing")
	}
	// A listing folder cannot serve as another listing's version folder.
	if err := c.Upsert("F2", 2, "F1", true); err == nil {
		t.Fatal("expected error using a listing folder as version folder")
	}
	// A folder cannot be its own version folder.
	if err := c.Upsert("F3", 3, "F3", true); err == nil {
		t.Fatal("expected error for self version folder")
	}
}

func TestCacheReverseLookups(t *testing.T) {
	c := NewCache()
	if err := c.Upsert("F1", 7, "V1", true); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if folder, ok := c.FolderFor(7); !ok || folder != "F1" {
		t.Errorf("FolderFor(7) = %q,%v, want F1,true", folder, ok)
	}
	if owner, ok := c.VersionOwner("V1"); !ok || owner != "F1" {
		t.Errorf("VersionOwner(V1) = %q,%v, want F1,true", owner, ok)
	}
	if _, ok := c.FolderFor(99); ok {
		t.Error("FolderFor(99) should miss")
	}

	// Changing the version folder retargets the index.
	if !c.SetVersionFolder("F1", "V2") {
		t.Fatal("SetVersionFolder refused")
	}
	if _, ok := c.VersionOwner("V1"); ok {
		t.Error("V1 still indexed after retarget")
	}
	if owner, ok := c.VersionOwner("V2"); !ok || owner != "F1" {
		t.Errorf("VersionOwner(V2) = %q,%v, want F1,true", owner, ok)
	}

	// Removal drops both indexes.
	if !c.Remove("F1") {
		t.Fatal("Remove refused")
	}
	if _, ok := c.FolderFor(7); ok {
		t.Error("listing id still indexed after remove")
	}
	if _, ok := c.VersionOwner("V2"); ok {
		t.Error("version folder still indexed after remove")
	}
}

func TestCacheSettersOnMissingRecord(t *testing.T) {
	c := NewCache()
	if c.SetActive("nope", true) || c.SetListingID("nope", 1) ||
		c.SetVersionFolder("nope", "V") || c.SetEditURL("nope", "u") {
		t.Error("setters should refuse a missing record")
	}
	if c.Remove("nope") {
		t.Error("Remove should report false for a missing record")
	}
}

func TestCacheDirtyFlagEdgeTriggered(t *testing.T) {
	c := NewCache()
	if c.CheckAndClearDirty() {
		t.Fatal("fresh cache should not be dirty")
	}
	if err := c.Upsert("F1", 1, "", true); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !c.CheckAndClearDirty() {
		t.Fatal("upsert should mark dirty")
	}
	if c.CheckAndClearDirty() {
		t.Fatal("dirty flag must clear after one read")
	}
	c.SetActive("F1", false)
	if !c.CheckAndClearDirty() {
		t.Fatal("setter should mark dirty")
	}
	// A refused mutation leaves the flag clear.
	c.SetActive("missing", true)
	if c.CheckAndClearDirty() {
		t.Fatal("refused mutation should not mark dirty")
	}
	c.MarkDirty()
	if !c.CheckAndClearDirty() {
		t.Fatal("MarkDirty should set the flag")
	}
}

func TestCachePreservesEditURLOnReplace(t *testing.T) {
	c := NewCache()
	if err := c.Upsert("F1", 1, "", true); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !c.SetEditURL("F1", "https://marketplace.example/edit/1") {
		t.Fatal("SetEditURL refused")
	}
	if err := c.Upsert("F1", 1, "V1", false); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	record, _ := c.Get("F1")
	if record.EditURL != "https://marketplace.example/edit/1" {
		t.Errorf("EditURL lost on replace: %q", record.EditURL)
	}
}

func TestCacheRecordsSnapshot(t *testing.T) {
	c := NewCache()
	for i, folder := range []string{"F1", "F2", "F3"} {
		if err := c.Upsert(folder, i+1, "", true); err != nil {
			t.Fatalf("upsert %s: %v", folder, err)
		}
	}
	records := c.Records()
	if len(records) != 3 {
		t.Fatalf("Records returned %d entries, want 3", len(records))
	}
	// Mutating the snapshot must not touch the cache.
	records[0].Active = false
	for _, folder := range []string{"F1", "F2", "F3"} {
		if record, _ := c.Get(folder); !record.Active {
			t.Errorf("cache record %s mutated through snapshot", folder)
		}
	}
}
