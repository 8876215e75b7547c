package inventory

import "testing"

func buildTree(t *testing.T) *Tree {
	t.Helper()
	tr := NewTree()
	// root / listings / L1 / V1, item I1 in V1
	mustAdd := func(id, parent, name string) {
		if err := tr.AddFolder(id, parent, name); err != nil {
			t.Fatalf("AddFolder(%s): %v", id, err)
		}
	}
	mustAdd("root", "", "Inventory")
	mustAdd("listings", "root", "Marketplace Listings")
	mustAdd("L1", "listings", "Red Chair")
	mustAdd("V1", "L1", "v2-final")
	if err := tr.AddItem("I1", "V1"); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	return tr
}

func TestTreeFolderExists(t *testing.T) {
	tr := buildTree(t)

	if !tr.FolderExists("L1") {
		t.Error("FolderExists(L1) = false")
	}
	if tr.FolderExists("nope") {
		t.Error("FolderExists(nope) = true")
	}
	if tr.FolderExists("I1") {
		t.Error("item id reported as folder")
	}
}

func TestTreeAddFolderMissingParent(t *testing.T) {
	tr := NewTree()
	if err := tr.AddFolder("orphan", "missing", "x"); err == nil {
		t.Fatal("expected error for missing parent")
	}
}

func TestTreeParentOf(t *testing.T) {
	tr := buildTree(t)

	if parent, ok := tr.ParentOf("I1"); !ok || parent != "V1" {
		t.Errorf("ParentOf(I1) = %q, %v; want V1, true", parent, ok)
	}
	if parent, ok := tr.ParentOf("V1"); !ok || parent != "L1" {
		t.Errorf("ParentOf(V1) = %q, %v; want L1, true", parent, ok)
	}
	if _, ok := tr.ParentOf("root"); ok {
		t.Error("ParentOf(root) reported a parent")
	}
	if _, ok := tr.ParentOf("nope"); ok {
		t.Error("ParentOf(nope) reported a parent")
	}
}

func TestTreeAncestryPath(t *testing.T) {
	tr := buildTree(t)

	want := []string{"V1", "L1", "listings", "root"}
	got := tr.AncestryPath("I1")
	if len(got) != len(want) {
		t.Fatalf("AncestryPath(I1) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AncestryPath(I1) = %v, want %v", got, want)
		}
	}

	// A folder's path starts at itself.
	got = tr.AncestryPath("V1")
	if len(got) == 0 || got[0] != "V1" {
		t.Fatalf("AncestryPath(V1) = %v, want leading V1", got)
	}

	if tr.AncestryPath("nope") != nil {
		t.Error("AncestryPath(nope) != nil")
	}
}

func TestTreeRemoveFolderRecursive(t *testing.T) {
	tr := buildTree(t)

	tr.RemoveFolder("L1")

	if tr.FolderExists("L1") || tr.FolderExists("V1") {
		t.Error("subtree still present after RemoveFolder")
	}
	if _, ok := tr.ParentOf("I1"); ok {
		t.Error("item survived removal of its folder chain")
	}
}

func TestTreeMoveFolder(t *testing.T) {
	tr := buildTree(t)

	if err := tr.AddFolder("archive", "root", "Archive"); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}
	if err := tr.MoveFolder("L1", "archive"); err != nil {
		t.Fatalf("MoveFolder: %v", err)
	}

	got := tr.AncestryPath("I1")
	want := []string{"V1", "L1", "archive", "root"}
	if len(got) != len(want) {
		t.Fatalf("AncestryPath after move = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AncestryPath after move = %v, want %v", got, want)
		}
	}
}
