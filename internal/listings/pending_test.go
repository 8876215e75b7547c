package listings

import "testing"

func TestPendingSetBeginEnd(t *testing.T) {
	p := NewPendingSet()
	if p.Contains("F1") {
		t.Fatal("fresh set should be empty")
	}
	p.Begin("F1")
	if !p.Contains("F1") || p.Len() != 1 {
		t.Fatalf("Contains=%v Len=%d after Begin", p.Contains("F1"), p.Len())
	}
	// Begin is idempotent.
	p.Begin("F1")
	if p.Len() != 1 {
		t.Errorf("Len=%d after duplicate Begin, want 1", p.Len())
	}
	p.End("F1")
	if p.Contains("F1") || p.Len() != 0 {
		t.Errorf("Contains=%v Len=%d after End", p.Contains("F1"), p.Len())
	}
	// End on an absent folder is a no-op.
	p.End("F1")
	if p.Len() != 0 {
		t.Errorf("Len=%d after redundant End, want 0", p.Len())
	}
}

func TestPendingSetIndependentFolders(t *testing.T) {
	p := NewPendingSet()
	p.Begin("F1")
	p.Begin("F2")
	if p.Len() != 2 {
		t.Fatalf("Len=%d, want 2", p.Len())
	}
	p.End("F1")
	if p.Contains("F1") || !p.Contains("F2") {
		t.Error("End(F1) must not affect F2")
	}
}

func TestPendingSetBulkFlag(t *testing.T) {
	p := NewPendingSet()
	if p.Bulk() {
		t.Fatal("bulk should start false")
	}
	p.SetBulk(true)
	if !p.Bulk() {
		t.Fatal("SetBulk(true) not observed")
	}
	// Bulk is independent of per-folder entries.
	if p.Contains("F1") {
		t.Error("bulk flag must not imply per-folder pending")
	}
	p.SetBulk(false)
	if p.Bulk() {
		t.Fatal("SetBulk(false) not observed")
	}
}
