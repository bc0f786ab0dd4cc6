package scratch

import (
	"os"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	root := t.TempDir()
	d, err := Acquire(root, "run1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	clip := d.SegmentPath(3, "wav")
	if err := os.WriteFile(clip, []byte("pcm"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	if err := d.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := d.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("scratch root not empty: %v", entries)
	}
}

func TestSegmentPathsAreUnique(t *testing.T) {
	root := t.TempDir()
	a, err := Acquire(root, NewRunID())
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer a.Release()
	b, err := Acquire(root, NewRunID())
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	defer b.Release()

	seen := map[string]bool{}
	for _, d := range []*Dir{a, b} {
		for i := 0; i < 50; i++ {
			p := d.SegmentPath(i, "wav")
			if seen[p] {
				t.Fatalf("duplicate segment path %s", p)
			}
			seen[p] = true
		}
	}
	if a.Path() == b.Path() {
		t.Fatalf("runs share a scratch directory")
	}
}

func TestAcquireNeedsRunID(t *testing.T) {
	if _, err := Acquire(t.TempDir(), ""); err == nil {
		t.Fatalf("expected error for empty run id")
	}
}
