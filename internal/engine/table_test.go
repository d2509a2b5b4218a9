package engine

import (
	"errors"
	"testing"

	"github.com/ykpmusicstudio/remarkablemount/internal/record"
	"github.com/ykpmusicstudio/remarkablemount/internal/remote"
)

func TestTableSentinels(t *testing.T) {
	tb := NewTable()

	if tb.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tb.Len())
	}

	var nf *NotFoundError
	if _, err := tb.Get(InvalidIno); !errors.As(err, &nf) {
		t.Errorf("Get(0) err = %v, want NotFoundError", err)
	}

	root, err := tb.Get(RootIno)
	if err != nil {
		t.Fatalf("Get(root): %v", err)
	}
	if !root.IsRoot() || root.UniqueID() != "" {
		t.Errorf("root = ino %d uid %q", root.Ino(), root.UniqueID())
	}

	trash, err := tb.Get(TrashIno)
	if err != nil {
		t.Fatalf("Get(trash): %v", err)
	}
	if !trash.IsTrash() || trash.Parent() != RootIno {
		t.Errorf("trash parent = %d", trash.Parent())
	}

	if _, err := tb.Get(uint64(tb.Len())); !errors.As(err, &nf) {
		t.Errorf("Get(len) err = %v, want NotFoundError", err)
	}
}

func TestAllocateOrTouchIdempotent(t *testing.T) {
	tb := NewTable()
	st := remote.FileStat{Path: "/r/abc.metadata", Mtime: 100}

	ino1, refresh1 := tb.AllocateOrTouch("abc", RootIno, st)
	if !refresh1 {
		t.Error("fresh allocation must need refresh")
	}
	if ino1 != 3 {
		t.Errorf("first allocation ino = %d, want 3", ino1)
	}

	// Simulate the fetch completing.
	node, _ := tb.Get(ino1)
	node.setMetadata(record.Synthetic("abc"), RootIno, st)

	ino2, refresh2 := tb.AllocateOrTouch("abc", RootIno, st)
	if ino2 != ino1 {
		t.Errorf("second call ino = %d, want %d", ino2, ino1)
	}
	if refresh2 {
		t.Error("unchanged stat must not need refresh")
	}
}

func TestStalenessMonotonicity(t *testing.T) {
	tb := NewTable()
	st := remote.FileStat{Path: "/r/abc.metadata", Mtime: 100}
	ino, _ := tb.AllocateOrTouch("abc", RootIno, st)
	node, _ := tb.Get(ino)
	node.setMetadata(record.Synthetic("abc"), RootIno, st)

	tests := []struct {
		mtime   int64
		refresh bool
	}{
		{50, false},
		{100, false},
		{101, true},
	}
	for _, tt := range tests {
		_, refresh := tb.AllocateOrTouch("abc", RootIno, remote.FileStat{Path: st.Path, Mtime: tt.mtime})
		if refresh != tt.refresh {
			t.Errorf("mtime %d: refresh = %v, want %v", tt.mtime, refresh, tt.refresh)
		}
	}
}

func TestAllocationIsMonotonic(t *testing.T) {
	tb := NewTable()
	for i := 0; i < 5; i++ {
		uid := string(rune('a' + i))
		ino, _ := tb.AllocateOrTouch(uid, RootIno, remote.FileStat{Path: "/r/" + uid + ".metadata"})
		if ino != uint64(3+i) {
			t.Errorf("allocation %d got ino %d, want %d", i, ino, 3+i)
		}
	}
	if tb.Len() != 8 {
		t.Errorf("Len = %d, want 8", tb.Len())
	}
}

func TestRootTrashNeverRefresh(t *testing.T) {
	tb := NewTable()
	observed := remote.FileStat{Mtime: 1 << 40}

	if _, refresh := tb.AllocateOrTouch(RootUID, RootIno, observed); refresh {
		t.Error("root reported stale")
	}
	if _, refresh := tb.AllocateOrTouch(TrashUID, RootIno, observed); refresh {
		t.Error("trash reported stale")
	}
}

func TestResolveChild(t *testing.T) {
	tb := NewTable()

	// Static trash child, resolvable without any listing.
	ino, found, err := tb.ResolveChild(RootIno, TrashName)
	if err != nil || !found || ino != TrashIno {
		t.Errorf("ResolveChild(root, .Trash) = %d, %v, %v", ino, found, err)
	}

	// Absent child in a valid parent.
	_, found, err = tb.ResolveChild(RootIno, "nope")
	if err != nil || found {
		t.Errorf("ResolveChild(root, nope) = %v, %v", found, err)
	}

	// Invalid parent is an error.
	var nf *NotFoundError
	if _, _, err := tb.ResolveChild(42, "x"); !errors.As(err, &nf) {
		t.Errorf("ResolveChild(42, x) err = %v, want NotFoundError", err)
	}
	if _, _, err := tb.ResolveChild(InvalidIno, "x"); !errors.As(err, &nf) {
		t.Errorf("ResolveChild(0, x) err = %v, want NotFoundError", err)
	}
}

func TestNodeHandleSaturation(t *testing.T) {
	n := newNode(5, RootIno, remote.FileStat{})
	n.handles = ^uint64(0)

	var he *HandleError
	if _, err := n.open(); !errors.As(err, &he) {
		t.Fatalf("open at max err = %v, want HandleError", err)
	}
}

func TestNodeNames(t *testing.T) {
	tb := NewTable()

	root, _ := tb.Get(RootIno)
	if root.VisibleName() != "/" {
		t.Errorf("root name = %q", root.VisibleName())
	}
	trash, _ := tb.Get(TrashIno)
	if trash.VisibleName() != ".Trash" {
		t.Errorf("trash name = %q", trash.VisibleName())
	}

	n := newNode(7, RootIno, remote.FileStat{Path: "/r/x.metadata"})
	if n.VisibleName() != InvalidName {
		t.Errorf("metadata-less node name = %q", n.VisibleName())
	}
}
