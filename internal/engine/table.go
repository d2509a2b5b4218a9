package engine

import (
	"github.com/ykpmusicstudio/remarkablemount/internal/remote"
)

// Table is the inode arena: a growable slice of nodes indexed by inode
// number, plus the unique-id index. Inodes are allocated monotonically
// and never reused or compacted; once a remote id maps to an inode the
// mapping is permanent for the mount session.
type Table struct {
	nodes  []*Node
	uidMap map[string]uint64
}

// NewTable returns a table seeded with the invalid, root and trash
// sentinels.
func NewTable() *Table {
	t := &Table{uidMap: make(map[string]uint64)}

	t.nodes = append(t.nodes, newNode(InvalidIno, InvalidIno, remote.FileStat{Path: remote.InvalidUID}))
	t.nodes = append(t.nodes, newRoot())
	t.uidMap[RootUID] = RootIno
	t.nodes = append(t.nodes, newTrash())
	t.uidMap[TrashUID] = TrashIno

	return t
}

// Len returns the number of allocated inodes, sentinels included.
func (t *Table) Len() int {
	return len(t.nodes)
}

// Get resolves an inode to its node. Inode 0 and anything at or beyond
// the table's length is NotFound.
func (t *Table) Get(ino uint64) (*Node, error) {
	if ino == InvalidIno || ino >= uint64(len(t.nodes)) {
		return nil, &NotFoundError{Ino: ino}
	}
	return t.nodes[ino], nil
}

// UniqueID returns the remote unique id for an inode. The root maps to
// the empty string.
func (t *Table) UniqueID(ino uint64) (string, error) {
	if ino == RootIno {
		return RootUID, nil
	}
	node, err := t.Get(ino)
	if err != nil {
		return "", err
	}
	return node.UniqueID(), nil
}

// AllocateOrTouch resolves a remote unique id to its inode, allocating
// the next inode if the id is unknown. The second return reports
// whether the node requires a full metadata fetch: always true for a
// fresh allocation, otherwise decided by the staleness rule against the
// observed stat.
func (t *Table) AllocateOrTouch(uid string, parent uint64, observed remote.FileStat) (uint64, bool) {
	if ino, ok := t.uidMap[uid]; ok {
		return ino, t.nodes[ino].NeedsUpdate(observed)
	}
	ino := uint64(len(t.nodes))
	t.nodes = append(t.nodes, newNode(ino, parent, observed))
	t.uidMap[uid] = ino
	return ino, true
}

// ResolveChild finds a child of parent by display name in the parent's
// cached children. The trash directory is a static child of root. An
// invalid parent is an error, distinct from a child that is simply
// absent.
func (t *Table) ResolveChild(parent uint64, name string) (uint64, bool, error) {
	if parent == RootIno && name == TrashName {
		return TrashIno, true, nil
	}
	node, err := t.Get(parent)
	if err != nil {
		return 0, false, err
	}
	for _, c := range node.children {
		if c.Name == name {
			return c.Ino, true, nil
		}
	}
	return 0, false, nil
}
