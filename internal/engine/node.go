package engine

import (
	"math"
	"path"
	"syscall"

	"github.com/ykpmusicstudio/remarkablemount/internal/record"
	"github.com/ykpmusicstudio/remarkablemount/internal/remote"
)

// Reserved inodes and names. Inode 1 is FUSE_ROOT_ID.
const (
	InvalidIno uint64 = 0
	RootIno    uint64 = 1
	TrashIno   uint64 = 2

	RootUID  = ""
	TrashUID = ".Trash"

	RootName    = "/"
	TrashName   = ".Trash"
	InvalidName = "<Invalid Node>"

	contentExtension = "content"
)

// EntryKind is the filesystem-visible kind of a node.
type EntryKind int

const (
	EntryDirectory EntryKind = iota
	EntryFile
)

// ChildEntry is one directory-entry summary: the child's inode, its
// position in the parent's children list (used to resume a paginated
// read), its kind, and its display name.
type ChildEntry struct {
	Ino  uint64
	Off  int
	Kind EntryKind
	Name string
}

// Node is one filesystem entry. Nodes are owned by the Table and only
// referenced by inode number; they live for the whole mount session.
type Node struct {
	ino      uint64
	parent   uint64
	meta     *record.Metadata
	content  *record.Content
	stat     remote.FileStat
	children []ChildEntry
	handles  uint64
}

func newNode(ino, parent uint64, st remote.FileStat) *Node {
	return &Node{ino: ino, parent: parent, stat: st}
}

func newRoot() *Node {
	return &Node{
		ino:    RootIno,
		parent: RootIno,
		meta:   record.Synthetic(RootName),
		stat:   remote.SyntheticDir(RootName),
	}
}

func newTrash() *Node {
	return &Node{
		ino:    TrashIno,
		parent: RootIno,
		meta:   record.Synthetic(TrashName),
		stat:   remote.SyntheticDir(TrashUID),
	}
}

// Ino returns the node's inode number.
func (n *Node) Ino() uint64 { return n.ino }

// Parent returns the inode of the containing directory.
func (n *Node) Parent() uint64 { return n.parent }

// IsRoot reports whether this is the root sentinel.
func (n *Node) IsRoot() bool { return n.ino == RootIno }

// IsTrash reports whether this is the trash sentinel.
func (n *Node) IsTrash() bool { return n.ino == TrashIno }

// IsDocument reports whether the node's descriptor declares a document.
func (n *Node) IsDocument() bool {
	return n.meta != nil && n.meta.IsDocument()
}

// Kind maps the node onto a directory entry kind. Nodes without
// metadata present as directories.
func (n *Node) Kind() EntryKind {
	if n.IsDocument() {
		return EntryFile
	}
	return EntryDirectory
}

// UniqueID returns the remote unique id derived from the node's stat
// path. The root's id is the empty string.
func (n *Node) UniqueID() string {
	if n.IsRoot() {
		return RootUID
	}
	return n.stat.UniqueID()
}

// baseName is the display name before any extension: the descriptor's
// visible name, or a reserved constant for sentinels.
func (n *Node) baseName() string {
	switch n.ino {
	case RootIno:
		return RootName
	case TrashIno:
		return TrashName
	}
	if n.meta != nil {
		return n.meta.VisibleName
	}
	return InvalidName
}

// VisibleName is the name the node is listed under: the base name plus
// the pdf/epub extension when the content record resolves to one.
// Notebook and lines documents stay extensionless.
func (n *Node) VisibleName() string {
	name := n.baseName()
	if ext, ok := n.content.Kind().Extension(); ok {
		name += "." + ext
	}
	return name
}

// Size reports the node's byte size. For pdf/epub documents the stat
// has been replaced with the rendered target's stat, so this is the
// actual readable length; notebook/lines documents have no renderable
// target and report zero. Collections report the descriptor's raw size.
func (n *Node) Size() int64 {
	if n.meta == nil {
		return 0
	}
	if n.meta.IsDocument() {
		if _, ok := n.content.Kind().Extension(); ok {
			return n.stat.Size
		}
		return 0
	}
	return n.stat.Size
}

// Links returns the link count: 2 for directories, 1 for files.
func (n *Node) Links() uint32 {
	if n.Kind() == EntryDirectory {
		return 2
	}
	return 1
}

// Handles returns the current open-handle count.
func (n *Node) Handles() uint64 { return n.handles }

func (n *Node) open() (uint64, error) {
	if n.handles == math.MaxUint64 {
		return 0, &HandleError{Errno: syscall.EACCES}
	}
	n.handles++
	return n.handles, nil
}

func (n *Node) close() (uint64, error) {
	if n.handles == 0 {
		return 0, &HandleError{Errno: syscall.EINVAL}
	}
	n.handles--
	return n.handles, nil
}

// NeedsUpdate reports whether a full metadata fetch is required given a
// newly observed descriptor stat: the node has no metadata yet, or the
// observed modify time is strictly newer than the cached one. Root and
// trash never refresh.
func (n *Node) NeedsUpdate(observed remote.FileStat) bool {
	if n.IsRoot() || n.IsTrash() {
		return false
	}
	return n.meta == nil || observed.MoreRecentThan(n.stat)
}

// ContentPath is the remote path of the node's content record.
func (n *Node) ContentPath(docRoot string) string {
	return contentPath(docRoot, n.UniqueID())
}

// TargetPath is the remote path of the rendered pdf/epub target, if the
// content record resolves to one.
func (n *Node) TargetPath(docRoot string) (string, bool) {
	return targetPath(docRoot, n.UniqueID(), n.content)
}

func contentPath(docRoot, uid string) string {
	return path.Join(docRoot, uid+"."+contentExtension)
}

func targetPath(docRoot, uid string, c *record.Content) (string, bool) {
	ext, ok := c.Kind().Extension()
	if !ok {
		return "", false
	}
	return path.Join(docRoot, uid+"."+ext), true
}

func (n *Node) setMetadata(meta *record.Metadata, parent uint64, st remote.FileStat) {
	n.meta = meta
	n.parent = parent
	n.stat = st
	// A refreshed descriptor invalidates any cached content; the
	// materializer redoes content and target resolution.
	n.content = nil
}

func (n *Node) setContent(c *record.Content) {
	n.content = c
}

func (n *Node) setTargetStat(st remote.FileStat) {
	n.stat = st
}
